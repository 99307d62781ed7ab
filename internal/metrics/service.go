package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const snapshotRetention = 7 * 24 * time.Hour

type MetricsSnapshot struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Timestamp         time.Time `gorm:"index" json:"timestamp"`
	HTTPRequests      int64     `gorm:"default:0" json:"http_requests"`
	HTTPBytesOut      int64     `gorm:"default:0" json:"http_bytes_out"`
	WebSocketMessages int64     `gorm:"default:0" json:"websocket_messages"`
	WebSocketBytesOut int64     `gorm:"default:0" json:"websocket_bytes_out"`
	EventsPublished   int64     `gorm:"default:0" json:"events_published"`
	EventsDropped     int64     `gorm:"default:0" json:"events_dropped"`
	ConnectedClients  int       `gorm:"default:0" json:"connected_clients"`
	CreatedAt         time.Time `json:"created_at"`
}

type MetricsHourly struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	HourBucket        time.Time `gorm:"uniqueIndex" json:"hour_bucket"`
	HTTPRequests      int64     `gorm:"default:0" json:"http_requests"`
	HTTPBytesOut      int64     `gorm:"default:0" json:"http_bytes_out"`
	WebSocketMessages int64     `gorm:"default:0" json:"websocket_messages"`
	WebSocketBytesOut int64     `gorm:"default:0" json:"websocket_bytes_out"`
	EventsPublished   int64     `gorm:"default:0" json:"events_published"`
	PeakClients       int       `gorm:"default:0" json:"peak_clients"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (MetricsSnapshot) TableName() string {
	return "metrics_snapshots"
}

func (MetricsHourly) TableName() string {
	return "metrics_hourly"
}

func Models() []interface{} {
	return []interface{}{&MetricsSnapshot{}, &MetricsHourly{}}
}

// Service periodically persists the running totals so history survives restarts.
type Service struct {
	db      *gorm.DB
	clients func() int
	now     func() time.Time

	snapshotTicker *time.Ticker
	hourlyTicker   *time.Ticker
	cleanupTicker  *time.Ticker
	done           chan struct{}

	mu             sync.Mutex
	lastHourBucket time.Time
	peakClients    int
}

// NewService reads the connected client count through clients, which may be nil.
func NewService(conn *gorm.DB, clients func() int) *Service {
	if clients == nil {
		clients = func() int { return 0 }
	}
	return &Service{
		db:      conn,
		clients: clients,
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

func (s *Service) Start() {
	log.Info().Msg("starting metrics service")

	s.snapshotTicker = time.NewTicker(time.Minute)
	s.hourlyTicker = time.NewTicker(time.Hour)
	s.cleanupTicker = time.NewTicker(24 * time.Hour)

	s.saveSnapshot()

	go func() {
		for {
			select {
			case <-s.snapshotTicker.C:
				s.saveSnapshot()
			case <-s.hourlyTicker.C:
				s.aggregateHourly()
			case <-s.cleanupTicker.C:
				s.cleanup()
			case <-s.done:
				return
			}
		}
	}()
}

// Stop halts the tickers and writes a final snapshot.
func (s *Service) Stop(ctx context.Context) error {
	log.Info().Msg("stopping metrics service")
	if s.snapshotTicker != nil {
		s.snapshotTicker.Stop()
		s.hourlyTicker.Stop()
		s.cleanupTicker.Stop()
		close(s.done)
	}
	return s.db.WithContext(ctx).Create(s.Current()).Error
}

// Current reads the running totals without persisting them.
func (s *Service) Current() *MetricsSnapshot {
	clients := s.clients()
	s.mu.Lock()
	if clients > s.peakClients {
		s.peakClients = clients
	}
	s.mu.Unlock()
	return &MetricsSnapshot{
		Timestamp:         s.now(),
		HTTPRequests:      atomic.LoadInt64(&HTTPRequests),
		HTTPBytesOut:      atomic.LoadInt64(&HTTPBytesOut),
		WebSocketMessages: atomic.LoadInt64(&WebSocketMessages),
		WebSocketBytesOut: atomic.LoadInt64(&WebSocketBytesOut),
		EventsPublished:   atomic.LoadInt64(&EventsPublished),
		EventsDropped:     atomic.LoadInt64(&EventsDropped),
		ConnectedClients:  clients,
	}
}

func (s *Service) saveSnapshot() {
	if err := s.db.Create(s.Current()).Error; err != nil {
		log.Error().Err(err).Msg("saving metrics snapshot")
	}
}

func (s *Service) aggregateHourly() {
	bucket := s.now().Truncate(time.Hour)
	cur := s.Current()

	s.mu.Lock()
	defer s.mu.Unlock()
	if bucket.Equal(s.lastHourBucket) {
		return
	}

	hourly := MetricsHourly{
		HourBucket:        bucket,
		HTTPRequests:      cur.HTTPRequests,
		HTTPBytesOut:      cur.HTTPBytesOut,
		WebSocketMessages: cur.WebSocketMessages,
		WebSocketBytesOut: cur.WebSocketBytesOut,
		EventsPublished:   cur.EventsPublished,
		PeakClients:       s.peakClients,
	}
	if err := s.db.Save(&hourly).Error; err != nil {
		log.Error().Err(err).Msg("saving hourly metrics")
		return
	}

	s.lastHourBucket = bucket
	s.peakClients = cur.ConnectedClients
	log.Info().Time("hour", bucket).Msg("hourly metrics aggregated")
}

// cleanup drops snapshots older than the retention window.
func (s *Service) cleanup() {
	cutoff := s.now().Add(-snapshotRetention)
	res := s.db.Where("timestamp < ?", cutoff).Delete(&MetricsSnapshot{})
	if res.Error != nil {
		log.Error().Err(res.Error).Msg("cleaning up metrics snapshots")
		return
	}
	if res.RowsAffected > 0 {
		log.Info().Int64("rows", res.RowsAffected).Msg("old metrics snapshots removed")
	}
}

func (s *Service) GetSnapshotHistory(ctx context.Context, minutes int) ([]MetricsSnapshot, error) {
	var snapshots []MetricsSnapshot
	cutoff := s.now().Add(-time.Duration(minutes) * time.Minute)
	err := s.db.WithContext(ctx).Where("timestamp >= ?", cutoff).Order("timestamp DESC").Find(&snapshots).Error
	return snapshots, err
}

func (s *Service) GetHourlyMetrics(ctx context.Context, hours int) ([]MetricsHourly, error) {
	var hourly []MetricsHourly
	cutoff := s.now().Add(-time.Duration(hours) * time.Hour)
	err := s.db.WithContext(ctx).Where("hour_bucket >= ?", cutoff).Order("hour_bucket DESC").Find(&hourly).Error
	return hourly, err
}
