package chatroom

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	DefaultMaxReplyDepth    = 1000
	DefaultMaxMessageLength = 4000

	maxRoomNameLength        = 100
	maxRoomDescriptionLength = 500
	maxRoleNameLength        = 50
	maxEmojiLength           = 32
	maxBanReasonLength       = 500
	maxPageSize              = 100
)

type Options struct {
	MaxReplyDepth    int
	MaxMessageLength int
}

// Service is the access-control, moderation and threading engine. Every
// mutating call runs its checks and writes in a single transaction and
// publishes events only after commit.
type Service struct {
	db  *gorm.DB
	pub Publisher
	now func() time.Time

	maxReplyDepth    int
	maxMessageLength int
}

func NewService(conn *gorm.DB, pub Publisher, opts Options) *Service {
	if pub == nil {
		pub = nopPublisher{}
	}
	if opts.MaxReplyDepth <= 0 {
		opts.MaxReplyDepth = DefaultMaxReplyDepth
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = DefaultMaxMessageLength
	}
	return &Service{
		db:               conn,
		pub:              pub,
		now:              func() time.Time { return time.Now().UTC() },
		maxReplyDepth:    opts.MaxReplyDepth,
		maxMessageLength: opts.MaxMessageLength,
	}
}

// SetPublisher swaps the event sink. It must be called before the service is shared.
func (s *Service) SetPublisher(pub Publisher) {
	if pub == nil {
		pub = nopPublisher{}
	}
	s.pub = pub
}

func (s *Service) publish(events ...Event) {
	for _, ev := range events {
		s.pub.Publish(ev.RoomID, ev)
		log.Debug().Str("event", string(ev.Type)).Uint("room_id", ev.RoomID).Str("user_id", ev.UserID).Msg("event published")
	}
}

func validRoomID(roomID uint) error {
	if roomID == 0 {
		return fmt.Errorf("%w: room id must be greater than 0", ErrInvalidArgument)
	}
	return nil
}

func validUserID(name, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidArgument, name)
	}
	return nil
}

func validMessageID(name string, id uint) error {
	if id == 0 {
		return fmt.Errorf("%w: %s must be greater than 0", ErrInvalidArgument, name)
	}
	return nil
}

func validPage(skip, take int) error {
	if skip < 0 {
		return fmt.Errorf("%w: skip must not be negative", ErrInvalidArgument)
	}
	if take < 1 || take > maxPageSize {
		return fmt.Errorf("%w: take must be between 1 and %d", ErrInvalidArgument, maxPageSize)
	}
	return nil
}
