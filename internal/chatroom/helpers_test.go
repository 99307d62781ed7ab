package chatroom

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chatroom-server/internal/db"
	"chatroom-server/internal/user"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Publish(roomID uint, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *eventRecorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}
	}
	return r.events[len(r.events)-1]
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type fixture struct {
	ctx    context.Context
	conn   *gorm.DB
	svc    *Service
	users  *user.Service
	events *eventRecorder
}

func setup(t *testing.T, opts Options) *fixture {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	conn, err := db.Open(db.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(user.Models()...))
	require.NoError(t, conn.AutoMigrate(Models()...))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})

	rec := &eventRecorder{}
	svc := NewService(conn, rec, opts)

	// Strictly increasing timestamps keep ordering assertions deterministic.
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var tick int64
	svc.now = func() time.Time {
		return base.Add(time.Duration(atomic.AddInt64(&tick, 1)) * time.Second)
	}

	return &fixture{
		ctx:    context.Background(),
		conn:   conn,
		svc:    svc,
		users:  user.NewService(conn),
		events: rec,
	}
}

func (f *fixture) user(t *testing.T, name string) string {
	t.Helper()
	u, err := f.users.Register(f.ctx, name, "")
	require.NoError(t, err)
	return u.ID
}

func (f *fixture) room(t *testing.T, ownerID string) *Chatroom {
	t.Helper()
	room, err := f.svc.CreateRoom(f.ctx, ownerID, "general", "")
	require.NoError(t, err)
	return room
}

func (f *fixture) join(t *testing.T, roomID uint, userIDs ...string) {
	t.Helper()
	for _, id := range userIDs {
		_, err := f.svc.Join(f.ctx, roomID, id)
		require.NoError(t, err)
	}
}

func (f *fixture) send(t *testing.T, roomID uint, userID, content string, replyTo *uint) *Message {
	t.Helper()
	msg, err := f.svc.Send(f.ctx, roomID, userID, content, replyTo)
	require.NoError(t, err)
	return msg
}

// grant creates a role with the given grants in roomID and assigns it to userID.
func (f *fixture) grant(t *testing.T, roomID uint, ownerID, userID string, grants CapabilitySet) *Role {
	t.Helper()
	role, err := f.svc.CreateRole(f.ctx, roomID, ownerID, "role", grants)
	require.NoError(t, err)
	require.NoError(t, f.svc.AssignRole(f.ctx, roomID, role.ID, userID, ownerID))
	return role
}

func (f *fixture) count(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func idPtr(id uint) *uint {
	return &id
}
