package relay

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"chatroom-server/internal/chatroom"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	mu     sync.Mutex
	events []chatroom.Event
}

func (c *captured) Publish(roomID uint, ev chatroom.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func TestPublishDeliversLocallyAndQueues(t *testing.T) {
	local := &captured{}
	r := newRelay(nil, "chatroom:events", local, 4)

	r.Publish(7, chatroom.Event{Type: chatroom.EventMessageSent, UserID: "alice"})

	require.Len(t, local.events, 1)
	assert.EqualValues(t, 7, local.events[0].RoomID)

	require.Len(t, r.outbox, 1)
	var env envelope
	require.NoError(t, json.Unmarshal(<-r.outbox, &env))
	assert.Equal(t, r.InstanceID(), env.Origin)
	assert.Equal(t, chatroom.EventMessageSent, env.Event.Type)
	assert.EqualValues(t, 7, env.Event.RoomID)
}

func TestPublishDropsWhenOutboxFull(t *testing.T) {
	local := &captured{}
	r := newRelay(nil, "chatroom:events", local, 1)

	r.Publish(1, chatroom.Event{Type: chatroom.EventMessageSent})
	r.Publish(1, chatroom.Event{Type: chatroom.EventMessageSent})

	assert.Len(t, local.events, 2, "local delivery never depends on redis")
	assert.Len(t, r.outbox, 1)
}

func TestReceiveIgnoresOwnEvents(t *testing.T) {
	local := &captured{}
	r := newRelay(nil, "chatroom:events", local, 1)

	own, err := json.Marshal(envelope{Origin: r.InstanceID(), Event: chatroom.Event{Type: chatroom.EventMessageSent, RoomID: 1}})
	require.NoError(t, err)
	r.receive(own)
	assert.Empty(t, local.events)

	remote, err := json.Marshal(envelope{Origin: "other", Event: chatroom.Event{Type: chatroom.EventMemberLeft, RoomID: 3, UserID: "bob"}})
	require.NoError(t, err)
	r.receive(remote)
	require.Len(t, local.events, 1)
	assert.Equal(t, "bob", local.events[0].UserID)
	assert.EqualValues(t, 3, local.events[0].RoomID)

	r.receive([]byte("garbage"))
	r.receive([]byte(`{"origin":"other","event":{"type":"message_sent"}}`))
	assert.Len(t, local.events, 1)
}

func TestRevocationWaitsForOutboxSpace(t *testing.T) {
	local := &captured{}
	r := newRelay(nil, "chatroom:events", local, 1)

	r.Publish(1, chatroom.Event{Type: chatroom.EventMessageSent})
	r.Publish(1, chatroom.Event{Type: chatroom.EventMemberBanned, UserID: "bob"})
	require.Len(t, r.outbox, 1)

	<-r.outbox
	select {
	case payload := <-r.outbox:
		var env envelope
		require.NoError(t, json.Unmarshal(payload, &env))
		assert.Equal(t, chatroom.EventMemberBanned, env.Event.Type)
	case <-time.After(time.Second):
		t.Fatal("revocation was not forwarded")
	}
}
