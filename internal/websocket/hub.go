package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"chatroom-server/internal/chatroom"
	"chatroom-server/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrNotMember         = errors.New("not a member of this chatroom")
	ErrNotSubscribed     = errors.New("not subscribed to this chatroom")
)

// MembershipChecker answers whether a user currently belongs to a room.
type MembershipChecker interface {
	IsMember(ctx context.Context, roomID uint, userID string) (bool, error)
}

type Options struct {
	SendBuffer     int
	BroadcastQueue int
}

type delivery struct {
	event chatroom.Event
	// excludeUser suppresses delivery to the sender's own connections.
	excludeUser string
	payload     []byte
}

// subscribeAttempts bounds how often Subscribe re-checks membership when a
// revocation lands while the store is being asked.
const subscribeAttempts = 3

// Hub tracks connections and their room subscriptions and fans room events
// out to subscribers. Publish never blocks: events go through a bounded queue
// and are dropped when it is full, and a client whose send buffer is full is
// disconnected. Events that revoke membership are never dropped.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[uint]map[string]*Client
	// revocations counts applied leave/ban/delete events per room.
	revocations map[uint]uint64

	members    MembershipChecker
	sendBuffer int

	broadcastQueue chan delivery
}

var GlobalHub *Hub

func NewHub(members MembershipChecker, opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	if opts.BroadcastQueue <= 0 {
		opts.BroadcastQueue = 512
	}
	return &Hub{
		clients:        make(map[string]*Client),
		rooms:          make(map[uint]map[string]*Client),
		revocations:    make(map[uint]uint64),
		members:        members,
		sendBuffer:     opts.SendBuffer,
		broadcastQueue: make(chan delivery, opts.BroadcastQueue),
	}
}

// Run delivers queued events until ctx is cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case d := <-h.broadcastQueue:
			h.deliver(d)
		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// Register adds a connection for userID. Conn may be nil for in-process clients.
func (h *Hub) Register(userID string, conn *websocket.Conn) *Client {
	c := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Send:   make(chan []byte, h.sendBuffer),
		conn:   conn,
		hub:    h,
		rooms:  make(map[uint]struct{}),
	}

	h.mu.Lock()
	h.clients[c.ID] = c
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketConnections.Set(float64(count))
	log.Info().Str("user_id", userID).Str("connection_id", c.ID).Msg("websocket connected")
	return c
}

// Unregister removes the connection and all of its subscriptions. It is safe
// to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	for roomID := range c.rooms {
		h.removeSubscriptionLocked(roomID, c)
	}
	close(c.Send)
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketConnections.Set(float64(count))
	log.Info().Str("user_id", c.UserID).Str("connection_id", c.ID).Msg("websocket disconnected")
}

// Subscribe attaches connectionID to roomID after checking membership in the
// store. A revocation applied to the room while the store was being asked
// invalidates the answer, and the check is repeated.
func (h *Hub) Subscribe(ctx context.Context, connectionID string, roomID uint) error {
	for attempt := 0; attempt < subscribeAttempts; attempt++ {
		h.mu.RLock()
		c, ok := h.clients[connectionID]
		epoch := h.revocations[roomID]
		h.mu.RUnlock()
		if !ok {
			return ErrUnknownConnection
		}

		member, err := h.members.IsMember(ctx, roomID, c.UserID)
		if err != nil {
			return err
		}
		if !member {
			return fmt.Errorf("%w: chatroom %d", ErrNotMember, roomID)
		}

		h.mu.Lock()
		if h.revocations[roomID] != epoch {
			h.mu.Unlock()
			continue
		}
		err = h.subscribeLocked(connectionID, c, roomID)
		h.mu.Unlock()
		return err
	}
	return fmt.Errorf("%w: chatroom %d membership kept changing", ErrNotMember, roomID)
}

func (h *Hub) subscribeLocked(connectionID string, c *Client, roomID uint) error {
	if _, ok := h.clients[connectionID]; !ok {
		return ErrUnknownConnection
	}
	subs, ok := h.rooms[roomID]
	if !ok {
		subs = make(map[string]*Client)
		h.rooms[roomID] = subs
	}
	subs[c.ID] = c
	c.rooms[roomID] = struct{}{}

	log.Debug().Uint("room_id", roomID).Str("user_id", c.UserID).Str("connection_id", c.ID).Msg("subscribed")
	return nil
}

func (h *Hub) Unsubscribe(connectionID string, roomID uint) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connectionID]
	if !ok {
		return ErrUnknownConnection
	}
	if _, ok := c.rooms[roomID]; !ok {
		return ErrNotSubscribed
	}
	h.removeSubscriptionLocked(roomID, c)
	return nil
}

// IsSubscribed reports whether connectionID currently receives roomID's events.
func (h *Hub) IsSubscribed(connectionID string, roomID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[roomID][connectionID]
	return ok
}

func (h *Hub) ConnectedClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues ev for every subscriber of roomID. It implements chatroom.Publisher.
func (h *Hub) Publish(roomID uint, ev chatroom.Event) {
	ev.RoomID = roomID
	h.enqueue(ev, "")
}

// Typing broadcasts a typing indicator from a subscribed connection to the
// room's other users.
func (h *Hub) Typing(connectionID string, roomID uint) error {
	h.mu.RLock()
	c, ok := h.clients[connectionID]
	subscribed := ok && h.rooms[roomID][connectionID] != nil
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownConnection
	}
	if !subscribed {
		return ErrNotSubscribed
	}

	h.enqueue(chatroom.Event{
		Type:   chatroom.EventTypingIndicator,
		RoomID: roomID,
		UserID: c.UserID,
		Data:   chatroom.TypingPayload{UserID: c.UserID},
	}, c.UserID)
	return nil
}

func (h *Hub) enqueue(ev chatroom.Event, excludeUser string) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event", string(ev.Type)).Msg("marshaling event")
		return
	}

	d := delivery{event: ev, excludeUser: excludeUser, payload: payload}
	select {
	case h.broadcastQueue <- d:
		metrics.RecordEventPublished(string(ev.Type))
	default:
		if ev.Type.RevokesMembership() {
			// deliver never blocks, so the caller can afford to run it.
			metrics.RecordEventPublished(string(ev.Type))
			log.Warn().Str("event", string(ev.Type)).Uint("room_id", ev.RoomID).Msg("broadcast queue full, delivering revocation inline")
			h.deliver(d)
			return
		}
		metrics.RecordEventDropped("queue_full")
		log.Warn().Str("event", string(ev.Type)).Uint("room_id", ev.RoomID).Msg("broadcast queue full, dropping event")
	}
}

func (h *Hub) deliver(d delivery) {
	var slow []*Client

	h.mu.RLock()
	for _, c := range h.rooms[d.event.RoomID] {
		if d.excludeUser != "" && c.UserID == d.excludeUser {
			continue
		}
		select {
		case c.Send <- d.payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		metrics.RecordEventDropped("client_slow")
		log.Warn().Str("user_id", c.UserID).Str("connection_id", c.ID).Msg("send buffer full, disconnecting")
		h.Unregister(c)
	}

	h.applyMembershipChange(d.event)
}

// applyMembershipChange drops subscriptions that the event has made stale.
func (h *Hub) applyMembershipChange(ev chatroom.Event) {
	switch ev.Type {
	case chatroom.EventMemberLeft, chatroom.EventMemberBanned:
		if ev.UserID == "" {
			return
		}
		h.mu.Lock()
		h.revocations[ev.RoomID]++
		for _, c := range h.rooms[ev.RoomID] {
			if c.UserID == ev.UserID {
				h.removeSubscriptionLocked(ev.RoomID, c)
			}
		}
		h.mu.Unlock()
	case chatroom.EventRoomDeleted:
		h.mu.Lock()
		h.revocations[ev.RoomID]++
		for _, c := range h.rooms[ev.RoomID] {
			h.removeSubscriptionLocked(ev.RoomID, c)
		}
		h.mu.Unlock()
	}
}

func (h *Hub) removeSubscriptionLocked(roomID uint, c *Client) {
	delete(c.rooms, roomID)
	if subs, ok := h.rooms[roomID]; ok {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
	}
}
