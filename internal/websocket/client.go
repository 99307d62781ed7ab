package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"chatroom-server/internal/metrics"
	"chatroom-server/internal/middleware"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	frameTimeout   = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one websocket connection. rooms is guarded by the hub's lock.
type Client struct {
	ID     string
	UserID string
	Send   chan []byte

	conn  *websocket.Conn
	hub   *Hub
	rooms map[uint]struct{}
}

// Client frame types.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameTyping      = "typing"
)

type clientFrame struct {
	Type   string `json:"type"`
	RoomID uint   `json:"room_id"`
}

type replyFrame struct {
	Type   string `json:"type"`
	RoomID uint   `json:"room_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// HandleFrame applies one client frame and returns the reply to send back,
// or nil when there is nothing to say.
func (h *Hub) HandleFrame(ctx context.Context, c *Client, raw []byte) []byte {
	var frame clientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return encodeReply(replyFrame{Type: "error", Error: "malformed frame"})
	}
	if frame.RoomID == 0 {
		return encodeReply(replyFrame{Type: "error", Error: "room_id is required"})
	}

	var err error
	switch frame.Type {
	case FrameSubscribe:
		if err = h.Subscribe(ctx, c.ID, frame.RoomID); err == nil {
			return encodeReply(replyFrame{Type: "subscribed", RoomID: frame.RoomID})
		}
	case FrameUnsubscribe:
		if err = h.Unsubscribe(c.ID, frame.RoomID); err == nil {
			return encodeReply(replyFrame{Type: "unsubscribed", RoomID: frame.RoomID})
		}
	case FrameTyping:
		if err = h.Typing(c.ID, frame.RoomID); err == nil {
			return nil
		}
	default:
		return encodeReply(replyFrame{Type: "error", RoomID: frame.RoomID, Error: "unknown frame type " + frame.Type})
	}

	log.Debug().Err(err).Str("frame", frame.Type).Uint("room_id", frame.RoomID).Str("user_id", c.UserID).Msg("frame rejected")
	return encodeReply(replyFrame{Type: "error", RoomID: frame.RoomID, Error: err.Error()})
}

func encodeReply(f replyFrame) []byte {
	b, _ := json.Marshal(f)
	return b
}

// reply queues b without blocking; replies are dropped for a backed-up client.
func (c *Client) reply(b []byte) {
	if b == nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c.ID]; !ok {
		return
	}
	select {
	case c.Send <- b:
	default:
		metrics.RecordEventDropped("reply_dropped")
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("user_id", c.UserID).Msg("websocket read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
		c.reply(c.hub.HandleFrame(ctx, c, message))
		cancel()
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn().Err(err).Str("user_id", c.UserID).Msg("websocket write failed")
				return
			}
			metrics.RecordWebSocketWrite(len(message))

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades an authenticated request and starts the connection pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("websocket upgrade failed")
		return
	}

	c := h.Register(userID, conn)
	go c.writePump()
	go c.readPump()
}
