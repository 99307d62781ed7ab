package handlers

import (
	"context"
	"fmt"
	"net/http"

	"chatroom-server/internal/chatroom"
	"chatroom-server/internal/metrics"
)

type SendMessageRequest struct {
	RoomID           uint   `json:"room_id"`
	Content          string `json:"content"`
	ReplyToMessageID *uint  `json:"reply_to_message_id,omitempty"`
}

type EditMessageRequest struct {
	MessageID uint   `json:"message_id"`
	Content   string `json:"content"`
}

type MessageRequest struct {
	MessageID uint `json:"message_id"`
}

// requireReader reports whether the caller may read roomID's history.
func requireReader(ctx context.Context, roomID uint, userID string) error {
	member, err := Rooms.IsMember(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !member {
		return fmt.Errorf("%w: room %d", chatroom.ErrNotMember, roomID)
	}
	return nil
}

// GetMessagesHandler returns a page of a room's messages, newest first.
func GetMessagesHandler(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	roomID, ok := queryID(w, r, "room_id")
	if !ok {
		return
	}
	skip, take, ok := queryPage(w, r)
	if !ok {
		return
	}

	if err := requireReader(r.Context(), roomID, currentUserID(r)); err != nil {
		writeError(w, err)
		return
	}
	msgs, err := Rooms.GetRoomMessages(r.Context(), roomID, skip, take)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func GetMessageHandler(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	messageID, ok := queryID(w, r, "id")
	if !ok {
		return
	}

	msg, err := Rooms.GetByID(r.Context(), messageID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := requireReader(r.Context(), msg.RoomID, currentUserID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// GetRepliesHandler returns the direct replies to a message, oldest first.
func GetRepliesHandler(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	messageID, ok := queryID(w, r, "id")
	if !ok {
		return
	}

	parent, err := Rooms.GetByID(r.Context(), messageID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := requireReader(r.Context(), parent.RoomID, currentUserID(r)); err != nil {
		writeError(w, err)
		return
	}
	replies, err := Rooms.GetReplies(r.Context(), messageID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, replies)
}

func SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !decodePost(w, r, &req) {
		return
	}

	msg, err := Rooms.Send(r.Context(), req.RoomID, currentUserID(r), req.Content, req.ReplyToMessageID)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.MessagesSent.Inc()
	writeJSON(w, http.StatusCreated, msg)
}

func EditMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req EditMessageRequest
	if !decodePost(w, r, &req) {
		return
	}

	msg, err := Rooms.Edit(r.Context(), req.MessageID, currentUserID(r), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func DeleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if !decodePost(w, r, &req) {
		return
	}

	if err := Rooms.Delete(r.Context(), req.MessageID, currentUserID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}
