package handlers

import (
	"context"
	"net/http"
)

type ReactionRequest struct {
	MessageID uint   `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type ReactionSummaryResponse struct {
	MessageID uint             `json:"message_id"`
	Counts    map[string]int64 `json:"counts"`
}

// requireMessageReader is requireReader for the room messageID belongs to.
func requireMessageReader(ctx context.Context, messageID uint, userID string) error {
	msg, err := Rooms.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	return requireReader(ctx, msg.RoomID, userID)
}

func GetReactionsHandler(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	messageID, ok := queryID(w, r, "message_id")
	if !ok {
		return
	}

	if err := requireMessageReader(r.Context(), messageID, currentUserID(r)); err != nil {
		writeError(w, err)
		return
	}
	reactions, err := Rooms.ListReactions(r.Context(), messageID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reactions)
}

// GetReactionSummaryHandler returns per-emoji counts for a message.
func GetReactionSummaryHandler(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	messageID, ok := queryID(w, r, "message_id")
	if !ok {
		return
	}

	if err := requireMessageReader(r.Context(), messageID, currentUserID(r)); err != nil {
		writeError(w, err)
		return
	}
	counts, err := Rooms.ReactionSummary(r.Context(), messageID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReactionSummaryResponse{MessageID: messageID, Counts: counts})
}

func AddReactionHandler(w http.ResponseWriter, r *http.Request) {
	var req ReactionRequest
	if !decodePost(w, r, &req) {
		return
	}

	reaction, err := Rooms.AddReaction(r.Context(), req.MessageID, currentUserID(r), req.Emoji)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reaction)
}

func RemoveReactionHandler(w http.ResponseWriter, r *http.Request) {
	var req ReactionRequest
	if !decodePost(w, r, &req) {
		return
	}

	if err := Rooms.RemoveReaction(r.Context(), req.MessageID, currentUserID(r), req.Emoji); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}
