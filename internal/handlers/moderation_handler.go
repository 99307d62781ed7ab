package handlers

import (
	"net/http"

	"chatroom-server/internal/metrics"
)

type ModerationRequest struct {
	RoomID uint   `json:"room_id"`
	UserID string `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

func MuteUserHandler(w http.ResponseWriter, r *http.Request) {
	var req ModerationRequest
	if !decodePost(w, r, &req) {
		return
	}

	if err := Rooms.Mute(r.Context(), req.RoomID, req.UserID, currentUserID(r)); err != nil {
		writeError(w, err)
		return
	}
	metrics.ModerationActions.WithLabelValues("mute").Inc()
	writeOK(w)
}

func UnmuteUserHandler(w http.ResponseWriter, r *http.Request) {
	var req ModerationRequest
	if !decodePost(w, r, &req) {
		return
	}

	if err := Rooms.Unmute(r.Context(), req.RoomID, req.UserID, currentUserID(r)); err != nil {
		writeError(w, err)
		return
	}
	metrics.ModerationActions.WithLabelValues("unmute").Inc()
	writeOK(w)
}

// BanUserHandler bans user_id from the room. Bans are permanent until lifted
// with UnbanUserHandler.
func BanUserHandler(w http.ResponseWriter, r *http.Request) {
	var req ModerationRequest
	if !decodePost(w, r, &req) {
		return
	}

	ban, err := Rooms.Ban(r.Context(), req.RoomID, req.UserID, currentUserID(r), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.ModerationActions.WithLabelValues("ban").Inc()
	writeJSON(w, http.StatusCreated, ban)
}

func UnbanUserHandler(w http.ResponseWriter, r *http.Request) {
	var req ModerationRequest
	if !decodePost(w, r, &req) {
		return
	}

	if err := Rooms.Unban(r.Context(), req.RoomID, req.UserID, currentUserID(r)); err != nil {
		writeError(w, err)
		return
	}
	metrics.ModerationActions.WithLabelValues("unban").Inc()
	writeOK(w)
}

func GetBansHandler(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	roomID, ok := queryID(w, r, "room_id")
	if !ok {
		return
	}

	if err := requireReader(r.Context(), roomID, currentUserID(r)); err != nil {
		writeError(w, err)
		return
	}
	bans, err := Rooms.ListBans(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bans)
}
