package handlers

import (
	"net/http"

	"chatroom-server/internal/middleware"
)

type RegisterRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

type BlockRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

// RegisterUserHandler creates a user. The returned id is the bearer token.
func RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodePost(w, r, &req) {
		return
	}

	u, err := Users.Register(r.Context(), req.Username, req.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// GetUserHandler returns the user named by ?id or ?username, or the caller.
func GetUserHandler(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	if username := r.URL.Query().Get("username"); username != "" {
		u, err := Users.GetByUsername(r.Context(), username)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSON(w, http.StatusOK, middleware.CurrentUser(r.Context()))
		return
	}

	u, err := Users.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// DeleteAccountHandler removes the caller and everything they left behind in rooms.
func DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := Rooms.DeleteAccount(r.Context(), currentUserID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func BlockUserHandler(w http.ResponseWriter, r *http.Request) {
	var req BlockRequest
	if !decodePost(w, r, &req) {
		return
	}

	b, err := Users.Block(r.Context(), currentUserID(r), req.UserID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func UnblockUserHandler(w http.ResponseWriter, r *http.Request) {
	var req BlockRequest
	if !decodePost(w, r, &req) {
		return
	}

	if err := Users.Unblock(r.Context(), currentUserID(r), req.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func GetBlockedUsersHandler(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	blocks, err := Users.ListBlocked(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}

// GetBlockingUsersHandler lists the blocks other users hold against the caller.
func GetBlockingUsersHandler(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	blocks, err := Users.ListBlocking(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}
