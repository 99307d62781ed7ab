package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"chatroom-server/internal/chatroom"
	"chatroom-server/internal/metrics"
	"chatroom-server/internal/middleware"
	"chatroom-server/internal/user"

	"github.com/rs/zerolog/log"
)

// Services used by the handlers. Set once at startup.
var (
	Rooms          *chatroom.Service
	Users          *user.Service
	MetricsService *metrics.Service

	DefaultPageSize = 50
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encoding response")
	}
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
		writeJSON(w, status, errorResponse{Error: "Internal server error", Code: code})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

// classify maps a domain error to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, user.ErrNotFound):
		return http.StatusNotFound, "user_not_found"
	case errors.Is(err, user.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, user.ErrUsernameTaken):
		return http.StatusConflict, "username_taken"
	case errors.Is(err, user.ErrAlreadyBlocked):
		return http.StatusConflict, "already_blocked"
	case errors.Is(err, user.ErrNotBlocked):
		return http.StatusConflict, "not_blocked"
	}

	code := chatroom.Code(err)
	switch code {
	case "":
		return http.StatusInternalServerError, "internal"
	case "invalid_argument":
		return http.StatusBadRequest, code
	case "not_found":
		return http.StatusNotFound, code
	case "no_permission", "not_member", "banned", "muted", "not_author":
		return http.StatusForbidden, code
	default:
		return http.StatusConflict, code
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Code: "invalid_argument"})
}

// decodePost enforces POST and decodes the JSON body into v.
func decodePost(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "Invalid request body")
		return false
	}
	return true
}

func requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// queryID parses a required positive id parameter.
func queryID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		badRequest(w, name+" is required")
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		badRequest(w, "Invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// queryPage reads skip/take, defaulting take to DefaultPageSize.
func queryPage(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	skip, take := 0, DefaultPageSize
	q := r.URL.Query()
	if raw := q.Get("skip"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(w, "Invalid skip")
			return 0, 0, false
		}
		skip = n
	}
	if raw := q.Get("take"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(w, "Invalid take")
			return 0, 0, false
		}
		take = n
	}
	return skip, take, true
}

func currentUserID(r *http.Request) string {
	return middleware.UserID(r.Context())
}
