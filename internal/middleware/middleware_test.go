package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatroom-server/internal/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers map[string]*user.User

func (f fakeUsers) GetActive(_ context.Context, id string) (*user.User, error) {
	u, ok := f[id]
	if !ok || !u.IsActive {
		return nil, fmt.Errorf("%w: %s", user.ErrNotFound, id)
	}
	return u, nil
}

func TestRequireAuth(t *testing.T) {
	Users = fakeUsers{
		"u1": {ID: "u1", Username: "alice", IsActive: true},
		"u2": {ID: "u2", Username: "bob", IsActive: false},
	}
	t.Cleanup(func() { Users = nil })

	var seen string
	handler := RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
		assert.Equal(t, "alice", CurrentUser(r.Context()).Username)
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"unknown user", "Bearer nobody", http.StatusUnauthorized},
		{"inactive user", "Bearer u2", http.StatusUnauthorized},
		{"active user", "Bearer u1", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/user", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	assert.Equal(t, "u1", seen)
}

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(2, time.Second)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.lastRefill = now
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	now = now.Add(500 * time.Millisecond)
	assert.True(t, rl.Allow())
}

func TestRateLimitFunc(t *testing.T) {
	store := NewRateLimitStore("test", 1, time.Hour)
	handler := RateLimitFunc(store)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	call := func(userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/messages/send", nil)
		req = req.WithContext(WithUser(req.Context(), &user.User{ID: userID}))
		rec := httptest.NewRecorder()
		handler(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, call("a").Code)
	rec := call("a")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusNoContent, call("b").Code, "buckets are per user")
}

func TestRateLimitIgnoresUnverifiedBearer(t *testing.T) {
	store := NewRateLimitStore("test", 2, time.Hour)
	handler := RateLimitFunc(store)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	allowed := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/users/register", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		req.Header.Set("Authorization", fmt.Sprintf("Bearer forged-%d", i))
		rec := httptest.NewRecorder()
		handler(rec, req)
		if rec.Code == http.StatusNoContent {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed, "forged tokens must share the caller's IP bucket")
}

func TestRateLimitStoreSweep(t *testing.T) {
	store := NewRateLimitStore("test", 1, time.Second)
	store.GetLimiter("a")
	require.Equal(t, 0, store.Sweep(time.Now()))
	assert.Equal(t, 1, store.Sweep(time.Now().Add(time.Hour)))
}

func TestCORSPreflight(t *testing.T) {
	called := false
	handler := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodOptions, "/rooms", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called)
}

func TestTrackOutboundData(t *testing.T) {
	handler := TrackOutboundData("/rooms", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("hello"))
	})
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/rooms", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", GetClientIP(req))

	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	assert.Equal(t, "1.2.3.4", GetClientIP(req))
}
