package middleware

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"chatroom-server/internal/metrics"
	"chatroom-server/internal/user"

	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	userKey   contextKey = "user"
	userIDKey contextKey = "user_id"
)

// UserLookup resolves an authenticated caller to an active user.
type UserLookup interface {
	GetActive(ctx context.Context, id string) (*user.User, error)
}

// Users is consulted by RequireAuth. It is set once at startup.
var Users UserLookup

type ResponseWriter struct {
	http.ResponseWriter
	bytesWritten int64
	statusCode   int
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	atomic.AddInt64(&rw.bytesWritten, int64(n))
	return n, err
}

func (rw *ResponseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *ResponseWriter) BytesWritten() int64 {
	return atomic.LoadInt64(&rw.bytesWritten)
}

func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack is needed by the websocket upgrader.
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// TrackOutboundData logs each request and feeds the HTTP counters. route is
// the registered pattern, used as the metric label instead of the raw path.
func TrackOutboundData(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rw := &ResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, r)
		duration := time.Since(start)

		bytesWritten := rw.BytesWritten()
		metrics.RecordHTTP(bytesWritten)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Int64("bytes", bytesWritten).
			Dur("duration", duration).
			Str("client", GetClientInfo(r)).
			Msg("http request")
	}
}

func GetClientInfo(r *http.Request) string {
	platform := r.Header.Get("X-Client-Platform")
	version := r.Header.Get("X-Client-Version")

	var parts []string
	if platform != "" {
		parts = append(parts, platform)
	}
	if version != "" {
		parts = append(parts, version)
	}
	return strings.Join(parts, "/")
}

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Client-Version, X-Client-Platform")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func GetClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		return strings.TrimSpace(ips[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	ip := r.RemoteAddr
	if colonPos := strings.LastIndex(ip, ":"); colonPos != -1 {
		ip = ip[:colonPos]
	}
	return ip
}

// RequireAuth resolves the bearer user id to an active user and stores it in
// the request context.
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := bearerUserID(r)
		if userID == "" {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		u, err := Users.GetActive(r.Context(), userID)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				http.Error(w, "User not found", http.StatusUnauthorized)
				return
			}
			log.Error().Err(err).Str("user_id", userID).Msg("resolving user")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, u)
		ctx = context.WithValue(ctx, userIDKey, u.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// UserID returns the authenticated user id, or "" outside RequireAuth.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

func CurrentUser(ctx context.Context) *user.User {
	u, _ := ctx.Value(userKey).(*user.User)
	return u
}

// WithUser is the context RequireAuth would produce. Used by tests.
func WithUser(ctx context.Context, u *user.User) context.Context {
	ctx = context.WithValue(ctx, userKey, u)
	return context.WithValue(ctx, userIDKey, u.ID)
}

func bearerUserID(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	// Browsers cannot set headers on websocket upgrades.
	if r.URL.Path == "/ws" {
		return r.URL.Query().Get("user_id")
	}
	return ""
}

func CacheControl(maxAge time.Duration, cacheType string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			switch cacheType {
			case "no-cache":
				w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
				w.Header().Set("Pragma", "no-cache")
				w.Header().Set("Expires", "0")
			case "private":
				w.Header().Set("Cache-Control", "private, max-age="+strconv.Itoa(int(maxAge.Seconds())))
			}
			next(w, r)
		}
	}
}

func NoCache(next http.HandlerFunc) http.HandlerFunc {
	return CacheControl(0, "no-cache")(next)
}
