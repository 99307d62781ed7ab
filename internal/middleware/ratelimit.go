package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"chatroom-server/internal/metrics"
)

// RateLimiter is a token bucket refilled one token per refillRate.
type RateLimiter struct {
	tokens     int
	capacity   int
	refillRate time.Duration
	lastRefill time.Time
	mutex      sync.Mutex
	now        func() time.Time
}

func NewRateLimiter(capacity int, refillRate time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:     capacity,
		capacity:   capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

func (rl *RateLimiter) Allow() bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	if added := int(now.Sub(rl.lastRefill) / rl.refillRate); added > 0 {
		rl.tokens += added
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
		rl.lastRefill = rl.lastRefill.Add(time.Duration(added) * rl.refillRate)
	}

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

func (rl *RateLimiter) Remaining() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	return rl.tokens
}

// RateLimitStore hands out one limiter per key (user or IP).
type RateLimitStore struct {
	name       string
	limiters   map[string]*RateLimiter
	mutex      sync.RWMutex
	capacity   int
	refillRate time.Duration
	idle       time.Duration
}

func NewRateLimitStore(name string, capacity int, refillRate time.Duration) *RateLimitStore {
	return &RateLimitStore{
		name:       name,
		limiters:   make(map[string]*RateLimiter),
		capacity:   capacity,
		refillRate: refillRate,
		idle:       10 * time.Minute,
	}
}

func (rls *RateLimitStore) GetLimiter(key string) *RateLimiter {
	rls.mutex.RLock()
	limiter, exists := rls.limiters[key]
	rls.mutex.RUnlock()
	if exists {
		return limiter
	}

	rls.mutex.Lock()
	defer rls.mutex.Unlock()
	if limiter, exists := rls.limiters[key]; exists {
		return limiter
	}
	limiter = NewRateLimiter(rls.capacity, rls.refillRate)
	rls.limiters[key] = limiter
	return limiter
}

// Sweep drops limiters that have been idle longer than the store's idle window.
func (rls *RateLimitStore) Sweep(now time.Time) int {
	rls.mutex.Lock()
	defer rls.mutex.Unlock()

	removed := 0
	for key, limiter := range rls.limiters {
		limiter.mutex.Lock()
		stale := now.Sub(limiter.lastRefill) > rls.idle
		limiter.mutex.Unlock()
		if stale {
			delete(rls.limiters, key)
			removed++
		}
	}
	return removed
}

// RunCleanup sweeps every interval until done is closed.
func (rls *RateLimitStore) RunCleanup(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			rls.Sweep(now)
		case <-done:
			return
		}
	}
}

var (
	GlobalRateLimit  = NewRateLimitStore("global", 100, time.Minute/100)
	MessageRateLimit = NewRateLimitStore("message", 10, time.Minute/10)
	// AuthRateLimit is applied per IP before credentials are checked.
	AuthRateLimit = NewRateLimitStore("auth", 300, time.Minute/300)
)

// clientKey buckets authenticated requests by user and everything else by IP.
// Unverified credentials never pick the bucket.
func clientKey(r *http.Request) string {
	if userID := UserID(r.Context()); userID != "" {
		return "user:" + userID
	}
	return "ip:" + GetClientIP(r)
}

func RateLimitFunc(store *RateLimitStore) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			limiter := store.GetLimiter(clientKey(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(store.capacity))
			if !limiter.Allow() {
				metrics.RateLimitHits.WithLabelValues(store.name).Inc()
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", store.refillRate.Seconds()))
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining()))

			next.ServeHTTP(w, r)
		}
	}
}
