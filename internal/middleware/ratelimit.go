package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// TokenBucket implements token bucket rate limiting
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	perSecond  float64
	lastRefill time.Time
	lastSeen   time.Time
}

func newTokenBucket(capacity int, perMinute int, now time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		perSecond:  float64(perMinute) / 60,
		lastRefill: now,
		lastSeen:   now,
	}
}

func (tb *TokenBucket) allow(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens += now.Sub(tb.lastRefill).Seconds() * tb.perSecond
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
	tb.lastSeen = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// retryAfter is how long until one token is available.
func (tb *TokenBucket) retryAfter() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.perSecond <= 0 {
		return time.Minute
	}
	missing := 1 - tb.tokens
	return time.Duration(missing / tb.perSecond * float64(time.Second))
}

// RateLimiter keeps one bucket per client address. It throttles the
// credential endpoints only.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*TokenBucket
	capacity  int
	perMinute int
	now       func() time.Time
}

func NewRateLimiter(capacity, perMinute int) *RateLimiter {
	return &RateLimiter{
		buckets:   make(map[string]*TokenBucket),
		capacity:  capacity,
		perMinute: perMinute,
		now:       time.Now,
	}
}

func (rl *RateLimiter) bucket(key string) *TokenBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[key]
	if !ok {
		b = newTokenBucket(rl.capacity, rl.perMinute, rl.now())
		rl.buckets[key] = b
	}
	return b
}

func (rl *RateLimiter) Allow(key string) bool {
	return rl.bucket(key).allow(rl.now())
}

// Sweep drops buckets idle for longer than idle.
func (rl *RateLimiter) Sweep(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	removed := 0
	for key, b := range rl.buckets {
		b.mu.Lock()
		stale := now.Sub(b.lastSeen) > idle
		b.mu.Unlock()
		if stale {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// RunCleanup sweeps every 5 minutes until ctx is done.
func (rl *RateLimiter) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep(10 * time.Minute)
		}
	}
}

// Middleware answers 429 with Retry-After once the client's bucket is empty.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if !rl.Allow(key) {
			wait := rl.bucket(key).retryAfter()
			secs := int(wait.Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			WriteError(w, http.StatusTooManyRequests, "RateLimited", "too many attempts, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
