// Package ratelimit throttles requests per client IP in fixed one-minute windows.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const window = time.Minute

type Config struct {
	RequestsPerMinute int
	// IdleAfter drops a client's window once it has been quiet this long.
	IdleAfter time.Duration
}

func DefaultConfig() Config {
	return Config{RequestsPerMinute: 120, IdleAfter: 10 * time.Minute}
}

// Limiter counts requests per key inside fixed windows. A window opens on
// the first request after the previous one closed, so a steady stream is
// not penalized by requests from an earlier minute. Idle keys are swept
// during Allow; there is no background goroutine.
type Limiter struct {
	limit     int
	idleAfter time.Duration
	now       func() time.Time

	mu        sync.Mutex
	windows   map[string]*bucket
	lastSweep time.Time

	rejected atomic.Int64
}

type bucket struct {
	opened time.Time
	seen   time.Time
	count  int
}

func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = def.RequestsPerMinute
	}
	if config.IdleAfter <= 0 {
		config.IdleAfter = def.IdleAfter
	}
	return &Limiter{
		limit:     config.RequestsPerMinute,
		idleAfter: config.IdleAfter,
		now:       time.Now,
		windows:   make(map[string]*bucket),
	}
}

// Allow records one request for key and reports whether it is within limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idleAfter {
		l.sweep(now)
	}

	b := l.windows[key]
	if b == nil || now.Sub(b.opened) >= window {
		l.windows[key] = &bucket{opened: now, seen: now, count: 1}
		return true
	}
	b.seen = now
	b.count++
	if b.count <= l.limit {
		return true
	}
	l.rejected.Add(1)
	return false
}

func (l *Limiter) sweep(now time.Time) {
	for k, b := range l.windows {
		if now.Sub(b.seen) >= l.idleAfter {
			delete(l.windows, k)
		}
	}
	l.lastSweep = now
}

// ActiveClients is the number of keys with a live window.
func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Hits is the number of rejected requests since start.
func (l *Limiter) Hits() int64 { return l.rejected.Load() }

// Middleware rejects requests over the limit with Retry-After set. onLimit
// writes the rejection body; nil sends a plain 429.
func (l *Limiter) Middleware(key func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	if onLimit == nil {
		onLimit = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}
	}
	retryAfter := strconv.Itoa(int(window.Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.Allow(key(r)) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", retryAfter)
			onLimit(w, r)
		})
	}
}
