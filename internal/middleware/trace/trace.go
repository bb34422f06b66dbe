// Package trace tags each request with a ULID and logs its start and end.
package trace

import (
	"context"
	"crypto/rand"
	"log/slog"
	"net/http"
	"sync"
	"time"

	applog "arcreceipts/internal/log"

	"github.com/oklog/ulid/v2"
)

// HeaderRequestID carries the request id back to the client.
const HeaderRequestID = "X-Request-ID"

type requestIDKey struct{}

// Observer receives the outcome of every request.
type Observer func(r *http.Request, status int, d time.Duration)

type Middleware struct {
	clientIP func(*http.Request) string
	observe  Observer
}

// NewMiddleware returns a tracer. clientIP and observe may be nil.
func NewMiddleware(clientIP func(*http.Request) string, observe Observer) *Middleware {
	return &Middleware{clientIP: clientIP, observe: observe}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := GenerateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		r = r.WithContext(ctx)
		w.Header().Set(HeaderRequestID, id)

		attrs := []any{
			applog.FieldComponent, applog.ComponentTrace,
			applog.FieldRequestID, id,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
		}
		if m.clientIP != nil {
			attrs = append(attrs, applog.FieldClientIP, m.clientIP(r))
		}
		slog.DebugContext(ctx, "HTTP request started", append(attrs, "query", r.URL.RawQuery)...)

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		d := time.Since(start)
		status := rec.status()
		if m.observe != nil {
			m.observe(r, status, d)
		}
		slog.Log(ctx, levelFor(status), "HTTP request completed",
			append(attrs, applog.FieldStatusCode, status, applog.FieldDuration, d.Milliseconds())...)
	})
}

func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// statusRecorder remembers the first status written. A handler that only
// calls Write has implicitly sent 200.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.code == 0 {
		s.code = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.code == 0 {
		s.code = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) status() int {
	if s.code == 0 {
		return http.StatusOK
	}
	return s.code
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// GenerateRequestID returns a ULID; ids from one process sort in issue order.
func GenerateRequestID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy).String()
}

// GetRequestID returns the id assigned by the middleware, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
