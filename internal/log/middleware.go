package log

import (
	"context"
	"log/slog"
	"net/http"
)

type ctxKey struct{}

// NewContext returns a copy of ctx carrying l.
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the request logger, or one over slog's default with
// component "unknown" when none was attached.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return scoped(slog.Default(), "unknown")
}

// Middleware attaches logger to each request context.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), logger)))
		})
	}
}

// RequestIDMiddleware tags the request logger with the id returned by
// requestID. Requests without an id keep their logger unchanged.
func RequestIDMiddleware(requestID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := requestID(r); id != "" {
				ctx := r.Context()
				r = r.WithContext(NewContext(ctx, FromContext(ctx).With(FieldRequestID, id)))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LogError writes err at error level through the request logger.
func LogError(ctx context.Context, msg string, err error, component, operation string, fields LogFields) {
	args := fields.WithError(err).WithOperation(operation).ToSlice()
	FromContext(ctx).WithComponent(component).ErrorContext(ctx, msg, args...)
}
