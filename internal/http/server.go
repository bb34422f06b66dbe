package http

import (
	"context"
	"net/http"
	"time"

	applog "arcreceipts/internal/log"
	"arcreceipts/internal/metrics"
	"arcreceipts/internal/middleware/ratelimit"
	"arcreceipts/internal/middleware/security"
	"arcreceipts/internal/middleware/trace"
	"arcreceipts/internal/services"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Options configures the API server.
type Options struct {
	Addr     string
	Receipts *services.ReceiptService
	// Ready reports whether the chain backend answers; nil means always ready.
	Ready              func(context.Context) error
	Metrics            *metrics.Metrics
	AllowedOrigins     []string
	RateLimitPerMinute int
	// ScanTimeout bounds every chain-backed request. Zero means 30s.
	ScanTimeout time.Duration
	// Logger is attached to every request context; nil uses slog's default.
	Logger *applog.Logger
}

// Headers describing the scan window on CSV and empty analytics responses.
const (
	HeaderScanTruncated = "X-Scan-Truncated"
	HeaderOldestScanned = "X-Oldest-Scanned"
)

// Server serves the receipts JSON API.
type Server struct {
	http.Server
	receipts    *services.ReceiptService
	ready       func(context.Context) error
	metrics     *metrics.Metrics
	limiter     *ratelimit.Limiter
	scanTimeout time.Duration
	now         func() time.Time
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options) *Server {
	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		receipts:    opts.Receipts,
		ready:       opts.Ready,
		metrics:     opts.Metrics,
		limiter:     ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		scanTimeout: opts.ScanTimeout,
		now:         time.Now,
	}
	if s.scanTimeout <= 0 {
		s.scanTimeout = 30 * time.Second
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(trace.NewMiddleware(extractClientIP, s.observe).Middleware)
	if opts.Logger != nil {
		r.Use(applog.Middleware(opts.Logger.WithComponent(applog.ComponentHTTP)))
	}
	r.Use(applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	}))
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", trace.HeaderRequestID},
		ExposedHeaders: []string{trace.HeaderRequestID, "Content-Disposition", HeaderScanTruncated, HeaderOldestScanned},
		MaxAge:         300,
	}))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("Not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, StateInvalidRequest, "Method not allowed").
			Header("Allow", "GET").Write(w)
	})

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.Middleware(extractClientIP, func(w http.ResponseWriter, r *http.Request) {
			ErrorResponse(http.StatusTooManyRequests, StateRateLimited, "Rate limit exceeded. Please try again later.").Write(w)
		}))
		r.Route("/wallets/{address}", func(r chi.Router) {
			r.Get("/latest", s.handleLatest)
			r.Get("/history", s.handleHistory)
			r.Get("/analytics", s.handleAnalytics)
			r.Get("/export.csv", s.handleExport)
		})
		r.With(security.NoStore).Get("/receipts/{id}", s.handleReceipt)
	})

	s.Handler = r
	return s
}

// observe records request metrics under the matched route pattern, which
// keeps label cardinality independent of wallet addresses.
func (s *Server) observe(r *http.Request, status int, d time.Duration) {
	route := "unmatched"
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		route = rc.RoutePattern()
	}
	s.metrics.ObserveHTTP(route, r.Method, status, d)
}
