// Package metrics holds the prometheus collectors of the receipt services.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"arcreceipts/internal/cache"
	"arcreceipts/internal/chain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "arcreceipts"

type Metrics struct {
	registry *prometheus.Registry

	chainReads        *prometheus.CounterVec
	chainReadDuration *prometheus.HistogramVec
	scans             *prometheus.CounterVec
	scanMatches       prometheus.Histogram
	payments          *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	published         prometheus.Counter
	watcherCursor     prometheus.Gauge
	sheetRows         *prometheus.CounterVec
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		chainReads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_reads_total",
			Help:      "Contract view calls by method and outcome.",
		}, []string{"method", "outcome"}),
		chainReadDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chain_read_duration_seconds",
			Help:      "Latency of contract view calls.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 5},
		}, []string{"method"}),
		scans: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Receipt scans by mode and outcome.",
		}, []string{"mode", "outcome"}),
		scanMatches: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_matches",
			Help:      "Receipts matched per successful scan.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50},
		}),
		payments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Payment attempts by mode and outcome.",
		}, []string{"mode", "outcome"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		published: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watcher_published_total",
			Help:      "ReceiptCreated events published by the head watcher.",
		}),
		watcherCursor: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watcher_cursor",
			Help:      "Next receipt id the head watcher will publish.",
		}),
		sheetRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sheet_rows_total",
			Help:      "Ledger rows handled by the sheet exporter.",
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Outcome buckets an error for a label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, chain.ErrContractRevert), errors.Is(err, chain.ErrTransactionReverted):
		return "reverted"
	case errors.Is(err, chain.ErrTransactionDropped):
		return "dropped"
	case errors.Is(err, chain.ErrMalformedReceipt), errors.Is(err, chain.ErrNotFound):
		return "malformed"
	case errors.Is(err, chain.ErrConnection):
		return "connection"
	default:
		return "error"
	}
}

// RegisterCache exposes hit and miss counts of a cache that keeps them.
func (m *Metrics) RegisterCache(name string, c any) {
	if m == nil {
		return
	}
	sr, ok := c.(cache.StatsReporter)
	if !ok {
		return
	}
	labels := prometheus.Labels{"cache": name}
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "cache_hits_total",
			Help:        "Cache lookups that found a value.",
			ConstLabels: labels,
		}, func() float64 { return float64(sr.Stats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "cache_misses_total",
			Help:        "Cache lookups that found nothing.",
			ConstLabels: labels,
		}, func() float64 { return float64(sr.Stats().Misses) }),
	)
}

func (m *Metrics) ObserveRead(method string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.chainReads.WithLabelValues(method, Outcome(err)).Inc()
	m.chainReadDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) ObserveScan(mode string, matches int, err error) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(mode, Outcome(err)).Inc()
	if err == nil {
		m.scanMatches.Observe(float64(matches))
	}
}

// ObservePayment satisfies payment.Observer.
func (m *Metrics) ObservePayment(mode string, err error) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(mode, Outcome(err)).Inc()
}

func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) ObservePublished(cursor uint64) {
	if m == nil {
		return
	}
	m.published.Inc()
	m.watcherCursor.Set(float64(cursor))
}

func (m *Metrics) SetCursor(cursor uint64) {
	if m == nil {
		return
	}
	m.watcherCursor.Set(float64(cursor))
}

func (m *Metrics) ObserveSheetRow(outcome string) {
	if m == nil {
		return
	}
	m.sheetRows.WithLabelValues(outcome).Inc()
}

// Reader wraps a chain.Reader and records every call.
type Reader struct {
	next chain.Reader
	m    *Metrics
}

// InstrumentReader returns r unchanged when m is nil.
func InstrumentReader(r chain.Reader, m *Metrics) chain.Reader {
	if m == nil {
		return r
	}
	return &Reader{next: r, m: m}
}

func (r *Reader) Read(ctx context.Context, contract common.Address, method string, args ...any) (chain.Value, error) {
	start := time.Now()
	v, err := r.next.Read(ctx, contract, method, args...)
	r.m.ObserveRead(method, time.Since(start), err)
	return v, err
}
