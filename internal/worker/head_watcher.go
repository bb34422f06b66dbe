// Package worker runs the background jobs: the head watcher that turns new
// receipt ids into events, and the sheet exporter that consumes them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"arcreceipts/internal/amqp"
	"arcreceipts/internal/chain"
	"arcreceipts/internal/metrics"

	"github.com/ethereum/go-ethereum/common"
)

// Publisher emits receipt events.
type Publisher interface {
	PublishReceiptCreated(ctx context.Context, msg *amqp.ReceiptCreatedMessage) error
}

// HeadWatcher polls nextReceiptId and publishes one event per new receipt,
// in id order. The cursor is the next id to publish.
type HeadWatcher struct {
	reader    chain.Reader
	source    chain.Source
	contract  common.Address
	publisher Publisher
	interval  time.Duration
	metrics   *metrics.Metrics

	cursor atomic.Uint64
}

// NewHeadWatcher creates a watcher. startID 0 means start at the current
// head, publishing only receipts created after startup.
func NewHeadWatcher(reader chain.Reader, source chain.Source, contract common.Address, publisher Publisher, interval time.Duration, startID uint64, m *metrics.Metrics) *HeadWatcher {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	w := &HeadWatcher{
		reader:    reader,
		source:    source,
		contract:  contract,
		publisher: publisher,
		interval:  interval,
		metrics:   m,
	}
	w.cursor.Store(startID)
	return w
}

// Cursor returns the next id the watcher will publish.
func (w *HeadWatcher) Cursor() uint64 { return w.cursor.Load() }

// Run ticks until ctx ends. Tick failures are logged and retried on the
// next interval.
func (w *HeadWatcher) Run(ctx context.Context) error {
	if w.cursor.Load() == 0 {
		next, err := chain.NextReceiptID(ctx, w.reader, w.contract)
		if err != nil {
			return fmt.Errorf("initialize cursor: %w", err)
		}
		w.cursor.Store(max(next, 1))
	}
	w.metrics.SetCursor(w.cursor.Load())
	slog.InfoContext(ctx, "Head watcher started",
		"component", "worker",
		"cursor", w.cursor.Load(),
		"interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.Tick(ctx); err != nil && ctx.Err() == nil {
			slog.ErrorContext(ctx, "Head watcher tick failed", "component", "worker", "cursor", w.cursor.Load(), "error", err)
		}
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Head watcher stopped", "component", "worker", "cursor", w.cursor.Load())
			return nil
		case <-ticker.C:
		}
	}
}

// Tick publishes every id from the cursor up to the current head.
// Malformed or unassigned ids are skipped. A read or publish failure ends
// the tick without advancing past the failing id.
func (w *HeadWatcher) Tick(ctx context.Context) (int, error) {
	next, err := chain.NextReceiptID(ctx, w.reader, w.contract)
	if err != nil {
		return 0, err
	}
	cursor := max(w.cursor.Load(), 1)

	published := 0
	for id := cursor; id < next; id++ {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		r, err := w.source.Receipt(ctx, id)
		switch {
		case errors.Is(err, chain.ErrMalformedReceipt), errors.Is(err, chain.ErrNotFound):
			slog.WarnContext(ctx, "Skipping unreadable receipt", "component", "worker", "receipt_id", id, "error", err)
			w.cursor.Store(id + 1)
			continue
		case err != nil:
			return published, fmt.Errorf("read receipt %d: %w", id, err)
		}

		if err := w.publisher.PublishReceiptCreated(ctx, amqp.NewReceiptCreatedMessage(r)); err != nil {
			return published, fmt.Errorf("publish receipt %d: %w", id, err)
		}
		w.cursor.Store(id + 1)
		w.metrics.ObservePublished(id + 1)
		published++
	}
	if published > 0 {
		slog.InfoContext(ctx, "Published new receipts", "component", "worker", "count", published, "cursor", w.cursor.Load())
	}
	return published, nil
}
