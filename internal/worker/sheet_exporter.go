package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"arcreceipts/internal/amqp"
	"arcreceipts/internal/chain"
	"arcreceipts/internal/metrics"
	"arcreceipts/internal/sheets"

	"github.com/ethereum/go-ethereum/common"
)

// SheetExporter appends receipts from ReceiptCreated events to the sheet
// ledger, once per id.
type SheetExporter struct {
	ledger  sheets.Ledger
	source  chain.Source
	metrics *metrics.Metrics

	mu       sync.Mutex
	exported map[uint64]struct{}
}

func NewSheetExporter(ledger sheets.Ledger, source chain.Source, m *metrics.Metrics) *SheetExporter {
	return &SheetExporter{ledger: ledger, source: source, metrics: m}
}

func (e *SheetExporter) load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.exported != nil {
		return nil
	}
	ids, err := e.ledger.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("list exported ids: %w", err)
	}
	e.exported = make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		e.exported[id] = struct{}{}
	}
	return nil
}

func (e *SheetExporter) seen(id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.exported[id]
	return ok
}

func (e *SheetExporter) mark(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exported[id] = struct{}{}
}

// HandleReceiptCreated processes one event. Redelivered ids are acknowledged
// without a second row. Events without a receipt are refetched from source.
func (e *SheetExporter) HandleReceiptCreated(ctx context.Context, msg *amqp.ReceiptCreatedMessage) error {
	if err := e.load(ctx); err != nil {
		return err
	}
	if e.seen(msg.ReceiptID) {
		slog.DebugContext(ctx, "Receipt already exported", "component", "worker", "receipt_id", msg.ReceiptID)
		e.metrics.ObserveSheetRow("duplicate")
		return nil
	}

	r := msg.Receipt
	if r == nil {
		if e.source == nil {
			return fmt.Errorf("receipt %d: event carries no receipt and no source is configured", msg.ReceiptID)
		}
		fetched, err := e.source.Receipt(ctx, msg.ReceiptID)
		if err != nil {
			e.metrics.ObserveSheetRow("error")
			return fmt.Errorf("fetch receipt %d: %w", msg.ReceiptID, err)
		}
		r = &fetched
	}

	ref, err := e.ledger.Append(ctx, *r)
	if err != nil {
		e.metrics.ObserveSheetRow("error")
		return fmt.Errorf("append receipt %d: %w", r.ID, err)
	}
	e.mark(r.ID)
	e.metrics.ObserveSheetRow("appended")

	slog.InfoContext(ctx, "Receipt exported to sheet",
		"component", "worker",
		"receipt_id", r.ID,
		"sheets_ref", ref)
	return nil
}

// Backfill appends receipts between the highest exported id and the chain
// head, at most limit of them. It recovers events lost while the consumer
// was down.
func (e *SheetExporter) Backfill(ctx context.Context, reader chain.Reader, contract common.Address, limit int) (int, error) {
	if e.source == nil {
		return 0, fmt.Errorf("backfill needs a receipt source")
	}
	if err := e.load(ctx); err != nil {
		return 0, err
	}
	next, err := chain.NextReceiptID(ctx, reader, contract)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	var highest uint64
	for id := range e.exported {
		highest = max(highest, id)
	}
	e.mu.Unlock()

	start := highest + 1
	if limit > 0 && next > uint64(limit) && next-uint64(limit) > start {
		start = next - uint64(limit)
	}

	var missing []uint64
	for id := start; id < next; id++ {
		if !e.seen(id) {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		slog.InfoContext(ctx, "No receipts to backfill", "component", "worker")
		return 0, nil
	}
	slices.Sort(missing)

	done := 0
	for _, id := range missing {
		err := e.HandleReceiptCreated(ctx, &amqp.ReceiptCreatedMessage{ReceiptID: id})
		if errors.Is(err, chain.ErrMalformedReceipt) || errors.Is(err, chain.ErrNotFound) {
			slog.WarnContext(ctx, "Skipping unreadable receipt", "component", "worker", "receipt_id", id, "error", err)
			continue
		}
		if err != nil {
			slog.ErrorContext(ctx, "Backfill stopped", "component", "worker", "receipt_id", id, "error", err)
			return done, err
		}
		done++
	}
	slog.InfoContext(ctx, "Backfill completed", "component", "worker", "count", done)
	return done, nil
}
