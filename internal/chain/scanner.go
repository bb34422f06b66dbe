package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"arcreceipts/internal/core"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultLookback is the number of ids a scan walks back from the newest.
const DefaultLookback = 50

// Mode selects how a scan stops.
type Mode int

const (
	// FirstMatch stops at the newest receipt involving the subject.
	FirstMatch Mode = iota
	// CollectAll gathers every match inside the lookback window.
	CollectAll
)

func (m Mode) String() string {
	if m == FirstMatch {
		return "first_match"
	}
	return "collect_all"
}

// Source yields one normalized receipt per id.
type Source interface {
	Receipt(ctx context.Context, id uint64) (core.Receipt, error)
}

// ContractSource reads receipts straight from the receipts contract.
type ContractSource struct {
	Reader   Reader
	Contract common.Address
}

// Receipt reads and normalizes one id. A zeroed record, which the contract
// returns for ids it never assigned, is ErrNotFound.
func (s ContractSource) Receipt(ctx context.Context, id uint64) (core.Receipt, error) {
	v, err := s.Reader.Read(ctx, s.Contract, MethodGetReceipt, new(big.Int).SetUint64(id))
	if err != nil {
		return core.Receipt{}, fmt.Errorf("get receipt %d: %w", id, err)
	}
	r, err := Normalize(v)
	if err != nil {
		return core.Receipt{}, fmt.Errorf("receipt %d: %w", id, err)
	}
	if r.ID == 0 {
		return core.Receipt{}, fmt.Errorf("receipt %d: %w", id, ErrNotFound)
	}
	if r.ID != id {
		return core.Receipt{}, malformed("requested id %d, contract returned %d", id, r.ID)
	}
	return r, nil
}

// NextReceiptID reads the contract's next-id counter. The newest existing
// receipt is the returned value minus one.
func NextReceiptID(ctx context.Context, r Reader, contract common.Address) (uint64, error) {
	v, err := r.Read(ctx, contract, MethodNextReceiptID)
	if err != nil {
		return 0, fmt.Errorf("read next receipt id: %w", err)
	}
	x, ok := v.Field("", 0)
	if !ok {
		return 0, fmt.Errorf("read next receipt id: empty result")
	}
	n, err := AsUint64(x)
	if err != nil {
		return 0, fmt.Errorf("read next receipt id: %w", err)
	}
	return n, nil
}

// ScanResult is the outcome of one scan. Receipts are ordered by descending
// id. Truncated reports that older ids exist below OldestScanned which the
// window did not reach; it is never set when a first-match scan found its
// receipt.
type ScanResult struct {
	Receipts      []core.Receipt `json:"receipts"`
	LastID        uint64         `json:"lastId"`
	OldestScanned uint64         `json:"oldestScanned"`
	Truncated     bool           `json:"truncated"`
	Skipped       []uint64       `json:"skipped,omitempty"`
}

// Scanner rebuilds a wallet's receipts by walking the dense id space
// backward. Reads are strictly sequential.
type Scanner struct {
	reader   Reader
	source   Source
	contract common.Address
	lookback uint64
}

// NewScanner creates a scanner over the given counter reader and receipt
// source. A lookback below one falls back to DefaultLookback.
func NewScanner(reader Reader, source Source, contract common.Address, lookback int) *Scanner {
	if lookback < 1 {
		lookback = DefaultLookback
	}
	return &Scanner{reader: reader, source: source, contract: contract, lookback: uint64(lookback)}
}

// Lookback returns the window size.
func (s *Scanner) Lookback() int { return int(s.lookback) }

// Scan reads the next-id counter and then walks the window.
func (s *Scanner) Scan(ctx context.Context, subject common.Address, mode Mode) (ScanResult, error) {
	next, err := NextReceiptID(ctx, s.reader, s.contract)
	if err != nil {
		return ScanResult{}, &ScanError{Err: err}
	}
	return s.ScanFrom(ctx, next, subject, mode)
}

// ScanFrom walks ids nextID-1 down to max(1, nextID-lookback). With
// nextID <= 1 nothing is read. Any read failure discards partial results and
// returns a *ScanError; malformed or missing records are skipped.
func (s *Scanner) ScanFrom(ctx context.Context, nextID uint64, subject common.Address, mode Mode) (ScanResult, error) {
	if nextID <= 1 {
		return ScanResult{}, nil
	}
	last := nextID - 1
	start := uint64(1)
	if last > s.lookback {
		start = last - s.lookback + 1
	}

	res := ScanResult{LastID: last}
	for id := last; id >= start; id-- {
		if err := ctx.Err(); err != nil {
			return ScanResult{}, &ScanError{ID: id, Err: err}
		}
		res.OldestScanned = id

		r, err := s.source.Receipt(ctx, id)
		if err != nil {
			if errors.Is(err, ErrMalformedReceipt) || errors.Is(err, ErrNotFound) {
				slog.WarnContext(ctx, "Skipping unreadable receipt",
					"component", "scanner",
					"receipt_id", id,
					"error", err)
				res.Skipped = append(res.Skipped, id)
				continue
			}
			return ScanResult{}, &ScanError{ID: id, Err: err}
		}

		if r.IsParticipant(subject) {
			res.Receipts = append(res.Receipts, r)
			if mode == FirstMatch {
				return res, nil
			}
		}
	}
	res.Truncated = start > 1
	return res, nil
}

// Latest returns the newest receipt involving subject inside the window.
func (s *Scanner) Latest(ctx context.Context, subject common.Address) (core.Receipt, bool, ScanResult, error) {
	res, err := s.Scan(ctx, subject, FirstMatch)
	if err != nil || len(res.Receipts) == 0 {
		return core.Receipt{}, false, res, err
	}
	return res.Receipts[0], true, res, nil
}

// History returns every receipt involving subject inside the window.
func (s *Scanner) History(ctx context.Context, subject common.Address) (ScanResult, error) {
	return s.Scan(ctx, subject, CollectAll)
}
