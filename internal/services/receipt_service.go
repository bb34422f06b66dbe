package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"arcreceipts/internal/chain"
	"arcreceipts/internal/core"
	"arcreceipts/internal/export"
	"arcreceipts/internal/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	// ErrViewerRequired is returned by Detail when no viewer wallet was given.
	ErrViewerRequired = errors.New("connect a wallet to view this receipt")
	// ErrPrivateReceipt is returned by Detail when the viewer is neither sender nor recipient.
	ErrPrivateReceipt = errors.New("receipt is private to its sender and recipient")
)

// ReceiptService answers wallet and receipt queries by scanning the receipts
// contract. It holds no state of its own besides what the source caches.
type ReceiptService struct {
	scanner  *chain.Scanner
	source   chain.Source
	logs     chain.LogQuerier
	contract common.Address
	explorer core.Explorer
	pageSize int
	metrics  *metrics.Metrics
}

// Config wires a ReceiptService.
type Config struct {
	Reader   chain.Reader
	Source   chain.Source
	Logs     chain.LogQuerier // optional; nil disables tx recovery
	Contract common.Address
	Explorer core.Explorer
	Lookback int
	PageSize int
	Metrics  *metrics.Metrics
}

// NewReceiptService creates the service. A nil Source reads the contract
// directly through Reader.
func NewReceiptService(cfg Config) *ReceiptService {
	src := cfg.Source
	if src == nil {
		src = chain.ContractSource{Reader: cfg.Reader, Contract: cfg.Contract}
	}
	size := cfg.PageSize
	if size < 1 {
		size = 10
	}
	return &ReceiptService{
		scanner:  chain.NewScanner(cfg.Reader, src, cfg.Contract, cfg.Lookback),
		source:   src,
		logs:     cfg.Logs,
		contract: cfg.Contract,
		explorer: cfg.Explorer,
		pageSize: size,
		metrics:  cfg.Metrics,
	}
}

// Explorer returns the configured explorer.
func (s *ReceiptService) Explorer() core.Explorer { return s.explorer }

// Window describes the id range a scan covered.
type Window struct {
	LastID        uint64   `json:"lastId"`
	OldestScanned uint64   `json:"oldestScanned"`
	Truncated     bool     `json:"truncated"`
	Skipped       []uint64 `json:"skipped,omitempty"`
}

func windowOf(r chain.ScanResult) Window {
	return Window{LastID: r.LastID, OldestScanned: r.OldestScanned, Truncated: r.Truncated, Skipped: r.Skipped}
}

// Latest is the newest receipt involving a wallet.
type Latest struct {
	Receipt *core.Receipt `json:"receipt"`
	Window
}

// Latest runs a first-match scan for subject. A nil Receipt with a nil error
// means no receipt was found inside the window.
func (s *ReceiptService) Latest(ctx context.Context, subject common.Address) (Latest, error) {
	r, found, res, err := s.scanner.Latest(ctx, subject)
	s.metrics.ObserveScan(chain.FirstMatch.String(), len(res.Receipts), err)
	if err != nil {
		slog.ErrorContext(ctx, "Latest receipt scan failed", "component", "receipts", "address", subject.Hex(), "error", err)
		return Latest{}, err
	}
	out := Latest{Window: windowOf(res)}
	if found {
		out.Receipt = &r
	}
	return out, nil
}

// HistoryQuery selects one page of a wallet's history.
type HistoryQuery struct {
	Filter core.HistoryFilter
	Page   int
}

// History is one filtered page plus the window it was drawn from.
type History struct {
	core.Page
	Window
}

// History scans collect-all, filters and paginates.
func (s *ReceiptService) History(ctx context.Context, q HistoryQuery) (History, error) {
	if err := q.Filter.Validate(); err != nil {
		return History{}, err
	}
	all, res, err := s.collect(ctx, q.Filter.Subject)
	if err != nil {
		return History{}, err
	}
	return History{
		Page:   core.Paginate(q.Filter.Apply(all), q.Page, s.pageSize),
		Window: windowOf(res),
	}, nil
}

// WalletAnalytics is a wallet summary together with the window it covers.
type WalletAnalytics struct {
	core.Analytics
	Window
}

// Analytics summarizes the wallet's receipts inside the window. The bool is
// false when there is nothing to show; the window is filled either way.
func (s *ReceiptService) Analytics(ctx context.Context, subject common.Address) (WalletAnalytics, bool, error) {
	all, res, err := s.collect(ctx, subject)
	if err != nil {
		return WalletAnalytics{}, false, err
	}
	a, ok := core.Summarize(all, subject)
	return WalletAnalytics{Analytics: a, Window: windowOf(res)}, ok, nil
}

// ExportFile is a rendered CSV and the window its rows were drawn from.
type ExportFile struct {
	Data []byte
	Window
}

// Export renders the wallet's receipts as CSV.
func (s *ReceiptService) Export(ctx context.Context, subject common.Address) (ExportFile, error) {
	all, res, err := s.collect(ctx, subject)
	if err != nil {
		return ExportFile{}, err
	}
	var buf bytes.Buffer
	if err := (export.Writer{Subject: subject, Explorer: s.explorer}).Write(&buf, all); err != nil {
		return ExportFile{}, err
	}
	return ExportFile{Data: buf.Bytes(), Window: windowOf(res)}, nil
}

func (s *ReceiptService) collect(ctx context.Context, subject common.Address) ([]core.Receipt, chain.ScanResult, error) {
	res, err := s.scanner.History(ctx, subject)
	s.metrics.ObserveScan(chain.CollectAll.String(), len(res.Receipts), err)
	if err != nil {
		slog.ErrorContext(ctx, "Receipt history scan failed", "component", "receipts", "address", subject.Hex(), "error", err)
		return nil, chain.ScanResult{}, err
	}
	return res.Receipts, res, nil
}

// Detail is a receipt as shown on its own page.
type Detail struct {
	Receipt       core.Receipt `json:"receipt"`
	TxHash        string       `json:"txHash,omitempty"`
	ExplorerURL   string       `json:"explorerUrl"`
	Swap          bool         `json:"swap"`
	CategoryLabel string       `json:"categoryLabel"`
}

// Detail loads receipt id for viewer. The receipt is read before the view
// check so that unknown ids report not found regardless of viewer. tx, when
// a well-formed hash, is trusted as the creating transaction; otherwise the
// ReceiptCreated logs are searched and a failed search falls back to the
// contract's explorer page.
func (s *ReceiptService) Detail(ctx context.Context, id uint64, viewer, tx string) (Detail, error) {
	if id == 0 {
		return Detail{}, fmt.Errorf("receipt 0: %w", chain.ErrNotFound)
	}
	r, err := s.source.Receipt(ctx, id)
	if err != nil {
		return Detail{}, err
	}

	switch core.CheckView(r, viewer) {
	case core.ViewNoWallet:
		return Detail{}, ErrViewerRequired
	case core.ViewNotParticipant:
		slog.InfoContext(ctx, "Receipt view refused", "component", "receipts", "receipt_id", id, "viewer", viewer)
		return Detail{}, ErrPrivateReceipt
	}

	d := Detail{Receipt: r, Swap: r.IsSwap(), CategoryLabel: r.Category.Label()}
	hash, ok := parseTxHash(tx)
	if !ok {
		hash, ok = s.recoverTx(ctx, id)
	}
	if ok {
		d.TxHash = hash.Hex()
		d.ExplorerURL = s.explorer.TxURL(d.TxHash)
	} else {
		d.ExplorerURL = s.explorer.AddressURL(s.contract)
	}
	return d, nil
}

func (s *ReceiptService) recoverTx(ctx context.Context, id uint64) (common.Hash, bool) {
	if s.logs == nil {
		return common.Hash{}, false
	}
	entries, err := s.logs.QueryLogs(ctx, chain.LogQuery{
		Contract: s.contract,
		Event:    chain.EventReceiptCreated,
		Topics:   []any{id},
	})
	if err != nil {
		slog.WarnContext(ctx, "Transaction lookup failed", "component", "receipts", "receipt_id", id, "error", err)
		return common.Hash{}, false
	}
	if len(entries) == 0 {
		return common.Hash{}, false
	}
	return entries[0].TxHash, true
}

func parseTxHash(s string) (common.Hash, bool) {
	s = strings.TrimSpace(s)
	if len(s) != 2+2*common.HashLength {
		return common.Hash{}, false
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}
