package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"arcreceipts/internal/chain"
	"arcreceipts/internal/core"

	"github.com/ethereum/go-ethereum/common"
)

// WalletState is the dashboard for one connected wallet.
type WalletState struct {
	Subject   common.Address `json:"subject"`
	Latest    *core.Receipt  `json:"latest"`
	Analytics core.Analytics `json:"analytics"`
	HasData   bool           `json:"hasData"`
	History   core.Page      `json:"history"`
	Window    Window         `json:"window"`
	Err       error          `json:"-"`
}

// WalletView keeps the state of the currently connected wallet. Every
// connection change supersedes in-flight refreshes, whose results are then
// dropped on arrival instead of overwriting the newer wallet's state.
type WalletView struct {
	svc *ReceiptService
	gen chain.Generation

	mu        sync.Mutex
	subject   common.Address
	connected bool
	state     WalletState
	history   *core.HistoryView
	receipts  []core.Receipt // last collect-all result
}

// NewWalletView creates a disconnected view.
func NewWalletView(svc *ReceiptService) *WalletView {
	return &WalletView{svc: svc}
}

// Connect switches the view to subject and clears the previous state.
func (v *WalletView) Connect(subject common.Address) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gen.Invalidate()
	v.subject, v.connected = subject, true
	v.state = WalletState{Subject: subject}
	v.history = core.NewHistoryView(subject, v.svc.pageSize)
	v.receipts = nil
}

// Disconnect clears the view.
func (v *WalletView) Disconnect() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gen.Invalidate()
	v.subject, v.connected = common.Address{}, false
	v.state = WalletState{}
	v.history, v.receipts = nil, nil
}

// SetHistoryFilter changes the history filter of the connected wallet and
// re-renders the last scanned receipts. A changed filter goes back to
// page 1. The filter's subject is always the connected wallet.
func (v *WalletView) SetHistoryFilter(f core.HistoryFilter) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.connected {
		return errors.New("no wallet connected")
	}
	f.Subject = v.subject
	if err := f.Validate(); err != nil {
		return err
	}
	v.history.SetFilter(f)
	v.rerender()
	return nil
}

// SetHistoryPage moves the history to page n, clamped to the valid range.
func (v *WalletView) SetHistoryPage(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.connected {
		return
	}
	v.history.SetPage(n)
	v.rerender()
}

// rerender requires v.mu.
func (v *WalletView) rerender() {
	if v.state.Err == nil {
		v.state.History = v.history.Render(v.receipts)
	}
}

// State returns the last applied state.
func (v *WalletView) State() WalletState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Refresh scans for the connected wallet and applies the result. It returns
// false when nothing was applied, either because no wallet is connected or
// because the connection changed while the scan was running. A failed scan
// is applied as an error state with the previous receipts cleared.
func (v *WalletView) Refresh(ctx context.Context) (WalletState, bool) {
	v.mu.Lock()
	if !v.connected {
		v.mu.Unlock()
		return WalletState{}, false
	}
	subject := v.subject
	ticket := v.gen.Begin()
	v.mu.Unlock()

	next := WalletState{Subject: subject}
	var all []core.Receipt
	latest, err := v.svc.Latest(ctx, subject)
	if err == nil {
		var res chain.ScanResult
		all, res, err = v.svc.collect(ctx, subject)
		next.Latest = latest.Receipt
		next.Analytics, next.HasData = core.Summarize(all, subject)
		next.Window = windowOf(res)
	}
	if err != nil {
		next = WalletState{Subject: subject, Err: err}
		all = nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.gen.IsCurrent(ticket) {
		slog.DebugContext(ctx, "Discarding stale wallet refresh", "component", "wallet", "address", subject.Hex())
		return WalletState{}, false
	}
	v.receipts = all
	v.state = next
	v.rerender()
	return v.state, true
}
