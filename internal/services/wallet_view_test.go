package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"arcreceipts/internal/chain"
	"arcreceipts/internal/core"

	"github.com/ethereum/go-ethereum/common"
)

// hookReader runs hook once, before the first nextReceiptId read.
type hookReader struct {
	chain.Reader
	once sync.Once
	hook func()
}

func (r *hookReader) Read(ctx context.Context, contract common.Address, method string, args ...any) (chain.Value, error) {
	if method == chain.MethodNextReceiptID {
		r.once.Do(r.hook)
	}
	return r.Reader.Read(ctx, contract, method, args...)
}

func TestWalletViewRefresh(t *testing.T) {
	l := newLedger()
	l.Seed(core.Receipt{From: alice, To: bob, Amount: core.NewMoney(2_000_000), Category: core.CategorySalary})
	v := NewWalletView(newService(l, 10, 10, nil))

	if _, ok := v.Refresh(context.Background()); ok {
		t.Fatal("disconnected view applied a refresh")
	}

	v.Connect(alice)
	st, ok := v.Refresh(context.Background())
	if !ok || st.Err != nil {
		t.Fatalf("refresh: ok=%v err=%v", ok, st.Err)
	}
	if st.Latest == nil || st.Latest.ID != 1 || !st.HasData || st.Analytics.TotalSent.String() != "2" {
		t.Fatalf("unexpected state %+v", st)
	}
	if got := v.State(); got.Subject != alice || got.Latest == nil {
		t.Fatalf("state not stored: %+v", got)
	}

	v.Disconnect()
	if got := v.State(); got.Latest != nil || got.Subject != (common.Address{}) {
		t.Fatalf("disconnect kept state: %+v", got)
	}
}

func TestWalletViewDiscardsStaleRefresh(t *testing.T) {
	l := newLedger()
	l.Seed(core.Receipt{From: alice, To: bob, Amount: core.NewMoney(1_000_000)})

	var v *WalletView
	reader := &hookReader{Reader: l}
	reader.hook = func() { v.Connect(bob) }
	v = NewWalletView(NewReceiptService(Config{Reader: reader, Contract: contract, Lookback: 10}))

	v.Connect(alice)
	if _, ok := v.Refresh(context.Background()); ok {
		t.Fatal("refresh for alice applied after switching to bob")
	}
	if st := v.State(); st.Subject != bob || st.Latest != nil {
		t.Fatalf("stale result leaked into bob's state: %+v", st)
	}

	st, ok := v.Refresh(context.Background())
	if !ok || st.Subject != bob || st.Latest == nil || st.Latest.ID != 1 {
		t.Fatalf("bob refresh: ok=%v state=%+v", ok, st)
	}
}

func TestWalletViewScanFailure(t *testing.T) {
	l := newLedger()
	l.Seed(core.Receipt{From: alice, To: bob, Amount: core.NewMoney(1)})
	l.FailNextID(chain.ErrConnection)
	v := NewWalletView(newService(l, 10, 10, nil))
	v.Connect(alice)

	st, ok := v.Refresh(context.Background())
	if !ok || st.Err == nil || st.Latest != nil {
		t.Fatalf("expected applied error state, got ok=%v %+v", ok, st)
	}
}

func TestWalletViewHistoryPageResetsOnFilterChange(t *testing.T) {
	l := newLedger()
	for i := 1; i <= 5; i++ {
		r := core.Receipt{From: alice, To: bob, Amount: core.NewMoney(1_000_000), Timestamp: day(i)}
		if i == 5 {
			r.From, r.To = bob, alice
		}
		l.Seed(r)
	}
	v := NewWalletView(newService(l, 10, 2, nil))
	v.Connect(alice)
	if err := v.SetHistoryFilter(core.HistoryFilter{Mode: core.HistoryAll}); err != nil {
		t.Fatal(err)
	}
	st, ok := v.Refresh(context.Background())
	if !ok || st.History.TotalRows != 5 || st.History.CurrentPage != 1 {
		t.Fatalf("initial history %+v", st.History)
	}
	if st.Window.LastID != 5 || st.Window.OldestScanned != 1 {
		t.Fatalf("window %+v", st.Window)
	}

	v.SetHistoryPage(3)
	if p := v.State().History; p.CurrentPage != 3 || len(p.Rows) != 1 {
		t.Fatalf("page 3 = %+v", p)
	}

	// a refresh keeps the page
	if st, _ := v.Refresh(context.Background()); st.History.CurrentPage != 3 {
		t.Fatalf("refresh moved to page %d", st.History.CurrentPage)
	}

	if err := v.SetHistoryFilter(core.HistoryFilter{Mode: core.HistoryReceived}); err != nil {
		t.Fatal(err)
	}
	p := v.State().History
	if p.CurrentPage != 1 || p.TotalRows != 1 || p.Rows[0].ID != 5 {
		t.Fatalf("received filter page = %+v", p)
	}

	bad := core.HistoryFilter{Mode: core.HistoryAll, From: core.NewDate(2025, 2, 1), To: core.NewDate(2025, 1, 1)}
	if err := v.SetHistoryFilter(bad); !errors.Is(err, core.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	if v.State().History.TotalRows != 1 {
		t.Fatal("rejected filter changed the history")
	}

	v.Disconnect()
	if err := v.SetHistoryFilter(core.HistoryFilter{}); err == nil {
		t.Fatal("filter accepted without a wallet")
	}
}
