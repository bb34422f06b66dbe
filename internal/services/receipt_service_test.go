package services

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"

	"arcreceipts/internal/chain"
	"arcreceipts/internal/chain/memory"
	"arcreceipts/internal/core"
	"arcreceipts/internal/export"

	"github.com/ethereum/go-ethereum/common"
)

var (
	contract = common.HexToAddress("0x5d4821a82df5dEBBc518f9f9FFCcA4fA3c06629F")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol    = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	explorer = core.Explorer{BaseURL: "https://testnet.arcscan.app"}
)

// day returns a unix timestamp at noon UTC of 2025-01-d.
func day(d int) uint64 {
	return uint64(core.NewDate(2025, 1, d).Unix() + 12*3600)
}

func newLedger() *memory.Ledger {
	return memory.New(memory.Config{Receipts: contract, USDC: core.USDCAddress})
}

func newService(l *memory.Ledger, lookback, pageSize int, logs chain.LogQuerier) *ReceiptService {
	return NewReceiptService(Config{
		Reader:   l,
		Logs:     logs,
		Contract: contract,
		Explorer: explorer,
		Lookback: lookback,
		PageSize: pageSize,
	})
}

func TestLatest(t *testing.T) {
	l := newLedger()
	l.Seed(
		core.Receipt{From: alice, To: bob, Amount: core.NewMoney(1_000_000), Timestamp: day(1)},
		core.Receipt{From: bob, To: carol, Amount: core.NewMoney(2_000_000), Timestamp: day(2)},
		core.Receipt{From: carol, To: alice, Amount: core.NewMoney(3_000_000), Timestamp: day(3)},
		core.Receipt{From: bob, To: carol, Amount: core.NewMoney(4_000_000), Timestamp: day(4)},
	)
	svc := newService(l, 50, 10, nil)

	got, err := svc.Latest(context.Background(), alice)
	if err != nil {
		t.Fatal(err)
	}
	if got.Receipt == nil || got.Receipt.ID != 3 {
		t.Fatalf("expected receipt 3, got %+v", got.Receipt)
	}
	if got.LastID != 4 || got.OldestScanned != 3 || got.Truncated {
		t.Fatalf("unexpected window %+v", got.Window)
	}

	none, err := svc.Latest(context.Background(), common.HexToAddress("0xdd"))
	if err != nil {
		t.Fatal(err)
	}
	if none.Receipt != nil || none.OldestScanned != 1 {
		t.Fatalf("expected no receipt over the whole ledger, got %+v", none)
	}
}

func TestHistoryFiltersAndPaginates(t *testing.T) {
	l := newLedger()
	for i := 1; i <= 12; i++ {
		r := core.Receipt{From: bob, To: alice, Amount: core.NewMoney(uint64(i) * 1_000_000), Timestamp: day(i)}
		if i%2 == 0 {
			r.From, r.To = alice, bob
		}
		l.Seed(r)
	}
	// lookback 10 covers ids 12..3
	svc := newService(l, 10, 2, nil)

	h, err := svc.History(context.Background(), HistoryQuery{
		Filter: core.HistoryFilter{Subject: alice, Mode: core.HistorySent, From: core.NewDate(2025, 1, 5)},
		Page:   2,
	})
	if err != nil {
		t.Fatal(err)
	}
	// sent ids within window and date range: 12, 10, 8, 6
	if h.TotalRows != 4 || h.TotalPages != 2 || h.CurrentPage != 2 {
		t.Fatalf("unexpected page %+v", h.Page)
	}
	ids := []uint64{h.Rows[0].ID, h.Rows[1].ID}
	if !slices.Equal(ids, []uint64{8, 6}) {
		t.Fatalf("page 2 ids = %v", ids)
	}
	if !h.Truncated || h.OldestScanned != 3 || h.LastID != 12 {
		t.Fatalf("unexpected window %+v", h.Window)
	}
}

func TestHistoryRejectsInvertedRange(t *testing.T) {
	l := newLedger()
	svc := newService(l, 10, 10, nil)
	_, err := svc.History(context.Background(), HistoryQuery{
		Filter: core.HistoryFilter{Subject: alice, Mode: core.HistoryAll, From: core.NewDate(2025, 2, 1), To: core.NewDate(2025, 1, 1)},
	})
	if !errors.Is(err, core.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	if len(l.Calls()) != 0 {
		t.Fatalf("invalid filter reached the chain: %v", l.Calls())
	}
}

func TestHistoryScanFailure(t *testing.T) {
	l := newLedger()
	l.Seed(core.Receipt{From: alice, To: bob, Amount: core.NewMoney(1)}, core.Receipt{From: alice, To: bob, Amount: core.NewMoney(1)})
	l.FailRead(1, chain.ErrConnection)
	svc := newService(l, 10, 10, nil)

	h, err := svc.History(context.Background(), HistoryQuery{Filter: core.HistoryFilter{Subject: alice, Mode: core.HistoryAll}})
	if !errors.Is(err, chain.ErrScanFailed) || !errors.Is(err, chain.ErrConnection) {
		t.Fatalf("expected scan failure wrapping connection error, got %v", err)
	}
	if len(h.Rows) != 0 {
		t.Fatal("partial results leaked")
	}
}

func TestAnalytics(t *testing.T) {
	l := newLedger()
	svc := newService(l, 10, 10, nil)

	if _, ok, err := svc.Analytics(context.Background(), alice); err != nil || ok {
		t.Fatalf("empty ledger: ok=%v err=%v", ok, err)
	}

	l.Seed(
		core.Receipt{From: alice, To: bob, Amount: core.NewMoney(2_500_000), Category: core.CategoryInvoice},
		core.Receipt{From: bob, To: alice, Amount: core.NewMoney(1_000_000)},
	)
	a, ok, err := svc.Analytics(context.Background(), alice)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if a.TotalSent.String() != "2.5" || a.TotalReceived.String() != "1" {
		t.Fatalf("unexpected totals %+v", a)
	}
	if len(a.Breakdown) != 1 || a.Breakdown[0].Label != "Invoice" {
		t.Fatalf("unexpected breakdown %+v", a.Breakdown)
	}
}

func TestExport(t *testing.T) {
	l := newLedger()
	svc := newService(l, 10, 10, nil)

	if _, err := svc.Export(context.Background(), alice); !errors.Is(err, export.ErrNothingToExport) {
		t.Fatalf("expected ErrNothingToExport, got %v", err)
	}

	l.Seed(core.Receipt{From: alice, To: bob, Amount: core.NewMoney(1_000_000), Corridor: "USD-USD", Timestamp: day(3)})
	f, err := svc.Export(context.Background(), alice)
	if err != nil {
		t.Fatal(err)
	}
	b := f.Data
	if f.LastID != 1 || f.Truncated {
		t.Fatalf("unexpected window %+v", f.Window)
	}
	if !bytes.HasPrefix(b, []byte("\uFEFFReceipt ID,")) || !bytes.Contains(b, []byte(`"SENT (OUT)","1.00"`)) {
		t.Fatalf("unexpected csv %q", b)
	}
}

func TestAnalyticsAndExportReportWindow(t *testing.T) {
	l := newLedger()
	for i := 1; i <= 5; i++ {
		l.Seed(core.Receipt{From: alice, To: bob, Amount: core.NewMoney(1_000_000), Timestamp: day(i)})
	}
	// lookback 3 covers ids 5..3
	svc := newService(l, 3, 10, nil)

	a, ok, err := svc.Analytics(context.Background(), alice)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if !a.Truncated || a.OldestScanned != 3 || a.LastID != 5 || a.TotalSent.String() != "3" {
		t.Fatalf("unexpected analytics %+v", a)
	}

	f, err := svc.Export(context.Background(), alice)
	if err != nil {
		t.Fatal(err)
	}
	if !f.Truncated || f.OldestScanned != 3 {
		t.Fatalf("unexpected export window %+v", f.Window)
	}

	// an empty result still says how far back it looked
	a, ok, err = svc.Analytics(context.Background(), carol)
	if err != nil || ok || !a.Truncated || a.OldestScanned != 3 {
		t.Fatalf("carol: ok=%v err=%v %+v", ok, err, a)
	}
}

type failingLogs struct{}

func (failingLogs) QueryLogs(context.Context, chain.LogQuery) ([]chain.LogEntry, error) {
	return nil, chain.ErrConnection
}

func TestDetail(t *testing.T) {
	l := newLedger()
	l.Seed(
		core.Receipt{From: alice, To: bob, Amount: core.NewMoney(1_000_000)},
		core.Receipt{From: bob, To: alice, Amount: core.NewMoney(5_000_000), SourceCurrency: "USDC", DestinationCurrency: "EURC", Category: core.CategoryDonation},
	)
	logs, _ := l.QueryLogs(context.Background(), chain.LogQuery{Contract: contract, Event: chain.EventReceiptCreated, Topics: []any{uint64(2)}})
	if len(logs) != 1 {
		t.Fatalf("ledger logs = %v", logs)
	}
	createdBy := logs[0].TxHash
	given := common.HexToHash("0xabc")

	tests := []struct {
		name     string
		id       uint64
		viewer   string
		tx       string
		logs     chain.LogQuerier
		wantErr  error
		wantHash string
		wantURL  string
	}{
		{name: "no wallet", id: 2, viewer: " ", logs: l, wantErr: ErrViewerRequired},
		{name: "stranger", id: 2, viewer: carol.Hex(), logs: l, wantErr: ErrPrivateReceipt},
		{name: "malformed viewer", id: 2, viewer: "0x123", logs: l, wantErr: ErrPrivateReceipt},
		{name: "unknown id", id: 9, viewer: alice.Hex(), logs: l, wantErr: chain.ErrNotFound},
		{name: "zero id", id: 0, viewer: alice.Hex(), logs: l, wantErr: chain.ErrNotFound},
		{name: "recovered tx", id: 2, viewer: alice.Hex(), logs: l,
			wantHash: createdBy.Hex(), wantURL: explorer.TxURL(createdBy.Hex())},
		{name: "lowercase viewer", id: 2, viewer: "0x00000000000000000000000000000000000000b2", logs: l,
			wantHash: createdBy.Hex(), wantURL: explorer.TxURL(createdBy.Hex())},
		{name: "given tx", id: 2, viewer: bob.Hex(), tx: given.Hex(), logs: failingLogs{},
			wantHash: given.Hex(), wantURL: explorer.TxURL(given.Hex())},
		{name: "malformed tx falls back to lookup", id: 2, viewer: bob.Hex(), tx: "0xnothex", logs: l,
			wantHash: createdBy.Hex(), wantURL: explorer.TxURL(createdBy.Hex())},
		{name: "lookup failure", id: 2, viewer: bob.Hex(), logs: failingLogs{}, wantURL: explorer.AddressURL(contract)},
		{name: "no log source", id: 2, viewer: bob.Hex(), wantURL: explorer.AddressURL(contract)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(l, 10, 10, tt.logs)
			d, err := svc.Detail(context.Background(), tt.id, tt.viewer, tt.tx)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if d.Receipt.ID != tt.id || !d.Swap || d.CategoryLabel != "Donation" {
				t.Fatalf("unexpected detail %+v", d)
			}
			if d.TxHash != tt.wantHash || d.ExplorerURL != tt.wantURL {
				t.Fatalf("hash=%q url=%q, want %q %q", d.TxHash, d.ExplorerURL, tt.wantHash, tt.wantURL)
			}
		})
	}
}

func TestParseTxHash(t *testing.T) {
	h := common.HexToHash("0x01")
	if got, ok := parseTxHash(" " + h.Hex() + " "); !ok || got != h {
		t.Fatalf("parseTxHash = %v %v", got, ok)
	}
	for _, s := range []string{"", "0x01", h.Hex() + "00", "0x" + string(bytes.Repeat([]byte("z"), 64))} {
		if _, ok := parseTxHash(s); ok {
			t.Errorf("parseTxHash(%q) accepted", s)
		}
	}
}
