package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"arcreceipts/internal/chain"
	"arcreceipts/internal/chain/memory"
	"arcreceipts/internal/core"
	"arcreceipts/internal/metrics"
	"arcreceipts/internal/services"

	"github.com/ethereum/go-ethereum/common"
)

var (
	contract = common.HexToAddress("0x5d4821a82df5dEBBc518f9f9FFCcA4fA3c06629F")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol    = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func newTestServer(t *testing.T, l *memory.Ledger, m *metrics.Metrics) *Server {
	t.Helper()
	svc := services.NewReceiptService(services.Config{
		Reader:   l,
		Logs:     l,
		Contract: contract,
		Explorer: core.Explorer{BaseURL: "https://testnet.arcscan.app"},
		Lookback: 50,
		PageSize: 2,
		Metrics:  m,
	})
	srv := NewServer(Options{
		Addr:     ":0",
		Receipts: svc,
		Metrics:  m,
		Ready: func(ctx context.Context) error {
			_, err := chain.NextReceiptID(ctx, l, contract)
			return err
		},
		RateLimitPerMinute: 1000,
	})
	srv.now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func seeded() *memory.Ledger {
	l := memory.New(memory.Config{Receipts: contract, USDC: core.USDCAddress})
	l.Seed(
		core.Receipt{From: alice, To: bob, Amount: core.NewMoney(1_500_000), Category: core.CategoryInvoice, Corridor: "USD-USD", SourceCurrency: "USD", DestinationCurrency: "USD", Timestamp: 1_735_732_800},
		core.Receipt{From: bob, To: alice, Amount: core.NewMoney(2_000_000), Category: core.CategorySalary, Corridor: "USD-USD", SourceCurrency: "USD", DestinationCurrency: "USD", Timestamp: 1_735_819_200},
		core.Receipt{From: carol, To: bob, Amount: core.NewMoney(3_000_000), Timestamp: 1_735_905_600},
	)
	return l
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	l := seeded()
	srv := newTestServer(t, l, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := get(t, srv, path); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	l.FailNextID(chain.ErrConnection)
	if rr := get(t, srv, "/readyz"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing chain status=%d", rr.Code)
	}
}

func TestLatestEndpoint(t *testing.T) {
	srv := newTestServer(t, seeded(), nil)

	rr := get(t, srv, "/api/wallets/"+alice.Hex()+"/latest")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	got := decode[services.Latest](t, rr)
	if got.Receipt == nil || got.Receipt.ID != 2 || got.LastID != 3 || got.Truncated {
		t.Fatalf("unexpected latest %+v", got)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}

	rr = get(t, srv, "/api/wallets/0x00000000000000000000000000000000000000dd/latest")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"receipt":null`) {
		t.Fatalf("empty latest: %d %s", rr.Code, rr.Body)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	srv := newTestServer(t, seeded(), nil)

	rr := get(t, srv, "/api/wallets/"+bob.Hex()+"/history?mode=received&page=1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	h := decode[services.History](t, rr)
	if h.TotalRows != 2 || h.TotalPages != 1 || h.Rows[0].ID != 3 || h.Rows[1].ID != 1 {
		t.Fatalf("unexpected history %+v", h)
	}

	rr = get(t, srv, "/api/wallets/"+bob.Hex()+"/history?from=2025-01-03&to=2025-01-03")
	if h := decode[services.History](t, rr); h.TotalRows != 1 || h.Rows[0].ID != 3 {
		t.Fatalf("date filtered history %+v", h)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		setup  func(l *memory.Ledger)
		status int
		state  string
	}{
		{"bad address", "/api/wallets/0x123/latest", nil, http.StatusBadRequest, StateInvalidRequest},
		{"bad mode", "/api/wallets/" + alice.Hex() + "/history?mode=both", nil, http.StatusBadRequest, StateInvalidRequest},
		{"bad date", "/api/wallets/" + alice.Hex() + "/history?from=2025-13-01", nil, http.StatusBadRequest, StateInvalidRequest},
		{"inverted range", "/api/wallets/" + alice.Hex() + "/history?from=2025-02-01&to=2025-01-01", nil, http.StatusBadRequest, StateInvalidRequest},
		{"bad receipt id", "/api/receipts/abc?viewer=" + alice.Hex(), nil, http.StatusBadRequest, StateInvalidRequest},
		{"no wallet", "/api/receipts/1", nil, http.StatusUnauthorized, StateNoWallet},
		{"private", "/api/receipts/1?viewer=" + carol.Hex(), nil, http.StatusForbidden, StatePrivate},
		{"unknown receipt", "/api/receipts/99?viewer=" + alice.Hex(), nil, http.StatusNotFound, StateNotFound},
		{"scan failed", "/api/wallets/" + alice.Hex() + "/history", func(l *memory.Ledger) { l.FailRead(2, chain.ErrConnection) },
			http.StatusBadGateway, StateScanFailed},
		{"no receipts to export", "/api/wallets/0x00000000000000000000000000000000000000dd/export.csv", nil, http.StatusNotFound, StateNoReceipts},
		{"unknown route", "/api/nope", nil, http.StatusNotFound, StateNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := seeded()
			if tt.setup != nil {
				tt.setup(l)
			}
			rr := get(t, newTestServer(t, l, nil), tt.path)
			if rr.Code != tt.status {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.status, rr.Body)
			}
			body := decode[errorBody](t, rr)
			if body.State != tt.state || body.Error == "" {
				t.Fatalf("unexpected body %+v", body)
			}
		})
	}
}

func TestAnalyticsEndpoint(t *testing.T) {
	srv := newTestServer(t, seeded(), nil)

	rr := get(t, srv, "/api/wallets/"+alice.Hex()+"/analytics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	a := decode[services.WalletAnalytics](t, rr)
	if a.TotalSent.String() != "1.5" || a.TotalReceived.String() != "2" {
		t.Fatalf("unexpected analytics %+v", a)
	}
	if a.LastID != 3 || a.OldestScanned != 1 || a.Truncated {
		t.Fatalf("unexpected window %+v", a.Window)
	}
	if !strings.Contains(rr.Body.String(), `"truncated":false`) {
		t.Fatalf("window missing from body %s", rr.Body)
	}

	rr = get(t, srv, "/api/wallets/0x00000000000000000000000000000000000000dd/analytics")
	if rr.Code != http.StatusNoContent || rr.Body.Len() != 0 {
		t.Fatalf("no-data analytics: %d %q", rr.Code, rr.Body)
	}
	if rr.Header().Get(HeaderScanTruncated) != "false" || rr.Header().Get(HeaderOldestScanned) != "1" {
		t.Fatalf("window headers %v", rr.Header())
	}
}

func TestExportEndpoint(t *testing.T) {
	srv := newTestServer(t, seeded(), nil)

	rr := get(t, srv, "/api/wallets/"+alice.Hex()+"/export.csv")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Fatalf("content type %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); cd != `attachment; filename="Arc_Receipts_2025-06-01.csv"` {
		t.Fatalf("disposition %q", cd)
	}
	if rr.Header().Get(HeaderScanTruncated) != "false" || rr.Header().Get(HeaderOldestScanned) != "1" {
		t.Fatalf("window headers %v", rr.Header())
	}
	lines := strings.Split(rr.Body.String(), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "\uFEFFReceipt ID,") {
		t.Fatalf("unexpected csv %q", rr.Body)
	}
}

func TestReceiptEndpoint(t *testing.T) {
	srv := newTestServer(t, seeded(), nil)

	rr := get(t, srv, "/api/receipts/1?viewer="+strings.ToLower(bob.Hex()))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Fatal("receipt detail is cacheable")
	}
	d := decode[services.Detail](t, rr)
	if d.Receipt.ID != 1 || d.TxHash == "" || !strings.HasPrefix(d.ExplorerURL, "https://testnet.arcscan.app/tx/0x") {
		t.Fatalf("unexpected detail %+v", d)
	}
	if d.CategoryLabel != "Invoice" || d.Swap {
		t.Fatalf("unexpected labels %+v", d)
	}
}

func TestRateLimit(t *testing.T) {
	l := seeded()
	svc := services.NewReceiptService(services.Config{Reader: l, Contract: contract})
	srv := NewServer(Options{Receipts: svc, RateLimitPerMinute: 1})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	path := "/api/wallets/" + alice.Hex() + "/latest"
	if rr := get(t, srv, path); rr.Code != http.StatusOK {
		t.Fatalf("first status=%d", rr.Code)
	}
	rr := get(t, srv, path)
	if rr.Code != http.StatusTooManyRequests || decode[errorBody](t, rr).State != StateRateLimited {
		t.Fatalf("second status=%d body=%s", rr.Code, rr.Body)
	}
	// health checks are not throttled
	if rr := get(t, srv, "/healthz"); rr.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, seeded(), nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/wallets/"+alice.Hex()+"/latest", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("preflight not answered: %d %v", rr.Code, rr.Header())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	srv := newTestServer(t, seeded(), m)
	get(t, srv, "/api/wallets/"+alice.Hex()+"/latest")

	rr := get(t, srv, "/metrics")
	body := rr.Body.String()
	if rr.Code != http.StatusOK || !strings.Contains(body, `route="/api/wallets/{address}/latest"`) {
		t.Fatalf("http metrics missing: %s", body)
	}
	if !strings.Contains(body, `arcreceipts_scans_total{mode="first_match",outcome="ok"} 1`) {
		t.Fatalf("scan metrics missing: %s", body)
	}
}

func TestErrorStatusCanceled(t *testing.T) {
	status, state := errorStatus(&chain.ScanError{ID: 4, Err: context.Canceled})
	if status != http.StatusServiceUnavailable || state != StateCanceled {
		t.Fatalf("got %d %s", status, state)
	}
	status, _ = errorStatus(errors.New("boom"))
	if status != http.StatusInternalServerError {
		t.Fatalf("got %d", status)
	}
}
