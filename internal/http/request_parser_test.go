package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"arcreceipts/internal/core"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseWalletAddress(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"checksummed", "0x5d4821a82df5dEBBc518f9f9FFCcA4fA3c06629F", false},
		{"lowercase", "0x5d4821a82df5debbc518f9f9ffcca4fa3c06629f", false},
		{"short", "0x1234", true},
		{"no prefix", "5d4821a82df5debbc518f9f9ffcca4fa3c06629f00", true},
		{"zero", "0x0000000000000000000000000000000000000000", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWalletAddress(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, core.ErrInvalidAddress) {
				t.Fatalf("expected ErrInvalidAddress, got %v", err)
			}
		})
	}
}

func TestParseReceiptID(t *testing.T) {
	for in, want := range map[string]uint64{"1": 1, " 42 ": 42} {
		if got, err := ParseReceiptID(in); err != nil || got != want {
			t.Errorf("ParseReceiptID(%q) = %d, %v", in, got, err)
		}
	}
	for _, in := range []string{"", "0", "-1", "abc", "1.5"} {
		if _, err := ParseReceiptID(in); !errors.Is(err, ErrInvalidReceiptID) {
			t.Errorf("ParseReceiptID(%q) err = %v", in, err)
		}
	}
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		query url.Values
		want  int
	}{
		{url.Values{}, 1},
		{url.Values{"page": {"3"}}, 3},
		{url.Values{"page": {"0"}}, 1},
		{url.Values{"page": {"abc"}}, 1},
	}
	for _, tt := range tests {
		if got := ParsePage(tt.query); got != tt.want {
			t.Errorf("ParsePage(%v) = %d, want %d", tt.query, got, tt.want)
		}
	}
}

func TestParseHistoryQuery(t *testing.T) {
	subject := common.HexToAddress("0xa1")

	q, err := ParseHistoryQuery(subject, url.Values{"mode": {"Sent"}, "from": {"2025-01-01"}, "to": {"2025-01-31"}, "page": {"2"}})
	if err != nil {
		t.Fatal(err)
	}
	if q.Filter.Mode != core.HistorySent || q.Page != 2 || q.Filter.Subject != subject {
		t.Fatalf("unexpected query %+v", q)
	}
	if !q.Filter.From.Equal(core.NewDate(2025, 1, 1).Time) || !q.Filter.To.Equal(core.NewDate(2025, 1, 31).Time) {
		t.Fatalf("unexpected dates %+v", q.Filter)
	}

	q, err = ParseHistoryQuery(subject, url.Values{})
	if err != nil || q.Filter.Mode != core.HistoryAll || !q.Filter.From.IsEmpty() || q.Page != 1 {
		t.Fatalf("defaults: %+v %v", q, err)
	}

	bad := []struct {
		query url.Values
		want  error
	}{
		{url.Values{"mode": {"both"}}, core.ErrInvalidHistoryMode},
		{url.Values{"from": {"01/02/2025"}}, core.ErrInvalidDate},
		{url.Values{"to": {"2025-02-30"}}, core.ErrInvalidDate},
		{url.Values{"from": {"2025-03-01"}, "to": {"2025-02-01"}}, core.ErrInvalidDate},
	}
	for _, tt := range bad {
		if _, err := ParseHistoryQuery(subject, tt.query); !errors.Is(err, tt.want) {
			t.Errorf("ParseHistoryQuery(%v) err = %v, want %v", tt.query, err, tt.want)
		}
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  0xab\x00\x07cd \n"); got != "0xabcd" {
		t.Fatalf("sanitizeInput = %q", got)
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"direct", "203.0.113.7:5000", "", "203.0.113.7"},
		{"untrusted proxy ignored", "203.0.113.7:5000", "198.51.100.1", "203.0.113.7"},
		{"trusted proxy", "10.0.0.2:5000", "198.51.100.1, 10.0.0.2", "198.51.100.1"},
		{"trusted proxy bad header", "10.0.0.2:5000", "not-an-ip", "10.0.0.2"},
		{"prepended entries ignored", "10.0.0.2:5000", "1.1.1.1, 198.51.100.1, 10.0.0.3", "198.51.100.1"},
		{"only proxies", "127.0.0.1:5000", "10.0.0.3", "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := extractClientIP(r); got != tt.want {
				t.Fatalf("extractClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
