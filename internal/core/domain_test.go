package core

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestCategoryLabels(t *testing.T) {
	cases := []struct {
		c         Category
		label     string
		analytics string
		export    string
	}{
		{CategorySalary, "Salary", "Salary", "Salary"},
		{CategoryTestPurchase, "Test Purchase", "Test Purchase", "Test Purchase"},
		{CategoryLoanRepayment, "Loan repayment", "Loan repayment", "Loan repayment"},
		{CategoryOther, "Other", "Other", "Other"},
		{Category(7), "Category #7", "Unknown", "Other"},
		{Category(200), "Category #200", "Unknown", "Other"},
	}
	for _, tc := range cases {
		if got := tc.c.Label(); got != tc.label {
			t.Fatalf("Label(%d) = %q, want %q", tc.c, got, tc.label)
		}
		if got := tc.c.AnalyticsLabel(); got != tc.analytics {
			t.Fatalf("AnalyticsLabel(%d) = %q, want %q", tc.c, got, tc.analytics)
		}
		if got := tc.c.ExportLabel(); got != tc.export {
			t.Fatalf("ExportLabel(%d) = %q, want %q", tc.c, got, tc.export)
		}
	}
	if n := len(Categories()); n != 7 {
		t.Fatalf("expected 7 categories, got %d", n)
	}
}

func TestParseCategory(t *testing.T) {
	cases := []struct {
		in  string
		out Category
		ok  bool
	}{
		{"donation", CategoryDonation, true},
		{"Loan Repayment", CategoryLoanRepayment, true},
		{"3", CategorySubscription, true},
		{"7", 0, false},
		{"rent", 0, false},
		{" 2 ", CategoryDonation, true},
		{"2abc", 0, false},
		{"2 3", 0, false},
		{"-1", 0, false},
		{"258", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseCategory(tc.in)
		if tc.ok && (err != nil || got != tc.out) {
			t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestParseAddress(t *testing.T) {
	good := []string{
		"0x5d4821a82df5dEBBc518f9f9FFCcA4fA3c06629F",
		"0x5d4821a82df5debbc518f9f9ffcca4fa3c06629f",
		" 0x5D4821A82DF5DEBBC518F9F9FFCCA4FA3C06629F ",
	}
	want := common.HexToAddress("0x5d4821a82df5dEBBc518f9f9FFCcA4fA3c06629F")
	for _, s := range good {
		got, err := ParseAddress(s)
		if err != nil || got != want {
			t.Fatalf("%q expected %s, got %s (err=%v)", s, want, got, err)
		}
	}

	bad := []string{
		"",
		"5d4821a82df5dEBBc518f9f9FFCcA4fA3c06629F",
		"0x5d4821a82df5dEBBc518f9f9FFCcA4fA3c0662",
		"0x5d4821a82df5dEBBc518f9f9FFCcA4fA3c06629Fab",
		"0xZZ4821a82df5dEBBc518f9f9FFCcA4fA3c06629F",
	}
	for _, s := range bad {
		if _, err := ParseAddress(s); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("%q expected ErrInvalidAddress, got %v", s, err)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-09")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Equal(NewDate(2025, 3, 9).Time) {
		t.Fatalf("got %v", d)
	}
	if d.EndUnix()-d.StartUnix() != 86399 {
		t.Fatalf("day bounds span %d seconds", d.EndUnix()-d.StartUnix())
	}
	if empty, err := ParseDate(""); err != nil || !empty.IsEmpty() {
		t.Fatalf("empty input should be an open bound, got %v (err=%v)", empty, err)
	}
	if _, err := ParseDate("09/03/2025"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestReceiptHelpers(t *testing.T) {
	a := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	b := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	r := Receipt{ID: 1, From: a, To: b, SourceCurrency: "USD", DestinationCurrency: "USD", Timestamp: 1_700_000_000}

	if !r.IsSender(a) || r.IsSender(b) {
		t.Fatalf("IsSender mismatch")
	}
	if !r.IsParticipant(a) || !r.IsParticipant(b) || r.IsParticipant(common.Address{}) {
		t.Fatalf("IsParticipant mismatch")
	}
	if r.IsSwap() {
		t.Fatalf("direct payment reported as swap")
	}
	r.DestinationCurrency = "EURC"
	if !r.IsSwap() {
		t.Fatalf("swap not detected")
	}
	if got := r.Time(); !got.Equal(time.Unix(1_700_000_000, 0)) || got.Location() != time.UTC {
		t.Fatalf("Time() = %v", got)
	}
}

func TestTokenRegistry(t *testing.T) {
	usdc, ok := TokenBySymbol("usdc")
	if !ok || usdc.Address != USDCAddress || usdc.Decimals != 6 {
		t.Fatalf("unexpected USDC entry %+v", usdc)
	}
	jpyc, ok := TokenByAddress(common.HexToAddress("0x1111111111111111111111111111111111111111"))
	if !ok || jpyc.Symbol != "JPYC" || jpyc.Decimals != 18 {
		t.Fatalf("unexpected JPYC entry %+v", jpyc)
	}
	if _, ok := TokenBySymbol("DAI"); ok {
		t.Fatalf("unexpected DAI entry")
	}

	list := Tokens()
	list[0].Symbol = "MUTATED"
	if again, _ := TokenBySymbol("USDC"); again.Symbol != "USDC" {
		t.Fatalf("registry mutated through Tokens()")
	}
}

func TestExplorerLinks(t *testing.T) {
	e := Explorer{BaseURL: "https://testnet.arcscan.app/"}
	if got := e.TxURL("0xabc"); got != "https://testnet.arcscan.app/tx/0xabc" {
		t.Fatalf("TxURL = %s", got)
	}
	addr := common.HexToAddress("0x5d4821a82df5dEBBc518f9f9FFCcA4fA3c06629F")
	if got := e.AddressURL(addr); got != "https://testnet.arcscan.app/address/0x5d4821a82df5dEBBc518f9f9FFCcA4fA3c06629F" {
		t.Fatalf("AddressURL = %s", got)
	}
}
