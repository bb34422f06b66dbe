package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out uint64
		err error
	}{
		{"1", 1_000_000, nil},
		{"1.5", 1_500_000, nil},
		{"0.000001", 1, nil},
		{"12.", 12_000_000, nil},
		{" 2.50 ", 2_500_000, nil},
		{"0", 0, nil},
		{"007.1", 7_100_000, nil},
		{"12.123456", 12_123_456, nil},
		{"12.1234567", 0, ErrInvalidFormat},
		{"", 0, ErrMissingValue},
		{"   ", 0, ErrMissingValue},
		{"-1", 0, ErrInvalidFormat},
		{"1,5", 0, ErrInvalidFormat},
		{".5", 0, ErrInvalidFormat},
		{"1.2.3", 0, ErrInvalidFormat},
		{"abc", 0, ErrInvalidFormat},
		{"1e6", 0, ErrInvalidFormat},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.err != nil {
			if !errors.Is(err, tc.err) {
				t.Fatalf("%q expected %v, got %v", tc.in, tc.err, err)
			}
			continue
		}
		if err != nil || got.Units.Uint64() != tc.out {
			t.Fatalf("%q expected %d, got %s (err=%v)", tc.in, tc.out, got.Units.Dec(), err)
		}
	}
}

func TestParseAmountOverflow(t *testing.T) {
	// 2^256 / 10^6 has 72 digits; 80 whole digits cannot fit.
	in := "99999999999999999999999999999999999999999999999999999999999999999999999999999999"
	if _, err := ParseAmount(in); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected overflow to be rejected, got %v", err)
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in  uint64
		out string
	}{
		{0, "0"},
		{1, "0.000001"},
		{1_000_000, "1"},
		{1_500_000, "1.5"},
		{1_000_001, "1.000001"},
		{12_340_000, "12.34"},
		{100_000_000, "100"},
	}
	for _, tc := range cases {
		if got := FormatAmount(NewMoney(tc.in)); got != tc.out {
			t.Fatalf("FormatAmount(%d) = %q, want %q", tc.in, got, tc.out)
		}
	}
}

func TestAmountRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 9, 10, 999_999, 1_000_000, 1_000_001, 5_000_000, 123_456_789, 1<<63 + 7}
	for _, x := range values {
		m, err := ParseAmount(FormatAmount(NewMoney(x)))
		if err != nil {
			t.Fatalf("round trip %d: %v", x, err)
		}
		if m.Units.Uint64() != x {
			t.Fatalf("round trip %d: got %s", x, m.Units.Dec())
		}
	}

	big := uint256.MustFromDecimal("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	m, err := ParseAmount(FormatAmount(Money{Units: *big}))
	if err != nil || m.Units.Cmp(big) != 0 {
		t.Fatalf("round trip of max uint256 failed: %s (err=%v)", m.Units.Dec(), err)
	}
}

func TestFormatIsCanonical(t *testing.T) {
	cases := map[string]string{
		"1.500000": "1.5",
		"1.0":      "1",
		"12.":      "12",
		"0.10":     "0.1",
		"000":      "0",
	}
	for in, want := range cases {
		m, err := ParseAmount(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if got := FormatAmount(m); got != want {
			t.Fatalf("%q formatted as %q, want %q", in, got, want)
		}
	}
}

func TestMoneyDecimalAndJSON(t *testing.T) {
	m := NewMoney(5_250_000)
	if got := m.Decimal().String(); got != "5.25" {
		t.Fatalf("Decimal() = %s", got)
	}
	if got := m.Float64(); got != 5.25 {
		t.Fatalf("Float64() = %v", got)
	}

	b, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"5250000"` {
		t.Fatalf("marshal = %s", b)
	}
	var back Money
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if back.Cmp(m) != 0 {
		t.Fatalf("unmarshal = %s", back)
	}
	if err := json.Unmarshal([]byte(`"1.5"`), &back); err == nil {
		t.Fatalf("expected error for fractional minor units")
	}
}
