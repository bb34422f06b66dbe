package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	CategorySalary Category = iota
	CategoryInvoice
	CategoryDonation
	CategorySubscription
	CategoryTestPurchase
	CategoryLoanRepayment
	CategoryOther
)

type (
	// Category indexes the fixed label enumeration stored on-chain as uint8.
	Category uint8

	Date struct {
		time.Time
	}

	// Receipt is the canonical, immutable record of one on-chain payment.
	Receipt struct {
		ID                  uint64         `json:"id"`
		From                common.Address `json:"from"`
		To                  common.Address `json:"to"`
		Token               common.Address `json:"token"`
		Amount              Money          `json:"amount"`
		Category            Category       `json:"category"`
		Reason              string         `json:"reason"`
		SourceCurrency      string         `json:"sourceCurrency"`
		DestinationCurrency string         `json:"destinationCurrency"`
		Corridor            string         `json:"corridor"`
		Timestamp           uint64         `json:"timestamp"`
	}
)

var (
	ErrInvalidFormat      = errors.New("invalid amount format (max 6 decimals)")
	ErrMissingValue       = errors.New("amount is required")
	ErrNonPositiveAmount  = errors.New("amount must be greater than zero")
	ErrInvalidAddress     = errors.New("invalid address")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidHistoryMode = errors.New("invalid history mode")
)

var categoryLabels = [...]string{
	CategorySalary:        "Salary",
	CategoryInvoice:       "Invoice",
	CategoryDonation:      "Donation",
	CategorySubscription:  "Subscription",
	CategoryTestPurchase:  "Test Purchase",
	CategoryLoanRepayment: "Loan repayment",
	CategoryOther:         "Other",
}

// Categories returns every known category in enumeration order.
func Categories() []Category {
	out := make([]Category, len(categoryLabels))
	for i := range categoryLabels {
		out[i] = Category(i)
	}
	return out
}

// Known reports whether c is part of the label enumeration.
func (c Category) Known() bool {
	return int(c) < len(categoryLabels)
}

// Label returns the display label, or "Category #N" for values outside the enumeration.
func (c Category) Label() string {
	if !c.Known() {
		return fmt.Sprintf("Category #%d", c)
	}
	return categoryLabels[c]
}

// AnalyticsLabel keys the spending breakdown; unknown values group under "Unknown".
func (c Category) AnalyticsLabel() string {
	return c.labelOr("Unknown")
}

// ExportLabel is the label written to ledger exports; unknown values become "Other".
func (c Category) ExportLabel() string {
	return c.labelOr(categoryLabels[CategoryOther])
}

func (c Category) labelOr(fallback string) string {
	if !c.Known() {
		return fallback
	}
	return categoryLabels[c]
}

// ParseCategory resolves a label (case-insensitive) or a numeric index.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for i, l := range categoryLabels {
		if strings.EqualFold(l, s) {
			return Category(i), nil
		}
	}
	if n, err := strconv.ParseUint(s, 10, 8); err == nil && Category(n).Known() {
		return Category(n), nil
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// ParseAddress validates a 0x-prefixed 20-byte hex address. Comparison of
// parsed addresses is case-insensitive by construction.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if len(s) != 42 || !(strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) || !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// IsSender reports whether addr paid this receipt.
func (r Receipt) IsSender(addr common.Address) bool {
	return r.From == addr
}

// IsParticipant reports whether addr is the sender or the recipient.
func (r Receipt) IsParticipant(addr common.Address) bool {
	return r.From == addr || r.To == addr
}

// IsSwap reports whether an FX swap took place between payer and payee currencies.
func (r Receipt) IsSwap() bool {
	return r.SourceCurrency != r.DestinationCurrency
}

// Time returns the chain timestamp as UTC time.
func (r Receipt) Time() time.Time {
	return time.Unix(r.unixSeconds(), 0).UTC()
}

// unixSeconds is Timestamp as a signed Unix time, saturating at MaxInt64
// so far-future values stay ordered after every calendar date.
func (r Receipt) unixSeconds() int64 {
	if r.Timestamp > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(r.Timestamp)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a calendar date in YYYY-MM-DD form. Empty input yields the zero Date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// IsEmpty returns true if the date is zero, meaning the bound is open.
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// StartUnix is 00:00:00 UTC of the date.
func (d Date) StartUnix() int64 {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC).Unix()
}

// EndUnix is 23:59:59 UTC of the date.
func (d Date) EndUnix() int64 {
	return d.StartUnix() + 24*60*60 - 1
}
