package core

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// HistoryMode selects receipts by the subject's role.
type HistoryMode string

const (
	HistoryAll      HistoryMode = "all"
	HistorySent     HistoryMode = "sent"
	HistoryReceived HistoryMode = "received"
)

// ParseHistoryMode accepts all, sent or received. Empty input means all.
func ParseHistoryMode(s string) (HistoryMode, error) {
	switch m := HistoryMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return HistoryAll, nil
	case HistoryAll, HistorySent, HistoryReceived:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidHistoryMode, s)
	}
}

// HistoryFilter restricts a receipt set. Zero From/To leave that side open;
// both bounds are inclusive calendar days in UTC.
type HistoryFilter struct {
	Subject common.Address
	Mode    HistoryMode
	From    Date
	To      Date
}

// Validate checks the mode and that From is not after To.
func (f HistoryFilter) Validate() error {
	if _, err := ParseHistoryMode(string(f.Mode)); err != nil {
		return err
	}
	if !f.From.IsEmpty() && !f.To.IsEmpty() && f.From.After(f.To.Time) {
		return fmt.Errorf("%w: from %s is after to %s", ErrInvalidDate, f.From.Format("2006-01-02"), f.To.Format("2006-01-02"))
	}
	return nil
}

// Match reports whether r passes the filter.
func (f HistoryFilter) Match(r Receipt) bool {
	if !r.IsParticipant(f.Subject) {
		return false
	}
	ts := r.unixSeconds()
	if !f.From.IsEmpty() && ts < f.From.StartUnix() {
		return false
	}
	if !f.To.IsEmpty() && ts > f.To.EndUnix() {
		return false
	}
	switch f.Mode {
	case HistorySent:
		return r.From == f.Subject
	case HistoryReceived:
		return r.To == f.Subject
	default:
		return true
	}
}

// Apply returns the matching receipts in input order.
func (f HistoryFilter) Apply(receipts []Receipt) []Receipt {
	out := make([]Receipt, 0, len(receipts))
	for _, r := range receipts {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Page is one slice of a filtered history.
type Page struct {
	Rows        []Receipt `json:"rows"`
	CurrentPage int       `json:"currentPage"`
	TotalPages  int       `json:"totalPages"`
	TotalRows   int       `json:"totalRows"`
}

// Paginate slices rows into fixed-size pages (1-based). An empty input has a
// single empty page and out-of-range pages clamp to the nearest valid one.
func Paginate(rows []Receipt, page, size int) Page {
	if size < 1 {
		size = 1
	}
	total := (len(rows) + size - 1) / size
	if total == 0 {
		total = 1
	}
	page = min(max(page, 1), total)

	start := min((page-1)*size, len(rows))
	end := min(start+size, len(rows))
	return Page{
		Rows:        rows[start:end],
		CurrentPage: page,
		TotalPages:  total,
		TotalRows:   len(rows),
	}
}

// HistoryView holds filter inputs and the current page. Changing any filter
// input resets the page to 1.
type HistoryView struct {
	filter   HistoryFilter
	page     int
	pageSize int
}

// NewHistoryView creates a view on page 1.
func NewHistoryView(subject common.Address, pageSize int) *HistoryView {
	return &HistoryView{
		filter:   HistoryFilter{Subject: subject, Mode: HistoryAll},
		page:     1,
		pageSize: pageSize,
	}
}

// Filter returns the current filter inputs.
func (v *HistoryView) Filter() HistoryFilter { return v.filter }

// SetFilter replaces the filter; the page resets when anything changed.
func (v *HistoryView) SetFilter(f HistoryFilter) {
	if f != v.filter {
		v.filter = f
		v.page = 1
	}
}

// SetPage moves to page n; Render clamps it.
func (v *HistoryView) SetPage(n int) { v.page = n }

// Render applies the filter to receipts and returns the current page.
func (v *HistoryView) Render(receipts []Receipt) Page {
	p := Paginate(v.filter.Apply(receipts), v.page, v.pageSize)
	v.page = p.CurrentPage
	return p
}
