// Package export renders a wallet's receipts as a spreadsheet-friendly CSV.
package export

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"arcreceipts/internal/core"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNothingToExport is returned for an empty receipt set.
var ErrNothingToExport = errors.New("no receipts to export")

// Header lists the CSV columns in order.
var Header = []string{
	"Receipt ID",
	"Date",
	"Type",
	"Amount (USDC)",
	"Category",
	"From Address",
	"To Address",
	"Route",
	"Description",
	"Explorer Link",
}

const (
	bom        = "\uFEFF"
	dateLayout = "01/02/2006, 03:04 PM"
	sent       = "SENT (OUT)"
	received   = "RECEIVED (IN)"
)

// Filename is the download name for an export taken at t.
func Filename(t time.Time) string {
	return "Arc_Receipts_" + t.UTC().Format("2006-01-02") + ".csv"
}

// Writer writes receipts for one subject wallet.
type Writer struct {
	Subject  common.Address
	Explorer core.Explorer
}

// Write emits a byte order mark, the bare header line and one line per
// receipt with every cell quoted. Lines end in "\n"; dates are UTC.
func (w Writer) Write(out io.Writer, receipts []core.Receipt) error {
	if len(receipts) == 0 {
		return ErrNothingToExport
	}
	bw := bufio.NewWriter(out)
	bw.WriteString(bom)
	bw.WriteString(strings.Join(Header, ","))
	for _, r := range receipts {
		bw.WriteByte('\n')
		for i, cell := range w.Row(r) {
			if i > 0 {
				bw.WriteByte(',')
			}
			bw.WriteString(quote(cell))
		}
	}
	return bw.Flush()
}

// Row renders one receipt in Header order, unquoted.
func (w Writer) Row(r core.Receipt) []string {
	kind := received
	if r.IsSender(w.Subject) {
		kind = sent
	}
	return []string{
		strconv.FormatUint(r.ID, 10),
		r.Time().Format(dateLayout),
		kind,
		r.Amount.Decimal().StringFixed(2),
		r.Category.ExportLabel(),
		r.From.Hex(),
		r.To.Hex(),
		r.Corridor,
		r.Reason,
		w.Explorer.AddressURL(r.To),
	}
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
