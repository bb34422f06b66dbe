// Package sheets exports receipts to a spreadsheet ledger, one row per receipt.
package sheets

import (
	"context"
	"strconv"
	"time"

	"arcreceipts/internal/core"
)

// Ports for outbound adapters.
type (
	// ReceiptAppender adds one receipt row to the ledger.
	ReceiptAppender interface {
		Append(ctx context.Context, r core.Receipt) (rowRef string, err error)
	}

	// ReceiptLister reports which receipt ids the ledger already holds.
	ReceiptLister interface {
		ListIDs(ctx context.Context) ([]uint64, error)
	}

	// Ledger is the full sheet surface used by the exporter.
	Ledger interface {
		ReceiptAppender
		ReceiptLister
	}
)

// Header is the first row of the ledger sheet.
var Header = []any{
	"Receipt ID", "Timestamp (UTC)", "From", "To", "Token", "Amount",
	"Category", "Reason", "Corridor", "Explorer Link",
}

// Row renders r in Header column order. The token column holds the
// registry symbol, or the address for unregistered tokens.
func Row(r core.Receipt, explorer core.Explorer) []any {
	token := r.Token.Hex()
	if t, ok := core.TokenByAddress(r.Token); ok {
		token = t.Symbol
	}
	return []any{
		strconv.FormatUint(r.ID, 10),
		r.Time().Format(time.RFC3339),
		r.From.Hex(),
		r.To.Hex(),
		token,
		r.Amount.String(),
		r.Category.Label(),
		r.Reason,
		r.Corridor,
		explorer.AddressURL(r.To),
	}
}
