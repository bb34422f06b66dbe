package core

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// CategoryAmount is one slice of the spending breakdown. Value is in whole
// USDC and only meant for charts.
type CategoryAmount struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Analytics summarizes a wallet's receipts.
type Analytics struct {
	TotalSent     Money            `json:"totalSent"`
	TotalReceived Money            `json:"totalReceived"`
	Breakdown     []CategoryAmount `json:"breakdown"`
}

// Summarize computes sent/received totals and the sent-by-category breakdown
// for subject. It returns false when there is no data: an empty set or a zero
// subject address.
//
// A receipt where subject is the sender counts as sent, including payments to
// self. Totals are integer sums; per-category sums stay decimal until the end.
func Summarize(receipts []Receipt, subject common.Address) (Analytics, bool) {
	if len(receipts) == 0 || subject == (common.Address{}) {
		return Analytics{}, false
	}

	var out Analytics
	sums := map[string]decimal.Decimal{}
	var order []string
	for _, r := range receipts {
		switch {
		case r.IsSender(subject):
			out.TotalSent = out.TotalSent.Add(r.Amount)
			label := r.Category.AnalyticsLabel()
			if _, seen := sums[label]; !seen {
				order = append(order, label)
			}
			sums[label] = sums[label].Add(r.Amount.Decimal())
		case r.To == subject:
			out.TotalReceived = out.TotalReceived.Add(r.Amount)
		}
	}

	out.Breakdown = make([]CategoryAmount, 0, len(order))
	for _, label := range order {
		out.Breakdown = append(out.Breakdown, CategoryAmount{Label: label, Value: sums[label].InexactFloat64()})
	}
	sort.SliceStable(out.Breakdown, func(i, j int) bool {
		return out.Breakdown[i].Value > out.Breakdown[j].Value
	})
	return out, true
}
