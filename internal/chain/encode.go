package chain

import (
	"math/big"

	"arcreceipts/internal/core"
)

// Meta is the receipt metadata tuple taken by payWithReceipt and returned in
// the nested receipt shape. Field names follow the ABI component names.
type Meta struct {
	Category            uint8  `json:"category"`
	Reason              string `json:"reason"`
	SourceCurrency      string `json:"sourceCurrency"`
	DestinationCurrency string `json:"destinationCurrency"`
	Corridor            string `json:"corridor"`
}

// MetaOf extracts the metadata tuple of a receipt.
func MetaOf(r core.Receipt) Meta {
	return Meta{
		Category:            uint8(r.Category),
		Reason:              r.Reason,
		SourceCurrency:      r.SourceCurrency,
		DestinationCurrency: r.DestinationCurrency,
		Corridor:            r.Corridor,
	}
}

// NestedValue encodes r the way the multi-token contract returns it, with
// integers as *big.Int and both names and positions populated.
func NestedValue(r core.Receipt) Value {
	fields := []namedField{
		{"id", new(big.Int).SetUint64(r.ID)},
		{"from", r.From},
		{"to", r.To},
		{"token", r.Token},
		{"amount", r.Amount.Units.ToBig()},
		{"meta", MetaOf(r)},
		{"timestamp", new(big.Int).SetUint64(r.Timestamp)},
	}
	return fromPairs(fields)
}

// FlatValue encodes r in the single-token layout, which carries no token.
func FlatValue(r core.Receipt) Value {
	fields := []namedField{
		{"id", new(big.Int).SetUint64(r.ID)},
		{"from", r.From},
		{"to", r.To},
		{"amount", r.Amount.Units.ToBig()},
		{"category", uint8(r.Category)},
		{"reason", r.Reason},
		{"sourceCurrency", r.SourceCurrency},
		{"destinationCurrency", r.DestinationCurrency},
		{"corridor", r.Corridor},
		{"timestamp", new(big.Int).SetUint64(r.Timestamp)},
	}
	return fromPairs(fields)
}

type namedField struct {
	name string
	v    any
}

func fromPairs(fields []namedField) Value {
	out := Value{Named: make(map[string]any, len(fields)), Positional: make([]any, len(fields))}
	for i, f := range fields {
		out.Named[f.name] = f.v
		out.Positional[i] = f.v
	}
	return out
}
