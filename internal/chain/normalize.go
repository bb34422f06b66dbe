package chain

import (
	"arcreceipts/internal/core"

	"github.com/ethereum/go-ethereum/common"
)

// Shape is one of the two known getReceipt result layouts.
type Shape int

const (
	ShapeUnknown Shape = iota
	// ShapeFlat: id, from, to, amount, category, reason, sourceCurrency,
	// destinationCurrency, corridor, timestamp. No token field.
	ShapeFlat
	// ShapeNested: id, from, to, token, amount, meta{category, reason,
	// sourceCurrency, destinationCurrency, corridor}, timestamp.
	ShapeNested
)

func (s Shape) String() string {
	switch s {
	case ShapeFlat:
		return "flat"
	case ShapeNested:
		return "nested"
	default:
		return "unknown"
	}
}

const (
	flatFields   = 10
	nestedFields = 7
)

// field positions per shape
type layout struct {
	id, from, to, token, amount, timestamp int
	category, reason, src, dst, corridor   int
}

var (
	flatLayout = layout{
		id: 0, from: 1, to: 2, token: -1, amount: 3, timestamp: 9,
		category: 4, reason: 5, src: 6, dst: 7, corridor: 8,
	}
	nestedLayout = layout{
		id: 0, from: 1, to: 2, token: 3, amount: 4, timestamp: 6,
		category: 0, reason: 1, src: 2, dst: 3, corridor: 4,
	}
	nestedMetaIndex = 5
)

// DetectShape classifies a decoded result. Names win over field counts.
func DetectShape(v Value) Shape {
	switch {
	case v.Has("meta"):
		return ShapeNested
	case v.Has("category"):
		return ShapeFlat
	case v.Has("token"):
		return ShapeNested
	case v.Len() == nestedFields:
		return ShapeNested
	case v.Len() == flatFields:
		return ShapeFlat
	default:
		return ShapeUnknown
	}
}

// Normalize maps one getReceipt result of either shape to a canonical
// receipt. raw may be a Value or anything ValueOf accepts. Every field except
// the token must resolve; a missing token defaults to USDC.
func Normalize(raw any) (core.Receipt, error) {
	v, ok := ValueOf(raw)
	if !ok || v.IsEmpty() {
		return core.Receipt{}, malformed("unsupported result type %T", raw)
	}

	switch DetectShape(v) {
	case ShapeNested:
		mraw, ok := v.Field("meta", nestedMetaIndex)
		if !ok {
			return core.Receipt{}, malformed("meta group missing")
		}
		meta, ok := ValueOf(mraw)
		if !ok || meta.IsEmpty() {
			return core.Receipt{}, malformed("meta group has type %T", mraw)
		}
		return decode(v, meta, nestedLayout)
	case ShapeFlat:
		return decode(v, v, flatLayout)
	default:
		return core.Receipt{}, malformed("unrecognized shape with %d positional and %d named fields", v.Len(), len(v.Named))
	}
}

// decode reads header fields from top and metadata fields from meta, which
// is top itself for the flat shape.
func decode(top, meta Value, l layout) (core.Receipt, error) {
	var (
		r   core.Receipt
		err error
	)
	if r.ID, err = uintField(top, "id", l.id); err != nil {
		return core.Receipt{}, err
	}
	if r.From, err = addressField(top, "from", l.from); err != nil {
		return core.Receipt{}, err
	}
	if r.To, err = addressField(top, "to", l.to); err != nil {
		return core.Receipt{}, err
	}

	r.Token = core.USDCAddress
	if x, ok := top.Field("token", l.token); ok {
		if r.Token, err = AsAddress(x); err != nil {
			return core.Receipt{}, malformed("token: %v", err)
		}
	}

	amount, ok := top.Field("amount", l.amount)
	if !ok {
		return core.Receipt{}, malformed("amount missing")
	}
	units, err := AsUint256(amount)
	if err != nil {
		return core.Receipt{}, malformed("amount: %v", err)
	}
	r.Amount = core.Money{Units: *units}

	if r.Timestamp, err = uintField(top, "timestamp", l.timestamp); err != nil {
		return core.Receipt{}, err
	}

	cat, err := uintField(meta, "category", l.category)
	if err != nil {
		return core.Receipt{}, err
	}
	if cat > 255 {
		return core.Receipt{}, malformed("category %d out of range", cat)
	}
	r.Category = core.Category(cat)

	for _, f := range []struct {
		name  string
		index int
		dst   *string
	}{
		{"reason", l.reason, &r.Reason},
		{"sourceCurrency", l.src, &r.SourceCurrency},
		{"destinationCurrency", l.dst, &r.DestinationCurrency},
		{"corridor", l.corridor, &r.Corridor},
	} {
		x, ok := meta.Field(f.name, f.index)
		if !ok {
			return core.Receipt{}, malformed("%s missing", f.name)
		}
		if *f.dst, err = AsString(x); err != nil {
			return core.Receipt{}, malformed("%s: %v", f.name, err)
		}
	}
	return r, nil
}

func uintField(v Value, name string, index int) (uint64, error) {
	x, ok := v.Field(name, index)
	if !ok {
		return 0, malformed("%s missing", name)
	}
	n, err := AsUint64(x)
	if err != nil {
		return 0, malformed("%s: %v", name, err)
	}
	return n, nil
}

func addressField(v Value, name string, index int) (common.Address, error) {
	x, ok := v.Field(name, index)
	if !ok {
		return common.Address{}, malformed("%s missing", name)
	}
	a, err := AsAddress(x)
	if err != nil {
		return common.Address{}, malformed("%s: %v", name, err)
	}
	return a, nil
}
