package chain

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Value is a decoded contract result. A field can be present by name, by
// position, or both; Field prefers the name.
type Value struct {
	Named      map[string]any
	Positional []any
}

// Tuple builds a positional-only Value.
func Tuple(fields ...any) Value {
	return Value{Positional: fields}
}

// Record builds a named-only Value.
func Record(fields map[string]any) Value {
	return Value{Named: fields}
}

// Field resolves name first and falls back to index. A negative index
// disables the positional fallback.
func (v Value) Field(name string, index int) (any, bool) {
	if x, ok := v.Named[name]; ok && x != nil {
		return x, true
	}
	if index >= 0 && index < len(v.Positional) && v.Positional[index] != nil {
		return v.Positional[index], true
	}
	return nil, false
}

// Has reports whether name is present as a named field.
func (v Value) Has(name string) bool {
	x, ok := v.Named[name]
	return ok && x != nil
}

// Len is the number of positional fields.
func (v Value) Len() int { return len(v.Positional) }

// IsEmpty reports a Value with neither named nor positional fields.
func (v Value) IsEmpty() bool { return len(v.Named) == 0 && len(v.Positional) == 0 }

// ValueOf converts a decoded group into a Value. It accepts a Value, a
// map[string]any, a slice or array, or a struct. Struct fields are named by
// their json tag (as go-ethereum's ABI decoder emits them) or, failing that,
// by the field name with a lower-case first letter, and are positional in
// declaration order.
func ValueOf(x any) (Value, bool) {
	switch t := x.(type) {
	case nil:
		return Value{}, false
	case Value:
		return t, true
	case *Value:
		if t == nil {
			return Value{}, false
		}
		return *t, true
	case map[string]any:
		return Value{Named: t}, true
	case []any:
		return Value{Positional: t}, true
	}

	rv := reflect.ValueOf(x)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return Value{}, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		rt := rv.Type()
		out := Value{Named: make(map[string]any, rt.NumField())}
		for i := 0; i < rt.NumField(); i++ {
			f := rt.Field(i)
			if !f.IsExported() {
				continue
			}
			fv := rv.Field(i).Interface()
			out.Named[fieldName(f)] = fv
			out.Positional = append(out.Positional, fv)
		}
		return out, true
	case reflect.Slice, reflect.Array:
		// byte slices are scalars (bytes, hashes), not groups
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return Value{}, false
		}
		out := Value{Positional: make([]any, rv.Len())}
		for i := range out.Positional {
			out.Positional[i] = rv.Index(i).Interface()
		}
		return out, true
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, false
		}
		out := Value{Named: make(map[string]any, rv.Len())}
		iter := rv.MapRange()
		for iter.Next() {
			out.Named[iter.Key().String()] = iter.Value().Interface()
		}
		return out, true
	}
	return Value{}, false
}

func fieldName(f reflect.StructField) string {
	if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag != "" && tag != "-" {
		return tag
	}
	return strings.ToLower(f.Name[:1]) + f.Name[1:]
}

// AsUint256 converts an unsigned integer in any of the representations RPC
// decoders produce.
func AsUint256(x any) (*uint256.Int, error) {
	switch t := x.(type) {
	case *uint256.Int:
		if t == nil {
			return nil, fmt.Errorf("nil integer")
		}
		return new(uint256.Int).Set(t), nil
	case uint256.Int:
		return new(uint256.Int).Set(&t), nil
	case *big.Int:
		if t == nil {
			return nil, fmt.Errorf("nil integer")
		}
		return fromBig(t)
	case big.Int:
		return fromBig(&t)
	case uint8:
		return uint256.NewInt(uint64(t)), nil
	case uint16:
		return uint256.NewInt(uint64(t)), nil
	case uint32:
		return uint256.NewInt(uint64(t)), nil
	case uint64:
		return uint256.NewInt(t), nil
	case uint:
		return uint256.NewInt(uint64(t)), nil
	case int:
		if t < 0 {
			return nil, fmt.Errorf("negative integer %d", t)
		}
		return uint256.NewInt(uint64(t)), nil
	case int64:
		if t < 0 {
			return nil, fmt.Errorf("negative integer %d", t)
		}
		return uint256.NewInt(uint64(t)), nil
	case float64:
		// JSON-decoded numbers; only exact non-negative integers are accepted
		if t < 0 || t != float64(uint64(t)) {
			return nil, fmt.Errorf("non-integer number %v", t)
		}
		return uint256.NewInt(uint64(t)), nil
	case string:
		s := strings.TrimSpace(t)
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			return uint256.FromHex(s)
		}
		return uint256.FromDecimal(s)
	default:
		return nil, fmt.Errorf("unsupported integer type %T", x)
	}
}

func fromBig(b *big.Int) (*uint256.Int, error) {
	if b.Sign() < 0 {
		return nil, fmt.Errorf("negative integer %s", b)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("integer %s exceeds 256 bits", b)
	}
	return v, nil
}

// AsUint64 converts like AsUint256 and rejects values above 2^64-1.
func AsUint64(x any) (uint64, error) {
	v, err := AsUint256(x)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("integer %s exceeds 64 bits", v.Dec())
	}
	return v.Uint64(), nil
}

// AsAddress converts a common.Address or a 0x-prefixed hex string.
func AsAddress(x any) (common.Address, error) {
	switch t := x.(type) {
	case common.Address:
		return t, nil
	case *common.Address:
		if t == nil {
			return common.Address{}, fmt.Errorf("nil address")
		}
		return *t, nil
	case string:
		if !common.IsHexAddress(t) {
			return common.Address{}, fmt.Errorf("invalid address %q", t)
		}
		return common.HexToAddress(t), nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", x)
	}
}

// AsString accepts only strings; byte payloads are not text.
func AsString(x any) (string, error) {
	s, ok := x.(string)
	if !ok {
		return "", fmt.Errorf("unsupported string type %T", x)
	}
	return s, nil
}
