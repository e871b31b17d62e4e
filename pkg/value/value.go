package value

import (
	"errors"
	"fmt"
	"sort"
)

// Codec errors.
var (
	// ErrUnsupportedValue indicates a host value outside the wire grammar.
	ErrUnsupportedValue = errors.New("unsupported value type")

	// ErrInvalidArgument indicates structurally invalid input, such as a map
	// with non-string keys.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrShapeMismatch indicates wire text that does not match the declared
	// shape, including malformed sentinel objects.
	ErrShapeMismatch = errors.New("wire shape mismatch")
)

// Value is the closed variant over the Flux wire value grammar.
// The concrete types are Null, Bool, Int64, Float64, String, Bytes,
// List and Map; nothing else implements it.
type Value interface {
	isValue()
}

// Null is the JSON null value. Unlike a nil interface it survives
// type switches, which keeps null handling explicit in decode paths.
type Null struct{}

// Bool is a boolean value.
type Bool bool

// Int64 is a 64-bit signed integer. On the wire it is always
// sentinel-wrapped; a plain JSON number never decodes into Int64.
type Int64 int64

// Float64 is a 64-bit IEEE-754 float. Finite values travel as plain JSON
// numbers, non-finite values as $float sentinels.
type Float64 float64

// String is a UTF-8 string value.
type String string

// Bytes is a raw byte string, sentinel-wrapped on the wire.
type Bytes []byte

// List is an ordered sequence of values. Nil elements encode as null.
type List []Value

// Map is a string-keyed collection of values. Nil entries encode as null.
type Map map[string]Value

func (Null) isValue()    {}
func (Bool) isValue()    {}
func (Int64) isValue()   {}
func (Float64) isValue() {}
func (String) isValue()  {}
func (Bytes) isValue()   {}
func (List) isValue()    {}
func (Map) isValue()     {}

// FromNative converts a host-dynamic value into the closed variant.
//
// Supported inputs: nil, bool, all Go integer types, float32/float64, string,
// []byte, []any, map[string]any, and anything already a Value. A uint64 above
// the int64 range fails with ErrUnsupportedValue; a map keyed by anything but
// strings fails with ErrInvalidArgument.
func FromNative(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int:
		return Int64(t), nil
	case int8:
		return Int64(t), nil
	case int16:
		return Int64(t), nil
	case int32:
		return Int64(t), nil
	case int64:
		return Int64(t), nil
	case uint:
		if uint64(t) > 1<<63-1 {
			return nil, fmt.Errorf("%w: uint %d overflows int64", ErrUnsupportedValue, t)
		}
		return Int64(t), nil
	case uint8:
		return Int64(t), nil
	case uint16:
		return Int64(t), nil
	case uint32:
		return Int64(t), nil
	case uint64:
		if t > 1<<63-1 {
			return nil, fmt.Errorf("%w: uint64 %d overflows int64", ErrUnsupportedValue, t)
		}
		return Int64(t), nil
	case float32:
		return Float64(t), nil
	case float64:
		return Float64(t), nil
	case string:
		return String(t), nil
	case []byte:
		return Bytes(t), nil
	case []any:
		list := make(List, len(t))
		for i, elem := range t {
			ev, err := FromNative(elem)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = ev
		}
		return list, nil
	case map[string]any:
		m := make(Map, len(t))
		for k, elem := range t {
			ev, err := FromNative(elem)
			if err != nil {
				return nil, fmt.Errorf("map key %q: %w", k, err)
			}
			m[k] = ev
		}
		return m, nil
	case map[any]any:
		m := make(Map, len(t))
		for k, elem := range t {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("%w: map key %v is not a string", ErrInvalidArgument, k)
			}
			ev, err := FromNative(elem)
			if err != nil {
				return nil, fmt.Errorf("map key %q: %w", ks, err)
			}
			m[ks] = ev
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// Native converts a Value back into a host-dynamic representation:
// nil, bool, int64, float64, string, []byte, []any or map[string]any.
func Native(v Value) any {
	switch t := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(t)
	case Int64:
		return int64(t)
	case Float64:
		return float64(t)
	case String:
		return string(t)
	case Bytes:
		return []byte(t)
	case List:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = Native(elem)
		}
		return out
	case Map:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			out[k] = Native(elem)
		}
		return out
	default:
		return nil
	}
}

// Equal reports whether two values encode to identical wire text.
// This is the same identity the subscription Call Key uses.
func Equal(a, b Value) bool {
	ta, errA := Encode(a)
	tb, errB := Encode(b)
	if errA != nil || errB != nil {
		return false
	}
	return ta == tb
}

// Keys returns the sorted keys of a Map.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
