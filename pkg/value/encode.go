package value

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math"
)

// Sentinel object keys. A sentinel is a single-key JSON object carrying a
// base64 payload for a value plain JSON cannot represent precisely.
const (
	sentinelInteger = "$integer"
	sentinelFloat   = "$float"
	sentinelBytes   = "$bytes"
)

// Encode encodes a Value to canonical wire text. Map keys are emitted in
// sorted order, so two values that are Equal produce identical text.
func Encode(v Value) (string, error) {
	if v == nil {
		return "null", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// EncodeNative converts a host-dynamic value and encodes it in one step.
func EncodeNative(v any) (string, error) {
	val, err := FromNative(v)
	if err != nil {
		return "", err
	}
	return Encode(val)
}

// EncodeArgs encodes a function argument map into per-argument wire text,
// the form the call boundary consumes.
func EncodeArgs(args map[string]any) (map[string]string, error) {
	encoded := make(map[string]string, len(args))
	for k, v := range args {
		text, err := EncodeNative(v)
		if err != nil {
			return nil, err
		}
		encoded[k] = text
	}
	return encoded, nil
}

// CanonicalArgs encodes an argument map as a single canonical JSON object.
// Argument maps that differ only in construction order or input object
// identity produce identical text; this is the subscription Call Key input.
func CanonicalArgs(args map[string]any) (string, error) {
	m := make(Map, len(args))
	for k, v := range args {
		val, err := FromNative(v)
		if err != nil {
			return "", err
		}
		m[k] = val
	}
	return Encode(m)
}

// MarshalJSON encodes null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// MarshalJSON encodes a boolean literal.
func (b Bool) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(b))
}

// MarshalJSON encodes the $integer sentinel. The payload is the 8-byte
// little-endian two's-complement representation, base64-encoded, so the
// full int64 range round-trips bit-exact.
func (i Int64) MarshalJSON() ([]byte, error) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(i))
	return json.Marshal(map[string]string{
		sentinelInteger: base64.StdEncoding.EncodeToString(buf[:]),
	})
}

// MarshalJSON encodes a finite float as a plain JSON number and a non-finite
// float (NaN, ±Inf) as a $float sentinel over the little-endian IEEE-754 bits.
func (f Float64) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if !math.IsNaN(v) && !math.IsInf(v, 0) {
		return json.Marshal(v)
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	return json.Marshal(map[string]string{
		sentinelFloat: base64.StdEncoding.EncodeToString(buf[:]),
	})
}

// MarshalJSON encodes a string literal.
func (s String) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// MarshalJSON encodes the $bytes sentinel.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		sentinelBytes: base64.StdEncoding.EncodeToString(b),
	})
}

// MarshalJSON encodes a JSON array. Nil elements encode as null.
func (l List) MarshalJSON() ([]byte, error) {
	return json.Marshal([]Value(l))
}

// MarshalJSON encodes a JSON object with sorted keys. Nil entries encode
// as null; entries are never dropped.
func (m Map) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]Value(m))
}
