package value

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

// Decode decodes wire text into a caller-declared shape. Fields declared
// with the codec-aware types (Int64, Float64, Bytes) unwrap sentinel
// objects; plain Go numeric fields decode ordinary JSON numbers only.
// Any mismatch between the declared shape and the wire text fails with
// ErrShapeMismatch.
func Decode(wire string, out any) error {
	if err := json.Unmarshal([]byte(wire), out); err != nil {
		return fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	return nil
}

// Parse decodes wire text into a dynamic Value tree, unwrapping sentinel
// objects as it goes. Plain JSON numbers become Float64: the platform
// sentinel-wraps every integer, so a bare number on the wire is always a
// finite double.
func Parse(wire string) (Value, error) {
	if !gjson.Valid(wire) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrShapeMismatch)
	}
	return parseResult(gjson.Parse(wire))
}

func parseResult(r gjson.Result) (Value, error) {
	switch r.Type {
	case gjson.Null:
		return Null{}, nil
	case gjson.True:
		return Bool(true), nil
	case gjson.False:
		return Bool(false), nil
	case gjson.Number:
		return Float64(r.Num), nil
	case gjson.String:
		return String(r.Str), nil
	}

	if r.IsArray() {
		var (
			list List
			err  error
		)
		r.ForEach(func(_, elem gjson.Result) bool {
			var v Value
			v, err = parseResult(elem)
			if err != nil {
				return false
			}
			list = append(list, v)
			return true
		})
		if err != nil {
			return nil, err
		}
		if list == nil {
			list = List{}
		}
		return list, nil
	}

	if r.IsObject() {
		if v, ok, err := parseSentinel(r); ok || err != nil {
			return v, err
		}
		m := Map{}
		var err error
		r.ForEach(func(key, elem gjson.Result) bool {
			var v Value
			v, err = parseResult(elem)
			if err != nil {
				return false
			}
			m[key.Str] = v
			return true
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	}

	return nil, fmt.Errorf("%w: unrecognized wire value %q", ErrShapeMismatch, r.Raw)
}

// parseSentinel unwraps a sentinel object. Objects whose keys start with "$"
// are reserved by the wire format: a well-formed sentinel decodes to its
// value, a malformed one is a shape mismatch, and an object mixing "$" keys
// with anything else is malformed by definition.
func parseSentinel(r gjson.Result) (Value, bool, error) {
	var (
		keys     []string
		values   []gjson.Result
		reserved bool
	)
	r.ForEach(func(key, elem gjson.Result) bool {
		keys = append(keys, key.Str)
		values = append(values, elem)
		if strings.HasPrefix(key.Str, "$") {
			reserved = true
		}
		return true
	})
	if !reserved {
		return nil, false, nil
	}
	if len(keys) != 1 {
		return nil, true, fmt.Errorf("%w: sentinel object has %d keys", ErrShapeMismatch, len(keys))
	}
	if values[0].Type != gjson.String {
		return nil, true, fmt.Errorf("%w: sentinel %s payload is not a string", ErrShapeMismatch, keys[0])
	}
	payload := values[0].Str

	switch keys[0] {
	case sentinelInteger:
		n, err := decodeInt64Payload(payload)
		if err != nil {
			return nil, true, err
		}
		return Int64(n), true, nil
	case sentinelFloat:
		f, err := decodeFloat64Payload(payload)
		if err != nil {
			return nil, true, err
		}
		return Float64(f), true, nil
	case sentinelBytes:
		raw, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, true, fmt.Errorf("%w: $bytes payload: %v", ErrShapeMismatch, err)
		}
		return Bytes(raw), true, nil
	default:
		return nil, true, fmt.Errorf("%w: unknown sentinel key %q", ErrShapeMismatch, keys[0])
	}
}

// decodeInt64Payload decodes a base64 8-byte little-endian integer payload.
func decodeInt64Payload(payload string) (int64, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: $integer payload: %v", ErrShapeMismatch, err)
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("%w: $integer payload is %d bytes, want 8", ErrShapeMismatch, len(raw))
	}
	return int64(binary.LittleEndian.Uint64(raw)), nil
}

// decodeFloat64Payload decodes a base64 8-byte little-endian IEEE-754 payload.
func decodeFloat64Payload(payload string) (float64, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: $float payload: %v", ErrShapeMismatch, err)
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("%w: $float payload is %d bytes, want 8", ErrShapeMismatch, len(raw))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(raw)), nil
}

// UnmarshalJSON decodes a $integer sentinel. Plain JSON numbers are
// rejected: an Int64 on the wire is always sentinel-wrapped, and accepting
// a double-precision number here would silently lose the extra range.
func (i *Int64) UnmarshalJSON(data []byte) error {
	payload, err := sentinelPayload(data, sentinelInteger)
	if err != nil {
		return err
	}
	n, err := decodeInt64Payload(payload)
	if err != nil {
		return err
	}
	*i = Int64(n)
	return nil
}

// UnmarshalJSON decodes either a plain JSON number or a $float sentinel.
func (f *Float64) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "{") {
		var v float64
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("%w: %v", ErrShapeMismatch, err)
		}
		*f = Float64(v)
		return nil
	}
	payload, err := sentinelPayload(data, sentinelFloat)
	if err != nil {
		return err
	}
	v, err := decodeFloat64Payload(payload)
	if err != nil {
		return err
	}
	*f = Float64(v)
	return nil
}

// UnmarshalJSON decodes a $bytes sentinel.
func (b *Bytes) UnmarshalJSON(data []byte) error {
	payload, err := sentinelPayload(data, sentinelBytes)
	if err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("%w: $bytes payload: %v", ErrShapeMismatch, err)
	}
	*b = raw
	return nil
}

// sentinelPayload extracts the payload of a single-key sentinel object.
func sentinelPayload(data []byte, key string) (string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("%w: expected %s sentinel: %v", ErrShapeMismatch, key, err)
	}
	if len(obj) != 1 {
		return "", fmt.Errorf("%w: sentinel object has %d keys, want 1", ErrShapeMismatch, len(obj))
	}
	raw, ok := obj[key]
	if !ok {
		return "", fmt.Errorf("%w: expected %s sentinel", ErrShapeMismatch, key)
	}
	var payload string
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("%w: %s payload is not a string", ErrShapeMismatch, key)
	}
	return payload, nil
}
