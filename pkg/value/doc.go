// Package value implements the Flux wire value codec.
//
// Flux function arguments and results travel as JSON text, but the platform's
// value grammar is wider than what plain JSON can express unambiguously:
// 64-bit integers, non-finite floats, and raw byte strings. Those are carried
// as sentinel-wrapped objects:
//
//   - Int64 → {"$integer": base64(8-byte little-endian two's complement)}
//   - NaN/±Inf → {"$float": base64(8-byte little-endian IEEE-754 double)}
//   - Bytes → {"$bytes": base64(raw bytes)}
//
// Finite floats pass through as plain JSON numbers. Null is a first-class
// member of the grammar and is preserved at every nesting depth; the codec
// never drops a null list element or map entry.
//
// Encoding starts from the closed Value variant (Null, Bool, Int64, Float64,
// String, Bytes, List, Map). FromNative converts host-dynamic values into the
// variant; anything outside the grammar is rejected up front with
// ErrUnsupportedValue, and non-string map keys with ErrInvalidArgument.
//
// Decoding is deliberately narrower than encoding: only fields declared with
// the codec-aware types (Int64, Float64, Bytes) unwrap sentinel objects.
// A field declared as a plain Go numeric type decodes ordinary JSON numbers
// and cannot represent non-finite or out-of-double-precision values. Parse
// decodes wire text into a dynamic Value tree when no shape is declared.
package value
