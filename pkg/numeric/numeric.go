// Package numeric provides the decimal-string arithmetic and
// field-extraction helpers venue adapters rely on.
//
// Venue responses carry prices and amounts as JSON strings or numbers
// with venue-specific precision. Derived values (cost = price*amount,
// fees, margin ratios) must not pick up binary floating point drift on
// the way through, so all intermediate arithmetic happens on decimal
// strings backed by shopspring/decimal; only the final exposed
// convenience value is converted to float64.
package numeric

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// millisecondThreshold separates second-resolution epoch values from
// millisecond ones. Anything below 10^12 is taken as seconds: that
// boundary is November 2001 in milliseconds and the year 33658 in
// seconds, so real-world timestamps never straddle it.
const millisecondThreshold = 1_000_000_000_000

// dec parses tolerantly: absent or malformed operands count as zero
// rather than panicking, mirroring the absent-field contract of the
// response normalizers.
func dec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Add returns a+b as a decimal string.
func Add(a, b string) string {
	return dec(a).Add(dec(b)).String()
}

// Sub returns a-b as a decimal string.
func Sub(a, b string) string {
	return dec(a).Sub(dec(b)).String()
}

// Mul returns a*b as a decimal string, exact to the full number of
// decimal places of both operands.
func Mul(a, b string) string {
	return dec(a).Mul(dec(b)).String()
}

// Div returns a/b as a decimal string, or "0" when b is zero. Division
// cannot always be exact; the quotient is carried at shopspring's
// default precision (16 fractional digits) with trailing zeros
// trimmed.
func Div(a, b string) string {
	d := dec(b)
	if d.IsZero() {
		return "0"
	}
	return dec(a).Div(d).String()
}

// Cmp compares two decimal strings: -1 if a<b, 0 if equal, 1 if a>b.
func Cmp(a, b string) int {
	return dec(a).Cmp(dec(b))
}

// Round rounds a decimal string to the given number of decimal places,
// half away from zero, matching how venues quantize order prices.
func Round(a string, places int) string {
	return dec(a).Round(int32(places)).String()
}

// Shift moves the decimal point of a by places positions to the right
// (negative places move it left). Used when converting between human
// units and chain integer units.
func Shift(a string, places int) string {
	return dec(a).Shift(int32(places)).String()
}

// ToScaledInt64 converts a human-unit decimal string to an integer in
// 10^-decimals units, truncating any precision beyond the scale.
func ToScaledInt64(a string, decimals int) int64 {
	return dec(a).Shift(int32(decimals)).IntPart()
}

// FromScaledInt64 renders an integer in 10^-decimals units back to a
// human-unit decimal string.
func FromScaledInt64(v int64, decimals int) string {
	return decimal.New(v, int32(-decimals)).String()
}

// ToFloat converts a decimal string to float64 for final exposure in
// the unified schema. Empty input yields zero.
func ToFloat(a string) float64 {
	if a == "" {
		return 0
	}
	f, err := strconv.ParseFloat(a, 64)
	if err != nil {
		return 0
	}
	return f
}

// FromFloat renders a float as a decimal string without exponent
// notation.
func FromFloat(f float64) string {
	return decimal.NewFromFloat(f).String()
}

// NormalizeTimestamp corrects the seconds-vs-milliseconds ambiguity of
// venue timestamps. Values below 10^12 are treated as seconds and
// multiplied by 1000; millisecond values pass through unchanged, so
// the function is idempotent.
func NormalizeTimestamp(ts int64) int64 {
	if ts > 0 && ts < millisecondThreshold {
		return ts * 1000
	}
	return ts
}

// SafeString extracts a string field from a decoded JSON object.
// Numbers are rendered back to their decimal form; absent or
// mistyped fields yield "".
func SafeString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return decimal.NewFromFloat(t).String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// SafeFloat extracts a numeric field, accepting either JSON numbers or
// numeric strings. Absent or unparsable fields yield 0.
func SafeFloat(m map[string]any, key string) float64 {
	v, ok := m[key]
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// SafeInt64 extracts an integer field, accepting JSON numbers or
// numeric strings. Absent or unparsable fields yield 0.
func SafeInt64(m map[string]any, key string) int64 {
	v, ok := m[key]
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(t, 64)
			if ferr != nil {
				return 0
			}
			return int64(f)
		}
		return n
	default:
		return 0
	}
}

// SafeTimestamp extracts an epoch field and normalizes it to
// milliseconds.
func SafeTimestamp(m map[string]any, key string) int64 {
	return NormalizeTimestamp(SafeInt64(m, key))
}

// SafeValue extracts a nested object; absent fields yield nil.
func SafeValue(m map[string]any, key string) map[string]any {
	v, ok := m[key]
	if !ok {
		return nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return obj
}
