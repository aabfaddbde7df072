package numeric

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecimalArithmetic(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"mul keeps full precision", Mul("40767.18", "0.0003"), "12.230154"},
		{"add", Add("0.1", "0.2"), "0.3"},
		{"sub below zero", Sub("1.5", "2"), "-0.5"},
		{"mul by zero", Mul("123.456", "0"), "0"},
		{"div exact", Div("12.230154", "0.0003"), "40767.18"},
		{"div by zero yields zero", Div("1", "0"), "0"},
		{"empty operand counts as zero", Add("", "5"), "5"},
		{"malformed operand counts as zero", Mul("abc", "5"), "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestCmp(t *testing.T) {
	assert.Equal(t, -1, Cmp("1.0", "1.1"))
	assert.Equal(t, 0, Cmp("1.10", "1.1"))
	assert.Equal(t, 1, Cmp("2", "1.999999999999"))
}

func TestRound(t *testing.T) {
	assert.Equal(t, "40491.6", Round("40491.649", 1))
	assert.Equal(t, "40491.7", Round("40491.65", 1))
	assert.Equal(t, "12", Round("12.4", 0))
}

func TestShift(t *testing.T) {
	assert.Equal(t, "1230000000", Shift("12.3", 8))
	assert.Equal(t, "0.000000123", Shift("12.3", -8))
}

func TestScaledInt64RoundTrip(t *testing.T) {
	assert.Equal(t, int64(123000000), ToScaledInt64("1.23", 8))
	assert.Equal(t, "1.23", FromScaledInt64(123000000, 8))
	// Precision beyond the scale truncates.
	assert.Equal(t, int64(12), ToScaledInt64("0.129", 2))
}

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   int64
		want int64
	}{
		{"seconds scale up", 1684431755, 1684431755000},
		{"milliseconds pass through", 1684431755045, 1684431755045},
		{"idempotent", NormalizeTimestamp(1684431755), 1684431755000},
		{"zero stays zero", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTimestamp(tt.in))
		})
	}
}

func TestSafeExtraction(t *testing.T) {
	row := map[string]any{
		"price":  "40491.6",
		"qty":    12.5,
		"ts":     float64(1647569486224),
		"nested": map[string]any{"high": "41468.8"},
		"null":   nil,
	}

	assert.Equal(t, "40491.6", SafeString(row, "price"))
	assert.Equal(t, "12.5", SafeString(row, "qty"))
	assert.Equal(t, "", SafeString(row, "missing"))
	assert.Equal(t, "", SafeString(row, "null"))

	assert.Equal(t, 12.5, SafeFloat(row, "qty"))
	assert.Equal(t, 40491.6, SafeFloat(row, "price"))
	assert.Equal(t, float64(0), SafeFloat(row, "missing"))

	assert.Equal(t, int64(1647569486224), SafeInt64(row, "ts"))
	assert.Equal(t, int64(1647569486224), SafeTimestamp(row, "ts"))

	nested := SafeValue(row, "nested")
	assert.Equal(t, "41468.8", SafeString(nested, "high"))
	assert.Nil(t, SafeValue(row, "missing"))
	assert.Nil(t, SafeValue(row, "price"))
}

func TestFloatConversions(t *testing.T) {
	assert.Equal(t, 12.230154, ToFloat("12.230154"))
	assert.Equal(t, float64(0), ToFloat(""))
	assert.Equal(t, float64(0), ToFloat("not a number"))
	assert.Equal(t, "12.23", FromFloat(12.23))
}
