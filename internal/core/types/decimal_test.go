package types

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantity_Constructors(t *testing.T) {
	assert.Equal(t, Quantity(50_000), NewQuantityFromInt(5))
	assert.Equal(t, Quantity(25_000), NewQuantityFromFloat64(2.5))
	assert.Equal(t, Quantity(1), NewQuantityFromInt64Scaled(1))

	// Decimal conversion rounds half away from zero at the 4th place.
	assert.Equal(t, Quantity(1), NewQuantityFromDecimal(decimal.RequireFromString("0.00005")))
	assert.Equal(t, Quantity(-1), NewQuantityFromDecimal(decimal.RequireFromString("-0.00005")))
}

func TestQuantity_String(t *testing.T) {
	tests := []struct {
		q    Quantity
		want string
	}{
		{NewQuantityFromInt(5), "5.0000"},
		{NewQuantityFromFloat64(2.5), "2.5000"},
		{NewQuantityFromFloat64(-0.75), "-0.7500"},
		{0, "0.0000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.q.String())
	}
}

func TestQuantity_JSON(t *testing.T) {
	type payload struct {
		Qty Quantity `json:"qty"`
	}

	data, err := json.Marshal(payload{Qty: NewQuantityFromFloat64(2.5)})
	require.NoError(t, err)
	assert.Equal(t, `{"qty":2.5000}`, string(data))

	tests := []struct {
		in   string
		want Quantity
	}{
		{`{"qty":7}`, NewQuantityFromInt(7)},
		{`{"qty":2.5}`, NewQuantityFromFloat64(2.5)},
		{`{"qty":"3.25"}`, NewQuantityFromFloat64(3.25)},
		{`{"qty":"-1.5"}`, NewQuantityFromFloat64(-1.5)},
		{`{"qty":null}`, 0},
		// Extra fractional digits are truncated to the fixed scale.
		{`{"qty":"1.00009"}`, Quantity(10_000)},
	}
	for _, tt := range tests {
		var p payload
		require.NoError(t, json.Unmarshal([]byte(tt.in), &p), tt.in)
		assert.Equal(t, tt.want, p.Qty, tt.in)
	}

	var p payload
	assert.Error(t, json.Unmarshal([]byte(`{"qty":"abc"}`), &p))
}

func TestQuantity_Arithmetic(t *testing.T) {
	q := NewQuantityFromFloat64(3.5)

	assert.True(t, q.IsPositive())
	assert.True(t, q.Neg().IsNegative())
	assert.Equal(t, q, q.Neg().Abs())
	assert.Equal(t, NewQuantityFromInt(2), q.Min(NewQuantityFromInt(2)))
	assert.Equal(t, q, q.Min(NewQuantityFromInt(4)))
	assert.InEpsilon(t, 3.5, q.Float64(), 1e-9)
	assert.True(t, q.Decimal().Equal(decimal.RequireFromString("3.5")))
}
