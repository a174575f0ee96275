package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultStockRule(t *testing.T) {
	rule := DefaultStockRule()

	tests := []struct {
		name      string
		available float64
		required  float64
		want      bool
	}{
		{"well below buffer", 11.9, 10, true},
		{"exactly at buffer", 12, 10, false},
		{"above buffer", 40, 10, false},
		{"zero requirement", 5, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			low, err := rule.IsLowStock(tt.available, tt.required)
			require.NoError(t, err)
			assert.Equal(t, tt.want, low)
		})
	}
}

func TestNewStockRule_CustomExpression(t *testing.T) {
	rule, err := NewStockRule("available - required < 5.0")
	require.NoError(t, err)
	assert.Equal(t, "available - required < 5.0", rule.Expr())

	low, err := rule.IsLowStock(12, 10)
	require.NoError(t, err)
	assert.True(t, low)

	low, err = rule.IsLowStock(20, 10)
	require.NoError(t, err)
	assert.False(t, low)
}

func TestNewStockRule_RejectsInvalidExpressions(t *testing.T) {
	_, err := NewStockRule("available <")
	assert.Error(t, err)

	// Unknown variables fail at compile time, not at evaluation.
	_, err = NewStockRule("reorder_point > available")
	assert.Error(t, err)

	// A non-boolean result is rejected up front.
	_, err = NewStockRule("available * 2.0")
	assert.Error(t, err)
}
