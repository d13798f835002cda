package main

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountToCents(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"12.99", 1299},
		{"4.35", 435},
		{"8.29", 829},
		{"0.01", 1},
		{"20", 2000},
		{"1499.00", 149900},
	}

	for _, tt := range tests {
		amount, err := strconv.ParseFloat(tt.input, 64)
		require.NoError(t, err)
		assert.Equal(t, tt.want, amountToCents(amount), "amount %q", tt.input)
	}
}

func TestFormatCents(t *testing.T) {
	cents := int64(1299)
	assert.Equal(t, "$12.99", formatCents(&cents, "USD"))

	inr := int64(149900)
	assert.Equal(t, "₹1499.00", formatCents(&inr, "INR"))

	assert.Equal(t, "-", formatCents(nil, "USD"))
}
