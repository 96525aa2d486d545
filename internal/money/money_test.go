package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound2HalfAwayFromZero(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.005", "1.01"},
		{"-1.005", "-1.01"},
		{"64.504", "64.5"},
		{"0.125", "0.13"},
		{"100", "100"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Round2(decimal.RequireFromString(tt.in))
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParse(t *testing.T) {
	d, err := Parse("35.50")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("35.5")))

	_, err = Parse("1.234")
	assert.Error(t, err)

	_, err = Parse("abc")
	assert.Error(t, err)
}

func TestPaise(t *testing.T) {
	assert.Equal(t, int64(3550), Paise(decimal.RequireFromString("35.5")))
	assert.Equal(t, int64(101), Paise(decimal.RequireFromString("1.005")))
}
