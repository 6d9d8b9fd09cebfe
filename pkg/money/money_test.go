package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency(" eur ")
	require.NoError(t, err)
	assert.Equal(t, EUR, c)

	_, err = ParseCurrency("JPY")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestNewRoundsToCents(t *testing.T) {
	m, err := New(decimal.RequireFromString("10.005"), USD)
	require.NoError(t, err)
	assert.Equal(t, "10.01 USD", m.String())
	assert.True(t, m.SameCurrency(USD))
	assert.False(t, m.SameCurrency(EUR))
}

func TestNewRejectsInvalidInput(t *testing.T) {
	_, err := New(decimal.NewFromInt(-1), USD)
	assert.ErrorIs(t, err, ErrNegativeAmount)

	_, err = New(decimal.NewFromInt(1), Currency("XXX"))
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}
