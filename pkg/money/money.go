package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

type Currency string

const (
	EUR Currency = "EUR"
	USD Currency = "USD"
	DKK Currency = "DKK"
	SEK Currency = "SEK"
	GBP Currency = "GBP"
)

var supported = map[Currency]struct{}{
	EUR: {},
	USD: {},
	DKK: {},
	SEK: {},
	GBP: {},
}

var (
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrNegativeAmount  = errors.New("negative_amount")
)

// Currencies lists every supported currency in a stable order.
func Currencies() []Currency {
	return []Currency{EUR, USD, DKK, SEK, GBP}
}

func ParseCurrency(raw string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := supported[c]; !ok {
		return "", ErrInvalidCurrency
	}
	return c, nil
}

func (c Currency) String() string {
	return string(c)
}

// Money is an exact decimal amount in a single currency.
type Money struct {
	Value    decimal.Decimal `json:"value"`
	Currency Currency        `json:"currency"`
}

func New(value decimal.Decimal, currency Currency) (Money, error) {
	if value.IsNegative() {
		return Money{}, ErrNegativeAmount
	}
	if _, ok := supported[currency]; !ok {
		return Money{}, ErrInvalidCurrency
	}
	return Money{Value: value.Round(2), Currency: currency}, nil
}

// SameCurrency reports whether m is denominated in c.
func (m Money) SameCurrency(c Currency) bool {
	return m.Currency == c
}

func (m Money) String() string {
	return m.Value.StringFixed(2) + " " + string(m.Currency)
}
