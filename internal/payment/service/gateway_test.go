package service

import (
	"context"
	"errors"
	"testing"

	invoicedomain "github.com/smallbiznis/antaeus/internal/invoice/domain"
	"github.com/smallbiznis/antaeus/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInstrumentPassesThrough(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	calls := 0
	gateway := Instrument(domain.GatewayFunc(func(context.Context, invoicedomain.Invoice) (bool, error) {
		calls++
		return false, errors.Join(domain.ErrNetwork, errors.New("reset"))
	}), "mock", zap.New(core), nil)

	ok, err := gateway.Charge(context.Background(), invoicedomain.Invoice{ID: 1})
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.Equal(t, 1, calls)

	entries := logs.FilterMessage("payment.charge.failed").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "network_error", entries[0].ContextMap()["reason"])
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		ok         bool
		err        error
		wantResult string
		wantReason string
	}{
		{ok: true, wantResult: "charged"},
		{ok: false, wantResult: "declined", wantReason: "insufficient_funds"},
		{err: domain.ErrCustomerNotFound, wantResult: "failed", wantReason: "customer_not_found"},
		{err: domain.ErrCurrencyMismatch, wantResult: "failed", wantReason: "currency_mismatch"},
		{err: context.DeadlineExceeded, wantResult: "failed", wantReason: "timeout"},
		{err: errors.New("boom"), wantResult: "failed", wantReason: "unknown"},
	}
	for _, tc := range cases {
		result, reason := classify(tc.ok, tc.err)
		assert.Equal(t, tc.wantResult, result)
		assert.Equal(t, tc.wantReason, reason)
	}
}
