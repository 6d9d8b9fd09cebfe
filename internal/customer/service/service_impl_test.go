package service

import (
	"context"
	"testing"

	"github.com/smallbiznis/antaeus/internal/customer/domain"
	"github.com/smallbiznis/antaeus/internal/customer/repository"
	"github.com/smallbiznis/antaeus/internal/testutil"
	"github.com/smallbiznis/antaeus/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()
	return New(Params{
		DB:    testutil.OpenSQLite(t),
		Log:   zap.NewNop(),
		GenID: testutil.NewNode(t),
		Repo:  repository.Provide(),
	})
}

func TestCreateAndGet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateCustomerRequest{Currency: "dkk"})
	require.NoError(t, err)
	assert.Equal(t, money.DKK, created.Currency)

	got, err := svc.GetByID(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, money.DKK, got.Currency)
}

func TestCreateRejectsUnknownCurrency(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Create(context.Background(), domain.CreateCustomerRequest{Currency: "XYZ"})
	assert.ErrorIs(t, err, domain.ErrInvalidCurrency)
}

func TestGetByID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetByID(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = svc.GetByID(ctx, "123456789")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListByCurrency(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	for _, currency := range []string{"EUR", "USD", "EUR"} {
		_, err := svc.Create(ctx, domain.CreateCustomerRequest{Currency: currency})
		require.NoError(t, err)
	}

	resp, err := svc.List(ctx, domain.ListCustomerRequest{Currency: "EUR"})
	require.NoError(t, err)
	assert.Len(t, resp.Customers, 2)
	assert.False(t, resp.HasMore)
	assert.Less(t, int64(resp.Customers[0].ID), int64(resp.Customers[1].ID))

	_, err = svc.List(ctx, domain.ListCustomerRequest{Currency: "??"})
	assert.ErrorIs(t, err, domain.ErrInvalidCurrency)
}
