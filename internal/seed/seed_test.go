package seed_test

import (
	"testing"

	customerdomain "github.com/smallbiznis/antaeus/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/antaeus/internal/invoice/domain"
	"github.com/smallbiznis/antaeus/internal/seed"
	"github.com/smallbiznis/antaeus/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSeedsOnePendingInvoicePerCustomer(t *testing.T) {
	db := testutil.OpenSQLite(t)
	node := testutil.NewNode(t)

	stats, err := seed.Run(db, node, seed.Options{Customers: 4, InvoicesPerCustomer: 3, Seed: 7})
	require.NoError(t, err)
	assert.Equal(t, seed.Stats{Customers: 4, Invoices: 12}, stats)

	var pending int64
	require.NoError(t, db.Model(&invoicedomain.Invoice{}).
		Where("status = ?", invoicedomain.InvoiceStatusPending).
		Count(&pending).Error)
	assert.EqualValues(t, 4, pending)

	var mismatched int64
	require.NoError(t, db.Raw(
		`SELECT COUNT(*) FROM invoices i JOIN customers c ON c.id = i.customer_id
		 WHERE i.currency <> c.currency`,
	).Scan(&mismatched).Error)
	assert.Zero(t, mismatched)
}

func TestRunSkipsPopulatedDatabase(t *testing.T) {
	db := testutil.OpenSQLite(t)
	node := testutil.NewNode(t)

	_, err := seed.Run(db, node, seed.Options{Customers: 1, InvoicesPerCustomer: 1, Seed: 1})
	require.NoError(t, err)

	stats, err := seed.Run(db, node, seed.Options{Customers: 5, InvoicesPerCustomer: 5, Seed: 1})
	require.NoError(t, err)
	assert.True(t, stats.Skipped)

	var customers int64
	require.NoError(t, db.Model(&customerdomain.Customer{}).Count(&customers).Error)
	assert.EqualValues(t, 1, customers)
}

func TestRunRequiresHandles(t *testing.T) {
	_, err := seed.Run(nil, nil, seed.Options{Customers: 1, InvoicesPerCustomer: 1})
	assert.Error(t, err)
}
