package seed

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	customerdomain "github.com/smallbiznis/antaeus/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/antaeus/internal/invoice/domain"
	"github.com/smallbiznis/antaeus/pkg/db"
	"github.com/smallbiznis/antaeus/pkg/money"
	"gorm.io/gorm"
)

const batchSize = 500

type Options struct {
	Customers           int
	InvoicesPerCustomer int
	// Seed makes the generated data reproducible when non-zero.
	Seed uint64
}

type Stats struct {
	Customers int
	Invoices  int
	Skipped   bool
}

// Run fills an empty database with customers and invoices. Each customer gets
// InvoicesPerCustomer invoices in its own currency: all PAID except the last,
// which stays PENDING for the next billing pass. A database that already has
// customers is left untouched.
func Run(conn *gorm.DB, genID *snowflake.Node, opts Options) (Stats, error) {
	if conn == nil {
		return Stats{}, errors.New("seed database handle is required")
	}
	if genID == nil {
		return Stats{}, errors.New("seed id generator is required")
	}
	if opts.Customers <= 0 || opts.InvoicesPerCustomer <= 0 {
		return Stats{Skipped: true}, nil
	}

	ctx := context.Background()
	var existing int64
	if err := conn.WithContext(ctx).Model(&customerdomain.Customer{}).Count(&existing).Error; err != nil {
		return Stats{}, err
	}
	if existing > 0 {
		return Stats{Skipped: true}, nil
	}

	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed>>1))
	currencies := money.Currencies()
	now := time.Now().UTC()

	customers := make([]customerdomain.Customer, 0, opts.Customers)
	invoices := make([]invoicedomain.Invoice, 0, opts.Customers*opts.InvoicesPerCustomer)
	for i := 0; i < opts.Customers; i++ {
		customer := customerdomain.Customer{
			ID:        genID.Generate(),
			Currency:  currencies[rng.IntN(len(currencies))],
			CreatedAt: now,
			UpdatedAt: now,
		}
		customers = append(customers, customer)

		for j := 0; j < opts.InvoicesPerCustomer; j++ {
			status := invoicedomain.InvoiceStatusPaid
			if j == opts.InvoicesPerCustomer-1 {
				status = invoicedomain.InvoiceStatusPending
			}
			invoices = append(invoices, invoicedomain.Invoice{
				ID:         genID.Generate(),
				CustomerID: customer.ID,
				Amount:     randomAmount(rng),
				Currency:   customer.Currency,
				Status:     status,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}
	}

	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(customers, batchSize).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(invoices, batchSize).Error
	})
	if db.IsDuplicateKeyErr(err) {
		// another instance seeded concurrently
		return Stats{Skipped: true}, nil
	}
	if err != nil {
		return Stats{}, err
	}

	return Stats{Customers: len(customers), Invoices: len(invoices)}, nil
}

// randomAmount returns a value between 10.00 and 500.00.
func randomAmount(rng *rand.Rand) decimal.Decimal {
	cents := 1000 + rng.Int64N(49001)
	return decimal.New(cents, -2)
}
