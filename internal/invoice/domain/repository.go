package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/antaeus/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, filter ListInvoiceFilter, page pagination.Pagination) ([]*Invoice, error)
	FetchByStatus(ctx context.Context, db *gorm.DB, status InvoiceStatus) ([]Invoice, error)
	// CompareAndSetStatus moves id from one status to another and reports the
	// number of rows changed; zero means the row is missing or not in from.
	CompareAndSetStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to InvoiceStatus, at time.Time) (int64, error)
}
