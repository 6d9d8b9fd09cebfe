package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/antaeus/internal/invoice/domain"
)

// InvoiceRepository is the part of the invoice service a pass depends on.
type InvoiceRepository interface {
	FetchAllPending(ctx context.Context) ([]invoicedomain.Invoice, error)
	UpdateStatus(ctx context.Context, id snowflake.ID, status invoicedomain.InvoiceStatus) (invoicedomain.Invoice, error)
}

// Execution describes what a strategy did.
type Execution struct {
	Strategy StrategyKind `json:"strategy"`
	Report   *PassReport  `json:"report,omitempty"`
	Cron     string       `json:"cron,omitempty"`
	NextRun  *time.Time   `json:"next_run,omitempty"`
}

type Service interface {
	// Run parses kind and params and executes the strategy. It reports
	// whether the pass or the registration succeeded.
	Run(ctx context.Context, kind string, params map[string]string) (bool, error)
	Execute(ctx context.Context, strategy Strategy) (Execution, error)
}
