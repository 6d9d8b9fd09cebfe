// Package events publishes billing outcomes to Kafka.
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/antaeus/pkg/money"
)

const (
	TypeInvoiceCharged  = "billing.invoice.charged"
	TypeInvoiceDeclined = "billing.invoice.declined"
	TypeInvoiceFailed   = "billing.invoice.failed"
	TypePassCompleted   = "billing.pass.completed"
)

// Publisher writes an event keyed by key. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, key string, event Event) error
	Close() error
}

type Event struct {
	Type       string    `json:"type"`
	RunID      string    `json:"run_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Invoice    *Invoice  `json:"invoice,omitempty"`
	Pass       *Pass     `json:"pass,omitempty"`
}

type Invoice struct {
	ID          string          `json:"id"`
	CustomerID  string          `json:"customer_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    money.Currency  `json:"currency"`
	FailureKind string          `json:"failure_kind,omitempty"`
	Error       string          `json:"error,omitempty"`
}

type Pass struct {
	Trigger  string `json:"trigger"`
	Total    int    `json:"total"`
	Charged  int    `json:"charged"`
	Declined int    `json:"declined"`
	Failed   int    `json:"failed"`
}

type noopPublisher struct{}

// NewNoop returns a Publisher that drops every event.
func NewNoop() Publisher { return noopPublisher{} }

func (noopPublisher) Publish(context.Context, string, Event) error { return nil }
func (noopPublisher) Close() error                                 { return nil }
