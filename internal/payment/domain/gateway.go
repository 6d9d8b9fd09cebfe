// Package domain defines the payment provider contract used by billing.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	customerdomain "github.com/smallbiznis/antaeus/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/antaeus/internal/invoice/domain"
)

// Gateway charges a customer for an invoice. A false result with a nil error
// means the provider declined, usually for lack of funds. Gateways never
// change invoice state.
type Gateway interface {
	Charge(ctx context.Context, invoice invoicedomain.Invoice) (bool, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, invoice invoicedomain.Invoice) (bool, error)

func (f GatewayFunc) Charge(ctx context.Context, invoice invoicedomain.Invoice) (bool, error) {
	return f(ctx, invoice)
}

// CustomerLookup resolves the customer an invoice is billed to. It returns
// nil, nil when the customer does not exist.
type CustomerLookup interface {
	FindCustomer(ctx context.Context, id snowflake.ID) (*customerdomain.Customer, error)
}

// GatewayConfig is handed to a Factory when the gateway is built.
type GatewayConfig struct {
	Config    map[string]any
	Customers CustomerLookup
}

type Factory interface {
	Provider() string
	NewGateway(cfg GatewayConfig) (Gateway, error)
}

var (
	ErrCustomerNotFound = errors.New("customer_not_found")
	ErrCurrencyMismatch = errors.New("currency_mismatch")
	ErrNetwork          = errors.New("network_error")

	ErrProviderNotFound = errors.New("payment_provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_config")
)
