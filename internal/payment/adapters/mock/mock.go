// Package mock provides a simulated payment provider for local runs.
package mock

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	invoicedomain "github.com/smallbiznis/antaeus/internal/invoice/domain"
	"github.com/smallbiznis/antaeus/internal/payment/domain"
)

const Provider = "mock"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return Provider
}

// NewGateway reads decline_rate, network_failure_rate and seed from cfg.
func (f *Factory) NewGateway(cfg domain.GatewayConfig) (domain.Gateway, error) {
	if cfg.Customers == nil {
		return nil, domain.ErrInvalidConfig
	}
	declineRate, err := readRate(cfg.Config, "decline_rate")
	if err != nil {
		return nil, err
	}
	networkRate, err := readRate(cfg.Config, "network_failure_rate")
	if err != nil {
		return nil, err
	}

	seed, _ := readInt(cfg.Config, "seed")
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Gateway{
		customers:   cfg.Customers,
		declineRate: declineRate,
		networkRate: networkRate,
		rng:         rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1)),
	}, nil
}

// Gateway checks the invoice against its customer and then rolls for a
// network failure and a decline.
type Gateway struct {
	customers   domain.CustomerLookup
	declineRate float64
	networkRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

func (g *Gateway) Charge(ctx context.Context, invoice invoicedomain.Invoice) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}

	customer, err := g.customers.FindCustomer(ctx, invoice.CustomerID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	if customer == nil {
		return false, fmt.Errorf("%w: customer %s", domain.ErrCustomerNotFound, invoice.CustomerID)
	}
	if customer.Currency != invoice.Currency {
		return false, fmt.Errorf("%w: invoice %s in %s, customer %s in %s",
			domain.ErrCurrencyMismatch, invoice.ID, invoice.Currency, customer.ID, customer.Currency)
	}

	if g.roll() < g.networkRate {
		return false, fmt.Errorf("%w: provider unreachable", domain.ErrNetwork)
	}
	return g.roll() >= g.declineRate, nil
}

func (g *Gateway) roll() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64()
}

func readRate(config map[string]any, key string) (float64, error) {
	value, ok := config[key]
	if !ok {
		return 0, nil
	}
	var rate float64
	switch cast := value.(type) {
	case float64:
		rate = cast
	case float32:
		rate = float64(cast)
	case int:
		rate = float64(cast)
	default:
		return 0, domain.ErrInvalidConfig
	}
	if rate < 0 || rate > 1 {
		return 0, domain.ErrInvalidConfig
	}
	return rate, nil
}

func readInt(config map[string]any, key string) (int64, bool) {
	value, ok := config[key]
	if !ok {
		return 0, false
	}
	switch cast := value.(type) {
	case int64:
		return cast, true
	case int:
		return int64(cast), true
	case uint64:
		return int64(cast), true
	default:
		return 0, false
	}
}
