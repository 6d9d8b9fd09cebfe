package payment

import (
	"github.com/smallbiznis/antaeus/internal/payment/adapters"
	"github.com/smallbiznis/antaeus/internal/payment/adapters/mock"
	"github.com/smallbiznis/antaeus/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			mock.NewFactory(),
		)
	}),
	fx.Provide(service.NewGateway),
)
