package billing

import (
	"context"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/antaeus/internal/billing/domain"
	"github.com/smallbiznis/antaeus/internal/billing/gate"
	"github.com/smallbiznis/antaeus/internal/billing/pass"
	"github.com/smallbiznis/antaeus/internal/billing/service"
	"github.com/smallbiznis/antaeus/internal/clock"
	"github.com/smallbiznis/antaeus/internal/config"
	"github.com/smallbiznis/antaeus/internal/events"
	invoicedomain "github.com/smallbiznis/antaeus/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/antaeus/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/antaeus/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("billing.service",
	fx.Provide(newPass),
	fx.Provide(newGate),
	fx.Provide(service.New),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
)

// ScheduleOnStart registers the recurring trigger from billing config once
// the application starts. A non-empty cronOverride replaces the configured
// expression.
func ScheduleOnStart(cronOverride string) fx.Option {
	return fx.Invoke(func(lc fx.Lifecycle, svc *service.Service, holder *config.BillingConfigHolder) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return svc.ScheduleFromConfig(ctx, holder.Get(), cronOverride)
			},
		})
	})
}

type passParams struct {
	fx.In

	Invoices  invoicedomain.Service
	Gateway   paymentdomain.Gateway
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock                `optional:"true"`
	Publisher events.Publisher           `optional:"true"`
	Metrics   *obsmetrics.BillingMetrics `optional:"true"`
	Billing   *config.BillingConfigHolder
}

func newPass(p passParams) (*pass.Pass, error) {
	return pass.New(pass.Params{
		Invoices:  p.Invoices,
		Gateway:   p.Gateway,
		Log:       p.Log,
		GenID:     p.GenID,
		Clock:     p.Clock,
		Publisher: p.Publisher,
		Metrics:   p.Metrics,
		Config:    pass.Config{ChargeTimeout: p.Billing.Get().Charge.Timeout},
	})
}

// newGate adds the Redis lock when REDIS_ADDR is set.
func newGate(lc fx.Lifecycle, cfg config.Config, holder *config.BillingConfigHolder, log *zap.Logger) gate.Gate {
	local := gate.NewLocal()
	if !cfg.Redis.Enabled() {
		return local
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	lock := holder.Get().Lock
	log.Info("billing.gate.redis", zap.String("addr", cfg.Redis.Addr), zap.String("key", lock.Key))
	return gate.NewRedis(local, gate.NewLocker(client), gate.RedisConfig{
		Key:           lock.Key,
		TTL:           lock.TTL,
		RetryInterval: lock.RetryInterval,
	}, log)
}
