package scheduler

import (
	"context"

	"github.com/smallbiznis/antaeus/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(registerLifecycle),
)

// ProvideConfig reads the re-fire policy and timezone from billing config.
func ProvideConfig(holder *config.BillingConfigHolder) Config {
	billing := holder.Get()
	return Config{
		MaxRefires:  RefireBudget(billing.Refire.MaxAttempts),
		RefireDelay: billing.Refire.Delay,
		Location:    billing.Location(),
	}
}

func registerLifecycle(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return sched.Stop(ctx)
		},
	})
}
