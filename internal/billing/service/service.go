package service

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/antaeus/internal/billing/domain"
	"github.com/smallbiznis/antaeus/internal/billing/gate"
	"github.com/smallbiznis/antaeus/internal/billing/pass"
	"github.com/smallbiznis/antaeus/internal/config"
	obscontext "github.com/smallbiznis/antaeus/internal/observability/context"
	obslogger "github.com/smallbiznis/antaeus/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/antaeus/internal/observability/metrics"
	"github.com/smallbiznis/antaeus/internal/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobID     = "billingJob"
	TriggerID = "billingTrigger"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Pass      *pass.Pass
	Scheduler *scheduler.Scheduler
	Gate      gate.Gate
	Metrics   *obsmetrics.BillingMetrics  `optional:"true"`
	Domain    *obsmetrics.Metrics         `optional:"true"`
	Billing   *config.BillingConfigHolder `optional:"true"`
}

type executor func(ctx context.Context, strategy domain.Strategy) (domain.Execution, error)

// Service dispatches strategies and guards every pass with the gate, whether
// it comes from a caller or from the recurring trigger.
type Service struct {
	log       *zap.Logger
	pass      *pass.Pass
	scheduler *scheduler.Scheduler
	gate      gate.Gate
	metrics   *obsmetrics.BillingMetrics
	domain    *obsmetrics.Metrics
	executors map[domain.StrategyKind]executor
}

func New(p Params) (*Service, error) {
	if p.Log == nil || p.Pass == nil || p.Scheduler == nil || p.Gate == nil {
		return nil, domain.ErrInvalidConfig
	}
	s := &Service{
		log:       p.Log.Named("billing.service").With(zap.String("component", "billing")),
		pass:      p.Pass,
		scheduler: p.Scheduler,
		gate:      p.Gate,
		metrics:   p.Metrics,
		domain:    p.Domain,
	}
	s.executors = map[domain.StrategyKind]executor{
		domain.StrategyImmediate: s.executeImmediate,
		domain.StrategyRecurring: s.executeRecurring,
	}
	if p.Billing != nil {
		p.Billing.OnChange(s.onConfigChange)
	}
	return s, nil
}

func (s *Service) Run(ctx context.Context, kind string, params map[string]string) (bool, error) {
	strategy, err := domain.ParseStrategy(kind, params)
	if err != nil {
		return false, err
	}
	if _, err := s.Execute(ctx, strategy); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) Execute(ctx context.Context, strategy domain.Strategy) (domain.Execution, error) {
	if strategy == nil {
		return domain.Execution{}, domain.ErrInvalidStrategy
	}
	exec, ok := s.executors[strategy.Kind()]
	if !ok {
		return domain.Execution{}, domain.ErrInvalidStrategy
	}
	return exec(ctx, strategy)
}

// Schedule lists the live billing triggers.
func (s *Service) Schedule() []scheduler.TriggerInfo {
	return s.scheduler.Triggers()
}

// executeImmediate waits for any running pass and then runs one on the
// caller's goroutine.
func (s *Service) executeImmediate(ctx context.Context, strategy domain.Strategy) (domain.Execution, error) {
	report, err := s.runPass(ctx, obsmetrics.TriggerImmediate, true)
	if err != nil {
		return domain.Execution{Strategy: strategy.Kind()}, err
	}
	return domain.Execution{Strategy: strategy.Kind(), Report: &report}, nil
}

func (s *Service) executeRecurring(ctx context.Context, strategy domain.Strategy) (domain.Execution, error) {
	recurring, ok := strategy.(domain.Recurring)
	if !ok {
		return domain.Execution{}, domain.ErrInvalidStrategy
	}

	err := s.scheduler.ScheduleOrReplace(JobID, TriggerID, recurring.Cron, scheduler.JobFunc(s.scheduledJob))
	if err != nil {
		s.domain.RecordScheduleChange(ctx, obsmetrics.RegistrationFailed)
		return domain.Execution{Strategy: strategy.Kind(), Cron: recurring.Cron}, err
	}
	s.domain.RecordScheduleChange(ctx, obsmetrics.RegistrationRegistered)

	execution := domain.Execution{Strategy: strategy.Kind(), Cron: recurring.Cron}
	for _, trigger := range s.scheduler.Triggers() {
		if trigger.TriggerID == TriggerID && !trigger.Next.IsZero() {
			next := trigger.Next
			execution.NextRun = &next
		}
	}
	return execution, nil
}

// scheduledJob is the trigger callback. A busy gate skips the firing; a
// pass-level failure is returned as a BillingError so the scheduler re-fires.
func (s *Service) scheduledJob(ctx context.Context) error {
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	_, err := s.runPass(ctx, obsmetrics.TriggerScheduled, false)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrPassInProgress), errors.Is(err, domain.ErrLockHeld):
		return nil
	case domain.IsBillingError(err):
		return err
	default:
		return &domain.BillingError{Op: "acquire_gate", Err: err}
	}
}

func (s *Service) runPass(ctx context.Context, trigger string, wait bool) (domain.PassReport, error) {
	log := obslogger.WithContext(ctx, s.log).With(zap.String("trigger", trigger))

	var (
		release func()
		err     error
	)
	if wait {
		release, err = s.gate.Acquire(ctx)
	} else {
		release, err = s.gate.TryAcquire(ctx)
	}
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPassInProgress):
			s.metrics.IncPassSkipped(obsmetrics.SkipReasonInProgress)
			log.Info("billing.pass.skipped", zap.String("reason", obsmetrics.SkipReasonInProgress))
		case errors.Is(err, domain.ErrLockHeld):
			s.metrics.IncPassSkipped(obsmetrics.SkipReasonLockHeld)
			log.Info("billing.pass.skipped", zap.String("reason", obsmetrics.SkipReasonLockHeld))
		default:
			log.Warn("billing.pass.gate_failed", zap.Error(err))
		}
		return domain.PassReport{}, err
	}
	defer release()

	s.metrics.SetPassInFlight(true)
	defer s.metrics.SetPassInFlight(false)

	// a pass holding the gate runs over its whole snapshot, even if the caller cancels
	start := time.Now()
	report, err := s.pass.Run(context.WithoutCancel(ctx), trigger)
	s.metrics.ObservePass(trigger, time.Since(start), err)
	if err == nil {
		s.domain.RecordPassSize(ctx, trigger, len(report.Outcomes))
	}
	return report, err
}

// ScheduleFromConfig registers the recurring trigger when the billing config
// enables it. cronOverride wins over the configured expression.
func (s *Service) ScheduleFromConfig(ctx context.Context, cfg config.BillingConfig, cronOverride string) error {
	expr := cronOverride
	if expr == "" {
		if !cfg.Schedule.Enabled {
			s.log.Info("billing.schedule.disabled")
			return nil
		}
		expr = cfg.Schedule.Cron
	}
	_, err := s.Execute(ctx, domain.Recurring{Cron: expr})
	return err
}

func (s *Service) onConfigChange(previous, current config.BillingConfig) {
	s.scheduler.SetRefirePolicy(scheduler.RefireBudget(current.Refire.MaxAttempts), current.Refire.Delay)

	switch {
	case current.Schedule.Enabled && (!previous.Schedule.Enabled || previous.Schedule.Cron != current.Schedule.Cron):
		if _, err := s.Execute(context.Background(), domain.Recurring{Cron: current.Schedule.Cron}); err != nil {
			s.log.Error("billing.schedule.reload_failed", zap.String("cron", current.Schedule.Cron), zap.Error(err))
		}
	case !current.Schedule.Enabled && previous.Schedule.Enabled:
		if s.scheduler.Unschedule(TriggerID) {
			s.domain.RecordScheduleChange(context.Background(), obsmetrics.RegistrationRemoved)
		}
	}
}

var _ domain.Service = (*Service)(nil)
