package scheduler

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/antaeus/internal/clock"
	obslogger "github.com/smallbiznis/antaeus/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/antaeus/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// CronParser accepts six fields (seconds first) with "?" as "any", plus
// descriptors such as @monthly.
var CronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Job is the unit a trigger fires.
type Job interface {
	Run(ctx context.Context) error
}

type JobFunc func(ctx context.Context) error

func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }

type State string

const (
	StateUnstarted State = "unstarted"
	StateRunning   State = "running"
	StateStopped   State = "stopped"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock                `optional:"true"`
	Metrics *obsmetrics.BillingMetrics `optional:"true"`
	Config  Config                     `optional:"true"`
}

// Scheduler owns the cron engine and one live trigger per job.
type Scheduler struct {
	log     *zap.Logger
	clock   clock.Clock
	metrics *obsmetrics.BillingMetrics
	engine  *cron.Cron

	mu       sync.Mutex
	cfg      Config
	state    State
	triggers map[string]*trigger
	done     chan struct{}
}

type trigger struct {
	jobID     string
	triggerID string
	expr      string
	entryID   cron.EntryID
	job       Job

	fires       int
	refires     int
	exhausted   int
	lastFiredAt time.Time
	lastError   string
}

// TriggerInfo is a point-in-time view of a live trigger.
type TriggerInfo struct {
	JobID       string    `json:"job_id"`
	TriggerID   string    `json:"trigger_id"`
	Cron        string    `json:"cron"`
	Next        time.Time `json:"next"`
	Prev        time.Time `json:"prev,omitempty"`
	Fires       int       `json:"fires"`
	Refires     int       `json:"refires"`
	Exhausted   int       `json:"refire_exhausted"`
	LastFiredAt time.Time `json:"last_fired_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	c := p.Clock
	if c == nil {
		c = clock.New()
	}

	log := p.Log.Named("scheduler").With(zap.String("component", "scheduler"))
	cronLog := obslogger.NewCronLogger(log)
	engine := cron.New(
		cron.WithParser(CronParser),
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	return &Scheduler{
		log:      log,
		clock:    c,
		metrics:  p.Metrics,
		engine:   engine,
		cfg:      cfg,
		state:    StateUnstarted,
		triggers: map[string]*trigger{},
		done:     make(chan struct{}),
	}, nil
}

// ScheduleOrReplace registers job under triggerID or swaps the schedule of the
// existing trigger. The engine starts on first registration. A malformed
// expression leaves the current trigger in effect.
func (s *Scheduler) ScheduleOrReplace(jobID, triggerID, expr string, job Job) error {
	jobID = strings.TrimSpace(jobID)
	triggerID = strings.TrimSpace(triggerID)
	expr = strings.TrimSpace(expr)

	fail := func(err error) error {
		s.metrics.IncRegistration(jobID, obsmetrics.RegistrationFailed)
		s.log.Warn("scheduler.trigger.rejected",
			zap.String("job_id", jobID),
			zap.String("trigger_id", triggerID),
			zap.String("cron", expr),
			zap.Error(err),
		)
		return &SchedulingError{JobID: jobID, TriggerID: triggerID, Cron: expr, Err: err}
	}

	if jobID == "" || triggerID == "" || job == nil {
		return fail(ErrInvalidTrigger)
	}
	schedule, err := CronParser.Parse(expr)
	if err != nil {
		return fail(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped {
		return fail(ErrSchedulerStopped)
	}

	t, replaced := s.triggers[triggerID]
	if !replaced {
		t = &trigger{jobID: jobID, triggerID: triggerID}
		s.triggers[triggerID] = t
	} else {
		s.engine.Remove(t.entryID)
	}
	// one live trigger per job
	for id, other := range s.triggers {
		if id != triggerID && other.jobID == jobID {
			s.engine.Remove(other.entryID)
			delete(s.triggers, id)
		}
	}

	t.jobID = jobID
	t.expr = expr
	t.job = job
	t.entryID = s.engine.Schedule(schedule, cron.FuncJob(func() { s.fire(t) }))

	if s.state == StateUnstarted {
		s.engine.Start()
		s.state = StateRunning
		s.log.Info("scheduler.started", zap.String("location", s.cfg.Location.String()))
	}

	action := obsmetrics.RegistrationRegistered
	msg := "scheduler.trigger.registered"
	if replaced {
		action = obsmetrics.RegistrationReplaced
		msg = "scheduler.trigger.replaced"
	}
	s.metrics.IncRegistration(jobID, action)
	s.log.Info(msg,
		zap.String("job_id", jobID),
		zap.String("trigger_id", triggerID),
		zap.String("cron", expr),
		zap.Time("next", s.engine.Entry(t.entryID).Next),
	)
	return nil
}

// Unschedule removes a trigger and reports whether it existed.
func (s *Scheduler) Unschedule(triggerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.triggers[strings.TrimSpace(triggerID)]
	if !ok {
		return false
	}
	s.engine.Remove(t.entryID)
	delete(s.triggers, t.triggerID)
	s.log.Info("scheduler.trigger.removed",
		zap.String("job_id", t.jobID),
		zap.String("trigger_id", t.triggerID),
	)
	return true
}

// SetRefirePolicy updates the budget used by subsequent firings.
func (s *Scheduler) SetRefirePolicy(maxRefires int, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.cfg
	cfg.MaxRefires = maxRefires
	cfg.RefireDelay = delay
	s.cfg = cfg.withDefaults()
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Triggers lists live triggers ordered by trigger id.
func (s *Scheduler) Triggers() []TriggerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TriggerInfo, 0, len(s.triggers))
	for _, t := range s.triggers {
		entry := s.engine.Entry(t.entryID)
		out = append(out, TriggerInfo{
			JobID:       t.jobID,
			TriggerID:   t.triggerID,
			Cron:        t.expr,
			Next:        entry.Next,
			Prev:        entry.Prev,
			Fires:       t.fires,
			Refires:     t.refires,
			Exhausted:   t.exhausted,
			LastFiredAt: t.lastFiredAt,
			LastError:   t.lastError,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggerID < out[j].TriggerID })
	return out
}

// Stop halts further firings and waits, bounded by ctx, for a running job to
// return. The running job is not cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	wasRunning := s.state == StateRunning
	s.state = StateStopped
	close(s.done)
	s.mu.Unlock()

	if !wasRunning {
		return nil
	}

	stopped := s.engine.Stop()
	select {
	case <-stopped.Done():
		s.log.Info("scheduler.stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler.stop.timeout", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// fire runs the job and re-fires eligible failures until the budget is spent.
func (s *Scheduler) fire(t *trigger) {
	s.mu.Lock()
	job := t.job
	jobID, triggerID := t.jobID, t.triggerID
	maxRefires, delay := s.cfg.MaxRefires, s.cfg.RefireDelay
	t.fires++
	t.lastFiredAt = s.clock.Now()
	s.mu.Unlock()

	s.metrics.IncTriggerFire(jobID)
	log := s.log.With(zap.String("job_id", jobID), zap.String("trigger_id", triggerID))
	log.Debug("scheduler.trigger.fired")

	// firings are detached from any caller so shutdown never aborts a pass
	ctx := context.Background()

	var err error
	refires := 0
	for {
		err = job.Run(ctx)
		if err == nil || !IsRefireEligible(err) {
			break
		}
		if refires >= maxRefires {
			s.metrics.IncRefireExhausted(jobID)
			log.Error("scheduler.trigger.refire_exhausted",
				zap.Int("refires", refires),
				zap.Int("max_refires", maxRefires),
				zap.Error(err),
			)
			s.recordExhausted(t)
			break
		}
		if !s.waitRefire(delay) {
			log.Info("scheduler.trigger.refire_cancelled", zap.Error(err))
			break
		}
		refires++
		s.metrics.IncTriggerRefire(jobID)
		log.Warn("scheduler.trigger.refire",
			zap.Int("attempt", refires),
			zap.Int("max_refires", maxRefires),
			zap.Error(err),
		)
	}

	s.mu.Lock()
	t.refires += refires
	t.lastError = ""
	if err != nil {
		t.lastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil && !IsRefireEligible(err) {
		log.Error("scheduler.job.failed", zap.Error(err))
	}
}

func (s *Scheduler) recordExhausted(t *trigger) {
	s.mu.Lock()
	t.exhausted++
	s.mu.Unlock()
}

// waitRefire sleeps for delay and reports false once the scheduler stops.
func (s *Scheduler) waitRefire(delay time.Duration) bool {
	if delay <= 0 {
		select {
		case <-s.done:
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-s.done:
		return false
	case <-timer.C:
		return true
	}
}

// ValidateCron reports whether expr is accepted by the scheduler.
func ValidateCron(expr string) error {
	if _, err := CronParser.Parse(strings.TrimSpace(expr)); err != nil {
		return errors.Join(ErrInvalidTrigger, err)
	}
	return nil
}
