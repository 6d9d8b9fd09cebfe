package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	obsmetrics "github.com/smallbiznis/antaeus/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const (
	testJobID     = "billingJob"
	testTriggerID = "billingTrigger"
)

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	s, err := New(Params{Log: zap.New(core), Config: cfg})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s, logs
}

func noop(context.Context) error { return nil }

func TestScheduleOrReplaceStartsEngine(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	assert.Equal(t, StateUnstarted, s.State())

	require.NoError(t, s.ScheduleOrReplace(testJobID, testTriggerID, "0 0 0 1 * ?", JobFunc(noop)))
	assert.Equal(t, StateRunning, s.State())

	triggers := s.Triggers()
	require.Len(t, triggers, 1)
	assert.Equal(t, "0 0 0 1 * ?", triggers[0].Cron)
	assert.Equal(t, 1, triggers[0].Next.Day())
	assert.Zero(t, triggers[0].Next.Hour())
}

func TestScheduleOrReplaceReplacesTrigger(t *testing.T) {
	s, logs := newTestScheduler(t, Config{})

	require.NoError(t, s.ScheduleOrReplace(testJobID, testTriggerID, "0/5 * * * * ?", JobFunc(noop)))
	require.NoError(t, s.ScheduleOrReplace(testJobID, testTriggerID, "0 0 0 1 * ?", JobFunc(noop)))

	triggers := s.Triggers()
	require.Len(t, triggers, 1)
	assert.Equal(t, testTriggerID, triggers[0].TriggerID)
	assert.Equal(t, "0 0 0 1 * ?", triggers[0].Cron)
	assert.Len(t, s.engine.Entries(), 1)
	assert.Equal(t, 1, logs.FilterMessage("scheduler.trigger.replaced").Len())
}

func TestScheduleOrReplaceKeepsOneTriggerPerJob(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})

	require.NoError(t, s.ScheduleOrReplace(testJobID, "first", "0 0 0 1 * ?", JobFunc(noop)))
	require.NoError(t, s.ScheduleOrReplace(testJobID, "second", "0 0 12 * * ?", JobFunc(noop)))

	triggers := s.Triggers()
	require.Len(t, triggers, 1)
	assert.Equal(t, "second", triggers[0].TriggerID)
	assert.Len(t, s.engine.Entries(), 1)
}

func TestScheduleOrReplaceRejectsMalformedCron(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	require.NoError(t, s.ScheduleOrReplace(testJobID, testTriggerID, "0 0 0 1 * ?", JobFunc(noop)))

	for _, expr := range []string{"", "not a cron", "* * * * *", "61 * * * * ?"} {
		err := s.ScheduleOrReplace(testJobID, testTriggerID, expr, JobFunc(noop))
		var schedErr *SchedulingError
		require.ErrorAs(t, err, &schedErr, "expr %q", expr)
		assert.Equal(t, testTriggerID, schedErr.TriggerID)
	}

	triggers := s.Triggers()
	require.Len(t, triggers, 1)
	assert.Equal(t, "0 0 0 1 * ?", triggers[0].Cron)
	assert.Len(t, s.engine.Entries(), 1)
}

func TestScheduleOrReplaceRejectsMissingIdentity(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})

	err := s.ScheduleOrReplace("", testTriggerID, "0 0 0 1 * ?", JobFunc(noop))
	assert.ErrorIs(t, err, ErrInvalidTrigger)
	err = s.ScheduleOrReplace(testJobID, testTriggerID, "0 0 0 1 * ?", nil)
	assert.ErrorIs(t, err, ErrInvalidTrigger)
	assert.Equal(t, StateUnstarted, s.State())
}

func TestStopBlocksRegistration(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	require.NoError(t, s.ScheduleOrReplace(testJobID, testTriggerID, "0 0 0 1 * ?", JobFunc(noop)))

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, StateStopped, s.State())

	err := s.ScheduleOrReplace(testJobID, testTriggerID, "0 0 0 1 * ?", JobFunc(noop))
	assert.ErrorIs(t, err, ErrSchedulerStopped)
	var schedErr *SchedulingError
	assert.ErrorAs(t, err, &schedErr)
}

func TestTriggerFiresOnItsOwnGoroutine(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	fired := make(chan struct{}, 1)

	require.NoError(t, s.ScheduleOrReplace(testJobID, testTriggerID, "* * * * * ?", JobFunc(func(context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	})))

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatalf("trigger did not fire")
	}
}

func TestStopWaitsForRunningJob(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	started := make(chan struct{})
	var finished atomic.Bool
	var jobCtxErr atomic.Value

	var once atomic.Bool
	require.NoError(t, s.ScheduleOrReplace(testJobID, testTriggerID, "* * * * * ?", JobFunc(func(ctx context.Context) error {
		if !once.CompareAndSwap(false, true) {
			return nil
		}
		close(started)
		time.Sleep(200 * time.Millisecond)
		if ctx.Err() != nil {
			jobCtxErr.Store(ctx.Err())
		}
		finished.Store(true)
		return nil
	})))

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatalf("trigger did not fire")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.True(t, finished.Load())
	assert.Nil(t, jobCtxErr.Load())
}

func TestFireRefiresUntilBudgetExhausted(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()
	metrics := obsmetrics.BillingWithConfig(obsmetrics.Config{ServiceName: "antaeus", Environment: "test"})

	core, logs := observer.New(zap.DebugLevel)
	s, err := New(Params{Log: zap.New(core), Metrics: metrics, Config: Config{MaxRefires: 3}})
	require.NoError(t, err)

	calls := 0
	tr := &trigger{jobID: testJobID, triggerID: testTriggerID, job: JobFunc(func(context.Context) error {
		calls++
		return Refire(errors.New("repository unreachable"))
	})}
	s.fire(tr)

	assert.Equal(t, 4, calls)
	assert.Equal(t, 3, tr.refires)
	assert.Equal(t, 1, tr.exhausted)
	assert.Equal(t, "repository unreachable", tr.lastError)
	assert.Equal(t, 3, logs.FilterMessage("scheduler.trigger.refire").Len())
	assert.Equal(t, 1, logs.FilterMessage("scheduler.trigger.refire_exhausted").Len())

	labels := map[string]string{"service": "antaeus", "env": "test", "job": testJobID}
	assert.Equal(t, float64(3), getCounterValue(t, registry, "antaeus_scheduler_trigger_refires_total", labels))
	assert.Equal(t, float64(1), getCounterValue(t, registry, "antaeus_scheduler_refire_exhausted_total", labels))
	assert.Equal(t, float64(1), getCounterValue(t, registry, "antaeus_scheduler_trigger_fires_total", labels))
}

func TestFireStopsRefiringAfterRecovery(t *testing.T) {
	s, logs := newTestScheduler(t, Config{MaxRefires: 3})

	calls := 0
	tr := &trigger{jobID: testJobID, triggerID: testTriggerID, job: JobFunc(func(context.Context) error {
		calls++
		if calls == 1 {
			return Refire(errors.New("transient"))
		}
		return nil
	})}
	s.fire(tr)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, tr.refires)
	assert.Empty(t, tr.lastError)
	assert.Zero(t, logs.FilterMessage("scheduler.trigger.refire_exhausted").Len())
}

func TestFireDoesNotRefireIneligibleErrors(t *testing.T) {
	s, logs := newTestScheduler(t, Config{})

	calls := 0
	tr := &trigger{jobID: testJobID, triggerID: testTriggerID, job: JobFunc(func(context.Context) error {
		calls++
		return errors.New("bad input")
	})}
	s.fire(tr)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, logs.FilterMessage("scheduler.job.failed").Len())
}

func TestRefireDisabled(t *testing.T) {
	s, _ := newTestScheduler(t, Config{MaxRefires: RefireBudget(0)})

	calls := 0
	tr := &trigger{jobID: testJobID, triggerID: testTriggerID, job: JobFunc(func(context.Context) error {
		calls++
		return Refire(errors.New("down"))
	})}
	s.fire(tr)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, tr.exhausted)
}

func TestSetRefirePolicy(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	s.SetRefirePolicy(1, 0)

	calls := 0
	tr := &trigger{jobID: testJobID, triggerID: testTriggerID, job: JobFunc(func(context.Context) error {
		calls++
		return Refire(errors.New("down"))
	})}
	s.fire(tr)
	assert.Equal(t, 2, calls)
}

func TestValidateCron(t *testing.T) {
	assert.NoError(t, ValidateCron("0 0 0 1 * ?"))
	assert.NoError(t, ValidateCron("0/5 * * * * ?"))
	assert.NoError(t, ValidateCron("@monthly"))
	assert.ErrorIs(t, ValidateCron("0 0 1 * *"), ErrInvalidTrigger)
}

func TestIsRefireEligible(t *testing.T) {
	assert.False(t, IsRefireEligible(nil))
	assert.False(t, IsRefireEligible(errors.New("plain")))
	assert.True(t, IsRefireEligible(Refire(errors.New("x"))))
	assert.True(t, IsRefireEligible(errors.Join(errors.New("ctx"), Refire(errors.New("x")))))
	assert.Nil(t, Refire(nil))
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	obsmetrics.ResetBillingMetricsForTest()
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetBillingMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func matchLabels(pairs []*dto.LabelPair, labels map[string]string) bool {
	if len(pairs) != len(labels) {
		return false
	}
	for _, pair := range pairs {
		if labels[pair.GetName()] != pair.GetValue() {
			return false
		}
	}
	return true
}
