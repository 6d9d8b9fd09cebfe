package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	TriggerImmediate = "immediate"
	TriggerScheduled = "scheduled"
)

const (
	PassStatusSucceeded = "succeeded"
	PassStatusFailed    = "failed"
)

const (
	PassErrorReasonDeadlineExceeded     = "deadline_exceeded"
	PassErrorReasonDBLockTimeout        = "db_lock_timeout"
	PassErrorReasonSerializationFailure = "serialization_failure"
	PassErrorReasonDBConnection         = "db_connection"
	PassErrorReasonDB                   = "db"
	PassErrorReasonUnknown              = "unknown"
)

const (
	SkipReasonInProgress = "in_progress"
	SkipReasonLockHeld   = "lock_held"
)

const (
	RegistrationRegistered = "registered"
	RegistrationReplaced   = "replaced"
	RegistrationFailed     = "failed"
	RegistrationRemoved    = "removed"
)

// BillingMetrics captures billing pass and trigger health signals.
type BillingMetrics struct {
	passRuns        *prometheus.CounterVec
	passDuration    *prometheus.HistogramVec
	passErrors      *prometheus.CounterVec
	passInFlight    prometheus.Gauge
	passSkipped     *prometheus.CounterVec
	outcomes        *prometheus.CounterVec
	triggerFires    *prometheus.CounterVec
	triggerRefires  *prometheus.CounterVec
	refireExhausted *prometheus.CounterVec
	registrations   *prometheus.CounterVec
}

var (
	billingMetricsOnce sync.Once
	billingMetrics     *BillingMetrics
)

// Billing returns the singleton billing metrics registry.
func Billing() *BillingMetrics {
	return BillingWithConfig(Config{})
}

// BillingWithConfig returns the singleton billing metrics registry using config labels.
func BillingWithConfig(cfg Config) *BillingMetrics {
	billingMetricsOnce.Do(func() {
		billingMetrics = newBillingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return billingMetrics
}

// ResetBillingMetricsForTest resets the billing metrics singleton for tests.
func ResetBillingMetricsForTest() {
	billingMetricsOnce = sync.Once{}
	billingMetrics = nil
}

func newBillingMetrics(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "antaeus"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &BillingMetrics{
		passRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "antaeus_billing_pass_runs_total",
			Help:        "Billing passes by trigger and final status.",
			ConstLabels: constLabels,
		}, []string{"trigger", "status"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "antaeus_billing_pass_duration_seconds",
			Help:        "Wall time of a billing pass.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
			ConstLabels: constLabels,
		}, []string{"trigger"}),
		passErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "antaeus_billing_pass_errors_total",
			Help:        "Pass-level billing failures by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"trigger", "reason"}),
		passInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "antaeus_billing_pass_in_flight",
			Help:        "1 while a billing pass holds the single-flight gate.",
			ConstLabels: constLabels,
		}),
		passSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "antaeus_billing_pass_skipped_total",
			Help:        "Scheduled firings skipped because another pass was running.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "antaeus_billing_invoice_outcomes_total",
			Help:        "Per-invoice billing outcomes.",
			ConstLabels: constLabels,
		}, []string{"result", "reason"}),
		triggerFires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "antaeus_scheduler_trigger_fires_total",
			Help:        "Cron trigger firings by job.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		triggerRefires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "antaeus_scheduler_trigger_refires_total",
			Help:        "Immediate re-fires after a failed job execution.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		refireExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "antaeus_scheduler_refire_exhausted_total",
			Help:        "Firings that used up their re-fire budget and fell back to the next tick.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "antaeus_scheduler_registrations_total",
			Help:        "Trigger registrations by action.",
			ConstLabels: constLabels,
		}, []string{"job", "action"}),
	}

	registerer.MustRegister(
		m.passRuns,
		m.passDuration,
		m.passErrors,
		m.passInFlight,
		m.passSkipped,
		m.outcomes,
		m.triggerFires,
		m.triggerRefires,
		m.refireExhausted,
		m.registrations,
	)
	return m
}

// ObservePass records a completed pass attempt.
func (m *BillingMetrics) ObservePass(trigger string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := PassStatusSucceeded
	if err != nil {
		status = PassStatusFailed
		m.passErrors.WithLabelValues(trigger, ClassifyPassError(err)).Inc()
	}
	m.passRuns.WithLabelValues(trigger, status).Inc()
	m.passDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// SetPassInFlight flips the in-flight gauge.
func (m *BillingMetrics) SetPassInFlight(running bool) {
	if m == nil {
		return
	}
	if running {
		m.passInFlight.Set(1)
		return
	}
	m.passInFlight.Set(0)
}

func (m *BillingMetrics) IncPassSkipped(reason string) {
	if m == nil {
		return
	}
	m.passSkipped.WithLabelValues(reason).Inc()
}

// IncOutcome counts an invoice outcome; reason is empty unless the result is FAILED.
func (m *BillingMetrics) IncOutcome(result, reason string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(result, reason).Inc()
}

func (m *BillingMetrics) IncTriggerFire(job string) {
	if m == nil {
		return
	}
	m.triggerFires.WithLabelValues(job).Inc()
}

func (m *BillingMetrics) IncTriggerRefire(job string) {
	if m == nil {
		return
	}
	m.triggerRefires.WithLabelValues(job).Inc()
}

func (m *BillingMetrics) IncRefireExhausted(job string) {
	if m == nil {
		return
	}
	m.refireExhausted.WithLabelValues(job).Inc()
}

func (m *BillingMetrics) IncRegistration(job, action string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(job, action).Inc()
}

// ClassifyPassError maps pass-level failures to low-cardinality reasons.
func ClassifyPassError(err error) string {
	switch {
	case err == nil:
		return PassErrorReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return PassErrorReasonDeadlineExceeded
	case hasPGCode(err, "55P03"):
		return PassErrorReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return PassErrorReasonSerializationFailure
	case isConnectError(err):
		return PassErrorReasonDBConnection
	case isDBError(err):
		return PassErrorReasonDB
	default:
		return PassErrorReasonUnknown
	}
}

// IsRetryablePassError reports whether a pass failure is likely transient.
func IsRetryablePassError(err error) bool {
	switch ClassifyPassError(err) {
	case PassErrorReasonDeadlineExceeded,
		PassErrorReasonDBLockTimeout,
		PassErrorReasonSerializationFailure,
		PassErrorReasonDBConnection:
		return true
	default:
		return false
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isConnectError(err error) bool {
	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr) || errors.Is(err, gorm.ErrInvalidDB)
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrUnsupportedDriver) ||
		errors.Is(err, gorm.ErrInvalidValue) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
