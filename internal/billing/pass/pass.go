// Package pass runs one billing pass over the pending invoices.
package pass

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/antaeus/internal/billing/domain"
	"github.com/smallbiznis/antaeus/internal/clock"
	"github.com/smallbiznis/antaeus/internal/events"
	invoicedomain "github.com/smallbiznis/antaeus/internal/invoice/domain"
	obscontext "github.com/smallbiznis/antaeus/internal/observability/context"
	obslogger "github.com/smallbiznis/antaeus/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/antaeus/internal/observability/metrics"
	"github.com/smallbiznis/antaeus/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/antaeus/internal/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Config struct {
	// ChargeTimeout bounds a single gateway call; zero means no bound.
	ChargeTimeout time.Duration
}

type Params struct {
	Invoices  domain.InvoiceRepository
	Gateway   paymentdomain.Gateway
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Publisher events.Publisher
	Metrics   *obsmetrics.BillingMetrics
	Config    Config
}

// Pass charges every invoice that is PENDING when it starts. Per-invoice
// failures are recorded and never stop the pass.
type Pass struct {
	invoices  domain.InvoiceRepository
	gateway   paymentdomain.Gateway
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	publisher events.Publisher
	metrics   *obsmetrics.BillingMetrics
	tracer    trace.Tracer
	cfg       Config
}

func New(p Params) (*Pass, error) {
	if p.Invoices == nil || p.Gateway == nil || p.Log == nil || p.GenID == nil {
		return nil, domain.ErrInvalidConfig
	}
	c := p.Clock
	if c == nil {
		c = clock.New()
	}
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NewNoop()
	}
	return &Pass{
		invoices:  p.Invoices,
		gateway:   p.Gateway,
		log:       p.Log.Named("billing.pass").With(zap.String("component", "billing")),
		genID:     p.GenID,
		clock:     c,
		publisher: publisher,
		metrics:   p.Metrics,
		tracer:    otel.Tracer("antaeus/billing"),
		cfg:       p.Config,
	}, nil
}

// Run takes one snapshot of the pending invoices and bills each of them in
// snapshot order. Only a failed snapshot fails the pass, as a BillingError.
func (p *Pass) Run(ctx context.Context, trigger string) (domain.PassReport, error) {
	report := domain.PassReport{
		RunID:     p.genID.Generate().String(),
		StartedAt: p.clock.Now(),
	}
	ctx = obscontext.WithRunID(ctx, report.RunID)
	ctx, span := p.tracer.Start(ctx, "billing.pass", trace.WithAttributes(
		attribute.String("billing.trigger", trigger),
		attribute.String("billing.run_id", report.RunID),
	))
	defer span.End()

	log := obslogger.WithContext(ctx, p.log).With(zap.String("trigger", trigger))
	log.Info("billing.pass.start")

	pending, err := p.invoices.FetchAllPending(ctx)
	if err != nil {
		report.FinishedAt = p.clock.Now()
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "fetch_pending")
		log.Error("billing.pass.fetch_failed",
			zap.String("error_type", obsmetrics.ClassifyPassError(err)),
			zap.Bool("retryable", obsmetrics.IsRetryablePassError(err)),
			zap.Error(err),
		)
		return report, &domain.BillingError{Op: "fetch_pending", Err: err}
	}
	span.SetAttributes(attribute.Int("billing.pending", len(pending)))

	report.Outcomes = make([]domain.Outcome, 0, len(pending))
	for _, invoice := range pending {
		// PAID invoices are never charged again, even if a stale row slips in
		if !invoice.IsPending() {
			continue
		}
		outcome := p.bill(ctx, log, invoice)
		report.Outcomes = append(report.Outcomes, outcome)
		p.metrics.IncOutcome(string(outcome.Result), string(outcome.FailureKind))
		p.publishOutcome(ctx, report.RunID, invoice, outcome)
	}
	report.FinishedAt = p.clock.Now()

	counts := report.Counts()
	p.publish(ctx, report.RunID, events.Event{
		Type:       events.TypePassCompleted,
		RunID:      report.RunID,
		OccurredAt: report.FinishedAt,
		Pass: &events.Pass{
			Trigger:  trigger,
			Total:    counts.Total,
			Charged:  counts.Charged,
			Declined: counts.Declined,
			Failed:   counts.Failed,
		},
	})

	fields := []zap.Field{
		zap.Int64("duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds()),
		zap.Int("processed_count", counts.Total),
		zap.Int("charged_count", counts.Charged),
		zap.Int("declined_count", counts.Declined),
		zap.Int("error_count", counts.Failed),
	}
	if counts.Failed > 0 {
		log.Warn("billing.pass.finish", fields...)
	} else {
		log.Info("billing.pass.finish", fields...)
	}
	return report, nil
}

func (p *Pass) bill(ctx context.Context, log *zap.Logger, invoice invoicedomain.Invoice) domain.Outcome {
	log = log.With(zap.String("invoice_id", invoice.ID.String()))

	chargeCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.cfg.ChargeTimeout > 0 {
		chargeCtx, cancel = context.WithTimeout(ctx, p.cfg.ChargeTimeout)
	}
	ok, err := p.gateway.Charge(chargeCtx, invoice)
	cancel()

	if err != nil {
		kind := classifyChargeError(err)
		log.Warn("billing.invoice.failed",
			zap.String("failure_kind", string(kind)),
			zap.Error(err),
		)
		return domain.Failed(invoice.ID, kind, err)
	}
	if !ok {
		log.Info("billing.invoice.declined")
		return domain.Declined(invoice.ID)
	}

	if _, err := p.invoices.UpdateStatus(ctx, invoice.ID, invoicedomain.InvoiceStatusPaid); err != nil {
		// charged but still PENDING; the next pass charges it again
		log.Error("billing.invoice.status_update_failed", zap.Error(err))
		return domain.Failed(invoice.ID, domain.FailureStatusUpdate, err)
	}
	log.Debug("billing.invoice.charged")
	return domain.Charged(invoice.ID)
}

func classifyChargeError(err error) domain.FailureKind {
	switch {
	case errors.Is(err, paymentdomain.ErrCustomerNotFound):
		return domain.FailureCustomerNotFound
	case errors.Is(err, paymentdomain.ErrCurrencyMismatch):
		return domain.FailureCurrencyMismatch
	case errors.Is(err, paymentdomain.ErrNetwork),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return domain.FailureNetwork
	default:
		return domain.FailureUnknown
	}
}

func (p *Pass) publishOutcome(ctx context.Context, runID string, invoice invoicedomain.Invoice, outcome domain.Outcome) {
	eventType := events.TypeInvoiceFailed
	switch outcome.Result {
	case domain.OutcomeCharged:
		eventType = events.TypeInvoiceCharged
	case domain.OutcomeDeclined:
		eventType = events.TypeInvoiceDeclined
	}
	p.publish(ctx, invoice.ID.String(), events.Event{
		Type:       eventType,
		RunID:      runID,
		OccurredAt: p.clock.Now(),
		Invoice: &events.Invoice{
			ID:          invoice.ID.String(),
			CustomerID:  invoice.CustomerID.String(),
			Amount:      invoice.Amount,
			Currency:    invoice.Currency,
			FailureKind: string(outcome.FailureKind),
			Error:       outcome.Error,
		},
	})
}

// publish is best effort; a broker outage must not change billing results.
func (p *Pass) publish(ctx context.Context, key string, event events.Event) {
	if err := p.publisher.Publish(ctx, key, event); err != nil {
		obslogger.WithContext(ctx, p.log).Warn("billing.event.publish_failed",
			zap.String("type", event.Type),
			zap.Error(err),
		)
	}
}
