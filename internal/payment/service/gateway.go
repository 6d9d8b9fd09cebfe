package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/antaeus/internal/config"
	customerdomain "github.com/smallbiznis/antaeus/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/antaeus/internal/invoice/domain"
	"github.com/smallbiznis/antaeus/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/antaeus/internal/observability/metrics"
	"github.com/smallbiznis/antaeus/internal/observability/tracing"
	"github.com/smallbiznis/antaeus/internal/payment/adapters"
	"github.com/smallbiznis/antaeus/internal/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Cfg          config.Config
	DB           *gorm.DB
	Log          *zap.Logger
	Registry     *adapters.Registry
	CustomerRepo customerdomain.Repository
	Metrics      *obsmetrics.Metrics `optional:"true"`
}

// NewGateway builds the configured provider and wraps it with logging,
// tracing and charge metrics.
func NewGateway(p Params) (domain.Gateway, error) {
	if p.DB == nil || p.Registry == nil || p.CustomerRepo == nil {
		return nil, domain.ErrInvalidConfig
	}

	provider := strings.ToLower(strings.TrimSpace(p.Cfg.PaymentProvider))
	if provider == "" {
		provider = "mock"
	}

	gateway, err := p.Registry.NewGateway(provider, domain.GatewayConfig{
		Config: map[string]any{
			"decline_rate":         p.Cfg.MockPayment.DeclineRate,
			"network_failure_rate": p.Cfg.MockPayment.NetworkFailureRate,
			"seed":                 p.Cfg.MockPayment.Seed,
		},
		Customers: &customerLookup{db: p.DB, repo: p.CustomerRepo},
	})
	if err != nil {
		return nil, err
	}

	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return Instrument(gateway, provider, log, p.Metrics), nil
}

type customerLookup struct {
	db   *gorm.DB
	repo customerdomain.Repository
}

func (l *customerLookup) FindCustomer(ctx context.Context, id snowflake.ID) (*customerdomain.Customer, error) {
	return l.repo.FindByID(ctx, l.db, id)
}

type instrumented struct {
	next     domain.Gateway
	provider string
	log      *zap.Logger
	metrics  *obsmetrics.Metrics
	tracer   trace.Tracer
}

// Instrument decorates a gateway. metrics may be nil.
func Instrument(next domain.Gateway, provider string, log *zap.Logger, metrics *obsmetrics.Metrics) domain.Gateway {
	return &instrumented{
		next:     next,
		provider: provider,
		log:      log.Named("payment.gateway").With(zap.String("provider", provider)),
		metrics:  metrics,
		tracer:   otel.Tracer("antaeus/payment"),
	}
}

func (g *instrumented) Charge(ctx context.Context, invoice invoicedomain.Invoice) (bool, error) {
	ctx, span := g.tracer.Start(ctx, "payment.charge", trace.WithAttributes(
		tracing.SafeAttributes(
			attribute.String("payment.provider", g.provider),
			attribute.String("invoice.currency", string(invoice.Currency)),
		)...,
	))
	defer span.End()

	start := time.Now()
	ok, err := g.next.Charge(ctx, invoice)
	result, reason := classify(ok, err)

	g.metrics.RecordChargeAttempt(ctx, g.provider, result, reason)
	if ok && err == nil {
		amount, _ := invoice.Amount.Float64()
		g.metrics.RecordChargedAmount(ctx, string(invoice.Currency), amount)
	}

	fields := []zap.Field{
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("result", result),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	}
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, reason)
		logger.WithContext(ctx, g.log).Warn("payment.charge.failed", append(fields, zap.String("reason", reason), zap.Error(err))...)
		return false, err
	}
	logger.WithContext(ctx, g.log).Debug("payment.charge.completed", fields...)
	return ok, nil
}

func classify(ok bool, err error) (string, string) {
	switch {
	case err == nil && ok:
		return "charged", ""
	case err == nil:
		return "declined", "insufficient_funds"
	case errors.Is(err, domain.ErrCustomerNotFound):
		return "failed", "customer_not_found"
	case errors.Is(err, domain.ErrCurrencyMismatch):
		return "failed", "currency_mismatch"
	case errors.Is(err, domain.ErrNetwork):
		return "failed", "network_error"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "failed", "timeout"
	default:
		return "failed", "unknown"
	}
}
