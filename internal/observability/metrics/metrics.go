package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes domain-level OTLP instruments.
type Metrics struct {
	chargeAttempts  metric.Int64Counter
	chargeAmount    metric.Float64Counter
	passInvoices    metric.Int64Histogram
	scheduleChanges metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "antaeus"
	}
	meter := provider.Meter(name)

	chargeAttempts, err := meter.Int64Counter("antaeus_charge_attempts_total",
		metric.WithDescription("Charge attempts by outcome."))
	if err != nil {
		return nil, err
	}
	chargeAmount, err := meter.Float64Counter("antaeus_charged_amount_total",
		metric.WithDescription("Settled invoice amount by currency."))
	if err != nil {
		return nil, err
	}
	passInvoices, err := meter.Int64Histogram("antaeus_pass_invoices",
		metric.WithDescription("Invoices in the pending snapshot of a billing pass."))
	if err != nil {
		return nil, err
	}
	scheduleChanges, err := meter.Int64Counter("antaeus_schedule_changes_total",
		metric.WithDescription("Recurring schedule registrations and replacements."))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		chargeAttempts:  chargeAttempts,
		chargeAmount:    chargeAmount,
		passInvoices:    passInvoices,
		scheduleChanges: scheduleChanges,
	}, nil
}

// RecordChargeAttempt counts a single charge attempt.
func (m *Metrics) RecordChargeAttempt(ctx context.Context, provider, result, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("result", strings.TrimSpace(result)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.chargeAttempts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordChargedAmount adds a settled amount in major units.
func (m *Metrics) RecordChargedAmount(ctx context.Context, currency string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("currency", strings.ToUpper(strings.TrimSpace(currency))))
	m.chargeAmount.Add(ctx, amount, metric.WithAttributes(attrs...))
}

// RecordPassSize records the number of invoices a pass snapshotted.
func (m *Metrics) RecordPassSize(ctx context.Context, trigger string, size int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("trigger", strings.TrimSpace(trigger)))
	m.passInvoices.Record(ctx, int64(size), metric.WithAttributes(attrs...))
}

// RecordScheduleChange counts trigger registrations by action.
func (m *Metrics) RecordScheduleChange(ctx context.Context, action string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("action", strings.TrimSpace(action)))
	m.scheduleChanges.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"provider": {},
	"result":   {},
	"reason":   {},
	"currency": {},
	"trigger":  {},
	"action":   {},
	"route":    {},
	"method":   {},
	"status":   {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
