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

// Metrics exposes application-level instruments.
type Metrics struct {
	checkouts          metric.Int64Counter
	invoiceTransitions metric.Int64Counter
	promotionsApplied  metric.Int64Counter
	paymentsRecorded   metric.Int64Counter
	servicesActivated  metric.Int64Counter
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

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "billing"
	}
	meter := provider.Meter(name)

	checkouts, err := meter.Int64Counter("billing_checkouts_total")
	if err != nil {
		return nil, err
	}
	invoiceTransitions, err := meter.Int64Counter("billing_invoice_transitions_total")
	if err != nil {
		return nil, err
	}
	promotionsApplied, err := meter.Int64Counter("billing_promotions_applied_total")
	if err != nil {
		return nil, err
	}
	paymentsRecorded, err := meter.Int64Counter("billing_payments_recorded_total")
	if err != nil {
		return nil, err
	}
	servicesActivated, err := meter.Int64Counter("billing_services_activated_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		checkouts:          checkouts,
		invoiceTransitions: invoiceTransitions,
		promotionsApplied:  promotionsApplied,
		paymentsRecorded:   paymentsRecorded,
		servicesActivated:  servicesActivated,
	}, nil
}

// RecordCheckout increments checkout counts per invoice currency.
func (m *Metrics) RecordCheckout(ctx context.Context, currency string, promoApplied bool) {
	if m == nil {
		return
	}
	m.checkouts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("currency", strings.TrimSpace(currency)),
	))
	if promoApplied {
		m.promotionsApplied.Add(ctx, 1, metric.WithAttributes(
			attribute.String("currency", strings.TrimSpace(currency)),
		))
	}
}

// RecordInvoiceTransition increments status transition counts.
func (m *Metrics) RecordInvoiceTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.invoiceTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", strings.TrimSpace(from)),
		attribute.String("to", strings.TrimSpace(to)),
	))
}

// RecordPaymentRecorded increments automatic payment counts.
func (m *Metrics) RecordPaymentRecorded(ctx context.Context, currency string) {
	if m == nil {
		return
	}
	m.paymentsRecorded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("currency", strings.TrimSpace(currency)),
	))
}

// RecordServiceActivated increments provisioning counts.
func (m *Metrics) RecordServiceActivated(ctx context.Context) {
	if m == nil {
		return
	}
	m.servicesActivated.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
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
