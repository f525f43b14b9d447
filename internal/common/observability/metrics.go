package observability

import (
	"context"
	"log"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          otelmetric.Meter
	tracer         trace.Tracer
	jobCounter     otelmetric.Int64Counter
	jobDuration    otelmetric.Float64Histogram
	deliveries     otelmetric.Int64Counter
	creditUnits    otelmetric.Int64Counter
}

// New builds the meter (exported through the default Prometheus registry) and
// the tracer. Spans are shipped to Jaeger when jaegerEndpoint is set.
func New(serviceName, jaegerEndpoint string) *Observability {
	var spanExporter sdktrace.SpanExporter
	if jaegerEndpoint != "" {
		exp, err := newJaegerExporter(jaegerEndpoint)
		if err != nil {
			log.Printf("Failed to create Jaeger exporter: %v", err)
		} else {
			spanExporter = exp
		}
	}

	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{tracer: noop.NewTracerProvider().Tracer(serviceName)}
	}

	return build(serviceName, exporter, spanExporter, true)
}

// NewWithExporter wires a caller-supplied span exporter and a private
// Prometheus registry. Used by tests to inspect spans.
func NewWithExporter(serviceName string, spanExporter sdktrace.SpanExporter) *Observability {
	exporter, err := prometheus.New(prometheus.WithRegisterer(promclient.NewRegistry()))
	if err != nil {
		return &Observability{tracer: noop.NewTracerProvider().Tracer(serviceName)}
	}
	return build(serviceName, exporter, spanExporter, false)
}

func build(serviceName string, reader metric.Reader, spanExporter sdktrace.SpanExporter, global bool) *Observability {
	provider := metric.NewMeterProvider(metric.WithReader(reader))

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(newResource(serviceName))}
	if spanExporter != nil {
		if global {
			tpOpts = append(tpOpts, sdktrace.WithBatcher(spanExporter))
		} else {
			tpOpts = append(tpOpts, sdktrace.WithSyncer(spanExporter))
		}
	}
	tracerProvider := sdktrace.NewTracerProvider(tpOpts...)

	if global {
		otel.SetMeterProvider(provider)
		otel.SetTracerProvider(tracerProvider)
	}

	meter := provider.Meter(serviceName)

	jobCounter, _ := meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)

	jobDuration, _ := meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)

	deliveries, _ := meter.Int64Counter(
		"notify.deliveries",
		otelmetric.WithDescription("Deliveries by channel and status"),
	)

	creditUnits, _ := meter.Int64Counter(
		"notify.credit.units",
		otelmetric.WithDescription("Credit units moved by the ledger"),
	)

	return &Observability{
		meterProvider:  provider,
		tracerProvider: tracerProvider,
		meter:          meter,
		tracer:         tracerProvider.Tracer(serviceName),
		jobCounter:     jobCounter,
		jobDuration:    jobDuration,
		deliveries:     deliveries,
		creditUnits:    creditUnits,
	}
}

// StartSpan starts a span on the engine tracer. A nil receiver or one built
// without a provider yields a no-op span.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o == nil || o.tracer == nil {
		return noop.NewTracerProvider().Tracer("").Start(ctx, name)
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordJobProcessed(ctx context.Context, status string) {
	if o != nil && o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobDuration(ctx context.Context, duration time.Duration, status string) {
	if o != nil && o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordDelivery(ctx context.Context, channel, status string) {
	if o != nil && o.deliveries != nil {
		o.deliveries.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("status", status),
		))
	}
}

// RecordCredit counts units by operation (debit or refund).
func (o *Observability) RecordCredit(ctx context.Context, operation string, units int64) {
	if o != nil && o.creditUnits != nil {
		o.creditUnits.Add(ctx, units, otelmetric.WithAttributes(
			attribute.String("operation", operation),
		))
	}
}

func (o *Observability) Shutdown() {
	if o == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
}
