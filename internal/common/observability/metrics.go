// internal/common/observability/metrics.go
package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type Options struct {
	ServiceName   string
	TraceSampling float64
	// Registerer receives the OTel metrics collector; nil means the Prometheus default registry.
	Registerer promclient.Registerer
	// SpanProcessors are attached to the tracer provider (exporters, test recorders).
	SpanProcessors []sdktrace.SpanProcessor
}

type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	genCounter     otelmetric.Int64Counter
	genDuration    otelmetric.Float64Histogram
}

// New installs global meter and tracer providers for the service.
func New(opts Options) (*Observability, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = "astro-backend-llm"
	}

	exporterOpts := []prometheus.Option{}
	if opts.Registerer != nil {
		exporterOpts = append(exporterOpts, prometheus.WithRegisterer(opts.Registerer))
	}
	exporter, err := prometheus.New(exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", opts.ServiceName))

	meterProvider := metric.NewMeterProvider(metric.WithReader(exporter), metric.WithResource(res))
	otel.SetMeterProvider(meterProvider)

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.TraceSampling))),
	}
	for _, sp := range opts.SpanProcessors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(sp))
	}
	tracerProvider := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tracerProvider)

	meter := meterProvider.Meter(opts.ServiceName)

	genCounter, err := meter.Int64Counter(
		"generate.requests",
		otelmetric.WithDescription("Number of generate requests processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}

	genDuration, err := meter.Float64Histogram(
		"generate.duration",
		otelmetric.WithDescription("Generate request duration"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create histogram: %w", err)
	}

	return &Observability{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(opts.ServiceName),
		genCounter:     genCounter,
		genDuration:    genDuration,
	}, nil
}

func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordGeneration records one finished generate request; status is "success" or an error code.
func (o *Observability) RecordGeneration(ctx context.Context, status string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(attribute.String("status", status))
	o.genCounter.Add(ctx, 1, attrs)
	o.genDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (o *Observability) Shutdown(ctx context.Context) error {
	var errs []error
	if o.tracerProvider != nil {
		errs = append(errs, o.tracerProvider.Shutdown(ctx))
	}
	if o.meterProvider != nil {
		errs = append(errs, o.meterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
