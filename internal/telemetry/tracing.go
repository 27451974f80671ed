// Package telemetry sets up OpenTelemetry tracing. The provider is injected
// into components and never installed globally.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/soyeahso/roombot/internal/config"
	"github.com/soyeahso/roombot/internal/version"
)

// Span names.
const (
	SpanTurn     = "agent.turn"
	SpanComplete = "llm.complete"
	SpanDispatch = "tools.dispatch"
)

// TracerSetup holds the provider and the named tracer.
type TracerSetup struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracerSetup creates a provider exporting over OTLP/HTTP. It returns
// nil, nil when tracing is disabled.
func NewTracerSetup(ctx context.Context, cfg config.TracingConfig) (*TracerSetup, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opts := []otlptracehttp.Option{}
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}
	return NewWithExporter(ctx, cfg, exporter)
}

// NewWithExporter builds a provider around an arbitrary span exporter.
func NewWithExporter(ctx context.Context, cfg config.TracingConfig, exporter sdktrace.SpanExporter) (*TracerSetup, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "roombot"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	)
	return &TracerSetup{provider: tp, tracer: tp.Tracer(serviceName)}, nil
}

// Tracer returns the named tracer, or a no-op tracer on a nil setup.
func (t *TracerSetup) Tracer() trace.Tracer {
	if t == nil {
		return noop.NewTracerProvider().Tracer("")
	}
	return t.tracer
}

// ForceFlush exports all finished spans without stopping the provider.
func (t *TracerSetup) ForceFlush(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.ForceFlush(ctx)
}

// Shutdown flushes pending spans and stops the provider.
func (t *TracerSetup) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
