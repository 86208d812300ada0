// Package telemetry provides OpenTelemetry integration for the graph
// store. It sets up a global TracerProvider exporting over OTLP; the
// database wraps checkpoints and eviction in spans when enabled.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of the store's spans.
const TracerName = "github.com/goatdb/llama"

// Config configures tracing.
type Config struct {
	// Enabled turns tracing on; everything below is ignored otherwise.
	Enabled bool

	// ServiceName is the reported service name.
	ServiceName string

	// Endpoint is the OTLP collector endpoint.
	Endpoint string

	// Protocol selects the exporter: "grpc" (default) or "http/protobuf".
	Protocol string

	// Headers carry authentication for the collector.
	Headers map[string]string

	// Insecure disables TLS towards the collector.
	Insecure bool

	// SampleRatio samples a fraction of traces; <= 0 or >= 1 samples all.
	SampleRatio float64
}

// ShutdownFunc flushes and shuts down the TracerProvider.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(_ context.Context) error { return nil }

// Init initializes OpenTelemetry and installs the global TracerProvider.
// With tracing disabled it returns a no-op shutdown and leaves the default
// no-op provider in place.
func Init(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return noopShutdown, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "llama"
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return noopShutdown, fmt.Errorf("failed to build resource: %w", err)
	}

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return noopShutdown, fmt.Errorf("failed to create exporter: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// Tracer returns the store's tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartSpan starts a span with the given name and attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}
