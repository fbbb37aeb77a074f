// Package telemetry configures OpenTelemetry tracing for a run.
package telemetry

import (
	"context"
	"fmt"

	"github.com/vk/rulegrid/internal/ctxlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Config configures the trace exporter.
type Config struct {
	// Endpoint is the OTLP gRPC collector host:port. Empty disables tracing.
	Endpoint string
	// ServiceName and ServiceVersion describe the traced process.
	ServiceName    string
	ServiceVersion string
	// SampleRate is the fraction of traces kept, from 0 to 1.
	SampleRate float64
}

// ShutdownFunc flushes pending spans and stops the exporter.
type ShutdownFunc func(context.Context) error

// Setup installs a global tracer provider exporting to cfg.Endpoint. With
// an empty endpoint nothing is installed and the returned shutdown is a
// no-op, so spans go to the default no-op provider.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	logger := ctxlog.FromContext(ctx)
	if cfg.Endpoint == "" {
		logger.Debug("Tracing disabled: no OTLP endpoint configured.")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(newResource(cfg.ServiceName, cfg.ServiceVersion)),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)

	logger.Info("Tracing enabled.", "endpoint", cfg.Endpoint, "service", cfg.ServiceName, "sample_rate", cfg.SampleRate)
	return tp.Shutdown, nil
}

func newResource(name, version string) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(name),
		semconv.ServiceVersion(version),
	)
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}
