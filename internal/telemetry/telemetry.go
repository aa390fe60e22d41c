// Package telemetry sets up request tracing for the server.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/mbroumsadja/WonderFilm/internal/config"
)

// Options describes where traces go and how many are kept.
type Options struct {
	ServiceName    string
	ServiceVersion string
	// Endpoint is the OTLP/HTTP collector, with or without scheme. Empty disables tracing.
	Endpoint   string
	SampleRate float64
}

// FromConfig builds Options for the wonderfilm service.
func FromConfig(cfg *config.Config, version string) Options {
	return Options{
		ServiceName:    "wonderfilm",
		ServiceVersion: version,
		Endpoint:       cfg.OTLPEndpoint,
		SampleRate:     cfg.TraceSample,
	}
}

// Enabled reports whether Init will install a tracer provider.
func (o Options) Enabled() bool {
	return strings.TrimSpace(o.Endpoint) != ""
}

// Init installs the global tracer provider and returns its shutdown func.
// When tracing is disabled the shutdown is a no-op and nothing global changes.
func Init(ctx context.Context, opts Options) (shutdown func(context.Context) error, err error) {
	if !opts.Enabled() {
		return func(context.Context) error { return nil }, nil
	}

	host, insecure, err := parseEndpoint(opts.Endpoint)
	if err != nil {
		return func(context.Context) error { return nil }, err
	}

	exporterOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(host),
		otlptracehttp.WithTimeout(3 * time.Second),
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{Enabled: false}),
	}
	if insecure {
		exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exporter, err := otlptracehttp.New(initCtx, exporterOpts...)
	if err != nil {
		return func(context.Context) error { return nil }, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			semconv.ServiceVersion(opts.ServiceVersion),
		),
	)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return func(context.Context) error { return nil }, fmt.Errorf("failed to build trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// parseEndpoint splits a collector address into host:port and whether plain
// HTTP is used. A bare host:port is plain HTTP.
func parseEndpoint(raw string) (host string, insecure bool, err error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		return strings.TrimSuffix(raw, "/"), true, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http":
		insecure = true
	case "https":
	default:
		return "", false, fmt.Errorf("unsupported OTLP endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("OTLP endpoint %q has no host", raw)
	}
	return u.Host, insecure, nil
}
