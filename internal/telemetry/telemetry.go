// Package telemetry installs the OpenTelemetry tracer and meter providers
// used by the solver.
//
// Metrics are collected by the OpenTelemetry Prometheus exporter into a
// private registry. A CLI run has no scrape endpoint, so the registry is
// written to a node_exporter text file instead (see Provider.WriteMetrics).
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/launchcg/stratum/internal/errors"
)

// Trace exporters.
const (
	TraceNone   = "none"
	TraceStdout = "stdout"
)

// ErrUnknownExporter is returned for an unsupported trace exporter name.
var ErrUnknownExporter = errors.New("unknown exporter")

// Config controls what Init installs.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// TraceExporter is "none" (the default) or "stdout".
	TraceExporter string
	// TraceWriter receives stdout spans. Defaults to os.Stderr.
	TraceWriter io.Writer

	// Metrics enables the meter provider.
	Metrics bool
}

// DefaultConfig returns a config with tracing off and metrics on.
func DefaultConfig() Config {
	return Config{
		ServiceName:   "stratum",
		TraceExporter: getEnvOr("STRATUM_TRACES_EXPORTER", TraceNone),
		Metrics:       true,
	}
}

// Provider holds the installed providers.
type Provider struct {
	registry *prometheus.Registry
	shutdown []func(context.Context) error
}

// Init installs global tracer and meter providers as configured. The
// returned Provider must be shut down to flush spans.
func Init(_ context.Context, cfg Config) (*Provider, error) {
	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)
	p := &Provider{}

	switch cfg.TraceExporter {
	case "", TraceNone:
	case TraceStdout:
		w := cfg.TraceWriter
		if w == nil {
			w = os.Stderr
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		p.shutdown = append(p.shutdown, tp.Shutdown)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.TraceExporter)
	}

	if cfg.Metrics {
		p.registry = prometheus.NewRegistry()
		exporter, err := promexporter.New(promexporter.WithRegisterer(p.registry))
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		otel.SetMeterProvider(mp)
		p.shutdown = append(p.shutdown, mp.Shutdown)
	}

	return p, nil
}

// Gatherer returns the metrics registry, or nil when metrics are off.
func (p *Provider) Gatherer() prometheus.Gatherer {
	if p.registry == nil {
		return nil
	}
	return p.registry
}

// WriteMetrics writes the current metric values to path in the Prometheus
// text format. The file is replaced atomically.
func (p *Provider) WriteMetrics(path string) error {
	if p.registry == nil {
		return errors.New("metrics are not enabled")
	}
	if err := prometheus.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
