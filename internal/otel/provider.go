// Package otel sets up the OpenTelemetry log and trace providers.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var ErrNoExporter = errors.New("OTel enabled but no log writer or endpoint configured")

// Config holds OTel configuration
type Config struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	LogWriter    io.Writer // receives OTel log records (required unless Endpoint is set)
	Endpoint     string    // OTLP endpoint (optional, only used if set)
	Insecure     bool      // Use insecure connection for OTLP
	// Tracing exports launch spans to TraceWriter, or to LogWriter when nil.
	Tracing     bool
	TraceWriter io.Writer
}

// Provider manages OpenTelemetry providers for logs and traces
type Provider struct {
	logProvider   *sdklog.LoggerProvider
	traceProvider *sdktrace.TracerProvider
	config        Config
}

// New creates a new OTel provider with the given configuration.
// If OTel is disabled, returns a no-op provider.
func New(cfg Config) (*Provider, error) {
	p := &Provider{
		config: cfg,
	}

	if !cfg.Enabled {
		return p, nil
	}

	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	processors, err := logProcessors(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	for _, proc := range processors {
		opts = append(opts, sdklog.WithProcessor(proc))
	}
	p.logProvider = sdklog.NewLoggerProvider(opts...)

	if cfg.Tracing {
		w := cfg.TraceWriter
		if w == nil {
			w = cfg.LogWriter
		}
		if w != nil {
			if err := p.setupTracing(res, w); err != nil {
				return nil, err
			}
		}
	}

	return p, nil
}

// logProcessors builds one batch processor per configured destination.
func logProcessors(ctx context.Context, cfg Config) ([]sdklog.Processor, error) {
	batch := func(exp sdklog.Exporter) sdklog.Processor {
		return sdklog.NewBatchProcessor(exp, sdklog.WithExportTimeout(cfg.BatchTimeout))
	}

	var out []sdklog.Processor
	if cfg.LogWriter != nil {
		exp, err := stdoutlog.New(stdoutlog.WithWriter(cfg.LogWriter), stdoutlog.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("stdout log exporter: %w", err)
		}
		out = append(out, batch(exp))
	}
	if cfg.Endpoint != "" {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		exp, err := otlploghttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("OTLP log exporter: %w", err)
		}
		out = append(out, batch(exp))
	}
	if len(out) == 0 {
		return nil, ErrNoExporter
	}
	return out, nil
}

func (p *Provider) setupTracing(res *resource.Resource, w io.Writer) error {
	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}
	var batchOpts []sdktrace.BatchSpanProcessorOption
	if p.config.BatchTimeout > 0 {
		batchOpts = append(batchOpts, sdktrace.WithBatchTimeout(p.config.BatchTimeout))
	}
	p.traceProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, batchOpts...),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(p.traceProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return nil
}

// LoggerProvider returns the log provider for use with otelslog bridge.
// Returns nil if OTel is not enabled.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logProvider
}

// Tracer returns a tracer from the configured provider, or from the global
// provider (a no-op unless someone set one) when tracing is off.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p.traceProvider != nil {
		return p.traceProvider.Tracer(name)
	}
	return otel.Tracer(name)
}

// Meter returns a meter from the global meter provider.
func (p *Provider) Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Flush forces a flush of all pending logs and spans.
// Call it before exporting the impact history.
func (p *Provider) Flush(ctx context.Context) error {
	if !p.config.Enabled {
		return nil
	}

	if p.logProvider != nil {
		if err := p.logProvider.ForceFlush(ctx); err != nil {
			return fmt.Errorf("log flush failed: %w", err)
		}
	}
	if p.traceProvider != nil {
		if err := p.traceProvider.ForceFlush(ctx); err != nil {
			return fmt.Errorf("trace flush failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down all providers.
// Should be called when the application exits.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.config.Enabled {
		return nil
	}

	var errs []error
	if p.traceProvider != nil {
		if err := p.traceProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace shutdown failed: %w", err))
		}
	}
	if p.logProvider != nil {
		if err := p.logProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("log shutdown failed: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Enabled returns whether OTel is enabled
func (p *Provider) Enabled() bool {
	return p.config.Enabled
}

// TracingEnabled reports whether spans are exported.
func (p *Provider) TracingEnabled() bool {
	return p.traceProvider != nil
}
