// Package tracing installs an OpenTelemetry tracer provider for the
// pipeline stages (decode, assign, rewrite, typecheck, link, interpret),
// the way tecch-wiz-hintents' internal/telemetry package wires an OTLP
// HTTP exporter behind an Enabled flag. When profiling isn't requested,
// Init leaves otel's built-in no-op provider in place, so every call
// site below can start a span unconditionally.
package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Config controls whether profiling is on and where spans are exported.
type Config struct {
	// Enabled corresponds to the `--profiling` CLI flag.
	Enabled     bool
	ExporterURL string
	ServiceName string
}

// Shutdown flushes and stops the installed tracer provider, if any.
type Shutdown func(context.Context) error

// Init installs the global tracer provider per cfg and returns a Shutdown
// to call before the process exits. When cfg.Enabled is false, Init
// leaves otel's default no-op provider in place and returns a no-op
// Shutdown.
func Init(ctx context.Context, cfg Config) (Shutdown, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.ExporterURL),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", "dev"),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Tracer returns this repo's named tracer, whatever provider is
// currently installed (real or no-op).
func Tracer() oteltrace.Tracer {
	return otel.Tracer("github.com/wasmkit/owi")
}

// Stage names used as span names across the pipeline, kept as constants
// so every span started in cmd/owi uses the exact same string.
const (
	StageDecode    = "decode"
	StageAssign    = "assign"
	StageRewrite   = "rewrite"
	StageTypecheck = "typecheck"
	StageLink      = "link"
	StageInterpret = "interpret"
)

// Span starts a span named name under ctx, returning the (possibly
// unchanged) context and an end function to defer. Using this helper
// instead of calling Tracer().Start directly keeps every pipeline call
// site down to a single deferred line.
func Span(ctx context.Context, name string) (context.Context, func()) {
	ctx, span := Tracer().Start(ctx, name)
	return ctx, func() { span.End() }
}

// WithTimeout is a convenience wrapper around context.WithTimeout for
// callers that want to bound a single pipeline run, matching the
// 5-second shutdown grace period tecch-wiz-hintents uses for its own
// exporter flush.
func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 5*time.Second)
}
