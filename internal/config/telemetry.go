package config

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"scodata/internal/core"
)

// tracer builds the tracer selected by Mode. The returned shutdown flushes
// the OpenTelemetry pipeline when one was started.
func (t TraceConfig) tracer(ctx context.Context, w io.Writer) (core.Tracer, func(context.Context) error, error) {
	name := strings.TrimSpace(t.ServiceName)
	if name == "" {
		name = "scodata"
	}
	switch strings.ToLower(strings.TrimSpace(t.Mode)) {
	case "", "none":
		return nil, nil, nil
	case "json":
		return core.NewJSONTracer(w).WithLabels(map[string]string{"service": name}), nil, nil
	case "otel-stdout", "otlp":
	default:
		return nil, nil, fmt.Errorf("trace.mode: unknown mode %q", t.Mode)
	}

	exporter, err := t.exporter(ctx, w)
	if err != nil {
		return nil, nil, fmt.Errorf("trace exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(name),
		attribute.String("service.component", "datastore"),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("trace resource: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	return core.NewOTelTracer(tp), tp.Shutdown, nil
}

func (t TraceConfig) exporter(ctx context.Context, w io.Writer) (sdktrace.SpanExporter, error) {
	if strings.EqualFold(t.Mode, "otlp") {
		var opts []otlptracehttp.Option
		if t.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(t.Endpoint), otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
	return stdouttrace.New(stdouttrace.WithWriter(w))
}
