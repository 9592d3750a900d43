package otelexport

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/agentcore/internal/trajectory"
)

// Config configures the OpenTelemetry OTLP exporter.
type Config struct {
	Endpoint    string            // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            // "grpc" (default) or "http"
	Insecure    bool              // skip TLS for local dev
	ServiceName string            // OTel service name (default "agentcore")
	Headers     map[string]string // extra headers (auth tokens, etc.)
}

// Exporter converts step records to OTel spans and exports them via OTLP.
// It implements trajectory.SpanExporter.
type Exporter struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

var _ trajectory.SpanExporter = (*Exporter)(nil)

// New creates an OTLP exporter with the given config.
func New(ctx context.Context, cfg Config) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTLP endpoint is required")
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "agentcore"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Protocol {
	case "http":
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default: // "grpc"
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(100),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)

	return &Exporter{
		provider: tp,
		tracer:   tp.Tracer("agentcore"),
	}, nil
}

// ExportSteps converts step records to OTel spans and exports them.
// Called by the collector during flush alongside the store insert.
func (e *Exporter) ExportSteps(ctx context.Context, steps []trajectory.StepRecord) {
	if e == nil || len(steps) == 0 {
		return
	}
	for _, rec := range steps {
		e.exportStep(ctx, rec)
	}
}

func (e *Exporter) exportStep(ctx context.Context, rec trajectory.StepRecord) {
	// All steps of a run share one trace id derived from the run uuid.
	parentCtx := trace.ContextWithRemoteSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    runTraceID(rec.RunID),
		SpanID:     stepSpanID(rec.RunID, 0),
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))

	attrs := []attribute.KeyValue{
		attribute.String("agentcore.run_id", rec.RunID),
		attribute.Int("agentcore.step.number", rec.Number),
		attribute.String("agentcore.step.state", rec.State),
	}
	if rec.InputTokens > 0 {
		attrs = append(attrs, attribute.Int("gen_ai.usage.input_tokens", rec.InputTokens))
	}
	if rec.OutputTokens > 0 {
		attrs = append(attrs, attribute.Int("gen_ai.usage.output_tokens", rec.OutputTokens))
	}
	if rec.ToolCalls != "" {
		attrs = append(attrs, attribute.String("agentcore.tool_calls", truncateAttr(rec.ToolCalls)))
	}
	if rec.Reflection != "" {
		attrs = append(attrs, attribute.String("agentcore.reflection", truncateAttr(rec.Reflection)))
	}
	if rec.DurationMS > 0 {
		attrs = append(attrs, attribute.Int("agentcore.duration_ms", rec.DurationMS))
	}

	_, span := e.tracer.Start(parentCtx, fmt.Sprintf("step %d", rec.Number),
		trace.WithTimestamp(rec.StartedAt),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)

	if rec.Error != "" {
		span.SetStatus(codes.Error, rec.Error)
		span.RecordError(fmt.Errorf("%s", rec.Error))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	endTime := rec.FinishedAt
	if endTime.IsZero() {
		endTime = rec.StartedAt.Add(time.Duration(rec.DurationMS) * time.Millisecond)
	}
	span.End(trace.WithTimestamp(endTime))
}

// Shutdown flushes remaining spans and stops the provider.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	slog.Info("otel exporter shutting down")
	return e.provider.Shutdown(ctx)
}

// runTraceID derives the 16-byte OTel trace id from the run uuid. Non-uuid
// run ids hash down to a stable id instead.
func runTraceID(runID string) trace.TraceID {
	if id, err := uuid.Parse(runID); err == nil {
		return trace.TraceID(id)
	}
	sum := sha256.Sum256([]byte(runID))
	var tid trace.TraceID
	copy(tid[:], sum[:16])
	return tid
}

// stepSpanID derives a stable 8-byte span id from the run id and step number.
func stepSpanID(runID string, number int) trace.SpanID {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s/%d", runID, number)))
	var sid trace.SpanID
	copy(sid[:], sum[:8])
	return sid
}

func truncateAttr(s string) string {
	const maxLen = 500
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
