package tracing

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.27.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const defaultServiceName = "agentic-rag"

var tracer oteltrace.Tracer = otel.Tracer(defaultServiceName)

// Config holds tracing configuration
type Config struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// Initialize sets up OTLP tracing and returns a shutdown func that flushes pending spans.
// With tracing disabled the Start* helpers still work against the no-op provider.
func Initialize(cfg Config, version string, logger *zap.Logger) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	tracer = otel.Tracer(cfg.ServiceName)

	if !cfg.Enabled {
		logger.Info("Tracing disabled")
		return noop, nil
	}
	if cfg.OTLPEndpoint == "" {
		cfg.OTLPEndpoint = "localhost:4317"
	}

	exporter, err := otlptracegrpc.New(
		context.Background(),
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return noop, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return noop, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer(cfg.ServiceName)

	logger.Info("Tracing initialized", zap.String("endpoint", cfg.OTLPEndpoint))
	return tp.Shutdown, nil
}

// W3CTraceparent generates a W3C traceparent header value
func W3CTraceparent(ctx context.Context) string {
	span := oteltrace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}

	sc := span.SpanContext()
	return fmt.Sprintf("00-%s-%s-%02x",
		sc.TraceID().String(),
		sc.SpanID().String(),
		sc.TraceFlags(),
	)
}

// InjectTraceparent adds W3C traceparent header to HTTP request
func InjectTraceparent(ctx context.Context, req *http.Request) {
	if traceparent := W3CTraceparent(ctx); traceparent != "" {
		req.Header.Set("traceparent", traceparent)
	}
}

// StartSpan creates a new span with the given name
func StartSpan(ctx context.Context, spanName string) (context.Context, oteltrace.Span) {
	return tracer.Start(ctx, spanName)
}

// StartNodeSpan opens a span for one workflow node.
func StartNodeSpan(ctx context.Context, node, queryType string) (context.Context, oteltrace.Span) {
	ctx, span := tracer.Start(ctx, "workflow."+node)
	span.SetAttributes(
		attribute.String("rag.node", node),
		attribute.String("rag.query_type", queryType),
	)
	return ctx, span
}

// StartHTTPSpan creates a span for HTTP operations with method and URL
func StartHTTPSpan(ctx context.Context, method, url string) (context.Context, oteltrace.Span) {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("HTTP %s", method))
	span.SetAttributes(
		semconv.HTTPRequestMethodKey.String(method),
		semconv.URLFull(url),
	)
	return ctx, span
}

// EndSpan records err (if any) and ends span.
func EndSpan(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ParseTraceparent parses W3C traceparent header
func ParseTraceparent(traceparent string) (traceID, spanID string, flags byte, valid bool) {
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return "", "", 0, false
	}
	if parts[0] != "00" || len(parts[1]) != 32 || len(parts[2]) != 16 {
		return "", "", 0, false
	}

	traceID = parts[1]
	spanID = parts[2]

	var flagsInt int
	if _, err := fmt.Sscanf(parts[3], "%02x", &flagsInt); err != nil {
		return "", "", 0, false
	}
	flags = byte(flagsInt)

	return traceID, spanID, flags, true
}
