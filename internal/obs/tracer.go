package obs

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds the process-wide tracer provider, mirroring the teacher's
// mopentelemetry.Telemetry but trimmed to tracing only (see DESIGN.md).
type Telemetry struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool

	provider *sdktrace.TracerProvider
}

// Init wires an OTLP-over-gRPC trace exporter when Enabled, otherwise
// leaves the global no-op tracer in place so every Tracer() call still
// works without a collector present.
func (t *Telemetry) Init(ctx context.Context) error {
	if !t.Enabled {
		return nil
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(t.Endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return fmt.Errorf("init trace exporter: %w", err)
	}

	res, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(t.ServiceName),
			semconv.ServiceVersion(t.ServiceVersion),
		),
	)
	if err != nil {
		return fmt.Errorf("build resource: %w", err)
	}

	t.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(t.provider)

	return nil
}

// Shutdown flushes and stops the exporter, if one was started.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}

	return t.provider.Shutdown(ctx)
}

// Tracer returns a named tracer off the (possibly no-op) global provider,
// matching the teacher's NewTracerFromContext fallback-to-default idiom.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// HandleSpanError records err on span and marks it failed — ported 1:1 in
// spirit from the teacher's mopentelemetry.HandleSpanError, the one call
// every stage/Saga/Projector/Watcher error path makes before logging.
func HandleSpanError(span trace.Span, message string, err error) {
	span.SetStatus(codes.Error, message+": "+err.Error())
	span.RecordError(err)
}

// SetAttr is a small convenience the teacher's SetSpanAttributesFromStruct
// generalises with JSON marshaling; this codebase's events are small enough
// that callers pass key/value pairs directly instead.
func SetAttr(span trace.Span, key, value string) {
	span.SetAttributes(attribute.KeyValue{Key: attribute.Key(key), Value: attribute.StringValue(value)})
}
