// Package apm configures the global OpenTelemetry tracer provider.
package apm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/fd1az/quote-engine/internal/logger"
)

type Provider string

const (
	ZipkinProvider   Provider = "ZIPKIN_PROVIDER"
	OTLPGRPCProvider Provider = "OTLP_GRPC_PROVIDER"
	OTLPHTTPProvider Provider = "OTLP_HTTP_PROVIDER"
	ConsoleProvider  Provider = "CONSOLE_PROVIDER"
	EmptyProvider    Provider = "EMPTY_PROVIDER"
)

// Config selects the span exporter.
type Config struct {
	Provider    Provider
	ServiceName string
	Endpoint    string
	Headers     map[string]string
}

type TraceProvider interface {
	Stop(ctx context.Context) error
}

type traceProvider struct {
	tp *sdktrace.TracerProvider
}

type emptyProvider struct{}

func (emptyProvider) Stop(context.Context) error { return nil }

// NewTraceProvider installs a global tracer provider. Unknown providers fall back to the
// empty one, which leaves the otel no-op tracer in place.
func NewTraceProvider(cfg Config, log logger.LoggerInterface) (TraceProvider, error) {
	exp, err := newExporter(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", cfg.Provider, err)
	}
	if exp == nil {
		if cfg.Provider != EmptyProvider && cfg.Provider != "" {
			log.Warn(context.Background(), "trace provider not found, using empty provider", "provider", cfg.Provider)
		}
		return emptyProvider{}, nil
	}

	rsrc, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			attribute.String("otel.provider", string(cfg.Provider)),
		))
	if err != nil {
		// Schema URL conflicts only lose the default attributes.
		rsrc = resource.NewSchemaless(semconv.ServiceNameKey.String(cfg.ServiceName))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(rsrc),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

	log.Info(context.Background(), "tracing initialized", "provider", cfg.Provider, "endpoint", cfg.Endpoint)
	return &traceProvider{tp}, nil
}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	ctx := context.Background()

	switch cfg.Provider {
	case ZipkinProvider:
		return zipkin.New(cfg.Endpoint)
	case OTLPGRPCProvider:
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpointURL(cfg.Endpoint),
			otlptracegrpc.WithHeaders(cfg.Headers),
		)
	case OTLPHTTPProvider:
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpointURL(cfg.Endpoint),
			otlptracehttp.WithHeaders(cfg.Headers),
		)
	case ConsoleProvider:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, nil
	}
}

// ParseHeaders reads "k1=v1,k2=v2" as used by OTEL_EXPORTER_OTLP_HEADERS.
func ParseHeaders(s string) (map[string]string, error) {
	headers := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid header %q, expected key=value", pair)
		}
		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return headers, nil
}

func (o *traceProvider) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return o.tp.Shutdown(ctx)
}
