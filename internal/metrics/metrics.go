// Package metrics configures the global OpenTelemetry meter provider.
package metrics

import (
	"context"
	"fmt"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
)

type Provider string

const (
	// PrometheusProvider exposes instruments on a Prometheus registry, scraped at /metrics.
	PrometheusProvider Provider = "prometheus"
	// OtelCollector pushes to an OTLP gRPC endpoint.
	OtelCollector Provider = "customOtelCollector"
)

type MetricProvider interface {
	Meter(name string, options ...metric.MeterOption) metric.Meter
	Shutdown(ctx context.Context) error
}

type Config struct {
	ServiceName string
	Provider    []ProviderCfg
	// Registerer receives the Prometheus collector; the default registry when nil.
	Registerer promclient.Registerer
}

type ProviderCfg struct {
	Provider Provider
	Endpoint string
	Headers  map[string]string
	Insecure bool
}

type OptionFn func(config Config) Config

func WithProviderConfig(provider ProviderCfg) OptionFn {
	return func(config Config) Config {
		config.Provider = append(config.Provider, provider)
		return config
	}
}

func WithServiceName(serviceName string) OptionFn {
	return func(config Config) Config {
		config.ServiceName = serviceName
		return config
	}
}

func WithRegisterer(reg promclient.Registerer) OptionFn {
	return func(config Config) Config {
		config.Registerer = reg
		return config
	}
}

func getReaders(ctx context.Context, cfg Config) ([]sdkmetric.Reader, error) {
	var readers []sdkmetric.Reader

	for _, provider := range cfg.Provider {
		switch provider.Provider {
		case PrometheusProvider:
			var opts []prometheus.Option
			if cfg.Registerer != nil {
				opts = append(opts, prometheus.WithRegisterer(cfg.Registerer))
			}
			exp, err := prometheus.New(opts...)
			if err != nil {
				return nil, fmt.Errorf("prometheus exporter: %w", err)
			}
			readers = append(readers, exp)

		case OtelCollector:
			opts := []otlpmetricgrpc.Option{
				otlpmetricgrpc.WithEndpointURL(provider.Endpoint),
				otlpmetricgrpc.WithHeaders(provider.Headers),
			}
			if provider.Insecure {
				opts = append(opts, otlpmetricgrpc.WithInsecure())
			}
			exp, err := otlpmetricgrpc.New(ctx, opts...)
			if err != nil {
				return nil, fmt.Errorf("otlp exporter: %w", err)
			}
			readers = append(readers, sdkmetric.NewPeriodicReader(exp))

		default:
			return nil, fmt.Errorf("unknown metric provider %q", provider.Provider)
		}
	}
	return readers, nil
}

// NewMetricProvider installs a global meter provider. With no provider configured the
// otel no-op meter stays in place and nil is returned.
func NewMetricProvider(ctx context.Context, options ...OptionFn) (MetricProvider, error) {
	var cfg Config
	for _, opt := range options {
		cfg = opt(cfg)
	}
	if len(cfg.Provider) == 0 {
		return nil, nil
	}

	readers, err := getReaders(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(resource.NewSchemaless(semconv.ServiceNameKey.String(cfg.ServiceName))),
	}
	for _, reader := range readers {
		opts = append(opts, sdkmetric.WithReader(reader))
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(meterProvider)

	return meterProvider, nil
}
