package app

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	tracerName = "github.com/fd1az/quote-engine/business/quoting/app"
	meterName  = "github.com/fd1az/quote-engine/business/quoting/app"
)

// quotingMetrics holds OTEL metric instruments shared by the quoting services.
type quotingMetrics struct {
	quotesTotal      metric.Int64Counter
	quoteLatency     metric.Float64Histogram
	sourceFailures   metric.Int64Counter
	sourceTimeouts   metric.Int64Counter
	staleFeeds       metric.Int64Counter
	safetyRejections metric.Int64Counter
}

func initMetrics() (*quotingMetrics, error) {
	meter := otel.Meter(meterName)
	var err error

	m := &quotingMetrics{}

	m.quotesTotal, err = meter.Int64Counter(
		"quoting_requests_total",
		metric.WithDescription("Top-level quote requests by operation and outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.quoteLatency, err = meter.Float64Histogram(
		"quoting_request_latency_ms",
		metric.WithDescription("Top-level quote latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	m.sourceFailures, err = meter.Int64Counter(
		"quoting_source_failures_total",
		metric.WithDescription("Collaborator failures degraded to a zero quote"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	m.sourceTimeouts, err = meter.Int64Counter(
		"quoting_source_timeouts_total",
		metric.WithDescription("Aggregator branches cut off by the per-source timeout"),
		metric.WithUnit("{timeout}"),
	)
	if err != nil {
		return nil, err
	}

	m.staleFeeds, err = meter.Int64Counter(
		"quoting_stale_feeds_total",
		metric.WithDescription("Feed readings rejected as stale"),
		metric.WithUnit("{feed}"),
	)
	if err != nil {
		return nil, err
	}

	m.safetyRejections, err = meter.Int64Counter(
		"quoting_safety_rejections_total",
		metric.WithDescription("Dex quotes rejected against the oracle reference"),
		metric.WithUnit("{rejection}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
