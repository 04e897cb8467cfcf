// Package httpclient is the outbound client for third-party JSON APIs. Requests are traced
// through otelhttp and counted per provider and endpoint.
package httpclient

import (
	"context"
	"fmt"
	"maps"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/fd1az/quote-engine/internal/httpclient"

	defaultRequestTimeout  = 10 * time.Second
	defaultDialKeepAlive   = 10 * time.Second
	defaultMaxConnsPerHost = 8
	defaultIdleConnTimeout = 2 * time.Minute
)

// Client sends requests relative to a base URL with a fixed header set.
type Client struct {
	http        *http.Client
	provider    string
	baseURL     *url.URL
	headers     http.Header
	tracer      trace.Tracer
	requests    metric.Int64Counter
	duration    metric.Float64Histogram
	traceBodies bool
}

type options struct {
	provider      string
	baseURL       string
	timeout       time.Duration
	headers       map[string]string
	transport     http.RoundTripper
	meterProvider metric.MeterProvider
	tracer        trace.Tracer
	traceBodies   bool
}

// Option configures a Client.
type Option func(*options)

// WithProviderName labels spans and metrics.
func WithProviderName(name string) Option {
	return func(o *options) { o.provider = name }
}

// WithBaseURL sets the URL request paths are resolved against.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithRequestTimeout bounds each request, body read included.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithHeaders sets headers sent on every request.
func WithHeaders(h map[string]string) Option {
	return func(o *options) { o.headers = h }
}

// WithTransport replaces the pooled default transport. It is still wrapped by otelhttp.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithTracer sets the tracer for request spans and, when bodies is true, records request and
// response bodies as span events.
func WithTracer(tracer trace.Tracer, bodies bool) Option {
	return func(o *options) {
		o.tracer = tracer
		o.traceBodies = bodies
	}
}

// New creates a Client.
func New(opts ...Option) (*Client, error) {
	o := options{provider: "default", timeout: defaultRequestTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	var base *url.URL
	if o.baseURL != "" {
		u, err := url.Parse(o.baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url %q: %w", o.baseURL, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid base url %q: scheme and host required", o.baseURL)
		}
		base = u
	}

	transport := o.transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			DialContext:     (&net.Dialer{KeepAlive: defaultDialKeepAlive}).DialContext,
			MaxConnsPerHost: defaultMaxConnsPerHost,
			IdleConnTimeout: defaultIdleConnTimeout,
		}
	}
	transport = otelhttp.NewTransport(transport,
		otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
			return otelhttptrace.NewClientTrace(ctx)
		}),
	)

	mp := o.meterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	requests, err := meter.Int64Counter("http_client_requests_total",
		metric.WithDescription("Outbound HTTP requests by provider, endpoint and outcome"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("http_client_request_duration_seconds",
		metric.WithDescription("Outbound HTTP request latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tracer := o.tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}

	headers := make(http.Header, len(o.headers))
	for k, v := range o.headers {
		headers.Set(k, v)
	}

	return &Client{
		http:        &http.Client{Transport: transport, Timeout: o.timeout},
		provider:    o.provider,
		baseURL:     base,
		headers:     headers,
		tracer:      tracer,
		requests:    requests,
		duration:    duration,
		traceBodies: o.traceBodies,
	}, nil
}

// NewRequest starts a request. endpoint labels its metrics; it is not part of the URL.
func (c *Client) NewRequest(endpoint string) *Request {
	return &Request{
		client:   c,
		endpoint: endpoint,
		query:    url.Values{},
		headers:  maps.Clone(c.headers),
	}
}

func (c *Client) resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	if c.baseURL == nil || ref.IsAbs() {
		return ref.String(), nil
	}
	return c.baseURL.JoinPath(ref.Path).String(), nil
}

func (c *Client) record(ctx context.Context, endpoint, outcome string, status int, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("provider", c.provider),
		attribute.String("endpoint", endpoint),
		attribute.String("outcome", outcome),
		attribute.Int("status", status),
	)
	c.requests.Add(ctx, 1, attrs)
	c.duration.Record(ctx, elapsed.Seconds(), attrs)
}
