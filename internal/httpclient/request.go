package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxBodyBytes caps response bodies; quote APIs answer with small JSON documents.
const maxBodyBytes = 1 << 20

// ResponseErrorHandler turns a status and body into an error, or nil to accept the response.
type ResponseErrorHandler func(status int, body []byte) error

// StatusError is returned for responses of 400 and above when no handler is set.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Status, bytes.TrimSpace(e.Body))
}

// Response is a fully read response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Request builds one call. It is not safe for concurrent use.
type Request struct {
	client   *Client
	endpoint string
	query    url.Values
	headers  http.Header
	body     any
	result   any
	onError  ResponseErrorHandler
}

// Query adds a query parameter.
func (r *Request) Query(key, value string) *Request {
	r.query.Add(key, value)
	return r
}

func (r *Request) Header(key, value string) *Request {
	r.headers.Set(key, value)
	return r
}

// JSON sets a body that is encoded as JSON.
func (r *Request) JSON(body any) *Request {
	r.body = body
	return r
}

// Into decodes a successful response body into result.
func (r *Request) Into(result any) *Request {
	r.result = result
	return r
}

// OnError replaces the default status check.
func (r *Request) OnError(h ResponseErrorHandler) *Request {
	r.onError = h
	return r
}

func (r *Request) Get(ctx context.Context, path string) (*Response, error) {
	return r.do(ctx, http.MethodGet, path)
}

func (r *Request) Post(ctx context.Context, path string) (*Response, error) {
	return r.do(ctx, http.MethodPost, path)
}

func (r *Request) do(ctx context.Context, method, path string) (*Response, error) {
	c := r.client
	ctx, span := c.tracer.Start(ctx, "http.client."+r.endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("provider", c.provider),
			attribute.String("endpoint", r.endpoint),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := r.send(ctx, span, method, path)
	status := 0
	if resp != nil {
		status = resp.StatusCode
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.record(ctx, r.endpoint, outcome(err), status, time.Since(start))
		return resp, err
	}
	c.record(ctx, r.endpoint, "ok", status, time.Since(start))
	return resp, nil
}

func (r *Request) send(ctx context.Context, span trace.Span, method, path string) (*Response, error) {
	c := r.client

	target, err := c.resolve(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		if c.traceBodies {
			span.AddEvent("request.body", trace.WithAttributes(attribute.String("http.request_body", string(payload))))
		}
		body = bytes.NewReader(payload)
		if r.headers.Get("Content-Type") == "" {
			r.headers.Set("Content-Type", "application/json")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = r.headers

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if c.traceBodies {
		span.AddEvent("response.body", trace.WithAttributes(attribute.String("http.response_body", string(raw))))
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: raw}

	check := r.onError
	if check == nil {
		check = defaultErrorHandler
	}
	if err := check(resp.StatusCode, raw); err != nil {
		return resp, err
	}

	if r.result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, r.result); err != nil {
			return resp, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp, nil
}

func defaultErrorHandler(status int, body []byte) error {
	if status < http.StatusBadRequest {
		return nil
	}
	return &StatusError{Status: status, Body: body}
}

func outcome(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	default:
		return "error"
	}
}
