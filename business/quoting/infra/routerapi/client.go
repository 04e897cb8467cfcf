// Package routerapi quotes through an off-chain best-rate router HTTP API.
package routerapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/quote-engine/business/quoting/app"
	"github.com/fd1az/quote-engine/internal/apperror"
	"github.com/fd1az/quote-engine/internal/cache"
	"github.com/fd1az/quote-engine/internal/circuitbreaker"
	"github.com/fd1az/quote-engine/internal/httpclient"
	"github.com/fd1az/quote-engine/internal/logger"
)

const (
	tracerName = "github.com/fd1az/quote-engine/business/quoting/infra/routerapi"

	quoteEndpoint = "/v1/quote"
	poolEndpoint  = "/v1/pools/"

	defaultTimeout = 5 * time.Second

	feeTTL        = 10 * time.Minute
	feeSweepEvery = time.Minute
)

// Config holds configuration for the router API client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	APIKey  string
}

// Client implements app.RouterQuoter over HTTP.
type Client struct {
	client *httpclient.Client
	cb     *circuitbreaker.CircuitBreaker[*httpclient.Response]
	// Quotes carry pool fees, so PoolFee rarely needs a request. Entries expire after feeTTL.
	fees   *cache.Cache[common.Address, uint32]
	logger logger.LoggerInterface
	tracer trace.Tracer
}

var _ app.RouterQuoter = (*Client)(nil)

// New creates a router API client.
func New(cfg Config, log logger.LoggerInterface) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("router api url required"))
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	headers := map[string]string{"Accept": "application/json"}
	if cfg.APIKey != "" {
		headers["X-API-Key"] = cfg.APIKey
	}

	tracer := otel.Tracer(tracerName)
	client, err := httpclient.New(
		httpclient.WithProviderName("router-api"),
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithRequestTimeout(timeout),
		httpclient.WithTracer(tracer, true),
		httpclient.WithHeaders(headers),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	cbCfg := circuitbreaker.DefaultConfig("router-api")
	// Client errors such as "no route" mean the API is healthy.
	cbCfg.IsSuccessful = func(err error) bool {
		var apiErr *APIError
		return err == nil || (errors.As(err, &apiErr) && apiErr.Status < 500)
	}
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}

	return &Client{
		client: client,
		cb:     circuitbreaker.New[*httpclient.Response](cbCfg),
		fees:   cache.New[common.Address, uint32](feeSweepEvery),
		logger: log,
		tracer: tracer,
	}, nil
}

// Close stops the fee cache janitor.
func (c *Client) Close() {
	c.fees.Close()
}

// QuoteResponse is the body of a successful quote.
type QuoteResponse struct {
	Pool      string `json:"pool"`
	AmountOut string `json:"amountOut"`
	FeePips   uint32 `json:"feePips"`
}

// PoolResponse is the body of a pool lookup.
type PoolResponse struct {
	Address string `json:"address"`
	FeePips uint32 `json:"feePips"`
}

// APIError is the error body of the router API.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("router api error %d %s: %s", e.Status, e.Code, e.Message)
}

func errorHandler(statusCode int, body []byte) error {
	if statusCode < 400 {
		return nil
	}
	apiErr := &APIError{Status: statusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = string(body)
	}
	return apiErr
}

// BestRate implements app.RouterQuoter.
func (c *Client) BestRate(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (common.Address, *big.Int, error) {
	ctx, span := c.tracer.Start(ctx, "routerapi.best_rate",
		trace.WithAttributes(
			attribute.String("token_in", tokenIn.Hex()),
			attribute.String("token_out", tokenOut.Hex()),
		),
	)
	defer span.End()

	var result QuoteResponse
	_, err := c.cb.Execute(func() (*httpclient.Response, error) {
		return c.client.NewRequest("quote").
			Query("tokenIn", tokenIn.Hex()).
			Query("tokenOut", tokenOut.Hex()).
			Query("amountIn", amountIn.String()).
			OnError(errorHandler).
			Into(&result).
			Get(ctx, quoteEndpoint)
	})
	if err != nil {
		span.RecordError(err)
		return common.Address{}, nil, c.failure(apperror.CodeRouterQuoteFailed, err, "quote")
	}

	if !common.IsHexAddress(result.Pool) {
		return common.Address{}, nil, apperror.New(apperror.CodeInvalidContractResponse,
			apperror.WithContext("router api returned pool "+result.Pool))
	}
	amountOut, ok := new(big.Int).SetString(result.AmountOut, 10)
	if !ok || amountOut.Sign() < 0 {
		return common.Address{}, nil, apperror.New(apperror.CodeInvalidContractResponse,
			apperror.WithContext("router api returned amountOut "+result.AmountOut))
	}

	pool := common.HexToAddress(result.Pool)
	if result.FeePips > 0 {
		c.fees.Set(ctx, pool, result.FeePips, feeTTL)
	}

	span.SetAttributes(attribute.String("pool", pool.Hex()), attribute.String("amount_out", amountOut.String()))
	return pool, amountOut, nil
}

// PoolFee implements app.RouterQuoter.
func (c *Client) PoolFee(ctx context.Context, pool common.Address) (uint32, error) {
	if fee, ok := c.fees.Get(ctx, pool); ok {
		return fee, nil
	}

	ctx, span := c.tracer.Start(ctx, "routerapi.pool_fee",
		trace.WithAttributes(attribute.String("pool", pool.Hex())),
	)
	defer span.End()

	var result PoolResponse
	_, err := c.cb.Execute(func() (*httpclient.Response, error) {
		return c.client.NewRequest("pool").
			OnError(errorHandler).
			Into(&result).
			Get(ctx, poolEndpoint+pool.Hex())
	})
	if err != nil {
		span.RecordError(err)
		return 0, c.failure(apperror.CodeRouterQuoteFailed, err, "pool fee")
	}

	c.fees.Set(ctx, pool, result.FeePips, feeTTL)
	return result.FeePips, nil
}

func (c *Client) failure(code apperror.Code, err error, what string) error {
	if circuitbreaker.IsOpen(err) {
		code = apperror.CodeCircuitOpen
	}
	c.logger.Debug(context.Background(), "router api request failed", "request", what, "error", err)
	return apperror.New(code, apperror.WithCause(err), apperror.WithContext(what))
}
