package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/quote-engine/business/quoting/app"
	"github.com/fd1az/quote-engine/internal/apperror"
	"github.com/fd1az/quote-engine/internal/circuitbreaker"
	"github.com/fd1az/quote-engine/internal/logger"
)

// ConnectionState represents the state of the head follower.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
)

// ConnectionStatus contains detailed connection information.
type ConnectionStatus struct {
	State      ConnectionState
	LastBlock  uint64
	Reconnects int
	UsingHTTP  bool // true while polling over HTTP
}

// HeadSource is the subset of *ethclient.Client used to follow the chain head.
type HeadSource interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Dialer opens a HeadSource for url.
type Dialer func(ctx context.Context, url string) (HeadSource, error)

// DialEthclient is the production Dialer.
func DialEthclient(ctx context.Context, url string) (HeadSource, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// HeadConfig holds configuration for the head trigger.
type HeadConfig struct {
	WSURL          string        // WebSocket endpoint (primary)
	HTTPURL        string        // HTTP endpoint (fallback)
	PollInterval   time.Duration // Polling interval for HTTP fallback
	ReconnectDelay time.Duration // How long to poll before retrying WS
}

// DefaultHeadConfig returns sensible defaults.
func DefaultHeadConfig(wsURL, httpURL string) HeadConfig {
	return HeadConfig{
		WSURL:          wsURL,
		HTTPURL:        httpURL,
		PollInterval:   12 * time.Second, // ~1 block time
		ReconnectDelay: 30 * time.Second,
	}
}

// headMetrics holds OTEL metric instruments.
type headMetrics struct {
	blocksReceived   metric.Int64Counter
	subscribeErrors  metric.Int64Counter
	connectionState  metric.Int64Gauge
	blockLatency     metric.Float64Histogram
	httpFallbackUsed metric.Int64Counter
}

// HeadTrigger emits a watcher tick per new block. It follows heads over WebSocket and
// polls over HTTP while the socket is down, retrying the socket every ReconnectDelay.
type HeadTrigger struct {
	config HeadConfig
	dial   Dialer
	logger logger.LoggerInterface

	httpSource HeadSource
	httpMu     sync.Mutex
	httpCB     *circuitbreaker.CircuitBreaker[*types.Header]

	state      ConnectionState
	stateMu    sync.RWMutex
	started    atomic.Bool
	usingHTTP  atomic.Bool
	lastBlock  atomic.Uint64
	reconnects atomic.Int32

	tracer  trace.Tracer
	metrics *headMetrics
}

var _ app.Trigger = (*HeadTrigger)(nil)

// NewHeadTrigger creates a head trigger. A nil dial uses DialEthclient.
func NewHeadTrigger(cfg HeadConfig, dial Dialer, log logger.LoggerInterface) (*HeadTrigger, error) {
	if dial == nil {
		dial = DialEthclient
	}
	if cfg.PollInterval <= 0 {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("poll interval must be positive"))
	}

	h := &HeadTrigger{
		config: cfg,
		dial:   dial,
		logger: log,
		state:  StateDisconnected,
		tracer: otel.Tracer(tracerName),
	}
	if err := h.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	cbCfg := circuitbreaker.DefaultConfig("eth-http-heads")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	h.httpCB = circuitbreaker.New[*types.Header](cbCfg)

	return h, nil
}

func (h *HeadTrigger) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	h.metrics = &headMetrics{}

	h.metrics.blocksReceived, err = meter.Int64Counter(
		"eth_blocks_received_total",
		metric.WithDescription("Total Ethereum blocks received"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return err
	}

	h.metrics.subscribeErrors, err = meter.Int64Counter(
		"eth_subscribe_errors_total",
		metric.WithDescription("Total Ethereum subscription errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	h.metrics.connectionState, err = meter.Int64Gauge(
		"eth_connection_state",
		metric.WithDescription("Ethereum connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting)"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return err
	}

	h.metrics.blockLatency, err = meter.Float64Histogram(
		"eth_block_latency_ms",
		metric.WithDescription("Latency from block timestamp to receipt"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	h.metrics.httpFallbackUsed, err = meter.Int64Counter(
		"eth_http_fallback_total",
		metric.WithDescription("Times HTTP fallback was used"),
		metric.WithUnit("{fallback}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Ticks implements app.Trigger. The channel closes when ctx is done.
func (h *HeadTrigger) Ticks(ctx context.Context) (<-chan app.Tick, error) {
	ctx, span := h.tracer.Start(ctx, "eth.heads.subscribe",
		trace.WithAttributes(
			attribute.Bool("ws_configured", h.config.WSURL != ""),
			attribute.Bool("http_configured", h.config.HTTPURL != ""),
		),
	)
	defer span.End()

	if !h.started.CompareAndSwap(false, true) {
		return nil, apperror.New(apperror.CodeInternalError, apperror.WithContext("head trigger already started"))
	}

	h.setState(StateConnecting)

	ws, err := h.dialURL(ctx, h.config.WSURL)
	if err != nil {
		h.logger.Warn(ctx, "ws connection failed, trying http fallback", "error", err)
		span.AddEvent("ws_failed_trying_http")

		if _, err := h.http(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "both connections failed")
			h.setState(StateDisconnected)
			h.started.Store(false)
			return nil, apperror.New(apperror.CodeEthereumConnectionFailed,
				apperror.WithCause(err),
				apperror.WithContext("failed to connect via WS and HTTP"))
		}
	}

	out := make(chan app.Tick, 1)
	go h.run(ctx, ws, out)

	span.SetStatus(codes.Ok, "subscribed")
	return out, nil
}

func (h *HeadTrigger) run(ctx context.Context, ws HeadSource, out chan<- app.Tick) {
	defer close(out)
	defer h.setState(StateDisconnected)

	for ctx.Err() == nil {
		if ws != nil {
			h.usingHTTP.Store(false)
			h.setState(StateConnected)
			h.followWS(ctx, ws, out)
			if ctx.Err() != nil {
				return
			}
			h.reconnects.Add(1)
			h.setState(StateReconnecting)
			ws = nil
		}

		h.pollFor(ctx, out)
		if ctx.Err() != nil {
			return
		}

		if h.config.WSURL != "" {
			var err error
			ws, err = h.dialURL(ctx, h.config.WSURL)
			if err != nil {
				h.logger.Debug(ctx, "ws reconnect failed", "error", err)
			}
		}
	}
}

// followWS processes heads until the subscription ends.
func (h *HeadTrigger) followWS(ctx context.Context, ws HeadSource, out chan<- app.Tick) {
	headers := make(chan *types.Header, 16)
	sub, err := ws.SubscribeNewHead(ctx, headers)
	if err != nil {
		h.logger.Error(ctx, "subscribe new head failed", "error", err)
		h.metrics.subscribeErrors.Add(ctx, 1)
		return
	}
	defer sub.Unsubscribe()

	h.logger.Info(ctx, "subscribed to new heads via ws")

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				h.logger.Error(ctx, "subscription error", "error", err)
				h.metrics.subscribeErrors.Add(ctx, 1)
			}
			return
		case header := <-headers:
			if header == nil {
				continue
			}
			h.emit(ctx, header, false, out)
		}
	}
}

// pollFor polls over HTTP for one ReconnectDelay window, or until ctx is done when no WS
// endpoint is configured.
func (h *HeadTrigger) pollFor(ctx context.Context, out chan<- app.Tick) {
	var deadline <-chan time.Time
	if h.config.WSURL != "" {
		timer := time.NewTimer(h.config.ReconnectDelay)
		defer timer.Stop()
		deadline = timer.C
	}

	src, err := h.http(ctx)
	if err != nil {
		h.logger.Error(ctx, "http fallback connection failed", "error", err)
		select {
		case <-ctx.Done():
		case <-deadline:
		}
		return
	}

	h.usingHTTP.Store(true)
	h.metrics.httpFallbackUsed.Add(ctx, 1)
	h.setState(StateConnected)
	h.logger.Info(ctx, "starting http polling fallback", "interval", h.config.PollInterval)

	ticker := time.NewTicker(h.config.PollInterval)
	defer ticker.Stop()

	h.pollLatest(ctx, src, out)
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-ticker.C:
			h.pollLatest(ctx, src, out)
		}
	}
}

func (h *HeadTrigger) pollLatest(ctx context.Context, src HeadSource, out chan<- app.Tick) {
	ctx, span := h.tracer.Start(ctx, "eth.poll.block")
	defer span.End()

	header, err := h.httpCB.Execute(func() (*types.Header, error) {
		return src.HeaderByNumber(ctx, nil) // nil = latest
	})
	if err != nil {
		span.RecordError(err)
		h.logger.Error(ctx, "http poll failed", "error", err)
		h.metrics.subscribeErrors.Add(ctx, 1)
		return
	}
	h.emit(ctx, header, true, out)
}

// emit sends a tick for header unless it is not newer than the last one seen.
func (h *HeadTrigger) emit(ctx context.Context, header *types.Header, fromHTTP bool, out chan<- app.Tick) {
	if header.Number == nil {
		return
	}
	number := header.Number.Uint64()
	if number <= h.lastBlock.Load() {
		return
	}
	h.lastBlock.Store(number)

	at := time.Unix(int64(header.Time), 0)
	h.metrics.blockLatency.Record(ctx, float64(time.Since(at).Milliseconds()))

	select {
	case out <- app.Tick{Block: number, At: at}:
		h.metrics.blocksReceived.Add(ctx, 1, metric.WithAttributes(attribute.Bool("from_http", fromHTTP)))
		h.logger.Debug(ctx, "block received", "number", number, "from_http", fromHTTP)
	default:
		h.logger.Warn(ctx, "block dropped, watcher busy", "number", number)
	}
}

func (h *HeadTrigger) dialURL(ctx context.Context, url string) (HeadSource, error) {
	if url == "" {
		return nil, errors.New("url not configured")
	}
	src, err := h.dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return src, nil
}

// http returns the HTTP head source, dialing it on first use.
func (h *HeadTrigger) http(ctx context.Context) (HeadSource, error) {
	h.httpMu.Lock()
	defer h.httpMu.Unlock()

	if h.httpSource != nil {
		return h.httpSource, nil
	}
	src, err := h.dialURL(ctx, h.config.HTTPURL)
	if err != nil {
		return nil, err
	}
	h.httpSource = src
	return src, nil
}

// State returns the current connection state.
func (h *HeadTrigger) State() ConnectionState {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.state
}

// Status returns detailed connection status.
func (h *HeadTrigger) Status() ConnectionStatus {
	return ConnectionStatus{
		State:      h.State(),
		LastBlock:  h.lastBlock.Load(),
		Reconnects: int(h.reconnects.Load()),
		UsingHTTP:  h.usingHTTP.Load(),
	}
}

func (h *HeadTrigger) setState(state ConnectionState) {
	h.stateMu.Lock()
	h.state = state
	h.stateMu.Unlock()

	stateValue := int64(0)
	switch state {
	case StateConnecting:
		stateValue = 1
	case StateConnected:
		stateValue = 2
	case StateReconnecting:
		stateValue = 3
	}
	h.metrics.connectionState.Record(context.Background(), stateValue)
}
