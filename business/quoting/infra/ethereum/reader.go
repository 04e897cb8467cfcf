package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
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
	"github.com/fd1az/quote-engine/internal/ratelimit"
)

const (
	tracerName = "github.com/fd1az/quote-engine/business/quoting/infra/ethereum"
	meterName  = "github.com/fd1az/quote-engine/business/quoting/infra/ethereum"
)

// Backend is the subset of *ethclient.Client the reader needs.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// ReaderConfig tunes the chain reader.
type ReaderConfig struct {
	RequestsPerSecond float64
	Burst             int
	// CodeCacheSize bounds the set of addresses remembered as deployed.
	CodeCacheSize int
	// MetadataCacheSize bounds the decimals and tick spacing caches, each.
	MetadataCacheSize int
}

// DefaultReaderConfig returns sensible defaults.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		RequestsPerSecond: 25,
		Burst:             50,
		CodeCacheSize:     4096,
		MetadataCacheSize: 4096,
	}
}

// readerMetrics holds OTEL metric instruments.
type readerMetrics struct {
	callsTotal  metric.Int64Counter
	callLatency metric.Float64Histogram
	callErrors  metric.Int64Counter
	cacheHits   metric.Int64Counter
}

// ChainReader performs rate-limited, breaker-guarded contract reads.
type ChainReader struct {
	backend Backend
	abis    *contracts
	limiter *ratelimit.Limiter
	cb      *circuitbreaker.CircuitBreaker[[]byte]

	// Deployed code never disappears, so only positive answers are cached.
	deployed *lru.Cache[common.Address, struct{}]
	decimals *lru.Cache[common.Address, uint8]
	spacing  *lru.Cache[common.Address, int]

	logger  logger.LoggerInterface
	tracer  trace.Tracer
	metrics *readerMetrics
}

var (
	_ app.CodeChecker   = (*ChainReader)(nil)
	_ app.PairReader    = (*ChainReader)(nil)
	_ app.PoolReader    = (*ChainReader)(nil)
	_ app.TokenDecimals = (*ChainReader)(nil)
)

// NewChainReader creates a reader over backend.
func NewChainReader(backend Backend, cfg ReaderConfig, log logger.LoggerInterface) (*ChainReader, error) {
	abis, err := loadContracts()
	if err != nil {
		return nil, err
	}

	size := cfg.CodeCacheSize
	if size <= 0 {
		size = DefaultReaderConfig().CodeCacheSize
	}
	deployed, err := lru.New[common.Address, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("create code cache: %w", err)
	}

	metaSize := cfg.MetadataCacheSize
	if metaSize <= 0 {
		metaSize = DefaultReaderConfig().MetadataCacheSize
	}
	decimals, err := lru.New[common.Address, uint8](metaSize)
	if err != nil {
		return nil, fmt.Errorf("create decimals cache: %w", err)
	}
	spacing, err := lru.New[common.Address, int](metaSize)
	if err != nil {
		return nil, fmt.Errorf("create tick spacing cache: %w", err)
	}

	r := &ChainReader{
		backend:  backend,
		abis:     abis,
		limiter:  ratelimit.New(cfg.RequestsPerSecond, cfg.Burst),
		deployed: deployed,
		decimals: decimals,
		spacing:  spacing,
		logger:   log,
		tracer:   otel.Tracer(tracerName),
	}

	cbCfg := circuitbreaker.DefaultConfig("eth-rpc")
	// A revert is an answer, not an unhealthy node.
	cbCfg.IsSuccessful = func(err error) bool { return err == nil || isRevert(err) }
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	r.cb = circuitbreaker.New[[]byte](cbCfg)

	if err := r.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return r, nil
}

func (r *ChainReader) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	r.metrics = &readerMetrics{}

	r.metrics.callsTotal, err = meter.Int64Counter(
		"eth_calls_total",
		metric.WithDescription("Total contract reads"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	r.metrics.callLatency, err = meter.Float64Histogram(
		"eth_call_latency_ms",
		metric.WithDescription("Contract read latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	r.metrics.callErrors, err = meter.Int64Counter(
		"eth_call_errors_total",
		metric.WithDescription("Total failed contract reads"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	r.metrics.cacheHits, err = meter.Int64Counter(
		"eth_reader_cache_hits_total",
		metric.WithDescription("Reads answered from cache"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// HasCode reports whether addr has deployed bytecode.
func (r *ChainReader) HasCode(ctx context.Context, addr common.Address) (bool, error) {
	if r.deployed.Contains(addr) {
		r.metrics.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", "code")))
		return true, nil
	}

	code, err := r.execute(ctx, "code_at", func() ([]byte, error) {
		return r.backend.CodeAt(ctx, addr, nil)
	})
	if err != nil {
		return false, r.wrap(err, "code_at", addr)
	}
	if len(code) == 0 {
		return false, nil
	}
	r.deployed.Add(addr, struct{}{})
	return true, nil
}

// Reserves reads getReserves of a constant-product pair.
func (r *ChainReader) Reserves(ctx context.Context, pair common.Address) (*big.Int, *big.Int, error) {
	out, err := r.call(ctx, pair, &r.abis.pair, "getReserves")
	if err != nil {
		return nil, nil, err
	}
	if len(out) < 2 {
		return nil, nil, badResponse("getReserves", pair)
	}
	reserve0, ok0 := out[0].(*big.Int)
	reserve1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, badResponse("getReserves", pair)
	}
	return reserve0, reserve1, nil
}

// Liquidity reads the active liquidity of a concentrated pool.
func (r *ChainReader) Liquidity(ctx context.Context, pool common.Address) (*big.Int, error) {
	out, err := r.call(ctx, pool, &r.abis.pool, "liquidity")
	if err != nil {
		return nil, err
	}
	return firstBig(out, "liquidity", pool)
}

// Slot0 reads the current sqrt price and tick of a concentrated pool.
func (r *ChainReader) Slot0(ctx context.Context, pool common.Address) (sqrtPriceX96 *big.Int, tick int, err error) {
	out, err := r.call(ctx, pool, &r.abis.pool, "slot0")
	if err != nil {
		return nil, 0, err
	}
	if len(out) < 2 {
		return nil, 0, badResponse("slot0", pool)
	}
	sqrtPrice, ok0 := out[0].(*big.Int)
	t, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, 0, badResponse("slot0", pool)
	}
	return sqrtPrice, int(t.Int64()), nil
}

// TickSpacing reads the immutable tick spacing of a concentrated pool.
func (r *ChainReader) TickSpacing(ctx context.Context, pool common.Address) (int, error) {
	if s, ok := r.spacing.Get(pool); ok {
		r.metrics.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", "tick_spacing")))
		return s, nil
	}

	out, err := r.call(ctx, pool, &r.abis.pool, "tickSpacing")
	if err != nil {
		return 0, err
	}
	v, err := firstBig(out, "tickSpacing", pool)
	if err != nil {
		return 0, err
	}
	s := int(v.Int64())
	r.spacing.Add(pool, s)
	return s, nil
}

// PoolFee reads the fee of a concentrated pool, in pips.
func (r *ChainReader) PoolFee(ctx context.Context, pool common.Address) (uint32, error) {
	out, err := r.call(ctx, pool, &r.abis.pool, "fee")
	if err != nil {
		return 0, err
	}
	v, err := firstBig(out, "fee", pool)
	if err != nil {
		return 0, err
	}
	return uint32(v.Uint64()), nil
}

// BalanceOf reads an ERC20 balance.
func (r *ChainReader) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := r.call(ctx, token, &r.abis.erc20, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return firstBig(out, "balanceOf", token)
}

// Decimals reads ERC20 decimals. Answers stay cached until evicted.
func (r *ChainReader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	if d, ok := r.decimals.Get(token); ok {
		r.metrics.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", "decimals")))
		return d, nil
	}

	out, err := r.call(ctx, token, &r.abis.erc20, "decimals")
	if err != nil {
		return 0, apperror.New(apperror.CodeDecimalsLookupFailed,
			apperror.WithCause(err),
			apperror.WithContext(token.Hex()))
	}
	if len(out) == 0 {
		return 0, badResponse("decimals", token)
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, badResponse("decimals", token)
	}
	r.decimals.Add(token, d)
	return d, nil
}

// call packs, executes and unpacks one eth_call.
func (r *ChainReader) call(ctx context.Context, to common.Address, contract *abi.ABI, method string, args ...any) ([]any, error) {
	ctx, span := r.tracer.Start(ctx, "eth.call."+method,
		trace.WithAttributes(attribute.String("to", to.Hex())),
	)
	defer span.End()

	data, err := contract.Pack(method, args...)
	if err != nil {
		span.RecordError(err)
		return nil, apperror.New(apperror.CodeInternalError,
			apperror.WithCause(err),
			apperror.WithContext("pack "+method))
	}

	raw, err := r.execute(ctx, method, func() ([]byte, error) {
		return r.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "call failed")
		return nil, r.wrap(err, method, to)
	}

	out, err := contract.Unpack(method, raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unpack failed")
		return nil, apperror.New(apperror.CodeInvalidContractResponse,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("%s on %s", method, to.Hex())))
	}
	return out, nil
}

// execute applies the rate limit and circuit breaker around fn and records metrics.
func (r *ChainReader) execute(ctx context.Context, method string, fn func() ([]byte, error)) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, apperror.New(apperror.CodeRateLimitExceeded, apperror.WithCause(err))
	}

	start := time.Now()
	raw, err := r.cb.Execute(fn)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		r.metrics.callErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
	}
	attrs := metric.WithAttributes(attribute.String("method", method), attribute.String("outcome", outcome))
	r.metrics.callsTotal.Add(ctx, 1, attrs)
	r.metrics.callLatency.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attribute.String("method", method)))
	return raw, err
}

func (r *ChainReader) wrap(err error, method string, to common.Address) error {
	if apperror.IsAppError(err) {
		return err
	}
	where := fmt.Sprintf("%s on %s", method, to.Hex())
	if circuitbreaker.IsOpen(err) {
		return apperror.New(apperror.CodeCircuitOpen, apperror.WithCause(err), apperror.WithContext(where))
	}
	return apperror.New(apperror.CodeContractCallFailed, apperror.WithCause(err), apperror.WithContext(where))
}

// isRevert reports whether err is an execution revert rather than a transport failure.
func isRevert(err error) bool {
	var dataErr interface{ ErrorData() any }
	if errors.As(err, &dataErr) {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}

func firstBig(out []any, method string, to common.Address) (*big.Int, error) {
	if len(out) == 0 {
		return nil, badResponse(method, to)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, badResponse(method, to)
	}
	return v, nil
}

func badResponse(method string, to common.Address) error {
	return apperror.New(apperror.CodeInvalidContractResponse,
		apperror.WithContext(fmt.Sprintf("%s on %s", method, to.Hex())))
}
