package app

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/quote-engine/business/quoting/domain"
	"github.com/fd1az/quote-engine/internal/apperror"
	"github.com/fd1az/quote-engine/internal/asset"
	"github.com/fd1az/quote-engine/internal/logger"
)

// OracleParams is the feed table and token classification used by the resolver.
type OracleParams struct {
	ChainID          uint64
	BaseAsset        common.Address
	Connector        common.Address
	Stablecoins      []common.Address
	BTCPegged        []common.Address
	Staleness        map[domain.FeedKey]time.Duration
	DefaultStaleness time.Duration
}

// OracleResolver estimates swap output from price feeds alone, bridging through the base
// asset on the dex when exactly one side has no feed.
type OracleResolver struct {
	params OracleParams
	stable map[common.Address]bool
	btc    map[common.Address]bool

	feeds    FeedLookup
	decimals TokenDecimals
	registry *asset.Registry
	dex      BestQuoter
	now      func() time.Time

	logger  logger.LoggerInterface
	tracer  trace.Tracer
	metrics *quotingMetrics
}

// NewOracleResolver creates a resolver. registry supplies decimals of well-known tokens without
// an external call.
func NewOracleResolver(p OracleParams, feeds FeedLookup, decimals TokenDecimals, registry *asset.Registry, dex BestQuoter, log logger.LoggerInterface) (*OracleResolver, error) {
	if p.BaseAsset == (common.Address{}) {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("oracle base asset is required"))
	}

	m, err := initMetrics()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	r := &OracleResolver{
		params:   p,
		stable:   make(map[common.Address]bool, len(p.Stablecoins)),
		btc:      make(map[common.Address]bool, len(p.BTCPegged)),
		feeds:    feeds,
		decimals: decimals,
		registry: registry,
		dex:      dex,
		now:      time.Now,
		logger:   log,
		tracer:   otel.Tracer(tracerName),
		metrics:  m,
	}
	for _, s := range p.Stablecoins {
		r.stable[s] = true
	}
	for _, b := range p.BTCPegged {
		r.btc[b] = true
	}
	return r, nil
}

// BaseAsset returns the asset feeds are bridged through.
func (r *OracleResolver) BaseAsset() common.Address {
	return r.params.BaseAsset
}

// resolution carries the per-call memo of the shared ETH/USD and BTC/USD reads.
type resolution struct {
	ethUSD func() (*big.Int, error)
	btcUSD func() (*big.Int, error)
}

// Resolve returns the feed-derived output for amountIn. A zero result means no oracle opinion.
// The only error is a stale feed.
func (r *OracleResolver) Resolve(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (domain.FeedQuote, error) {
	ctx, span := r.tracer.Start(ctx, "quoting.oracle.resolve",
		trace.WithAttributes(
			attribute.String("token_in", tokenIn.Hex()),
			attribute.String("token_out", tokenOut.Hex()),
		),
	)
	defer span.End()

	res := &resolution{
		ethUSD: sync.OnceValues(func() (*big.Int, error) {
			return r.readFeed(ctx, domain.DenominationETH, domain.DenominationUSD)
		}),
		btcUSD: sync.OnceValues(func() (*big.Int, error) {
			return r.readFeed(ctx, domain.DenominationBTC, domain.DenominationUSD)
		}),
	}

	fq, step, err := r.resolve(ctx, res, tokenIn, tokenOut, amountIn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		return domain.ZeroFeedQuote(), err
	}

	span.SetAttributes(
		attribute.String("step", step),
		attribute.String("amount_out", fq.AmountOut.String()),
	)
	r.logger.Debug(ctx, "oracle resolved",
		"token_in", tokenIn.Hex(),
		"token_out", tokenOut.Hex(),
		"amount_in", amountIn.String(),
		"amount_out", fq.AmountOut.String(),
		"step", step)
	return fq, nil
}

func (r *OracleResolver) resolve(ctx context.Context, res *resolution, tokenIn, tokenOut common.Address, amountIn *big.Int) (domain.FeedQuote, string, error) {
	// 1. Base asset against a base-denominated feed.
	if fq, ok, err := r.baseShortcut(ctx, tokenIn, tokenOut, amountIn); err != nil || ok {
		return fq, "base_shortcut", err
	}

	// 2. USD price of each side, concurrently.
	var usdIn, usdOut *big.Int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := r.usdPrice(gctx, res, tokenIn)
		usdIn = p
		return err
	})
	g.Go(func() error {
		p, err := r.usdPrice(gctx, res, tokenOut)
		usdOut = p
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.ZeroFeedQuote(), "usd", err
	}

	switch {
	case usdIn != nil && usdOut != nil:
		// 3. Cross rate.
		fq, err := r.crossRate(ctx, tokenIn, tokenOut, amountIn, usdIn, usdOut)
		return fq, "cross_rate", err
	case usdIn == nil && usdOut != nil:
		// 4. Bridge the unresolved input side through the base asset.
		fq, err := r.bridgeIn(ctx, res, tokenIn, tokenOut, amountIn, usdOut)
		return fq, "bridge_in", err
	case usdIn != nil && usdOut == nil:
		fq, err := r.bridgeOut(ctx, res, tokenIn, tokenOut, amountIn, usdIn)
		return fq, "bridge_out", err
	default:
		// 5. No oracle opinion.
		return domain.ZeroFeedQuote(), "none", nil
	}
}

// baseShortcut prices a swap from or to the base asset with a single base-denominated feed.
func (r *OracleResolver) baseShortcut(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (domain.FeedQuote, bool, error) {
	base := r.params.BaseAsset
	var other common.Address
	switch base {
	case tokenIn:
		other = tokenOut
	case tokenOut:
		other = tokenIn
	default:
		return domain.FeedQuote{}, false, nil
	}

	price, err := r.readFeed(ctx, other, domain.DenominationETH)
	if err != nil || price == nil {
		return domain.FeedQuote{}, false, err
	}

	decIn, decOut, ok := r.decimalsPair(ctx, tokenIn, tokenOut)
	if !ok {
		// Leave it to the USD path.
		return domain.FeedQuote{}, false, nil
	}

	var out *big.Int
	if tokenIn == base {
		// amountIn * 1e18 * 10^decOut / (price * 10^decIn)
		out = mulDiv(amountIn, []*big.Int{domain.ETHScale, pow10(decOut)}, []*big.Int{price, pow10(decIn)})
	} else {
		// amountIn * price * 10^decOut / (1e18 * 10^decIn)
		out = mulDiv(amountIn, []*big.Int{price, pow10(decOut)}, []*big.Int{domain.ETHScale, pow10(decIn)})
	}
	return domain.FeedQuote{AmountOut: out}, true, nil
}

// usdPrice returns the 1e8-scaled USD price of token, or nil when no feed path resolves.
func (r *OracleResolver) usdPrice(ctx context.Context, res *resolution, token common.Address) (*big.Int, error) {
	switch {
	case r.stable[token]:
		return new(big.Int).Set(domain.USDScale), nil

	case token == r.params.BaseAsset:
		return res.ethUSD()

	case r.btc[token]:
		if p, err := r.readFeed(ctx, token, domain.DenominationUSD); err != nil || p != nil {
			return p, err
		}
		// Assumed 1:1 with BTC.
		return res.btcUSD()
	}

	if p, err := r.readFeed(ctx, token, domain.DenominationUSD); err != nil || p != nil {
		return p, err
	}

	if p, err := r.readFeed(ctx, token, domain.DenominationETH); err != nil {
		return nil, err
	} else if p != nil {
		ethUSD, err := res.ethUSD()
		if err != nil {
			return nil, err
		}
		if ethUSD != nil {
			return mulDiv(p, []*big.Int{ethUSD}, []*big.Int{domain.ETHScale}), nil
		}
	}

	if p, err := r.readFeed(ctx, token, domain.DenominationBTC); err != nil {
		return nil, err
	} else if p != nil {
		btcUSD, err := res.btcUSD()
		if err != nil {
			return nil, err
		}
		if btcUSD != nil {
			return mulDiv(p, []*big.Int{btcUSD}, []*big.Int{domain.BTCScale}), nil
		}
	}

	return nil, nil
}

func (r *OracleResolver) crossRate(ctx context.Context, tokenIn, tokenOut common.Address, amountIn, usdIn, usdOut *big.Int) (domain.FeedQuote, error) {
	decIn, decOut, ok := r.decimalsPair(ctx, tokenIn, tokenOut)
	if !ok {
		return domain.ZeroFeedQuote(), nil
	}
	// amountIn * usdIn * 10^decOut / (usdOut * 10^decIn)
	out := mulDiv(amountIn, []*big.Int{usdIn, pow10(decOut)}, []*big.Int{usdOut, pow10(decIn)})
	return domain.FeedQuote{AmountOut: out}, nil
}

// bridgeIn swaps tokenIn to the base asset on the dex, then values the base amount in tokenOut.
func (r *OracleResolver) bridgeIn(ctx context.Context, res *resolution, tokenIn, tokenOut common.Address, amountIn, usdOut *big.Int) (domain.FeedQuote, error) {
	base := r.params.BaseAsset
	if tokenIn == base {
		return domain.ZeroFeedQuote(), nil
	}

	ethUSD, err := res.ethUSD()
	if err != nil || ethUSD == nil {
		return domain.ZeroFeedQuote(), err
	}

	leg := r.dex.Best(ctx, domain.Query{TokenIn: tokenIn, TokenOut: base, AmountIn: amountIn, Connector: r.params.Connector})
	if leg.IsZero() {
		return domain.ZeroFeedQuote(), nil
	}

	decBase, decOut, ok := r.decimalsPair(ctx, base, tokenOut)
	if !ok {
		return domain.ZeroFeedQuote(), nil
	}

	// leg * ethUSD * 10^decOut / (usdOut * 10^decBase)
	out := mulDiv(leg.AmountOut, []*big.Int{ethUSD, pow10(decOut)}, []*big.Int{usdOut, pow10(decBase)})
	return domain.FeedQuote{
		AmountOut:       out,
		BridgeLegAmount: new(big.Int).Set(leg.AmountOut),
		BridgeVenue:     leg.Venue,
		BridgeLeg:       domain.LegFromQuote(leg),
	}, nil
}

// bridgeOut values tokenIn in the base asset, then swaps that amount to tokenOut on the dex.
func (r *OracleResolver) bridgeOut(ctx context.Context, res *resolution, tokenIn, tokenOut common.Address, amountIn, usdIn *big.Int) (domain.FeedQuote, error) {
	base := r.params.BaseAsset
	if tokenOut == base {
		return domain.ZeroFeedQuote(), nil
	}

	ethUSD, err := res.ethUSD()
	if err != nil || ethUSD == nil {
		return domain.ZeroFeedQuote(), err
	}

	decIn, decBase, ok := r.decimalsPair(ctx, tokenIn, base)
	if !ok {
		return domain.ZeroFeedQuote(), nil
	}

	// amountIn * usdIn * 10^decBase / (ethUSD * 10^decIn)
	baseAmount := mulDiv(amountIn, []*big.Int{usdIn, pow10(decBase)}, []*big.Int{ethUSD, pow10(decIn)})
	if baseAmount.Sign() == 0 {
		return domain.ZeroFeedQuote(), nil
	}

	leg := r.dex.Best(ctx, domain.Query{TokenIn: base, TokenOut: tokenOut, AmountIn: baseAmount, Connector: r.params.Connector})
	if leg.IsZero() {
		return domain.ZeroFeedQuote(), nil
	}
	return domain.FeedQuote{
		AmountOut:       new(big.Int).Set(leg.AmountOut),
		BridgeLegAmount: baseAmount,
		BridgeVenue:     leg.Venue,
	}, nil
}

// readFeed returns the feed value, nil when the feed is missing or unusable, and a hard error
// when the reading is stale. Staleness is checked before the value.
func (r *OracleResolver) readFeed(ctx context.Context, base, denomination common.Address) (*big.Int, error) {
	key := domain.FeedKey{Base: base, Denomination: denomination}

	value, updatedAt, err := r.feeds.LatestValue(ctx, base, denomination)
	if err != nil {
		if apperror.HasCode(err, apperror.CodeStaleFeed) {
			return nil, err
		}
		if !apperror.HasCode(err, apperror.CodeFeedNotFound) {
			r.metrics.sourceFailures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("venue", string(domain.OracleVenue)),
				attribute.String("step", "latest_value"),
				attribute.String("code", string(apperror.GetCode(err))),
			))
		}
		r.logger.Debug(ctx, "feed unavailable", "feed", key.String(), "error", err)
		return nil, nil
	}

	entry := domain.FeedEntry{
		Base:         base,
		Denomination: denomination,
		Value:        value,
		UpdatedAt:    updatedAt,
		Staleness:    r.stalenessOf(key),
	}
	if entry.IsStale(r.now()) {
		r.metrics.staleFeeds.Add(ctx, 1, metric.WithAttributes(attribute.String("feed", key.String())))
		return nil, apperror.New(apperror.CodeStaleFeed,
			apperror.WithContext(fmt.Sprintf("%s updated %s ago, window %s",
				key, r.now().Sub(updatedAt).Truncate(time.Second), entry.Staleness)))
	}

	if value == nil || value.Sign() <= 0 {
		r.logger.Debug(ctx, "feed answer not positive", "feed", key.String())
		return nil, nil
	}
	return value, nil
}

func (r *OracleResolver) stalenessOf(key domain.FeedKey) time.Duration {
	if d, ok := r.params.Staleness[key]; ok && d > 0 {
		return d
	}
	return r.params.DefaultStaleness
}

// decimalsPair resolves both decimals. A failure is soft and reported as !ok.
func (r *OracleResolver) decimalsPair(ctx context.Context, a, b common.Address) (uint8, uint8, bool) {
	da, err := r.decimalsOf(ctx, a)
	if err != nil {
		r.logger.Debug(ctx, "decimals unavailable", "token", a.Hex(), "error", err)
		return 0, 0, false
	}
	db, err := r.decimalsOf(ctx, b)
	if err != nil {
		r.logger.Debug(ctx, "decimals unavailable", "token", b.Hex(), "error", err)
		return 0, 0, false
	}
	return da, db, true
}

func (r *OracleResolver) decimalsOf(ctx context.Context, token common.Address) (uint8, error) {
	if r.registry != nil {
		if d, ok := r.registry.Decimals(r.params.ChainID, token); ok {
			return d, nil
		}
	}
	return r.decimals.Decimals(ctx, token)
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// mulDiv returns x * prod(num) / prod(den), flooring once at the end.
func mulDiv(x *big.Int, num, den []*big.Int) *big.Int {
	n := new(big.Int).Set(x)
	for _, v := range num {
		n.Mul(n, v)
	}
	d := big.NewInt(1)
	for _, v := range den {
		d.Mul(d, v)
	}
	if d.Sign() == 0 {
		return new(big.Int)
	}
	return n.Quo(n, d)
}
