package app

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/quote-engine/business/quoting/domain"
	"github.com/fd1az/quote-engine/internal/apperror"
	"github.com/fd1az/quote-engine/internal/logger"
)

// Operation names used in spans, metrics and logs.
const (
	OpIsPairSupported = "is_pair_supported"
	OpOptimal         = "optimal"
	OpExecutable      = "executable"
	OpUnsafe          = "unsafe"
)

// QuoteService implements the top-level quoting operations.
type QuoteService struct {
	aggregator *RouteAggregator
	oracle     *OracleResolver
	safety     *SafetyValidator
	settings   *Settings
	connector  common.Address

	logger  logger.LoggerInterface
	tracer  trace.Tracer
	metrics *quotingMetrics
}

var _ Swapper = (*QuoteService)(nil)

// NewQuoteService wires the quoting components together.
func NewQuoteService(
	aggregator *RouteAggregator,
	oracle *OracleResolver,
	safety *SafetyValidator,
	settings *Settings,
	connector common.Address,
	log logger.LoggerInterface,
) (*QuoteService, error) {
	m, err := initMetrics()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return &QuoteService{
		aggregator: aggregator,
		oracle:     oracle,
		safety:     safety,
		settings:   settings,
		connector:  connector,
		logger:     log,
		tracer:     otel.Tracer(tracerName),
		metrics:    m,
	}, nil
}

// Settings returns the process-wide quoting settings.
func (s *QuoteService) Settings() *Settings {
	return s.settings
}

// IsPairSupported checks sources cheapest-first and stops at the first one with an answer:
// the oracle, then pool existence of concentrated venues, then constant-product quotes,
// then router quotes, then connector-bridged quotes. Only a stale feed is an error.
func (s *QuoteService) IsPairSupported(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (supported bool, err error) {
	ctx, finish := s.begin(ctx, OpIsPairSupported, tokenIn, tokenOut, amountIn)
	defer func() { finish(err) }()

	if err := validateInput(tokenIn, tokenOut, amountIn); err != nil {
		return false, err
	}

	feed, err := s.oracle.Resolve(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		return false, err
	}
	if !feed.IsZero() {
		return true, nil
	}

	q := s.query(tokenIn, tokenOut, amountIn, nil)
	sources := bySupportCost(s.aggregator.Sources())
	for _, src := range sources {
		if src.Kind() == domain.KindConcentrated {
			if src.Exists(ctx, tokenIn, tokenOut) {
				return true, nil
			}
			continue
		}
		if !s.aggregator.run(ctx, candidate{source: src}, q).IsZero() {
			return true, nil
		}
	}

	// Same connector routes the quote operations consider.
	if !q.NeedsBridge() {
		return false, nil
	}
	for _, src := range sources {
		if src.Bridgeable() && !s.aggregator.run(ctx, candidate{source: src, bridged: true}, q).IsZero() {
			return true, nil
		}
	}
	return false, nil
}

// FindOptimalSwap prefers the oracle answer and falls back to the best dex quote.
func (s *QuoteService) FindOptimalSwap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (q domain.Quote, err error) {
	ctx, finish := s.begin(ctx, OpOptimal, tokenIn, tokenOut, amountIn)
	defer func() { finish(err) }()

	if err := validateInput(tokenIn, tokenOut, amountIn); err != nil {
		return domain.Quote{}, err
	}

	feed, err := s.oracle.Resolve(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		return domain.Quote{}, err
	}
	if !feed.IsZero() {
		return oracleQuote(feed), nil
	}

	return s.aggregator.Best(ctx, s.query(tokenIn, tokenOut, amountIn, nil)), nil
}

// FindExecutableSwap returns the best dex quote after checking it against the oracle reference.
// A zero dex quote is returned as is.
func (s *QuoteService) FindExecutableSwap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (q domain.Quote, err error) {
	ctx, finish := s.begin(ctx, OpExecutable, tokenIn, tokenOut, amountIn)
	defer func() { finish(err) }()

	if err := validateInput(tokenIn, tokenOut, amountIn); err != nil {
		return domain.Quote{}, err
	}

	feed, err := s.oracle.Resolve(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		return domain.Quote{}, err
	}

	// The oracle's dex leg is tokenIn→base; it can stand in for hop 1 only when base is the connector.
	var leg *domain.Leg
	if s.oracle.BaseAsset() == s.connector {
		leg = feed.BridgeLeg
	}

	best := s.aggregator.Best(ctx, s.query(tokenIn, tokenOut, amountIn, leg))
	if best.IsZero() {
		return best, nil
	}

	if err := s.safety.Validate(ctx, best.AmountOut, feed.AmountOut, s.settings.Tolerance()); err != nil {
		return domain.Quote{}, err
	}
	return best, nil
}

// UnsafeFindExecutableSwap returns the best dex quote without oracle validation.
func (s *QuoteService) UnsafeFindExecutableSwap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (q domain.Quote, err error) {
	ctx, finish := s.begin(ctx, OpUnsafe, tokenIn, tokenOut, amountIn)
	defer func() { finish(err) }()

	if err := validateInput(tokenIn, tokenOut, amountIn); err != nil {
		return domain.Quote{}, err
	}

	return s.aggregator.Best(ctx, s.query(tokenIn, tokenOut, amountIn, nil)), nil
}

// FeedQuote exposes the oracle reference on its own.
func (s *QuoteService) FeedQuote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (domain.FeedQuote, error) {
	if err := validateInput(tokenIn, tokenOut, amountIn); err != nil {
		return domain.FeedQuote{}, err
	}
	return s.oracle.Resolve(ctx, tokenIn, tokenOut, amountIn)
}

func (s *QuoteService) query(tokenIn, tokenOut common.Address, amountIn *big.Int, leg *domain.Leg) domain.Query {
	return domain.Query{
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     amountIn,
		Connector:    s.connector,
		ConnectorLeg: leg,
	}
}

// begin starts the span and returns a closure recording outcome metrics.
func (s *QuoteService) begin(ctx context.Context, op string, tokenIn, tokenOut common.Address, amountIn *big.Int) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "quoting.service."+op,
		trace.WithAttributes(
			attribute.String("token_in", tokenIn.Hex()),
			attribute.String("token_out", tokenOut.Hex()),
			attribute.String("amount_in", amountString(amountIn)),
		),
	)
	start := time.Now()

	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = string(apperror.GetCode(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			if apperror.IsHard(err) {
				s.logger.Info(ctx, "quote refused", "op", op, "code", outcome, "error", err)
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}

		attrs := metric.WithAttributes(attribute.String("op", op), attribute.String("outcome", outcome))
		s.metrics.quotesTotal.Add(ctx, 1, attrs)
		s.metrics.quoteLatency.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attribute.String("op", op)))
		span.End()
	}
}

func validateInput(tokenIn, tokenOut common.Address, amountIn *big.Int) error {
	switch {
	case tokenIn == (common.Address{}) || tokenOut == (common.Address{}):
		return apperror.Validation(apperror.CodeInvalidInput, "zero token address")
	case tokenIn == tokenOut:
		return apperror.Validation(apperror.CodeInvalidInput, "tokenIn equals tokenOut")
	case amountIn == nil || amountIn.Sign() <= 0:
		return apperror.Validation(apperror.CodeInvalidInput, "amountIn must be positive")
	}
	return nil
}

func oracleQuote(feed domain.FeedQuote) domain.Quote {
	q := domain.Quote{
		Venue:     domain.OracleVenue,
		Kind:      domain.KindOracle,
		AmountOut: new(big.Int).Set(feed.AmountOut),
	}
	if feed.BridgeLeg != nil {
		q.Pools = []common.Address{feed.BridgeLeg.Pool}
		q.Fees = []uint32{feed.BridgeLeg.FeeBps}
	}
	return q
}

// bySupportCost orders sources for the support check; the order within a kind is kept.
func bySupportCost(sources []QuoteSource) []QuoteSource {
	rank := func(k domain.SourceKind) int {
		switch k {
		case domain.KindConcentrated:
			return 0
		case domain.KindConstantProduct:
			return 1
		case domain.KindRouter:
			return 2
		default:
			return 3
		}
	}
	out := append([]QuoteSource(nil), sources...)
	sort.SliceStable(out, func(i, j int) bool { return rank(out[i].Kind()) < rank(out[j].Kind()) })
	return out
}

func amountString(v *big.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}
