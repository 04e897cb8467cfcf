package app

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/quote-engine/business/quoting/domain"
	"github.com/fd1az/quote-engine/internal/apperror"
	"github.com/fd1az/quote-engine/internal/logger"
)

// RouterSource delegates to an external best-rate router. It routes multi-hop internally
// and is never bridged.
type RouterSource struct {
	venue  domain.VenueID
	router RouterQuoter

	logger  logger.LoggerInterface
	tracer  trace.Tracer
	metrics *quotingMetrics
}

var _ QuoteSource = (*RouterSource)(nil)

// NewRouterSource creates a router source.
func NewRouterSource(venue domain.VenueID, router RouterQuoter, log logger.LoggerInterface) (*RouterSource, error) {
	m, err := initMetrics()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return &RouterSource{
		venue:   venue,
		router:  router,
		logger:  log,
		tracer:  otel.Tracer(tracerName),
		metrics: m,
	}, nil
}

func (s *RouterSource) Venue() domain.VenueID   { return s.venue }
func (s *RouterSource) Kind() domain.SourceKind { return domain.KindRouter }
func (s *RouterSource) Bridgeable() bool        { return false }

// Quote asks the router for its best rate. Failure yields a zero quote with a null pool.
// A failed fee lookup keeps the quote and reports 0 bps.
func (s *RouterSource) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) domain.Quote {
	ctx, span := s.tracer.Start(ctx, "quoting.router.quote",
		trace.WithAttributes(attribute.String("venue", string(s.venue))),
	)
	defer span.End()

	zero := domain.ZeroQuote(s.venue, domain.KindRouter)
	zero.Pools = []common.Address{{}}
	zero.Fees = []uint32{0}

	pool, amountOut, err := s.router.BestRate(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		s.degrade(ctx, span, "best_rate", err)
		return zero
	}
	if amountOut == nil || amountOut.Sign() <= 0 {
		return zero
	}

	var feeBps uint32
	if pips, err := s.router.PoolFee(ctx, pool); err != nil {
		s.degrade(ctx, span, "pool_fee", err)
	} else {
		feeBps = domain.PipsToBps(pips)
	}

	span.SetAttributes(attribute.String("amount_out", amountOut.String()))
	return domain.Quote{
		Venue:     s.venue,
		Kind:      domain.KindRouter,
		AmountOut: new(big.Int).Set(amountOut),
		Pools:     []common.Address{pool},
		Fees:      []uint32{feeBps},
	}
}

// Exists probes the router with a one-unit input.
func (s *RouterSource) Exists(ctx context.Context, tokenIn, tokenOut common.Address) bool {
	pool, out, err := s.router.BestRate(ctx, tokenIn, tokenOut, big.NewInt(1))
	return err == nil && pool != (common.Address{}) && out != nil && out.Sign() > 0
}

func (s *RouterSource) degrade(ctx context.Context, span trace.Span, step string, err error) {
	span.RecordError(err)
	s.metrics.sourceFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("venue", string(s.venue)),
		attribute.String("step", step),
		attribute.String("code", string(apperror.GetCode(err))),
	))
	s.logger.Debug(ctx, "router source degraded", "venue", s.venue, "step", step, "error", err)
}
