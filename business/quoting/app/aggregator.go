package app

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/quote-engine/business/quoting/domain"
	"github.com/fd1az/quote-engine/internal/apperror"
	"github.com/fd1az/quote-engine/internal/logger"
)

// BestQuoter returns the best dex quote for a query.
type BestQuoter interface {
	Best(ctx context.Context, q domain.Query) domain.Quote
}

type candidate struct {
	source  QuoteSource
	bridged bool
}

// RouteAggregator fans a query out to every registered source and keeps the best answer.
type RouteAggregator struct {
	sources []QuoteSource
	timeout time.Duration

	logger  logger.LoggerInterface
	tracer  trace.Tracer
	metrics *quotingMetrics
}

var _ BestQuoter = (*RouteAggregator)(nil)

// NewRouteAggregator registers sources in enumeration order. timeout bounds every branch.
func NewRouteAggregator(sources []QuoteSource, timeout time.Duration, log logger.LoggerInterface) (*RouteAggregator, error) {
	if timeout <= 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("source timeout must be positive"))
	}

	m, err := initMetrics()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return &RouteAggregator{
		sources: sources,
		timeout: timeout,
		logger:  log,
		tracer:  otel.Tracer(tracerName),
		metrics: m,
	}, nil
}

// Sources returns the registered sources in enumeration order.
func (a *RouteAggregator) Sources() []QuoteSource {
	return a.sources
}

// Best returns SelectBest over Candidates.
func (a *RouteAggregator) Best(ctx context.Context, q domain.Query) domain.Quote {
	return SelectBest(a.Candidates(ctx, q))
}

// Candidates evaluates one direct quote per source, then one bridged quote per bridgeable source
// when neither token is the connector. Slots keep enumeration order.
func (a *RouteAggregator) Candidates(ctx context.Context, q domain.Query) []domain.Quote {
	ctx, span := a.tracer.Start(ctx, "quoting.aggregator.candidates",
		trace.WithAttributes(
			attribute.String("token_in", q.TokenIn.Hex()),
			attribute.String("token_out", q.TokenOut.Hex()),
			attribute.String("amount_in", q.AmountIn.String()),
		),
	)
	defer span.End()

	cands := make([]candidate, 0, 2*len(a.sources))
	for _, src := range a.sources {
		cands = append(cands, candidate{source: src})
	}
	if q.NeedsBridge() {
		for _, src := range a.sources {
			if src.Bridgeable() {
				cands = append(cands, candidate{source: src, bridged: true})
			}
		}
	}

	quotes := make([]domain.Quote, len(cands))
	var g errgroup.Group
	for i, c := range cands {
		g.Go(func() error {
			quotes[i] = a.run(ctx, c, q)
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(attribute.Int("candidates", len(quotes)))
	return quotes
}

// run evaluates one candidate under the per-source timeout. A branch that does not answer
// in time is a zero quote.
func (a *RouteAggregator) run(ctx context.Context, c candidate, q domain.Query) domain.Quote {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan domain.Quote, 1)
	go func() {
		if c.bridged {
			done <- a.bridged(ctx, c.source, q)
			return
		}
		done <- c.source.Quote(ctx, q.TokenIn, q.TokenOut, q.AmountIn)
	}()

	zero := domain.ZeroQuote(c.source.Venue(), c.source.Kind())
	select {
	case quote := <-done:
		if quote.AmountOut == nil {
			quote.AmountOut = new(big.Int)
		}
		return quote
	case <-ctx.Done():
		a.metrics.sourceTimeouts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("venue", string(c.source.Venue())),
			attribute.Bool("bridged", c.bridged),
		))
		a.logger.Debug(ctx, "source branch cut off",
			"venue", c.source.Venue(), "bridged", c.bridged, "reason", ctx.Err())
		return zero
	}
}

// bridged quotes tokenIn→connector→tokenOut on a single source. A zero first hop makes the
// whole candidate zero and the second hop is never asked.
func (a *RouteAggregator) bridged(ctx context.Context, src QuoteSource, q domain.Query) domain.Quote {
	zero := domain.ZeroQuote(src.Venue(), src.Kind())

	var hop1 domain.Quote
	if leg := q.ConnectorLeg; leg != nil && leg.Venue == src.Venue() {
		hop1 = domain.Quote{
			Venue:     leg.Venue,
			Kind:      src.Kind(),
			AmountOut: leg.AmountOut,
			Pools:     []common.Address{leg.Pool},
			Fees:      []uint32{leg.FeeBps},
		}
	} else {
		hop1 = src.Quote(ctx, q.TokenIn, q.Connector, q.AmountIn)
	}
	if hop1.IsZero() {
		return zero
	}

	hop2 := src.Quote(ctx, q.Connector, q.TokenOut, hop1.AmountOut)
	if hop2.IsZero() {
		return zero
	}

	pools := make([]common.Address, 0, len(hop1.Pools)+len(hop2.Pools))
	pools = append(append(pools, hop1.Pools...), hop2.Pools...)
	fees := make([]uint32, 0, len(hop1.Fees)+len(hop2.Fees))
	fees = append(append(fees, hop1.Fees...), hop2.Fees...)

	return domain.Quote{
		Venue:     src.Venue(),
		Kind:      src.Kind(),
		AmountOut: hop2.AmountOut,
		Pools:     pools,
		Fees:      fees,
	}
}

// SelectBest returns the candidate with the strictly greatest output; ties keep the earliest.
// When every candidate is zero the first one is returned.
func SelectBest(quotes []domain.Quote) domain.Quote {
	if len(quotes) == 0 {
		return domain.ZeroQuote("", domain.KindNone)
	}

	best := 0
	for i := 1; i < len(quotes); i++ {
		if quotes[i].AmountOut != nil && quotes[i].AmountOut.Cmp(amountOf(quotes[best])) > 0 {
			best = i
		}
	}

	q := quotes[best]
	if q.AmountOut == nil {
		q.AmountOut = new(big.Int)
	}
	return q
}

func amountOf(q domain.Quote) *big.Int {
	if q.AmountOut == nil {
		return new(big.Int)
	}
	return q.AmountOut
}
