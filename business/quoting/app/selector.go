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
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/quote-engine/business/quoting/domain"
	"github.com/fd1az/quote-engine/internal/apperror"
	"github.com/fd1az/quote-engine/internal/logger"
)

// ConcentratedParams describes one concentrated-liquidity venue.
type ConcentratedParams struct {
	Venue        domain.VenueID
	Factory      common.Address
	InitCodeHash common.Hash
	// FeeTiers in pips, searched in order. Ties keep the earlier tier.
	FeeTiers []uint32
	// Preferred restricts a pair to a single tier.
	Preferred  map[domain.PairKey]uint32
	Bridgeable bool
}

// Selection is the best tier found for a swap.
type Selection struct {
	AmountOut *big.Int
	Fee       uint32
	Pool      common.Address
}

// Selector searches the fee tiers of a concentrated-liquidity venue.
type Selector struct {
	params ConcentratedParams

	code  CodeChecker
	pools PoolReader
	sim   TickSimulator

	logger  logger.LoggerInterface
	tracer  trace.Tracer
	metrics *quotingMetrics
}

// NewSelector creates a fee tier selector.
func NewSelector(p ConcentratedParams, code CodeChecker, pools PoolReader, sim TickSimulator, log logger.LoggerInterface) (*Selector, error) {
	if len(p.FeeTiers) == 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext(fmt.Sprintf("venue %s: no fee tiers", p.Venue)))
	}

	m, err := initMetrics()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return &Selector{
		params:  p,
		code:    code,
		pools:   pools,
		sim:     sim,
		logger:  log,
		tracer:  otel.Tracer(tracerName),
		metrics: m,
	}, nil
}

// Tiers returns the fee tiers searched for the pair.
func (s *Selector) Tiers(tokenA, tokenB common.Address) []uint32 {
	if fee, ok := s.params.Preferred[domain.NewPairKey(tokenA, tokenB)]; ok {
		return []uint32{fee}
	}
	return s.params.FeeTiers
}

// Best evaluates every candidate tier concurrently and keeps the maximum output.
// A tier that is missing, illiquid or fails to simulate counts as zero.
func (s *Selector) Best(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) Selection {
	ctx, span := s.tracer.Start(ctx, "quoting.selector.best",
		trace.WithAttributes(attribute.String("venue", string(s.params.Venue))),
	)
	defer span.End()

	tiers := s.Tiers(tokenIn, tokenOut)
	outs := make([]*big.Int, len(tiers))
	pools := make([]common.Address, len(tiers))

	var g errgroup.Group
	for i, fee := range tiers {
		g.Go(func() error {
			pools[i] = domain.PoolAddress(s.params.Factory, s.params.InitCodeHash, tokenIn, tokenOut, fee)
			outs[i] = s.quoteTier(ctx, pools[i], tokenIn, tokenOut, fee, amountIn)
			return nil
		})
	}
	_ = g.Wait()

	best := Selection{AmountOut: new(big.Int)}
	for i, out := range outs {
		if out.Cmp(best.AmountOut) > 0 {
			best = Selection{AmountOut: out, Fee: tiers[i], Pool: pools[i]}
		}
	}

	span.SetAttributes(
		attribute.String("amount_out", best.AmountOut.String()),
		attribute.Int("fee_tier", int(best.Fee)),
	)
	return best
}

func (s *Selector) quoteTier(ctx context.Context, pool, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) *big.Int {
	zero := new(big.Int)

	deployed, err := s.code.HasCode(ctx, pool)
	if err != nil {
		s.degrade(ctx, fee, "has_code", err)
		return zero
	}
	if !deployed {
		return zero
	}

	liquidity, err := s.pools.Liquidity(ctx, pool)
	if err != nil {
		s.degrade(ctx, fee, "liquidity", err)
		return zero
	}
	if liquidity == nil || liquidity.Sign() <= 0 {
		return zero
	}

	balance, err := s.pools.BalanceOf(ctx, tokenIn, pool)
	if err != nil {
		s.degrade(ctx, fee, "balance_of", err)
		return zero
	}
	if balance == nil || balance.Cmp(amountIn) <= 0 {
		return zero
	}

	crosses, inRangeOut, err := s.sim.CheckInRange(ctx, pool, tokenIn, tokenOut, fee, amountIn)
	if err != nil {
		s.degrade(ctx, fee, "check_in_range", err)
		return zero
	}
	if !crosses {
		if inRangeOut == nil {
			return zero
		}
		return inRangeOut
	}

	out, err := s.sim.SimulateCrossTick(ctx, pool, tokenIn, tokenOut, fee, amountIn)
	if err != nil {
		s.degrade(ctx, fee, "simulate_cross_tick", err)
		return zero
	}
	if out == nil {
		return zero
	}
	return out
}

// Exists reports whether any candidate tier pool of the pair is deployed.
func (s *Selector) Exists(ctx context.Context, tokenA, tokenB common.Address) bool {
	for _, fee := range s.Tiers(tokenA, tokenB) {
		pool := domain.PoolAddress(s.params.Factory, s.params.InitCodeHash, tokenA, tokenB, fee)
		deployed, err := s.code.HasCode(ctx, pool)
		if err != nil {
			s.degrade(ctx, fee, "has_code", err)
			continue
		}
		if deployed {
			return true
		}
	}
	return false
}

func (s *Selector) degrade(ctx context.Context, fee uint32, step string, err error) {
	s.metrics.sourceFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("venue", string(s.params.Venue)),
		attribute.String("step", step),
		attribute.String("code", string(apperror.GetCode(err))),
	))
	s.logger.Debug(ctx, "fee tier degraded",
		"venue", s.params.Venue, "fee", fee, "step", step, "error", err)
}

// ConcentratedSource adapts a Selector to QuoteSource.
type ConcentratedSource struct {
	selector   *Selector
	venue      domain.VenueID
	bridgeable bool
}

var _ QuoteSource = (*ConcentratedSource)(nil)

// NewConcentratedSource wraps sel.
func NewConcentratedSource(sel *Selector) *ConcentratedSource {
	return &ConcentratedSource{
		selector:   sel,
		venue:      sel.params.Venue,
		bridgeable: sel.params.Bridgeable,
	}
}

func (s *ConcentratedSource) Venue() domain.VenueID   { return s.venue }
func (s *ConcentratedSource) Kind() domain.SourceKind { return domain.KindConcentrated }
func (s *ConcentratedSource) Bridgeable() bool        { return s.bridgeable }

// Quote returns the best tier, reporting its fee in basis points.
func (s *ConcentratedSource) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) domain.Quote {
	best := s.selector.Best(ctx, tokenIn, tokenOut, amountIn)
	if best.AmountOut.Sign() == 0 {
		return domain.ZeroQuote(s.venue, domain.KindConcentrated)
	}
	return domain.Quote{
		Venue:     s.venue,
		Kind:      domain.KindConcentrated,
		AmountOut: best.AmountOut,
		Pools:     []common.Address{best.Pool},
		Fees:      []uint32{domain.PipsToBps(best.Fee)},
	}
}

func (s *ConcentratedSource) Exists(ctx context.Context, tokenIn, tokenOut common.Address) bool {
	return s.selector.Exists(ctx, tokenIn, tokenOut)
}
