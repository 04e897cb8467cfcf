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

// ConstantProductParams describes one x*y=k venue.
type ConstantProductParams struct {
	Venue        domain.VenueID
	Factory      common.Address
	InitCodeHash common.Hash
	FeeNumerator uint32
	Bridgeable   bool
}

// ConstantProductSource quotes a Uniswap V2 style venue from its reserves.
type ConstantProductSource struct {
	params ConstantProductParams
	feeBps uint32

	code  CodeChecker
	pairs PairReader

	logger  logger.LoggerInterface
	tracer  trace.Tracer
	metrics *quotingMetrics
}

var _ QuoteSource = (*ConstantProductSource)(nil)

// NewConstantProductSource creates a constant-product source.
func NewConstantProductSource(p ConstantProductParams, code CodeChecker, pairs PairReader, log logger.LoggerInterface) (*ConstantProductSource, error) {
	if p.FeeNumerator == 0 || p.FeeNumerator > domain.FeeDenominator {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext(fmt.Sprintf("venue %s: fee numerator %d", p.Venue, p.FeeNumerator)))
	}

	m, err := initMetrics()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return &ConstantProductSource{
		params:  p,
		feeBps:  domain.FeeBpsFromNumerator(p.FeeNumerator),
		code:    code,
		pairs:   pairs,
		logger:  log,
		tracer:  otel.Tracer(tracerName),
		metrics: m,
	}, nil
}

func (s *ConstantProductSource) Venue() domain.VenueID   { return s.params.Venue }
func (s *ConstantProductSource) Kind() domain.SourceKind { return domain.KindConstantProduct }
func (s *ConstantProductSource) Bridgeable() bool        { return s.params.Bridgeable }

// Quote prices amountIn against the derived pair's reserves.
func (s *ConstantProductSource) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) domain.Quote {
	ctx, span := s.tracer.Start(ctx, "quoting.constant_product.quote",
		trace.WithAttributes(
			attribute.String("venue", string(s.params.Venue)),
			attribute.String("token_in", tokenIn.Hex()),
			attribute.String("token_out", tokenOut.Hex()),
		),
	)
	defer span.End()

	zero := domain.ZeroQuote(s.params.Venue, domain.KindConstantProduct)
	pair := domain.PairAddress(s.params.Factory, s.params.InitCodeHash, tokenIn, tokenOut)

	deployed, err := s.code.HasCode(ctx, pair)
	if err != nil {
		s.degrade(ctx, span, "has_code", err)
		return zero
	}
	if !deployed {
		span.AddEvent("pair_not_deployed")
		return zero
	}

	reserve0, reserve1, err := s.pairs.Reserves(ctx, pair)
	if err != nil {
		s.degrade(ctx, span, "reserves", err)
		return zero
	}

	reserveIn, reserveOut := reserve0, reserve1
	if token0, _ := domain.SortTokens(tokenIn, tokenOut); token0 != tokenIn {
		reserveIn, reserveOut = reserve1, reserve0
	}

	amountOut, err := domain.GetAmountOut(amountIn, reserveIn, reserveOut, s.params.FeeNumerator)
	if err != nil {
		span.AddEvent("rejected", trace.WithAttributes(attribute.String("reason", err.Error())))
		s.logger.Debug(ctx, "constant product quote rejected",
			"venue", s.params.Venue,
			"pair", pair.Hex(),
			"reserve_in", reserveIn.String(),
			"amount_in", amountIn.String(),
			"reason", err.Error())
		return zero
	}

	span.SetAttributes(attribute.String("amount_out", amountOut.String()))
	return domain.Quote{
		Venue:     s.params.Venue,
		Kind:      domain.KindConstantProduct,
		AmountOut: amountOut,
		Pools:     []common.Address{pair},
		Fees:      []uint32{s.feeBps},
	}
}

// Exists reports whether the derived pair is deployed.
func (s *ConstantProductSource) Exists(ctx context.Context, tokenIn, tokenOut common.Address) bool {
	pair := domain.PairAddress(s.params.Factory, s.params.InitCodeHash, tokenIn, tokenOut)
	deployed, err := s.code.HasCode(ctx, pair)
	if err != nil {
		s.metrics.sourceFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("venue", string(s.params.Venue)),
			attribute.String("step", "has_code"),
		))
		return false
	}
	return deployed
}

func (s *ConstantProductSource) degrade(ctx context.Context, span trace.Span, step string, err error) {
	span.RecordError(err)
	s.metrics.sourceFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("venue", string(s.params.Venue)),
		attribute.String("step", step),
		attribute.String("code", string(apperror.GetCode(err))),
	))
	s.logger.Debug(ctx, "constant product source degraded",
		"venue", s.params.Venue, "step", step, "error", err)
}
