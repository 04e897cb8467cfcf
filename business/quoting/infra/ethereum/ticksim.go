package ethereum

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/quote-engine/business/quoting/app"
	"github.com/fd1az/quote-engine/business/quoting/domain"
	"github.com/fd1az/quote-engine/internal/apperror"
)

// TickSimulator prices concentrated-liquidity swaps. Swaps that stay inside the active
// tick-spacing interval are priced locally from slot0 and liquidity; swaps that leave it are
// priced by the QuoterV2 contract through eth_call.
type TickSimulator struct {
	reader *ChainReader
	quoter common.Address
}

var _ app.TickSimulator = (*TickSimulator)(nil)

// NewTickSimulator creates a simulator that falls back to the quoter at quoterAddr.
func NewTickSimulator(reader *ChainReader, quoterAddr common.Address) *TickSimulator {
	return &TickSimulator{reader: reader, quoter: quoterAddr}
}

// CheckInRange implements app.TickSimulator.
func (s *TickSimulator) CheckInRange(ctx context.Context, pool, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (bool, *big.Int, error) {
	ctx, span := s.reader.tracer.Start(ctx, "eth.ticksim.check_in_range",
		trace.WithAttributes(
			attribute.String("pool", pool.Hex()),
			attribute.Int("fee", int(fee)),
		),
	)
	defer span.End()

	sqrtPrice, tick, err := s.reader.Slot0(ctx, pool)
	if err != nil {
		return false, nil, err
	}
	liquidity, err := s.reader.Liquidity(ctx, pool)
	if err != nil {
		return false, nil, err
	}
	spacing, err := s.reader.TickSpacing(ctx, pool)
	if err != nil {
		return false, nil, err
	}

	token0, _ := domain.SortTokens(tokenIn, tokenOut)
	zeroForOne := tokenIn == token0

	out, next, err := domain.SwapWithinRange(sqrtPrice, liquidity, amountIn, fee, zeroForOne)
	if err != nil {
		return false, nil, apperror.New(apperror.CodeTickSimulationFailed,
			apperror.WithCause(err),
			apperror.WithContext(pool.Hex()))
	}

	crosses := domain.CrossesRange(next, tick, spacing, zeroForOne)
	span.SetAttributes(attribute.Bool("crosses", crosses))
	if crosses {
		return true, nil, nil
	}
	return false, out, nil
}

// SimulateCrossTick implements app.TickSimulator.
func (s *TickSimulator) SimulateCrossTick(ctx context.Context, pool, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
	if s.quoter == (common.Address{}) {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("quoter address not set"))
	}

	params := QuoteExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               big.NewInt(int64(fee)),
		SqrtPriceLimitX96: big.NewInt(0),
	}

	data, err := s.reader.abis.quoter.Pack("quoteExactInputSingle", params)
	if err != nil {
		return nil, apperror.New(apperror.CodeInternalError, apperror.WithCause(err))
	}

	ctx, span := s.reader.tracer.Start(ctx, "eth.ticksim.simulate_cross_tick",
		trace.WithAttributes(attribute.String("pool", pool.Hex())),
	)
	defer span.End()

	to := s.quoter
	raw, err := s.reader.execute(ctx, "quoteExactInputSingle", func() ([]byte, error) {
		return s.reader.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	})
	if err != nil {
		span.RecordError(err)
		return nil, apperror.New(apperror.CodeTickSimulationFailed,
			apperror.WithCause(s.reader.wrap(err, "quoteExactInputSingle", to)),
			apperror.WithContext(pool.Hex()))
	}

	out, err := s.reader.abis.quoter.Unpack("quoteExactInputSingle", raw)
	if err != nil || len(out) < 3 {
		return nil, apperror.New(apperror.CodeInvalidContractResponse,
			apperror.WithCause(err),
			apperror.WithContext("quoteExactInputSingle"))
	}
	amountOut, ok := out[0].(*big.Int)
	if !ok {
		return nil, badResponse("quoteExactInputSingle", to)
	}
	if crossed, ok := out[2].(uint32); ok {
		span.SetAttributes(attribute.Int("ticks_crossed", int(crossed)))
	}
	span.SetAttributes(attribute.String("amount_out", amountOut.String()))
	return amountOut, nil
}
