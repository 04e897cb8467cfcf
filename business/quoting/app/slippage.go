package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/quote-engine/business/quoting/domain"
)

// LenientSwapper wraps a Swapper and discounts every nonzero quote by the configured haircut.
type LenientSwapper struct {
	next     Swapper
	settings *Settings
}

var _ Swapper = (*LenientSwapper)(nil)

func NewLenientSwapper(next Swapper, settings *Settings) *LenientSwapper {
	return &LenientSwapper{next: next, settings: settings}
}

func (l *LenientSwapper) IsPairSupported(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (bool, error) {
	return l.next.IsPairSupported(ctx, tokenIn, tokenOut, amountIn)
}

func (l *LenientSwapper) FindOptimalSwap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (domain.Quote, error) {
	return l.haircut(l.next.FindOptimalSwap(ctx, tokenIn, tokenOut, amountIn))
}

func (l *LenientSwapper) FindExecutableSwap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (domain.Quote, error) {
	return l.haircut(l.next.FindExecutableSwap(ctx, tokenIn, tokenOut, amountIn))
}

func (l *LenientSwapper) UnsafeFindExecutableSwap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (domain.Quote, error) {
	return l.haircut(l.next.UnsafeFindExecutableSwap(ctx, tokenIn, tokenOut, amountIn))
}

func (l *LenientSwapper) haircut(q domain.Quote, err error) (domain.Quote, error) {
	if err != nil || q.IsZero() {
		return q, err
	}
	q.AmountOut = domain.ApplyHaircut(q.AmountOut, l.settings.Slippage())
	return q, nil
}
