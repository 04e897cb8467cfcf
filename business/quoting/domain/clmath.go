package domain

import (
	"math"
	"math/big"

	"github.com/holiman/uint256"
)

// PipsDenominator is 100% in concentrated-liquidity fee units.
const PipsDenominator = 1_000_000

// Tick bounds of concentrated-liquidity pools.
const (
	MinTick = -887272
	MaxTick = 887272
)

var (
	u256Q96     = new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	u256PipsDen = uint256.NewInt(PipsDenominator)

	// Q96 is the fixed-point scale of sqrt prices.
	Q96 = u256Q96.ToBig()
)

// SwapWithinRange prices an exact-input swap against the liquidity active at sqrtPriceX96,
// assuming no tick is crossed. It returns the output and the resulting sqrt price.
//
// zeroForOne (token0 in):
//
//	next = ceil(L*2^96*P / (L*2^96 + in*P)),  out = L*(P-next)/2^96
//
// otherwise (token1 in):
//
//	next = P + in*2^96/L,  out = L*2^96*(next-P)/next/P
func SwapWithinRange(sqrtPriceX96, liquidity, amountIn *big.Int, feePips uint32, zeroForOne bool) (amountOut, sqrtNext *big.Int, err error) {
	if feePips >= PipsDenominator {
		return nil, nil, ErrInvalidFee
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, nil, ErrInsufficientInput
	}
	if sqrtPriceX96 == nil || liquidity == nil || sqrtPriceX96.Sign() <= 0 || liquidity.Sign() <= 0 {
		return nil, nil, ErrInsufficientLiquidity
	}
	if sqrtPriceX96.BitLen() > 160 || liquidity.BitLen() > 128 {
		return nil, nil, ErrOverflow
	}

	sp, _ := uint256.FromBig(sqrtPriceX96)
	l, _ := uint256.FromBig(liquidity)
	in, overflow := uint256.FromBig(amountIn)
	if overflow {
		return nil, nil, ErrOverflow
	}

	less, _ := new(uint256.Int).MulDivOverflow(in, uint256.NewInt(uint64(PipsDenominator-feePips)), u256PipsDen)
	if less.IsZero() {
		return nil, nil, ErrInsufficientInput
	}
	num1 := new(uint256.Int).Lsh(l, 96)

	if zeroForOne {
		next, ok := nextPriceToken0In(num1, sp, less)
		if !ok {
			return nil, nil, ErrOverflow
		}
		diff := new(uint256.Int).Sub(sp, next)
		out, _ := new(uint256.Int).MulDivOverflow(l, diff, u256Q96)
		return out.ToBig(), next.ToBig(), nil
	}

	delta, overflow := new(uint256.Int).MulDivOverflow(less, u256Q96, l)
	if overflow {
		return nil, nil, ErrOverflow
	}
	next, overflow := new(uint256.Int).AddOverflow(sp, delta)
	if overflow || next.BitLen() > 160 {
		return nil, nil, ErrOverflow
	}
	diff := new(uint256.Int).Sub(next, sp)
	t, _ := new(uint256.Int).MulDivOverflow(num1, diff, next)
	out := t.Div(t, sp)
	return out.ToBig(), next.ToBig(), nil
}

func nextPriceToken0In(num1, sp, in *uint256.Int) (*uint256.Int, bool) {
	if product, overflow := new(uint256.Int).MulOverflow(in, sp); !overflow {
		if denom, overflow := new(uint256.Int).AddOverflow(num1, product); !overflow {
			return mulDivRoundingUp(num1, sp, denom), true
		}
	}
	// num1 / (num1/P + in), rounded up.
	d := new(uint256.Int).Div(num1, sp)
	if _, overflow := d.AddOverflow(d, in); overflow {
		return nil, false
	}
	return divRoundingUp(num1, d), true
}

func mulDivRoundingUp(a, b, d *uint256.Int) *uint256.Int {
	r, _ := new(uint256.Int).MulDivOverflow(a, b, d)
	if !new(uint256.Int).MulMod(a, b, d).IsZero() {
		r.AddUint64(r, 1)
	}
	return r
}

func divRoundingUp(a, d *uint256.Int) *uint256.Int {
	q, m := new(uint256.Int).DivMod(a, d, new(uint256.Int))
	if !m.IsZero() {
		q.AddUint64(q, 1)
	}
	return q
}

// SqrtRatioAtTick approximates sqrt(1.0001^tick)*2^96. Precision is that of a float64, enough
// to place a price against a tick boundary.
func SqrtRatioAtTick(tick int) *big.Int {
	if tick < MinTick {
		tick = MinTick
	}
	if tick > MaxTick {
		tick = MaxTick
	}
	f := new(big.Float).SetFloat64(math.Pow(1.0001, float64(tick)/2))
	f.Mul(f, new(big.Float).SetInt(Q96))
	out, _ := f.Int(nil)
	return out
}

// ActiveRange returns the bounds of the tick-spacing interval that contains tick.
func ActiveRange(tick, spacing int) (lower, upper int) {
	if spacing <= 0 {
		spacing = 1
	}
	lower = tick / spacing * spacing
	if tick < 0 && tick%spacing != 0 {
		lower -= spacing
	}
	return lower, lower + spacing
}

// CrossesRange reports whether a swap ending at sqrtNext leaves the active interval
// [lower, upper) of tick.
func CrossesRange(sqrtNext *big.Int, tick, spacing int, zeroForOne bool) bool {
	lower, upper := ActiveRange(tick, spacing)
	if zeroForOne {
		return sqrtNext.Cmp(SqrtRatioAtTick(lower)) < 0
	}
	return sqrtNext.Cmp(SqrtRatioAtTick(upper)) >= 0
}
