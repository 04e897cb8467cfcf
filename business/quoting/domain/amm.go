package domain

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// FeeDenominator is the denominator of a constant-product fee numerator (997/1000 = 0.3%).
const FeeDenominator = 1000

var (
	ErrInsufficientInput     = errors.New("amm: zero input amount")
	ErrInsufficientLiquidity = errors.New("amm: reserve does not exceed input")
	ErrInvalidFee            = errors.New("amm: fee numerator out of range")
	ErrOverflow              = errors.New("amm: value exceeds 256 bits")
)

var u256FeeDenom = uint256.NewInt(FeeDenominator)

// GetAmountOut prices an exact-input trade against a constant-product pool:
//
//	amountOut = amountIn*fee*reserveOut / (reserveIn*1000 + amountIn*fee)
//
// The pool must hold strictly more of tokenIn than amountIn. This is a coarse liquidity filter,
// not a slippage bound.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, feeNumerator uint32) (*big.Int, error) {
	if feeNumerator == 0 || feeNumerator > FeeDenominator {
		return nil, ErrInvalidFee
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInsufficientInput
	}
	if reserveIn == nil || reserveOut == nil || reserveOut.Sign() <= 0 || reserveIn.Cmp(amountIn) <= 0 {
		return nil, ErrInsufficientLiquidity
	}

	in, overflow := uint256.FromBig(amountIn)
	if overflow {
		return nil, ErrOverflow
	}
	rIn, overflow := uint256.FromBig(reserveIn)
	if overflow {
		return nil, ErrOverflow
	}
	rOut, overflow := uint256.FromBig(reserveOut)
	if overflow {
		return nil, ErrOverflow
	}

	inWithFee, overflow := new(uint256.Int).MulOverflow(in, uint256.NewInt(uint64(feeNumerator)))
	if overflow {
		return nil, ErrOverflow
	}
	denominator, overflow := new(uint256.Int).MulOverflow(rIn, u256FeeDenom)
	if overflow {
		return nil, ErrOverflow
	}
	if _, overflow = denominator.AddOverflow(denominator, inWithFee); overflow {
		return nil, ErrOverflow
	}

	// 512-bit intermediate product, the quotient is below reserveOut so it always fits.
	out, _ := new(uint256.Int).MulDivOverflow(inWithFee, rOut, denominator)
	return out.ToBig(), nil
}

// FeeBpsFromNumerator converts a constant-product fee numerator to basis points (997 → 30).
func FeeBpsFromNumerator(feeNumerator uint32) uint32 {
	if feeNumerator >= FeeDenominator {
		return 0
	}
	return (FeeDenominator - feeNumerator) * BpsDenominator / FeeDenominator
}
