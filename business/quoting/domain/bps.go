package domain

import "math/big"

// BpsDenominator is 100% in basis points.
const BpsDenominator = 10000

// PipsPerBps converts concentrated-liquidity fee tiers (1e-6) to basis points.
const PipsPerBps = 100

var bigBps = big.NewInt(BpsDenominator)

// PipsToBps converts a fee in pips to basis points, e.g. 3000 → 30.
func PipsToBps(pips uint32) uint32 {
	return pips / PipsPerBps
}

// ApplyHaircut returns floor(amount*(10000-bps)/10000). Zero stays zero.
func ApplyHaircut(amount *big.Int, bps uint32) *big.Int {
	if amount == nil || amount.Sign() == 0 {
		return new(big.Int)
	}
	if bps >= BpsDenominator {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(BpsDenominator-bps)))
	return out.Quo(out, bigBps)
}

// WithinTolerance reports whether dexOut*10000 >= feedOut*(10000-toleranceBps).
// A zero feed means no oracle opinion and always passes.
func WithinTolerance(dexOut, feedOut *big.Int, toleranceBps uint32) bool {
	if feedOut == nil || feedOut.Sign() == 0 {
		return true
	}
	if toleranceBps > BpsDenominator {
		toleranceBps = BpsDenominator
	}
	if dexOut == nil {
		dexOut = new(big.Int)
	}
	lhs := new(big.Int).Mul(dexOut, bigBps)
	rhs := new(big.Int).Mul(feedOut, big.NewInt(int64(BpsDenominator-toleranceBps)))
	return lhs.Cmp(rhs) >= 0
}

// MinAcceptable is the smallest dex output WithinTolerance accepts, rounded up.
func MinAcceptable(feedOut *big.Int, toleranceBps uint32) *big.Int {
	if feedOut == nil || feedOut.Sign() == 0 {
		return new(big.Int)
	}
	num := new(big.Int).Mul(feedOut, big.NewInt(int64(BpsDenominator-toleranceBps)))
	num.Add(num, big.NewInt(BpsDenominator-1))
	return num.Quo(num, bigBps)
}
