package asset

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	ErrNilAsset        = errors.New("asset: nil asset")
	ErrNegativeAmount  = errors.New("asset: negative amount")
	ErrTooManyDecimals = errors.New("asset: too many decimal places for asset")
)

// Amount is an immutable quantity of a token in its smallest unit.
type Amount struct {
	raw   *big.Int
	asset *Asset
}

// NewAmount copies raw. A nil raw is treated as zero.
func NewAmount(a *Asset, raw *big.Int) Amount {
	if a == nil {
		panic(ErrNilAsset)
	}
	if raw == nil {
		raw = new(big.Int)
	}
	if raw.Sign() < 0 {
		panic(ErrNegativeAmount)
	}
	return Amount{raw: new(big.Int).Set(raw), asset: a}
}

func (a Amount) Raw() *big.Int {
	if a.raw == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.raw)
}

func (a Amount) Asset() *Asset {
	return a.asset
}

func (a Amount) IsZero() bool {
	return a.raw == nil || a.raw.Sign() == 0
}

// ToDecimal scales the raw value by the token decimals. Display only.
func (a Amount) ToDecimal() decimal.Decimal {
	if a.raw == nil || a.asset == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(a.raw, -int32(a.asset.Decimals()))
}

// ParseString reads a human amount such as "1.5" into raw units.
func ParseString(a *Asset, s string) (Amount, error) {
	if a == nil {
		return Amount{}, ErrNilAsset
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("asset: invalid decimal string: %w", err)
	}
	if d.IsNegative() {
		return Amount{}, ErrNegativeAmount
	}

	scaled := d.Shift(int32(a.Decimals()))
	if !scaled.Equal(scaled.Truncate(0)) {
		return Amount{}, ErrTooManyDecimals
	}
	return NewAmount(a, scaled.BigInt()), nil
}

// Rate is the effective price of one unit of in, expressed in out. Zero when in is zero.
func Rate(in, out Amount) decimal.Decimal {
	din := in.ToDecimal()
	if din.IsZero() {
		return decimal.Zero
	}
	return out.ToDecimal().DivRound(din, 18)
}

// String returns e.g. "1.5 WETH".
func (a Amount) String() string {
	if a.asset == nil {
		return "0 ???"
	}
	return fmt.Sprintf("%s %s", a.ToDecimal().String(), a.asset.Symbol())
}

// StringFixed rounds to places decimals.
func (a Amount) StringFixed(places int32) string {
	if a.asset == nil {
		return "0 ???"
	}
	return fmt.Sprintf("%s %s", a.ToDecimal().StringFixed(places), a.asset.Symbol())
}
