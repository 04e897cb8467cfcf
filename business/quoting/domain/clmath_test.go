package domain_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/quote-engine/business/quoting/domain"
)

func within(t *testing.T, want, got *big.Int, tol int64) {
	t.Helper()
	diff := new(big.Int).Sub(want, got)
	assert.LessOrEqual(t, diff.CmpAbs(big.NewInt(tol)), 0, "want %s got %s", want, got)
}

func TestSwapWithinRange(t *testing.T) {
	liquidity := big.NewInt(1_000_000_000_000_000_000)
	amountIn := big.NewInt(1_000_000_000_000_000)

	t.Run("token0 in at price 1", func(t *testing.T) {
		out, next, err := domain.SwapWithinRange(domain.Q96, liquidity, amountIn, 0, true)
		require.NoError(t, err)
		// 1e18 * (1 - 1/1.001)
		within(t, big.NewInt(999_000_999_000_999), out, 2)
		assert.Equal(t, -1, next.Cmp(domain.Q96))
	})

	t.Run("token1 in at price 1", func(t *testing.T) {
		out, next, err := domain.SwapWithinRange(domain.Q96, liquidity, amountIn, 0, false)
		require.NoError(t, err)
		within(t, big.NewInt(999_000_999_000_999), out, 2)
		assert.Equal(t, 1, next.Cmp(domain.Q96))
	})

	t.Run("fee reduces output", func(t *testing.T) {
		noFee, _, err := domain.SwapWithinRange(domain.Q96, liquidity, amountIn, 0, true)
		require.NoError(t, err)
		withFee, _, err := domain.SwapWithinRange(domain.Q96, liquidity, amountIn, 3000, true)
		require.NoError(t, err)
		assert.Equal(t, -1, withFee.Cmp(noFee))
		assert.Equal(t, -1, withFee.Cmp(amountIn))
	})

	t.Run("invalid inputs", func(t *testing.T) {
		_, _, err := domain.SwapWithinRange(domain.Q96, liquidity, amountIn, 1_000_000, true)
		assert.ErrorIs(t, err, domain.ErrInvalidFee)
		_, _, err = domain.SwapWithinRange(domain.Q96, new(big.Int), amountIn, 500, true)
		assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)
		_, _, err = domain.SwapWithinRange(domain.Q96, liquidity, new(big.Int), 500, true)
		assert.ErrorIs(t, err, domain.ErrInsufficientInput)
		_, _, err = domain.SwapWithinRange(new(big.Int).Lsh(big.NewInt(1), 161), liquidity, amountIn, 500, true)
		assert.ErrorIs(t, err, domain.ErrOverflow)
	})
}

func TestSqrtRatioAtTick(t *testing.T) {
	assert.Equal(t, 0, domain.SqrtRatioAtTick(0).Cmp(domain.Q96))
	assert.Equal(t, 1, domain.SqrtRatioAtTick(10).Cmp(domain.SqrtRatioAtTick(9)))
	assert.Equal(t, -1, domain.SqrtRatioAtTick(-10).Cmp(domain.Q96))
}

func TestActiveRange(t *testing.T) {
	tests := []struct {
		tick, spacing, lower, upper int
	}{
		{0, 10, 0, 10},
		{15, 10, 10, 20},
		{-1, 10, -10, 0},
		{-10, 10, -10, 0},
		{-11, 60, -60, 0},
		{7, 0, 7, 8},
	}
	for _, tt := range tests {
		lower, upper := domain.ActiveRange(tt.tick, tt.spacing)
		assert.Equal(t, tt.lower, lower, "tick %d", tt.tick)
		assert.Equal(t, tt.upper, upper, "tick %d", tt.tick)
	}
}

func TestCrossesRange(t *testing.T) {
	liquidity := big.NewInt(1_000_000_000_000_000_000)
	mid := domain.SqrtRatioAtTick(30)

	_, small, err := domain.SwapWithinRange(mid, liquidity, big.NewInt(1_000), 500, true)
	require.NoError(t, err)
	assert.False(t, domain.CrossesRange(small, 30, 60, true))

	_, large, err := domain.SwapWithinRange(mid, liquidity, big.NewInt(100_000_000_000_000_000), 500, true)
	require.NoError(t, err)
	assert.True(t, domain.CrossesRange(large, 30, 60, true))

	_, up, err := domain.SwapWithinRange(mid, liquidity, big.NewInt(1_000), 500, false)
	require.NoError(t, err)
	assert.False(t, domain.CrossesRange(up, 30, 60, false))

	_, upLarge, err := domain.SwapWithinRange(mid, liquidity, big.NewInt(100_000_000_000_000_000), 500, false)
	require.NoError(t, err)
	assert.True(t, domain.CrossesRange(upLarge, 30, 60, false))
}
