package ethereum

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/quote-engine/business/quoting/domain"
	"github.com/fd1az/quote-engine/internal/apperror"
	"github.com/fd1az/quote-engine/internal/logger"
)

func TestChainReader_Reserves(t *testing.T) {
	backend := newFakeBackend(t)
	pair := addr(1)
	backend.respond(pair, "getReserves", bi("1000000000"), bi("500000000000000000000"), uint32(1700000000))

	r := newTestReader(t, backend)
	r0, r1, err := r.Reserves(context.Background(), pair)
	require.NoError(t, err)
	assert.Equal(t, "1000000000", r0.String())
	assert.Equal(t, "500000000000000000000", r1.String())
}

func TestChainReader_PoolState(t *testing.T) {
	backend := newFakeBackend(t)
	pool := addr(2)
	backend.respond(pool, "slot0", domain.Q96, big.NewInt(-120), uint16(1), uint16(1), uint16(1), uint8(0), true)
	backend.respond(pool, "liquidity", bi("123456789"))
	backend.respond(pool, "tickSpacing", big.NewInt(60))
	backend.respond(pool, "fee", big.NewInt(3000))

	r := newTestReader(t, backend)
	ctx := context.Background()

	sqrtPrice, tick, err := r.Slot0(ctx, pool)
	require.NoError(t, err)
	assert.Equal(t, 0, sqrtPrice.Cmp(domain.Q96))
	assert.Equal(t, -120, tick)

	liq, err := r.Liquidity(ctx, pool)
	require.NoError(t, err)
	assert.Equal(t, "123456789", liq.String())

	fee, err := r.PoolFee(ctx, pool)
	require.NoError(t, err)
	assert.Equal(t, uint32(3000), fee)

	for range 3 {
		spacing, err := r.TickSpacing(ctx, pool)
		require.NoError(t, err)
		assert.Equal(t, 60, spacing)
	}
	assert.Equal(t, 1, backend.count("tickSpacing"), "tick spacing is immutable and cached")
}

func TestChainReader_DecimalsCached(t *testing.T) {
	backend := newFakeBackend(t)
	token := addr(3)
	backend.respond(token, "decimals", uint8(6))

	r := newTestReader(t, backend)
	for range 3 {
		d, err := r.Decimals(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, uint8(6), d)
	}
	assert.Equal(t, 1, backend.count("decimals"))

	_, err := r.Decimals(context.Background(), addr(4))
	assert.True(t, apperror.HasCode(err, apperror.CodeDecimalsLookupFailed))
}

func TestChainReader_MetadataCacheBounded(t *testing.T) {
	backend := newFakeBackend(t)
	a, b := addr(6), addr(7)
	backend.respond(a, "decimals", uint8(6))
	backend.respond(b, "decimals", uint8(18))

	r, err := NewChainReader(backend, ReaderConfig{RequestsPerSecond: 10000, Burst: 10000, MetadataCacheSize: 1}, logger.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	for _, token := range []common.Address{a, a, b, a} {
		_, err := r.Decimals(ctx, token)
		require.NoError(t, err)
	}
	// a is evicted by b and read again.
	assert.Equal(t, 3, backend.count("decimals"))
	assert.Equal(t, 1, r.decimals.Len())
}

func TestChainReader_BalanceOf(t *testing.T) {
	backend := newFakeBackend(t)
	token := addr(5)
	backend.respond(token, "balanceOf", bi("42"))

	r := newTestReader(t, backend)
	bal, err := r.BalanceOf(context.Background(), token, addr(6))
	require.NoError(t, err)
	assert.Equal(t, "42", bal.String())
}

func TestChainReader_HasCodeCachesOnlyDeployed(t *testing.T) {
	backend := newFakeBackend(t)
	deployed, missing := addr(7), addr(8)
	backend.code[deployed] = []byte{0x60, 0x80}

	r := newTestReader(t, backend)
	ctx := context.Background()

	for range 2 {
		ok, err := r.HasCode(ctx, deployed)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, backend.count("code_at"))

	for range 2 {
		ok, err := r.HasCode(ctx, missing)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 3, backend.count("code_at"), "absent code is re-checked")
}

func TestChainReader_Errors(t *testing.T) {
	t.Run("revert does not trip breaker", func(t *testing.T) {
		backend := newFakeBackend(t)
		pool := addr(9)
		r := newTestReader(t, backend)

		for range 10 {
			_, err := r.Liquidity(context.Background(), pool)
			assert.True(t, apperror.HasCode(err, apperror.CodeContractCallFailed))
		}

		backend.respond(pool, "liquidity", bi("1"))
		liq, err := r.Liquidity(context.Background(), pool)
		require.NoError(t, err)
		assert.Equal(t, "1", liq.String())
	})

	t.Run("transport failures open breaker", func(t *testing.T) {
		backend := newFakeBackend(t)
		pool := addr(10)
		backend.fail(pool, errors.New("connection refused"))
		r := newTestReader(t, backend)

		for range 5 {
			_, err := r.Liquidity(context.Background(), pool)
			assert.True(t, apperror.HasCode(err, apperror.CodeContractCallFailed))
		}
		_, err := r.Liquidity(context.Background(), pool)
		assert.True(t, apperror.HasCode(err, apperror.CodeCircuitOpen))
		assert.Equal(t, 5, backend.count("liquidity"))
	})

	t.Run("cancelled context", func(t *testing.T) {
		backend := newFakeBackend(t)
		r, err := NewChainReader(backend, ReaderConfig{RequestsPerSecond: 0.001, Burst: 1}, logger.NewNop())
		require.NoError(t, err)

		backend.respond(addr(11), "liquidity", bi("1"))
		_, err = r.Liquidity(context.Background(), addr(11))
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err = r.Liquidity(ctx, addr(11))
		assert.True(t, apperror.HasCode(err, apperror.CodeRateLimitExceeded))
	})
}

func TestFeedBook_LatestValue(t *testing.T) {
	backend := newFakeBackend(t)
	aggregator := addr(20)
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	backend.respond(aggregator, "latestRoundData",
		big.NewInt(7), big.NewInt(200000000000), big.NewInt(updated.Unix()), big.NewInt(updated.Unix()), big.NewInt(7))

	key := domain.FeedKey{Base: domain.DenominationETH, Denomination: domain.DenominationUSD}
	book := NewFeedBook(newTestReader(t, backend), map[domain.FeedKey]common.Address{key: aggregator})

	value, at, err := book.LatestValue(context.Background(), key.Base, key.Denomination)
	require.NoError(t, err)
	assert.Equal(t, "200000000000", value.String())
	assert.True(t, at.Equal(updated))
	assert.True(t, book.Has(key))

	_, _, err = book.LatestValue(context.Background(), addr(21), domain.DenominationUSD)
	assert.True(t, apperror.HasCode(err, apperror.CodeFeedNotFound))
}

func TestOnchainRouter(t *testing.T) {
	backend := newFakeBackend(t)
	router, pool := addr(30), addr(31)
	backend.respond(router, "findBestRate", pool, bi("987654"))
	backend.respond(pool, "fee", big.NewInt(500))

	r := NewOnchainRouter(newTestReader(t, backend), router)
	ctx := context.Background()

	got, out, err := r.BestRate(ctx, addr(1), addr(2), bi("1000"))
	require.NoError(t, err)
	assert.Equal(t, pool, got)
	assert.Equal(t, "987654", out.String())

	fee, err := r.PoolFee(ctx, pool)
	require.NoError(t, err)
	assert.Equal(t, uint32(500), fee)

	backend.fail(router, errors.New("execution reverted"))
	_, _, err = r.BestRate(ctx, addr(1), addr(2), bi("1000"))
	assert.True(t, apperror.HasCode(err, apperror.CodeRouterQuoteFailed))
}
