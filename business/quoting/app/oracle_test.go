package app

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/quote-engine/business/quoting/domain"
	"github.com/fd1az/quote-engine/internal/apperror"
	"github.com/fd1az/quote-engine/internal/asset"
	"github.com/fd1az/quote-engine/internal/logger"
)

var (
	oracleNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tokX = addr(0x10) // ETH-denominated feed only
	tokY = addr(0x11) // BTC-denominated feed only
	tokZ = addr(0x12) // no feed at all
)

type oracleFixture struct {
	feeds    *fakeFeeds
	decimals fakeDecimals
	dex      *stubQuoter
	resolver *OracleResolver
}

func newOracleFixture(t *testing.T) *oracleFixture {
	t.Helper()

	feeds := newFakeFeeds()
	fresh := oracleNow.Add(-time.Minute)
	feeds.set(domain.DenominationETH, domain.DenominationUSD, "200000000000", fresh)  // 2000 USD
	feeds.set(domain.DenominationBTC, domain.DenominationUSD, "6000000000000", fresh) // 60000 USD
	feeds.set(asset.AddrLINK, domain.DenominationETH, "5000000000000000", fresh)      // 0.005 ETH
	feeds.set(tokX, domain.DenominationETH, "10000000000000000", fresh)               // 0.01 ETH
	feeds.set(tokY, domain.DenominationBTC, "1000000", fresh)                         // 0.01 BTC

	f := &oracleFixture{
		feeds:    feeds,
		decimals: fakeDecimals{tokX: 18, tokY: 18, tokZ: 18},
		dex:      &stubQuoter{quote: domain.ZeroQuote("", domain.KindNone)},
	}

	r, err := NewOracleResolver(OracleParams{
		ChainID:          asset.ChainIDEthereum,
		BaseAsset:        asset.AddrWETH,
		Connector:        asset.AddrWETH,
		Stablecoins:      []common.Address{asset.AddrUSDC, asset.AddrUSDT, asset.AddrDAI},
		BTCPegged:        []common.Address{asset.AddrWBTC},
		Staleness:        map[domain.FeedKey]time.Duration{{Base: domain.DenominationETH, Denomination: domain.DenominationUSD}: time.Hour},
		DefaultStaleness: 24 * time.Hour,
	}, feeds, f.decimals, asset.DefaultRegistry(), f.dex, logger.NewNop())
	require.NoError(t, err)
	r.now = func() time.Time { return oracleNow }
	f.resolver = r
	return f
}

func TestNewOracleResolver_RequiresBase(t *testing.T) {
	_, err := NewOracleResolver(OracleParams{}, nil, nil, nil, nil, logger.NewNop())
	assert.True(t, apperror.HasCode(err, apperror.CodeConfigurationError))
}

func TestOracleResolver_Resolve(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *oracleFixture)
		in     common.Address
		out    common.Address
		amount string
		want   string
	}{
		{"base to stable by cross rate", nil, asset.AddrWETH, asset.AddrUSDC, "1000000000000000000", "2000000000"},
		{"stable to base", nil, asset.AddrDAI, asset.AddrWETH, "2000000000000000000000", "1000000000000000000"},
		{"base shortcut out", nil, asset.AddrWETH, asset.AddrLINK, "1000000000000000000", "200000000000000000000"},
		{"base shortcut in", nil, asset.AddrLINK, asset.AddrWETH, "1000000000000000000", "5000000000000000"},
		{"btc pegged falls back to BTC/USD", nil, asset.AddrWBTC, asset.AddrUSDC, "100000000", "60000000000"},
		{
			"btc pegged own feed wins",
			func(f *oracleFixture) {
				f.feeds.set(asset.AddrWBTC, domain.DenominationUSD, "5900000000000", oracleNow)
			},
			asset.AddrWBTC, asset.AddrUSDC, "100000000", "59000000000",
		},
		{"ETH-denominated token", nil, tokX, asset.AddrUSDC, "1000000000000000000", "20000000"},
		{"BTC-denominated token", nil, tokY, asset.AddrUSDT, "1000000000000000000", "600000000"},
		{"both sides unresolved", nil, tokZ, addr(0x13), "1000", "0"},
		{
			"non-positive answer is no feed",
			func(f *oracleFixture) {
				f.feeds.set(tokX, domain.DenominationETH, "-1", oracleNow)
			},
			tokX, asset.AddrUSDC, "1000000000000000000", "0",
		},
		{
			"decimals lookup failure is no opinion",
			func(f *oracleFixture) { delete(f.decimals, tokX) },
			tokX, asset.AddrUSDC, "1000000000000000000", "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOracleFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}

			got, err := f.resolver.Resolve(context.Background(), tt.in, tt.out, bi(tt.amount))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.AmountOut.String())
		})
	}
}

// flakyDecimals fails the first lookups of listed tokens, then answers from the table.
type flakyDecimals struct {
	fakeDecimals
	failures map[common.Address]int
}

func (f *flakyDecimals) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	if f.failures[token] > 0 {
		f.failures[token]--
		return 0, apperror.New(apperror.CodeDecimalsLookupFailed, apperror.WithContext(token.Hex()))
	}
	return f.fakeDecimals.Decimals(ctx, token)
}

func TestOracleResolver_BaseShortcutFallsThroughOnDecimals(t *testing.T) {
	f := newOracleFixture(t)
	f.resolver.decimals = &flakyDecimals{
		fakeDecimals: f.decimals,
		failures:     map[common.Address]int{tokX: 1},
	}

	// 1 WETH at 0.01 ETH per tokX, priced through ETH/USD on both sides.
	got, err := f.resolver.Resolve(context.Background(), asset.AddrWETH, tokX, bi("1000000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "100000000000000000000", got.AmountOut.String())
}

func TestOracleResolver_BridgeIn(t *testing.T) {
	f := newOracleFixture(t)
	pool := addr(0x40)
	f.dex.quote = domain.Quote{
		Venue:     "uniswap-v2",
		Kind:      domain.KindConstantProduct,
		AmountOut: bi("500000000000000000"),
		Pools:     []common.Address{pool},
		Fees:      []uint32{30},
	}

	got, err := f.resolver.Resolve(context.Background(), tokZ, asset.AddrUSDC, bi("1000"))
	require.NoError(t, err)

	assert.Equal(t, "1000000000", got.AmountOut.String())
	assert.Equal(t, "500000000000000000", got.BridgeLegAmount.String())
	assert.Equal(t, domain.VenueID("uniswap-v2"), got.BridgeVenue)
	require.NotNil(t, got.BridgeLeg)
	assert.Equal(t, pool, got.BridgeLeg.Pool)
	assert.Equal(t, uint32(30), got.BridgeLeg.FeeBps)
}

func TestOracleResolver_BridgeInFailsClosed(t *testing.T) {
	f := newOracleFixture(t)

	got, err := f.resolver.Resolve(context.Background(), tokZ, asset.AddrUSDC, bi("1000"))
	require.NoError(t, err)
	assert.True(t, got.IsZero())
	assert.Nil(t, got.BridgeLeg)
}

func TestOracleResolver_BridgeOut(t *testing.T) {
	f := newOracleFixture(t)
	f.dex.quote = domain.Quote{Venue: "sushiswap", AmountOut: big.NewInt(777), Pools: []common.Address{addr(0x41)}, Fees: []uint32{30}}

	got, err := f.resolver.Resolve(context.Background(), asset.AddrUSDC, tokZ, bi("1000000000"))
	require.NoError(t, err)

	assert.Equal(t, "777", got.AmountOut.String())
	assert.Equal(t, "500000000000000000", got.BridgeLegAmount.String())
	assert.Equal(t, domain.VenueID("sushiswap"), got.BridgeVenue)
	assert.Nil(t, got.BridgeLeg)
}

func TestOracleResolver_Staleness(t *testing.T) {
	t.Run("stale shared feed is a hard error", func(t *testing.T) {
		f := newOracleFixture(t)
		f.feeds.set(domain.DenominationETH, domain.DenominationUSD, "200000000000", oracleNow.Add(-2*time.Hour))

		_, err := f.resolver.Resolve(context.Background(), asset.AddrWETH, asset.AddrUSDC, bi("1"))
		assert.True(t, apperror.HasCode(err, apperror.CodeStaleFeed))
	})

	t.Run("staleness is checked before the value", func(t *testing.T) {
		f := newOracleFixture(t)
		f.feeds.set(tokX, domain.DenominationETH, "0", oracleNow.Add(-48*time.Hour))

		_, err := f.resolver.Resolve(context.Background(), tokX, asset.AddrUSDC, bi("1"))
		assert.True(t, apperror.HasCode(err, apperror.CodeStaleFeed))
	})

	t.Run("default window applies to unlisted feeds", func(t *testing.T) {
		f := newOracleFixture(t)
		f.feeds.set(tokX, domain.DenominationETH, "10000000000000000", oracleNow.Add(-23*time.Hour))

		got, err := f.resolver.Resolve(context.Background(), tokX, asset.AddrUSDC, bi("1000000000000000000"))
		require.NoError(t, err)
		assert.Equal(t, "20000000", got.AmountOut.String())
	})

	t.Run("stale error from the feed port propagates", func(t *testing.T) {
		f := newOracleFixture(t)
		f.feeds.readings[domain.FeedKey{Base: tokX, Denomination: domain.DenominationETH}] = feedReading{
			err: apperror.New(apperror.CodeStaleFeed),
		}

		_, err := f.resolver.Resolve(context.Background(), tokX, asset.AddrUSDC, bi("1"))
		assert.True(t, apperror.HasCode(err, apperror.CodeStaleFeed))
	})

	t.Run("other port errors are no opinion", func(t *testing.T) {
		f := newOracleFixture(t)
		f.feeds.readings[domain.FeedKey{Base: tokX, Denomination: domain.DenominationETH}] = feedReading{
			err: apperror.New(apperror.CodeContractCallFailed),
		}

		got, err := f.resolver.Resolve(context.Background(), tokX, asset.AddrUSDC, bi("1"))
		require.NoError(t, err)
		assert.True(t, got.IsZero())
	})
}

func TestOracleResolver_SharedFeedReadOncePerCall(t *testing.T) {
	f := newOracleFixture(t)
	tokW := addr(0x14)
	f.decimals[tokW] = 18
	f.feeds.set(tokW, domain.DenominationETH, "20000000000000000", oracleNow)

	got, err := f.resolver.Resolve(context.Background(), tokX, tokW, bi("1000000000000000000"))
	require.NoError(t, err)

	assert.Equal(t, "500000000000000000", got.AmountOut.String())
	assert.Equal(t, 1, f.feeds.readCount(domain.DenominationETH, domain.DenominationUSD))
}
