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

var oneEther = bi("1000000000000000000")

type serviceFixture struct {
	feeds   *fakeFeeds
	service *QuoteService
}

// newServiceFixture wires the real components over fake ports. The oracle bridges through the
// same aggregator the service quotes from.
func newServiceFixture(t *testing.T, sources ...QuoteSource) *serviceFixture {
	t.Helper()
	log := logger.NewNop()

	feeds := newFakeFeeds()
	feeds.set(domain.DenominationETH, domain.DenominationUSD, "200000000000", oracleNow)

	agg, err := NewRouteAggregator(sources, time.Second, log)
	require.NoError(t, err)

	oracle, err := NewOracleResolver(OracleParams{
		ChainID:          asset.ChainIDEthereum,
		BaseAsset:        asset.AddrWETH,
		Connector:        asset.AddrWETH,
		Stablecoins:      []common.Address{asset.AddrUSDC},
		DefaultStaleness: time.Hour,
	}, feeds, fakeDecimals{tokZ: 18}, asset.DefaultRegistry(), agg, log)
	require.NoError(t, err)
	oracle.now = func() time.Time { return oracleNow }

	safety, err := NewSafetyValidator(log)
	require.NoError(t, err)
	settings, err := NewSettings(operator, 0, 500, 1000)
	require.NoError(t, err)

	svc, err := NewQuoteService(agg, oracle, safety, settings, asset.AddrWETH, log)
	require.NoError(t, err)
	return &serviceFixture{feeds: feeds, service: svc}
}

func TestQuoteService_RejectsInvalidInput(t *testing.T) {
	svc := newServiceFixture(t).service
	ctx := context.Background()

	tests := []struct {
		name    string
		in, out common.Address
		amount  *big.Int
	}{
		{"same token", tokA, tokA, big.NewInt(1)},
		{"zero tokenIn", common.Address{}, tokB, big.NewInt(1)},
		{"zero tokenOut", tokA, common.Address{}, big.NewInt(1)},
		{"zero amount", tokA, tokB, new(big.Int)},
		{"negative amount", tokA, tokB, big.NewInt(-5)},
		{"nil amount", tokA, tokB, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.FindOptimalSwap(ctx, tt.in, tt.out, tt.amount)
			assert.True(t, apperror.HasCode(err, apperror.CodeInvalidInput))
			_, err = svc.IsPairSupported(ctx, tt.in, tt.out, tt.amount)
			assert.True(t, apperror.HasCode(err, apperror.CodeInvalidInput))
		})
	}
}

func TestQuoteService_FindOptimalSwap(t *testing.T) {
	ctx := context.Background()

	t.Run("oracle answer wins", func(t *testing.T) {
		v2 := &stubSource{venue: "v2", kind: domain.KindConstantProduct, quote: fixed("2500000000")}
		svc := newServiceFixture(t, v2).service

		q, err := svc.FindOptimalSwap(ctx, asset.AddrWETH, asset.AddrUSDC, oneEther)
		require.NoError(t, err)
		assert.Equal(t, domain.OracleVenue, q.Venue)
		assert.Equal(t, domain.KindOracle, q.Kind)
		assert.Equal(t, "2000000000", q.AmountOut.String())
		assert.Zero(t, v2.calls.Load())
	})

	t.Run("dex when the oracle has no opinion", func(t *testing.T) {
		v2 := &stubSource{venue: "v2", kind: domain.KindConstantProduct, quote: fixed("5")}
		svc := newServiceFixture(t, v2).service

		q, err := svc.FindOptimalSwap(ctx, tokZ, addr(0x13), big.NewInt(100))
		require.NoError(t, err)
		assert.Equal(t, domain.VenueID("v2"), q.Venue)
		assert.Equal(t, "5", q.AmountOut.String())
	})

	t.Run("stale feed aborts", func(t *testing.T) {
		f := newServiceFixture(t)
		f.feeds.set(domain.DenominationETH, domain.DenominationUSD, "200000000000", oracleNow.Add(-2*time.Hour))

		_, err := f.service.FindOptimalSwap(ctx, asset.AddrWETH, asset.AddrUSDC, oneEther)
		assert.True(t, apperror.HasCode(err, apperror.CodeStaleFeed))
	})
}

func TestQuoteService_FindExecutableSwap(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		dexOut   string
		wantOut  string
		wantCode apperror.Code
	}{
		{"within tolerance", "1950000000", "1950000000", ""},
		{"at the bound", "1900000000", "1900000000", ""},
		{"below the bound", "1899999999", "", apperror.CodeSlippageExceeded},
		{"no dex quote", "0", "0", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v2 := &stubSource{venue: "v2", kind: domain.KindConstantProduct, quote: fixed(tt.dexOut)}
			svc := newServiceFixture(t, v2).service

			q, err := svc.FindExecutableSwap(ctx, asset.AddrWETH, asset.AddrUSDC, oneEther)
			if tt.wantCode != "" {
				assert.True(t, apperror.HasCode(err, tt.wantCode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, q.AmountOut.String())
		})
	}
}

func TestQuoteService_FindExecutableSwapReusesOracleLeg(t *testing.T) {
	v2 := &stubSource{
		venue:      "v2",
		kind:       domain.KindConstantProduct,
		bridgeable: true,
		quote: rates(map[[2]common.Address][2]int64{
			{tokZ, asset.AddrWETH}:           {1, 2},
			{asset.AddrWETH, asset.AddrUSDC}: {2_000_000_000, 1_000_000_000_000_000_000},
		}),
	}
	svc := newServiceFixture(t, v2).service

	q, err := svc.FindExecutableSwap(context.Background(), tokZ, asset.AddrUSDC, oneEther)
	require.NoError(t, err)

	assert.Equal(t, "1000000000", q.AmountOut.String())
	assert.Equal(t, 2, q.Hops())
	// Oracle leg, then direct candidate and second hop only.
	assert.Equal(t, int32(3), v2.calls.Load())
}

func TestQuoteService_UnsafeFindExecutableSwap(t *testing.T) {
	v2 := &stubSource{venue: "v2", kind: domain.KindConstantProduct, quote: fixed("1000000000")}
	f := newServiceFixture(t, v2)
	f.feeds.set(domain.DenominationETH, domain.DenominationUSD, "200000000000", oracleNow.Add(-48*time.Hour))

	q, err := f.service.UnsafeFindExecutableSwap(context.Background(), asset.AddrWETH, asset.AddrUSDC, oneEther)
	require.NoError(t, err)
	assert.Equal(t, "1000000000", q.AmountOut.String())
}

func TestQuoteService_IsPairSupported(t *testing.T) {
	ctx := context.Background()
	out := addr(0x13)

	type sources struct {
		conc, cp, router *stubSource
	}
	build := func(concExists bool, cpOut, routerOut string) sources {
		return sources{
			conc:   &stubSource{venue: "v3", kind: domain.KindConcentrated, exists: concExists, quote: fixed("0")},
			cp:     &stubSource{venue: "v2", kind: domain.KindConstantProduct, quote: fixed(cpOut)},
			router: &stubSource{venue: "router", kind: domain.KindRouter, quote: fixed(routerOut)},
		}
	}

	t.Run("feed answers without touching venues", func(t *testing.T) {
		s := build(false, "0", "0")
		svc := newServiceFixture(t, s.router, s.cp, s.conc).service

		ok, err := svc.IsPairSupported(ctx, asset.AddrWETH, asset.AddrUSDC, oneEther)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Zero(t, s.cp.calls.Load())
		assert.Zero(t, s.router.calls.Load())
	})

	t.Run("concentrated pool existence is checked first", func(t *testing.T) {
		s := build(true, "1", "1")
		svc := newServiceFixture(t, s.router, s.cp, s.conc).service

		ok, err := svc.IsPairSupported(ctx, tokZ, out, big.NewInt(1))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Zero(t, s.cp.calls.Load())
		assert.Zero(t, s.router.calls.Load())
	})

	t.Run("constant product before router", func(t *testing.T) {
		s := build(false, "1", "1")
		svc := newServiceFixture(t, s.router, s.cp, s.conc).service

		ok, err := svc.IsPairSupported(ctx, tokZ, out, big.NewInt(1))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int32(1), s.cp.calls.Load())
		assert.Zero(t, s.router.calls.Load())
	})

	t.Run("router last", func(t *testing.T) {
		s := build(false, "0", "1")
		svc := newServiceFixture(t, s.router, s.cp, s.conc).service

		ok, err := svc.IsPairSupported(ctx, tokZ, out, big.NewInt(1))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unsupported", func(t *testing.T) {
		s := build(false, "0", "0")
		svc := newServiceFixture(t, s.router, s.cp, s.conc).service

		ok, err := svc.IsPairSupported(ctx, tokZ, out, big.NewInt(1))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("stale feed is an error", func(t *testing.T) {
		s := build(true, "1", "1")
		f := newServiceFixture(t, s.router, s.cp, s.conc)
		f.feeds.set(domain.DenominationETH, domain.DenominationUSD, "1", oracleNow.Add(-2*time.Hour))

		_, err := f.service.IsPairSupported(ctx, asset.AddrWETH, asset.AddrUSDC, oneEther)
		assert.True(t, apperror.HasCode(err, apperror.CodeStaleFeed))
	})
}

func TestQuoteService_IsPairSupportedMatchesQuotes(t *testing.T) {
	ctx := context.Background()
	out := addr(0x13)
	amount := big.NewInt(1000)

	tests := []struct {
		name  string
		table map[[2]common.Address][2]int64
		want  bool
	}{
		{
			name:  "direct only",
			table: map[[2]common.Address][2]int64{{tokZ, out}: {1, 10}},
			want:  true,
		},
		{
			name: "bridged through the connector only",
			table: map[[2]common.Address][2]int64{
				{tokZ, asset.AddrWETH}: {1, 1},
				{asset.AddrWETH, out}:  {1, 10},
			},
			want: true,
		},
		{
			name:  "first hop only",
			table: map[[2]common.Address][2]int64{{tokZ, asset.AddrWETH}: {1, 1}},
			want:  false,
		},
		{
			name:  "unsupported",
			table: map[[2]common.Address][2]int64{},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := &stubSource{venue: "v2", kind: domain.KindConstantProduct, bridgeable: true, quote: rates(tt.table)}
			conc := &stubSource{venue: "v3", kind: domain.KindConcentrated, bridgeable: true, quote: fixed("0")}
			router := &stubSource{venue: "router", kind: domain.KindRouter, quote: fixed("0")}
			svc := newServiceFixture(t, router, cp, conc).service

			supported, err := svc.IsPairSupported(ctx, tokZ, out, amount)
			require.NoError(t, err)
			assert.Equal(t, tt.want, supported)

			unsafe, err := svc.UnsafeFindExecutableSwap(ctx, tokZ, out, amount)
			require.NoError(t, err)
			assert.Equal(t, supported, !unsafe.IsZero())

			optimal, err := svc.FindOptimalSwap(ctx, tokZ, out, amount)
			require.NoError(t, err)
			assert.Equal(t, supported, !optimal.IsZero())
		})
	}
}
