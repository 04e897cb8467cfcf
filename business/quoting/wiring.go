package quoting

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/quote-engine/business/quoting/app"
	"github.com/fd1az/quote-engine/business/quoting/domain"
	"github.com/fd1az/quote-engine/business/quoting/infra/ethereum"
	"github.com/fd1az/quote-engine/business/quoting/infra/routerapi"
	"github.com/fd1az/quote-engine/internal/asset"
	"github.com/fd1az/quote-engine/internal/config"
	"github.com/fd1az/quote-engine/internal/logger"
)

// buildSources turns the venue table into quote sources, keeping its order. An on-chain router
// venue without an address is skipped. The returned closers release HTTP backends.
func buildSources(cfg *config.Config, reader *ethereum.ChainReader, log logger.LoggerInterface) ([]app.QuoteSource, []func(), error) {
	var (
		sources []app.QuoteSource
		closers []func()
	)

	for _, v := range cfg.Venues {
		venue := domain.VenueID(v.ID)

		switch v.Kind {
		case config.KindRouter:
			var quoter app.RouterQuoter
			switch v.Backend {
			case config.BackendHTTP:
				client, err := routerapi.New(routerapi.Config{
					BaseURL: v.APIURL,
					Timeout: cfg.Quoting.SourceTimeout,
					APIKey:  v.APIKey,
				}, log)
				if err != nil {
					return nil, closers, fmt.Errorf("venue %s: %w", v.ID, err)
				}
				closers = append(closers, client.Close)
				quoter = client
			default:
				if v.Router == "" {
					log.Warn(context.Background(), "router venue has no address, skipping", "venue", v.ID)
					continue
				}
				quoter = ethereum.NewOnchainRouter(reader, common.HexToAddress(v.Router))
			}

			src, err := app.NewRouterSource(venue, quoter, log)
			if err != nil {
				return nil, closers, fmt.Errorf("venue %s: %w", v.ID, err)
			}
			sources = append(sources, src)

		case config.KindConstantProduct:
			src, err := app.NewConstantProductSource(app.ConstantProductParams{
				Venue:        venue,
				Factory:      v.FactoryAddress(),
				InitCodeHash: v.InitCodeHashBytes(),
				FeeNumerator: v.FeeNumerator,
				Bridgeable:   v.Bridgeable,
			}, reader, reader, log)
			if err != nil {
				return nil, closers, fmt.Errorf("venue %s: %w", v.ID, err)
			}
			sources = append(sources, src)

		case config.KindConcentrated:
			preferred := make(map[domain.PairKey]uint32, len(v.PreferredTiers))
			for _, p := range v.PreferredTiers {
				preferred[domain.NewPairKey(common.HexToAddress(p.TokenA), common.HexToAddress(p.TokenB))] = p.Fee
			}

			sim := ethereum.NewTickSimulator(reader, common.HexToAddress(v.Quoter))
			sel, err := app.NewSelector(app.ConcentratedParams{
				Venue:        venue,
				Factory:      v.FactoryAddress(),
				InitCodeHash: v.InitCodeHashBytes(),
				FeeTiers:     v.FeeTiers,
				Preferred:    preferred,
				Bridgeable:   v.Bridgeable,
			}, reader, reader, sim, log)
			if err != nil {
				return nil, closers, fmt.Errorf("venue %s: %w", v.ID, err)
			}
			sources = append(sources, app.NewConcentratedSource(sel))

		default:
			return nil, closers, fmt.Errorf("venue %s: unknown kind %q", v.ID, v.Kind)
		}
	}

	if len(sources) == 0 {
		return nil, closers, fmt.Errorf("no usable venues configured")
	}
	return sources, closers, nil
}

// feedBase maps the "eth" and "btc" pseudo-assets to their registry addresses.
func feedBase(token string) common.Address {
	switch strings.ToLower(token) {
	case "eth":
		return domain.DenominationETH
	case "btc":
		return domain.DenominationBTC
	default:
		return common.HexToAddress(token)
	}
}

// oracleSetup returns the resolver parameters and the feed address table.
func oracleSetup(cfg *config.Config) (app.OracleParams, map[domain.FeedKey]common.Address) {
	oc := cfg.Oracle

	params := app.OracleParams{
		ChainID:          cfg.Ethereum.ChainID,
		BaseAsset:        common.HexToAddress(oc.BaseAsset),
		Connector:        common.HexToAddress(cfg.Quoting.Connector),
		Staleness:        make(map[domain.FeedKey]time.Duration, len(oc.Feeds)),
		DefaultStaleness: oc.DefaultStaleness,
	}
	for _, s := range oc.Stablecoins {
		params.Stablecoins = append(params.Stablecoins, common.HexToAddress(s))
	}
	for _, b := range oc.BTCPegged {
		params.BTCPegged = append(params.BTCPegged, common.HexToAddress(b))
	}

	feeds := make(map[domain.FeedKey]common.Address, len(oc.Feeds))
	for _, f := range oc.Feeds {
		denom, _ := domain.ParseDenomination(f.Denomination)
		key := domain.FeedKey{Base: feedBase(f.Token), Denomination: denom}
		feeds[key] = common.HexToAddress(f.Address)
		params.Staleness[key] = f.StalenessOr(oc.DefaultStaleness)
	}
	return params, feeds
}

// watchPairs resolves the watch list. Tokens missing from the registry are described with
// their on-chain decimals.
func watchPairs(ctx context.Context, cfg *config.Config, registry *asset.Registry, decimals app.TokenDecimals) ([]app.WatchPair, error) {
	chainID := cfg.Ethereum.ChainID

	lookup := func(s string) (*asset.Asset, error) {
		addr, err := registry.Resolve(chainID, s)
		if err != nil {
			return nil, err
		}
		if a, ok := registry.Get(chainID, addr); ok {
			return a, nil
		}
		dec, err := decimals.Decimals(ctx, addr)
		if err != nil {
			return nil, err
		}
		return asset.Unlisted(chainID, addr, dec), nil
	}

	pairs := make([]app.WatchPair, 0, len(cfg.Watch.Pairs))
	for i, p := range cfg.Watch.Pairs {
		in, err := lookup(p.TokenIn)
		if err != nil {
			return nil, fmt.Errorf("watch.pairs[%d].token_in: %w", i, err)
		}
		out, err := lookup(p.TokenOut)
		if err != nil {
			return nil, fmt.Errorf("watch.pairs[%d].token_out: %w", i, err)
		}
		amount, err := asset.ParseString(in, p.Amount)
		if err != nil {
			return nil, fmt.Errorf("watch.pairs[%d].amount: %w", i, err)
		}
		if amount.IsZero() {
			return nil, fmt.Errorf("watch.pairs[%d].amount must be positive", i)
		}
		pairs = append(pairs, app.WatchPair{In: in, Out: out, AmountIn: amount.Raw()})
	}
	return pairs, nil
}

// streamOrigins maps the CORS origins onto websocket origin patterns, which match on host only.
func streamOrigins(origins []string) []string {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return []string{"*"}
	}
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
			continue
		}
		hosts = append(hosts, o)
	}
	return hosts
}
