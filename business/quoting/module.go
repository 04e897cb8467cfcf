// Package quoting implements the quote aggregation bounded context: pricing a swap across
// liquidity venues and checking the answer against price feeds.
package quoting

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/quote-engine/business/quoting/app"
	quotingDI "github.com/fd1az/quote-engine/business/quoting/di"
	"github.com/fd1az/quote-engine/business/quoting/infra/ethereum"
	"github.com/fd1az/quote-engine/business/quoting/infra/httpapi"
	"github.com/fd1az/quote-engine/business/quoting/infra/redisfeed"
	"github.com/fd1az/quote-engine/internal/asset"
	"github.com/fd1az/quote-engine/internal/config"
	"github.com/fd1az/quote-engine/internal/di"
	"github.com/fd1az/quote-engine/internal/health"
	"github.com/fd1az/quote-engine/internal/logger"
	"github.com/fd1az/quote-engine/internal/monolith"
)

// Module implements the quoting bounded context.
type Module struct {
	// Publishers receive every watcher update ahead of the Redis feed.
	Publishers []app.QuotePublisher
	// Health, when set, receives the module's readiness checks.
	Health *health.Server

	closers []func()
}

// RegisterServices registers all quoting services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register ChainReader (private - shared by every on-chain adapter)
	di.RegisterToken(c, quotingDI.ChainReader, func(sr di.ServiceRegistry) *ethereum.ChainReader {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		ethClient := sr.Get("ethClient").(*ethclient.Client)

		readerCfg := ethereum.DefaultReaderConfig()
		if cfg.Ethereum.RequestsPerSecond > 0 {
			readerCfg.RequestsPerSecond = cfg.Ethereum.RequestsPerSecond
		}
		if cfg.Ethereum.Burst > 0 {
			readerCfg.Burst = cfg.Ethereum.Burst
		}

		reader, err := ethereum.NewChainReader(ethClient, readerCfg, log)
		if err != nil {
			panic("failed to create chain reader: " + err.Error())
		}
		return reader
	})

	// Register Sources (private - venue table in enumeration order)
	di.RegisterToken(c, quotingDI.Sources, func(sr di.ServiceRegistry) []app.QuoteSource {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		sources, closers, err := buildSources(cfg, quotingDI.GetChainReader(sr), log)
		m.closers = append(m.closers, closers...)
		if err != nil {
			panic("failed to build quote sources: " + err.Error())
		}
		return sources
	})

	di.RegisterToken(c, quotingDI.Aggregator, func(sr di.ServiceRegistry) *app.RouteAggregator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		agg, err := app.NewRouteAggregator(quotingDI.GetSources(sr), cfg.Quoting.SourceTimeout, log)
		if err != nil {
			panic("failed to create route aggregator: " + err.Error())
		}
		return agg
	})

	di.RegisterToken(c, quotingDI.Oracle, func(sr di.ServiceRegistry) *app.OracleResolver {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("assetRegistry").(*asset.Registry)
		reader := quotingDI.GetChainReader(sr)

		params, feeds := oracleSetup(cfg)
		oracle, err := app.NewOracleResolver(params, ethereum.NewFeedBook(reader, feeds), reader, registry,
			quotingDI.GetAggregator(sr), log)
		if err != nil {
			panic("failed to create oracle resolver: " + err.Error())
		}
		return oracle
	})

	// Register Settings (public - mutated by the admin API)
	di.RegisterToken(c, quotingDI.Settings, func(sr di.ServiceRegistry) *app.Settings {
		cfg := sr.Get("config").(*config.Config)

		settings, err := app.NewSettings(
			common.HexToAddress(cfg.Quoting.Operator),
			cfg.Quoting.DefaultSlippageBps,
			cfg.Quoting.DefaultToleranceBps,
			cfg.Quoting.MaxSlippageBps,
		)
		if err != nil {
			panic("failed to create settings: " + err.Error())
		}
		return settings
	})

	di.RegisterToken(c, quotingDI.QuoteService, func(sr di.ServiceRegistry) *app.QuoteService {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		safety, err := app.NewSafetyValidator(log)
		if err != nil {
			panic("failed to create safety validator: " + err.Error())
		}
		svc, err := app.NewQuoteService(
			quotingDI.GetAggregator(sr),
			quotingDI.GetOracle(sr),
			safety,
			quotingDI.GetSettings(sr),
			common.HexToAddress(cfg.Quoting.Connector),
			log,
		)
		if err != nil {
			panic("failed to create quote service: " + err.Error())
		}
		return svc
	})

	// Register Swapper (public - the surface every caller quotes through)
	di.RegisterToken(c, quotingDI.Swapper, func(sr di.ServiceRegistry) app.Swapper {
		cfg := sr.Get("config").(*config.Config)

		svc := quotingDI.GetQuoteService(sr)
		if cfg.Quoting.Lenient {
			return app.NewLenientSwapper(svc, quotingDI.GetSettings(sr))
		}
		return svc
	})

	di.RegisterToken(c, quotingDI.Snapshots, func(sr di.ServiceRegistry) *redisfeed.Publisher {
		cfg := sr.Get("config").(*config.Config)
		if !cfg.Redis.Enabled {
			return nil
		}

		pub := redisfeed.NewPublisher(redisfeed.Config{
			Addr:        cfg.Redis.Addr,
			DB:          cfg.Redis.DB,
			Password:    cfg.Redis.Password,
			Prefix:      cfg.Redis.ChannelPrefix,
			SnapshotTTL: cfg.Redis.SnapshotTTL,
		})
		m.closers = append(m.closers, func() { _ = pub.Close() })
		return pub
	})

	di.RegisterToken(c, quotingDI.HeadTrigger, func(sr di.ServiceRegistry) *ethereum.HeadTrigger {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		if !cfg.Watch.UseBlocks {
			return nil
		}

		headCfg := ethereum.DefaultHeadConfig(cfg.Ethereum.WebSocketURL, cfg.Ethereum.HTTPURL)
		if cfg.Watch.Interval > 0 {
			headCfg.PollInterval = cfg.Watch.Interval
		}
		trigger, err := ethereum.NewHeadTrigger(headCfg, nil, log)
		if err != nil {
			panic("failed to create head trigger: " + err.Error())
		}
		return trigger
	})

	di.RegisterToken(c, quotingDI.Trigger, func(sr di.ServiceRegistry) app.Trigger {
		cfg := sr.Get("config").(*config.Config)

		if head := quotingDI.GetHeadTrigger(sr); head != nil {
			return head
		}
		return app.NewIntervalTrigger(cfg.Watch.Interval)
	})

	// Register Watcher (public - started by the entry point)
	di.RegisterToken(c, quotingDI.Watcher, func(sr di.ServiceRegistry) *app.Watcher {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		pairs, err := watchPairs(ctx, cfg, registry, quotingDI.GetChainReader(sr))
		if err != nil {
			panic("failed to resolve watch pairs: " + err.Error())
		}

		publishers := append([]app.QuotePublisher{}, m.Publishers...)
		publishers = append(publishers, quotingDI.GetStream(sr))
		if snaps := quotingDI.GetSnapshots(sr); snaps != nil {
			publishers = append(publishers, snaps)
		}
		return app.NewWatcher(quotingDI.GetSwapper(sr), quotingDI.GetTrigger(sr), pairs, publishers, log)
	})

	// Register Stream (private - websocket fan-out of watcher updates)
	di.RegisterToken(c, quotingDI.Stream, func(sr di.ServiceRegistry) *httpapi.StreamHub {
		return httpapi.NewStreamHub()
	})

	// Register HTTPServer (public - quote API and settings admin)
	di.RegisterToken(c, quotingDI.HTTPServer, func(sr di.ServiceRegistry) *httpapi.Server {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		var store httpapi.SnapshotStore
		if snaps := quotingDI.GetSnapshots(sr); snaps != nil {
			store = snaps
		}

		srv, err := httpapi.New(httpapi.Config{
			Port:        cfg.HTTP.Port,
			AdminToken:  cfg.HTTP.AdminToken,
			CORSOrigins: cfg.HTTP.CORSOrigins,
			RateLimit:   cfg.HTTP.RateLimit,
			RateBurst:   cfg.HTTP.RateBurst,
		}, log,
			httpapi.NewQuoteHandler(quotingDI.GetSwapper(sr), registry, cfg.Ethereum.ChainID, store),
			httpapi.NewAdminHandler(quotingDI.GetSettings(sr), log),
		)
		if err != nil {
			panic("failed to create http server: " + err.Error())
		}
		srv.Mount(httpapi.NewStreamHandler(quotingDI.GetStream(sr), streamOrigins(cfg.HTTP.CORSOrigins), log))
		return srv
	})

	return nil
}

// Startup builds the quoting graph, registers health checks and starts the HTTP API.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()
	services := mono.Services()

	sources := quotingDI.GetSources(services)
	_ = quotingDI.GetQuoteService(services)

	snaps := quotingDI.GetSnapshots(services)
	if snaps != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := snaps.Ping(pingCtx)
		cancel()
		if err != nil {
			// Publishing keeps failing softly until redis comes up.
			log.Warn(ctx, "redis unreachable", "addr", cfg.Redis.Addr, "error", err)
		}
	}

	if m.Health != nil {
		m.registerHealthChecks(mono, snaps)
	}

	srv := quotingDI.GetHTTPServer(services)
	go func() {
		if err := srv.Start(); err != nil {
			log.Error(ctx, "http server failed", "error", err)
		}
	}()

	log.Info(ctx, "quoting module started",
		"venues", len(sources),
		"connector", cfg.Quoting.Connector,
		"lenient", cfg.Quoting.Lenient,
	)
	return nil
}

func (m *Module) registerHealthChecks(mono monolith.Monolith, snaps *redisfeed.Publisher) {
	m.Health.RegisterCheck("ethereum_rpc", func(ctx context.Context) (bool, string) {
		block, err := mono.EthClient().BlockNumber(ctx)
		if err != nil {
			return false, err.Error()
		}
		return true, fmt.Sprintf("block %d", block)
	})

	if head := quotingDI.GetHeadTrigger(mono.Services()); head != nil {
		m.Health.RegisterCheck("head_follower", func(context.Context) (bool, string) {
			st := head.Status()
			mode := "ws"
			if st.UsingHTTP {
				mode = "http poll"
			}
			return st.State == ethereum.StateConnected, fmt.Sprintf("%s via %s, block %d", st.State, mode, st.LastBlock)
		})
	}

	if snaps != nil {
		m.Health.RegisterCheck("redis", func(ctx context.Context) (bool, string) {
			if err := snaps.Ping(ctx); err != nil {
				return false, err.Error()
			}
			return true, ""
		})
	}
}

// Stop shuts the HTTP API down and releases every backend the module opened.
func (m *Module) Stop(ctx context.Context, mono monolith.Monolith) error {
	err := quotingDI.GetHTTPServer(mono.Services()).Stop(ctx)
	for i := len(m.closers) - 1; i >= 0; i-- {
		m.closers[i]()
	}
	m.closers = nil
	return err
}
