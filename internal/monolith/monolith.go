// Package monolith provides the application container and module interface.
package monolith

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/quote-engine/internal/asset"
	"github.com/fd1az/quote-engine/internal/config"
	"github.com/fd1az/quote-engine/internal/di"
	"github.com/fd1az/quote-engine/internal/logger"
)

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	EthClient() *ethclient.Client
	AssetRegistry() *asset.Registry
	Services() di.ServiceRegistry
}

// Module represents a bounded context module that can register services and start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

// Stopper is implemented by modules that hold resources beyond the shared client.
type Stopper interface {
	Stop(context.Context, Monolith) error
}

// app implements the Monolith interface.
type app struct {
	config        *config.Config
	logger        logger.LoggerInterface
	ethClient     *ethclient.Client
	assetRegistry *asset.Registry
	container     di.Container
}

// New dials the node and checks it serves the configured chain.
func New(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (*app, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	ethClient, err := ethclient.DialContext(dialCtx, cfg.Ethereum.HTTPURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Ethereum.HTTPURL, err)
	}

	chainID, err := ethClient.ChainID(dialCtx)
	if err != nil {
		ethClient.Close()
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	if cfg.Ethereum.ChainID != 0 && chainID.Uint64() != cfg.Ethereum.ChainID {
		ethClient.Close()
		return nil, fmt.Errorf("node serves chain %d, config expects %d", chainID.Uint64(), cfg.Ethereum.ChainID)
	}
	cfg.Ethereum.ChainID = chainID.Uint64()

	// Well-known mainnet tokens; anything else is described from chain on demand.
	assetRegistry := asset.DefaultRegistry()

	container := di.NewContainer()

	// Register global services
	container.Register("config", cfg)
	container.Register("logger", log)
	container.Register("ethClient", ethClient)
	container.Register("assetRegistry", assetRegistry)

	log.Info(ctx, "connected to ethereum node", "chain_id", chainID.Uint64())

	return &app{
		config:        cfg,
		logger:        log,
		ethClient:     ethClient,
		assetRegistry: assetRegistry,
		container:     container,
	}, nil
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) EthClient() *ethclient.Client {
	return a.ethClient
}

func (a *app) AssetRegistry() *asset.Registry {
	return a.assetRegistry
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// StopModules stops modules in reverse start order and returns the first error.
func (a *app) StopModules(ctx context.Context, modules ...Module) error {
	var first error
	for i := len(modules) - 1; i >= 0; i-- {
		s, ok := modules[i].(Stopper)
		if !ok {
			continue
		}
		if err := s.Stop(ctx, a); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes all resources.
func (a *app) Close() error {
	if a.ethClient != nil {
		a.ethClient.Close()
	}
	return nil
}
