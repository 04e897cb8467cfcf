// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Venue kinds.
const (
	KindConstantProduct = "constant_product"
	KindConcentrated    = "concentrated"
	KindRouter          = "router"
)

// Router backends.
const (
	BackendOnchain = "onchain"
	BackendHTTP    = "http"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Ethereum  EthereumConfig  `mapstructure:"ethereum"`
	Venues    []VenueConfig   `mapstructure:"venues"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Quoting   QuotingConfig   `mapstructure:"quoting"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Health    HealthConfig    `mapstructure:"health"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// EthereumConfig holds Ethereum node configuration.
type EthereumConfig struct {
	HTTPURL           string  `mapstructure:"http_url"`
	WebSocketURL      string  `mapstructure:"websocket_url"`
	ChainID           uint64  `mapstructure:"chain_id"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// VenueConfig describes one liquidity source. Which fields matter depends on Kind.
type VenueConfig struct {
	ID           string `mapstructure:"id"`
	Kind         string `mapstructure:"kind"`
	Factory      string `mapstructure:"factory"`
	InitCodeHash string `mapstructure:"init_code_hash"`
	Bridgeable   bool   `mapstructure:"bridgeable"`

	// constant_product
	FeeNumerator uint32 `mapstructure:"fee_numerator"`

	// concentrated
	FeeTiers       []uint32              `mapstructure:"fee_tiers"`
	PreferredTiers []PreferredTierConfig `mapstructure:"preferred_tiers"`
	Quoter         string                `mapstructure:"quoter"`

	// router
	Backend string `mapstructure:"backend"`
	Router  string `mapstructure:"router"`
	APIURL  string `mapstructure:"api_url"`
	APIKey  string `mapstructure:"api_key"`
}

// PreferredTierConfig pins an unordered token pair to a single fee tier.
type PreferredTierConfig struct {
	TokenA string `mapstructure:"token_a"`
	TokenB string `mapstructure:"token_b"`
	Fee    uint32 `mapstructure:"fee"`
}

// FactoryAddress returns the factory as common.Address.
func (c *VenueConfig) FactoryAddress() common.Address {
	return common.HexToAddress(c.Factory)
}

// InitCodeHashBytes returns the init code hash as a 32-byte hash.
func (c *VenueConfig) InitCodeHashBytes() common.Hash {
	return common.HexToHash(c.InitCodeHash)
}

// OracleConfig holds the price feed table.
type OracleConfig struct {
	BaseAsset        string        `mapstructure:"base_asset"`
	BTCPegged        []string      `mapstructure:"btc_pegged"`
	Stablecoins      []string      `mapstructure:"stablecoins"`
	DefaultStaleness time.Duration `mapstructure:"default_staleness"`
	Feeds            []FeedConfig  `mapstructure:"feeds"`
}

// FeedConfig is one aggregator. Token is a hex address or one of the pseudo-assets "eth" and "btc".
type FeedConfig struct {
	Token        string        `mapstructure:"token"`
	Denomination string        `mapstructure:"denomination"`
	Address      string        `mapstructure:"address"`
	Staleness    time.Duration `mapstructure:"staleness"`
}

// QuotingConfig holds the aggregation and safety settings.
type QuotingConfig struct {
	Connector           string        `mapstructure:"connector"`
	SourceTimeout       time.Duration `mapstructure:"source_timeout"`
	Operator            string        `mapstructure:"operator"`
	DefaultSlippageBps  uint32        `mapstructure:"default_slippage_bps"`
	MaxSlippageBps      uint32        `mapstructure:"max_slippage_bps"`
	DefaultToleranceBps uint32        `mapstructure:"default_tolerance_bps"`
	Lenient             bool          `mapstructure:"lenient"`
}

// HTTPConfig holds the quote API settings.
type HTTPConfig struct {
	Port        int      `mapstructure:"port"`
	AdminToken  string   `mapstructure:"admin_token"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	RateLimit   float64  `mapstructure:"rate_limit"`
	RateBurst   int      `mapstructure:"rate_burst"`
}

// HealthConfig holds the health server settings.
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// RedisConfig holds the quote feed publisher settings.
type RedisConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Addr          string        `mapstructure:"addr"`
	DB            int           `mapstructure:"db"`
	Password      string        `mapstructure:"password"`
	ChannelPrefix string        `mapstructure:"channel_prefix"`
	SnapshotTTL   time.Duration `mapstructure:"snapshot_ttl"`
}

// WatchConfig holds the pairs re-quoted by the watcher.
type WatchConfig struct {
	Pairs     []WatchPairConfig `mapstructure:"pairs"`
	Interval  time.Duration     `mapstructure:"interval"`
	UseBlocks bool              `mapstructure:"use_blocks"`
}

// WatchPairConfig is a token pair and a human-readable input amount, e.g. "1.5".
type WatchPairConfig struct {
	TokenIn  string `mapstructure:"token_in"`
	TokenOut string `mapstructure:"token_out"`
	Amount   string `mapstructure:"amount"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	Tracer       string `mapstructure:"tracer"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string `mapstructure:"otlp_headers"`
	// Metrics is "prometheus", "otlp" or "none".
	Metrics string `mapstructure:"metrics"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("QUOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "QUOTE_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "QUOTE_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "QUOTE_LOG_LEVEL", "LOG_LEVEL")

	// Ethereum
	v.BindEnv("ethereum.http_url", "QUOTE_ETH_HTTP_URL", "ETH_HTTP_URL")
	v.BindEnv("ethereum.websocket_url", "QUOTE_ETH_WS_URL", "ETH_WS_URL")
	v.BindEnv("ethereum.chain_id", "QUOTE_ETH_CHAIN_ID", "ETH_CHAIN_ID")

	// Quoting
	v.BindEnv("quoting.operator", "QUOTE_OPERATOR")
	v.BindEnv("quoting.lenient", "QUOTE_LENIENT")

	// HTTP
	v.BindEnv("http.port", "QUOTE_HTTP_PORT", "PORT")
	v.BindEnv("http.admin_token", "QUOTE_ADMIN_TOKEN")

	// Redis
	v.BindEnv("redis.enabled", "QUOTE_REDIS_ENABLED")
	v.BindEnv("redis.addr", "QUOTE_REDIS_ADDR", "REDIS_ADDR")
	v.BindEnv("redis.password", "QUOTE_REDIS_PASSWORD", "REDIS_PASSWORD")

	// Telemetry
	v.BindEnv("telemetry.enabled", "QUOTE_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "QUOTE_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "QUOTE_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.otlp_headers", "QUOTE_OTEL_HEADERS", "OTEL_EXPORTER_OTLP_HEADERS")
}

// Ethereum mainnet deployments used as defaults.
const (
	uniswapV2Factory  = "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"
	uniswapV2InitCode = "0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f"
	uniswapV3Factory  = "0x1F98431c8aD98523631AE4a59f267346ea31F984"
	uniswapV3InitCode = "0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54"
	uniswapV3QuoterV2 = "0x61fFE014bA17989E743c5F6cB21bF9697530B21e"

	weth = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	usdc = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	usdt = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	dai  = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
	wbtc = "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"
	link = "0x514910771AF9Ca656af840dff83E8264EcF986CA"
)

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "quote-engine")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Ethereum defaults
	v.SetDefault("ethereum.chain_id", 1)
	v.SetDefault("ethereum.requests_per_second", 25)
	v.SetDefault("ethereum.burst", 50)

	// Venue defaults: enumeration order is router, constant-product venues, concentrated.
	v.SetDefault("venues", []map[string]any{
		{
			"id":      "router",
			"kind":    KindRouter,
			"backend": BackendOnchain,
			"router":  "",
		},
		{
			"id":             "uniswap-v2",
			"kind":           KindConstantProduct,
			"factory":        uniswapV2Factory,
			"init_code_hash": uniswapV2InitCode,
			"fee_numerator":  997,
			"bridgeable":     true,
		},
		{
			"id":             "uniswap-v3",
			"kind":           KindConcentrated,
			"factory":        uniswapV3Factory,
			"init_code_hash": uniswapV3InitCode,
			"quoter":         uniswapV3QuoterV2,
			"fee_tiers":      []uint32{100, 500, 3000, 10000},
			"bridgeable":     true,
			"preferred_tiers": []map[string]any{
				{"token_a": usdc, "token_b": usdt, "fee": 100},
				{"token_a": weth, "token_b": usdc, "fee": 500},
			},
		},
	})

	// Oracle defaults (Chainlink mainnet aggregators)
	v.SetDefault("oracle.base_asset", weth)
	v.SetDefault("oracle.btc_pegged", []string{wbtc})
	v.SetDefault("oracle.stablecoins", []string{usdc, usdt, dai})
	v.SetDefault("oracle.default_staleness", "24h")
	v.SetDefault("oracle.feeds", []map[string]any{
		{"token": "eth", "denomination": "usd", "address": "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419", "staleness": "1h"},
		{"token": "btc", "denomination": "usd", "address": "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c", "staleness": "1h"},
		{"token": wbtc, "denomination": "btc", "address": "0xfdFD9C85aD200c506Cf9e21F1FD8dd01932FBB23", "staleness": "24h"},
		{"token": link, "denomination": "eth", "address": "0xDC530D9457755926550b59e8ECcdaE7624181557", "staleness": "24h"},
		{"token": link, "denomination": "usd", "address": "0x2c1d072e956AFFC0D435Cb7AC38EF18d24d9127c", "staleness": "1h"},
	})

	// Quoting defaults
	v.SetDefault("quoting.connector", weth)
	v.SetDefault("quoting.source_timeout", "3s")
	v.SetDefault("quoting.default_slippage_bps", 0)
	v.SetDefault("quoting.max_slippage_bps", 1000)
	v.SetDefault("quoting.default_tolerance_bps", 500)
	v.SetDefault("quoting.lenient", false)

	// HTTP defaults
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("http.rate_limit", 10)
	v.SetDefault("http.rate_burst", 20)

	// Health defaults
	v.SetDefault("health.port", 8081)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel_prefix", "quotes")
	v.SetDefault("redis.snapshot_ttl", "1m")

	// Watch defaults
	v.SetDefault("watch.pairs", []map[string]any{
		{"token_in": "WETH", "token_out": "USDC", "amount": "1"},
		{"token_in": "WBTC", "token_out": "DAI", "amount": "0.1"},
	})
	v.SetDefault("watch.interval", "12s")
	v.SetDefault("watch.use_blocks", true)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "quote-engine")
	v.SetDefault("telemetry.tracer", "EMPTY_PROVIDER")
	v.SetDefault("telemetry.metrics", "prometheus")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Ethereum.HTTPURL == "" {
		return fmt.Errorf("ethereum.http_url is required")
	}
	if len(c.Venues) == 0 {
		return fmt.Errorf("venues cannot be empty")
	}

	seen := make(map[string]bool, len(c.Venues))
	for i := range c.Venues {
		if err := c.Venues[i].validate(); err != nil {
			return fmt.Errorf("venues[%d]: %w", i, err)
		}
		if seen[c.Venues[i].ID] {
			return fmt.Errorf("venues[%d]: duplicate id %q", i, c.Venues[i].ID)
		}
		seen[c.Venues[i].ID] = true
	}

	if err := c.Oracle.validate(); err != nil {
		return err
	}

	if !isNonZeroAddress(c.Quoting.Connector) {
		return fmt.Errorf("invalid quoting.connector: %s", c.Quoting.Connector)
	}
	if c.Quoting.Operator != "" && !common.IsHexAddress(c.Quoting.Operator) {
		return fmt.Errorf("invalid quoting.operator: %s", c.Quoting.Operator)
	}
	if c.Quoting.MaxSlippageBps == 0 || c.Quoting.MaxSlippageBps > 10000 {
		return fmt.Errorf("quoting.max_slippage_bps must be in (0, 10000]")
	}
	if c.Quoting.DefaultSlippageBps >= c.Quoting.MaxSlippageBps {
		return fmt.Errorf("quoting.default_slippage_bps must be below max_slippage_bps")
	}
	if c.Quoting.DefaultToleranceBps >= 10000 {
		return fmt.Errorf("quoting.default_tolerance_bps must be below 10000")
	}
	if c.Quoting.SourceTimeout <= 0 {
		return fmt.Errorf("quoting.source_timeout must be positive")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.Watch.UseBlocks && c.Ethereum.WebSocketURL == "" && c.Watch.Interval <= 0 {
		return fmt.Errorf("watch needs ethereum.websocket_url or a positive watch.interval")
	}
	return nil
}

func (c *VenueConfig) validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}

	switch c.Kind {
	case KindConstantProduct:
		if c.FeeNumerator == 0 || c.FeeNumerator > 1000 {
			return fmt.Errorf("fee_numerator must be in (0, 1000]")
		}
		return c.validateDerivation()
	case KindConcentrated:
		if len(c.FeeTiers) == 0 {
			return fmt.Errorf("fee_tiers cannot be empty")
		}
		if !isNonZeroAddress(c.Quoter) {
			return fmt.Errorf("invalid quoter: %s", c.Quoter)
		}
		for _, p := range c.PreferredTiers {
			if !isNonZeroAddress(p.TokenA) || !isNonZeroAddress(p.TokenB) {
				return fmt.Errorf("invalid preferred tier pair %s/%s", p.TokenA, p.TokenB)
			}
		}
		return c.validateDerivation()
	case KindRouter:
		switch c.Backend {
		case BackendOnchain:
			// An empty router address disables the venue without failing startup.
			if c.Router != "" && !common.IsHexAddress(c.Router) {
				return fmt.Errorf("invalid router: %s", c.Router)
			}
		case BackendHTTP:
			if c.APIURL == "" {
				return fmt.Errorf("api_url is required for the http backend")
			}
		default:
			return fmt.Errorf("unknown router backend %q", c.Backend)
		}
		if c.Bridgeable {
			return fmt.Errorf("router venues already route multi-hop and cannot be bridgeable")
		}
		return nil
	default:
		return fmt.Errorf("unknown kind %q", c.Kind)
	}
}

func (c *VenueConfig) validateDerivation() error {
	if !isNonZeroAddress(c.Factory) {
		return fmt.Errorf("invalid factory: %s", c.Factory)
	}
	if len(strings.TrimPrefix(c.InitCodeHash, "0x")) != 64 {
		return fmt.Errorf("init_code_hash must be 32 bytes")
	}
	return nil
}

func (c *OracleConfig) validate() error {
	if !isNonZeroAddress(c.BaseAsset) {
		return fmt.Errorf("invalid oracle.base_asset: %s", c.BaseAsset)
	}
	for _, s := range append(append([]string{}, c.Stablecoins...), c.BTCPegged...) {
		if !isNonZeroAddress(s) {
			return fmt.Errorf("invalid oracle token address: %s", s)
		}
	}
	for i, f := range c.Feeds {
		switch strings.ToLower(f.Denomination) {
		case "usd", "eth", "btc":
		default:
			return fmt.Errorf("oracle.feeds[%d]: unknown denomination %q", i, f.Denomination)
		}
		switch strings.ToLower(f.Token) {
		case "eth", "btc":
		default:
			if !isNonZeroAddress(f.Token) {
				return fmt.Errorf("oracle.feeds[%d]: invalid token %q", i, f.Token)
			}
		}
		if !isNonZeroAddress(f.Address) {
			return fmt.Errorf("oracle.feeds[%d]: invalid address %q", i, f.Address)
		}
		if f.Staleness <= 0 && c.DefaultStaleness <= 0 {
			return fmt.Errorf("oracle.feeds[%d]: staleness must be positive", i)
		}
	}
	return nil
}

// StalenessOr returns the feed's own window, or fallback when unset.
func (f FeedConfig) StalenessOr(fallback time.Duration) time.Duration {
	if f.Staleness > 0 {
		return f.Staleness
	}
	return fallback
}

func isNonZeroAddress(s string) bool {
	return common.IsHexAddress(s) && common.HexToAddress(s) != (common.Address{})
}
