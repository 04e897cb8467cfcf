package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/quote-engine/business/quoting/domain"
	"github.com/fd1az/quote-engine/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
ethereum:
  http_url: http://localhost:8545
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Venues) != 3 {
		t.Fatalf("expected 3 default venues, got %d", len(cfg.Venues))
	}
	wantOrder := []string{config.KindRouter, config.KindConstantProduct, config.KindConcentrated}
	for i, kind := range wantOrder {
		if cfg.Venues[i].Kind != kind {
			t.Errorf("venues[%d].kind = %s, want %s", i, cfg.Venues[i].Kind, kind)
		}
	}

	v3 := cfg.Venues[2]
	if len(v3.FeeTiers) != 4 || v3.FeeTiers[2] != 3000 {
		t.Errorf("unexpected fee tiers %v", v3.FeeTiers)
	}
	if len(v3.PreferredTiers) != 2 || v3.PreferredTiers[0].Fee != 100 {
		t.Errorf("unexpected preferred tiers %+v", v3.PreferredTiers)
	}

	if len(cfg.Oracle.Feeds) != 5 {
		t.Fatalf("expected 5 default feeds, got %d", len(cfg.Oracle.Feeds))
	}
	if cfg.Oracle.Feeds[0].Staleness != time.Hour {
		t.Errorf("eth/usd staleness = %s, want 1h", cfg.Oracle.Feeds[0].Staleness)
	}
	if cfg.Quoting.SourceTimeout != 3*time.Second {
		t.Errorf("source_timeout = %s", cfg.Quoting.SourceTimeout)
	}
	if cfg.Quoting.MaxSlippageBps != 1000 || cfg.Quoting.DefaultToleranceBps != 500 {
		t.Errorf("unexpected quoting defaults %+v", cfg.Quoting)
	}
}

// Every shipped factory and init code hash must derive a pool that exists on mainnet.
func TestLoad_DefaultVenuesDeriveMainnetPools(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "ethereum:\n  http_url: http://localhost:8545\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	weth := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")

	// USDC/WETH, fee 3000 for concentrated venues.
	known := map[string]common.Address{
		"uniswap-v2": common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"),
		"uniswap-v3": common.HexToAddress("0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8"),
	}

	for _, v := range cfg.Venues {
		if v.Kind == config.KindRouter {
			continue
		}
		want, ok := known[v.ID]
		if !ok {
			t.Errorf("default venue %s has no verified mainnet pool", v.ID)
			continue
		}

		var got common.Address
		if v.Kind == config.KindConcentrated {
			got = domain.PoolAddress(v.FactoryAddress(), v.InitCodeHashBytes(), usdc, weth, 3000)
		} else {
			got = domain.PairAddress(v.FactoryAddress(), v.InitCodeHashBytes(), usdc, weth)
		}
		if got != want {
			t.Errorf("%s derives %s, want %s", v.ID, got.Hex(), want.Hex())
		}
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("QUOTE_ETH_HTTP_URL", "http://node:8545")
	t.Setenv("QUOTE_ADMIN_TOKEN", "s3cret")

	cfg, err := config.Load(writeConfig(t, "app:\n  name: test\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Ethereum.HTTPURL != "http://node:8545" {
		t.Errorf("http_url = %q", cfg.Ethereum.HTTPURL)
	}
	if cfg.HTTP.AdminToken != "s3cret" {
		t.Errorf("admin_token = %q", cfg.HTTP.AdminToken)
	}
}

func TestLoad_VenuesFromFile(t *testing.T) {
	path := writeConfig(t, `
ethereum:
  http_url: http://localhost:8545
venues:
  - id: router-api
    kind: router
    backend: http
    api_url: http://router.local
  - id: uniswap-v2
    kind: constant_product
    factory: "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"
    init_code_hash: "0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f"
    fee_numerator: 997
    bridgeable: true
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Venues) != 2 {
		t.Fatalf("file venues must replace defaults, got %d", len(cfg.Venues))
	}
	if cfg.Venues[0].Backend != config.BackendHTTP || cfg.Venues[0].APIURL != "http://router.local" {
		t.Errorf("unexpected router venue %+v", cfg.Venues[0])
	}
	if cfg.Venues[1].FactoryAddress().Hex() != "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f" {
		t.Errorf("factory = %s", cfg.Venues[1].FactoryAddress().Hex())
	}
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		path := writeConfig(t, "ethereum:\n  http_url: http://localhost:8545\n")
		cfg, err := config.Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
	}{
		{"ok", func(c *config.Config) {}, ""},
		{"missing rpc", func(c *config.Config) { c.Ethereum.HTTPURL = "" }, "http_url"},
		{"no venues", func(c *config.Config) { c.Venues = nil }, "venues"},
		{"duplicate venue", func(c *config.Config) { c.Venues[2].ID = c.Venues[1].ID }, "duplicate"},
		{"bad fee numerator", func(c *config.Config) { c.Venues[1].FeeNumerator = 0 }, "fee_numerator"},
		{"bad init code", func(c *config.Config) { c.Venues[1].InitCodeHash = "0x1234" }, "init_code_hash"},
		{"no tiers", func(c *config.Config) { c.Venues[2].FeeTiers = nil }, "fee_tiers"},
		{"bridgeable router", func(c *config.Config) { c.Venues[0].Bridgeable = true }, "bridgeable"},
		{"unknown kind", func(c *config.Config) { c.Venues[0].Kind = "orderbook" }, "unknown kind"},
		{"slippage above max", func(c *config.Config) { c.Quoting.DefaultSlippageBps = c.Quoting.MaxSlippageBps }, "default_slippage_bps"},
		{"tolerance 100%", func(c *config.Config) { c.Quoting.DefaultToleranceBps = 10000 }, "default_tolerance_bps"},
		{"bad denomination", func(c *config.Config) { c.Oracle.Feeds[0].Denomination = "eur" }, "denomination"},
		{"bad connector", func(c *config.Config) { c.Quoting.Connector = "weth" }, "connector"},
		{"redis without addr", func(c *config.Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, "redis.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestFeedConfig_StalenessOr(t *testing.T) {
	f := config.FeedConfig{}
	if f.StalenessOr(time.Minute) != time.Minute {
		t.Error("expected fallback staleness")
	}
	f.Staleness = time.Hour
	if f.StalenessOr(time.Minute) != time.Hour {
		t.Error("expected feed staleness")
	}
}
