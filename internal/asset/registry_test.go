package asset_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/quote-engine/internal/asset"
)

func TestDefaultRegistry_Decimals(t *testing.T) {
	r := asset.DefaultRegistry()

	tests := []struct {
		addr common.Address
		want uint8
	}{
		{asset.AddrWETH, 18},
		{asset.AddrUSDC, 6},
		{asset.AddrUSDT, 6},
		{asset.AddrDAI, 18},
		{asset.AddrWBTC, 8},
	}
	for _, tt := range tests {
		got, ok := r.Decimals(asset.ChainIDEthereum, tt.addr)
		if !ok || got != tt.want {
			t.Errorf("Decimals(%s) = %d,%v want %d", tt.addr.Hex(), got, ok, tt.want)
		}
	}

	if _, ok := r.Decimals(asset.ChainIDSepolia, asset.AddrWETH); ok {
		t.Error("mainnet token must not resolve on another chain")
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := asset.DefaultRegistry()

	tests := []struct {
		name    string
		in      string
		want    common.Address
		wantErr bool
	}{
		{"symbol", "usdc", asset.AddrUSDC, false},
		{"hex", "0x6B175474E89094C44Da98b954EedeAC495271d0F", asset.AddrDAI, false},
		{"padded", "  WBTC ", asset.AddrWBTC, false},
		{"unknown", "PEPE", common.Address{}, true},
		{"zero", "0x0000000000000000000000000000000000000000", common.Address{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(asset.ChainIDEthereum, tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve() err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %s, want %s", got.Hex(), tt.want.Hex())
			}
		})
	}
}

func TestRegistry_Pegged(t *testing.T) {
	r := asset.DefaultRegistry()

	stables := r.Pegged(asset.ChainIDEthereum, asset.PegUSD)
	if len(stables) != 3 {
		t.Fatalf("expected 3 usd-pegged tokens, got %d", len(stables))
	}
	for i := 1; i < len(stables); i++ {
		if stables[i-1].Cmp(stables[i]) >= 0 {
			t.Errorf("pegged addresses not sorted: %v", stables)
		}
	}

	btc := r.Pegged(asset.ChainIDEthereum, asset.PegBTC)
	if len(btc) != 1 || btc[0] != asset.AddrWBTC {
		t.Errorf("btc pegged = %v", btc)
	}
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := asset.NewRegistry()
	r.Register(asset.WETH)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	r.Register(asset.WETH)
}

func TestUnlisted(t *testing.T) {
	addr := common.HexToAddress("0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984")
	a := asset.Unlisted(asset.ChainIDEthereum, addr, 18)
	if a.Address() != addr || a.Decimals() != 18 || a.Peg() != asset.PegNone {
		t.Errorf("unexpected unlisted asset %+v", a)
	}
	if a.Name() != a.Symbol() {
		t.Errorf("Name() should fall back to symbol")
	}
}
