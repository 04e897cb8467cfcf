package asset

import "github.com/ethereum/go-ethereum/common"

// Chain IDs
const (
	ChainIDEthereum = 1
	ChainIDSepolia  = 11155111
)

// Ethereum mainnet token addresses
var (
	AddrWETH = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	AddrUSDC = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	AddrUSDT = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	AddrDAI  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	AddrWBTC = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
	AddrLINK = common.HexToAddress("0x514910771AF9Ca656af840dff83E8264EcF986CA")
)

var (
	WETH = NewToken(ChainIDEthereum, AddrWETH, "WETH", "Wrapped Ether", 18, PegETH)
	USDC = NewToken(ChainIDEthereum, AddrUSDC, "USDC", "USD Coin", 6, PegUSD)
	USDT = NewToken(ChainIDEthereum, AddrUSDT, "USDT", "Tether USD", 6, PegUSD)
	DAI  = NewToken(ChainIDEthereum, AddrDAI, "DAI", "Dai Stablecoin", 18, PegUSD)
	WBTC = NewToken(ChainIDEthereum, AddrWBTC, "WBTC", "Wrapped BTC", 8, PegBTC)
	LINK = NewToken(ChainIDEthereum, AddrLINK, "LINK", "ChainLink Token", 18, PegNone)
)

// DefaultRegistry returns a registry pre-populated with the mainnet tokens above.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, a := range []*Asset{WETH, USDC, USDT, DAI, WBTC, LINK} {
		r.Register(a)
	}
	return r
}
