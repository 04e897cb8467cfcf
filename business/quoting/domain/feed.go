package domain

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Denomination addresses as used by Chainlink's feed registry.
var (
	DenominationUSD = common.HexToAddress("0x0000000000000000000000000000000000000348")
	DenominationETH = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")
	DenominationBTC = common.HexToAddress("0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB")
)

// Fixed-point scale of feed answers per denomination.
var (
	USDScale = big.NewInt(1e8)
	BTCScale = big.NewInt(1e8)
	ETHScale = big.NewInt(1e18)
)

// ParseDenomination maps "usd", "eth" or "btc" to its denomination address.
func ParseDenomination(s string) (common.Address, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "usd":
		return DenominationUSD, true
	case "eth":
		return DenominationETH, true
	case "btc":
		return DenominationBTC, true
	default:
		return common.Address{}, false
	}
}

// DenominationName is the inverse of ParseDenomination. Unknown addresses print as hex.
func DenominationName(d common.Address) string {
	switch d {
	case DenominationUSD:
		return "usd"
	case DenominationETH:
		return "eth"
	case DenominationBTC:
		return "btc"
	default:
		return d.Hex()
	}
}

// ScaleOf returns the fixed-point scale of answers in denomination d.
func ScaleOf(d common.Address) *big.Int {
	if d == DenominationETH {
		return ETHScale
	}
	return USDScale
}

// FeedKey identifies one feed. Base is a token or a denomination pseudo-asset.
type FeedKey struct {
	Base         common.Address
	Denomination common.Address
}

func (k FeedKey) String() string {
	return k.Base.Hex() + "/" + DenominationName(k.Denomination)
}

// FeedEntry is one feed reading.
type FeedEntry struct {
	Base         common.Address
	Denomination common.Address
	Value        *big.Int
	UpdatedAt    time.Time
	Staleness    time.Duration
}

// IsStale reports whether the reading is older than its window at now.
func (e FeedEntry) IsStale(now time.Time) bool {
	return now.Sub(e.UpdatedAt) > e.Staleness
}

// FeedQuote is the oracle's estimate. A zero AmountOut means no oracle opinion.
// BridgeLeg is set when the tokenIn→base leg came from the dex.
type FeedQuote struct {
	AmountOut       *big.Int
	BridgeLegAmount *big.Int
	BridgeVenue     VenueID
	BridgeLeg       *Leg
}

// ZeroFeedQuote is the "no oracle opinion" answer.
func ZeroFeedQuote() FeedQuote {
	return FeedQuote{AmountOut: new(big.Int)}
}

func (f FeedQuote) IsZero() bool {
	return f.AmountOut == nil || f.AmountOut.Sign() == 0
}
