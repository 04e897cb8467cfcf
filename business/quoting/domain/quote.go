// Package domain holds the value types and pure math of the quoting context.
package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// VenueID names one configured liquidity source, e.g. "uniswap-v2".
type VenueID string

// OracleVenue is the pseudo-venue of quotes answered from price feeds.
const OracleVenue VenueID = "oracle"

// SourceKind is the quoting model behind a venue.
type SourceKind uint8

const (
	KindNone SourceKind = iota
	KindConstantProduct
	KindConcentrated
	KindRouter
	KindOracle
)

func (k SourceKind) String() string {
	switch k {
	case KindConstantProduct:
		return "constant_product"
	case KindConcentrated:
		return "concentrated"
	case KindRouter:
		return "router"
	case KindOracle:
		return "oracle"
	default:
		return "none"
	}
}

// Quote is one candidate answer. A zero AmountOut means the source had no usable quote.
// Fees are basis points, aligned by index with Pools.
type Quote struct {
	Venue     VenueID
	Kind      SourceKind
	AmountOut *big.Int
	Pools     []common.Address
	Fees      []uint32
}

// ZeroQuote is the "no quote" answer of a venue.
func ZeroQuote(venue VenueID, kind SourceKind) Quote {
	return Quote{Venue: venue, Kind: kind, AmountOut: new(big.Int)}
}

// IsZero reports whether q carries no usable amount.
func (q Quote) IsZero() bool {
	return q.AmountOut == nil || q.AmountOut.Sign() == 0
}

// Hops returns the number of pools the quote routes through.
func (q Quote) Hops() int {
	return len(q.Pools)
}

// Leg is a precomputed tokenIn→connector hop.
type Leg struct {
	Venue     VenueID
	Pool      common.Address
	FeeBps    uint32
	AmountOut *big.Int
}

// LegFromQuote takes the first hop of a single-pool quote. It returns nil for zero or multi-hop quotes.
func LegFromQuote(q Quote) *Leg {
	if q.IsZero() || len(q.Pools) != 1 {
		return nil
	}
	leg := &Leg{Venue: q.Venue, Pool: q.Pools[0], AmountOut: new(big.Int).Set(q.AmountOut)}
	if len(q.Fees) > 0 {
		leg.FeeBps = q.Fees[0]
	}
	return leg
}

// Query is the input to the route aggregator.
type Query struct {
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	Connector    common.Address
	ConnectorLeg *Leg
}

// NeedsBridge reports whether connector-bridged candidates apply.
func (q Query) NeedsBridge() bool {
	return q.Connector != (common.Address{}) && q.TokenIn != q.Connector && q.TokenOut != q.Connector
}

// TokenMeta is the token metadata the oracle needs for scaling.
type TokenMeta struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}
