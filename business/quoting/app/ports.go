// Package app contains the quoting services and the ports they need from infrastructure.
package app

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/quote-engine/business/quoting/domain"
)

// Every port returns an *apperror.AppError on failure. The quoting core treats all of them,
// except a stale feed, as "no quote".

// CodeChecker reports whether an address has deployed bytecode.
type CodeChecker interface {
	HasCode(ctx context.Context, addr common.Address) (bool, error)
}

// PairReader reads constant-product reserves, ordered as token0/token1.
type PairReader interface {
	Reserves(ctx context.Context, pair common.Address) (reserve0, reserve1 *big.Int, err error)
}

// PoolReader reads concentrated-liquidity pool state.
type PoolReader interface {
	Liquidity(ctx context.Context, pool common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// TickSimulator prices concentrated-liquidity swaps.
type TickSimulator interface {
	// CheckInRange reports whether the swap crosses the active tick range and, when it does not,
	// the analytic in-range output.
	CheckInRange(ctx context.Context, pool, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (crosses bool, inRangeOut *big.Int, err error)
	SimulateCrossTick(ctx context.Context, pool, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error)
}

// RouterQuoter is a best-rate router. Fees are in pips.
type RouterQuoter interface {
	BestRate(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (pool common.Address, amountOut *big.Int, err error)
	PoolFee(ctx context.Context, pool common.Address) (uint32, error)
}

// FeedLookup reads the latest answer of the feed for (base, denomination).
type FeedLookup interface {
	LatestValue(ctx context.Context, base, denomination common.Address) (value *big.Int, updatedAt time.Time, err error)
}

// TokenDecimals resolves ERC20 decimals.
type TokenDecimals interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// QuoteSource is one liquidity venue. Quote never fails: any collaborator error is a zero quote.
type QuoteSource interface {
	Venue() domain.VenueID
	Kind() domain.SourceKind
	// Bridgeable sources also take part in connector-bridged candidates.
	Bridgeable() bool
	Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) domain.Quote
	Exists(ctx context.Context, tokenIn, tokenOut common.Address) bool
}

// Swapper is the top-level quoting surface.
type Swapper interface {
	IsPairSupported(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (bool, error)
	FindOptimalSwap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (domain.Quote, error)
	FindExecutableSwap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (domain.Quote, error)
	UnsafeFindExecutableSwap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (domain.Quote, error)
}

// QuotePublisher receives the quotes produced by the watcher.
type QuotePublisher interface {
	Publish(ctx context.Context, update QuoteUpdate) error
}
