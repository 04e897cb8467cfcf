package ethereum

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/quote-engine/business/quoting/app"
	"github.com/fd1az/quote-engine/internal/apperror"
)

// OnchainRouter asks a best-rate router contract for quotes.
type OnchainRouter struct {
	reader  *ChainReader
	address common.Address
}

var _ app.RouterQuoter = (*OnchainRouter)(nil)

// NewOnchainRouter creates a router client for the contract at address.
func NewOnchainRouter(reader *ChainReader, address common.Address) *OnchainRouter {
	return &OnchainRouter{reader: reader, address: address}
}

// BestRate implements app.RouterQuoter.
func (r *OnchainRouter) BestRate(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (common.Address, *big.Int, error) {
	out, err := r.reader.call(ctx, r.address, &r.reader.abis.router, "findBestRate", tokenIn, tokenOut, amountIn)
	if err != nil {
		return common.Address{}, nil, apperror.New(apperror.CodeRouterQuoteFailed, apperror.WithCause(err))
	}
	if len(out) < 2 {
		return common.Address{}, nil, badResponse("findBestRate", r.address)
	}
	pool, ok1 := out[0].(common.Address)
	amountOut, ok2 := out[1].(*big.Int)
	if !ok1 || !ok2 {
		return common.Address{}, nil, badResponse("findBestRate", r.address)
	}
	return pool, amountOut, nil
}

// PoolFee implements app.RouterQuoter by reading the chosen pool's fee.
func (r *OnchainRouter) PoolFee(ctx context.Context, pool common.Address) (uint32, error) {
	return r.reader.PoolFee(ctx, pool)
}
