package ethereum

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/quote-engine/business/quoting/app"
	"github.com/fd1az/quote-engine/business/quoting/domain"
	"github.com/fd1az/quote-engine/internal/apperror"
)

// FeedBook reads Chainlink-style aggregators addressed by (base, denomination).
type FeedBook struct {
	reader *ChainReader
	feeds  map[domain.FeedKey]common.Address
}

var _ app.FeedLookup = (*FeedBook)(nil)

// NewFeedBook creates a book over the given aggregator addresses.
func NewFeedBook(reader *ChainReader, feeds map[domain.FeedKey]common.Address) *FeedBook {
	book := make(map[domain.FeedKey]common.Address, len(feeds))
	for k, v := range feeds {
		book[k] = v
	}
	return &FeedBook{reader: reader, feeds: book}
}

// Has reports whether a feed is registered for key.
func (b *FeedBook) Has(key domain.FeedKey) bool {
	_, ok := b.feeds[key]
	return ok
}

// LatestValue implements app.FeedLookup. The raw answer is returned as-is; judging it is
// the resolver's job.
func (b *FeedBook) LatestValue(ctx context.Context, base, denomination common.Address) (*big.Int, time.Time, error) {
	key := domain.FeedKey{Base: base, Denomination: denomination}
	aggregator, ok := b.feeds[key]
	if !ok {
		return nil, time.Time{}, apperror.New(apperror.CodeFeedNotFound, apperror.WithContext(key.String()))
	}

	out, err := b.reader.call(ctx, aggregator, &b.reader.abis.aggregator, "latestRoundData")
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(out) < 4 {
		return nil, time.Time{}, badResponse("latestRoundData", aggregator)
	}
	answer, ok1 := out[1].(*big.Int)
	updatedAt, ok2 := out[3].(*big.Int)
	if !ok1 || !ok2 {
		return nil, time.Time{}, badResponse("latestRoundData", aggregator)
	}
	return answer, time.Unix(updatedAt.Int64(), 0).UTC(), nil
}
