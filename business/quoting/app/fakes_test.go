package app

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/quote-engine/business/quoting/domain"
	"github.com/fd1az/quote-engine/internal/apperror"
)

func bi(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big int " + s)
	}
	return v
}

func addr(n byte) common.Address {
	return common.BytesToAddress([]byte{0xaa, n})
}

// fakeChain implements CodeChecker, PairReader and PoolReader over in-memory maps.
type fakeChain struct {
	code      map[common.Address]bool
	codeErr   map[common.Address]error
	reserves  map[common.Address][2]*big.Int
	liquidity map[common.Address]*big.Int
	balances  map[[2]common.Address]*big.Int
	poolErr   error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		code:      map[common.Address]bool{},
		codeErr:   map[common.Address]error{},
		reserves:  map[common.Address][2]*big.Int{},
		liquidity: map[common.Address]*big.Int{},
		balances:  map[[2]common.Address]*big.Int{},
	}
}

func (f *fakeChain) HasCode(_ context.Context, a common.Address) (bool, error) {
	if err := f.codeErr[a]; err != nil {
		return false, err
	}
	return f.code[a], nil
}

func (f *fakeChain) Reserves(_ context.Context, pair common.Address) (*big.Int, *big.Int, error) {
	r, ok := f.reserves[pair]
	if !ok {
		return nil, nil, apperror.New(apperror.CodeContractCallFailed, apperror.WithContext("getReserves"))
	}
	return r[0], r[1], nil
}

func (f *fakeChain) Liquidity(_ context.Context, pool common.Address) (*big.Int, error) {
	if f.poolErr != nil {
		return nil, f.poolErr
	}
	if l, ok := f.liquidity[pool]; ok {
		return l, nil
	}
	return new(big.Int), nil
}

func (f *fakeChain) BalanceOf(_ context.Context, token, owner common.Address) (*big.Int, error) {
	if b, ok := f.balances[[2]common.Address{token, owner}]; ok {
		return b, nil
	}
	return new(big.Int), nil
}

// deployPool makes pool look deployed, liquid and funded with tokenIn.
func (f *fakeChain) deployPool(pool, tokenIn common.Address) {
	f.code[pool] = true
	f.liquidity[pool] = bi("1000000000000000000")
	f.balances[[2]common.Address{tokenIn, pool}] = bi("1000000000000000000000000")
}

type simResult struct {
	crosses  bool
	inRange  *big.Int
	cross    *big.Int
	checkErr error
	crossErr error
}

type fakeSim struct {
	results map[common.Address]simResult
}

func (f *fakeSim) CheckInRange(_ context.Context, pool, _, _ common.Address, _ uint32, _ *big.Int) (bool, *big.Int, error) {
	r, ok := f.results[pool]
	if !ok {
		return false, nil, apperror.New(apperror.CodeTickSimulationFailed)
	}
	if r.checkErr != nil {
		return false, nil, r.checkErr
	}
	return r.crosses, r.inRange, nil
}

func (f *fakeSim) SimulateCrossTick(_ context.Context, pool, _, _ common.Address, _ uint32, _ *big.Int) (*big.Int, error) {
	r := f.results[pool]
	if r.crossErr != nil {
		return nil, r.crossErr
	}
	return r.cross, nil
}

type fakeRouter struct {
	pool    common.Address
	out     *big.Int
	err     error
	feePips uint32
	feeErr  error
}

func (f *fakeRouter) BestRate(_ context.Context, _, _ common.Address, _ *big.Int) (common.Address, *big.Int, error) {
	if f.err != nil {
		return common.Address{}, nil, f.err
	}
	return f.pool, f.out, nil
}

func (f *fakeRouter) PoolFee(_ context.Context, _ common.Address) (uint32, error) {
	return f.feePips, f.feeErr
}

type feedReading struct {
	value     *big.Int
	updatedAt time.Time
	err       error
}

// fakeFeeds is a feed table keyed by (base, denomination). Missing keys are FEED_NOT_FOUND.
type fakeFeeds struct {
	mu       sync.Mutex
	readings map[domain.FeedKey]feedReading
	reads    map[domain.FeedKey]int
}

func newFakeFeeds() *fakeFeeds {
	return &fakeFeeds{readings: map[domain.FeedKey]feedReading{}, reads: map[domain.FeedKey]int{}}
}

func (f *fakeFeeds) set(base, denom common.Address, value string, updatedAt time.Time) {
	f.readings[domain.FeedKey{Base: base, Denomination: denom}] = feedReading{value: bi(value), updatedAt: updatedAt}
}

func (f *fakeFeeds) LatestValue(_ context.Context, base, denom common.Address) (*big.Int, time.Time, error) {
	key := domain.FeedKey{Base: base, Denomination: denom}
	f.mu.Lock()
	f.reads[key]++
	f.mu.Unlock()

	r, ok := f.readings[key]
	if !ok {
		return nil, time.Time{}, apperror.New(apperror.CodeFeedNotFound, apperror.WithContext(key.String()))
	}
	if r.err != nil {
		return nil, time.Time{}, r.err
	}
	return r.value, r.updatedAt, nil
}

func (f *fakeFeeds) readCount(base, denom common.Address) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[domain.FeedKey{Base: base, Denomination: denom}]
}

type fakeDecimals map[common.Address]uint8

func (f fakeDecimals) Decimals(_ context.Context, token common.Address) (uint8, error) {
	d, ok := f[token]
	if !ok {
		return 0, apperror.New(apperror.CodeDecimalsLookupFailed, apperror.WithContext(token.Hex()))
	}
	return d, nil
}

// stubSource answers from a function of its inputs.
type stubSource struct {
	venue      domain.VenueID
	kind       domain.SourceKind
	bridgeable bool
	exists     bool
	delay      time.Duration
	quote      func(in, out common.Address, amt *big.Int) *big.Int
	calls      atomic.Int32
}

func (s *stubSource) Venue() domain.VenueID   { return s.venue }
func (s *stubSource) Kind() domain.SourceKind { return s.kind }
func (s *stubSource) Bridgeable() bool        { return s.bridgeable }

func (s *stubSource) Quote(ctx context.Context, in, out common.Address, amt *big.Int) domain.Quote {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return domain.ZeroQuote(s.venue, s.kind)
		}
	}
	v := s.quote(in, out, amt)
	if v == nil || v.Sign() == 0 {
		return domain.ZeroQuote(s.venue, s.kind)
	}
	return domain.Quote{
		Venue:     s.venue,
		Kind:      s.kind,
		AmountOut: v,
		Pools:     []common.Address{common.BytesToAddress([]byte(string(s.venue)))},
		Fees:      []uint32{30},
	}
}

func (s *stubSource) Exists(context.Context, common.Address, common.Address) bool {
	return s.exists
}

// fixed returns a quote function answering v for every input.
func fixed(v string) func(common.Address, common.Address, *big.Int) *big.Int {
	return func(common.Address, common.Address, *big.Int) *big.Int { return bi(v) }
}

// rate returns a quote function answering amt*num/den for the listed directed pairs only.
func rates(table map[[2]common.Address][2]int64) func(common.Address, common.Address, *big.Int) *big.Int {
	return func(in, out common.Address, amt *big.Int) *big.Int {
		r, ok := table[[2]common.Address{in, out}]
		if !ok {
			return new(big.Int)
		}
		v := new(big.Int).Mul(amt, big.NewInt(r[0]))
		return v.Quo(v, big.NewInt(r[1]))
	}
}

type stubQuoter struct {
	quote domain.Quote
	calls atomic.Int32
}

func (s *stubQuoter) Best(context.Context, domain.Query) domain.Quote {
	s.calls.Add(1)
	return s.quote
}
