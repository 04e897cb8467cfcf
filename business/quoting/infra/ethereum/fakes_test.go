package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/quote-engine/internal/logger"
)

// fakeBackend answers eth_call by ABI-packing canned outputs per (contract, method).
type fakeBackend struct {
	mu      sync.Mutex
	abis    *contracts
	outputs map[common.Address]map[string][]any
	errs    map[common.Address]error
	code    map[common.Address][]byte
	calls   map[string]int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	abis, err := loadContracts()
	require.NoError(t, err)
	return &fakeBackend{
		abis:    abis,
		outputs: map[common.Address]map[string][]any{},
		errs:    map[common.Address]error{},
		code:    map[common.Address][]byte{},
		calls:   map[string]int{},
	}
}

func (b *fakeBackend) respond(to common.Address, method string, out ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.outputs[to] == nil {
		b.outputs[to] = map[string][]any{}
	}
	b.outputs[to][method] = out
}

func (b *fakeBackend) fail(to common.Address, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs[to] = err
}

func (b *fakeBackend) count(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method]
}

func (b *fakeBackend) method(data []byte) (*abi.Method, error) {
	for _, a := range []abi.ABI{b.abis.pair, b.abis.pool, b.abis.erc20, b.abis.quoter, b.abis.aggregator, b.abis.router} {
		if m, err := a.MethodById(data); err == nil {
			return m, nil
		}
	}
	return nil, errors.New("unknown selector")
}

func (b *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, err := b.method(call.Data)
	if err != nil {
		return nil, err
	}
	b.calls[m.Name]++

	if err := b.errs[*call.To]; err != nil {
		return nil, err
	}
	out, ok := b.outputs[*call.To][m.Name]
	if !ok {
		return nil, fmt.Errorf("execution reverted: no answer for %s", m.Name)
	}
	return m.Outputs.Pack(out...)
}

func (b *fakeBackend) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["code_at"]++
	if err := b.errs[account]; err != nil {
		return nil, err
	}
	return b.code[account], nil
}

func newTestReader(t *testing.T, backend Backend) *ChainReader {
	t.Helper()
	r, err := NewChainReader(backend, ReaderConfig{RequestsPerSecond: 10000, Burst: 10000, CodeCacheSize: 16}, logger.NewNop())
	require.NoError(t, err)
	return r
}

func addr(n byte) common.Address {
	return common.BytesToAddress([]byte{0xbb, n})
}

func bi(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad int " + s)
	}
	return v
}
