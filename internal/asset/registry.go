package asset

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry is a thread-safe index of known tokens.
type Registry struct {
	byID     map[ID]*Asset
	bySymbol map[string]*Asset // "chainID/SYMBOL"
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[ID]*Asset),
		bySymbol: make(map[string]*Asset),
	}
}

func symbolKey(chainID uint64, symbol string) string {
	return fmt.Sprintf("%d/%s", chainID, strings.ToUpper(symbol))
}

// Register adds a token. Registering the same ID twice panics.
func (r *Registry) Register(a *Asset) {
	if a == nil {
		panic("asset: cannot register nil asset")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[a.ID()]; exists {
		panic(fmt.Sprintf("asset: %s already registered", a.ID()))
	}
	r.byID[a.ID()] = a
	r.bySymbol[symbolKey(a.ChainID(), a.Symbol())] = a
}

// Get looks a token up by chain and address.
func (r *Registry) Get(chainID uint64, addr common.Address) (*Asset, bool) {
	if addr == (common.Address{}) {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[ID{chainID: chainID, address: addr}]
	return a, ok
}

// BySymbol looks a token up by its ticker, case-insensitively.
func (r *Registry) BySymbol(chainID uint64, symbol string) (*Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.bySymbol[symbolKey(chainID, symbol)]
	return a, ok
}

// Decimals returns the decimals of a registered token.
func (r *Registry) Decimals(chainID uint64, addr common.Address) (uint8, bool) {
	a, ok := r.Get(chainID, addr)
	if !ok {
		return 0, false
	}
	return a.Decimals(), true
}

// Resolve accepts either a hex address or a registered symbol.
func (r *Registry) Resolve(chainID uint64, s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if common.IsHexAddress(s) {
		addr := common.HexToAddress(s)
		if addr == (common.Address{}) {
			return common.Address{}, fmt.Errorf("asset: zero address")
		}
		return addr, nil
	}
	if a, ok := r.BySymbol(chainID, s); ok {
		return a.Address(), nil
	}
	return common.Address{}, fmt.Errorf("asset: unknown token %q on chain %d", s, chainID)
}

// Pegged returns the addresses of every registered token on chainID with the given peg, sorted.
func (r *Registry) Pegged(chainID uint64, peg Peg) []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []common.Address
	for id, a := range r.byID {
		if id.chainID == chainID && a.peg == peg {
			out = append(out, id.address)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// All returns every registered token ordered by symbol.
func (r *Registry) All() []*Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Asset, 0, len(r.byID))
	for _, a := range r.byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].symbol < out[j].symbol })
	return out
}

// Count returns the number of registered tokens.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
