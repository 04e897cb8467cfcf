// Package asset describes the ERC20 tokens the engine knows about ahead of time.
// On-chain quantities stay *big.Int; decimal.Decimal only appears at display boundaries.
package asset

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ID identifies a token by chain and contract address. The symbol is metadata, not identity.
type ID struct {
	chainID uint64
	address common.Address
}

// NewID builds an ID. The address must be a deployed ERC20, never the zero address.
func NewID(chainID uint64, addr common.Address) ID {
	if addr == (common.Address{}) {
		panic("asset: zero token address")
	}
	return ID{chainID: chainID, address: addr}
}

func (id ID) ChainID() uint64 {
	return id.chainID
}

func (id ID) Address() common.Address {
	return id.address
}

func (id ID) String() string {
	return fmt.Sprintf("chain:%d/%s", id.chainID, id.address.Hex())
}

// Peg classifies what a token tracks, which decides how its USD value is looked up.
type Peg uint8

const (
	PegNone Peg = iota
	PegUSD
	PegETH
	PegBTC
)

func (p Peg) String() string {
	switch p {
	case PegUSD:
		return "usd"
	case PegETH:
		return "eth"
	case PegBTC:
		return "btc"
	default:
		return "none"
	}
}

// Asset is the metadata of a token.
type Asset struct {
	id       ID
	symbol   string
	name     string
	decimals uint8
	peg      Peg
}

// NewToken creates token metadata.
func NewToken(chainID uint64, addr common.Address, symbol, name string, decimals uint8, peg Peg) *Asset {
	if symbol == "" {
		panic("asset: empty symbol")
	}
	if decimals > 36 {
		panic("asset: suspicious decimals (>36)")
	}
	return &Asset{
		id:       NewID(chainID, addr),
		symbol:   symbol,
		name:     name,
		decimals: decimals,
		peg:      peg,
	}
}

// Unlisted describes a token that is not in any registry. Its symbol is the short address.
func Unlisted(chainID uint64, addr common.Address, decimals uint8) *Asset {
	hex := addr.Hex()
	return NewToken(chainID, addr, hex[:6]+"…"+hex[len(hex)-4:], "", decimals, PegNone)
}

func (a *Asset) ID() ID {
	return a.id
}

func (a *Asset) Address() common.Address {
	return a.id.address
}

func (a *Asset) ChainID() uint64 {
	return a.id.chainID
}

func (a *Asset) Symbol() string {
	return a.symbol
}

// Name falls back to the symbol when no name was given.
func (a *Asset) Name() string {
	if a.name == "" {
		return a.symbol
	}
	return a.name
}

func (a *Asset) Decimals() uint8 {
	return a.decimals
}

func (a *Asset) Peg() Peg {
	return a.peg
}

func (a *Asset) String() string {
	return a.symbol
}
