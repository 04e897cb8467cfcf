package domain

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SortTokens orders a pair the way factories do: lower address first.
func SortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) < 0 {
		return a, b
	}
	return b, a
}

// PairAddress derives a constant-product pair address with CREATE2.
// salt = keccak256(abi.encodePacked(token0, token1)).
func PairAddress(factory common.Address, initCodeHash common.Hash, a, b common.Address) common.Address {
	t0, t1 := SortTokens(a, b)
	salt := crypto.Keccak256Hash(t0.Bytes(), t1.Bytes())
	return crypto.CreateAddress2(factory, salt, initCodeHash.Bytes())
}

// PoolAddress derives a concentrated-liquidity pool address with CREATE2.
// salt = keccak256(abi.encode(token0, token1, fee)).
func PoolAddress(factory common.Address, initCodeHash common.Hash, a, b common.Address, fee uint32) common.Address {
	t0, t1 := SortTokens(a, b)
	salt := crypto.Keccak256Hash(
		common.LeftPadBytes(t0.Bytes(), 32),
		common.LeftPadBytes(t1.Bytes(), 32),
		common.LeftPadBytes(uint32Bytes(fee), 32),
	)
	return crypto.CreateAddress2(factory, salt, initCodeHash.Bytes())
}

func uint32Bytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// PairKey identifies an unordered token pair.
type PairKey struct {
	Token0 common.Address
	Token1 common.Address
}

// NewPairKey sorts a and b so that (a, b) and (b, a) share a key.
func NewPairKey(a, b common.Address) PairKey {
	t0, t1 := SortTokens(a, b)
	return PairKey{Token0: t0, Token1: t1}
}
