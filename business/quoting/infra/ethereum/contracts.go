// Package ethereum reads quoting inputs from an Ethereum node: pool state, token metadata,
// price feeds, router quotes and new block heads.
package ethereum

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// PairABI covers the constant-product pair reads.
const PairABI = `[
	{
		"inputs": [],
		"name": "getReserves",
		"outputs": [
			{"internalType": "uint112", "name": "reserve0", "type": "uint112"},
			{"internalType": "uint112", "name": "reserve1", "type": "uint112"},
			{"internalType": "uint32", "name": "blockTimestampLast", "type": "uint32"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// PoolABI covers the concentrated-liquidity pool reads.
const PoolABI = `[
	{
		"inputs": [],
		"name": "liquidity",
		"outputs": [{"internalType": "uint128", "name": "", "type": "uint128"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "slot0",
		"outputs": [
			{"internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
			{"internalType": "int24", "name": "tick", "type": "int24"},
			{"internalType": "uint16", "name": "observationIndex", "type": "uint16"},
			{"internalType": "uint16", "name": "observationCardinality", "type": "uint16"},
			{"internalType": "uint16", "name": "observationCardinalityNext", "type": "uint16"},
			{"internalType": "uint8", "name": "feeProtocol", "type": "uint8"},
			{"internalType": "bool", "name": "unlocked", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "tickSpacing",
		"outputs": [{"internalType": "int24", "name": "", "type": "int24"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "fee",
		"outputs": [{"internalType": "uint24", "name": "", "type": "uint24"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// ERC20ABI covers balanceOf and decimals.
const ERC20ABI = `[
	{
		"inputs": [{"internalType": "address", "name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "decimals",
		"outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// QuoterV2ABI is the ABI for the Uniswap V3 QuoterV2 contract.
// Only includes quoteExactInputSingle, used for tick-crossing swaps.
const QuoterV2ABI = `[
	{
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "tokenIn", "type": "address"},
					{"internalType": "address", "name": "tokenOut", "type": "address"},
					{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
					{"internalType": "uint24", "name": "fee", "type": "uint24"},
					{"internalType": "uint160", "name": "sqrtPriceLimitX96", "type": "uint160"}
				],
				"internalType": "struct IQuoterV2.QuoteExactInputSingleParams",
				"name": "params",
				"type": "tuple"
			}
		],
		"name": "quoteExactInputSingle",
		"outputs": [
			{"internalType": "uint256", "name": "amountOut", "type": "uint256"},
			{"internalType": "uint160", "name": "sqrtPriceX96After", "type": "uint160"},
			{"internalType": "uint32", "name": "initializedTicksCrossed", "type": "uint32"},
			{"internalType": "uint256", "name": "gasEstimate", "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// AggregatorV3ABI is the Chainlink price feed interface.
const AggregatorV3ABI = `[
	{
		"inputs": [],
		"name": "latestRoundData",
		"outputs": [
			{"internalType": "uint80", "name": "roundId", "type": "uint80"},
			{"internalType": "int256", "name": "answer", "type": "int256"},
			{"internalType": "uint256", "name": "startedAt", "type": "uint256"},
			{"internalType": "uint256", "name": "updatedAt", "type": "uint256"},
			{"internalType": "uint80", "name": "answeredInRound", "type": "uint80"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// RouterABI is the best-rate router interface.
const RouterABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "tokenIn", "type": "address"},
			{"internalType": "address", "name": "tokenOut", "type": "address"},
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"}
		],
		"name": "findBestRate",
		"outputs": [
			{"internalType": "address", "name": "pool", "type": "address"},
			{"internalType": "uint256", "name": "amountOut", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// QuoteExactInputSingleParams represents the input params for quoteExactInputSingle.
type QuoteExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int // uint24
	SqrtPriceLimitX96 *big.Int // uint160, 0 for no limit
}

// contracts holds the parsed ABIs.
type contracts struct {
	pair       abi.ABI
	pool       abi.ABI
	erc20      abi.ABI
	quoter     abi.ABI
	aggregator abi.ABI
	router     abi.ABI
}

func loadContracts() (*contracts, error) {
	c := &contracts{}
	for _, def := range []struct {
		name string
		json string
		dst  *abi.ABI
	}{
		{"pair", PairABI, &c.pair},
		{"pool", PoolABI, &c.pool},
		{"erc20", ERC20ABI, &c.erc20},
		{"quoter", QuoterV2ABI, &c.quoter},
		{"aggregator", AggregatorV3ABI, &c.aggregator},
		{"router", RouterABI, &c.router},
	} {
		parsed, err := abi.JSON(strings.NewReader(def.json))
		if err != nil {
			return nil, fmt.Errorf("parse %s abi: %w", def.name, err)
		}
		*def.dst = parsed
	}
	return c, nil
}
