package domain_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/fd1az/quote-engine/business/quoting/domain"
)

var (
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

func TestPairAddress_Mainnet(t *testing.T) {
	tests := []struct {
		name     string
		factory  string
		initCode string
		want     string
	}{
		{
			name:     "uniswap v2 usdc/weth",
			factory:  "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f",
			initCode: "0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f",
			want:     "0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := common.HexToAddress(tt.factory)
			hash := common.HexToHash(tt.initCode)

			got := domain.PairAddress(factory, hash, weth, usdc)
			assert.Equal(t, common.HexToAddress(tt.want), got)
			assert.Equal(t, got, domain.PairAddress(factory, hash, usdc, weth), "derivation must ignore token order")
		})
	}
}

func TestPoolAddress_Mainnet(t *testing.T) {
	factory := common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	hash := common.HexToHash("0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54")

	assert.Equal(t, common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640"), domain.PoolAddress(factory, hash, usdc, weth, 500))
	assert.Equal(t, common.HexToAddress("0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8"), domain.PoolAddress(factory, hash, weth, usdc, 3000))
	assert.NotEqual(t, domain.PoolAddress(factory, hash, weth, usdc, 500), domain.PoolAddress(factory, hash, weth, usdc, 3000))
}

func TestNewPairKey_Unordered(t *testing.T) {
	assert.Equal(t, domain.NewPairKey(weth, usdc), domain.NewPairKey(usdc, weth))
	k := domain.NewPairKey(weth, usdc)
	assert.Equal(t, usdc, k.Token0)
}
