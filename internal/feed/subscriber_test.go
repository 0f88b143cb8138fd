package feed

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packInt256(n *big.Int) []byte {
	out := make([]byte, 32)
	if n.Sign() < 0 {
		twos := new(big.Int).Add(n, new(big.Int).Lsh(big.NewInt(1), 256))
		b := twos.Bytes()
		copy(out[32-len(b):], b)
	} else {
		b := n.Bytes()
		copy(out[32-len(b):], b)
	}
	return out
}

func buildSwapLog(amount0, amount1 *big.Int, sqrtPrice, liquidity *big.Int, tick int32) gethtypes.Log {
	data := make([]byte, 0, 160)
	data = append(data, packInt256(amount0)...)
	data = append(data, packInt256(amount1)...)
	data = append(data, packInt256(sqrtPrice)...)
	data = append(data, packInt256(liquidity)...)
	data = append(data, packInt256(big.NewInt(int64(tick)))...)

	return gethtypes.Log{
		Address:     common.HexToAddress("0x1234567890123456789012345678901234567890"),
		Topics:      []common.Hash{v3SwapTopic, {}, {}},
		Data:        data,
		BlockNumber: 100,
		TxHash:      common.HexToHash("0xabc"),
		Index:       3,
	}
}

func TestDecodeV3Swap_PositiveAmount0NegativeAmount1(t *testing.T) {
	lg := buildSwapLog(big.NewInt(1000), big.NewInt(-2000), big.NewInt(12345), big.NewInt(99), 42)
	ev, err := DecodeV3Swap(1, lg)
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(1000), ev.Amount0In)
	assert.Equal(t, big.NewInt(0), ev.Amount0Out)
	assert.Equal(t, big.NewInt(0), ev.Amount1In)
	assert.Equal(t, big.NewInt(2000), ev.Amount1Out)
	assert.Equal(t, big.NewInt(12345), ev.SqrtPriceX96)
	assert.Equal(t, big.NewInt(99), ev.Liquidity)
	assert.Equal(t, int32(42), ev.Tick)
	assert.True(t, ev.HasSqrtPrice)
	assert.True(t, ev.HasLiquidity)
	assert.True(t, ev.HasTick)
}

func TestDecodeV3Swap_NegativeTick(t *testing.T) {
	lg := buildSwapLog(big.NewInt(-500), big.NewInt(700), big.NewInt(1), big.NewInt(1), -887272)
	ev, err := DecodeV3Swap(1, lg)
	require.NoError(t, err)
	assert.Equal(t, int32(-887272), ev.Tick)
	assert.Equal(t, big.NewInt(500), ev.Amount0Out)
	assert.Equal(t, big.NewInt(700), ev.Amount1In)
}

func TestDecodeV3Swap_WrongTopicRejected(t *testing.T) {
	lg := buildSwapLog(big.NewInt(1), big.NewInt(1), big.NewInt(1), big.NewInt(1), 0)
	lg.Topics[0] = common.HexToHash("0xdead")
	_, err := DecodeV3Swap(1, lg)
	require.Error(t, err)
}

func TestDecodeV3Swap_ShortDataRejected(t *testing.T) {
	lg := buildSwapLog(big.NewInt(1), big.NewInt(1), big.NewInt(1), big.NewInt(1), 0)
	lg.Data = lg.Data[:100]
	_, err := DecodeV3Swap(1, lg)
	require.Error(t, err)
}
