package dispatcher

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeExecuteArbitrage_RoundTripsThroughABI(t *testing.T) {
	params := ArbitrageParams{
		FlashPool:        common.HexToAddress("0x1111111111111111111111111111111111111111"),
		FlashPoolFee:     500,
		TokenA:           common.HexToAddress("0x2222222222222222222222222222222222222222"),
		TokenB:           common.HexToAddress("0x3333333333333333333333333333333333333333"),
		TokenC:           common.HexToAddress("0x4444444444444444444444444444444444444444"),
		Fee1:             3000,
		Fee2:             3000,
		Fee3:             500,
		AmountIn:         big.NewInt(1_000_000_000),
		MinProfit:        big.NewInt(1_000),
		ProfitToken:      common.HexToAddress("0x2222222222222222222222222222222222222222"),
		ProfitConvertFee: 500,
	}

	data, err := EncodeExecuteArbitrage(params)
	require.NoError(t, err)
	require.True(t, len(data) > 4)

	// Selector is the first 4 bytes; the rest should decode back via the
	// same ABI's method Inputs.
	method := arbitrageABI.Methods["executeArbitrage"]
	decoded, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.Len(t, decoded, 1)
}

func TestEncodeOwnerCall_SelectorOnly(t *testing.T) {
	data, err := EncodeOwnerCall()
	require.NoError(t, err)
	assert.Len(t, data, 4) // owner() takes no args: selector only
}

func TestDecodeOwnerResult(t *testing.T) {
	want := common.HexToAddress("0x1234567890123456789012345678901234567890")
	packed, err := arbitrageABI.Methods["owner"].Outputs.Pack(want)
	require.NoError(t, err)

	got, err := DecodeOwnerResult(packed)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseProfitFromLog(t *testing.T) {
	data := make([]byte, 96)
	profit := big.NewInt(123456789)
	profit.FillBytes(data[64:96])

	got, ok := ParseProfitFromLog(data)
	require.True(t, ok)
	assert.Equal(t, profit, got)
}

func TestParseProfitFromLog_TooShort(t *testing.T) {
	_, ok := ParseProfitFromLog(make([]byte, 64))
	assert.False(t, ok)
}
