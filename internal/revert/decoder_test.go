package revert

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeErrorString(t *testing.T, msg string) []byte {
	t.Helper()
	args := abi.Arguments{{Type: mustType("string")}}
	packed, err := args.Pack(msg)
	require.NoError(t, err)
	return append(append([]byte{}, selectorErrorString[:]...), packed...)
}

func encodePanic(t *testing.T, code int64) []byte {
	t.Helper()
	args := abi.Arguments{{Type: mustType("uint256")}}
	packed, err := args.Pack(big.NewInt(code))
	require.NoError(t, err)
	return append(append([]byte{}, selectorPanic[:]...), packed...)
}

func TestDecodeRevertData_EmptyRevert(t *testing.T) {
	d := DecodeRevertData(nil)
	assert.Equal(t, KindEmptyRevert, d.Kind)
	assert.NotNil(t, d.Analysis)
}

func TestDecodeRevertData_ErrorString(t *testing.T) {
	data := encodeErrorString(t, "insufficient output for repayment")
	d := DecodeRevertData(data)
	require.Equal(t, KindErrorString, d.Kind)
	assert.Contains(t, d.Message, "insufficient output for repayment")
	require.NotNil(t, d.Analysis)
	assert.True(t, d.Analysis.IsRetryable)
}

func TestDecodeRevertData_Panic(t *testing.T) {
	d := DecodeRevertData(encodePanic(t, 0x11))
	require.Equal(t, KindPanic, d.Kind)
	assert.Contains(t, d.Message, "overflow")
}

func TestDecodeRevertData_UnknownSelector(t *testing.T) {
	data := append([]byte{0xde, 0xad, 0xbe, 0xef}, make([]byte, 32)...)
	d := DecodeRevertData(data)
	assert.Equal(t, KindCustomError, d.Kind)
}

func TestDecodeRevertData_ArbitrageFailedDetailed(t *testing.T) {
	args := abi.Arguments{
		{Type: mustType("string")},
		{Type: mustType("address")},
		{Type: mustType("address")},
		{Type: mustType("address")},
		{Type: mustType("uint256")},
		{Type: mustType("uint256")},
		{Type: mustType("uint256")},
		{Type: mustType("uint256")},
		{Type: mustType("uint256")},
		{Type: mustType("int256")},
	}
	packed, err := args.Pack(
		"insufficient output for repayment",
		common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"),
		common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"),
		big.NewInt(1_000_000),
		big.NewInt(500),
		big.NewInt(400),
		big.NewInt(900_000),
		big.NewInt(1_000_500),
		big.NewInt(-500),
	)
	require.NoError(t, err)
	data := append(append([]byte{}, selectorArbitrageFailedDetailed[:]...), packed...)

	d := DecodeRevertData(data)
	require.Equal(t, KindCustomError, d.Kind)
	assert.Contains(t, d.Message, "USDT")
	assert.Contains(t, d.Message, "WETH")
	assert.Contains(t, d.Message, "DAI")
	require.NotNil(t, d.Analysis)
	assert.True(t, d.Analysis.IsRetryable)
}

func TestDecodeRevertData_ProfitBelowMinimum(t *testing.T) {
	args := abi.Arguments{
		{Type: mustType("uint256")},
		{Type: mustType("uint256")},
		{Type: mustType("uint256")},
		{Type: mustType("uint256")},
	}
	packed, err := args.Pack(big.NewInt(100), big.NewInt(500), big.NewInt(1_000_000), big.NewInt(999_600))
	require.NoError(t, err)
	data := append(append([]byte{}, selectorProfitBelowMinimum[:]...), packed...)

	d := DecodeRevertData(data)
	require.Equal(t, KindCustomError, d.Kind)
	assert.Contains(t, d.Message, "profit below minimum")
	require.NotNil(t, d.Analysis)
	assert.False(t, d.Analysis.IsRetryable)
}

func TestDecodeFromErrorString_EmbeddedHex(t *testing.T) {
	payload := encodeErrorString(t, "slippage too high")
	hexStr := "0x" + common.Bytes2Hex(payload)
	wrapped := "execution reverted: Bytes(" + hexStr + ")"

	d := DecodeFromErrorString(wrapped)
	require.Equal(t, KindErrorString, d.Kind)
	assert.Contains(t, d.Message, "slippage too high")
}

func TestDecodeFromErrorString_NoHexFallsBackToText(t *testing.T) {
	d := DecodeFromErrorString("execution reverted: deadline expired")
	assert.Equal(t, KindErrorString, d.Kind)
	require.NotNil(t, d.Analysis)
	assert.True(t, d.Analysis.IsRetryable)
}

func TestDecodeFromErrorString_TotallyUnrecognized(t *testing.T) {
	d := DecodeFromErrorString("connection reset by peer")
	assert.Equal(t, KindUnknown, d.Kind)
}
