package dispatcher

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// arbitrageABIJSON is the single entry point this package calls:
// executeArbitrage(params tuple), per spec.md §6's egress definition.
const arbitrageABIJSON = `[
  {
    "inputs": [
      {
        "components": [
          {"internalType":"address","name":"flashPool","type":"address"},
          {"internalType":"uint24","name":"flashPoolFee","type":"uint24"},
          {"internalType":"address","name":"tokenA","type":"address"},
          {"internalType":"address","name":"tokenB","type":"address"},
          {"internalType":"address","name":"tokenC","type":"address"},
          {"internalType":"uint24","name":"fee1","type":"uint24"},
          {"internalType":"uint24","name":"fee2","type":"uint24"},
          {"internalType":"uint24","name":"fee3","type":"uint24"},
          {"internalType":"uint256","name":"amountIn","type":"uint256"},
          {"internalType":"uint256","name":"minProfit","type":"uint256"},
          {"internalType":"address","name":"profitToken","type":"address"},
          {"internalType":"uint24","name":"profitConvertFee","type":"uint24"}
        ],
        "internalType": "struct ArbitrageParams",
        "name": "params",
        "type": "tuple"
      }
    ],
    "name": "executeArbitrage",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "owner",
    "outputs": [{"internalType":"address","name":"","type":"address"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

// ArbitrageParams mirrors the on-chain struct spec.md §6 names.
type ArbitrageParams struct {
	FlashPool        common.Address
	FlashPoolFee     uint32
	TokenA           common.Address
	TokenB           common.Address
	TokenC           common.Address
	Fee1             uint32
	Fee2             uint32
	Fee3             uint32
	AmountIn         *big.Int
	MinProfit        *big.Int
	ProfitToken      common.Address
	ProfitConvertFee uint32
}

// arbitrageABI is parsed once; package-level since the ABI text is fixed.
var arbitrageABI = mustParseArbitrageABI()

func mustParseArbitrageABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(arbitrageABIJSON))
	if err != nil {
		panic(fmt.Sprintf("dispatcher: invalid embedded arbitrage abi: %v", err))
	}
	return parsed
}

// EncodeExecuteArbitrage packs a call to executeArbitrage(params).
func EncodeExecuteArbitrage(p ArbitrageParams) ([]byte, error) {
	type abiParams struct {
		FlashPool        common.Address
		FlashPoolFee     *big.Int
		TokenA           common.Address
		TokenB           common.Address
		TokenC           common.Address
		Fee1             *big.Int
		Fee2             *big.Int
		Fee3             *big.Int
		AmountIn         *big.Int
		MinProfit        *big.Int
		ProfitToken      common.Address
		ProfitConvertFee *big.Int
	}
	data, err := arbitrageABI.Pack("executeArbitrage", abiParams{
		FlashPool:        p.FlashPool,
		FlashPoolFee:     big.NewInt(int64(p.FlashPoolFee)),
		TokenA:           p.TokenA,
		TokenB:           p.TokenB,
		TokenC:           p.TokenC,
		Fee1:             big.NewInt(int64(p.Fee1)),
		Fee2:             big.NewInt(int64(p.Fee2)),
		Fee3:             big.NewInt(int64(p.Fee3)),
		AmountIn:         p.AmountIn,
		MinProfit:        p.MinProfit,
		ProfitToken:      p.ProfitToken,
		ProfitConvertFee: big.NewInt(int64(p.ProfitConvertFee)),
	})
	if err != nil {
		return nil, fmt.Errorf("dispatcher: pack executeArbitrage: %w", err)
	}
	return data, nil
}

// EncodeOwnerCall packs a call to owner().
func EncodeOwnerCall() ([]byte, error) {
	data, err := arbitrageABI.Pack("owner")
	if err != nil {
		return nil, fmt.Errorf("dispatcher: pack owner: %w", err)
	}
	return data, nil
}

// DecodeOwnerResult unpacks the result of an owner() call.
func DecodeOwnerResult(data []byte) (common.Address, error) {
	vals, err := arbitrageABI.Methods["owner"].Outputs.Unpack(data)
	if err != nil || len(vals) != 1 {
		return common.Address{}, fmt.Errorf("dispatcher: unpack owner result: %w", err)
	}
	addr, ok := vals[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("dispatcher: owner result not an address")
	}
	return addr, nil
}

// arbitrageExecutedEventTopic is keccak256("ArbitrageExecuted(address,address,address,uint256,uint256,uint256)"),
// used to locate the profit-bearing log in a receipt per spec.md §4.6.
var arbitrageExecutedEventTopic = crypto.Keccak256Hash(
	[]byte("ArbitrageExecuted(address,address,address,uint256,uint256,uint256)"),
)

// ParseProfitFromLog extracts the profit field (bytes 64-96 of the log
// data) from an ArbitrageExecuted event, per spec.md §4.6's "Parse profit
// from the ... event's log data (bytes 64-96 = profit)".
func ParseProfitFromLog(logData []byte) (*big.Int, bool) {
	if len(logData) < 96 {
		return nil, false
	}
	return new(big.Int).SetBytes(logData[64:96]), true
}
