package quoter

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/flashtri/arbengine/pkg/ethrpc"
	"github.com/flashtri/arbengine/pkg/logger"
)

// quoterV2ABIJSON is the single entry point this client needs:
// quoteExactInputSingle, matching uniswap_client.go's pattern of embedding
// just the ABI fragment a client actually calls.
const quoterV2ABIJSON = `[
  {
    "inputs": [
      {
        "components": [
          {"internalType":"address","name":"tokenIn","type":"address"},
          {"internalType":"address","name":"tokenOut","type":"address"},
          {"internalType":"uint256","name":"amountIn","type":"uint256"},
          {"internalType":"uint24","name":"fee","type":"uint24"},
          {"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}
        ],
        "internalType": "struct IQuoterV2.QuoteExactInputSingleParams",
        "name": "params",
        "type": "tuple"
      }
    ],
    "name": "quoteExactInputSingle",
    "outputs": [
      {"internalType":"uint256","name":"amountOut","type":"uint256"},
      {"internalType":"uint160","name":"sqrtPriceX96After","type":"uint160"},
      {"internalType":"uint32","name":"initializedTicksCrossed","type":"uint32"},
      {"internalType":"uint256","name":"gasEstimate","type":"uint256"}
    ],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

// OnChainResult is the decoded return of QuoterV2.quoteExactInputSingle.
type OnChainResult struct {
	AmountOut      *big.Int
	SqrtPriceAfter *big.Int
	TicksCrossed   uint32
	GasEstimate    uint64
}

// OnChainClient calls the deployed QuoterV2 contract.
type OnChainClient struct {
	rpc          *ethrpc.Client
	quoterV2Addr common.Address
	log          *logger.Logger
	quoterABI    abi.ABI
}

// NewOnChainClient builds a client bound to a chain's QuoterV2 deployment.
func NewOnChainClient(rpc *ethrpc.Client, quoterV2Addr common.Address, log *logger.Logger) (*OnChainClient, error) {
	quoterABI, err := abi.JSON(strings.NewReader(quoterV2ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("quoter: parse quoterv2 abi: %w", err)
	}
	return &OnChainClient{rpc: rpc, quoterV2Addr: quoterV2Addr, log: log.Named("quoter"), quoterABI: quoterABI}, nil
}

// QuoteExactInputSingle calls QuoterV2.quoteExactInputSingle with
// sqrtPriceLimitX96=0, per spec.md §4.3.
func (c *OnChainClient) QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, feePPM uint32) (OnChainResult, error) {
	type params struct {
		TokenIn           common.Address
		TokenOut          common.Address
		AmountIn          *big.Int
		Fee               *big.Int
		SqrtPriceLimitX96 *big.Int
	}

	data, err := c.quoterABI.Pack("quoteExactInputSingle", params{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               big.NewInt(int64(feePPM)),
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return OnChainResult{}, fmt.Errorf("quoter: pack quoteExactInputSingle: %w", err)
	}

	out, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &c.quoterV2Addr, Data: data}, nil)
	if err != nil {
		return OnChainResult{}, fmt.Errorf("quoter: call quoteExactInputSingle: %w", err)
	}

	vals, err := c.quoterABI.Methods["quoteExactInputSingle"].Outputs.Unpack(out)
	if err != nil || len(vals) != 4 {
		return OnChainResult{}, fmt.Errorf("quoter: unpack quoteExactInputSingle result: %w", err)
	}

	amountOut, ok1 := vals[0].(*big.Int)
	sqrtAfter, ok2 := vals[1].(*big.Int)
	ticksCrossed, ok3 := vals[2].(uint32)
	gasEstimate, ok4 := vals[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return OnChainResult{}, fmt.Errorf("quoter: unexpected result shape")
	}

	return OnChainResult{
		AmountOut:      amountOut,
		SqrtPriceAfter: sqrtAfter,
		TicksCrossed:   ticksCrossed,
		GasEstimate:    gasEstimate.Uint64(),
	}, nil
}
