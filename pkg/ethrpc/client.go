// Package ethrpc wraps go-ethereum's ethclient with the small set of calls
// the scanner, evaluator, and dispatcher packages need, plus a Multicall3
// batch helper used by the pool refresher and flash-loan pool selector.
package ethrpc

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/flashtri/arbengine/pkg/logger"
)

// Multicall3Address is the address of the Multicall3 contract, identical
// across every chain it has been deployed to.
var Multicall3Address = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

// RPCRecorder receives a per-call outcome after every RPC method returns.
// Set via Client.SetRecorder; nil (the default) means calls go unrecorded.
// Defined here rather than imported so pkg/ethrpc stays free of any
// internal/ dependency — internal/metrics.RPCRecorder satisfies this
// structurally.
type RPCRecorder interface {
	RecordRPCCall(method string, err error)
}

// Client is a thin, chain-scoped wrapper around ethclient.Client.
type Client struct {
	ChainID uint64
	RPCURL  string

	eth      *ethclient.Client
	log      *logger.Logger
	mc3ABI   abi.ABI
	recorder RPCRecorder
}

// New dials the given RPC endpoint and returns a ready Client.
func New(ctx context.Context, chainID uint64, rpcURL string, log *logger.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("ethrpc: dial %q: %w", rpcURL, err)
	}
	mc3ABI, err := abi.JSON(stringsReader(multicall3ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("ethrpc: parse multicall3 abi: %w", err)
	}
	return &Client{
		ChainID: chainID,
		RPCURL:  rpcURL,
		eth:     eth,
		log:     log.Named("ethrpc"),
		mc3ABI:  mc3ABI,
	}, nil
}

// SetRecorder attaches an RPCRecorder; every subsequent call records its
// method name and outcome through it.
func (c *Client) SetRecorder(r RPCRecorder) { c.recorder = r }

// record reports a call's outcome if a recorder is attached.
func (c *Client) record(method string, err error) {
	if c.recorder != nil {
		c.recorder.RecordRPCCall(method, err)
	}
}

// Raw exposes the underlying ethclient for callers that need it directly
// (e.g. bind.ContractBackend consumers).
func (c *Client) Raw() *ethclient.Client { return c.eth }

// Close releases the underlying connection.
func (c *Client) Close() { c.eth.Close() }

// BalanceAt returns the wei balance of an address at the latest block.
func (c *Client) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	bal, err := c.eth.BalanceAt(ctx, addr, nil)
	c.record("eth_getBalance", err)
	if err != nil {
		return nil, fmt.Errorf("ethrpc: balance of %s: %w", addr, err)
	}
	return bal, nil
}

// NonceAt returns the pending nonce of an address, suitable for the next
// transaction to be sent.
func (c *Client) NonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, addr)
	c.record("eth_getTransactionCount", err)
	if err != nil {
		return 0, fmt.Errorf("ethrpc: nonce of %s: %w", addr, err)
	}
	return nonce, nil
}

// SuggestGasPrice returns the node's suggested legacy gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.eth.SuggestGasPrice(ctx)
	c.record("eth_gasPrice", err)
	if err != nil {
		return nil, fmt.Errorf("ethrpc: suggest gas price: %w", err)
	}
	return price, nil
}

// HeaderByNumber returns the header for the given block number, or the
// latest header if number is nil.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	h, err := c.eth.HeaderByNumber(ctx, number)
	c.record("eth_getBlockByNumber", err)
	if err != nil {
		return nil, fmt.Errorf("ethrpc: header by number %v: %w", number, err)
	}
	return h, nil
}

// EstimateGas estimates gas for a call message.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	gas, err := c.eth.EstimateGas(ctx, msg)
	c.record("eth_estimateGas", err)
	if err != nil {
		return 0, fmt.Errorf("ethrpc: estimate gas: %w", err)
	}
	return gas, nil
}

// CallContract performs a read-only eth_call, surfacing revert data
// unmodified so callers can feed it to the revert decoder.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	out, err := c.eth.CallContract(ctx, msg, blockNumber)
	c.record("eth_call", err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	err := c.eth.SendTransaction(ctx, tx)
	c.record("eth_sendRawTransaction", err)
	if err != nil {
		return fmt.Errorf("ethrpc: send transaction: %w", err)
	}
	return nil
}

// TransactionReceipt fetches a transaction's receipt, returning
// ethereum.NotFound (unwrapped) if not yet mined so callers can poll.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	r, err := c.eth.TransactionReceipt(ctx, hash)
	if err != ethereum.NotFound {
		c.record("eth_getTransactionReceipt", err)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// BlockByNumber fetches a full block.
func (c *Client) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	b, err := c.eth.BlockByNumber(ctx, number)
	c.record("eth_getBlockByNumber", err)
	if err != nil {
		return nil, fmt.Errorf("ethrpc: block by number %v: %w", number, err)
	}
	return b, nil
}

// Call3 is one entry of a Multicall3 aggregate3 batch.
type Call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Result3 is the per-call outcome of an aggregate3 batch.
type Result3 struct {
	Success    bool
	ReturnData []byte
}

// AggregateCall3 issues exactly one Multicall3.aggregate3 call bundling all
// given calls, per spec.md §4.2's "exactly one Multicall3" requirement.
func (c *Client) AggregateCall3(ctx context.Context, calls []Call3) ([]Result3, error) {
	type mcCall struct {
		Target       common.Address
		AllowFailure bool
		CallData     []byte
	}
	packedCalls := make([]mcCall, len(calls))
	for i, cc := range calls {
		packedCalls[i] = mcCall{Target: cc.Target, AllowFailure: cc.AllowFailure, CallData: cc.CallData}
	}

	data, err := c.mc3ABI.Pack("aggregate3", packedCalls)
	if err != nil {
		return nil, fmt.Errorf("ethrpc: pack aggregate3: %w", err)
	}

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &Multicall3Address, Data: data}, nil)
	c.record("eth_call_multicall3", err)
	if err != nil {
		return nil, fmt.Errorf("ethrpc: aggregate3 call: %w", err)
	}

	rawResults, err := c.mc3ABI.Unpack("aggregate3", out)
	if err != nil || len(rawResults) != 1 {
		return nil, fmt.Errorf("ethrpc: unpack aggregate3 result: %w", err)
	}

	decoded, ok := rawResults[0].([]struct {
		Success    bool
		ReturnData []byte
	})
	if !ok {
		return nil, fmt.Errorf("ethrpc: unexpected aggregate3 result shape %T", rawResults[0])
	}
	results := make([]Result3, len(decoded))
	for i, d := range decoded {
		results[i] = Result3{Success: d.Success, ReturnData: d.ReturnData}
	}
	return results, nil
}
