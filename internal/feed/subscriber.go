// Package feed implements the BlockSubscriber collaborator spec.md §2's
// diagram places upstream of the Scanner: a WS subscription to new block
// headers and Swap logs on monitored V3 pools, decoded into the
// types.SwapEvent / types.NewBlockEvent shapes the Scanner consumes.
package feed

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/flashtri/arbengine/internal/types"
	"github.com/flashtri/arbengine/pkg/logger"
)

// v3SwapTopic is keccak256("Swap(address,address,int256,int256,uint160,uint128,int24)"),
// the Uniswap V3 pool Swap event signature.
var v3SwapTopic = common.HexToHash("0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67")

// Subscriber dials a chain's WS RPC endpoint and republishes decoded
// SwapEvent/NewBlockEvent values onto caller-owned channels.
type Subscriber struct {
	chainID uint64
	eth     *ethclient.Client
	log     *logger.Logger
}

// Dial connects to wsURL for chainID.
func Dial(ctx context.Context, chainID uint64, wsURL string, log *logger.Logger) (*Subscriber, error) {
	eth, err := ethclient.DialContext(ctx, wsURL)
	if err != nil {
		return nil, fmt.Errorf("feed: dial %q: %w", wsURL, err)
	}
	return &Subscriber{chainID: chainID, eth: eth, log: log.Named("feed")}, nil
}

// Close releases the underlying connection.
func (s *Subscriber) Close() { s.eth.Close() }

// Run subscribes to new heads and Swap logs on the given pool addresses,
// forwarding decoded events onto blockOut/swapOut until ctx is cancelled.
// Subscription drops are retried with a short backoff, matching the
// teacher's reconnect-on-drop pattern for long-lived WS subscriptions.
func (s *Subscriber) Run(ctx context.Context, pools []common.Address, blockOut chan<- types.NewBlockEvent, swapOut chan<- types.SwapEvent) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.runOnce(ctx, pools, blockOut, swapOut); err != nil {
			s.log.Warn("feed subscription dropped, reconnecting", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
	}
}

func (s *Subscriber) runOnce(ctx context.Context, pools []common.Address, blockOut chan<- types.NewBlockEvent, swapOut chan<- types.SwapEvent) error {
	headCh := make(chan *gethtypes.Header, 16)
	headSub, err := s.eth.SubscribeNewHead(ctx, headCh)
	if err != nil {
		return fmt.Errorf("feed: subscribe new head: %w", err)
	}
	defer headSub.Unsubscribe()

	logCh := make(chan gethtypes.Log, 256)
	query := ethereum.FilterQuery{
		Addresses: pools,
		Topics:    [][]common.Hash{{v3SwapTopic}},
	}
	logSub, err := s.eth.SubscribeFilterLogs(ctx, query, logCh)
	if err != nil {
		return fmt.Errorf("feed: subscribe filter logs: %w", err)
	}
	defer logSub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-headSub.Err():
			return fmt.Errorf("feed: head subscription: %w", err)
		case err := <-logSub.Err():
			return fmt.Errorf("feed: log subscription: %w", err)
		case h := <-headCh:
			blockOut <- types.NewBlockEvent{
				ChainID:     s.chainID,
				BlockNumber: h.Number.Uint64(),
				BaseFee:     h.BaseFee,
				Timestamp:   time.Unix(int64(h.Time), 0),
			}
		case lg := <-logCh:
			if lg.Removed {
				continue
			}
			ev, err := DecodeV3Swap(s.chainID, lg)
			if err != nil {
				s.log.Debug("dropping malformed swap log", "error", err, "tx", lg.TxHash.Hex())
				continue
			}
			swapOut <- ev
		}
	}
}

// DecodeV3Swap decodes one Uniswap-V3-family Swap log into a SwapEvent,
// converting the event's signed amount0/amount1 into the V2-style
// in/out pairs types.SwapEvent carries (spec.md §3).
func DecodeV3Swap(chainID uint64, lg gethtypes.Log) (types.SwapEvent, error) {
	if len(lg.Topics) < 3 {
		return types.SwapEvent{}, fmt.Errorf("feed: expected 3 topics, got %d", len(lg.Topics))
	}
	if lg.Topics[0] != v3SwapTopic {
		return types.SwapEvent{}, fmt.Errorf("feed: not a v3 Swap event")
	}
	if len(lg.Data) < 160 {
		return types.SwapEvent{}, fmt.Errorf("feed: swap data too short: %d bytes", len(lg.Data))
	}

	amount0 := signedBigFromBytes(lg.Data[0:32])
	amount1 := signedBigFromBytes(lg.Data[32:64])
	sqrtPriceX96 := new(big.Int).SetBytes(lg.Data[64:96])
	liquidity := new(big.Int).SetBytes(lg.Data[96:128])
	tick := int32(signedBigFromBytes(lg.Data[128:160]).Int64())

	var amount0In, amount1In, amount0Out, amount1Out *big.Int
	if amount0.Sign() > 0 {
		amount0In, amount0Out = amount0, big.NewInt(0)
	} else {
		amount0In, amount0Out = big.NewInt(0), new(big.Int).Neg(amount0)
	}
	if amount1.Sign() > 0 {
		amount1In, amount1Out = amount1, big.NewInt(0)
	} else {
		amount1In, amount1Out = big.NewInt(0), new(big.Int).Neg(amount1)
	}

	return types.SwapEvent{
		ChainID:      chainID,
		BlockNumber:  lg.BlockNumber,
		TxHash:       lg.TxHash,
		LogIndex:     lg.Index,
		PoolAddress:  lg.Address,
		Amount0In:    amount0In,
		Amount1In:    amount1In,
		Amount0Out:   amount0Out,
		Amount1Out:   amount1Out,
		SqrtPriceX96: sqrtPriceX96,
		HasSqrtPrice: true,
		Liquidity:    liquidity,
		HasLiquidity: true,
		Tick:         tick,
		HasTick:      true,
	}, nil
}

func signedBigFromBytes(b []byte) *big.Int {
	n := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8)))
	}
	return n
}
