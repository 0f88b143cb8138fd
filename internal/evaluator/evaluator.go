// Package evaluator implements OpportunityEvaluator (spec.md §4.4): given a
// PoolPath and the USD notional of the swap that triggered it, compute an
// Opportunity or report that none exists.
package evaluator

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flashtri/arbengine/internal/poolcache"
	"github.com/flashtri/arbengine/internal/priceservice"
	"github.com/flashtri/arbengine/internal/quoter"
	"github.com/flashtri/arbengine/internal/types"
	"github.com/flashtri/arbengine/pkg/logger"
)

// QuoterAPI is the subset of *quoter.Client the evaluator depends on,
// narrowed to an interface so tests can substitute a fake on-chain quoter
// without standing up a real RPC connection.
type QuoterAPI interface {
	Quote(ctx context.Context, state types.PoolState, tokenIn, tokenOut common.Address, amountIn *big.Int, zeroForOne bool, feePPM uint32, notionalUSD float64) (*big.Int, error)
	OnChainQuote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, feePPM uint32) (quoter.OnChainResult, error)
}

// maxTotalFeePPM is the 1% total-swap-fee cap from spec.md §3.
const maxTotalFeePPM = 10_000

// flashloanCallbackGasOverhead is the fixed overhead spec.md §4.4 step D
// adds on top of the summed per-hop gas estimates.
const flashloanCallbackGasOverhead = 50_000

// GasThresholdBin is one row of the dynamic profit threshold table
// (spec.md §4.4 step E).
type GasThresholdBin struct {
	MaxGasPriceGwei float64 // exclusive upper bound; use +Inf for the top bin
	MinNetProfitUSD decimal.Decimal
}

// DefaultThresholds returns the spec's default gas-indexed profit bins.
func DefaultThresholds() []GasThresholdBin {
	return []GasThresholdBin{
		{MaxGasPriceGwei: 1, MinNetProfitUSD: decimal.NewFromInt(1)},
		{MaxGasPriceGwei: 5, MinNetProfitUSD: decimal.NewFromInt(3)},
		{MaxGasPriceGwei: 20, MinNetProfitUSD: decimal.NewFromInt(5)},
		{MaxGasPriceGwei: 50, MinNetProfitUSD: decimal.NewFromInt(15)},
		{MaxGasPriceGwei: -1, MinNetProfitUSD: decimal.NewFromInt(30)}, // -1 sentinel: ≥50 Gwei, the top bin
	}
}

// MinNetProfitUSD returns the configured minimum for a given gas price,
// honoring the half-open bins [<1, [1,5), [5,20), [20,50), >=50].
func MinNetProfitUSD(bins []GasThresholdBin, gasPriceGwei float64) decimal.Decimal {
	for _, b := range bins {
		if b.MaxGasPriceGwei < 0 {
			return b.MinNetProfitUSD // top/catch-all bin
		}
		if gasPriceGwei < b.MaxGasPriceGwei {
			return b.MinNetProfitUSD
		}
	}
	if len(bins) > 0 {
		return bins[len(bins)-1].MinNetProfitUSD
	}
	return decimal.Zero
}

// PoolIndex looks up every registered pool trading a given token pair,
// across all dex types/fees, on a chain. Used for per-hop candidate pool
// selection (spec.md §4.4 step B).
type PoolIndex interface {
	PoolsForPair(chainID uint64, tokenA, tokenB common.Address) []types.Pool
}

// Config bundles the evaluator's tunables.
type Config struct {
	SkipLocalThresholdUSD float64
	GasThresholds         []GasThresholdBin
}

// Evaluator implements spec.md §4.4.
type Evaluator struct {
	cache  *poolcache.Cache
	pools  PoolIndex
	quoter QuoterAPI
	prices priceservice.PriceService
	log    *logger.Logger
	cfg    Config
	tokens map[types.TokenKey]types.TokenConfig
}

// New builds an Evaluator. tokens maps (chain,address) to its TokenConfig,
// as loaded by ConfigStore.
func New(cache *poolcache.Cache, pools PoolIndex, q QuoterAPI, prices priceservice.PriceService, tokens map[types.TokenKey]types.TokenConfig, cfg Config, log *logger.Logger) *Evaluator {
	if cfg.GasThresholds == nil {
		cfg.GasThresholds = DefaultThresholds()
	}
	return &Evaluator{cache: cache, pools: pools, quoter: q, prices: prices, tokens: tokens, cfg: cfg, log: log.Named("evaluator")}
}

// Input bundles the per-evaluation context the Scanner supplies.
type Input struct {
	ChainID       uint64
	Path          types.PoolPath
	SwapNotionalUSD float64
	GasPriceGwei  float64
	BlockNumber   uint64
}

// Evaluate runs steps A-F of spec.md §4.4, returning (nil, nil) when no
// viable opportunity exists (not an error).
func (e *Evaluator) Evaluate(ctx context.Context, in Input) (*types.Opportunity, error) {
	if err := in.Path.Validate(); err != nil {
		return nil, nil
	}

	tokenA, ok := e.tokens[types.TokenKey{ChainID: in.ChainID, Address: in.Path.TokenA}]
	if !ok {
		e.log.Debug("no token config for token_a", "token", in.Path.TokenA.Hex())
		return nil, nil
	}

	// Step A: sizing.
	inputAmount := e.sizeInput(tokenA, in.SwapNotionalUSD)
	if inputAmount == nil || inputAmount.Sign() == 0 {
		return nil, nil
	}

	// Step B: pool-per-hop selection.
	hop1Pool, ok := e.bestPoolForHop(ctx, in.ChainID, in.Path.TokenA, in.Path.TokenB, inputAmount, in.SwapNotionalUSD)
	if !ok {
		return nil, nil
	}
	hop2Pool, ok := e.bestPoolForHop(ctx, in.ChainID, in.Path.TokenB, in.Path.TokenC, inputAmount, in.SwapNotionalUSD)
	if !ok {
		return nil, nil
	}
	hop3Pool, ok := e.bestPoolForHop(ctx, in.ChainID, in.Path.TokenC, in.Path.TokenA, inputAmount, in.SwapNotionalUSD)
	if !ok {
		return nil, nil
	}

	// Step C: fee gate.
	totalFeePPM := uint64(hop1Pool.FeePPM) + uint64(hop2Pool.FeePPM) + uint64(hop3Pool.FeePPM)
	if totalFeePPM > maxTotalFeePPM {
		e.log.Debug("fee gate rejected path", "path", in.Path.PathName, "total_fee_ppm", totalFeePPM)
		return nil, nil
	}

	// Step D: on-chain confirmation, sequential (each depends on the
	// previous hop's amount_out).
	quote1, err := e.quoter.OnChainQuote(ctx, in.Path.TokenA, in.Path.TokenB, inputAmount, hop1Pool.FeePPM)
	if err != nil {
		e.log.Debug("hop1 on-chain quote failed", "error", err)
		return nil, nil
	}
	quote2, err := e.quoter.OnChainQuote(ctx, in.Path.TokenB, in.Path.TokenC, quote1.AmountOut, hop2Pool.FeePPM)
	if err != nil {
		e.log.Debug("hop2 on-chain quote failed", "error", err)
		return nil, nil
	}
	quote3, err := e.quoter.OnChainQuote(ctx, in.Path.TokenC, in.Path.TokenA, quote2.AmountOut, hop3Pool.FeePPM)
	if err != nil {
		e.log.Debug("hop3 on-chain quote failed", "error", err)
		return nil, nil
	}

	output := quote3.AmountOut
	if output == nil || output.Sign() <= 0 {
		return nil, nil
	}

	totalGas := quote1.GasEstimate + quote2.GasEstimate + quote3.GasEstimate + flashloanCallbackGasOverhead

	profitWei := new(big.Int).Sub(output, inputAmount)
	var profitUSD decimal.Decimal
	if priceA, ok := e.prices.GetPriceByAddress(in.ChainID, in.Path.TokenA); ok {
		profitUSD = decimalFromWei(profitWei, tokenA.Decimals).Mul(priceA)
	}

	// gas_cost_usd = total_gas * gas_price_wei * eth_price_usd / 1e18, with
	// gas_price_wei = gas_price_gwei * 1e9, which collapses to
	// total_gas * gas_price_gwei * eth_price_usd / 1e9.
	gasPriceGwei := decimal.NewFromFloat(in.GasPriceGwei)
	ethPrice := e.prices.GetETHPrice()
	gasCostUSD := decimal.NewFromInt(int64(totalGas)).
		Mul(gasPriceGwei).
		Mul(ethPrice).
		Div(decimal.New(1, 9))

	netProfitUSD := profitUSD.Sub(gasCostUSD)

	// Step E: dynamic threshold.
	minProfit := MinNetProfitUSD(e.cfg.GasThresholds, in.GasPriceGwei)
	if netProfitUSD.LessThan(minProfit) {
		e.log.Debug("below dynamic profit threshold", "net_profit_usd", netProfitUSD, "min", minProfit)
		return nil, nil
	}

	// Step F: construct Opportunity.
	opp := &types.Opportunity{
		ID:      uuid.NewString(),
		ChainID: in.ChainID,
		Path: [3]types.SwapHop{
			{PoolAddress: hop1Pool.Address, DexType: hop1Pool.DexType, TokenIn: in.Path.TokenA, TokenOut: in.Path.TokenB, FeePPM: hop1Pool.FeePPM},
			{PoolAddress: hop2Pool.Address, DexType: hop2Pool.DexType, TokenIn: in.Path.TokenB, TokenOut: in.Path.TokenC, FeePPM: hop2Pool.FeePPM},
			{PoolAddress: hop3Pool.Address, DexType: hop3Pool.DexType, TokenIn: in.Path.TokenC, TokenOut: in.Path.TokenA, FeePPM: hop3Pool.FeePPM},
		},
		InputAmount:       inputAmount,
		ExpectedOutput:    output,
		ExpectedProfitUSD: profitUSD,
		GasEstimate:       totalGas,
		GasCostUSD:        gasCostUSD,
		NetProfitUSD:      netProfitUSD,
		BlockNumber:       in.BlockNumber,
		Timestamp:         time.Now(),
	}
	if inputAmount.Sign() > 0 {
		opp.ProfitPercentage = decimalFromWei(profitWei, tokenA.Decimals).
			Div(decimalFromWei(inputAmount, tokenA.Decimals)).
			Mul(decimal.NewFromInt(100))
	}
	return opp, nil
}

// sizeInput implements step A: input_amount = swap_usd / price, scaled to
// decimals, falling back to OptimalInputAmount when price is unknown.
func (e *Evaluator) sizeInput(tokenA types.TokenConfig, swapUSD float64) *big.Int {
	price, ok := e.prices.GetPriceByAddress(tokenA.ChainID, tokenA.Address)
	if !ok || price.IsZero() {
		if tokenA.OptimalInputAmount != nil {
			return new(big.Int).Set(tokenA.OptimalInputAmount)
		}
		return nil
	}
	usd := decimal.NewFromFloat(swapUSD)
	scale := decimal.New(1, int32(tokenA.Decimals))
	amount := usd.Div(price).Mul(scale)
	return amount.BigInt()
}

// bestPoolForHop implements step B: pick the candidate pool maximizing
// amount_out under the local-vs-on-chain policy, tie-breaking on lower fee.
func (e *Evaluator) bestPoolForHop(ctx context.Context, chainID uint64, tokenIn, tokenOut common.Address, amountIn *big.Int, notionalUSD float64) (types.Pool, bool) {
	candidates := e.pools.PoolsForPair(chainID, tokenIn, tokenOut)
	if len(candidates) == 0 {
		return types.Pool{}, false
	}

	var best types.Pool
	var bestOut *big.Int
	haveBest := false

	for _, pool := range candidates {
		zeroForOne := tokenIn == pool.Token0
		state, ok := e.cache.State(pool.Address)
		if !ok {
			continue
		}
		out, err := e.quoter.Quote(ctx, state, tokenIn, tokenOut, amountIn, zeroForOne, pool.FeePPM, notionalUSD)
		if err != nil || out == nil || out.Sign() <= 0 {
			continue
		}
		if !haveBest {
			best, bestOut, haveBest = pool, out, true
			continue
		}
		switch out.Cmp(bestOut) {
		case 1:
			best, bestOut = pool, out
		case 0:
			if pool.FeePPM < best.FeePPM {
				best, bestOut = pool, out
			}
		}
	}
	return best, haveBest
}

func decimalFromWei(wei *big.Int, decimals uint8) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -int32(decimals))
}
