// Package dispatcher implements the execution pipeline: pre-flight gates,
// flash-loan pool selection, calldata construction, simulation, the three
// send modes, and confirmation with revert decoding.
package dispatcher

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/flashtri/arbengine/internal/evaluator"
	"github.com/flashtri/arbengine/internal/flashloan"
	"github.com/flashtri/arbengine/internal/metrics"
	"github.com/flashtri/arbengine/internal/priceservice"
	"github.com/flashtri/arbengine/internal/relay"
	"github.com/flashtri/arbengine/internal/revert"
	"github.com/flashtri/arbengine/internal/types"
	"github.com/flashtri/arbengine/pkg/ethrpc"
	"github.com/flashtri/arbengine/pkg/logger"
)

// SendMode selects how a built transaction reaches the network, per
// spec.md §4.6's three egress modes.
type SendMode int

const (
	SendNormal SendMode = iota
	SendFlashbots
	SendBoth
)

func (m SendMode) String() string {
	switch m {
	case SendFlashbots:
		return "flashbots"
	case SendBoth:
		return "both"
	default:
		return "normal"
	}
}

// Config bundles a Dispatcher's tunables.
type Config struct {
	Mode                SendMode
	ChainID             *big.Int
	WalletKey           *ecdsa.PrivateKey
	ArbitrageContract   common.Address
	DedupWindow         time.Duration
	Amount              AmountStrategy
	FallbackGasLimit    uint64
	ProfitToken         common.Address
	ProfitConvertFee    uint32
	GasThresholds       []evaluator.GasThresholdBin
	ConfirmPollInterval time.Duration
	ConfirmTimeout      time.Duration

	// GasPriceMultiplier and MaxGasPriceGwei implement spec.md §4.6's
	// Normal-mode gas pricing rule: gas_price = base_fee × multiplier,
	// capped at max_gas_price_gwei.
	GasPriceMultiplier decimal.Decimal
	MaxGasPriceGwei    decimal.Decimal

	// MaxBlockRetries bounds the Flashbots send mode's per-block retry
	// loop (spec.md §4.6's offset ∈ [0, max_block_retries)).
	MaxBlockRetries int
}

// FlashbotsOutcome is a bundle-send attempt's terminal status, per
// spec.md §4.6's "Return Included / NotIncluded / SimulationFailed /
// SendFailed".
type FlashbotsOutcome int

const (
	Included FlashbotsOutcome = iota
	NotIncluded
	SimulationFailed
	SendFailed
)

func (o FlashbotsOutcome) String() string {
	switch o {
	case Included:
		return "included"
	case SimulationFailed:
		return "simulation_failed"
	case SendFailed:
		return "send_failed"
	default:
		return "not_included"
	}
}

// Result is the outcome of one Dispatch call.
type Result struct {
	Opportunity *types.Opportunity
	Mode        SendMode
	TxHashes    []common.Hash
	Confirmed   bool
	Reverted    bool
	Profit      *big.Int
	RevertInfo  *revert.Decoded

	// FlashbotsOutcome is set for SendFlashbots and SendBoth, nil for
	// SendNormal.
	FlashbotsOutcome *FlashbotsOutcome
}

// Dispatcher implements spec.md §4.6's execution pipeline.
type Dispatcher struct {
	rpc    *ethrpc.Client
	relay  *relay.Client
	flash  *flashloan.Selector
	prices priceservice.PriceService
	tokens map[types.TokenKey]types.TokenConfig
	log    *logger.Logger
	cfg    Config

	walletAddr common.Address
	signer     gethtypes.Signer

	state *executionState

	ownerOnce bool
	ownerAddr common.Address

	chainLabel string
}

// New builds a Dispatcher. relayClient may be nil when cfg.Mode ==
// SendNormal, since no bundle is ever built in that mode.
func New(rpc *ethrpc.Client, relayClient *relay.Client, flash *flashloan.Selector, prices priceservice.PriceService, tokens map[types.TokenKey]types.TokenConfig, cfg Config, log *logger.Logger) *Dispatcher {
	if cfg.GasThresholds == nil {
		cfg.GasThresholds = evaluator.DefaultThresholds()
	}
	if cfg.DedupWindow == 0 {
		cfg.DedupWindow = 30 * time.Second
	}
	if cfg.ConfirmPollInterval == 0 {
		cfg.ConfirmPollInterval = time.Second
	}
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.GasPriceMultiplier.IsZero() {
		cfg.GasPriceMultiplier = decimal.NewFromFloat(1.1)
	}
	if cfg.MaxGasPriceGwei.IsZero() {
		cfg.MaxGasPriceGwei = decimal.NewFromInt(500)
	}
	if cfg.MaxBlockRetries == 0 {
		cfg.MaxBlockRetries = 3
	}
	return &Dispatcher{
		rpc:        rpc,
		relay:      relayClient,
		flash:      flash,
		prices:     prices,
		tokens:     tokens,
		log:        log.Named("dispatcher"),
		cfg:        cfg,
		walletAddr: crypto.PubkeyToAddress(cfg.WalletKey.PublicKey),
		signer:     gethtypes.NewLondonSigner(cfg.ChainID),
		state:      newExecutionState(cfg.DedupWindow),
		chainLabel: cfg.ChainID.String(),
	}
}

// Dispatch runs the full pipeline for a single Opportunity: gates, pool
// selection, calldata, simulation, send, and confirmation.
func (d *Dispatcher) Dispatch(ctx context.Context, opp *types.Opportunity, gasPriceGwei float64) (*Result, error) {
	if len(opp.Path) != 3 {
		return nil, ErrPathLength
	}
	if !opp.IsClosedCycle() {
		return nil, fmt.Errorf("dispatcher: path is not a closed cycle")
	}

	if err := d.checkOwner(ctx); err != nil {
		return nil, err
	}

	pathSig := opp.PathSignature()
	if err := d.state.checkDedup(pathSig); err != nil {
		return nil, err
	}

	hopPools := [3]common.Address{opp.Path[0].PoolAddress, opp.Path[1].PoolAddress, opp.Path[2].PoolAddress}
	if err := d.state.acquirePools(hopPools); err != nil {
		return nil, err
	}
	defer d.state.releasePools(hopPools)

	result := &Result{Opportunity: opp, Mode: d.cfg.Mode}

	borrowToken := opp.Path[0].TokenIn
	excluded := map[common.Address]struct{}{hopPools[0]: {}, hopPools[1]: {}, hopPools[2]: {}}
	candidateTokens := []common.Address{opp.Path[0].TokenOut, opp.Path[1].TokenOut}
	flashPool, err := d.flash.SelectCached(ctx, borrowToken, excluded, candidateTokens)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: flash pool selection: %w", err)
	}

	tokenA, haveTokenA := d.tokens[types.TokenKey{ChainID: opp.ChainID, Address: borrowToken}]
	decimals := uint8(18)
	if haveTokenA {
		decimals = tokenA.Decimals
	}
	priceA, _ := d.prices.GetPriceByAddress(opp.ChainID, borrowToken)

	amountIn := d.cfg.Amount.Apply(opp.InputAmount, decimals, priceA)
	minProfitWei := d.minProfitWei(opp.ChainID, borrowToken, decimals, gasPriceGwei)

	params := ArbitrageParams{
		FlashPool:        flashPool.Address,
		FlashPoolFee:     flashPool.FeePPM,
		TokenA:           opp.Path[0].TokenIn,
		TokenB:           opp.Path[0].TokenOut,
		TokenC:           opp.Path[1].TokenOut,
		Fee1:             opp.Path[0].FeePPM,
		Fee2:             opp.Path[1].FeePPM,
		Fee3:             opp.Path[2].FeePPM,
		AmountIn:         amountIn,
		MinProfit:        minProfitWei,
		ProfitToken:      d.cfg.ProfitToken,
		ProfitConvertFee: d.cfg.ProfitConvertFee,
	}
	calldata, err := EncodeExecuteArbitrage(params)
	if err != nil {
		return nil, err
	}

	nonce, err := d.rpc.NonceAt(ctx, d.walletAddr)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: fetch nonce: %w", err)
	}
	baseFee, err := d.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: suggest gas price: %w", err)
	}
	gasPrice := d.applyGasPriceCap(baseFee)
	gasLimit := d.cfg.FallbackGasLimit
	if gasLimit == 0 {
		// the Evaluator's GasEstimate already includes the flash-loan
		// callback overhead
		gasLimit = opp.GasEstimate
	}

	header, err := d.rpc.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: fetch current header: %w", err)
	}
	targetBlock := header.Number.Uint64() + 1

	metrics.Metrics.SendModeTotal.WithLabelValues(d.chainLabel, d.cfg.Mode.String()).Inc()

	switch d.cfg.Mode {
	case SendNormal:
		tx, signErr := d.buildAndSignTx(nonce, gasPrice, gasLimit, calldata)
		if signErr != nil {
			return nil, signErr
		}
		if err := d.rpc.SendTransaction(ctx, tx); err != nil {
			return nil, fmt.Errorf("dispatcher: send transaction: %w", err)
		}
		result.TxHashes = []common.Hash{tx.Hash()}
		d.confirm(ctx, result, tx.Hash())

	case SendFlashbots:
		tx, signErr := d.buildAndSignTx(nonce, gasPrice, gasLimit, calldata)
		if signErr != nil {
			return nil, signErr
		}
		outcome, err := d.sendBundleWithRetries(ctx, tx, targetBlock)
		result.TxHashes = []common.Hash{tx.Hash()}
		result.FlashbotsOutcome = &outcome
		if err != nil {
			metrics.Metrics.DispatchOutcomeTotal.WithLabelValues(d.chainLabel, outcome.String()).Inc()
			return result, err
		}
		if outcome != Included {
			metrics.Metrics.DispatchOutcomeTotal.WithLabelValues(d.chainLabel, outcome.String()).Inc()
			break
		}
		d.confirm(ctx, result, tx.Hash())

	case SendBoth:
		normalTx, err := d.buildAndSignTx(nonce, gasPrice, gasLimit, calldata)
		if err != nil {
			return nil, err
		}
		flashbotsTx, err := d.buildAndSignTx(nonce+1, gasPrice, gasLimit, calldata)
		if err != nil {
			return nil, err
		}

		var flashbotsOutcome FlashbotsOutcome
		var flashbotsErr error
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return d.rpc.SendTransaction(gctx, normalTx)
		})
		g.Go(func() error {
			// Flashbots leg failures don't abort the mempool leg, per
			// spec.md §4.6's "Both mode proceeds to mempool only".
			flashbotsOutcome, flashbotsErr = d.sendBundleWithRetries(gctx, flashbotsTx, targetBlock)
			return nil
		})
		if err := g.Wait(); err != nil {
			d.log.Warn("both-mode parallel send had a failure", "error", err)
		}
		if flashbotsErr != nil {
			d.log.Warn("both-mode flashbots leg failed", "outcome", flashbotsOutcome.String(), "error", flashbotsErr)
		}

		result.TxHashes = []common.Hash{normalTx.Hash()}
		result.FlashbotsOutcome = &flashbotsOutcome
		if flashbotsErr == nil && flashbotsOutcome == Included {
			result.TxHashes = append(result.TxHashes, flashbotsTx.Hash())
		}
		d.confirmAny(ctx, result, result.TxHashes)
	}

	d.state.recordExecuted(pathSig)
	return result, nil
}

// checkOwner verifies the wallet is the contract's owner, caching the
// result for subsequent calls (spec.md §4.6's owner pre-flight gate).
func (d *Dispatcher) checkOwner(ctx context.Context) error {
	if d.ownerOnce {
		if d.ownerAddr != d.walletAddr {
			return ErrNotOwner
		}
		return nil
	}
	data, err := EncodeOwnerCall()
	if err != nil {
		return err
	}
	out, err := d.rpc.CallContract(ctx, ethereum.CallMsg{To: &d.cfg.ArbitrageContract, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("dispatcher: owner check: %w", err)
	}
	owner, err := DecodeOwnerResult(out)
	if err != nil {
		return err
	}
	d.ownerAddr = owner
	d.ownerOnce = true
	if owner != d.walletAddr {
		return ErrNotOwner
	}
	return nil
}

// minProfitWei converts the dynamic gas-indexed USD threshold into a
// token_a wei amount using the cached price, per spec.md §4.6's
// "min_profit is the USD threshold converted to token_a wei".
func (d *Dispatcher) minProfitWei(chainID uint64, tokenA common.Address, decimals uint8, gasPriceGwei float64) *big.Int {
	thresholdUSD := evaluator.MinNetProfitUSD(d.cfg.GasThresholds, gasPriceGwei)
	price, ok := d.prices.GetPriceByAddress(chainID, tokenA)
	if !ok || price.IsZero() {
		return big.NewInt(0)
	}
	scale := decimal.New(1, int32(decimals))
	return thresholdUSD.Div(price).Mul(scale).BigInt()
}

// applyGasPriceCap implements spec.md §4.6's Normal-mode gas pricing rule:
// gas_price = base_fee × multiplier, capped at max_gas_price_gwei.
func (d *Dispatcher) applyGasPriceCap(baseFee *big.Int) *big.Int {
	adjusted := decimal.NewFromBigInt(baseFee, 0).Mul(d.cfg.GasPriceMultiplier).BigInt()
	capWei := d.cfg.MaxGasPriceGwei.Mul(decimal.New(1, 9)).BigInt()
	if adjusted.Cmp(capWei) > 0 {
		return capWei
	}
	return adjusted
}

func (d *Dispatcher) buildAndSignTx(nonce uint64, gasPrice *big.Int, gasLimit uint64, data []byte) (*gethtypes.Transaction, error) {
	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &d.cfg.ArbitrageContract,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := gethtypes.SignTx(tx, d.signer, d.cfg.WalletKey)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: sign transaction: %w", err)
	}
	return signed, nil
}

// blockInclusionPolls bounds how long waitForBlockInclusion polls a single
// target block before giving up on it, expressed as a multiple of
// ConfirmPollInterval (roughly one block's worth of wall-clock time).
const blockInclusionPolls = 12

// sendBundleWithRetries implements spec.md §4.6's Flashbots send mode: for
// offset ∈ [0, max_block_retries), target_block = baseBlock + offset,
// simulate via eth_callBundle, abort on revert/error, send via
// eth_sendBundle, then poll for inclusion by comparing the target block's
// contents against the expected tx hash before advancing to the next
// offset.
func (d *Dispatcher) sendBundleWithRetries(ctx context.Context, tx *gethtypes.Transaction, baseBlock uint64) (FlashbotsOutcome, error) {
	txHash := tx.Hash()
	for offset := 0; offset < d.cfg.MaxBlockRetries; offset++ {
		targetBlock := baseBlock + uint64(offset)

		sim, err := d.relay.CallBundle(ctx, []*gethtypes.Transaction{tx}, targetBlock)
		if err != nil {
			return SimulationFailed, fmt.Errorf("dispatcher: bundle simulation: %w", err)
		}
		if sim.Reverted() {
			return SimulationFailed, fmt.Errorf("dispatcher: bundle simulation reverted")
		}

		sendRes, err := d.relay.SendBundle(ctx, []*gethtypes.Transaction{tx}, targetBlock)
		if err != nil {
			return SendFailed, fmt.Errorf("dispatcher: send bundle: %w", err)
		}
		d.log.Info("bundle sent", "bundle_hash", sendRes.BundleHash, "target_block", targetBlock, "tx", txHash.Hex())

		included, err := d.waitForBlockInclusion(ctx, targetBlock, txHash)
		if err != nil {
			return NotIncluded, err
		}
		if included {
			return Included, nil
		}
	}
	return NotIncluded, nil
}

// waitForBlockInclusion polls for targetBlock and reports whether it
// contains a transaction matching txHash, per spec.md §4.6's "poll for
// inclusion by comparing block contents against expected tx hash".
func (d *Dispatcher) waitForBlockInclusion(ctx context.Context, targetBlock uint64, txHash common.Hash) (bool, error) {
	deadline := time.Now().Add(d.cfg.ConfirmPollInterval * blockInclusionPolls)
	ticker := time.NewTicker(d.cfg.ConfirmPollInterval)
	defer ticker.Stop()

	for {
		block, err := d.rpc.BlockByNumber(ctx, new(big.Int).SetUint64(targetBlock))
		if err == nil && block != nil {
			for _, includedTx := range block.Transactions() {
				if includedTx.Hash() == txHash {
					return true, nil
				}
			}
			return false, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// confirm polls for a single transaction's receipt, decoding a revert
// reason on failure.
func (d *Dispatcher) confirm(ctx context.Context, result *Result, txHash common.Hash) {
	receipt, err := d.pollReceipt(ctx, txHash)
	if err != nil {
		metrics.Metrics.DispatchOutcomeTotal.WithLabelValues(d.chainLabel, "timeout").Inc()
		d.log.Warn("confirmation timed out", "tx", txHash.Hex(), "error", err)
		return
	}
	d.applyReceipt(ctx, result, receipt)
}

// confirmAny polls for whichever of the given transaction hashes confirms
// first (spec.md §4.6's Both-mode "first to land wins" semantics).
func (d *Dispatcher) confirmAny(ctx context.Context, result *Result, hashes []common.Hash) {
	deadline := time.Now().Add(d.cfg.ConfirmTimeout)
	ticker := time.NewTicker(d.cfg.ConfirmPollInterval)
	defer ticker.Stop()

	for {
		for _, h := range hashes {
			receipt, err := d.rpc.TransactionReceipt(ctx, h)
			if err == nil && receipt != nil {
				d.applyReceipt(ctx, result, receipt)
				return
			}
		}
		if time.Now().After(deadline) {
			metrics.Metrics.DispatchOutcomeTotal.WithLabelValues(d.chainLabel, "timeout").Inc()
			d.log.Warn("confirmation timed out", "txs", hashes)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) pollReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	deadline := time.Now().Add(d.cfg.ConfirmTimeout)
	ticker := time.NewTicker(d.cfg.ConfirmPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := d.rpc.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) && err != nil {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("dispatcher: timed out waiting for receipt %s", txHash.Hex())
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// applyReceipt fills in the confirmation outcome, replaying the
// transaction at its mined block via eth_call to recover a revert reason
// when the receipt's status is failure.
func (d *Dispatcher) applyReceipt(ctx context.Context, result *Result, receipt *gethtypes.Receipt) {
	result.Confirmed = true
	if receipt.Status == gethtypes.ReceiptStatusSuccessful {
		metrics.Metrics.DispatchOutcomeTotal.WithLabelValues(d.chainLabel, "confirmed").Inc()
		for _, lg := range receipt.Logs {
			if len(lg.Topics) > 0 && lg.Topics[0] == arbitrageExecutedEventTopic {
				if profit, ok := ParseProfitFromLog(lg.Data); ok {
					result.Profit = profit
				}
				break
			}
		}
		return
	}

	result.Reverted = true
	metrics.Metrics.DispatchOutcomeTotal.WithLabelValues(d.chainLabel, "reverted").Inc()
	decoded := d.replayRevert(ctx, receipt)
	result.RevertInfo = &decoded
}

// replayRevert re-issues the transaction's call at its mined block so the
// node returns the revert reason, then decodes it.
func (d *Dispatcher) replayRevert(ctx context.Context, receipt *gethtypes.Receipt) revert.Decoded {
	tx, _, err := d.rpc.Raw().TransactionByHash(ctx, receipt.TxHash)
	if err != nil || tx == nil {
		return revert.DecodeFromErrorString("unable to fetch transaction for revert replay")
	}
	msg := ethereum.CallMsg{
		From: d.walletAddr,
		To:   tx.To(),
		Data: tx.Data(),
	}
	_, callErr := d.rpc.CallContract(ctx, msg, receipt.BlockNumber)
	if callErr == nil {
		return revert.DecodeFromErrorString("transaction reverted but replay call succeeded")
	}
	return revert.DecodeFromErrorString(callErr.Error())
}
