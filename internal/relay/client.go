// Package relay implements RelayClient (spec.md §4.6/§9): Flashbots-style
// bundle signing and transmission to a private relay.
package relay

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/time/rate"

	"github.com/flashtri/arbengine/pkg/logger"
)

// relayRateLimit bounds outbound calls to the relay: Flashbots' public
// relay rate-limits callBundle/sendBundle per signer, and a burst of
// simulate-then-send calls for the same opportunity must not trip it.
const relayRateLimit = 5 // requests per second

// Client signs and sends Flashbots-style bundles to a private relay over
// JSON-RPC 2.0, per spec.md §6's "Egress: Flashbots-style relay".
type Client struct {
	httpClient *http.Client
	relayURL   string
	signerKey  *ecdsa.PrivateKey
	signerAddr common.Address
	limiter    *rate.Limiter
	log        *logger.Logger
}

// NewClient builds a relay Client. signerKey is the reputation key used to
// sign the bundle request body (distinct from the wallet key that signs
// the transaction itself).
func NewClient(relayURL string, signerKey *ecdsa.PrivateKey, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		relayURL:   relayURL,
		signerKey:  signerKey,
		signerAddr: crypto.PubkeyToAddress(signerKey.PublicKey),
		limiter:    rate.NewLimiter(rate.Limit(relayRateLimit), relayRateLimit),
		log:        log.Named("relay"),
	}
}

type jsonrpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type jsonrpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SimulationResult is the decoded eth_callBundle response.
type SimulationResult struct {
	BundleHash string              `json:"bundleHash"`
	Results    []simulatedTxResult `json:"results"`
}

type simulatedTxResult struct {
	TxHash  string `json:"txHash"`
	GasUsed uint64 `json:"gasUsed"`
	Error   string `json:"error"`
	Revert  string `json:"revert"`
}

// Reverted reports whether any sub-transaction in the simulation reverted
// or errored, per spec.md §4.6's Flashbots simulation-abort rule.
func (s SimulationResult) Reverted() bool {
	for _, r := range s.Results {
		if r.Error != "" || r.Revert != "" {
			return true
		}
	}
	return false
}

// SendResult is the bundle-send outcome returned to the dispatcher.
type SendResult struct {
	BundleHash string
}

// CallBundle simulates a bundle of signed, RLP-encoded transactions
// targeting blockNumber via eth_callBundle.
func (c *Client) CallBundle(ctx context.Context, txs []*types.Transaction, blockNumber uint64) (SimulationResult, error) {
	rawTxs, err := encodeTxs(txs)
	if err != nil {
		return SimulationResult{}, err
	}
	params := map[string]interface{}{
		"txs":              rawTxs,
		"blockNumber":      fmt.Sprintf("0x%x", blockNumber),
		"stateBlockNumber": "latest",
	}

	var result SimulationResult
	if err := c.call(ctx, "eth_callBundle", []interface{}{params}, &result); err != nil {
		return SimulationResult{}, err
	}
	return result, nil
}

// SendBundle transmits a bundle of signed, RLP-encoded transactions
// targeting blockNumber via eth_sendBundle.
func (c *Client) SendBundle(ctx context.Context, txs []*types.Transaction, blockNumber uint64) (SendResult, error) {
	rawTxs, err := encodeTxs(txs)
	if err != nil {
		return SendResult{}, err
	}
	params := map[string]interface{}{
		"txs":         rawTxs,
		"blockNumber": fmt.Sprintf("0x%x", blockNumber),
	}

	var result struct {
		BundleHash string `json:"bundleHash"`
	}
	if err := c.call(ctx, "eth_sendBundle", []interface{}{params}, &result); err != nil {
		return SendResult{}, err
	}
	return SendResult{BundleHash: result.BundleHash}, nil
}

// BundleStatsResult is the decoded flashbots_getBundleStats response, the
// original_source-sourced supplement spec.md §6 names by method but
// doesn't give its own operation.
type BundleStatsResult struct {
	IsSimulated    bool   `json:"isSimulated"`
	IsSentToMiners bool   `json:"isSentToMiners"`
	IsHighPriority bool   `json:"isHighPriority"`
	SimulatedAt    string `json:"simulatedAt"`
	SubmittedAt    string `json:"submittedAt"`
	SentToMinersAt string `json:"sentToMinersAt"`
}

// BundleStats calls flashbots_getBundleStats for a previously sent bundle.
func (c *Client) BundleStats(ctx context.Context, bundleHash string, blockNumber uint64) (BundleStatsResult, error) {
	params := map[string]interface{}{
		"bundleHash":  bundleHash,
		"blockNumber": fmt.Sprintf("0x%x", blockNumber),
	}
	var result BundleStatsResult
	if err := c.call(ctx, "flashbots_getBundleStats", []interface{}{params}, &result); err != nil {
		return BundleStatsResult{}, err
	}
	return result, nil
}

// call issues one JSON-RPC 2.0 request, signing the body per spec.md §9:
// sign_eip191(keccak256(body)) with header
// X-Flashbots-Signature: {signer_addr}:0x{sig}.
func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("relay: rate limiter: %w", err)
	}

	reqBody := jsonrpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("relay: marshal request: %w", err)
	}

	sigHeader, err := c.signBody(bodyBytes)
	if err != nil {
		return fmt.Errorf("relay: sign request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("relay: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Flashbots-Signature", sigHeader)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("relay: %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("relay: read %s response: %w", method, err)
	}

	var rpcResp jsonrpcResponse
	if err := json.Unmarshal(respBytes, &rpcResp); err != nil {
		return fmt.Errorf("relay: decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("relay: %s returned error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("relay: decode %s result: %w", method, err)
		}
	}
	return nil
}

// signBody implements spec.md §9's relay-signing scheme: the signature
// covers keccak256(body) rendered as lowercase hex, then EIP-191-signed
// (the "\x19Ethereum Signed Message:\n32" prefix applied by SignText).
// Header value is "{signer_addr}:0x{sig}" with v normalized to 27/28.
func (c *Client) signBody(body []byte) (string, error) {
	digest := crypto.Keccak256(body)
	hexDigest := []byte(strings.ToLower(common.Bytes2Hex(digest)))
	hexDigest = append([]byte("0x"), hexDigest...)

	sig, err := crypto.Sign(accounts191Hash(hexDigest), c.signerKey)
	if err != nil {
		return "", err
	}
	if len(sig) == 65 && sig[64] < 27 {
		sig[64] += 27
	}
	return fmt.Sprintf("%s:0x%x", c.signerAddr.Hex(), sig), nil
}

// accounts191Hash applies the EIP-191 "\x19Ethereum Signed Message:\n{len}"
// prefix to the hex-digest text, matching go-ethereum's
// accounts.TextHash/SignText convention (bind's signer helper uses the
// same prefix construction for personal_sign-compatible signatures).
func accounts191Hash(data []byte) []byte {
	msg := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(data), data)
	return crypto.Keccak256([]byte(msg))
}

func encodeTxs(txs []*types.Transaction) ([]string, error) {
	out := make([]string, len(txs))
	for i, tx := range txs {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("relay: encode tx %d: %w", i, err)
		}
		out[i] = "0x" + common.Bytes2Hex(raw)
	}
	return out, nil
}
