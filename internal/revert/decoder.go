// Package revert decodes ABI-encoded EVM revert data — standard
// Error(string)/Panic(uint256), the two arbitrage-specific custom errors the
// execution contract defines, and free-form error strings — into a
// structured, side-effect-free diagnostic.
package revert

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Kind tags the shape of a decoded revert.
type Kind int

const (
	KindUnknown Kind = iota
	KindErrorString
	KindPanic
	KindCustomError
	KindEmptyRevert
)

func (k Kind) String() string {
	switch k {
	case KindErrorString:
		return "ErrorString"
	case KindPanic:
		return "Panic"
	case KindCustomError:
		return "CustomError"
	case KindEmptyRevert:
		return "EmptyRevert"
	default:
		return "Unknown"
	}
}

// Analysis carries arbitrage-specific diagnostic detail.
type Analysis struct {
	PossibleCauses []string
	Suggestions    []string
	IsRetryable    bool
}

// Decoded is the result of decoding one revert payload.
type Decoded struct {
	Kind     Kind
	Message  string
	RawHex   string
	Analysis *Analysis
}

var (
	selectorErrorString            = [4]byte{0x08, 0xc3, 0x79, 0xa0}
	selectorPanic                   = [4]byte{0x4e, 0x48, 0x7b, 0x71}
	selectorArbitrageFailedDetailed = [4]byte{0x38, 0x4f, 0xd5, 0x83}
	selectorProfitBelowMinimum      = [4]byte{0xcc, 0x9c, 0x44, 0x04}
)

var panicCodes = map[uint64]string{
	0x00: "generic/undefined error",
	0x01: "assertion failed (assert)",
	0x11: "arithmetic overflow/underflow",
	0x12: "division by zero",
	0x21: "invalid enum value",
	0x22: "invalid storage byte array encoding",
	0x31: "pop on empty array",
	0x32: "array out-of-bounds access",
	0x41: "out-of-memory allocation too large",
	0x51: "call to an uninitialized internal function",
}

// knownTokens maps a handful of common mainnet token addresses to a display
// symbol and decimals, used only for human-readable formatting in
// ArbitrageFailed_Detailed messages. Unrecognized tokens fall back to
// "UNKNOWN"/18.
var knownTokens = map[common.Address]struct {
	Symbol   string
	Decimals uint8
}{
	common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"): {"USDT", 6},
	common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"): {"USDC", 6},
	common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"): {"WETH", 18},
	common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"): {"DAI", 18},
	common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"): {"WBTC", 8},
}

func tokenInfo(addr common.Address) (string, uint8) {
	if info, ok := knownTokens[addr]; ok {
		return info.Symbol, info.Decimals
	}
	return "UNKNOWN", 18
}

// hexRunPatterns mirrors the original's regex cascade: prefer a hex run
// embedded in a recognizable wrapper, fall back to any bare 0x run >= 10
// chars (at least a 4-byte selector).
var hexRunPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Bytes\((0x[0-9a-fA-F]+)\)`),
	regexp.MustCompile(`revert data[:\s]+(0x[0-9a-fA-F]+)`),
	regexp.MustCompile(`reverted[:\s]+(0x[0-9a-fA-F]+)`),
	regexp.MustCompile(`(0x[0-9a-fA-F]{8,})`),
}

// DecodeFromErrorString decodes a free-form error string — typically the
// message surfaced by a JSON-RPC eth_call/eth_sendTransaction failure —
// by first trying to locate an embedded hex revert payload, then falling
// back to pattern-matching the message text itself.
func DecodeFromErrorString(errMsg string) Decoded {
	if data, ok := extractHex(errMsg); ok {
		return DecodeRevertData(data)
	}
	return parseErrorMessage(errMsg)
}

// DecodeRevertData decodes raw revert bytes (as returned by eth_call) into
// a structured Decoded result. Side-effect-free.
func DecodeRevertData(data []byte) Decoded {
	if len(data) == 0 {
		return Decoded{
			Kind:    KindEmptyRevert,
			Message: "empty revert (no error message)",
			RawHex:  "0x",
			Analysis: &Analysis{
				PossibleCauses: []string{
					"require() condition failed without a message",
					"revert() called with no arguments",
				},
				Suggestions: []string{"check require() statements in the contract"},
				IsRetryable: false,
			},
		}
	}

	rawHex := "0x" + common.Bytes2Hex(data)

	if len(data) < 4 {
		return Decoded{Kind: KindUnknown, Message: "data too short to parse: " + rawHex, RawHex: rawHex}
	}

	var selector [4]byte
	copy(selector[:], data[:4])
	payload := data[4:]

	switch selector {
	case selectorErrorString:
		return decodeErrorString(payload, rawHex)
	case selectorPanic:
		return decodePanic(payload, rawHex)
	case selectorArbitrageFailedDetailed:
		return decodeArbitrageFailedDetailed(payload, rawHex)
	case selectorProfitBelowMinimum:
		return decodeProfitBelowMinimum(payload, rawHex)
	default:
		return Decoded{
			Kind:    KindCustomError,
			Message: fmt.Sprintf("custom error (selector: 0x%x)", selector),
			RawHex:  rawHex,
			Analysis: &Analysis{
				PossibleCauses: []string{"contract uses a custom error type"},
				Suggestions:    []string{"check the contract ABI to decode this error"},
				IsRetryable:    false,
			},
		}
	}
}

func decodeErrorString(payload []byte, rawHex string) Decoded {
	if msg, ok := abiDecodeString(payload); ok {
		return Decoded{Kind: KindErrorString, Message: msg, RawHex: rawHex, Analysis: analyzeArbitrageError(msg)}
	}
	if msg, ok := tryExtractUTF8(payload); ok {
		return Decoded{Kind: KindErrorString, Message: msg, RawHex: rawHex, Analysis: analyzeArbitrageError(msg)}
	}
	return Decoded{Kind: KindErrorString, Message: "Error(string) but message could not be decoded", RawHex: rawHex}
}

func decodePanic(payload []byte, rawHex string) Decoded {
	code, ok := abiDecodeUint256(payload)
	if !ok {
		return Decoded{Kind: KindPanic, Message: "Panic but code could not be decoded", RawHex: rawHex}
	}
	codeU64 := code.Uint64()
	desc, known := panicCodes[codeU64]
	if !known {
		desc = "unknown panic code"
	}
	return Decoded{
		Kind:    KindPanic,
		Message: fmt.Sprintf("Panic(0x%02x): %s", codeU64, desc),
		RawHex:  rawHex,
		Analysis: &Analysis{
			PossibleCauses: []string{fmt.Sprintf("Solidity panic code 0x%02x", codeU64), desc},
			Suggestions:    []string{"this is usually an internal contract logic error", "check for overflow/underflow or array bounds"},
			IsRetryable:    false,
		},
	}
}

// formatAmount renders a wei-scale amount to 4 decimal places for the given
// token decimals, matching the original's human-readable formatting.
func formatAmount(amount *big.Int, decimals uint8) string {
	if amount == nil {
		amount = big.NewInt(0)
	}
	f := new(big.Float).SetInt(amount)
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f.Quo(f, divisor)
	return f.Text('f', 4)
}

func formatSigned(amount *big.Int, decimals uint8) string {
	if amount.Sign() >= 0 {
		return formatAmount(amount, decimals)
	}
	return "-" + formatAmount(new(big.Int).Neg(amount), decimals)
}

func decodeArbitrageFailedDetailed(payload []byte, rawHex string) Decoded {
	args, ok := abiDecodeArbitrageFailedDetailed(payload)
	if !ok {
		return Decoded{Kind: KindCustomError, Message: "ArbitrageFailed_Detailed but arguments could not be decoded", RawHex: rawHex}
	}

	symbolA, decA := tokenInfo(args.TokenA)
	symbolB, decB := tokenInfo(args.TokenB)
	symbolC, decC := tokenInfo(args.TokenC)

	var shortfall *big.Int
	shortfallStr := "0.0000"
	if args.AmountOwed.Cmp(args.Step3Out) > 0 {
		shortfall = new(big.Int).Sub(args.AmountOwed, args.Step3Out)
		shortfallStr = formatAmount(shortfall, decA)
	}

	message := fmt.Sprintf(
		"arbitrage failed: %s\n"+
			"├─ token path: %s -> %s -> %s -> %s\n"+
			"├─ borrowed amount: %s %s\n"+
			"├─ step1 output (%s->%s): %s %s\n"+
			"├─ step2 output (%s->%s): %s %s\n"+
			"├─ step3 output (%s->%s): %s %s\n"+
			"├─ amount owed: %s %s\n"+
			"└─ profit/loss: %s %s",
		args.Reason,
		symbolA, symbolB, symbolC, symbolA,
		formatAmount(args.InputAmount, decA), symbolA,
		symbolA, symbolB, formatAmount(args.Step1Out, decB), symbolB,
		symbolB, symbolC, formatAmount(args.Step2Out, decC), symbolC,
		symbolC, symbolA, formatAmount(args.Step3Out, decA), symbolA,
		formatAmount(args.AmountOwed, decA), symbolA,
		formatSigned(args.ProfitOrLoss, decA), symbolA,
	)

	return Decoded{
		Kind:    KindCustomError,
		Message: message,
		RawHex:  rawHex,
		Analysis: &Analysis{
			PossibleCauses: []string{
				fmt.Sprintf("failure reason: %s", args.Reason),
				fmt.Sprintf("insufficient output: needed %s %s but only had %s %s, shortfall %s %s",
					formatAmount(args.AmountOwed, decA), symbolA,
					formatAmount(args.Step3Out, decA), symbolA,
					shortfallStr, symbolA),
				fmt.Sprintf("loss amount: %s %s", formatSigned(args.ProfitOrLoss, decA), symbolA),
			},
			Suggestions: []string{
				"price likely moved during execution, reducing output",
				"may have been frontrun by another arbitrageur",
				"raise the profit threshold for a larger safety margin",
			},
			IsRetryable: true,
		},
	}
}

func decodeProfitBelowMinimum(payload []byte, rawHex string) Decoded {
	args, ok := abiDecodeProfitBelowMinimum(payload)
	if !ok {
		return Decoded{Kind: KindCustomError, Message: "ProfitBelowMinimum but arguments could not be decoded", RawHex: rawHex}
	}

	format6 := func(v *big.Int) string {
		f := new(big.Float).SetInt(v)
		f.Quo(f, big.NewFloat(1_000_000))
		return f.Text('f', 4)
	}

	message := fmt.Sprintf(
		"profit below minimum\n"+
			"├─ actual profit: %s | %s (6 decimals)\n"+
			"├─ minimum required: %s | %s (6 decimals)\n"+
			"├─ input amount: %s | %s (6 decimals)\n"+
			"└─ output amount: %s | %s (6 decimals)",
		args.Actual, format6(args.Actual),
		args.Min, format6(args.Min),
		args.In, format6(args.In),
		args.Out, format6(args.Out),
	)

	return Decoded{
		Kind:    KindCustomError,
		Message: message,
		RawHex:  rawHex,
		Analysis: &Analysis{
			PossibleCauses: []string{
				fmt.Sprintf("profit %s below minimum required %s", format6(args.Actual), format6(args.Min)),
				"possible cause: price movement reduced the realized profit",
				"possible cause: gas cost or flash-loan fee ate into the margin",
			},
			Suggestions: []string{
				"adjust the minimum profit threshold",
				"pick a flash-loan pool with a lower fee",
				"raise the profit filter to avoid marginal arbitrage",
			},
			IsRetryable: false,
		},
	}
}

// analyzeArbitrageError pattern-matches a decoded (or raw) message against
// known arbitrage failure phrases to attach causes/suggestions.
func analyzeArbitrageError(message string) *Analysis {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "insufficient output") || strings.Contains(lower, "repayment"):
		return &Analysis{
			PossibleCauses: []string{
				"triangular arbitrage output insufficient to repay flash-loan principal+fee",
				"possible cause 1: price changed between discovery and execution",
				"possible cause 2: frontrun by another arbitrageur",
				"possible cause 3: slippage made actual output lower than expected",
				"possible cause 4: profit estimate was inaccurate",
			},
			Suggestions: []string{
				"compare the live price at execution time against the discovery-time price",
				"raise the profit threshold for a larger safety margin",
				"consider Flashbots to avoid being frontrun",
				"reduce execution latency, submit faster",
			},
			IsRetryable: true,
		}
	case strings.Contains(lower, "profit below") || strings.Contains(lower, "minimum"):
		return &Analysis{
			PossibleCauses: []string{
				"arbitrage profit fell below the configured minimum threshold",
				"gas cost or flash-loan fee may have eaten into the profit",
			},
			Suggestions: []string{"adjust the minimum profit threshold", "pick a flash-loan pool with a lower fee"},
			IsRetryable: false,
		}
	case strings.Contains(lower, "not in flash pool"):
		return &Analysis{
			PossibleCauses: []string{"the selected flash-loan pool does not contain the start token"},
			Suggestions:    []string{"check the flash-loan pool selection logic", "make sure the correct pool is used for the flash loan"},
			IsRetryable:    false,
		}
	case strings.Contains(lower, "slippage") || strings.Contains(lower, "too little received") || strings.Contains(lower, "insufficient output amount"):
		return &Analysis{
			PossibleCauses: []string{"transaction slippage exceeded expectations", "insufficient pool liquidity depth"},
			Suggestions:    []string{"reduce the trade size", "increase slippage tolerance", "check pool liquidity"},
			IsRetryable:    true,
		}
	case strings.Contains(lower, "expired") || strings.Contains(lower, "deadline"):
		return &Analysis{
			PossibleCauses: []string{"transaction deadline has passed"},
			Suggestions:    []string{"increase the deadline offset", "optimize execution speed"},
			IsRetryable:    true,
		}
	case strings.Contains(lower, "insufficient liquidity") || strings.Contains(lower, "not enough"):
		return &Analysis{
			PossibleCauses: []string{"pool liquidity insufficient to complete the trade"},
			Suggestions:    []string{"reduce the trade size", "wait for liquidity to recover"},
			IsRetryable:    true,
		}
	default:
		return &Analysis{
			PossibleCauses: []string{fmt.Sprintf("contract returned error: %s", message)},
			Suggestions:    []string{"inspect the contract source to understand this error"},
			IsRetryable:    false,
		}
	}
}

// extractHex scans a free-form error string for an embedded hex revert
// payload, trying a cascade of increasingly permissive patterns.
func extractHex(errMsg string) ([]byte, bool) {
	for _, re := range hexRunPatterns {
		m := re.FindStringSubmatch(errMsg)
		if m == nil {
			continue
		}
		hexStr := m[1]
		if !strings.HasPrefix(hexStr, "0x") && !strings.HasPrefix(hexStr, "0X") {
			continue
		}
		b := common.FromHex(hexStr)
		if len(b) > 0 {
			return b, true
		}
	}
	return nil, false
}

// tryExtractUTF8 attempts to read an ABI-encoded `string` payload
// (offset, length, bytes) directly, for cases where the full abi decoder
// rejects malformed-but-recognizable data.
func tryExtractUTF8(data []byte) (string, bool) {
	if len(data) < 64 {
		return "", false
	}
	offset := new(big.Int).SetBytes(data[0:32]).Uint64()
	if offset >= uint64(len(data)) || offset < 32 {
		return "", false
	}
	lenStart := offset
	if lenStart+32 > uint64(len(data)) {
		return "", false
	}
	length := new(big.Int).SetBytes(data[lenStart : lenStart+32]).Uint64()
	strStart := lenStart + 32
	if strStart+length > uint64(len(data)) {
		return "", false
	}
	b := data[strStart : strStart+length]
	if !isValidUTF8(b) {
		return "", false
	}
	return string(b), true
}

func isValidUTF8(b []byte) bool {
	return strings.ToValidUTF8(string(b), "�") == string(b)
}

// parseErrorMessage is the fallback used when no hex payload could be
// located in the error text at all.
func parseErrorMessage(errMsg string) Decoded {
	lower := strings.ToLower(errMsg)

	if strings.Contains(lower, "insufficient output for repayment") {
		return Decoded{
			Kind:     KindErrorString,
			Message:  "Insufficient output for repayment",
			RawHex:   errMsg,
			Analysis: analyzeArbitrageError("insufficient output for repayment"),
		}
	}

	if strings.Contains(lower, "execution reverted") {
		return Decoded{Kind: KindErrorString, Message: errMsg, RawHex: errMsg, Analysis: analyzeArbitrageError(errMsg)}
	}

	return Decoded{Kind: KindUnknown, Message: errMsg, RawHex: errMsg}
}

// abiDecodeString ABI-decodes a single `string` parameter.
func abiDecodeString(payload []byte) (string, bool) {
	args := abi.Arguments{{Type: mustType("string")}}
	vals, err := args.Unpack(payload)
	if err != nil || len(vals) != 1 {
		return "", false
	}
	s, ok := vals[0].(string)
	return s, ok
}

func abiDecodeUint256(payload []byte) (*big.Int, bool) {
	args := abi.Arguments{{Type: mustType("uint256")}}
	vals, err := args.Unpack(payload)
	if err != nil || len(vals) != 1 {
		return nil, false
	}
	v, ok := vals[0].(*big.Int)
	return v, ok
}

type arbitrageFailedDetailedArgs struct {
	Reason       string
	TokenA       common.Address
	TokenB       common.Address
	TokenC       common.Address
	InputAmount  *big.Int
	Step1Out     *big.Int
	Step2Out     *big.Int
	Step3Out     *big.Int
	AmountOwed   *big.Int
	ProfitOrLoss *big.Int
}

func abiDecodeArbitrageFailedDetailed(payload []byte) (arbitrageFailedDetailedArgs, bool) {
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
	vals, err := args.Unpack(payload)
	if err != nil || len(vals) != 10 {
		return arbitrageFailedDetailedArgs{}, false
	}
	out := arbitrageFailedDetailedArgs{}
	var ok bool
	if out.Reason, ok = vals[0].(string); !ok {
		return out, false
	}
	out.TokenA, _ = vals[1].(common.Address)
	out.TokenB, _ = vals[2].(common.Address)
	out.TokenC, _ = vals[3].(common.Address)
	out.InputAmount, _ = vals[4].(*big.Int)
	out.Step1Out, _ = vals[5].(*big.Int)
	out.Step2Out, _ = vals[6].(*big.Int)
	out.Step3Out, _ = vals[7].(*big.Int)
	out.AmountOwed, _ = vals[8].(*big.Int)
	out.ProfitOrLoss, _ = vals[9].(*big.Int)
	return out, true
}

type profitBelowMinimumArgs struct {
	Actual *big.Int
	Min    *big.Int
	In     *big.Int
	Out    *big.Int
}

func abiDecodeProfitBelowMinimum(payload []byte) (profitBelowMinimumArgs, bool) {
	args := abi.Arguments{
		{Type: mustType("uint256")},
		{Type: mustType("uint256")},
		{Type: mustType("uint256")},
		{Type: mustType("uint256")},
	}
	vals, err := args.Unpack(payload)
	if err != nil || len(vals) != 4 {
		return profitBelowMinimumArgs{}, false
	}
	out := profitBelowMinimumArgs{}
	out.Actual, _ = vals[0].(*big.Int)
	out.Min, _ = vals[1].(*big.Int)
	out.In, _ = vals[2].(*big.Int)
	out.Out, _ = vals[3].(*big.Int)
	return out, true
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}
