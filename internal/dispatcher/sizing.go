package dispatcher

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// AmountStrategyKind tags which ExecutionAmountStrategy variant applies.
type AmountStrategyKind int

const (
	StrategyFullAmount AmountStrategyKind = iota
	StrategyPercentage
	StrategyMaxUSD
	StrategyPercentageWithMaxUSD
)

// AmountStrategy implements spec.md §4.6's "Sizing" step.
type AmountStrategy struct {
	Kind       AmountStrategyKind
	Percentage decimal.Decimal // used by Percentage / PercentageWithMaxUSD, <= 1.0
	MaxUSD     decimal.Decimal // used by MaxUSD / PercentageWithMaxUSD
}

// Apply resizes inputAmount per the strategy. priceUSD is the price of the
// input token, used to convert a USD cap into a wei amount.
func (s AmountStrategy) Apply(inputAmount *big.Int, decimals uint8, priceUSD decimal.Decimal) *big.Int {
	switch s.Kind {
	case StrategyFullAmount:
		return new(big.Int).Set(inputAmount)

	case StrategyPercentage:
		return applyPercentage(inputAmount, s.Percentage)

	case StrategyMaxUSD:
		return clampToUSDCap(inputAmount, decimals, priceUSD, s.MaxUSD)

	case StrategyPercentageWithMaxUSD:
		scaled := applyPercentage(inputAmount, s.Percentage)
		return clampToUSDCap(scaled, decimals, priceUSD, s.MaxUSD)

	default:
		return new(big.Int).Set(inputAmount)
	}
}

func applyPercentage(amount *big.Int, pct decimal.Decimal) *big.Int {
	if pct.GreaterThan(decimal.NewFromInt(1)) {
		pct = decimal.NewFromInt(1)
	}
	return decimal.NewFromBigInt(amount, 0).Mul(pct).BigInt()
}

func clampToUSDCap(amount *big.Int, decimals uint8, priceUSD, capUSD decimal.Decimal) *big.Int {
	if priceUSD.IsZero() || capUSD.IsZero() {
		return new(big.Int).Set(amount)
	}
	notional := decimal.NewFromBigInt(amount, -int32(decimals)).Mul(priceUSD)
	if notional.LessThanOrEqual(capUSD) {
		return new(big.Int).Set(amount)
	}
	scale := decimal.New(1, int32(decimals))
	capped := capUSD.Div(priceUSD).Mul(scale)
	return capped.BigInt()
}
