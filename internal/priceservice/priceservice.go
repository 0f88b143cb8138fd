// Package priceservice defines the token->USD price collaborator interface
// spec.md §6 names, plus one concrete Binance-ticker-polling implementation
// (the "Binance price poller" spec.md §1 places out of scope for behavior
// design but still names as a real collaborator).
package priceservice

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PriceService looks up USD spot prices by token address or symbol.
// Implementations own their own refresh cadence and synchronization;
// callers only read.
type PriceService interface {
	GetPriceByAddress(chainID uint64, addr common.Address) (decimal.Decimal, bool)
	GetPriceBySymbol(symbol string) (decimal.Decimal, bool)
	GetETHPrice() decimal.Decimal
	GetBNBPrice() decimal.Decimal
}
