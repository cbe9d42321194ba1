package model

import (
	"github.com/shopspring/decimal"
)

// PriceFilter constrains order prices to a tick grid within [MinPrice, MaxPrice].
// A zero TickSize disables grid snapping; a zero MaxPrice disables the upper bound.
type PriceFilter struct {
	MinPrice decimal.Decimal
	MaxPrice decimal.Decimal
	TickSize decimal.Decimal
}

// LotSizeFilter constrains order quantities to a step grid within [MinQty, MaxQty].
type LotSizeFilter struct {
	MinQty   decimal.Decimal
	MaxQty   decimal.Decimal
	StepSize decimal.Decimal
}

// MinNotionalFilter requires price*quantity to reach a minimum value.
type MinNotionalFilter struct {
	MinNotional decimal.Decimal
}

// PercentPriceBySideFilter bounds the order price relative to a reference
// price, with separate multipliers per side.
type PercentPriceBySideFilter struct {
	BidMultiplierUp   decimal.Decimal
	BidMultiplierDown decimal.Decimal
	AskMultiplierUp   decimal.Decimal
	AskMultiplierDown decimal.Decimal
}

// SymbolInfo carries the trading rules for one symbol as reported by the
// exchange. Filter pointers are nil when the exchange did not publish that
// filter; unknown filter types are ignored during parsing.
type SymbolInfo struct {
	Symbol             string
	Status             string
	BaseAsset          string
	QuoteAsset         string
	Price              *PriceFilter
	LotSize            *LotSizeFilter
	MinNotional        *MinNotionalFilter
	PercentPriceBySide *PercentPriceBySideFilter
}

// Tradable reports whether the symbol currently accepts orders.
func (s SymbolInfo) Tradable() bool {
	return s.Status == "TRADING"
}
