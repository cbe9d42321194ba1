package validator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/orderdesk/errs"
	"github.com/coachpo/orderdesk/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func btcusdt() *model.SymbolInfo {
	return &model.SymbolInfo{
		Symbol:     "BTCUSDT",
		Status:     "TRADING",
		BaseAsset:  "BTC",
		QuoteAsset: "USDT",
		Price:      &model.PriceFilter{MinPrice: d("0.01"), MaxPrice: d("1000000"), TickSize: d("0.01")},
		LotSize:    &model.LotSizeFilter{MinQty: d("0.00001"), MaxQty: d("9000"), StepSize: d("0.00001")},
		MinNotional: &model.MinNotionalFilter{
			MinNotional: d("10"),
		},
		PercentPriceBySide: &model.PercentPriceBySideFilter{
			BidMultiplierUp:   d("5"),
			BidMultiplierDown: d("0.2"),
			AskMultiplierUp:   d("5"),
			AskMultiplierDown: d("0.2"),
		},
	}
}

func TestValidateSnapsPriceDownToTick(t *testing.T) {
	res, err := Validate(btcusdt(), model.SideBuy, d("20000.12345"), d("0.5"), nil, Policy{})
	require.NoError(t, err)
	require.True(t, res.PriceAdjusted)
	require.Equal(t, "20000.12", res.Price.String())
	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0], "20000.12")
}

func TestValidateSnapsQtyDownToStep(t *testing.T) {
	res, err := Validate(btcusdt(), model.SideBuy, d("20000"), d("0.00123456"), nil, Policy{})
	require.NoError(t, err)
	require.True(t, res.QtyAdjusted)
	require.Equal(t, "0.00123", res.Qty.String())
}

func TestValidatePassesAlignedValuesUnchanged(t *testing.T) {
	res, err := Validate(btcusdt(), model.SideSell, d("20000.12"), d("0.5"), nil, Policy{})
	require.NoError(t, err)
	require.False(t, res.PriceAdjusted)
	require.False(t, res.QtyAdjusted)
	require.Equal(t, "20000.12", res.Price.String())
	require.Equal(t, "0.5", res.Qty.String())
}

func TestValidateRejectsBelowMinNotionalWithSuggestions(t *testing.T) {
	_, err := Validate(btcusdt(), model.SideBuy, d("50000"), d("0.0001"), nil, Policy{})
	require.Error(t, err)
	require.Equal(t, errs.CanonicalFilterViolation, errs.Canonical(err))
	require.Contains(t, err.Error(), "0.0002")
	require.Contains(t, err.Error(), "100000")
}

func TestValidateRejectsNonTradableSymbol(t *testing.T) {
	info := btcusdt()
	info.Status = "BREAK"
	_, err := Validate(info, model.SideBuy, d("20000"), d("1"), nil, Policy{})
	require.Error(t, err)
	require.Equal(t, errs.CanonicalNotTradable, errs.Canonical(err))
}

func TestValidateRejectsQuantityBelowMinimum(t *testing.T) {
	_, err := Validate(btcusdt(), model.SideBuy, d("20000"), d("0.000001"), nil, Policy{})
	require.Error(t, err)
	require.Equal(t, errs.CanonicalFilterViolation, errs.Canonical(err))
}

func TestValidatePercentPriceBounds(t *testing.T) {
	ref := d("20000")

	// 5x the reference is the ceiling for buys.
	_, err := Validate(btcusdt(), model.SideBuy, d("100000.01"), d("1"), &ref, Policy{})
	require.Error(t, err)
	require.Equal(t, errs.CanonicalFilterViolation, errs.Canonical(err))

	// 0.2x the reference is the floor for sells.
	_, err = Validate(btcusdt(), model.SideSell, d("3999.99"), d("1"), &ref, Policy{})
	require.Error(t, err)

	_, err = Validate(btcusdt(), model.SideBuy, d("21000"), d("1"), &ref, Policy{})
	require.NoError(t, err)
}

func TestValidatePercentPriceWithoutReference(t *testing.T) {
	// Default policy defers the check to the exchange, with a caller-visible
	// warning.
	res, err := Validate(btcusdt(), model.SideBuy, d("999999"), d("1"), nil, Policy{})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0], "percent-price")

	_, err = Validate(btcusdt(), model.SideBuy, d("20000"), d("1"), nil, Policy{RequireReferencePrice: true})
	require.Error(t, err)
	require.Equal(t, errs.CanonicalFilterViolation, errs.Canonical(err))
}

func TestValidateRejectsNonPositiveInputs(t *testing.T) {
	_, err := Validate(btcusdt(), model.SideBuy, d("0"), d("1"), nil, Policy{})
	require.Error(t, err)
	_, err = Validate(btcusdt(), model.SideBuy, d("20000"), d("-1"), nil, Policy{})
	require.Error(t, err)
}

func TestValidateWithoutFiltersAcceptsAnything(t *testing.T) {
	info := model.SymbolInfo{Symbol: "XYZUSDT", Status: "TRADING"}
	res, err := Validate(&info, model.SideBuy, d("123.456789"), d("0.000001"), nil, Policy{})
	require.NoError(t, err)
	require.Equal(t, "123.456789", res.Price.String())
}

func TestValidateWithoutRulesPassesWithWarning(t *testing.T) {
	res, err := Validate(nil, model.SideBuy, d("20000.12345"), d("0.5"), nil, Policy{})
	require.NoError(t, err)
	require.Equal(t, "20000.12345", res.Price.String(), "no rules means no snapping")
	require.Equal(t, "0.5", res.Qty.String())
	require.False(t, res.PriceAdjusted)
	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0], "trading rules unavailable")
}

func TestValidateCollectsWarningPerAdjustment(t *testing.T) {
	res, err := Validate(btcusdt(), model.SideBuy, d("20000.12345"), d("0.00123456"), nil, Policy{})
	require.NoError(t, err)
	require.True(t, res.PriceAdjusted)
	require.True(t, res.QtyAdjusted)
	require.Len(t, res.Warnings, 2)
}

func TestValidateBoundsApplyToRequestedValues(t *testing.T) {
	info := &model.SymbolInfo{
		Symbol: "ODDUSDT",
		Status: "TRADING",
		Price:  &model.PriceFilter{MinPrice: d("10"), MaxPrice: d("100"), TickSize: d("3")},
	}

	// Below the minimum as requested: rejected on the requested value.
	_, err := Validate(info, model.SideBuy, d("9.5"), d("1"), nil, Policy{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "9.5")

	// Within bounds as requested; snapping onto the off-grid tick may land
	// below the minimum and the exchange gets the final say.
	res, err := Validate(info, model.SideBuy, d("11"), d("1"), nil, Policy{})
	require.NoError(t, err)
	require.Equal(t, "9", res.Price.String())
	require.True(t, res.PriceAdjusted)
	require.Len(t, res.Warnings, 1)
}
