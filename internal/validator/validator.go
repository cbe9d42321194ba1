// Package validator enforces exchange trading rules on orders before they are
// submitted, adjusting price and quantity downward onto the symbol's grids
// where possible and rejecting what cannot be fixed locally.
package validator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/coachpo/orderdesk/errs"
	"github.com/coachpo/orderdesk/internal/model"
	"github.com/coachpo/orderdesk/internal/observability"
)

// suggestionScale is the precision used for corrective suggestions in
// rejection messages.
const suggestionScale = 8

// Policy controls validation behavior that is configuration dependent.
type Policy struct {
	// RequireReferencePrice rejects orders when the percent-price filter is
	// present but no reference price is available. The default is to let the
	// exchange make the final call.
	RequireReferencePrice bool
}

// Result carries the validated order values. Price and Qty may be lower than
// the requested values when grid snapping applied; every adjustment and every
// skipped check leaves a human-readable entry in Warnings.
type Result struct {
	Price         decimal.Decimal
	Qty           decimal.Decimal
	PriceAdjusted bool
	QtyAdjusted   bool
	Warnings      []string
}

func (r *Result) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Validate checks an order against the symbol's filters in a fixed sequence:
// tradability, price filter, lot size, min notional, then percent price by
// side. Bounds apply to the requested values; grid snapping only ever rounds
// down. An order that cannot satisfy a filter by rounding down is rejected
// with corrective suggestions. A nil info means the trading rules could not
// be obtained; the order passes unchecked with a warning and the exchange
// makes the final call.
func Validate(info *model.SymbolInfo, side model.Side, price, qty decimal.Decimal, refPrice *decimal.Decimal, policy Policy) (Result, error) {
	if price.Sign() <= 0 || qty.Sign() <= 0 {
		return Result{}, errs.New("validator", errs.CodeInvalid,
			errs.WithMessage("price and quantity must be positive"))
	}

	res := Result{Price: price, Qty: qty}

	if info == nil {
		observability.Log().Warn("trading rules unavailable, skipping filter checks")
		res.warn("trading rules unavailable, order submitted without local filter checks")
		return res, nil
	}

	if !info.Tradable() {
		return Result{}, errs.New("validator", errs.CodeInvalid,
			errs.WithCanonicalCode(errs.CanonicalNotTradable),
			errs.WithMessage(fmt.Sprintf("symbol %s is not trading (status %s)", info.Symbol, info.Status)))
	}

	if f := info.Price; f != nil {
		if f.MinPrice.Sign() > 0 && res.Price.LessThan(f.MinPrice) {
			return Result{}, reject(fmt.Sprintf("price %s below minimum %s", res.Price, f.MinPrice),
				"raise the price to at least "+f.MinPrice.String())
		}
		if f.MaxPrice.Sign() > 0 && res.Price.GreaterThan(f.MaxPrice) {
			return Result{}, reject(fmt.Sprintf("price %s above maximum %s", res.Price, f.MaxPrice),
				"lower the price to at most "+f.MaxPrice.String())
		}
		adjusted, changed := snapDown(res.Price, f.TickSize)
		if changed {
			observability.Log().Debug("price snapped to tick grid",
				observability.F("symbol", info.Symbol),
				observability.F("requested", res.Price.String()),
				observability.F("adjusted", adjusted.String()))
			res.warn(fmt.Sprintf("price %s adjusted to %s to fit tick size %s", res.Price, adjusted, f.TickSize))
			res.Price = adjusted
			res.PriceAdjusted = true
		}
	}

	if f := info.LotSize; f != nil {
		if f.MinQty.Sign() > 0 && res.Qty.LessThan(f.MinQty) {
			return Result{}, reject(fmt.Sprintf("quantity %s below minimum %s", res.Qty, f.MinQty),
				"raise the quantity to at least "+f.MinQty.String())
		}
		if f.MaxQty.Sign() > 0 && res.Qty.GreaterThan(f.MaxQty) {
			return Result{}, reject(fmt.Sprintf("quantity %s above maximum %s", res.Qty, f.MaxQty),
				"lower the quantity to at most "+f.MaxQty.String())
		}
		adjusted, changed := snapDown(res.Qty, f.StepSize)
		if changed {
			observability.Log().Debug("quantity snapped to step grid",
				observability.F("symbol", info.Symbol),
				observability.F("requested", res.Qty.String()),
				observability.F("adjusted", adjusted.String()))
			res.warn(fmt.Sprintf("quantity %s adjusted to %s to fit step size %s", res.Qty, adjusted, f.StepSize))
			res.Qty = adjusted
			res.QtyAdjusted = true
		}
	}

	if f := info.MinNotional; f != nil && f.MinNotional.Sign() > 0 {
		notional := res.Price.Mul(res.Qty)
		if notional.LessThan(f.MinNotional) {
			minQty := f.MinNotional.Div(res.Price).RoundUp(suggestionScale)
			minPrice := f.MinNotional.Div(res.Qty).RoundUp(suggestionScale)
			return Result{}, reject(
				fmt.Sprintf("order value %s below minimum notional %s", notional, f.MinNotional),
				fmt.Sprintf("raise quantity to at least %s or price to at least %s", minQty, minPrice))
		}
	}

	if f := info.PercentPriceBySide; f != nil {
		if refPrice == nil || refPrice.Sign() <= 0 {
			if policy.RequireReferencePrice {
				return Result{}, errs.New("validator", errs.CodeInvalid,
					errs.WithCanonicalCode(errs.CanonicalFilterViolation),
					errs.WithMessage("no reference price available for percent-price check"),
					errs.WithRemediation("retry once the ticker price is reachable"))
			}
			observability.Log().Warn("skipping percent-price check, no reference price",
				observability.F("symbol", info.Symbol))
			res.warn("percent-price check skipped, no reference price available")
		} else if err := checkPercentPrice(f, side, res.Price, *refPrice); err != nil {
			return Result{}, err
		}
	}

	return res, nil
}

// snapDown floors value onto the grid defined by step. A zero step disables
// snapping.
func snapDown(value, step decimal.Decimal) (decimal.Decimal, bool) {
	if step.Sign() <= 0 {
		return value, false
	}
	snapped := value.Div(step).Floor().Mul(step)
	return snapped, !snapped.Equal(value)
}

func checkPercentPrice(f *model.PercentPriceBySideFilter, side model.Side, price decimal.Decimal, refPrice decimal.Decimal) error {
	var up, down decimal.Decimal
	switch side {
	case model.SideBuy:
		up, down = f.BidMultiplierUp, f.BidMultiplierDown
	default:
		up, down = f.AskMultiplierUp, f.AskMultiplierDown
	}

	if up.Sign() > 0 {
		ceiling := refPrice.Mul(up)
		if price.GreaterThan(ceiling) {
			return reject(
				fmt.Sprintf("price %s above percent-price ceiling %s (reference %s)", price, ceiling, refPrice),
				"lower the price to at most "+ceiling.String())
		}
	}
	if down.Sign() > 0 {
		floor := refPrice.Mul(down)
		if price.LessThan(floor) {
			return reject(
				fmt.Sprintf("price %s below percent-price floor %s (reference %s)", price, floor, refPrice),
				"raise the price to at least "+floor.String())
		}
	}
	return nil
}

func reject(message, remediation string) error {
	return errs.New("validator", errs.CodeInvalid,
		errs.WithCanonicalCode(errs.CanonicalFilterViolation),
		errs.WithMessage(message),
		errs.WithRemediation(remediation))
}
