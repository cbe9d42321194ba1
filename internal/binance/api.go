package binance

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/coachpo/orderdesk/errs"
	"github.com/coachpo/orderdesk/internal/model"
)

// PlaceOrder submits a LIMIT GTC order.
func (c *Client) PlaceOrder(ctx context.Context, order model.Order) (model.Order, error) {
	params := map[string]string{
		"symbol":           order.Symbol,
		"side":             string(order.Side),
		"type":             string(model.OrderTypeLimit),
		"timeInForce":      string(model.TimeInForceGTC),
		"quantity":         order.OrigQty.String(),
		"price":            order.Price.String(),
		"newClientOrderId": order.ClientOrderID,
	}
	var resp OrderResponse
	if err := c.PostSigned(ctx, "/api/v3/order", params, &resp); err != nil {
		return model.Order{}, err
	}
	return orderFromResponse(resp)
}

// CancelOrder cancels an order by client order id.
func (c *Client) CancelOrder(ctx context.Context, symbol, clientOrderID string) (model.Order, error) {
	params := map[string]string{
		"symbol":            symbol,
		"origClientOrderId": clientOrderID,
	}
	var resp OrderResponse
	if err := c.DeleteSigned(ctx, "/api/v3/order", params, &resp); err != nil {
		return model.Order{}, err
	}
	return orderFromResponse(resp)
}

// QueryOrder fetches the current exchange view of an order by client order id.
func (c *Client) QueryOrder(ctx context.Context, symbol, clientOrderID string) (model.Order, error) {
	params := map[string]string{
		"symbol":            symbol,
		"origClientOrderId": clientOrderID,
	}
	var resp OrderResponse
	if err := c.GetSigned(ctx, "/api/v3/order", params, &resp); err != nil {
		return model.Order{}, err
	}
	return orderFromResponse(resp)
}

// OpenOrders lists the orders currently open on the exchange for a symbol.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]model.Order, error) {
	params := map[string]string{"symbol": symbol}
	var resp []OrderResponse
	if err := c.GetSigned(ctx, "/api/v3/openOrders", params, &resp); err != nil {
		return nil, err
	}
	orders := make([]model.Order, 0, len(resp))
	for _, dto := range resp {
		o, err := orderFromResponse(dto)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// TickerPrice fetches the latest trade price for a symbol.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := map[string]string{"symbol": symbol}
	var resp tickerPriceResponse
	if err := c.Get(ctx, "/api/v3/ticker/price", params, &resp); err != nil {
		return decimal.Decimal{}, err
	}
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return decimal.Decimal{}, errs.New("binance", errs.CodeExchange,
			errs.WithMessage("malformed ticker price"), errs.WithCause(err))
	}
	return price, nil
}

// SymbolInfo fetches the trading rules for one symbol from exchangeInfo.
func (c *Client) SymbolInfo(ctx context.Context, symbol string) (model.SymbolInfo, error) {
	params := map[string]string{"symbol": symbol}
	var resp exchangeInfoResponse
	if err := c.Get(ctx, "/api/v3/exchangeInfo", params, &resp); err != nil {
		return model.SymbolInfo{}, err
	}
	for _, dto := range resp.Symbols {
		if dto.Symbol == symbol {
			return symbolInfoFromDTO(dto)
		}
	}
	return model.SymbolInfo{}, errs.New("binance", errs.CodeNotFound,
		errs.WithMessage("symbol not listed on exchange"),
		errs.WithRemediation("check the configured base/quote asset pair"))
}

// Balances fetches the asset balances for the authenticated account.
func (c *Client) Balances(ctx context.Context) ([]model.Balance, error) {
	var resp AccountResponse
	if err := c.GetSigned(ctx, "/api/v3/account", nil, &resp); err != nil {
		return nil, err
	}
	balances := make([]model.Balance, 0, len(resp.Balances))
	for _, b := range resp.Balances {
		free, err := parseDecimalField("free", b.Free)
		if err != nil {
			return nil, err
		}
		locked, err := parseDecimalField("locked", b.Locked)
		if err != nil {
			return nil, err
		}
		balances = append(balances, model.Balance{Asset: b.Asset, Free: free, Locked: locked})
	}
	return balances, nil
}

func orderFromResponse(resp OrderResponse) (model.Order, error) {
	clientID := resp.ClientOrderID
	if clientID == "" {
		clientID = resp.OrigClientOrderID
	}
	status, err := model.ParseStatus(resp.Status)
	if err != nil {
		return model.Order{}, errs.New("binance", errs.CodeExchange,
			errs.WithMessage("malformed order response"), errs.WithCause(err))
	}
	side, err := model.ParseSide(resp.Side)
	if err != nil {
		return model.Order{}, errs.New("binance", errs.CodeExchange,
			errs.WithMessage("malformed order response"), errs.WithCause(err))
	}
	price, err := parseDecimalField("price", resp.Price)
	if err != nil {
		return model.Order{}, err
	}
	origQty, err := parseDecimalField("origQty", resp.OrigQty)
	if err != nil {
		return model.Order{}, err
	}
	executedQty, err := parseDecimalField("executedQty", resp.ExecutedQty)
	if err != nil {
		return model.Order{}, err
	}

	created := resp.Time
	if created == 0 {
		created = resp.TransactTime
	}
	updated := resp.UpdateTime
	if updated == 0 {
		updated = resp.TransactTime
	}

	return model.Order{
		ClientOrderID: clientID,
		OrderID:       resp.OrderID,
		Symbol:        resp.Symbol,
		Side:          side,
		Type:          model.OrderType(resp.Type),
		Price:         price,
		OrigQty:       origQty,
		ExecutedQty:   executedQty,
		Status:        status,
		TimeInForce:   model.TimeInForce(resp.TimeInForce),
		Time:          created,
		UpdateTime:    updated,
	}, nil
}

func parseDecimalField(name, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, errs.New("binance", errs.CodeExchange,
			errs.WithMessage("malformed decimal field "+strconv.Quote(name)),
			errs.WithCause(err))
	}
	return d, nil
}

func symbolInfoFromDTO(dto symbolInfoDTO) (model.SymbolInfo, error) {
	info := model.SymbolInfo{
		Symbol:     dto.Symbol,
		Status:     dto.Status,
		BaseAsset:  dto.BaseAsset,
		QuoteAsset: dto.QuoteAsset,
	}
	for _, f := range dto.Filters {
		switch f.FilterType {
		case "PRICE_FILTER":
			minPrice, err := parseDecimalField("minPrice", f.MinPrice)
			if err != nil {
				return model.SymbolInfo{}, err
			}
			maxPrice, err := parseDecimalField("maxPrice", f.MaxPrice)
			if err != nil {
				return model.SymbolInfo{}, err
			}
			tickSize, err := parseDecimalField("tickSize", f.TickSize)
			if err != nil {
				return model.SymbolInfo{}, err
			}
			info.Price = &model.PriceFilter{MinPrice: minPrice, MaxPrice: maxPrice, TickSize: tickSize}
		case "LOT_SIZE":
			minQty, err := parseDecimalField("minQty", f.MinQty)
			if err != nil {
				return model.SymbolInfo{}, err
			}
			maxQty, err := parseDecimalField("maxQty", f.MaxQty)
			if err != nil {
				return model.SymbolInfo{}, err
			}
			stepSize, err := parseDecimalField("stepSize", f.StepSize)
			if err != nil {
				return model.SymbolInfo{}, err
			}
			info.LotSize = &model.LotSizeFilter{MinQty: minQty, MaxQty: maxQty, StepSize: stepSize}
		case "MIN_NOTIONAL", "NOTIONAL":
			minNotional, err := parseDecimalField("minNotional", f.MinNotional)
			if err != nil {
				return model.SymbolInfo{}, err
			}
			info.MinNotional = &model.MinNotionalFilter{MinNotional: minNotional}
		case "PERCENT_PRICE_BY_SIDE":
			bidUp, err := parseDecimalField("bidMultiplierUp", f.BidMultiplierUp)
			if err != nil {
				return model.SymbolInfo{}, err
			}
			bidDown, err := parseDecimalField("bidMultiplierDown", f.BidMultiplierDown)
			if err != nil {
				return model.SymbolInfo{}, err
			}
			askUp, err := parseDecimalField("askMultiplierUp", f.AskMultiplierUp)
			if err != nil {
				return model.SymbolInfo{}, err
			}
			askDown, err := parseDecimalField("askMultiplierDown", f.AskMultiplierDown)
			if err != nil {
				return model.SymbolInfo{}, err
			}
			info.PercentPriceBySide = &model.PercentPriceBySideFilter{
				BidMultiplierUp:   bidUp,
				BidMultiplierDown: bidDown,
				AskMultiplierUp:   askUp,
				AskMultiplierDown: askDown,
			}
		}
	}
	return info, nil
}
