package binance

// Wire DTOs for the REST endpoints orderdesk consumes. Field tags mirror the
// exchange payloads; decimal values travel as strings and are parsed at the
// model boundary.

type serverTimeResponse struct {
	ServerTime int64 `json:"serverTime"`
}

type apiErrorResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type exchangeInfoResponse struct {
	Symbols []symbolInfoDTO `json:"symbols"`
}

type symbolInfoDTO struct {
	Symbol     string      `json:"symbol"`
	Status     string      `json:"status"`
	BaseAsset  string      `json:"baseAsset"`
	QuoteAsset string      `json:"quoteAsset"`
	Filters    []filterDTO `json:"filters"`
}

// filterDTO is the union of all filter payloads; FilterType selects which
// fields are meaningful.
type filterDTO struct {
	FilterType        string `json:"filterType"`
	MinPrice          string `json:"minPrice"`
	MaxPrice          string `json:"maxPrice"`
	TickSize          string `json:"tickSize"`
	MinQty            string `json:"minQty"`
	MaxQty            string `json:"maxQty"`
	StepSize          string `json:"stepSize"`
	MinNotional       string `json:"minNotional"`
	BidMultiplierUp   string `json:"bidMultiplierUp"`
	BidMultiplierDown string `json:"bidMultiplierDown"`
	AskMultiplierUp   string `json:"askMultiplierUp"`
	AskMultiplierDown string `json:"askMultiplierDown"`
}

// OrderResponse is the exchange acknowledgement for place, cancel and query
// order endpoints.
type OrderResponse struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	OrigClientOrderID   string `json:"origClientOrderId"`
	Price               string `json:"price"`
	OrigQty             string `json:"origQty"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
	TimeInForce         string `json:"timeInForce"`
	Type                string `json:"type"`
	Side                string `json:"side"`
	TransactTime        int64  `json:"transactTime"`
	Time                int64  `json:"time"`
	UpdateTime          int64  `json:"updateTime"`
}

// AccountResponse carries the asset balances for the authenticated account.
type AccountResponse struct {
	Balances []AssetBalance `json:"balances"`
}

// AssetBalance is one asset row from the account endpoint.
type AssetBalance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}
