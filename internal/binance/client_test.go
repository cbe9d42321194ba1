package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/orderdesk/errs"
	"github.com/coachpo/orderdesk/internal/model"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "test-key", "test-secret", 5*time.Second, 2*time.Second)
	c.retryer.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestSignedRequestCarriesAPIKeyAndSignature(t *testing.T) {
	var gotKey, gotQuery string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-MBX-APIKEY")
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"balances":[]}`))
	}))

	_, err := c.Balances(context.Background())
	require.NoError(t, err)
	require.Equal(t, "test-key", gotKey)
	require.Contains(t, gotQuery, "timestamp=")
	require.Contains(t, gotQuery, "recvWindow=5000")
	require.Contains(t, gotQuery, "signature=")
}

func TestPlaceOrderParsesAcknowledgement(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v3/order", r.URL.Path)
		w.Write([]byte(`{
			"symbol":"BTCUSDT","orderId":12345,"clientOrderId":"ord-1",
			"transactTime":1700000000000,"price":"20000.12","origQty":"0.5",
			"executedQty":"0","status":"NEW","timeInForce":"GTC",
			"type":"LIMIT","side":"BUY"}`))
	}))

	placed, err := c.PlaceOrder(context.Background(), model.NewOrder(
		"ord-1", "BTCUSDT", model.SideBuy,
		decimal.RequireFromString("20000.12"), decimal.RequireFromString("0.5")))
	require.NoError(t, err)
	require.Equal(t, int64(12345), placed.OrderID)
	require.Equal(t, model.StatusNew, placed.Status)
	require.Equal(t, int64(1700000000000), placed.Time)
	require.Equal(t, int64(1700000000000), placed.UpdateTime)
	require.True(t, placed.Price.Equal(decimal.RequireFromString("20000.12")))
}

func TestClockSkewTriggersResyncAndRetry(t *testing.T) {
	var orderCalls, timeCalls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/time":
			timeCalls.Add(1)
			w.Write([]byte(`{"serverTime":1700000000000}`))
		case "/api/v3/order":
			if orderCalls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"code":-1021,"msg":"Timestamp for this request is outside of the recvWindow."}`))
				return
			}
			w.Write([]byte(`{"symbol":"BTCUSDT","orderId":1,"clientOrderId":"ord-1",
				"price":"1","origQty":"1","executedQty":"0","status":"NEW",
				"timeInForce":"GTC","type":"LIMIT","side":"BUY","transactTime":1}`))
		default:
			http.NotFound(w, r)
		}
	}))

	_, err := c.PlaceOrder(context.Background(), model.NewOrder(
		"ord-1", "BTCUSDT", model.SideBuy, decimal.NewFromInt(1), decimal.NewFromInt(1)))
	require.NoError(t, err)
	require.Equal(t, int32(2), orderCalls.Load())
	require.Equal(t, int32(1), timeCalls.Load(), "timestamp rejection must resync the clock")
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		canonical errs.CanonicalCode
		retriable bool
	}{
		{"rate limited http", http.StatusTooManyRequests, `{"code":-1429,"msg":"slow down"}`, errs.CanonicalRateLimited, true},
		{"rate limited exchange code", http.StatusBadRequest, `{"code":-1003,"msg":"Too many requests."}`, errs.CanonicalRateLimited, true},
		{"server error", http.StatusBadGateway, `{}`, errs.CanonicalUnknown, true},
		{"filter violation", http.StatusBadRequest, `{"code":-1013,"msg":"Filter failure: LOT_SIZE"}`, errs.CanonicalFilterViolation, false},
		{"unknown order", http.StatusBadRequest, `{"code":-2013,"msg":"Order does not exist."}`, errs.CanonicalOrderNotFound, false},
		{"insufficient balance", http.StatusBadRequest, `{"code":-2010,"msg":"Account has insufficient balance for requested action."}`, errs.CanonicalInsufficientBalance, false},
		{"duplicate order", http.StatusBadRequest, `{"code":-2010,"msg":"Duplicate order sent."}`, errs.CanonicalDuplicateOrder, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyAPIError(tc.status, []byte(tc.body))
			require.Error(t, err)
			require.Equal(t, tc.canonical, errs.Canonical(err))
			require.Equal(t, tc.retriable, errs.Retriable(err))
		})
	}
}

func TestRetriableFailuresExhaustAttemptBudget(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := c.TickerPrice(context.Background(), "BTCUSDT")
	require.Error(t, err)
	require.Equal(t, int32(5), calls.Load())
}

func TestSymbolInfoParsesFiltersAndIgnoresUnknown(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/exchangeInfo", r.URL.Path)
		w.Write([]byte(`{"symbols":[{
			"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT",
			"filters":[
				{"filterType":"PRICE_FILTER","minPrice":"0.01","maxPrice":"1000000","tickSize":"0.01"},
				{"filterType":"LOT_SIZE","minQty":"0.00001","maxQty":"9000","stepSize":"0.00001"},
				{"filterType":"NOTIONAL","minNotional":"10"},
				{"filterType":"PERCENT_PRICE_BY_SIDE","bidMultiplierUp":"5","bidMultiplierDown":"0.2","askMultiplierUp":"5","askMultiplierDown":"0.2"},
				{"filterType":"ICEBERG_PARTS","limit":"10"}
			]}]}`))
	}))

	info, err := c.SymbolInfo(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.True(t, info.Tradable())
	require.NotNil(t, info.Price)
	require.True(t, info.Price.TickSize.Equal(decimal.RequireFromString("0.01")))
	require.NotNil(t, info.LotSize)
	require.True(t, info.LotSize.StepSize.Equal(decimal.RequireFromString("0.00001")))
	require.NotNil(t, info.MinNotional)
	require.True(t, info.MinNotional.MinNotional.Equal(decimal.NewFromInt(10)))
	require.NotNil(t, info.PercentPriceBySide)
}
