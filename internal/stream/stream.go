// Package stream maintains the authenticated execution-report stream and
// folds its events into the order state store.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/coachpo/orderdesk/errs"
	"github.com/coachpo/orderdesk/internal/binance"
	"github.com/coachpo/orderdesk/internal/model"
	"github.com/coachpo/orderdesk/internal/observability"
	"github.com/coachpo/orderdesk/internal/state"
)

const (
	subscribeMethod   = "stream.subscribe.signature"
	unsubscribeMethod = "stream.unsubscribe"
	writeTimeout      = 5 * time.Second
	keepAlivePath     = "/api/v3/userDataStream"
)

// keepAliveClient is the REST surface used to refresh the subscription.
type keepAliveClient interface {
	PutSigned(ctx context.Context, path string, params map[string]string, out any) error
}

// Config carries the stream connection parameters.
type Config struct {
	URL               string
	APIKey            string
	Signer            *binance.Signer
	Clock             *binance.Clock
	RecvWindow        time.Duration
	KeepAliveInterval time.Duration
}

// Service owns one streaming connection: a signed subscribe on open, the
// execution-report read loop, a keepalive task, and the reconnect state
// machine. Reconnects retry indefinitely with capped backoff until Run's
// context is canceled; only an endpoint that does not exist is fatal.
type Service struct {
	cfg       Config
	store     *state.Store
	persister *state.Persister
	rest      keepAliveClient

	msgID        atomic.Uint64
	reconnecting atomic.Bool

	mu              sync.Mutex
	subscriptionKey string
}

// New wires a stream Service.
func New(cfg Config, store *state.Store, persister *state.Persister, rest keepAliveClient) *Service {
	return &Service{cfg: cfg, store: store, persister: persister, rest: rest}
}

// Reconnecting reports whether the service is between connections.
func (s *Service) Reconnecting() bool {
	return s.reconnecting.Load()
}

type request struct {
	ID     uint64            `json:"id"`
	Method string            `json:"method"`
	Params map[string]string `json:"params"`
}

type frame struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *frameError     `json:"error"`

	EventType string `json:"e"`
	Symbol    string `json:"s"`
	ClientID  string `json:"c"`
	OrderID   int64  `json:"i"`
	Side      string `json:"S"`
	Status    string `json:"X"`
	Price     string `json:"p"`
	Qty       string `json:"q"`
	Executed  string `json:"z"`
	EventTime int64  `json:"E"`
	TradeTime int64  `json:"T"`
	OrderTime int64  `json:"O"`
}

type frameError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type subscriptionResult struct {
	Subscription string `json:"subscription"`
	ListenKey    string `json:"listenKey"`
}

// Run connects and processes events until ctx is canceled or a fatal endpoint
// error occurs.
func (s *Service) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = 30 * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, resp, err := websocket.Dial(ctx, s.cfg.URL, nil)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				return errs.New("stream", errs.CodeNotFound,
					errs.WithHTTP(resp.StatusCode),
					errs.WithMessage("stream endpoint does not exist"),
					errs.WithRemediation("check the configured websocket URL"),
					errs.WithCause(err))
			}
			s.reconnecting.Store(true)
			delay := bo.NextBackOff()
			observability.Log().Warn("stream dial failed, will retry",
				observability.F("url", s.cfg.URL),
				observability.F("delay", delay.String()),
				observability.F("error", err.Error()))
			observability.Telemetry().IncCounter(observability.MetricStreamReconnects, 1, nil)
			if !sleepCtx(ctx, delay) {
				return ctx.Err()
			}
			continue
		}

		bo.Reset()
		s.reconnecting.Store(false)

		err = s.session(ctx, conn)
		_ = conn.Close(websocket.StatusNormalClosure, "shutdown")
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.reconnecting.Store(true)
		delay := bo.NextBackOff()
		observability.Log().Warn("stream disconnected, reconnecting",
			observability.F("delay", delay.String()),
			observability.F("error", errString(err)))
		observability.Telemetry().IncCounter(observability.MetricStreamReconnects, 1, nil)
		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}
	}
}

// session subscribes and pumps events until the connection breaks or ctx ends.
func (s *Service) session(ctx context.Context, conn *websocket.Conn) error {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if _, err := s.subscribe(sessionCtx, conn); err != nil {
		return err
	}

	if s.cfg.KeepAliveInterval > 0 && s.rest != nil {
		go s.keepAlive(sessionCtx)
	}
	defer s.unsubscribe(conn)

	for {
		_, data, err := conn.Read(sessionCtx)
		if err != nil {
			return err
		}
		s.handleFrame(data)
	}
}

// subscribe sends the signed subscribe request and waits for its ack. The
// signature covers the canonical sorted payload, same scheme as REST.
func (s *Service) subscribe(ctx context.Context, conn *websocket.Conn) (string, error) {
	params := map[string]string{
		"apiKey":    s.cfg.APIKey,
		"timestamp": strconv.FormatInt(s.cfg.Clock.AdjustedNow(), 10),
	}
	if s.cfg.RecvWindow > 0 {
		params["recvWindow"] = strconv.FormatInt(s.cfg.RecvWindow.Milliseconds(), 10)
	}
	params["signature"] = s.cfg.Signer.Sign(canonicalParams(params))

	id := s.msgID.Add(1)
	if err := s.write(ctx, conn, request{ID: id, Method: subscribeMethod, Params: params}); err != nil {
		return "", fmt.Errorf("send subscribe: %w", err)
	}

	// Events may interleave with the ack, so pump frames until the ack for
	// our request id arrives.
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return "", fmt.Errorf("await subscribe ack: %w", err)
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			observability.Log().Warn("undecodable stream frame dropped",
				observability.F("error", err.Error()))
			continue
		}
		if f.EventType != "" {
			s.handleEvent(f)
			continue
		}
		if f.ID != id {
			continue
		}
		if f.Error != nil {
			return "", errs.New("stream", errs.CodeExchange,
				errs.WithExchangeCode(f.Error.Code),
				errs.WithRawMessage(f.Error.Msg),
				errs.WithMessage("subscribe rejected"))
		}
		key := subscriptionKeyFromResult(f.Result)
		s.mu.Lock()
		s.subscriptionKey = key
		s.mu.Unlock()
		observability.Log().Info("stream subscribed",
			observability.F("subscription", key))
		return key, nil
	}
}

func subscriptionKeyFromResult(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var res subscriptionResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return ""
	}
	if res.Subscription != "" {
		return res.Subscription
	}
	return res.ListenKey
}

// unsubscribe is best-effort on shutdown; failures only get logged.
func (s *Service) unsubscribe(conn *websocket.Conn) {
	s.mu.Lock()
	key := s.subscriptionKey
	s.mu.Unlock()
	if key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	err := s.write(ctx, conn, request{
		ID:     s.msgID.Add(1),
		Method: unsubscribeMethod,
		Params: map[string]string{"subscription": key},
	})
	if err != nil {
		observability.Log().Debug("unsubscribe failed",
			observability.F("error", err.Error()))
	}
}

func (s *Service) write(ctx context.Context, conn *websocket.Conn, req request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

// keepAlive refreshes the subscription on a fixed interval while the session
// lives.
func (s *Service) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.mu.Lock()
		key := s.subscriptionKey
		s.mu.Unlock()
		if key == "" {
			continue
		}
		err := s.rest.PutSigned(ctx, keepAlivePath, map[string]string{"listenKey": key}, nil)
		if err != nil && ctx.Err() == nil {
			observability.Log().Warn("stream keepalive failed",
				observability.F("error", err.Error()))
		}
	}
}

func (s *Service) handleFrame(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		observability.Log().Warn("undecodable stream frame dropped",
			observability.F("error", err.Error()))
		return
	}
	if f.EventType == "" {
		return
	}
	s.handleEvent(f)
}

// handleEvent applies one execution report to the store. The affected order
// is resolved by client id first, then exchange id; an event for an order the
// store has never seen creates it, since orders can be placed via a side
// channel.
func (s *Service) handleEvent(f frame) {
	if f.EventType != "executionReport" {
		return
	}
	observability.Telemetry().IncCounter(observability.MetricStreamEvents, 1, nil)

	status, err := model.ParseStatus(f.Status)
	if err != nil {
		observability.Log().Warn("execution report with unknown status dropped",
			observability.F("client_order_id", f.ClientID),
			observability.F("status", f.Status))
		return
	}

	eventTime := eventTimestamp(f)
	order, known := s.store.GetByClientID(f.ClientID)
	if !known && f.OrderID > 0 {
		order, known = s.store.GetByOrderID(f.OrderID)
	}
	if known {
		// Terminal orders never change again; late or replayed frames for
		// them, and frames older than the local record, are dropped.
		if order.Terminal() {
			observability.Log().Debug("execution report for terminal order dropped",
				observability.F("client_order_id", order.ClientOrderID),
				observability.F("status", string(order.Status)))
			return
		}
		if eventTime < order.UpdateTime {
			observability.Log().Debug("stale execution report dropped",
				observability.F("client_order_id", order.ClientOrderID),
				observability.F("event_time", eventTime),
				observability.F("local_update", order.UpdateTime))
			return
		}
	}
	if !known {
		side, err := model.ParseSide(f.Side)
		if err != nil {
			observability.Log().Warn("execution report with unknown side dropped",
				observability.F("client_order_id", f.ClientID))
			return
		}
		price, qty := parseDec(f.Price), parseDec(f.Qty)
		order = model.NewOrder(f.ClientID, f.Symbol, side, price, qty)
		order.Time = f.OrderTime
		observability.Log().Info("execution report for untracked order, adopting",
			observability.F("client_order_id", f.ClientID),
			observability.F("order_id", f.OrderID))
	}

	if f.OrderID > 0 {
		order.OrderID = f.OrderID
	}
	order.Status = status
	order.ExecutedQty = parseDec(f.Executed)
	order.UpdateTime = eventTime
	if order.Time == 0 && f.OrderTime > 0 {
		order.Time = f.OrderTime
	}

	if err := s.store.Put(order); err != nil {
		observability.Log().Error("execution report not applied",
			observability.F("client_order_id", f.ClientID),
			observability.F("error", err.Error()))
		return
	}
	if s.persister != nil {
		s.persister.Submit(s.store.Snapshot())
	}
	observability.Log().Debug("execution report applied",
		observability.F("client_order_id", order.ClientOrderID),
		observability.F("status", string(order.Status)),
		observability.F("executed", order.ExecutedQty.String()))
}

// eventTimestamp prefers the exchange transaction time, then the event time,
// then the local clock.
func eventTimestamp(f frame) int64 {
	if f.TradeTime > 0 {
		return f.TradeTime
	}
	if f.EventTime > 0 {
		return f.EventTime
	}
	return time.Now().UnixMilli()
}

func parseDec(raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// canonicalParams serializes params for signing, excluding the signature
// itself, with keys sorted lexicographically.
func canonicalParams(params map[string]string) string {
	filtered := make(map[string]string, len(params))
	for k, v := range params {
		if k == "signature" {
			continue
		}
		filtered[k] = v
	}
	return binance.CanonicalQuery(filtered)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "context canceled"
	}
	return err.Error()
}
