package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"github.com/coachpo/orderdesk/errs"
	"github.com/coachpo/orderdesk/internal/model"
	"github.com/coachpo/orderdesk/internal/observability"
	"github.com/coachpo/orderdesk/internal/state"
	"github.com/coachpo/orderdesk/internal/validator"
)

const reconcileConcurrency = 4

// OrderService owns the order lifecycle for one symbol: placement with local
// rule validation, cancellation, reconciliation against the exchange, and the
// local open-order view.
type OrderService struct {
	exchange  Exchange
	store     *state.Store
	persister *state.Persister
	info      *InfoCache
	symbol    string
	policy    validator.Policy

	newClientID func() string
}

// NewOrderService wires an OrderService for symbol.
func NewOrderService(exchange Exchange, store *state.Store, persister *state.Persister, symbol string, policy validator.Policy) *OrderService {
	return &OrderService{
		exchange:    exchange,
		store:       store,
		persister:   persister,
		info:        NewInfoCache(exchange, symbol),
		symbol:      symbol,
		policy:      policy,
		newClientID: newClientOrderID,
	}
}

// Place validates and submits a LIMIT GTC order. An empty clientOrderID gets
// a generated one. The order is tracked locally before submission so a crash
// between submit and acknowledgement leaves a record to reconcile. The
// returned warnings report any local adjustment or skipped check; the order
// went out regardless.
func (s *OrderService) Place(ctx context.Context, side model.Side, price, qty decimal.Decimal, clientOrderID string) (model.Order, []string, error) {
	if clientOrderID == "" {
		clientOrderID = s.newClientID()
	}
	if existing, ok := s.store.GetByClientID(clientOrderID); ok {
		return existing, nil, errs.New("service", errs.CodeConflict,
			errs.WithCanonicalCode(errs.CanonicalDuplicateOrder),
			errs.WithMessage("client order id already tracked"),
			errs.WithRemediation("use a fresh client order id"))
	}

	rules, err := s.tradingRules(ctx)
	if err != nil {
		return model.Order{}, nil, err
	}
	res, err := validator.Validate(rules, side, price, qty, s.referencePrice(ctx, rules), s.policy)
	if err != nil {
		return model.Order{}, nil, err
	}

	pending := model.NewOrder(clientOrderID, s.symbol, side, res.Price, res.Qty)
	if err := s.store.Put(pending); err != nil {
		return model.Order{}, nil, err
	}
	s.persist()

	acked, err := s.exchange.PlaceOrder(ctx, pending)
	if err != nil {
		// A definitive rejection means the exchange never accepted the
		// order, so the pending record is noise. Transport uncertainty keeps
		// it for later reconciliation.
		if !errs.Retriable(err) {
			s.store.Remove(clientOrderID)
			s.persist()
		} else {
			observability.Log().Warn("order fate unknown, keeping pending record",
				observability.F("client_order_id", clientOrderID),
				observability.F("error", err.Error()))
		}
		return model.Order{}, res.Warnings, err
	}

	if err := s.store.Put(acked); err != nil {
		return model.Order{}, res.Warnings, err
	}
	s.persist()
	observability.Log().Info("order placed",
		observability.F("client_order_id", acked.ClientOrderID),
		observability.F("order_id", acked.OrderID),
		observability.F("side", string(acked.Side)),
		observability.F("price", acked.Price.String()),
		observability.F("qty", acked.OrigQty.String()))
	observability.Telemetry().IncCounter(observability.MetricOrdersPlaced, 1, nil)
	return acked, res.Warnings, nil
}

// tradingRules fetches the symbol rules for validation. A symbol the exchange
// does not list yields nil rules and validation proceeds best-effort; any
// other failure aborts the placement.
func (s *OrderService) tradingRules(ctx context.Context) (*model.SymbolInfo, error) {
	info, err := s.info.Get(ctx)
	if err != nil {
		if errs.HasCode(err, errs.CodeNotFound) {
			observability.Log().Warn("symbol rules not available, validating best-effort",
				observability.F("symbol", s.symbol),
				observability.F("error", err.Error()))
			return nil, nil
		}
		return nil, err
	}
	return &info, nil
}

// referencePrice fetches the ticker price when the symbol carries a
// percent-price filter. A fetch failure yields nil and lets the policy decide.
func (s *OrderService) referencePrice(ctx context.Context, info *model.SymbolInfo) *decimal.Decimal {
	if info == nil || info.PercentPriceBySide == nil {
		return nil
	}
	price, err := s.exchange.TickerPrice(ctx, s.symbol)
	if err != nil {
		observability.Log().Warn("reference price unavailable",
			observability.F("symbol", s.symbol),
			observability.F("error", err.Error()))
		return nil
	}
	return &price
}

// Cancel cancels the order identified by key (client order id or exchange
// order id). Canceling an order already terminal locally is a no-op that
// returns the stored order.
func (s *OrderService) Cancel(ctx context.Context, key string) (model.Order, error) {
	local, tracked := s.store.Resolve(key)
	if tracked && local.Terminal() {
		observability.Log().Info("cancel skipped, order already terminal",
			observability.F("client_order_id", local.ClientOrderID),
			observability.F("status", string(local.Status)))
		return local, nil
	}

	clientOrderID := key
	if tracked {
		clientOrderID = local.ClientOrderID
	}

	canceled, err := s.exchange.CancelOrder(ctx, s.symbol, clientOrderID)
	if err != nil {
		if errs.HasCanonical(err, errs.CanonicalOrderNotFound) {
			return s.resolveMissing(ctx, clientOrderID, local, tracked)
		}
		return model.Order{}, err
	}

	if err := s.store.Put(canceled); err != nil {
		return model.Order{}, err
	}
	s.persist()
	observability.Log().Info("order canceled",
		observability.F("client_order_id", canceled.ClientOrderID),
		observability.F("order_id", canceled.OrderID))
	observability.Telemetry().IncCounter(observability.MetricOrdersCanceled, 1, nil)
	return canceled, nil
}

// resolveMissing handles a cancel or reconcile target the exchange no longer
// knows. A tracked active order is marked canceled locally so the book stops
// reporting it as open.
func (s *OrderService) resolveMissing(_ context.Context, clientOrderID string, local model.Order, tracked bool) (model.Order, error) {
	if !tracked {
		return model.Order{}, errs.New("service", errs.CodeNotFound,
			errs.WithCanonicalCode(errs.CanonicalOrderNotFound),
			errs.WithMessage("order unknown locally and on the exchange"))
	}
	local.Status = model.StatusCanceled
	local.UpdateTime = time.Now().UnixMilli()
	if err := s.store.Put(local); err != nil {
		return model.Order{}, err
	}
	s.persist()
	observability.Log().Warn("order missing on exchange, marked canceled locally",
		observability.F("client_order_id", clientOrderID))
	return local, nil
}

// Reconcile refreshes one order from the exchange. Stale exchange responses
// (older updateTime than the local record) are ignored.
func (s *OrderService) Reconcile(ctx context.Context, key string) (model.Order, error) {
	local, tracked := s.store.Resolve(key)
	clientOrderID := key
	if tracked {
		clientOrderID = local.ClientOrderID
	}

	remote, err := s.exchange.QueryOrder(ctx, s.symbol, clientOrderID)
	if err != nil {
		if errs.HasCanonical(err, errs.CanonicalOrderNotFound) {
			return s.resolveMissing(ctx, clientOrderID, local, tracked)
		}
		return model.Order{}, err
	}

	if tracked && remote.UpdateTime < local.UpdateTime {
		observability.Log().Debug("reconcile skipped stale exchange state",
			observability.F("client_order_id", clientOrderID),
			observability.F("local_update", local.UpdateTime),
			observability.F("remote_update", remote.UpdateTime))
		return local, nil
	}

	if err := s.store.Put(remote); err != nil {
		return model.Order{}, err
	}
	s.persist()
	observability.Telemetry().IncCounter(observability.MetricOrdersReconciled, 1, nil)
	return remote, nil
}

// ReconcileAll refreshes every locally active order. Individual failures do
// not stop the sweep; the first error is reported after all orders were tried.
func (s *OrderService) ReconcileAll(ctx context.Context) error {
	open := s.store.ListOpen()
	if len(open) == 0 {
		return nil
	}
	p := pool.New().WithErrors().WithMaxGoroutines(reconcileConcurrency)
	for _, order := range open {
		clientOrderID := order.ClientOrderID
		p.Go(func() error {
			_, err := s.Reconcile(ctx, clientOrderID)
			return err
		})
	}
	return p.Wait()
}

// SyncOpenOrders pulls the exchange's open-order list, folds it into the
// store, then reconciles any locally active order the exchange did not
// report. Meant for startup, after loading the persisted snapshot.
func (s *OrderService) SyncOpenOrders(ctx context.Context) error {
	remote, err := s.exchange.OpenOrders(ctx, s.symbol)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(remote))
	for _, order := range remote {
		seen[order.ClientOrderID] = struct{}{}
		if local, ok := s.store.GetByClientID(order.ClientOrderID); ok && order.UpdateTime < local.UpdateTime {
			continue
		}
		if err := s.store.Put(order); err != nil {
			return err
		}
	}
	s.persist()

	for _, local := range s.store.ListOpen() {
		if _, ok := seen[local.ClientOrderID]; ok {
			continue
		}
		if _, err := s.Reconcile(ctx, local.ClientOrderID); err != nil {
			observability.Log().Warn("startup reconcile failed",
				observability.F("client_order_id", local.ClientOrderID),
				observability.F("error", err.Error()))
		}
	}
	return nil
}

// Get returns the tracked order for key.
func (s *OrderService) Get(key string) (model.Order, bool) {
	return s.store.Resolve(key)
}

// ListOpen returns the locally tracked active orders.
func (s *OrderService) ListOpen() []model.Order {
	return s.store.ListOpen()
}

// Prune drops terminal orders from the local book and persists the result.
func (s *OrderService) Prune() int {
	pruned := s.store.PruneTerminal()
	if pruned > 0 {
		s.persist()
		observability.Log().Info("pruned terminal orders",
			observability.F("count", pruned))
	}
	return pruned
}

// Balances returns the account balances from the exchange.
func (s *OrderService) Balances(ctx context.Context) ([]model.Balance, error) {
	return s.exchange.Balances(ctx)
}

// Price returns the latest trade price for the configured symbol.
func (s *OrderService) Price(ctx context.Context) (decimal.Decimal, error) {
	return s.exchange.TickerPrice(ctx, s.symbol)
}

// Rules returns the symbol trading rules, cached after the first fetch.
func (s *OrderService) Rules(ctx context.Context) (model.SymbolInfo, error) {
	return s.info.Get(ctx)
}

func (s *OrderService) persist() {
	if s.persister != nil {
		s.persister.Submit(s.store.Snapshot())
	}
}
