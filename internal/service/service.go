// Package service implements the order management operations on top of the
// exchange protocol client, the in-memory store and the persistence pipeline.
package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coachpo/orderdesk/internal/model"
)

// Exchange is the protocol surface the services depend on.
type Exchange interface {
	PlaceOrder(ctx context.Context, order model.Order) (model.Order, error)
	CancelOrder(ctx context.Context, symbol, clientOrderID string) (model.Order, error)
	QueryOrder(ctx context.Context, symbol, clientOrderID string) (model.Order, error)
	OpenOrders(ctx context.Context, symbol string) ([]model.Order, error)
	TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	SymbolInfo(ctx context.Context, symbol string) (model.SymbolInfo, error)
	Balances(ctx context.Context) ([]model.Balance, error)
}

// newClientOrderID generates order identifiers that are unique across runs.
func newClientOrderID() string {
	return "od-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}
