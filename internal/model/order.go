// Package model defines the order domain entities tracked by orderdesk.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies the direction of an order.
type Side string

const (
	// SideBuy bids for the base asset.
	SideBuy Side = "BUY"
	// SideSell offers the base asset.
	SideSell Side = "SELL"
)

// ParseSide converts an exchange side string into a Side.
func ParseSide(input string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	default:
		return "", fmt.Errorf("model: unsupported side %q", input)
	}
}

// OrderType identifies the order kind. Only LIMIT is supported.
type OrderType string

// OrderTypeLimit is the only order type orderdesk submits.
const OrderTypeLimit OrderType = "LIMIT"

// TimeInForce identifies how long an order remains active.
type TimeInForce string

// TimeInForceGTC keeps the order active until filled or canceled.
const TimeInForceGTC TimeInForce = "GTC"

// Status tracks the lifecycle of an order. Every status is either active or
// terminal, never both.
type Status string

const (
	// StatusPendingNew marks an order created locally, not yet acknowledged.
	StatusPendingNew Status = "PENDING_NEW"
	// StatusNew marks an order accepted by the exchange.
	StatusNew Status = "NEW"
	// StatusPartiallyFilled marks an order with partial executions.
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	// StatusFilled marks a completely executed order.
	StatusFilled Status = "FILLED"
	// StatusCanceled marks an order canceled by the user or the exchange.
	StatusCanceled Status = "CANCELED"
	// StatusRejected marks an order the exchange refused.
	StatusRejected Status = "REJECTED"
	// StatusExpired marks an order the exchange expired.
	StatusExpired Status = "EXPIRED"
)

// ParseStatus converts an exchange status string into a Status.
func ParseStatus(input string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(input)))
	switch s {
	case StatusPendingNew, StatusNew, StatusPartiallyFilled, StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return s, nil
	default:
		return "", fmt.Errorf("model: unknown order status %q", input)
	}
}

// Active reports whether the order can still receive fills or be canceled.
func (s Status) Active() bool {
	switch s {
	case StatusPendingNew, StatusNew, StatusPartiallyFilled:
		return true
	}
	return false
}

// Terminal reports whether no further updates are expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Order is the central entity tracked by the state store and the durable
// repository. Monetary values are arbitrary-precision decimals; binary floats
// are never used for money.
type Order struct {
	ClientOrderID string          `json:"clientOrderId"`
	OrderID       int64           `json:"orderId,omitempty"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Type          OrderType       `json:"type"`
	Price         decimal.Decimal `json:"price"`
	OrigQty       decimal.Decimal `json:"origQty"`
	ExecutedQty   decimal.Decimal `json:"executedQty"`
	Status        Status          `json:"status"`
	TimeInForce   TimeInForce     `json:"timeInForce"`
	Time          int64           `json:"time,omitempty"`
	UpdateTime    int64           `json:"updateTime"`
}

// NewOrder creates a pre-submission LIMIT order.
func NewOrder(clientOrderID, symbol string, side Side, price, qty decimal.Decimal) Order {
	return Order{
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          side,
		Type:          OrderTypeLimit,
		Price:         price,
		OrigQty:       qty,
		ExecutedQty:   decimal.Zero,
		Status:        StatusPendingNew,
		TimeInForce:   TimeInForceGTC,
		UpdateTime:    time.Now().UnixMilli(),
	}
}

// HasOrderID reports whether the exchange has assigned an order id.
func (o Order) HasOrderID() bool {
	return o.OrderID > 0
}

// Active reports whether the order can still receive fills or be canceled.
func (o Order) Active() bool {
	return o.Status.Active()
}

// Terminal reports whether the order reached a final state.
func (o Order) Terminal() bool {
	return o.Status.Terminal()
}

func (o Order) String() string {
	return fmt.Sprintf("Order{clientOrderId=%s orderId=%d symbol=%s side=%s price=%s qty=%s executed=%s status=%s}",
		o.ClientOrderID, o.OrderID, o.Symbol, o.Side,
		o.Price.String(), o.OrigQty.String(), o.ExecutedQty.String(), o.Status)
}
