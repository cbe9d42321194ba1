// Package postgres persists order snapshots in PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/coachpo/orderdesk/internal/model"
)

// Store mirrors order snapshots into the orders table. Each snapshot write
// upserts every order and removes rows absent from the snapshot, all in one
// transaction.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store backed by the provided pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool for dsn and returns a Store over it.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("order snapshot store: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("order snapshot store: ping database: %w", err)
	}
	return New(pool), nil
}

const (
	orderUpsertSQL = `
INSERT INTO orders (
    client_order_id,
    order_id,
    symbol,
    side,
    order_type,
    price,
    orig_qty,
    executed_qty,
    status,
    time_in_force,
    created_at_ms,
    updated_at_ms
)
VALUES (
    @client_order_id,
    @order_id,
    @symbol,
    @side,
    @order_type,
    @price,
    @orig_qty,
    @executed_qty,
    @status,
    @time_in_force,
    @created_at_ms,
    @updated_at_ms
)
ON CONFLICT (client_order_id) DO UPDATE SET
    order_id = EXCLUDED.order_id,
    price = EXCLUDED.price,
    orig_qty = EXCLUDED.orig_qty,
    executed_qty = EXCLUDED.executed_qty,
    status = EXCLUDED.status,
    updated_at_ms = EXCLUDED.updated_at_ms;
`

	orderPruneSQL = `
DELETE FROM orders WHERE NOT (client_order_id = ANY(@client_order_ids));
`

	orderSelectSQL = `
SELECT client_order_id, order_id, symbol, side, order_type,
       price, orig_qty, executed_qty, status, time_in_force,
       created_at_ms, updated_at_ms
FROM orders
ORDER BY created_at_ms, client_order_id;
`
)

// WriteSnapshot replaces the stored snapshot with orders.
func (s *Store) WriteSnapshot(ctx context.Context, orders []model.Order) error {
	if s.pool == nil {
		return fmt.Errorf("order snapshot store: nil pool")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("order snapshot store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	clientIDs := make([]string, 0, len(orders))
	for _, order := range orders {
		args := pgx.NamedArgs{
			"client_order_id": order.ClientOrderID,
			"order_id":        order.OrderID,
			"symbol":          order.Symbol,
			"side":            string(order.Side),
			"order_type":      string(order.Type),
			"price":           order.Price.String(),
			"orig_qty":        order.OrigQty.String(),
			"executed_qty":    order.ExecutedQty.String(),
			"status":          string(order.Status),
			"time_in_force":   string(order.TimeInForce),
			"created_at_ms":   order.Time,
			"updated_at_ms":   order.UpdateTime,
		}
		if _, err := tx.Exec(ctx, orderUpsertSQL, args); err != nil {
			return fmt.Errorf("order snapshot store: upsert order %s: %w", order.ClientOrderID, err)
		}
		clientIDs = append(clientIDs, order.ClientOrderID)
	}

	pruneArgs := pgx.NamedArgs{"client_order_ids": clientIDs}
	if _, err := tx.Exec(ctx, orderPruneSQL, pruneArgs); err != nil {
		return fmt.Errorf("order snapshot store: prune stale orders: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("order snapshot store: commit: %w", err)
	}
	return nil
}

// ReadSnapshot loads every stored order, oldest first.
func (s *Store) ReadSnapshot(ctx context.Context) ([]model.Order, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("order snapshot store: nil pool")
	}
	rows, err := s.pool.Query(ctx, orderSelectSQL)
	if err != nil {
		return nil, fmt.Errorf("order snapshot store: select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var (
			order                    model.Order
			side, orderType, status  string
			timeInForce              string
			price, origQty, execQty  string
		)
		if err := rows.Scan(
			&order.ClientOrderID, &order.OrderID, &order.Symbol, &side, &orderType,
			&price, &origQty, &execQty, &status, &timeInForce,
			&order.Time, &order.UpdateTime,
		); err != nil {
			return nil, fmt.Errorf("order snapshot store: scan order: %w", err)
		}
		parsedStatus, err := model.ParseStatus(status)
		if err != nil {
			return nil, fmt.Errorf("order snapshot store: row %s: %w", order.ClientOrderID, err)
		}
		parsedSide, err := model.ParseSide(side)
		if err != nil {
			return nil, fmt.Errorf("order snapshot store: row %s: %w", order.ClientOrderID, err)
		}
		order.Side = parsedSide
		order.Type = model.OrderType(orderType)
		order.Status = parsedStatus
		order.TimeInForce = model.TimeInForce(timeInForce)
		if order.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("order snapshot store: row %s price: %w", order.ClientOrderID, err)
		}
		if order.OrigQty, err = decimal.NewFromString(origQty); err != nil {
			return nil, fmt.Errorf("order snapshot store: row %s orig_qty: %w", order.ClientOrderID, err)
		}
		if order.ExecutedQty, err = decimal.NewFromString(execQty); err != nil {
			return nil, fmt.Errorf("order snapshot store: row %s executed_qty: %w", order.ClientOrderID, err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order snapshot store: iterate orders: %w", err)
	}
	return orders, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
