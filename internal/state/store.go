// Package state holds the in-memory order book of record and the asynchronous
// persistence pipeline that mirrors it to durable storage.
package state

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/coachpo/orderdesk/errs"
	"github.com/coachpo/orderdesk/internal/model"
)

// Store is the in-memory source of truth for tracked orders. Orders are keyed
// by client order id; a secondary index maps exchange order ids back to client
// ids once the exchange assigns them. All accessors copy, so callers never
// share memory with the store.
type Store struct {
	mu         sync.RWMutex
	byClientID map[string]model.Order
	byOrderID  map[int64]string
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		byClientID: make(map[string]model.Order),
		byOrderID:  make(map[int64]string),
	}
}

// Put inserts or replaces an order. The client order id is the identity; an
// order without one cannot be tracked. The exchange order id is immutable
// once assigned: an update carrying a different id is rejected, one carrying
// none keeps the assigned id.
func (s *Store) Put(order model.Order) error {
	if order.ClientOrderID == "" {
		return errs.New("state", errs.CodeInvalid,
			errs.WithMessage("order has no client order id"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.byClientID[order.ClientOrderID]; ok && prev.HasOrderID() {
		if order.HasOrderID() && order.OrderID != prev.OrderID {
			return errs.New("state", errs.CodeConflict,
				errs.WithMessage(fmt.Sprintf("order %s already has exchange id %d, refusing remap to %d",
					order.ClientOrderID, prev.OrderID, order.OrderID)))
		}
		order.OrderID = prev.OrderID
	}
	s.byClientID[order.ClientOrderID] = order
	if order.HasOrderID() {
		s.byOrderID[order.OrderID] = order.ClientOrderID
	}
	return nil
}

// GetByClientID looks up an order by client order id.
func (s *Store) GetByClientID(clientOrderID string) (model.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.byClientID[clientOrderID]
	return order, ok
}

// GetByOrderID looks up an order by exchange order id.
func (s *Store) GetByOrderID(orderID int64) (model.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clientID, ok := s.byOrderID[orderID]
	if !ok {
		return model.Order{}, false
	}
	order, ok := s.byClientID[clientID]
	return order, ok
}

// Resolve looks up an order by either identifier. A key that parses as an
// integer is tried as an exchange order id first, then as a client order id.
func (s *Store) Resolve(key string) (model.Order, bool) {
	if id, err := strconv.ParseInt(key, 10, 64); err == nil {
		if order, ok := s.GetByOrderID(id); ok {
			return order, true
		}
	}
	return s.GetByClientID(key)
}

// Remove drops an order from both indexes.
func (s *Store) Remove(clientOrderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.byClientID[clientOrderID]
	if !ok {
		return
	}
	delete(s.byClientID, clientOrderID)
	if order.HasOrderID() {
		delete(s.byOrderID, order.OrderID)
	}
}

// ListOpen returns the active orders sorted by creation time, oldest first.
func (s *Store) ListOpen() []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	open := make([]model.Order, 0, len(s.byClientID))
	for _, order := range s.byClientID {
		if order.Active() {
			open = append(open, order)
		}
	}
	sortOrders(open)
	return open
}

// Snapshot returns every tracked order sorted by creation time.
func (s *Store) Snapshot() []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]model.Order, 0, len(s.byClientID))
	for _, order := range s.byClientID {
		all = append(all, order)
	}
	sortOrders(all)
	return all
}

// PruneTerminal removes every terminal order and reports how many were
// dropped. Terminal orders are otherwise retained for inspection.
func (s *Store) PruneTerminal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for clientID, order := range s.byClientID {
		if !order.Terminal() {
			continue
		}
		delete(s.byClientID, clientID)
		if order.HasOrderID() {
			delete(s.byOrderID, order.OrderID)
		}
		pruned++
	}
	return pruned
}

// Load replaces the store contents with a previously persisted snapshot.
func (s *Store) Load(orders []model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byClientID = make(map[string]model.Order, len(orders))
	s.byOrderID = make(map[int64]string, len(orders))
	for _, order := range orders {
		if order.ClientOrderID == "" {
			return errs.New("state", errs.CodeInvalid,
				errs.WithMessage("persisted order has no client order id"))
		}
		s.byClientID[order.ClientOrderID] = order
		if order.HasOrderID() {
			s.byOrderID[order.OrderID] = order.ClientOrderID
		}
	}
	return nil
}

// Len reports the number of tracked orders.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byClientID)
}

func sortOrders(orders []model.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].Time != orders[j].Time {
			return orders[i].Time < orders[j].Time
		}
		return orders[i].ClientOrderID < orders[j].ClientOrderID
	})
}
