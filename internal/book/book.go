// Package book holds pending orders awaiting a matching event.
package book

import (
	"sync"

	"github.com/tathienbao/algo-engine/internal/types"
)

// Book is the order book of non-terminal orders. Iteration order for an
// instrument equals insertion order, which is the tie-break when two
// orders could fill on the same event. Thread-safe for live mode.
type Book struct {
	mu     sync.RWMutex
	orders map[string]*types.Order // order id -> order
	seq    []string                // insertion order of order ids
}

// New creates an empty order book.
func New() *Book {
	return &Book{
		orders: make(map[string]*types.Order),
	}
}

// Insert adds a pending order. Terminal orders are refused.
func (b *Book) Insert(order *types.Order) error {
	if order.Status.IsFinal() {
		return types.ErrIllegalTransition
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.orders[order.ID]; exists {
		return types.ErrIllegalTransition
	}

	b.orders[order.ID] = order
	b.seq = append(b.seq, order.ID)
	return nil
}

// Remove evicts an order by id. Returns ErrOrderNotFound if absent.
func (b *Book) Remove(orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.orders[orderID]; !ok {
		return types.ErrOrderNotFound
	}
	delete(b.orders, orderID)

	for i, id := range b.seq {
		if id == orderID {
			b.seq = append(b.seq[:i], b.seq[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns the pending order with the given id.
func (b *Book) Get(orderID string) (*types.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	order, ok := b.orders[orderID]
	return order, ok
}

// PendingForInstrument returns the pending orders for an instrument in
// insertion order.
func (b *Book) PendingForInstrument(instrument string) []*types.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var pending []*types.Order
	for _, id := range b.seq {
		order := b.orders[id]
		if order.Instrument == instrument {
			pending = append(pending, order)
		}
	}
	return pending
}

// All returns every pending order in insertion order.
func (b *Book) All() []*types.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	all := make([]*types.Order, 0, len(b.seq))
	for _, id := range b.seq {
		all = append(all, b.orders[id])
	}
	return all
}

// Len returns the number of pending orders.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.orders)
}
