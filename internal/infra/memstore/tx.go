package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/items"
	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/orders"
	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/recipes"
	"github.com/ShariqSheikhh/AssemblyOS/internal/engine"
)

// tx buffers writes until commit; rows it writes are always locked by it.
type tx struct {
	s          *Store
	held       []rowLock
	heldItems  map[int64]bool
	heldOrders map[int64]bool
	stock      map[int64]int64
	status     map[int64]orders.Status
	moves      []items.Movement
}

func (t *tx) Recipe(ctx context.Context, productID int64) ([]recipes.Line, error) {
	return t.s.Recipe(ctx, productID)
}

func (t *tx) LockItems(ctx context.Context, ids []int64) (map[int64]items.Item, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for _, id := range sorted {
		if t.heldItems[id] {
			continue
		}
		t.s.mu.RLock()
		l, ok := t.s.itemLocks[id]
		t.s.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: item %d", engine.ErrNotFound, id)
		}
		if err := t.s.acquire(ctx, l); err != nil {
			return nil, err
		}
		t.held = append(t.held, l)
		t.heldItems[id] = true
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	out := make(map[int64]items.Item, len(sorted))
	for _, id := range sorted {
		it := t.s.items[id]
		if q, ok := t.stock[id]; ok {
			it.QuantityInStock = q
		}
		out[id] = it
	}
	return out, nil
}

func (t *tx) AdjustStock(_ context.Context, m items.Movement) (int64, error) {
	if !t.heldItems[m.ItemID] {
		return 0, fmt.Errorf("adjust item %d: row is not locked by this unit of work", m.ItemID)
	}
	cur, ok := t.stock[m.ItemID]
	if !ok {
		t.s.mu.RLock()
		cur = t.s.items[m.ItemID].QuantityInStock
		t.s.mu.RUnlock()
	}
	after := cur + m.Delta
	if after < 0 {
		return 0, fmt.Errorf("adjust item %d: stock would become %d", m.ItemID, after)
	}
	t.stock[m.ItemID] = after
	t.moves = append(t.moves, m)
	return after, nil
}

func (t *tx) LockOrder(ctx context.Context, id int64) (orders.Order, error) {
	if !t.heldOrders[id] {
		t.s.mu.RLock()
		l, ok := t.s.orderLocks[id]
		t.s.mu.RUnlock()
		if !ok {
			return orders.Order{}, fmt.Errorf("%w: order %d", engine.ErrNotFound, id)
		}
		if err := t.s.acquire(ctx, l); err != nil {
			return orders.Order{}, err
		}
		t.held = append(t.held, l)
		t.heldOrders[id] = true
	}
	return t.order(id), nil
}

func (t *tx) SetOrderStatus(ctx context.Context, id int64, st orders.Status) (orders.Order, error) {
	if !st.Valid() {
		return orders.Order{}, fmt.Errorf("%w: %d", engine.ErrInvalidStatus, uint8(st))
	}
	if _, err := t.LockOrder(ctx, id); err != nil {
		return orders.Order{}, err
	}
	t.status[id] = st
	return t.order(id), nil
}

func (t *tx) order(id int64) orders.Order {
	t.s.mu.RLock()
	o := t.s.orders[id]
	t.s.mu.RUnlock()
	if st, ok := t.status[id]; ok {
		o.Status = st
	}
	return o
}

func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, q := range t.stock {
		it := s.items[id]
		it.QuantityInStock = q
		s.items[id] = it
	}
	for id, st := range t.status {
		o := s.orders[id]
		o.Status = st
		o.UpdatedAt = now
		s.orders[id] = o
	}
	for _, m := range t.moves {
		s.nextMove++
		m.ID = s.nextMove
		m.CreatedAt = now
		s.movements = append(s.movements, m)
	}
	return nil
}

func (t *tx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		<-t.held[i]
	}
	t.held = nil
}
