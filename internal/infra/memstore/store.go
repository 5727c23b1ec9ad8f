// Package memstore keeps the whole catalog in process memory. Row locks are
// one-slot channels taken in ascending id order, and a unit of work buffers
// its writes until commit, so readers never see a half-applied run.
//
// It is only correct for a single process: two servers each running a
// memstore do not share locks or stock.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/items"
	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/orders"
	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/recipes"
	"github.com/ShariqSheikhh/AssemblyOS/internal/engine"
)

type rowLock chan struct{}

func newRowLock() rowLock { return make(rowLock, 1) }

type Store struct {
	mu         sync.RWMutex
	items      map[int64]items.Item
	itemLocks  map[int64]rowLock
	lines      map[int64][]recipes.Line
	orders     map[int64]orders.Order
	orderLocks map[int64]rowLock
	movements  []items.Movement

	nextItem, nextLine, nextOrder, nextMove int64

	lockTimeout time.Duration
	now         func() time.Time
}

// New returns an empty store. A lock wait longer than lockTimeout fails with
// engine.ErrContention; zero waits until ctx is done.
func New(lockTimeout time.Duration) *Store {
	return &Store{
		items:       make(map[int64]items.Item),
		itemLocks:   make(map[int64]rowLock),
		lines:       make(map[int64][]recipes.Line),
		orders:      make(map[int64]orders.Order),
		orderLocks:  make(map[int64]rowLock),
		lockTimeout: lockTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

/* Catalog */

func (s *Store) CreateItem(_ context.Context, name string, qty int64) (items.Item, error) {
	if err := items.ValidateNew(name, qty); err != nil {
		return items.Item{}, err
	}
	name = strings.TrimSpace(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertItemLocked(name, qty, false), nil
}

func (s *Store) insertItemLocked(name string, qty int64, isProduct bool) items.Item {
	s.nextItem++
	it := items.Item{
		ID:              s.nextItem,
		Name:            name,
		QuantityInStock: qty,
		IsProduct:       isProduct,
		CreatedAt:       s.now(),
	}
	s.items[it.ID] = it
	s.itemLocks[it.ID] = newRowLock()
	return it
}

// CreateProduct stores the product and its BOM together or not at all.
func (s *Store) CreateProduct(_ context.Context, p recipes.NewProduct) (items.Item, error) {
	if err := p.Validate(); err != nil {
		return items.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range p.Components {
		if _, ok := s.items[c.ItemID]; !ok {
			return items.Item{}, fmt.Errorf("%w: component %d: item %d does not exist", recipes.ErrInvalidRecipe, i+1, c.ItemID)
		}
	}

	it := s.insertItemLocked(strings.TrimSpace(p.Name), p.QuantityInStock, true)
	lines := make([]recipes.Line, 0, len(p.Components))
	for _, c := range p.Components {
		s.nextLine++
		lines = append(lines, recipes.Line{
			ID:               s.nextLine,
			ProductID:        it.ID,
			ComponentID:      c.ItemID,
			QuantityRequired: c.QuantityRequired,
			StepOrder:        c.StepOrder,
			OperationName:    c.OperationName,
			TimeRequiredMins: c.TimeRequiredMins,
		})
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].StepOrder < lines[j].StepOrder })
	if len(lines) > 0 {
		s.lines[it.ID] = lines
	}
	return it, nil
}

func (s *Store) listItems(keep func(items.Item) bool) []items.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]items.Item, 0, len(s.items))
	for _, it := range s.items {
		if keep(it) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) ListProducts(_ context.Context) ([]items.Item, error) {
	return s.listItems(func(it items.Item) bool { return it.IsProduct }), nil
}

func (s *Store) Inventory(_ context.Context) ([]items.Item, error) {
	return s.listItems(func(items.Item) bool { return true }), nil
}

func (s *Store) Stats(_ context.Context, lowStockThreshold int64) (items.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st items.Stats
	for _, it := range s.items {
		st.TotalInventoryItems++
		if it.IsProduct {
			st.TotalProducts++
		} else if it.QuantityInStock < lowStockThreshold {
			st.LowStockItems++
		}
	}
	return st, nil
}

// ProductDetail returns nil, nil when id is not a product.
func (s *Store) ProductDetail(_ context.Context, id int64) (*recipes.ProductDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[id]
	if !ok || !it.IsProduct {
		return nil, nil
	}
	d := &recipes.ProductDetail{Item: it, Components: []recipes.ComponentStock{}}
	for _, l := range s.lines[id] {
		c := s.items[l.ComponentID]
		d.Components = append(d.Components, recipes.ComponentStock{
			ComponentID:      l.ComponentID,
			Name:             c.Name,
			QuantityRequired: l.QuantityRequired,
			QuantityInStock:  c.QuantityInStock,
			StepOrder:        l.StepOrder,
			OperationName:    l.OperationName,
		})
	}
	return d, nil
}

func (s *Store) ListOrders(_ context.Context) ([]orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]orders.Order, 0, len(s.orders))
	for _, o := range s.orders {
		o.ProductName = s.items[o.ProductID].Name
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Movements returns the newest journal entries first.
func (s *Store) Movements(_ context.Context, limit int) ([]items.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]items.Movement, 0, min(limit, len(s.movements)))
	for i := len(s.movements) - 1; i >= 0 && len(out) < limit; i-- {
		m := s.movements[i]
		m.ItemName = s.items[m.ItemID].Name
		out = append(out, m)
	}
	return out, nil
}

/* engine.Store */

func (s *Store) Recipe(_ context.Context, productID int64) ([]recipes.Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.lines[productID]
	out := make([]recipes.Line, len(src))
	for i, l := range src {
		l.ComponentName = s.items[l.ComponentID].Name
		out[i] = l
	}
	return out, nil
}

func (s *Store) Items(_ context.Context, ids []int64) (map[int64]items.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]items.Item, len(ids))
	for _, id := range ids {
		if it, ok := s.items[id]; ok {
			out[id] = it
		}
	}
	return out, nil
}

func (s *Store) Reservations(_ context.Context, componentIDs []int64) (map[int64]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[int64]bool, len(componentIDs))
	for _, id := range componentIDs {
		want[id] = true
	}
	out := make(map[int64]int64, len(componentIDs))
	for _, o := range s.orders {
		if !o.Status.IsOpen() {
			continue
		}
		for _, l := range s.lines[o.ProductID] {
			if want[l.ComponentID] {
				out[l.ComponentID] += l.QuantityRequired * o.QuantityToProduce
			}
		}
	}
	return out, nil
}

func (s *Store) InsertOrder(_ context.Context, productID, quantity int64) (orders.Order, error) {
	if quantity <= 0 {
		return orders.Order{}, fmt.Errorf("%w: %d", engine.ErrInvalidQuantity, quantity)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[productID]; !ok {
		return orders.Order{}, fmt.Errorf("%w: item %d", engine.ErrNotFound, productID)
	}
	s.nextOrder++
	now := s.now()
	o := orders.Order{
		ID:                s.nextOrder,
		ProductID:         productID,
		QuantityToProduce: quantity,
		Status:            orders.StatusPlanned,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.orders[o.ID] = o
	s.orderLocks[o.ID] = newRowLock()
	return o, nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(engine.Tx) error) error {
	t := &tx{
		s:          s,
		heldItems:  make(map[int64]bool),
		heldOrders: make(map[int64]bool),
		stock:      make(map[int64]int64),
		status:     make(map[int64]orders.Status),
	}
	defer t.release()

	if err := fn(t); err != nil {
		return err
	}
	return t.commit()
}

// acquire waits for a row lock; running out of lockTimeout is contention,
// a done ctx is reported as is.
func (s *Store) acquire(ctx context.Context, l rowLock) error {
	var timeout <-chan time.Time
	if s.lockTimeout > 0 {
		t := time.NewTimer(s.lockTimeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return fmt.Errorf("%w: lock wait exceeded %s", engine.ErrContention, s.lockTimeout)
	}
}
