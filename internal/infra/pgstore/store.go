// Package pgstore runs the engine on PostgreSQL. Every production run is one
// transaction that locks its rows with SELECT ... FOR UPDATE, so any number
// of server processes can share a database.
package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/items"
	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/orders"
	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/recipes"
	"github.com/ShariqSheikhh/AssemblyOS/internal/engine"
	"github.com/ShariqSheikhh/AssemblyOS/internal/infra/db"
)

type Store struct {
	pool    *pgxpool.Pool
	items   *items.Repo
	recipes *recipes.Repo
	orders  *orders.Repo
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:    pool,
		items:   items.NewRepo(pool),
		recipes: recipes.NewRepo(pool),
		orders:  orders.NewRepo(pool),
	}
}

func contention(err error) error {
	if err != nil && db.IsContention(err) {
		return fmt.Errorf("%w: %w", engine.ErrContention, err)
	}
	return err
}

/* Catalog */

func (s *Store) CreateItem(ctx context.Context, name string, qty int64) (items.Item, error) {
	return s.items.Create(ctx, name, qty, false)
}

func (s *Store) CreateProduct(ctx context.Context, p recipes.NewProduct) (items.Item, error) {
	it, err := s.recipes.CreateProduct(ctx, p)
	if err != nil && db.IsForeignKeyViolation(err) {
		return items.Item{}, fmt.Errorf("%w: component does not exist: %w", recipes.ErrInvalidRecipe, err)
	}
	return it, err
}

func (s *Store) ListProducts(ctx context.Context) ([]items.Item, error) {
	return s.items.ListProducts(ctx)
}

func (s *Store) Inventory(ctx context.Context) ([]items.Item, error) {
	return s.items.Inventory(ctx)
}

func (s *Store) Stats(ctx context.Context, lowStockThreshold int64) (items.Stats, error) {
	return s.items.Stats(ctx, lowStockThreshold)
}

func (s *Store) ProductDetail(ctx context.Context, id int64) (*recipes.ProductDetail, error) {
	return s.recipes.Detail(ctx, id)
}

func (s *Store) ListOrders(ctx context.Context) ([]orders.Order, error) {
	return s.orders.List(ctx)
}

func (s *Store) Movements(ctx context.Context, limit int) ([]items.Movement, error) {
	return s.items.Movements(ctx, limit)
}

/* engine.Store */

func (s *Store) Recipe(ctx context.Context, productID int64) ([]recipes.Line, error) {
	return s.recipes.Lines(ctx, productID)
}

func (s *Store) Items(ctx context.Context, ids []int64) (map[int64]items.Item, error) {
	return s.items.GetMany(ctx, ids)
}

func (s *Store) Reservations(ctx context.Context, componentIDs []int64) (map[int64]int64, error) {
	return s.orders.Reservations(ctx, componentIDs)
}

func (s *Store) InsertOrder(ctx context.Context, productID, quantity int64) (orders.Order, error) {
	if quantity <= 0 {
		return orders.Order{}, fmt.Errorf("%w: %d", engine.ErrInvalidQuantity, quantity)
	}
	o, err := s.orders.Insert(ctx, productID, quantity)
	if err != nil && db.IsForeignKeyViolation(err) {
		return orders.Order{}, fmt.Errorf("%w: item %d", engine.ErrNotFound, productID)
	}
	return o, err
}

func (s *Store) WithinTx(ctx context.Context, fn func(engine.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(newTx(tx)); err != nil {
		return contention(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return contention(fmt.Errorf("commit: %w", err))
	}
	return nil
}

type txView struct {
	items   *items.Repo
	recipes *recipes.Repo
	orders  *orders.Repo
}

func newTx(tx pgx.Tx) *txView {
	return &txView{
		items:   items.NewRepo(tx),
		recipes: recipes.NewRepo(tx),
		orders:  orders.NewRepo(tx),
	}
}

func (t *txView) Recipe(ctx context.Context, productID int64) ([]recipes.Line, error) {
	return t.recipes.Lines(ctx, productID)
}

// LockItems locks one row at a time in the order given; the engine passes
// ids ascending.
func (t *txView) LockItems(ctx context.Context, ids []int64) (map[int64]items.Item, error) {
	out := make(map[int64]items.Item, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		it, err := t.items.GetForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		if it == nil {
			return nil, fmt.Errorf("%w: item %d", engine.ErrNotFound, id)
		}
		out[id] = *it
	}
	return out, nil
}

func (t *txView) AdjustStock(ctx context.Context, m items.Movement) (int64, error) {
	return t.items.AdjustStock(ctx, m)
}

func (t *txView) LockOrder(ctx context.Context, id int64) (orders.Order, error) {
	o, err := t.orders.GetForUpdate(ctx, id)
	if err != nil {
		return orders.Order{}, err
	}
	if o == nil {
		return orders.Order{}, fmt.Errorf("%w: order %d", engine.ErrNotFound, id)
	}
	return *o, nil
}

func (t *txView) SetOrderStatus(ctx context.Context, id int64, st orders.Status) (orders.Order, error) {
	o, err := t.orders.SetStatus(ctx, id, st)
	if err != nil {
		return orders.Order{}, err
	}
	if o == nil {
		return orders.Order{}, fmt.Errorf("%w: order %d", engine.ErrNotFound, id)
	}
	return *o, nil
}
