package items

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ShariqSheikhh/AssemblyOS/internal/infra/db"
)

type Repo struct{ q db.DBTX }

func NewRepo(q db.DBTX) *Repo { return &Repo{q: q} }

// WithTx returns a repo bound to tx.
func (r *Repo) WithTx(tx pgx.Tx) *Repo { return &Repo{q: tx} }

const itemColumns = `item_id, name, quantity_in_stock, is_product, created_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.Name, &it.QuantityInStock, &it.IsProduct, &it.CreatedAt)
	return it, err
}

func (r *Repo) Create(ctx context.Context, name string, qty int64, isProduct bool) (Item, error) {
	if err := ValidateNew(name, qty); err != nil {
		return Item{}, err
	}
	name = strings.TrimSpace(name)
	it, err := scanItem(r.q.QueryRow(ctx, `
		INSERT INTO items (name, quantity_in_stock, is_product)
		VALUES ($1,$2,$3)
		RETURNING `+itemColumns, name, qty, isProduct))
	if err != nil {
		return Item{}, fmt.Errorf("insert item: %w", err)
	}
	return it, nil
}

// GetByID returns nil, nil when the item does not exist.
func (r *Repo) GetByID(ctx context.Context, id int64) (*Item, error) {
	it, err := scanItem(r.q.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE item_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &it, nil
}

// GetForUpdate reads the row and holds an exclusive lock on it until the
// surrounding transaction ends. Only meaningful on a tx-bound repo.
func (r *Repo) GetForUpdate(ctx context.Context, id int64) (*Item, error) {
	it, err := scanItem(r.q.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE item_id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &it, nil
}

// GetMany is an unlocked snapshot read; missing ids are simply absent.
func (r *Repo) GetMany(ctx context.Context, ids []int64) (map[int64]Item, error) {
	out := make(map[int64]Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.q.Query(ctx, `SELECT `+itemColumns+` FROM items WHERE item_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out[it.ID] = it
	}
	return out, rows.Err()
}

func (r *Repo) list(ctx context.Context, where string) ([]Item, error) {
	rows, err := r.q.Query(ctx, `SELECT `+itemColumns+` FROM items `+where+` ORDER BY name, item_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repo) ListProducts(ctx context.Context) ([]Item, error) {
	return r.list(ctx, "WHERE is_product = TRUE")
}

// Inventory lists every item, products included.
func (r *Repo) Inventory(ctx context.Context) ([]Item, error) {
	return r.list(ctx, "")
}

func (r *Repo) Stats(ctx context.Context, lowStockThreshold int64) (Stats, error) {
	var s Stats
	err := r.q.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE is_product),
			COUNT(*),
			COUNT(*) FILTER (WHERE NOT is_product AND quantity_in_stock < $1)
		FROM items
	`, lowStockThreshold).Scan(&s.TotalProducts, &s.TotalInventoryItems, &s.LowStockItems)
	return s, err
}

// AdjustStock applies m.Delta and journals it. The caller must hold the row
// lock and must have checked that the result stays non-negative; the CHECK
// constraint is the last line of defence.
func (r *Repo) AdjustStock(ctx context.Context, m Movement) (int64, error) {
	var after int64
	err := r.q.QueryRow(ctx, `
		UPDATE items SET quantity_in_stock = quantity_in_stock + $1
		WHERE item_id = $2
		RETURNING quantity_in_stock
	`, m.Delta, m.ItemID).Scan(&after)
	if err != nil {
		return 0, err
	}

	if _, err = r.q.Exec(ctx, `
		INSERT INTO stock_movements (run_id, item_id, order_id, delta, reason)
		VALUES ($1,$2,$3,$4,$5)
	`, m.RunID, m.ItemID, m.OrderID, m.Delta, string(m.Reason)); err != nil {
		return 0, err
	}
	return after, nil
}

// Movements returns the newest journal entries first.
func (r *Repo) Movements(ctx context.Context, limit int) ([]Movement, error) {
	rows, err := r.q.Query(ctx, `
		SELECT m.movement_id, m.run_id, m.item_id, i.name, m.order_id, m.delta, m.reason, m.created_at
		FROM stock_movements m
		JOIN items i ON i.item_id = m.item_id
		ORDER BY m.created_at DESC, m.movement_id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Movement{}
	for rows.Next() {
		var m Movement
		var reason string
		if err := rows.Scan(&m.ID, &m.RunID, &m.ItemID, &m.ItemName, &m.OrderID, &m.Delta, &reason, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Reason = Reason(reason)
		out = append(out, m)
	}
	return out, rows.Err()
}
