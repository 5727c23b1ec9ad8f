package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ShariqSheikhh/AssemblyOS/internal/infra/db"
)

type Repo struct{ q db.DBTX }

func NewRepo(q db.DBTX) *Repo { return &Repo{q: q} }

func (r *Repo) WithTx(tx pgx.Tx) *Repo { return &Repo{q: tx} }

const orderColumns = `order_id, product_id, quantity_to_produce, status, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		status string
	)
	if err := row.Scan(&o.ID, &o.ProductID, &o.QuantityToProduce, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Order{}, err
	}
	st, err := ParseStatus(status)
	if err != nil {
		return Order{}, err
	}
	o.Status = st
	return o, nil
}

// Insert always stores the order as Planned.
func (r *Repo) Insert(ctx context.Context, productID, qty int64) (Order, error) {
	o, err := scanOrder(r.q.QueryRow(ctx, `
		INSERT INTO manufacturing_orders (product_id, quantity_to_produce, status)
		VALUES ($1,$2,$3)
		RETURNING `+orderColumns, productID, qty, StatusPlanned.String()))
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}
	return o, nil
}

func (r *Repo) get(ctx context.Context, query string, id int64) (*Order, error) {
	o, err := scanOrder(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// Get returns nil, nil for an unknown id.
func (r *Repo) Get(ctx context.Context, id int64) (*Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM manufacturing_orders WHERE order_id = $1`, id)
}

func (r *Repo) GetForUpdate(ctx context.Context, id int64) (*Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM manufacturing_orders WHERE order_id = $1 FOR UPDATE`, id)
}

// SetStatus writes the status unconditionally; transition rules are the
// caller's job. Returns nil, nil for an unknown id.
func (r *Repo) SetStatus(ctx context.Context, id int64, st Status) (*Order, error) {
	if !st.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatus, uint8(st))
	}
	o, err := scanOrder(r.q.QueryRow(ctx, `
		UPDATE manufacturing_orders SET status = $1, updated_at = now()
		WHERE order_id = $2
		RETURNING `+orderColumns, st.String(), id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// List returns all orders with their product name, newest first.
func (r *Repo) List(ctx context.Context) ([]Order, error) {
	rows, err := r.q.Query(ctx, `
		SELECT mo.order_id, mo.product_id, i.name, mo.quantity_to_produce, mo.status, mo.created_at, mo.updated_at
		FROM manufacturing_orders mo
		JOIN items i ON mo.product_id = i.item_id
		ORDER BY mo.created_at DESC, mo.order_id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		var (
			o      Order
			status string
		)
		if err := rows.Scan(&o.ID, &o.ProductID, &o.ProductName, &o.QuantityToProduce, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		if o.Status, err = ParseStatus(status); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Reservations sums, per component, what open orders will consume when
// produced. Only direct BOM lines count.
func (r *Repo) Reservations(ctx context.Context, componentIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(componentIDs))
	if len(componentIDs) == 0 {
		return out, nil
	}
	rows, err := r.q.Query(ctx, `
		SELECT bc.component_id, SUM(bc.quantity_required * mo.quantity_to_produce)::BIGINT
		FROM manufacturing_orders mo
		JOIN bom_components bc ON bc.product_id = mo.product_id
		WHERE mo.status IN ($1, $2) AND bc.component_id = ANY($3)
		GROUP BY bc.component_id
	`, StatusPlanned.String(), StatusInProgress.String(), componentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, qty int64
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		out[id] = qty
	}
	return out, rows.Err()
}
