package recipes

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/items"
	"github.com/ShariqSheikhh/AssemblyOS/internal/infra/db"
)

type Repo struct{ q db.DBTX }

func NewRepo(q db.DBTX) *Repo { return &Repo{q: q} }

func (r *Repo) WithTx(tx pgx.Tx) *Repo { return &Repo{q: tx} }

// Lines returns the BOM of productID in step order; empty when the item has
// no recipe or does not exist.
func (r *Repo) Lines(ctx context.Context, productID int64) ([]Line, error) {
	rows, err := r.q.Query(ctx, `
		SELECT bc.bom_id, bc.product_id, bc.component_id, i.name, bc.quantity_required,
		       bc.step_order, bc.operation_name, bc.time_required_mins
		FROM bom_components bc
		JOIN items i ON i.item_id = bc.component_id
		WHERE bc.product_id = $1
		ORDER BY bc.step_order, bc.bom_id
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(
			&l.ID,
			&l.ProductID,
			&l.ComponentID,
			&l.ComponentName,
			&l.QuantityRequired,
			&l.StepOrder,
			&l.OperationName,
			&l.TimeRequiredMins,
		); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CreateProduct inserts the product item and all of its BOM lines atomically.
func (r *Repo) CreateProduct(ctx context.Context, p NewProduct) (items.Item, error) {
	if err := p.Validate(); err != nil {
		return items.Item{}, err
	}

	tx, err := r.q.Begin(ctx)
	if err != nil {
		return items.Item{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var it items.Item
	if err := tx.QueryRow(ctx, `
		INSERT INTO items (name, quantity_in_stock, is_product)
		VALUES ($1,$2,TRUE)
		RETURNING item_id, name, quantity_in_stock, is_product, created_at
	`, strings.TrimSpace(p.Name), p.QuantityInStock).Scan(
		&it.ID, &it.Name, &it.QuantityInStock, &it.IsProduct, &it.CreatedAt,
	); err != nil {
		return items.Item{}, fmt.Errorf("insert product: %w", err)
	}

	for i, c := range p.Components {
		if _, err := tx.Exec(ctx, `
			INSERT INTO bom_components (product_id, component_id, quantity_required, step_order, operation_name, time_required_mins)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, it.ID, c.ItemID, c.QuantityRequired, c.StepOrder, c.OperationName, c.TimeRequiredMins); err != nil {
			return items.Item{}, fmt.Errorf("insert component %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return items.Item{}, err
	}
	return it, nil
}

// Detail returns nil, nil when productID is not a product.
func (r *Repo) Detail(ctx context.Context, productID int64) (*ProductDetail, error) {
	it, err := items.NewRepo(r.q).GetByID(ctx, productID)
	if err != nil || it == nil || !it.IsProduct {
		return nil, err
	}

	rows, err := r.q.Query(ctx, `
		SELECT bc.component_id, i.name, bc.quantity_required, i.quantity_in_stock, bc.step_order, bc.operation_name
		FROM bom_components bc
		JOIN items i ON bc.component_id = i.item_id
		WHERE bc.product_id = $1
		ORDER BY bc.step_order, bc.bom_id
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	d := &ProductDetail{Item: *it, Components: []ComponentStock{}}
	for rows.Next() {
		var c ComponentStock
		if err := rows.Scan(&c.ComponentID, &c.Name, &c.QuantityRequired, &c.QuantityInStock, &c.StepOrder, &c.OperationName); err != nil {
			return nil, err
		}
		d.Components = append(d.Components, c)
	}
	return d, rows.Err()
}
