// Package report renders the stock ledger as an xlsx workbook.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/items"
)

const (
	SheetStock     = "Stock"
	SheetMovements = "Movements"

	// MovementLimit caps the journal sheet.
	MovementLimit = 5000
)

type Source interface {
	Inventory(ctx context.Context) ([]items.Item, error)
	Movements(ctx context.Context, limit int) ([]items.Movement, error)
}

// FileName is the suggested download name for a workbook built at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("stock_%s.xlsx", t.Format("20060102_150405"))
}

// WriteStock writes a workbook with the current stock of every item and the
// newest journal entries. Both sheets are unlocked snapshots and may be a
// moment apart.
func WriteStock(ctx context.Context, src Source, w io.Writer) error {
	all, err := src.Inventory(ctx)
	if err != nil {
		return fmt.Errorf("read inventory: %w", err)
	}
	moves, err := src.Movements(ctx, MovementLimit)
	if err != nil {
		return fmt.Errorf("read movements: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), SheetStock); err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetMovements); err != nil {
		return err
	}

	stockRows := make([][]interface{}, 0, len(all))
	for _, it := range all {
		kind := "material"
		if it.IsProduct {
			kind = "product"
		}
		stockRows = append(stockRows, []interface{}{it.ID, it.Name, kind, it.QuantityInStock})
	}
	if err := writeSheet(f, SheetStock, []interface{}{"item_id", "name", "kind", "quantity_in_stock"}, stockRows); err != nil {
		return err
	}

	moveRows := make([][]interface{}, 0, len(moves))
	for _, m := range moves {
		var order interface{}
		if m.OrderID != nil {
			order = *m.OrderID
		}
		moveRows = append(moveRows, []interface{}{
			m.CreatedAt.UTC().Format(time.RFC3339),
			m.RunID.String(),
			m.ItemID,
			m.ItemName,
			string(m.Reason),
			m.Delta,
			order,
		})
	}
	header := []interface{}{"created_at", "run_id", "item_id", "item_name", "reason", "delta", "order_id"}
	if err := writeSheet(f, SheetMovements, header, moveRows); err != nil {
		return err
	}

	return f.Write(w)
}

func writeSheet(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("%s header: %w", sheet, err)
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}
