package items

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidItem = errors.New("invalid item")

// ValidateNew checks a raw material or product before it is stored.
func ValidateNew(name string, qty int64) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidItem)
	}
	if qty < 0 {
		return fmt.Errorf("%w: initial stock must be >= 0", ErrInvalidItem)
	}
	return nil
}

// Item is anything that can be stocked: a raw material or a product.
type Item struct {
	ID              int64     `json:"item_id"`
	Name            string    `json:"name"`
	QuantityInStock int64     `json:"quantity_in_stock"`
	IsProduct       bool      `json:"is_product"`
	CreatedAt       time.Time `json:"created_at"`
}

type Reason string

const (
	ReasonConsume Reason = "consume"
	ReasonProduce Reason = "produce"
)

// Movement is one journaled stock change. All movements of a production
// run share its RunID.
type Movement struct {
	ID        int64     `json:"movement_id"`
	RunID     uuid.UUID `json:"run_id"`
	ItemID    int64     `json:"item_id"`
	ItemName  string    `json:"item_name,omitempty"`
	OrderID   *int64    `json:"order_id,omitempty"`
	Delta     int64     `json:"delta"`
	Reason    Reason    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats backs the dashboard counters.
type Stats struct {
	TotalProducts       int64 `json:"totalProducts"`
	TotalInventoryItems int64 `json:"totalInventoryItems"`
	LowStockItems       int64 `json:"lowStockItems"`
}

// DefaultLowStockThreshold: raw materials below this count as low stock.
const DefaultLowStockThreshold int64 = 50
