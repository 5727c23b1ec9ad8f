package recipes

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/items"
)

var ErrInvalidRecipe = errors.New("invalid recipe")

// Line is one BOM entry: QuantityRequired units of ComponentID per unit of ProductID.
type Line struct {
	ID               int64   `json:"bom_id"`
	ProductID        int64   `json:"product_id"`
	ComponentID      int64   `json:"component_id"`
	ComponentName    string  `json:"name,omitempty"`
	QuantityRequired int64   `json:"quantity_required"`
	StepOrder        int32   `json:"step_order"`
	OperationName    *string `json:"operation_name,omitempty"`
	TimeRequiredMins *int32  `json:"time_required_mins,omitempty"`
}

type ComponentInput struct {
	ItemID           int64   `json:"item_id"`
	QuantityRequired int64   `json:"quantity_required"`
	StepOrder        int32   `json:"step_order"`
	OperationName    *string `json:"operation_name,omitempty"`
	TimeRequiredMins *int32  `json:"time_required_mins,omitempty"`
}

// NewProduct is a product together with its whole BOM. Both are stored in
// one transaction and the BOM cannot be edited afterwards.
type NewProduct struct {
	Name            string           `json:"name"`
	QuantityInStock int64            `json:"quantity_in_stock"`
	Components      []ComponentInput `json:"components"`
}

// Validate checks everything that does not need the database. Components
// must already exist, which means a new product can never appear in its own
// recipe tree.
func (p NewProduct) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name is required", ErrInvalidRecipe)
	}
	if p.QuantityInStock < 0 {
		return fmt.Errorf("%w: initial stock must be >= 0", ErrInvalidRecipe)
	}
	for i, c := range p.Components {
		if c.ItemID <= 0 {
			return fmt.Errorf("%w: component %d: item_id is required", ErrInvalidRecipe, i+1)
		}
		if c.QuantityRequired <= 0 {
			return fmt.Errorf("%w: component %d: quantity_required must be > 0", ErrInvalidRecipe, i+1)
		}
		if c.StepOrder <= 0 {
			return fmt.Errorf("%w: component %d: step_order must be > 0", ErrInvalidRecipe, i+1)
		}
		if c.TimeRequiredMins != nil && *c.TimeRequiredMins < 0 {
			return fmt.Errorf("%w: component %d: time_required_mins must be >= 0", ErrInvalidRecipe, i+1)
		}
	}
	return nil
}

// ComponentStock is a BOM line joined with the component's current stock.
type ComponentStock struct {
	ComponentID      int64   `json:"component_id"`
	Name             string  `json:"name"`
	QuantityRequired int64   `json:"quantity_required"`
	QuantityInStock  int64   `json:"quantity_in_stock"`
	StepOrder        int32   `json:"step_order"`
	OperationName    *string `json:"operation_name,omitempty"`
}

type ProductDetail struct {
	items.Item
	Components []ComponentStock `json:"components"`
}
