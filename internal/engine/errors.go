package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/orders"
)

var (
	// ErrNotAProduct: the item has no BOM lines. Permanent.
	ErrNotAProduct = errors.New("item is not a product or has no bill of materials")
	// ErrInvalidQuantity: non-positive or out of range quantity. Permanent.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrQuantityOverflow is a kind of ErrInvalidQuantity.
	ErrQuantityOverflow = fmt.Errorf("%w: quantity exceeds the supported range", ErrInvalidQuantity)
	// ErrInsufficientStock is matched by *InsufficientStockError.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrContention: lock timeout, deadlock or serialization failure. Retryable.
	ErrContention = errors.New("stock is locked by a concurrent operation, retry")
	// ErrNotFound: unknown order or item id. Permanent.
	ErrNotFound = errors.New("not found")
	// ErrInvalidStatus: not one of the four status literals.
	ErrInvalidStatus = orders.ErrInvalidStatus
	// ErrInvalidTransition: the target status may not follow the current one.
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// InsufficientStockError carries the report computed under lock so callers
// can show every short component without another read.
type InsufficientStockError struct {
	ProductID int64
	Quantity  int64
	Report    Report
}

func (e *InsufficientStockError) Error() string {
	var short []string
	for _, d := range e.Report.Details {
		if !d.IsAvailable {
			short = append(short, fmt.Sprintf("%s (required %d, available %d)", d.Name, d.Required, d.Available))
		}
	}
	return fmt.Sprintf("insufficient stock to produce %d of item %d: %s", e.Quantity, e.ProductID, strings.Join(short, ", "))
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// IsRetryable reports whether the same call may succeed later without any
// change in its input.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrContention)
}
