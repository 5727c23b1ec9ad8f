package engine

import (
	"context"

	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/items"
	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/orders"
	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/recipes"
)

// Store is everything the engine needs from persistence. Reads on Store are
// unlocked snapshots; anything that mutates stock goes through WithinTx.
type Store interface {
	// Recipe returns the BOM in step order, empty if there is none.
	Recipe(ctx context.Context, productID int64) ([]recipes.Line, error)
	// Items returns an unlocked snapshot; unknown ids are absent from the map.
	Items(ctx context.Context, ids []int64) (map[int64]items.Item, error)
	// Reservations sums per component what open orders will consume.
	Reservations(ctx context.Context, componentIDs []int64) (map[int64]int64, error)
	// InsertOrder stores a new Planned order.
	InsertOrder(ctx context.Context, productID, quantity int64) (orders.Order, error)
	// WithinTx runs fn as one unit of work. It commits when fn returns nil
	// and rolls back everything otherwise. Lock waits that time out surface
	// as ErrContention.
	WithinTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the view of the store inside a unit of work.
type Tx interface {
	Recipe(ctx context.Context, productID int64) ([]recipes.Line, error)
	// LockItems takes exclusive row locks in ascending id order and returns
	// the rows as they are under lock. Any unknown id is ErrNotFound.
	LockItems(ctx context.Context, ids []int64) (map[int64]items.Item, error)
	// AdjustStock applies m.Delta to a locked row, journals m and returns
	// the new quantity.
	AdjustStock(ctx context.Context, m items.Movement) (int64, error)
	// LockOrder locks the order row; unknown ids are ErrNotFound.
	LockOrder(ctx context.Context, id int64) (orders.Order, error)
	// SetOrderStatus writes the status; unknown ids are ErrNotFound.
	SetOrderStatus(ctx context.Context, id int64, status orders.Status) (orders.Order, error)
}

// Observer is told about committed changes. Calls happen after commit and
// their failures never affect the operation's result.
type Observer interface {
	ProductionCommitted(ctx context.Context, res ProductionResult)
	OrderChanged(ctx context.Context, o orders.Order)
}
