package engine

import (
	"context"
	"fmt"

	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/orders"
)

// CreateOrder stores a Planned order after an advisory feasibility pass.
// An infeasible order is still created; the report tells the caller what
// is short today. Items without a recipe are rejected with ErrNotAProduct.
func (e *Engine) CreateOrder(ctx context.Context, productID, quantity int64) (orders.Order, Report, error) {
	rep, err := e.EvaluateFeasibility(ctx, productID, quantity)
	if err != nil {
		return orders.Order{}, Report{}, err
	}

	o, err := e.store.InsertOrder(ctx, productID, quantity)
	if err != nil {
		return orders.Order{}, Report{}, fmt.Errorf("insert order: %w", err)
	}

	e.log.Info("order created",
		"order_id", o.ID,
		"product_id", productID,
		"quantity", quantity,
		"feasible", rep.IsFeasible,
	)
	e.metrics.ObserveTransition(o.Status.String())
	for _, ob := range e.observers {
		ob.OrderChanged(ctx, o)
	}
	return o, rep, nil
}

// UpdateOrderStatus moves an order to next. It validates the transition
// only; moving to Done does not produce anything (see CompleteOrder).
// Setting the current status again is a no-op.
func (e *Engine) UpdateOrderStatus(ctx context.Context, orderID int64, next orders.Status) (orders.Order, error) {
	if !next.Valid() {
		return orders.Order{}, fmt.Errorf("%w: %d", ErrInvalidStatus, uint8(next))
	}

	var (
		o       orders.Order
		changed bool
	)
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		cur, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if cur.Status == next {
			o = cur
			return nil
		}
		if !cur.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, next)
		}
		o, err = tx.SetOrderStatus(ctx, orderID, next)
		changed = err == nil
		return err
	})
	if err != nil {
		return orders.Order{}, err
	}

	if changed {
		e.log.Info("order status changed", "order_id", o.ID, "status", o.Status.String())
		e.metrics.ObserveTransition(o.Status.String())
		for _, ob := range e.observers {
			ob.OrderChanged(ctx, o)
		}
	}
	return o, nil
}
