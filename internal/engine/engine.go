// Package engine decides whether a production run is feasible and performs
// it as one atomic stock mutation. It also owns the order lifecycle rules.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/items"
	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/orders"
	"github.com/ShariqSheikhh/AssemblyOS/internal/infra/metrics"
)

const tracerName = "github.com/ShariqSheikhh/AssemblyOS/internal/engine"

type Engine struct {
	store     Store
	log       *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	observers []Observer
	now       func() time.Time
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithObservers(obs ...Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, obs...) }
}

func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		log:    slog.Default(),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// StockChange is one row touched by a production run.
type StockChange struct {
	ItemID int64  `json:"item_id"`
	Name   string `json:"name"`
	Before int64  `json:"before"`
	After  int64  `json:"after"`
}

type ProductionResult struct {
	RunID       uuid.UUID     `json:"run_id"`
	ProductID   int64         `json:"product_id"`
	Quantity    int64         `json:"quantity"`
	OrderID     *int64        `json:"order_id,omitempty"`
	Product     StockChange   `json:"product"`
	Components  []StockChange `json:"components"`
	CommittedAt time.Time     `json:"committed_at"`
}

// EvaluateFeasibility is the advisory, unlocked check. It never mutates
// stock and never fails because stock is short; that is IsFeasible=false.
func (e *Engine) EvaluateFeasibility(ctx context.Context, productID, quantity int64) (Report, error) {
	ctx, span := e.tracer.Start(ctx, "engine.EvaluateFeasibility", trace.WithAttributes(
		attribute.Int64("product.id", productID),
		attribute.Int64("production.quantity", quantity),
	))
	defer span.End()

	rep, err := e.evaluate(ctx, productID, quantity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Report{}, err
	}
	span.SetAttributes(attribute.Bool("production.feasible", rep.IsFeasible))
	e.metrics.ObserveFeasibility(rep.IsFeasible)
	return rep, nil
}

func (e *Engine) evaluate(ctx context.Context, productID, quantity int64) (Report, error) {
	lines, err := e.store.Recipe(ctx, productID)
	if err != nil {
		return Report{}, fmt.Errorf("load recipe: %w", err)
	}
	reqs, err := requirements(lines, quantity)
	if err != nil {
		return Report{}, err
	}

	ids := lockSet(reqs)
	stock, err := e.store.Items(ctx, ids)
	if err != nil {
		return Report{}, fmt.Errorf("read stock: %w", err)
	}
	reserved, err := e.store.Reservations(ctx, ids)
	if err != nil {
		return Report{}, fmt.Errorf("read reservations: %w", err)
	}
	return buildReport(reqs, stock, reserved), nil
}

// Produce converts component stock into quantity units of productID in one
// unit of work. It is not deduplicated: two calls are two productions.
func (e *Engine) Produce(ctx context.Context, productID, quantity int64) (ProductionResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Produce", trace.WithAttributes(
		attribute.Int64("product.id", productID),
		attribute.Int64("production.quantity", quantity),
	))
	defer span.End()

	start := e.now()
	var res ProductionResult
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		res, err = e.produceTx(ctx, tx, productID, quantity, nil)
		return err
	})
	e.finishProduction(ctx, span, start, productID, quantity, res, err)
	if err != nil {
		return ProductionResult{}, err
	}
	return res, nil
}

// CompleteOrder produces the order's product and marks the order Done in
// the same unit of work, so an order is produced at most once. Planned and
// In Progress orders can be completed.
func (e *Engine) CompleteOrder(ctx context.Context, orderID int64) (orders.Order, ProductionResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.CompleteOrder", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
	))
	defer span.End()

	start := e.now()
	var (
		done orders.Order
		res  ProductionResult
	)
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Status.IsOpen() {
			return fmt.Errorf("%w: order %d is %s", ErrInvalidTransition, o.ID, o.Status)
		}
		res, err = e.produceTx(ctx, tx, o.ProductID, o.QuantityToProduce, &o.ID)
		if err != nil {
			return err
		}
		done, err = tx.SetOrderStatus(ctx, o.ID, orders.StatusDone)
		return err
	})
	e.finishProduction(ctx, span, start, res.ProductID, res.Quantity, res, err)
	if err != nil {
		return orders.Order{}, ProductionResult{}, err
	}

	e.metrics.ObserveTransition(done.Status.String())
	for _, o := range e.observers {
		o.OrderChanged(ctx, done)
	}
	return done, res, nil
}

func (e *Engine) produceTx(ctx context.Context, tx Tx, productID, quantity int64, orderID *int64) (ProductionResult, error) {
	lines, err := tx.Recipe(ctx, productID)
	if err != nil {
		return ProductionResult{}, fmt.Errorf("load recipe: %w", err)
	}
	reqs, err := requirements(lines, quantity)
	if err != nil {
		return ProductionResult{}, err
	}

	// The product row is locked with the components so runs whose product
	// is another run's component still lock in one global order.
	locked, err := tx.LockItems(ctx, lockSet(reqs, productID))
	if err != nil {
		return ProductionResult{}, fmt.Errorf("lock stock: %w", err)
	}

	rep := buildReport(reqs, locked, nil)
	if !rep.IsFeasible {
		return ProductionResult{}, &InsufficientStockError{ProductID: productID, Quantity: quantity, Report: rep}
	}

	product := locked[productID]
	if product.QuantityInStock > MaxQuantity-quantity {
		return ProductionResult{}, fmt.Errorf("%w: stock of item %d would exceed %d", ErrQuantityOverflow, productID, MaxQuantity)
	}

	res := ProductionResult{
		RunID:      uuid.New(),
		ProductID:  productID,
		Quantity:   quantity,
		OrderID:    orderID,
		Components: make([]StockChange, 0, len(reqs)),
	}
	for _, rq := range reqs {
		it := locked[rq.componentID]
		after, err := tx.AdjustStock(ctx, items.Movement{
			RunID:   res.RunID,
			ItemID:  rq.componentID,
			OrderID: orderID,
			Delta:   -rq.required,
			Reason:  items.ReasonConsume,
		})
		if err != nil {
			return ProductionResult{}, fmt.Errorf("consume item %d: %w", rq.componentID, err)
		}
		res.Components = append(res.Components, StockChange{ItemID: it.ID, Name: it.Name, Before: it.QuantityInStock, After: after})
	}

	after, err := tx.AdjustStock(ctx, items.Movement{
		RunID:   res.RunID,
		ItemID:  productID,
		OrderID: orderID,
		Delta:   quantity,
		Reason:  items.ReasonProduce,
	})
	if err != nil {
		return ProductionResult{}, fmt.Errorf("credit item %d: %w", productID, err)
	}
	res.Product = StockChange{ItemID: product.ID, Name: product.Name, Before: product.QuantityInStock, After: after}
	res.CommittedAt = e.now()
	return res, nil
}

func (e *Engine) finishProduction(ctx context.Context, span trace.Span, start time.Time, productID, quantity int64, res ProductionResult, err error) {
	elapsed := e.now().Sub(start)
	outcome := outcomeOf(err)
	e.metrics.ObserveProduction(outcome, elapsed, res.Quantity)
	span.SetAttributes(attribute.String("production.outcome", outcome))

	switch {
	case err == nil:
		span.SetAttributes(attribute.String("production.run_id", res.RunID.String()))
		e.log.Info("production committed",
			"run_id", res.RunID.String(),
			"product_id", res.ProductID,
			"quantity", res.Quantity,
			"product_stock", res.Product.After,
			"elapsed", elapsed,
		)
		for _, o := range e.observers {
			o.ProductionCommitted(ctx, res)
		}
		return
	case errors.Is(err, ErrContention):
		e.log.Warn("production aborted by lock contention", "product_id", productID, "quantity", quantity, "err", err)
	case outcome != "error":
		e.log.Info("production rejected", "product_id", productID, "quantity", quantity, "err", err)
	default:
		e.log.Error("production failed", "product_id", productID, "quantity", quantity, "err", err)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrNotAProduct):
		return "not_a_product"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrContention):
		return "contention"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "error"
	}
}
