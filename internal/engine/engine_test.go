package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/items"
	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/orders"
	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/recipes"
	"github.com/ShariqSheikhh/AssemblyOS/internal/engine"
	"github.com/ShariqSheikhh/AssemblyOS/internal/infra/memstore"
	"github.com/ShariqSheikhh/AssemblyOS/internal/infra/metrics"
)

type recorder struct {
	mu     sync.Mutex
	runs   []engine.ProductionResult
	orders []orders.Order
}

func (r *recorder) ProductionCommitted(_ context.Context, res engine.ProductionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, res)
}

func (r *recorder) OrderChanged(_ context.Context, o orders.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, o)
}

type fixture struct {
	store *memstore.Store
	eng   *engine.Engine
	rec   *recorder
}

func newFixture(t *testing.T, lockTimeout time.Duration) *fixture {
	t.Helper()
	s := memstore.New(lockTimeout)
	rec := &recorder{}
	e := engine.New(s,
		engine.WithMetrics(metrics.New(prometheus.NewRegistry())),
		engine.WithObservers(rec),
	)
	return &fixture{store: s, eng: e, rec: rec}
}

func (f *fixture) item(t *testing.T, name string, qty int64) items.Item {
	t.Helper()
	it, err := f.store.CreateItem(context.Background(), name, qty)
	require.NoError(t, err)
	return it
}

func (f *fixture) product(t *testing.T, name string, qty int64, comps ...recipes.ComponentInput) items.Item {
	t.Helper()
	it, err := f.store.CreateProduct(context.Background(), recipes.NewProduct{Name: name, QuantityInStock: qty, Components: comps})
	require.NoError(t, err)
	return it
}

func (f *fixture) stock(t *testing.T) map[int64]int64 {
	t.Helper()
	all, err := f.store.Inventory(context.Background())
	require.NoError(t, err)
	out := make(map[int64]int64, len(all))
	for _, it := range all {
		out[it.ID] = it.QuantityInStock
	}
	return out
}

func comp(id, qty int64, step int32) recipes.ComponentInput {
	return recipes.ComponentInput{ItemID: id, QuantityRequired: qty, StepOrder: step}
}

func TestProduce_Scenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	a := f.item(t, "A", 10)
	b := f.product(t, "B", 0, comp(a.ID, 2, 1))

	res, err := f.eng.Produce(ctx, b.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, engine.StockChange{ItemID: b.ID, Name: "B", Before: 0, After: 4}, res.Product)
	require.Len(t, res.Components, 1)
	assert.Equal(t, engine.StockChange{ItemID: a.ID, Name: "A", Before: 10, After: 2}, res.Components[0])
	assert.Equal(t, map[int64]int64{a.ID: 2, b.ID: 4}, f.stock(t))

	_, err = f.eng.Produce(ctx, b.ID, 2)
	require.ErrorIs(t, err, engine.ErrInsufficientStock)

	var ise *engine.InsufficientStockError
	require.True(t, errors.As(err, &ise))
	require.Len(t, ise.Report.Details, 1)
	d := ise.Report.Details[0]
	assert.Equal(t, int64(4), d.Required)
	assert.Equal(t, int64(2), d.Available)
	assert.False(t, d.IsAvailable)

	assert.Equal(t, map[int64]int64{a.ID: 2, b.ID: 4}, f.stock(t))
	assert.Len(t, f.rec.runs, 1)
}

func TestProduce_EmptyRecipe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	raw := f.item(t, "bolt", 5)
	bare := f.product(t, "kit", 0)

	for _, id := range []int64{raw.ID, bare.ID, 999} {
		_, err := f.eng.EvaluateFeasibility(ctx, id, 1)
		require.ErrorIs(t, err, engine.ErrNotAProduct)

		_, err = f.eng.Produce(ctx, id, 1)
		require.ErrorIs(t, err, engine.ErrNotAProduct)
	}
	assert.Equal(t, map[int64]int64{raw.ID: 5, bare.ID: 0}, f.stock(t))
}

func TestProduce_InvalidQuantity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	a := f.item(t, "A", 10)
	b := f.product(t, "B", 0, comp(a.ID, 1, 1))

	for _, q := range []int64{0, -3, engine.MaxQuantity + 1} {
		_, err := f.eng.Produce(ctx, b.ID, q)
		require.ErrorIs(t, err, engine.ErrInvalidQuantity, "quantity %d", q)
	}
	assert.Equal(t, map[int64]int64{a.ID: 10, b.ID: 0}, f.stock(t))
}

func TestProduce_ConservesStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	a := f.item(t, "A", 100)
	b := f.item(t, "B", 40)
	c := f.item(t, "C", 7)
	unrelated := f.item(t, "D", 3)
	p := f.product(t, "P", 2, comp(a.ID, 3, 1), comp(b.ID, 2, 2), comp(a.ID, 1, 3), comp(c.ID, 1, 4))

	before := f.stock(t)
	const qty = 5
	_, err := f.eng.Produce(ctx, p.ID, qty)
	require.NoError(t, err)
	after := f.stock(t)

	assert.Equal(t, before[a.ID]-4*qty, after[a.ID])
	assert.Equal(t, before[b.ID]-2*qty, after[b.ID])
	assert.Equal(t, before[c.ID]-1*qty, after[c.ID])
	assert.Equal(t, before[p.ID]+qty, after[p.ID])
	assert.Equal(t, before[unrelated.ID], after[unrelated.ID])

	moves, err := f.store.Movements(ctx, 10)
	require.NoError(t, err)
	require.Len(t, moves, 4)
	runID := moves[0].RunID
	var sum int64
	for _, m := range moves {
		assert.Equal(t, runID, m.RunID)
		sum += m.Delta
	}
	assert.Equal(t, int64(qty-(4+2+1)*qty), sum)
}

func TestProduce_ShortComponentChangesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	a := f.item(t, "A", 50)
	b := f.item(t, "B", 1)
	c := f.item(t, "C", 50)
	p := f.product(t, "P", 9, comp(a.ID, 1, 1), comp(b.ID, 1, 2), comp(c.ID, 1, 3))

	before := f.stock(t)
	_, err := f.eng.Produce(ctx, p.ID, 2)
	require.ErrorIs(t, err, engine.ErrInsufficientStock)

	var ise *engine.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	short := ise.Report.Shortfalls()
	require.Len(t, short, 1)
	assert.Equal(t, "B", short[0].Name)

	assert.Equal(t, before, f.stock(t))
	moves, err := f.store.Movements(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, moves)
	assert.Empty(t, f.rec.runs)
}

func TestProduce_ConcurrentRunsNeverDoubleSpend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5*time.Second)
	a := f.item(t, "A", 10)
	b := f.product(t, "B", 0, comp(a.ID, 2, 1))

	const runs = 8
	var (
		wg   sync.WaitGroup
		errs = make(chan error, runs)
		gate = make(chan struct{})
	)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			_, err := f.eng.Produce(ctx, b.ID, 3)
			errs <- err
		}()
	}
	close(gate)
	wg.Wait()
	close(errs)

	var ok, short int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, engine.ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, runs-1, short)
	assert.Equal(t, map[int64]int64{a.ID: 4, b.ID: 3}, f.stock(t))
}

func TestProduce_OverlappingRecipesDoNotDeadlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5*time.Second)
	a := f.item(t, "A", 1000)
	b := f.item(t, "B", 1000)
	p := f.product(t, "P", 0, comp(b.ID, 1, 1), comp(a.ID, 1, 2))
	q := f.product(t, "Q", 0, comp(a.ID, 1, 1), comp(p.ID, 1, 2))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.eng.Produce(ctx, p.ID, 2)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.eng.Produce(ctx, q.ID, 1)
			if err != nil {
				assert.ErrorIs(t, err, engine.ErrInsufficientStock)
			}
		}()
	}
	wg.Wait()

	st := f.stock(t)
	for id, v := range st {
		assert.GreaterOrEqual(t, v, int64(0), "item %d", id)
	}
	builtQ := st[q.ID]
	assert.Equal(t, int64(1000-40), st[b.ID])
	assert.Equal(t, int64(40)-builtQ, st[p.ID])
	assert.Equal(t, int64(1000-40)-builtQ, st[a.ID])
}

func TestProduce_LockTimeoutIsContention(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 20*time.Millisecond)
	a := f.item(t, "A", 10)
	b := f.product(t, "B", 0, comp(a.ID, 1, 1))

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.store.WithinTx(ctx, func(tx engine.Tx) error {
			if _, err := tx.LockItems(ctx, []int64{a.ID}); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	_, err := f.eng.Produce(ctx, b.ID, 1)
	require.ErrorIs(t, err, engine.ErrContention)
	assert.True(t, engine.IsRetryable(err))

	close(release)
	require.NoError(t, <-done)

	_, err = f.eng.Produce(ctx, b.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{a.ID: 9, b.ID: 1}, f.stock(t))
}

func TestEvaluateFeasibility_IsReadOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	a := f.item(t, "A", 10)
	b := f.product(t, "B", 0, comp(a.ID, 2, 1))

	before := f.stock(t)
	for i := 0; i < 5; i++ {
		rep, err := f.eng.EvaluateFeasibility(ctx, b.ID, int64(i+3))
		require.NoError(t, err)
		assert.Equal(t, i+3 <= 5, rep.IsFeasible)
	}
	assert.Equal(t, before, f.stock(t))
}

func TestEvaluateFeasibility_ShowsReservations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	a := f.item(t, "A", 10)
	b := f.product(t, "B", 0, comp(a.ID, 2, 1))

	_, _, err := f.eng.CreateOrder(ctx, b.ID, 3)
	require.NoError(t, err)

	rep, err := f.eng.EvaluateFeasibility(ctx, b.ID, 5)
	require.NoError(t, err)
	assert.True(t, rep.IsFeasible)
	assert.Equal(t, int64(6), rep.Details[0].Reserved)
}

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	a := f.item(t, "A", 10)
	b := f.product(t, "B", 0, comp(a.ID, 2, 1))

	o, rep, err := f.eng.CreateOrder(ctx, b.ID, 50)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPlanned, o.Status)
	assert.Equal(t, int64(50), o.QuantityToProduce)
	assert.False(t, rep.IsFeasible)

	_, _, err = f.eng.CreateOrder(ctx, a.ID, 1)
	require.ErrorIs(t, err, engine.ErrNotAProduct)

	_, _, err = f.eng.CreateOrder(ctx, b.ID, 0)
	require.ErrorIs(t, err, engine.ErrInvalidQuantity)

	list, err := f.store.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "B", list[0].ProductName)
	assert.Equal(t, map[int64]int64{a.ID: 10, b.ID: 0}, f.stock(t))
}

func TestUpdateOrderStatus_Transitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	a := f.item(t, "A", 10)
	b := f.product(t, "B", 0, comp(a.ID, 1, 1))

	o, _, err := f.eng.CreateOrder(ctx, b.ID, 1)
	require.NoError(t, err)

	_, err = f.eng.UpdateOrderStatus(ctx, o.ID, orders.StatusDone)
	require.ErrorIs(t, err, engine.ErrInvalidTransition)

	got, err := f.eng.UpdateOrderStatus(ctx, o.ID, orders.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusInProgress, got.Status)

	got, err = f.eng.UpdateOrderStatus(ctx, o.ID, orders.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusInProgress, got.Status)

	got, err = f.eng.UpdateOrderStatus(ctx, o.ID, orders.StatusCanceled)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCanceled, got.Status)

	_, err = f.eng.UpdateOrderStatus(ctx, o.ID, orders.StatusPlanned)
	require.ErrorIs(t, err, engine.ErrInvalidTransition)

	_, err = f.eng.UpdateOrderStatus(ctx, 999, orders.StatusCanceled)
	require.ErrorIs(t, err, engine.ErrNotFound)

	// Created, InProgress, Canceled. The repeated InProgress is not reported.
	assert.Len(t, f.rec.orders, 3)
	assert.Equal(t, map[int64]int64{a.ID: 10, b.ID: 0}, f.stock(t))
}

func TestUpdateOrderStatus_RejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	a := f.item(t, "A", 10)
	b := f.product(t, "B", 0, comp(a.ID, 1, 1))
	o, _, err := f.eng.CreateOrder(ctx, b.ID, 1)
	require.NoError(t, err)

	_, err = f.eng.UpdateOrderStatus(ctx, o.ID, orders.Status(0))
	require.ErrorIs(t, err, engine.ErrInvalidStatus)
	_, err = f.eng.UpdateOrderStatus(ctx, o.ID, orders.Status(42))
	require.ErrorIs(t, err, engine.ErrInvalidStatus)

	_, err = orders.ParseStatus("Shipped")
	require.ErrorIs(t, err, engine.ErrInvalidStatus)

	list, err := f.store.ListOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPlanned, list[0].Status)
}

func TestCompleteOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	a := f.item(t, "A", 10)
	b := f.product(t, "B", 0, comp(a.ID, 2, 1))

	o, _, err := f.eng.CreateOrder(ctx, b.ID, 4)
	require.NoError(t, err)

	done, res, err := f.eng.CompleteOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusDone, done.Status)
	require.NotNil(t, res.OrderID)
	assert.Equal(t, o.ID, *res.OrderID)
	assert.Equal(t, map[int64]int64{a.ID: 2, b.ID: 4}, f.stock(t))

	_, _, err = f.eng.CompleteOrder(ctx, o.ID)
	require.ErrorIs(t, err, engine.ErrInvalidTransition)
	assert.Equal(t, map[int64]int64{a.ID: 2, b.ID: 4}, f.stock(t))

	moves, err := f.store.Movements(ctx, 10)
	require.NoError(t, err)
	for _, m := range moves {
		require.NotNil(t, m.OrderID)
		assert.Equal(t, o.ID, *m.OrderID)
	}
}

func TestCompleteOrder_InsufficientLeavesOrderOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	a := f.item(t, "A", 10)
	b := f.product(t, "B", 0, comp(a.ID, 2, 1))

	o, _, err := f.eng.CreateOrder(ctx, b.ID, 6)
	require.NoError(t, err)
	_, err = f.eng.UpdateOrderStatus(ctx, o.ID, orders.StatusInProgress)
	require.NoError(t, err)

	_, _, err = f.eng.CompleteOrder(ctx, o.ID)
	require.ErrorIs(t, err, engine.ErrInsufficientStock)

	list, err := f.store.ListOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusInProgress, list[0].Status)
	assert.Equal(t, map[int64]int64{a.ID: 10, b.ID: 0}, f.stock(t))

	_, _, err = f.eng.CompleteOrder(ctx, 12345)
	require.ErrorIs(t, err, engine.ErrNotFound)
}
