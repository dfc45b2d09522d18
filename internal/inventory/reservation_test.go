package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) (*Manager, *MemStore) {
	t.Helper()
	store := NewMemStore()
	return NewManager(store, zap.NewNop()), store
}

func seed(store *MemStore, id string, stock, reserved int) {
	store.PutProduct(Product{ID: id, SKU: "SKU-" + id, Name: "Product " + id, CurrentStock: stock, ReservedStock: reserved})
}

func TestReserveHappyPath(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	seed(store, "p1", 10, 0)

	require.NoError(t, mgr.Reserve(ctx, "p1", 6, "orderA", "test"))

	p, err := store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, p.CurrentStock)
	assert.Equal(t, 6, p.ReservedStock)
	assert.Equal(t, 4, p.Available())

	movs := store.Movements()
	require.Len(t, movs, 1)
	assert.Equal(t, MovementReserve, movs[0].Type)
	assert.Equal(t, 6, movs[0].QuantityChange)
	assert.Equal(t, 10, movs[0].StockBefore)
	assert.Equal(t, 0, movs[0].ReservedBefore)
	assert.Equal(t, "orderA", movs[0].OrderID)

	r, err := store.GetReservation(ctx, "orderA", "p1")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, ReservationReserved, r.Status)
	assert.Equal(t, 6, r.Qty)
}

func TestReserveInsufficientStockLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	seed(store, "p1", 10, 6)

	err := mgr.Reserve(ctx, "p1", 5, "orderB", "test")
	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "p1", short.ProductID)
	assert.Equal(t, 4, short.Available)
	assert.Equal(t, 5, short.Requested)

	p, _ := store.GetProduct(ctx, "p1")
	assert.Equal(t, 6, p.ReservedStock)
	assert.Empty(t, store.Movements())

	r, _ := store.GetReservation(ctx, "orderB", "p1")
	assert.Nil(t, r)
}

func TestReserveRejectsNonPositiveQty(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	seed(store, "p1", 10, 0)

	require.Error(t, mgr.Reserve(ctx, "p1", 0, "orderA", "test"))
	require.Error(t, mgr.Reserve(ctx, "p1", -3, "orderA", "test"))
	assert.Empty(t, store.Movements())
}

func TestReserveIsIdempotentPerOrder(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	seed(store, "p1", 10, 0)

	require.NoError(t, mgr.Reserve(ctx, "p1", 6, "orderA", "test"))
	require.NoError(t, mgr.Reserve(ctx, "p1", 6, "orderA", "test"))

	p, _ := store.GetProduct(ctx, "p1")
	assert.Equal(t, 6, p.ReservedStock)
	assert.Len(t, store.Movements(), 1)
}

// Scenario: stock=10. Reserve 6 for A, 5 for B fails short by 1, cancel A,
// then 5 for B succeeds.
func TestReserveReleaseCycle(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	seed(store, "p1", 10, 0)

	require.NoError(t, mgr.Reserve(ctx, "p1", 6, "orderA", "test"))

	err := mgr.Reserve(ctx, "p1", 5, "orderB", "test")
	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 4, short.Available)

	p, _ := store.GetProduct(ctx, "p1")
	assert.Equal(t, 6, p.ReservedStock)

	require.NoError(t, mgr.Release(ctx, "p1", 6, "orderA", "test"))
	p, _ = store.GetProduct(ctx, "p1")
	assert.Equal(t, 0, p.ReservedStock)
	assert.Equal(t, 10, p.Available())

	require.NoError(t, mgr.Reserve(ctx, "p1", 5, "orderB", "test"))
	p, _ = store.GetProduct(ctx, "p1")
	assert.Equal(t, 5, p.Available())
}

// Scenario: stock=10, reserved=6. Finalize deducts physical stock.
func TestFinalizeDeductsCurrentStock(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	seed(store, "p1", 10, 0)
	require.NoError(t, mgr.Reserve(ctx, "p1", 6, "orderA", "test"))

	require.NoError(t, mgr.Finalize(ctx, "p1", 6, "orderA", "delivery"))

	p, _ := store.GetProduct(ctx, "p1")
	assert.Equal(t, 4, p.CurrentStock)
	assert.Equal(t, 0, p.ReservedStock)
	assert.Equal(t, 4, p.Available())

	movs := store.Movements()
	require.Len(t, movs, 2)
	assert.Equal(t, MovementSale, movs[1].Type)
	assert.Equal(t, -6, movs[1].QuantityChange)

	r, _ := store.GetReservation(ctx, "orderA", "p1")
	assert.Equal(t, ReservationFinalized, r.Status)
}

func TestDoubleReleaseIsNoOp(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	seed(store, "p1", 10, 0)
	require.NoError(t, mgr.Reserve(ctx, "p1", 6, "orderA", "test"))

	require.NoError(t, mgr.Release(ctx, "p1", 6, "orderA", "test"))
	require.NoError(t, mgr.Release(ctx, "p1", 6, "orderA", "test"))

	p, _ := store.GetProduct(ctx, "p1")
	assert.Equal(t, 0, p.ReservedStock)
	assert.Equal(t, 10, p.CurrentStock)
	// only one unreserve row in the ledger
	var unreserves int
	for _, m := range store.Movements() {
		if m.Type == MovementUnreserve {
			unreserves++
		}
	}
	assert.Equal(t, 1, unreserves)
}

func TestReleaseWithoutReservationIsNoOp(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	seed(store, "p1", 10, 0)

	require.NoError(t, mgr.Release(ctx, "p1", 3, "ghost", "test"))
	p, _ := store.GetProduct(ctx, "p1")
	assert.Equal(t, 0, p.ReservedStock)
	assert.Empty(t, store.Movements())
}

func TestFinalizeAfterReleaseFails(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	seed(store, "p1", 10, 0)
	require.NoError(t, mgr.Reserve(ctx, "p1", 4, "orderA", "test"))
	require.NoError(t, mgr.Release(ctx, "p1", 4, "orderA", "test"))

	require.Error(t, mgr.Finalize(ctx, "p1", 4, "orderA", "delivery"))
	p, _ := store.GetProduct(ctx, "p1")
	assert.Equal(t, 10, p.CurrentStock)
}

func TestFinalizeTwiceIsNoOp(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	seed(store, "p1", 10, 0)
	require.NoError(t, mgr.Reserve(ctx, "p1", 4, "orderA", "test"))
	require.NoError(t, mgr.Finalize(ctx, "p1", 4, "orderA", "delivery"))
	require.NoError(t, mgr.Finalize(ctx, "p1", 4, "orderA", "delivery"))

	p, _ := store.GetProduct(ctx, "p1")
	assert.Equal(t, 6, p.CurrentStock)
	assert.Equal(t, 0, p.ReservedStock)
}

// Two managers over one store model two API processes racing to settle the
// same hold. The keyed mutex only serializes within a process, so the store's
// status compare-and-swap must let exactly one of them touch the counters,
// whichever interleaving the scheduler picks.
func TestSettleIsExactlyOnceAcrossManagers(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	a := NewManager(store, zap.NewNop())
	b := NewManager(store, zap.NewNop())
	seed(store, "p1", 10, 0)
	require.NoError(t, a.Reserve(ctx, "p1", 6, "orderA", "test"))

	var wg sync.WaitGroup
	wg.Add(2)
	var relErr, finErr error
	go func() { defer wg.Done(); relErr = a.Release(ctx, "p1", 6, "orderA", "sweeper") }()
	go func() { defer wg.Done(); finErr = b.Finalize(ctx, "p1", 6, "orderA", "delivery") }()
	wg.Wait()

	var unreserves, sales int
	for _, m := range store.Movements() {
		switch m.Type {
		case MovementUnreserve:
			unreserves++
		case MovementSale:
			sales++
		}
	}
	require.Equal(t, 1, unreserves+sales, "one hold settled more than once")

	p, _ := store.GetProduct(ctx, "p1")
	assert.Zero(t, p.ReservedStock)
	if sales == 1 {
		assert.Equal(t, 4, p.CurrentStock)
		assert.NoError(t, finErr)
	} else {
		assert.Equal(t, 10, p.CurrentStock)
		assert.NoError(t, relErr)
		// the hold was released first; delivery must refuse to deduct
		assert.Error(t, finErr)
	}
}

// Non-oversell: N concurrent reservations against one product must never
// jointly exceed the available stock.
func TestConcurrentReserveNeverOversells(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	const stock = 50
	seed(store, "p1", stock, 0)

	const workers = 40
	const qty = 3 // 40*3 = 120 demanded, 50 available

	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = mgr.Reserve(ctx, "p1", qty, orderID(i), "test")
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			var short *InsufficientStockError
			require.ErrorAs(t, err, &short)
		}
	}

	p, _ := store.GetProduct(ctx, "p1")
	assert.Equal(t, succeeded*qty, p.ReservedStock)
	assert.LessOrEqual(t, p.ReservedStock, stock)
	assert.GreaterOrEqual(t, p.Available(), 0)
	assert.Equal(t, stock/qty, succeeded) // 16 of 40 fit
}

// Conservation: whatever interleaving of reserve/release/finalize runs,
// initial stock equals final stock plus the sum of sale quantities, and
// reserved stock never goes negative.
func TestConservationAcrossMixedOperations(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	const initial = 100
	seed(store, "p1", initial, 0)

	const orderCount = 20
	var wg sync.WaitGroup
	for i := 0; i < orderCount; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			oid := orderID(i)
			if err := mgr.Reserve(ctx, "p1", 4, oid, "test"); err != nil {
				return
			}
			if i%2 == 0 {
				_ = mgr.Finalize(ctx, "p1", 4, oid, "test")
			} else {
				_ = mgr.Release(ctx, "p1", 4, oid, "test")
			}
		}(i)
	}
	wg.Wait()

	p, _ := store.GetProduct(ctx, "p1")
	var sales int
	for _, m := range store.Movements() {
		require.GreaterOrEqual(t, m.ReservedBefore, 0)
		if m.Type == MovementSale {
			sales += -m.QuantityChange
		}
	}
	assert.Equal(t, initial, p.CurrentStock+sales)
	assert.Equal(t, 0, p.ReservedStock)
}

func TestAdjustRespectsReservedFloor(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	seed(store, "p1", 10, 0)
	require.NoError(t, mgr.Reserve(ctx, "p1", 6, "orderA", "test"))

	// removing 5 would leave current=5 < reserved=6
	err := mgr.Adjust(ctx, "p1", -5, "admin")
	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)

	require.NoError(t, mgr.Adjust(ctx, "p1", -4, "admin"))
	require.NoError(t, mgr.Adjust(ctx, "p1", 20, "admin"))

	p, _ := store.GetProduct(ctx, "p1")
	assert.Equal(t, 26, p.CurrentStock)

	movs := store.Movements()
	last := movs[len(movs)-1]
	assert.Equal(t, MovementAdjustment, last.Type)
	assert.Equal(t, 20, last.QuantityChange)
	assert.Empty(t, last.OrderID)
}

func TestRestockAppendsReturnMovement(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	seed(store, "p1", 4, 0)

	require.NoError(t, mgr.Restock(ctx, "p1", 6, "orderA", "return"))

	p, _ := store.GetProduct(ctx, "p1")
	assert.Equal(t, 10, p.CurrentStock)
	movs := store.Movements()
	require.Len(t, movs, 1)
	assert.Equal(t, MovementReturn, movs[0].Type)
	assert.Equal(t, 6, movs[0].QuantityChange)
	assert.Equal(t, "orderA", movs[0].OrderID)
}

func TestReserveUnknownProduct(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t)
	err := mgr.Reserve(ctx, "nope", 1, "orderA", "test")
	require.ErrorIs(t, err, ErrProductNotFound)
}

func orderID(i int) string {
	return "order-" + string(rune('a'+i%26)) + "-" + string(rune('0'+i/26))
}
