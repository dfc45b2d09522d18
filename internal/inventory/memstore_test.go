package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreVersionConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	seed(store, "p1", 10, 0)

	a, err := store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	b, err := store.GetProduct(ctx, "p1")
	require.NoError(t, err)

	a.ReservedStock = 3
	require.NoError(t, store.UpdateStock(ctx, a))
	assert.Equal(t, int64(1), a.Version)

	// stale snapshot loses the race
	b.ReservedStock = 5
	require.ErrorIs(t, store.UpdateStock(ctx, b), ErrVersionConflict)

	p, err := store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.ReservedStock)
}

func TestMemStoreTransitionReservationIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	require.NoError(t, store.SaveReservation(ctx, &Reservation{OrderID: "o1", ProductID: "p1", Qty: 2, Status: ReservationReserved}))

	r, err := store.TransitionReservation(ctx, "o1", "p1", ReservationReserved, ReservationReleased)
	require.NoError(t, err)
	assert.Equal(t, ReservationReleased, r.Status)

	// the second writer loses the swap
	_, err = store.TransitionReservation(ctx, "o1", "p1", ReservationReserved, ReservationFinalized)
	require.ErrorIs(t, err, ErrReservationConflict)

	// so does a writer racing on a row that was never created
	_, err = store.TransitionReservation(ctx, "o1", "ghost", ReservationReserved, ReservationReleased)
	require.ErrorIs(t, err, ErrReservationConflict)
}

func TestMemStoreLedgerIsAppendOnlyCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	seed(store, "p1", 10, 0)

	require.NoError(t, store.AppendMovement(ctx, &Movement{ID: "m1", ProductID: "p1", Type: MovementAdjustment, QuantityChange: 2}))
	movs := store.Movements()
	require.Len(t, movs, 1)

	// mutating the returned slice must not touch the ledger
	movs[0].QuantityChange = 99
	assert.Equal(t, 2, store.Movements()[0].QuantityChange)
}
