package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-inventory-ledger.git/internal/inventory"
	"github.com/ariefcatur/go-inventory-ledger.git/internal/orders"
	"github.com/ariefcatur/go-inventory-ledger.git/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	sweeper *Sweeper
	machine *orders.Machine
	store   *inventory.MemStore
	mr      *miniredis.Miniredis
}

func newFixture(t *testing.T, ttl time.Duration) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := inventory.NewMemStore()
	mgr := inventory.NewManager(store, zap.NewNop())
	svc := inventory.NewService(mgr, zap.NewNop())
	repo := orders.NewMemRepo()
	machine := orders.NewMachine(repo, svc, zap.NewNop())

	return &fixture{
		sweeper: &Sweeper{RDB: rdb, Machine: machine, Repo: repo, TTL: ttl, Log: zap.NewNop()},
		machine: machine,
		store:   store,
		mr:      mr,
	}
}

func (f *fixture) placeOrder(t *testing.T, ext string, qty int) *orders.Order {
	t.Helper()
	f.store.PutProduct(inventory.Product{ID: "p1", SKU: "SKU-p1", Name: "Widget", CurrentStock: 10})
	o, err := f.machine.PlaceOrder(context.Background(), ext, "u1", []orders.OrderItem{
		{ProductID: "p1", Name: "Widget", Qty: qty},
	})
	require.NoError(t, err)
	require.NoError(t, f.sweeper.Track(context.Background(), o.ID))
	return o
}

func TestSweepReleasesExpiredReservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30*time.Minute)
	o := f.placeOrder(t, "ext-1", 6)

	p, _ := f.store.GetProduct(ctx, "p1")
	require.Equal(t, 6, p.ReservedStock)

	// marker still alive: nothing happens
	require.NoError(t, f.sweeper.Sweep(ctx))
	p, _ = f.store.GetProduct(ctx, "p1")
	assert.Equal(t, 6, p.ReservedStock)

	f.mr.FastForward(31 * time.Minute)

	require.NoError(t, f.sweeper.Sweep(ctx))

	p, _ = f.store.GetProduct(ctx, "p1")
	assert.Zero(t, p.ReservedStock)
	assert.Equal(t, 10, p.Available())

	got, err := f.sweeper.Repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)

	// untracked after handling
	n, err := f.sweeper.RDB.SCard(ctx, redisx.KeyReservationPending).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepSkipsOrdersPastProcessing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30*time.Minute)
	o := f.placeOrder(t, "ext-1", 6)

	_, err := f.machine.Transition(ctx, o.ID, orders.StatusShipped, "")
	require.NoError(t, err)

	f.mr.FastForward(31 * time.Minute)
	require.NoError(t, f.sweeper.Sweep(ctx))

	// reservation stays held for the shipped order, tracking is dropped
	p, _ := f.store.GetProduct(ctx, "p1")
	assert.Equal(t, 6, p.ReservedStock)

	got, err := f.sweeper.Repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusShipped, got.Status)

	n, err := f.sweeper.RDB.SCard(ctx, redisx.KeyReservationPending).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDisabledTTLIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	require.NoError(t, f.sweeper.Track(ctx, "order-x"))
	n, err := f.sweeper.RDB.SCard(ctx, redisx.KeyReservationPending).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, f.sweeper.Sweep(ctx))
}
