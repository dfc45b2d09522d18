// Package sweeper reconciles stale reservations. An order stuck in
// processing would otherwise hold reserved stock forever; the sweeper
// cancels it through the normal state machine once its expiry marker has
// lapsed, so the release shows up in the ledger like any other.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-inventory-ledger.git/internal/orders"
	"github.com/ariefcatur/go-inventory-ledger.git/internal/redisx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Sweeper struct {
	RDB     *redis.Client
	Machine *orders.Machine
	Repo    orders.Repo
	TTL     time.Duration
	Log     *zap.Logger
}

// Track marks an order as holding reservations, with an expiry marker that
// lapses after the TTL. No-op when the TTL is disabled.
func (s *Sweeper) Track(ctx context.Context, orderID string) error {
	if s.TTL <= 0 {
		return nil
	}
	if err := s.RDB.SAdd(ctx, redisx.KeyReservationPending, orderID).Err(); err != nil {
		return err
	}
	key := fmt.Sprintf(redisx.KeyReservationExpiry, orderID)
	return s.RDB.Set(ctx, key, "1", s.TTL).Err()
}

// Untrack removes the order from the pending set once its reservations are
// settled (shipped, delivered or cancelled).
func (s *Sweeper) Untrack(ctx context.Context, orderID string) error {
	if s.TTL <= 0 {
		return nil
	}
	key := fmt.Sprintf(redisx.KeyReservationExpiry, orderID)
	_ = s.RDB.Del(ctx, key).Err()
	return s.RDB.SRem(ctx, redisx.KeyReservationPending, orderID).Err()
}

// Sweep runs one pass: every tracked order whose expiry marker is gone and
// that still sits in processing gets cancelled (which releases its holds).
// Orders that advanced past processing are just untracked.
func (s *Sweeper) Sweep(ctx context.Context) error {
	if s.TTL <= 0 {
		return nil
	}
	ids, err := s.RDB.SMembers(ctx, redisx.KeyReservationPending).Result()
	if err != nil {
		return err
	}

	for _, id := range ids {
		key := fmt.Sprintf(redisx.KeyReservationExpiry, id)
		alive, err := redisx.Exists(ctx, s.RDB, key)
		if err != nil {
			s.Log.Warn("sweep expiry check", zap.String("order_id", id), zap.Error(err))
			continue
		}
		if alive {
			continue
		}

		o, err := s.Repo.Get(ctx, id)
		if err != nil {
			s.Log.Warn("sweep get order", zap.String("order_id", id), zap.Error(err))
			continue
		}
		if o.Status != orders.StatusProcessing {
			_ = s.Untrack(ctx, id)
			continue
		}

		if _, err := s.Machine.Transition(ctx, id, orders.StatusCancelled, "reservation expired"); err != nil {
			s.Log.Error("sweep cancel", zap.String("order_id", id), zap.Error(err))
			continue
		}
		_ = s.Untrack(ctx, id)
		s.Log.Info("stale reservation released", zap.String("order_id", id))
	}
	return nil
}

// Run sweeps on the given interval until the context ends.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if s.TTL <= 0 || interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.Sweep(ctx); err != nil {
				s.Log.Warn("sweep pass failed", zap.Error(err))
			}
		}
	}
}
