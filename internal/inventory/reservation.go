package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxStockRetries bounds re-reads after a version conflict. Conflicts can
// only come from writers outside this process; in-process callers are
// serialized by the keyed mutex.
const maxStockRetries = 3

// Manager is the only component allowed to mutate a product's counter pair.
// Every mutation runs under the product's lock, so the read-compute-write
// sequence is atomic per product, and appends one ledger movement.
type Manager struct {
	store StockStore
	locks *keyedMutex
	log   *zap.Logger
	now   func() time.Time
}

func NewManager(store StockStore, log *zap.Logger) *Manager {
	return &Manager{
		store: store,
		locks: newKeyedMutex(),
		log:   log,
		now:   time.Now,
	}
}

// Reserve places a soft hold of qty units for orderID. Fails with
// *InsufficientStockError when available stock is short; in that case
// nothing is written. Calling Reserve again for the same order/product while
// the hold is active is a no-op.
func (m *Manager) Reserve(ctx context.Context, productID string, qty int, orderID, actor string) error {
	if qty <= 0 {
		return fmt.Errorf("invalid qty %d for product %s", qty, productID)
	}
	m.locks.Lock(productID)
	defer m.locks.Unlock(productID)

	resv, err := m.store.GetReservation(ctx, orderID, productID)
	if err != nil {
		return &PersistenceError{Op: "get reservation", Err: err}
	}
	if resv != nil && resv.Status == ReservationReserved {
		return nil // already held for this order
	}

	for attempt := 0; attempt < maxStockRetries; attempt++ {
		p, err := m.store.GetProduct(ctx, productID)
		if err != nil {
			if errors.Is(err, ErrProductNotFound) {
				return err
			}
			return &PersistenceError{Op: "get product", Err: err}
		}
		if p.Available() < qty {
			return &InsufficientStockError{ProductID: productID, Available: p.Available(), Requested: qty}
		}

		before := *p
		p.ReservedStock += qty
		if err := m.store.UpdateStock(ctx, p); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			return &PersistenceError{Op: "update stock", Err: err}
		}
		return m.record(ctx, &before, MovementReserve, qty, orderID, actor, resv)
	}
	return &ConcurrencyConflictError{ProductID: productID, Attempts: maxStockRetries}
}

// Release undoes a hold, restoring qty units to the available pool. Releasing
// a hold that is no longer active (already released or finalized, or never
// made) is a safe no-op.
func (m *Manager) Release(ctx context.Context, productID string, qty int, orderID, actor string) error {
	if qty <= 0 {
		return fmt.Errorf("invalid qty %d for product %s", qty, productID)
	}
	m.locks.Lock(productID)
	defer m.locks.Unlock(productID)

	if _, err := m.store.TransitionReservation(ctx, orderID, productID, ReservationReserved, ReservationReleased); err != nil {
		if errors.Is(err, ErrReservationConflict) {
			m.log.Debug("release skipped, no active hold",
				zap.String("product_id", productID), zap.String("order_id", orderID))
			return nil
		}
		return &PersistenceError{Op: "transition reservation", Err: err}
	}

	return m.settle(ctx, productID, qty, orderID, actor, false)
}

// Finalize converts a hold into a permanent deduction of CurrentStock and
// appends a sale movement. This is the only operation that removes physical
// stock. Finalizing an already-finalized hold is a no-op; finalizing a
// released or missing hold is an error, since a hold must never be both.
func (m *Manager) Finalize(ctx context.Context, productID string, qty int, orderID, actor string) error {
	if qty <= 0 {
		return fmt.Errorf("invalid qty %d for product %s", qty, productID)
	}
	m.locks.Lock(productID)
	defer m.locks.Unlock(productID)

	if _, err := m.store.TransitionReservation(ctx, orderID, productID, ReservationReserved, ReservationFinalized); err != nil {
		if !errors.Is(err, ErrReservationConflict) {
			return &PersistenceError{Op: "transition reservation", Err: err}
		}
		cur, gerr := m.store.GetReservation(ctx, orderID, productID)
		if gerr != nil {
			return &PersistenceError{Op: "get reservation", Err: gerr}
		}
		if cur != nil && cur.Status == ReservationFinalized {
			return nil
		}
		return fmt.Errorf("no active hold to finalize: product=%s order=%s", productID, orderID)
	}

	return m.settle(ctx, productID, qty, orderID, actor, true)
}

// settle adjusts the counters for a hold the caller has already claimed via
// TransitionReservation: unreserve, and for sale=true also deduct
// CurrentStock. Claiming first is what makes the settlement exactly-once
// across processes; if the counter write never happens, the claim is
// reopened so a retry can settle.
func (m *Manager) settle(ctx context.Context, productID string, qty int, orderID, actor string, sale bool) error {
	claimed := ReservationReleased
	if sale {
		claimed = ReservationFinalized
	}
	for attempt := 0; attempt < maxStockRetries; attempt++ {
		p, err := m.store.GetProduct(ctx, productID)
		if err != nil {
			m.reopenHold(ctx, orderID, productID, claimed)
			return &PersistenceError{Op: "get product", Err: err}
		}

		before := *p
		next := p.ReservedStock - qty
		if next < 0 {
			// Clamping masks a double-release; the reservation row should
			// have caught it, so warn loudly.
			m.log.Warn("reserved stock clamped at zero",
				zap.String("product_id", productID),
				zap.String("order_id", orderID),
				zap.Int("reserved", p.ReservedStock),
				zap.Int("release_qty", qty))
			next = 0
		}
		p.ReservedStock = next
		mtype := MovementUnreserve
		change := -qty
		if sale {
			p.CurrentStock -= qty
			mtype = MovementSale
		}
		if err := m.store.UpdateStock(ctx, p); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			m.reopenHold(ctx, orderID, productID, claimed)
			return &PersistenceError{Op: "update stock", Err: err}
		}

		// Counters are settled; past this point the claim must stand even
		// if the ledger append fails, or a retry would settle twice.
		mv := &Movement{
			ID:             uuid.NewString(),
			ProductID:      productID,
			OrderID:        orderID,
			Type:           mtype,
			QuantityChange: change,
			StockBefore:    before.CurrentStock,
			ReservedBefore: before.ReservedStock,
			Actor:          actor,
			CreatedAt:      m.now().UTC(),
		}
		if err := m.store.AppendMovement(ctx, mv); err != nil {
			return &PersistenceError{Op: "append movement", Err: err}
		}
		return nil
	}
	m.reopenHold(ctx, orderID, productID, claimed)
	return &ConcurrencyConflictError{ProductID: productID, Attempts: maxStockRetries}
}

// reopenHold puts a claimed hold back to RESERVED after a settlement that
// never reached the counters, so the caller can retry.
func (m *Manager) reopenHold(ctx context.Context, orderID, productID string, from ReservationStatus) {
	if _, err := m.store.TransitionReservation(ctx, orderID, productID, from, ReservationReserved); err != nil {
		m.log.Error("failed to reopen hold after aborted settlement",
			zap.String("product_id", productID),
			zap.String("order_id", orderID),
			zap.Error(err))
	}
}

// record appends the reserve movement and upserts the reservation row after a
// successful stock write. prev is the prior (released) row when re-reserving.
func (m *Manager) record(ctx context.Context, before *Product, mtype MovementType, qty int, orderID, actor string, prev *Reservation) error {
	mv := &Movement{
		ID:             uuid.NewString(),
		ProductID:      before.ID,
		OrderID:        orderID,
		Type:           mtype,
		QuantityChange: qty,
		StockBefore:    before.CurrentStock,
		ReservedBefore: before.ReservedStock,
		Actor:          actor,
		CreatedAt:      m.now().UTC(),
	}
	if err := m.store.AppendMovement(ctx, mv); err != nil {
		return &PersistenceError{Op: "append movement", Err: err}
	}

	now := m.now().UTC()
	resv := prev
	if resv == nil {
		resv = &Reservation{OrderID: orderID, ProductID: before.ID, CreatedAt: now}
	}
	resv.Qty = qty
	resv.Status = ReservationReserved
	resv.UpdatedAt = now
	if err := m.store.SaveReservation(ctx, resv); err != nil {
		return &PersistenceError{Op: "save reservation", Err: err}
	}
	return nil
}

// Adjust applies a manual stock correction (delta may be negative) and
// appends an adjustment movement with no order attached. The correction must
// not push available stock below zero.
func (m *Manager) Adjust(ctx context.Context, productID string, delta int, actor string) error {
	if delta == 0 {
		return fmt.Errorf("adjustment delta must be non-zero: product=%s", productID)
	}
	m.locks.Lock(productID)
	defer m.locks.Unlock(productID)

	for attempt := 0; attempt < maxStockRetries; attempt++ {
		p, err := m.store.GetProduct(ctx, productID)
		if err != nil {
			if errors.Is(err, ErrProductNotFound) {
				return err
			}
			return &PersistenceError{Op: "get product", Err: err}
		}
		if p.CurrentStock+delta < p.ReservedStock {
			return &InsufficientStockError{ProductID: productID, Available: p.Available(), Requested: -delta}
		}

		before := *p
		p.CurrentStock += delta
		if err := m.store.UpdateStock(ctx, p); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			return &PersistenceError{Op: "update stock", Err: err}
		}

		mv := &Movement{
			ID:             uuid.NewString(),
			ProductID:      productID,
			Type:           MovementAdjustment,
			QuantityChange: delta,
			StockBefore:    before.CurrentStock,
			ReservedBefore: before.ReservedStock,
			Actor:          actor,
			CreatedAt:      m.now().UTC(),
		}
		if err := m.store.AppendMovement(ctx, mv); err != nil {
			return &PersistenceError{Op: "append movement", Err: err}
		}
		return nil
	}
	return &ConcurrencyConflictError{ProductID: productID, Attempts: maxStockRetries}
}

// Restock returns qty units of a delivered order to CurrentStock, appending a
// return movement. Used by the returned transition; there is no hold to
// close, the sale already happened.
func (m *Manager) Restock(ctx context.Context, productID string, qty int, orderID, actor string) error {
	if qty <= 0 {
		return fmt.Errorf("invalid qty %d for product %s", qty, productID)
	}
	m.locks.Lock(productID)
	defer m.locks.Unlock(productID)

	for attempt := 0; attempt < maxStockRetries; attempt++ {
		p, err := m.store.GetProduct(ctx, productID)
		if err != nil {
			return &PersistenceError{Op: "get product", Err: err}
		}
		before := *p
		p.CurrentStock += qty
		if err := m.store.UpdateStock(ctx, p); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			return &PersistenceError{Op: "update stock", Err: err}
		}
		mv := &Movement{
			ID:             uuid.NewString(),
			ProductID:      productID,
			OrderID:        orderID,
			Type:           MovementReturn,
			QuantityChange: qty,
			StockBefore:    before.CurrentStock,
			ReservedBefore: before.ReservedStock,
			Actor:          actor,
			CreatedAt:      m.now().UTC(),
		}
		if err := m.store.AppendMovement(ctx, mv); err != nil {
			return &PersistenceError{Op: "append movement", Err: err}
		}
		return nil
	}
	return &ConcurrencyConflictError{ProductID: productID, Attempts: maxStockRetries}
}
