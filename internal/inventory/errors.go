package inventory

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProductNotFound = errors.New("product not found")
	// ErrVersionConflict is returned by stores when an update lost the race
	// against a concurrent write to the same product row.
	ErrVersionConflict = errors.New("product version conflict")
	// ErrReservationConflict is returned by TransitionReservation when the
	// stored hold is not in the expected status (or does not exist): another
	// writer, possibly in another process, settled it first.
	ErrReservationConflict = errors.New("reservation already settled")
)

// InsufficientStockError is the expected per-item failure: the caller may
// retry with an adjusted quantity.
type InsufficientStockError struct {
	ProductID string `json:"product_id"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available=%d requested=%d",
		e.ProductID, e.Available, e.Requested)
}

// StockValidationError aggregates every shortfall found while reserving a
// whole order, so the caller can show the customer everything unavailable.
type StockValidationError struct {
	OrderID    string                    `json:"order_id"`
	Shortfalls []*InsufficientStockError `json:"shortfalls"`
}

func (e *StockValidationError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, s.Error())
	}
	return fmt.Sprintf("order %s: stock validation failed: %s", e.OrderID, strings.Join(parts, "; "))
}

// ConcurrencyConflictError means the atomic reserve step detected a lost
// update after exhausting retries; the caller should retry the reservation.
type ConcurrencyConflictError struct {
	ProductID string
	Attempts  int
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrent update conflict on product %s after %d attempts", e.ProductID, e.Attempts)
}

// PersistenceError wraps a store failure that aborted the current operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// PartialFinalizationError reports a torn delivery: some items permanently
// deducted, others still reserved. It must be surfaced loudly so the order
// can be reconciled.
type PartialFinalizationError struct {
	OrderID   string
	Finalized []Item
	Failed    map[string]error // productID -> failure
}

func (e *PartialFinalizationError) Error() string {
	return fmt.Sprintf("order %s: partial finalization: %d items finalized, %d failed",
		e.OrderID, len(e.Finalized), len(e.Failed))
}
