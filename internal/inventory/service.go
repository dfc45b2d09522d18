package inventory

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Service orchestrates reservation, finalization and release across all line
// items of one order. No multi-row transaction is assumed from the store, so
// whole-order atomicity is built from per-item Manager calls plus explicit
// compensation.
type Service struct {
	mgr *Manager
	log *zap.Logger
}

func NewService(mgr *Manager, log *zap.Logger) *Service {
	return &Service{mgr: mgr, log: log}
}

// ValidateAndReserve reserves every item or none. Shortfalls are collected
// across all items, not short-circuited; any shortfall (or a store failure)
// releases the items already held for this order, in reverse order, before
// the error is returned.
func (s *Service) ValidateAndReserve(ctx context.Context, items []Item, orderID string) error {
	comp := &compensationLog{log: s.log}
	var shortfalls []*InsufficientStockError

	for _, it := range items {
		it := it
		err := s.mgr.Reserve(ctx, it.ProductID, it.Qty, orderID, "order:"+orderID)
		if err == nil {
			comp.add(func(ctx context.Context) error {
				return s.mgr.Release(ctx, it.ProductID, it.Qty, orderID, "compensation")
			})
			continue
		}

		var short *InsufficientStockError
		if errors.As(err, &short) {
			shortfalls = append(shortfalls, short)
			continue // keep scanning so the caller sees every shortfall
		}
		// store or conflict failure: abort, undo, surface as-is
		comp.run(ctx)
		return err
	}

	if len(shortfalls) > 0 {
		comp.run(ctx)
		return &StockValidationError{OrderID: orderID, Shortfalls: shortfalls}
	}
	return nil
}

// FinalizeOrderDelivery converts every hold of the order into a permanent
// deduction. A mid-loop failure is not compensated (the sold items left the
// building); the remaining items are still attempted and the torn state is
// reported as *PartialFinalizationError for reconciliation.
func (s *Service) FinalizeOrderDelivery(ctx context.Context, items []Item, orderID string) error {
	var finalized []Item
	failed := map[string]error{}

	for _, it := range items {
		if err := s.mgr.Finalize(ctx, it.ProductID, it.Qty, orderID, "delivery"); err != nil {
			s.log.Error("finalize failed",
				zap.String("order_id", orderID),
				zap.String("product_id", it.ProductID),
				zap.Error(err))
			failed[it.ProductID] = err
			continue
		}
		finalized = append(finalized, it)
	}

	if len(failed) == 0 {
		return nil
	}
	if len(finalized) == 0 && len(failed) == len(items) {
		// nothing deducted, order state is still consistent
		for _, err := range failed {
			return err
		}
	}
	return &PartialFinalizationError{OrderID: orderID, Finalized: finalized, Failed: failed}
}

// ReleaseReservations releases every hold of the order, best-effort: a
// failing item is logged and the loop continues, because leaving the rest
// reserved forever is worse. Returns the first error encountered, if any.
func (s *Service) ReleaseReservations(ctx context.Context, items []Item, orderID string) error {
	var first error
	for _, it := range items {
		if err := s.mgr.Release(ctx, it.ProductID, it.Qty, orderID, "cancellation"); err != nil {
			s.log.Error("release failed",
				zap.String("order_id", orderID),
				zap.String("product_id", it.ProductID),
				zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// RestockReturn puts the full quantities of a delivered order back into
// CurrentStock. Best-effort like release.
func (s *Service) RestockReturn(ctx context.Context, items []Item, orderID string) error {
	var first error
	for _, it := range items {
		if err := s.mgr.Restock(ctx, it.ProductID, it.Qty, orderID, "return"); err != nil {
			s.log.Error("restock failed",
				zap.String("order_id", orderID),
				zap.String("product_id", it.ProductID),
				zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}
