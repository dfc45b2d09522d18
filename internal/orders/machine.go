package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-inventory-ledger.git/internal/inventory"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Repo is the order persistence boundary.
type Repo interface {
	// Create persists a new pending order. When an order with the same
	// external id already exists it is returned instead (existed=true) and
	// nothing is written.
	Create(ctx context.Context, o *Order) (existing *Order, existed bool, err error)
	Get(ctx context.Context, id string) (*Order, error)
	// SaveTransition persists the order's new status, timestamp fields and
	// the timeline entry as one unit.
	SaveTransition(ctx context.Context, o *Order, ev TimelineEvent) error
	// AppendTimeline records a failed transition attempt without touching
	// the order's status.
	AppendTimeline(ctx context.Context, orderID string, ev TimelineEvent) error
}

// Inventory is what the state machine needs from the inventory core.
type Inventory interface {
	ValidateAndReserve(ctx context.Context, items []inventory.Item, orderID string) error
	FinalizeOrderDelivery(ctx context.Context, items []inventory.Item, orderID string) error
	ReleaseReservations(ctx context.Context, items []inventory.Item, orderID string) error
	RestockReturn(ctx context.Context, items []inventory.Item, orderID string) error
}

type InvalidTransitionError struct {
	From, To Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// Machine drives the order status lifecycle. Each transition runs its
// inventory side-effect first and persists the new status only after the
// side-effect succeeded, so the two act as one unit without a cross-store
// transaction.
type Machine struct {
	repo Repo
	inv  Inventory
	log  *zap.Logger
	now  func() time.Time
}

func NewMachine(repo Repo, inv Inventory, log *zap.Logger) *Machine {
	return &Machine{repo: repo, inv: inv, log: log, now: time.Now}
}

// PlaceOrder creates the order and reserves its stock, all-or-nothing from
// the caller's view: on any shortfall the order ends cancelled with nothing
// reserved and the aggregate validation error is returned. Repeat calls with
// the same external id return the existing order.
func (m *Machine) PlaceOrder(ctx context.Context, externalID, userID string, items []OrderItem) (*Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("order has no items")
	}
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.Qty <= 0 {
			return nil, fmt.Errorf("invalid qty for product %s", it.ProductID)
		}
		// a repeated line would make the second hold a per-order no-op and
		// under-reserve the order
		if _, dup := seen[it.ProductID]; dup {
			return nil, fmt.Errorf("duplicate product %s in order", it.ProductID)
		}
		seen[it.ProductID] = struct{}{}
	}

	now := m.now().UTC()
	o := &Order{
		ID:          uuid.NewString(),
		ExternalID:  externalID,
		UserID:      userID,
		Status:      StatusPending,
		Fulfillment: FulfillmentNone,
		Items:       items,
		Timeline:    []TimelineEvent{{Status: StatusPending, Timestamp: now, Note: "order created"}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	existing, existed, err := m.repo.Create(ctx, o)
	if err != nil {
		return nil, err
	}
	if existed {
		return existing, nil
	}

	if _, err := m.Transition(ctx, o.ID, StatusProcessing, "order accepted"); err != nil {
		if _, cerr := m.Transition(ctx, o.ID, StatusCancelled, "stock validation failed"); cerr != nil {
			m.log.Error("cancel after failed reservation", zap.String("order_id", o.ID), zap.Error(cerr))
		}
		return nil, err
	}
	return m.repo.Get(ctx, o.ID)
}

// Transition moves the order to the requested status, running the
// transition's inventory action. A failed action leaves the status untouched
// and is still visible in the timeline as a failed-attempt entry.
func (m *Machine) Transition(ctx context.Context, orderID string, to Status, note string) (*Order, error) {
	o, err := m.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, to) {
		return nil, &InvalidTransitionError{From: o.Status, To: to}
	}

	if err := m.runInventoryAction(ctx, o, to); err != nil {
		ev := TimelineEvent{
			Status:    o.Status,
			Timestamp: m.now().UTC(),
			Note:      fmt.Sprintf("transition to %s failed: %v", to, err),
		}
		if aerr := m.repo.AppendTimeline(ctx, o.ID, ev); aerr != nil {
			m.log.Error("append timeline", zap.String("order_id", o.ID), zap.Error(aerr))
		}
		return nil, err
	}

	now := m.now().UTC()
	o.Status = to
	o.UpdatedAt = now
	switch to {
	case StatusProcessing:
		o.ProcessedAt = &now
	case StatusShipped:
		o.Fulfillment = FulfillmentPartial
		o.ShippedAt = &now
	case StatusDelivered:
		o.Fulfillment = FulfillmentFulfilled
		o.DeliveredAt = &now
	case StatusCancelled:
		o.CancelledAt = &now
	case StatusReturned:
		o.ReturnedAt = &now
	}

	ev := TimelineEvent{Status: to, Timestamp: now, Note: note}
	o.Timeline = append(o.Timeline, ev)
	if err := m.repo.SaveTransition(ctx, o, ev); err != nil {
		return nil, err
	}
	return o, nil
}

func (m *Machine) runInventoryAction(ctx context.Context, o *Order, to Status) error {
	items := o.InventoryItems()
	switch to {
	case StatusProcessing:
		return m.inv.ValidateAndReserve(ctx, items, o.ID)
	case StatusDelivered:
		return m.inv.FinalizeOrderDelivery(ctx, items, o.ID)
	case StatusCancelled:
		// no-op when nothing was reserved yet (cancel from pending)
		return m.inv.ReleaseReservations(ctx, items, o.ID)
	case StatusReturned:
		return m.inv.RestockReturn(ctx, items, o.ID)
	default:
		return nil // shipped keeps the reservation held
	}
}
