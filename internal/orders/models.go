package orders

import (
	"time"

	"github.com/ariefcatur/go-inventory-ledger.git/internal/inventory"
)

type FulfillmentStatus string

const (
	FulfillmentNone      FulfillmentStatus = "none"
	FulfillmentPartial   FulfillmentStatus = "partial"
	FulfillmentFulfilled FulfillmentStatus = "fulfilled"
)

type Order struct {
	ID          string            `json:"id"`
	ExternalID  string            `json:"external_id"`
	UserID      string            `json:"user_id"`
	Status      Status            `json:"status"`
	Fulfillment FulfillmentStatus `json:"fulfillment_status"`
	Items       []OrderItem       `json:"items"`
	Timeline    []TimelineEvent   `json:"timeline"`

	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	ReturnedAt  *time.Time `json:"returned_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderItem snapshots the product name at order time; later catalog edits
// must not rewrite order history.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Qty       int    `json:"qty"`
}

// TimelineEvent is one append-only entry mirroring a transition (or a failed
// attempt). Never mutated retroactively.
type TimelineEvent struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

// InventoryItems converts order lines to the inventory core's shape.
func (o *Order) InventoryItems() []inventory.Item {
	out := make([]inventory.Item, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, inventory.Item{ProductID: it.ProductID, Qty: it.Qty})
	}
	return out
}
