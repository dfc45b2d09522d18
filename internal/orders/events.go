package orders

import (
	"encoding/json"
	"time"

	"github.com/ariefcatur/go-inventory-ledger.git/internal/inventory"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventStockMovement      = "StockMovement"
	EventLowStockAlert      = "LowStockAlert"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "inventory-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id or product_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderPlacedPayload struct {
	OrderID    string      `json:"order_id"`
	ExternalID string      `json:"external_id"`
	UserID     string      `json:"user_id"`
	Items      []OrderItem `json:"items"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
	Note    string `json:"note,omitempty"`
}

type StockMovementPayload struct {
	Movement inventory.Movement `json:"movement"`
}

type LowStockAlertPayload struct {
	Alert inventory.LowStockAlert `json:"alert"`
}
