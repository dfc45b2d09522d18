package inventory

import "time"

// Product carries the per-product stock counter pair. CurrentStock is the
// physically owned units, ReservedStock the units promised to open orders.
// Both are mutated only through the Manager.
type Product struct {
	ID            string    `json:"id"`
	SKU           string    `json:"sku"`
	Name          string    `json:"name"`
	CurrentStock  int       `json:"current_stock"`
	ReservedStock int       `json:"reserved_stock"`
	Version       int64     `json:"version"` // bumped on every counter write
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Available is the quantity that can still be newly reserved.
func (p *Product) Available() int { return p.CurrentStock - p.ReservedStock }

type MovementType string

const (
	MovementReserve    MovementType = "reserve"
	MovementUnreserve  MovementType = "unreserve"
	MovementSale       MovementType = "sale"
	MovementReturn     MovementType = "return"
	MovementAdjustment MovementType = "adjustment"
)

// Movement is one append-only ledger row. The product counters are a cache of
// the ledger's net effect; the ledger is the audit trail.
type Movement struct {
	ID             string       `json:"id"`
	ProductID      string       `json:"product_id"`
	OrderID        string       `json:"order_id,omitempty"` // empty for manual adjustments
	Type           MovementType `json:"type"`
	QuantityChange int          `json:"quantity_change"` // signed
	StockBefore    int          `json:"stock_before"`
	ReservedBefore int          `json:"reserved_before"`
	Actor          string       `json:"actor"`
	CreatedAt      time.Time    `json:"created_at"`
}

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "RESERVED"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationFinalized ReservationStatus = "FINALIZED"
)

// Reservation tracks one order/product hold. Its status is the exactly-once
// guard: a hold leaves RESERVED at most once, into RELEASED or FINALIZED.
type Reservation struct {
	OrderID   string            `json:"order_id"`
	ProductID string            `json:"product_id"`
	Qty       int               `json:"qty"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type AlertLevel string

const (
	AlertLow        AlertLevel = "low"
	AlertCritical   AlertLevel = "critical"
	AlertOutOfStock AlertLevel = "out_of_stock"
)

// LowStockAlert is derived state, regenerated from current products on demand.
type LowStockAlert struct {
	ProductID    string     `json:"product_id"`
	SKU          string     `json:"sku"`
	CurrentStock int        `json:"current_stock"`
	Available    int        `json:"available"`
	Threshold    int        `json:"threshold"`
	Level        AlertLevel `json:"level"`
}

// Item is one order line as the inventory core sees it.
type Item struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}
