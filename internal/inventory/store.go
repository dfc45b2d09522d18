package inventory

import "context"

// StockStore is the persistence boundary of the core. Implementations only
// need plain get/update/create semantics; cross-call atomicity is the
// Manager's job (per-product serialization plus the version check below).
type StockStore interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	ListProducts(ctx context.Context) ([]*Product, error)

	// UpdateStock writes the counter pair. The write must fail with
	// ErrVersionConflict when the stored Version no longer matches
	// p.Version; on success the store bumps Version by one.
	UpdateStock(ctx context.Context, p *Product) error

	// AppendMovement adds one ledger row. Rows are never updated or deleted.
	AppendMovement(ctx context.Context, m *Movement) error

	// GetReservation returns (nil, nil) when no reservation exists for the
	// order/product pair.
	GetReservation(ctx context.Context, orderID, productID string) (*Reservation, error)
	SaveReservation(ctx context.Context, r *Reservation) error

	// TransitionReservation atomically moves the hold from one status to
	// another, as a single compare-and-swap against the stored row. Returns
	// ErrReservationConflict when the stored status is not `from` or the
	// row is missing. This is the cross-process half of the exactly-once
	// guard: the keyed mutex only covers writers inside one process.
	TransitionReservation(ctx context.Context, orderID, productID string, from, to ReservationStatus) (*Reservation, error)

	ListReservations(ctx context.Context, orderID string) ([]*Reservation, error)
}
