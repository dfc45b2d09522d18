package redisx

import "time"

const (
	// Idempotency create order: idem:order:create:{external_id} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{id} (id = event_id)
	KeyDedup = "dedup:%s:%s"

	// Reservation expiry marker: resv:expiry:{order_id} -> "1" with TTL.
	// Once the key is gone but the order is still tracked in the pending set,
	// the sweeper releases the order's reservations.
	KeyReservationExpiry = "resv:expiry:%s"

	// Set of order ids holding in-flight reservations, scanned by the sweeper.
	KeyReservationPending = "resv:pending"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
