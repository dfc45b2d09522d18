package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepo persists orders, items and timeline in Postgres.
type PGRepo struct{ DB *pgxpool.Pool }

func (r *PGRepo) Create(ctx context.Context, o *Order) (*Order, bool, error) {
	// idempotent via external_id
	var existingID string
	err := r.DB.QueryRow(ctx, `SELECT id FROM orders WHERE external_id=$1`, o.ExternalID).Scan(&existingID)
	if err == nil {
		existing, gerr := r.Get(ctx, existingID)
		return existing, true, gerr
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, external_id, user_id, status, fulfillment_status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		o.ID, o.ExternalID, o.UserID, string(o.Status), string(o.Fulfillment), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return nil, false, err
	}
	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, name, qty)
			VALUES ($1,$2,$3,$4)`, o.ID, it.ProductID, it.Name, it.Qty); err != nil {
			return nil, false, err
		}
	}
	for _, ev := range o.Timeline {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_timeline(order_id, status, ts, note)
			VALUES ($1,$2,$3,$4)`, o.ID, string(ev.Status), ev.Timestamp, ev.Note); err != nil {
			return nil, false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return o, false, nil
}

func (r *PGRepo) Get(ctx context.Context, id string) (*Order, error) {
	var o Order
	var status, fulfillment string
	err := r.DB.QueryRow(ctx, `
		SELECT id, external_id, user_id, status, fulfillment_status,
		       processed_at, shipped_at, delivered_at, cancelled_at, returned_at,
		       created_at, updated_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.ExternalID, &o.UserID, &status, &fulfillment,
			&o.ProcessedAt, &o.ShippedAt, &o.DeliveredAt, &o.CancelledAt, &o.ReturnedAt,
			&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	o.Fulfillment = FulfillmentStatus(fulfillment)

	rows, err := r.DB.Query(ctx, `SELECT product_id, name, qty FROM order_items WHERE order_id=$1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Qty); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	trows, err := r.DB.Query(ctx, `SELECT status, ts, note FROM order_timeline WHERE order_id=$1 ORDER BY ts, id`, id)
	if err != nil {
		return nil, err
	}
	defer trows.Close()
	for trows.Next() {
		var ev TimelineEvent
		var s string
		if err := trows.Scan(&s, &ev.Timestamp, &ev.Note); err != nil {
			return nil, err
		}
		ev.Status = Status(s)
		o.Timeline = append(o.Timeline, ev)
	}
	return &o, trows.Err()
}

func (r *PGRepo) SaveTransition(ctx context.Context, o *Order, ev TimelineEvent) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET status=$2, fulfillment_status=$3,
		    processed_at=$4, shipped_at=$5, delivered_at=$6, cancelled_at=$7, returned_at=$8,
		    updated_at=$9
		WHERE id=$1`,
		o.ID, string(o.Status), string(o.Fulfillment),
		o.ProcessedAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt, o.ReturnedAt,
		o.UpdatedAt)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO order_timeline(order_id, status, ts, note)
		VALUES ($1,$2,$3,$4)`, o.ID, string(ev.Status), ev.Timestamp, ev.Note); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGRepo) AppendTimeline(ctx context.Context, orderID string, ev TimelineEvent) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO order_timeline(order_id, status, ts, note)
		VALUES ($1,$2,$3,$4)`, orderID, string(ev.Status), ev.Timestamp, ev.Note)
	return err
}

// ListByStatus returns ids of orders currently in the given status; the
// sweeper uses this to skip orders that advanced past processing.
func (r *PGRepo) ListByStatus(ctx context.Context, s Status) ([]string, error) {
	rows, err := r.DB.Query(ctx, `SELECT id FROM orders WHERE status=$1`, string(s))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
