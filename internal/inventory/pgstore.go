package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the Postgres StockStore. The version predicate on UpdateStock
// makes lost updates detectable even without the Manager's lock, so writers
// outside this process (migrations, admin SQL) cannot silently clobber a
// counter write.
type PGStore struct{ DB *pgxpool.Pool }

func (s *PGStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := s.DB.QueryRow(ctx, `
		SELECT id, sku, name, current_stock, reserved_stock, version, created_at, updated_at
		FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.CurrentStock, &p.ReservedStock, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PGStore) ListProducts(ctx context.Context) ([]*Product, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, sku, name, current_stock, reserved_stock, version, created_at, updated_at
		FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.CurrentStock, &p.ReservedStock, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *PGStore) UpdateStock(ctx context.Context, p *Product) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE products
		SET current_stock=$2, reserved_stock=$3, version=version+1, updated_at=now()
		WHERE id=$1 AND version=$4`,
		p.ID, p.CurrentStock, p.ReservedStock, p.Version)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrVersionConflict
	}
	p.Version++
	return nil
}

func (s *PGStore) AppendMovement(ctx context.Context, m *Movement) error {
	var orderID any
	if m.OrderID != "" {
		orderID = m.OrderID
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO inventory_movements(id, product_id, order_id, type, quantity_change, stock_before, reserved_before, actor, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		m.ID, m.ProductID, orderID, string(m.Type), m.QuantityChange, m.StockBefore, m.ReservedBefore, m.Actor, m.CreatedAt)
	return err
}

func (s *PGStore) GetReservation(ctx context.Context, orderID, productID string) (*Reservation, error) {
	var r Reservation
	var status string
	err := s.DB.QueryRow(ctx, `
		SELECT order_id, product_id, qty, status, created_at, updated_at
		FROM reservations WHERE order_id=$1 AND product_id=$2`, orderID, productID).
		Scan(&r.OrderID, &r.ProductID, &r.Qty, &status, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Status = ReservationStatus(status)
	return &r, nil
}

func (s *PGStore) SaveReservation(ctx context.Context, r *Reservation) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO reservations(order_id, product_id, qty, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (order_id, product_id)
		DO UPDATE SET qty=EXCLUDED.qty, status=EXCLUDED.status, updated_at=EXCLUDED.updated_at`,
		r.OrderID, r.ProductID, r.Qty, string(r.Status), r.CreatedAt, r.UpdatedAt)
	return err
}

// TransitionReservation relies on the status predicate in the UPDATE: only
// one writer can move the row out of `from`, no matter how many processes
// race on it.
func (s *PGStore) TransitionReservation(ctx context.Context, orderID, productID string, from, to ReservationStatus) (*Reservation, error) {
	r := Reservation{OrderID: orderID, ProductID: productID, Status: to}
	err := s.DB.QueryRow(ctx, `
		UPDATE reservations SET status=$4, updated_at=now()
		WHERE order_id=$1 AND product_id=$2 AND status=$3
		RETURNING qty, created_at, updated_at`,
		orderID, productID, string(from), string(to)).
		Scan(&r.Qty, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReservationConflict
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PGStore) ListReservations(ctx context.Context, orderID string) ([]*Reservation, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT order_id, product_id, qty, status, created_at, updated_at
		FROM reservations WHERE order_id=$1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Reservation
	for rows.Next() {
		var r Reservation
		var status string
		if err := rows.Scan(&r.OrderID, &r.ProductID, &r.Qty, &status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Status = ReservationStatus(status)
		out = append(out, &r)
	}
	return out, rows.Err()
}
