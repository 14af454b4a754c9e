package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tulip-tech/order-service/internal/domain/order"
	"github.com/tulip-tech/order-service/internal/domain/payment"
)

const (
	insertOrderSQL = `INSERT INTO orders (product_id, quantity, status, created_at, total_amount, payment_mode)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id, created_at`

	listOrdersSQL = `SELECT id, product_id, quantity, status, created_at, total_amount, payment_mode
		FROM orders ORDER BY id`
)

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store backed by PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Save inserts r and returns a copy carrying the assigned identity. Any
// failure wraps order.ErrStoreUnavailable.
func (s *OrderStore) Save(ctx context.Context, r *order.Record) (*order.Record, error) {
	saved := *r
	err := s.pool.QueryRow(ctx, insertOrderSQL,
		r.ProductID, r.Quantity, string(r.Status), r.CreatedAt, r.TotalAmount, string(r.PaymentMode),
	).Scan(&saved.ID, &saved.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: saving order for product %d: %w", order.ErrStoreUnavailable, r.ProductID, err)
	}
	return &saved, nil
}

// FindAll returns every order in insertion order. The result is never nil
// on success.
func (s *OrderStore) FindAll(ctx context.Context) ([]order.Record, error) {
	rows, err := s.pool.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("%w: listing orders: %w", order.ErrStoreUnavailable, err)
	}
	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("%w: listing orders: %w", order.ErrStoreUnavailable, err)
	}
	if records == nil {
		records = []order.Record{}
	}
	return records, nil
}

func scanRecord(row pgx.CollectableRow) (order.Record, error) {
	var (
		r           order.Record
		status      string
		paymentMode string
	)
	err := row.Scan(&r.ID, &r.ProductID, &r.Quantity, &status, &r.CreatedAt, &r.TotalAmount, &paymentMode)
	if err != nil {
		return order.Record{}, err
	}
	r.Status = order.Status(status)
	r.PaymentMode = payment.Mode(paymentMode)
	return r, nil
}
