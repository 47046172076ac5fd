package sales

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads sales order data owned by the upstream order module.
type Repository struct {
	q querier
}

// NewRepository constructs a pool-backed repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{q: pool}
}

// NewTxRepository binds a repository to an open transaction.
func NewTxRepository(tx pgx.Tx) *Repository {
	return &Repository{q: tx}
}

// GetOrder returns the order header.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	var o Order
	err := r.q.QueryRow(ctx, `SELECT id, number, customer_id, status, order_date FROM sales_orders WHERE id=$1`, id).
		Scan(&o.ID, &o.Number, &o.CustomerID, &o.Status, &o.OrderDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	return o, nil
}

// GetOrderLines returns the order's product lines in entry order.
func (r *Repository) GetOrderLines(ctx context.Context, orderID int64) ([]OrderLine, error) {
	rows, err := r.q.Query(ctx, `SELECT l.id, l.order_id, l.product_id, l.qty, l.unit_id, COALESCE(u.code,'')
FROM sales_order_lines l LEFT JOIN units u ON u.id = l.unit_id
WHERE l.order_id=$1 ORDER BY l.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []OrderLine
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.Quantity, &line.UnitID, &line.UnitCode); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
