package manufacturing

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the write operations used inside a caller-owned
// transaction. Plan confirmation creates orders through this so the whole
// commit is atomic.
type TxRepository interface {
	CreateOrder(ctx context.Context, input OrderInput) (Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error
}

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// WithTx wraps a callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const orderColumns = `id, number, product_id, COALESCE(bom_id,0), COALESCE(routing_id,0), qty, unit, status, plan_id,
COALESCE(source_ref_id,''), COALESCE(source_order_no,''), COALESCE(finished_warehouse_id,0), COALESCE(issue_warehouse_id,0),
planned_start, planned_finish, created_at, updated_at`

// GetOrder returns one manufacturing order.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM manufacturing_orders WHERE id=$1`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	return order, nil
}

// GetOrderForUpdate locks one order row inside the caller's transaction.
func (tx *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	row := tx.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM manufacturing_orders WHERE id=$1 FOR UPDATE`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	return order, nil
}

// ListOrders returns orders plus a total count.
func (r *Repository) ListOrders(ctx context.Context, filters ListFilters) ([]Order, int, error) {
	query := `SELECT ` + orderColumns + ` FROM manufacturing_orders WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM manufacturing_orders WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Status != "" {
		argCount++
		cond := ` AND status = $` + strconv.Itoa(argCount)
		query += cond
		countQuery += cond
		args = append(args, filters.Status)
	}
	if filters.PlanID != 0 {
		argCount++
		cond := ` AND plan_id = $` + strconv.Itoa(argCount)
		query += cond
		countQuery += cond
		args = append(args, filters.PlanID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	argCount++
	query += ` ORDER BY id DESC LIMIT $` + strconv.Itoa(argCount)
	args = append(args, limit)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, filters.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (tx *txRepo) CreateOrder(ctx context.Context, input OrderInput) (Order, error) {
	if !input.Quantity.IsPositive() {
		return Order{}, ErrInvalidQuantity
	}
	qty, _ := input.Quantity.Float64()
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO manufacturing_orders
(number, product_id, bom_id, routing_id, qty, unit, status, plan_id, source_ref_id, source_order_no,
 finished_warehouse_id, issue_warehouse_id, planned_start, planned_finish, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW(),NOW()) RETURNING id`,
		input.Number, input.ProductID, nullInt(input.BomID), nullInt(input.RoutingID), qty, input.Unit,
		OrderStatusPlanned, input.PlanID, input.SourceRefID, input.SourceOrderNo,
		nullInt(input.FinishedWarehouseID), nullInt(input.IssueWarehouseID),
		input.PlannedStart, input.PlannedFinish).Scan(&id)
	if err != nil {
		return Order{}, err
	}
	return Order{
		ID:                  id,
		Number:              input.Number,
		ProductID:           input.ProductID,
		BomID:               input.BomID,
		RoutingID:           input.RoutingID,
		Quantity:            input.Quantity,
		Unit:                input.Unit,
		Status:              OrderStatusPlanned,
		PlanID:              input.PlanID,
		SourceRefID:         input.SourceRefID,
		SourceOrderNo:       input.SourceOrderNo,
		FinishedWarehouseID: input.FinishedWarehouseID,
		IssueWarehouseID:    input.IssueWarehouseID,
		PlannedStart:        input.PlannedStart,
		PlannedFinish:       input.PlannedFinish,
	}, nil
}

func (tx *txRepo) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	_, err := tx.tx.Exec(ctx, `UPDATE manufacturing_orders SET status=$1, updated_at=NOW() WHERE id=$2`, status, id)
	return err
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var qty float64
	err := row.Scan(&o.ID, &o.Number, &o.ProductID, &o.BomID, &o.RoutingID, &qty, &o.Unit, &o.Status, &o.PlanID,
		&o.SourceRefID, &o.SourceOrderNo, &o.FinishedWarehouseID, &o.IssueWarehouseID,
		&o.PlannedStart, &o.PlannedFinish, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	o.Quantity = decimal.NewFromFloat(qty)
	return o, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
