package planning

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tessera-erp/tessera-erp/internal/bom"
	"github.com/tessera-erp/tessera-erp/internal/manufacturing"
	"github.com/tessera-erp/tessera-erp/internal/masterdata"
	"github.com/tessera-erp/tessera-erp/internal/platform/db"
	"github.com/tessera-erp/tessera-erp/internal/sales"
	"github.com/tessera-erp/tessera-erp/internal/stock"
)

// Reservation is one material hold taken when a plan is confirmed.
type Reservation struct {
	MaterialID  int64
	WarehouseID int64
	Quantity    decimal.Decimal
}

// TxRepository is the write surface available inside one plan transaction.
// CreateManufacturingOrder rides the same transaction so confirming a plan
// and cutting its orders commit or roll back together.
type TxRepository interface {
	GetPlanForUpdate(ctx context.Context, id int64) (ProductionPlan, error)
	InsertPlan(ctx context.Context, plan ProductionPlan) (int64, error)
	InsertProductPlans(ctx context.Context, planID int64, rows []ProductPlan) error
	InsertRequirements(ctx context.Context, planID int64, rows []MaterialRequirement) error
	UpdatePlanStatus(ctx context.Context, id int64, status PlanStatus) error
	GetProductPlans(ctx context.Context, planID int64) ([]ProductPlan, error)
	GetRequirements(ctx context.Context, planID int64) ([]MaterialRequirement, error)
	ReserveStock(ctx context.Context, planID int64, holds []Reservation) error
	ReleaseReservations(ctx context.Context, planID int64) error
	CreateManufacturingOrder(ctx context.Context, input manufacturing.OrderInput) (manufacturing.Order, error)
}

// RepositoryPort is what CommitService needs from persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPlan(ctx context.Context, id int64) (ProductionPlan, error)
	ListPlans(ctx context.Context, filters ListFilters) ([]ProductionPlan, int, error)
}

// Repository is the PostgreSQL implementation.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn inside one repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const planColumns = `id, number, order_id, order_no, name, status, planned_start, planned_finish,
owner_id, finished_warehouse_id, issue_warehouse_id, created_at, updated_at`

// GetPlan returns a plan header with its product rows and requirements.
func (r *Repository) GetPlan(ctx context.Context, id int64) (ProductionPlan, error) {
	plan, err := scanPlan(r.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM production_plans WHERE id=$1`, id))
	if err != nil {
		return ProductionPlan{}, err
	}
	plan.Products, err = queryProductPlans(ctx, r.pool, id)
	if err != nil {
		return ProductionPlan{}, err
	}
	plan.Requirements, err = queryRequirements(ctx, r.pool, id)
	if err != nil {
		return ProductionPlan{}, err
	}
	return plan, nil
}

// ListPlans returns plan headers matching filters plus the total count.
func (r *Repository) ListPlans(ctx context.Context, filters ListFilters) ([]ProductionPlan, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	if filters.Status != "" {
		args = append(args, filters.Status)
		where += " AND status=$" + strconv.Itoa(len(args))
	}
	if filters.OrderID != 0 {
		args = append(args, filters.OrderID)
		where += " AND order_id=$" + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM production_plans`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + planColumns + ` FROM production_plans` + where + ` ORDER BY created_at DESC, id DESC`
	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if filters.Offset > 0 {
		args = append(args, filters.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var plans []ProductionPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, 0, err
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return plans, total, nil
}

func (t *txRepo) GetPlanForUpdate(ctx context.Context, id int64) (ProductionPlan, error) {
	return scanPlan(t.tx.QueryRow(ctx, `SELECT `+planColumns+` FROM production_plans WHERE id=$1 FOR UPDATE`, id))
}

func (t *txRepo) InsertPlan(ctx context.Context, plan ProductionPlan) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO production_plans
(number, order_id, order_no, name, status, planned_start, planned_finish, owner_id, finished_warehouse_id, issue_warehouse_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		plan.Number, plan.OrderID, plan.OrderNo, plan.Name, plan.Status,
		plan.PlannedStart, plan.PlannedFinish, plan.OwnerID,
		plan.FinishedWarehouseID, plan.IssueWarehouseID).Scan(&id)
	return id, err
}

func (t *txRepo) InsertProductPlans(ctx context.Context, planID int64, rows []ProductPlan) error {
	for _, row := range rows {
		_, err := t.tx.Exec(ctx, `INSERT INTO production_plan_products
(plan_id, product_id, product_code, product_name, qty, unit, source, parent_product_id, bom_id, routing_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			planID, row.ProductID, row.ProductCode, row.ProductName, row.Quantity,
			row.Unit, row.Source, row.ParentProductID, row.BomID, row.RoutingID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) InsertRequirements(ctx context.Context, planID int64, rows []MaterialRequirement) error {
	for _, row := range rows {
		_, err := t.tx.Exec(ctx, `INSERT INTO production_plan_requirements
(plan_id, material_id, material_code, material_name, unit, required_qty, available_qty, shortage_qty, need_outsource)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			planID, row.MaterialID, row.MaterialCode, row.MaterialName, row.Unit,
			row.RequiredQuantity, row.AvailableStock, row.ShortageQuantity, row.NeedOutsource)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) UpdatePlanStatus(ctx context.Context, id int64, status PlanStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE production_plans SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	return err
}

func (t *txRepo) GetProductPlans(ctx context.Context, planID int64) ([]ProductPlan, error) {
	return queryProductPlans(ctx, t.tx, planID)
}

func (t *txRepo) GetRequirements(ctx context.Context, planID int64) ([]MaterialRequirement, error) {
	return queryRequirements(ctx, t.tx, planID)
}

// ReserveStock records each hold and bumps the balance's reserved column so
// later availability reads see the committed demand.
func (t *txRepo) ReserveStock(ctx context.Context, planID int64, holds []Reservation) error {
	for _, hold := range holds {
		if hold.Quantity.Sign() <= 0 {
			continue
		}
		_, err := t.tx.Exec(ctx, `INSERT INTO stock_reservations (plan_id, product_id, warehouse_id, qty)
VALUES ($1,$2,$3,$4)`, planID, hold.MaterialID, hold.WarehouseID, hold.Quantity)
		if err != nil {
			return err
		}
		_, err = t.tx.Exec(ctx, `UPDATE stock_balances SET reserved = reserved + $3
WHERE product_id=$1 AND warehouse_id=$2`, hold.MaterialID, hold.WarehouseID, hold.Quantity)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReleaseReservations undoes every hold taken for the plan.
func (t *txRepo) ReleaseReservations(ctx context.Context, planID int64) error {
	rows, err := t.tx.Query(ctx, `DELETE FROM stock_reservations WHERE plan_id=$1
RETURNING product_id, warehouse_id, qty`, planID)
	if err != nil {
		return err
	}
	var released []Reservation
	for rows.Next() {
		var hold Reservation
		if err := rows.Scan(&hold.MaterialID, &hold.WarehouseID, &hold.Quantity); err != nil {
			rows.Close()
			return err
		}
		released = append(released, hold)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, hold := range released {
		_, err := t.tx.Exec(ctx, `UPDATE stock_balances SET reserved = GREATEST(reserved - $3, 0)
WHERE product_id=$1 AND warehouse_id=$2`, hold.MaterialID, hold.WarehouseID, hold.Quantity)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) CreateManufacturingOrder(ctx context.Context, input manufacturing.OrderInput) (manufacturing.Order, error) {
	return manufacturing.NewTxRepository(t.tx).CreateOrder(ctx, input)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (ProductionPlan, error) {
	var plan ProductionPlan
	err := row.Scan(&plan.ID, &plan.Number, &plan.OrderID, &plan.OrderNo, &plan.Name, &plan.Status,
		&plan.PlannedStart, &plan.PlannedFinish, &plan.OwnerID,
		&plan.FinishedWarehouseID, &plan.IssueWarehouseID, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductionPlan{}, ErrPlanNotFound
		}
		return ProductionPlan{}, err
	}
	return plan, nil
}

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryProductPlans(ctx context.Context, q rowQuerier, planID int64) ([]ProductPlan, error) {
	rows, err := q.Query(ctx, `SELECT id, plan_id, product_id, product_code, product_name, qty, unit, source,
parent_product_id, bom_id, routing_id
FROM production_plan_products WHERE plan_id=$1 ORDER BY id`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProductPlan
	for rows.Next() {
		var row ProductPlan
		var source string
		if err := rows.Scan(&row.ID, &row.PlanID, &row.ProductID, &row.ProductCode, &row.ProductName,
			&row.Quantity, &row.Unit, &source, &row.ParentProductID, &row.BomID, &row.RoutingID); err != nil {
			return nil, err
		}
		row.Source = bom.NodeSource(source)
		out = append(out, row)
	}
	return out, rows.Err()
}

func queryRequirements(ctx context.Context, q rowQuerier, planID int64) ([]MaterialRequirement, error) {
	rows, err := q.Query(ctx, `SELECT id, plan_id, material_id, material_code, material_name, unit,
required_qty, available_qty, shortage_qty, need_outsource
FROM production_plan_requirements WHERE plan_id=$1 ORDER BY material_id`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MaterialRequirement
	for rows.Next() {
		var row MaterialRequirement
		if err := rows.Scan(&row.ID, &row.PlanID, &row.MaterialID, &row.MaterialCode, &row.MaterialName,
			&row.Unit, &row.RequiredQuantity, &row.AvailableStock, &row.ShortageQuantity, &row.NeedOutsource); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// PgSnapshots opens read-only repeatable-read snapshots over the shared pool
// and binds every read port a preview uses to the same transaction.
type PgSnapshots struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPgSnapshots constructs a PgSnapshots.
func NewPgSnapshots(pool *pgxpool.Pool, logger *slog.Logger) *PgSnapshots {
	return &PgSnapshots{pool: pool, logger: logger}
}

// WithSnapshot implements SnapshotOpener.
func (s *PgSnapshots) WithSnapshot(ctx context.Context, fn func(context.Context, Sources) error) error {
	return db.WithReadSnapshot(ctx, s.pool, func(tx pgx.Tx) error {
		src := Sources{
			Boms:     bom.NewTxRepository(tx, s.logger),
			Stocks:   stock.NewTxReader(tx),
			Products: masterdata.NewTxRepository(tx),
			Orders:   sales.NewTxRepository(tx),
		}
		return fn(ctx, src)
	})
}
