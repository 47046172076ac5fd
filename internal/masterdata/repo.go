package masterdata

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed catalogue lookups.
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

const productColumns = `p.id, p.code, p.name, p.unit_id, COALESCE(u.code,''), p.acquisition_method, p.is_active, p.created_at, p.updated_at`

// GetProduct fetches one product by id.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	row := r.q.QueryRow(ctx, `SELECT `+productColumns+`
FROM products p LEFT JOIN units u ON u.id = p.unit_id WHERE p.id=$1`, id)
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.UnitID, &p.UnitCode, &p.AcquisitionMethod, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// GetProducts fetches products for a set of ids, keyed by id. Missing ids are
// simply absent from the result.
func (r *Repository) GetProducts(ctx context.Context, ids []int64) (map[int64]Product, error) {
	result := make(map[int64]Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := r.q.Query(ctx, `SELECT `+productColumns+`
FROM products p LEFT JOIN units u ON u.id = p.unit_id WHERE p.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.UnitID, &p.UnitCode, &p.AcquisitionMethod, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListProducts returns catalogue entries plus a total count.
func (r *Repository) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	query := `SELECT ` + productColumns + ` FROM products p LEFT JOIN units u ON u.id = p.unit_id WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM products p WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		cond := ` AND (p.name ILIKE $` + strconv.Itoa(argCount) + ` OR p.code ILIKE $` + strconv.Itoa(argCount) + `)`
		query += cond
		countQuery += cond
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.IsActive != nil {
		argCount++
		cond := ` AND p.is_active = $` + strconv.Itoa(argCount)
		query += cond
		countQuery += cond
		args = append(args, *filters.IsActive)
	}

	var total int
	if err := r.q.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	argCount++
	query += ` ORDER BY p.code LIMIT $` + strconv.Itoa(argCount)
	args = append(args, limit)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, filters.Offset)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.UnitID, &p.UnitCode, &p.AcquisitionMethod, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// GetWarehouse fetches one warehouse by id.
func (r *Repository) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	var w Warehouse
	err := r.q.QueryRow(ctx, `SELECT id, code, name, is_active FROM warehouses WHERE id=$1`, id).
		Scan(&w.ID, &w.Code, &w.Name, &w.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warehouse{}, ErrWarehouseNotFound
		}
		return Warehouse{}, err
	}
	return w, nil
}

// ListUnits returns all units of measure.
func (r *Repository) ListUnits(ctx context.Context) ([]Unit, error) {
	rows, err := r.q.Query(ctx, `SELECT id, code, name FROM units ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var units []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.Code, &u.Name); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return units, nil
}
