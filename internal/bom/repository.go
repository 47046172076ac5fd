package bom

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Source is the lookup port the explosion engine depends on. The engine never
// touches the database directly, so tests can inject in-memory fixtures.
type Source interface {
	GetBom(ctx context.Context, id int64) (Bom, error)
	GetDefaultBom(ctx context.Context, productID int64) (Bom, error)
	GetBomItems(ctx context.Context, bomID int64) ([]Item, error)
	GetRouting(ctx context.Context, routingID int64) (Routing, error)
}

const bomColumns = `id, product_id, base_qty, base_unit_id, status, is_default, COALESCE(routing_id,0), created_at, updated_at`

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed BOM lookups.
type Repository struct {
	q      rowQuerier
	logger *slog.Logger
}

// NewRepository constructs a pool-backed repository.
func NewRepository(pool *pgxpool.Pool, logger *slog.Logger) *Repository {
	return &Repository{q: pool, logger: logger}
}

// NewTxRepository binds lookups to an open transaction so every read in one
// preview shares a snapshot.
func NewTxRepository(tx pgx.Tx, logger *slog.Logger) *Repository {
	return &Repository{q: tx, logger: logger}
}

// GetBom fetches a BOM header by id.
func (r *Repository) GetBom(ctx context.Context, id int64) (Bom, error) {
	row := r.q.QueryRow(ctx, `SELECT `+bomColumns+` FROM boms WHERE id=$1`, id)
	b, err := scanBom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bom{}, ErrBomNotFound
		}
		return Bom{}, err
	}
	return b, nil
}

// GetDefaultBom resolves the product's default active BOM. Exactly one active
// default per product is a soft invariant: duplicates are logged and the
// oldest wins, absence of a flagged default falls back to the oldest active.
func (r *Repository) GetDefaultBom(ctx context.Context, productID int64) (Bom, error) {
	rows, err := r.q.Query(ctx, `SELECT `+bomColumns+`
FROM boms WHERE product_id=$1 AND status='active' ORDER BY is_default DESC, created_at ASC`, productID)
	if err != nil {
		return Bom{}, err
	}
	defer rows.Close()

	var candidates []Bom
	for rows.Next() {
		b, err := scanBom(rows)
		if err != nil {
			return Bom{}, err
		}
		candidates = append(candidates, b)
	}
	if err := rows.Err(); err != nil {
		return Bom{}, err
	}
	if len(candidates) == 0 {
		return Bom{}, ErrBomNotFound
	}

	defaults := 0
	for _, b := range candidates {
		if b.IsDefault {
			defaults++
		}
	}
	if defaults > 1 && r.logger != nil {
		r.logger.Warn("multiple default active boms for product",
			slog.Int64("product_id", productID), slog.Int("defaults", defaults))
	}
	return candidates[0], nil
}

// GetBomItems returns the BOM's lines ordered by sequence.
func (r *Repository) GetBomItems(ctx context.Context, bomID int64) ([]Item, error) {
	rows, err := r.q.Query(ctx, `SELECT i.id, i.bom_id, i.material_id, i.qty, i.unit_id, COALESCE(u.code,''),
i.sequence, i.requirement_type, i.is_key, i.is_phantom, COALESCE(i.child_bom_id,0)
FROM bom_items i LEFT JOIN units u ON u.id = i.unit_id
WHERE i.bom_id=$1 ORDER BY i.sequence, i.id`, bomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.BomID, &it.MaterialID, &it.Quantity, &it.UnitID, &it.UnitCode,
			&it.Sequence, &it.RequirementType, &it.IsKey, &it.IsPhantom, &it.ChildBomID); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// GetRouting fetches a routing header with its operations, display only.
func (r *Repository) GetRouting(ctx context.Context, routingID int64) (Routing, error) {
	var routing Routing
	err := r.q.QueryRow(ctx, `SELECT id, code, name FROM routings WHERE id=$1`, routingID).
		Scan(&routing.ID, &routing.Code, &routing.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Routing{}, ErrRoutingNotFound
		}
		return Routing{}, err
	}
	rows, err := r.q.Query(ctx, `SELECT id, routing_id, sequence, name, COALESCE(workshop,'')
FROM routing_operations WHERE routing_id=$1 ORDER BY sequence, id`, routingID)
	if err != nil {
		return Routing{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var op RoutingOperation
		if err := rows.Scan(&op.ID, &op.RoutingID, &op.Sequence, &op.Name, &op.Workshop); err != nil {
			return Routing{}, err
		}
		routing.Operations = append(routing.Operations, op)
	}
	if err := rows.Err(); err != nil {
		return Routing{}, err
	}
	return routing, nil
}

func scanBom(row pgx.Row) (Bom, error) {
	var b Bom
	err := row.Scan(&b.ID, &b.ProductID, &b.BaseQuantity, &b.BaseUnitID, &b.Status, &b.IsDefault, &b.RoutingID, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}
