package stock

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Reader fetches per-warehouse balances for one material. A nil warehouseID
// queries every warehouse.
type Reader interface {
	GetStock(ctx context.Context, materialID int64, warehouseID *int64) ([]WarehouseStock, error)
}

const stockQuery = `SELECT warehouse_id, qty, reserved FROM stock_balances WHERE product_id=$1`

// Repository reads balances straight from the pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a pool-backed reader.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetStock implements Reader.
func (r *Repository) GetStock(ctx context.Context, materialID int64, warehouseID *int64) ([]WarehouseStock, error) {
	if warehouseID != nil {
		rows, err := r.pool.Query(ctx, stockQuery+` AND warehouse_id=$2`, materialID, *warehouseID)
		if err != nil {
			return nil, err
		}
		return scanStock(rows)
	}
	rows, err := r.pool.Query(ctx, stockQuery, materialID)
	if err != nil {
		return nil, err
	}
	return scanStock(rows)
}

// TxReader reads balances through an open transaction so every lookup in one
// preview observes the same snapshot.
type TxReader struct {
	tx pgx.Tx
}

// NewTxReader binds a reader to tx.
func NewTxReader(tx pgx.Tx) *TxReader {
	return &TxReader{tx: tx}
}

// GetStock implements Reader.
func (r *TxReader) GetStock(ctx context.Context, materialID int64, warehouseID *int64) ([]WarehouseStock, error) {
	if warehouseID != nil {
		rows, err := r.tx.Query(ctx, stockQuery+` AND warehouse_id=$2`, materialID, *warehouseID)
		if err != nil {
			return nil, err
		}
		return scanStock(rows)
	}
	rows, err := r.tx.Query(ctx, stockQuery, materialID)
	if err != nil {
		return nil, err
	}
	return scanStock(rows)
}

func scanStock(rows pgx.Rows) ([]WarehouseStock, error) {
	defer rows.Close()
	var balances []WarehouseStock
	for rows.Next() {
		var ws WarehouseStock
		if err := rows.Scan(&ws.WarehouseID, &ws.Quantity, &ws.Reserved); err != nil {
			return nil, err
		}
		balances = append(balances, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return balances, nil
}
