package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PurchaseSuggestionsJob turns outsourced shortages on confirmed plans into
// rows the procurement screens list. Re-running it for the same plan replaces
// its previous suggestions instead of stacking duplicates.
type PurchaseSuggestionsJob struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPurchaseSuggestionsJob constructs the job.
func NewPurchaseSuggestionsJob(pool *pgxpool.Pool, logger *slog.Logger) *PurchaseSuggestionsJob {
	return &PurchaseSuggestionsJob{pool: pool, logger: logger}
}

// Handle processes TaskPurchaseSuggestions tasks.
func (j *PurchaseSuggestionsJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload PlanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	scope := ``
	args := []any{}
	if payload.PlanID > 0 {
		scope = ` AND r.plan_id = $1`
		args = append(args, payload.PlanID)
	}

	if _, err := j.pool.Exec(ctx, `DELETE FROM purchase_suggestions ps
WHERE EXISTS (
    SELECT 1 FROM production_plan_requirements r
    WHERE r.plan_id = ps.plan_id AND r.material_id = ps.material_id`+scope+`
)`, args...); err != nil {
		j.logger.Error("clear purchase suggestions", slog.Any("error", err))
		return err
	}

	tag, err := j.pool.Exec(ctx, `INSERT INTO purchase_suggestions (plan_id, material_id, suggested_qty)
SELECT r.plan_id, r.material_id, r.shortage_qty
FROM production_plan_requirements r
JOIN production_plans pl ON pl.id = r.plan_id
WHERE pl.status = 'confirmed'
  AND r.need_outsource
  AND r.shortage_qty > 0`+scope, args...)
	if err != nil {
		j.logger.Error("write purchase suggestions", slog.Any("error", err))
		return err
	}
	j.logger.Info("purchase suggestions updated",
		slog.Int64("plan_id", payload.PlanID),
		slog.Int64("rows", tag.RowsAffected()))
	return nil
}
