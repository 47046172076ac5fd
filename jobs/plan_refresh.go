package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PlanRequirementsRefreshJob re-nets a committed plan's requirements against
// the stock that exists now. Confirmation reserves what was coverable at
// commit time; receipts and issues that land afterwards change the real
// shortage, and this job keeps the stored rows honest.
type PlanRequirementsRefreshJob struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPlanRequirementsRefreshJob constructs the job.
func NewPlanRequirementsRefreshJob(pool *pgxpool.Pool, logger *slog.Logger) *PlanRequirementsRefreshJob {
	return &PlanRequirementsRefreshJob{pool: pool, logger: logger}
}

// Handle processes TaskPlanRequirementsRefresh tasks.
func (j *PlanRequirementsRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload PlanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.PlanID <= 0 {
		return asynq.SkipRetry
	}

	tag, err := j.pool.Exec(ctx, `
UPDATE production_plan_requirements r
SET available_qty = s.available,
    shortage_qty = GREATEST(r.required_qty - s.available, 0),
    need_outsource = (r.required_qty > s.available AND p.acquisition_method = 'outsourcing')
FROM (
    SELECT product_id, COALESCE(SUM(GREATEST(qty - reserved, 0)), 0) AS available
    FROM stock_balances
    GROUP BY product_id
) s, products p
WHERE r.plan_id = $1
  AND s.product_id = r.material_id
  AND p.id = r.material_id
  AND EXISTS (
      SELECT 1 FROM production_plans pl
      WHERE pl.id = r.plan_id AND pl.status = 'confirmed'
  )`, payload.PlanID)
	if err != nil {
		j.logger.Error("refresh plan requirements", slog.Int64("plan_id", payload.PlanID), slog.Any("error", err))
		return err
	}
	j.logger.Info("plan requirements refreshed",
		slog.Int64("plan_id", payload.PlanID),
		slog.Int64("rows", tag.RowsAffected()))
	return nil
}
