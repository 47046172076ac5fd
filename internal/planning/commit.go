package planning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tessera-erp/tessera-erp/internal/manufacturing"
	"github.com/tessera-erp/tessera-erp/internal/shared"
)

// IdempotencyPort guards retried mutations.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort records mutating actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// TaskEnqueuer hands follow-up work to the background queue once a plan
// transaction has committed.
type TaskEnqueuer interface {
	EnqueuePlanCommitted(ctx context.Context, planID int64) error
}

// CreatePlanRequest persists a draft plan from an accepted preview payload.
type CreatePlanRequest struct {
	Name                string                `json:"name" validate:"required"`
	OrderID             int64                 `json:"orderId" validate:"required,gt=0"`
	OrderNo             string                `json:"orderNo"`
	PlannedStart        time.Time             `json:"plannedStart"`
	PlannedFinish       time.Time             `json:"plannedFinish"`
	OwnerID             int64                 `json:"ownerId"`
	FinishedWarehouseID int64                 `json:"finishedWarehouseId" validate:"required,gt=0"`
	IssueWarehouseID    int64                 `json:"issueWarehouseId" validate:"required,gt=0"`
	Products            []ProductPlan         `json:"products" validate:"required,min=1,dive"`
	Requirements        []MaterialRequirement `json:"materialRequirements" validate:"dive"`
}

// ConfirmRequest drives plan confirmation.
type ConfirmRequest struct {
	GenerateOrders bool `json:"generateOrders"`
}

// CommitService owns the persisted plan lifecycle. Previews never touch it;
// everything here writes.
type CommitService struct {
	repo     RepositoryPort
	idem     IdempotencyPort
	audit    AuditPort
	enqueuer TaskEnqueuer
	metrics  MetricsPort
	logger   *slog.Logger
}

// NewCommitService builds CommitService. audit, enqueuer and metrics may be nil.
func NewCommitService(repo RepositoryPort, idem IdempotencyPort, audit AuditPort, enqueuer TaskEnqueuer, metrics MetricsPort, logger *slog.Logger) *CommitService {
	return &CommitService{repo: repo, idem: idem, audit: audit, enqueuer: enqueuer, metrics: metrics, logger: logger}
}

func (s *CommitService) fail(operation string, err error) error {
	if s.metrics != nil {
		s.metrics.ObserveCommitFailure(operation)
	}
	return err
}

// Get returns one plan with its rows.
func (s *CommitService) Get(ctx context.Context, id int64) (ProductionPlan, error) {
	return s.repo.GetPlan(ctx, id)
}

// List returns plan headers plus a total count.
func (s *CommitService) List(ctx context.Context, filters ListFilters) ([]ProductionPlan, int, error) {
	return s.repo.ListPlans(ctx, filters)
}

// CreatePlan persists a draft plan. The payload is the preview the user
// accepted; nothing is recomputed here.
func (s *CommitService) CreatePlan(ctx context.Context, actorID int64, req CreatePlanRequest) (ProductionPlan, error) {
	if len(req.Products) == 0 {
		return ProductionPlan{}, ErrEmptyPlan
	}
	plan := ProductionPlan{
		Number:              newPlanNumber(),
		OrderID:             req.OrderID,
		OrderNo:             req.OrderNo,
		Name:                req.Name,
		Status:              PlanStatusDraft,
		PlannedStart:        req.PlannedStart,
		PlannedFinish:       req.PlannedFinish,
		OwnerID:             req.OwnerID,
		FinishedWarehouseID: req.FinishedWarehouseID,
		IssueWarehouseID:    req.IssueWarehouseID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertPlan(ctx, plan)
		if err != nil {
			return fmt.Errorf("planning: insert plan: %w", err)
		}
		plan.ID = id
		if err := tx.InsertProductPlans(ctx, id, req.Products); err != nil {
			return fmt.Errorf("planning: insert product rows: %w", err)
		}
		if err := tx.InsertRequirements(ctx, id, req.Requirements); err != nil {
			return fmt.Errorf("planning: insert requirements: %w", err)
		}
		return nil
	})
	if err != nil {
		return ProductionPlan{}, s.fail("create", err)
	}
	plan.Products = req.Products
	plan.Requirements = req.Requirements
	s.record(ctx, actorID, "planning:create", plan, map[string]any{"order_id": plan.OrderID})
	return plan, nil
}

// Confirm moves a draft plan to confirmed, reserving the coverable part of
// every requirement at the plan's issue warehouse. When req.GenerateOrders is
// set, manufacturing orders for the top-level rows are cut inside the same
// transaction.
func (s *CommitService) Confirm(ctx context.Context, planID, actorID int64, req ConfirmRequest) (ProductionPlan, []manufacturing.Order, error) {
	var (
		plan   ProductionPlan
		orders []manufacturing.Order
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPlanForUpdate(ctx, planID)
		if err != nil {
			return err
		}
		if !canTransition(current.Status, PlanStatusConfirmed) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidPlanState, current.Status, PlanStatusConfirmed)
		}

		requirements, err := tx.GetRequirements(ctx, planID)
		if err != nil {
			return err
		}
		holds := make([]Reservation, 0, len(requirements))
		for _, item := range requirements {
			covered := coverable(item.RequiredQuantity, item.ShortageQuantity)
			if covered.Sign() <= 0 {
				continue
			}
			holds = append(holds, Reservation{
				MaterialID:  item.MaterialID,
				WarehouseID: current.IssueWarehouseID,
				Quantity:    covered,
			})
		}
		if err := tx.ReserveStock(ctx, planID, holds); err != nil {
			return fmt.Errorf("planning: reserve stock: %w", err)
		}

		if err := tx.UpdatePlanStatus(ctx, planID, PlanStatusConfirmed); err != nil {
			return err
		}
		current.Status = PlanStatusConfirmed

		if req.GenerateOrders {
			orders, err = s.generateOrders(ctx, tx, current)
			if err != nil {
				return err
			}
		}
		plan = current
		return nil
	})
	if err != nil {
		return ProductionPlan{}, nil, s.fail("confirm", err)
	}
	s.record(ctx, actorID, "planning:confirm", plan, map[string]any{"orders": len(orders)})
	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueuePlanCommitted(ctx, plan.ID); err != nil {
			s.logger.Warn("enqueue plan committed task", slog.Int64("plan_id", plan.ID), slog.Any("error", err))
		}
	}
	return plan, orders, nil
}

// GenerateManufacturingOrders cuts orders for a confirmed plan's top-level
// rows. The idempotency key makes client retries safe: a duplicate key is
// rejected before any order is created, and a failed run releases the key so
// the client can retry.
func (s *CommitService) GenerateManufacturingOrders(ctx context.Context, planID, actorID int64, idempotencyKey string) ([]manufacturing.Order, error) {
	if idempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, idempotencyKey, "planning"); err != nil {
			return nil, err
		}
	}
	var orders []manufacturing.Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		plan, err := tx.GetPlanForUpdate(ctx, planID)
		if err != nil {
			return err
		}
		if plan.Status != PlanStatusConfirmed {
			return fmt.Errorf("%w: generate orders requires confirmed, plan is %s", ErrInvalidPlanState, plan.Status)
		}
		orders, err = s.generateOrders(ctx, tx, plan)
		return err
	})
	if err != nil {
		if idempotencyKey != "" && s.idem != nil {
			if delErr := s.idem.Delete(ctx, idempotencyKey); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", idempotencyKey), slog.Any("error", delErr))
			}
		}
		return nil, s.fail("generate-orders", err)
	}
	s.record(ctx, actorID, "planning:generate-orders", ProductionPlan{ID: planID}, map[string]any{"orders": len(orders)})
	return orders, nil
}

// generateOrders creates one manufacturing order per top-level product row.
// Any failure aborts the enclosing transaction, so a plan never ends up with
// a partial order set.
func (s *CommitService) generateOrders(ctx context.Context, tx TxRepository, plan ProductionPlan) ([]manufacturing.Order, error) {
	rows, err := tx.GetProductPlans(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	var orders []manufacturing.Order
	for _, row := range rows {
		if row.ParentProductID != 0 {
			continue
		}
		if row.Quantity.Sign() <= 0 {
			return nil, fmt.Errorf("%w: product %d", manufacturing.ErrInvalidQuantity, row.ProductID)
		}
		order, err := tx.CreateManufacturingOrder(ctx, manufacturing.OrderInput{
			Number:              newOrderNumber(),
			ProductID:           row.ProductID,
			BomID:               row.BomID,
			RoutingID:           row.RoutingID,
			Quantity:            row.Quantity,
			Unit:                row.Unit,
			PlanID:              plan.ID,
			SourceRefID:         fmt.Sprintf("%d", plan.OrderID),
			SourceOrderNo:       plan.OrderNo,
			FinishedWarehouseID: plan.FinishedWarehouseID,
			IssueWarehouseID:    plan.IssueWarehouseID,
			PlannedStart:        plan.PlannedStart,
			PlannedFinish:       plan.PlannedFinish,
		})
		if err != nil {
			return nil, fmt.Errorf("planning: create manufacturing order for product %d: %w", row.ProductID, err)
		}
		orders = append(orders, order)
	}
	if len(orders) == 0 {
		return nil, ErrEmptyPlan
	}
	return orders, nil
}

// Cancel voids a draft or confirmed plan and releases its reservations.
// Cancelling an already cancelled plan is a no-op so retried requests stay
// safe; a completed plan cannot be cancelled.
func (s *CommitService) Cancel(ctx context.Context, planID, actorID int64) (ProductionPlan, error) {
	var plan ProductionPlan
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPlanForUpdate(ctx, planID)
		if err != nil {
			return err
		}
		if current.Status == PlanStatusCancelled {
			plan = current
			return nil
		}
		if !canTransition(current.Status, PlanStatusCancelled) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidPlanState, current.Status, PlanStatusCancelled)
		}
		if err := tx.ReleaseReservations(ctx, planID); err != nil {
			return fmt.Errorf("planning: release reservations: %w", err)
		}
		if err := tx.UpdatePlanStatus(ctx, planID, PlanStatusCancelled); err != nil {
			return err
		}
		current.Status = PlanStatusCancelled
		plan = current
		return nil
	})
	if err != nil {
		return ProductionPlan{}, s.fail("cancel", err)
	}
	s.record(ctx, actorID, "planning:cancel", plan, nil)
	return plan, nil
}

// Complete closes a confirmed plan.
func (s *CommitService) Complete(ctx context.Context, planID, actorID int64) (ProductionPlan, error) {
	var plan ProductionPlan
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPlanForUpdate(ctx, planID)
		if err != nil {
			return err
		}
		if !canTransition(current.Status, PlanStatusCompleted) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidPlanState, current.Status, PlanStatusCompleted)
		}
		if err := tx.UpdatePlanStatus(ctx, planID, PlanStatusCompleted); err != nil {
			return err
		}
		current.Status = PlanStatusCompleted
		plan = current
		return nil
	})
	if err != nil {
		return ProductionPlan{}, s.fail("complete", err)
	}
	s.record(ctx, actorID, "planning:complete", plan, nil)
	return plan, nil
}

func (s *CommitService) record(ctx context.Context, actorID int64, action string, plan ProductionPlan, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "production_plan",
		EntityID: plan.Number,
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func newPlanNumber() string {
	return "PLAN-" + strings.ToUpper(uuid.NewString()[:8])
}

func newOrderNumber() string {
	return "MO-" + strings.ToUpper(uuid.NewString()[:8])
}

// coverable clamps required minus shortage at zero.
func coverable(required, shortage decimal.Decimal) decimal.Decimal {
	covered := required.Sub(shortage)
	if covered.Sign() < 0 {
		return decimal.Zero
	}
	return covered
}
