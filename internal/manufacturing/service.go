package manufacturing

import (
	"context"
	"fmt"

	"github.com/tessera-erp/tessera-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filters ListFilters) ([]Order, int, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates manufacturing order lifecycle outside plan commit.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Get returns one order.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// List returns orders plus a total count.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Order, int, error) {
	return s.repo.ListOrders(ctx, filters)
}

// Release hands a planned order to the shop floor.
func (s *Service) Release(ctx context.Context, id, actorID int64) (Order, error) {
	return s.transition(ctx, id, actorID, OrderStatusReleased)
}

// Start marks a released order as being worked.
func (s *Service) Start(ctx context.Context, id, actorID int64) (Order, error) {
	return s.transition(ctx, id, actorID, OrderStatusInProgress)
}

// Complete finishes an in-progress order.
func (s *Service) Complete(ctx context.Context, id, actorID int64) (Order, error) {
	return s.transition(ctx, id, actorID, OrderStatusCompleted)
}

// Cancel voids an order that has not started.
func (s *Service) Cancel(ctx context.Context, id, actorID int64) (Order, error) {
	return s.transition(ctx, id, actorID, OrderStatusCancelled)
}

func (s *Service) transition(ctx context.Context, id, actorID int64, to OrderStatus) (Order, error) {
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !canTransition(current.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, current.Status, to)
		}
		if err := tx.UpdateOrderStatus(ctx, id, to); err != nil {
			return err
		}
		current.Status = to
		order = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   fmt.Sprintf("manufacturing:%s", to),
			Entity:   "manufacturing_order",
			EntityID: order.Number,
			Meta:     map[string]any{"order_id": order.ID, "plan_id": order.PlanID},
		})
	}
	return order, nil
}
