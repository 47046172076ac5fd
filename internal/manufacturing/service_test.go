package manufacturing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tessera-erp/tessera-erp/internal/shared"
)

type memOrders struct {
	orders map[int64]Order
}

func newMemOrders(statuses ...OrderStatus) *memOrders {
	m := &memOrders{orders: make(map[int64]Order)}
	for i, status := range statuses {
		id := int64(i + 1)
		m.orders[id] = Order{
			ID:       id,
			Number:   "MO-TEST",
			Quantity: decimal.NewFromInt(5),
			Status:   status,
			PlanID:   1,
		}
	}
	return m
}

func (m *memOrders) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memOrders) GetOrder(_ context.Context, id int64) (Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (m *memOrders) ListOrders(_ context.Context, _ ListFilters) ([]Order, int, error) {
	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	return out, len(out), nil
}

func (m *memOrders) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	return m.GetOrder(ctx, id)
}

func (m *memOrders) CreateOrder(_ context.Context, input OrderInput) (Order, error) {
	id := int64(len(m.orders) + 1)
	order := Order{ID: id, Number: input.Number, Quantity: input.Quantity, Status: OrderStatusPlanned}
	m.orders[id] = order
	return order, nil
}

func (m *memOrders) UpdateOrderStatus(_ context.Context, id int64, status OrderStatus) error {
	order, ok := m.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	order.Status = status
	m.orders[id] = order
	return nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func TestOrderLifecycleHappyPath(t *testing.T) {
	repo := newMemOrders(OrderStatusPlanned)
	audit := &recordingAudit{}
	svc := NewService(repo, audit)
	ctx := context.Background()

	order, err := svc.Release(ctx, 1, 9)
	require.NoError(t, err)
	require.Equal(t, OrderStatusReleased, order.Status)

	order, err = svc.Start(ctx, 1, 9)
	require.NoError(t, err)
	require.Equal(t, OrderStatusInProgress, order.Status)

	order, err = svc.Complete(ctx, 1, 9)
	require.NoError(t, err)
	require.Equal(t, OrderStatusCompleted, order.Status)

	require.Len(t, audit.logs, 3)
	require.Equal(t, "manufacturing:released", audit.logs[0].Action)
	require.Equal(t, int64(9), audit.logs[0].ActorID)
}

func TestOrderTransitionMatrix(t *testing.T) {
	cases := []struct {
		name string
		from OrderStatus
		call func(*Service, context.Context) error
		ok   bool
	}{
		{"planned can cancel", OrderStatusPlanned, func(s *Service, ctx context.Context) error {
			_, err := s.Cancel(ctx, 1, 9)
			return err
		}, true},
		{"planned cannot start", OrderStatusPlanned, func(s *Service, ctx context.Context) error {
			_, err := s.Start(ctx, 1, 9)
			return err
		}, false},
		{"planned cannot complete", OrderStatusPlanned, func(s *Service, ctx context.Context) error {
			_, err := s.Complete(ctx, 1, 9)
			return err
		}, false},
		{"released can cancel", OrderStatusReleased, func(s *Service, ctx context.Context) error {
			_, err := s.Cancel(ctx, 1, 9)
			return err
		}, true},
		{"in progress cannot cancel", OrderStatusInProgress, func(s *Service, ctx context.Context) error {
			_, err := s.Cancel(ctx, 1, 9)
			return err
		}, false},
		{"completed is terminal", OrderStatusCompleted, func(s *Service, ctx context.Context) error {
			_, err := s.Release(ctx, 1, 9)
			return err
		}, false},
		{"cancelled is terminal", OrderStatusCancelled, func(s *Service, ctx context.Context) error {
			_, err := s.Release(ctx, 1, 9)
			return err
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(newMemOrders(tc.from), nil)
			err := tc.call(svc, context.Background())
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrInvalidStatus)
			}
		})
	}
}

func TestTransitionMissingOrder(t *testing.T) {
	svc := NewService(newMemOrders(), nil)
	_, err := svc.Release(context.Background(), 42, 9)
	require.ErrorIs(t, err, ErrOrderNotFound)
}
