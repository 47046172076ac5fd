package planning

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tessera-erp/tessera-erp/internal/manufacturing"
	"github.com/tessera-erp/tessera-erp/internal/shared"
)

// memRepo is an in-memory RepositoryPort with transactional rollback: WithTx
// snapshots state before fn and restores it when fn errors, mirroring what
// the real transaction does.
type memRepo struct {
	nextID       int64
	plans        map[int64]ProductionPlan
	products     map[int64][]ProductPlan
	requirements map[int64][]MaterialRequirement
	reservations map[int64][]Reservation
	orders       []manufacturing.Order

	failCreateOrder bool
	reserveCalls    int
}

func newMemRepo() *memRepo {
	return &memRepo{
		plans:        make(map[int64]ProductionPlan),
		products:     make(map[int64][]ProductPlan),
		requirements: make(map[int64][]MaterialRequirement),
		reservations: make(map[int64][]Reservation),
	}
}

func (m *memRepo) snapshot() *memRepo {
	clone := newMemRepo()
	clone.nextID = m.nextID
	for k, v := range m.plans {
		clone.plans[k] = v
	}
	for k, v := range m.products {
		clone.products[k] = append([]ProductPlan(nil), v...)
	}
	for k, v := range m.requirements {
		clone.requirements[k] = append([]MaterialRequirement(nil), v...)
	}
	for k, v := range m.reservations {
		clone.reservations[k] = append([]Reservation(nil), v...)
	}
	clone.orders = append([]manufacturing.Order(nil), m.orders...)
	return clone
}

func (m *memRepo) restore(s *memRepo) {
	m.nextID = s.nextID
	m.plans = s.plans
	m.products = s.products
	m.requirements = s.requirements
	m.reservations = s.reservations
	m.orders = s.orders
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	before := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.restore(before)
		return err
	}
	return nil
}

func (m *memRepo) GetPlan(_ context.Context, id int64) (ProductionPlan, error) {
	plan, ok := m.plans[id]
	if !ok {
		return ProductionPlan{}, ErrPlanNotFound
	}
	plan.Products = m.products[id]
	plan.Requirements = m.requirements[id]
	return plan, nil
}

func (m *memRepo) ListPlans(_ context.Context, _ ListFilters) ([]ProductionPlan, int, error) {
	out := make([]ProductionPlan, 0, len(m.plans))
	for _, p := range m.plans {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *memRepo) GetPlanForUpdate(ctx context.Context, id int64) (ProductionPlan, error) {
	return m.GetPlan(ctx, id)
}

func (m *memRepo) InsertPlan(_ context.Context, plan ProductionPlan) (int64, error) {
	m.nextID++
	plan.ID = m.nextID
	m.plans[plan.ID] = plan
	return plan.ID, nil
}

func (m *memRepo) InsertProductPlans(_ context.Context, planID int64, rows []ProductPlan) error {
	m.products[planID] = append(m.products[planID], rows...)
	return nil
}

func (m *memRepo) InsertRequirements(_ context.Context, planID int64, rows []MaterialRequirement) error {
	m.requirements[planID] = append(m.requirements[planID], rows...)
	return nil
}

func (m *memRepo) UpdatePlanStatus(_ context.Context, id int64, status PlanStatus) error {
	plan, ok := m.plans[id]
	if !ok {
		return ErrPlanNotFound
	}
	plan.Status = status
	m.plans[id] = plan
	return nil
}

func (m *memRepo) GetProductPlans(_ context.Context, planID int64) ([]ProductPlan, error) {
	return m.products[planID], nil
}

func (m *memRepo) GetRequirements(_ context.Context, planID int64) ([]MaterialRequirement, error) {
	return m.requirements[planID], nil
}

func (m *memRepo) ReserveStock(_ context.Context, planID int64, holds []Reservation) error {
	m.reserveCalls++
	m.reservations[planID] = append(m.reservations[planID], holds...)
	return nil
}

func (m *memRepo) ReleaseReservations(_ context.Context, planID int64) error {
	delete(m.reservations, planID)
	return nil
}

func (m *memRepo) CreateManufacturingOrder(_ context.Context, input manufacturing.OrderInput) (manufacturing.Order, error) {
	if m.failCreateOrder {
		return manufacturing.Order{}, errors.New("insert failed")
	}
	order := manufacturing.Order{
		ID:        int64(len(m.orders) + 1),
		Number:    input.Number,
		ProductID: input.ProductID,
		Quantity:  input.Quantity,
		PlanID:    input.PlanID,
		Status:    manufacturing.OrderStatusPlanned,
	}
	m.orders = append(m.orders, order)
	return order, nil
}

type memIdem struct {
	keys map[string]bool
}

func (m *memIdem) CheckAndInsert(_ context.Context, key, _ string) error {
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memIdem) Delete(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type memAudit struct {
	logs []shared.AuditLog
}

func (m *memAudit) Record(_ context.Context, log shared.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

type memEnqueuer struct {
	planIDs []int64
}

func (m *memEnqueuer) EnqueuePlanCommitted(_ context.Context, planID int64) error {
	m.planIDs = append(m.planIDs, planID)
	return nil
}

func draftPlanRequest() CreatePlanRequest {
	return CreatePlanRequest{
		Name:                "Bike batch",
		OrderID:             1,
		OrderNo:             "SO-1001",
		FinishedWarehouseID: 2,
		IssueWarehouseID:    3,
		Products: []ProductPlan{
			{ProductID: 100, ProductCode: "BIKE-01", Quantity: decimal.NewFromInt(10), Unit: "pcs", BomID: 10},
			{ProductID: 300, ProductCode: "WHEEL-01", Quantity: decimal.NewFromInt(20), Unit: "pcs", BomID: 30, ParentProductID: 100},
		},
		Requirements: []MaterialRequirement{
			{MaterialID: 400, RequiredQuantity: decimal.NewFromInt(20), AvailableStock: decimal.NewFromInt(8), ShortageQuantity: decimal.NewFromInt(12)},
			{MaterialID: 500, RequiredQuantity: decimal.NewFromInt(60), ShortageQuantity: decimal.NewFromInt(60), NeedOutsource: true},
		},
	}
}

func commitFixture() (*CommitService, *memRepo, *memAudit, *memEnqueuer, *captureMetrics) {
	repo := newMemRepo()
	audit := &memAudit{}
	enqueuer := &memEnqueuer{}
	metrics := &captureMetrics{}
	svc := NewCommitService(repo, &memIdem{}, audit, enqueuer, metrics, testLogger())
	return svc, repo, audit, enqueuer, metrics
}

func mustCreateDraft(t *testing.T, svc *CommitService) ProductionPlan {
	t.Helper()
	plan, err := svc.CreatePlan(context.Background(), 7, draftPlanRequest())
	require.NoError(t, err)
	return plan
}

func TestCreatePlanPersistsDraft(t *testing.T) {
	svc, repo, audit, _, _ := commitFixture()

	plan := mustCreateDraft(t, svc)
	require.Equal(t, PlanStatusDraft, plan.Status)
	require.Contains(t, plan.Number, "PLAN-")
	require.Len(t, repo.products[plan.ID], 2)
	require.Len(t, repo.requirements[plan.ID], 2)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "planning:create", audit.logs[0].Action)
	require.Equal(t, int64(7), audit.logs[0].ActorID)
}

func TestCreatePlanRejectsEmptyProducts(t *testing.T) {
	svc, _, _, _, _ := commitFixture()

	req := draftPlanRequest()
	req.Products = nil
	_, err := svc.CreatePlan(context.Background(), 7, req)
	require.ErrorIs(t, err, ErrEmptyPlan)
}

func TestConfirmReservesCoverablePortion(t *testing.T) {
	svc, repo, _, enqueuer, _ := commitFixture()
	plan := mustCreateDraft(t, svc)

	confirmed, orders, err := svc.Confirm(context.Background(), plan.ID, 7, ConfirmRequest{})
	require.NoError(t, err)
	require.Equal(t, PlanStatusConfirmed, confirmed.Status)
	require.Empty(t, orders)

	// material 400: required 20, shortage 12, reserve the covered 8 at the
	// issue warehouse. Material 500 is a full shortage and holds nothing.
	holds := repo.reservations[plan.ID]
	require.Len(t, holds, 1)
	require.Equal(t, int64(400), holds[0].MaterialID)
	require.Equal(t, int64(3), holds[0].WarehouseID)
	require.True(t, holds[0].Quantity.Equal(decimal.NewFromInt(8)), "got %s", holds[0].Quantity)

	require.Equal(t, []int64{plan.ID}, enqueuer.planIDs)
}

func TestConfirmGeneratesTopLevelOrders(t *testing.T) {
	svc, repo, _, _, _ := commitFixture()
	plan := mustCreateDraft(t, svc)

	_, orders, err := svc.Confirm(context.Background(), plan.ID, 7, ConfirmRequest{GenerateOrders: true})
	require.NoError(t, err)
	// only the top-level bike row gets an order, the wheel row is a child
	require.Len(t, orders, 1)
	require.Equal(t, int64(100), orders[0].ProductID)
	require.Contains(t, orders[0].Number, "MO-")
	require.Len(t, repo.orders, 1)
}

func TestConfirmOfConfirmedPlanFails(t *testing.T) {
	svc, _, _, _, metrics := commitFixture()
	plan := mustCreateDraft(t, svc)

	_, _, err := svc.Confirm(context.Background(), plan.ID, 7, ConfirmRequest{})
	require.NoError(t, err)

	_, _, err = svc.Confirm(context.Background(), plan.ID, 7, ConfirmRequest{})
	require.ErrorIs(t, err, ErrInvalidPlanState)
	require.Equal(t, []string{"confirm"}, metrics.failures)
}

func TestConfirmMissingPlan(t *testing.T) {
	svc, _, _, _, _ := commitFixture()

	_, _, err := svc.Confirm(context.Background(), 999, 7, ConfirmRequest{})
	require.ErrorIs(t, err, ErrPlanNotFound)
}

func TestGenerateOrdersRequiresConfirmedPlan(t *testing.T) {
	svc, _, _, _, _ := commitFixture()
	plan := mustCreateDraft(t, svc)

	_, err := svc.GenerateManufacturingOrders(context.Background(), plan.ID, 7, "")
	require.ErrorIs(t, err, ErrInvalidPlanState)
}

func TestGenerateOrdersIdempotencyKeyRejected(t *testing.T) {
	svc, _, _, _, _ := commitFixture()
	plan := mustCreateDraft(t, svc)
	_, _, err := svc.Confirm(context.Background(), plan.ID, 7, ConfirmRequest{})
	require.NoError(t, err)

	orders, err := svc.GenerateManufacturingOrders(context.Background(), plan.ID, 7, "key-1")
	require.NoError(t, err)
	require.Len(t, orders, 1)

	_, err = svc.GenerateManufacturingOrders(context.Background(), plan.ID, 7, "key-1")
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
}

func TestGenerateOrdersReleasesKeyOnFailure(t *testing.T) {
	svc, repo, _, _, _ := commitFixture()
	plan := mustCreateDraft(t, svc)
	_, _, err := svc.Confirm(context.Background(), plan.ID, 7, ConfirmRequest{})
	require.NoError(t, err)

	repo.failCreateOrder = true
	_, err = svc.GenerateManufacturingOrders(context.Background(), plan.ID, 7, "key-1")
	require.Error(t, err)
	require.Empty(t, repo.orders, "failed run must not leave partial orders")

	// the key was released, so a retry after the fault clears succeeds
	repo.failCreateOrder = false
	orders, err := svc.GenerateManufacturingOrders(context.Background(), plan.ID, 7, "key-1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
}

func TestConfirmRollsBackWhenOrderGenerationFails(t *testing.T) {
	svc, repo, _, enqueuer, _ := commitFixture()
	plan := mustCreateDraft(t, svc)

	repo.failCreateOrder = true
	_, _, err := svc.Confirm(context.Background(), plan.ID, 7, ConfirmRequest{GenerateOrders: true})
	require.Error(t, err)

	current, getErr := repo.GetPlan(context.Background(), plan.ID)
	require.NoError(t, getErr)
	require.Equal(t, PlanStatusDraft, current.Status, "confirm must roll back with its orders")
	require.Empty(t, repo.reservations[plan.ID])
	require.Empty(t, enqueuer.planIDs)
}

func TestCancelReleasesReservations(t *testing.T) {
	svc, repo, _, _, _ := commitFixture()
	plan := mustCreateDraft(t, svc)
	_, _, err := svc.Confirm(context.Background(), plan.ID, 7, ConfirmRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, repo.reservations[plan.ID])

	cancelled, err := svc.Cancel(context.Background(), plan.ID, 7)
	require.NoError(t, err)
	require.Equal(t, PlanStatusCancelled, cancelled.Status)
	require.Empty(t, repo.reservations[plan.ID])
}

func TestCancelOfCancelledPlanIsNoOp(t *testing.T) {
	svc, repo, audit, _, _ := commitFixture()
	plan := mustCreateDraft(t, svc)

	_, err := svc.Cancel(context.Background(), plan.ID, 7)
	require.NoError(t, err)
	auditCount := len(audit.logs)

	again, err := svc.Cancel(context.Background(), plan.ID, 7)
	require.NoError(t, err)
	require.Equal(t, PlanStatusCancelled, again.Status)
	require.Zero(t, repo.reserveCalls)
	// retried cancel still audits, but changes nothing
	require.Equal(t, auditCount+1, len(audit.logs))
}

func TestCompletedPlanCannotBeCancelled(t *testing.T) {
	svc, _, _, _, metrics := commitFixture()
	plan := mustCreateDraft(t, svc)
	_, _, err := svc.Confirm(context.Background(), plan.ID, 7, ConfirmRequest{})
	require.NoError(t, err)
	_, err = svc.Complete(context.Background(), plan.ID, 7)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), plan.ID, 7)
	require.ErrorIs(t, err, ErrInvalidPlanState)
	require.Contains(t, metrics.failures, "cancel")
}

func TestCompleteRequiresConfirmed(t *testing.T) {
	svc, _, _, _, _ := commitFixture()
	plan := mustCreateDraft(t, svc)

	_, err := svc.Complete(context.Background(), plan.ID, 7)
	require.ErrorIs(t, err, ErrInvalidPlanState)

	_, _, err = svc.Confirm(context.Background(), plan.ID, 7, ConfirmRequest{})
	require.NoError(t, err)
	completed, err := svc.Complete(context.Background(), plan.ID, 7)
	require.NoError(t, err)
	require.Equal(t, PlanStatusCompleted, completed.Status)
}
