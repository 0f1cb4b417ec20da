package billing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewdesk/crewdesk/internal/authz"
	"github.com/crewdesk/crewdesk/internal/platform/httpx"
)

type mockRepository struct {
	plans         map[int64]*Plan
	subscriptions map[int64]*Subscription
	invoices      map[int64]*Invoice
	nextID        int64

	lastInvoiceListReq ListInvoicesRequest
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		plans:         make(map[int64]*Plan),
		subscriptions: make(map[int64]*Subscription),
		invoices:      make(map[int64]*Invoice),
		nextID:        1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *mockRepository) ListPlans(ctx context.Context, activeOnly bool) ([]Plan, error) {
	var result []Plan
	for _, p := range m.plans {
		if activeOnly && !p.IsActive {
			continue
		}
		result = append(result, *p)
	}
	return result, nil
}

func (m *mockRepository) GetPlan(ctx context.Context, id int64) (*Plan, error) {
	p, ok := m.plans[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *mockRepository) CreatePlan(ctx context.Context, plan Plan) (int64, error) {
	id := m.nextID
	m.nextID++
	plan.ID = id
	plan.IsActive = true
	m.plans[id] = &plan
	return id, nil
}

func (m *mockRepository) UpdatePlan(ctx context.Context, id int64, updates map[string]any) error {
	p, ok := m.plans[id]
	if !ok {
		return ErrNotFound
	}
	for field, value := range updates {
		switch field {
		case "name":
			p.Name = value.(string)
		case "price_cents":
			p.PriceCents = toInt64(value)
		case "currency":
			p.Currency = value.(string)
		}
	}
	return nil
}

func (m *mockRepository) DeletePlan(ctx context.Context, id int64) error {
	p, ok := m.plans[id]
	if !ok || !p.IsActive {
		return ErrNotFound
	}
	p.IsActive = false
	return nil
}

func (m *mockRepository) ListSubscriptions(ctx context.Context, req ListSubscriptionsRequest) ([]Subscription, int, error) {
	var result []Subscription
	for _, s := range m.subscriptions {
		if req.TenantID != nil && s.TenantID != *req.TenantID {
			continue
		}
		result = append(result, *s)
	}
	return result, len(result), nil
}

func (m *mockRepository) GetSubscription(ctx context.Context, id int64) (*Subscription, error) {
	s, ok := m.subscriptions[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *mockRepository) CreateSubscription(ctx context.Context, sub Subscription) (int64, error) {
	id := m.nextID
	m.nextID++
	sub.ID = id
	m.subscriptions[id] = &sub
	return id, nil
}

func (m *mockRepository) UpdateSubscription(ctx context.Context, id int64, updates map[string]any) error {
	s, ok := m.subscriptions[id]
	if !ok {
		return ErrNotFound
	}
	for field, value := range updates {
		switch field {
		case "status":
			s.Status = value.(string)
		case "plan_id":
			s.PlanID = toInt64(value)
		}
	}
	return nil
}

func (m *mockRepository) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	m.lastInvoiceListReq = req
	var result []Invoice
	for _, inv := range m.invoices {
		if req.TenantID != nil && inv.TenantID != *req.TenantID {
			continue
		}
		result = append(result, *inv)
	}
	return result, len(result), nil
}

func (m *mockRepository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *inv
	return &copied, nil
}

func (m *mockRepository) CreateInvoice(ctx context.Context, inv Invoice) (int64, error) {
	id := m.nextID
	m.nextID++
	inv.ID = id
	m.invoices[id] = &inv
	return id, nil
}

func (m *mockRepository) UpdateInvoice(ctx context.Context, id int64, updates map[string]any) error {
	inv, ok := m.invoices[id]
	if !ok {
		return ErrNotFound
	}
	for field, value := range updates {
		switch field {
		case "status":
			inv.Status = value.(string)
		case "number":
			inv.Number = value.(string)
		case "issued_at":
			t := value.(time.Time)
			inv.IssuedAt = &t
		case "paid_at":
			t := value.(time.Time)
			inv.PaidAt = &t
		case "due_date":
			inv.DueDate = value.(time.Time)
		case "notes":
			inv.Notes = value.(string)
		}
	}
	return nil
}

func (m *mockRepository) OverdueInvoices(ctx context.Context, asOf time.Time) ([]Invoice, error) {
	var result []Invoice
	for _, inv := range m.invoices {
		if inv.Status == InvoiceIssued && inv.DueDate.Before(asOf) {
			result = append(result, *inv)
		}
	}
	return result, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	}
	return 0
}

func ptr(v int64) *int64 { return &v }

func seedPlan(repo *mockRepository) *Plan {
	plan := &Plan{ID: 100, Name: "Team", PriceCents: 249900, Currency: "USD", Interval: "month", IsActive: true}
	repo.plans[plan.ID] = plan
	return plan
}

func seedSubscription(repo *mockRepository, tenantID int64) *Subscription {
	sub := &Subscription{ID: 200, TenantID: tenantID, PlanID: 100, Status: SubscriptionActive}
	repo.subscriptions[sub.ID] = sub
	return sub
}

func TestListPlansDecoratesPrice(t *testing.T) {
	repo := newMockRepository()
	seedPlan(repo)
	repo.plans[101] = &Plan{ID: 101, Name: "Legacy", PriceCents: 100, Currency: "USD", IsActive: false}
	service := NewService(repo, nil)

	plans, err := service.ListPlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 1, "retired plans stay out of the catalog")
	assert.Contains(t, plans[0].PriceDisplay, "2,499.00")
}

func TestFormatAmountUnknownCurrencyFallsBack(t *testing.T) {
	assert.Equal(t, "QQQ 5.00", FormatAmount(500, "QQQ"))
}

// ctxAwareRepository fails plan reads once the request context is done,
// the way a pgx query would.
type ctxAwareRepository struct {
	*mockRepository
}

func (r *ctxAwareRepository) ListPlans(ctx context.Context, activeOnly bool) ([]Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.mockRepository.ListPlans(ctx, activeOnly)
}

func TestListPlansSurvivesCanceledCaller(t *testing.T) {
	repo := newMockRepository()
	seedPlan(repo)
	service := NewService(&ctxAwareRepository{mockRepository: repo}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plans, err := service.ListPlans(ctx)
	require.NoError(t, err, "catalog reads collapsed behind a canceled leader must still succeed")
	require.Len(t, plans, 1)
}

func TestCreateSubscriptionPeriodFollowsPlanInterval(t *testing.T) {
	repo := newMockRepository()
	plan := seedPlan(repo)
	service := NewService(repo, nil)
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	super := &authz.Principal{ID: 1, Role: authz.RoleSuperAdmin, IsActive: true}
	sub, err := service.CreateSubscription(context.Background(), super, CreateSubscriptionInput{TenantID: 1, PlanID: plan.ID})
	require.NoError(t, err)
	assert.Equal(t, SubscriptionActive, sub.Status)
	assert.Equal(t, now.AddDate(0, 1, 0), sub.CurrentPeriodEnd)

	plan.Interval = "year"
	sub, err = service.CreateSubscription(context.Background(), super, CreateSubscriptionInput{TenantID: 2, PlanID: plan.ID})
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(1, 0, 0), sub.CurrentPeriodEnd)
}

func TestCreateSubscriptionUnknownPlan(t *testing.T) {
	service := NewService(newMockRepository(), nil)

	super := &authz.Principal{ID: 1, Role: authz.RoleSuperAdmin, IsActive: true}
	_, err := service.CreateSubscription(context.Background(), super, CreateSubscriptionInput{TenantID: 1, PlanID: 999})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestListInvoicesScopedToOwnTenant(t *testing.T) {
	repo := newMockRepository()
	repo.invoices[1] = &Invoice{ID: 1, TenantID: 1, Status: InvoiceIssued, Currency: "USD"}
	repo.invoices[2] = &Invoice{ID: 2, TenantID: 2, Status: InvoiceIssued, Currency: "USD"}
	service := NewService(repo, nil)

	admin := &authz.Principal{ID: 2, Role: authz.RoleTenantAdmin, TenantID: ptr(1), IsActive: true}
	invoices, total, err := service.ListInvoices(context.Background(), admin, ListInvoicesRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, invoices, 1)
	assert.Equal(t, int64(1), invoices[0].ID)
}

func TestCreateInvoiceTakesCurrencyFromPlan(t *testing.T) {
	repo := newMockRepository()
	seedPlan(repo)
	sub := seedSubscription(repo, 1)
	service := NewService(repo, nil)

	super := &authz.Principal{ID: 1, Role: authz.RoleSuperAdmin, IsActive: true}
	inv, err := service.CreateInvoice(context.Background(), super, CreateInvoiceInput{
		SubscriptionID: sub.ID,
		AmountCents:    249900,
		DueDate:        time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, InvoiceDraft, inv.Status)
	assert.Equal(t, "USD", inv.Currency)
	assert.Equal(t, sub.TenantID, inv.TenantID)
	assert.Contains(t, inv.AmountDisplay, "2,499.00")
}

func TestInvoiceLifecycle(t *testing.T) {
	repo := newMockRepository()
	seedPlan(repo)
	sub := seedSubscription(repo, 1)
	service := NewService(repo, nil)
	issuedAt := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return issuedAt }

	super := &authz.Principal{ID: 1, Role: authz.RoleSuperAdmin, IsActive: true}
	inv, err := service.CreateInvoice(context.Background(), super, CreateInvoiceInput{
		SubscriptionID: sub.ID,
		AmountCents:    100,
		DueDate:        issuedAt.AddDate(0, 0, 14),
	})
	require.NoError(t, err)

	// paying a draft is not a legal transition
	_, err = service.PayInvoice(context.Background(), super, inv.ID)
	assert.ErrorIs(t, err, httpx.ErrValidation)

	issued, err := service.IssueInvoice(context.Background(), super, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoiceIssued, issued.Status)
	assert.Equal(t, fmt.Sprintf("INV-2026-%06d", inv.ID), issued.Number)
	require.NotNil(t, issued.IssuedAt)

	paid, err := service.PayInvoice(context.Background(), super, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoicePaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	// a paid invoice cannot be voided
	_, err = service.VoidInvoice(context.Background(), super, inv.ID)
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestVoidDraftInvoice(t *testing.T) {
	repo := newMockRepository()
	seedPlan(repo)
	sub := seedSubscription(repo, 1)
	service := NewService(repo, nil)

	super := &authz.Principal{ID: 1, Role: authz.RoleSuperAdmin, IsActive: true}
	inv, err := service.CreateInvoice(context.Background(), super, CreateInvoiceInput{
		SubscriptionID: sub.ID,
		AmountCents:    100,
		DueDate:        time.Now().AddDate(0, 0, 14),
	})
	require.NoError(t, err)

	voided, err := service.VoidInvoice(context.Background(), super, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoiceVoid, voided.Status)
}

func TestUpdateRejectedOnceIssued(t *testing.T) {
	repo := newMockRepository()
	repo.invoices[5] = &Invoice{ID: 5, TenantID: 1, Status: InvoiceIssued, Currency: "USD"}
	service := NewService(repo, nil)

	super := &authz.Principal{ID: 1, Role: authz.RoleSuperAdmin, IsActive: true}
	_, err := service.UpdateInvoice(context.Background(), super, 5, map[string]any{"notes": "late"})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestOverdueInvoices(t *testing.T) {
	repo := newMockRepository()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	repo.invoices[1] = &Invoice{ID: 1, Status: InvoiceIssued, DueDate: now.AddDate(0, 0, -3), Currency: "USD"}
	repo.invoices[2] = &Invoice{ID: 2, Status: InvoiceIssued, DueDate: now.AddDate(0, 0, 3), Currency: "USD"}
	repo.invoices[3] = &Invoice{ID: 3, Status: InvoicePaid, DueDate: now.AddDate(0, 0, -3), Currency: "USD"}
	service := NewService(repo, nil)
	service.now = func() time.Time { return now }

	overdue, err := service.OverdueInvoices(context.Background())
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, int64(1), overdue[0].ID)
}
