package billing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/crewdesk/crewdesk/internal/authz"
	"github.com/crewdesk/crewdesk/internal/platform/httpx"
	"github.com/crewdesk/crewdesk/internal/shared"
)

// Service handles billing business logic.
type Service struct {
	repo   Repository
	audit  *shared.AuditLogger
	flight singleflight.Group
	now    func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// ListPlans returns the active plan catalog. The catalog is read by every
// role on every pricing page, so concurrent identical reads are collapsed
// through singleflight. The shared query runs detached from the leader's
// cancellation so followers never inherit a canceled context.
func (s *Service) ListPlans(ctx context.Context) ([]Plan, error) {
	queryCtx := context.WithoutCancel(ctx)
	v, err, _ := s.flight.Do("plans:active", func() (any, error) {
		return s.repo.ListPlans(queryCtx, true)
	})
	if err != nil {
		return nil, err
	}
	plans := v.([]Plan)
	decorated := make([]Plan, len(plans))
	for i, p := range plans {
		p.PriceDisplay = FormatAmount(p.PriceCents, p.Currency)
		decorated[i] = p
	}
	return decorated, nil
}

// GetPlan fetches a single plan.
func (s *Service) GetPlan(ctx context.Context, id int64) (*Plan, error) {
	plan, err := s.repo.GetPlan(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	plan.PriceDisplay = FormatAmount(plan.PriceCents, plan.Currency)
	return plan, nil
}

// CreatePlanInput carries validated plan creation fields.
type CreatePlanInput struct {
	Name        string `validate:"required,min=2"`
	Description string
	PriceCents  int64  `validate:"gte=0"`
	Currency    string `validate:"required,len=3,uppercase"`
	Interval    string `validate:"required,oneof=month year"`
}

// CreatePlan adds a plan to the catalog.
func (s *Service) CreatePlan(ctx context.Context, principal *authz.Principal, input CreatePlanInput) (*Plan, error) {
	id, err := s.repo.CreatePlan(ctx, Plan{
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		PriceCents:  input.PriceCents,
		Currency:    input.Currency,
		Interval:    input.Interval,
	})
	if err != nil {
		if err == ErrAlreadyExists {
			return nil, fmt.Errorf("%w: plan name already in use", httpx.ErrDuplicate)
		}
		return nil, err
	}
	s.recordAudit(ctx, principal, "plan.create", "plan", id)
	return s.GetPlan(ctx, id)
}

// UpdatePlan applies a sanitized write payload from the authz field filter.
func (s *Service) UpdatePlan(ctx context.Context, principal *authz.Principal, id int64, sanitized map[string]any) (*Plan, error) {
	if len(sanitized) == 0 {
		return nil, fmt.Errorf("%w: no valid fields to update", httpx.ErrValidation)
	}
	if err := s.repo.UpdatePlan(ctx, id, sanitized); err != nil {
		if err == ErrNotFound {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	s.recordAudit(ctx, principal, "plan.update", "plan", id)
	return s.GetPlan(ctx, id)
}

// RetirePlan deactivates a plan so it no longer appears in the catalog.
// Existing subscriptions keep referencing it.
func (s *Service) RetirePlan(ctx context.Context, principal *authz.Principal, id int64) error {
	if err := s.repo.DeletePlan(ctx, id); err != nil {
		if err == ErrNotFound {
			return httpx.ErrNotFound
		}
		return err
	}
	s.recordAudit(ctx, principal, "plan.retire", "plan", id)
	return nil
}

// ListSubscriptions returns subscriptions visible to the principal.
func (s *Service) ListSubscriptions(ctx context.Context, principal *authz.Principal, req ListSubscriptionsRequest) ([]Subscription, int, error) {
	if principal.Role != authz.RoleSuperAdmin {
		req.TenantID = principal.TenantID
		if req.TenantID == nil {
			return []Subscription{}, 0, nil
		}
	}
	return s.repo.ListSubscriptions(ctx, req)
}

// GetSubscription fetches a subscription.
func (s *Service) GetSubscription(ctx context.Context, id int64) (*Subscription, error) {
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	return sub, nil
}

// CreateSubscriptionInput carries validated subscription creation fields.
type CreateSubscriptionInput struct {
	TenantID int64 `validate:"required,gt=0"`
	PlanID   int64 `validate:"required,gt=0"`
}

// CreateSubscription opens an active subscription for a tenant. The first
// billing period runs from now according to the plan interval.
func (s *Service) CreateSubscription(ctx context.Context, principal *authz.Principal, input CreateSubscriptionInput) (*Subscription, error) {
	plan, err := s.repo.GetPlan(ctx, input.PlanID)
	if err != nil {
		if err == ErrNotFound {
			return nil, fmt.Errorf("%w: plan %d does not exist", httpx.ErrValidation, input.PlanID)
		}
		return nil, err
	}

	start := s.now()
	end := start.AddDate(0, 1, 0)
	if plan.Interval == "year" {
		end = start.AddDate(1, 0, 0)
	}
	id, err := s.repo.CreateSubscription(ctx, Subscription{
		TenantID:           input.TenantID,
		PlanID:             input.PlanID,
		Status:             SubscriptionActive,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
	})
	if err != nil {
		if err == ErrAlreadyExists {
			return nil, fmt.Errorf("%w: tenant already has a subscription", httpx.ErrDuplicate)
		}
		return nil, err
	}
	s.recordAudit(ctx, principal, "subscription.create", "subscription", id)
	return s.GetSubscription(ctx, id)
}

var subscriptionStatuses = map[string]bool{
	SubscriptionActive:   true,
	SubscriptionPastDue:  true,
	SubscriptionCanceled: true,
}

// UpdateSubscription applies a sanitized write payload from the authz
// field filter. Status values outside the known set are rejected.
func (s *Service) UpdateSubscription(ctx context.Context, principal *authz.Principal, id int64, sanitized map[string]any) (*Subscription, error) {
	if len(sanitized) == 0 {
		return nil, fmt.Errorf("%w: no valid fields to update", httpx.ErrValidation)
	}
	if raw, ok := sanitized["status"]; ok {
		status, _ := raw.(string)
		if !subscriptionStatuses[status] {
			return nil, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, status)
		}
	}
	if raw, ok := sanitized["plan_id"]; ok {
		// JSON numbers decode as float64.
		planID := int64(0)
		switch v := raw.(type) {
		case float64:
			planID = int64(v)
		case int64:
			planID = v
		}
		if _, err := s.repo.GetPlan(ctx, planID); err != nil {
			if err == ErrNotFound {
				return nil, fmt.Errorf("%w: plan %d does not exist", httpx.ErrValidation, planID)
			}
			return nil, err
		}
		sanitized["plan_id"] = planID
	}
	if err := s.repo.UpdateSubscription(ctx, id, sanitized); err != nil {
		if err == ErrNotFound {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	s.recordAudit(ctx, principal, "subscription.update", "subscription", id)
	return s.GetSubscription(ctx, id)
}

// ListInvoices returns invoices visible to the principal.
func (s *Service) ListInvoices(ctx context.Context, principal *authz.Principal, req ListInvoicesRequest) ([]Invoice, int, error) {
	if principal.Role != authz.RoleSuperAdmin {
		req.TenantID = principal.TenantID
		if req.TenantID == nil {
			return []Invoice{}, 0, nil
		}
	}
	invoices, total, err := s.repo.ListInvoices(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	for i := range invoices {
		invoices[i].AmountDisplay = FormatAmount(invoices[i].AmountCents, invoices[i].Currency)
	}
	return invoices, total, nil
}

// GetInvoice fetches an invoice.
func (s *Service) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	inv.AmountDisplay = FormatAmount(inv.AmountCents, inv.Currency)
	return inv, nil
}

// CreateInvoiceInput carries validated invoice creation fields.
type CreateInvoiceInput struct {
	SubscriptionID int64     `validate:"required,gt=0"`
	AmountCents    int64     `validate:"gt=0"`
	DueDate        time.Time `validate:"required"`
	Notes          string
}

// CreateInvoice raises a draft invoice against the subscription's tenant.
// Amount currency follows the subscribed plan.
func (s *Service) CreateInvoice(ctx context.Context, principal *authz.Principal, input CreateInvoiceInput) (*Invoice, error) {
	sub, err := s.repo.GetSubscription(ctx, input.SubscriptionID)
	if err != nil {
		if err == ErrNotFound {
			return nil, fmt.Errorf("%w: subscription %d does not exist", httpx.ErrValidation, input.SubscriptionID)
		}
		return nil, err
	}
	plan, err := s.repo.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	id, err := s.repo.CreateInvoice(ctx, Invoice{
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
		Status:         InvoiceDraft,
		AmountCents:    input.AmountCents,
		Currency:       plan.Currency,
		DueDate:        input.DueDate,
		Notes:          strings.TrimSpace(input.Notes),
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, principal, "invoice.create", "invoice", id)
	return s.GetInvoice(ctx, id)
}

// UpdateInvoice applies a sanitized write payload from the authz field
// filter. Only draft invoices accept edits.
func (s *Service) UpdateInvoice(ctx context.Context, principal *authz.Principal, id int64, sanitized map[string]any) (*Invoice, error) {
	if len(sanitized) == 0 {
		return nil, fmt.Errorf("%w: no valid fields to update", httpx.ErrValidation)
	}
	inv, err := s.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != InvoiceDraft {
		return nil, fmt.Errorf("%w: only draft invoices can be edited", httpx.ErrValidation)
	}
	if err := s.repo.UpdateInvoice(ctx, id, sanitized); err != nil {
		if err == ErrNotFound {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	s.recordAudit(ctx, principal, "invoice.update", "invoice", id)
	return s.GetInvoice(ctx, id)
}

// IssueInvoice moves a draft invoice to issued, stamping the issue time
// and assigning its sequential number.
func (s *Service) IssueInvoice(ctx context.Context, principal *authz.Principal, id int64) (*Invoice, error) {
	inv, err := s.transition(ctx, id, InvoiceDraft, func(inv *Invoice) map[string]any {
		issuedAt := s.now()
		return map[string]any{
			"status":    InvoiceIssued,
			"issued_at": issuedAt,
			"number":    fmt.Sprintf("INV-%s-%06d", issuedAt.Format("2006"), inv.ID),
		}
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, principal, "invoice.issue", "invoice", id)
	return inv, nil
}

// PayInvoice marks an issued invoice as paid.
func (s *Service) PayInvoice(ctx context.Context, principal *authz.Principal, id int64) (*Invoice, error) {
	inv, err := s.transition(ctx, id, InvoiceIssued, func(*Invoice) map[string]any {
		return map[string]any{"status": InvoicePaid, "paid_at": s.now()}
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, principal, "invoice.pay", "invoice", id)
	return inv, nil
}

// VoidInvoice cancels a draft or issued invoice.
func (s *Service) VoidInvoice(ctx context.Context, principal *authz.Principal, id int64) (*Invoice, error) {
	inv, err := s.transition(ctx, id, InvoiceDraft, func(*Invoice) map[string]any {
		return map[string]any{"status": InvoiceVoid}
	}, InvoiceIssued)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, principal, "invoice.void", "invoice", id)
	return inv, nil
}

// OverdueInvoices returns issued invoices past their due date.
func (s *Service) OverdueInvoices(ctx context.Context) ([]Invoice, error) {
	return s.repo.OverdueInvoices(ctx, s.now())
}

// transition loads an invoice, verifies its current status, and applies
// the computed updates inside a repeatable-read transaction.
func (s *Service) transition(ctx context.Context, id int64, from string, build func(*Invoice) map[string]any, alsoFrom ...string) (*Invoice, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		inv, err := repo.GetInvoice(ctx, id)
		if err != nil {
			if err == ErrNotFound {
				return httpx.ErrNotFound
			}
			return err
		}
		allowed := inv.Status == from
		for _, status := range alsoFrom {
			allowed = allowed || inv.Status == status
		}
		if !allowed {
			return fmt.Errorf("%w: invoice is %s", httpx.ErrValidation, inv.Status)
		}
		return repo.UpdateInvoice(ctx, id, build(inv))
	})
	if err != nil {
		return nil, err
	}
	return s.GetInvoice(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, principal *authz.Principal, action, entity string, id int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  principal.ID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
	})
}
