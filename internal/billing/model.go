package billing

import "time"

// Plan is a subscription tier in the public catalog.
type Plan struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	PriceCents   int64     `json:"price_cents"`
	Currency     string    `json:"currency"`
	Interval     string    `json:"interval"`
	PriceDisplay string    `json:"price_display,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Subscription statuses.
const (
	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

// Subscription binds a tenant to a plan.
type Subscription struct {
	ID                 int64     `json:"id"`
	TenantID           int64     `json:"tenant_id"`
	PlanID             int64     `json:"plan_id"`
	Status             string    `json:"status"`
	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Invoice statuses. The lifecycle is draft -> issued -> paid or void;
// a draft may also be voided directly.
const (
	InvoiceDraft  = "draft"
	InvoiceIssued = "issued"
	InvoicePaid   = "paid"
	InvoiceVoid   = "void"
)

// Invoice is a billing document raised against a tenant.
type Invoice struct {
	ID             int64      `json:"id"`
	TenantID       int64      `json:"tenant_id"`
	SubscriptionID int64      `json:"subscription_id"`
	Number         string     `json:"number,omitempty"`
	Status         string     `json:"status"`
	AmountCents    int64      `json:"amount_cents"`
	Currency       string     `json:"currency"`
	AmountDisplay  string     `json:"amount_display,omitempty"`
	DueDate        time.Time  `json:"due_date"`
	IssuedAt       *time.Time `json:"issued_at,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ListSubscriptionsRequest filters and paginates subscription listings.
type ListSubscriptionsRequest struct {
	TenantID *int64
	Status   string
	Page     int
	PerPage  int
}

// ListInvoicesRequest filters and paginates invoice listings.
type ListInvoicesRequest struct {
	TenantID *int64
	Status   string
	Page     int
	PerPage  int
}
