package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewdesk/crewdesk/internal/billing"
	"github.com/crewdesk/crewdesk/internal/tenants"
)

type stubOverdueSource struct {
	invoices []billing.Invoice
}

func (s *stubOverdueSource) OverdueInvoices(ctx context.Context) ([]billing.Invoice, error) {
	return s.invoices, nil
}

type stubTenantDirectory struct {
	tenants map[int64]*tenants.Tenant
}

func (s *stubTenantDirectory) Get(ctx context.Context, id int64) (*tenants.Tenant, error) {
	t, ok := s.tenants[id]
	if !ok {
		return nil, tenants.ErrNotFound
	}
	return t, nil
}

type stubMailer struct {
	sent []SendEmailPayload
}

func (s *stubMailer) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	s.sent = append(s.sent, payload)
	return &asynq.TaskInfo{}, nil
}

func TestDunningScanRespectsGraceWindow(t *testing.T) {
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	invoices := &stubOverdueSource{invoices: []billing.Invoice{
		{ID: 1, TenantID: 1, Number: "INV-2026-000001", AmountCents: 10000, Currency: "USD", DueDate: now.AddDate(0, 0, -5)},
		{ID: 2, TenantID: 1, Number: "INV-2026-000002", AmountCents: 20000, Currency: "USD", DueDate: now.AddDate(0, 0, -1)},
	}}
	directory := &stubTenantDirectory{tenants: map[int64]*tenants.Tenant{
		1: {ID: 1, Name: "Acme", ContactEmail: "billing@acme.test"},
	}}
	mailer := &stubMailer{}

	scanner := &DunningScanner{
		Invoices:  invoices,
		Tenants:   directory,
		Mailer:    mailer,
		GraceDays: 3,
		Now:       func() time.Time { return now },
	}
	require.NoError(t, scanner.Handle(context.Background(), NewDunningScanTask()))

	// Only the invoice beyond the 3 day grace window gets a reminder.
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "billing@acme.test", mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].Subject, "INV-2026-000001")
	assert.Contains(t, mailer.sent[0].Body, "2026-05-05")
}

func TestDunningScanSkipsTenantsWithoutContact(t *testing.T) {
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	invoices := &stubOverdueSource{invoices: []billing.Invoice{
		{ID: 1, TenantID: 1, DueDate: now.AddDate(0, 0, -10), Currency: "USD"},
		{ID: 2, TenantID: 2, DueDate: now.AddDate(0, 0, -10), Currency: "USD"},
	}}
	directory := &stubTenantDirectory{tenants: map[int64]*tenants.Tenant{
		1: {ID: 1, Name: "Silent"},
	}}
	mailer := &stubMailer{}

	scanner := &DunningScanner{
		Invoices:  invoices,
		Tenants:   directory,
		Mailer:    mailer,
		GraceDays: 0,
		Now:       func() time.Time { return now },
	}
	require.NoError(t, scanner.Handle(context.Background(), NewDunningScanTask()))
	assert.Empty(t, mailer.sent, "no contact email and missing tenant both skip quietly")
}
