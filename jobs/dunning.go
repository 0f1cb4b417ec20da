package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/crewdesk/crewdesk/internal/billing"
	jobmetrics "github.com/crewdesk/crewdesk/internal/jobs"
	"github.com/crewdesk/crewdesk/internal/tenants"
)

// OverdueSource lists invoices past their due date.
type OverdueSource interface {
	OverdueInvoices(ctx context.Context) ([]billing.Invoice, error)
}

// TenantDirectory resolves tenant billing contacts.
type TenantDirectory interface {
	Get(ctx context.Context, id int64) (*tenants.Tenant, error)
}

// EmailEnqueuer submits reminder emails to the queue.
type EmailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// DunningScanner turns overdue invoices into reminder emails. Invoices
// inside the grace window are skipped so tenants are not chased the
// morning after a due date.
type DunningScanner struct {
	Invoices  OverdueSource
	Tenants   TenantDirectory
	Mailer    EmailEnqueuer
	GraceDays int
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Now       func() time.Time
}

// Handle processes a TaskTypeDunningScan task.
func (s *DunningScanner) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := s.Metrics.Track(TaskTypeDunningScan)
	return tracker.End(s.scan(ctx))
}

func (s *DunningScanner) scan(ctx context.Context) error {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	overdue, err := s.Invoices.OverdueInvoices(ctx)
	if err != nil {
		return fmt.Errorf("dunning scan: %w", err)
	}

	cutoff := now.AddDate(0, 0, -s.GraceDays)
	sent := 0
	for _, inv := range overdue {
		if inv.DueDate.After(cutoff) {
			continue
		}
		tenant, err := s.Tenants.Get(ctx, inv.TenantID)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warn("dunning: tenant lookup failed",
					slog.Int64("tenant_id", inv.TenantID), slog.Any("error", err))
			}
			continue
		}
		if tenant.ContactEmail == "" {
			continue
		}
		amount := billing.FormatAmount(inv.AmountCents, inv.Currency)
		payload := SendEmailPayload{
			To:      tenant.ContactEmail,
			Subject: fmt.Sprintf("Invoice %s is overdue", inv.Number),
			Body: fmt.Sprintf("Invoice %s for %s was due on %s. Please arrange payment.",
				inv.Number, amount, inv.DueDate.Format("2006-01-02")),
		}
		if _, err := s.Mailer.EnqueueSendEmail(ctx, payload); err != nil {
			if s.Logger != nil {
				s.Logger.Error("dunning: enqueue reminder failed",
					slog.Int64("invoice_id", inv.ID), slog.Any("error", err))
			}
			continue
		}
		sent++
	}
	s.Metrics.AddReminders(sent)
	if s.Logger != nil {
		s.Logger.Info("dunning scan finished",
			slog.Int("overdue", len(overdue)), slog.Int("reminders", sent))
	}
	return nil
}
