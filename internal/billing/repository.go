package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewdesk/crewdesk/internal/platform/db"
)

var (
	ErrNotFound      = errors.New("billing: record not found")
	ErrAlreadyExists = errors.New("billing: record already exists")
)

// Repository provides persistence for plans, subscriptions and invoices.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	ListPlans(ctx context.Context, activeOnly bool) ([]Plan, error)
	GetPlan(ctx context.Context, id int64) (*Plan, error)
	CreatePlan(ctx context.Context, plan Plan) (int64, error)
	UpdatePlan(ctx context.Context, id int64, updates map[string]any) error
	DeletePlan(ctx context.Context, id int64) error

	ListSubscriptions(ctx context.Context, req ListSubscriptionsRequest) ([]Subscription, int, error)
	GetSubscription(ctx context.Context, id int64) (*Subscription, error)
	CreateSubscription(ctx context.Context, sub Subscription) (int64, error)
	UpdateSubscription(ctx context.Context, id int64, updates map[string]any) error

	ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error)
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	CreateInvoice(ctx context.Context, inv Invoice) (int64, error)
	UpdateInvoice(ctx context.Context, id int64, updates map[string]any) error
	OverdueInvoices(ctx context.Context, asOf time.Time) ([]Invoice, error)
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const planColumns = `id, name, COALESCE(description, ''), price_cents, currency, "interval", is_active, created_at, updated_at`

func scanPlan(row pgx.Row) (*Plan, error) {
	var p Plan
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Currency, &p.Interval, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) ListPlans(ctx context.Context, activeOnly bool) ([]Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY price_cents, id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *plan)
	}
	return result, rows.Err()
}

func (r *repository) GetPlan(ctx context.Context, id int64) (*Plan, error) {
	plan, err := scanPlan(r.db.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return plan, nil
}

func (r *repository) CreatePlan(ctx context.Context, plan Plan) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO plans (name, description, price_cents, currency, "interval", is_active, created_at, updated_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, TRUE, NOW(), NOW()) RETURNING id`,
		plan.Name, plan.Description, plan.PriceCents, plan.Currency, plan.Interval,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrAlreadyExists
		}
		return 0, err
	}
	return id, nil
}

var planColumnsUpdatable = map[string]string{
	"name":        "name",
	"description": "description",
	"price_cents": "price_cents",
	"currency":    "currency",
	"interval":    `"interval"`,
}

func (r *repository) UpdatePlan(ctx context.Context, id int64, updates map[string]any) error {
	return r.update(ctx, "plans", planColumnsUpdatable, id, updates)
}

func (r *repository) DeletePlan(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE plans SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND is_active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const subscriptionColumns = `id, tenant_id, plan_id, status, current_period_start, current_period_end, created_at, updated_at`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var s Subscription
	if err := row.Scan(&s.ID, &s.TenantID, &s.PlanID, &s.Status, &s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) ListSubscriptions(ctx context.Context, req ListSubscriptionsRequest) ([]Subscription, int, error) {
	conditions := []string{"TRUE"}
	var args []any
	argPos := 1
	if req.TenantID != nil {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argPos))
		args = append(args, *req.TenantID)
		argPos++
	}
	if req.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, req.Status)
		argPos++
	}
	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions `+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage, page := normalizePage(req.PerPage, req.Page)
	query := fmt.Sprintf(`SELECT `+subscriptionColumns+` FROM subscriptions %s ORDER BY id LIMIT $%d OFFSET $%d`, whereClause, argPos, argPos+1)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *sub)
	}
	return result, total, rows.Err()
}

func (r *repository) GetSubscription(ctx context.Context, id int64) (*Subscription, error) {
	sub, err := scanSubscription(r.db.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (r *repository) CreateSubscription(ctx context.Context, sub Subscription) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO subscriptions (tenant_id, plan_id, status, current_period_start, current_period_end, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW()) RETURNING id`,
		sub.TenantID, sub.PlanID, sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrAlreadyExists
		}
		return 0, err
	}
	return id, nil
}

var subscriptionColumnsUpdatable = map[string]string{
	"plan_id":              "plan_id",
	"status":               "status",
	"current_period_start": "current_period_start",
	"current_period_end":   "current_period_end",
}

func (r *repository) UpdateSubscription(ctx context.Context, id int64, updates map[string]any) error {
	return r.update(ctx, "subscriptions", subscriptionColumnsUpdatable, id, updates)
}

const invoiceColumns = `id, tenant_id, subscription_id, COALESCE(number, ''), status, amount_cents, currency, due_date, issued_at, paid_at, COALESCE(notes, ''), created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	if err := row.Scan(&inv.ID, &inv.TenantID, &inv.SubscriptionID, &inv.Number, &inv.Status, &inv.AmountCents, &inv.Currency, &inv.DueDate, &inv.IssuedAt, &inv.PaidAt, &inv.Notes, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	conditions := []string{"TRUE"}
	var args []any
	argPos := 1
	if req.TenantID != nil {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argPos))
		args = append(args, *req.TenantID)
		argPos++
	}
	if req.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, req.Status)
		argPos++
	}
	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM invoices `+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage, page := normalizePage(req.PerPage, req.Page)
	query := fmt.Sprintf(`SELECT `+invoiceColumns+` FROM invoices %s ORDER BY id DESC LIMIT $%d OFFSET $%d`, whereClause, argPos, argPos+1)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *inv)
	}
	return result, total, rows.Err()
}

func (r *repository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return inv, nil
}

func (r *repository) CreateInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO invoices (tenant_id, subscription_id, status, amount_cents, currency, due_date, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NOW(), NOW()) RETURNING id`,
		inv.TenantID, inv.SubscriptionID, inv.Status, inv.AmountCents, inv.Currency, inv.DueDate, inv.Notes,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

var invoiceColumnsUpdatable = map[string]string{
	"number":    "number",
	"status":    "status",
	"due_date":  "due_date",
	"issued_at": "issued_at",
	"paid_at":   "paid_at",
	"notes":     "notes",
}

func (r *repository) UpdateInvoice(ctx context.Context, id int64, updates map[string]any) error {
	return r.update(ctx, "invoices", invoiceColumnsUpdatable, id, updates)
}

// OverdueInvoices returns issued invoices whose due date has passed.
// The dunning job feeds on this.
func (r *repository) OverdueInvoices(ctx context.Context, asOf time.Time) ([]Invoice, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE status = $1 AND due_date < $2 ORDER BY due_date`,
		InvoiceIssued, asOf,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *inv)
	}
	return result, rows.Err()
}

func (r *repository) update(ctx context.Context, table string, allowed map[string]string, id int64, updates map[string]any) error {
	sets := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+1)
	argPos := 1
	for field, value := range updates {
		column, ok := allowed[field]
		if !ok {
			return fmt.Errorf("billing: column %q is not updatable on %s", field, table)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}
	if len(sets) == 0 {
		return errors.New("billing: no fields to update")
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	tag, err := r.db.Exec(ctx, fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`, table, strings.Join(sets, ", "), argPos), args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func normalizePage(perPage, page int) (int, int) {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	return perPage, page
}
