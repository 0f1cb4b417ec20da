package branches

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewdesk/crewdesk/internal/platform/db"
)

var ErrNotFound = errors.New("branches: record not found")

// Repository provides persistence for branches.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Branch, error)
	List(ctx context.Context, req ListBranchesRequest) ([]Branch, int, error)
	Create(ctx context.Context, branch Branch) (int64, error)
	Update(ctx context.Context, id int64, updates map[string]any) error
	Delete(ctx context.Context, id int64) error
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

const branchColumns = `b.id, b.client_id, b.name, COALESCE(b.address, ''), COALESCE(b.phone, ''), b.is_active, b.created_at, b.updated_at`

func scanBranch(row pgx.Row) (*Branch, error) {
	var b Branch
	if err := row.Scan(&b.ID, &b.ClientID, &b.Name, &b.Address, &b.Phone, &b.IsActive, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Branch, error) {
	branch, err := scanBranch(r.db.QueryRow(ctx, `SELECT `+branchColumns+` FROM branches b WHERE b.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return branch, nil
}

func (r *repository) List(ctx context.Context, req ListBranchesRequest) ([]Branch, int, error) {
	conditions := []string{"TRUE"}
	var args []any
	argPos := 1

	// Tenant scoping requires the owning client's tenant, hence the join.
	if req.TenantID != nil {
		conditions = append(conditions, fmt.Sprintf("c.tenant_id = $%d", argPos))
		args = append(args, *req.TenantID)
		argPos++
	}
	if req.ClientID != nil {
		conditions = append(conditions, fmt.Sprintf("b.client_id = $%d", argPos))
		args = append(args, *req.ClientID)
		argPos++
	}
	if req.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("b.is_active = $%d", argPos))
		args = append(args, *req.IsActive)
		argPos++
	}
	if req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("b.name ILIKE $%d", argPos))
		args = append(args, "%"+req.Search+"%")
		argPos++
	}
	whereClause := "WHERE " + strings.Join(conditions, " AND ")
	fromClause := "FROM branches b JOIN clients c ON c.id = b.client_id "

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) `+fromClause+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := req.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}
	query := fmt.Sprintf(`SELECT `+branchColumns+` %s%s ORDER BY b.id LIMIT $%d OFFSET $%d`, fromClause, whereClause, argPos, argPos+1)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Branch
	for rows.Next() {
		branch, err := scanBranch(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *branch)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *repository) Create(ctx context.Context, branch Branch) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO branches (client_id, name, address, phone, is_active, created_at, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), TRUE, NOW(), NOW()) RETURNING id`,
		branch.ClientID, branch.Name, branch.Address, branch.Phone,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

var updatableColumns = map[string]string{
	"name":    "name",
	"address": "address",
	"phone":   "phone",
}

func (r *repository) Update(ctx context.Context, id int64, updates map[string]any) error {
	sets := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+1)
	argPos := 1
	for field, value := range updates {
		column, ok := updatableColumns[field]
		if !ok {
			return fmt.Errorf("branches: column %q is not updatable", field)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}
	if len(sets) == 0 {
		return errors.New("branches: no fields to update")
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	tag, err := r.db.Exec(ctx, fmt.Sprintf(`UPDATE branches SET %s WHERE id = $%d`, strings.Join(sets, ", "), argPos), args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM branches WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
