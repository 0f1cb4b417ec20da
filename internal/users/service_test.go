package users

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/crewdesk/crewdesk/internal/authz"
	"github.com/crewdesk/crewdesk/internal/platform/httpx"
)

type mockRepository struct {
	users  map[int64]*User
	hashes map[int64]string
	nextID int64

	lastListReq ListUsersRequest
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		users:  make(map[int64]*User),
		hashes: make(map[int64]string),
		nextID: 1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *mockRepository) Get(ctx context.Context, id int64) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *mockRepository) List(ctx context.Context, req ListUsersRequest) ([]User, int, error) {
	m.lastListReq = req
	var result []User
	for _, u := range m.users {
		if req.TenantID != nil && (u.TenantID == nil || *u.TenantID != *req.TenantID) {
			continue
		}
		if req.UserID != nil && u.ID != *req.UserID {
			continue
		}
		result = append(result, *u)
	}
	return result, len(result), nil
}

func (m *mockRepository) Create(ctx context.Context, user User, passwordHash string) (int64, error) {
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return 0, ErrAlreadyExists
		}
	}
	id := m.nextID
	m.nextID++
	user.ID = id
	user.IsActive = true
	m.users[id] = &user
	m.hashes[id] = passwordHash
	return id, nil
}

func (m *mockRepository) Update(ctx context.Context, id int64, updates map[string]any) error {
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	for field, value := range updates {
		switch field {
		case "name":
			u.Name = value.(string)
		case "email":
			u.Email = value.(string)
		case "phone":
			u.Phone = value.(string)
		case "password_hash":
			m.hashes[id] = value.(string)
		default:
			return errors.New("unexpected column " + field)
		}
	}
	return nil
}

func (m *mockRepository) SetActive(ctx context.Context, id int64, active bool) error {
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = active
	return nil
}

func ptr(v int64) *int64 { return &v }

func superAdmin() *authz.Principal {
	return &authz.Principal{ID: 100, Role: authz.RoleSuperAdmin, IsActive: true}
}

func tenantAdmin(tenantID int64) *authz.Principal {
	return &authz.Principal{ID: 101, Role: authz.RoleTenantAdmin, TenantID: ptr(tenantID), IsActive: true}
}

func TestCreateUserHashesPassword(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, nil)

	user, err := service.Create(context.Background(), superAdmin(), CreateUserInput{
		Email:    "Staff@Acme.Test",
		Name:     "Staff Member",
		Password: "correct-horse",
		Role:     "employee",
		TenantID: ptr(1),
		ClientID: ptr(10),
	})
	require.NoError(t, err)
	assert.Equal(t, "staff@acme.test", user.Email)

	hash := repo.hashes[user.ID]
	require.NotEmpty(t, hash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct-horse")))
}

func TestCreateUserLegacyRoleNormalized(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, nil)

	user, err := service.Create(context.Background(), superAdmin(), CreateUserInput{
		Email:    "m@acme.test",
		Name:     "Member",
		Password: "correct-horse",
		Role:     "member",
		TenantID: ptr(1),
	})
	require.NoError(t, err)
	assert.Equal(t, "employee", user.Role)
}

func TestTenantAdminCreatesOnlyInOwnTenant(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, nil)

	user, err := service.Create(context.Background(), tenantAdmin(1), CreateUserInput{
		Email:    "emp@acme.test",
		Name:     "Employee",
		Password: "correct-horse",
		Role:     "employee",
		TenantID: ptr(99), // ignored, forced to own tenant
	})
	require.NoError(t, err)
	require.NotNil(t, user.TenantID)
	assert.Equal(t, int64(1), *user.TenantID)
}

func TestTenantAdminCannotMintSuperAdmin(t *testing.T) {
	service := NewService(newMockRepository(), nil)

	_, err := service.Create(context.Background(), tenantAdmin(1), CreateUserInput{
		Email:    "evil@acme.test",
		Name:     "Escalation",
		Password: "correct-horse",
		Role:     "super_admin",
	})
	assert.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestEmployeeCannotCreateUsers(t *testing.T) {
	service := NewService(newMockRepository(), nil)

	employee := &authz.Principal{ID: 5, Role: authz.RoleEmployee, TenantID: ptr(1), IsActive: true}
	_, err := service.Create(context.Background(), employee, CreateUserInput{
		Email:    "x@acme.test",
		Name:     "Someone",
		Password: "correct-horse",
		Role:     "employee",
	})
	assert.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestCreateDuplicateEmail(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, nil)

	input := CreateUserInput{
		Email:    "dup@acme.test",
		Name:     "First",
		Password: "correct-horse",
		Role:     "employee",
		TenantID: ptr(1),
	}
	_, err := service.Create(context.Background(), superAdmin(), input)
	require.NoError(t, err)
	_, err = service.Create(context.Background(), superAdmin(), input)
	assert.ErrorIs(t, err, httpx.ErrDuplicate)
}

func TestListScopesByRole(t *testing.T) {
	repo := newMockRepository()
	repo.users[1] = &User{ID: 1, Email: "a@a.test", TenantID: ptr(1)}
	repo.users[2] = &User{ID: 2, Email: "b@b.test", TenantID: ptr(2)}
	service := NewService(repo, nil)

	_, _, err := service.List(context.Background(), tenantAdmin(1), ListUsersRequest{})
	require.NoError(t, err)
	require.NotNil(t, repo.lastListReq.TenantID)
	assert.Equal(t, int64(1), *repo.lastListReq.TenantID)

	employee := &authz.Principal{ID: 2, Role: authz.RoleEmployee, TenantID: ptr(2), IsActive: true}
	users, _, err := service.List(context.Background(), employee, ListUsersRequest{})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(2), users[0].ID)
}

func TestUpdateRejectsEmptySanitizedBody(t *testing.T) {
	service := NewService(newMockRepository(), nil)

	_, err := service.Update(context.Background(), superAdmin(), 1, map[string]any{})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestUpdateHashesPasswordField(t *testing.T) {
	repo := newMockRepository()
	repo.users[1] = &User{ID: 1, Email: "a@a.test", Name: "A"}
	service := NewService(repo, nil)

	_, err := service.Update(context.Background(), superAdmin(), 1, map[string]any{
		"password": "new-password-1",
	})
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[1]), []byte("new-password-1")))
}

func TestUpdateShortPasswordRejected(t *testing.T) {
	repo := newMockRepository()
	repo.users[1] = &User{ID: 1}
	service := NewService(repo, nil)

	_, err := service.Update(context.Background(), superAdmin(), 1, map[string]any{"password": "short"})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestDeactivateMissingUser(t *testing.T) {
	service := NewService(newMockRepository(), nil)
	err := service.Deactivate(context.Background(), superAdmin(), 404)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}
