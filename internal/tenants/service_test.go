package tenants

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewdesk/crewdesk/internal/authz"
	"github.com/crewdesk/crewdesk/internal/platform/httpx"
)

type mockRepository struct {
	tenants map[int64]*Tenant
	slugs   map[string]int64
	nextID  int64

	lastListReq ListTenantsRequest
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		tenants: make(map[int64]*Tenant),
		slugs:   make(map[string]int64),
		nextID:  1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *mockRepository) Get(ctx context.Context, id int64) (*Tenant, error) {
	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (m *mockRepository) List(ctx context.Context, req ListTenantsRequest) ([]Tenant, int, error) {
	m.lastListReq = req
	var result []Tenant
	for _, t := range m.tenants {
		if req.TenantID != nil && t.ID != *req.TenantID {
			continue
		}
		result = append(result, *t)
	}
	return result, len(result), nil
}

func (m *mockRepository) Create(ctx context.Context, tenant Tenant) (int64, error) {
	if _, taken := m.slugs[tenant.Slug]; taken {
		return 0, ErrAlreadyExists
	}
	id := m.nextID
	m.nextID++
	tenant.ID = id
	tenant.IsActive = true
	m.tenants[id] = &tenant
	m.slugs[tenant.Slug] = id
	return id, nil
}

func (m *mockRepository) Update(ctx context.Context, id int64, updates map[string]any) error {
	t, ok := m.tenants[id]
	if !ok {
		return ErrNotFound
	}
	for field, value := range updates {
		switch field {
		case "name":
			t.Name = value.(string)
		case "slug":
			t.Slug = value.(string)
		case "contact_email":
			t.ContactEmail = value.(string)
		case "phone":
			t.Phone = value.(string)
		}
	}
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, id int64) error {
	if _, ok := m.tenants[id]; !ok {
		return ErrNotFound
	}
	delete(m.tenants, id)
	return nil
}

func ptr(v int64) *int64 { return &v }

func superAdmin() *authz.Principal {
	return &authz.Principal{ID: 1, Role: authz.RoleSuperAdmin, IsActive: true}
}

func TestCreateTenantNormalizesSlug(t *testing.T) {
	service := NewService(newMockRepository(), nil)

	tenant, err := service.Create(context.Background(), superAdmin(), CreateTenantInput{
		Name: "Acme Corp",
		Slug: "  Acme-Corp  ",
	})
	require.Error(t, err) // uppercase survives trim, pattern rejects it

	tenant, err = service.Create(context.Background(), superAdmin(), CreateTenantInput{
		Name: "Acme Corp",
		Slug: "acme-corp",
	})
	require.NoError(t, err)
	assert.Equal(t, "acme-corp", tenant.Slug)
}

func TestCreateTenantDuplicateSlug(t *testing.T) {
	service := NewService(newMockRepository(), nil)

	input := CreateTenantInput{Name: "Acme", Slug: "acme"}
	_, err := service.Create(context.Background(), superAdmin(), input)
	require.NoError(t, err)
	_, err = service.Create(context.Background(), superAdmin(), input)
	assert.ErrorIs(t, err, httpx.ErrDuplicate)
}

func TestOnlySuperAdminCreatesTenants(t *testing.T) {
	service := NewService(newMockRepository(), nil)

	admin := &authz.Principal{ID: 2, Role: authz.RoleTenantAdmin, TenantID: ptr(1), IsActive: true}
	_, err := service.Create(context.Background(), admin, CreateTenantInput{Name: "Rogue", Slug: "rogue"})
	assert.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestListScopedToOwnTenantForNonPlatformRoles(t *testing.T) {
	repo := newMockRepository()
	repo.tenants[1] = &Tenant{ID: 1, Name: "A", Slug: "a"}
	repo.tenants[2] = &Tenant{ID: 2, Name: "B", Slug: "b"}
	service := NewService(repo, nil)

	admin := &authz.Principal{ID: 2, Role: authz.RoleTenantAdmin, TenantID: ptr(2), IsActive: true}
	tenants, total, err := service.List(context.Background(), admin, ListTenantsRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, tenants, 1)
	assert.Equal(t, int64(2), tenants[0].ID)
}

func TestUpdateEmptySanitizedBody(t *testing.T) {
	service := NewService(newMockRepository(), nil)
	_, err := service.Update(context.Background(), superAdmin(), 1, map[string]any{})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestUpdateRejectsBadSlug(t *testing.T) {
	repo := newMockRepository()
	repo.tenants[1] = &Tenant{ID: 1, Name: "A", Slug: "a"}
	service := NewService(repo, nil)

	_, err := service.Update(context.Background(), superAdmin(), 1, map[string]any{"slug": "Not Valid!"})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestDeleteMissingTenant(t *testing.T) {
	service := NewService(newMockRepository(), nil)
	err := service.Delete(context.Background(), superAdmin(), 99)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}
