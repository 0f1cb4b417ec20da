package clients

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewdesk/crewdesk/internal/authz"
	"github.com/crewdesk/crewdesk/internal/platform/httpx"
)

type mockRepository struct {
	clients map[int64]*Client
	nextID  int64

	lastListReq ListClientsRequest
}

func newMockRepository() *mockRepository {
	return &mockRepository{clients: make(map[int64]*Client), nextID: 1}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *mockRepository) Get(ctx context.Context, id int64) (*Client, error) {
	c, ok := m.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *mockRepository) List(ctx context.Context, req ListClientsRequest) ([]Client, int, error) {
	m.lastListReq = req
	var result []Client
	for _, c := range m.clients {
		if req.TenantID != nil && c.TenantID != *req.TenantID {
			continue
		}
		if req.ClientID != nil && c.ID != *req.ClientID {
			continue
		}
		result = append(result, *c)
	}
	return result, len(result), nil
}

func (m *mockRepository) Create(ctx context.Context, client Client) (int64, error) {
	id := m.nextID
	m.nextID++
	client.ID = id
	client.IsActive = true
	m.clients[id] = &client
	return id, nil
}

func (m *mockRepository) Update(ctx context.Context, id int64, updates map[string]any) error {
	c, ok := m.clients[id]
	if !ok {
		return ErrNotFound
	}
	for field, value := range updates {
		switch field {
		case "name":
			c.Name = value.(string)
		case "contact_email":
			c.ContactEmail = value.(string)
		case "phone":
			c.Phone = value.(string)
		case "address":
			c.Address = value.(string)
		}
	}
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, id int64) error {
	if _, ok := m.clients[id]; !ok {
		return ErrNotFound
	}
	delete(m.clients, id)
	return nil
}

func ptr(v int64) *int64 { return &v }

func TestSuperAdminCreateRequiresTenantID(t *testing.T) {
	service := NewService(newMockRepository(), nil)

	super := &authz.Principal{ID: 1, Role: authz.RoleSuperAdmin, IsActive: true}
	_, err := service.Create(context.Background(), super, CreateClientInput{Name: "No Tenant"})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestEmployeeCannotCreateClient(t *testing.T) {
	service := NewService(newMockRepository(), nil)

	employee := &authz.Principal{ID: 3, Role: authz.RoleEmployee, TenantID: ptr(1), ClientID: ptr(10), IsActive: true}
	_, err := service.Create(context.Background(), employee, CreateClientInput{Name: "Nope"})
	assert.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestListScopedToOwnClientForEmployee(t *testing.T) {
	repo := newMockRepository()
	repo.clients[10] = &Client{ID: 10, TenantID: 1, Name: "Mine"}
	repo.clients[11] = &Client{ID: 11, TenantID: 1, Name: "Sibling"}
	service := NewService(repo, nil)

	employee := &authz.Principal{ID: 3, Role: authz.RoleEmployee, TenantID: ptr(1), ClientID: ptr(10), IsActive: true}
	clients, total, err := service.List(context.Background(), employee, ListClientsRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, clients, 1)
	assert.Equal(t, int64(10), clients[0].ID)
}

func TestListWithoutClientAffiliationIsEmpty(t *testing.T) {
	repo := newMockRepository()
	repo.clients[10] = &Client{ID: 10, TenantID: 1}
	service := NewService(repo, nil)

	// Employee without a client affiliation sees nothing rather than everything.
	employee := &authz.Principal{ID: 3, Role: authz.RoleEmployee, TenantID: ptr(1), IsActive: true}
	clients, total, err := service.List(context.Background(), employee, ListClientsRequest{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, clients)
}
