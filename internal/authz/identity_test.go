package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewdesk/crewdesk/internal/shared"
)

type stubIdentityRepo struct {
	principals map[int64]*Principal
	err        error
	calls      int
}

func (s *stubIdentityRepo) FindPrincipal(ctx context.Context, userID int64) (*Principal, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.principals[userID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return p, nil
}

func sessionForUser(id string) *shared.Session {
	sess := &shared.Session{}
	sess.SetUser(id)
	return sess
}

func TestResolvePrincipalNilSession(t *testing.T) {
	repo := &stubIdentityRepo{}
	resolver := NewResolver(repo)

	principal, err := resolver.ResolvePrincipal(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, principal)
	assert.Zero(t, repo.calls)
}

func TestResolvePrincipalAnonymousSession(t *testing.T) {
	repo := &stubIdentityRepo{}
	resolver := NewResolver(repo)

	principal, err := resolver.ResolvePrincipal(context.Background(), &shared.Session{})
	require.NoError(t, err)
	assert.Nil(t, principal)
	assert.Zero(t, repo.calls)
}

func TestResolvePrincipalMalformedUserID(t *testing.T) {
	repo := &stubIdentityRepo{}
	resolver := NewResolver(repo)

	principal, err := resolver.ResolvePrincipal(context.Background(), sessionForUser("not-a-number"))
	require.NoError(t, err)
	assert.Nil(t, principal)
	assert.Zero(t, repo.calls)
}

func TestResolvePrincipalUnknownUser(t *testing.T) {
	repo := &stubIdentityRepo{principals: map[int64]*Principal{}}
	resolver := NewResolver(repo)

	principal, err := resolver.ResolvePrincipal(context.Background(), sessionForUser("42"))
	require.NoError(t, err)
	assert.Nil(t, principal)
}

func TestResolvePrincipalInactiveAccount(t *testing.T) {
	repo := &stubIdentityRepo{principals: map[int64]*Principal{
		7: {ID: 7, Role: RoleEmployee, IsActive: false},
	}}
	resolver := NewResolver(repo)

	principal, err := resolver.ResolvePrincipal(context.Background(), sessionForUser("7"))
	require.NoError(t, err)
	assert.Nil(t, principal)
}

func TestResolvePrincipalActiveAccount(t *testing.T) {
	repo := &stubIdentityRepo{principals: map[int64]*Principal{
		7: {ID: 7, Role: RoleTenantAdmin, TenantID: ptr(3), IsActive: true},
	}}
	resolver := NewResolver(repo)

	principal, err := resolver.ResolvePrincipal(context.Background(), sessionForUser("7"))
	require.NoError(t, err)
	require.NotNil(t, principal)
	assert.Equal(t, int64(7), principal.ID)
	assert.Equal(t, RoleTenantAdmin, principal.Role)
	require.NotNil(t, principal.TenantID)
	assert.Equal(t, int64(3), *principal.TenantID)
}

func TestResolvePrincipalInfrastructureFault(t *testing.T) {
	repo := &stubIdentityRepo{err: errors.New("connection refused")}
	resolver := NewResolver(repo)

	principal, err := resolver.ResolvePrincipal(context.Background(), sessionForUser("7"))
	require.Error(t, err)
	assert.Nil(t, principal)
}
