package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewdesk/crewdesk/internal/shared"
)

func newTestMiddleware(t *testing.T, repo IdentityRepository, scopes ScopeResolver) Middleware {
	t.Helper()
	authorizer, err := NewAuthorizer(DefaultPolicies(), scopes)
	require.NoError(t, err)
	return Middleware{
		Resolver:   NewResolver(repo),
		Authorizer: authorizer,
	}
}

func mountGuarded(m Middleware, kind ResourceKind, action Action) http.Handler {
	r := chi.NewRouter()
	r.Use(m.WithPrincipal)
	r.With(m.Require(kind, action)).Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func TestMiddlewareUnauthenticatedGets401(t *testing.T) {
	scopes := newStubScopeResolver()
	m := newTestMiddleware(t, &stubIdentityRepo{}, scopes)
	handler := mountGuarded(m, KindClient, ActionRead)

	req := httptest.NewRequest(http.MethodGet, "/10", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, scopes.calls)
}

func TestMiddlewareMasksOutOfScopeAsNotFound(t *testing.T) {
	scopes := newStubScopeResolver()
	scopes.add(ResourceScope{Kind: KindClient, ID: 10, OwnerTenantID: ptr(2), OwnerClientID: ptr(10)})
	repo := &stubIdentityRepo{principals: map[int64]*Principal{
		1: {ID: 1, Role: RoleTenantAdmin, TenantID: ptr(1), IsActive: true},
	}}
	m := newTestMiddleware(t, repo, scopes)
	handler := mountGuarded(m, KindClient, ActionRead)

	req := httptest.NewRequest(http.MethodGet, "/10", nil)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sessionForUser("1")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// Client existence is masked: out-of-scope reads 404, not 403.
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMiddlewareUnmaskedKindGets403(t *testing.T) {
	scopes := newStubScopeResolver()
	scopes.add(ResourceScope{Kind: KindBranch, ID: 5, OwnerTenantID: ptr(2), OwnerClientID: ptr(9)})
	repo := &stubIdentityRepo{principals: map[int64]*Principal{
		1: {ID: 1, Role: RoleClientAdmin, TenantID: ptr(1), ClientID: ptr(4), IsActive: true},
	}}
	m := newTestMiddleware(t, repo, scopes)
	handler := mountGuarded(m, KindBranch, ActionWrite)

	req := httptest.NewRequest(http.MethodGet, "/5", nil)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sessionForUser("1")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMiddlewareAllowsInScopeRequest(t *testing.T) {
	scopes := newStubScopeResolver()
	scopes.add(ResourceScope{Kind: KindClient, ID: 10, OwnerTenantID: ptr(1), OwnerClientID: ptr(10)})
	repo := &stubIdentityRepo{principals: map[int64]*Principal{
		1: {ID: 1, Role: RoleTenantAdmin, TenantID: ptr(1), IsActive: true},
	}}
	m := newTestMiddleware(t, repo, scopes)
	handler := mountGuarded(m, KindClient, ActionRead)

	req := httptest.NewRequest(http.MethodGet, "/10", nil)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sessionForUser("1")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareNonNumericIDIs404(t *testing.T) {
	m := newTestMiddleware(t, &stubIdentityRepo{}, newStubScopeResolver())
	handler := mountGuarded(m, KindClient, ActionRead)

	req := httptest.NewRequest(http.MethodGet, "/abc", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequireActionGuardsCollectionRoutes(t *testing.T) {
	repo := &stubIdentityRepo{principals: map[int64]*Principal{
		1: {ID: 1, Role: RoleEmployee, TenantID: ptr(1), ClientID: ptr(4), IsActive: true},
	}}
	m := newTestMiddleware(t, repo, newStubScopeResolver())

	r := chi.NewRouter()
	r.Use(m.WithPrincipal)
	r.With(m.RequireAction(KindInvoice, ActionRead)).Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sessionForUser("1")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
