package authz

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/crewdesk/crewdesk/internal/platform/httpx"
	"github.com/crewdesk/crewdesk/internal/shared"
)

// maskAsNotFound lists the kinds whose existence is itself tenant data:
// an out-of-scope denial is reported as 404 so callers cannot probe ids.
// Plans are public catalog data and branches leak nothing beyond the
// client relationship the caller already holds, so they return plain 403.
var maskAsNotFound = map[ResourceKind]bool{
	KindTenant:       true,
	KindClient:       true,
	KindSubscription: true,
	KindInvoice:      true,
}

// DecisionRecorder receives decision outcomes for metrics.
type DecisionRecorder interface {
	RecordAuthzDecision(kind, action, reason string)
}

// Middleware wires principal resolution and authorization into chi routes.
type Middleware struct {
	Resolver   *Resolver
	Authorizer *Authorizer
	Logger     *slog.Logger
	Recorder   DecisionRecorder
}

// WithPrincipal resolves the session into a principal once per request and
// stores it in context. Unauthenticated requests pass through with a nil
// principal; Require* middlewares enforce authentication.
func (m Middleware) WithPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		principal, err := m.Resolver.ResolvePrincipal(r.Context(), sess)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("resolve principal", slog.Any("error", err))
			}
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		ctx := ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAction guards collection routes (list, create): role policy only,
// no ownership lookup. Repositories scope the rows they touch to the
// principal's tenant or client.
func (m Middleware) RequireAction(kind ResourceKind, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			decision := m.Authorizer.AuthorizeAction(principal, kind, action)
			m.record(kind, action, decision)
			if !decision.Allowed {
				m.respondDeny(w, kind, decision)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Require guards resource routes carrying an {id} URL parameter with the
// full decision: policy plus ownership scope.
func (m Middleware) Require(kind ResourceKind, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
			if err != nil {
				httpx.Problem(w, http.StatusNotFound, "Not Found", "resource not found")
				return
			}

			principal := PrincipalFromContext(r.Context())
			decision, err := m.Authorizer.Authorize(r.Context(), principal, kind, id, action)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("authorize", slog.String("kind", string(kind)), slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			m.record(kind, action, decision)
			if !decision.Allowed {
				m.respondDeny(w, kind, decision)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) respondDeny(w http.ResponseWriter, kind ResourceKind, decision Decision) {
	switch decision.Reason {
	case DenyUnauthenticated:
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
	case DenyNotFound:
		httpx.Problem(w, http.StatusNotFound, "Not Found", "resource not found")
	case DenyOutOfScope:
		if maskAsNotFound[kind] {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "resource not found")
			return
		}
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
	default:
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
	}
}

func (m Middleware) record(kind ResourceKind, action Action, decision Decision) {
	if m.Recorder == nil {
		return
	}
	reason := "allow"
	if !decision.Allowed {
		reason = string(decision.Reason)
	}
	m.Recorder.RecordAuthzDecision(string(kind), string(action), reason)
}
