package billing

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/crewdesk/crewdesk/internal/authz"
	"github.com/crewdesk/crewdesk/internal/platform/httpx"
	"github.com/crewdesk/crewdesk/internal/shared"
)

// Handler manages billing endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     authz.Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: mw, validator: validator.New()}
}

// MountRoutes registers plan, subscription and invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/plans", func(r chi.Router) {
		r.With(h.authz.RequireAction(authz.KindPlan, authz.ActionRead)).Get("/", h.listPlans)
		r.With(h.authz.RequireAction(authz.KindPlan, authz.ActionWrite)).Post("/", h.createPlan)
		r.With(h.authz.Require(authz.KindPlan, authz.ActionRead)).Get("/{id}", h.getPlan)
		r.With(h.authz.Require(authz.KindPlan, authz.ActionWrite)).Patch("/{id}", h.updatePlan)
		r.With(h.authz.Require(authz.KindPlan, authz.ActionDelete)).Delete("/{id}", h.retirePlan)
	})

	r.Route("/subscriptions", func(r chi.Router) {
		r.With(h.authz.RequireAction(authz.KindSubscription, authz.ActionRead)).Get("/", h.listSubscriptions)
		r.With(h.authz.RequireAction(authz.KindSubscription, authz.ActionWrite)).Post("/", h.createSubscription)
		r.With(h.authz.Require(authz.KindSubscription, authz.ActionRead)).Get("/{id}", h.getSubscription)
		r.With(h.authz.Require(authz.KindSubscription, authz.ActionWrite)).Patch("/{id}", h.updateSubscription)
	})

	r.Route("/invoices", func(r chi.Router) {
		r.With(h.authz.RequireAction(authz.KindInvoice, authz.ActionRead)).Get("/", h.listInvoices)
		r.With(h.authz.RequireAction(authz.KindInvoice, authz.ActionWrite)).Post("/", h.createInvoice)
		r.With(h.authz.Require(authz.KindInvoice, authz.ActionRead)).Get("/{id}", h.getInvoice)
		r.With(h.authz.Require(authz.KindInvoice, authz.ActionWrite)).Patch("/{id}", h.updateInvoice)
		r.With(h.authz.Require(authz.KindInvoice, authz.ActionWrite)).Post("/{id}/issue", h.issueInvoice)
		r.With(h.authz.Require(authz.KindInvoice, authz.ActionWrite)).Post("/{id}/pay", h.payInvoice)
		r.With(h.authz.Require(authz.KindInvoice, authz.ActionWrite)).Post("/{id}/void", h.voidInvoice)
	})
}

func (h *Handler) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.service.ListPlans(r.Context())
	if err != nil {
		h.logger.Error("list plans", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if plans == nil {
		plans = []Plan{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"plans": plans})
}

func (h *Handler) getPlan(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	plan, err := h.service.GetPlan(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, plan)
}

type createPlanRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Currency    string `json:"currency"`
	Interval    string `json:"interval"`
}

func (h *Handler) createPlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	input := CreatePlanInput{
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Currency:    req.Currency,
		Interval:    req.Interval,
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "name, currency and interval are required")
		return
	}

	principal := authz.PrincipalFromContext(r.Context())
	plan, err := h.service.CreatePlan(r.Context(), principal, input)
	if err != nil {
		h.logger.Warn("create plan", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, plan)
}

func (h *Handler) updatePlan(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)

	var body map[string]any
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	sanitized := authz.FilterWritableFields(authz.KindPlan, body)

	principal := authz.PrincipalFromContext(r.Context())
	plan, err := h.service.UpdatePlan(r.Context(), principal, id, sanitized)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, plan)
}

func (h *Handler) retirePlan(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	principal := authz.PrincipalFromContext(r.Context())
	if err := h.service.RetirePlan(r.Context(), principal, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

type subscriptionListResponse struct {
	Subscriptions []Subscription    `json:"subscriptions"`
	Pagination    shared.Pagination `json:"pagination"`
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	principal := authz.PrincipalFromContext(r.Context())

	req := ListSubscriptionsRequest{Status: r.URL.Query().Get("status")}
	req.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	req.PerPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))

	subs, total, err := h.service.ListSubscriptions(r.Context(), principal, req)
	if err != nil {
		h.logger.Error("list subscriptions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if subs == nil {
		subs = []Subscription{}
	}
	httpx.JSON(w, http.StatusOK, subscriptionListResponse{
		Subscriptions: subs,
		Pagination:    shared.NewPagination(req.Page, req.PerPage, total),
	})
}

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	sub, err := h.service.GetSubscription(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sub)
}

type createSubscriptionRequest struct {
	TenantID int64 `json:"tenant_id"`
	PlanID   int64 `json:"plan_id"`
}

func (h *Handler) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	input := CreateSubscriptionInput{TenantID: req.TenantID, PlanID: req.PlanID}
	if err := h.validator.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tenant_id and plan_id are required")
		return
	}

	principal := authz.PrincipalFromContext(r.Context())
	sub, err := h.service.CreateSubscription(r.Context(), principal, input)
	if err != nil {
		h.logger.Warn("create subscription", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sub)
}

func (h *Handler) updateSubscription(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)

	var body map[string]any
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	sanitized := authz.FilterWritableFields(authz.KindSubscription, body)

	principal := authz.PrincipalFromContext(r.Context())
	sub, err := h.service.UpdateSubscription(r.Context(), principal, id, sanitized)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sub)
}

type invoiceListResponse struct {
	Invoices   []Invoice         `json:"invoices"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	principal := authz.PrincipalFromContext(r.Context())

	req := ListInvoicesRequest{Status: r.URL.Query().Get("status")}
	req.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	req.PerPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))

	invoices, total, err := h.service.ListInvoices(r.Context(), principal, req)
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if invoices == nil {
		invoices = []Invoice{}
	}
	httpx.JSON(w, http.StatusOK, invoiceListResponse{
		Invoices:   invoices,
		Pagination: shared.NewPagination(req.Page, req.PerPage, total),
	})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

type createInvoiceRequest struct {
	SubscriptionID int64  `json:"subscription_id"`
	AmountCents    int64  `json:"amount_cents"`
	DueDate        string `json:"due_date"`
	Notes          string `json:"notes"`
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "due_date must be YYYY-MM-DD")
		return
	}
	input := CreateInvoiceInput{
		SubscriptionID: req.SubscriptionID,
		AmountCents:    req.AmountCents,
		DueDate:        dueDate,
		Notes:          req.Notes,
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "subscription_id and a positive amount are required")
		return
	}

	principal := authz.PrincipalFromContext(r.Context())
	inv, err := h.service.CreateInvoice(r.Context(), principal, input)
	if err != nil {
		h.logger.Warn("create invoice", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) updateInvoice(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)

	var body map[string]any
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	sanitized := authz.FilterWritableFields(authz.KindInvoice, body)
	if raw, ok := sanitized["due_date"].(string); ok {
		dueDate, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "due_date must be YYYY-MM-DD")
			return
		}
		sanitized["due_date"] = dueDate
	}

	principal := authz.PrincipalFromContext(r.Context())
	inv, err := h.service.UpdateInvoice(r.Context(), principal, id, sanitized)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) issueInvoice(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.IssueInvoice)
}

func (h *Handler) payInvoice(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.PayInvoice)
}

func (h *Handler) voidInvoice(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.VoidInvoice)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, *authz.Principal, int64) (*Invoice, error)) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	principal := authz.PrincipalFromContext(r.Context())
	inv, err := fn(r.Context(), principal, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}
