package planning

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tessera-erp/tessera-erp/internal/bom"
	"github.com/tessera-erp/tessera-erp/internal/platform/httpx"
	"github.com/tessera-erp/tessera-erp/internal/sales"
	"github.com/tessera-erp/tessera-erp/internal/shared"
)

// Handler serves planning previews and the plan lifecycle.
type Handler struct {
	logger   *slog.Logger
	validate *validator.Validate
	previews *PreviewService
	commits  *CommitService
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, validate *validator.Validate, previews *PreviewService, commits *CommitService) *Handler {
	return &Handler{logger: logger, validate: validate, previews: previews, commits: commits}
}

// MountRoutes registers planning routes. previewLimiter, when non-nil, rate
// limits the preview endpoint on top of the global middleware chain.
func (h *Handler) MountRoutes(r chi.Router, previewLimiter func(http.Handler) http.Handler) {
	if previewLimiter != nil {
		r.With(previewLimiter).Post("/planning/preview", h.preview)
	} else {
		r.Post("/planning/preview", h.preview)
	}
	r.Post("/planning/plans", h.createPlan)
	r.Get("/planning/plans", h.listPlans)
	r.Get("/planning/plans/{id}", h.getPlan)
	r.Post("/planning/plans/{id}/confirm", h.confirmPlan)
	r.Post("/planning/plans/{id}/generate-manufacturing-orders", h.generateOrders)
	r.Post("/planning/plans/{id}/cancel", h.cancelPlan)
	r.Post("/planning/plans/{id}/complete", h.completePlan)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondValidation(w, err)
		return
	}
	result, err := h.previews.Preview(r.Context(), req)
	if err != nil {
		h.respondPlanError(w, err, "preview")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) createPlan(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondValidation(w, err)
		return
	}
	plan, err := h.commits.CreatePlan(r.Context(), actorID(r), req)
	if err != nil {
		h.respondPlanError(w, err, "create plan")
		return
	}
	httpx.JSON(w, http.StatusCreated, plan)
}

func (h *Handler) listPlans(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	perPage, _ := strconv.Atoi(query.Get("per_page"))
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}
	filters := ListFilters{
		Status: PlanStatus(query.Get("status")),
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}
	if raw := query.Get("order_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order_id")
			return
		}
		filters.OrderID = id
	}
	plans, total, err := h.commits.List(r.Context(), filters)
	if err != nil {
		h.respondPlanError(w, err, "list plans")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       plans,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) getPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := planID(w, r)
	if !ok {
		return
	}
	plan, err := h.commits.Get(r.Context(), id)
	if err != nil {
		h.respondPlanError(w, err, "get plan")
		return
	}
	httpx.JSON(w, http.StatusOK, plan)
}

func (h *Handler) confirmPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := planID(w, r)
	if !ok {
		return
	}
	var req ConfirmRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request Body", err.Error())
			return
		}
	}
	plan, orders, err := h.commits.Confirm(r.Context(), id, actorID(r), req)
	if err != nil {
		h.respondPlanError(w, err, "confirm plan")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"plan": plan, "manufacturingOrders": orders})
}

func (h *Handler) generateOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := planID(w, r)
	if !ok {
		return
	}
	orders, err := h.commits.GenerateManufacturingOrders(r.Context(), id, actorID(r), r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.respondPlanError(w, err, "generate manufacturing orders")
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"manufacturingOrders": orders})
}

func (h *Handler) cancelPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := planID(w, r)
	if !ok {
		return
	}
	plan, err := h.commits.Cancel(r.Context(), id, actorID(r))
	if err != nil {
		h.respondPlanError(w, err, "cancel plan")
		return
	}
	httpx.JSON(w, http.StatusOK, plan)
}

func (h *Handler) completePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := planID(w, r)
	if !ok {
		return
	}
	plan, err := h.commits.Complete(r.Context(), id, actorID(r))
	if err != nil {
		h.respondPlanError(w, err, "complete plan")
		return
	}
	httpx.JSON(w, http.StatusOK, plan)
}

func (h *Handler) respondPlanError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, ErrPlanNotFound), errors.Is(err, sales.ErrOrderNotFound), errors.Is(err, bom.ErrBomNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidPlanState), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrNoOrderLines), errors.Is(err, ErrEmptyPlan):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", shared.UserSafeMessage(err))
	}
}

func planID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid plan id")
		return 0, false
	}
	return id, true
}

// actorID reads the authenticated user id stamped by the gateway. Zero means
// the caller is unattributed, which the audit trail tolerates.
func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return id
}
