package manufacturing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tessera-erp/tessera-erp/internal/platform/httpx"
	"github.com/tessera-erp/tessera-erp/internal/shared"
)

// Handler serves manufacturing order reads and lifecycle transitions.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers manufacturing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/manufacturing/orders", h.list)
	r.Get("/manufacturing/orders/{id}", h.get)
	r.Post("/manufacturing/orders/{id}/release", h.transition(h.service.Release))
	r.Post("/manufacturing/orders/{id}/start", h.transition(h.service.Start))
	r.Post("/manufacturing/orders/{id}/complete", h.transition(h.service.Complete))
	r.Post("/manufacturing/orders/{id}/cancel", h.transition(h.service.Cancel))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
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
		Status: OrderStatus(query.Get("status")),
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}
	if raw := query.Get("plan_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid plan_id")
			return
		}
		filters.PlanID = id
	}
	orders, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.respondError(w, err, "list orders")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       orders,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err, "get order")
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) transition(fn func(ctx context.Context, id, actorID int64) (Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := orderID(w, r)
		if !ok {
			return
		}
		actor, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
		order, err := fn(r.Context(), id, actor)
		if err != nil {
			h.respondError(w, err, "order transition")
			return
		}
		httpx.JSON(w, http.StatusOK, order)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, ErrOrderNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", shared.UserSafeMessage(err))
	}
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return 0, false
	}
	return id, true
}
