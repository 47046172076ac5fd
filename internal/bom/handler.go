package bom

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tessera-erp/tessera-erp/internal/platform/httpx"
	"github.com/tessera-erp/tessera-erp/internal/shared"
)

// Handler serves BOM tree and routing reads.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers BOM routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/boms/{id}/tree", h.getTree)
	r.Get("/boms/{id}/routing", h.getRouting)
}

func (h *Handler) getTree(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid bom id")
		return
	}
	quantity := decimal.Zero
	if raw := r.URL.Query().Get("qty"); raw != "" {
		quantity, err = decimal.NewFromString(raw)
		if err != nil || quantity.IsNegative() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "qty must be a non-negative number")
			return
		}
	}

	tree, err := h.service.Tree(r.Context(), id, quantity)
	if err != nil {
		h.respondTreeError(w, err, id)
		return
	}
	httpx.JSON(w, http.StatusOK, tree)
}

func (h *Handler) getRouting(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid bom id")
		return
	}
	routing, err := h.service.Routing(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrBomNotFound), errors.Is(err, ErrRoutingNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		default:
			h.logger.Error("get routing", slog.Any("error", err), slog.Int64("bom_id", id))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", shared.UserSafeMessage(err))
		}
		return
	}
	httpx.JSON(w, http.StatusOK, routing)
}

func (h *Handler) respondTreeError(w http.ResponseWriter, err error, bomID int64) {
	switch {
	case errors.Is(err, ErrBomNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrCircularReference), errors.Is(err, ErrMaxDepthExceeded),
		errors.Is(err, ErrBomInactive), errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidBaseQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Invalid BOM", err.Error())
	default:
		h.logger.Error("materialize bom tree", slog.Any("error", err), slog.Int64("bom_id", bomID))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", shared.UserSafeMessage(err))
	}
}
