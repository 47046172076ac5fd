package masterdata

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tessera-erp/tessera-erp/internal/platform/httpx"
	"github.com/tessera-erp/tessera-erp/internal/shared"
)

// Handler serves read-only catalogue lookups for planning clients.
type Handler struct {
	logger *slog.Logger
	repo   *Repository
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, repo *Repository) *Handler {
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes registers catalogue routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
	r.Get("/units", h.listUnits)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	filters := ListFilters{
		Search: r.URL.Query().Get("search"),
		Limit:  limit,
		Offset: offset,
	}
	if active := r.URL.Query().Get("active"); active != "" {
		v := active == "true" || active == "1"
		filters.IsActive = &v
	}
	products, total, err := h.repo.ListProducts(r.Context(), filters)
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", shared.UserSafeMessage(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": products, "total": total})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	product, err := h.repo.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("get product", slog.Any("error", err), slog.Int64("id", id))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", shared.UserSafeMessage(err))
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) listUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.repo.ListUnits(r.Context())
	if err != nil {
		h.logger.Error("list units", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", shared.UserSafeMessage(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": units})
}
