package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tessera-erp/tessera-erp/internal/bom"
	"github.com/tessera-erp/tessera-erp/internal/manufacturing"
	"github.com/tessera-erp/tessera-erp/internal/masterdata"
	"github.com/tessera-erp/tessera-erp/internal/observability"
	"github.com/tessera-erp/tessera-erp/internal/planning"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger               *slog.Logger
	Config               *Config
	MasterDataHandler    *masterdata.Handler
	BomHandler           *bom.Handler
	PlanningHandler      *planning.Handler
	ManufacturingHandler *manufacturing.Handler
	Metrics              *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	policy := DefaultPlanningPolicy()
	if params.Config != nil {
		policy = params.Config.Planning
	}

	r.Route("/api/v1", func(r chi.Router) {
		if params.MasterDataHandler != nil {
			params.MasterDataHandler.MountRoutes(r)
		}
		if params.BomHandler != nil {
			params.BomHandler.MountRoutes(r)
		}
		if params.PlanningHandler != nil {
			params.PlanningHandler.MountRoutes(r, PreviewRateLimiter(policy))
		}
		if params.ManufacturingHandler != nil {
			params.ManufacturingHandler.MountRoutes(r)
		}
	})

	return r
}
