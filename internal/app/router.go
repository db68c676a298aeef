package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ruta-crm/ruta-crm/internal/admin"
	"github.com/ruta-crm/ruta-crm/internal/clients"
	"github.com/ruta-crm/ruta-crm/internal/identity"
	"github.com/ruta-crm/ruta-crm/internal/visits"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	IdentityHandler *identity.Handler
	ClientsHandler  *clients.Handler
	VisitsHandler   *visits.Handler
	AdminHandler    *admin.Handler
	ActorMiddleware func(http.Handler) http.Handler
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
		Actor:  params.ActorMiddleware,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.IdentityHandler.MountRoutes)
	r.Route("/api/clients", params.ClientsHandler.MountRoutes)
	r.Route("/api/visits", params.VisitsHandler.MountRoutes)
	r.Route("/api/approvals", params.VisitsHandler.MountApprovalRoutes)
	r.Route("/api/admin", params.AdminHandler.MountRoutes)

	return r
}
