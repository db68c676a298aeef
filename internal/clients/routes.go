package clients

import "github.com/go-chi/chi/v5"

// MountRoutes attaches directory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.search)
	r.Post("/", h.create)
	r.Get("/by-national-id/{nationalID}", h.lookup)
	r.Post("/{id}/deactivate", h.deactivate)
}
