package admin

import "github.com/go-chi/chi/v5"

// MountRoutes attaches the admin override routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/visits/{id}/reassign", h.reassign)
	r.Post("/visits/{id}/delete", h.deleteVisit)
	r.Post("/sales/{id}/edit", h.editSale)
}
