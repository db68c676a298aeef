package visits

import "github.com/go-chi/chi/v5"

// MountRoutes attaches visit lifecycle routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.start)
	r.Post("/batch", h.startBatch)
	r.Get("/{id}", h.resume)
	r.Post("/{id}/progress", h.saveProgress)
	r.Get("/history/{clientID}", h.history)
}

// MountApprovalRoutes attaches the admin approval queue.
func (h *Handler) MountApprovalRoutes(r chi.Router) {
	r.Get("/pending", h.pendingApprovals)
	r.Post("/{id}/resolve", h.resolveApproval)
}
