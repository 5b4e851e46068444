package calculator

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts the calculator page, its form actions, and the
// JSON API onto the given router.
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/", h.Page)
	r.Post("/calculate/{operation}", h.Calculate)
	r.Post("/history/filters", h.Filters)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", h.State)
		r.Post("/calculate/{operation}", h.CalculateJSON)
	})
}
