package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns a router with the metric endpoints. Mount it at
// /api/metrics.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/standardize", h.Standardize)
	r.Route("/{key}", func(mr chi.Router) {
		mr.Get("/", h.Get)
		mr.Put("/", h.Update)
		mr.Delete("/", h.Delete)
		mr.Get("/points", h.Points)
		mr.Post("/points", h.AddPoint)
		mr.Delete("/points/{date}", h.DeletePoint)
	})
	return r
}
