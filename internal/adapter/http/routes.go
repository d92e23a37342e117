package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router. idem wraps
// the upload endpoint so a retried request with the same Idempotency-Key
// does not replace the snapshot twice; nil disables it.
func MountRoutes(r chi.Router, h *Handlers, idem func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Agents
		r.Get("/agents", handleList(h.Agents.List))
		r.Post("/agents", h.CreateAgent)
		r.Get("/agents/{id}", handleGet(h.Agents.Get, "agent not found"))
		r.Delete("/agents/{id}", handleDelete(h.Agents.Delete, "agent not found"))

		// Distributions
		r.Get("/distributions", handleList(h.Distributions.List))
		r.Get("/distributions/batch", h.LatestBatch)
		upload := r.With()
		if idem != nil {
			upload = r.With(idem)
		}
		upload.Post("/distributions/upload", h.UploadDistributions)
	})
}
