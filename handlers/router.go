package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter wires the API routes. metrics may be nil.
func NewRouter(h *Handlers, metrics http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewares...)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		SendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.HandleCreateEvent)
		r.Get("/", h.HandleListEvents)
		r.Get("/{id}", h.HandleGetEvent)
		r.Delete("/{id}", h.HandleDeleteEvent)
		r.Post("/{id}/registrations", h.HandleRegister)
	})

	r.Get("/registrations", h.HandleListRegistrations)
	r.Delete("/registrations/{id}", h.HandleDeleteRegistration)

	r.Get("/stats", h.HandleStats)
	r.Get("/dashboard", h.HandleDashboard)

	r.Get("/backup", h.HandleBackup)
	r.Post("/restore", h.HandleRestore)
	r.Post("/reset", h.HandleReset)

	return r
}
