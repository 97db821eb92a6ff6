/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the mobile/web clients

ROUTE GROUPS:
  /api/agents/*     Agent management, checkins, presence, reports
  /api/missions/*   Mission lifecycle
  /api/admin/*      Maintenance operations (relink, force-end)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Agent routes
		r.Route("/agents", func(r chi.Router) {
			r.Get("/", h.ListAgents)
			r.Post("/", h.CreateAgent)
			r.Get("/{id}", h.GetAgent)
			r.Put("/{id}/reference", h.UpdateReference)
			r.Post("/{id}/checkins", h.SubmitCheckin)
			r.Get("/{id}/checkins", h.ListCheckins)
			r.Get("/{id}/presence", h.ListPresence)
			r.Post("/{id}/missions", h.StartMission)
			r.Get("/{id}/missions", h.ListMissions)
			r.Post("/{id}/planifications", h.CreatePlanification)
			r.Get("/{id}/planifications", h.ListPlanifications)
			r.Get("/{id}/report/{month}", h.GetMonthlyReport)
		})

		// Mission routes
		r.Route("/missions", func(r chi.Router) {
			r.Post("/{id}/end", h.EndMission)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/relink", h.Relink)
			r.Get("/orphans", h.ListOrphans)
			r.Post("/missions/{id}/force-end", h.ForceEndMission)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Presence Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Presence Engine API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/agents">/api/agents</a> - List agents</li>
<li><a href="/api/admin/orphans">/api/admin/orphans</a> - List orphan validations</li>
<li><a href="/healthz">/healthz</a> - Health check</li>
</ul>
</body>
</html>`))
	})

	return r
}
