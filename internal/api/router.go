package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/{externalID}", s.handleGetDevice)
			r.Get("/{externalID}/history", s.handleDeviceHistory)
		})

		r.Get("/lights", s.handleListLights)
		r.Post("/lights/{id}/toggle", s.handleToggleLight)
		r.Post("/sync/{class}", s.handleSync)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth reports the controller and broker links.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	controller := s.bridge.IsConnected()
	if !controller {
		status = "degraded"
	}

	resp := map[string]any{
		"status":     status,
		"version":    s.version,
		"controller": controller,
	}
	if s.mqtt != nil {
		resp["mqtt"] = s.mqtt.IsConnected()
	}
	writeJSON(w, http.StatusOK, resp)
}
