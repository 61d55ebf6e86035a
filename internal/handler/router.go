package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/revival365/medassist/internal/auth"
	middlewarePkg "github.com/revival365/medassist/internal/middleware"
)

// NewRouter wires HTTP routes to core services. Health and discovery are
// public; everything that touches medical data sits behind bearer-token
// authentication.
func NewRouter(h *Handler, verifier auth.TokenVerifier) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/", h.handleDiscovery)
	r.Get("/health", h.handleHealth)

	r.Route("/api/chat", func(api chi.Router) {
		api.Get("/", h.handleDiscovery)
		api.Get("/health", h.handleHealth)

		// The websocket route authenticates itself before upgrading, so it
		// stays outside the middleware group.
		api.Get("/voice/stream", h.handleVoiceStream)

		api.Group(func(protected chi.Router) {
			protected.Use(auth.Middleware(verifier))
			protected.Get("/sessions", h.handleListSessions)
			protected.Delete("/sessions/{sessionID}", h.handleDeleteSession)
			protected.Post("/query", h.handleQuery)
			protected.Post("/voice", h.handleVoice)
		})
	})

	return r
}
