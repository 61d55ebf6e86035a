package handler

import (
	"net/http"
	"time"

	"github.com/revival365/medassist/pkg/utils"
)

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"service":         "medassist",
		"version":         "2.0",
		"active_sessions": h.store.Count(),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"service": "Revival365 medical assistant API",
		"version": "2.0",
		"status":  "running",
		"features": []string{
			"multi-turn sessions",
			"role-scoped medical record queries",
			"voice transcription",
			"live voice endpointing",
		},
		"endpoints": map[string]string{
			"health":         "GET /health",
			"query":          "POST /api/chat/query",
			"voice":          "POST /api/chat/voice",
			"voice_stream":   "GET /api/chat/voice/stream",
			"sessions":       "GET /api/chat/sessions",
			"delete_session": "DELETE /api/chat/sessions/{sessionID}",
		},
	})
}
