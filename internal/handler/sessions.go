package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/revival365/medassist/internal/service/session"
	"github.com/revival365/medassist/pkg/utils"
)

const sessionSampleLimit = 5

// handleListSessions reports the live session population for operational
// introspection. Histories are never exposed here.
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"active_sessions":    h.store.Count(),
		"session_ids_sample": h.store.SampleIDs(sessionSampleLimit),
	})
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.store.Clear(sessionID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "Session not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "Error clearing session")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "cleared",
		"sessionId": sessionID,
	})
}
