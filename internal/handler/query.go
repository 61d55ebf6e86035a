package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/revival365/medassist/internal/auth"
	"github.com/revival365/medassist/internal/service/agent"
	"github.com/revival365/medassist/internal/service/session"
	"github.com/revival365/medassist/pkg/utils"
)

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
	PatientID *int   `json:"patient_id"`
}

// handleQuery answers a text query against the caller's medical records.
func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var payload queryRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	query := strings.TrimSpace(payload.Query)
	if query == "" {
		utils.RespondError(w, http.StatusBadRequest, "Query cannot be empty")
		return
	}

	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Token is required")
		return
	}

	scope, err := auth.DeriveScope(identity, payload.PatientID)
	if err != nil {
		utils.RespondError(w, http.StatusForbidden, err.Error())
		return
	}

	sessionID, fresh := h.store.GetOrCreate(payload.SessionID)
	if fresh && payload.SessionID != "" {
		log.Debug().Str("requested", payload.SessionID).Str("session", sessionID).
			Msg("unknown session id, minted a fresh session")
	}

	outcome, err := h.runner.Run(r.Context(), sessionID, query, scope)
	if err != nil {
		h.respondRunError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, h.assembler.BuildQueryReply(outcome, scope))
}

func (h *Handler) respondRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionBusy):
		utils.RespondError(w, http.StatusConflict, "Session has a query in flight, retry shortly")
	case errors.Is(err, agent.ErrRunTimeout):
		utils.RespondError(w, http.StatusInternalServerError, "Query timed out")
	case errors.Is(err, agent.ErrIterationLimit):
		utils.RespondError(w, http.StatusInternalServerError, "Could not resolve the query against the available records")
	default:
		log.Error().Err(err).Msg("query failed")
		utils.RespondError(w, http.StatusInternalServerError, "Error processing query")
	}
}
