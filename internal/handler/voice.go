package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/revival365/medassist/internal/auth"
	"github.com/revival365/medassist/internal/service/voice"
	"github.com/revival365/medassist/pkg/utils"
)

type voiceRequest struct {
	AudioBase64 string `json:"audioBase64"`
	Language    string `json:"language"`
	SessionID   string `json:"sessionId"`
	PatientID   *int   `json:"patient_id"`
}

// handleVoice transcribes an uploaded clip and answers the transcript like a
// text query.
func (h *Handler) handleVoice(w http.ResponseWriter, r *http.Request) {
	var payload voiceRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(payload.AudioBase64) == "" {
		utils.RespondError(w, http.StatusBadRequest, "Audio payload is required")
		return
	}

	audio, mimeType, err := voice.DecodeBase64Audio(payload.AudioBase64)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(audio) < voice.MinAudioBytes {
		utils.RespondError(w, http.StatusBadRequest,
			fmt.Sprintf("Audio is too short to transcribe (%d bytes, need at least %d)", len(audio), voice.MinAudioBytes))
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

	if h.transcriber == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "Voice transcription is not configured")
		return
	}

	language := voice.NormalizeLanguage(payload.Language)
	transcript, err := h.transcriber.Transcribe(r.Context(), audio, mimeType, language)
	if err != nil {
		if errors.Is(err, voice.ErrEmptyTranscript) {
			utils.RespondError(w, http.StatusBadRequest, "Could not understand the audio")
			return
		}
		log.Error().Err(err).Msg("transcription failed")
		utils.RespondError(w, http.StatusInternalServerError, "Transcription failed")
		return
	}

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		utils.RespondError(w, http.StatusBadRequest, "Could not understand the audio")
		return
	}

	sessionID, _ := h.store.GetOrCreate(payload.SessionID)
	outcome, err := h.runner.Run(r.Context(), sessionID, transcript, scope)
	if err != nil {
		h.respondRunError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, h.assembler.BuildVoiceReply(outcome, scope, transcript, language))
}
