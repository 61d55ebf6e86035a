package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/revival365/medassist/internal/auth"
	"github.com/revival365/medassist/internal/service/voice"
	"github.com/revival365/medassist/pkg/utils"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

type streamEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type streamControl struct {
	Type string `json:"type"`
}

// handleVoiceStream captures one spoken utterance over a websocket. The client
// streams raw 16-bit PCM in binary frames; the endpointer decides when the
// utterance is over, after which the transcript is answered like a text query
// and the reply is pushed back on the socket.
//
// Browsers cannot set headers on websocket dials, so the bearer token is also
// accepted as a "token" query parameter.
func (h *Handler) handleVoiceStream(w http.ResponseWriter, r *http.Request) {
	token := streamToken(r)
	if token == "" {
		utils.RespondError(w, http.StatusUnauthorized, "Token is required")
		return
	}

	identity, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Invalid token or user not found")
		return
	}

	var patientID *int
	if raw := strings.TrimSpace(r.URL.Query().Get("patient_id")); raw != "" {
		id, convErr := strconv.Atoi(raw)
		if convErr != nil {
			utils.RespondError(w, http.StatusBadRequest, "patient_id must be an integer")
			return
		}
		patientID = &id
	}

	scope, err := auth.DeriveScope(identity, patientID)
	if err != nil {
		utils.RespondError(w, http.StatusForbidden, err.Error())
		return
	}

	language := voice.NormalizeLanguage(r.URL.Query().Get("language"))
	sessionID, _ := h.store.GetOrCreate(r.URL.Query().Get("sessionId"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	go pingLoop(ctx, conn)

	src := voice.NewBufferSource()
	stop := make(chan struct{})
	var stopOnce sync.Once

	go func() {
		for {
			msgType, data, readErr := conn.ReadMessage()
			if readErr != nil {
				// The capture loop ends via context cancellation; a drop
				// mid-utterance abandons the clip.
				cancel()
				return
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			switch msgType {
			case websocket.BinaryMessage:
				src.Push(voice.DecodePCM16(data))
			case websocket.TextMessage:
				var control streamControl
				if json.Unmarshal(data, &control) == nil && control.Type == "stop" {
					stopOnce.Do(func() { close(stop) })
				}
			}
		}
	}()

	sendEvent(conn, sessionID, "listening", map[string]any{
		"sampleRate": h.voiceCfg.SampleRate,
		"language":   language,
	})

	clip, err := voice.Capture(ctx, src, h.voiceCfg, stop)
	if err != nil {
		sendError(conn, sessionID, "capture failed: "+err.Error())
		return
	}

	sendEvent(conn, sessionID, "finalized", map[string]any{
		"reason":         string(clip.Reason),
		"durationMs":     clip.Duration().Milliseconds(),
		"speechDetected": clip.SpeechDetected,
	})

	if clip.Empty() {
		sendError(conn, sessionID, "No speech detected")
		return
	}

	if h.transcriber == nil {
		sendError(conn, sessionID, "Voice transcription is not configured")
		return
	}

	audio := voice.EncodeWAV(clip.Samples, clip.SampleRate)
	if len(audio) < voice.MinAudioBytes {
		sendError(conn, sessionID, "Audio is too short to transcribe")
		return
	}

	transcript, err := h.transcriber.Transcribe(ctx, audio, "audio/wav", language)
	if err != nil {
		sendError(conn, sessionID, "Transcription failed")
		return
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		sendError(conn, sessionID, "Could not understand the audio")
		return
	}

	sendEvent(conn, sessionID, "transcript", map[string]any{"text": transcript})

	outcome, err := h.runner.Run(ctx, sessionID, transcript, scope)
	if err != nil {
		sendError(conn, sessionID, "Error processing query")
		return
	}

	sendEvent(conn, sessionID, "reply", h.assembler.BuildVoiceReply(outcome, scope, transcript, language))
}

func streamToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func sendEvent(conn *websocket.Conn, sessionID, eventType string, data any) {
	msg := streamEvent{
		Type:      eventType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Error().Err(err).Msg("websocket write failed")
	}
}

func sendError(conn *websocket.Conn, sessionID, message string) {
	sendEvent(conn, sessionID, "error", map[string]string{"message": message})
}

func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
