// Package handler exposes the HTTP surface of the service.
package handler

import (
	"context"

	"github.com/revival365/medassist/internal/auth"
	"github.com/revival365/medassist/internal/service/agent"
	"github.com/revival365/medassist/internal/service/session"
	"github.com/revival365/medassist/internal/service/voice"
)

// Runner executes one orchestration pass for an authorized utterance.
type Runner interface {
	Run(ctx context.Context, sessionID, utterance string, scope auth.AccessScope) (agent.Outcome, error)
}

// Handler serves the query, voice and session routes.
type Handler struct {
	store       *session.Store
	runner      Runner
	assembler   agent.Assembler
	transcriber voice.Transcriber
	verifier    auth.TokenVerifier
	voiceCfg    voice.Config
}

// New wires the handler to its collaborators. transcriber may be nil when no
// speech-to-text engine is configured; the voice routes then report that the
// capability is unavailable.
func New(store *session.Store, runner Runner, transcriber voice.Transcriber, verifier auth.TokenVerifier, voiceCfg voice.Config) *Handler {
	return &Handler{
		store:       store,
		runner:      runner,
		transcriber: transcriber,
		verifier:    verifier,
		voiceCfg:    voiceCfg,
	}
}
