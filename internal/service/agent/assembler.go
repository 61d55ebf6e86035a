package agent

import (
	"time"

	"github.com/revival365/medassist/internal/auth"
	"github.com/revival365/medassist/internal/model/conversation"
)

// Assembler packages an orchestration outcome plus session and authorization
// metadata into the externally visible reply. Pure formatting.
type Assembler struct{}

// BuildQueryReply shapes the response body for a text query.
func (Assembler) BuildQueryReply(outcome Outcome, scope auth.AccessScope) conversation.QueryReply {
	return conversation.QueryReply{
		Response:    outcome.Answer,
		SessionID:   outcome.SessionID,
		Metadata:    buildMetadata(outcome, scope),
		UserContext: snapshot(scope),
	}
}

// BuildVoiceReply shapes the response body for a voice query, carrying the
// transcript alongside the answer.
func (a Assembler) BuildVoiceReply(outcome Outcome, scope auth.AccessScope, transcript, languageMode string) conversation.QueryReply {
	reply := a.BuildQueryReply(outcome, scope)
	reply.Transcript = transcript
	reply.Metadata["language_mode"] = languageMode
	reply.Metadata["transcript_length"] = len(transcript)
	return reply
}

func buildMetadata(outcome Outcome, scope auth.AccessScope) map[string]any {
	return map[string]any{
		"agent_type":            agentType,
		"session_id":            outcome.SessionID,
		"conversation_length":   outcome.ConversationLen,
		"iterations":            outcome.Iterations,
		"tool_invocations":      len(outcome.ToolInvocations),
		"elapsed_ms":            outcome.Elapsed.Milliseconds(),
		"user_role":             scope.RoleName,
		"authorized_patient_id": scope.AuthorizedPatientID,
		"timestamp":             time.Now().UTC().Format(time.RFC3339),
	}
}

func snapshot(scope auth.AccessScope) *conversation.ScopeSnapshot {
	return &conversation.ScopeSnapshot{
		UserID:               scope.UserID,
		RoleName:             scope.RoleName,
		CanAccessAllPatients: scope.CanAccessAllPatients,
		AuthorizedPatientID:  scope.AuthorizedPatientID,
	}
}
