// Package agent drives the bounded tool-selection loop that turns a user
// utterance into data lookups and a final answer.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/revival365/medassist/internal/auth"
	"github.com/revival365/medassist/internal/model/conversation"
	"github.com/revival365/medassist/internal/service/session"
	"github.com/revival365/medassist/internal/tool"
)

var (
	// ErrIterationLimit is surfaced when the loop exhausts its cap without a
	// final answer and no tool ever returned usable data.
	ErrIterationLimit = errors.New("tool selection exhausted the iteration limit")

	// ErrRunTimeout is surfaced when the wall-clock ceiling for a run expires.
	ErrRunTimeout = errors.New("orchestration timed out")
)

// Defaults mirroring the agent executor's bounds.
const (
	DefaultMaxIterations = 2
	DefaultRunTimeout    = 120 * time.Second

	agentType = "Revival365AI Agent"
)

// Config tunes the orchestration loop.
type Config struct {
	MaxIterations int
	RunTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = DefaultRunTimeout
	}
	return c
}

// Outcome is one completed orchestration pass.
type Outcome struct {
	Answer          string
	SessionID       string
	Iterations      int
	ToolInvocations []tool.Result
	Elapsed         time.Duration
	ConversationLen int
}

// Orchestrator owns the select-invoke cycle. It holds the session's critical
// section for the whole run, so a session never has two orchestrations in
// flight.
type Orchestrator struct {
	toolModel einomodel.ToolCallingChatModel
	tools     tool.Registry
	store     *session.Store
	cfg       Config

	now func() time.Time
}

// New binds the tool catalog to the chat model and wires the orchestrator.
func New(chatModel einomodel.ToolCallingChatModel, tools tool.Registry, store *session.Store, cfg Config) (*Orchestrator, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if tools == nil {
		return nil, errors.New("tool registry is required")
	}
	if store == nil {
		return nil, errors.New("session store is required")
	}

	toolModel, err := chatModel.WithTools(tools.Infos())
	if err != nil {
		return nil, fmt.Errorf("bind tools: %w", err)
	}

	return &Orchestrator{
		toolModel: toolModel,
		tools:     tools,
		store:     store,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}, nil
}

// Run executes one orchestration pass for the given session. The utterance is
// appended to history first; the final answer is appended before returning.
// Authorization must already have been derived by the caller — a request that
// fails authorization never reaches this point.
func (o *Orchestrator) Run(ctx context.Context, sessionID, utterance string, scope auth.AccessScope) (Outcome, error) {
	start := o.now()
	var outcome Outcome

	err := o.store.WithSession(ctx, sessionID, func(sess *conversation.Session) error {
		runCtx, cancel := context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()

		sess.LastScope = snapshot(scope)
		o.store.AppendLocked(sess, conversation.NewMessage(conversation.RoleUser, contextualQuery(scope, utterance)))

		answer, iterations, invocations, err := o.loop(runCtx, sess, scope)
		if err != nil {
			return err
		}

		o.store.AppendLocked(sess, conversation.NewMessage(conversation.RoleAssistant, answer))

		outcome = Outcome{
			Answer:          answer,
			SessionID:       sess.ID,
			Iterations:      iterations,
			ToolInvocations: invocations,
			ConversationLen: len(sess.Messages),
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	outcome.Elapsed = o.now().Sub(start)
	return outcome, nil
}

// loop is the Select -> Invoke -> Loop -> Finalize state machine.
func (o *Orchestrator) loop(ctx context.Context, sess *conversation.Session, scope auth.AccessScope) (string, int, []tool.Result, error) {
	messages := o.buildContext(sess, scope)

	var invocations []tool.Result
	lastUsable := ""

	for iteration := 0; ; iteration++ {
		if ctx.Err() != nil {
			return "", iteration, invocations, ErrRunTimeout
		}

		reply, err := o.toolModel.Generate(ctx, messages)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
				return "", iteration, invocations, ErrRunTimeout
			}
			return "", iteration, invocations, fmt.Errorf("model invoke: %w", err)
		}

		if len(reply.ToolCalls) == 0 {
			answer := strings.TrimSpace(reply.Content)
			if answer == "" {
				return "", iteration, invocations, errors.New("model returned an empty answer")
			}
			return answer, iteration, invocations, nil
		}

		if iteration >= o.cfg.MaxIterations {
			// Cap reached with the model still asking for tools: best-effort
			// answer from the last usable result, else give up.
			if lastUsable != "" {
				return "Based on the records I could retrieve:\n" + lastUsable, iteration, invocations, nil
			}
			return "", iteration, invocations, ErrIterationLimit
		}

		messages = append(messages, reply)
		for _, call := range reply.ToolCalls {
			result := o.invoke(ctx, call, scope)
			invocations = append(invocations, result)

			feedback := result.Output
			if result.Failed() {
				// A failed tool is context for the next Select step, not a
				// request failure.
				feedback = "tool error: " + result.Error
			} else if result.Output != "" {
				lastUsable = result.Output
			}

			o.store.AppendLocked(sess, conversation.NewMessage(conversation.RoleTool,
				fmt.Sprintf("%s: %s", result.Tool, feedback)))
			messages = append(messages, schema.ToolMessage(feedback, call.ID))
		}
	}
}

func (o *Orchestrator) invoke(ctx context.Context, call schema.ToolCall, scope auth.AccessScope) tool.Result {
	name := strings.TrimSpace(call.Function.Name)
	if name == "" {
		return tool.Result{Tool: "(unnamed)", Error: "tool call without a name"}
	}

	args := map[string]any{}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return tool.Result{Tool: name, Error: fmt.Sprintf("invalid tool arguments: %v", err)}
		}
	}

	result := o.tools.Execute(ctx, name, args, scope)
	log.Debug().
		Str("tool", result.Tool).
		Bool("failed", result.Failed()).
		Dur("elapsed", result.Elapsed).
		Msg("tool invoked")
	return result
}

// buildContext maps the bounded history onto model messages under a
// scope-aware system prompt. Persisted tool turns are rendered as plain
// context since their call identifiers do not survive the run that produced
// them.
func (o *Orchestrator) buildContext(sess *conversation.Session, scope auth.AccessScope) []*schema.Message {
	messages := make([]*schema.Message, 0, len(sess.Messages)+1)
	messages = append(messages, schema.SystemMessage(systemPrompt(scope, o.now())))

	for _, m := range sess.Messages {
		switch m.Role {
		case conversation.RoleUser:
			messages = append(messages, schema.UserMessage(m.Content))
		case conversation.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(m.Content, nil))
		case conversation.RoleTool:
			messages = append(messages, schema.UserMessage("[tool result] "+m.Content))
		}
	}
	return messages
}

// contextualQuery prefixes the utterance with the resolved authorization
// context so the transcript itself records who asked for what.
func contextualQuery(scope auth.AccessScope, utterance string) string {
	if !scope.CanAccessAllPatients {
		return fmt.Sprintf("[Patient Query - User ID: %d] %s", scope.UserID, utterance)
	}
	if scope.AuthorizedPatientID != nil {
		return fmt.Sprintf("[Medical Staff Query - For Patient ID: %d] %s", *scope.AuthorizedPatientID, utterance)
	}
	return fmt.Sprintf("[Medical Staff Query - General] %s", utterance)
}

func systemPrompt(scope auth.AccessScope, now time.Time) string {
	var b strings.Builder
	b.WriteString("You are a medical assistant AI for Revival Hospital. Answer questions about structured medical records using the available tools.\n\n")

	if !scope.CanAccessAllPatients {
		fmt.Fprintf(&b, "PATIENT ACCESS MODE: you are assisting patient %d with their personal medical records. ", scope.UserID)
		b.WriteString("If another patient is mentioned, respond that you can only access this patient's own records.\n")
	} else {
		fmt.Fprintf(&b, "MEDICAL STAFF ACCESS MODE: you are assisting %s (user %d), authorized for all patient data.\n", scope.RoleName, scope.UserID)
		if scope.AuthorizedPatientID != nil {
			fmt.Fprintf(&b, "This conversation is focused on patient %d.\n", *scope.AuthorizedPatientID)
		}
	}

	fmt.Fprintf(&b, "\nToday's date is %s. Use it to resolve relative dates.\n", now.UTC().Format("January 2, 2006"))
	b.WriteString("Prefer a tool lookup over guessing. When the records do not contain an answer, say so plainly.")
	return b.String()
}
