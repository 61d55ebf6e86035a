package session

import (
	"github.com/revival365/medassist/internal/model/conversation"
)

// Retention defaults matching the agent's context window budget.
const (
	DefaultMaxMessages = 20
	DefaultMaxTokens   = 12000
)

// Memory enforces conversation retention bounds. Both limits are enforced
// independently; either breach evicts oldest-first until both are satisfied.
// The most recent user turn is never evicted.
type Memory struct {
	MaxMessages int
	MaxTokens   int
}

// NewMemory applies defaults for non-positive bounds.
func NewMemory(maxMessages, maxTokens int) Memory {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return Memory{MaxMessages: maxMessages, MaxTokens: maxTokens}
}

// Append adds a message to the session and re-establishes the bounds.
func (m Memory) Append(sess *conversation.Session, msg conversation.Message) {
	sess.Messages = append(sess.Messages, msg)
	m.evict(sess)
}

func (m Memory) evict(sess *conversation.Session) {
	protected := lastUserIndex(sess.Messages)

	for m.violated(sess) {
		victim := -1
		for i := range sess.Messages {
			if i != protected {
				victim = i
				break
			}
		}
		if victim < 0 {
			return
		}
		sess.Messages = append(sess.Messages[:victim], sess.Messages[victim+1:]...)
		if victim < protected {
			protected--
		}
	}
}

func (m Memory) violated(sess *conversation.Session) bool {
	return len(sess.Messages) > m.MaxMessages || sess.TokenTotal() > m.MaxTokens
}

func lastUserIndex(messages []conversation.Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == conversation.RoleUser {
			return i
		}
	}
	return -1
}
