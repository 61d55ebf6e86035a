package conversation

import "time"

// Message roles within a session transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single immutable turn in a conversation. Messages are only
// removed by retention truncation, never edited.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	TokenCost int       `json:"tokenCost"`
	CreatedAt time.Time `json:"createdAt"`
}

// EstimateTokens approximates the token cost of a piece of text at roughly
// four characters per token. The estimate only gates history truncation, so
// determinism and monotonicity matter more than accuracy.
func EstimateTokens(content string) int {
	return len(content)/4 + 1
}

// NewMessage stamps a message with its token cost and creation time.
func NewMessage(role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		TokenCost: EstimateTokens(content),
		CreatedAt: time.Now().UTC(),
	}
}
