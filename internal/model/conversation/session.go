package conversation

import "time"

// Session captures one identifier-keyed conversation spanning multiple turns.
// It is owned by the session store and mutated only through its append and
// eviction operations.
type Session struct {
	ID           string    `json:"id"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`

	// LastScope records the authorization scope the most recent turn ran
	// under. Informational only; every request re-derives its own scope.
	LastScope *ScopeSnapshot `json:"lastScope,omitempty"`
}

// TokenTotal sums the approximate token cost of the retained history.
func (s *Session) TokenTotal() int {
	total := 0
	for _, m := range s.Messages {
		total += m.TokenCost
	}
	return total
}
