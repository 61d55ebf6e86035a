package session_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/revival365/medassist/internal/model/conversation"
	"github.com/revival365/medassist/internal/service/session"
)

func TestGetOrCreateMintsDistinctSessions(t *testing.T) {
	store := session.NewStore(session.Config{})

	first, isNew := store.GetOrCreate("")
	if !isNew {
		t.Fatal("expected new session")
	}
	second, isNew := store.GetOrCreate("unknown-id")
	if !isNew {
		t.Fatal("unknown id must mint a new session")
	}
	if first == second {
		t.Fatal("two unknown resolutions must yield distinct sessions")
	}

	again, isNew := store.GetOrCreate(first)
	if isNew || again != first {
		t.Fatalf("known id must resolve the same session: got %s new=%v", again, isNew)
	}
}

func TestHistoryReadsWithoutMutation(t *testing.T) {
	store := session.NewStore(session.Config{})
	ctx := context.Background()

	id, _ := store.GetOrCreate("")
	if err := store.Append(ctx, id, conversation.NewMessage(conversation.RoleUser, "hello")); err != nil {
		t.Fatalf("Append err: %v", err)
	}

	first, err := store.History(id)
	if err != nil {
		t.Fatalf("History err: %v", err)
	}
	second, err := store.History(id)
	if err != nil {
		t.Fatalf("History err: %v", err)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("history length changed across reads: %d vs %d", len(first), len(second))
	}

	// Mutating the returned slice must not leak into the store.
	first[0].Content = "tampered"
	third, _ := store.History(id)
	if third[0].Content != "hello" {
		t.Fatal("History must return a copy")
	}
}

func TestRetentionBounds(t *testing.T) {
	store := session.NewStore(session.Config{MaxMessages: 5, MaxTokens: 100000})
	ctx := context.Background()
	id, _ := store.GetOrCreate("")

	for i := 0; i < 12; i++ {
		role := conversation.RoleAssistant
		if i%2 == 0 {
			role = conversation.RoleUser
		}
		if err := store.Append(ctx, id, conversation.NewMessage(role, "turn")); err != nil {
			t.Fatalf("Append err: %v", err)
		}
		history, _ := store.History(id)
		if len(history) > 5 {
			t.Fatalf("message bound violated after append %d: %d messages", i, len(history))
		}
	}
}

func TestTokenBudgetEviction(t *testing.T) {
	store := session.NewStore(session.Config{MaxMessages: 20, MaxTokens: 50})
	ctx := context.Background()
	id, _ := store.GetOrCreate("")

	big := strings.Repeat("x", 120) // ~31 tokens
	store.Append(ctx, id, conversation.NewMessage(conversation.RoleUser, big))
	store.Append(ctx, id, conversation.NewMessage(conversation.RoleAssistant, big))
	store.Append(ctx, id, conversation.NewMessage(conversation.RoleUser, big))

	history, _ := store.History(id)
	total := 0
	for _, m := range history {
		total += m.TokenCost
	}
	if total > 50 {
		t.Fatalf("token budget violated: %d", total)
	}
}

func TestMostRecentUserTurnNeverEvicted(t *testing.T) {
	store := session.NewStore(session.Config{MaxMessages: 2, MaxTokens: 10})
	ctx := context.Background()
	id, _ := store.GetOrCreate("")

	store.Append(ctx, id, conversation.NewMessage(conversation.RoleAssistant, strings.Repeat("a", 200)))
	latest := conversation.NewMessage(conversation.RoleUser, strings.Repeat("q", 200))
	store.Append(ctx, id, latest)

	history, _ := store.History(id)
	found := false
	for _, m := range history {
		if m.Role == conversation.RoleUser && m.Content == latest.Content {
			found = true
		}
	}
	if !found {
		t.Fatal("most recent user turn was evicted")
	}
}

func TestWithSessionSerializesPerSession(t *testing.T) {
	store := session.NewStore(session.Config{})
	id, _ := store.GetOrCreate("")

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- store.WithSession(context.Background(), id, func(*conversation.Session) error {
			close(entered)
			<-release
			return nil
		})
	}()

	<-entered

	// Second request for the same session gives up when its context expires.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := store.WithSession(ctx, id, func(*conversation.Session) error { return nil }); err != session.ErrSessionBusy {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}

	// A different session proceeds immediately.
	other, _ := store.GetOrCreate("")
	if err := store.WithSession(context.Background(), other, func(*conversation.Session) error { return nil }); err != nil {
		t.Fatalf("unrelated session blocked: %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first WithSession err: %v", err)
	}

	// With the first holder gone, the same session is usable again.
	if err := store.WithSession(context.Background(), id, func(*conversation.Session) error { return nil }); err != nil {
		t.Fatalf("WithSession after release err: %v", err)
	}
}

func TestClear(t *testing.T) {
	store := session.NewStore(session.Config{})
	id, _ := store.GetOrCreate("")

	if err := store.Clear(id); err != nil {
		t.Fatalf("Clear err: %v", err)
	}
	if _, err := store.History(id); err != session.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := store.Clear(id); err != session.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound on double clear, got %v", err)
	}
}
