package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/revival365/medassist/internal/model/conversation"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionBusy     = errors.New("session busy")
)

// Config tunes retention bounds and idle eviction.
type Config struct {
	MaxMessages int
	MaxTokens   int

	// IdleTTL evicts sessions with no activity for this long. Zero disables
	// the janitor.
	IdleTTL time.Duration
}

type entry struct {
	// lock serializes orchestration per session. A channel instead of a
	// mutex so waiters can give up when the request context expires.
	lock    chan struct{}
	session *conversation.Session
}

func newEntry(sess *conversation.Session) *entry {
	return &entry{lock: make(chan struct{}, 1), session: sess}
}

// Store is the in-memory conversation state table. It is the only mutable
// shared structure in the service; all history mutation happens inside the
// per-session critical section taken by WithSession.
type Store struct {
	memory Memory
	ttl    time.Duration

	mu      sync.RWMutex
	entries map[string]*entry
}

// NewStore bootstraps an empty store.
func NewStore(cfg Config) *Store {
	return &Store{
		memory:  NewMemory(cfg.MaxMessages, cfg.MaxTokens),
		ttl:     cfg.IdleTTL,
		entries: make(map[string]*entry),
	}
}

// GetOrCreate resolves a session by identifier. An empty or unknown
// identifier mints a fresh one; a known identifier returns the existing
// session with its accumulated history intact.
func (s *Store) GetOrCreate(sessionID string) (string, bool) {
	if sessionID != "" {
		s.mu.RLock()
		_, ok := s.entries[sessionID]
		s.mu.RUnlock()
		if ok {
			return sessionID, false
		}
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	s.mu.Lock()
	s.entries[id] = newEntry(&conversation.Session{ID: id, CreatedAt: now, LastActivity: now})
	s.mu.Unlock()
	return id, true
}

// WithSession runs fn inside the session's exclusive critical section. A
// second caller for the same session waits until the first completes and then
// observes its resulting history; if the context expires while waiting the
// call fails with ErrSessionBusy. Different sessions never contend.
func (s *Store) WithSession(ctx context.Context, sessionID string, fn func(*conversation.Session) error) error {
	s.mu.RLock()
	e, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	select {
	case e.lock <- struct{}{}:
	case <-ctx.Done():
		return ErrSessionBusy
	}
	defer func() { <-e.lock }()

	e.session.LastActivity = time.Now().UTC()
	return fn(e.session)
}

// Append adds a message to a session under its critical section, enforcing
// the retention bounds.
func (s *Store) Append(ctx context.Context, sessionID string, msg conversation.Message) error {
	return s.WithSession(ctx, sessionID, func(sess *conversation.Session) error {
		s.memory.Append(sess, msg)
		return nil
	})
}

// AppendLocked is for callers already inside WithSession.
func (s *Store) AppendLocked(sess *conversation.Session, msg conversation.Message) {
	s.memory.Append(sess, msg)
}

// History returns a copy of the session's bounded history. Read without
// mutation: resolving a known session twice yields the same transcript.
func (s *Store) History(sessionID string) ([]conversation.Message, error) {
	s.mu.RLock()
	e, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	e.lock <- struct{}{}
	defer func() { <-e.lock }()

	copied := make([]conversation.Message, len(e.session.Messages))
	copy(copied, e.session.Messages)
	return copied, nil
}

// Clear destroys a session and its history.
func (s *Store) Clear(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.entries, sessionID)
	return nil
}

// Count reports the number of active sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// SampleIDs returns truncated session identifiers for operational
// introspection.
func (s *Store) SampleIDs(limit int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, limit)
	for id := range s.entries {
		if len(ids) == limit {
			break
		}
		if len(id) > 8 {
			id = id[:8] + "..."
		}
		ids = append(ids, id)
	}
	return ids
}

// StartJanitor evicts idle sessions in the background until ctx is done.
// No-op when idle eviction is disabled.
func (s *Store) StartJanitor(ctx context.Context) {
	if s.ttl <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(s.ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.evictIdle()
			}
		}
	}()
}

func (s *Store) evictIdle() {
	cutoff := time.Now().UTC().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		// Skip sessions with an orchestration in flight.
		select {
		case e.lock <- struct{}{}:
		default:
			continue
		}
		idle := e.session.LastActivity.Before(cutoff)
		<-e.lock
		if idle {
			delete(s.entries, id)
			log.Debug().Str("session", id).Msg("evicted idle session")
		}
	}
}
