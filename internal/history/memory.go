package history

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps conversation history in process memory. It exists for
// deployments without Redis and for tests; history is lost on restart.
//
// MemoryStore is safe for concurrent use by multiple goroutines.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession

	// now is replaceable in tests to exercise expiry without sleeping.
	now func() time.Time
}

type memorySession struct {
	// messages are stored oldest-first; reads walk backwards so the
	// external contract stays newest-first, matching RedisStore.
	messages  []Message
	expiresAt time.Time // zero = never expires
}

// NewMemory creates an empty in-memory history store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		now:      time.Now,
	}
}

// AddMessage appends a message to the session. A positive ttl resets the
// session expiry; ttl <= 0 clears any expiry.
func (s *MemoryStore) AddMessage(_ context.Context, sessionID string, msg Message, ttl time.Duration) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.liveSession(sessionID)
	if sess == nil {
		sess = &memorySession{}
		s.sessions[sessionID] = sess
	}

	sess.messages = append(sess.messages, msg)
	if overflow := len(sess.messages) - maxStoredMessages; overflow > 0 {
		sess.messages = sess.messages[overflow:]
	}

	if ttl > 0 {
		sess.expiresAt = s.now().Add(ttl)
	} else {
		sess.expiresAt = time.Time{}
	}
	return nil
}

// GetMessages returns up to amount messages for the session, newest first.
// A missing or expired session yields an empty slice, not an error.
func (s *MemoryStore) GetMessages(_ context.Context, sessionID string, amount int) ([]Message, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	if amount <= 0 {
		return []Message{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.liveSession(sessionID)
	if sess == nil {
		return []Message{}, nil
	}

	if amount > len(sess.messages) {
		amount = len(sess.messages)
	}
	messages := make([]Message, 0, amount)
	for i := len(sess.messages) - 1; i >= len(sess.messages)-amount; i-- {
		messages = append(messages, sess.messages[i])
	}
	return messages, nil
}

// liveSession returns the session if present and unexpired, deleting it
// lazily when its TTL has passed. Caller must hold s.mu.
func (s *MemoryStore) liveSession(sessionID string) *memorySession {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	if !sess.expiresAt.IsZero() && s.now().After(sess.expiresAt) {
		delete(s.sessions, sessionID)
		return nil
	}
	return sess
}
