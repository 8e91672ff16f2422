// Package history stores conversation history for chat sessions.
//
// Two backends are provided: RedisStore for deployments that share history
// across processes, and MemoryStore for single-process or test use. Both
// keep messages newest-first and expire whole sessions on a TTL that
// refreshes with every write.
package history

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Message roles. The chat layer renders these as conversation transcript
// lines, so only the two conversational roles exist.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// maxStoredMessages caps the number of messages retained per session.
// Reads window over the newest entries, so older ones only cost memory;
// the cap bounds sessions that stay hot for their whole TTL.
const maxStoredMessages = 200

// ErrEmptySessionID indicates a store operation was called without a session ID.
var ErrEmptySessionID = errors.New("history: session ID is empty")

// Message is a single conversation turn.
type Message struct {
	ID        string            `json:"id"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewUserMessage returns a user turn stamped with the current time.
func NewUserMessage(content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewAssistantMessage returns an assistant turn stamped with the current
// time. Metadata tags the turn with caller-supplied attributes; nil is fine.
func NewAssistantMessage(content string, metadata map[string]string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
}
