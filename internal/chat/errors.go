package chat

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by New when a required collaborator is missing.
// Construction fails synchronously; no network call is attempted.
//
// Example:
//
//	engine, err := chat.New(cfg)
//	if errors.Is(err, chat.ErrNoGenerator) {
//	    // Model collaborator was not configured
//	}
var (
	// ErrNoGenerator indicates the model collaborator was not configured.
	ErrNoGenerator = errors.New("chat: generator is required")

	// ErrNoRetriever indicates the vector store collaborator was not configured.
	ErrNoRetriever = errors.New("chat: retriever is required")
)

// RateLimitError rejects a request whose rate-limit session is over budget.
// It is returned before any history write, so a limited request leaves no
// trace in the conversation. Check for it with errors.As.
type RateLimitError struct {
	// Limit is the session's configured request budget.
	Limit int
	// Remaining is how many requests were left, normally zero.
	Remaining int
	// Reset is when the budget replenishes.
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("chat: rate limit exceeded, resets at %s", e.Reset.Format(time.RFC3339))
}
