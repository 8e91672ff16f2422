package history

import (
	"context"
	"errors"
	"testing"

	"github.com/koopa0/ragchat/internal/testutil"
)

// TestRedisStore_EmptySessionID verifies validation happens before any
// network call (nil client never dereferenced).
func TestRedisStore_EmptySessionID(t *testing.T) {
	store := NewRedis(nil, testutil.DiscardLogger())
	ctx := context.Background()

	if err := store.AddMessage(ctx, "", Message{Role: RoleUser, Content: "x"}, 0); !errors.Is(err, ErrEmptySessionID) {
		t.Errorf("AddMessage error = %v, want ErrEmptySessionID", err)
	}
	if _, err := store.GetMessages(ctx, "", 5); !errors.Is(err, ErrEmptySessionID) {
		t.Errorf("GetMessages error = %v, want ErrEmptySessionID", err)
	}
}

// TestRedisStore_ZeroAmount verifies amount <= 0 short-circuits to an empty
// result without hitting Redis.
func TestRedisStore_ZeroAmount(t *testing.T) {
	store := NewRedis(nil, testutil.DiscardLogger())

	for _, amount := range []int{0, -3} {
		messages, err := store.GetMessages(context.Background(), "s1", amount)
		if err != nil {
			t.Fatalf("GetMessages(%d) failed: %v", amount, err)
		}
		if len(messages) != 0 {
			t.Errorf("GetMessages(%d) returned %d messages, want 0", amount, len(messages))
		}
	}
}
