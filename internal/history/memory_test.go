package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestMemoryStore_NewestFirst verifies messages come back newest first.
func TestMemoryStore_NewestFirst(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		msg := Message{Role: RoleUser, Content: fmt.Sprintf("message %d", i)}
		if err := store.AddMessage(ctx, "s1", msg, 0); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}

	messages, err := store.GetMessages(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}

	want := []string{"message 3", "message 2", "message 1"}
	if len(messages) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(messages))
	}
	for i, content := range want {
		if messages[i].Content != content {
			t.Errorf("messages[%d].Content = %q, want %q", i, messages[i].Content, content)
		}
	}
}

// TestMemoryStore_Window verifies the amount parameter limits the result
// to the newest messages.
func TestMemoryStore_Window(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		msg := Message{Role: RoleUser, Content: fmt.Sprintf("message %d", i)}
		if err := store.AddMessage(ctx, "s1", msg, 0); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}

	messages, err := store.GetMessages(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}

	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Content != "message 5" || messages[1].Content != "message 4" {
		t.Errorf("window returned wrong messages: %q, %q", messages[0].Content, messages[1].Content)
	}
}

// TestMemoryStore_ZeroAmount verifies amount <= 0 returns an empty slice.
func TestMemoryStore_ZeroAmount(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.AddMessage(ctx, "s1", Message{Role: RoleUser, Content: "hello"}, 0); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	for _, amount := range []int{0, -1} {
		messages, err := store.GetMessages(ctx, "s1", amount)
		if err != nil {
			t.Fatalf("GetMessages(%d) failed: %v", amount, err)
		}
		if len(messages) != 0 {
			t.Errorf("GetMessages(%d) returned %d messages, want 0", amount, len(messages))
		}
	}
}

// TestMemoryStore_UnknownSession verifies a missing session yields an empty
// slice, not an error.
func TestMemoryStore_UnknownSession(t *testing.T) {
	store := NewMemory()

	messages, err := store.GetMessages(context.Background(), "never-seen", 5)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("expected empty history for unknown session, got %d messages", len(messages))
	}
}

// TestMemoryStore_EmptySessionID verifies both operations reject empty IDs.
func TestMemoryStore_EmptySessionID(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.AddMessage(ctx, "", Message{Role: RoleUser, Content: "x"}, 0); !errors.Is(err, ErrEmptySessionID) {
		t.Errorf("AddMessage error = %v, want ErrEmptySessionID", err)
	}
	if _, err := store.GetMessages(ctx, "", 5); !errors.Is(err, ErrEmptySessionID) {
		t.Errorf("GetMessages error = %v, want ErrEmptySessionID", err)
	}
}

// TestMemoryStore_TTLExpiry verifies sessions disappear after their TTL.
func TestMemoryStore_TTLExpiry(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	if err := store.AddMessage(ctx, "s1", Message{Role: RoleUser, Content: "hello"}, time.Hour); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	// Just before expiry the session is alive
	current = current.Add(59 * time.Minute)
	messages, err := store.GetMessages(ctx, "s1", 5)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message before expiry, got %d", len(messages))
	}

	// Past expiry the session is gone
	current = current.Add(2 * time.Minute)
	messages, err = store.GetMessages(ctx, "s1", 5)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("expected expired session to be empty, got %d messages", len(messages))
	}
}

// TestMemoryStore_TTLRefreshOnWrite verifies each write pushes expiry forward.
func TestMemoryStore_TTLRefreshOnWrite(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	if err := store.AddMessage(ctx, "s1", Message{Role: RoleUser, Content: "first"}, time.Hour); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	// 50 minutes later a second write refreshes the TTL
	current = current.Add(50 * time.Minute)
	if err := store.AddMessage(ctx, "s1", Message{Role: RoleAssistant, Content: "second"}, time.Hour); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	// 40 minutes after that the original TTL would have lapsed, but the
	// refreshed one has not
	current = current.Add(40 * time.Minute)
	messages, err := store.GetMessages(ctx, "s1", 5)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 2 {
		t.Errorf("expected session alive after TTL refresh, got %d messages", len(messages))
	}
}

// TestMemoryStore_NoTTL verifies ttl <= 0 means the session never expires.
func TestMemoryStore_NoTTL(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	if err := store.AddMessage(ctx, "s1", Message{Role: RoleUser, Content: "forever"}, 0); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	current = current.Add(1000 * time.Hour)
	messages, err := store.GetMessages(ctx, "s1", 5)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 1 {
		t.Errorf("expected session without TTL to survive, got %d messages", len(messages))
	}
}

// TestMemoryStore_Cap verifies old messages are dropped past the cap.
func TestMemoryStore_Cap(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	total := maxStoredMessages + 10
	for i := 1; i <= total; i++ {
		msg := Message{Role: RoleUser, Content: fmt.Sprintf("message %d", i)}
		if err := store.AddMessage(ctx, "s1", msg, 0); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}

	messages, err := store.GetMessages(ctx, "s1", total)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}

	if len(messages) != maxStoredMessages {
		t.Fatalf("expected %d retained messages, got %d", maxStoredMessages, len(messages))
	}
	// Newest survives, oldest were dropped
	if messages[0].Content != fmt.Sprintf("message %d", total) {
		t.Errorf("newest message = %q, want %q", messages[0].Content, fmt.Sprintf("message %d", total))
	}
	oldest := messages[len(messages)-1].Content
	if oldest != "message 11" {
		t.Errorf("oldest retained message = %q, want %q", oldest, "message 11")
	}
}

// TestMemoryStore_SessionIsolation verifies sessions do not leak into each other.
func TestMemoryStore_SessionIsolation(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.AddMessage(ctx, "alpha", Message{Role: RoleUser, Content: "alpha says"}, 0); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}
	if err := store.AddMessage(ctx, "beta", Message{Role: RoleUser, Content: "beta says"}, 0); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	messages, err := store.GetMessages(ctx, "alpha", 10)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "alpha says" {
		t.Errorf("session alpha polluted: %+v", messages)
	}
}

// TestMemoryStore_ConcurrentAccess exercises concurrent writers and readers.
func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("session-%d", n%3)
			for j := range 20 {
				msg := Message{Role: RoleUser, Content: fmt.Sprintf("w%d-%d", n, j)}
				if err := store.AddMessage(ctx, sessionID, msg, time.Minute); err != nil {
					t.Errorf("AddMessage failed: %v", err)
				}
				if _, err := store.GetMessages(ctx, sessionID, 5); err != nil {
					t.Errorf("GetMessages failed: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()
}
