package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces history keys so the store can share a Redis
// database with the rate limiter.
const keyPrefix = "ragchat:history:"

// openTimeout bounds the initial connection ping in OpenRedis.
const openTimeout = 10 * time.Second

// OpenRedis connects to Redis from a URL (redis://, rediss:// or unix://)
// and verifies the connection with a ping before returning the client.
func OpenRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}

// RedisStore persists conversation history in Redis lists, one list per
// session, newest message first. Every write refreshes the session TTL and
// trims the list to maxStoredMessages.
//
// RedisStore is safe for concurrent use by multiple goroutines.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis creates a history store backed by the given Redis client.
// The caller owns the client lifecycle; the same client may be shared with
// the rate limiter. Passing nil for logger uses slog.Default().
func NewRedis(client *redis.Client, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, logger: logger}
}

// AddMessage prepends a message to the session's history. A positive ttl
// resets the session expiry; ttl <= 0 leaves the session without expiry.
func (s *RedisStore) AddMessage(ctx context.Context, sessionID string, msg Message, ttl time.Duration) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	key := keyPrefix + sessionID

	// LPUSH + LTRIM + EXPIRE as one round trip. The trim keeps hot sessions
	// bounded; the expire implements the refresh-on-write TTL contract.
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, maxStoredMessages-1)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append message to session %s: %w", sessionID, err)
	}

	s.logger.Debug("appended history message",
		"session_id", sessionID, "role", msg.Role, "ttl", ttl)
	return nil
}

// GetMessages returns up to amount messages for the session, newest first.
// A missing or expired session yields an empty slice, not an error.
func (s *RedisStore) GetMessages(ctx context.Context, sessionID string, amount int) ([]Message, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	if amount <= 0 {
		return []Message{}, nil
	}

	key := keyPrefix + sessionID
	entries, err := s.client.LRange(ctx, key, 0, int64(amount)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", sessionID, err)
	}

	messages := make([]Message, 0, len(entries))
	for _, entry := range entries {
		var msg Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			s.logger.Warn("skipping malformed history entry",
				"session_id", sessionID, "error", err)
			continue
		}
		messages = append(messages, msg)
	}

	s.logger.Debug("fetched history", "session_id", sessionID, "count", len(messages))
	return messages, nil
}
