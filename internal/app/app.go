// Package app assembles the application from its components.
//
// Setup builds the full dependency graph in order: tracing, database pool
// with migrations, optional Redis, knowledge store, model client and
// embedder, and finally the chat engine. The resulting App is the single
// handle every entry point (serve, ask, chat, ingest) works through;
// Close releases everything in reverse order.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/koopa0/ragchat/internal/chat"
	"github.com/koopa0/ragchat/internal/config"
	"github.com/koopa0/ragchat/internal/knowledge"
	"github.com/koopa0/ragchat/internal/model"
)

// App is the assembled application.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Core services
	Genkit    *genkit.Genkit
	DBPool    *pgxpool.Pool
	Knowledge *knowledge.Store
	Model     *model.Client
	Embedder  *model.Embedder
	Engine    *chat.Engine

	// Optional Redis client shared by conversation history and the
	// rate limiter; nil when redis_url is not configured.
	redis *redis.Client

	// Cleanup hooks in acquisition order; Close runs them in reverse.
	otelShutdown func()
}

// Close releases all resources: pending spans are flushed, then the Redis
// client and database pool are closed. Safe on a partially constructed App
// and safe to call more than once.
func (a *App) Close() error {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("shutting down application")

	if a.otelShutdown != nil {
		a.otelShutdown()
		a.otelShutdown = nil
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warn("closing redis client", "error", err)
		}
		a.redis = nil
	}

	if a.DBPool != nil {
		a.DBPool.Close()
		a.DBPool = nil
		logger.Info("database pool closed")
	}

	return nil
}
