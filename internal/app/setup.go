package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"github.com/redis/go-redis/v9"

	"github.com/koopa0/ragchat/db"
	"github.com/koopa0/ragchat/internal/chat"
	"github.com/koopa0/ragchat/internal/config"
	"github.com/koopa0/ragchat/internal/history"
	"github.com/koopa0/ragchat/internal/knowledge"
	"github.com/koopa0/ragchat/internal/model"
	"github.com/koopa0/ragchat/internal/observability"
	"github.com/koopa0/ragchat/internal/ratelimit"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup. Call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing first, so the spans Genkit emits during initialization and
	// model calls have somewhere to go.
	a.otelShutdown = provideOtelShutdown(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	redisClient, err := provideRedis(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.redis = redisClient

	g, err := model.NewGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	a.Model = model.NewClient(g, cfg.FullModelName(), logger)

	embedder, err := model.NewEmbedder(g, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Embedder = embedder

	a.Knowledge = knowledge.New(pool, embedder, logger)

	engine, err := chat.New(chat.Config{
		Generator:   a.Model,
		Retriever:   a.Knowledge,
		History:     provideHistory(redisClient, logger),
		RateLimiter: provideLimiter(cfg, redisClient, logger),
		Namespace:   cfg.Namespace,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat engine: %w", err)
	}
	a.Engine = engine

	return a, nil
}

// provideOtelShutdown sets up Datadog tracing before Genkit initialization
// so the TracerProvider is ready when the first span is created. The
// returned func flushes pending spans with a bounded timeout; it is
// independent of the setup context because it runs during teardown when
// that context is already canceled.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger *slog.Logger) func() {
	shutdown, err := observability.SetupDatadog(ctx, observability.Config{
		AgentHost:   cfg.Datadog.AgentHost,
		Environment: cfg.Datadog.Environment,
		ServiceName: cfg.Datadog.ServiceName,
	}, logger)
	if err != nil {
		logger.Warn("setting up tracing, continuing without", "error", err)
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations, then creates the PostgreSQL connection
// pool for the vector store. Every connection registers the pgvector types
// so vector columns scan directly into pgvector.Vector.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideRedis connects to Redis when redis_url is configured. Returns nil
// without error when it is not; history and rate limiting then fall back
// to their in-process implementations.
func provideRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		logger.Debug("redis not configured, using in-process history")
		return nil, nil
	}

	client, err := history.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	logger.Info("redis connected")
	return client, nil
}

// provideHistory picks the history store: Redis when available, otherwise
// process memory.
func provideHistory(client *redis.Client, logger *slog.Logger) chat.HistoryStore {
	if client != nil {
		return history.NewRedis(client, logger)
	}
	return history.NewMemory()
}

// provideLimiter builds the rate limiter per config. Disabled rate
// limiting must return an untyped nil: the chat engine's nil check would
// not catch a typed-nil *ratelimit.Local inside the interface.
func provideLimiter(cfg *config.Config, client *redis.Client, logger *slog.Logger) chat.RateLimiter {
	rl := cfg.Ratelimit
	if !rl.Enabled {
		return nil
	}

	if client != nil {
		return ratelimit.NewRedis(client, rl.Requests, rl.Window(), logger)
	}
	return ratelimit.NewLocal(rl.Requests, rl.Window(), logger)
}
