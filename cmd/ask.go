package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/koopa0/ragchat/internal/app"
	"github.com/koopa0/ragchat/internal/chat"
	"github.com/koopa0/ragchat/internal/config"
)

// runAsk answers a single question and exits. It shares the persisted
// session with ragchat chat, so follow-up asks keep conversation context
// until /clear or the history TTL.
func runAsk(args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("usage: ragchat ask <question>")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := checkProviderKey(cfg); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	sessionID, _, err := currentOrNewSession()
	if err != nil {
		return fmt.Errorf("resuming session: %w", err)
	}

	res, err := a.Engine.Chat(ctx, question, chat.WithSessionID(sessionID))
	if err != nil {
		return fmt.Errorf("generating answer: %w", err)
	}

	fmt.Println(res.Text)
	return nil
}
