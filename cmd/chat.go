package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/ragchat/internal/app"
	"github.com/koopa0/ragchat/internal/chat"
	"github.com/koopa0/ragchat/internal/config"
)

// maxInputBytes bounds one line of REPL input.
const maxInputBytes = 1 << 20

// runChat starts the interactive chat loop, streaming answers to stdout.
// The previous conversation is resumed when a persisted session exists.
func runChat() error {
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

	sessionID, resumed, err := currentOrNewSession()
	if err != nil {
		return fmt.Errorf("resuming session: %w", err)
	}
	sess := &replSession{engine: a.Engine, sessionID: sessionID}

	printWelcome(Version)
	if resumed {
		fmt.Println("Continuing your previous conversation. Type /clear to start fresh.")
		fmt.Println()
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), maxInputBytes)

	for {
		fmt.Print("You: ")

		if !scanner.Scan() {
			// EOF (Ctrl+D)
			fmt.Println("\nGoodbye!")
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if handleSlashCommand(input, sess) {
				break
			}
			continue
		}

		if err := sess.ask(ctx, input); err != nil {
			if ctx.Err() != nil {
				fmt.Println("\nGoodbye!")
				return nil
			}

			var rateErr *chat.RateLimitError
			if errors.As(err, &rateErr) {
				fmt.Fprintf(os.Stderr, "Rate limit reached, retry in %s\n",
					time.Until(rateErr.Reset).Round(time.Second))
				continue
			}

			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// replSession carries the state of one interactive conversation.
type replSession struct {
	engine    *chat.Engine
	sessionID string
}

// reset starts a fresh conversation. Messages of the old session stay in
// the store until their TTL expires; the new session never sees them.
func (s *replSession) reset() {
	s.sessionID = uuid.NewString()
}

// ask sends one question and streams the answer to stdout.
func (s *replSession) ask(ctx context.Context, question string) error {
	res, err := s.engine.Chat(ctx, question,
		chat.WithStreaming(true),
		chat.WithSessionID(s.sessionID),
	)
	if err != nil {
		return err
	}
	defer res.Stream.Close()

	fmt.Print("Assistant: ")
	for chunk, chunkErr := range res.Stream.Chunks() {
		if chunkErr != nil {
			fmt.Println()
			return chunkErr
		}
		fmt.Print(chunk)
	}
	fmt.Println()
	fmt.Println()
	return nil
}

// handleSlashCommand processes a /command line. It reports whether the
// REPL should exit.
func handleSlashCommand(input string, sess *replSession) bool {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return false
	}

	switch parts[0] {
	case "/help":
		printInteractiveHelp()

	case "/version":
		printVersionInfo()
		fmt.Println()

	case "/clear":
		sess.reset()
		if err := saveCurrentSessionID(sess.sessionID); err != nil {
			slog.Warn("failed to save session state", "error", err)
		}
		fmt.Println("Conversation cleared (new session started)")
		fmt.Println()

	case "/session":
		fmt.Printf("Session: %s\n", sess.sessionID)
		fmt.Println()

	case "/exit", "/quit":
		fmt.Println("Goodbye!")
		return true

	default:
		fmt.Printf("Unknown command: %s\n", parts[0])
		fmt.Println("Type /help to see available commands")
		fmt.Println()
	}

	return false
}

// printWelcome prints the interactive mode banner.
func printWelcome(version string) {
	fmt.Println("╔══════════════════════════════════════════════════╗")
	fmt.Printf("║  ragchat v%s\n", version)
	fmt.Println("║  Retrieval-augmented chat over your documents")
	fmt.Println("║")
	fmt.Println("║  Type /help for commands, Ctrl+D to exit")
	fmt.Println("╚══════════════════════════════════════════════════╝")
	fmt.Println()
}

// printInteractiveHelp prints the slash command reference.
func printInteractiveHelp() {
	fmt.Println("Available Commands:")
	fmt.Println("  /help              Show this help")
	fmt.Println("  /version           Show version")
	fmt.Println("  /clear             Start a fresh conversation")
	fmt.Println("  /session           Show the current session ID")
	fmt.Println("  /exit, /quit       Exit ragchat")
	fmt.Println()
	fmt.Println("Shortcuts:")
	fmt.Println("  Ctrl+D             Exit ragchat")
	fmt.Println("  Ctrl+C             Cancel the running request")
	fmt.Println()
}
