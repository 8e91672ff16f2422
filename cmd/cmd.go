// Package cmd provides the ragchat command line interface.
//
// Commands:
//   - chat: interactive conversation, streaming answers to the terminal
//   - ask: one-shot question, prints the full answer
//   - serve: HTTP API server with SSE streaming
//   - ingest: chunk and index local text files into the knowledge base
//   - migrate: apply database migrations
//
// Dispatch is a plain switch on os.Args; subcommand flags are parsed with
// flag.FlagSet. Signal handling and graceful shutdown run via context
// cancellation in each command.
//
// chat and ask share one conversation, persisted as a session ID in
// ~/.ragchat/current_session.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/koopa0/ragchat/internal/config"
	"github.com/koopa0/ragchat/internal/log"
)

// Execute is the main entry point for the ragchat CLI.
func Execute() error {
	// Default logger for startup errors; commands rebuild it from config
	// once loaded.
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{Level: level}))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "chat":
		return runChat()
	case "ask":
		return runAsk(os.Args[2:])
	case "serve":
		return runServe(os.Args[2:])
	case "ingest":
		return runIngest(os.Args[2:])
	case "migrate":
		return runMigrate(os.Args[2:])
	case "version", "--version", "-v":
		printVersionInfo()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// newLogger builds the process logger from config. The DEBUG environment
// variable forces debug level regardless of the configured one.
func newLogger(cfg *config.Config) log.Logger {
	c := log.Config{Level: cfg.SlogLevel(), JSON: cfg.LogJSON}
	if os.Getenv("DEBUG") != "" {
		c.Level = slog.LevelDebug
	}
	return log.New(c)
}

// checkProviderKey verifies the API key for the configured provider is
// present, printing setup guidance to stderr when it is not. Ollama runs
// locally and needs no key.
func checkProviderKey(cfg *config.Config) error {
	var envVar, site string
	switch cfg.Provider {
	case config.ProviderOllama:
		return nil
	case config.ProviderOpenAI:
		envVar, site = "OPENAI_API_KEY", "https://platform.openai.com/api-keys"
	default:
		envVar, site = "GEMINI_API_KEY", "https://ai.google.dev/"
	}

	if os.Getenv(envVar) != "" {
		return nil
	}

	fmt.Fprintf(os.Stderr, "Error: %s environment variable not set\n", envVar)
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintf(os.Stderr, "ragchat requires a %s API key to function.\n", cfg.Provider)
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "To set your API key:")
	fmt.Fprintf(os.Stderr, "  export %s=your-api-key\n", envVar)
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintf(os.Stderr, "Get your API key at: %s\n", site)

	return fmt.Errorf("%s not set", envVar)
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("ragchat - Retrieval-augmented chat over your own documents")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  ragchat chat                Start interactive chat mode")
	fmt.Println("  ragchat ask <question>      Ask a single question and exit")
	fmt.Println("  ragchat serve [addr]        Start HTTP API server (default: 127.0.0.1:3400)")
	fmt.Println("  ragchat ingest <path>...    Index text files into the knowledge base")
	fmt.Println("  ragchat migrate [status]    Apply database migrations / show status")
	fmt.Println("  ragchat --version           Show version information")
	fmt.Println("  ragchat --help              Show this help")
	fmt.Println()
	fmt.Println("Chat Commands (in interactive mode):")
	fmt.Println("  /help              Show available commands")
	fmt.Println("  /version           Show version")
	fmt.Println("  /clear             Start a fresh conversation")
	fmt.Println("  /session           Show the current session ID")
	fmt.Println("  /exit, /quit       Exit ragchat")
	fmt.Println()
	fmt.Println("Shortcuts:")
	fmt.Println("  Ctrl+D             Exit ragchat")
	fmt.Println("  Ctrl+C             Cancel the running request")
	fmt.Println()
	fmt.Println("Files:")
	fmt.Println("  ~/.ragchat/current_session   Active conversation, shared by chat and ask")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY     Gemini API key (default provider)")
	fmt.Println("  DATABASE_URL       PostgreSQL connection URL (pgvector)")
	fmt.Println("  REDIS_URL          Optional: Redis URL for persistent history")
	fmt.Println("  DEBUG              Optional: Enable debug logging")
	fmt.Println()
	fmt.Println("Learn more: https://github.com/koopa0/ragchat")
}
