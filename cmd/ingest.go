package cmd

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/koopa0/ragchat/internal/app"
	"github.com/koopa0/ragchat/internal/config"
	"github.com/koopa0/ragchat/internal/knowledge"
)

const (
	// defaultChunkSize bounds one indexed chunk, in runes. Roughly a few
	// hundred tokens: small enough to embed well, large enough to carry a
	// self-contained fact.
	defaultChunkSize = 1200

	// ingestWorkers caps concurrent embedding calls.
	ingestWorkers = 4
)

// textExtensions are the file types ingest picks up when walking a
// directory. Explicitly named files are indexed regardless of extension.
var textExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// runIngest chunks local text files and indexes them into the knowledge
// base so later chats can retrieve them as context.
func runIngest(args []string) error {
	ingestFlags := flag.NewFlagSet("ingest", flag.ContinueOnError)
	ingestFlags.SetOutput(os.Stderr)
	namespace := ingestFlags.String("namespace", "", "Namespace to index into (default: configured namespace)")
	chunkSize := ingestFlags.Int("chunk-size", defaultChunkSize, "Maximum chunk size in runes")

	if err := ingestFlags.Parse(args); err != nil {
		return fmt.Errorf("parsing ingest flags: %w", err)
	}
	paths := ingestFlags.Args()
	if len(paths) == 0 {
		return fmt.Errorf("usage: ragchat ingest [--namespace ns] [--chunk-size n] <path>...")
	}
	if *chunkSize <= 0 {
		return fmt.Errorf("chunk-size must be positive, got %d", *chunkSize)
	}

	files, err := collectFiles(paths)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no text files found under %s", strings.Join(paths, ", "))
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := checkProviderKey(cfg); err != nil {
		return err
	}
	if *namespace == "" {
		*namespace = cfg.Namespace
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

	start := time.Now()
	var indexed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ingestWorkers)

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading %s: %w", file, err)
		}

		for i, chunk := range chunkText(string(data), *chunkSize) {
			g.Go(func() error {
				doc := knowledge.Document{
					ID:      uuid.NewString(),
					Content: chunk,
					Metadata: map[string]string{
						"source": file,
						"chunk":  strconv.Itoa(i),
					},
					Namespace: *namespace,
				}
				if err := a.Knowledge.Add(gctx, doc); err != nil {
					return fmt.Errorf("indexing %s chunk %d: %w", file, i, err)
				}
				indexed.Add(1)
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("Indexed %d chunks from %d files in %s\n",
		indexed.Load(), len(files), time.Since(start).Round(time.Millisecond))
	return nil
}

// collectFiles expands the given paths into indexable files. Directories
// are walked recursively, keeping files with a text extension and
// skipping hidden subdirectories. A missing path is an error.
func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}

		if !info.IsDir() {
			files = append(files, path)
			continue
		}

		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != path && strings.HasPrefix(d.Name(), ".") {
					return fs.SkipDir
				}
				return nil
			}
			if textExtensions[strings.ToLower(filepath.Ext(p))] {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", path, err)
		}
	}
	return files, nil
}

// chunkText splits text into chunks of at most size runes, preferring
// paragraph boundaries. Paragraphs that alone exceed the size are split
// mid-text. Chunks are trimmed and empty ones dropped.
func chunkText(text string, size int) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		if c := strings.TrimSpace(current.String()); c != "" {
			chunks = append(chunks, c)
		}
		current.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		for utf8.RuneCountInString(para) > size {
			flush()
			runes := []rune(para)
			chunks = append(chunks, strings.TrimSpace(string(runes[:size])))
			para = strings.TrimSpace(string(runes[size:]))
		}
		if para == "" {
			continue
		}

		if current.Len() > 0 && utf8.RuneCountInString(current.String())+utf8.RuneCountInString(para)+2 > size {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return chunks
}
