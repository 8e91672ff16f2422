// Package model wraps Genkit generation and embedding behind the small
// interfaces the rest of the system consumes. It owns provider selection
// (gemini, ollama, openai), transient-error retry, and the embedding
// dimension contract the knowledge schema depends on.
package model

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Client generates model responses for rendered prompts. It satisfies the
// chat engine's generator contract.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	g         *genkit.Genkit
	modelName string // Provider-qualified, e.g. "googleai/gemini-2.5-flash"
	retry     RetryConfig
	logger    *slog.Logger
}

// NewClient creates a model client bound to one provider-qualified model
// name (see config.FullModelName). Transient provider errors are retried
// with exponential backoff.
func NewClient(g *genkit.Genkit, modelName string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		g:         g,
		modelName: modelName,
		retry:     DefaultRetryConfig(),
		logger:    logger,
	}
}

// Generate produces a complete response for the prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.generate(ctx, prompt, nil)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// GenerateStream produces a response while forwarding each chunk to
// onChunk as it arrives. The full response text is returned after the
// stream completes. An error from onChunk aborts the generation.
func (c *Client) GenerateStream(ctx context.Context, prompt string, onChunk func(context.Context, string) error) (string, error) {
	resp, err := c.generate(ctx, prompt, onChunk)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// generate runs the model with retry. Streaming attempts are only retried
// while no chunk has been delivered; once output reached the caller a
// retry would duplicate it.
func (c *Client) generate(ctx context.Context, prompt string, onChunk func(context.Context, string) error) (*ai.ModelResponse, error) {
	var lastErr error
	delay := c.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		chunkSeen := false

		opts := []ai.GenerateOption{
			ai.WithModelName(c.modelName),
			ai.WithPrompt(prompt),
		}
		if onChunk != nil {
			opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
				chunkSeen = true
				return onChunk(ctx, chunk.Text())
			}))
		}

		resp, err := genkit.Generate(ctx, c.g, opts...)
		if err == nil {
			c.logger.Debug("model call complete",
				"model", c.modelName,
				"attempts", attempt+1,
				"elapsed", time.Since(start),
				"streaming", onChunk != nil)
			return resp, nil
		}

		lastErr = err

		if !retryableError(err) {
			return nil, fmt.Errorf("generate: %w", err)
		}
		if chunkSeen {
			return nil, fmt.Errorf("generate: stream failed after partial output: %w", err)
		}
		if attempt == c.retry.MaxRetries {
			break
		}

		c.logger.Debug("retrying after model error",
			"attempt", attempt+1,
			"delay", delay,
			"elapsed", time.Since(start),
			"error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, c.retry.MaxInterval)
		}
	}

	return nil, fmt.Errorf("generate after %d retries (elapsed: %v): %w",
		c.retry.MaxRetries, time.Since(start), lastErr)
}
