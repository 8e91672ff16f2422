// Package googleai provides the live Google AI test setup helper.
//
// It lives in its own package (rather than testutil) because it imports
// internal/model; keeping it out of testutil lets model's in-package
// tests import testutil without an import cycle.
package googleai

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/firebase/genkit/go/genkit"

	"github.com/koopa0/ragchat/internal/config"
	"github.com/koopa0/ragchat/internal/model"
	"github.com/koopa0/ragchat/internal/testutil"
)

// GoogleAISetup bundles the resources live Google AI tests need.
type GoogleAISetup struct {
	Genkit   *genkit.Genkit
	Embedder *model.Embedder
	Logger   *slog.Logger
}

// SetupGoogleAI initializes Genkit against the real Google AI API and
// returns the configured embedder. Skips the test when GEMINI_API_KEY is
// not set, so live-API tests stay opt-in.
//
// Example:
//
//	func TestEmbedder_Live(t *testing.T) {
//	    setup := googleai.SetupGoogleAI(t)
//	    vec, err := setup.Embedder.Embed(ctx, "some text")
//	    // ...
//	}
func SetupGoogleAI(t *testing.T) *GoogleAISetup {
	t.Helper()

	if os.Getenv("GEMINI_API_KEY") == "" {
		t.Skip("GEMINI_API_KEY not set - skipping test requiring live Google AI access")
	}

	ctx := context.Background()
	cfg := &config.Config{
		Provider:      config.ProviderGemini,
		ModelName:     "gemini-2.5-flash",
		EmbedderModel: config.DefaultGeminiEmbedderModel,
	}

	g, err := model.NewGenkit(ctx, cfg)
	if err != nil {
		t.Fatalf("model.NewGenkit() error: %v", err)
	}

	logger := testutil.DiscardLogger()
	embedder, err := model.NewEmbedder(g, cfg, logger)
	if err != nil {
		t.Fatalf("model.NewEmbedder() error: %v", err)
	}

	return &GoogleAISetup{
		Genkit:   g,
		Embedder: embedder,
		Logger:   logger,
	}
}
