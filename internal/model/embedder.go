package model

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"

	"github.com/koopa0/ragchat/internal/config"
	"github.com/koopa0/ragchat/internal/knowledge"
)

// Embedder turns text into vectors of knowledge.VectorDimension width. It
// satisfies the knowledge store's embedder contract.
//
// Gemini embedding models emit 3072 dimensions by default; the request
// asks for knowledge.VectorDimension instead (Matryoshka Representation
// Learning makes the truncated prefix a valid embedding). Other providers
// must be configured with a model that natively produces that width, such
// as nomic-embed-text on ollama.
type Embedder struct {
	embedder  ai.Embedder
	modelName string
	gemini    bool // Request OutputDimensionality (Gemini-specific option)
	logger    *slog.Logger
}

// NewEmbedder looks up the provider's embedder and wraps it with the
// dimension contract the documents schema expects.
func NewEmbedder(g *genkit.Genkit, cfg *config.Config, logger *slog.Logger) (*Embedder, error) {
	embedder, err := lookupEmbedder(g, cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}
	return &Embedder{
		embedder:  embedder,
		modelName: cfg.EmbedderModel,
		gemini:    provider == config.ProviderGemini,
		logger:    logger,
	}, nil
}

// Embed generates an embedding vector for the given text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	}
	if e.gemini {
		dim := int32(knowledge.VectorDimension)
		req.Options = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}

	resp, err := e.embedder.Embed(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding response from %q", e.modelName)
	}

	vec := resp.Embeddings[0].Embedding
	if len(vec) != knowledge.VectorDimension {
		return nil, fmt.Errorf("embedder %q produced %d dimensions, schema requires %d: configure a %d-dimensional embedding model",
			e.modelName, len(vec), knowledge.VectorDimension, knowledge.VectorDimension)
	}
	return vec, nil
}
