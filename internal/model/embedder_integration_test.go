//go:build integration
// +build integration

package model_test

import (
	"context"
	"math"
	"testing"

	"github.com/koopa0/ragchat/internal/knowledge"
	"github.com/koopa0/ragchat/internal/testutil/googleai"
)

// TestEmbedder_Live_Integration embeds text through the real Google AI API
// and verifies the dimension contract the documents schema depends on.
// Skipped without GEMINI_API_KEY.
func TestEmbedder_Live_Integration(t *testing.T) {
	setup := googleai.SetupGoogleAI(t)
	ctx := context.Background()

	vec, err := setup.Embedder.Embed(ctx, "The capital of France is Paris.")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	if len(vec) != knowledge.VectorDimension {
		t.Fatalf("Embed() returned %d dimensions, want %d", len(vec), knowledge.VectorDimension)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		t.Fatal("Embed() returned a zero vector")
	}
	if math.IsNaN(norm) || math.IsInf(norm, 0) {
		t.Fatalf("Embed() returned a non-finite vector (norm %v)", norm)
	}
}

// TestEmbedder_Live_DistinctTexts_Integration checks that different texts
// produce different vectors, a sanity floor for retrieval quality.
func TestEmbedder_Live_DistinctTexts_Integration(t *testing.T) {
	setup := googleai.SetupGoogleAI(t)
	ctx := context.Background()

	first, err := setup.Embedder.Embed(ctx, "Photosynthesis converts light into chemical energy.")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	second, err := setup.Embedder.Embed(ctx, "The stock market closed higher on Tuesday.")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	identical := true
	for i := range first {
		if first[i] != second[i] {
			identical = false
			break
		}
	}
	if identical {
		t.Fatal("unrelated texts produced identical embeddings")
	}
}
