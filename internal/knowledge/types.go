package knowledge

import "time"

// VectorDimension is the embedding width the documents schema stores.
// Embedders must be configured to produce vectors of this size; see
// model.NewEmbedder for how gemini-embedding-001 is truncated to match.
const VectorDimension = 768

// Document represents a knowledge document.
type Document struct {
	ID        string            // Unique identifier
	Content   string            // Document text content
	Metadata  map[string]string // Optional metadata (source, title, etc.)
	Namespace string            // Partition the document belongs to ("" = default)
	CreatedAt time.Time         // Creation timestamp
}

// Result represents a single search result with similarity score.
type Result struct {
	Document   Document
	Similarity float64 // Cosine similarity score (0-1)
}

// Query describes a retrieval request as the chat layer issues it.
type Query struct {
	// Text is the (sanitized) question to search for.
	Text string
	// TopK is the maximum number of facts to return.
	TopK int
	// Threshold is the minimum cosine similarity a fact must reach.
	Threshold float64
	// Namespace restricts the search to one partition; empty searches the
	// default partition.
	Namespace string
	// MetadataKey names the metadata field carrying the fact text. When a
	// document has no such field its content is used instead.
	MetadataKey string
}

// SearchOption configures search behavior using the functional options pattern.
type SearchOption func(*searchConfig)

// searchConfig holds internal search configuration.
type searchConfig struct {
	topK      int
	threshold float64
	namespace string
	timeout   time.Duration
}

// WithTopK sets the maximum number of results to return.
// Default is 5 if not specified.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithThreshold sets the minimum similarity for results.
// Default is 0 (no floor).
func WithThreshold(threshold float64) SearchOption {
	return func(c *searchConfig) {
		c.threshold = threshold
	}
}

// WithNamespace restricts the search to one partition.
func WithNamespace(namespace string) SearchOption {
	return func(c *searchConfig) {
		c.namespace = namespace
	}
}

// buildSearchConfig applies search options and returns the final configuration.
func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    5,
		timeout: defaultSearchTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
