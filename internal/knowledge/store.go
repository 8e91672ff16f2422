package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

// defaultSearchTimeout bounds vector search queries to prevent a slow
// database from blocking chat requests.
const defaultSearchTimeout = 10 * time.Second

// Embedder turns text into an embedding vector of VectorDimension width.
// internal/model provides the Genkit-backed implementation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Querier is the subset of pgxpool.Pool the store uses, so tests can
// substitute a lighter implementation.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages knowledge documents with vector search over PostgreSQL +
// pgvector. Similarity is cosine: 1 - (embedding <=> query).
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db       Querier
	embedder Embedder
	logger   *slog.Logger
}

// New creates a new Store instance.
//
// Parameters:
//   - db: Database querier (usually *pgxpool.Pool with pgvector types registered)
//   - embedder: Embedder for generating vectors
//   - logger: Logger for debugging (nil = use default)
func New(db Querier, embedder Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:       db,
		embedder: embedder,
		logger:   logger,
	}
}

// Add adds a document to the knowledge store. The document content is
// embedded with the configured embedder; an empty ID gets a generated UUID.
// Uses UPSERT (ON CONFLICT DO UPDATE) to handle both inserts and updates.
func (s *Store) Add(ctx context.Context, doc Document) error {
	if doc.Content == "" {
		return fmt.Errorf("document content is empty")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	embedding, err := s.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("empty embedding returned for document %q", doc.ID)
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	createdAt := pgtype.Timestamptz{
		Time:  doc.CreatedAt,
		Valid: !doc.CreatedAt.IsZero(),
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO documents (id, content, embedding, metadata, namespace, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
		ON CONFLICT (id) DO UPDATE SET
			content   = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata  = EXCLUDED.metadata,
			namespace = EXCLUDED.namespace`,
		doc.ID, doc.Content, pgvector.NewVector(embedding), metadataJSON, doc.Namespace, createdAt)
	if err != nil {
		return fmt.Errorf("failed to upsert document %q: %w", doc.ID, err)
	}

	s.logger.Debug("added document",
		"id", doc.ID, "namespace", doc.Namespace, "content_length", len(doc.Content))
	return nil
}

// Search performs semantic search using functional options. It returns the
// most similar documents to the query text, ordered by similarity, filtered
// to the configured namespace and similarity threshold. A timeout guards
// both the embedding call and the vector query.
//
// Example usage:
//
//	results, err := store.Search(ctx, "turkish capitals",
//	    knowledge.WithTopK(10),
//	    knowledge.WithNamespace("geography"))
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	embedding, err := s.embedder.Embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding generation timeout: %w", err)
		}
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned for query")
	}

	rows, err := s.db.Query(queryCtx, `
		SELECT id, content, metadata, namespace, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM documents
		WHERE namespace = $2
		  AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1
		LIMIT $4`,
		pgvector.NewVector(embedding), cfg.namespace, cfg.threshold, cfg.topK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0, cfg.topK)
	for rows.Next() {
		var (
			doc          Document
			metadataJSON []byte
			createdAt    pgtype.Timestamptz
			similarity   float64
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &metadataJSON, &doc.Namespace, &createdAt, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
				s.logger.Warn("failed to parse metadata", "document_id", doc.ID, "error", err)
				doc.Metadata = nil
			}
		}
		if createdAt.Valid {
			doc.CreatedAt = createdAt.Time
		}
		results = append(results, Result{Document: doc, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	s.logger.Debug("search complete",
		"namespace", cfg.namespace, "top_k", cfg.topK, "results", len(results))
	return results, nil
}

// Retrieve runs a search for the chat layer and extracts one fact string
// per document. The query's MetadataKey selects the metadata field carrying
// the fact text; documents without that field fall back to their content.
func (s *Store) Retrieve(ctx context.Context, q Query) ([]string, error) {
	opts := []SearchOption{
		WithTopK(q.TopK),
		WithThreshold(q.Threshold),
		WithNamespace(q.Namespace),
	}

	results, err := s.Search(ctx, q.Text, opts...)
	if err != nil {
		return nil, err
	}

	facts := make([]string, 0, len(results))
	for _, res := range results {
		facts = append(facts, factFromResult(res, q.MetadataKey))
	}
	return facts, nil
}

// factFromResult extracts the fact text a search result contributes to the
// prompt context.
func factFromResult(res Result, metadataKey string) string {
	if metadataKey != "" {
		if text, ok := res.Document.Metadata[metadataKey]; ok && text != "" {
			return text
		}
	}
	return res.Document.Content
}

// Count returns the number of documents in a namespace.
func (s *Store) Count(ctx context.Context, namespace string) (int, error) {
	var count int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM documents WHERE namespace = $1`, namespace).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}

	// Overflow protection for 32-bit systems
	if count > math.MaxInt {
		return 0, fmt.Errorf("document count %d exceeds platform int capacity", count)
	}
	return int(count), nil
}

// Delete removes a document from the knowledge store.
func (s *Store) Delete(ctx context.Context, docID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, docID); err != nil {
		return fmt.Errorf("failed to delete document %q: %w", docID, err)
	}

	s.logger.Debug("deleted document", "id", docID)
	return nil
}

// DeleteNamespace removes every document in a namespace. Used by ingestion
// to replace a partition wholesale.
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE namespace = $1`, namespace)
	if err != nil {
		return 0, fmt.Errorf("failed to delete namespace %q: %w", namespace, err)
	}

	deleted := tag.RowsAffected()
	s.logger.Debug("deleted namespace", "namespace", namespace, "documents", deleted)
	return deleted, nil
}
