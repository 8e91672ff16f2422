// Package knowledge provides semantic search and document management.
//
// The knowledge package manages a vector-based document store with a
// PostgreSQL + pgvector backend. It provides document indexing, cosine
// similarity search, and namespace partitioning for RAG
// (Retrieval-Augmented Generation) applications.
//
// # Architecture
//
// Document storage and retrieval flow:
//
//	Document (content + metadata)
//	     |
//	     v
//	Embedding Generation (via Embedder)
//	     |
//	     v
//	Vector Storage (PostgreSQL + pgvector)
//	     |
//	     | (when searching)
//	     v
//	Query Embedding
//	     |
//	     v
//	Vector Similarity Search
//	     |
//	     v
//	Ranked Results (with similarity scores)
//
// # Store Operations
//
// The Store type provides the following operations:
//
//	Add(ctx, document)           - Index a document with automatic embedding
//	Search(ctx, text, opts)      - Semantic search with ranked results
//	Retrieve(ctx, query)         - Fact extraction for chat context building
//	Count(ctx, namespace)        - Count documents in a namespace
//	Delete(ctx, id)              - Remove a single document
//	DeleteNamespace(ctx, ns)     - Remove every document in a namespace
//
// The Store accepts a Querier interface for database operations and an
// Embedder interface for embedding generation, following Go's "accept
// interfaces, return structs" principle. Production wiring passes a
// *pgxpool.Pool and the Genkit-backed embedder from internal/model.
//
// # Namespaces
//
// Every document belongs to exactly one namespace, with the empty string
// as the default partition. Search never crosses namespace boundaries,
// so separate document collections (per tenant, per corpus) can share
// one table. Add preserves the document's namespace; Search filters on
// the namespace carried by its options.
//
// # Search Semantics
//
// Search embeds the query text and ranks stored documents by cosine
// similarity, computed in SQL as 1 - (embedding <=> query). Scores range
// from 0 to 1 where higher means more similar. Results below the
// threshold are excluded before the TopK limit applies. Searches run
// under a 10-second timeout to prevent runaway queries.
//
// Retrieve wraps Search for the chat layer: it turns each hit into a
// plain-text fact, preferring the metadata value named by the query's
// MetadataKey and falling back to the document content.
//
// # Database Backend
//
// The store requires PostgreSQL with the pgvector extension. The schema
// lives in db/migrations:
//
//	documents table:
//	    id          TEXT PRIMARY KEY
//	    content     TEXT NOT NULL
//	    embedding   vector(768)
//	    metadata    JSONB
//	    namespace   TEXT NOT NULL DEFAULT ''
//	    created_at  TIMESTAMPTZ
//
// All embedders must produce vectors of VectorDimension width to match
// the column type.
//
// # Thread Safety
//
// Store is safe for concurrent use. It holds no mutable state of its
// own; concurrency safety is inherited from the connection pool and the
// embedder implementation.
package knowledge
