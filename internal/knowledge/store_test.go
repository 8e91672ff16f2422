package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ============================================================================
// Mock Implementations
// ============================================================================

// mockEmbedder implements Embedder for testing
type mockEmbedder struct {
	embedding   []float32 // Custom embedding to return
	embedErr    error     // Error to return
	returnEmpty bool      // Return an empty vector
	callCount   int       // Track number of calls
	lastText    string    // Track last input for verification
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.callCount++
	m.lastText = text

	if m.embedErr != nil {
		return nil, m.embedErr
	}
	if m.returnEmpty {
		return []float32{}, nil
	}
	if m.embedding != nil {
		return m.embedding, nil
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// mockQuerier implements Querier for testing
type mockQuerier struct {
	// Error configuration
	execErr     error
	queryErr    error
	queryRowErr error

	// Return values
	execTag     pgconn.CommandTag
	queryResult *fakeRows
	countResult int64

	// Call tracking
	execCalls     int
	queryCalls    int
	queryRowCalls int
	lastExecSQL   string
	lastExecArgs  []any
	lastQuerySQL  string
	lastQueryArgs []any
}

func (m *mockQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execCalls++
	m.lastExecSQL = sql
	m.lastExecArgs = args
	if m.execErr != nil {
		return pgconn.CommandTag{}, m.execErr
	}
	return m.execTag, nil
}

func (m *mockQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	m.queryCalls++
	m.lastQuerySQL = sql
	m.lastQueryArgs = args
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if m.queryResult != nil {
		return m.queryResult, nil
	}
	return &fakeRows{}, nil
}

func (m *mockQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	m.queryRowCalls++
	return fakeRow{value: m.countResult, err: m.queryRowErr}
}

// fakeRow implements pgx.Row for single-value scans
type fakeRow struct {
	value int64
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != 1 {
		return fmt.Errorf("expected 1 scan destination, got %d", len(dest))
	}
	p, ok := dest[0].(*int64)
	if !ok {
		return fmt.Errorf("unsupported scan destination %T", dest[0])
	}
	*p = r.value
	return nil
}

// fakeRows implements pgx.Rows over in-memory row data. Each row holds the
// column values in the order the search query selects them.
type fakeRows struct {
	data    [][]any
	idx     int
	scanErr error
	rowsErr error
	closed  bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.rowsErr }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("expected %d scan destinations, got %d", len(row), len(dest))
	}
	for i, d := range dest {
		switch d := d.(type) {
		case *string:
			*d = row[i].(string)
		case *[]byte:
			if row[i] == nil {
				*d = nil
			} else {
				*d = row[i].([]byte)
			}
		case *float64:
			*d = row[i].(float64)
		case *pgtype.Timestamptz:
			*d = row[i].(pgtype.Timestamptz)
		default:
			return fmt.Errorf("unsupported scan destination %T", d)
		}
	}
	return nil
}

// searchRow builds a row in the column order Search selects:
// id, content, metadata, namespace, created_at, similarity.
func searchRow(id, content string, metadata []byte, namespace string, createdAt time.Time, similarity float64) []any {
	return []any{
		id, content, metadata, namespace,
		pgtype.Timestamptz{Time: createdAt, Valid: !createdAt.IsZero()},
		similarity,
	}
}

// ============================================================================
// Constructor Tests
// ============================================================================

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		logger bool
	}{
		{name: "with custom logger", logger: true},
		{name: "with nil logger (uses default)", logger: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			querier := &mockQuerier{}
			embedder := &mockEmbedder{}

			var store *Store
			if tt.logger {
				store = New(querier, embedder, testLogger())
			} else {
				store = New(querier, embedder, nil)
			}

			if store == nil {
				t.Fatal("New returned nil")
			}
			if store.db != querier {
				t.Error("querier not set correctly")
			}
			if store.embedder == nil {
				t.Error("embedder should not be nil")
			}
			if store.logger == nil {
				t.Error("logger should never be nil (should use default)")
			}
		})
	}
}

// ============================================================================
// Store.Add Tests
// ============================================================================

func TestStore_Add_Success(t *testing.T) {
	querier := &mockQuerier{}
	embedder := &mockEmbedder{embedding: []float32{0.5, 0.6, 0.7}}
	store := New(querier, embedder, testLogger())

	doc := Document{
		ID:      "test-doc-1",
		Content: "Ankara is the capital of Turkey",
		Metadata: map[string]string{
			"source": "atlas",
			"text":   "Ankara is the Turkish capital.",
		},
		Namespace: "geography",
		CreatedAt: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	if err := store.Add(context.Background(), doc); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if embedder.callCount != 1 {
		t.Errorf("embedder called %d times, want 1", embedder.callCount)
	}
	if embedder.lastText != doc.Content {
		t.Errorf("embedder received %q, want %q", embedder.lastText, doc.Content)
	}
	if querier.execCalls != 1 {
		t.Fatalf("Exec called %d times, want 1", querier.execCalls)
	}

	args := querier.lastExecArgs
	if len(args) != 6 {
		t.Fatalf("Exec received %d args, want 6", len(args))
	}
	if args[0] != "test-doc-1" {
		t.Errorf("id arg = %v, want test-doc-1", args[0])
	}
	if args[1] != doc.Content {
		t.Errorf("content arg = %v, want %q", args[1], doc.Content)
	}
	vec, ok := args[2].(pgvector.Vector)
	if !ok {
		t.Fatalf("embedding arg is %T, want pgvector.Vector", args[2])
	}
	if got := vec.Slice(); len(got) != 3 || got[0] != 0.5 {
		t.Errorf("embedding vector = %v, want [0.5 0.6 0.7]", got)
	}
	metadataJSON, ok := args[3].([]byte)
	if !ok || !strings.Contains(string(metadataJSON), `"source":"atlas"`) {
		t.Errorf("metadata arg = %s, want JSON containing source", args[3])
	}
	if args[4] != "geography" {
		t.Errorf("namespace arg = %v, want geography", args[4])
	}
	createdAt, ok := args[5].(pgtype.Timestamptz)
	if !ok || !createdAt.Valid || !createdAt.Time.Equal(doc.CreatedAt) {
		t.Errorf("created_at arg = %v, want valid %v", args[5], doc.CreatedAt)
	}
}

func TestStore_Add_GeneratesID(t *testing.T) {
	querier := &mockQuerier{}
	store := New(querier, &mockEmbedder{}, testLogger())

	doc := Document{Content: "content without an identifier"}
	if err := store.Add(context.Background(), doc); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	id, ok := querier.lastExecArgs[0].(string)
	if !ok || id == "" {
		t.Errorf("expected generated UUID for empty ID, got %v", querier.lastExecArgs[0])
	}
}

func TestStore_Add_ZeroCreatedAt(t *testing.T) {
	querier := &mockQuerier{}
	store := New(querier, &mockEmbedder{}, testLogger())

	if err := store.Add(context.Background(), Document{ID: "d1", Content: "text"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	createdAt, ok := querier.lastExecArgs[5].(pgtype.Timestamptz)
	if !ok {
		t.Fatalf("created_at arg is %T, want pgtype.Timestamptz", querier.lastExecArgs[5])
	}
	// Invalid timestamptz maps to SQL NULL, letting COALESCE fill in now()
	if createdAt.Valid {
		t.Error("zero CreatedAt should produce an invalid (NULL) timestamptz")
	}
}

func TestStore_Add_EmptyContent(t *testing.T) {
	querier := &mockQuerier{}
	embedder := &mockEmbedder{}
	store := New(querier, embedder, testLogger())

	err := store.Add(context.Background(), Document{ID: "doc-1"})
	if err == nil {
		t.Fatal("expected error for empty content")
	}
	if embedder.callCount != 0 {
		t.Error("embedder should not be called for empty content")
	}
	if querier.execCalls != 0 {
		t.Error("Exec should not be called for empty content")
	}
}

func TestStore_Add_EmbedderError(t *testing.T) {
	querier := &mockQuerier{}
	embedErr := errors.New("embedding service unavailable")
	store := New(querier, &mockEmbedder{embedErr: embedErr}, testLogger())

	err := store.Add(context.Background(), Document{ID: "doc-1", Content: "text"})
	if !errors.Is(err, embedErr) {
		t.Fatalf("expected wrapped embedder error, got %v", err)
	}
	if querier.execCalls != 0 {
		t.Error("Exec should not be called when embedding fails")
	}
}

func TestStore_Add_EmptyEmbedding(t *testing.T) {
	store := New(&mockQuerier{}, &mockEmbedder{returnEmpty: true}, testLogger())

	err := store.Add(context.Background(), Document{ID: "doc-1", Content: "text"})
	if err == nil || !strings.Contains(err.Error(), "empty embedding") {
		t.Fatalf("expected empty embedding error, got %v", err)
	}
}

func TestStore_Add_ExecError(t *testing.T) {
	execErr := errors.New("connection refused")
	store := New(&mockQuerier{execErr: execErr}, &mockEmbedder{}, testLogger())

	err := store.Add(context.Background(), Document{ID: "doc-1", Content: "text"})
	if !errors.Is(err, execErr) {
		t.Fatalf("expected wrapped exec error, got %v", err)
	}
	if !strings.Contains(err.Error(), "doc-1") {
		t.Errorf("error should name the document, got %v", err)
	}
}

// ============================================================================
// Store.Search Tests
// ============================================================================

func TestStore_Search_Success(t *testing.T) {
	createdAt := time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)
	rows := &fakeRows{data: [][]any{
		searchRow("doc-1", "Ankara is the capital of Turkey",
			[]byte(`{"text":"Ankara fact"}`), "geography", createdAt, 0.93),
		searchRow("doc-2", "Paris is the capital of France",
			nil, "geography", time.Time{}, 0.71),
	}}
	querier := &mockQuerier{queryResult: rows}
	store := New(querier, &mockEmbedder{}, testLogger())

	results, err := store.Search(context.Background(), "capital of Turkey")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	first := results[0]
	if first.Document.ID != "doc-1" {
		t.Errorf("first result ID = %q, want doc-1", first.Document.ID)
	}
	if first.Similarity != 0.93 {
		t.Errorf("first result similarity = %v, want 0.93", first.Similarity)
	}
	if first.Document.Metadata["text"] != "Ankara fact" {
		t.Errorf("metadata not parsed: %v", first.Document.Metadata)
	}
	if !first.Document.CreatedAt.Equal(createdAt) {
		t.Errorf("created_at = %v, want %v", first.Document.CreatedAt, createdAt)
	}
	if results[1].Document.Metadata != nil {
		t.Errorf("nil metadata column should stay nil, got %v", results[1].Document.Metadata)
	}
	if !rows.closed {
		t.Error("rows should be closed after Search")
	}
}

func TestStore_Search_DefaultOptions(t *testing.T) {
	querier := &mockQuerier{}
	store := New(querier, &mockEmbedder{}, testLogger())

	if _, err := store.Search(context.Background(), "anything"); err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	args := querier.lastQueryArgs
	if len(args) != 4 {
		t.Fatalf("Query received %d args, want 4", len(args))
	}
	if _, ok := args[0].(pgvector.Vector); !ok {
		t.Errorf("first arg is %T, want pgvector.Vector", args[0])
	}
	if args[1] != "" {
		t.Errorf("namespace arg = %v, want empty default", args[1])
	}
	if args[2] != 0.0 {
		t.Errorf("threshold arg = %v, want 0", args[2])
	}
	if args[3] != 5 {
		t.Errorf("topK arg = %v, want default 5", args[3])
	}
}

func TestStore_Search_CustomOptions(t *testing.T) {
	querier := &mockQuerier{}
	store := New(querier, &mockEmbedder{}, testLogger())

	_, err := store.Search(context.Background(), "anything",
		WithTopK(10), WithThreshold(0.7), WithNamespace("geography"))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	args := querier.lastQueryArgs
	if args[1] != "geography" {
		t.Errorf("namespace arg = %v, want geography", args[1])
	}
	if args[2] != 0.7 {
		t.Errorf("threshold arg = %v, want 0.7", args[2])
	}
	if args[3] != 10 {
		t.Errorf("topK arg = %v, want 10", args[3])
	}
}

func TestStore_Search_MalformedMetadata(t *testing.T) {
	rows := &fakeRows{data: [][]any{
		searchRow("doc-1", "content", []byte(`{not json`), "", time.Time{}, 0.8),
	}}
	store := New(&mockQuerier{queryResult: rows}, &mockEmbedder{}, testLogger())

	results, err := store.Search(context.Background(), "query")
	if err != nil {
		t.Fatalf("Search should tolerate malformed metadata, got %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Document.Metadata != nil {
		t.Errorf("malformed metadata should be dropped, got %v", results[0].Document.Metadata)
	}
}

func TestStore_Search_EmbedderError(t *testing.T) {
	querier := &mockQuerier{}
	embedErr := errors.New("quota exceeded")
	store := New(querier, &mockEmbedder{embedErr: embedErr}, testLogger())

	_, err := store.Search(context.Background(), "query")
	if !errors.Is(err, embedErr) {
		t.Fatalf("expected wrapped embedder error, got %v", err)
	}
	if querier.queryCalls != 0 {
		t.Error("Query should not be called when embedding fails")
	}
}

func TestStore_Search_EmptyQueryEmbedding(t *testing.T) {
	store := New(&mockQuerier{}, &mockEmbedder{returnEmpty: true}, testLogger())

	_, err := store.Search(context.Background(), "query")
	if err == nil || !strings.Contains(err.Error(), "empty embedding") {
		t.Fatalf("expected empty embedding error, got %v", err)
	}
}

func TestStore_Search_QueryError(t *testing.T) {
	queryErr := errors.New("relation does not exist")
	store := New(&mockQuerier{queryErr: queryErr}, &mockEmbedder{}, testLogger())

	_, err := store.Search(context.Background(), "query")
	if !errors.Is(err, queryErr) {
		t.Fatalf("expected wrapped query error, got %v", err)
	}
}

func TestStore_Search_RowsError(t *testing.T) {
	rowsErr := errors.New("connection reset during iteration")
	rows := &fakeRows{
		data:    [][]any{searchRow("doc-1", "content", nil, "", time.Time{}, 0.8)},
		rowsErr: rowsErr,
	}
	store := New(&mockQuerier{queryResult: rows}, &mockEmbedder{}, testLogger())

	_, err := store.Search(context.Background(), "query")
	if !errors.Is(err, rowsErr) {
		t.Fatalf("expected wrapped rows error, got %v", err)
	}
}

func TestStore_Search_ScanError(t *testing.T) {
	rows := &fakeRows{
		data:    [][]any{searchRow("doc-1", "content", nil, "", time.Time{}, 0.8)},
		scanErr: errors.New("type mismatch"),
	}
	store := New(&mockQuerier{queryResult: rows}, &mockEmbedder{}, testLogger())

	_, err := store.Search(context.Background(), "query")
	if err == nil || !strings.Contains(err.Error(), "scan") {
		t.Fatalf("expected scan error, got %v", err)
	}
}

// ============================================================================
// Store.Retrieve Tests
// ============================================================================

func TestStore_Retrieve(t *testing.T) {
	rows := &fakeRows{data: [][]any{
		searchRow("doc-1", "Ankara is the capital of Turkey",
			[]byte(`{"text":"Ankara is the Turkish capital."}`), "geography", time.Time{}, 0.93),
		searchRow("doc-2", "Paris is the capital of France",
			[]byte(`{"source":"atlas"}`), "geography", time.Time{}, 0.71),
	}}
	querier := &mockQuerier{queryResult: rows}
	store := New(querier, &mockEmbedder{}, testLogger())

	facts, err := store.Retrieve(context.Background(), Query{
		Text:        "capital of Turkey",
		TopK:        3,
		Threshold:   0.5,
		Namespace:   "geography",
		MetadataKey: "text",
	})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	want := []string{
		"Ankara is the Turkish capital.",
		"Paris is the capital of France",
	}
	if len(facts) != len(want) {
		t.Fatalf("got %d facts, want %d", len(facts), len(want))
	}
	for i := range want {
		if facts[i] != want[i] {
			t.Errorf("fact[%d] = %q, want %q", i, facts[i], want[i])
		}
	}

	// Query fields must reach the search as options
	args := querier.lastQueryArgs
	if args[1] != "geography" || args[2] != 0.5 || args[3] != 3 {
		t.Errorf("query options not propagated: namespace=%v threshold=%v topK=%v",
			args[1], args[2], args[3])
	}
}

func TestStore_Retrieve_SearchError(t *testing.T) {
	queryErr := errors.New("db down")
	store := New(&mockQuerier{queryErr: queryErr}, &mockEmbedder{}, testLogger())

	_, err := store.Retrieve(context.Background(), Query{Text: "question"})
	if !errors.Is(err, queryErr) {
		t.Fatalf("expected wrapped search error, got %v", err)
	}
}

func TestFactFromResult(t *testing.T) {
	tests := []struct {
		name        string
		result      Result
		metadataKey string
		want        string
	}{
		{
			name: "metadata key present",
			result: Result{Document: Document{
				Content:  "full document content",
				Metadata: map[string]string{"text": "extracted fact"},
			}},
			metadataKey: "text",
			want:        "extracted fact",
		},
		{
			name: "metadata key missing falls back to content",
			result: Result{Document: Document{
				Content:  "full document content",
				Metadata: map[string]string{"source": "atlas"},
			}},
			metadataKey: "text",
			want:        "full document content",
		},
		{
			name: "empty metadata value falls back to content",
			result: Result{Document: Document{
				Content:  "full document content",
				Metadata: map[string]string{"text": ""},
			}},
			metadataKey: "text",
			want:        "full document content",
		},
		{
			name: "nil metadata falls back to content",
			result: Result{Document: Document{
				Content: "full document content",
			}},
			metadataKey: "text",
			want:        "full document content",
		},
		{
			name: "empty metadata key uses content directly",
			result: Result{Document: Document{
				Content:  "full document content",
				Metadata: map[string]string{"text": "extracted fact"},
			}},
			metadataKey: "",
			want:        "full document content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := factFromResult(tt.result, tt.metadataKey); got != tt.want {
				t.Errorf("factFromResult() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ============================================================================
// Store.Count / Delete Tests
// ============================================================================

func TestStore_Count(t *testing.T) {
	querier := &mockQuerier{countResult: 42}
	store := New(querier, &mockEmbedder{}, testLogger())

	count, err := store.Count(context.Background(), "geography")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 42 {
		t.Errorf("Count = %d, want 42", count)
	}
}

func TestStore_Count_Error(t *testing.T) {
	rowErr := errors.New("db down")
	store := New(&mockQuerier{queryRowErr: rowErr}, &mockEmbedder{}, testLogger())

	_, err := store.Count(context.Background(), "")
	if !errors.Is(err, rowErr) {
		t.Fatalf("expected wrapped count error, got %v", err)
	}
}

func TestStore_Delete(t *testing.T) {
	querier := &mockQuerier{}
	store := New(querier, &mockEmbedder{}, testLogger())

	if err := store.Delete(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if querier.execCalls != 1 {
		t.Errorf("Exec called %d times, want 1", querier.execCalls)
	}
	if querier.lastExecArgs[0] != "doc-1" {
		t.Errorf("delete arg = %v, want doc-1", querier.lastExecArgs[0])
	}
}

func TestStore_Delete_Error(t *testing.T) {
	execErr := errors.New("db down")
	store := New(&mockQuerier{execErr: execErr}, &mockEmbedder{}, testLogger())

	if err := store.Delete(context.Background(), "doc-1"); !errors.Is(err, execErr) {
		t.Fatalf("expected wrapped delete error, got %v", err)
	}
}

func TestStore_DeleteNamespace(t *testing.T) {
	querier := &mockQuerier{execTag: pgconn.NewCommandTag("DELETE 3")}
	store := New(querier, &mockEmbedder{}, testLogger())

	deleted, err := store.DeleteNamespace(context.Background(), "geography")
	if err != nil {
		t.Fatalf("DeleteNamespace failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}
	if querier.lastExecArgs[0] != "geography" {
		t.Errorf("namespace arg = %v, want geography", querier.lastExecArgs[0])
	}
}

// ============================================================================
// Option Tests
// ============================================================================

func TestBuildSearchConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := buildSearchConfig(nil)
		if cfg.topK != 5 {
			t.Errorf("default topK = %d, want 5", cfg.topK)
		}
		if cfg.threshold != 0 {
			t.Errorf("default threshold = %v, want 0", cfg.threshold)
		}
		if cfg.namespace != "" {
			t.Errorf("default namespace = %q, want empty", cfg.namespace)
		}
		if cfg.timeout != defaultSearchTimeout {
			t.Errorf("default timeout = %v, want %v", cfg.timeout, defaultSearchTimeout)
		}
	})

	t.Run("non-positive topK ignored", func(t *testing.T) {
		cfg := buildSearchConfig([]SearchOption{WithTopK(0)})
		if cfg.topK != 5 {
			t.Errorf("topK = %d, want default 5 when option is non-positive", cfg.topK)
		}
		cfg = buildSearchConfig([]SearchOption{WithTopK(-3)})
		if cfg.topK != 5 {
			t.Errorf("topK = %d, want default 5 when option is negative", cfg.topK)
		}
	})

	t.Run("all options applied", func(t *testing.T) {
		cfg := buildSearchConfig([]SearchOption{
			WithTopK(7), WithThreshold(0.8), WithNamespace("docs"),
		})
		if cfg.topK != 7 || cfg.threshold != 0.8 || cfg.namespace != "docs" {
			t.Errorf("options not applied: %+v", cfg)
		}
	})
}
