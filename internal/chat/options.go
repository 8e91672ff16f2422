package chat

import (
	"context"
	"time"

	"github.com/koopa0/ragchat/internal/history"
	"github.com/koopa0/ragchat/internal/ratelimit"
)

// Global defaults, applied when neither the call site nor the Engine
// configures a value.
const (
	// DefaultSessionID groups messages when no session ID is configured.
	DefaultSessionID = "ragchat-session"

	// DefaultRatelimitSessionID keys rate-limit accounting when no
	// dedicated rate-limit session is configured. Independent from the
	// chat session on purpose: several chat sessions may share one budget.
	DefaultRatelimitSessionID = "ragchat-ratelimit-session"

	// DefaultHistoryLength is how many recent messages feed the prompt.
	DefaultHistoryLength = 5

	// DefaultHistoryTTL is how long a session's history survives after
	// its last write.
	DefaultHistoryTTL = 24 * time.Hour

	// DefaultSimilarityThreshold is the minimum cosine similarity a
	// retrieved fact must reach.
	DefaultSimilarityThreshold = 0.5

	// DefaultTopK bounds how many facts one retrieval returns.
	DefaultTopK = 5

	// DefaultMetadataKey names the metadata field carrying a document's
	// fact text.
	DefaultMetadataKey = "text"
)

// Hook signatures. Hooks observe or post-process pipeline stages; the two
// fetch hooks may replace what was fetched by returning a non-nil value.
type (
	// ChunkHook observes each streamed chunk in delivery order. It cannot
	// abort the stream.
	ChunkHook func(ctx context.Context, chunk string)

	// CompleteHook observes the full response text once, after the
	// assistant turn has been recorded.
	CompleteHook func(ctx context.Context, fullText string)

	// HistoryHook observes the fetched history window (newest first) and
	// may replace it by returning a non-nil slice.
	HistoryHook func(ctx context.Context, msgs []history.Message) []history.Message

	// ContextHook observes the raw retrieved facts and may replace them
	// by returning a non-nil slice, for re-ranking or filtering.
	ContextHook func(ctx context.Context, facts []string) []string

	// RatelimitHook observes the limiter's decision before the request is
	// accepted or rejected.
	RatelimitHook func(ctx context.Context, d ratelimit.Decision)
)

// Option configures a single Chat call.
type Option func(*callOptions)

// callOptions records which values the call site set. Pointer fields
// distinguish an explicit zero from an absent value.
type callOptions struct {
	streaming           *bool
	sessionID           *string
	ratelimitSessionID  *string
	historyLength       *int
	historyTTL          *time.Duration
	similarityThreshold *float64
	topK                *int
	metadataKey         *string
	metadata            map[string]string
	disableRAG          bool
	promptFn            PromptFunc

	onChunk              ChunkHook
	onComplete           CompleteHook
	onChatHistoryFetched HistoryHook
	onContextFetched     ContextHook
	ratelimitDetails     RatelimitHook
}

// resolvedOptions is the fully populated configuration one Chat call runs
// with. Every field holds a concrete value once resolveOptions returns.
type resolvedOptions struct {
	streaming           bool
	sessionID           string
	ratelimitSessionID  string
	historyLength       int
	historyTTL          time.Duration
	similarityThreshold float64
	topK                int
	metadataKey         string
	metadata            map[string]string
	disableRAG          bool
	promptFn            PromptFunc

	onChunk              ChunkHook
	onComplete           CompleteHook
	onChatHistoryFetched HistoryHook
	onContextFetched     ContextHook
	ratelimitDetails     RatelimitHook
}

// WithStreaming selects streaming or full-completion mode for this call.
func WithStreaming(streaming bool) Option {
	return func(o *callOptions) { o.streaming = &streaming }
}

// WithSessionID overrides the chat session the exchange is recorded under.
func WithSessionID(id string) Option {
	return func(o *callOptions) { o.sessionID = &id }
}

// WithRatelimitSessionID overrides the key used for rate-limit accounting.
func WithRatelimitSessionID(id string) Option {
	return func(o *callOptions) { o.ratelimitSessionID = &id }
}

// WithHistoryLength overrides how many recent messages feed the prompt.
// Zero renders an empty history.
func WithHistoryLength(n int) Option {
	return func(o *callOptions) { o.historyLength = &n }
}

// WithHistoryTTL overrides how long this session's history survives after
// the write this call performs.
func WithHistoryTTL(ttl time.Duration) Option {
	return func(o *callOptions) { o.historyTTL = &ttl }
}

// WithSimilarityThreshold overrides the minimum similarity for retrieved
// facts. Zero disables the floor.
func WithSimilarityThreshold(threshold float64) Option {
	return func(o *callOptions) { o.similarityThreshold = &threshold }
}

// WithTopK overrides how many facts retrieval may return.
func WithTopK(k int) Option {
	return func(o *callOptions) { o.topK = &k }
}

// WithMetadataKey overrides the metadata field carrying fact text.
func WithMetadataKey(key string) Option {
	return func(o *callOptions) { o.metadataKey = &key }
}

// WithMetadata attaches key-value attributes to the assistant turn this
// call records, replacing any instance-level metadata.
func WithMetadata(metadata map[string]string) Option {
	return func(o *callOptions) { o.metadata = metadata }
}

// WithoutRAG skips context retrieval for this call. Unless a custom prompt
// template applies, the no-context template is used.
func WithoutRAG() Option {
	return func(o *callOptions) { o.disableRAG = true }
}

// WithPromptFn overrides the prompt template for this call.
func WithPromptFn(fn PromptFunc) Option {
	return func(o *callOptions) { o.promptFn = fn }
}

// OnChunk registers a hook observing each streamed chunk.
func OnChunk(hook ChunkHook) Option {
	return func(o *callOptions) { o.onChunk = hook }
}

// OnComplete registers a hook observing the full response text.
func OnComplete(hook CompleteHook) Option {
	return func(o *callOptions) { o.onComplete = hook }
}

// OnChatHistoryFetched registers a hook observing, and optionally
// replacing, the fetched history window.
func OnChatHistoryFetched(hook HistoryHook) Option {
	return func(o *callOptions) { o.onChatHistoryFetched = hook }
}

// OnContextFetched registers a hook observing, and optionally replacing,
// the raw retrieved facts.
func OnContextFetched(hook ContextHook) Option {
	return func(o *callOptions) { o.onContextFetched = hook }
}

// OnRatelimitDetails registers a hook observing the rate limiter's
// decision for this call, allowed or not.
func OnRatelimitDetails(hook RatelimitHook) Option {
	return func(o *callOptions) { o.ratelimitDetails = hook }
}

// resolveOptions merges call-site options over instance defaults over the
// package constants. Resolution is total: every resolvedOptions field is
// populated, so no later stage ever sees an absent value. Pure, no side
// effects.
func (e *Engine) resolveOptions(opts []Option) resolvedOptions {
	var co callOptions
	for _, opt := range opts {
		opt(&co)
	}

	ro := resolvedOptions{
		streaming:           e.streaming,
		sessionID:           e.sessionID,
		ratelimitSessionID:  e.ratelimitSessionID,
		historyLength:       DefaultHistoryLength,
		historyTTL:          DefaultHistoryTTL,
		similarityThreshold: DefaultSimilarityThreshold,
		topK:                DefaultTopK,
		metadataKey:         DefaultMetadataKey,
		metadata:            e.metadata,
		disableRAG:          co.disableRAG,

		onChunk:              co.onChunk,
		onComplete:           co.onComplete,
		onChatHistoryFetched: co.onChatHistoryFetched,
		onContextFetched:     co.onContextFetched,
		ratelimitDetails:     co.ratelimitDetails,
	}

	if co.streaming != nil {
		ro.streaming = *co.streaming
	}
	if co.sessionID != nil {
		ro.sessionID = *co.sessionID
	}
	if co.ratelimitSessionID != nil {
		ro.ratelimitSessionID = *co.ratelimitSessionID
	}
	if co.historyLength != nil {
		ro.historyLength = *co.historyLength
	}
	if co.historyTTL != nil {
		ro.historyTTL = *co.historyTTL
	}
	if co.similarityThreshold != nil {
		ro.similarityThreshold = *co.similarityThreshold
	}
	if co.topK != nil {
		ro.topK = *co.topK
	}
	if co.metadataKey != nil {
		ro.metadataKey = *co.metadataKey
	}
	if co.metadata != nil {
		ro.metadata = co.metadata
	}

	// Template resolution. An explicit call-site template always wins,
	// then the instance template. With retrieval disabled the fallback is
	// the no-context template: the RAG default expects a context block
	// that this path never fetches.
	switch {
	case co.promptFn != nil:
		ro.promptFn = co.promptFn
	case e.promptFn != nil:
		ro.promptFn = e.promptFn
	case ro.disableRAG:
		ro.promptFn = NoContextPrompt
	default:
		ro.promptFn = DefaultRAGPrompt
	}

	return ro
}
