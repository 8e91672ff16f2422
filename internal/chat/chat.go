// Package chat orchestrates one RAG chat exchange per call: rate-limit
// check, history write, context retrieval, prompt rendering, model
// invocation and the closing history write, in a fixed order with no
// retries and no partial-success states.
//
// The pipeline runs: resolve options, check the rate limit, record the raw
// user turn, sanitize the question, retrieve context and fetch history in
// parallel, render the prompt, invoke the model, record the assistant
// turn. A rate-limited request is rejected before anything is written; any
// later failure is returned unchanged to the caller, though the user turn
// may already be durable by then.
//
// Concurrent Chat calls are independent. Calls against the same session
// are not serialized here; interleaved history appends land in the backing
// store's native order.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/koopa0/ragchat/internal/history"
	"github.com/koopa0/ragchat/internal/knowledge"
	"github.com/koopa0/ragchat/internal/ratelimit"
)

// Generator produces model completions for a rendered prompt. Implemented
// by model.Client.
type Generator interface {
	// Generate returns the full completion for prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// GenerateStream invokes onChunk for each response fragment in order
	// and returns the full concatenated text. An error from onChunk
	// aborts the stream.
	GenerateStream(ctx context.Context, prompt string, onChunk func(ctx context.Context, chunk string) error) (string, error)
}

// Retriever returns fact strings relevant to a query. Implemented by
// knowledge.Store.
type Retriever interface {
	Retrieve(ctx context.Context, q knowledge.Query) ([]string, error)
}

// HistoryStore persists conversation turns per session and reads bounded
// windows back, newest first. Implemented by history.RedisStore and
// history.MemoryStore.
type HistoryStore interface {
	AddMessage(ctx context.Context, sessionID string, msg history.Message, ttl time.Duration) error
	GetMessages(ctx context.Context, sessionID string, amount int) ([]history.Message, error)
}

// RateLimiter decides whether a rate-limit session may proceed.
// Implemented by ratelimit.Local and ratelimit.RedisLimiter.
type RateLimiter interface {
	Check(ctx context.Context, key string) (ratelimit.Decision, error)
}

// Config carries the collaborators and instance defaults for an Engine.
type Config struct {
	// Generator is the model collaborator. Required.
	Generator Generator

	// Retriever is the vector store collaborator. Required.
	Retriever Retriever

	// History persists conversation turns. Optional; defaults to an
	// in-process store whose contents vanish on restart.
	History HistoryStore

	// RateLimiter bounds requests per rate-limit session. Optional;
	// absent means every request is allowed.
	RateLimiter RateLimiter

	// PromptFn overrides the default prompt templates for every call.
	PromptFn PromptFunc

	// Namespace scopes all retrieval to one vector store partition.
	// Fixed at construction; calls cannot override it.
	Namespace string

	// SessionID and RatelimitSessionID are the instance defaults for
	// calls that do not choose their own.
	SessionID          string
	RatelimitSessionID string

	// Metadata tags every assistant turn this engine records, unless a
	// call supplies its own.
	Metadata map[string]string

	// Streaming is the default delivery mode.
	Streaming bool

	// Logger receives debug-level pipeline traces. Optional.
	Logger *slog.Logger
}

// validate checks the required collaborators are present.
func (cfg Config) validate() error {
	if cfg.Generator == nil {
		return ErrNoGenerator
	}
	if cfg.Retriever == nil {
		return ErrNoRetriever
	}
	return nil
}

// Engine runs the chat pipeline. It is stateless across calls; all
// configuration is captured immutably at construction, so one Engine
// serves concurrent requests.
type Engine struct {
	generator Generator
	retriever Retriever
	history   HistoryStore
	limiter   RateLimiter // nil = always allow

	namespace          string
	sessionID          string
	ratelimitSessionID string
	metadata           map[string]string
	streaming          bool
	promptFn           PromptFunc // nil = default templates
	logger             *slog.Logger
}

// New creates an Engine. A missing Generator or Retriever fails
// immediately with a sentinel error; optional collaborators fall back to
// an in-memory history store, an always-allow limiter and a discard
// logger.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	hist := cfg.History
	if hist == nil {
		hist = history.NewMemory()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	ratelimitSessionID := cfg.RatelimitSessionID
	if ratelimitSessionID == "" {
		ratelimitSessionID = DefaultRatelimitSessionID
	}

	return &Engine{
		generator:          cfg.Generator,
		retriever:          cfg.Retriever,
		history:            hist,
		limiter:            cfg.RateLimiter,
		namespace:          cfg.Namespace,
		sessionID:          sessionID,
		ratelimitSessionID: ratelimitSessionID,
		metadata:           cfg.Metadata,
		streaming:          cfg.Streaming,
		promptFn:           cfg.PromptFn,
		logger:             logger,
	}, nil
}

// Chat runs one exchange: input in, completion out. The returned Result is
// a full text or a live Stream depending on the resolved streaming option.
//
// In streaming mode the method returns as soon as the model call is under
// way; the Stream must then be consumed (see Stream). Errors that occur
// mid-stream, including the closing history write, arrive through the
// Stream's iterator rather than here.
func (e *Engine) Chat(ctx context.Context, input string, opts ...Option) (*Result, error) {
	ro := e.resolveOptions(opts)

	e.logger.Debug("chat request",
		"session_id", ro.sessionID,
		"streaming", ro.streaming,
		"disable_rag", ro.disableRAG,
		"input_length", len(input))

	if err := e.checkRatelimit(ctx, ro); err != nil {
		e.logger.Debug("chat rejected", "session_id", ro.sessionID, "error", err)
		return nil, err
	}

	// The raw input is recorded before anything else can fail, so stored
	// history always reflects what the user literally sent.
	if err := e.history.AddMessage(ctx, ro.sessionID, history.NewUserMessage(input), ro.historyTTL); err != nil {
		return nil, fmt.Errorf("recording user message: %w", err)
	}

	question := sanitizeQuestion(input)

	// Context retrieval and the history fetch have no data dependency;
	// run them in parallel.
	type contextResult struct {
		text string
		err  error
	}
	type historyResult struct {
		text string
		err  error
	}

	contextCh := make(chan contextResult, 1)
	historyCh := make(chan historyResult, 1)

	// Goroutine exits after single channel send. Buffered channel (cap 1)
	// prevents blocking if the other fetch fails and Chat returns early.
	go func() {
		text, err := e.retrieveContext(ctx, question, ro)
		contextCh <- contextResult{text, err}
	}()

	go func() {
		text, err := e.fetchHistory(ctx, ro)
		historyCh <- historyResult{text, err}
	}()

	cr := <-contextCh
	if cr.err != nil {
		return nil, fmt.Errorf("retrieving context: %w", cr.err)
	}
	hr := <-historyCh
	if hr.err != nil {
		return nil, fmt.Errorf("fetching history: %w", hr.err)
	}

	prompt := ro.promptFn(PromptInput{
		Question:    question,
		Context:     cr.text,
		ChatHistory: hr.text,
	})
	e.logger.Debug("prompt built",
		"session_id", ro.sessionID,
		"prompt_length", len(prompt),
		"context_length", len(cr.text))

	if ro.streaming {
		stream := newStream()
		go e.produceStream(ctx, stream, prompt, ro)
		return &Result{Streaming: true, Stream: stream}, nil
	}
	return e.complete(ctx, prompt, ro)
}

// checkRatelimit consults the limiter, reports the decision to the
// ratelimitDetails hook, and rejects the request when the budget is spent.
// No limiter configured means every request passes.
func (e *Engine) checkRatelimit(ctx context.Context, ro resolvedOptions) error {
	if e.limiter == nil {
		return nil
	}

	decision, err := e.limiter.Check(ctx, ro.ratelimitSessionID)
	if err != nil {
		return fmt.Errorf("checking rate limit: %w", err)
	}

	// The hook sees every decision, rejected ones included, before the
	// rejection takes effect.
	if ro.ratelimitDetails != nil {
		ro.ratelimitDetails(ctx, decision)
	}

	if !decision.Allowed {
		return &RateLimitError{
			Limit:     decision.Limit,
			Remaining: decision.Remaining,
			Reset:     decision.Reset,
		}
	}
	return nil
}

// retrieveContext turns the sanitized question into one context blob:
// retrieved facts, optionally post-processed by the onContextFetched hook,
// joined with newlines. Disabled retrieval yields an empty blob without
// touching the store.
func (e *Engine) retrieveContext(ctx context.Context, question string, ro resolvedOptions) (string, error) {
	if ro.disableRAG {
		return "", nil
	}

	facts, err := e.retriever.Retrieve(ctx, knowledge.Query{
		Text:        question,
		TopK:        ro.topK,
		Threshold:   ro.similarityThreshold,
		Namespace:   e.namespace,
		MetadataKey: ro.metadataKey,
	})
	if err != nil {
		return "", err
	}

	if ro.onContextFetched != nil {
		if replaced := ro.onContextFetched(ctx, facts); replaced != nil {
			facts = replaced
		}
	}

	e.logger.Debug("context retrieved", "facts", len(facts))
	return strings.Join(facts, "\n"), nil
}

// fetchHistory reads the recent window for the session, lets the
// onChatHistoryFetched hook adjust it, and renders it as transcript text.
func (e *Engine) fetchHistory(ctx context.Context, ro resolvedOptions) (string, error) {
	msgs, err := e.history.GetMessages(ctx, ro.sessionID, ro.historyLength)
	if err != nil {
		return "", err
	}

	if ro.onChatHistoryFetched != nil {
		if replaced := ro.onChatHistoryFetched(ctx, msgs); replaced != nil {
			msgs = replaced
		}
	}

	return formatHistory(msgs), nil
}

// formatHistory renders messages as one transcript line each, oldest turn
// first. The store hands over newest first, so iteration runs backwards.
func formatHistory(msgs []history.Message) string {
	if len(msgs) == 0 {
		return ""
	}

	lines := make([]string, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		prefix := "USER MESSAGE: "
		if msgs[i].Role == history.RoleAssistant {
			prefix = "YOUR MESSAGE: "
		}
		lines = append(lines, prefix+msgs[i].Content)
	}
	return strings.Join(lines, "\n")
}

// complete runs the non-streaming tail of the pipeline: full completion,
// assistant turn recorded, onComplete fired once.
func (e *Engine) complete(ctx context.Context, prompt string, ro resolvedOptions) (*Result, error) {
	output, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating response: %w", err)
	}

	if err := e.history.AddMessage(ctx, ro.sessionID, history.NewAssistantMessage(output, ro.metadata), ro.historyTTL); err != nil {
		return nil, fmt.Errorf("recording assistant message: %w", err)
	}

	if ro.onComplete != nil {
		ro.onComplete(ctx, output)
	}

	e.logger.Debug("chat complete",
		"session_id", ro.sessionID,
		"output_length", len(output))
	return &Result{Text: output}, nil
}

// produceStream runs the streaming tail in its own goroutine: chunks are
// pushed to the consumer as the model emits them, then completion
// bookkeeping runs after the last chunk has been handed over. A consumer
// that stops reading aborts production; bookkeeping is skipped since there
// is no completed exchange to record.
func (e *Engine) produceStream(ctx context.Context, stream *Stream, prompt string, ro resolvedOptions) {
	full, err := e.generator.GenerateStream(ctx, prompt, func(cctx context.Context, chunk string) error {
		if err := stream.send(cctx, chunk); err != nil {
			return err
		}
		if ro.onChunk != nil {
			ro.onChunk(cctx, chunk)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errAbandoned) {
			e.logger.Debug("stream abandoned", "session_id", ro.sessionID)
			stream.finish(nil)
			return
		}
		stream.finish(fmt.Errorf("generating response: %w", err))
		return
	}

	// Bookkeeping after the final send: the last chunk is already with
	// the consumer, so the history write never delays delivery.
	if err := e.history.AddMessage(ctx, ro.sessionID, history.NewAssistantMessage(full, ro.metadata), ro.historyTTL); err != nil {
		stream.finish(fmt.Errorf("recording assistant message: %w", err))
		return
	}

	if ro.onComplete != nil {
		ro.onComplete(ctx, full)
	}

	e.logger.Debug("chat stream complete",
		"session_id", ro.sessionID,
		"output_length", len(full))
	stream.finish(nil)
}
