package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/koopa0/ragchat/internal/chat"
	"github.com/koopa0/ragchat/internal/log"
)

// MaxMessageLength bounds the chat message size accepted over HTTP.
const MaxMessageLength = 10000

// ChatHandler handles chat-related HTTP endpoints.
//
// Endpoints:
//   - POST /api/chat        - One exchange (JSON request/response)
//   - POST /api/chat/stream - One exchange (SSE - Server-Sent Events)
//
// Both endpoints run the same pipeline; they differ only in delivery.
// sessionId is required: the server is shared by many callers, so nobody
// may land in the engine's default session by accident.
type ChatHandler struct {
	engine *chat.Engine
	logger log.Logger
}

// NewChatHandler creates a new chat handler backed by the given engine.
func NewChatHandler(engine *chat.Engine, logger log.Logger) *ChatHandler {
	return &ChatHandler{engine: engine, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	if h.engine == nil {
		if h.logger != nil {
			h.logger.Warn("ChatHandler: engine is nil, chat endpoints not registered")
		}
		return
	}
	mux.HandleFunc("POST /api/chat", h.handleChat)
	mux.HandleFunc("POST /api/chat/stream", h.handleStream)
}

// ChatRequest is the request body for both chat endpoints.
type ChatRequest struct {
	// Message is the user input. Required.
	Message string `json:"message"`

	// SessionID groups this exchange's history. Required.
	SessionID string `json:"sessionId"`

	// RatelimitSessionID keys the rate-limit budget. Defaults to SessionID.
	RatelimitSessionID string `json:"ratelimitSessionId,omitempty"`

	// Metadata tags the stored assistant turn.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// validate reports the first problem with the request, empty string if none.
func (req ChatRequest) validate() string {
	switch {
	case req.SessionID == "":
		return "sessionId is required"
	case req.Message == "":
		return "message is required"
	case len(req.Message) > MaxMessageLength:
		return fmt.Sprintf("message too long (max %d characters)", MaxMessageLength)
	default:
		return ""
	}
}

// options maps the request onto call-time engine options.
func (req ChatRequest) options(streaming bool) []chat.Option {
	ratelimitID := req.RatelimitSessionID
	if ratelimitID == "" {
		ratelimitID = req.SessionID
	}

	opts := []chat.Option{
		chat.WithStreaming(streaming),
		chat.WithSessionID(req.SessionID),
		chat.WithRatelimitSessionID(ratelimitID),
	}
	if req.Metadata != nil {
		opts = append(opts, chat.WithMetadata(req.Metadata))
	}
	return opts
}

// ChatResponse is the success body for POST /api/chat.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"sessionId"`
}

// handleChat handles the synchronous JSON endpoint.
func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if problem := req.validate(); problem != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", problem)
		return
	}

	res, err := h.engine.Chat(r.Context(), req.Message, req.options(false)...)
	if err != nil {
		h.writeChatError(w, req.SessionID, err)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Response:  res.Text,
		SessionID: req.SessionID,
	})
}

// writeChatError maps pipeline errors onto HTTP status codes: rate limiting
// becomes 429 with a Retry-After header, everything else 500.
func (h *ChatHandler) writeChatError(w http.ResponseWriter, sessionID string, err error) {
	var rle *chat.RateLimitError
	if errors.As(err, &rle) {
		w.Header().Set("Retry-After", retryAfterSeconds(rle.Reset))
		writeError(w, http.StatusTooManyRequests, "rate_limited", rle.Error())
		return
	}

	h.logger.Error("chat request failed", "error", err, "sessionId", sessionID)
	writeError(w, http.StatusInternalServerError, "chat_failed", err.Error())
}

// retryAfterSeconds renders a reset time as whole seconds from now,
// never less than 1.
func retryAfterSeconds(reset time.Time) string {
	secs := int(math.Ceil(time.Until(reset).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// SSEChunkData is the data for "chunk" events.
type SSEChunkData struct {
	Text string `json:"text"`
}

// SSEDoneData is the data for "done" events.
type SSEDoneData struct {
	Response  string `json:"response"`
	SessionID string `json:"sessionId"`
}

// SSEErrorData is the data for "error" events.
type SSEErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleStream handles the SSE streaming endpoint.
//
// Request body: same as POST /api/chat.
// Response: Server-Sent Events stream.
//
// Event types:
//   - chunk: partial text {"text": "..."}
//   - done:  final response {"response": "...", "sessionId": "..."}
//   - error: failure {"code": "...", "message": "..."}
//
// Errors after the first chunk arrive as a terminal "error" event; the
// HTTP status is always 200 by then.
func (h *ChatHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeSSEError(w, flusher, "INVALID_REQUEST", fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.SessionID == "" {
		h.writeSSEError(w, flusher, "MISSING_SESSION_ID", "sessionId is required")
		return
	}
	if req.Message == "" {
		h.writeSSEError(w, flusher, "MISSING_MESSAGE", "message is required")
		return
	}
	if len(req.Message) > MaxMessageLength {
		h.writeSSEError(w, flusher, "MESSAGE_TOO_LONG",
			fmt.Sprintf("message too long (max %d characters)", MaxMessageLength))
		return
	}

	ctx := r.Context()
	h.logger.Info("SSE stream started", "sessionId", req.SessionID)

	res, err := h.engine.Chat(ctx, req.Message, req.options(true)...)
	if err != nil {
		var rle *chat.RateLimitError
		if errors.As(err, &rle) {
			h.writeSSEError(w, flusher, "RATE_LIMITED", rle.Error())
			return
		}
		h.logger.Error("chat request failed", "error", err, "sessionId", req.SessionID)
		h.writeSSEError(w, flusher, "CHAT_FAILED", err.Error())
		return
	}

	stream := res.Stream
	defer stream.Close()

	var full strings.Builder
	for chunk, err := range stream.Chunks() {
		if err != nil {
			if ctx.Err() != nil {
				h.logger.Info("client disconnected", "sessionId", req.SessionID)
				return
			}
			h.logger.Error("stream failed", "error", err, "sessionId", req.SessionID)
			h.writeSSEError(w, flusher, "STREAM_ERROR", err.Error())
			return
		}
		full.WriteString(chunk)
		h.writeSSEChunk(w, flusher, chunk)
	}

	h.writeSSEDone(w, flusher, full.String(), req.SessionID)
	h.logger.Info("SSE stream completed",
		"sessionId", req.SessionID,
		"responseLen", full.Len())
}

// writeSSEChunk writes a chunk event to the SSE stream.
func (h *ChatHandler) writeSSEChunk(w http.ResponseWriter, flusher http.Flusher, text string) {
	data, _ := json.Marshal(SSEChunkData{Text: text})
	fmt.Fprintf(w, "event: chunk\ndata: %s\n\n", data)
	flusher.Flush()
}

// writeSSEDone writes a done event to the SSE stream.
func (h *ChatHandler) writeSSEDone(w http.ResponseWriter, flusher http.Flusher, response, sessionID string) {
	data, _ := json.Marshal(SSEDoneData{Response: response, SessionID: sessionID})
	fmt.Fprintf(w, "event: done\ndata: %s\n\n", data)
	flusher.Flush()
}

// writeSSEError writes an error event to the SSE stream.
func (h *ChatHandler) writeSSEError(w http.ResponseWriter, flusher http.Flusher, code, message string) {
	data, _ := json.Marshal(SSEErrorData{Code: code, Message: message})
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
	flusher.Flush()
}
