package chat

import (
	"context"
	"errors"
	"iter"
	"sync"
)

// errAbandoned aborts chunk production when the consumer stops reading.
var errAbandoned = errors.New("chat: stream abandoned by consumer")

// Result is the outcome of one Chat call, a tagged union discriminated by
// Streaming: Text holds the full completion when false, Stream holds the
// live chunk sequence when true.
type Result struct {
	Streaming bool
	Text      string
	Stream    *Stream
}

// Stream is a single-pass, forward-only sequence of response chunks.
// Chunks are produced lazily as the model emits them; nothing is buffered
// beyond the chunk in flight, so memory stays bounded by chunk size rather
// than response length.
//
// A Stream must be consumed: range over Chunks until it ends, or break out
// (or call Close) to abandon it. A Stream that is neither drained nor
// closed keeps its producer goroutine alive until the request context is
// done.
type Stream struct {
	chunks chan string
	stop   chan struct{}
	once   sync.Once

	// err is the terminal error. Written by the producer before chunks is
	// closed, read by the consumer only after the close is observed.
	err error
}

func newStream() *Stream {
	return &Stream{
		chunks: make(chan string),
		stop:   make(chan struct{}),
	}
}

// Chunks returns an iterator over the response chunks in production order.
// The sequence ends after the last chunk, or yields a terminal error: a
// model failure mid-stream surfaces after the chunks already delivered, a
// history write failure surfaces after all chunks. Breaking out of the
// loop abandons the stream and stops production.
//
// The iterator is single-pass; a second range resumes where the first
// stopped rather than replaying.
func (s *Stream) Chunks() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		defer s.abandon()
		for chunk := range s.chunks {
			if !yield(chunk, nil) {
				return
			}
		}
		if s.err != nil {
			yield("", s.err)
		}
	}
}

// Close abandons the stream, stopping further production. Safe to call
// repeatedly and after exhaustion. Chunks already delivered are unaffected.
func (s *Stream) Close() {
	s.abandon()
}

func (s *Stream) abandon() {
	s.once.Do(func() { close(s.stop) })
}

// send delivers one chunk, blocking until the consumer takes it. It
// reports errAbandoned when the consumer stopped reading and the context
// error when the request is cancelled.
func (s *Stream) send(ctx context.Context, chunk string) error {
	select {
	case s.chunks <- chunk:
		return nil
	case <-s.stop:
		return errAbandoned
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish seals the stream with an optional terminal error. Must be called
// exactly once, after the last send.
func (s *Stream) finish(err error) {
	s.err = err
	close(s.chunks)
}
