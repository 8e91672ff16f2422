package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStream_DeliversInOrder(t *testing.T) {
	t.Parallel()
	s := newStream()
	ctx := context.Background()

	go func() {
		for _, chunk := range []string{"a", "b", "c"} {
			if err := s.send(ctx, chunk); err != nil {
				s.finish(err)
				return
			}
		}
		s.finish(nil)
	}()

	var got []string
	for chunk, err := range s.Chunks() {
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		got = append(got, chunk)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("chunks mismatch (-want +got):\n%s", diff)
	}
}

func TestStream_TerminalErrorAfterChunks(t *testing.T) {
	t.Parallel()
	s := newStream()
	ctx := context.Background()
	boom := errors.New("boom")

	go func() {
		_ = s.send(ctx, "delivered")
		s.finish(boom)
	}()

	var got []string
	var terminal error
	for chunk, err := range s.Chunks() {
		if err != nil {
			terminal = err
			continue
		}
		got = append(got, chunk)
	}
	if diff := cmp.Diff([]string{"delivered"}, got); diff != "" {
		t.Errorf("chunks mismatch (-want +got):\n%s", diff)
	}
	if !errors.Is(terminal, boom) {
		t.Errorf("terminal error = %v, want boom", terminal)
	}
}

func TestStream_EmptyStream(t *testing.T) {
	t.Parallel()
	s := newStream()
	s.finish(nil)

	for chunk, err := range s.Chunks() {
		t.Fatalf("empty stream yielded (%q, %v)", chunk, err)
	}
}

func TestStream_SendAfterClose(t *testing.T) {
	t.Parallel()
	s := newStream()
	s.Close()

	if err := s.send(context.Background(), "late"); !errors.Is(err, errAbandoned) {
		t.Errorf("send after Close = %v, want errAbandoned", err)
	}

	// Close is idempotent.
	s.Close()
	s.Close()
}

func TestStream_SendHonorsContext(t *testing.T) {
	t.Parallel()
	s := newStream()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.send(ctx, "chunk"); !errors.Is(err, context.Canceled) {
		t.Errorf("send with cancelled context = %v, want context.Canceled", err)
	}
}

func TestStream_BreakAbandons(t *testing.T) {
	t.Parallel()
	s := newStream()
	ctx := context.Background()

	sendResults := make(chan error, 2)
	go func() {
		sendResults <- s.send(ctx, "first")
		sendResults <- s.send(ctx, "second")
	}()

	for range s.Chunks() {
		break
	}

	if err := <-sendResults; err != nil {
		t.Errorf("first send = %v, want delivery", err)
	}
	if err := <-sendResults; !errors.Is(err, errAbandoned) {
		t.Errorf("send after break = %v, want errAbandoned", err)
	}
}
