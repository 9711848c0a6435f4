// Package stream normalizes provider replies into a single incremental text
// event stream. Streaming providers push deltas as they arrive; single-body
// providers push their whole reply as one fragment. Either way the consumer
// sees zero or more non-empty Delta events followed by exactly one terminal
// event: Done carrying the accumulated text, or Err.
//
// The package does not log; callers decide what to record.
package stream

import (
	"context"
	"errors"
	"strings"
)

// DefaultBuffer is the channel capacity used when Run is given a
// non-positive buffer size.
const DefaultBuffer = 64

// ErrEmptyReply is reported when a producer completes without emitting any
// text.
var ErrEmptyReply = errors.New("provider returned an empty reply")

// Event is one item of a normalized reply stream.
type Event struct {
	// Delta is a non-empty text fragment. Empty on terminal events.
	Delta string
	// Done marks successful completion; Text then holds the full reply.
	Done bool
	Text string
	// Err marks failure. No further events follow.
	Err error
}

// Terminal reports whether e ends the stream.
func (e Event) Terminal() bool { return e.Done || e.Err != nil }

// Sink accumulates fragments and forwards each non-empty one to the
// consumer. It is owned by a single producer goroutine.
type Sink struct {
	out    chan<- Event
	buf    strings.Builder
	chunks int
}

// Emit forwards delta unless it is empty. It blocks until the consumer takes
// the event or ctx is done.
func (s *Sink) Emit(ctx context.Context, delta string) error {
	if delta == "" {
		return nil
	}
	select {
	case s.out <- Event{Delta: delta}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.buf.WriteString(delta)
	s.chunks++
	return nil
}

// Text returns everything emitted so far.
func (s *Sink) Text() string { return s.buf.String() }

// Chunks returns the number of non-empty fragments emitted.
func (s *Sink) Chunks() int { return s.chunks }

// Producer writes a reply into the sink. Returning nil completes the stream.
type Producer func(ctx context.Context, sink *Sink) error

// Run starts produce in its own goroutine and returns the normalized event
// channel. The channel is closed after the terminal event. A producer that
// succeeds without emitting anything terminates with ErrEmptyReply.
func Run(ctx context.Context, buffer int, produce Producer) <-chan Event {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)
	go func() {
		defer close(ch)
		sink := &Sink{out: ch}
		err := produce(ctx, sink)
		if err == nil && strings.TrimSpace(sink.Text()) == "" {
			err = ErrEmptyReply
		}
		terminal := Event{Done: true, Text: sink.Text()}
		if err != nil {
			terminal = Event{Err: err}
		}
		// The terminal event is always delivered unless the consumer has
		// gone away, in which case ctx is done and nobody is listening.
		select {
		case ch <- terminal:
		case <-ctx.Done():
		}
	}()
	return ch
}

// Single emits a complete single-body reply as one fragment.
func Single(ctx context.Context, sink *Sink, text string) error {
	return sink.Emit(ctx, text)
}

// Collect drains events, calling onDelta for each fragment, and returns the
// final text or the terminal error. A channel that closes without a terminal
// event reports ctx's error, or ErrTruncated when ctx is still live.
func Collect(ctx context.Context, events <-chan Event, onDelta func(string)) (string, error) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if err := ctx.Err(); err != nil {
					return "", err
				}
				return "", ErrTruncated
			}
			switch {
			case ev.Err != nil:
				return "", ev.Err
			case ev.Done:
				return ev.Text, nil
			case onDelta != nil:
				onDelta(ev.Delta)
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// ErrTruncated is returned by Collect when the stream ends without a
// terminal event.
var ErrTruncated = errors.New("stream ended without completion")

// EstimateTokens approximates a token count by counting whitespace separated
// words. It is an estimate for display and cost hints, not a billing figure.
func EstimateTokens(text string) int {
	return len(strings.Fields(text))
}
