package llm

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rivo/uniseg"
)

// Session is a single in-flight generation. Events are produced by a
// background goroutine and handed over one at a time through an unbuffered
// channel, so nothing is generated ahead of the consumer.
//
// Recv returns io.EOF when the generation completed, ErrCancelled once the
// session was cancelled, or the error that ended the generation. After
// cancellation no further events are returned.
type Session struct {
	parent  context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	stopped atomic.Bool // set by Cancel and Close
	events  chan Event
	done    chan struct{}
	err     error // written before done is closed

	mu         sync.Mutex
	history    []Message
	iterations int
	closeOnce  sync.Once
}

type sessionFunc func(ctx context.Context, s *Session) error

func newSession(parent context.Context, history []Message, run sessionFunc) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		parent:  parent,
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan Event),
		done:    make(chan struct{}),
		history: cloneMessages(history),
	}
	go func() {
		err := run(ctx, s)
		if err != nil && ctx.Err() != nil {
			err = ErrCancelled
		}
		s.err = err
		close(s.done)
		cancel()
	}()
	return s
}

// Recv blocks until the next event is available.
func (s *Session) Recv() (Event, error) {
	select {
	case <-s.done:
		return Event{}, s.result()
	default:
	}
	if s.cancelled() {
		return s.interrupted()
	}

	select {
	case ev := <-s.events:
		// The producer cancels its own context on exit; only a stop requested
		// by the consumer or the parent context discards a delivered event.
		if s.cancelled() {
			return s.interrupted()
		}
		return ev, nil
	case <-s.done:
		return Event{}, s.result()
	case <-s.ctx.Done():
		return s.interrupted()
	}
}

// Cancel stops the generation without waiting for the producer to exit.
func (s *Session) Cancel() {
	s.stopped.Store(true)
	s.cancel()
}

// Close cancels the generation and waits for the producer to exit.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.stopped.Store(true)
		s.cancel()
		<-s.done
	})
	return nil
}

// Done is closed once the producer has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// History returns a copy of the working history: the input history plus
// every message appended by completed iterations.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMessages(s.history)
}

// Iterations returns the number of tool-enabled model calls started so far.
func (s *Session) Iterations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.iterations
}

func (s *Session) cancelled() bool {
	return s.stopped.Load() || s.parent.Err() != nil
}

func (s *Session) result() error {
	if s.err != nil {
		return s.err
	}
	return io.EOF
}

// interrupted reports the session's outcome if the producer already exited
// and ErrCancelled otherwise.
func (s *Session) interrupted() (Event, error) {
	select {
	case <-s.done:
		return Event{}, s.result()
	default:
		return Event{}, ErrCancelled
	}
}

func (s *Session) snapshot() []Message {
	return s.History()
}

func (s *Session) appendHistory(msgs ...Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, cloneMessages(msgs)...)
}

func (s *Session) setIteration(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iterations = n
}

// emit hands ev to the consumer, giving up when ctx is cancelled.
func (s *Session) emit(ctx context.Context, ev Event) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ErrCancelled
	}
}

// emitText hands text to the consumer one grapheme cluster at a time.
func (s *Session) emitText(ctx context.Context, text string) error {
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		if err := s.emit(ctx, Event{Type: EventTextDelta, Text: g.Str()}); err != nil {
			return err
		}
	}
	return nil
}
