package broadcast

import (
	"context"
	"sync"
)

// Message wraps data of type T.
type Message[T any] struct {
	Data T
}

// Subscriber receives messages from a Broadcaster.
type Subscriber[T any] interface {
	// Receive returns the message channel. It is closed when the
	// subscriber is closed or dropped.
	Receive() <-chan Message[T]

	// Close detaches the subscriber. Safe to call more than once.
	Close() error
}

// Broadcaster sends messages to every current subscriber without
// blocking on slow ones.
type Broadcaster[T any] interface {
	// Subscribe attaches a subscriber that lives until ctx is done or the
	// subscriber is closed.
	Subscribe(ctx context.Context) Subscriber[T]

	// Broadcast delivers msg to every subscriber. It returns
	// ErrBroadcasterClosed after Close.
	Broadcast(ctx context.Context, msg Message[T]) error

	Close() error
}

type subscriber[T any] struct {
	ch     chan Message[T]
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
	detach func(*subscriber[T])
}

func newSubscriber[T any](size int, detach func(*subscriber[T])) *subscriber[T] {
	return &subscriber[T]{
		ch:     make(chan Message[T], size),
		done:   make(chan struct{}),
		detach: detach,
	}
}

func (s *subscriber[T]) Receive() <-chan Message[T] { return s.ch }

func (s *subscriber[T]) Close() error {
	if s.shut() && s.detach != nil {
		s.detach(s)
	}
	return nil
}

// shut closes the channels and reports whether this call did it.
func (s *subscriber[T]) shut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.closed = true
	close(s.ch)
	close(s.done)
	return true
}

// send never blocks. A full buffer reports false.
func (s *subscriber[T]) send(msg Message[T]) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}
