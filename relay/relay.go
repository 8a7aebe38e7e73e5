// Package relay provides the bounded FIFO hand-offs between pipeline stages.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSendTimeout is returned when a channel stays full past its send bound.
var ErrSendTimeout = errors.New("send timed out")

// Chan is a fixed-capacity FIFO with a bounded-wait send. It may have many
// producers; Flush and receives are meant for a single consumer plus the
// fault watcher.
type Chan[T any] struct {
	name    string
	c       chan T
	timeout time.Duration
}

// New allocates a channel. Capacity and timeout must be positive.
func New[T any](name string, capacity int, timeout time.Duration) (*Chan[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("relay %s: invalid capacity %d", name, capacity)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("relay %s: invalid send timeout %s", name, timeout)
	}
	return &Chan[T]{
		name:    name,
		c:       make(chan T, capacity),
		timeout: timeout,
	}, nil
}

func (c *Chan[T]) Name() string           { return c.name }
func (c *Chan[T]) Len() int               { return len(c.c) }
func (c *Chan[T]) Cap() int               { return cap(c.c) }
func (c *Chan[T]) Timeout() time.Duration { return c.timeout }

// C exposes the receive side for select loops.
func (c *Chan[T]) C() <-chan T { return c.c }

// Send enqueues v, waiting at most the channel timeout for room. On timeout
// the item is lost and ErrSendTimeout is returned.
func (c *Chan[T]) Send(ctx context.Context, v T) error {
	select {
	case c.c <- v:
		return nil
	default:
	}

	t := time.NewTimer(c.timeout)
	defer t.Stop()
	select {
	case c.c <- v:
		return nil
	case <-t.C:
		return fmt.Errorf("%s: %w", c.name, ErrSendTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend enqueues v only if there is room right now.
func (c *Chan[T]) TrySend(v T) bool {
	select {
	case c.c <- v:
		return true
	default:
		return false
	}
}

// Recv blocks until an item is available or ctx is done.
func (c *Chan[T]) Recv(ctx context.Context) (T, error) {
	select {
	case v := <-c.c:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Flush discards everything currently queued and returns how many items were
// dropped.
func (c *Chan[T]) Flush() (n int) {
	for {
		select {
		case <-c.c:
			n++
		default:
			return n
		}
	}
}
