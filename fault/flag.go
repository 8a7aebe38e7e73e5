// Package fault implements the shared fault flag and the watcher that
// flushes the intake channels when it is raised.
package fault

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var errUnknown = errors.New("fault raised")

// Flag is a binary signal: any number of raises before the watcher takes it
// count as one fault, reported with the latest reason.
type Flag struct {
	// c wakes Take. The fault itself is pending and reason.
	c chan struct{}

	mx      sync.Mutex
	pending bool
	reason  error

	raised   atomic.Uint64
	consumed atomic.Uint64
}

func NewFlag() *Flag {
	return &Flag{c: make(chan struct{}, 1)}
}

// Raise sets the flag. It never blocks.
func (f *Flag) Raise(reason error) {
	if reason == nil {
		reason = errUnknown
	}
	f.raised.Add(1)
	f.mx.Lock()
	f.pending = true
	f.reason = reason
	f.mx.Unlock()

	select {
	case f.c <- struct{}{}:
	default:
	}
}

// Pending reports whether the flag is set and not yet taken.
func (f *Flag) Pending() bool {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.pending
}

// Raised is the total number of Raise calls.
func (f *Flag) Raised() uint64 { return f.raised.Load() }

// Consumed is the number of times the flag has been taken. Stages compare it
// across a long-running job to notice that a fault was handled meanwhile.
func (f *Flag) Consumed() uint64 { return f.consumed.Load() }

// Take blocks until the flag is set, clears it and returns the most recent
// reason.
func (f *Flag) Take(ctx context.Context) (reason, err error) {
	for {
		select {
		case <-f.c:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		f.mx.Lock()
		if !f.pending {
			// wake-up left by a raise that was taken with the previous fault
			f.mx.Unlock()
			continue
		}
		reason = f.reason
		f.pending = false
		f.reason = nil
		f.mx.Unlock()

		f.consumed.Add(1)
		return reason, nil
	}
}
