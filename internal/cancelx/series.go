// Package cancelx provides cancellation primitives for the sync pipeline:
// a Series that hands out contexts where each new context cancels the
// previous one, and a Scheduler that debounces a single action on top of it.
package cancelx

import (
	"context"
	"errors"
	"sync"
)

// ErrSeriesClosed is returned by Next after the series has been closed.
var ErrSeriesClosed = errors.New("cancelx: series closed")

// Series produces a monotonic sequence of contexts. Requesting the next
// context cancels the previous one. Every produced context is also canceled
// when the constructor-supplied super context is canceled or the series is
// closed.
type Series struct {
	mu     sync.Mutex
	super  context.Context
	cancel context.CancelFunc // cancels the current context
	closed bool
}

// NewSeries creates a series parented to super. A nil super behaves like
// context.Background().
func NewSeries(super context.Context) *Series {
	if super == nil {
		super = context.Background()
	}
	return &Series{super: super}
}

// Next cancels the previously issued context (if any) and returns a fresh
// one. The returned context is canceled when: Next is called again, external
// is canceled, the super context is canceled, or the series is closed.
// external may be nil.
func (s *Series) Next(external context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSeriesClosed
	}

	// Swap happens under the lock so concurrent callers never observe a
	// half-replaced entry.
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithCancel(s.super)
	if external != nil {
		stop := context.AfterFunc(external, cancel)
		prev := cancel
		cancel = func() {
			stop()
			prev()
		}
	}
	s.cancel = cancel

	return ctx, nil
}

// Close cancels the current context and marks the series unusable. Double
// close is a no-op.
func (s *Series) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
