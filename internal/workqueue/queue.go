// Package workqueue implements the debounced, coalescing work queue that
// drives project recomputation. Work items are tagged by key; rapid repeated
// enqueues for the same key collapse to a single entry (most recent value
// wins), and a batch callback drains every pending key once a quiet period
// elapses with no new arrivals.
package workqueue

import (
	"context"
	"sync"
	"time"
)

// MaxPendingKeys bounds the pending map. If the limit is reached a flush is
// forced immediately instead of waiting out the debounce window, preventing
// unbounded growth under pathological churn.
const MaxPendingKeys = 4096

// BatchFunc processes one drained batch. The context is canceled when the
// queue is closed; implementations must treat that as a quiet abort.
type BatchFunc[K comparable, V any] func(ctx context.Context, batch map[K]V)

// BatchQueue coalesces work items per key and hands batches to a callback
// after a debounce window of quiescence. Producers may call Add concurrently;
// the consumer drains on its own schedule.
type BatchQueue[K comparable, V any] struct {
	mu        sync.Mutex
	pending   map[K]V
	timer     *time.Timer
	idleTimer *time.Timer
	window    time.Duration
	process   BatchFunc[K, V]
	onIdle    func()

	// inFlight is closed when the currently executing batch finishes.
	inFlight chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewBatchQueue creates a queue with the given debounce window. The process
// callback runs on its own goroutine once per drained batch; onIdle may be
// nil and fires once whenever a full window elapses after a batch completes
// with nothing new pending (used by tests and telemetry, not
// behavior-critical).
func NewBatchQueue[K comparable, V any](window time.Duration, process BatchFunc[K, V], onIdle func()) *BatchQueue[K, V] {
	if process == nil {
		panic("workqueue: nil process callback")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchQueue[K, V]{
		pending: make(map[K]V),
		window:  window,
		process: process,
		onIdle:  onIdle,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add enqueues work for a key. If work for the same key is already pending,
// the new value replaces it; the debounce timer restarts either way. Work
// added while a batch is executing lands in the next batch, never the
// current one. Add on a closed queue is a no-op.
func (q *BatchQueue[K, V]) Add(key K, value V) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	// New work interrupts a pending idle notification.
	if q.idleTimer != nil {
		q.idleTimer.Stop()
		q.idleTimer = nil
	}

	q.pending[key] = value

	if len(q.pending) >= MaxPendingKeys {
		if q.timer != nil {
			q.timer.Stop()
			q.timer = nil
		}
		q.flushLocked()
		return
	}

	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(q.window, q.flush)
}

// CancelPending discards all pending, not-yet-started work. A batch already
// executing is not aborted here; it observes cancellation through its context
// only when the queue is closed.
func (q *BatchQueue[K, V]) CancelPending() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.pending = make(map[K]V)
}

// Close discards pending work, cancels the batch context, and blocks further
// Add calls. Double-close is a no-op.
func (q *BatchQueue[K, V]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	if q.idleTimer != nil {
		q.idleTimer.Stop()
		q.idleTimer = nil
	}
	q.pending = make(map[K]V)
	q.mu.Unlock()

	q.cancel()
}

// WaitForCurrentBatch blocks until the batch executing at call time (if any)
// completes, or ctx is done. Pending-but-not-started work is not waited for.
func (q *BatchQueue[K, V]) WaitForCurrentBatch(ctx context.Context) error {
	q.mu.Lock()
	inFlight := q.inFlight
	q.mu.Unlock()

	if inFlight == nil {
		return nil
	}
	select {
	case <-inFlight:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HasPending reports whether any work is waiting for the debounce window.
func (q *BatchQueue[K, V]) HasPending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) > 0
}

// flush runs when the debounce timer expires.
func (q *BatchQueue[K, V]) flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.flushLocked()
}

// flushLocked drains the pending map and starts the batch goroutine.
// Caller must hold q.mu.
func (q *BatchQueue[K, V]) flushLocked() {
	if q.closed {
		return
	}
	q.timer = nil

	if len(q.pending) == 0 {
		return
	}

	batch := q.pending
	q.pending = make(map[K]V)

	done := make(chan struct{})
	q.inFlight = done

	go func() {
		defer func() {
			close(done)
			q.mu.Lock()
			if q.inFlight == done {
				q.inFlight = nil
			}
			// The batch finishing is not idleness yet; a full quiet
			// window must elapse with nothing new arriving first.
			if !q.closed && len(q.pending) == 0 && q.onIdle != nil {
				if q.idleTimer != nil {
					q.idleTimer.Stop()
				}
				q.idleTimer = time.AfterFunc(q.window, q.idle)
			}
			q.mu.Unlock()
		}()
		q.process(q.ctx, batch)
	}()
}

// idle runs when the idle timer expires. Work or a batch arriving between the
// timer firing and the lock being taken suppresses the notification.
func (q *BatchQueue[K, V]) idle() {
	q.mu.Lock()
	q.idleTimer = nil
	fire := !q.closed && len(q.pending) == 0 && q.inFlight == nil
	q.mu.Unlock()

	if fire {
		q.onIdle()
	}
}
