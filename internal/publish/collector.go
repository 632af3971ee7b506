package publish

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/weftlang/weftsync/internal/project"
)

// SyncError records one failed publication.
type SyncError struct {
	Project   project.Key
	Op        string
	Err       error
	Timestamp time.Time
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Project.String(), e.Op, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Collector accumulates publication failures across a run. Failures are
// per-project and non-fatal: one project failing to publish must not stop
// the rest of the batch.
type Collector struct {
	mu     sync.RWMutex
	errors []SyncError
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{errors: make([]SyncError, 0)}
}

// Record adds a failure.
func (c *Collector) Record(key project.Key, op string, err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, SyncError{Project: key, Op: op, Err: err, Timestamp: time.Now()})
}

// Errors returns a copy of all recorded failures.
func (c *Collector) Errors() []SyncError {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SyncError, len(c.errors))
	copy(out, c.errors)
	return out
}

// HasErrors reports whether anything failed.
func (c *Collector) HasErrors() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.errors) > 0
}

// Clear discards recorded failures.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = c.errors[:0]
}

// CollectingSink wraps a Sink and records its failures without altering
// them. Callers still see the original error.
type CollectingSink struct {
	Sink      WriterSink
	Collector *Collector
}

// WriterSink is the publication surface the collector wraps. It mirrors the
// updater's sink contract.
type WriterSink interface {
	Publish(ctx context.Context, info *project.Info) error
	PublishRemoval(ctx context.Context, key project.Key, outputDir string) error
}

// Publish forwards to the wrapped sink and records any failure.
func (s *CollectingSink) Publish(ctx context.Context, info *project.Info) error {
	err := s.Sink.Publish(ctx, info)
	s.Collector.Record(info.Key, "publish", err)
	return err
}

// PublishRemoval forwards to the wrapped sink and records any failure.
func (s *CollectingSink) PublishRemoval(ctx context.Context, key project.Key, outputDir string) error {
	err := s.Sink.PublishRemoval(ctx, key, outputDir)
	s.Collector.Record(key, "remove", err)
	return err
}
