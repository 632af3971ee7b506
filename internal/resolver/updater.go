package resolver

import (
	"context"
	"errors"
	"sync"

	"github.com/weftlang/weftsync/internal/logging"
	"github.com/weftlang/weftsync/internal/project"
)

// inflightState tracks where an in-flight update is in its lifecycle.
type inflightState int

const (
	inflightRunning inflightState = iota
	inflightCompleted
	inflightCanceled
)

// inflight is the per-key bookkeeping for a running update: its cancel
// func, completion signal, and state. At most one inflight entry is running
// per key; enqueueing a new update cancels and replaces the existing one.
type inflight struct {
	cancel context.CancelFunc
	done   chan struct{}
	state  inflightState
}

// Sink receives recomputed project info. It is the publication boundary;
// the updater does not care whether it writes files or streams.
type Sink interface {
	Publish(ctx context.Context, info *project.Info) error
	PublishRemoval(ctx context.Context, key project.Key, outputDir string) error
}

// Updater is the recomputation engine. For each dequeued work item it
// resolves the project's live state, invokes the metadata resolver under a
// process-wide single-concurrency gate, applies the result back into the
// store through a guarded update, and hands the fresh snapshot to the sink.
type Updater struct {
	store     *project.Store
	workspace project.Workspace
	resolver  MetadataResolver
	sink      Sink
	logger    logging.Logger

	// gate serializes resolution across all projects: metadata payloads
	// can reach tens of megabytes, so one in flight bounds peak memory.
	gate chan struct{}

	mu       sync.Mutex
	inflight map[project.Key]*inflight
	closed   bool

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

// NewUpdater creates an updater. sink may be nil, in which case results
// only land in the store.
func NewUpdater(store *project.Store, workspace project.Workspace, resolver MetadataResolver, sink Sink, logger logging.Logger) *Updater {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Updater{
		store:      store,
		workspace:  workspace,
		resolver:   resolver,
		sink:       sink,
		logger:     logger.WithComponent("updater"),
		gate:       make(chan struct{}, 1),
		inflight:   make(map[project.Key]*inflight),
		rootCtx:    ctx,
		rootCancel: cancel,
	}
}

// ProcessBatch is the work-queue callback: it dispatches each drained work
// item. Updates run asynchronously (cancel-and-replace per key); removals
// run inline since they only clear caches and publish a marker.
func (u *Updater) ProcessBatch(ctx context.Context, batch map[project.Key]project.WorkItem) {
	for _, item := range batch {
		switch item.Kind {
		case project.WorkUpdate:
			u.EnqueueUpdate(item.Key, item.WorkspaceID)
		case project.WorkRemoval:
			u.ProcessRemoval(ctx, item.Key, item.OutputDir)
		}
	}
}

// EnqueueUpdate starts (or restarts) resolution for a project key. Any
// update already running for the key is canceled first; new value wins.
func (u *Updater) EnqueueUpdate(key project.Key, workspaceID string) {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return
	}
	if prev, ok := u.inflight[key]; ok && prev.state == inflightRunning {
		prev.state = inflightCanceled
		prev.cancel()
	}

	ctx, cancel := context.WithCancel(u.rootCtx)
	entry := &inflight{cancel: cancel, done: make(chan struct{})}
	u.inflight[key] = entry
	u.mu.Unlock()

	go u.run(ctx, entry, key, workspaceID)
}

// ProcessRemoval tears down published state for a removed project: the
// in-flight update (if any) is canceled, per-project resolver caches are
// evicted, and a removal marker is published keyed by the last known output
// directory.
func (u *Updater) ProcessRemoval(ctx context.Context, key project.Key, outputDir string) {
	u.mu.Lock()
	if prev, ok := u.inflight[key]; ok {
		if prev.state == inflightRunning {
			prev.state = inflightCanceled
			prev.cancel()
		}
		delete(u.inflight, key)
	}
	u.mu.Unlock()

	u.resolver.Evict(key)

	if u.sink == nil {
		return
	}
	if err := u.sink.PublishRemoval(ctx, key, outputDir); err != nil {
		u.logger.Error(ctx, err, "publishing removal", "project", key.String())
	}
}

// WaitForKey blocks until no update is in flight for the key, or ctx is
// done. Test synchronization only.
func (u *Updater) WaitForKey(ctx context.Context, key project.Key) error {
	for {
		u.mu.Lock()
		entry, ok := u.inflight[key]
		u.mu.Unlock()
		if !ok || entry.state != inflightRunning {
			return nil
		}
		select {
		case <-entry.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close cancels all in-flight updates and blocks further enqueues. Double
// close is a no-op.
func (u *Updater) Close() {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return
	}
	u.closed = true
	u.mu.Unlock()

	u.rootCancel()
}

// run executes one resolution attempt for a key.
func (u *Updater) run(ctx context.Context, entry *inflight, key project.Key, workspaceID string) {
	defer close(entry.done)

	err := u.resolve(ctx, key, workspaceID)

	u.mu.Lock()
	if entry.state == inflightRunning {
		entry.state = inflightCompleted
	}
	if u.inflight[key] == entry {
		delete(u.inflight, key)
	}
	u.mu.Unlock()

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		u.logger.Trace(ctx, "resolution canceled", "project", key.String())
	default:
		// Recoverable: no update this round, never fatal to the host.
		u.logger.Error(ctx, err, "resolution failed", "project", key.String())
	}
}

func (u *Updater) resolve(ctx context.Context, key project.Key, workspaceID string) error {
	// Race with removal: the snapshot may already be gone. Not an error.
	snap, ok := u.store.Snapshot(key)
	if !ok {
		u.logger.Trace(ctx, "project gone before resolution", "project", key.String())
		return nil
	}

	// The live project may be absent during teardown; that is the signal
	// to publish the default empty state.
	var wp *project.WorkspaceProject
	if workspaceID != "" && u.workspace != nil {
		wp, _ = u.workspace.Project(workspaceID)
	}

	// Single-concurrency gate across all projects. It covers resolution
	// only; publication happens after release so a slow sink cannot stall
	// other projects.
	select {
	case u.gate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	released := false
	release := func() {
		if !released {
			released = true
			<-u.gate
		}
	}
	defer release()

	cfg := snap.Configuration
	var state project.WorkspaceState
	var docs []project.DocumentHandle

	if wp == nil {
		state = project.EmptyWorkspaceState()
	} else {
		// Parse-option overrides from the live project apply before
		// resolution so the resolver sees the effective configuration.
		// The snapshot's document set can lag behind rescans, so the
		// live paths replace it here.
		cfg = overrideConfiguration(cfg, wp)
		docs = wp.DocumentHandles()
		snapForResolve := snap.WithResolved(cfg, snap.WorkspaceState).WithDocuments(docs)

		var err error
		state, err = u.resolver.Resolve(ctx, wp, snapForResolve)
		if err != nil {
			return err
		}
	}

	var updated *project.Snapshot
	u.store.Update(func(tx *project.Tx) {
		// Re-check cancellation inside the mutator: a stale write must not
		// race a newer request that has already canceled this one.
		if ctx.Err() != nil {
			return
		}
		current := tx.Get(key)
		if current == nil {
			return
		}
		updated = current.WithResolved(cfg, state)
		if wp != nil {
			updated = updated.WithDocuments(docs)
		}
		tx.Put(updated)
	})
	release()

	if err := ctx.Err(); err != nil {
		return err
	}
	if updated == nil || u.sink == nil {
		return nil
	}
	return u.sink.Publish(ctx, updated)
}

// overrideConfiguration applies the live project's parse options onto the
// snapshot configuration.
func overrideConfiguration(cfg project.Configuration, wp *project.WorkspaceProject) project.Configuration {
	if wp.LanguageVersion != "" {
		cfg.LanguageVersion = wp.LanguageVersion
	}
	if len(wp.PreprocessorSymbols) > 0 {
		cfg.PreprocessorSymbols = append([]string(nil), wp.PreprocessorSymbols...)
	}
	if len(wp.FeatureFlags) > 0 {
		cfg.FeatureFlags = append([]string(nil), wp.FeatureFlags...)
	}
	return cfg
}
