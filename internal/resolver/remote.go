package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/weftlang/weftsync/internal/checksum"
	"github.com/weftlang/weftsync/internal/logging"
	"github.com/weftlang/weftsync/internal/project"
)

// DeltaResult describes how to transform a previously cached ordered
// checksum set into the new set. When IsDelta is false the receiver must
// discard any prior cached set before applying Added and Removed.
type DeltaResult struct {
	IsDelta  bool                `json:"isDelta"`
	ResultID int                 `json:"resultId"`
	Added    []checksum.Checksum `json:"added"`
	Removed  []checksum.Checksum `json:"removed"`
}

// ProjectHandle identifies a project to the metadata service.
type ProjectHandle struct {
	Key             project.Key `json:"key"`
	FilePath        string      `json:"filePath"`
	LanguageVersion string      `json:"languageVersion"`
}

// MetadataClient is the out-of-process metadata resolution service surface.
// Both calls honor context cancellation and may fail at any time; failures
// are soft and trigger the in-process fallback.
type MetadataClient interface {
	GetDelta(ctx context.Context, handle ProjectHandle, lastResultID int) (*DeltaResult, error)
	Fetch(ctx context.Context, handle ProjectHandle, checksums []checksum.Checksum) ([]MetadataItem, error)
}

// ErrEmptyFetch is the invariant violation raised when the service returns
// zero items for a non-empty fetch request. It fails the resolution attempt
// (falling back in-process), never the process.
var ErrEmptyFetch = errors.New("resolver: metadata fetch returned no items")

// ContentCache is the process-wide bounded checksum-to-metadata cache shared
// across projects. It is constructor-injected so tests get isolated
// instances; eviction is LRU and deterministic, never collector-timed.
type ContentCache struct {
	cache *lru.Cache[checksum.Checksum, MetadataItem]
}

// NewContentCache creates a cache bounded to size entries.
func NewContentCache(size int) (*ContentCache, error) {
	cache, err := lru.New[checksum.Checksum, MetadataItem](size)
	if err != nil {
		return nil, fmt.Errorf("resolver: creating content cache: %w", err)
	}
	return &ContentCache{cache: cache}, nil
}

// Get returns a cached item.
func (c *ContentCache) Get(sum checksum.Checksum) (MetadataItem, bool) {
	return c.cache.Get(sum)
}

// Put stores an item under its checksum.
func (c *ContentCache) Put(item MetadataItem) {
	c.cache.Add(item.Checksum, item)
}

// Len returns the number of cached items.
func (c *ContentCache) Len() int {
	return c.cache.Len()
}

// deltaState is the per-project ordered checksum list and the generation it
// belongs to.
type deltaState struct {
	resultID  int
	checksums []checksum.Checksum
}

// RemoteResolver resolves metadata through the out-of-process service,
// using per-project delta compression and the shared content cache to avoid
// transferring unchanged metadata.
type RemoteResolver struct {
	client MetadataClient
	cache  *ContentCache
	logger logging.Logger

	mu     sync.Mutex
	states map[project.Key]*deltaState
}

// NewRemoteResolver creates a remote resolver. cache must not be nil.
func NewRemoteResolver(client MetadataClient, cache *ContentCache, logger logging.Logger) *RemoteResolver {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &RemoteResolver{
		client: client,
		cache:  cache,
		logger: logger.WithComponent("remote-resolver"),
		states: make(map[project.Key]*deltaState),
	}
}

// Resolve implements MetadataResolver.
func (r *RemoteResolver) Resolve(ctx context.Context, wp *project.WorkspaceProject, snap *project.Snapshot) (project.WorkspaceState, error) {
	key := snap.Key
	handle := ProjectHandle{
		Key:             key,
		FilePath:        wp.FilePath,
		LanguageVersion: wp.LanguageVersion,
	}

	last := r.lastResultID(key)

	delta, err := r.client.GetDelta(ctx, handle, last)
	if err != nil {
		return project.WorkspaceState{}, err
	}
	if delta == nil {
		return project.WorkspaceState{}, errors.New("resolver: metadata service returned no delta")
	}

	// Generation unchanged since the last call: nothing to do.
	if delta.IsDelta && delta.ResultID == last {
		state := r.currentState(key)
		r.logger.Trace(ctx, "delta unchanged, skipping", "project", key.String(), "resultId", delta.ResultID)
		return workspaceState(state, wp.LanguageVersion), nil
	}

	next := r.applyDelta(key, delta)

	if err := r.ensureCached(ctx, handle, next.checksums); err != nil {
		// Roll the generation back so the next attempt re-requests the
		// full delta instead of trusting a set we could not materialize.
		r.dropState(key)
		return project.WorkspaceState{}, err
	}

	r.storeState(key, next)
	return workspaceState(next, wp.LanguageVersion), nil
}

// Evict implements MetadataResolver.
func (r *RemoteResolver) Evict(key project.Key) {
	r.dropState(key)
}

func (r *RemoteResolver) lastResultID(key project.Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.states[key]; ok {
		return state.resultID
	}
	return -1
}

func (r *RemoteResolver) currentState(key project.Key) *deltaState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.states[key]; ok {
		return state
	}
	return &deltaState{resultID: -1}
}

func (r *RemoteResolver) storeState(key project.Key, state *deltaState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[key] = state
}

func (r *RemoteResolver) dropState(key project.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, key)
}

// applyDelta produces the next ordered checksum set. Removed entries are
// replaced in place by added entries where possible, preserving existing
// order; leftover additions append at the end. A non-delta result discards
// the prior set entirely.
func (r *RemoteResolver) applyDelta(key project.Key, delta *DeltaResult) *deltaState {
	var base []checksum.Checksum
	if delta.IsDelta {
		base = r.currentState(key).checksums
	}

	removed := make(map[checksum.Checksum]struct{}, len(delta.Removed))
	for _, sum := range delta.Removed {
		removed[sum] = struct{}{}
	}

	added := delta.Added
	next := make([]checksum.Checksum, 0, len(base)+len(added))
	for _, sum := range base {
		if _, gone := removed[sum]; gone {
			if len(added) > 0 {
				next = append(next, added[0])
				added = added[1:]
			}
			continue
		}
		next = append(next, sum)
	}
	next = append(next, added...)

	return &deltaState{resultID: delta.ResultID, checksums: next}
}

// ensureCached batch-fetches every checksum missing from the content cache.
func (r *RemoteResolver) ensureCached(ctx context.Context, handle ProjectHandle, sums []checksum.Checksum) error {
	var missing []checksum.Checksum
	for _, sum := range sums {
		if _, ok := r.cache.Get(sum); !ok {
			missing = append(missing, sum)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	items, err := r.client.Fetch(ctx, handle, missing)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		// The service acknowledged the request but produced nothing for
		// checksums it previously advertised.
		return fmt.Errorf("%w: requested %d", ErrEmptyFetch, len(missing))
	}
	if len(items) < len(missing) {
		// Partial results degrade gracefully rather than failing outright.
		r.logger.Warn(ctx, nil, "metadata fetch returned partial results",
			"requested", len(missing), "received", len(items))
	}

	for _, item := range items {
		r.cache.Put(item)
	}
	return nil
}

func workspaceState(state *deltaState, languageVersion string) project.WorkspaceState {
	return project.WorkspaceState{
		MetadataChecksums: append([]checksum.Checksum(nil), state.checksums...),
		LanguageVersion:   languageVersion,
		ResultID:          state.resultID,
	}
}
