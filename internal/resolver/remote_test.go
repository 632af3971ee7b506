package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlang/weftsync/internal/checksum"
	"github.com/weftlang/weftsync/internal/project"
)

// fakeClient scripts GetDelta/Fetch responses per call.
type fakeClient struct {
	mu         sync.Mutex
	deltas     []*DeltaResult
	deltaErr   error
	fetchErr   error
	fetchItems func(sums []checksum.Checksum) []MetadataItem
	deltaCalls int
	fetchCalls int
	lastSeen   int
}

func (f *fakeClient) GetDelta(ctx context.Context, handle ProjectHandle, lastResultID int) (*DeltaResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deltaCalls++
	f.lastSeen = lastResultID
	if f.deltaErr != nil {
		return nil, f.deltaErr
	}
	if len(f.deltas) == 0 {
		return nil, errors.New("no scripted delta")
	}
	delta := f.deltas[0]
	if len(f.deltas) > 1 {
		f.deltas = f.deltas[1:]
	}
	return delta, nil
}

func (f *fakeClient) Fetch(ctx context.Context, handle ProjectHandle, sums []checksum.Checksum) ([]MetadataItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.fetchItems != nil {
		return f.fetchItems(sums), nil
	}
	items := make([]MetadataItem, 0, len(sums))
	for _, sum := range sums {
		items = append(items, MetadataItem{Checksum: sum, Name: "c"})
	}
	return items, nil
}

func newRemoteFixture(t *testing.T, client *fakeClient) (*RemoteResolver, *project.WorkspaceProject, *project.Snapshot) {
	t.Helper()
	cache, err := NewContentCache(64)
	require.NoError(t, err)

	r := NewRemoteResolver(client, cache, nil)
	wp := &project.WorkspaceProject{ID: "ws-1", OutputDir: "/out/app", LanguageVersion: "1.4"}
	snap := &project.Snapshot{Key: project.NewKey("/out/app")}
	return r, wp, snap
}

func TestRemoteResolverFullResult(t *testing.T) {
	client := &fakeClient{deltas: []*DeltaResult{
		{IsDelta: false, ResultID: 1, Added: []checksum.Checksum{"a", "b", "c"}},
	}}
	r, wp, snap := newRemoteFixture(t, client)

	state, err := r.Resolve(context.Background(), wp, snap)
	require.NoError(t, err)
	assert.Equal(t, []checksum.Checksum{"a", "b", "c"}, state.MetadataChecksums)
	assert.Equal(t, 1, state.ResultID)
	assert.Equal(t, "1.4", state.LanguageVersion)
	assert.Equal(t, -1, client.lastSeen)
}

func TestRemoteResolverDeltaRoundTrip(t *testing.T) {
	client := &fakeClient{deltas: []*DeltaResult{
		{IsDelta: false, ResultID: 1, Added: []checksum.Checksum{"a", "b", "c"}},
		{IsDelta: true, ResultID: 2, Removed: []checksum.Checksum{"b"}, Added: []checksum.Checksum{"d"}},
	}}
	r, wp, snap := newRemoteFixture(t, client)

	_, err := r.Resolve(context.Background(), wp, snap)
	require.NoError(t, err)

	state, err := r.Resolve(context.Background(), wp, snap)
	require.NoError(t, err)

	// d takes b's place, preserving order.
	assert.Equal(t, []checksum.Checksum{"a", "d", "c"}, state.MetadataChecksums)
	assert.Equal(t, 2, state.ResultID)
	assert.Equal(t, 1, client.lastSeen)
}

func TestRemoteResolverResultIDUnchangedSkips(t *testing.T) {
	client := &fakeClient{deltas: []*DeltaResult{
		{IsDelta: false, ResultID: 1, Added: []checksum.Checksum{"a", "b"}},
		{IsDelta: true, ResultID: 1},
		{IsDelta: true, ResultID: 1},
	}}
	r, wp, snap := newRemoteFixture(t, client)

	first, err := r.Resolve(context.Background(), wp, snap)
	require.NoError(t, err)
	fetchesAfterFirst := client.fetchCalls

	second, err := r.Resolve(context.Background(), wp, snap)
	require.NoError(t, err)
	third, err := r.Resolve(context.Background(), wp, snap)
	require.NoError(t, err)

	assert.Equal(t, first.MetadataChecksums, second.MetadataChecksums)
	assert.Equal(t, second.MetadataChecksums, third.MetadataChecksums)
	// Re-applying the same generation fetches nothing.
	assert.Equal(t, fetchesAfterFirst, client.fetchCalls)
}

func TestRemoteResolverNonDeltaDiscardsPriorSet(t *testing.T) {
	client := &fakeClient{deltas: []*DeltaResult{
		{IsDelta: false, ResultID: 1, Added: []checksum.Checksum{"a", "b"}},
		{IsDelta: false, ResultID: 2, Added: []checksum.Checksum{"x"}},
	}}
	r, wp, snap := newRemoteFixture(t, client)

	_, err := r.Resolve(context.Background(), wp, snap)
	require.NoError(t, err)

	state, err := r.Resolve(context.Background(), wp, snap)
	require.NoError(t, err)
	assert.Equal(t, []checksum.Checksum{"x"}, state.MetadataChecksums)
}

func TestRemoteResolverEmptyFetchIsInvariantViolation(t *testing.T) {
	client := &fakeClient{
		deltas: []*DeltaResult{
			{IsDelta: false, ResultID: 1, Added: []checksum.Checksum{"a"}},
		},
		fetchItems: func([]checksum.Checksum) []MetadataItem { return nil },
	}
	r, wp, snap := newRemoteFixture(t, client)

	_, err := r.Resolve(context.Background(), wp, snap)
	assert.ErrorIs(t, err, ErrEmptyFetch)

	// The failed generation must not stick: the next call re-requests from
	// scratch.
	assert.Equal(t, -1, r.lastResultID(snap.Key))
}

func TestRemoteResolverPartialFetchIsAccepted(t *testing.T) {
	client := &fakeClient{
		deltas: []*DeltaResult{
			{IsDelta: false, ResultID: 1, Added: []checksum.Checksum{"a", "b", "c"}},
		},
		fetchItems: func(sums []checksum.Checksum) []MetadataItem {
			return []MetadataItem{{Checksum: sums[0], Name: "only"}}
		},
	}
	r, wp, snap := newRemoteFixture(t, client)

	state, err := r.Resolve(context.Background(), wp, snap)
	require.NoError(t, err)
	assert.Len(t, state.MetadataChecksums, 3)
}

func TestRemoteResolverCachedContentSkipsFetch(t *testing.T) {
	client := &fakeClient{deltas: []*DeltaResult{
		{IsDelta: false, ResultID: 1, Added: []checksum.Checksum{"a", "b"}},
	}}
	cache, err := NewContentCache(64)
	require.NoError(t, err)
	cache.Put(MetadataItem{Checksum: "a"})
	cache.Put(MetadataItem{Checksum: "b"})

	r := NewRemoteResolver(client, cache, nil)
	wp := &project.WorkspaceProject{OutputDir: "/out/app", LanguageVersion: "1.4"}
	snap := &project.Snapshot{Key: project.NewKey("/out/app")}

	_, err = r.Resolve(context.Background(), wp, snap)
	require.NoError(t, err)
	assert.Equal(t, 0, client.fetchCalls)
}

func TestRemoteResolverEvict(t *testing.T) {
	client := &fakeClient{deltas: []*DeltaResult{
		{IsDelta: false, ResultID: 5, Added: []checksum.Checksum{"a"}},
	}}
	r, wp, snap := newRemoteFixture(t, client)

	_, err := r.Resolve(context.Background(), wp, snap)
	require.NoError(t, err)
	assert.Equal(t, 5, r.lastResultID(snap.Key))

	r.Evict(snap.Key)
	assert.Equal(t, -1, r.lastResultID(snap.Key))
}

func TestContentCacheBoundedEviction(t *testing.T) {
	cache, err := NewContentCache(2)
	require.NoError(t, err)

	cache.Put(MetadataItem{Checksum: "a"})
	cache.Put(MetadataItem{Checksum: "b"})
	cache.Put(MetadataItem{Checksum: "c"})

	assert.Equal(t, 2, cache.Len())
	_, ok := cache.Get("a")
	assert.False(t, ok, "least recently used entry must be evicted deterministically")
}
