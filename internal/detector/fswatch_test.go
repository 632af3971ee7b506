package detector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlang/weftsync/internal/project"
)

func TestWatcherExcludePatterns(t *testing.T) {
	w := &Watcher{excludes: []string{"**/node_modules/**", "*.tmp", "**/.git/**"}}

	assert.True(t, w.excluded("/src/app/node_modules/pkg/index.js"))
	assert.True(t, w.excluded("/src/app/scratch.tmp"))
	assert.True(t, w.excluded("/src/app/.git/HEAD"))
	assert.False(t, w.excluded("/src/app/button.weft"))
}

// waitForRecord collects store records until one matches or the deadline
// passes. Filesystem notification latency varies by platform.
func waitForRecord(t *testing.T, records <-chan project.ChangeRecord, match func(project.ChangeRecord) bool) project.ChangeRecord {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case rec := <-records:
			if match(rec) {
				return rec
			}
		case <-deadline:
			t.Fatal("timed out waiting for store record")
		}
	}
}

func TestWatcherFeedsStore(t *testing.T) {
	dir := t.TempDir()
	key := project.NewKey(filepath.Join(dir, "out"))

	store := project.NewStore()
	store.Update(func(tx *project.Tx) {
		tx.Put(&project.Snapshot{Key: key, WorkspaceID: "ws-1"})
	})

	records := make(chan project.ChangeRecord, 64)
	sub := store.Subscribe(project.HandlerFunc(func(rec project.ChangeRecord) {
		records <- rec
	}))
	defer sub.Unsubscribe()

	locate := func(string) (project.Key, bool) { return key, true }
	w, err := NewWatcher(store, locate, []string{"**/*.tmp"}, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.AddRecursive(dir))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	docPath := filepath.Join(dir, "button.weft")
	require.NoError(t, os.WriteFile(docPath, []byte("component Button() {}"), 0o644))

	rec := waitForRecord(t, records, func(rec project.ChangeRecord) bool {
		return rec.Kind == project.ChangeDocumentAdded && rec.DocumentPath == docPath
	})
	assert.Equal(t, key, rec.Key)

	require.NoError(t, os.Remove(docPath))
	waitForRecord(t, records, func(rec project.ChangeRecord) bool {
		return rec.Kind == project.ChangeDocumentRemoved && rec.DocumentPath == docPath
	})
}

func TestWatcherIgnoresExcludedFiles(t *testing.T) {
	dir := t.TempDir()
	key := project.NewKey(filepath.Join(dir, "out"))

	store := project.NewStore()
	store.Update(func(tx *project.Tx) {
		tx.Put(&project.Snapshot{Key: key, WorkspaceID: "ws-1"})
	})

	records := make(chan project.ChangeRecord, 64)
	sub := store.Subscribe(project.HandlerFunc(func(rec project.ChangeRecord) {
		records <- rec
	}))
	defer sub.Unsubscribe()

	locate := func(string) (project.Key, bool) { return key, true }
	w, err := NewWatcher(store, locate, []string{"*.tmp"}, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.AddRecursive(dir))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	excludedPath := filepath.Join(dir, "scratch.tmp")
	includedPath := filepath.Join(dir, "page.wtml")
	require.NoError(t, os.WriteFile(excludedPath, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(includedPath, []byte("<h1>hi</h1>"), 0o644))

	// The included file arriving proves the loop ran past the excluded one.
	rec := waitForRecord(t, records, func(rec project.ChangeRecord) bool {
		return rec.DocumentPath != ""
	})
	assert.Equal(t, includedPath, rec.DocumentPath)
}

func TestWatcherDropsUnlocatedPaths(t *testing.T) {
	dir := t.TempDir()

	store := project.NewStore()
	records := make(chan project.ChangeRecord, 64)
	sub := store.Subscribe(project.HandlerFunc(func(rec project.ChangeRecord) {
		records <- rec
	}))
	defer sub.Unsubscribe()

	locate := func(string) (project.Key, bool) { return project.Key{}, false }
	w, err := NewWatcher(store, locate, nil, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.AddRecursive(dir))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.wtml"), []byte("x"), 0o644))

	select {
	case rec := <-records:
		t.Fatalf("unexpected record: %+v", rec)
	case <-time.After(500 * time.Millisecond):
	}
}
