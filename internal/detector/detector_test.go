package detector

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlang/weftsync/internal/project"
)

// recordingQueue captures enqueued work items in order.
type recordingQueue struct {
	mu       sync.Mutex
	items    []project.WorkItem
	canceled bool
}

func (q *recordingQueue) Add(_ project.Key, item project.WorkItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

func (q *recordingQueue) CancelPending() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.canceled = true
}

func (q *recordingQueue) all() []project.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]project.WorkItem(nil), q.items...)
}

func (q *recordingQueue) reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

type fakeWorkspace struct {
	mu       sync.Mutex
	projects map[string]*project.WorkspaceProject
}

func newFakeWorkspace() *fakeWorkspace {
	return &fakeWorkspace{projects: make(map[string]*project.WorkspaceProject)}
}

func (w *fakeWorkspace) add(wp *project.WorkspaceProject) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.projects[wp.ID] = wp
}

func (w *fakeWorkspace) Project(id string) (*project.WorkspaceProject, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	wp, ok := w.projects[id]
	return wp, ok
}

func (w *fakeWorkspace) Projects() []*project.WorkspaceProject {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*project.WorkspaceProject, 0, len(w.projects))
	for _, wp := range w.projects {
		out = append(out, wp)
	}
	return out
}

type detectorFixture struct {
	store     *project.Store
	workspace *fakeWorkspace
	queue     *recordingQueue
	detector  *ChangeDetector
}

func newDetectorFixture(t *testing.T) *detectorFixture {
	t.Helper()
	f := &detectorFixture{
		store:     project.NewStore(),
		workspace: newFakeWorkspace(),
		queue:     &recordingQueue{},
	}
	f.detector = NewChangeDetector(f.store, f.workspace, f.queue, nil)
	f.detector.Start()
	t.Cleanup(f.detector.Close)
	return f
}

// addProject seeds a snapshot plus its live workspace view and discards the
// work items the seeding itself produced.
func (f *detectorFixture) addProject(outputDir, workspaceID string, refs ...project.Key) project.Key {
	key := project.NewKey(outputDir)
	f.workspace.add(&project.WorkspaceProject{
		ID:         workspaceID,
		OutputDir:  outputDir,
		References: refs,
	})
	f.store.Update(func(tx *project.Tx) {
		tx.Put(&project.Snapshot{Key: key, WorkspaceID: workspaceID})
	})
	f.queue.reset()
	return key
}

func TestDetectorEnqueuesUpdateForWeftDocument(t *testing.T) {
	f := newDetectorFixture(t)
	key := f.addProject("/out/app", "ws-1")

	f.store.Update(func(tx *project.Tx) {
		tx.PutDocument(key, "/src/app/button.weft", project.ChangeDocumentChanged)
	})

	items := f.queue.all()
	require.Len(t, items, 1)
	assert.Equal(t, project.WorkUpdate, items[0].Kind)
	assert.Equal(t, key, items[0].Key)
	assert.Equal(t, "ws-1", items[0].WorkspaceID)
}

func TestDetectorIgnoresResolutionWriteback(t *testing.T) {
	f := newDetectorFixture(t)
	key := f.addProject("/out/app", "ws-1")

	// The updater writing a result back touches only configuration and
	// workspace state; rescheduling it would loop forever.
	f.store.Update(func(tx *project.Tx) {
		tx.Put(tx.Get(key).WithResolved(
			project.Configuration{LanguageVersion: "1.4"},
			project.WorkspaceState{ResultID: 1},
		))
	})
	assert.Empty(t, f.queue.all())

	// A refreshed document set is a real change and schedules work.
	f.store.Update(func(tx *project.Tx) {
		tx.Put(tx.Get(key).WithDocuments([]project.DocumentHandle{
			project.NewDocumentHandle("/src/app", "/src/app/button.weft"),
		}))
	})
	require.Len(t, f.queue.all(), 1)
}

func TestDetectorIgnoresIrrelevantDocument(t *testing.T) {
	f := newDetectorFixture(t)
	key := f.addProject("/out/app", "ws-1")

	f.store.Update(func(tx *project.Tx) {
		tx.PutDocument(key, "/src/app/styles.css", project.ChangeDocumentChanged)
	})

	assert.Empty(t, f.queue.all())
}

func TestDetectorTreatsGeneratedFilesAsRelevant(t *testing.T) {
	f := newDetectorFixture(t)
	key := f.addProject("/out/app", "ws-1")

	f.store.Update(func(tx *project.Tx) {
		tx.PutDocument(key, "/src/app/button_weft.go", project.ChangeDocumentChanged)
	})

	require.Len(t, f.queue.all(), 1)
}

func TestDetectorDetectsComponentContractGoFiles(t *testing.T) {
	f := newDetectorFixture(t)
	key := f.addProject("/out/app", "ws-1")

	dir := t.TempDir()
	contract := filepath.Join(dir, "card.go")
	plain := filepath.Join(dir, "util.go")
	require.NoError(t, os.WriteFile(contract, []byte(`package app

import (
	"context"
	"io"
)

type Card struct{}

func (c *Card) Render(ctx context.Context, w io.Writer) error { return nil }
`), 0o644))
	require.NoError(t, os.WriteFile(plain, []byte(`package app

func Sum(a, b int) int { return a + b }
`), 0o644))

	f.store.Update(func(tx *project.Tx) {
		tx.PutDocument(key, contract, project.ChangeDocumentChanged)
	})
	require.Len(t, f.queue.all(), 1, "component declaration should be relevant")

	f.queue.reset()
	f.store.Update(func(tx *project.Tx) {
		tx.PutDocument(key, plain, project.ChangeDocumentChanged)
	})
	assert.Empty(t, f.queue.all(), "plain helper file should be irrelevant")
}

func TestDetectorRemovalOfContractFileIsRelevantOnce(t *testing.T) {
	f := newDetectorFixture(t)
	key := f.addProject("/out/app", "ws-1")

	dir := t.TempDir()
	contract := filepath.Join(dir, "card.go")
	require.NoError(t, os.WriteFile(contract, []byte(`package app

import (
	"context"
	"io"
)

type Card struct{}

func (c *Card) Render(ctx context.Context, w io.Writer) error { return nil }
`), 0o644))

	// Sight it once so the index knows it, then remove it.
	f.store.Update(func(tx *project.Tx) {
		tx.PutDocument(key, contract, project.ChangeDocumentAdded)
	})
	f.queue.reset()
	require.NoError(t, os.Remove(contract))

	f.store.Update(func(tx *project.Tx) {
		tx.PutDocument(key, contract, project.ChangeDocumentRemoved)
	})
	require.Len(t, f.queue.all(), 1, "removal of a known component file is relevant")

	// The cache entry is evicted with the removal, so a second removal
	// record for the same path is noise.
	f.queue.reset()
	f.store.Update(func(tx *project.Tx) {
		tx.PutDocument(key, contract, project.ChangeDocumentRemoved)
	})
	assert.Empty(t, f.queue.all())
}

func TestDetectorFansOutToDependents(t *testing.T) {
	f := newDetectorFixture(t)
	libKey := f.addProject("/out/lib", "ws-lib")
	appKey := f.addProject("/out/app", "ws-app", libKey)

	f.store.Update(func(tx *project.Tx) {
		tx.PutDocument(libKey, "/src/lib/button.weft", project.ChangeDocumentChanged)
	})

	items := f.queue.all()
	require.Len(t, items, 2)
	keys := []project.Key{items[0].Key, items[1].Key}
	assert.Contains(t, keys, libKey)
	assert.Contains(t, keys, appKey)
}

func TestDetectorEnqueuesRemovalAndDropsGraphEdges(t *testing.T) {
	f := newDetectorFixture(t)
	libKey := f.addProject("/out/lib", "ws-lib")
	appKey := f.addProject("/out/app", "ws-app", libKey)

	f.store.Update(func(tx *project.Tx) {
		tx.Remove(appKey)
	})

	items := f.queue.all()
	require.Len(t, items, 1)
	assert.Equal(t, project.WorkRemoval, items[0].Kind)
	assert.Equal(t, appKey, items[0].Key)
	assert.Equal(t, appKey.String(), items[0].OutputDir)

	// With the app gone, changes in the library no longer fan out.
	f.queue.reset()
	f.store.Update(func(tx *project.Tx) {
		tx.PutDocument(libKey, "/src/lib/button.weft", project.ChangeDocumentChanged)
	})
	items = f.queue.all()
	require.Len(t, items, 1)
	assert.Equal(t, libKey, items[0].Key)
}

func TestDetectorBootstrapsOnSolutionOpen(t *testing.T) {
	f := newDetectorFixture(t)
	aKey := f.addProject("/out/a", "ws-a")
	bKey := f.addProject("/out/b", "ws-b")

	f.store.Update(func(tx *project.Tx) {
		tx.OpenSolution()
	})

	items := f.queue.all()
	require.Len(t, items, 2)
	keys := []project.Key{items[0].Key, items[1].Key}
	assert.Contains(t, keys, aKey)
	assert.Contains(t, keys, bKey)
	for _, item := range items {
		assert.Equal(t, project.WorkUpdate, item.Kind)
	}
}

func TestDetectorSkipsUnknownProjects(t *testing.T) {
	f := newDetectorFixture(t)

	// A record for a key with no snapshot must be a no-op, not a panic.
	f.detector.onChange(project.ChangeRecord{
		Kind:         project.ChangeDocumentChanged,
		Key:          project.NewKey("/out/ghost"),
		DocumentPath: "/src/ghost/page.wtml",
	})

	assert.Empty(t, f.queue.all())
}
