package detector

import (
	"context"
	"path/filepath"
	"slices"

	"github.com/weftlang/weftsync/internal/logging"
	"github.com/weftlang/weftsync/internal/project"
)

// Enqueuer receives the work items the detector produces. Satisfied by
// *workqueue.BatchQueue[project.Key, project.WorkItem].
type Enqueuer interface {
	Add(key project.Key, item project.WorkItem)
	CancelPending()
}

// ChangeDetector turns store change records into debounced work items. It
// is the only store subscriber on the hot path, so its handler stays cheap:
// classify, look up, enqueue. Recomputation itself happens later, behind
// the queue's quiet window.
type ChangeDetector struct {
	store     *project.Store
	workspace project.Workspace
	queue     Enqueuer
	graph     *project.Graph
	contracts *ContractIndex
	logger    logging.Logger

	sub *project.Subscription
}

// NewChangeDetector creates a detector wired to the store and queue.
func NewChangeDetector(store *project.Store, workspace project.Workspace, queue Enqueuer, logger logging.Logger) *ChangeDetector {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &ChangeDetector{
		store:     store,
		workspace: workspace,
		queue:     queue,
		graph:     project.NewGraph(),
		contracts: NewContractIndex(),
		logger:    logger.WithComponent("detector"),
	}
}

// Graph exposes the project reference graph the detector maintains.
func (d *ChangeDetector) Graph() *project.Graph { return d.graph }

// Start subscribes to the store feed.
func (d *ChangeDetector) Start() {
	d.sub = d.store.Subscribe(project.HandlerFunc(d.onChange))
}

// Close unsubscribes from the store feed.
func (d *ChangeDetector) Close() {
	if d.sub != nil {
		d.sub.Unsubscribe()
		d.sub = nil
	}
}

func (d *ChangeDetector) onChange(rec project.ChangeRecord) {
	ctx := context.Background()

	switch rec.Kind {
	case project.ChangeProjectAdded, project.ChangeProjectChanged:
		d.refreshReferences(rec.New)
		if rec.Kind == project.ChangeProjectChanged && resolutionWriteback(rec.Old, rec.New) {
			// The updater writing its result back emits a project-changed
			// record too. Re-enqueueing it would echo one resolution per
			// window forever, so only changes to the identity fields or
			// the document set schedule work.
			return
		}
		d.enqueueWithDependents(rec.Key)

	case project.ChangeProjectRemoved:
		d.graph.Remove(rec.Key)
		outputDir := rec.Key.String()
		d.logger.Debug(ctx, "project removed, scheduling teardown", "project", outputDir)
		d.queue.Add(rec.Key, project.RemovalItem(rec.Key, outputDir))

	case project.ChangeDocumentAdded, project.ChangeDocumentChanged, project.ChangeDocumentRemoved:
		if !d.relevant(rec) {
			return
		}
		d.logger.Trace(ctx, "relevant document change",
			"project", rec.Key.String(), "path", rec.DocumentPath, "kind", rec.Kind.String())
		d.enqueueWithDependents(rec.Key)

	case project.ChangeSolutionOpened:
		d.bootstrap(ctx)

	case project.ChangeSolutionClosed, project.ChangeSolutionCleared:
		// Per-project removal records precede these; nothing left to do.
	}
}

// relevant decides whether a document change can affect derived project
// state. Weft documents and generated files qualify by name alone; plain
// .go files qualify only when they declare (or declared) a component.
func (d *ChangeDetector) relevant(rec project.ChangeRecord) bool {
	path := rec.DocumentPath
	if project.ClassifyFile(path) != project.FileKindUnknown {
		return true
	}
	if project.IsGeneratedFile(path) {
		return true
	}
	if filepath.Ext(path) != ".go" {
		return false
	}
	if rec.Kind == project.ChangeDocumentRemoved {
		was := d.contracts.WasContractFile(path)
		d.contracts.Evict(path)
		return was
	}
	return d.contracts.IsContractFile(path)
}

// resolutionWriteback reports whether a project-changed record touches only
// the fields a resolution writes back (configuration and workspace state).
// Identity fields and the document set are compared; the resolved fields are
// not, since they differ on every writeback.
func resolutionWriteback(old, new *project.Snapshot) bool {
	if old == nil || new == nil {
		return false
	}
	if old.Key != new.Key || old.FilePath != new.FilePath ||
		old.DisplayName != new.DisplayName || old.RootNamespace != new.RootNamespace ||
		old.WorkspaceID != new.WorkspaceID {
		return false
	}
	return slices.Equal(old.Documents, new.Documents)
}

// enqueueWithDependents schedules recomputation for a project and every
// project that transitively references it. Unknown keys are skipped: the
// project can be gone by the time the record is handled.
func (d *ChangeDetector) enqueueWithDependents(key project.Key) {
	d.enqueueUpdate(key)
	for _, dep := range d.graph.Dependents(key) {
		d.enqueueUpdate(dep)
	}
}

func (d *ChangeDetector) enqueueUpdate(key project.Key) {
	snap, ok := d.store.Snapshot(key)
	if !ok {
		return
	}
	d.queue.Add(key, project.UpdateItem(key, snap.WorkspaceID))
}

// bootstrap schedules every known project once. Runs on solution open so a
// freshly attached workspace converges without waiting for edits.
func (d *ChangeDetector) bootstrap(ctx context.Context) {
	snaps := d.store.Snapshots()
	d.logger.Info(ctx, "solution opened, scheduling full synchronization", "projects", len(snaps))
	for _, snap := range snaps {
		d.refreshReferences(snap)
		d.queue.Add(snap.Key, project.UpdateItem(snap.Key, snap.WorkspaceID))
	}
}

// refreshReferences updates the dependency graph from the live workspace
// view. A missing live project leaves the previous edges in place.
func (d *ChangeDetector) refreshReferences(snap *project.Snapshot) {
	if snap == nil {
		return
	}
	wp, ok := d.workspace.Project(snap.WorkspaceID)
	if !ok {
		return
	}
	d.graph.SetReferences(snap.Key, wp.References)
}
