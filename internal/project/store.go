package project

import (
	"sync"
)

// ChangeKind enumerates the change notifications the store delivers.
type ChangeKind int

const (
	ChangeProjectAdded ChangeKind = iota
	ChangeProjectChanged
	ChangeProjectRemoved
	ChangeDocumentAdded
	ChangeDocumentChanged
	ChangeDocumentRemoved
	ChangeSolutionOpened
	ChangeSolutionClosed
	ChangeSolutionCleared
)

// String returns the string representation of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeProjectAdded:
		return "projectAdded"
	case ChangeProjectChanged:
		return "projectChanged"
	case ChangeProjectRemoved:
		return "projectRemoved"
	case ChangeDocumentAdded:
		return "documentAdded"
	case ChangeDocumentChanged:
		return "documentChanged"
	case ChangeDocumentRemoved:
		return "documentRemoved"
	case ChangeSolutionOpened:
		return "solutionOpened"
	case ChangeSolutionClosed:
		return "solutionClosed"
	case ChangeSolutionCleared:
		return "solutionCleared"
	default:
		return "unknown"
	}
}

// ChangeRecord describes one store mutation. Old and New are the snapshots
// before and after the change; either may be nil. DocumentPath is set for
// document-level changes.
type ChangeRecord struct {
	Kind         ChangeKind
	Key          Key
	Old          *Snapshot
	New          *Snapshot
	DocumentPath string
}

// Handler receives change records. Implementations must not block: records
// are delivered synchronously after the mutation commits, and heavy work
// belongs on the work queue, not the notification path.
type Handler interface {
	OnChange(ChangeRecord)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ChangeRecord)

// OnChange implements Handler.
func (f HandlerFunc) OnChange(rec ChangeRecord) { f(rec) }

// Store is the shared mutable project model. All mutation goes through
// Update, which serializes writers and emits change records to subscribers
// after the transaction commits. Readers see consistent snapshots because
// snapshots are immutable and replaced wholesale.
type Store struct {
	mu       sync.RWMutex
	projects map[Key]*Snapshot

	subMu    sync.RWMutex
	handlers map[*Subscription]Handler
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		projects: make(map[Key]*Snapshot),
		handlers: make(map[*Subscription]Handler),
	}
}

// Subscription identifies a registered handler so it can be removed even
// when the handler value itself is not comparable.
type Subscription struct {
	store *Store
}

// Unsubscribe removes the handler. Safe to call more than once.
func (sub *Subscription) Unsubscribe() {
	sub.store.subMu.Lock()
	defer sub.store.subMu.Unlock()
	delete(sub.store.handlers, sub)
}

// Tx is the mutation surface handed to Update callbacks. It records change
// events which are delivered once the transaction commits.
type Tx struct {
	store   *Store
	changes []ChangeRecord
}

// Get returns the current snapshot for a key, or nil.
// The returned snapshot reflects writes earlier in the same transaction.
func (tx *Tx) Get(key Key) *Snapshot {
	return tx.store.projects[key]
}

// Keys returns all project keys present in the store.
func (tx *Tx) Keys() []Key {
	keys := make([]Key, 0, len(tx.store.projects))
	for k := range tx.store.projects {
		keys = append(keys, k)
	}
	return keys
}

// Put inserts or replaces a project snapshot and records the corresponding
// added/changed event.
func (tx *Tx) Put(snap *Snapshot) {
	old := tx.store.projects[snap.Key]
	tx.store.projects[snap.Key] = snap

	kind := ChangeProjectAdded
	if old != nil {
		kind = ChangeProjectChanged
	}
	tx.changes = append(tx.changes, ChangeRecord{Kind: kind, Key: snap.Key, Old: old, New: snap})
}

// PutDocument records a document-level event for the given path against an
// existing project. The snapshot itself is left untouched; document sets are
// rebuilt from the live workspace when the project is next resolved. Unknown
// keys are a no-op.
func (tx *Tx) PutDocument(key Key, docPath string, kind ChangeKind) {
	snap := tx.store.projects[key]
	if snap == nil {
		return
	}
	tx.changes = append(tx.changes, ChangeRecord{
		Kind:         kind,
		Key:          key,
		Old:          snap,
		New:          snap,
		DocumentPath: docPath,
	})
}

// Remove deletes a project and records the removal. Unknown keys are a
// no-op, not an error: removal races are expected.
func (tx *Tx) Remove(key Key) {
	old := tx.store.projects[key]
	if old == nil {
		return
	}
	delete(tx.store.projects, key)
	tx.changes = append(tx.changes, ChangeRecord{Kind: ChangeProjectRemoved, Key: key, Old: old})
}

// OpenSolution records a solution-opened event. The detector uses it to
// bootstrap state for projects that existed before it subscribed.
func (tx *Tx) OpenSolution() {
	tx.changes = append(tx.changes, ChangeRecord{Kind: ChangeSolutionOpened})
}

// ClearSolution removes every project and records per-project removals
// followed by a solution-cleared event.
func (tx *Tx) ClearSolution() {
	for key, old := range tx.store.projects {
		delete(tx.store.projects, key)
		tx.changes = append(tx.changes, ChangeRecord{Kind: ChangeProjectRemoved, Key: key, Old: old})
	}
	tx.changes = append(tx.changes, ChangeRecord{Kind: ChangeSolutionCleared})
}

// Update runs fn inside the store's write lock and delivers the recorded
// change events to subscribers after the lock is released. Callers must not
// assume state read before Update still holds inside fn; fn receives the
// authoritative view.
func (s *Store) Update(fn func(*Tx)) {
	s.mu.Lock()
	tx := &Tx{store: s}
	fn(tx)
	changes := tx.changes
	s.mu.Unlock()

	if len(changes) == 0 {
		return
	}
	s.subMu.RLock()
	handlers := make([]Handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.subMu.RUnlock()

	for _, h := range handlers {
		for _, rec := range changes {
			h.OnChange(rec)
		}
	}
}

// Snapshot returns the current snapshot for a key.
func (s *Store) Snapshot(key Key) (*Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.projects[key]
	return snap, ok
}

// Snapshots returns every current snapshot.
func (s *Store) Snapshots() []*Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Snapshot, 0, len(s.projects))
	for _, snap := range s.projects {
		out = append(out, snap)
	}
	return out
}

// Subscribe registers a change handler and returns its subscription.
func (s *Store) Subscribe(h Handler) *Subscription {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	sub := &Subscription{store: s}
	s.handlers[sub] = h
	return sub
}
