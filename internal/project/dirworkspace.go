package project

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// DirectoryWorkspace is a filesystem-backed Workspace for standalone runs,
// where no IDE host supplies live project objects. Each configured root
// becomes one project; its weft documents are discovered by walking the
// tree. The view refreshes on Load, not continuously.
type DirectoryWorkspace struct {
	roots []string

	mu       sync.RWMutex
	projects map[string]*WorkspaceProject
}

// NewDirectoryWorkspace creates a workspace over the given root
// directories.
func NewDirectoryWorkspace(roots []string) *DirectoryWorkspace {
	return &DirectoryWorkspace{
		roots:    roots,
		projects: make(map[string]*WorkspaceProject),
	}
}

// Load scans the roots and rebuilds the project set. Roots that do not
// exist are skipped; other walk errors abort.
func (w *DirectoryWorkspace) Load() error {
	projects := make(map[string]*WorkspaceProject)

	for _, root := range w.roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("project: resolving root %s: %w", root, err)
		}
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			continue
		}

		wp, err := scanRoot(abs)
		if err != nil {
			return err
		}
		projects[wp.ID] = wp
	}

	w.mu.Lock()
	w.projects = projects
	w.mu.Unlock()
	return nil
}

// Project implements the Workspace interface.
func (w *DirectoryWorkspace) Project(id string) (*WorkspaceProject, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	wp, ok := w.projects[id]
	return wp, ok
}

// Projects implements the Workspace interface.
func (w *DirectoryWorkspace) Projects() []*WorkspaceProject {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*WorkspaceProject, 0, len(w.projects))
	for _, wp := range w.projects {
		out = append(out, wp)
	}
	return out
}

// Seed populates a store with snapshots for every loaded project and opens
// the solution, which triggers the detector's bootstrap pass.
func (w *DirectoryWorkspace) Seed(store *Store) {
	w.mu.RLock()
	projects := make([]*WorkspaceProject, 0, len(w.projects))
	for _, wp := range w.projects {
		projects = append(projects, wp)
	}
	w.mu.RUnlock()

	store.Update(func(tx *Tx) {
		for _, wp := range projects {
			tx.Put(newSnapshot(wp))
		}
		tx.OpenSolution()
	})
}

// Resync reconciles a previously seeded store with the current workspace
// view after a rescan: new projects are added, vanished projects removed,
// and stale document sets refreshed. Resolved state on surviving snapshots
// is preserved.
func (w *DirectoryWorkspace) Resync(store *Store) {
	w.mu.RLock()
	projects := make([]*WorkspaceProject, 0, len(w.projects))
	for _, wp := range w.projects {
		projects = append(projects, wp)
	}
	w.mu.RUnlock()

	store.Update(func(tx *Tx) {
		seen := make(map[Key]bool, len(projects))
		for _, wp := range projects {
			key := wp.Key()
			seen[key] = true
			cur := tx.Get(key)
			if cur == nil {
				tx.Put(newSnapshot(wp))
				continue
			}
			docs := wp.DocumentHandles()
			if !slices.Equal(cur.Documents, docs) {
				tx.Put(cur.WithDocuments(docs))
			}
		}
		for _, key := range tx.Keys() {
			if !seen[key] {
				tx.Remove(key)
			}
		}
	})
}

func newSnapshot(wp *WorkspaceProject) *Snapshot {
	return &Snapshot{
		Key:            wp.Key(),
		FilePath:       wp.FilePath,
		DisplayName:    wp.RootNamespace,
		RootNamespace:  wp.RootNamespace,
		WorkspaceID:    wp.ID,
		Documents:      wp.DocumentHandles(),
		WorkspaceState: EmptyWorkspaceState(),
	}
}

// Locate maps a file path to the project whose root contains it. The
// longest matching root wins when roots nest.
func (w *DirectoryWorkspace) Locate(path string) (Key, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Key{}, false
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	var best *WorkspaceProject
	for _, wp := range w.projects {
		root := wp.ID
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			if best == nil || len(root) > len(best.ID) {
				best = wp
			}
		}
	}
	if best == nil {
		return Key{}, false
	}
	return best.Key(), true
}

func scanRoot(root string) (*WorkspaceProject, error) {
	var docs []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if ClassifyFile(path) != FileKindUnknown || IsGeneratedFile(path) {
			docs = append(docs, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("project: scanning %s: %w", root, err)
	}

	return &WorkspaceProject{
		ID:            root,
		FilePath:      filepath.Join(root, "weft.project.yml"),
		OutputDir:     filepath.Join(root, ".weft", "out"),
		RootNamespace: filepath.Base(root),
		DocumentPaths: docs,
	}, nil
}
