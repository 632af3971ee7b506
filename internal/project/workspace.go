package project

import "path/filepath"

// WorkspaceProject is the live, host-owned view of a project. Unlike a
// Snapshot it is transient: it exists only while the host has the project
// loaded, and it disappears during teardown before the removal notification
// arrives.
type WorkspaceProject struct {
	// ID is the host's transient identity for this project instance.
	ID string
	// FilePath is the project file path.
	FilePath string
	// OutputDir is the build output directory the stable Key derives from.
	OutputDir string
	// RootNamespace is the namespace for generated documents.
	RootNamespace string
	// LanguageVersion and PreprocessorSymbols come from the host's parse
	// options and override the snapshot configuration during resolution.
	LanguageVersion     string
	PreprocessorSymbols []string
	// FeatureFlags enables optional language features.
	FeatureFlags []string
	// DocumentPaths lists the project's relevant document files.
	DocumentPaths []string
	// References are the projects this project depends on.
	References []Key
}

// Key returns the stable key for the workspace project.
func (wp *WorkspaceProject) Key() Key {
	return NewKey(wp.OutputDir)
}

// DocumentHandles builds handles for the project's current document paths,
// relative to the project file's directory. Snapshots cache these handles,
// but the live paths are authoritative at resolution time.
func (wp *WorkspaceProject) DocumentHandles() []DocumentHandle {
	dir := filepath.Dir(wp.FilePath)
	docs := make([]DocumentHandle, 0, len(wp.DocumentPaths))
	for _, path := range wp.DocumentPaths {
		docs = append(docs, NewDocumentHandle(dir, path))
	}
	return docs
}

// Workspace resolves live workspace projects by transient id. Lookups may
// fail at any time: a project can be torn down between a change notification
// and the debounced recomputation, and callers treat absence as a normal
// teardown signal, not an error.
type Workspace interface {
	// Project returns the live project for a transient id.
	Project(id string) (*WorkspaceProject, bool)
	// Projects returns every live project.
	Projects() []*WorkspaceProject
}
