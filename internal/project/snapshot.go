package project

import (
	"github.com/weftlang/weftsync/internal/checksum"
)

// Configuration holds the language configuration a project compiles under.
type Configuration struct {
	// LanguageVersion is the weft language version (e.g. "1.4").
	LanguageVersion string `json:"languageVersion"`
	// PreprocessorSymbols are conditional-compilation symbols sourced from
	// the live workspace project's parse options.
	PreprocessorSymbols []string `json:"preprocessorSymbols,omitempty"`
	// FeatureFlags enables optional language features.
	FeatureFlags []string `json:"featureFlags,omitempty"`
}

// WorkspaceState is the resolved derived state of a project: the ordered
// metadata checksum collection plus the language version it was resolved
// under. It is replaced wholesale on every successful resolution.
type WorkspaceState struct {
	// MetadataChecksums is the ordered checksum set of the resolved
	// component metadata collection.
	MetadataChecksums []checksum.Checksum `json:"metadataChecksums"`
	// LanguageVersion records the version the metadata was resolved for.
	LanguageVersion string `json:"languageVersion"`
	// ResultID is the resolution generation this state came from; -1 for
	// the default state.
	ResultID int `json:"resultId"`
}

// EmptyWorkspaceState is the default state published during teardown or
// before the first resolution. It is a distinct value from "unchanged": a
// transition from a non-empty state to the empty state must publish.
func EmptyWorkspaceState() WorkspaceState {
	return WorkspaceState{ResultID: -1}
}

// IsEmpty reports whether the state is the default empty state.
func (ws WorkspaceState) IsEmpty() bool {
	return len(ws.MetadataChecksums) == 0 && ws.ResultID == -1
}

// Snapshot is an immutable, derived view of a project. A new resolution
// replaces the prior snapshot for the same key entirely; snapshots are never
// mutated in place.
type Snapshot struct {
	// Key is the stable project identity.
	Key Key `json:"key"`
	// FilePath is the project file path.
	FilePath string `json:"filePath"`
	// DisplayName is the human-readable project name.
	DisplayName string `json:"displayName"`
	// RootNamespace is the namespace generated documents are placed in.
	RootNamespace string `json:"rootNamespace"`
	// WorkspaceID is the transient identity of the live workspace project
	// this snapshot was built from; empty when the project is detached.
	WorkspaceID string `json:"workspaceId,omitempty"`
	// Configuration is the language configuration.
	Configuration Configuration `json:"configuration"`
	// Documents is the ordered set of document handles.
	Documents []DocumentHandle `json:"documents"`
	// WorkspaceState is the resolved derived state.
	WorkspaceState WorkspaceState `json:"workspaceState"`
}

// WithResolved returns a copy of the snapshot with the configuration and
// workspace state replaced. Only these two fields change on resolution; the
// document set and identity fields carry over.
func (s *Snapshot) WithResolved(cfg Configuration, ws WorkspaceState) *Snapshot {
	out := *s
	out.Configuration = cfg
	out.WorkspaceState = ws
	out.Documents = append([]DocumentHandle(nil), s.Documents...)
	return &out
}

// WithDocuments returns a copy of the snapshot with a new document set.
func (s *Snapshot) WithDocuments(docs []DocumentHandle) *Snapshot {
	out := *s
	out.Documents = append([]DocumentHandle(nil), docs...)
	return &out
}

// Document returns the handle for a file path, if present.
func (s *Snapshot) Document(filePath string) (DocumentHandle, bool) {
	for _, d := range s.Documents {
		if d.FilePath == filePath {
			return d, true
		}
	}
	return DocumentHandle{}, false
}

// Info is the serialized form of a snapshot published to consumers. It is
// identical in shape to Snapshot today but kept as its own type so the wire
// surface can evolve without leaking internal fields.
type Info = Snapshot

// Checksum computes the publication fingerprint of the snapshot.
func (s *Snapshot) Checksum() (checksum.Checksum, error) {
	return checksum.OfJSON(s)
}
