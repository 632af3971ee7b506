// Package resolver implements the recomputation engine of the sync
// pipeline: the state updater that turns debounced work items into fresh
// project snapshots, and the pluggable metadata resolvers (out-of-process
// with delta compression and caching, in-process fallback) it drives.
package resolver

import (
	"context"

	"github.com/weftlang/weftsync/internal/checksum"
	"github.com/weftlang/weftsync/internal/project"
)

// MetadataItem is one resolved component metadata entry. The pipeline treats
// the payload as opaque; only the checksum participates in delta and
// publication decisions.
type MetadataItem struct {
	// Checksum is the stable content fingerprint of the entry.
	Checksum checksum.Checksum `json:"checksum"`
	// Name is the component name the entry describes.
	Name string `json:"name"`
	// TargetPath locates the defining document within the project.
	TargetPath string `json:"targetPath"`
	// Payload is the serialized metadata body.
	Payload []byte `json:"payload,omitempty"`
}

// MetadataResolver resolves the derived metadata collection for a live
// project. Implementations must propagate context cancellation untouched;
// any other error is a recoverable resolution failure.
type MetadataResolver interface {
	Resolve(ctx context.Context, wp *project.WorkspaceProject, snap *project.Snapshot) (project.WorkspaceState, error)
	// Evict drops any per-project cached resolution state for a key.
	Evict(key project.Key)
}
