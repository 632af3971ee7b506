package resolver

import (
	"context"
	"errors"

	"github.com/weftlang/weftsync/internal/logging"
	"github.com/weftlang/weftsync/internal/project"
)

// fallbackResolver tries the primary (out-of-process) resolver and falls
// back in-process on any failure other than cancellation. Cancellation
// propagates untouched on both paths.
type fallbackResolver struct {
	primary  MetadataResolver
	fallback MetadataResolver
	logger   logging.Logger
}

// NewFallbackResolver composes a primary resolver with a fallback applied
// on recoverable failures.
func NewFallbackResolver(primary, fallback MetadataResolver, logger logging.Logger) MetadataResolver {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &fallbackResolver{
		primary:  primary,
		fallback: fallback,
		logger:   logger.WithComponent("resolver"),
	}
}

// Resolve implements MetadataResolver.
func (r *fallbackResolver) Resolve(ctx context.Context, wp *project.WorkspaceProject, snap *project.Snapshot) (project.WorkspaceState, error) {
	state, err := r.primary.Resolve(ctx, wp, snap)
	if err == nil {
		return state, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return project.WorkspaceState{}, err
	}

	r.logger.Error(ctx, err, "out-of-process resolution failed, falling back in-process",
		"project", snap.Key.String())
	return r.fallback.Resolve(ctx, wp, snap)
}

// Evict implements MetadataResolver.
func (r *fallbackResolver) Evict(key project.Key) {
	r.primary.Evict(key)
	r.fallback.Evict(key)
}
