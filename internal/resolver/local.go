package resolver

import (
	"context"
	"os"
	"regexp"
	"sort"

	"github.com/weftlang/weftsync/internal/checksum"
	"github.com/weftlang/weftsync/internal/logging"
	"github.com/weftlang/weftsync/internal/project"
)

// componentDeclPattern matches component declarations in weft source:
//
//	component Button(label string) { ... }
var componentDeclPattern = regexp.MustCompile(`(?m)^\s*component\s+([A-Z][A-Za-z0-9_]*)\s*\(`)

// LocalResolver resolves metadata entirely in-process by reading the
// project's own documents. It is the fallback when the out-of-process
// service is unavailable; it bypasses the delta and caching machinery, so
// every call pays the full scan cost.
type LocalResolver struct {
	logger logging.Logger
}

// NewLocalResolver creates an in-process resolver.
func NewLocalResolver(logger logging.Logger) *LocalResolver {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &LocalResolver{logger: logger.WithComponent("local-resolver")}
}

// Resolve implements MetadataResolver.
func (r *LocalResolver) Resolve(ctx context.Context, wp *project.WorkspaceProject, snap *project.Snapshot) (project.WorkspaceState, error) {
	var sums []checksum.Checksum

	for _, doc := range snap.Documents {
		if err := ctx.Err(); err != nil {
			return project.WorkspaceState{}, err
		}
		if doc.Kind != project.FileKindComponent && doc.Kind != project.FileKindComponentImport {
			continue
		}

		content, err := os.ReadFile(doc.FilePath)
		if err != nil {
			// Documents can disappear mid-scan under churn; skip them the
			// same way a removal notification would.
			r.logger.Debug(ctx, "skipping unreadable document", "path", doc.FilePath, "error", err.Error())
			continue
		}

		names := componentNames(content)
		if doc.Kind == project.FileKindComponentImport {
			// Import files contribute directives, not components; their
			// content still participates in the fingerprint.
			names = []string{doc.TargetPath}
		}
		for _, name := range names {
			item := MetadataItem{
				Name:       name,
				TargetPath: doc.TargetPath,
				Payload:    content,
			}
			item.Checksum = itemChecksum(item)
			sums = append(sums, item.Checksum)
		}
	}

	sort.Slice(sums, func(i, j int) bool { return sums[i] < sums[j] })

	return project.WorkspaceState{
		MetadataChecksums: sums,
		LanguageVersion:   wp.LanguageVersion,
		ResultID:          0,
	}, nil
}

// Evict implements MetadataResolver. The local resolver keeps no
// per-project state.
func (r *LocalResolver) Evict(project.Key) {}

func componentNames(content []byte) []string {
	matches := componentDeclPattern.FindAllSubmatch(content, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, string(m[1]))
	}
	return names
}

func itemChecksum(item MetadataItem) checksum.Checksum {
	return checksum.Of(append([]byte(item.Name+"\x00"+item.TargetPath+"\x00"), item.Payload...))
}
