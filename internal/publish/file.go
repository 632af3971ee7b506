package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/weftlang/weftsync/internal/logging"
	"github.com/weftlang/weftsync/internal/project"
)

// FileSink publishes project info as a file at a deterministic path inside
// each project's output directory. Writes are atomic: the payload lands in
// a temp file first, any stale temp or destination is removed, and the temp
// is renamed over the destination.
type FileSink struct {
	gate   *checksumGate
	logger logging.Logger
}

// NewFileSink creates a file sink.
func NewFileSink(logger logging.Logger) *FileSink {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &FileSink{
		gate:   newChecksumGate(),
		logger: logger.WithComponent("file-sink"),
	}
}

// Publish implements the sink contract.
func (s *FileSink) Publish(ctx context.Context, info *project.Info) error {
	payload, sum, err := encodeInfo(info)
	if err != nil {
		return err
	}
	if !s.gate.shouldPublish(info.Key, sum) {
		s.logger.Trace(ctx, "project info unchanged, skipping write",
			"project", info.Key.String(), "checksum", sum.Short())
		return nil
	}

	dest := filepath.Join(info.Key.String(), ProjectInfoFileName)
	if err := writeFileAtomic(dest, payload); err != nil {
		// The write never happened; make sure the next attempt is not
		// suppressed by the checksum we just recorded.
		s.gate.forget(info.Key)
		return err
	}

	s.gate.recordWrite()
	s.logger.Debug(ctx, "published project info",
		"project", info.Key.String(), "path", dest, "checksum", sum.Short())
	return nil
}

// PublishRemoval writes an explicit removal marker so file watchers can
// react deterministically.
func (s *FileSink) PublishRemoval(ctx context.Context, key project.Key, outputDir string) error {
	s.gate.forget(key)

	marker := RemovalMarker{Key: key, OutputDir: outputDir, Removed: true}

	// The project info file is replaced by the marker rather than deleted
	// silently.
	payload, err := json.Marshal(marker)
	if err != nil {
		return fmt.Errorf("publish: encoding removal marker: %w", err)
	}
	dest := filepath.Join(outputDir, ProjectInfoFileName)
	if err := writeFileAtomic(dest, payload); err != nil {
		return err
	}

	s.gate.recordWrite()
	s.logger.Debug(ctx, "published project removal", "project", key.String(), "path", dest)
	return nil
}

// Writes returns how many files were actually written.
func (s *FileSink) Writes() int64 { return s.gate.Writes() }

// Skips returns how many publications were suppressed as unchanged.
func (s *FileSink) Skips() int64 { return s.gate.Skips() }

// writeFileAtomic writes data to dest via a sibling temp file and rename.
func writeFileAtomic(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("publish: creating output directory: %w", err)
	}

	temp := dest + ".temp"

	// Clear leftovers from an interrupted earlier write.
	if err := os.Remove(temp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("publish: removing stale temp file: %w", err)
	}

	if err := os.WriteFile(temp, data, 0o644); err != nil {
		return fmt.Errorf("publish: writing temp file: %w", err)
	}

	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("publish: removing previous file: %w", err)
	}
	if err := os.Rename(temp, dest); err != nil {
		return fmt.Errorf("publish: renaming temp file: %w", err)
	}
	return nil
}
