// Package internal contains the core implementation packages for weftsync.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing all
// the core functionality for the weftsync tool.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - workqueue: debounced, key-coalescing work queue
//   - cancelx: cancellation series and single-flight delay scheduler
//   - project: project model, state store, and dependency graph
//   - checksum: content fingerprints for publication gating
//   - detector: change classification and filesystem watching
//   - resolver: metadata resolution (local and remote) and the updater
//   - publish: publication sinks (per-project files, streamed frames)
//   - config: configuration loading and validation
//   - logging: structured logging over log/slog
//   - version: build-time version information
//
// # Data Flow
//
// The store is the hub. The filesystem watcher and the host feed change
// records into it; the detector classifies those records and enqueues work
// items; the work queue debounces them; the updater resolves metadata for
// each drained key and writes the derived state back to the store; the
// sink publishes it when its checksum changed.
package internal
