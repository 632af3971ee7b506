// Package publish delivers recomputed project info to external consumers:
// either a deterministic file per project written atomically, or
// length-prefixed frames over a persistent stream. Both sinks keep their own
// last-published-checksum cache so an unchanged payload is a cheap no-op.
// This cache is deliberately independent from the resolver's delta cache;
// the two guard different boundaries.
package publish

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/weftlang/weftsync/internal/checksum"
	"github.com/weftlang/weftsync/internal/project"
)

// ProjectInfoFileName is the well-known file name a file-based consumer
// watches inside a project's output directory.
const ProjectInfoFileName = "project.weft.json"

// Action tags on the stream channel.
const (
	ActionUpdate byte = 1
	ActionRemove byte = 2
)

// RemovalMarker is the payload of a removal publication. Consumers watching
// the channel react to it deterministically instead of inferring removal
// from silence.
type RemovalMarker struct {
	Key       project.Key `json:"key"`
	OutputDir string      `json:"outputDir"`
	Removed   bool        `json:"removed"`
}

// checksumGate tracks the last published checksum per project and decides
// whether a publication is a no-op.
type checksumGate struct {
	mu   sync.Mutex
	last map[project.Key]checksum.Checksum

	writes int64
	skips  int64
}

func newChecksumGate() *checksumGate {
	return &checksumGate{last: make(map[project.Key]checksum.Checksum)}
}

// shouldPublish reports whether sum differs from the last published value
// for key, recording it as published when it does.
func (g *checksumGate) shouldPublish(key project.Key, sum checksum.Checksum) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last[key] == sum {
		atomic.AddInt64(&g.skips, 1)
		return false
	}
	g.last[key] = sum
	return true
}

// forget clears the cached checksum so the next publication for key always
// writes.
func (g *checksumGate) forget(key project.Key) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.last, key)
}

func (g *checksumGate) recordWrite() {
	atomic.AddInt64(&g.writes, 1)
}

// Writes returns how many publications actually reached the destination.
func (g *checksumGate) Writes() int64 {
	return atomic.LoadInt64(&g.writes)
}

// Skips returns how many publications were suppressed as unchanged.
func (g *checksumGate) Skips() int64 {
	return atomic.LoadInt64(&g.skips)
}

func encodeInfo(info *project.Info) ([]byte, checksum.Checksum, error) {
	payload, err := json.Marshal(info)
	if err != nil {
		return nil, checksum.Empty, fmt.Errorf("publish: encoding project info: %w", err)
	}
	return payload, checksum.Of(payload), nil
}
