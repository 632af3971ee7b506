package detector

import (
	"fmt"
	"hash/crc32"
	"os"
	"strconv"
	"sync"
)

// fileHasher fingerprints files with CRC32 Castagnoli behind a
// metadata-first cache: a Stat whose mtime and size match the cached entry
// answers without opening the file at all.
type fileHasher struct {
	crcTable *crc32.Table

	mu      sync.Mutex
	entries map[string]hashEntry
}

type hashEntry struct {
	metaKey string
	hash    string
}

func newFileHasher() *fileHasher {
	return &fileHasher{
		crcTable: crc32.MakeTable(crc32.Castagnoli),
		entries:  make(map[string]hashEntry),
	}
}

// Changed reports whether the file's content differs from the last call for
// the same path. The first sighting of a path counts as changed. Stat or
// read failures also count as changed so a delete-then-recreate is never
// swallowed.
func (h *fileHasher) Changed(path string) bool {
	stat, err := os.Stat(path)
	if err != nil {
		h.Evict(path)
		return true
	}
	metaKey := fmt.Sprintf("%s:%d:%d", path, stat.ModTime().UnixNano(), stat.Size())

	h.mu.Lock()
	prev, known := h.entries[path]
	h.mu.Unlock()

	if known && prev.metaKey == metaKey {
		return false
	}

	content, err := os.ReadFile(path)
	if err != nil {
		h.Evict(path)
		return true
	}
	hash := strconv.FormatUint(uint64(crc32.Checksum(content, h.crcTable)), 16)

	h.mu.Lock()
	h.entries[path] = hashEntry{metaKey: metaKey, hash: hash}
	h.mu.Unlock()

	return !known || prev.hash != hash
}

// Evict drops the cached fingerprint for a path.
func (h *fileHasher) Evict(path string) {
	h.mu.Lock()
	delete(h.entries, path)
	h.mu.Unlock()
}
