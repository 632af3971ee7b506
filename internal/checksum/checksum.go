// Package checksum provides stable content fingerprints used as cheap
// equality proxies across the pipeline: to skip redundant publication and to
// validate metadata deltas against a previously cached set. Checksums are
// SHA-256 and stable across processes, unlike the CRC32 metadata hashes the
// file watcher uses for local change detection.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Checksum is a hex-encoded SHA-256 digest.
type Checksum string

// Empty is the zero checksum, distinct from the checksum of empty content.
const Empty Checksum = ""

// Of computes the checksum of raw bytes.
func Of(data []byte) Checksum {
	sum := sha256.Sum256(data)
	return Checksum(hex.EncodeToString(sum[:]))
}

// OfString computes the checksum of a string.
func OfString(s string) Checksum {
	return Of([]byte(s))
}

// OfJSON computes the checksum of the canonical JSON encoding of v.
// encoding/json sorts map keys and emits struct fields in declaration order,
// which is stable enough to serve as a cross-process fingerprint as long as
// the payload types do not change shape.
func OfJSON(v interface{}) (Checksum, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Empty, fmt.Errorf("checksum: encoding payload: %w", err)
	}
	return Of(data), nil
}

// String implements fmt.Stringer.
func (c Checksum) String() string {
	return string(c)
}

// Short returns a truncated form for log output.
func (c Checksum) Short() string {
	if len(c) <= 12 {
		return string(c)
	}
	return string(c[:12])
}
