// Package cache implements the capacity-bounded storage tier for KV chunks:
// a key-to-location catalog doubling as an LRU recency queue, a pluggable
// evictor consulted on admission and access, and two backends (memory, disk)
// that share one concurrency discipline: a single mutex around catalog and
// evictor mutations, slow payload I/O outside it, and one background worker
// per backend draining queued puts in FIFO order.

package cache

import (
	"fmt"
	"strings"
)

// Key identifies one cached KV chunk. It carries the serialization format tag
// and enough engine topology to keep chunks from different deployments apart.
// Keys are immutable; equality and hashing are structural (Key is comparable).
type Key struct {
	Format    string // Serialization format tag of the chunk.
	Model     string // Model name the chunk was produced for.
	WorldSize int    // Number of workers in the serving deployment.
	WorkerID  int    // Index of the worker that owns this chunk.
	ChunkHash string // Content hash of the token chunk.
}

// String returns the canonical, collision-free representation of the key,
// used for external naming such as file paths.
func (k Key) String() string {
	return fmt.Sprintf("%s@%s@%d@%d@%s", k.Format, k.Model, k.WorldSize, k.WorkerID, k.ChunkHash)
}

// Sanitized returns the canonical string with every path separator replaced by
// a hyphen, yielding a flat filename that is unique per distinct key.
func (k Key) Sanitized() string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '-'
		}
		return r
	}, k.String())
}
