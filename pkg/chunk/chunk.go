// Package chunk models the cached unit of content: an opaque binary KV chunk
// produced by an inference engine. The cache never interprets the bytes; it
// only needs their size for capacity accounting and a way to copy them into
// backend-resident form.

package chunk

import "bytes"

// Chunk is one opaque cached unit of binary content. A Chunk has no batch
// dimension; that is a caller-side convention.
type Chunk []byte

// Size returns the number of payload bytes, used for capacity accounting.
func (c Chunk) Size() int64 {
	return int64(len(c))
}

// Clone copies the chunk into freshly allocated memory. Backends clone before
// inserting so the resident copy is independent of the caller's buffer.
func (c Chunk) Clone() Chunk {
	if c == nil {
		return nil
	}
	return Chunk(bytes.Clone(c))
}

// Equal reports whether two chunks hold the same content.
func (c Chunk) Equal(other Chunk) bool {
	return bytes.Equal(c, other)
}
