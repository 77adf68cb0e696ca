// The evictor is the pluggable admission and recency policy. Backends consult
// it on every put (may the payload enter, and at whose expense?) and on every
// successful get (bump recency). The capacity metric is an explicit
// construction-time choice: an entry budget, a byte budget, or both.

package cache

// PutStatus is the outcome of an admission decision.
type PutStatus int

const (
	// PutRejected means the payload can never fit, even with an empty
	// catalog. The caller must leave the catalog untouched.
	PutRejected PutStatus = iota
	// PutAdmitted means the payload may be inserted after evicting the
	// returned keys.
	PutAdmitted
	// PutAdmittedClean is PutAdmitted with no evictions needed. Diagnostic
	// only; callers treat it exactly like PutAdmitted.
	PutAdmittedClean
)

// String returns the status name for logs.
func (s PutStatus) String() string {
	switch s {
	case PutRejected:
		return "rejected"
	case PutAdmitted:
		return "admitted"
	case PutAdmittedClean:
		return "admitted_clean"
	default:
		return "unknown"
	}
}

// CapacityLimit configures the evictor's capacity metric. A zero (or
// negative) value disables that axis; setting both fields enforces both.
type CapacityLimit struct {
	MaxEntries int   // Maximum number of catalog entries.
	MaxBytes   int64 // Maximum total payload bytes.
}

// unlimited reports whether no axis is bounded.
func (l CapacityLimit) unlimited() bool {
	return l.MaxEntries <= 0 && l.MaxBytes <= 0
}

// Evictor decides admission on put and maintains recency on get. Implementations
// are not thread-safe; backends call them under their mutex.
type Evictor[L any] interface {
	// AdmitOnPut decides whether a payload of incomingBytes may be stored
	// under key. If admittable it returns the minimal oldest-first set of
	// keys to evict (possibly empty) and PutAdmitted/PutAdmittedClean. When
	// the key is already resident its entry is being replaced, so its count
	// and bytes are credited and it is never an eviction candidate. If the
	// payload alone exceeds total capacity it returns PutRejected and no
	// keys; the catalog must be left unchanged in that case. AdmitOnPut
	// itself never mutates the catalog.
	AdmitOnPut(catalog *Catalog[L], key Key, incomingBytes int64) ([]Key, PutStatus)
	// NoteAccess bumps the key to the most-recently-used end of the recency
	// ordering. Calling it for an absent key is a no-op.
	NoteAccess(key Key, catalog *Catalog[L])
}

// LRUEvictor evicts least-recently-used entries first. The catalog's own
// ordering is the recency order, so both admission scans and access bumps are
// O(1) amortized per touched key.
type LRUEvictor[L any] struct {
	limit CapacityLimit
}

var _ Evictor[string] = (*LRUEvictor[string])(nil)

// NewLRUEvictor is the constructor for LRUEvictor.
func NewLRUEvictor[L any](limit CapacityLimit) *LRUEvictor[L] {
	return &LRUEvictor[L]{limit: limit}
}

// AdmitOnPut walks the recency list oldest-first, collecting keys until the
// incoming payload fits under every configured axis. A re-put of a resident
// key replaces that entry, so the replaced count and bytes are credited up
// front and the key itself is skipped as an eviction candidate.
func (e *LRUEvictor[L]) AdmitOnPut(catalog *Catalog[L], key Key, incomingBytes int64) ([]Key, PutStatus) {
	if e.limit.unlimited() {
		return nil, PutAdmittedClean
	}
	// The payload alone must fit with everything else evicted.
	if e.limit.MaxBytes > 0 && incomingBytes > e.limit.MaxBytes {
		return nil, PutRejected
	}

	overEntries := func(entries int) bool {
		return e.limit.MaxEntries > 0 && entries+1 > e.limit.MaxEntries
	}
	overBytes := func(total int64) bool {
		return e.limit.MaxBytes > 0 && total+incomingBytes > e.limit.MaxBytes
	}

	remainingEntries := catalog.Len()
	remainingBytes := catalog.TotalBytes()
	if replacedBytes, resident := catalog.SizeOf(key); resident {
		remainingEntries--
		remainingBytes -= replacedBytes
	}
	var evictKeys []Key
	for candidate, size := range catalog.OldestFirst() {
		if !overEntries(remainingEntries) && !overBytes(remainingBytes) {
			break
		}
		if candidate == key {
			continue // The entry being replaced is already credited.
		}
		evictKeys = append(evictKeys, candidate)
		remainingEntries--
		remainingBytes -= size
	}

	if len(evictKeys) == 0 {
		return nil, PutAdmittedClean
	}
	return evictKeys, PutAdmitted
}

// NoteAccess bumps the key's recency; a no-op when the key is absent.
func (e *LRUEvictor[L]) NoteAccess(key Key, catalog *Catalog[L]) {
	catalog.MoveToBack(key)
}
