// Backend is the single protocol both storage media implement. A backend owns
// its catalog, its evictor, and one background put worker; all three live and
// die together.

package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mtavana/kvtier/pkg/chunk"
)

// Backend stores KV chunks under a capacity bound. Implementations are safe
// for concurrent use.
type Backend interface {
	// Contains reports whether the key is present in the catalog.
	Contains(key Key) bool
	// Get returns the chunk stored for the key. A miss is reported through
	// the boolean, never through the error; the error covers storage-medium
	// failures only.
	Get(key Key) (chunk.Chunk, bool /*found*/, error)
	// Put stores the chunk under the key. With blocking=true the admission
	// and store sequence runs before Put returns; a put rejected by the
	// capacity policy is silently dropped. With blocking=false the request is
	// queued and applied later by the backend's worker, in submission order.
	Put(key Key, payload chunk.Chunk, blocking bool) error
	// Remove erases the key's entry and reclaims its backing storage. The key
	// must exist: callers either guard with Contains or hold the key from
	// eviction bookkeeping.
	Remove(key Key) error
	// Close stops the background worker after draining already-queued puts.
	// Idempotent; also invoked automatically at backend teardown.
	Close() error
}

// Config carries backend construction parameters.
type Config struct {
	ChunkSize int           // Token-chunk size the caller splits payloads by.
	Medium    string        // Resident medium identifier, e.g. "cpu".
	Capacity  CapacityLimit // Admission budget; zero values mean unbounded.
	Path      string        // Disk backend only: directory for chunk files.
}

var (
	lookupsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kvtier_lookups_total",
		Help: "Total number of backend get lookups.",
	}, []string{"medium", "status" /* hit | miss */})
	evictionsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kvtier_evicted_chunks_total",
		Help: "Total number of chunks evicted during put admission.",
	}, []string{"medium"})
	rejectedPutsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kvtier_rejected_puts_total",
		Help: "Total number of puts rejected by the capacity policy.",
	}, []string{"medium"})
	queuedPutFailuresMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kvtier_queued_put_failures_total",
		Help: "Total number of queued puts that failed in the background worker.",
	}, []string{"medium"})
)
