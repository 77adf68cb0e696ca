// The memory backend keeps chunks resident in process memory: the catalog
// location is the chunk itself. All state shared with the put worker lives in
// memoryCore so the worker goroutine doesn't keep the backend handle alive,
// letting the finalizer close an abandoned backend.

package cache

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/mtavana/kvtier/pkg/chunk"
	"github.com/mtavana/kvtier/pkg/metrics"
	"github.com/mtavana/kvtier/pkg/utils"
)

const latencyRelativeAccuracy = 0.01

// memoryCore is the mutex-guarded catalog+evictor state of a MemoryBackend.
type memoryCore struct {
	mux     sync.Mutex // Guards catalog and evictor recency state.
	catalog *Catalog[chunk.Chunk]
	evictor Evictor[chunk.Chunk]
	medium  string
	latency *metrics.LatencyTracker
}

// MemoryBackend stores KV chunks in local process memory.
type MemoryBackend struct { // Implements Backend.
	core       *memoryCore
	queue      *putQueue
	workerDone chan struct{}

	closeMux sync.Mutex
	closed   bool
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend is the constructor for MemoryBackend. A nil evictor
// defaults to LRU under the config's capacity limit.
func NewMemoryBackend(conf Config, evictor Evictor[chunk.Chunk]) *MemoryBackend {
	if evictor == nil {
		evictor = NewLRUEvictor[chunk.Chunk](conf.Capacity)
	}
	medium := conf.Medium
	if medium == "" {
		medium = "memory"
	}
	core := &memoryCore{
		catalog: NewCatalog[chunk.Chunk](),
		evictor: evictor,
		medium:  medium,
		latency: metrics.NewLatencyTracker(latencyRelativeAccuracy),
	}
	backend := &MemoryBackend{
		core:       core,
		queue:      newPutQueue(),
		workerDone: make(chan struct{}),
	}
	go runPutWorker(backend.queue, medium, core.putBlocking, backend.workerDone)
	// Close when the handle is garbage collected without an explicit Close.
	runtime.SetFinalizer(backend, func(b *MemoryBackend) { _ = b.Close() })
	slog.Info("Started memory backend.", "medium", medium, "chunkSize", conf.ChunkSize,
		"maxEntries", conf.Capacity.MaxEntries, "maxBytes", conf.Capacity.MaxBytes)
	return backend
}

// Contains reports whether the key is present in the catalog.
func (b *MemoryBackend) Contains(key Key) bool {
	b.core.mux.Lock()
	defer b.core.mux.Unlock()
	return b.core.catalog.Contains(key)
}

// Get returns a copy of the resident chunk and bumps its recency.
func (b *MemoryBackend) Get(key Key) (chunk.Chunk, bool /*found*/, error) {
	return b.core.get(key)
}

// Put stores the chunk, either synchronously or through the put worker.
func (b *MemoryBackend) Put(key Key, payload chunk.Chunk, blocking bool) error {
	if blocking {
		return b.core.putBlocking(key, payload)
	}
	b.queue.push(putRequest{key: key, payload: payload})
	return nil
}

// Remove erases the catalog entry; the resident chunk is reclaimed once no
// caller holds a copy. The key must exist.
func (b *MemoryBackend) Remove(key Key) error {
	b.core.mux.Lock()
	defer b.core.mux.Unlock()
	return b.core.removeLocked(key)
}

// Close pushes the end signal and waits for the worker to drain the queue.
// Safe to call more than once.
func (b *MemoryBackend) Close() error {
	b.closeMux.Lock()
	defer b.closeMux.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.queue.push(putRequest{end: true})
	<-b.workerDone
	slog.Info("Closed the put worker in memory backend.", "medium", b.core.medium)
	return nil
}

// Latency exposes the backend's operation latency tracker.
func (b *MemoryBackend) Latency() *metrics.LatencyTracker {
	return b.core.latency
}

// get looks the key up and bumps recency under the mutex; the copy handed to
// the caller is made outside the lock. The resident chunk is never mutated in
// place, so reading it after unlock is safe even against concurrent eviction.
func (mc *memoryCore) get(key Key) (chunk.Chunk, bool /*found*/, error) {
	defer mc.latency.RecordSince("get", time.Now())

	mc.mux.Lock()
	resident, found := mc.catalog.Lookup(key)
	if found {
		mc.evictor.NoteAccess(key, mc.catalog)
	}
	mc.mux.Unlock()

	if !found {
		lookupsMetric.WithLabelValues(mc.medium, "miss").Inc()
		return nil, false, nil
	}
	lookupsMetric.WithLabelValues(mc.medium, "hit").Inc()
	return resident.Clone(), true, nil
}

// putBlocking materializes the payload outside the lock, then runs the
// admission, eviction and insertion sequence under it. A rejected put is
// dropped silently, leaving the catalog untouched.
func (mc *memoryCore) putBlocking(key Key, payload chunk.Chunk) error {
	defer mc.latency.RecordSince("put", time.Now())
	resident := payload.Clone()

	mc.mux.Lock()
	defer mc.mux.Unlock()

	evictKeys, status := mc.evictor.AdmitOnPut(mc.catalog, key, resident.Size())
	if status == PutRejected {
		rejectedPutsMetric.WithLabelValues(mc.medium).Inc()
		slog.Debug("Dropped put rejected by the capacity policy.",
			"medium", mc.medium, "key", key.String(), "bytes", resident.Size())
		return nil
	}
	for _, evictKey := range evictKeys {
		if err := mc.removeLocked(evictKey); err != nil {
			return err
		}
	}
	evictionsMetric.WithLabelValues(mc.medium).Add(float64(len(evictKeys)))
	mc.catalog.Insert(key, resident, resident.Size())
	return nil
}

// removeLocked erases the key's entry. The caller must hold the mutex and the
// key must exist; an absent key is a caller bug, not a recoverable state.
func (mc *memoryCore) removeLocked(key Key) error {
	if _, found := mc.catalog.Remove(key); !found {
		utils.RaiseInvariant("memory_backend", "remove_missing_key",
			"Remove was called for a key that is not in the catalog.", "key", key.String())
		return fmt.Errorf("key %s is not present in the memory catalog", key)
	}
	return nil
}
