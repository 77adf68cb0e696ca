// The disk backend stores each chunk as one file under the configured
// directory; the catalog location is the file path. File naming is
// <dir>/<sanitized key><ext>. Ordering on the put path matters: evicted
// entries are erased and their files deleted before the new file is written,
// bounding transient disk usage, and the catalog insertion happens only after
// the write succeeded so the catalog never points at a missing file.

package cache

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/mtavana/kvtier/pkg/chunk"
	"github.com/mtavana/kvtier/pkg/metrics"
	"github.com/mtavana/kvtier/pkg/utils"
)

var chunkFileExt = flag.String("chunk_file_ext", ".pt", "Extension of the per-chunk files written by the disk backend.")

// diskCore is the mutex-guarded catalog+evictor state of a DiskBackend.
type diskCore struct {
	mux     sync.Mutex // Guards catalog and evictor recency state.
	catalog *Catalog[string /*path*/]
	evictor Evictor[string]
	medium  string
	dir     string
	ext     string
	latency *metrics.LatencyTracker
}

// DiskBackend stores KV chunks as envelope files on local disk.
type DiskBackend struct { // Implements Backend.
	core       *diskCore
	queue      *putQueue
	workerDone chan struct{}

	closeMux sync.Mutex
	closed   bool
}

var _ Backend = (*DiskBackend)(nil)

// NewDiskBackend is the constructor for DiskBackend. The config path is
// required; the directory is created if absent. A nil evictor defaults to LRU
// under the config's capacity limit.
func NewDiskBackend(conf Config, evictor Evictor[string]) (*DiskBackend, error) {
	if conf.Path == "" {
		return nil, errors.New("disk backend requires a local path")
	}
	if err := os.MkdirAll(conf.Path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create disk backend directory %s: %w", conf.Path, err)
	}
	if evictor == nil {
		evictor = NewLRUEvictor[string](conf.Capacity)
	}
	medium := conf.Medium
	if medium == "" {
		medium = "disk"
	}
	core := &diskCore{
		catalog: NewCatalog[string](),
		evictor: evictor,
		medium:  medium,
		dir:     conf.Path,
		ext:     *chunkFileExt,
		latency: metrics.NewLatencyTracker(latencyRelativeAccuracy),
	}
	backend := &DiskBackend{
		core:       core,
		queue:      newPutQueue(),
		workerDone: make(chan struct{}),
	}
	go runPutWorker(backend.queue, medium, core.putBlocking, backend.workerDone)
	// Close when the handle is garbage collected without an explicit Close.
	runtime.SetFinalizer(backend, func(b *DiskBackend) { _ = b.Close() })
	slog.Info("Started disk backend.", "medium", medium, "dir", conf.Path, "chunkSize", conf.ChunkSize,
		"maxEntries", conf.Capacity.MaxEntries, "maxBytes", conf.Capacity.MaxBytes)
	return backend, nil
}

// Contains reports whether the key is present in the catalog. File existence
// is not separately probed; the catalog is authoritative.
func (b *DiskBackend) Contains(key Key) bool {
	b.core.mux.Lock()
	defer b.core.mux.Unlock()
	return b.core.catalog.Contains(key)
}

// Get reads the chunk file recorded in the catalog and decodes its envelope.
func (b *DiskBackend) Get(key Key) (chunk.Chunk, bool /*found*/, error) {
	return b.core.get(key)
}

// Put stores the chunk, either synchronously or through the put worker.
func (b *DiskBackend) Put(key Key, payload chunk.Chunk, blocking bool) error {
	if blocking {
		return b.core.putBlocking(key, payload)
	}
	b.queue.push(putRequest{key: key, payload: payload})
	return nil
}

// Remove erases the catalog entry and deletes the underlying file. The key
// must exist; a deletion failure is propagated because it signals that the
// catalog and the filesystem have desynchronized.
func (b *DiskBackend) Remove(key Key) error {
	path, err := b.core.removeEntry(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete chunk file %s: %w", path, err)
	}
	return nil
}

// Close pushes the end signal and waits for the worker to drain the queue.
// Safe to call more than once.
func (b *DiskBackend) Close() error {
	b.closeMux.Lock()
	defer b.closeMux.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.queue.push(putRequest{end: true})
	<-b.workerDone
	slog.Info("Closed the put worker in disk backend.", "medium", b.core.medium)
	return nil
}

// Latency exposes the backend's operation latency tracker.
func (b *DiskBackend) Latency() *metrics.LatencyTracker {
	return b.core.latency
}

// pathFor derives the flat, per-key file path for a chunk.
func (dc *diskCore) pathFor(key Key) string {
	return filepath.Join(dc.dir, key.Sanitized()+dc.ext)
}

// get bumps recency under the mutex, then reads and decodes the file outside
// it. On a storage failure the chunk is reported absent alongside the error.
func (dc *diskCore) get(key Key) (chunk.Chunk, bool /*found*/, error) {
	defer dc.latency.RecordSince("get", time.Now())

	dc.mux.Lock()
	path, found := dc.catalog.Lookup(key)
	if found {
		dc.evictor.NoteAccess(key, dc.catalog)
	}
	dc.mux.Unlock()

	if !found {
		lookupsMetric.WithLabelValues(dc.medium, "miss").Inc()
		return nil, false, nil
	}
	lookupsMetric.WithLabelValues(dc.medium, "hit").Inc()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read chunk file %s: %w", path, err)
	}
	payload, err := chunk.DecodeEnvelope(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode chunk file %s: %w", path, err)
	}
	return payload, true, nil
}

// putBlocking runs the admission decision and catalog erasures under the
// mutex, deletes the evicted files, writes the new chunk file, and only then
// inserts the catalog entry. A rejected put is dropped silently.
func (dc *diskCore) putBlocking(key Key, payload chunk.Chunk) error {
	defer dc.latency.RecordSince("put", time.Now())
	path := dc.pathFor(key)
	slog.Debug("Saving chunk to disk.", "path", path, "bytes", payload.Size())

	evictPaths, status := dc.admit(key, payload.Size())
	if status == PutRejected {
		rejectedPutsMetric.WithLabelValues(dc.medium).Inc()
		slog.Debug("Dropped put rejected by the capacity policy.",
			"medium", dc.medium, "key", key.String(), "bytes", payload.Size())
		return nil
	}
	evictionsMetric.WithLabelValues(dc.medium).Add(float64(len(evictPaths)))

	// Evicted files go first so the new write never overshoots the budget.
	for _, evictPath := range evictPaths {
		if err := os.Remove(evictPath); err != nil {
			return fmt.Errorf("failed to delete evicted chunk file %s: %w", evictPath, err)
		}
	}
	if err := writeFileAtomic(path, chunk.EncodeEnvelope(payload)); err != nil {
		return fmt.Errorf("failed to write chunk file %s: %w", path, err)
	}

	dc.mux.Lock()
	defer dc.mux.Unlock()
	dc.catalog.Insert(key, path, payload.Size())
	return nil
}

// admit runs the admission decision and erases the evicted catalog entries
// under the mutex, returning the file paths the caller must delete.
func (dc *diskCore) admit(key Key, incomingBytes int64) ([]string /*evictPaths*/, PutStatus) {
	dc.mux.Lock()
	defer dc.mux.Unlock()

	evictKeys, status := dc.evictor.AdmitOnPut(dc.catalog, key, incomingBytes)
	if status == PutRejected {
		return nil, status
	}
	evictPaths := make([]string, 0, len(evictKeys))
	for _, evictKey := range evictKeys {
		if path, found := dc.catalog.Remove(evictKey); found {
			evictPaths = append(evictPaths, path)
		} else {
			utils.RaiseInvariant("disk_backend", "evict_missing_key",
				"Evictor returned a key that is not in the catalog.", "key", evictKey.String())
		}
	}
	return evictPaths, status
}

// removeEntry erases the key's catalog entry under the mutex and returns its
// file path. An absent key is a caller bug, not a recoverable state.
func (dc *diskCore) removeEntry(key Key) (string /*path*/, error) {
	dc.mux.Lock()
	defer dc.mux.Unlock()

	path, found := dc.catalog.Remove(key)
	if !found {
		utils.RaiseInvariant("disk_backend", "remove_missing_key",
			"Remove was called for a key that is not in the catalog.", "key", key.String())
		return "", fmt.Errorf("key %s is not present in the disk catalog", key)
	}
	return path, nil
}

// writeFileAtomic writes data to a temp file and renames it into place, so a
// crashed write never leaves a partial chunk file behind.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
