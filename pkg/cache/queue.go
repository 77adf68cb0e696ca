// Each backend runs one background worker consuming an unbounded FIFO queue
// of put requests. A put request with end set is the end signal: the worker
// drains everything queued before it, then exits. Enqueueing never blocks,
// which is why this is a condition-variable queue rather than a channel.

package cache

import (
	"log/slog"
	"sync"

	"github.com/mtavana/kvtier/pkg/chunk"
)

// putRequest is one unit of background work, or the end signal.
type putRequest struct {
	key     Key
	payload chunk.Chunk
	end     bool // End signal: stop the worker after draining prior requests.
}

// putQueue is an unbounded FIFO queue with a single consumer.
type putQueue struct {
	mux   sync.Mutex
	cond  *sync.Cond
	items []putRequest
}

// newPutQueue is the constructor for putQueue.
func newPutQueue() *putQueue {
	q := &putQueue{}
	q.cond = sync.NewCond(&q.mux)
	return q
}

// push appends a request and never blocks.
func (q *putQueue) push(req putRequest) {
	q.mux.Lock()
	defer q.mux.Unlock()
	q.items = append(q.items, req)
	q.cond.Signal()
}

// pop blocks until a request is available and returns the oldest one.
func (q *putQueue) pop() putRequest {
	q.mux.Lock()
	defer q.mux.Unlock()
	for len(q.items) == 0 {
		q.cond.Wait()
	}
	req := q.items[0]
	q.items = q.items[1:]
	return req
}

// runPutWorker drains the queue, applying each request through apply until the
// end signal is consumed, then closes done. Queued puts are fire-and-forget,
// so apply failures are logged and counted; there is no result channel back to
// the enqueuing caller.
func runPutWorker(queue *putQueue, medium string, apply func(Key, chunk.Chunk) error, done chan<- struct{}) {
	defer close(done)
	for {
		req := queue.pop()
		if req.end {
			slog.Debug("Put worker received the end signal.", "medium", medium)
			return
		}
		if err := apply(req.key, req.payload); err != nil {
			queuedPutFailuresMetric.WithLabelValues(medium).Inc()
			slog.Error("Queued put failed.", "medium", medium, "key", req.key.String(), "error", err)
		}
	}
}
