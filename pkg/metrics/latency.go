// Package metrics tracks per-operation latency quantiles with DDSketch.
// Counters live next to the code that increments them (promauto); sketches
// are kept here because quantiles need a mergeable summary, not a counter.

package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

const defaultRelativeAccuracy = 0.01

// LatencyTracker records operation durations and serves latency quantiles.
// Safe for concurrent use.
type LatencyTracker struct {
	mux              sync.Mutex
	sketches         map[string]*ddsketch.DDSketch
	relativeAccuracy float64
}

// NewLatencyTracker is the constructor for LatencyTracker. relativeAccuracy
// bounds the error of quantile estimates, e.g. 0.01 for 1%; non-positive
// values fall back to the default.
func NewLatencyTracker(relativeAccuracy float64) *LatencyTracker {
	if relativeAccuracy <= 0 {
		relativeAccuracy = defaultRelativeAccuracy
	}
	return &LatencyTracker{
		sketches:         make(map[string]*ddsketch.DDSketch),
		relativeAccuracy: relativeAccuracy,
	}
}

// Record adds one duration sample for the given operation.
func (lt *LatencyTracker) Record(operation string, duration time.Duration) {
	lt.mux.Lock()
	defer lt.mux.Unlock()

	sketch, exists := lt.sketches[operation]
	if !exists {
		var err error
		sketch, err = ddsketch.LogUnboundedDenseDDSketch(lt.relativeAccuracy)
		if err != nil {
			sketch, _ = ddsketch.NewDefaultDDSketch(lt.relativeAccuracy)
		}
		lt.sketches[operation] = sketch
	}
	// Samples are stored in milliseconds.
	_ = sketch.Add(float64(duration.Microseconds()) / 1000.0)
}

// RecordSince records the elapsed time from start until now, meant for
// `defer tracker.RecordSince(op, time.Now())` at the top of an operation.
func (lt *LatencyTracker) RecordSince(operation string, start time.Time) {
	lt.Record(operation, time.Since(start))
}

// Quantile returns the latency quantile in milliseconds for the operation,
// e.g. q=0.99 for p99. It errors when the operation has no samples.
func (lt *LatencyTracker) Quantile(operation string, q float64) (float64, error) {
	lt.mux.Lock()
	defer lt.mux.Unlock()

	sketch, exists := lt.sketches[operation]
	if !exists {
		return 0, fmt.Errorf("no latency samples recorded for operation %q", operation)
	}
	value, err := sketch.GetValueAtQuantile(q)
	if err != nil {
		return 0, fmt.Errorf("failed to read quantile %g for %q: %w", q, operation, err)
	}
	return value, nil
}

// Count returns the number of samples recorded for the operation.
func (lt *LatencyTracker) Count(operation string) int64 {
	lt.mux.Lock()
	defer lt.mux.Unlock()

	sketch, exists := lt.sketches[operation]
	if !exists {
		return 0
	}
	return int64(sketch.GetCount())
}
