// Package utils carries the invariant machinery used to surface unexpected
// conditions in code. Invariants are conditions that must hold; a violation
// means there is a bug in the caller, not an external failure. Instead of
// panicking in production, a violation records an error log and increments a
// monitoring counter. Under test builds a violation panics so the offending
// test fails loudly. It remains the caller's job to handle the erroneous case
// after raising, e.g. with an early return.
//
// Do not raise invariants for conditions that depend on external factors; a
// failed disk read is an error, not an invariant violation. Removing a cache
// key that bookkeeping says must exist and finding it absent is one.

package utils

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	promclient "github.com/prometheus/client_model/go"
)

var invariantsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kvtier_invariants_total",
	Help: "The total number of invariant violations.",
}, []string{
	"module", // The module in which this invariant occurred.
	"type",   // The type of the invariant that occurred.
})

// RaiseInvariant records an invariant violation for the given module and type.
func RaiseInvariant(module, invariantType, msg string, args ...any) {
	invariantsMetric.WithLabelValues(module, invariantType).Inc()
	slog.With("invariant", invariantType, "module", module).Error(msg, args...)
	if IsTestMode {
		panic("invariant violated: " + invariantType)
	}
}

// GetInvariantCount returns the current value of the invariant counter for the given labels.
func GetInvariantCount(module, invariantType string) int {
	var metric = &promclient.Metric{}
	if err := invariantsMetric.WithLabelValues(module, invariantType).Write(metric); err != nil {
		slog.Error(err.Error())
		return 0
	}
	return int(metric.Counter.GetValue())
}
