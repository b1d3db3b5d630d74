// Package metrics exposes prometheus collectors for registry activity.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lifecycle"

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeCycle    = "cycle"
	OutcomeRejected = "rejected"
)

var (
	constructionsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "constructions_total",
			Help:      "Count of singleton construction attempts by outcome.",
		},
		[]string{"outcome"},
	)
	earlyReferencesCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "early_references_total",
			Help:      "Count of early references materialized to break construction cycles.",
		},
	)
	disposalsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disposals_total",
			Help:      "Count of disposal actions run by outcome.",
		},
		[]string{"outcome"},
	)
	singletonsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "singletons",
			Help:      "Number of names currently registered in the singleton registry.",
		},
	)
)

var registerMetrics sync.Once

// Register all metrics with reg. Only the first call has an effect.
func Register(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(constructionsCounter)
		reg.MustRegister(earlyReferencesCounter)
		reg.MustRegister(disposalsCounter)
		reg.MustRegister(singletonsGauge)
	})
}

// RecordConstruction records the outcome of one GetOrCreate construction attempt.
func RecordConstruction(outcome string) {
	constructionsCounter.WithLabelValues(outcome).Inc()
}

// RecordEarlyReference records that an early reference was materialized.
func RecordEarlyReference() {
	earlyReferencesCounter.Inc()
}

// RecordDisposal records the outcome of one disposal action.
func RecordDisposal(outcome string) {
	disposalsCounter.WithLabelValues(outcome).Inc()
}

// SetSingletons records the current registered-name count.
func SetSingletons(n int) {
	singletonsGauge.Set(float64(n))
}
