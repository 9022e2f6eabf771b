// Package metrics exposes Prometheus counters for the export pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/footprint-labs/footprint-go/internal/domain"
)

// Recorder tracks run outcomes and throughput.
type Recorder struct {
	runsTotal         *prometheus.CounterVec
	runDuration       prometheus.Histogram
	buildingsExported prometheus.Counter
}

// NewRecorder builds the recorder and registers its collectors.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "footprint",
			Name:      "runs_total",
			Help:      "Export runs by terminal status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "footprint",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of export runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		buildingsExported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "footprint",
			Name:      "buildings_exported_total",
			Help:      "Building features written across all runs.",
		}),
	}
	if reg != nil {
		reg.MustRegister(r.runsTotal, r.runDuration, r.buildingsExported)
	}
	return r
}

// RunFinished records one terminal run.
func (r *Recorder) RunFinished(status domain.RunState, durationSeconds float64, buildings int) {
	r.runsTotal.WithLabelValues(string(status)).Inc()
	if durationSeconds > 0 {
		r.runDuration.Observe(durationSeconds)
	}
	if buildings > 0 {
		r.buildingsExported.Add(float64(buildings))
	}
}
