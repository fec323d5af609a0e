// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	global *Metrics
	once   sync.Once
)

// Metrics holds the collectors shared by the pipeline, generator and API.
//
// Metrics:
//   - testbook_documents_total{status} - documents finished, by job status
//   - testbook_chunks_total - chunks emitted by the chunker
//   - testbook_extractions_total{kind} - requirements, features and workflows found
//   - testbook_procedures_total{path} - procedures normalized, by decode path
//   - testbook_procedures_dropped_total - records rejected by the normalizer
//   - testbook_generation_duration_seconds{outcome} - generation call latency
type Metrics struct {
	Documents          *prometheus.CounterVec
	Chunks             prometheus.Counter
	Extractions        *prometheus.CounterVec
	Procedures         *prometheus.CounterVec
	ProceduresDropped  prometheus.Counter
	GenerationDuration *prometheus.HistogramVec
}

// Get returns the process-wide collectors, registering them on first use.
func Get() *Metrics {
	once.Do(func() {
		global = &Metrics{
			Documents: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "testbook_documents_total",
					Help: "Documents finished by the pipeline",
				},
				[]string{"status"},
			),
			Chunks: promauto.NewCounter(prometheus.CounterOpts{
				Name: "testbook_chunks_total",
				Help: "Chunks emitted by the chunker",
			}),
			Extractions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "testbook_extractions_total",
					Help: "Pattern extraction results",
				},
				[]string{"kind"}, // "requirement", "feature", "workflow"
			),
			Procedures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "testbook_procedures_total",
					Help: "Procedures produced by the normalizer",
				},
				[]string{"path"}, // "strict", "permissive", "fallback"
			),
			ProceduresDropped: promauto.NewCounter(prometheus.CounterOpts{
				Name: "testbook_procedures_dropped_total",
				Help: "Generated records dropped during normalization",
			}),
			GenerationDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "testbook_generation_duration_seconds",
					Help:    "Latency of test procedure generation calls",
					Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 120},
				},
				[]string{"outcome"}, // "ok", "error"
			),
		}
	})
	return global
}
