// Package metrics wires the Prometheus collectors for the generation
// service. Collector names and labels follow the service's dashboard
// conventions; everything registers on the default registry and is exposed
// through promhttp by the metrics handler.
package metrics

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signsmith_requests_total",
		Help: "Total generation requests",
	}, []string{"status"})

	requestLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signsmith_request_latency_seconds",
		Help:    "Request latency in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signsmith_queue_depth",
		Help: "Current queue depth",
	})

	queueMax = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signsmith_queue_max",
		Help: "Maximum queue size",
	})

	memoryBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "signsmith_memory_bytes",
		Help: "Memory usage in bytes",
	}, []string{"type"})

	adapterUsage = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signsmith_adapter_usage_total",
		Help: "Adapter usage count",
	}, []string{"adapter", "domain"})

	generationSteps = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signsmith_generation_steps",
		Help:    "Number of generation steps",
		Buckets: []float64{10, 15, 20, 30, 50, 75, 100},
	})

	generationResolution = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signsmith_generation_resolution_total",
		Help: "Generation resolution distribution",
	}, []string{"resolution"})
)

// TrackRequest records one finished request with its terminal status.
func TrackRequest(status string, latencySeconds float64) {
	requestsTotal.WithLabelValues(status).Inc()
	requestLatency.Observe(latencySeconds)
}

// TrackGeneration records per-generation shape metrics.
func TrackGeneration(steps, width, height int, adapters []string) {
	generationSteps.Observe(float64(steps))
	generationResolution.WithLabelValues(fmt.Sprintf("%dx%d", width, height)).Inc()
	for _, adapter := range adapters {
		domain := "unknown"
		if i := strings.Index(adapter, "/"); i > 0 {
			domain = adapter[:i]
		}
		adapterUsage.WithLabelValues(adapter, domain).Inc()
	}
}

// SetQueueDepth updates the queue gauges.
func SetQueueDepth(current, max int) {
	queueDepth.Set(float64(current))
	queueMax.Set(float64(max))
}

// SetMemory updates one labelled memory gauge.
func SetMemory(kind string, bytes uint64) {
	memoryBytes.WithLabelValues(kind).Set(float64(bytes))
}
