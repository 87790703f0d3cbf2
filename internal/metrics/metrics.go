// Package metrics exposes Prometheus collectors for signaling, rendezvous and
// the frame pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "detect"

var (
	// signalingOpsTotal counts store operations made through the HTTP API.
	signalingOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signaling_ops_total",
			Help:      "Total signaling store operations",
		},
		[]string{"op", "field", "result"}, // op: put, get
	)

	// rendezvousTotal counts finished rendezvous attempts.
	rendezvousTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rendezvous_attempts_total",
			Help:      "Total rendezvous attempts by role and outcome",
		},
		[]string{"role", "result"},
	)

	framesSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_submitted_total",
			Help:      "Total frames submitted for inference",
		},
	)

	framesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Total ticks skipped without submitting a frame",
		},
		[]string{"reason"}, // reason: busy, no_input
	)

	inferenceFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_failures_total",
			Help:      "Total frames whose inference failed and degraded to no detections",
		},
		[]string{"mode"},
	)

	frameLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_latency_ms",
			Help:      "End-to-end frame latency from capture to result availability",
			Buckets:   []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3200},
		},
	)

	inferenceInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inference_in_flight",
			Help:      "Inference calls currently outstanding",
		},
	)

	allMetrics = []prometheus.Collector{
		signalingOpsTotal,
		rendezvousTotal,
		framesSubmittedTotal,
		framesDroppedTotal,
		inferenceFailuresTotal,
		frameLatency,
		inferenceInFlight,
	}
)

// NewRegistry returns a registry with every collector of this package plus the
// Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	for _, c := range allMetrics {
		reg.MustRegister(c)
	}
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordSignalingOp records one store operation.
func RecordSignalingOp(op, field, result string) {
	signalingOpsTotal.WithLabelValues(op, field, result).Inc()
}

// RecordRendezvous records the outcome of a rendezvous attempt.
func RecordRendezvous(role, result string) {
	rendezvousTotal.WithLabelValues(role, result).Inc()
}

// RecordSubmit records a frame submission and marks an inference in flight.
func RecordSubmit() {
	framesSubmittedTotal.Inc()
	inferenceInFlight.Inc()
}

// RecordComplete records a finished inference and its end-to-end latency.
func RecordComplete(latencyMs int64) {
	inferenceInFlight.Dec()
	frameLatency.Observe(float64(latencyMs))
}

// RecordDrop records a tick that did not submit a frame.
func RecordDrop(reason string) {
	framesDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordInferenceFailure records a frame whose inference degraded to no detections.
func RecordInferenceFailure(mode string) {
	inferenceFailuresTotal.WithLabelValues(mode).Inc()
}
