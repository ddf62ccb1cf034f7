package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for workflow execution.
//
// All metrics are namespaced "contentflow":
//   - active_runs (gauge): runs currently executing (not suspended)
//   - node_latency_ms (histogram): node execution duration, labels: node_id, status
//   - retries_total (counter): retry attempts, labels: node_id
//   - suspensions_total (counter): suspensions, labels: reason
//   - resumes_total (counter): resume attempts, labels: status (ok, stale)
//   - runs_total (counter): finished runs, labels: outcome (finished, failed)
//
// Expose them for scraping with promhttp:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewMetrics(registry)
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type Metrics struct {
	activeRuns  prometheus.Gauge
	nodeLatency *prometheus.HistogramVec
	retries     *prometheus.CounterVec
	suspensions *prometheus.CounterVec
	resumes     *prometheus.CounterVec
	runs        *prometheus.CounterVec
}

// NewMetrics creates and registers the metric set with the given registry.
// Pass nil to use the default registerer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "contentflow",
			Name:      "active_runs",
			Help:      "Number of workflow runs currently executing.",
		}),
		nodeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "contentflow",
			Name:      "node_latency_ms",
			Help:      "Node execution duration in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
		}, []string{"node_id", "status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentflow",
			Name:      "retries_total",
			Help:      "Cumulative node retry attempts.",
		}, []string{"node_id"}),
		suspensions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentflow",
			Name:      "suspensions_total",
			Help:      "Runs suspended for human input.",
		}, []string{"reason"}),
		resumes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentflow",
			Name:      "resumes_total",
			Help:      "Resume attempts by status.",
		}, []string{"status"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentflow",
			Name:      "runs_total",
			Help:      "Completed runs by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}
	m.activeRuns.Inc()
}

func (m *Metrics) runStopped() {
	if m == nil {
		return
	}
	m.activeRuns.Dec()
}

func (m *Metrics) observeNode(nodeID string, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.nodeLatency.WithLabelValues(nodeID, status).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) countRetry(nodeID string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(nodeID).Inc()
}

func (m *Metrics) countSuspension(reason InterruptReason) {
	if m == nil {
		return
	}
	m.suspensions.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) countResume(status string) {
	if m == nil {
		return
	}
	m.resumes.WithLabelValues(status).Inc()
}

func (m *Metrics) countRun(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}
