package telemetry

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// promMetrics holds the fixed Prometheus exposition §6.4 requires on
// GET /metrics: tps, latency histogram, queue size, batch size histogram,
// success/error rate, component status.
type promMetrics struct {
	registry        *prometheus.Registry
	tps             prometheus.Counter
	latency         *prometheus.HistogramVec
	queueSize       *prometheus.GaugeVec
	batchSize       *prometheus.HistogramVec
	operationsTotal *prometheus.CounterVec
	componentStatus *prometheus.GaugeVec
}

// newPromMetrics registers against a private prometheus.Registry rather
// than the global DefaultRegisterer, so multiple Registry instances (as in
// tests) never collide on duplicate metric names.
func newPromMetrics() *promMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &promMetrics{
		registry: reg,
		tps: factory.NewCounter(prometheus.CounterOpts{
			Name: "rollup_transactions_total",
			Help: "Total operations processed across the sequencer.",
		}),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rollup_operation_latency_seconds",
				Help:    "Operation processing latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		queueSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rollup_queue_size",
				Help: "Current size of a priority queue.",
			},
			[]string{"kind", "priority"},
		),
		batchSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rollup_batch_size",
				Help:    "Number of operations per dispatched batch.",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"kind"},
		),
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollup_operations_total",
				Help: "Operations completed, partitioned by outcome.",
			},
			[]string{"status"},
		),
		componentStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rollup_component_status",
				Help: "1 if the named component is healthy, 0 otherwise.",
			},
			[]string{"component"},
		),
	}
}

// observeCounter routes a generic counter sample onto one of the fixed
// Prometheus series when its name matches a recognized convention;
// everything else stays in-process-only (the /api/metrics/* endpoints
// still expose it).
func (p *promMetrics) observeCounter(name string, delta float64, labels map[string]string) {
	switch {
	case name == "rollup_tps" || name == "bridge_operations_completed_total":
		p.tps.Add(delta)
	case strings.HasSuffix(name, "_completed_total"):
		status := labels["status"]
		if status == "" {
			status = "unknown"
		}
		p.operationsTotal.WithLabelValues(status).Add(delta)
	}
}

func (p *promMetrics) observeGauge(name string, value float64, labels map[string]string) {
	switch {
	case strings.HasSuffix(name, "_queue_size"):
		p.queueSize.WithLabelValues(labels["kind"], labels["priority"]).Set(value)
	case name == "component_status":
		p.componentStatus.WithLabelValues(labels["component"]).Set(value)
	}
}

func (p *promMetrics) observeHistogram(name string, value float64, labels map[string]string) {
	switch {
	case strings.HasSuffix(name, "_latency_seconds") || strings.HasSuffix(name, "_duration_seconds"):
		p.latency.WithLabelValues(labels["operation"]).Observe(value)
	case strings.HasSuffix(name, "_batch_size"):
		p.batchSize.WithLabelValues(labels["kind"]).Observe(value)
	}
}
