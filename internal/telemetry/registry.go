// Package telemetry is the Telemetry Facade (C1): a named registry of
// counters/gauges/histograms with timeframe queries, periodic snapshot
// persistence, a push channel for live subscribers, and Prometheus
// exposition of the fixed system-level gauges/histograms.
package telemetry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/l2labs/rollup-sequencer/internal/config"
)

// Kind identifies what a named series represents.
type Kind int

const (
	KindCounter Kind = iota
	KindGauge
	KindHistogram
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	case KindHistogram:
		return "histogram"
	default:
		return "unknown"
	}
}

// Point is a single recorded sample.
type Point struct {
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// series is one named metric's capped point buffer plus its running value
// (the cumulative total for a counter, the last-set value for a gauge).
type series struct {
	kind    Kind
	points  []Point
	current float64
}

// Registry is the in-process metrics store. It satisfies the narrow
// disruptor.Metrics and bridge-facing metrics interfaces directly.
type Registry struct {
	cfg config.TelemetryConfig
	log *slog.Logger

	mu     sync.RWMutex
	series map[string]*series

	prom *promMetrics
	push *pushHub

	closed chan struct{}
	wg     sync.WaitGroup
}

// NewRegistry constructs a Registry and, if cfg.PushEnabled, starts its push
// hub. Callers should call Run to start background persistence and Close to
// stop it.
func NewRegistry(cfg config.TelemetryConfig, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		cfg:    cfg,
		log:    log.With("component", "telemetry"),
		series: make(map[string]*series),
		prom:   newPromMetrics(),
		closed: make(chan struct{}),
	}
	if cfg.PushEnabled {
		r.push = newPushHub(r.log)
		go r.push.run()
	}
	if err := r.loadLatestSnapshot(); err != nil {
		r.log.Warn("no usable metrics snapshot on startup", "error", err)
	}
	return r
}

// Run starts the periodic persistence loop; it returns once ctx is done.
func (r *Registry) Run(ctx context.Context) {
	r.wg.Add(1)
	defer r.wg.Done()
	interval := time.Duration(r.cfg.PersistIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.closed:
			return
		case <-ticker.C:
			if err := r.persistSnapshot(); err != nil {
				r.log.Error("metrics snapshot persist failed", "error", err)
			}
		}
	}
}

// Close stops the push hub and waits for the persistence loop to exit.
func (r *Registry) Close() {
	close(r.closed)
	if r.push != nil {
		r.push.close()
	}
	r.wg.Wait()
}

func (r *Registry) record(name string, kind Kind, value float64, labels map[string]string, cumulative bool) {
	r.mu.Lock()
	s, ok := r.series[name]
	if !ok {
		s = &series{kind: kind}
		r.series[name] = s
	}
	if cumulative {
		s.current += value
	} else {
		s.current = value
	}
	maxPoints := r.cfg.MaxPoints
	if maxPoints <= 0 {
		maxPoints = 1440
	}
	s.points = append(s.points, Point{Timestamp: time.Now(), Value: s.current, Labels: labels})
	if len(s.points) > maxPoints {
		s.points = s.points[len(s.points)-maxPoints:]
	}
	r.mu.Unlock()

	if r.push != nil {
		r.push.publish(pushEvent{
			EventType: eventTypeForKind(kind),
			Name:      name,
			Timestamp: time.Now(),
			Value:     s.current,
			Metadata:  labels,
		})
	}
}

// IncCounter adds delta to the named monotonic counter.
func (r *Registry) IncCounter(name string, delta float64, labels map[string]string) {
	r.record(name, KindCounter, delta, labels, true)
	r.prom.observeCounter(name, delta, labels)
}

// SetGauge sets the named gauge to value.
func (r *Registry) SetGauge(name string, value float64, labels map[string]string) {
	r.record(name, KindGauge, value, labels, false)
	r.prom.observeGauge(name, value, labels)
}

// ObserveHistogram records one observation against the named histogram.
func (r *Registry) ObserveHistogram(name string, value float64, labels map[string]string) {
	r.record(name, KindHistogram, value, labels, false)
	r.prom.observeHistogram(name, value, labels)
}

func eventTypeForKind(k Kind) string {
	switch k {
	case KindCounter, KindGauge:
		return "metric"
	default:
		return "metric"
	}
}

// Historical returns the points for name newer than now-window, per
// timeframe.
func (r *Registry) Historical(name string, tf Timeframe) []Point {
	window, ok := tf.Duration()
	if !ok {
		return nil
	}
	cutoff := time.Now().Add(-window)

	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.series[name]
	if !ok {
		return nil
	}
	out := make([]Point, 0, len(s.points))
	for _, p := range s.points {
		if p.Timestamp.After(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

// Analysis computes summary statistics over name's points within timeframe.
func (r *Registry) Analysis(name string, tf Timeframe) Stats {
	points := r.Historical(name, tf)
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return computeStats(values)
}

// Names returns every currently tracked metric name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.series))
	for name := range r.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a point-in-time copy of every series' current value,
// keyed by name — used for the /api/metrics/system and
// /api/metrics/components endpoints.
func (r *Registry) Snapshot() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]float64, len(r.series))
	for name, s := range r.series {
		out[name] = s.current
	}
	return out
}
