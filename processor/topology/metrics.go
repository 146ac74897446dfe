package topology

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records engine counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	filesWalked        prometheus.Counter
	extractionFailures prometheus.Counter
	edgesDiscovered    prometheus.Counter
	runs               *prometheus.CounterVec
	runDuration        prometheus.Histogram
}

// NewMetrics creates the engine metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		filesWalked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "semtopo_files_walked_total",
			Help: "Files produced by the repository walk stage.",
		}),
		extractionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "semtopo_extraction_failures_total",
			Help: "Files whose read, decode or parse failed during analysis.",
		}),
		edgesDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "semtopo_edges_discovered_total",
			Help: "Dependency edges emitted by completed runs.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "semtopo_runs_total",
			Help: "Topology runs by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "semtopo_run_duration_seconds",
			Help:    "Wall time of a full topology run.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	for _, c := range []prometheus.Collector{
		m.filesWalked, m.extractionFailures, m.edgesDiscovered, m.runs, m.runDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) observeWalk(files int) {
	if m == nil {
		return
	}
	m.filesWalked.Add(float64(files))
}

func (m *Metrics) observeFailure() {
	if m == nil {
		return
	}
	m.extractionFailures.Inc()
}

func (m *Metrics) observeRun(result string, edges int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	m.runDuration.Observe(elapsed.Seconds())
	if edges > 0 {
		m.edgesDiscovered.Add(float64(edges))
	}
}
