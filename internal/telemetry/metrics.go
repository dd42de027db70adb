package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"db-health-agent/internal/model"
)

// Metrics are the agent's own counters, registered on a private registry so tests can build
// as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	// Cycle metrics
	Cycles              *prometheus.CounterVec
	CycleDuration       prometheus.Histogram
	SlowCycles          prometheus.Counter
	SkippedTicks        prometheus.Counter
	WatchedProcesses    prometheus.Gauge
	DroppedObservations prometheus.Counter
	PartialRecords      prometheus.Counter
	CounterRegressions  prometheus.Counter
	VerdictLevels       *prometheus.GaugeVec

	// Emitter metrics
	ReportsSent     prometheus.Counter
	ReportsReplaced prometheus.Counter
	SinkFailures    prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dbhealth_cycles_total",
			Help: "Total number of collection cycles by outcome",
		}, []string{"outcome"}),

		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dbhealth_cycle_duration_seconds",
			Help:    "Wall time of one collection cycle",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),

		SlowCycles: f.NewCounter(prometheus.CounterOpts{
			Name: "dbhealth_slow_cycles_total",
			Help: "Total number of cycles that overran the poll interval",
		}),

		SkippedTicks: f.NewCounter(prometheus.CounterOpts{
			Name: "dbhealth_skipped_ticks_total",
			Help: "Total number of scheduled ticks skipped because a cycle overran",
		}),

		WatchedProcesses: f.NewGauge(prometheus.GaugeOpts{
			Name: "dbhealth_watched_processes",
			Help: "Number of watched processes observed in the last cycle",
		}),

		DroppedObservations: f.NewCounter(prometheus.CounterOpts{
			Name: "dbhealth_dropped_observations_total",
			Help: "Total number of candidates that vanished or had no identity during collection",
		}),

		PartialRecords: f.NewCounter(prometheus.CounterOpts{
			Name: "dbhealth_partial_records_total",
			Help: "Total number of process records with at least one unknown field",
		}),

		CounterRegressions: f.NewCounter(prometheus.CounterOpts{
			Name: "dbhealth_counter_regressions_total",
			Help: "Total number of cumulative counters that decreased under the same identity",
		}),

		VerdictLevels: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dbhealth_verdicts",
			Help: "Number of verdicts per level in the last cycle",
		}, []string{"level"}),

		ReportsSent: f.NewCounter(prometheus.CounterOpts{
			Name: "dbhealth_reports_sent_total",
			Help: "Total number of reports accepted by the sink",
		}),

		ReportsReplaced: f.NewCounter(prometheus.CounterOpts{
			Name: "dbhealth_reports_replaced_total",
			Help: "Total number of pending reports replaced by a newer one before delivery",
		}),

		SinkFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "dbhealth_sink_failures_total",
			Help: "Total number of failed report deliveries",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveReport records the per-cycle numbers carried in a finished report.
func (m *Metrics) ObserveReport(r model.Report) {
	if m == nil {
		return
	}
	outcome := "completed"
	if r.Stats.Abandoned {
		outcome = "abandoned"
	}
	m.Cycles.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(float64(r.Stats.DurationMs) / 1000)
	if r.Stats.SlowCycle {
		m.SlowCycles.Inc()
	}
	m.SkippedTicks.Add(float64(r.Stats.SkippedTicks))
	m.WatchedProcesses.Set(float64(r.Stats.Collected))
	m.DroppedObservations.Add(float64(r.Stats.DroppedObservations))
	m.PartialRecords.Add(float64(r.Stats.PartialRecords))
	m.CounterRegressions.Add(float64(r.Stats.CounterRegressions))

	counts := map[model.Level]int{}
	for _, v := range r.Verdicts {
		counts[v.Level]++
	}
	for _, l := range []model.Level{model.LevelUnknown, model.LevelHealthy, model.LevelDegraded, model.LevelCritical} {
		m.VerdictLevels.WithLabelValues(l.String()).Set(float64(counts[l]))
	}
}
