package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "forecast_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the importer.
type Metrics struct {
	RunsTotal         prometheus.Counter
	FetchErrors       prometheus.Counter
	HourlyRecords     prometheus.Counter
	PointsWritten     *prometheus.CounterVec // labels: series={forecast,forecast_history}
	WriteErrors       *prometheus.CounterVec // labels: series={forecast,forecast_history}
	MirrorErrors      *prometheus.CounterVec // labels: series={forecast,forecast_history}
	RunDuration       prometheus.Histogram
	LastRunTimestamp  prometheus.Gauge
	ScheduleRecurring prometheus.Gauge
}

// NewMetrics creates and registers all importer metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.RunsTotal,
		m.FetchErrors,
		m.HourlyRecords,
		m.PointsWritten,
		m.WriteErrors,
		m.MirrorErrors,
		m.RunDuration,
		m.LastRunTimestamp,
		m.ScheduleRecurring,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total import runs started.",
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Total forecast fetches that failed; the location was skipped for that run.",
		}),
		HourlyRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hourly_records_total",
			Help:      "Total hourly forecast records received from the provider.",
		}),
		PointsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_written_total",
			Help:      "Points successfully written, by series.",
		}, []string{"series"}),
		WriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_errors_total",
			Help:      "Failed write calls, by series.",
		}, []string{"series"}),
		MirrorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_errors_total",
			Help:      "Points written to InfluxDB that a Kafka or MQTT mirror failed to accept, by series.",
		}, []string{"series"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete run over all configured locations.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		ScheduleRecurring: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "schedule_recurring",
			Help:      "1 when running on a cron schedule, 0 for a one-shot import.",
		}),
	}
}
