package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors for retrieval runs. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Registry       *prometheus.Registry
	AttemptsTotal  *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	RowsSelected   *prometheus.CounterVec
	DownloadsTotal *prometheus.CounterVec
	ErrorsTotal    *prometheus.CounterVec
	Abandoned      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flows_attempts_total",
			Help: "Workflow attempts by measure and result.",
		},
		[]string{"measure", "result"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flows_run_duration_seconds",
			Help:    "Wall time of one workflow run.",
			Buckets: []float64{30, 60, 120, 300, 600, 900, 1800},
		},
		[]string{"measure"},
	)
	rows := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flows_rows_selected_total",
			Help: "Listing rows ticked for download, by round.",
		},
		[]string{"measure", "round"},
	)
	downloads := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flows_downloads_total",
			Help: "Download cycles by round and outcome.",
		},
		[]string{"round", "outcome"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flows_errors_total",
			Help: "Failed attempts by error kind.",
		},
		[]string{"kind"},
	)
	abandoned := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flows_accounts_abandoned_total",
			Help: "Accounts that exhausted their retries in a cycle.",
		},
		[]string{"measure"},
	)

	registry.MustRegister(attempts, duration, rows, downloads, errorsTotal, abandoned)

	return &Metrics{
		Registry:       registry,
		AttemptsTotal:  attempts,
		RunDuration:    duration,
		RowsSelected:   rows,
		DownloadsTotal: downloads,
		ErrorsTotal:    errorsTotal,
		Abandoned:      abandoned,
	}
}

func (m *Metrics) ObserveAttempt(measure string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.AttemptsTotal.WithLabelValues(measure, result).Inc()
	m.RunDuration.WithLabelValues(measure).Observe(d.Seconds())
}

func (m *Metrics) AddSelected(measure, round string, n int) {
	if m == nil {
		return
	}
	m.RowsSelected.WithLabelValues(measure, round).Add(float64(n))
}

func (m *Metrics) ObserveDownload(round string, f Fetch) {
	if m == nil {
		return
	}
	outcome := "incomplete"
	if f.Completed {
		outcome = "completed"
	}
	m.DownloadsTotal.WithLabelValues(round, outcome).Inc()
}

func (m *Metrics) IncError(err error) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorKind(err)).Inc()
}

func (m *Metrics) IncAbandoned(measure string) {
	if m == nil {
		return
	}
	m.Abandoned.WithLabelValues(measure).Inc()
}
