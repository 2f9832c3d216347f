package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the dashboard server.
type Metrics struct {
	Requests *prometheus.CounterVec

	RequestLatency *prometheus.HistogramVec

	// Charts built by chart name and outcome kind
	Charts *prometheus.CounterVec

	// Snapshot reloads by result
	Reloads *prometheus.CounterVec

	SnapshotDatasets prometheus.Gauge
	SnapshotMissing  prometheus.Gauge
	SnapshotLoadedAt prometheus.Gauge
}

// NewMetrics registers the server metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "urbanrisk_http_requests_total",
			Help: "HTTP requests by route pattern, method and status",
		}, []string{"route", "method", "status"}),

		RequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "urbanrisk_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route"}),

		Charts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "urbanrisk_charts_total",
			Help: "Charts built by chart name and result",
		}, []string{"chart", "result"}),

		Reloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "urbanrisk_snapshot_reloads_total",
			Help: "Snapshot reloads by result",
		}, []string{"result"}),

		SnapshotDatasets: f.NewGauge(prometheus.GaugeOpts{
			Name: "urbanrisk_snapshot_datasets",
			Help: "Datasets loaded in the current snapshot",
		}),
		SnapshotMissing: f.NewGauge(prometheus.GaugeOpts{
			Name: "urbanrisk_snapshot_missing_datasets",
			Help: "Datasets whose files were absent when the current snapshot loaded",
		}),
		SnapshotLoadedAt: f.NewGauge(prometheus.GaugeOpts{
			Name: "urbanrisk_snapshot_loaded_timestamp_seconds",
			Help: "Unix time the current snapshot was loaded",
		}),
	}
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(route, method, status string, d time.Duration) {
	if m != nil {
		m.Requests.WithLabelValues(route, method, status).Inc()
		m.RequestLatency.WithLabelValues(route).Observe(d.Seconds())
	}
}

// IncrementChart records a chart build outcome.
func (m *Metrics) IncrementChart(chart, result string) {
	if m != nil {
		m.Charts.WithLabelValues(chart, result).Inc()
	}
}

// IncrementReload records a reload outcome.
func (m *Metrics) IncrementReload(result string) {
	if m != nil {
		m.Reloads.WithLabelValues(result).Inc()
	}
}

// SetSnapshot records the shape of the current snapshot.
func (m *Metrics) SetSnapshot(datasets, missing int, loadedAt time.Time) {
	if m != nil {
		m.SnapshotDatasets.Set(float64(datasets))
		m.SnapshotMissing.Set(float64(missing))
		m.SnapshotLoadedAt.Set(float64(loadedAt.Unix()))
	}
}
