// Package metrics holds the pipeline's Prometheus collectors. Runs are short
// lived, so the registry is written to a node-exporter textfile instead of
// being scraped.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Registry *prometheus.Registry

	RecordsRead    prometheus.Counter
	RecordsSkipped *prometheus.CounterVec
	KpiRows        prometheus.Gauge
	HTTPRequests   *prometheus.CounterVec
	HTTPLatency    *prometheus.HistogramVec
	RunDuration    *prometheus.GaugeVec
	LastSuccess    *prometheus.GaugeVec
	ReportAlerts   prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RecordsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kpi_records_read_total",
			Help: "Log records read from the source",
		}),
		RecordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kpi_records_skipped_total",
			Help: "Input excluded from aggregation, by reason",
		}, []string{"reason"}),
		KpiRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kpi_rows",
			Help: "KPI rows produced by the last aggregation",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kpi_harvest_requests_total",
			Help: "Demo API requests made by harvest, by endpoint and status class",
		}, []string{"endpoint", "class"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kpi_harvest_request_duration_seconds",
			Help:    "Demo API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		RunDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kpi_run_duration_seconds",
			Help: "Wall time of the last run, by command",
		}, []string{"command"}),
		LastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kpi_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run, by command",
		}, []string{"command"}),
		ReportAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kpi_report_p90_alerts",
			Help: "Endpoints over the p90 threshold in the last report",
		}),
	}
	m.Registry.MustRegister(
		m.RecordsRead,
		m.RecordsSkipped,
		m.KpiRows,
		m.HTTPRequests,
		m.HTTPLatency,
		m.RunDuration,
		m.LastSuccess,
		m.ReportAlerts,
	)
	return m
}

func (m *Metrics) ObserveRun(command string, started time.Time, err error) {
	m.RunDuration.WithLabelValues(command).Set(time.Since(started).Seconds())
	if err == nil {
		m.LastSuccess.WithLabelValues(command).SetToCurrentTime()
	}
}

// StatusClass buckets an HTTP status for labelling; 0 means no response.
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "none"
	}
	return fmt.Sprintf("%dxx", code/100)
}

// WriteTextfile is a no-op when path is empty.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}
