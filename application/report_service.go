package application

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"http-kpi/domain"
	"http-kpi/infrastructure/logging"
	"http-kpi/infrastructure/metrics"
)

type GlobalMetrics struct {
	TotalRequests int
	Pct2xx        float64
	PctErrors     float64
	// P90Ms is approximated as the p90 of the per-row p90 values.
	P90Ms         *float64
}

type EndpointSummary struct {
	EndpointBase  string
	RequestsTotal int
	Success2xx    int
	Client4xx     int
	Server5xx     int
	ParseErrors   int
	Pct2xx        float64
	Pct4xx        float64
	Pct5xx        float64
	AvgElapsedMs  *float64
	P90ElapsedMs  *float64
	AlertP90      bool
}

type Report struct {
	GeneratedAt time.Time
	ThresholdMs float64
	DateFrom    string
	DateTo      string
	Global      GlobalMetrics
	Endpoints   []EndpointSummary
	AlertCount  int
}

type ReportRenderer interface {
	Render(ctx context.Context, report Report) error
}

type ReportUI interface {
	RenderSummary(report Report)
}

// BuildReport folds daily rows into one summary per endpoint. Averages and p90
// are weighted by the request count of the rows that carry a latency value.
func BuildReport(rows []domain.KpiRow, thresholdMs float64, now time.Time) Report {
	report := Report{GeneratedAt: now.UTC(), ThresholdMs: thresholdMs}

	type acc struct {
		summary EndpointSummary
		avgSum  float64
		p90Sum  float64
		weight  int
	}
	byEndpoint := make(map[string]*acc)
	var rowP90s []float64
	var ok2xx, errs int

	for _, r := range rows {
		if report.DateFrom == "" || r.DateUTC < report.DateFrom {
			report.DateFrom = r.DateUTC
		}
		if r.DateUTC > report.DateTo {
			report.DateTo = r.DateUTC
		}
		report.Global.TotalRequests += r.RequestsTotal
		ok2xx += r.Success2xx
		errs += r.Client4xx + r.Server5xx

		a, found := byEndpoint[r.EndpointBase]
		if !found {
			a = &acc{summary: EndpointSummary{EndpointBase: r.EndpointBase}}
			byEndpoint[r.EndpointBase] = a
		}
		a.summary.RequestsTotal += r.RequestsTotal
		a.summary.Success2xx += r.Success2xx
		a.summary.Client4xx += r.Client4xx
		a.summary.Server5xx += r.Server5xx
		a.summary.ParseErrors += r.ParseErrors
		if r.AvgElapsedMs != nil && r.P90ElapsedMs != nil {
			a.avgSum += *r.AvgElapsedMs * float64(r.RequestsTotal)
			a.p90Sum += *r.P90ElapsedMs * float64(r.RequestsTotal)
			a.weight += r.RequestsTotal
		}
		if r.P90ElapsedMs != nil {
			rowP90s = append(rowP90s, *r.P90ElapsedMs)
		}
	}

	report.Global.Pct2xx = pct(ok2xx, report.Global.TotalRequests)
	report.Global.PctErrors = pct(errs, report.Global.TotalRequests)
	if p, ok := domain.Percentile(rowP90s, 90); ok {
		report.Global.P90Ms = domain.Float64Ptr(round2(p))
	}

	for _, a := range byEndpoint {
		s := a.summary
		s.Pct2xx = pct(s.Success2xx, s.RequestsTotal)
		s.Pct4xx = pct(s.Client4xx, s.RequestsTotal)
		s.Pct5xx = pct(s.Server5xx, s.RequestsTotal)
		if a.weight > 0 {
			s.AvgElapsedMs = domain.Float64Ptr(round2(a.avgSum / float64(a.weight)))
			s.P90ElapsedMs = domain.Float64Ptr(round2(a.p90Sum / float64(a.weight)))
			s.AlertP90 = *s.P90ElapsedMs > thresholdMs
		}
		if s.AlertP90 {
			report.AlertCount++
		}
		report.Endpoints = append(report.Endpoints, s)
	}
	sort.Slice(report.Endpoints, func(i, j int) bool {
		a, b := report.Endpoints[i], report.Endpoints[j]
		if a.RequestsTotal != b.RequestsTotal {
			return a.RequestsTotal > b.RequestsTotal
		}
		return a.EndpointBase < b.EndpointBase
	})
	return report
}

func pct(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) * 100 / float64(total))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type ReportService struct {
	reader    domain.KpiReader
	renderers []ReportRenderer
	ui        ReportUI
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewReportService(reader domain.KpiReader, renderers []ReportRenderer, ui ReportUI, m *metrics.Metrics) *ReportService {
	return &ReportService{
		reader:    reader,
		renderers: renderers,
		ui:        ui,
		metrics:   m,
		now:       time.Now,
	}
}

func (s *ReportService) Run(ctx context.Context, thresholdMs float64) (Report, error) {
	if thresholdMs <= 0 || math.IsNaN(thresholdMs) || math.IsInf(thresholdMs, 0) {
		return Report{}, fmt.Errorf("p90 threshold must be a positive number of milliseconds, got %v", thresholdMs)
	}

	rows, err := s.reader.ReadRows(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to read KPI rows: %w", err)
	}

	report := BuildReport(rows, thresholdMs, s.now())
	s.metrics.ReportAlerts.Set(float64(report.AlertCount))

	for _, r := range s.renderers {
		if err := r.Render(ctx, report); err != nil {
			return report, fmt.Errorf("failed to render report: %w", err)
		}
	}

	log := logging.Ctx(ctx)
	for _, e := range report.Endpoints {
		if e.AlertP90 {
			log.Warn().Str("endpoint", e.EndpointBase).Float64("p90_ms", *e.P90ElapsedMs).Float64("threshold_ms", thresholdMs).Msg("p90 over threshold")
		}
	}
	log.Info().Int("endpoints", len(report.Endpoints)).Int("alerts", report.AlertCount).Msg("Report generated")

	if s.ui != nil {
		s.ui.RenderSummary(report)
	}
	return report, nil
}
