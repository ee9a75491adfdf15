package application

import (
	"context"
	"fmt"

	"http-kpi/domain"
	"http-kpi/infrastructure/logging"
	"http-kpi/infrastructure/metrics"
)

type UI interface {
	Init(total int)
	Update(current int)
	RenderKpis(rows []domain.KpiRow, diag domain.Diagnostics)
	Close()
}

type KpiService struct {
	repo       domain.RecordRepository
	writers    []domain.KpiWriter
	ui         UI
	batchSize  int
	aggregator *domain.Aggregator
	metrics    *metrics.Metrics
}

func NewKpiService(repo domain.RecordRepository, writers []domain.KpiWriter, ui UI, batchSize int, aggregator *domain.Aggregator, m *metrics.Metrics) *KpiService {
	return &KpiService{
		repo:       repo,
		writers:    writers,
		ui:         ui,
		batchSize:  batchSize,
		aggregator: aggregator,
		metrics:    m,
	}
}

// Run materializes the whole record set, aggregates it and hands the rows to
// every writer.
func (s *KpiService) Run(ctx context.Context) (domain.Result, error) {
	log := logging.Ctx(ctx)

	totalRecords, err := s.repo.GetTotalCount(ctx)
	if err != nil {
		return domain.Result{}, fmt.Errorf("failed to get total record count: %w", err)
	}
	log.Info().Int("records", totalRecords).Msg("Total records to process")

	records := make([]domain.LogRecord, 0, totalRecords)
	if totalRecords > 0 {
		s.ui.Init(totalRecords)
		for offset := 0; offset < totalRecords; offset += s.batchSize {
			batch, err := s.repo.GetRecords(ctx, offset, s.batchSize)
			if err != nil {
				s.ui.Close()
				return domain.Result{}, fmt.Errorf("failed to get records batch at offset %d: %w", offset, err)
			}
			if len(batch) == 0 {
				break
			}
			records = append(records, batch...)
			s.ui.Update(len(records))
		}
		s.ui.Close()
	}
	s.metrics.RecordsRead.Add(float64(len(records)))

	result := s.aggregator.Aggregate(records)
	if rc, ok := s.repo.(domain.RejectCounter); ok {
		result.Diagnostics.RejectedLines = rc.Rejected()
	}
	s.metrics.RecordsSkipped.WithLabelValues("malformed_timestamp").Add(float64(result.Diagnostics.MalformedTimestamps))
	s.metrics.RecordsSkipped.WithLabelValues("record_parse").Add(float64(result.Diagnostics.RejectedLines))
	s.metrics.KpiRows.Set(float64(len(result.Rows)))

	if result.Diagnostics.Skipped() > 0 {
		log.Warn().
			Int("malformed_timestamps", result.Diagnostics.MalformedTimestamps).
			Int("rejected_lines", result.Diagnostics.RejectedLines).
			Msg("Some input was excluded from aggregation")
	}

	for _, w := range s.writers {
		if err := w.WriteRows(ctx, result.Rows); err != nil {
			return result, fmt.Errorf("failed to write KPI rows: %w", err)
		}
	}
	log.Info().Int("groups", len(result.Rows)).Int("aggregated", result.Diagnostics.Aggregated).Msg("KPIs generated")

	s.ui.RenderKpis(result.Rows, result.Diagnostics)
	return result, nil
}
