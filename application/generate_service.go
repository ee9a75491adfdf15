package application

import (
	"context"
	"fmt"

	"http-kpi/domain"
	"http-kpi/infrastructure/logging"
)

type RecordGenerator interface {
	Generate(n int) []domain.LogRecord
}

type GenerateService struct {
	generator RecordGenerator
	writer    domain.RecordWriter
}

func NewGenerateService(generator RecordGenerator, writer domain.RecordWriter) *GenerateService {
	return &GenerateService{generator: generator, writer: writer}
}

func (s *GenerateService) Run(ctx context.Context, n int) error {
	if n < 0 {
		return fmt.Errorf("record count must not be negative, got %d", n)
	}
	records := s.generator.Generate(n)
	if err := s.writer.WriteRecords(ctx, records); err != nil {
		return fmt.Errorf("failed to write generated records: %w", err)
	}
	logging.Ctx(ctx).Info().Int("records", len(records)).Msg("Synthetic records generated")
	return nil
}

type multiRecordWriter []domain.RecordWriter

func (m multiRecordWriter) WriteRecords(ctx context.Context, records []domain.LogRecord) error {
	for _, w := range m {
		if err := w.WriteRecords(ctx, records); err != nil {
			return err
		}
	}
	return nil
}

// MultiRecordWriter writes to each writer in turn and stops at the first error.
func MultiRecordWriter(writers ...domain.RecordWriter) domain.RecordWriter {
	if len(writers) == 1 {
		return writers[0]
	}
	return multiRecordWriter(writers)
}
