package application

import (
	"context"
	"fmt"

	"http-kpi/domain"
	"http-kpi/infrastructure/httpbin"
	"http-kpi/infrastructure/logging"
)

type Harvester interface {
	DefaultTasks() []httpbin.Task
	RunTasks(ctx context.Context, tasks []httpbin.Task) []httpbin.TaskResult
	Records() []domain.LogRecord
}

type HarvestService struct {
	client Harvester
	writer domain.RecordWriter
}

func NewHarvestService(client Harvester, writer domain.RecordWriter) *HarvestService {
	return &HarvestService{client: client, writer: writer}
}

// Run executes the demo API walkthrough and persists every observed attempt,
// including those of failed tasks, before reporting task failures.
func (s *HarvestService) Run(ctx context.Context) error {
	results := s.client.RunTasks(ctx, s.client.DefaultTasks())
	records := s.client.Records()

	if err := s.writer.WriteRecords(ctx, records); err != nil {
		return fmt.Errorf("failed to write harvested records: %w", err)
	}

	failed := httpbin.Failed(results)
	logging.Ctx(ctx).Info().
		Int("tasks", len(results)).
		Int("records", len(records)).
		Bool("all_ok", failed == nil).
		Msg("Harvest finished")
	return failed
}
