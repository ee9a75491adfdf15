package application

import (
	"context"
	"errors"

	"http-kpi/domain"
	"http-kpi/infrastructure/httpbin"
)

type fakeRepo struct {
	records  []domain.LogRecord
	rejected int
	calls    int
	err      error
}

func (f *fakeRepo) GetTotalCount(ctx context.Context) (int, error) {
	return len(f.records), nil
}

func (f *fakeRepo) GetRecords(ctx context.Context, offset, limit int) ([]domain.LogRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	end := min(offset+limit, len(f.records))
	return f.records[offset:end], nil
}

func (f *fakeRepo) Rejected() int { return f.rejected }

type fakeUI struct {
	total   int
	updates []int
	rows    []domain.KpiRow
	diag    domain.Diagnostics
	closed  bool
}

func (u *fakeUI) Init(total int)     { u.total = total }
func (u *fakeUI) Update(current int) { u.updates = append(u.updates, current) }
func (u *fakeUI) Close()             { u.closed = true }
func (u *fakeUI) RenderKpis(rows []domain.KpiRow, diag domain.Diagnostics) {
	u.rows = rows
	u.diag = diag
}

type memoryStore struct {
	rows    []domain.KpiRow
	records []domain.LogRecord
	err     error
}

func (m *memoryStore) WriteRows(ctx context.Context, rows []domain.KpiRow) error {
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, rows...)
	return nil
}

func (m *memoryStore) ReadRows(ctx context.Context) ([]domain.KpiRow, error) {
	return m.rows, m.err
}

func (m *memoryStore) WriteRecords(ctx context.Context, records []domain.LogRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, records...)
	return nil
}

type fakeHarvester struct {
	records []domain.LogRecord
	failing map[string]bool
}

func (h *fakeHarvester) DefaultTasks() []httpbin.Task {
	return []httpbin.Task{
		{Name: "one", Run: func(ctx context.Context) error { return nil }},
		{Name: "two", Run: func(ctx context.Context) error { return nil }},
	}
}

func (h *fakeHarvester) RunTasks(ctx context.Context, tasks []httpbin.Task) []httpbin.TaskResult {
	var out []httpbin.TaskResult
	for _, t := range tasks {
		var err error
		if h.failing[t.Name] {
			err = errors.New("boom")
		}
		h.records = append(h.records, domain.LogRecord{Timestamp: "2025-01-01T00:00:00Z", EndpointRaw: "/" + t.Name, StatusCode: domain.IntPtr(200)})
		out = append(out, httpbin.TaskResult{Name: t.Name, Err: err})
	}
	return out
}

func (h *fakeHarvester) Records() []domain.LogRecord { return h.records }

type fixedGenerator struct{}

func (fixedGenerator) Generate(n int) []domain.LogRecord {
	out := make([]domain.LogRecord, n)
	for i := range out {
		out[i] = domain.LogRecord{Timestamp: "2025-01-01T00:00:00Z", EndpointRaw: "/get", StatusCode: domain.IntPtr(200)}
	}
	return out
}
