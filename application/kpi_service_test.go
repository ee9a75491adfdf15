package application

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"http-kpi/domain"
	"http-kpi/infrastructure/metrics"
)

func records(n int) []domain.LogRecord {
	out := make([]domain.LogRecord, 0, n)
	for i := range n {
		out = append(out, domain.LogRecord{
			Timestamp:   fmt.Sprintf("2025-01-0%dT10:00:00Z", i%2+1),
			EndpointRaw: fmt.Sprintf("/status/%d", 200+i),
			StatusCode:  domain.IntPtr(200),
			ElapsedMs:   domain.Float64Ptr(float64(100 + i)),
		})
	}
	return out
}

func TestKpiServiceRun(t *testing.T) {
	recs := records(7)
	recs = append(recs, domain.LogRecord{Timestamp: "garbage", EndpointRaw: "/get"})
	repo := &fakeRepo{records: recs, rejected: 2}
	ui := &fakeUI{}
	csv, ch := &memoryStore{}, &memoryStore{}
	m := metrics.New()

	svc := NewKpiService(repo, []domain.KpiWriter{csv, ch}, ui, 3, domain.NewAggregator(nil), m)
	res, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if repo.calls != 3 {
		t.Errorf("batches fetched = %d, want 3", repo.calls)
	}
	if ui.total != 8 || !ui.closed {
		t.Errorf("ui not driven: total=%d closed=%v", ui.total, ui.closed)
	}
	if got := ui.updates[len(ui.updates)-1]; got != 8 {
		t.Errorf("last progress = %d, want 8", got)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %d, want 2: %+v", len(res.Rows), res.Rows)
	}
	if res.Rows[0].RequestsTotal+res.Rows[1].RequestsTotal != 7 {
		t.Errorf("rows do not cover all valid records: %+v", res.Rows)
	}
	want := domain.Diagnostics{Aggregated: 7, MalformedTimestamps: 1, RejectedLines: 2}
	if res.Diagnostics != want || ui.diag != want {
		t.Errorf("diagnostics = %+v, ui = %+v, want %+v", res.Diagnostics, ui.diag, want)
	}
	if len(csv.rows) != 2 || len(ch.rows) != 2 {
		t.Errorf("writers got %d and %d rows", len(csv.rows), len(ch.rows))
	}

	if got := testutil.ToFloat64(m.RecordsRead); got != 8 {
		t.Errorf("records read metric = %v", got)
	}
	if got := testutil.ToFloat64(m.RecordsSkipped.WithLabelValues("record_parse")); got != 2 {
		t.Errorf("record_parse skipped metric = %v", got)
	}
	if got := testutil.ToFloat64(m.KpiRows); got != 2 {
		t.Errorf("kpi rows metric = %v", got)
	}
}

func TestKpiServiceEmptySource(t *testing.T) {
	ui := &fakeUI{}
	store := &memoryStore{}
	svc := NewKpiService(&fakeRepo{}, []domain.KpiWriter{store}, ui, 10, domain.NewAggregator(nil), metrics.New())

	res, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Rows) != 0 || ui.total != 0 {
		t.Errorf("unexpected result %+v, ui total %d", res, ui.total)
	}
}

func TestKpiServiceErrors(t *testing.T) {
	boom := errors.New("boom")

	repo := &fakeRepo{records: records(2), err: boom}
	ui := &fakeUI{}
	_, err := NewKpiService(repo, nil, ui, 10, domain.NewAggregator(nil), metrics.New()).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("fetch error = %v, want wrapped boom", err)
	}
	if !ui.closed {
		t.Error("progress bar must be closed on fetch error")
	}

	store := &memoryStore{err: boom}
	_, err = NewKpiService(&fakeRepo{records: records(2)}, []domain.KpiWriter{store}, &fakeUI{}, 10, domain.NewAggregator(nil), metrics.New()).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("write error = %v, want wrapped boom", err)
	}
}
