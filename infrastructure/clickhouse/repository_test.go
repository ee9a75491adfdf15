package clickhouse

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	"http-kpi/domain"
)

func TestRecordFromRow(t *testing.T) {
	ts := time.Date(2025, 1, 10, 10, 0, 0, 0, time.FixedZone("X", 3600))

	rec := recordFromRow(ts, "/status/403", sql.NullInt64{Int64: 403, Valid: true}, sql.NullFloat64{}, 1)

	if rec.Timestamp != "2025-01-10T09:00:00Z" {
		t.Errorf("timestamp = %q", rec.Timestamp)
	}
	if rec.StatusCode == nil || *rec.StatusCode != 403 {
		t.Errorf("status = %v", rec.StatusCode)
	}
	if rec.ElapsedMs != nil {
		t.Errorf("elapsed should be nil, got %v", *rec.ElapsedMs)
	}
	if !rec.ParseError {
		t.Error("expected parse error flag")
	}
}

func TestRecordArgs(t *testing.T) {
	args, err := recordArgs(domain.LogRecord{
		Timestamp:   "2025-01-10T10:00:00Z",
		EndpointRaw: "/get",
		StatusCode:  domain.IntPtr(200),
	})
	if err != nil {
		t.Fatalf("recordArgs: %v", err)
	}
	if status, ok := args[2].(*uint16); !ok || *status != 200 {
		t.Errorf("status arg = %#v", args[2])
	}
	if args[4].(uint8) != 0 {
		t.Errorf("parse_error arg = %v", args[4])
	}

	if _, err := recordArgs(domain.LogRecord{Timestamp: "yesterday"}); err == nil {
		t.Error("expected error for malformed timestamp")
	}
}

func TestRecordArgsRejectsOutOfRangeStatus(t *testing.T) {
	for _, code := range []int{65736, -1} {
		_, err := recordArgs(domain.LogRecord{
			Timestamp:   "2025-01-10T10:00:00Z",
			EndpointRaw: "/get",
			StatusCode:  domain.IntPtr(code),
		})
		if err == nil {
			t.Errorf("status %d: expected error instead of a truncated UInt16", code)
		}
	}
}

func TestRecordsPageQueryHasTotalOrder(t *testing.T) {
	want := "ORDER BY timestamp_utc, endpoint, status_code, elapsed_ms, parse_error"
	if !strings.Contains(recordsPageQuery, want) {
		t.Errorf("paging query must order by every column:\n%s", recordsPageQuery)
	}
	if !strings.Contains(recordsPageQuery, "LIMIT ? OFFSET ?") {
		t.Errorf("paging query lost its LIMIT/OFFSET:\n%s", recordsPageQuery)
	}
}

func TestKpiArgs(t *testing.T) {
	args, err := kpiArgs(domain.KpiRow{DateUTC: "2025-01-10", EndpointBase: "/get", RequestsTotal: 3, Success2xx: 3})
	if err != nil {
		t.Fatalf("kpiArgs: %v", err)
	}
	if len(args) != len(domain.KpiColumns) {
		t.Errorf("args = %d, want %d", len(args), len(domain.KpiColumns))
	}
	if d := args[0].(time.Time); d.Format(domain.DateLayout) != "2025-01-10" {
		t.Errorf("date arg = %v", d)
	}
	if p := args[8].(*float64); p != nil {
		t.Errorf("p90 arg should be nil, got %v", *p)
	}

	if _, err := kpiArgs(domain.KpiRow{DateUTC: "10/01/2025"}); err == nil {
		t.Error("expected error for bad date")
	}
}
