package domain

import (
	"math"
	"math/rand/v2"
	"reflect"
	"testing"
)

func rec(ts, endpoint string, status int, elapsed float64) LogRecord {
	return LogRecord{
		Timestamp:   ts,
		EndpointRaw: endpoint,
		StatusCode:  IntPtr(status),
		ElapsedMs:   Float64Ptr(elapsed),
	}
}

func conserved(r KpiRow) bool {
	return r.Success2xx+r.Client4xx+r.Server5xx+r.ParseErrors+r.OtherStatus == r.RequestsTotal
}

func TestAggregateStatusScenario(t *testing.T) {
	records := []LogRecord{
		rec("2025-01-10T08:00:00Z", "/status/403", 403, 100),
		rec("2025-01-10T09:00:00Z", "/status/500", 500, 200),
		rec("2025-01-10T10:00:00Z", "/status/200", 200, 300),
	}

	res := NewAggregator(nil).Aggregate(records)

	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d: %+v", len(res.Rows), res.Rows)
	}
	row := res.Rows[0]
	if row.DateUTC != "2025-01-10" || row.EndpointBase != "/status" {
		t.Errorf("unexpected key: %s %s", row.DateUTC, row.EndpointBase)
	}
	if row.RequestsTotal != 3 || row.Success2xx != 1 || row.Client4xx != 1 || row.Server5xx != 1 || row.ParseErrors != 0 {
		t.Errorf("unexpected counts: %+v", row)
	}
	if row.AvgElapsedMs == nil || *row.AvgElapsedMs != 200 {
		t.Errorf("avg = %v, want 200", row.AvgElapsedMs)
	}
	if row.P90ElapsedMs == nil || math.Abs(*row.P90ElapsedMs-280) > 1e-9 {
		t.Errorf("p90 = %v, want 280", row.P90ElapsedMs)
	}
}

func TestAggregateP90(t *testing.T) {
	var records []LogRecord
	for _, v := range []float64{300, 100, 500, 200, 400} {
		records = append(records, rec("2025-01-10T00:00:00Z", "/get", 200, v))
	}
	single := []LogRecord{rec("2025-01-10T00:00:00Z", "/xml", 200, 120)}

	agg := NewAggregator(nil)

	row := agg.Aggregate(records).Rows[0]
	if math.Abs(*row.P90ElapsedMs-460) > 1e-9 {
		t.Errorf("p90 = %v, want 460", *row.P90ElapsedMs)
	}
	row = agg.Aggregate(single).Rows[0]
	if *row.P90ElapsedMs != 120 {
		t.Errorf("p90 = %v, want 120", *row.P90ElapsedMs)
	}
}

func TestAggregateEmptyLatency(t *testing.T) {
	records := []LogRecord{
		{Timestamp: "2025-01-10T00:00:00Z", EndpointRaw: "/get", StatusCode: IntPtr(200)},
		{Timestamp: "2025-01-10T01:00:00Z", EndpointRaw: "/get", ParseError: true},
	}

	row := NewAggregator(nil).Aggregate(records).Rows[0]
	if row.AvgElapsedMs != nil || row.P90ElapsedMs != nil {
		t.Errorf("expected nil latency stats, got avg=%v p90=%v", row.AvgElapsedMs, row.P90ElapsedMs)
	}
	if row.RequestsTotal != 2 {
		t.Errorf("requests_total = %d, want 2", row.RequestsTotal)
	}
}

func TestAggregateMissingLatencyExcluded(t *testing.T) {
	records := []LogRecord{
		rec("2025-01-10T00:00:00Z", "/get", 200, 100),
		{Timestamp: "2025-01-10T00:00:01Z", EndpointRaw: "/get", StatusCode: IntPtr(200)},
		rec("2025-01-10T00:00:02Z", "/get", 200, 300),
	}

	row := NewAggregator(nil).Aggregate(records).Rows[0]
	if *row.AvgElapsedMs != 200 {
		t.Errorf("avg = %v, want 200", *row.AvgElapsedMs)
	}
}

func TestAggregateBucketsConserveCount(t *testing.T) {
	records := []LogRecord{
		rec("2025-01-10T00:00:00Z", "/get", 200, 1),
		rec("2025-01-10T00:00:00Z", "/get", 204, 1),
		rec("2025-01-10T00:00:00Z", "/get", 101, 1),
		rec("2025-01-10T00:00:00Z", "/get", 302, 1),
		rec("2025-01-10T00:00:00Z", "/get", 404, 1),
		rec("2025-01-10T00:00:00Z", "/get", 503, 1),
		rec("2025-01-10T00:00:00Z", "/get", 700, 1),
		{Timestamp: "2025-01-10T00:00:00Z", EndpointRaw: "/get"},
		{Timestamp: "2025-01-10T00:00:00Z", EndpointRaw: "/get", StatusCode: IntPtr(200), ParseError: true},
	}

	row := NewAggregator(nil).Aggregate(records).Rows[0]
	if !conserved(row) {
		t.Errorf("counts do not sum to requests_total: %+v", row)
	}
	want := KpiRow{
		DateUTC: "2025-01-10", EndpointBase: "/get", RequestsTotal: 9,
		Success2xx: 2, Client4xx: 1, Server5xx: 1, ParseErrors: 1, OtherStatus: 4,
	}
	row.AvgElapsedMs, row.P90ElapsedMs = nil, nil
	if row != want {
		t.Errorf("got %+v, want %+v", row, want)
	}
}

func TestAggregateGroupsByDateAndEndpoint(t *testing.T) {
	records := []LogRecord{
		rec("2025-01-11T00:00:01Z", "/get", 200, 1),
		rec("2025-01-10T23:59:59Z", "/get", 200, 1),
		rec("2025-01-10T12:00:00+02:00", "/post", 200, 1),
		rec("2025-01-11T01:30:00+03:00", "/get", 200, 1),
		rec("2025-01-10T05:00:00Z", "/basic-auth/u/p", 200, 1),
	}

	rows := NewAggregator(nil).Aggregate(records).Rows

	var keys [][2]string
	for _, r := range rows {
		keys = append(keys, [2]string{r.DateUTC, r.EndpointBase})
	}
	want := [][2]string{
		{"2025-01-10", "/basic-auth"},
		{"2025-01-10", "/get"},
		{"2025-01-10", "/post"},
		{"2025-01-11", "/get"},
	}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("keys = %v, want %v", keys, want)
	}
	if rows[1].RequestsTotal != 2 {
		t.Errorf("2025-01-10 /get requests = %d, want 2 (UTC conversion)", rows[1].RequestsTotal)
	}
}

func TestAggregateShuffleDeterminism(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	endpoints := []string{"/get", "/status/403", "/status/500", "/basic-auth/a/b", "/xml?q=1"}
	days := []string{"2025-01-10", "2025-01-11", "2025-01-12"}

	var records []LogRecord
	for i := 0; i < 500; i++ {
		r := LogRecord{
			Timestamp:   days[rng.IntN(len(days))] + "T10:00:00Z",
			EndpointRaw: endpoints[rng.IntN(len(endpoints))],
			ParseError:  rng.IntN(20) == 0,
		}
		if rng.IntN(10) > 0 {
			r.StatusCode = IntPtr([]int{200, 201, 302, 404, 500}[rng.IntN(5)])
		}
		if rng.IntN(10) > 0 {
			r.ElapsedMs = Float64Ptr(50 + rng.Float64()*750)
		}
		records = append(records, r)
	}

	agg := NewAggregator(nil)
	want := agg.Aggregate(records)

	for i := 0; i < 5; i++ {
		shuffled := append([]LogRecord(nil), records...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := agg.Aggregate(shuffled)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("shuffle %d produced different result", i)
		}
	}

	for _, row := range want.Rows {
		if !conserved(row) {
			t.Errorf("counts do not sum for %s %s: %+v", row.DateUTC, row.EndpointBase, row)
		}
	}
}

func TestAggregateMalformedTimestamp(t *testing.T) {
	var records []LogRecord
	for i := 0; i < 10; i++ {
		records = append(records, rec("2025-01-10T10:00:00Z", "/get", 200, 100))
	}
	records[4].Timestamp = "10/01/2025 10:00"

	res := NewAggregator(nil).Aggregate(records)

	if res.Diagnostics.MalformedTimestamps != 1 {
		t.Errorf("malformed = %d, want 1", res.Diagnostics.MalformedTimestamps)
	}
	if res.Diagnostics.Aggregated != 9 {
		t.Errorf("aggregated = %d, want 9", res.Diagnostics.Aggregated)
	}
	if len(res.Rows) != 1 || res.Rows[0].RequestsTotal != 9 {
		t.Errorf("unexpected rows: %+v", res.Rows)
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	res := NewAggregator(nil).Aggregate(nil)
	if len(res.Rows) != 0 || res.Diagnostics != (Diagnostics{}) {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestLogRecordTime(t *testing.T) {
	tests := []struct {
		ts      string
		wantErr bool
		want    string
	}{
		{"2025-01-10T10:00:00Z", false, "2025-01-10T10:00:00Z"},
		{"2025-01-10T10:00:00.123Z", false, "2025-01-10T10:00:00Z"},
		{"2025-01-10T01:00:00+05:00", false, "2025-01-09T20:00:00Z"},
		{"", true, ""},
		{"not-a-date", true, ""},
		{"2025-13-10T10:00:00Z", true, ""},
	}

	for _, tt := range tests {
		got, err := LogRecord{Timestamp: tt.ts}.Time()
		if tt.wantErr {
			if err == nil {
				t.Errorf("Time(%q): expected error", tt.ts)
			}
			continue
		}
		if err != nil {
			t.Errorf("Time(%q): %v", tt.ts, err)
			continue
		}
		if s := got.Format(TimestampLayout); s != tt.want {
			t.Errorf("Time(%q) = %s, want %s", tt.ts, s, tt.want)
		}
	}
}
