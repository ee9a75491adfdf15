package domain

import (
	"sort"
)

type kpiKey struct {
	date     string
	endpoint string
}

type kpiAccumulator struct {
	row     KpiRow
	elapsed []float64
}

func (a *kpiAccumulator) add(r LogRecord) {
	a.row.RequestsTotal++
	if r.ElapsedMs != nil {
		a.elapsed = append(a.elapsed, *r.ElapsedMs)
	}

	if r.ParseError {
		a.row.ParseErrors++
		return
	}
	if r.StatusCode == nil {
		a.row.OtherStatus++
		return
	}
	switch code := *r.StatusCode; {
	case code >= 200 && code <= 299:
		a.row.Success2xx++
	case code >= 400 && code <= 499:
		a.row.Client4xx++
	case code >= 500 && code <= 599:
		a.row.Server5xx++
	default:
		a.row.OtherStatus++
	}
}

func (a *kpiAccumulator) finish() KpiRow {
	row := a.row
	if len(a.elapsed) == 0 {
		return row
	}
	sort.Float64s(a.elapsed)
	avg, _ := Mean(a.elapsed)
	p90 := percentileSorted(a.elapsed, 90)
	row.AvgElapsedMs = &avg
	row.P90ElapsedMs = &p90
	return row
}

// Diagnostics counts the input that did not make it into any KPI row.
type Diagnostics struct {
	Aggregated          int
	MalformedTimestamps int
	RejectedLines       int
}

func (d Diagnostics) Skipped() int {
	return d.MalformedTimestamps + d.RejectedLines
}

type Result struct {
	Rows        []KpiRow
	Diagnostics Diagnostics
}

type Aggregator struct {
	normalizer *Normalizer
}

func NewAggregator(normalizer *Normalizer) *Aggregator {
	if normalizer == nil {
		normalizer = NewDefaultNormalizer()
	}
	return &Aggregator{normalizer: normalizer}
}

// Aggregate groups records by (UTC date, normalized endpoint) and reduces each
// group to a KpiRow. Records with an unusable timestamp are counted in
// Diagnostics and otherwise ignored. Rows come back sorted by date, then endpoint.
func (a *Aggregator) Aggregate(records []LogRecord) Result {
	var diag Diagnostics
	groups := make(map[kpiKey]*kpiAccumulator)

	for _, r := range records {
		ts, err := r.Time()
		if err != nil {
			diag.MalformedTimestamps++
			continue
		}
		key := kpiKey{
			date:     ts.Format(DateLayout),
			endpoint: a.normalizer.Normalize(r.EndpointRaw),
		}
		acc, ok := groups[key]
		if !ok {
			acc = &kpiAccumulator{row: KpiRow{DateUTC: key.date, EndpointBase: key.endpoint}}
			groups[key] = acc
		}
		acc.add(r)
		diag.Aggregated++
	}

	rows := make([]KpiRow, 0, len(groups))
	for _, acc := range groups {
		rows = append(rows, acc.finish())
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].DateUTC != rows[j].DateUTC {
			return rows[i].DateUTC < rows[j].DateUTC
		}
		return rows[i].EndpointBase < rows[j].EndpointBase
	})

	return Result{Rows: rows, Diagnostics: diag}
}
