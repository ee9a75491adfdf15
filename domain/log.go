package domain

import (
	"errors"
	"fmt"
	"time"
)

// TimestampLayout is the wire format emitted by the generate and harvest commands.
const TimestampLayout = "2006-01-02T15:04:05Z"

// DateLayout is the calendar date format used for KPI rows.
const DateLayout = "2006-01-02"

var ErrMalformedTimestamp = errors.New("malformed timestamp")

// LogRecord is one observed HTTP call. StatusCode and ElapsedMs are nil when
// the call never produced them.
type LogRecord struct {
	Timestamp   string   `json:"timestamp_utc" db:"timestamp_utc"`
	EndpointRaw string   `json:"endpoint" db:"endpoint"`
	StatusCode  *int     `json:"status_code" db:"status_code"`
	ElapsedMs   *float64 `json:"elapsed_ms" db:"elapsed_ms"`
	ParseError  bool     `json:"parse_error" db:"parse_error"`
}

func (r LogRecord) Time() (time.Time, error) {
	if r.Timestamp == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrMalformedTimestamp)
	}
	t, err := time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, r.Timestamp)
	}
	return t.UTC(), nil
}

// KpiRow is the aggregate for one (date, endpoint) pair.
type KpiRow struct {
	DateUTC       string   `db:"date_utc"`
	EndpointBase  string   `db:"endpoint_base"`
	RequestsTotal int      `db:"requests_total"`
	Success2xx    int      `db:"success_2xx"`
	Client4xx     int      `db:"client_4xx"`
	Server5xx     int      `db:"server_5xx"`
	ParseErrors   int      `db:"parse_errors"`
	OtherStatus   int      `db:"-"`
	AvgElapsedMs  *float64 `db:"avg_elapsed_ms"`
	P90ElapsedMs  *float64 `db:"p90_elapsed_ms"`
}

// KpiColumns is the stable column order for tabular output.
var KpiColumns = []string{
	"date_utc",
	"endpoint_base",
	"requests_total",
	"success_2xx",
	"client_4xx",
	"server_5xx",
	"parse_errors",
	"avg_elapsed_ms",
	"p90_elapsed_ms",
}

func IntPtr(v int) *int { return &v }

func Float64Ptr(v float64) *float64 { return &v }
