package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"http-kpi/domain"
)

const (
	recordsTable = "http_calls"
	kpiTable     = "endpoint_kpi_daily"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS ` + recordsTable + ` (
        timestamp_utc DateTime('UTC'),
        endpoint      String,
        status_code   Nullable(UInt16),
        elapsed_ms    Nullable(Float64),
        parse_error   UInt8
    ) ENGINE = MergeTree ORDER BY timestamp_utc`,
	`CREATE TABLE IF NOT EXISTS ` + kpiTable + ` (
        date_utc       Date,
        endpoint_base  String,
        requests_total UInt64,
        success_2xx    UInt64,
        client_4xx     UInt64,
        server_5xx     UInt64,
        parse_errors   UInt64,
        avg_elapsed_ms Nullable(Float64),
        p90_elapsed_ms Nullable(Float64)
    ) ENGINE = ReplacingMergeTree ORDER BY (date_utc, endpoint_base)`,
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

type ClickHouseRecordRepository struct {
	db        *sql.DB
	startDate string
}

// NewClickHouseRecordRepository reads calls on or after startDate (YYYY-MM-DD).
func NewClickHouseRecordRepository(db *sql.DB, startDate string) *ClickHouseRecordRepository {
	return &ClickHouseRecordRepository{db: db, startDate: startDate}
}

func (r *ClickHouseRecordRepository) GetTotalCount(ctx context.Context) (int, error) {
	var count int
	query := `SELECT count() FROM ` + recordsTable + ` WHERE toDate(timestamp_utc) >= ?`
	err := r.db.QueryRowContext(ctx, query, r.startDate).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to execute count query: %w", err)
	}
	return count, nil
}

// recordsPageQuery orders by every column so rows sharing a second keep the
// same position across pages.
const recordsPageQuery = `
        SELECT timestamp_utc, endpoint, status_code, elapsed_ms, parse_error
        FROM ` + recordsTable + `
        WHERE toDate(timestamp_utc) >= ?
        ORDER BY timestamp_utc, endpoint, status_code, elapsed_ms, parse_error
        LIMIT ? OFFSET ?
    `

func (r *ClickHouseRecordRepository) GetRecords(ctx context.Context, offset, limit int) ([]domain.LogRecord, error) {
	rows, err := r.db.QueryContext(ctx, recordsPageQuery, r.startDate, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []domain.LogRecord
	for rows.Next() {
		var (
			ts         time.Time
			endpoint   string
			status     sql.NullInt64
			elapsed    sql.NullFloat64
			parseError uint8
		)
		if err := rows.Scan(&ts, &endpoint, &status, &elapsed, &parseError); err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		records = append(records, recordFromRow(ts, endpoint, status, elapsed, parseError))
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating record rows: %w", err)
	}
	return records, nil
}

func (r *ClickHouseRecordRepository) WriteRecords(ctx context.Context, records []domain.LogRecord) error {
	return insertBatch(ctx, r.db, `INSERT INTO `+recordsTable+` (timestamp_utc, endpoint, status_code, elapsed_ms, parse_error)`, len(records), func(i int) ([]any, error) {
		return recordArgs(records[i])
	})
}

func recordFromRow(ts time.Time, endpoint string, status sql.NullInt64, elapsed sql.NullFloat64, parseError uint8) domain.LogRecord {
	rec := domain.LogRecord{
		Timestamp:   ts.UTC().Format(domain.TimestampLayout),
		EndpointRaw: endpoint,
		ParseError:  parseError != 0,
	}
	if status.Valid {
		rec.StatusCode = domain.IntPtr(int(status.Int64))
	}
	if elapsed.Valid {
		rec.ElapsedMs = domain.Float64Ptr(elapsed.Float64)
	}
	return rec
}

func recordArgs(r domain.LogRecord) ([]any, error) {
	ts, err := r.Time()
	if err != nil {
		return nil, err
	}
	var status *uint16
	if r.StatusCode != nil {
		if *r.StatusCode < 0 || *r.StatusCode > math.MaxUint16 {
			return nil, fmt.Errorf("status code %d out of range for %s", *r.StatusCode, r.EndpointRaw)
		}
		v := uint16(*r.StatusCode)
		status = &v
	}
	var parseError uint8
	if r.ParseError {
		parseError = 1
	}
	return []any{ts, r.EndpointRaw, status, r.ElapsedMs, parseError}, nil
}

type ClickHouseKpiRepository struct {
	db *sql.DB
}

func NewClickHouseKpiRepository(db *sql.DB) *ClickHouseKpiRepository {
	return &ClickHouseKpiRepository{db: db}
}

func (r *ClickHouseKpiRepository) WriteRows(ctx context.Context, rows []domain.KpiRow) error {
	query := `INSERT INTO ` + kpiTable + ` (date_utc, endpoint_base, requests_total, success_2xx,
        client_4xx, server_5xx, parse_errors, avg_elapsed_ms, p90_elapsed_ms)`
	return insertBatch(ctx, r.db, query, len(rows), func(i int) ([]any, error) {
		return kpiArgs(rows[i])
	})
}

func kpiArgs(row domain.KpiRow) ([]any, error) {
	date, err := time.Parse(domain.DateLayout, row.DateUTC)
	if err != nil {
		return nil, fmt.Errorf("invalid date_utc %q: %w", row.DateUTC, err)
	}
	return []any{
		date, row.EndpointBase,
		uint64(row.RequestsTotal), uint64(row.Success2xx), uint64(row.Client4xx),
		uint64(row.Server5xx), uint64(row.ParseErrors),
		row.AvgElapsedMs, row.P90ElapsedMs,
	}, nil
}

// insertBatch sends n rows through one prepared batch; clickhouse-go flushes
// the batch on commit.
func insertBatch(ctx context.Context, db *sql.DB, query string, n int, args func(i int) ([]any, error)) error {
	if n == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		values, err := args(i)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return fmt.Errorf("failed to append row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}
