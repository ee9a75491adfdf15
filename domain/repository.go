package domain

import (
	"context"
)

type RecordRepository interface {
	GetTotalCount(ctx context.Context) (int, error)
	GetRecords(ctx context.Context, offset, limit int) ([]LogRecord, error)
}

// RejectCounter is implemented by record sources that drop input they cannot
// decode as a record.
type RejectCounter interface {
	Rejected() int
}

type RecordWriter interface {
	WriteRecords(ctx context.Context, records []LogRecord) error
}

type KpiWriter interface {
	WriteRows(ctx context.Context, rows []KpiRow) error
}

type KpiReader interface {
	ReadRows(ctx context.Context) ([]KpiRow, error)
}
