package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"http-kpi/domain"
	"http-kpi/infrastructure/logging"
)

var ErrRecordParse = errors.New("record parse error")

const maxLineSize = 1 << 20

// Status codes outside the HTTP range are treated like unparseable ones.
const (
	minStatus = 100
	maxStatus = 599
)

type wireRecord struct {
	Timestamp   any     `json:"timestamp_utc"`
	Endpoint    *string `json:"endpoint"`
	StatusCode  any     `json:"status_code"`
	ElapsedMs   any     `json:"elapsed_ms"`
	ParseResult *string `json:"parse_result"`
	ParseError  any     `json:"parse_error"`
}

// ParseLine decodes one NDJSON line. A status or latency that is present but
// not numeric marks the record as a parse error instead of rejecting it.
func ParseLine(line []byte) (domain.LogRecord, error) {
	var w wireRecord
	if err := json.Unmarshal(line, &w); err != nil {
		return domain.LogRecord{}, fmt.Errorf("%w: %v", ErrRecordParse, err)
	}
	if w.Endpoint == nil {
		return domain.LogRecord{}, fmt.Errorf("%w: missing endpoint", ErrRecordParse)
	}

	rec := domain.LogRecord{EndpointRaw: *w.Endpoint}
	if ts, ok := w.Timestamp.(string); ok {
		rec.Timestamp = ts
	}

	if w.StatusCode != nil {
		code, ok := toFloat(w.StatusCode)
		if ok && code == math.Trunc(code) && code >= minStatus && code <= maxStatus {
			rec.StatusCode = domain.IntPtr(int(code))
		} else {
			rec.ParseError = true
		}
	}
	if w.ElapsedMs != nil {
		ms, ok := toFloat(w.ElapsedMs)
		if ok && ms >= 0 && !math.IsInf(ms, 0) && !math.IsNaN(ms) {
			rec.ElapsedMs = domain.Float64Ptr(ms)
		} else {
			rec.ParseError = true
		}
	}

	if w.ParseError != nil {
		if flag, ok := toBool(w.ParseError); !ok || flag {
			rec.ParseError = true
		}
	}
	if w.ParseResult != nil && !strings.EqualFold(*w.ParseResult, "ok") {
		rec.ParseError = true
	}
	return rec, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case float64:
		return b != 0, true
	case string:
		flag, err := strconv.ParseBool(strings.TrimSpace(b))
		return flag, err == nil
	default:
		return false, false
	}
}

// readLine returns the next line without its terminator. A line longer than
// maxLineSize is consumed to its end and reported with tooLong set.
func readLine(br *bufio.Reader) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > maxLineSize+2 {
				tooLong, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return bytes.TrimRight(line, "\r\n"), tooLong, err
	}
}

// Decode reads NDJSON records from r, skipping blank lines. Lines that cannot
// be interpreted as a record, including oversized ones, are counted in
// rejected and otherwise ignored; only read errors are returned.
func Decode(r io.Reader) (records []domain.LogRecord, rejected int, err error) {
	br := bufio.NewReaderSize(r, 64*1024)

	for lineNum := 1; ; lineNum++ {
		raw, tooLong, readErr := readLine(br)
		if readErr != nil && readErr != io.EOF {
			return records, rejected, fmt.Errorf("error reading records at line %d: %w", lineNum, readErr)
		}
		line := bytes.TrimSpace(raw)
		switch {
		case tooLong:
			rejected++
			logging.Debug().Int("line", lineNum).Int("max_bytes", maxLineSize).Msg("Skipping oversized input line")
		case len(line) > 0:
			rec, err := ParseLine(line)
			if err != nil {
				rejected++
				logging.Debug().Int("line", lineNum).Err(err).Msg("Skipping input line")
			} else {
				records = append(records, rec)
			}
		}
		if readErr == io.EOF {
			return records, rejected, nil
		}
	}
}

type Repository struct {
	path     string
	records  []domain.LogRecord
	rejected int
}

func OpenRepository(path string) (*Repository, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open records file %s: %w", path, err)
	}
	defer file.Close()

	records, rejected, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("could not decode %s: %w", path, err)
	}
	logging.Info().Str("path", path).Int("records", len(records)).Int("rejected", rejected).Msg("Loaded records")
	return &Repository{path: path, records: records, rejected: rejected}, nil
}

func (r *Repository) GetTotalCount(ctx context.Context) (int, error) {
	return len(r.records), nil
}

func (r *Repository) GetRecords(ctx context.Context, offset, limit int) ([]domain.LogRecord, error) {
	if offset < 0 || limit <= 0 {
		return nil, fmt.Errorf("invalid page offset=%d limit=%d", offset, limit)
	}
	if offset >= len(r.records) {
		return nil, nil
	}
	end := min(offset+limit, len(r.records))
	return r.records[offset:end], nil
}

func (r *Repository) Rejected() int {
	return r.rejected
}
