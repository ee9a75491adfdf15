package jsonl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"http-kpi/domain"
)

type wireOut struct {
	Timestamp   string   `json:"timestamp_utc"`
	Endpoint    string   `json:"endpoint"`
	StatusCode  *int     `json:"status_code"`
	ElapsedMs   *float64 `json:"elapsed_ms"`
	ParseResult string   `json:"parse_result"`
}

func Encode(w io.Writer, records []domain.LogRecord) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for i, r := range records {
		out := wireOut{
			Timestamp:   r.Timestamp,
			Endpoint:    r.EndpointRaw,
			StatusCode:  r.StatusCode,
			ElapsedMs:   r.ElapsedMs,
			ParseResult: "ok",
		}
		if r.ParseError {
			out.ParseResult = "error"
		}
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("failed to encode record %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// FileWriter writes records to path, replacing it; appendMode switches to
// appending instead.
type FileWriter struct {
	path       string
	appendMode bool
}

func NewFileWriter(path string, appendMode bool) *FileWriter {
	return &FileWriter{path: path, appendMode: appendMode}
}

func (f *FileWriter) WriteRecords(ctx context.Context, records []domain.LogRecord) error {
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if f.appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(f.path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", f.path, err)
	}
	if err := Encode(file, records); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
