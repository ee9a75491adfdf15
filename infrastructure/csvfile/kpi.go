package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"http-kpi/domain"
)

func WriteKpis(w io.Writer, rows []domain.KpiRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(domain.KpiColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.DateUTC,
			r.EndpointBase,
			strconv.Itoa(r.RequestsTotal),
			strconv.Itoa(r.Success2xx),
			strconv.Itoa(r.Client4xx),
			strconv.Itoa(r.Server5xx),
			strconv.Itoa(r.ParseErrors),
			formatMs(r.AvgElapsedMs),
			formatMs(r.P90ElapsedMs),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %s %s: %w", r.DateUTC, r.EndpointBase, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// formatMs rounds to two decimals; a missing value is an empty field.
func formatMs(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(math.Round(*v*100)/100, 'f', -1, 64)
}

func ReadKpis(r io.Reader) ([]domain.KpiRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(domain.KpiColumns)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i, col := range domain.KpiColumns {
		if header[i] != col {
			return nil, fmt.Errorf("unexpected column %d: got %q, want %q", i+1, header[i], col)
		}
	}

	var rows []domain.KpiRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read line %d: %w", line, err)
		}
		row, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(rec []string) (domain.KpiRow, error) {
	row := domain.KpiRow{DateUTC: rec[0], EndpointBase: rec[1]}
	counts := []*int{&row.RequestsTotal, &row.Success2xx, &row.Client4xx, &row.Server5xx, &row.ParseErrors}
	for i, dst := range counts {
		n, err := strconv.Atoi(rec[2+i])
		if err != nil {
			return row, fmt.Errorf("invalid %s %q: %w", domain.KpiColumns[2+i], rec[2+i], err)
		}
		*dst = n
	}
	row.OtherStatus = row.RequestsTotal - row.Success2xx - row.Client4xx - row.Server5xx - row.ParseErrors

	var err error
	if row.AvgElapsedMs, err = parseMs(rec[7]); err != nil {
		return row, fmt.Errorf("invalid avg_elapsed_ms %q: %w", rec[7], err)
	}
	if row.P90ElapsedMs, err = parseMs(rec[8]); err != nil {
		return row, fmt.Errorf("invalid p90_elapsed_ms %q: %w", rec[8], err)
	}
	return row, nil
}

func parseMs(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) WriteRows(ctx context.Context, rows []domain.KpiRow) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", f.path, err)
	}
	file, err := os.Create(f.path)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", f.path, err)
	}
	if err := WriteKpis(file, rows); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (f *File) ReadRows(ctx context.Context) ([]domain.KpiRow, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", f.path, err)
	}
	defer file.Close()

	rows, err := ReadKpis(file)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", f.path, err)
	}
	return rows, nil
}
