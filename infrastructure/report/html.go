package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strconv"

	"http-kpi/application"
)

const (
	chartWidth  = 640
	barHeight   = 22
	barGap      = 6
	labelWidth  = 180
	valueMargin = 70
)

type Bar struct {
	Label string
	Value string
	Y     int
	Width int
	Alert bool
}

type Chart struct {
	Title  string
	Width  int
	Height int
	Bars   []Bar
}

type page struct {
	application.Report
	Charts []Chart
}

var funcs = template.FuncMap{
	"ms": func(v *float64) string {
		if v == nil {
			return "n/a"
		}
		return strconv.FormatFloat(*v, 'f', 2, 64)
	},
	"pct": func(v float64) string {
		return strconv.FormatFloat(v, 'f', 2, 64)
	},
	"num": func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	},
}

var tmpl = template.Must(template.New("report").Funcs(funcs).Parse(pageTemplate))

// BarChart scales values against the largest one. Nil values are drawn as
// an empty bar labelled n/a.
func BarChart(title string, labels []string, values []*float64, alerts []bool) Chart {
	maxValue := 0.0
	for _, v := range values {
		if v != nil && *v > maxValue {
			maxValue = *v
		}
	}
	plot := chartWidth - labelWidth - valueMargin
	c := Chart{Title: title, Width: chartWidth}
	for i, label := range labels {
		b := Bar{Label: label, Value: "n/a", Y: i * (barHeight + barGap)}
		if v := values[i]; v != nil {
			b.Value = strconv.FormatFloat(*v, 'f', -1, 64)
			if maxValue > 0 {
				b.Width = int(*v / maxValue * float64(plot))
			}
		}
		if i < len(alerts) {
			b.Alert = alerts[i]
		}
		c.Bars = append(c.Bars, b)
	}
	c.Height = len(labels)*(barHeight+barGap) + barGap
	return c
}

func charts(r application.Report) []Chart {
	n := len(r.Endpoints)
	labels := make([]string, n)
	requests := make([]*float64, n)
	p90s := make([]*float64, n)
	alerts := make([]bool, n)
	for i, e := range r.Endpoints {
		labels[i] = e.EndpointBase
		v := float64(e.RequestsTotal)
		requests[i] = &v
		p90s[i] = e.P90ElapsedMs
		alerts[i] = e.AlertP90
	}
	return []Chart{
		BarChart("Requests per endpoint", labels, requests, nil),
		BarChart("p90 latency per endpoint (ms)", labels, p90s, alerts),
	}
}

func Render(r application.Report) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, page{Report: r, Charts: charts(r)}); err != nil {
		return nil, fmt.Errorf("failed to execute report template: %w", err)
	}
	return buf.Bytes(), nil
}

type HTMLRenderer struct {
	path string
}

func NewHTMLRenderer(path string) *HTMLRenderer {
	return &HTMLRenderer{path: path}
}

func (h *HTMLRenderer) Render(ctx context.Context, r application.Report) error {
	out, err := Render(r)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(h.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(h.path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", h.path, err)
	}
	return nil
}
