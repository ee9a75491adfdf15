package console

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/schollz/progressbar/v3"

	"http-kpi/application"
	"http-kpi/domain"
)

type ConsoleUI struct {
	bar      *progressbar.ProgressBar
	out      io.Writer
	progress io.Writer
}

func NewConsoleUI() *ConsoleUI {
	return &ConsoleUI{out: os.Stdout, progress: os.Stderr}
}

// NewConsoleUIWriters is used by tests and by callers that redirect output.
func NewConsoleUIWriters(out, progress io.Writer) *ConsoleUI {
	return &ConsoleUI{out: out, progress: progress}
}

func (c *ConsoleUI) Init(total int) {
	c.bar = progressbar.NewOptions(
		total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetDescription("[1/2 READING RECORDS]"),
		progressbar.OptionSetWriter(c.progress),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (c *ConsoleUI) Update(current int) {
	if c.bar != nil {
		c.bar.Set(current)
	}
}

func (c *ConsoleUI) RenderKpis(rows []domain.KpiRow, diag domain.Diagnostics) {
	if len(rows) == 0 {
		fmt.Fprintln(c.out, "\n[2/2 AGGREGATION COMPLETE] No records to aggregate.")
		c.renderDiagnostics(diag)
		return
	}

	fmt.Fprintln(c.out, "\n[2/2 AGGREGATION COMPLETE] Daily KPIs per endpoint:")

	t := table.NewWriter()
	t.SetOutputMirror(c.out)
	t.AppendHeader(table.Row{"Date", "Endpoint", "Requests", "2xx", "4xx", "5xx", "Parse Err", "Other", "Avg ms", "P90 ms"})

	lastDate := ""
	for _, r := range rows {
		dateDisplay := r.DateUTC
		if dateDisplay == lastDate {
			dateDisplay = ""
		}
		t.AppendRow(table.Row{
			dateDisplay,
			r.EndpointBase,
			r.RequestsTotal,
			r.Success2xx,
			r.Client4xx,
			r.Server5xx,
			r.ParseErrors,
			r.OtherStatus,
			ms(r.AvgElapsedMs),
			ms(r.P90ElapsedMs),
		})
		lastDate = r.DateUTC
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
		{Number: 10, Align: text.AlignRight},
	})
	t.SetStyle(table.StyleLight)
	t.Render()
	fmt.Fprintf(c.out, "\nRecords aggregated: %d\n", diag.Aggregated)
	c.renderDiagnostics(diag)
}

func (c *ConsoleUI) renderDiagnostics(diag domain.Diagnostics) {
	if diag.Skipped() == 0 {
		return
	}
	fmt.Fprintf(c.out, "Skipped: %d malformed timestamps, %d unparseable lines\n", diag.MalformedTimestamps, diag.RejectedLines)
}

func (c *ConsoleUI) RenderSummary(report application.Report) {
	fmt.Fprintf(c.out, "\nReport %s .. %s, p90 threshold %s ms\n", report.DateFrom, report.DateTo, strconv.FormatFloat(report.ThresholdMs, 'f', -1, 64))

	t := table.NewWriter()
	t.SetOutputMirror(c.out)
	t.AppendHeader(table.Row{"Endpoint", "Requests", "% 2xx", "% 4xx", "% 5xx", "Avg ms", "P90 ms", "Alert"})
	for _, e := range report.Endpoints {
		alert := ""
		if e.AlertP90 {
			alert = text.FgRed.Sprint("P90")
		}
		t.AppendRow(table.Row{e.EndpointBase, e.RequestsTotal, e.Pct2xx, e.Pct4xx, e.Pct5xx, ms(e.AvgElapsedMs), ms(e.P90ElapsedMs), alert})
	}
	t.AppendFooter(table.Row{"Total", report.Global.TotalRequests, report.Global.Pct2xx, "", "", "", ms(report.Global.P90Ms), report.AlertCount})
	t.SetStyle(table.StyleLight)
	t.Render()
}

func (c *ConsoleUI) Close() {
	if c.bar != nil {
		c.bar.Finish()
		c.bar = nil
	}
}

func ms(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
