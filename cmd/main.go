package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"http-kpi/application"
	"http-kpi/config"
	"http-kpi/domain"
	"http-kpi/infrastructure/clickhouse"
	"http-kpi/infrastructure/console"
	"http-kpi/infrastructure/csvfile"
	"http-kpi/infrastructure/httpbin"
	"http-kpi/infrastructure/jsonl"
	"http-kpi/infrastructure/logging"
	"http-kpi/infrastructure/metrics"
	"http-kpi/infrastructure/report"
	"http-kpi/infrastructure/synthetic"
)

const usage = `usage: http-kpi <command> [flags]

commands:
  generate   write synthetic call logs as NDJSON
  harvest    call the demo API and log every attempt as NDJSON
  kpi        aggregate call logs into daily per-endpoint KPIs
  report     render an HTML report from the KPI CSV

run "http-kpi <command> -h" for the flags of a command`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	command, args := os.Args[1], os.Args[2:]

	cfg, err := config.Load("")
	if err != nil {
		logging.Fatal().Err(err).Msg("Could not load configuration")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithRunID(ctx)

	m := metrics.New()
	started := time.Now()

	switch command {
	case "generate":
		err = runGenerate(ctx, cfg, args)
	case "harvest":
		err = runHarvest(ctx, cfg, m, args)
	case "kpi":
		err = runKpi(ctx, cfg, m, args)
	case "report":
		err = runReport(ctx, cfg, m, args)
	case "-h", "--help", "help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", command, usage)
		os.Exit(2)
	}

	m.ObserveRun(command, started, err)
	if werr := m.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
		logging.Ctx(ctx).Error().Err(werr).Msg("Could not write metrics")
	}
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		logging.Ctx(ctx).Fatal().Err(err).Str("command", command).Msg("Command failed")
	}
	fmt.Printf("\n%s finished successfully.\n", command)
}

func runGenerate(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	n := fs.Int("n", cfg.Generate.Records, "Number of records to generate")
	out := fs.String("out", "out/datos.jsonl", "NDJSON output file")
	seedFlag := fs.String("seed", "", "Seed for reproducible output (unsigned integer)")
	days := fs.Int("days", cfg.Generate.Days, "Spread timestamps over the last N days")
	toClickHouse := fs.Bool("clickhouse", false, "Also insert the records into ClickHouse")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var seed *uint64
	if *seedFlag != "" {
		v, err := strconv.ParseUint(*seedFlag, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid seed %q: %w", *seedFlag, err)
		}
		seed = &v
	}

	writer, closeDB, err := recordWriter(ctx, cfg, jsonl.NewFileWriter(*out, false), *toClickHouse)
	if err != nil {
		return err
	}
	defer closeDB()

	gen := synthetic.NewGenerator(seed, *days, nil)
	svc := application.NewGenerateService(gen, writer)
	return svc.Run(ctx, *n)
}

func runHarvest(ctx context.Context, cfg *config.Config, m *metrics.Metrics, args []string) error {
	fs := flag.NewFlagSet("harvest", flag.ContinueOnError)
	baseURL := fs.String("base-url", cfg.Harvest.BaseURL, "Demo API base URL")
	outDir := fs.String("out-dir", cfg.Harvest.OutDir, "Directory for extracted artifacts")
	out := fs.String("out", "", "NDJSON output file (default <out-dir>/datos.jsonl)")
	appendMode := fs.Bool("append", true, "Append to an existing NDJSON file")
	toClickHouse := fs.Bool("clickhouse", false, "Also insert the records into ClickHouse")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		*out = filepath.Join(*outDir, "datos.jsonl")
	}

	client, err := httpbin.NewClient(httpbin.Config{
		BaseURL:    *baseURL,
		User:       cfg.Harvest.User,
		Password:   cfg.Harvest.Password,
		OutDir:     *outDir,
		Timeout:    cfg.Harvest.Timeout,
		MaxRetries: cfg.Harvest.MaxRetries,
		Backoff:    cfg.Harvest.Backoff,
	}, m)
	if err != nil {
		return err
	}

	writer, closeDB, err := recordWriter(ctx, cfg, jsonl.NewFileWriter(*out, *appendMode), *toClickHouse)
	if err != nil {
		return err
	}
	defer closeDB()

	logging.Ctx(ctx).Info().Str("base_url", *baseURL).Str("out", *out).Msg("Starting harvest")
	svc := application.NewHarvestService(client, writer)
	return svc.Run(ctx)
}

func openClickHouse(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := clickhouse.Connect(ctx, cfg.ClickHouse.DSN())
	if err != nil {
		return nil, err
	}
	if err := clickhouse.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func recordWriter(ctx context.Context, cfg *config.Config, file domain.RecordWriter, toClickHouse bool) (domain.RecordWriter, func(), error) {
	if !toClickHouse {
		return file, func() {}, nil
	}
	db, err := openClickHouse(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	repo := clickhouse.NewClickHouseRecordRepository(db, "")
	return application.MultiRecordWriter(file, repo), func() { db.Close() }, nil
}

func runKpi(ctx context.Context, cfg *config.Config, m *metrics.Metrics, args []string) error {
	fs := flag.NewFlagSet("kpi", flag.ContinueOnError)
	input := fs.String("input", "out/datos.jsonl", "NDJSON input file (source=jsonl)")
	output := fs.String("output", "out/kpi_por_endpoint_dia.csv", "KPI CSV output file, empty to skip")
	source := fs.String("source", "jsonl", "Record source: jsonl or clickhouse")
	sink := fs.Bool("clickhouse-sink", false, "Also write KPI rows to ClickHouse")
	startDate := fs.String("start-date", time.Now().UTC().Format(domain.DateLayout), "Start date for the ClickHouse source (YYYY-MM-DD)")
	batchSize := fs.Int("batch-size", cfg.BatchSize, "Number of records to fetch in one batch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *batchSize <= 0 {
		return fmt.Errorf("batch-size must be positive, got %d", *batchSize)
	}

	var db *sql.DB
	openDB := func() (*sql.DB, error) {
		if db != nil {
			return db, nil
		}
		conn, err := openClickHouse(ctx, cfg)
		if err != nil {
			return nil, err
		}
		db = conn
		return db, nil
	}
	defer func() {
		if db != nil {
			db.Close()
		}
	}()

	var repo domain.RecordRepository
	switch *source {
	case "jsonl":
		r, err := jsonl.OpenRepository(*input)
		if err != nil {
			return err
		}
		repo = r
	case "clickhouse":
		conn, err := openDB()
		if err != nil {
			return err
		}
		if _, err := time.Parse(domain.DateLayout, *startDate); err != nil {
			return fmt.Errorf("invalid start-date %q: %w", *startDate, err)
		}
		logging.Ctx(ctx).Info().Str("start_date", *startDate).Msg("Reading records from ClickHouse")
		repo = clickhouse.NewClickHouseRecordRepository(conn, *startDate)
	default:
		return fmt.Errorf("unknown source %q", *source)
	}

	var writers []domain.KpiWriter
	if *output != "" {
		writers = append(writers, csvfile.NewFile(*output))
	}
	if *sink {
		conn, err := openDB()
		if err != nil {
			return err
		}
		writers = append(writers, clickhouse.NewClickHouseKpiRepository(conn))
	}

	svc := application.NewKpiService(repo, writers, console.NewConsoleUI(), *batchSize, domain.NewAggregator(nil), m)
	_, err := svc.Run(ctx)
	return err
}

func runReport(ctx context.Context, cfg *config.Config, m *metrics.Metrics, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	input := fs.String("input", "out/kpi_por_endpoint_dia.csv", "KPI CSV input file")
	output := fs.String("output", "out/report/kpi_diario.html", "HTML report output file")
	threshold := fs.Float64("p90-threshold", cfg.Report.P90Threshold, "p90 alert threshold in ms (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *threshold <= 0 {
		return errors.New("p90-threshold is required: pass --p90-threshold or set report.p90_threshold")
	}

	renderers := []application.ReportRenderer{report.NewHTMLRenderer(*output)}
	svc := application.NewReportService(csvfile.NewFile(*input), renderers, console.NewConsoleUI(), m)
	if _, err := svc.Run(ctx, *threshold); err != nil {
		return err
	}
	logging.Ctx(ctx).Info().Str("output", *output).Msg("HTML report written")
	return nil
}
