package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const ConfigPathEnvVar = "KPI_CONFIG"

type Config struct {
	BatchSize  int              `koanf:"batch_size"`
	ClickHouse ClickHouseConfig `koanf:"clickhouse"`
	Logging    LoggingConfig    `koanf:"logging"`
	Harvest    HarvestConfig    `koanf:"harvest"`
	Generate   GenerateConfig   `koanf:"generate"`
	Report     ReportConfig     `koanf:"report"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

type ClickHouseConfig struct {
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
}

func (c ClickHouseConfig) DSN() string {
	return fmt.Sprintf("clickhouse://%s:%s@%s:%s/%s?dial_timeout=5s", c.User, c.Password, c.Host, c.Port, c.Database)
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type HarvestConfig struct {
	BaseURL    string        `koanf:"base_url"`
	User       string        `koanf:"user"`
	Password   string        `koanf:"password"`
	OutDir     string        `koanf:"out_dir"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`
	Backoff    time.Duration `koanf:"backoff"`
}

type GenerateConfig struct {
	Records int `koanf:"records"`
	Days    int `koanf:"days"`
}

type ReportConfig struct {
	P90Threshold float64 `koanf:"p90_threshold"`
}

type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}

func defaultConfig() *Config {
	return &Config{
		BatchSize: 5000,
		ClickHouse: ClickHouseConfig{
			Host:     "localhost",
			Port:     "9000",
			Database: "default",
			User:     "default",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Harvest: HarvestConfig{
			BaseURL:    "https://httpbin.org",
			User:       "usuario_test",
			Password:   "clave123",
			OutDir:     "out",
			Timeout:    20 * time.Second,
			MaxRetries: 2,
			Backoff:    500 * time.Millisecond,
		},
		Generate: GenerateConfig{
			Records: 1000,
			Days:    3,
		},
	}
}

// envMappings keeps the CH_* names the ClickHouse deployment already uses.
var envMappings = map[string]string{
	"ch_host":     "clickhouse.host",
	"ch_port":     "clickhouse.port",
	"ch_database": "clickhouse.database",
	"ch_user":     "clickhouse.user",
	"ch_password": "clickhouse.password",

	"log_level":  "logging.level",
	"log_format": "logging.format",

	"kpi_batch_size":       "batch_size",
	"kpi_harvest_base_url": "harvest.base_url",
	"kpi_harvest_user":     "harvest.user",
	"kpi_harvest_password": "harvest.password",
	"kpi_harvest_out_dir":  "harvest.out_dir",
	"kpi_harvest_timeout":  "harvest.timeout",
	"kpi_harvest_retries":  "harvest.max_retries",
	"kpi_harvest_backoff":  "harvest.backoff",
	"kpi_generate_records": "generate.records",
	"kpi_generate_days":    "generate.days",
	"kpi_p90_threshold":    "report.p90_threshold",
	"kpi_metrics_textfile": "metrics.textfile",
}

func envTransform(key string) string {
	return envMappings[strings.ToLower(key)]
}

// Load layers defaults, an optional YAML file and the environment, in that
// order of precedence. A .env file in the working directory is loaded into the
// environment first if present. path may be empty, in which case KPI_CONFIG is
// consulted.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.Harvest.MaxRetries < 0 {
		return fmt.Errorf("harvest.max_retries must not be negative, got %d", c.Harvest.MaxRetries)
	}
	if c.Generate.Days <= 0 {
		return fmt.Errorf("generate.days must be positive, got %d", c.Generate.Days)
	}
	if c.Report.P90Threshold < 0 {
		return fmt.Errorf("report.p90_threshold must not be negative, got %v", c.Report.P90Threshold)
	}
	return nil
}
