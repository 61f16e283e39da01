// Package config loads the explorer configuration from explorer.yaml and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sahithikokkula/explorer/pkg/components"
	"github.com/sahithikokkula/explorer/pkg/logging"
	"github.com/sahithikokkula/explorer/pkg/telemetry"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "explorer.yaml"

// Config is the complete configuration of the server and the CLI.
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	API        APIConfig         `yaml:"api"`
	Storage    StorageConfig     `yaml:"storage"`
	Explorer   ExplorerConfig    `yaml:"explorer"`
	Components components.Config `yaml:"components"`
	Logging    logging.Config    `yaml:"logging"`
	Telemetry  telemetry.Config  `yaml:"telemetry"`
}

type ServerConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// APIConfig points at the anonymized query service.
type APIConfig struct {
	URL                  string        `yaml:"url"`
	Key                  string        `yaml:"key"`
	PollInterval         time.Duration `yaml:"poll_interval"`
	QueryTimeout         time.Duration `yaml:"query_timeout"`
	MaxConcurrentQueries int64         `yaml:"max_concurrent_queries"`
	RequestsPerSecond    float64       `yaml:"requests_per_second"`
	Burst                int           `yaml:"burst"`
	CancelOnAbort        bool          `yaml:"cancel_on_abort"`
}

type StorageConfig struct {
	MetaDBPath  string        `yaml:"meta_db_path"`
	MetadataTTL time.Duration `yaml:"metadata_ttl"`
	// Retention is how long finished explorations are kept.
	Retention time.Duration `yaml:"retention"`
}

type ExplorerConfig struct {
	MaxConcurrency int `yaml:"max_concurrency"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		API: APIConfig{
			URL:                  "http://localhost:8080/api/",
			PollInterval:         2 * time.Second,
			QueryTimeout:         10 * time.Minute,
			MaxConcurrentQueries: 10,
			RequestsPerSecond:    20,
			Burst:                10,
		},
		Storage: StorageConfig{
			MetaDBPath:  "explorer.sqlite",
			MetadataTTL: 5 * time.Minute,
			Retention:   24 * time.Hour,
		},
		Explorer:   ExplorerConfig{MaxConcurrency: 8},
		Components: components.DefaultConfig(),
		Logging:    logging.DefaultConfig(),
		Telemetry:  telemetry.DefaultConfig(),
	}
}

// Load reads path over the defaults and applies the environment overrides.
// A missing file is an error only when path was given explicitly.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("EXPLORER_API_URL"); v != "" {
		cfg.API.URL = v
	}
	if v := getenv("EXPLORER_API_KEY"); v != "" {
		cfg.API.Key = v
	}
	if v := getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := getenv("EXPLORER_META_DB_PATH"); v != "" {
		cfg.Storage.MetaDBPath = v
	}
	if v := getenv("EXPLORER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := getenv("OTEL_TRACES_EXPORTER"); v != "" {
		cfg.Telemetry.TraceExporter = v
	}
	if v := getenv("OTEL_METRICS_EXPORTER"); v != "" {
		cfg.Telemetry.MetricExporter = v
	}
	if v := getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := getenv("EXPLORER_MAX_CONCURRENT_QUERIES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("EXPLORER_MAX_CONCURRENT_QUERIES: %w", err)
		}
		cfg.API.MaxConcurrentQueries = n
	}
	return nil
}

// Validate rejects configurations the explorer cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.API.URL == "" {
		errs = append(errs, errors.New("api.url is required"))
	}
	if c.API.QueryTimeout <= 0 {
		errs = append(errs, errors.New("api.query_timeout must be positive"))
	}
	if c.Components.Confidence <= 0 || c.Components.Confidence >= 1 {
		errs = append(errs, fmt.Errorf("components.confidence must be in (0, 1), got %v", c.Components.Confidence))
	}
	if c.Components.ValuesPerBucket <= 0 {
		errs = append(errs, errors.New("components.values_per_bucket must be positive"))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
