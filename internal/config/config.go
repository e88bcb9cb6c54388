// Package config loads the otc configuration file and applies environment
// overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/OpenTraceCircuit/internal/logging"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/canvas"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/command"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/persist"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/store"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/wiretool"
)

// Environment variables consulted by Load.
const (
	EnvConfig      = "OTC_CONFIG"
	EnvLogLevel    = "OTC_LOG_LEVEL"
	EnvDatabaseURL = "OTC_DATABASE_URL"
	EnvS3Bucket    = "OTC_S3_BUCKET"
)

// Persistence backends.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// Config is the whole configuration file.
type Config struct {
	Store       store.Config      `yaml:"store"`
	Commands    command.Config    `yaml:"commands"`
	WireTool    wiretool.Config   `yaml:"wiretool"`
	Canvas      CanvasConfig      `yaml:"canvas"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Logging     logging.Config    `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	UI          UIConfig          `yaml:"ui"`
}

type CanvasConfig struct {
	// FetchConcurrency bounds parallel catalog lookups while loading.
	FetchConcurrency int    `yaml:"fetch_concurrency"`
	DefaultView      string `yaml:"default_view"`
}

type PersistenceConfig struct {
	Backend  string                 `yaml:"backend"`
	Path     string                 `yaml:"path"`
	Debounce time.Duration          `yaml:"debounce"`
	Postgres persist.PostgresConfig `yaml:"postgres"`
	S3       persist.S3Config       `yaml:"s3"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type CatalogConfig struct {
	// Builtins registers the built-in parts before any KiCad library.
	Builtins bool `yaml:"builtins"`
	// KiCadDirs are scanned for .kicad_sym libraries.
	KiCadDirs []string `yaml:"kicad_dirs"`
	// FootprintDirs hold .pretty footprint libraries.
	FootprintDirs []string `yaml:"footprint_dirs"`
}

type UIConfig struct {
	Theme  string `yaml:"theme"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Store:    store.DefaultConfig(),
		Commands: command.DefaultConfig(),
		WireTool: wiretool.DefaultConfig(),
		Canvas: CanvasConfig{
			FetchConcurrency: canvas.DefaultFetchConcurrency,
			DefaultView:      string(circuit.ViewSchematic),
		},
		Persistence: PersistenceConfig{
			Backend:  BackendNone,
			Debounce: persist.DefaultDebounce,
		},
		Logging: logging.DefaultConfig(),
		Metrics: MetricsConfig{Addr: ":9464"},
		Catalog: CatalogConfig{Builtins: true},
		UI:      UIConfig{Theme: "classic", Width: 1280, Height: 800},
	}
}

// Load reads path (or $OTC_CONFIG when path is empty) over the defaults,
// then applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		c.Persistence.Postgres.DSN = v
		if c.Persistence.Backend == BackendNone || c.Persistence.Backend == "" {
			c.Persistence.Backend = BackendPostgres
		}
	}
	if v := os.Getenv(EnvS3Bucket); v != "" {
		c.Persistence.S3.Bucket = v
		if c.Persistence.Backend == BackendNone || c.Persistence.Backend == "" {
			c.Persistence.Backend = BackendS3
		}
	}
	if v := os.Getenv("OTC_FETCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Canvas.FetchConcurrency = n
		}
	}
}

// Validate clamps soft limits and rejects settings that cannot work.
func (c *Config) Validate() error {
	if c.Store.HistoryLimit < 0 {
		c.Store.HistoryLimit = 0
	}
	if c.Commands.MaxHistory < 1 {
		c.Commands.MaxHistory = command.DefaultConfig().MaxHistory
	}
	if c.WireTool.HitTolerancePx <= 0 {
		c.WireTool.HitTolerancePx = wiretool.DefaultConfig().HitTolerancePx
	}
	if c.Canvas.FetchConcurrency < 1 {
		c.Canvas.FetchConcurrency = 1
	}
	if c.Persistence.Debounce <= 0 {
		c.Persistence.Debounce = persist.DefaultDebounce
	}

	var errs []error
	switch circuit.View(c.Canvas.DefaultView) {
	case circuit.ViewSchematic, circuit.ViewBoard:
	default:
		errs = append(errs, fmt.Errorf("config: canvas.default_view %q: want schematic or board", c.Canvas.DefaultView))
	}

	p := &c.Persistence
	p.Backend = strings.ToLower(p.Backend)
	switch p.Backend {
	case "", BackendNone:
		p.Backend = BackendNone
	case BackendMemory:
	case BackendFile:
		if p.Path == "" {
			errs = append(errs, errors.New("config: persistence.path required for the file backend"))
		}
	case BackendPostgres:
		if p.Postgres.DSN == "" {
			errs = append(errs, fmt.Errorf("config: persistence.postgres.dsn or %s required", EnvDatabaseURL))
		}
	case BackendS3:
		if p.S3.Bucket == "" {
			errs = append(errs, fmt.Errorf("config: persistence.s3.bucket or %s required", EnvS3Bucket))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown persistence backend %q", p.Backend))
	}
	return errors.Join(errs...)
}
