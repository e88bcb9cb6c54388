package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "otc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvDatabaseURL, "")
	t.Setenv(EnvS3Bucket, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, BackendNone, cfg.Persistence.Backend)
	assert.Equal(t, 2*time.Second, cfg.Persistence.Debounce)
}

func TestLoadFile(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvDatabaseURL, "")
	t.Setenv(EnvS3Bucket, "")
	path := writeConfig(t, `
store:
  snapshot_limit: 5
commands:
  max_history: 50
wiretool:
  hit_tolerance_px: 12
canvas:
  default_view: board
persistence:
  backend: File
  path: /tmp/design.otc.json
  debounce: 500ms
logging:
  level: debug
  format: json
catalog:
  kicad_dirs: [/usr/share/kicad/symbols]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Store.SnapshotLimit)
	assert.Equal(t, 500, cfg.Store.HistoryLimit, "unset keys keep defaults")
	assert.Equal(t, 50, cfg.Commands.MaxHistory)
	assert.Equal(t, 12.0, cfg.WireTool.HitTolerancePx)
	assert.Equal(t, "board", cfg.Canvas.DefaultView)
	assert.Equal(t, BackendFile, cfg.Persistence.Backend)
	assert.Equal(t, 500*time.Millisecond, cfg.Persistence.Debounce)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Catalog.Builtins)
	assert.Equal(t, []string{"/usr/share/kicad/symbols"}, cfg.Catalog.KiCadDirs)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvDatabaseURL, "postgres://otc@localhost/otc")
	t.Setenv(EnvS3Bucket, "")
	t.Setenv(EnvConfig, writeConfig(t, "logging:\n  level: debug\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, BackendPostgres, cfg.Persistence.Backend)
	assert.Equal(t, "postgres://otc@localhost/otc", cfg.Persistence.Postgres.DSN)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"file without path", func(c *Config) { c.Persistence.Backend = BackendFile }, "persistence.path"},
		{"postgres without dsn", func(c *Config) { c.Persistence.Backend = BackendPostgres }, EnvDatabaseURL},
		{"s3 without bucket", func(c *Config) { c.Persistence.Backend = BackendS3 }, EnvS3Bucket},
		{"unknown backend", func(c *Config) { c.Persistence.Backend = "ftp" }, "unknown persistence backend"},
		{"bad view", func(c *Config) { c.Canvas.DefaultView = "3d" }, "default_view"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateClamps(t *testing.T) {
	cfg := Default()
	cfg.WireTool.HitTolerancePx = 0
	cfg.Canvas.FetchConcurrency = -2
	cfg.Commands.MaxHistory = 0
	cfg.Persistence.Debounce = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8.0, cfg.WireTool.HitTolerancePx)
	assert.Equal(t, 1, cfg.Canvas.FetchConcurrency)
	assert.Equal(t, 200, cfg.Commands.MaxHistory)
	assert.Equal(t, 2*time.Second, cfg.Persistence.Debounce)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
