package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ha1tch/gpkgsql/pkg/errors"
)

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpkgsql.yaml")
	yaml := `
sqlite:
  journal_mode: wal
  busy_timeout: 250
engine:
  read_workers: 2
shell:
  format: csv
log:
  level: debug
  categories:
    ddl: error
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("GPKGSQL_SHELL_MAX_ROWS", "25")
	t.Setenv("GPKGSQL_SQLITE_BUSY_TIMEOUT", "900")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SQLite.JournalMode != "wal" || cfg.Engine.ReadWorkers != 2 || cfg.Shell.Format != "csv" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Shell.MaxRows != 25 || cfg.SQLite.BusyTimeout != 900 {
		t.Errorf("environment did not win: max_rows=%d busy_timeout=%d", cfg.Shell.MaxRows, cfg.SQLite.BusyTimeout)
	}
	if cfg.Engine.TempSuffix != "_tmp" || cfg.Shell.MaxHistory != 500 {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if cfg.Log.Categories["ddl"] != "error" {
		t.Errorf("categories = %v", cfg.Log.Categories)
	}

	var buf bytes.Buffer
	logger, err := cfg.Log.NewLogger(&buf)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.DDL().Info("hidden")
	logger.SQL().Debug("shown")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("category levels not applied:\n%s", out)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.IsCode(err, errors.ErrCodeConfigParse) {
		t.Errorf("missing file: %v", err)
	}

	t.Setenv("GPKGSQL_ENGINE_READ_WORKERS", "0")
	if _, err := Load(""); !errors.IsCode(err, errors.ErrCodeConfigInvalid) {
		t.Errorf("invalid value: %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	tests := map[string]func(*Config){
		"journal mode": func(c *Config) { c.SQLite.JournalMode = "sideways" },
		"synchronous":  func(c *Config) { c.SQLite.Synchronous = "sometimes" },
		"busy timeout": func(c *Config) { c.SQLite.BusyTimeout = -1 },
		"temp suffix":  func(c *Config) { c.Engine.TempSuffix = "" },
		"shell format": func(c *Config) { c.Shell.Format = "xml" },
		"log level":    func(c *Config) { c.Log.Level = "loud" },
		"log format":   func(c *Config) { c.Log.Format = "yaml" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := cfg.Validate(); !errors.IsCode(err, errors.ErrCodeConfigInvalid) {
				t.Errorf("Validate() = %v", err)
			}
		})
	}
}

func TestSQLiteConfig_DSN(t *testing.T) {
	c := SQLiteConfig{JournalMode: "wal", Synchronous: "normal", BusyTimeout: 100, CacheSize: -2000}
	dsn := c.DSN("/tmp/a.gpkg")
	for _, want := range []string{"file:/tmp/a.gpkg?", "_journal_mode=WAL", "_synchronous=NORMAL", "_busy_timeout=100", "_cache_size=-2000", "_foreign_keys=off"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("DSN %q lacks %q", dsn, want)
		}
	}
	c.ForeignKeys = true
	if !strings.Contains(c.DSN("x"), "_foreign_keys=on") {
		t.Errorf("DSN %q does not enable foreign keys", c.DSN("x"))
	}
}
