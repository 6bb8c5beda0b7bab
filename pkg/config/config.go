// Package config holds gpkgsql configuration.
//
// Configuration is read once, from an optional file and GPKGSQL_*
// environment variables, and then passed by value to the components that
// need it. Nothing reads configuration from globals.
package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/log"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// GPKGSQL_SQLITE_BUSY_TIMEOUT=10000.
const EnvPrefix = "GPKGSQL"

// Config is the complete configuration.
type Config struct {
	SQLite SQLiteConfig `mapstructure:"sqlite"`
	Engine EngineConfig `mapstructure:"engine"`
	Shell  ShellConfig  `mapstructure:"shell"`
	Log    LogConfig    `mapstructure:"log"`
}

// SQLiteConfig holds connection options passed to go-sqlite3.
type SQLiteConfig struct {
	JournalMode  string `mapstructure:"journal_mode"` // WAL, DELETE, TRUNCATE, PERSIST, MEMORY, OFF
	Synchronous  string `mapstructure:"synchronous"`  // OFF, NORMAL, FULL, EXTRA
	CacheSize    int    `mapstructure:"cache_size"`   // pages, negative = KiB
	BusyTimeout  int    `mapstructure:"busy_timeout"` // milliseconds
	ForeignKeys  bool   `mapstructure:"foreign_keys"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// EngineConfig tunes the schema change engine.
type EngineConfig struct {
	// TempSuffix is appended to a table name to form the rebuild table
	// used while dropping a column.
	TempSuffix string `mapstructure:"temp_suffix"`

	// ReadWorkers bounds concurrent readers used by summaries.
	ReadWorkers int `mapstructure:"read_workers"`
}

// ShellConfig holds interactive shell settings.
type ShellConfig struct {
	HistoryFile string `mapstructure:"history_file"`
	MaxHistory  int    `mapstructure:"max_history"`
	MaxRows     int    `mapstructure:"max_rows"`
	Format      string `mapstructure:"format"`
	Timing      bool   `mapstructure:"timing"`
	Color       string `mapstructure:"color"` // auto, always, never
}

// LogConfig selects log level, format and per-category levels.
type LogConfig struct {
	Level      string            `mapstructure:"level"`
	Format     string            `mapstructure:"format"`
	Caller     bool              `mapstructure:"caller"`
	Categories map[string]string `mapstructure:"categories"`
}

// Default returns the built-in configuration.
func Default() Config {
	history := ""
	if home, err := os.UserHomeDir(); err == nil {
		history = filepath.Join(home, ".gpkgsql_history")
	}
	return Config{
		SQLite: SQLiteConfig{
			JournalMode:  "DELETE",
			Synchronous:  "NORMAL",
			CacheSize:    -2000,
			BusyTimeout:  5000,
			ForeignKeys:  true,
			MaxOpenConns: 4,
		},
		Engine: EngineConfig{
			TempSuffix:  "_tmp",
			ReadWorkers: 4,
		},
		Shell: ShellConfig{
			HistoryFile: history,
			MaxHistory:  500,
			MaxRows:     1000,
			Format:      "default",
			Timing:      true,
			Color:       "auto",
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("sqlite.journal_mode", d.SQLite.JournalMode)
	v.SetDefault("sqlite.synchronous", d.SQLite.Synchronous)
	v.SetDefault("sqlite.cache_size", d.SQLite.CacheSize)
	v.SetDefault("sqlite.busy_timeout", d.SQLite.BusyTimeout)
	v.SetDefault("sqlite.foreign_keys", d.SQLite.ForeignKeys)
	v.SetDefault("sqlite.max_open_conns", d.SQLite.MaxOpenConns)

	v.SetDefault("engine.temp_suffix", d.Engine.TempSuffix)
	v.SetDefault("engine.read_workers", d.Engine.ReadWorkers)

	v.SetDefault("shell.history_file", d.Shell.HistoryFile)
	v.SetDefault("shell.max_history", d.Shell.MaxHistory)
	v.SetDefault("shell.max_rows", d.Shell.MaxRows)
	v.SetDefault("shell.format", d.Shell.Format)
	v.SetDefault("shell.timing", d.Shell.Timing)
	v.SetDefault("shell.color", d.Shell.Color)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.caller", d.Log.Caller)
}

// Load reads configuration from path (optional, any format viper
// understands) and from the environment. Environment wins over the file.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, errors.ErrCodeConfigParse, "failed to read config %s", path).Err()
		}
	}

	// Every key has a default, so AutomaticEnv covers them all on Unmarshal.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, errors.ErrCodeConfigParse, "failed to unmarshal config").Err()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var (
	journalModes = map[string]bool{"WAL": true, "DELETE": true, "TRUNCATE": true, "PERSIST": true, "MEMORY": true, "OFF": true}
	syncModes    = map[string]bool{"OFF": true, "NORMAL": true, "FULL": true, "EXTRA": true}
	shellFormats = map[string]bool{"default": true, "ascii": true, "csv": true, "json": true}
)

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	var problems []string

	if c.SQLite.JournalMode != "" && !journalModes[strings.ToUpper(c.SQLite.JournalMode)] {
		problems = append(problems, "sqlite.journal_mode: "+c.SQLite.JournalMode)
	}
	if c.SQLite.Synchronous != "" && !syncModes[strings.ToUpper(c.SQLite.Synchronous)] {
		problems = append(problems, "sqlite.synchronous: "+c.SQLite.Synchronous)
	}
	if c.SQLite.BusyTimeout < 0 {
		problems = append(problems, "sqlite.busy_timeout must not be negative")
	}
	if c.Engine.TempSuffix == "" {
		problems = append(problems, "engine.temp_suffix must not be empty")
	}
	if c.Engine.ReadWorkers < 1 {
		problems = append(problems, "engine.read_workers must be at least 1")
	}
	if !shellFormats[strings.ToLower(c.Shell.Format)] {
		problems = append(problems, "shell.format: "+c.Shell.Format)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, "log.level: "+c.Log.Level)
	}
	if _, err := log.ParseFormat(c.Log.Format); err != nil {
		problems = append(problems, "log.format: "+c.Log.Format)
	}

	if len(problems) > 0 {
		return errors.Newf(errors.ErrCodeConfigInvalid, "invalid configuration: %s", strings.Join(problems, "; ")).Err()
	}
	return nil
}

// DSN builds a go-sqlite3 data source name for the file at path.
func (c SQLiteConfig) DSN(path string) string {
	q := url.Values{}
	if c.CacheSize != 0 {
		q.Set("_cache_size", fmt.Sprint(c.CacheSize))
	}
	if c.BusyTimeout > 0 {
		q.Set("_busy_timeout", fmt.Sprint(c.BusyTimeout))
	}
	if c.JournalMode != "" {
		q.Set("_journal_mode", strings.ToUpper(c.JournalMode))
	}
	if c.Synchronous != "" {
		q.Set("_synchronous", strings.ToUpper(c.Synchronous))
	}
	if c.ForeignKeys {
		q.Set("_foreign_keys", "on")
	} else {
		q.Set("_foreign_keys", "off")
	}
	return "file:" + path + "?" + q.Encode()
}

// NewLogger builds the logger described by c, writing to out.
func (c LogConfig) NewLogger(out io.Writer) (*log.Logger, error) {
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	format, err := log.ParseFormat(c.Format)
	if err != nil {
		return nil, err
	}
	cfg := log.Config{
		DefaultLevel:  level,
		Output:        out,
		Format:        format,
		IncludeCaller: c.Caller,
	}
	if len(c.Categories) > 0 {
		cfg.CategoryLevels = make(map[log.Category]log.Level, len(c.Categories))
		for cat, lv := range c.Categories {
			parsed, err := log.ParseLevel(lv)
			if err != nil {
				return nil, err
			}
			cfg.CategoryLevels[log.Category(strings.ToLower(cat))] = parsed
		}
	}
	return log.New(cfg), nil
}
