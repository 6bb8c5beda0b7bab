// Package log provides structured logging for gpkgsql.
//
// Entries are grouped into categories:
//   - System: file open/create, configuration, resource management
//   - SQL: statement execution, cursors, transactions
//   - DDL: schema change classification and emulated sequences
//   - Catalog: GeoPackage catalog maintenance
//   - Shell: interactive shell and script runs
//   - Performance: timing
//
// A Logger is built once from a Config and handed to the components that
// need it. Levels and outputs are fixed at construction.
package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents a logging severity level.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff // Disable logging entirely
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level string.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR", "ERR":
		return LevelError, nil
	case "OFF", "NONE":
		return LevelOff, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// Category identifies the logging category.
type Category string

const (
	CategorySystem      Category = "system"
	CategorySQL         Category = "sql"
	CategoryDDL         Category = "ddl"
	CategoryCatalog     Category = "catalog"
	CategoryShell       Category = "shell"
	CategoryPerformance Category = "performance"
)

var allCategories = []Category{
	CategorySystem,
	CategorySQL,
	CategoryDDL,
	CategoryCatalog,
	CategoryShell,
	CategoryPerformance,
}

// Format specifies the output format.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// ParseFormat parses "text" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %s", s)
	}
}

// Entry represents a single log entry.
type Entry struct {
	Time     time.Time              `json:"time"`
	Level    string                 `json:"level"`
	Category Category               `json:"category"`
	Message  string                 `json:"message"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Caller   string                 `json:"caller,omitempty"`
}

// Config holds logger configuration.
type Config struct {
	// Default level for all categories
	DefaultLevel Level

	// Per-category level overrides
	CategoryLevels map[Category]Level

	// Output (os.Stderr if nil)
	Output io.Writer
	Format Format

	IncludeCaller bool
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		DefaultLevel: LevelWarn,
		Output:       os.Stderr,
		Format:       FormatText,
	}
}

// Logger writes entries for all categories. It is safe for concurrent use.
type Logger struct {
	mu sync.Mutex // serialises writes

	levels        map[Category]Level
	output        io.Writer
	format        Format
	includeCaller bool

	entriesLogged int64
}

// New creates a logger from cfg.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	l := &Logger{
		levels:        make(map[Category]Level, len(allCategories)),
		output:        cfg.Output,
		format:        cfg.Format,
		includeCaller: cfg.IncludeCaller,
	}
	for _, cat := range allCategories {
		l.levels[cat] = cfg.DefaultLevel
	}
	for cat, level := range cfg.CategoryLevels {
		l.levels[cat] = level
	}
	return l
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New(Config{DefaultLevel: LevelOff, Output: io.Discard})
}

// Enabled reports whether level is logged for cat.
func (l *Logger) Enabled(cat Category, level Level) bool {
	return level >= l.levels[cat] && level != LevelOff
}

// Logged returns the number of entries written so far.
func (l *Logger) Logged() int64 {
	return atomic.LoadInt64(&l.entriesLogged)
}

// System returns the logger for file and resource events.
func (l *Logger) System() *CategoryLogger {
	return &CategoryLogger{logger: l, category: CategorySystem}
}

// SQL returns the logger for statement execution.
func (l *Logger) SQL() *CategoryLogger {
	return &CategoryLogger{logger: l, category: CategorySQL}
}

// DDL returns the logger for emulated schema changes.
func (l *Logger) DDL() *CategoryLogger {
	return &CategoryLogger{logger: l, category: CategoryDDL}
}

// Catalog returns the logger for catalog maintenance.
func (l *Logger) Catalog() *CategoryLogger {
	return &CategoryLogger{logger: l, category: CategoryCatalog}
}

// Shell returns the logger for the shell and script runs.
func (l *Logger) Shell() *CategoryLogger {
	return &CategoryLogger{logger: l, category: CategoryShell}
}

// Performance returns the logger for timing.
func (l *Logger) Performance() *CategoryLogger {
	return &CategoryLogger{logger: l, category: CategoryPerformance}
}

func (l *Logger) log(level Level, cat Category, msg string, err error, fields ...interface{}) {
	if l == nil || !l.Enabled(cat, level) {
		return
	}

	entry := &Entry{
		Time:     time.Now(),
		Level:    level.String(),
		Category: cat,
		Message:  msg,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	// Fields are key/value pairs; a trailing key without a value is dropped.
	if len(fields) > 1 {
		entry.Fields = make(map[string]interface{}, len(fields)/2)
		for i := 0; i < len(fields)-1; i += 2 {
			if key, ok := fields[i].(string); ok {
				entry.Fields[key] = fields[i+1]
			}
		}
	}

	if l.includeCaller {
		if _, file, line, ok := runtime.Caller(2); ok {
			if idx := strings.LastIndex(file, "/"); idx >= 0 {
				file = file[idx+1:]
			}
			entry.Caller = fmt.Sprintf("%s:%d", file, line)
		}
	}

	var line string
	if l.format == FormatJSON {
		data, _ := json.Marshal(entry)
		line = string(data) + "\n"
	} else {
		line = formatText(entry)
	}

	l.mu.Lock()
	l.output.Write([]byte(line))
	l.mu.Unlock()
	atomic.AddInt64(&l.entriesLogged, 1)
}

func formatText(entry *Entry) string {
	var buf strings.Builder

	buf.WriteString(entry.Time.Format("2006-01-02 15:04:05.000"))
	buf.WriteString(" ")
	buf.WriteString(fmt.Sprintf("%-5s", entry.Level))
	buf.WriteString(" [")
	buf.WriteString(string(entry.Category))
	buf.WriteString("] ")

	if entry.Caller != "" {
		buf.WriteString(entry.Caller)
		buf.WriteString(" ")
	}

	buf.WriteString(entry.Message)

	if entry.Error != "" {
		buf.WriteString(" error=\"")
		buf.WriteString(entry.Error)
		buf.WriteString("\"")
	}

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			buf.WriteString(" ")
			buf.WriteString(k)
			buf.WriteString("=")
			buf.WriteString(fmt.Sprintf("%v", entry.Fields[k]))
		}
	}

	buf.WriteString("\n")
	return buf.String()
}

// CategoryLogger is a logger bound to a specific category.
type CategoryLogger struct {
	logger   *Logger
	category Category
}

func (cl *CategoryLogger) Debug(msg string, fields ...interface{}) {
	cl.logger.log(LevelDebug, cl.category, msg, nil, fields...)
}

func (cl *CategoryLogger) Info(msg string, fields ...interface{}) {
	cl.logger.log(LevelInfo, cl.category, msg, nil, fields...)
}

func (cl *CategoryLogger) Warn(msg string, fields ...interface{}) {
	cl.logger.log(LevelWarn, cl.category, msg, nil, fields...)
}

func (cl *CategoryLogger) Error(msg string, err error, fields ...interface{}) {
	cl.logger.log(LevelError, cl.category, msg, err, fields...)
}

// WithFields returns a FieldLogger with preset fields.
func (cl *CategoryLogger) WithFields(fields ...interface{}) *FieldLogger {
	return &FieldLogger{
		categoryLogger: cl,
		fields:         fields,
	}
}

// FieldLogger is a category logger with preset fields.
type FieldLogger struct {
	categoryLogger *CategoryLogger
	fields         []interface{}
}

func (fl *FieldLogger) with(extra []interface{}) []interface{} {
	out := make([]interface{}, 0, len(fl.fields)+len(extra))
	out = append(out, fl.fields...)
	return append(out, extra...)
}

func (fl *FieldLogger) Debug(msg string, extraFields ...interface{}) {
	fl.categoryLogger.logger.log(LevelDebug, fl.categoryLogger.category, msg, nil, fl.with(extraFields)...)
}

func (fl *FieldLogger) Info(msg string, extraFields ...interface{}) {
	fl.categoryLogger.logger.log(LevelInfo, fl.categoryLogger.category, msg, nil, fl.with(extraFields)...)
}

func (fl *FieldLogger) Warn(msg string, extraFields ...interface{}) {
	fl.categoryLogger.logger.log(LevelWarn, fl.categoryLogger.category, msg, nil, fl.with(extraFields)...)
}

func (fl *FieldLogger) Error(msg string, err error, extraFields ...interface{}) {
	fl.categoryLogger.logger.log(LevelError, fl.categoryLogger.category, msg, err, fl.with(extraFields)...)
}
