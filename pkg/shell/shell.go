// Package shell is the interactive SQL shell over a GeoPackage.
//
// Input is buffered until a statement is terminated by ';'. Lines that
// start with '.' while no statement is pending are meta-commands. Every
// statement goes through the DDL engine, so ALTER TABLE forms SQLite lacks
// work as they would in a full database.
package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/ha1tch/gpkgsql/pkg/config"
	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/gpkg"
	"github.com/ha1tch/gpkgsql/pkg/log"
	"github.com/ha1tch/gpkgsql/pkg/sqltext"
	"github.com/ha1tch/gpkgsql/pkg/sqlutil"
)

const (
	prompt         = "gpkg> "
	continuePrompt = "  -> "
)

// Shell reads statements and meta-commands and prints their results.
type Shell struct {
	g      *gpkg.GeoPackage
	in     LineReader
	out    io.Writer
	errOut io.Writer
	logger *log.Logger

	colour     palette
	format     Format
	timing     bool
	maxRows    int
	maxHistory int

	buf     strings.Builder
	history []string
}

// Option configures a Shell.
type Option func(*Shell)

// WithOutput sets the writers for results and errors. Defaults are
// os.Stdout and os.Stderr.
func WithOutput(out, errOut io.Writer) Option {
	return func(s *Shell) {
		s.out, s.errOut = out, errOut
	}
}

// New creates a shell reading from in.
func New(g *gpkg.GeoPackage, in LineReader, cfg config.ShellConfig, logger *log.Logger, opts ...Option) *Shell {
	if logger == nil {
		logger = log.Discard()
	}
	s := &Shell{
		g:          g,
		in:         in,
		out:        os.Stdout,
		errOut:     os.Stderr,
		logger:     logger,
		timing:     cfg.Timing,
		maxRows:    cfg.MaxRows,
		maxHistory: cfg.MaxHistory,
	}
	s.format, _ = ParseFormat(cfg.Format)
	for _, opt := range opts {
		opt(s)
	}
	f, _ := s.out.(*os.File)
	s.colour = newPalette(cfg.Color, f)
	return s
}

// Run processes input until .exit, end of input or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	defer s.in.Close()
	s.logger.Shell().Info("shell started", "path", s.g.Path())

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.in.SetPrompt(s.prompt())

		line, err := s.in.Readline()
		if err == readline.ErrInterrupt {
			if s.buf.Len() > 0 {
				s.buf.Reset()
				fmt.Fprintln(s.out, "^C")
			}
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if !s.HandleLine(ctx, line) {
			return nil
		}
	}
}

func (s *Shell) prompt() string {
	p := prompt
	if s.buf.Len() > 0 {
		p = continuePrompt
	}
	return s.colour.green + p + s.colour.reset
}

// Pending reports whether a statement is buffered awaiting its ';'.
func (s *Shell) Pending() bool {
	return s.buf.Len() > 0
}

// HandleLine processes one input line and reports whether the shell
// should keep reading.
func (s *Shell) HandleLine(ctx context.Context, line string) bool {
	trimmed := strings.TrimSpace(line)
	if s.buf.Len() == 0 {
		if trimmed == "" {
			return true
		}
		if strings.HasPrefix(trimmed, ".") {
			s.remember(trimmed)
			return s.meta(ctx, trimmed)
		}
	}

	s.buf.WriteString(line)
	s.buf.WriteString("\n")
	stmts, rest := sqltext.SplitStatements(s.buf.String())
	s.buf.Reset()
	if len(sqltext.Significant(rest)) > 0 {
		s.buf.WriteString(rest)
	}

	for _, stmt := range stmts {
		s.remember(stmt + ";")
		if err := s.execute(ctx, stmt); err != nil {
			s.fail(err)
			return true
		}
	}
	return true
}

// execute runs one statement and prints its result.
func (s *Shell) execute(ctx context.Context, stmt string) error {
	start := time.Now()
	res, err := s.g.Exec(ctx, stmt, s.maxRows)
	if err != nil {
		return err
	}
	s.print(res, time.Since(start))
	return nil
}

func (s *Shell) print(res *sqlutil.Result, elapsed time.Duration) {
	render(s.out, s.format, s.colour, res)
	if res.Truncated {
		fmt.Fprintf(s.out, "%s(output stopped at %d rows)%s\n", s.colour.dim, s.maxRows, s.colour.reset)
	}
	if !s.timing || s.format == FormatCSV || s.format == FormatJSON {
		return
	}
	if n, ok := res.RowCount(); ok {
		fmt.Fprintf(s.out, "%s(%d rows, %.2fms)%s\n", s.colour.dim, n, float64(elapsed.Microseconds())/1000, s.colour.reset)
	} else {
		fmt.Fprintf(s.out, "%s(%.2fms)%s\n", s.colour.dim, float64(elapsed.Microseconds())/1000, s.colour.reset)
	}
}

// PrintResult renders res the way the shell prints statement results.
func (s *Shell) PrintResult(res *sqlutil.Result) {
	s.print(res, res.Elapsed)
}

// fail reports err and drops any pending input.
func (s *Shell) fail(err error) {
	s.buf.Reset()
	s.logger.Shell().Debug("statement failed", "error", err.Error())
	fmt.Fprintf(s.errOut, "%sError: %v%s\n", s.colour.red, err, s.colour.reset)
}

func (s *Shell) remember(entry string) {
	s.history = append(s.history, entry)
	if s.maxHistory > 0 && len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}
}

// History returns the statements and commands entered this session.
func (s *Shell) History() []string {
	return append([]string(nil), s.history...)
}

// meta runs a meta-command line and reports whether to keep reading.
func (s *Shell) meta(ctx context.Context, line string) bool {
	name, arg := splitMeta(line)
	if name == ".exit" || name == ".quit" {
		return false
	}
	m, ok := findMeta(name)
	if !ok {
		s.fail(errors.Validation("unknown command %s, try .help", name).Err())
		return true
	}
	if err := m.run(s, ctx, arg); err != nil {
		s.fail(err)
	}
	return true
}

func splitMeta(line string) (name, arg string) {
	name = line
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		name, arg = line[:i], strings.TrimSpace(line[i+1:])
	}
	return strings.ToLower(name), arg
}

// ExecLine runs statements or a single meta-command without the
// interactive loop, for -e. It returns the first error.
func (s *Shell) ExecLine(ctx context.Context, input string) error {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, ".") {
		return s.ExecScript(ctx, input)
	}
	name, arg := splitMeta(trimmed)
	if name == ".exit" || name == ".quit" {
		return nil
	}
	m, ok := findMeta(name)
	if !ok {
		return errors.Validation("unknown command %s", name).Err()
	}
	return m.run(s, ctx, arg)
}

// ExecScript runs a script, printing each result, and stops at the first
// failing statement.
func (s *Shell) ExecScript(ctx context.Context, script string) error {
	start := time.Now()
	_, err := s.g.ExecScript(ctx, script, s.maxRows, func(_ string, res *sqlutil.Result) {
		s.print(res, time.Since(start))
		start = time.Now()
	})
	return err
}

// parseToggle reads "on"/"off", or flips current when arg is empty.
func parseToggle(arg string, current bool) (bool, error) {
	switch strings.ToLower(arg) {
	case "":
		return !current, nil
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return current, errors.Validation("expected on or off, got %q", arg).Err()
}

func parseMaxRows(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		return 0, errors.Validation("expected a row count, got %q", arg).Err()
	}
	return n, nil
}
