package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ha1tch/gpkgsql/pkg/config"
	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/gpkg"
	"github.com/ha1tch/gpkgsql/pkg/log"
	"github.com/ha1tch/gpkgsql/pkg/shell"
	"github.com/ha1tch/gpkgsql/pkg/sqlutil"
	"github.com/ha1tch/gpkgsql/pkg/version"
	"github.com/ha1tch/gpkgsql/pkg/watch"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// options holds the command line. Flags left unset keep the configured
// values.
type options struct {
	configFile  string
	create      bool
	execute     []string
	file        string
	watch       bool
	format      string
	maxRows     int
	logLevel    string
	logFormat   string
	metricsAddr string
	noColor     bool
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdin, stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(stderr, "gpkgsql:", err)
		return 1
	}
	return 0
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var opts options

	root := &cobra.Command{
		Use:   "gpkgsql [flags] FILE.gpkg",
		Short: "SQL shell for GeoPackage files",
		Long: `gpkgsql runs SQL against a GeoPackage. ALTER TABLE ... DROP COLUMN,
ALTER TABLE ... RENAME TO and ALTER TABLE ... COPY TO are emulated and keep
the gpkg_* catalog tables consistent. DROP TABLE removes catalog rows too.

Without -e or -f an interactive shell starts.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return execute(cmd.Context(), args[0], cfg, opts, stdin, stdout, stderr)
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	f := root.Flags()
	f.StringVar(&opts.configFile, "config", "", "configuration file (yaml, json or toml)")
	f.BoolVar(&opts.create, "create", false, "create FILE as a new GeoPackage")
	f.StringArrayVarP(&opts.execute, "execute", "e", nil, "run statements or a meta-command and exit (repeatable)")
	f.StringVarP(&opts.file, "file", "f", "", "run the statements in a script file and exit")
	f.BoolVar(&opts.watch, "watch", false, "with -f, re-run the script whenever it changes")
	f.StringVar(&opts.format, "format", "", "output format: default, ascii, csv, json")
	f.IntVar(&opts.maxRows, "max-rows", 0, "rows printed per query, 0 for no limit")
	f.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error, off")
	f.StringVar(&opts.logFormat, "log-format", "", "log format: text, json")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	f.BoolVar(&opts.noColor, "no-color", false, "disable coloured output")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
		},
	})
	return root
}

// loadConfig reads the configuration and applies the flags that were set.
func loadConfig(cmd *cobra.Command, opts options) (config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Shell.Format = opts.format
	}
	if flags.Changed("max-rows") {
		cfg.Shell.MaxRows = opts.maxRows
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}
	if opts.noColor {
		cfg.Shell.Color = "never"
	}
	if opts.watch && opts.file == "" {
		return cfg, errors.Validation("--watch needs a script given with -f").Err()
	}
	return cfg, cfg.Validate()
}

func execute(ctx context.Context, path string, cfg config.Config, opts options, stdin io.Reader, stdout, stderr io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := cfg.Log.NewLogger(stderr)
	if err != nil {
		return err
	}

	if opts.metricsAddr != "" {
		srv := serveMetrics(opts.metricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	var g *gpkg.GeoPackage
	if opts.create {
		g, err = gpkg.Create(ctx, path, cfg, logger)
	} else {
		g, err = gpkg.Open(ctx, path, cfg, logger)
	}
	if err != nil {
		return err
	}
	defer g.Close()

	interactive := len(opts.execute) == 0 && opts.file == ""
	in := shellInput(stdin, cfg, interactive)
	sh := shell.New(g, in, cfg.Shell, logger, shell.WithOutput(stdout, stderr))

	switch {
	case len(opts.execute) > 0:
		for _, line := range opts.execute {
			if err := sh.ExecLine(ctx, line); err != nil {
				return err
			}
		}
		return nil

	case opts.watch:
		return watchScript(ctx, opts.file, g, sh, cfg, logger, stderr)

	case opts.file != "":
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return err
		}
		return sh.ExecScript(ctx, string(data))
	}

	if _, ok := in.(*shell.Feed); !ok {
		fmt.Fprintf(stdout, "%s, file %s\nEnter .help for commands.\n", version.Full(), path)
	}
	return sh.Run(ctx)
}

// shellInput uses line editing when stdin is a terminal.
func shellInput(stdin io.Reader, cfg config.Config, interactive bool) shell.LineReader {
	if f, ok := stdin.(*os.File); ok && interactive && term.IsTerminal(int(f.Fd())) {
		rl, err := shell.NewTerminalReader(cfg.Shell.HistoryFile, cfg.Shell.MaxHistory)
		if err == nil {
			return rl
		}
	}
	return shell.NewFeed(stdin)
}

func serveMetrics(addr string, logger *log.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.System().Error("metrics server failed", err, "addr", addr)
		}
	}()
	logger.System().Info("serving metrics", "addr", addr)
	return srv
}

// watchScript runs the script now and after every change until ctx ends.
func watchScript(ctx context.Context, path string, g *gpkg.GeoPackage, sh *shell.Shell, cfg config.Config, logger *log.Logger, stderr io.Writer) error {
	w, err := watch.New(path, g, logger,
		watch.WithRunOnStart(),
		watch.WithMaxRows(cfg.Shell.MaxRows),
		watch.WithOnResult(func(_ string, res *sqlutil.Result) {
			sh.PrintResult(res)
		}),
		watch.WithOnRun(func(r watch.Run) {
			if r.Err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", r.Err)
			}
			fmt.Fprintf(stderr, "-- %s: %d statement(s) in %s, watching for changes\n", r.Path, r.Statements, r.Elapsed.Round(time.Millisecond))
		}),
	)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Stop()
}
