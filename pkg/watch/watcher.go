// Package watch re-runs a SQL script against a GeoPackage whenever the
// script file changes.
package watch

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ha1tch/gpkgsql/pkg/log"
	"github.com/ha1tch/gpkgsql/pkg/sqlutil"
)

// ScriptRunner executes a script statement by statement.
// *gpkg.GeoPackage implements it.
type ScriptRunner interface {
	ExecScript(ctx context.Context, script string, maxRows int, fn func(stmt string, res *sqlutil.Result)) (int, error)
}

// Run describes one execution of the script.
type Run struct {
	Path       string
	Statements int // statements that succeeded
	Err        error
	Elapsed    time.Duration
}

// Watcher watches a script file and runs it through a ScriptRunner after
// every change. Runs never overlap.
type Watcher struct {
	mu sync.Mutex

	path    string
	runner  ScriptRunner
	logger  *log.Logger
	maxRows int

	fsWatcher *fsnotify.Watcher

	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	doneCh  chan struct{}

	debounceDelay time.Duration
	eventTimer    *time.Timer
	runOnStart    bool

	runMu    sync.Mutex
	lastHash [sha256.Size]byte
	ran      bool

	onRun    func(Run)
	onResult func(stmt string, res *sqlutil.Result)
}

// Option configures the watcher.
type Option func(*Watcher)

// WithDebounceDelay sets how long to wait for events to settle before a
// run. Default is 100ms.
func WithDebounceDelay(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounceDelay = d
	}
}

// WithRunOnStart runs the script once when the watcher starts.
func WithRunOnStart() Option {
	return func(w *Watcher) {
		w.runOnStart = true
	}
}

// WithMaxRows limits the rows rendered per query.
func WithMaxRows(n int) Option {
	return func(w *Watcher) {
		w.maxRows = n
	}
}

// WithOnRun sets a callback invoked after every run.
func WithOnRun(fn func(Run)) Option {
	return func(w *Watcher) {
		w.onRun = fn
	}
}

// WithOnResult sets a callback receiving each statement result.
func WithOnResult(fn func(stmt string, res *sqlutil.Result)) Option {
	return func(w *Watcher) {
		w.onResult = fn
	}
}

// New creates a watcher for the script at path.
func New(path string, runner ScriptRunner, logger *log.Logger, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Discard()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:          abs,
		runner:        runner,
		logger:        logger,
		fsWatcher:     fsw,
		doneCh:        make(chan struct{}),
		debounceDelay: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching. The directory holding the script is watched
// rather than the file, so editors that save by rename keep working.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	if err := w.fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		w.mu.Unlock()
		return err
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.logger.Shell().Info("script watcher started", "path", w.path)

	if w.runOnStart {
		w.run()
	}
	go w.processEvents()
	return nil
}

// Stop stops the watcher and waits for a run in progress to finish.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	if w.eventTimer != nil {
		w.eventTimer.Stop()
	}
	w.cancel()
	w.mu.Unlock()

	<-w.doneCh
	w.runMu.Lock()
	defer w.runMu.Unlock()

	w.logger.Shell().Info("script watcher stopped", "path", w.path)
	return w.fsWatcher.Close()
}

// IsRunning returns whether the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Done is closed when the event loop exits.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}

func (w *Watcher) processEvents() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Shell().Error("watcher error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.logger.Shell().Debug("script moved away, waiting for it to return", "path", w.path)
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.eventTimer != nil {
		w.eventTimer.Stop()
	}
	w.eventTimer = time.AfterFunc(w.debounceDelay, w.run)
}

// run executes the script unless its content is unchanged since the last
// run.
func (w *Watcher) run() {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Shell().Warn("cannot read script", "path", w.path, "error", err.Error())
		return
	}
	hash := sha256.Sum256(data)
	if w.ran && hash == w.lastHash {
		w.logger.Shell().Debug("script unchanged, skipping run", "path", w.path)
		return
	}
	w.lastHash, w.ran = hash, true

	start := time.Now()
	n, err := w.runner.ExecScript(ctx, string(data), w.maxRows, w.onResult)
	r := Run{Path: w.path, Statements: n, Err: err, Elapsed: time.Since(start)}

	if err != nil {
		w.logger.Shell().Error("script run failed", err, "path", w.path, "succeeded", n)
	} else {
		w.logger.Shell().Info("script run", "path", w.path, "statements", n)
	}
	w.logger.Performance().Debug("script run timing", "path", w.path, "elapsed_ms", r.Elapsed.Milliseconds())

	if w.onRun != nil {
		w.onRun(r)
	}
}
