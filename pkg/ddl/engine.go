// Package ddl executes schema changes SQLite cannot perform in one
// statement, and keeps the GeoPackage catalog consistent with them.
//
// Each emulated operation runs as one transaction on the engine's
// connection: validation first, then every statement of the sequence and
// the catalog updates, then commit. Any failure after the transaction
// opens rolls the whole sequence back.
package ddl

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/log"
	"github.com/ha1tch/gpkgsql/pkg/sqlutil"
)

// State is the engine's position in an operation.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateTransacting
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateTransacting:
		return "transacting"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// DefaultTempSuffix is appended to a table name for its rebuild copy.
const DefaultTempSuffix = "_tmp"

// Engine runs emulated DDL on one connection.
type Engine struct {
	conn       *sqlutil.Conn
	logger     *log.Logger
	tempSuffix string
	updaters   []Updater

	mu    sync.Mutex
	state State
}

// Option configures an Engine.
type Option func(*Engine)

// WithTempSuffix sets the suffix of rebuild tables.
func WithTempSuffix(suffix string) Option {
	return func(e *Engine) {
		if suffix != "" {
			e.tempSuffix = suffix
		}
	}
}

// WithUpdaters registers catalog collaborators, called in order.
func WithUpdaters(updaters ...Updater) Option {
	return func(e *Engine) {
		e.updaters = append(e.updaters, updaters...)
	}
}

// New returns an engine bound to conn. The engine assumes exclusive use of
// the connection while an operation runs.
func New(conn *sqlutil.Conn, logger *log.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = log.Discard()
	}
	e := &Engine{
		conn:       conn,
		logger:     logger,
		tempSuffix: DefaultTempSuffix,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register appends a catalog collaborator.
func (e *Engine) Register(u Updater) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updaters = append(e.updaters, u)
}

// Updaters returns the registered collaborators in call order.
func (e *Engine) Updaters() []Updater {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Updater(nil), e.updaters...)
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) enter() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return false
	}
	e.state = StateValidating
	return true
}

// Exec classifies sql and runs it. Emulated forms report an update count
// of zero; native statements return their own result.
func (e *Engine) Exec(ctx context.Context, sql string, maxRows int) (*sqlutil.Result, error) {
	st, err := Classify(sql)
	if err != nil {
		return nil, err
	}
	if st.Kind == KindNative {
		return e.conn.ExecuteResult(ctx, sql, maxRows)
	}

	start := time.Now()
	switch st.Kind {
	case KindDropColumn:
		err = e.DropColumn(ctx, st.Table, st.Column)
	case KindCopyTable:
		err = e.CopyTable(ctx, st.Table, st.NewName)
	case KindRenameCascade:
		err = e.RenameTable(ctx, st.Table, st.NewName)
	case KindDropCascade:
		err = e.DropTable(ctx, st.Table, st.IfExists)
	case KindAddColumn:
		err = e.AddColumn(ctx, st.Table, st.ColumnDef)
	case KindRenameColumn:
		err = e.RenameColumn(ctx, st.Table, st.Column, st.NewName)
	}
	if err != nil {
		return nil, err
	}
	res := sqlutil.NewUpdateResult(0)
	res.Elapsed = time.Since(start)
	return res, nil
}

// plan validates an operation and returns the body to run inside the
// transaction. A nil body means there is nothing to do.
type plan func(ctx context.Context) (body func(ctx context.Context) error, err error)

// run drives one operation through the state machine.
func (e *Engine) run(ctx context.Context, kind Kind, target string, validate plan) (err error) {
	if !e.enter() {
		OperationsTotal.WithLabelValues(kind.String(), OutcomeBusy).Inc()
		return errors.New(errors.ErrCodeDDLInProgress, "another DDL operation is in progress").
			WithField("kind", kind.String()).Err()
	}

	opID := uuid.NewString()
	lg := e.logger.DDL().WithFields("op", opID, "kind", kind.String(), "table", target)
	start := time.Now()
	outcome := OutcomeRejected
	defer func() {
		elapsed := time.Since(start)
		OperationsTotal.WithLabelValues(kind.String(), outcome).Inc()
		OperationDuration.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
		e.logger.Performance().Debug("ddl timing", "op", opID, "kind", kind.String(), "elapsed", elapsed)
		e.setState(StateIdle)
	}()

	lg.Debug("validating")
	body, err := validate(ctx)
	if err != nil {
		lg.Warn("rejected", "error", err.Error())
		return err
	}
	if body == nil {
		outcome = OutcomeNoop
		return nil
	}

	e.setState(StateTransacting)
	tx, err := e.conn.Begin(ctx)
	if err != nil {
		lg.Error("failed to open transaction", err)
		return err
	}

	err = e.conn.Execute(ctx, "PRAGMA defer_foreign_keys = ON")
	if err == nil {
		err = body(ctx)
	}
	if err != nil {
		outcome = OutcomeRolledBack
		e.setState(StateRolledBack)
		if rbErr := tx.End(ctx, false); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		lg.Error("rolled back", err)
		return err
	}

	if err := tx.End(ctx, true); err != nil {
		outcome = OutcomeRolledBack
		e.setState(StateRolledBack)
		lg.Error("commit failed", err)
		return err
	}
	outcome = OutcomeCommitted
	e.setState(StateCommitted)
	lg.Info("committed", "elapsed", time.Since(start))
	return nil
}

// eachUpdater calls fn for every collaborator, stopping at the first
// error, which is tagged with the collaborator's name.
func (e *Engine) eachUpdater(fn func(u Updater) error) error {
	for _, u := range e.Updaters() {
		if err := fn(u); err != nil {
			return errors.Wrapf(err, errors.GetCode(err), "catalog %s", u.Name()).
				WithField("catalog", u.Name()).Err()
		}
	}
	return nil
}

// tableChanged tells change recorders that table was altered in place.
func (e *Engine) tableChanged(ctx context.Context, table string) error {
	return e.eachUpdater(func(u Updater) error {
		if r, ok := u.(ChangeRecorder); ok {
			return r.TableChanged(ctx, e.conn, table)
		}
		return nil
	})
}
