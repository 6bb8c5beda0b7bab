// Package sqlutil is the SQL execution layer: statement execution with
// uniform error wrapping, typed result extraction, row counting by
// statement rewriting, parameterized insert/update/delete, and transaction
// control over a single pinned SQLite connection.
package sqlutil

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/log"
)

// Conn is one SQLite connection owned by a single caller. It is not safe
// for concurrent use: one statement is active at a time.
type Conn struct {
	conn   *sql.Conn
	logger *log.Logger

	savepoints uint64
}

// Open pins a connection from db.
func Open(ctx context.Context, db *sql.DB, logger *log.Logger) (*Conn, error) {
	if logger == nil {
		logger = log.Discard()
	}
	c, err := db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExecFailed, "failed to acquire connection").Err()
	}
	return &Conn{conn: c, logger: logger}, nil
}

// Close returns the connection to its pool.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Logger returns the logger the connection was opened with.
func (c *Conn) Logger() *log.Logger {
	return c.logger
}

// AutoCommit reports whether the connection is outside any transaction,
// read from the SQLite connection itself.
func (c *Conn) AutoCommit(ctx context.Context) (bool, error) {
	var auto bool
	err := c.conn.Raw(func(driverConn interface{}) error {
		sc, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		auto = sc.AutoCommit()
		return nil
	})
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeExecFailed, "failed to read autocommit state").Err()
	}
	return auto, nil
}

// Execute runs a statement that returns no rows.
func (c *Conn) Execute(ctx context.Context, query string, args ...interface{}) error {
	_, err := c.exec(ctx, query, args...)
	return err
}

// ExecuteAffected runs a statement and returns the number of rows it
// changed.
func (c *Conn) ExecuteAffected(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := c.exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Execution(query, err).Err()
	}
	return n, nil
}

func (c *Conn) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		c.logger.SQL().Debug("statement failed", "statement", query, "error", err.Error())
		return nil, errors.Execution(query, err).Err()
	}
	c.logger.SQL().Debug("statement executed", "statement", query, "elapsed", time.Since(start))
	return res, nil
}

// Query runs a statement and returns its cursor. The caller owns the
// cursor and must close it.
func (c *Conn) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		c.logger.SQL().Debug("query failed", "statement", query, "error", err.Error())
		return nil, errors.Execution(query, err).Err()
	}
	c.logger.SQL().Debug("query opened", "statement", query)
	return rows, nil
}

func (c *Conn) nextSavepoint() string {
	return fmt.Sprintf("gpkgsql_sp_%d", atomic.AddUint64(&c.savepoints, 1))
}
