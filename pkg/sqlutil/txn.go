package sqlutil

import (
	"context"
	"time"

	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/sqltext"
)

// Transaction is an all-or-nothing unit of work on a Conn.
//
// When the connection is in autocommit mode, Begin opens a transaction
// and End commits or rolls it back. When the caller is already inside a
// transaction, Begin opens a savepoint and End releases or rolls back to
// it, so the outer transaction and the autocommit flag are left alone.
// Transactions do not nest further: one Begin, one End.
type Transaction struct {
	conn       *Conn
	autoCommit bool   // flag captured at Begin
	savepoint  string // set when running inside an outer transaction
	started    time.Time
	done       bool
}

// Begin starts a transaction on c.
func (c *Conn) Begin(ctx context.Context) (*Transaction, error) {
	auto, err := c.AutoCommit(ctx)
	if err != nil {
		return nil, errors.Transaction(err, "failed to read autocommit state").Err()
	}

	tx := &Transaction{conn: c, autoCommit: auto, started: time.Now()}
	if auto {
		// IMMEDIATE takes the write lock now rather than at the first write.
		if err := c.Execute(ctx, "BEGIN IMMEDIATE"); err != nil {
			return nil, err
		}
	} else {
		tx.savepoint = c.nextSavepoint()
		if err := c.Execute(ctx, "SAVEPOINT "+sqltext.QuoteIdentifier(tx.savepoint)); err != nil {
			return nil, err
		}
	}
	c.logger.SQL().Debug("transaction started", "outer", !auto, "savepoint", tx.savepoint)
	return tx, nil
}

// Nested reports whether the transaction runs inside an outer one.
func (t *Transaction) Nested() bool {
	return t.savepoint != ""
}

// End commits when successful is true and rolls back otherwise, then
// checks that the connection's autocommit flag is back to what Begin saw.
// Failures are TransactionErrors. A failed commit is followed by a
// rollback attempt; both failures are reported.
func (t *Transaction) End(ctx context.Context, successful bool) error {
	if t.done {
		return errors.Transaction(nil, "transaction already ended").Err()
	}
	t.done = true
	c := t.conn

	var endErr error
	if t.savepoint == "" {
		if successful {
			if err := c.Execute(ctx, "COMMIT"); err != nil {
				endErr = errors.Transaction(err, "commit failed").Err()
				if still, _ := c.AutoCommit(ctx); !still {
					if rbErr := c.Execute(ctx, "ROLLBACK"); rbErr != nil {
						endErr = errors.Join(endErr, errors.Transaction(rbErr, "rollback after failed commit failed").Err())
					}
				}
			}
		} else if err := c.Execute(ctx, "ROLLBACK"); err != nil {
			endErr = errors.Transaction(err, "rollback failed").Err()
		}
	} else {
		name := sqltext.QuoteIdentifier(t.savepoint)
		if !successful {
			if err := c.Execute(ctx, "ROLLBACK TO "+name); err != nil {
				endErr = errors.Transaction(err, "rollback to savepoint failed").Err()
			}
		}
		if err := c.Execute(ctx, "RELEASE "+name); err != nil {
			endErr = errors.Join(endErr, errors.Transaction(err, "release savepoint failed").Err())
		}
	}

	auto, err := c.AutoCommit(ctx)
	if err != nil {
		endErr = errors.Join(endErr, errors.Transaction(err, "failed to read autocommit state").Err())
	} else if auto != t.autoCommit {
		endErr = errors.Join(endErr, errors.Transaction(nil, "autocommit not restored: have %v, want %v", auto, t.autoCommit).Err())
	}

	c.logger.SQL().Debug("transaction ended",
		"committed", successful && endErr == nil,
		"elapsed", time.Since(t.started),
	)
	return endErr
}
