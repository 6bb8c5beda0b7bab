package sqlutil

import (
	"context"
	"strings"

	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/sqltext"
)

func buildInsert(table string, values *ContentValues) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqltext.QuoteIdentifier(table))
	if values.Len() == 0 {
		b.WriteString(" DEFAULT VALUES")
		return b.String()
	}
	keys := values.Keys()
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = sqltext.QuoteIdentifier(k)
	}
	b.WriteString(" (")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(") VALUES (")
	b.WriteString(strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", "))
	b.WriteString(")")
	return b.String()
}

// Insert inserts one row and returns its rowid. An empty mapping inserts
// a row of defaults. A statement that changes no rows is an error, so the
// returned id always names a row that exists. A WITHOUT ROWID table has no
// rowid to return and is refused; use InsertReturning with its key.
func (c *Conn) Insert(ctx context.Context, table string, values *ContentValues) (int64, error) {
	defs, err := c.QueryStrings(ctx, "SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE", table)
	if err != nil {
		return -1, err
	}
	if len(defs) > 0 && sqltext.WithoutRowid(defs[0]) {
		return -1, errors.Unsupported("cannot insert into %s: a WITHOUT ROWID table has no rowid, use InsertReturning with its key", table).Err()
	}

	query := buildInsert(table, values)
	res, err := c.exec(ctx, query, values.Values()...)
	if err != nil {
		return -1, err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return -1, errors.Execution(query, errNoRowInserted).Err()
	}
	id, err := res.LastInsertId()
	if err != nil {
		return -1, errors.Execution(query, err).Err()
	}
	return id, nil
}

// InsertReturning inserts one row and returns the value of pkColumn for
// it, read with RETURNING.
func (c *Conn) InsertReturning(ctx context.Context, table, pkColumn string, values *ContentValues) (int64, error) {
	query := buildInsert(table, values) + " RETURNING " + sqltext.QuoteIdentifier(pkColumn)

	rows, err := c.Query(ctx, query, values.Values()...)
	if err != nil {
		return -1, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return -1, errors.Execution(query, err).Err()
		}
		return -1, errors.Execution(query, errNoRowInserted).Err()
	}
	var raw interface{}
	if err := rows.Scan(&raw); err != nil {
		return -1, errors.Execution(query, err).Err()
	}
	// Step to completion so the statement is finished before Close.
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return -1, errors.Execution(query, err).Err()
	}
	id, err := Coerce(raw, TypeInteger)
	if err != nil || id == nil {
		return -1, errors.Wrapf(err, errors.ErrCodeExecConvert, "primary key %s is not an integer", pkColumn).
			WithField("statement", query).Err()
	}
	return id.(int64), nil
}

// TryInsert is Insert that logs failures and returns -1 instead of an
// error.
func (c *Conn) TryInsert(ctx context.Context, table string, values *ContentValues) int64 {
	id, err := c.Insert(ctx, table, values)
	if err != nil {
		c.logger.SQL().Error("insert failed", err, "table", table)
		return -1
	}
	return id
}

// Update sets values on the rows matching where (all rows when where is
// empty) and returns the number of rows changed. Zero is not an error.
// whereArgs bind after the values.
func (c *Conn) Update(ctx context.Context, table string, values *ContentValues, where string, whereArgs ...interface{}) (int64, error) {
	if values.Len() == 0 {
		return 0, errors.Validation("update of %s has no values", table).Err()
	}

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(sqltext.QuoteIdentifier(table))
	b.WriteString(" SET ")
	for i, k := range values.Keys() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqltext.QuoteIdentifier(k))
		b.WriteString(" = ?")
	}
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	args := append(values.Values(), whereArgs...)
	return c.ExecuteAffected(ctx, b.String(), args...)
}

// Delete removes the rows matching where (all rows when where is empty)
// and returns the number removed.
func (c *Conn) Delete(ctx context.Context, table, where string, whereArgs ...interface{}) (int64, error) {
	query := "DELETE FROM " + sqltext.QuoteIdentifier(table)
	if where != "" {
		query += " WHERE " + where
	}
	return c.ExecuteAffected(ctx, query, whereArgs...)
}

type sentinel string

func (s sentinel) Error() string { return string(s) }

const errNoRowInserted = sentinel("no row inserted")
