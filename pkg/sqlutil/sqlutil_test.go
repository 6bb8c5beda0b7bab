package sqlutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/log"
)

// openTestConn opens a file-backed database so that AutoCommit and
// transactions behave as they do on a real GeoPackage.
func openTestConn(t *testing.T) *Conn {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	conn, err := Open(context.Background(), db, log.Discard())
	if err != nil {
		t.Fatalf("failed to pin connection: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func mustExec(t *testing.T, c *Conn, stmts ...string) {
	t.Helper()
	for _, s := range stmts {
		if err := c.Execute(context.Background(), s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
}

func TestExecute_ErrorCarriesStatementNotArgs(t *testing.T) {
	c := openTestConn(t)
	ctx := context.Background()
	mustExec(t, c, "CREATE TABLE secrets (id INTEGER PRIMARY KEY, token TEXT NOT NULL UNIQUE)")
	mustExec(t, c, "INSERT INTO secrets (token) VALUES ('abc')")

	err := c.Execute(ctx, "INSERT INTO secrets (token) VALUES (?)", "abc")
	if err == nil {
		t.Fatal("expected unique constraint failure")
	}
	if !errors.IsExecution(err) {
		t.Fatalf("expected execution error, got %v", err)
	}

	var e *errors.Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *errors.Error, got %T", err)
	}
	if e.Statement() != "INSERT INTO secrets (token) VALUES (?)" {
		t.Errorf("statement = %q", e.Statement())
	}
	for k, v := range e.Fields {
		if s, ok := v.(string); ok && k != "statement" && strings.Contains(s, "abc") {
			t.Errorf("field %s leaks bound value", k)
		}
	}
}

func TestQuery_CallerOwnsCursor(t *testing.T) {
	c := openTestConn(t)
	ctx := context.Background()
	mustExec(t, c,
		"CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)",
		"INSERT INTO t (name) VALUES ('a'), ('b')",
	)

	rows, err := c.Query(ctx, "SELECT name FROM t WHERE id > ?", 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			t.Fatalf("scan: %v", err)
		}
		names = append(names, n)
	}
	rows.Close()

	if len(names) != 2 {
		t.Errorf("expected 2 rows, got %d", len(names))
	}

	// A closed cursor leaves the connection free for DDL.
	mustExec(t, c, "DROP TABLE t")

	if _, err := c.Query(ctx, "SELECT * FROM missing"); !errors.IsExecution(err) {
		t.Errorf("expected execution error for missing table, got %v", err)
	}
}

func TestContentValues(t *testing.T) {
	cv := NewContentValues().
		Put("name", "a").
		Put("kind", 1).
		PutNull("note")

	cv.Put("NAME", "b")
	if got := cv.Keys(); strings.Join(got, ",") != "name,kind,note" {
		t.Errorf("keys = %v", got)
	}
	if v, _ := cv.Get("Name"); v != "b" {
		t.Errorf("Get(Name) = %v, want b", v)
	}
	vals := cv.Values()
	if vals[0] != "b" || vals[1] != 1 || vals[2] != nil {
		t.Errorf("values = %v", vals)
	}

	cv.Remove("KIND")
	if cv.Len() != 2 {
		t.Errorf("Len = %d, want 2", cv.Len())
	}
	if _, ok := cv.Get("kind"); ok {
		t.Error("kind should be removed")
	}

	var empty *ContentValues
	if empty.Len() != 0 || empty.Keys() != nil {
		t.Error("nil ContentValues should be empty")
	}
}
