package sqlutil

import (
	"context"
	"reflect"
	"testing"
)

func TestPlanCount(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		want     []string
		trimArgs int
		ok       bool
	}{
		{
			name: "already count",
			sql:  "SELECT COUNT(*) FROM t WHERE x = 1;",
			want: []string{"SELECT COUNT(*) FROM t WHERE x = 1"},
			ok:   true,
		},
		{
			name: "plain select",
			sql:  "SELECT id, name FROM t WHERE name LIKE 'a%'",
			want: []string{"SELECT COUNT(*) FROM t WHERE name LIKE 'a%'"},
			ok:   true,
		},
		{
			name: "join kept, order and limit removed",
			sql:  "select a.id from a join b on a.id = b.a_id where b.v > 2 order by a.id limit 10 offset 5",
			want: []string{"SELECT COUNT(*) from a join b on a.id = b.a_id where b.v > 2"},
			ok:   true,
		},
		{
			name:     "limit placeholder trimmed",
			sql:      "SELECT * FROM t WHERE kind = ? LIMIT ?",
			want:     []string{"SELECT COUNT(*) FROM t WHERE kind = ?"},
			trimArgs: 1,
			ok:       true,
		},
		{
			name: "distinct single column",
			sql:  "SELECT DISTINCT name FROM t",
			want: []string{
				"SELECT COUNT(DISTINCT name) FROM t",
				"SELECT COUNT(*) > 0 FROM t WHERE name IS NULL",
			},
			ok: true,
		},
		{
			name: "distinct with where and alias",
			sql:  "SELECT DISTINCT t.name AS n FROM t WHERE t.id > ? LIMIT 5",
			want: []string{
				"SELECT COUNT(DISTINCT t.name) FROM t WHERE t.id > ?",
				"SELECT COUNT(*) > 0 FROM t WHERE t.name IS NULL AND (t.id > ?)",
			},
			ok: true,
		},
		{
			name: "group by wrapped",
			sql:  "SELECT kind, COUNT(*) FROM t GROUP BY kind ORDER BY kind",
			want: []string{"SELECT COUNT(*) FROM (SELECT kind, COUNT(*) FROM t GROUP BY kind)"},
			ok:   true,
		},
		{
			name: "aggregate wrapped",
			sql:  "SELECT max(id) FROM t",
			want: []string{"SELECT COUNT(*) FROM (SELECT max(id) FROM t)"},
			ok:   true,
		},
		{
			name: "compound wrapped",
			sql:  "SELECT id FROM a UNION SELECT id FROM b",
			want: []string{"SELECT COUNT(*) FROM (SELECT id FROM a UNION SELECT id FROM b)"},
			ok:   true,
		},
		{name: "multi-column distinct", sql: "SELECT DISTINCT a, b FROM t", ok: false},
		{name: "distinct star", sql: "SELECT DISTINCT * FROM t", ok: false},
		{name: "no from", sql: "SELECT 1", ok: false},
		{name: "not a select", sql: "PRAGMA table_info(t)", ok: false},
		{name: "from inside subquery only", sql: "SELECT (SELECT max(id) FROM t)", ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan, ok := planCount(tc.sql)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if !ok {
				return
			}
			if !reflect.DeepEqual(plan.statements, tc.want) {
				t.Errorf("statements = %q\nwant %q", plan.statements, tc.want)
			}
			if plan.trimArgs != tc.trimArgs {
				t.Errorf("trimArgs = %d, want %d", plan.trimArgs, tc.trimArgs)
			}
		})
	}
}

func TestCount_DistinctCountsNullOnce(t *testing.T) {
	c := openTestConn(t)
	ctx := context.Background()
	mustExec(t, c,
		"CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)",
		"INSERT INTO t (id, name) VALUES (1, 'a'), (2, 'a'), (3, NULL)",
	)

	n, err := c.Count(ctx, "SELECT DISTINCT name FROM t")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("distinct count = %d, want 2", n)
	}

	mustExec(t, c, "INSERT INTO t (id, name) VALUES (4, NULL), (5, 'b')")
	n, err = c.Count(ctx, "SELECT DISTINCT name FROM t WHERE id >= ?", 3)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	// {NULL, b}
	if n != 2 {
		t.Errorf("filtered distinct count = %d, want 2", n)
	}
}

func TestCount_MatchesMaterialisedRows(t *testing.T) {
	c := openTestConn(t)
	ctx := context.Background()
	mustExec(t, c,
		"CREATE TABLE a (id INTEGER PRIMARY KEY, kind TEXT)",
		"CREATE TABLE b (id INTEGER PRIMARY KEY, a_id INTEGER, v INTEGER)",
		"INSERT INTO a (kind) VALUES ('x'), ('y'), ('x'), (NULL), ('z')",
		"INSERT INTO b (a_id, v) VALUES (1, 1), (1, 5), (2, 7), (3, 9), (5, 0)",
	)

	queries := []struct {
		sql  string
		args []interface{}
	}{
		{"SELECT * FROM a", nil},
		{"SELECT id, kind FROM a WHERE kind = ?", []interface{}{"x"}},
		{"SELECT a.id, b.v FROM a JOIN b ON a.id = b.a_id WHERE b.v > ?", []interface{}{0}},
		{"SELECT kind, count(*) FROM a GROUP BY kind", nil},
		{"SELECT a_id FROM b GROUP BY a_id HAVING sum(v) > 3", nil},
		{"SELECT id FROM a UNION ALL SELECT id FROM b", nil},
		{"SELECT max(v) FROM b", nil},
		{"SELECT ? AS tag, id FROM a", []interface{}{"t"}},
	}

	for _, q := range queries {
		t.Run(q.sql, func(t *testing.T) {
			rows, err := c.QueryResults(ctx, q.sql, q.args, nil, 0)
			if err != nil {
				t.Fatalf("QueryResults failed: %v", err)
			}
			n, err := c.Count(ctx, q.sql, q.args...)
			if err != nil {
				t.Fatalf("Count failed: %v", err)
			}
			if n != int64(len(rows)) {
				t.Errorf("Count = %d, materialised = %d", n, len(rows))
			}
		})
	}
}

func TestCount_LimitIgnored(t *testing.T) {
	c := openTestConn(t)
	ctx := context.Background()
	mustExec(t, c,
		"CREATE TABLE t (id INTEGER PRIMARY KEY)",
		"INSERT INTO t DEFAULT VALUES",
		"INSERT INTO t DEFAULT VALUES",
		"INSERT INTO t DEFAULT VALUES",
	)

	n, err := c.Count(ctx, "SELECT id FROM t ORDER BY id LIMIT ?", 1)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
}

func TestCount_Unknown(t *testing.T) {
	c := openTestConn(t)
	ctx := context.Background()
	mustExec(t, c, "CREATE TABLE t (a INTEGER, b INTEGER)")

	for _, q := range []string{"SELECT DISTINCT a, b FROM t", "SELECT 1", "VALUES (1), (2)"} {
		n, err := c.Count(ctx, q)
		if err != nil {
			t.Fatalf("Count(%q) failed: %v", q, err)
		}
		if n != CountUnknown {
			t.Errorf("Count(%q) = %d, want CountUnknown", q, n)
		}
	}
}
