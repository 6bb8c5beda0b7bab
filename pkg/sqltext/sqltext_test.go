package sqltext

import (
	"reflect"
	"testing"
)

func TestSplitTopLevel(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a, b, c", []string{"a", "b", "c"}},
		{"id INTEGER PRIMARY KEY, v DECIMAL(10, 2), CHECK (v > 0)", []string{"id INTEGER PRIMARY KEY", "v DECIMAL(10, 2)", "CHECK (v > 0)"}},
		{"a TEXT DEFAULT 'x,y', \"b,c\" INT", []string{"a TEXT DEFAULT 'x,y'", "\"b,c\" INT"}},
		{"a -- comment, here\n, b", []string{"a -- comment, here", "b"}},
		{"", nil},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got := SplitTopLevel(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("SplitTopLevel(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestMatchingParen(t *testing.T) {
	s := "CREATE TABLE t (a INT CHECK (a > 0), b TEXT DEFAULT ')') WITHOUT ROWID"
	open := 15
	if s[open] != '(' {
		t.Fatalf("test setup: expected '(' at %d", open)
	}
	got := MatchingParen(s, open)
	if got < 0 || s[got+1:] != " WITHOUT ROWID" {
		t.Errorf("MatchingParen = %d, remainder %q", got, s[got+1:])
	}
	if MatchingParen(s, 0) != -1 {
		t.Error("expected -1 when start is not a parenthesis")
	}
}

func TestUnquote(t *testing.T) {
	tests := map[string]string{
		`"my table"`: "my table",
		"`x`":        "x",
		"[y z]":      "y z",
		`"a""b"`:     `a"b`,
		"plain":      "plain",
		"'lit'":      "lit",
	}
	for in, want := range tests {
		if got := Unquote(in); got != want {
			t.Errorf("Unquote(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReferencesIdentifier(t *testing.T) {
	sql := `CREATE VIEW v AS SELECT "Legacy", name FROM roads -- legacy note
WHERE kind = 'legacy'`

	if !ReferencesIdentifier(sql, "legacy") {
		t.Error("expected quoted identifier to match case-insensitively")
	}
	if !ReferencesIdentifier(sql, "ROADS") {
		t.Error("expected bare identifier to match")
	}
	if ReferencesIdentifier(sql, "note") {
		t.Error("comment text must not match")
	}
	if ReferencesIdentifier(sql, "kind2") {
		t.Error("unexpected match")
	}
	if ReferencesIdentifier("SELECT 1 WHERE x = 'roads'", "roads") {
		t.Error("literal must not match in ReferencesIdentifier")
	}
}

func TestReplaceTable(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		old, new string
		literals bool
		want     string
		count    int
	}{
		{
			name: "bare",
			in:   "CREATE INDEX idx ON roads (name)",
			old:  "roads", new: "streets",
			want:  "CREATE INDEX idx ON streets (name)",
			count: 1,
		},
		{
			name: "quoted keeps style",
			in:   "SELECT [roads].name FROM `roads`",
			old:  "roads", new: "streets",
			want:  "SELECT [streets].name FROM `streets`",
			count: 2,
		},
		{
			name: "new name needs quoting",
			in:   "SELECT * FROM roads",
			old:  "roads", new: "road network",
			want:  `SELECT * FROM "road network"`,
			count: 1,
		},
		{
			name: "literal untouched by default",
			in:   "UPDATE gpkg_contents SET x = 1 WHERE table_name = 'roads'",
			old:  "roads", new: "streets",
			want:  "UPDATE gpkg_contents SET x = 1 WHERE table_name = 'roads'",
			count: 0,
		},
		{
			name: "literal replaced on request",
			in:   "UPDATE gpkg_contents SET x = 1 WHERE table_name = 'roads'",
			old:  "roads", new: "streets", literals: true,
			want:  "UPDATE gpkg_contents SET x = 1 WHERE table_name = 'streets'",
			count: 1,
		},
		{
			name: "substring not replaced",
			in:   "SELECT roads_id FROM roads2",
			old:  "roads", new: "streets",
			want:  "SELECT roads_id FROM roads2",
			count: 0,
		},
		{
			name: "column sharing the table name kept",
			in:   "CREATE INDEX roads_ix ON roads (roads)",
			old:  "roads", new: "paths",
			want:  "CREATE INDEX roads_ix ON paths (roads)",
			count: 1,
		},
		{
			name: "trigger body",
			in:   "CREATE TRIGGER up AFTER INSERT ON roads BEGIN UPDATE roads SET roads = upper(NEW.roads) WHERE rowid = NEW.rowid; END",
			old:  "roads", new: "paths",
			want:  "CREATE TRIGGER up AFTER INSERT ON paths BEGIN UPDATE paths SET roads = upper(NEW.roads) WHERE rowid = NEW.rowid; END",
			count: 2,
		},
		{
			name: "from list, join and qualifier",
			in:   "SELECT roads.roads, r2.roads FROM a, roads JOIN main.roads r2 ON r2.id = a.id WHERE roads IS NULL",
			old:  "roads", new: "paths",
			want:  "SELECT paths.roads, r2.roads FROM a, paths JOIN main.paths r2 ON r2.id = a.id WHERE roads IS NULL",
			count: 3,
		},
		{
			name: "reserved word quoted",
			in:   "SELECT a FROM t",
			old:  "t", new: "order",
			want:  `SELECT a FROM "order"`,
			count: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, n := ReplaceTable(tc.in, tc.old, tc.new, tc.literals)
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
			if n != tc.count {
				t.Errorf("count = %d, want %d", n, tc.count)
			}
		})
	}
}

func TestLex_DepthAndParams(t *testing.T) {
	toks := Significant("SELECT f(a, (b)) FROM t WHERE x = ?1 AND y = :name")
	var params int
	for _, tok := range toks {
		if tok.Kind == Param {
			params++
		}
		if tok.Is("FROM") && tok.Depth != 0 {
			t.Errorf("FROM depth = %d, want 0", tok.Depth)
		}
		if tok.Text == "b" && tok.Depth != 2 {
			t.Errorf("b depth = %d, want 2", tok.Depth)
		}
	}
	if params != 2 {
		t.Errorf("params = %d, want 2", params)
	}
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
		rest string
	}{
		{"two", "SELECT 1; SELECT 2;", []string{"SELECT 1", "SELECT 2"}, ""},
		{"partial", "SELECT 1; SELECT", []string{"SELECT 1"}, " SELECT"},
		{"literal", "SELECT ';'; ", []string{"SELECT ';'"}, " "},
		{"empty", " ; -- note\n;", nil, ""},
		{
			"trigger",
			"CREATE TRIGGER t_ai AFTER INSERT ON t BEGIN UPDATE t SET n = CASE WHEN n IS NULL THEN 0 ELSE n END; DELETE FROM u; END; SELECT 1;",
			[]string{
				"CREATE TRIGGER t_ai AFTER INSERT ON t BEGIN UPDATE t SET n = CASE WHEN n IS NULL THEN 0 ELSE n END; DELETE FROM u; END",
				"SELECT 1",
			},
			"",
		},
		{"open trigger", "CREATE TEMP TRIGGER x AFTER DELETE ON t BEGIN DELETE FROM u;", nil,
			"CREATE TEMP TRIGGER x AFTER DELETE ON t BEGIN DELETE FROM u;"},
		{"transaction", "BEGIN; COMMIT;", []string{"BEGIN", "COMMIT"}, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, rest := SplitStatements(tc.in)
			if !reflect.DeepEqual(got, tc.want) || rest != tc.rest {
				t.Errorf("SplitStatements(%q) = %q, %q; want %q, %q", tc.in, got, rest, tc.want, tc.rest)
			}
		})
	}
}

func TestReferencesTable(t *testing.T) {
	tests := []struct {
		sql  string
		want bool
	}{
		{"CREATE VIEW open_orders AS SELECT * FROM orders WHERE status = 'open'", false},
		{"CREATE TRIGGER t AFTER UPDATE OF status ON orders BEGIN SELECT status; END", false},
		{"CREATE VIEW v AS SELECT o.id FROM orders o JOIN status s ON s.id = o.sid", true},
		{"CREATE VIEW v AS SELECT * FROM (SELECT id FROM status) x", true},
		{"CREATE VIEW v AS SELECT * FROM orders, Status", true},
		{"CREATE TRIGGER t AFTER INSERT ON orders BEGIN INSERT OR REPLACE INTO status VALUES (NEW.id); END", true},
		{"CREATE TRIGGER t AFTER INSERT ON orders BEGIN UPDATE orders SET n = (SELECT count(*) FROM json_each(NEW.status)); END", false},
		{"CREATE VIEW v AS SELECT status.id FROM orders", true},
	}
	for _, tc := range tests {
		if got := ReferencesTable(tc.sql, "status"); got != tc.want {
			t.Errorf("ReferencesTable(%q) = %v, want %v", tc.sql, got, tc.want)
		}
	}
}

func TestReferencesColumn(t *testing.T) {
	tests := []struct {
		name  string
		sql   string
		owner bool
		want  bool
	}{
		{"bare in view", "CREATE VIEW v AS SELECT status FROM orders", false, true},
		{"other table's column", "CREATE VIEW v AS SELECT c.status FROM orders o JOIN customers c ON c.id = o.cid", false, false},
		{"alias of the table", "CREATE VIEW v AS SELECT o.status FROM orders AS o", false, true},
		{"qualified by the table", "CREATE VIEW v AS SELECT orders.status FROM orders, customers", false, true},
		{"own trigger NEW", "CREATE TRIGGER t AFTER INSERT ON orders BEGIN SELECT NEW.status; END", true, true},
		{"own trigger header", "CREATE TRIGGER t AFTER UPDATE OF status ON orders BEGIN SELECT 1; END", true, true},
		{"foreign trigger NEW", "CREATE TRIGGER t AFTER INSERT ON customers BEGIN UPDATE orders SET n = NEW.status; END", false, false},
		{"foreign trigger header", "CREATE TRIGGER t AFTER UPDATE OF status ON customers BEGIN DELETE FROM orders; END", false, false},
		{"object named like the column", "CREATE VIEW status AS SELECT id FROM orders", false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ReferencesColumn(tc.sql, "orders", "status", tc.owner); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRenameObject(t *testing.T) {
	tests := map[string]string{
		"CREATE INDEX roads_ix ON roads (roads)":                                      "CREATE INDEX paths_ix ON roads (roads)",
		"CREATE UNIQUE INDEX IF NOT EXISTS \"roads_ix\" ON roads (a)":                 "CREATE UNIQUE INDEX IF NOT EXISTS \"paths_ix\" ON roads (a)",
		"CREATE TEMP TRIGGER main.roads_ix AFTER INSERT ON roads BEGIN SELECT 1; END": "CREATE TEMP TRIGGER main.paths_ix AFTER INSERT ON roads BEGIN SELECT 1; END",
	}
	for in, want := range tests {
		got, ok := RenameObject(in, "paths_ix")
		if !ok || got != want {
			t.Errorf("RenameObject(%q) = %q, %v", in, got, ok)
		}
	}
	if _, ok := RenameObject("SELECT 1", "x"); ok {
		t.Error("RenameObject accepted a statement without a header")
	}
}

func TestWithoutRowid(t *testing.T) {
	tests := map[string]bool{
		"CREATE TABLE w (k TEXT PRIMARY KEY, v) WITHOUT ROWID":        true,
		"create table w (k text primary key) without rowid, strict":   true,
		"CREATE TABLE w (k TEXT PRIMARY KEY, v)":                      false,
		"CREATE TABLE w (\"without\" TEXT, rowid_note TEXT)":          false,
		"CREATE TABLE w (k TEXT PRIMARY KEY) /* WITHOUT ROWID */":     false,
		"CREATE TABLE w (k TEXT DEFAULT 'WITHOUT ROWID' PRIMARY KEY)": false,
	}
	for in, want := range tests {
		if got := WithoutRowid(in); got != want {
			t.Errorf("WithoutRowid(%q) = %v, want %v", in, got, want)
		}
	}
}
