// Package schema reads table structure from a SQLite database and
// rewrites table definitions. It is the read side of the DDL engine:
// nothing here changes the database except DependentSet's Drop and
// Recreate.
package schema

import (
	"context"
	"strings"

	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/sqlutil"
)

// Column describes one column as reported by PRAGMA table_info.
type Column struct {
	CID     int
	Name    string
	Type    string
	NotNull bool
	// Default is the default expression text, nil when there is none.
	Default *string
	// PK is the 1-based position in the primary key, 0 otherwise.
	PK int
}

// Table is a table's columns and its CREATE statement.
type Table struct {
	Name    string
	SQL     string
	Columns []Column
}

// Column returns the named column, case-insensitively.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the column names in table order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Object is a row of sqlite_master.
type Object struct {
	Type    string // table, index, view or trigger
	Name    string
	TblName string
	SQL     string // "" for automatic indexes
}

func objectExists(ctx context.Context, c *sqlutil.Conn, typ, name string) (bool, error) {
	n, err := c.QueryInt(ctx,
		"SELECT count(*) FROM sqlite_master WHERE type = ? AND name = ? COLLATE NOCASE", typ, name)
	return n > 0, err
}

// TableExists reports whether a table named name exists.
func TableExists(ctx context.Context, c *sqlutil.Conn, name string) (bool, error) {
	return objectExists(ctx, c, "table", name)
}

// ViewExists reports whether a view named name exists.
func ViewExists(ctx context.Context, c *sqlutil.Conn, name string) (bool, error) {
	return objectExists(ctx, c, "view", name)
}

// ObjectExists reports whether any schema object is named name.
func ObjectExists(ctx context.Context, c *sqlutil.Conn, name string) (bool, error) {
	n, err := c.QueryInt(ctx, "SELECT count(*) FROM sqlite_master WHERE name = ? COLLATE NOCASE", name)
	return n > 0, err
}

// ColumnExists reports whether table has a column named column. A missing
// table has no columns.
func ColumnExists(ctx context.Context, c *sqlutil.Conn, table, column string) (bool, error) {
	n, err := c.QueryInt(ctx,
		"SELECT count(*) FROM pragma_table_info(?) WHERE name = ? COLLATE NOCASE", table, column)
	return n > 0, err
}

// Introspect reads the definition of table. A missing table is a
// SchemaNotFound error.
func Introspect(ctx context.Context, c *sqlutil.Conn, table string) (*Table, error) {
	row, err := c.QueryResults(ctx,
		"SELECT name, sql FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE",
		[]interface{}{table}, []sqlutil.ColumnType{sqlutil.TypeString, sqlutil.TypeString}, 1)
	if err != nil {
		return nil, err
	}
	if len(row) == 0 {
		return nil, errors.SchemaNotFound(table).Err()
	}

	t := &Table{Name: row[0][0].(string)}
	if s, ok := row[0][1].(string); ok {
		t.SQL = s
	}

	rows, err := c.QueryResults(ctx,
		"SELECT cid, name, type, \"notnull\", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid",
		[]interface{}{t.Name},
		[]sqlutil.ColumnType{
			sqlutil.TypeInteger, sqlutil.TypeString, sqlutil.TypeString,
			sqlutil.TypeBool, sqlutil.TypeString, sqlutil.TypeInteger,
		}, 0)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		col := Column{
			CID:     int(r[0].(int64)),
			Name:    r[1].(string),
			NotNull: r[3] == true,
			PK:      int(r[5].(int64)),
		}
		if s, ok := r[2].(string); ok {
			col.Type = s
		}
		if s, ok := r[4].(string); ok {
			col.Default = &s
		}
		t.Columns = append(t.Columns, col)
	}
	return t, nil
}

// Objects returns the sqlite_master rows of the given types in creation
// order. No types means all.
func Objects(ctx context.Context, c *sqlutil.Conn, types ...string) ([]Object, error) {
	query := "SELECT type, name, tbl_name, sql FROM sqlite_master"
	args := make([]interface{}, len(types))
	if len(types) > 0 {
		query += " WHERE type IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(types)), ", ") + ")"
		for i, t := range types {
			args[i] = t
		}
	}
	query += " ORDER BY rowid"

	rows, err := c.QueryResults(ctx, query, args, []sqlutil.ColumnType{
		sqlutil.TypeString, sqlutil.TypeString, sqlutil.TypeString, sqlutil.TypeString,
	}, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Object, 0, len(rows))
	for _, r := range rows {
		o := Object{Type: r[0].(string), Name: r[1].(string), TblName: r[2].(string)}
		if s, ok := r[3].(string); ok {
			o.SQL = s
		}
		out = append(out, o)
	}
	return out, nil
}

// Tables returns the names of all tables, sqlite internal ones excluded.
func Tables(ctx context.Context, c *sqlutil.Conn) ([]string, error) {
	return c.QueryStrings(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite\\_%' ESCAPE '\\' ORDER BY name")
}

// Index describes an index on a table.
type Index struct {
	Object
	Unique  bool
	Partial bool
	// Columns holds the indexed column names; expression terms are "".
	Columns []string
}

// HasExpression reports whether any index term is an expression.
func (ix Index) HasExpression() bool {
	for _, c := range ix.Columns {
		if c == "" {
			return true
		}
	}
	return false
}

// Covers reports whether column is one of the index terms.
func (ix Index) Covers(column string) bool {
	for _, c := range ix.Columns {
		if strings.EqualFold(c, column) {
			return true
		}
	}
	return false
}

// Indexes returns the explicitly created indexes of table, those with
// CREATE INDEX statements in sqlite_master.
func Indexes(ctx context.Context, c *sqlutil.Conn, table string) ([]Index, error) {
	rows, err := c.QueryResults(ctx,
		`SELECT l.name, l."unique", l.partial, m.sql
		   FROM pragma_index_list(?) AS l
		   JOIN sqlite_master AS m ON m.type = 'index' AND m.name = l.name
		  WHERE l.origin = 'c' AND m.sql IS NOT NULL
		  ORDER BY m.rowid`,
		[]interface{}{table},
		[]sqlutil.ColumnType{sqlutil.TypeString, sqlutil.TypeBool, sqlutil.TypeBool, sqlutil.TypeString}, 0)
	if err != nil {
		return nil, err
	}

	var out []Index
	for _, r := range rows {
		ix := Index{
			Object:  Object{Type: "index", Name: r[0].(string), TblName: table, SQL: r[3].(string)},
			Unique:  r[1] == true,
			Partial: r[2] == true,
		}
		cols, err := c.QueryResults(ctx,
			"SELECT name FROM pragma_index_info(?) ORDER BY seqno",
			[]interface{}{ix.Name}, []sqlutil.ColumnType{sqlutil.TypeString}, 0)
		if err != nil {
			return nil, err
		}
		for _, col := range cols {
			name, _ := col[0].(string)
			ix.Columns = append(ix.Columns, name)
		}
		out = append(out, ix)
	}
	return out, nil
}

// ForeignKeyRef is a foreign key in another table pointing at a column.
type ForeignKeyRef struct {
	Table  string
	Column string
}

// ReferencingForeignKeys returns the foreign keys of other tables whose
// parent is table.column.
func ReferencingForeignKeys(ctx context.Context, c *sqlutil.Conn, table, column string) ([]ForeignKeyRef, error) {
	tables, err := Tables(ctx, c)
	if err != nil {
		return nil, err
	}
	var out []ForeignKeyRef
	for _, t := range tables {
		rows, err := c.QueryResults(ctx,
			`SELECT "from", "to" FROM pragma_foreign_key_list(?) WHERE "table" = ? COLLATE NOCASE`,
			[]interface{}{t, table}, []sqlutil.ColumnType{sqlutil.TypeString, sqlutil.TypeString}, 0)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			to, _ := r[1].(string)
			// A NULL "to" means the parent's primary key, which is never
			// a droppable column.
			if to != "" && strings.EqualFold(to, column) {
				out = append(out, ForeignKeyRef{Table: t, Column: r[0].(string)})
			}
		}
	}
	return out, nil
}
