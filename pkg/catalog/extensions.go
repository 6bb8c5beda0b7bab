package catalog

import (
	"context"

	"github.com/ha1tch/gpkgsql/pkg/sqlutil"
)

// Extension scopes.
const (
	ScopeReadWrite = "read-write"
	ScopeWriteOnly = "write-only"
)

// Extension is a gpkg_extensions row. TableName and ColumnName are empty
// for file-wide and table-wide registrations respectively.
type Extension struct {
	TableName  string
	ColumnName string
	Name       string
	Definition string
	Scope      string
}

// AddExtension registers e. Registering the same extension twice for the
// same table and column is a no-op.
func AddExtension(ctx context.Context, q *sqlutil.Conn, e Extension) error {
	if err := Ensure(ctx, q, Extensions); err != nil {
		return err
	}
	if e.Scope == "" {
		e.Scope = ScopeReadWrite
	}
	return q.Execute(ctx,
		`INSERT INTO gpkg_extensions (table_name, column_name, extension_name, definition, scope)
		 SELECT ?, ?, ?, ?, ?
		  WHERE NOT EXISTS (SELECT 1 FROM gpkg_extensions
		                     WHERE table_name IS ? AND column_name IS ? AND extension_name = ?)`,
		nullable(e.TableName), nullable(e.ColumnName), e.Name, e.Definition, e.Scope,
		nullable(e.TableName), nullable(e.ColumnName), e.Name)
}

// ExtensionsFor returns the extensions registered on table, any column.
func ExtensionsFor(ctx context.Context, q *sqlutil.Conn, table string) ([]Extension, error) {
	rows, err := q.QueryResults(ctx,
		`SELECT table_name, column_name, extension_name, definition, scope
		   FROM gpkg_extensions WHERE table_name = ? COLLATE NOCASE
		  ORDER BY extension_name, column_name`,
		[]interface{}{table},
		[]sqlutil.ColumnType{sqlutil.TypeString, sqlutil.TypeString, sqlutil.TypeString,
			sqlutil.TypeString, sqlutil.TypeString}, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Extension, len(rows))
	for i, r := range rows {
		out[i] = Extension{Name: r[2].(string), Definition: r[3].(string), Scope: r[4].(string)}
		if s, ok := r[0].(string); ok {
			out[i].TableName = s
		}
		if s, ok := r[1].(string); ok {
			out[i].ColumnName = s
		}
	}
	return out, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
