package ddl

import (
	"context"
	"strings"

	"github.com/ha1tch/gpkgsql/pkg/sqlutil"
)

// Updater keeps one catalog collection consistent with the user tables it
// describes. The engine calls it inside the DDL transaction after the
// table itself has changed. A collection whose catalog table does not
// exist has nothing to update and must return nil.
type Updater interface {
	Name() string
	RenameTableReferences(ctx context.Context, q *sqlutil.Conn, oldName, newName string) error
	DropTableReferences(ctx context.Context, q *sqlutil.Conn, name string) error
	DuplicateTableReferences(ctx context.Context, q *sqlutil.Conn, from, to string) error
}

// ColumnUpdater is implemented by collections that also record column
// names.
type ColumnUpdater interface {
	RenameColumnReferences(ctx context.Context, q *sqlutil.Conn, table, oldName, newName string) error
	DropColumnReferences(ctx context.Context, q *sqlutil.Conn, table, column string) error
}

// ColumnGuard lets a collection refuse a column drop, for instance of a
// registered geometry column. It runs before the transaction opens.
type ColumnGuard interface {
	CheckDropColumn(ctx context.Context, q *sqlutil.Conn, table, column string) error
}

// TableDependencies is implemented by collections that own tables existing
// only because of another table, such as relation mapping tables. Those
// tables are dropped before the table they depend on and copied with it.
type TableDependencies interface {
	DependentTables(ctx context.Context, q *sqlutil.Conn, table string) ([]string, error)
}

// ChangeRecorder is told when a table's definition changed in place.
type ChangeRecorder interface {
	TableChanged(ctx context.Context, q *sqlutil.Conn, table string) error
}

// DerivedName names the object derived from name when table from is copied
// to table to: the first occurrence of from inside name is replaced, and
// names that do not contain it get a suffix.
func DerivedName(name, from, to string) string {
	if i := strings.Index(strings.ToLower(name), strings.ToLower(from)); i >= 0 && from != "" {
		return name[:i] + to + name[i+len(from):]
	}
	return name + "_" + to
}
