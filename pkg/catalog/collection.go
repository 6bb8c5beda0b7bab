package catalog

import (
	"context"
	"strings"

	"github.com/ha1tch/gpkgsql/pkg/ddl"
	"github.com/ha1tch/gpkgsql/pkg/schema"
	"github.com/ha1tch/gpkgsql/pkg/sqltext"
	"github.com/ha1tch/gpkgsql/pkg/sqlutil"
)

// Collection keeps the rows of one catalog table in step with the user
// tables they name. Rows are matched on the table-name column ignoring
// case, as SQLite matches table names.
type Collection struct {
	table        string
	tableColumn  string
	columnColumn string // "" when rows are table-level only

	// overrides replace a column's value when rows are duplicated. The
	// expression "?" is bound to the new table name.
	overrides map[string]string
}

var (
	_ ddl.Updater       = (*Collection)(nil)
	_ ddl.ColumnUpdater = (*Collection)(nil)
)

// NewTileMatrixSetCollection tracks gpkg_tile_matrix_set.
func NewTileMatrixSetCollection() *Collection {
	return &Collection{table: TileMatrixSet, tableColumn: "table_name"}
}

// NewTileMatrixCollection tracks gpkg_tile_matrix.
func NewTileMatrixCollection() *Collection {
	return &Collection{table: TileMatrix, tableColumn: "table_name"}
}

// NewExtensionsCollection tracks gpkg_extensions. Rows with a NULL table
// name apply to the whole file and are never touched.
func NewExtensionsCollection() *Collection {
	return &Collection{table: Extensions, tableColumn: "table_name", columnColumn: "column_name"}
}

// NewMetadataReferenceCollection tracks gpkg_metadata_reference.
func NewMetadataReferenceCollection() *Collection {
	return &Collection{
		table:        MetadataReference,
		tableColumn:  "table_name",
		columnColumn: "column_name",
		overrides:    map[string]string{"timestamp": TimestampNow},
	}
}

// NewDataColumnsCollection tracks gpkg_data_columns.
func NewDataColumnsCollection() *Collection {
	return &Collection{table: DataColumns, tableColumn: "table_name", columnColumn: "column_name"}
}

// Name returns the catalog table name.
func (c *Collection) Name() string { return c.table }

func (c *Collection) present(ctx context.Context, q *sqlutil.Conn) (bool, error) {
	return schema.TableExists(ctx, q, c.table)
}

// RenameTableReferences points rows naming oldName at newName.
func (c *Collection) RenameTableReferences(ctx context.Context, q *sqlutil.Conn, oldName, newName string) error {
	if ok, err := c.present(ctx, q); err != nil || !ok {
		return err
	}
	n, err := q.Update(ctx, c.table, sqlutil.NewContentValues().Put(c.tableColumn, newName),
		c.match(), oldName)
	c.count("rename", n)
	return err
}

// DropTableReferences deletes rows naming name.
func (c *Collection) DropTableReferences(ctx context.Context, q *sqlutil.Conn, name string) error {
	if ok, err := c.present(ctx, q); err != nil || !ok {
		return err
	}
	n, err := q.Delete(ctx, c.table, c.match(), name)
	c.count("drop", n)
	return err
}

// DuplicateTableReferences inserts a copy of every row naming from, with
// the copy naming to.
func (c *Collection) DuplicateTableReferences(ctx context.Context, q *sqlutil.Conn, from, to string) error {
	if ok, err := c.present(ctx, q); err != nil || !ok {
		return err
	}
	info, err := schema.Introspect(ctx, q, c.table)
	if err != nil {
		return err
	}

	var cols, exprs []string
	var args []interface{}
	for _, col := range info.Columns {
		if rowidAlias(info, col) {
			continue
		}
		expr := sqltext.Identifier(col.Name)
		if strings.EqualFold(col.Name, c.tableColumn) {
			expr = "?"
		} else if o, ok := c.overrides[strings.ToLower(col.Name)]; ok {
			expr = o
		}
		if expr == "?" {
			args = append(args, to)
		}
		cols = append(cols, sqltext.Identifier(col.Name))
		exprs = append(exprs, expr)
	}
	args = append(args, from)

	n, err := q.ExecuteAffected(ctx, "INSERT INTO "+sqltext.Identifier(c.table)+" ("+strings.Join(cols, ", ")+
		") SELECT "+strings.Join(exprs, ", ")+" FROM "+sqltext.Identifier(c.table)+" WHERE "+c.match(), args...)
	c.count("duplicate", n)
	return err
}

// RenameColumnReferences renames column-level rows. It does nothing for
// table-level collections.
func (c *Collection) RenameColumnReferences(ctx context.Context, q *sqlutil.Conn, table, oldName, newName string) error {
	if c.columnColumn == "" {
		return nil
	}
	if ok, err := c.present(ctx, q); err != nil || !ok {
		return err
	}
	n, err := q.Update(ctx, c.table, sqlutil.NewContentValues().Put(c.columnColumn, newName),
		c.matchColumn(), table, oldName)
	c.count("rename_column", n)
	return err
}

// DropColumnReferences deletes column-level rows for table.column.
func (c *Collection) DropColumnReferences(ctx context.Context, q *sqlutil.Conn, table, column string) error {
	if c.columnColumn == "" {
		return nil
	}
	if ok, err := c.present(ctx, q); err != nil || !ok {
		return err
	}
	n, err := q.Delete(ctx, c.table, c.matchColumn(), table, column)
	c.count("drop_column", n)
	return err
}

func (c *Collection) match() string {
	return sqltext.Identifier(c.tableColumn) + " = ? COLLATE NOCASE"
}

func (c *Collection) matchColumn() string {
	return c.match() + " AND " + sqltext.Identifier(c.columnColumn) + " = ? COLLATE NOCASE"
}

func (c *Collection) count(action string, n int64) {
	countRows(c.table, action, n)
}

// rowidAlias reports whether col is the table's INTEGER PRIMARY KEY, whose
// values must not be copied.
func rowidAlias(info *schema.Table, col schema.Column) bool {
	if col.PK != 1 || !strings.EqualFold(col.Type, "INTEGER") {
		return false
	}
	for _, other := range info.Columns {
		if other.PK > 1 {
			return false
		}
	}
	return true
}

// Collections returns one collaborator per catalog collection, in the
// order the DDL engine should call them.
func Collections() []ddl.Updater {
	return []ddl.Updater{
		NewRelatedTablesCollection(),
		NewGeometryColumnsCollection(),
		NewTileMatrixCollection(),
		NewTileMatrixSetCollection(),
		NewExtensionsCollection(),
		NewMetadataReferenceCollection(),
		NewDataColumnsCollection(),
		NewContentsCollection(),
	}
}
