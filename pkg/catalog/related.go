package catalog

import (
	"context"
	"strings"

	"github.com/ha1tch/gpkgsql/pkg/ddl"
	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/schema"
	"github.com/ha1tch/gpkgsql/pkg/sqlutil"
)

// RelatedTablesExtension is the extension name of the related tables
// extension.
const RelatedTablesExtension = "related_tables"

// Relation is a gpkgext_relations row.
type Relation struct {
	ID                   int64
	BaseTable            string
	BasePrimaryColumn    string
	RelatedTable         string
	RelatedPrimaryColumn string
	Name                 string
	MappingTable         string
}

// RelatedTablesCollection tracks gpkgext_relations. Mapping tables belong
// to the tables they relate: they are copied and dropped with them.
type RelatedTablesCollection struct{}

var (
	_ ddl.Updater           = (*RelatedTablesCollection)(nil)
	_ ddl.ColumnUpdater     = (*RelatedTablesCollection)(nil)
	_ ddl.ColumnGuard       = (*RelatedTablesCollection)(nil)
	_ ddl.TableDependencies = (*RelatedTablesCollection)(nil)
)

// NewRelatedTablesCollection tracks gpkgext_relations.
func NewRelatedTablesCollection() *RelatedTablesCollection {
	return &RelatedTablesCollection{}
}

func (r *RelatedTablesCollection) Name() string { return Relations }

func (r *RelatedTablesCollection) present(ctx context.Context, q *sqlutil.Conn) (bool, error) {
	return schema.TableExists(ctx, q, Relations)
}

// RenameTableReferences renames base, related and mapping table names.
func (r *RelatedTablesCollection) RenameTableReferences(ctx context.Context, q *sqlutil.Conn, oldName, newName string) error {
	if ok, err := r.present(ctx, q); err != nil || !ok {
		return err
	}
	var total int64
	for _, col := range []string{"base_table_name", "related_table_name", "mapping_table_name"} {
		n, err := q.Update(ctx, Relations, sqlutil.NewContentValues().Put(col, newName),
			col+" = ? COLLATE NOCASE", oldName)
		if err != nil {
			return err
		}
		total += n
	}
	countRows(Relations, "rename", total)
	return nil
}

// DropTableReferences deletes the relations name takes part in.
func (r *RelatedTablesCollection) DropTableReferences(ctx context.Context, q *sqlutil.Conn, name string) error {
	if ok, err := r.present(ctx, q); err != nil || !ok {
		return err
	}
	n, err := q.Delete(ctx, Relations,
		`base_table_name = ?1 COLLATE NOCASE OR related_table_name = ?1 COLLATE NOCASE
		 OR mapping_table_name = ?1 COLLATE NOCASE`, name)
	countRows(Relations, "drop", n)
	return err
}

// DuplicateTableReferences adds, for every relation from takes part in,
// the same relation for to. Its mapping table is the copy of the original
// mapping table, which the engine makes before calling this.
func (r *RelatedTablesCollection) DuplicateTableReferences(ctx context.Context, q *sqlutil.Conn, from, to string) error {
	if ok, err := r.present(ctx, q); err != nil || !ok {
		return err
	}
	rels, err := RelationsFor(ctx, q, from)
	if err != nil {
		return err
	}
	for _, rel := range rels {
		if strings.EqualFold(rel.BaseTable, from) {
			rel.BaseTable = to
		}
		if strings.EqualFold(rel.RelatedTable, from) {
			rel.RelatedTable = to
		}
		rel.MappingTable = ddl.DerivedName(rel.MappingTable, from, to)
		if _, err := AddRelation(ctx, q, rel); err != nil {
			return err
		}
	}
	countRows(Relations, "duplicate", int64(len(rels)))
	return nil
}

// RenameColumnReferences renames primary column references.
func (r *RelatedTablesCollection) RenameColumnReferences(ctx context.Context, q *sqlutil.Conn, table, oldName, newName string) error {
	if ok, err := r.present(ctx, q); err != nil || !ok {
		return err
	}
	for _, side := range []string{"base", "related"} {
		if _, err := q.Update(ctx, Relations,
			sqlutil.NewContentValues().Put(side+"_primary_column", newName),
			side+"_table_name = ? COLLATE NOCASE AND "+side+"_primary_column = ? COLLATE NOCASE",
			table, oldName); err != nil {
			return err
		}
	}
	return nil
}

// DropColumnReferences has nothing to do: CheckDropColumn refuses the
// only columns relations name.
func (r *RelatedTablesCollection) DropColumnReferences(ctx context.Context, q *sqlutil.Conn, table, column string) error {
	return nil
}

// CheckDropColumn refuses to drop a column a relation joins on.
func (r *RelatedTablesCollection) CheckDropColumn(ctx context.Context, q *sqlutil.Conn, table, column string) error {
	if ok, err := r.present(ctx, q); err != nil || !ok {
		return err
	}
	n, err := q.QueryInt(ctx,
		`SELECT count(*) FROM gpkgext_relations
		  WHERE (base_table_name = ?1 COLLATE NOCASE AND base_primary_column = ?2 COLLATE NOCASE)
		     OR (related_table_name = ?1 COLLATE NOCASE AND related_primary_column = ?2 COLLATE NOCASE)`,
		table, column)
	if err != nil {
		return err
	}
	if n > 0 {
		return errors.Unsupported("column %s.%s is the key of a table relation", table, column).Err()
	}
	return nil
}

// DependentTables returns the mapping tables of the relations table takes
// part in.
func (r *RelatedTablesCollection) DependentTables(ctx context.Context, q *sqlutil.Conn, table string) ([]string, error) {
	if ok, err := r.present(ctx, q); err != nil || !ok {
		return nil, err
	}
	return q.QueryStrings(ctx,
		`SELECT mapping_table_name FROM gpkgext_relations
		  WHERE (base_table_name = ?1 COLLATE NOCASE OR related_table_name = ?1 COLLATE NOCASE)
		    AND mapping_table_name <> ?1 COLLATE NOCASE
		  ORDER BY id`, table)
}

// AddRelation inserts rel and returns its id. Empty primary columns
// default to "id".
func AddRelation(ctx context.Context, q *sqlutil.Conn, rel Relation) (int64, error) {
	if err := Ensure(ctx, q, Relations); err != nil {
		return -1, err
	}
	if rel.BasePrimaryColumn == "" {
		rel.BasePrimaryColumn = "id"
	}
	if rel.RelatedPrimaryColumn == "" {
		rel.RelatedPrimaryColumn = "id"
	}
	return q.Insert(ctx, Relations, sqlutil.NewContentValues().
		Put("base_table_name", rel.BaseTable).
		Put("base_primary_column", rel.BasePrimaryColumn).
		Put("related_table_name", rel.RelatedTable).
		Put("related_primary_column", rel.RelatedPrimaryColumn).
		Put("relation_name", rel.Name).
		Put("mapping_table_name", rel.MappingTable))
}

// RelationsFor returns the relations table takes part in as base or
// related table, in id order.
func RelationsFor(ctx context.Context, q *sqlutil.Conn, table string) ([]Relation, error) {
	rows, err := q.QueryResults(ctx,
		`SELECT id, base_table_name, base_primary_column, related_table_name,
		        related_primary_column, relation_name, mapping_table_name
		   FROM gpkgext_relations
		  WHERE base_table_name = ?1 COLLATE NOCASE OR related_table_name = ?1 COLLATE NOCASE
		  ORDER BY id`,
		[]interface{}{table},
		[]sqlutil.ColumnType{sqlutil.TypeInteger, sqlutil.TypeString, sqlutil.TypeString, sqlutil.TypeString,
			sqlutil.TypeString, sqlutil.TypeString, sqlutil.TypeString}, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Relation, len(rows))
	for i, r := range rows {
		out[i] = Relation{
			ID:                   r[0].(int64),
			BaseTable:            r[1].(string),
			BasePrimaryColumn:    r[2].(string),
			RelatedTable:         r[3].(string),
			RelatedPrimaryColumn: r[4].(string),
			Name:                 r[5].(string),
			MappingTable:         r[6].(string),
		}
	}
	return out, nil
}
