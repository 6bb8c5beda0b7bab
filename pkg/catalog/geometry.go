package catalog

import (
	"context"
	"strings"

	"github.com/ha1tch/gpkgsql/pkg/ddl"
	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/sqlutil"
)

// GeometryColumnsCollection tracks gpkg_geometry_columns and refuses to
// drop a registered geometry column.
type GeometryColumnsCollection struct {
	*Collection
}

var _ ddl.ColumnGuard = (*GeometryColumnsCollection)(nil)

// NewGeometryColumnsCollection tracks gpkg_geometry_columns.
func NewGeometryColumnsCollection() *GeometryColumnsCollection {
	return &GeometryColumnsCollection{Collection: &Collection{
		table:        GeometryColumns,
		tableColumn:  "table_name",
		columnColumn: "column_name",
	}}
}

// CheckDropColumn fails for the table's geometry column.
func (g *GeometryColumnsCollection) CheckDropColumn(ctx context.Context, q *sqlutil.Conn, table, column string) error {
	if ok, err := g.present(ctx, q); err != nil || !ok {
		return err
	}
	gc, err := GeometryColumnOf(ctx, q, table)
	if err != nil || gc == nil {
		return err
	}
	if strings.EqualFold(gc.ColumnName, column) {
		return errors.Unsupported("cannot drop geometry column %s.%s", gc.TableName, gc.ColumnName).Err()
	}
	return nil
}

// GeometryColumn is a gpkg_geometry_columns row.
type GeometryColumn struct {
	TableName    string
	ColumnName   string
	GeometryType string
	SrsID        int64
	Z, M         int // 0 prohibited, 1 mandatory, 2 optional
}

// AddGeometryColumn registers gc.
func AddGeometryColumn(ctx context.Context, q *sqlutil.Conn, gc GeometryColumn) error {
	_, err := q.Insert(ctx, GeometryColumns, sqlutil.NewContentValues().
		Put("table_name", gc.TableName).
		Put("column_name", gc.ColumnName).
		Put("geometry_type_name", strings.ToUpper(gc.GeometryType)).
		Put("srs_id", gc.SrsID).
		Put("z", gc.Z).
		Put("m", gc.M))
	return err
}

// GeometryColumnOf returns the geometry column registered for table, nil
// when there is none.
func GeometryColumnOf(ctx context.Context, q *sqlutil.Conn, table string) (*GeometryColumn, error) {
	rows, err := q.QueryResults(ctx,
		`SELECT table_name, column_name, geometry_type_name, srs_id, z, m
		   FROM gpkg_geometry_columns WHERE table_name = ? COLLATE NOCASE`,
		[]interface{}{table},
		[]sqlutil.ColumnType{sqlutil.TypeString, sqlutil.TypeString, sqlutil.TypeString,
			sqlutil.TypeInteger, sqlutil.TypeInteger, sqlutil.TypeInteger}, 1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	r := rows[0]
	return &GeometryColumn{
		TableName:    r[0].(string),
		ColumnName:   r[1].(string),
		GeometryType: r[2].(string),
		SrsID:        r[3].(int64),
		Z:            int(r[4].(int64)),
		M:            int(r[5].(int64)),
	}, nil
}
