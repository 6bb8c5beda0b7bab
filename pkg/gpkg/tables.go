package gpkg

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ha1tch/gpkgsql/pkg/catalog"
	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/schema"
	"github.com/ha1tch/gpkgsql/pkg/sqltext"
	"github.com/ha1tch/gpkgsql/pkg/sqlutil"
)

// Bounds is a bounding box in the units of a spatial reference system.
type Bounds struct {
	MinX, MinY, MaxX, MaxY decimal.Decimal
}

// FeatureTable describes a feature table to create.
type FeatureTable struct {
	Name           string
	IDColumn       string // defaults to "fid"
	GeometryColumn string // defaults to "geom"
	GeometryType   string // defaults to "GEOMETRY"
	SrsID          int64
	Z, M           int
	// Columns are extra column definitions, e.g. "name TEXT NOT NULL".
	Columns     []string
	Description string
	Bounds      *Bounds
}

// CreateFeatureTable creates a feature table and registers it in
// gpkg_contents and gpkg_geometry_columns.
func (g *GeoPackage) CreateFeatureTable(ctx context.Context, ft FeatureTable) error {
	if ft.IDColumn == "" {
		ft.IDColumn = "fid"
	}
	if ft.GeometryColumn == "" {
		ft.GeometryColumn = "geom"
	}
	if ft.GeometryType == "" {
		ft.GeometryType = "GEOMETRY"
	}
	defs := append([]string{
		sqltext.Identifier(ft.IDColumn) + " INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL",
		sqltext.Identifier(ft.GeometryColumn) + " " + strings.ToUpper(ft.GeometryType),
	}, ft.Columns...)

	return g.InTransaction(ctx, func(ctx context.Context, q *sqlutil.Conn) error {
		if err := g.createUserTable(ctx, q, ft.Name, defs); err != nil {
			return err
		}
		entry := catalog.Entry{
			TableName:   ft.Name,
			DataType:    catalog.DataTypeFeatures,
			Description: ft.Description,
			SrsID:       &ft.SrsID,
		}
		if ft.Bounds != nil {
			entry.MinX, entry.MinY = &ft.Bounds.MinX, &ft.Bounds.MinY
			entry.MaxX, entry.MaxY = &ft.Bounds.MaxX, &ft.Bounds.MaxY
		}
		if err := catalog.AddContents(ctx, q, entry); err != nil {
			return err
		}
		return catalog.AddGeometryColumn(ctx, q, catalog.GeometryColumn{
			TableName:    ft.Name,
			ColumnName:   ft.GeometryColumn,
			GeometryType: ft.GeometryType,
			SrsID:        ft.SrsID,
			Z:            ft.Z,
			M:            ft.M,
		})
	})
}

// TileTable describes a tile pyramid table to create.
type TileTable struct {
	Name        string
	SrsID       int64
	Bounds      Bounds
	Description string
	// Matrices are the zoom levels, in any order.
	Matrices []catalog.TileMatrixRow
}

// CreateTileTable creates a tile pyramid table and registers it in
// gpkg_contents, gpkg_tile_matrix_set and gpkg_tile_matrix.
func (g *GeoPackage) CreateTileTable(ctx context.Context, tt TileTable) error {
	defs := []string{
		"id INTEGER PRIMARY KEY AUTOINCREMENT",
		"zoom_level INTEGER NOT NULL",
		"tile_column INTEGER NOT NULL",
		"tile_row INTEGER NOT NULL",
		"tile_data BLOB NOT NULL",
		"UNIQUE (zoom_level, tile_column, tile_row)",
	}
	return g.InTransaction(ctx, func(ctx context.Context, q *sqlutil.Conn) error {
		if err := g.createUserTable(ctx, q, tt.Name, defs); err != nil {
			return err
		}
		b := tt.Bounds
		if err := catalog.AddContents(ctx, q, catalog.Entry{
			TableName:   tt.Name,
			DataType:    catalog.DataTypeTiles,
			Description: tt.Description,
			SrsID:       &tt.SrsID,
			MinX:        &b.MinX,
			MinY:        &b.MinY,
			MaxX:        &b.MaxX,
			MaxY:        &b.MaxY,
		}); err != nil {
			return err
		}
		if err := catalog.AddTileMatrixSet(ctx, q, catalog.TileMatrixSetRow{
			TableName: tt.Name, SrsID: tt.SrsID,
			MinX: b.MinX, MinY: b.MinY, MaxX: b.MaxX, MaxY: b.MaxY,
		}); err != nil {
			return err
		}
		for _, m := range tt.Matrices {
			m.TableName = tt.Name
			if err := catalog.AddTileMatrix(ctx, q, m); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateAttributesTable creates a non-spatial table with an integer id
// and the given column definitions, and registers it in gpkg_contents.
func (g *GeoPackage) CreateAttributesTable(ctx context.Context, name string, columns ...string) error {
	defs := append([]string{"id INTEGER PRIMARY KEY AUTOINCREMENT"}, columns...)
	return g.InTransaction(ctx, func(ctx context.Context, q *sqlutil.Conn) error {
		if err := g.createUserTable(ctx, q, name, defs); err != nil {
			return err
		}
		return catalog.AddContents(ctx, q, catalog.Entry{TableName: name, DataType: catalog.DataTypeAttributes})
	})
}

func (g *GeoPackage) createUserTable(ctx context.Context, q *sqlutil.Conn, name string, defs []string) error {
	if strings.TrimSpace(name) == "" {
		return errors.Validation("table name is empty").Err()
	}
	if taken, err := schema.ObjectExists(ctx, q, name); err != nil {
		return err
	} else if taken {
		return errors.Validation("table %s already exists", name).Err()
	}
	return q.Execute(ctx, "CREATE TABLE "+sqltext.Identifier(name)+" ("+strings.Join(defs, ", ")+")")
}

// Relationship describes a related tables relation to add.
type Relationship struct {
	BaseTable    string
	RelatedTable string
	// Name is the relation name, e.g. "media", "features", "attributes".
	Name string
	// MappingTable defaults to <base>_<related>.
	MappingTable string
}

// AddRelationship creates the mapping table of a relation between two
// existing tables and registers it: a gpkgext_relations row, a contents
// row and the extension rows.
func (g *GeoPackage) AddRelationship(ctx context.Context, r Relationship) (int64, error) {
	if r.MappingTable == "" {
		r.MappingTable = r.BaseTable + "_" + r.RelatedTable
	}
	if r.Name == "" {
		return -1, errors.Validation("relation between %s and %s has no name", r.BaseTable, r.RelatedTable).Err()
	}

	var id int64
	err := g.InTransaction(ctx, func(ctx context.Context, q *sqlutil.Conn) error {
		basePK, err := primaryKey(ctx, q, r.BaseTable)
		if err != nil {
			return err
		}
		relatedPK, err := primaryKey(ctx, q, r.RelatedTable)
		if err != nil {
			return err
		}
		if err := g.createUserTable(ctx, q, r.MappingTable, []string{
			"base_id INTEGER NOT NULL",
			"related_id INTEGER NOT NULL",
		}); err != nil {
			return err
		}
		if err := catalog.AddContents(ctx, q, catalog.Entry{
			TableName: r.MappingTable, DataType: catalog.DataTypeAttributes,
		}); err != nil {
			return err
		}
		for _, table := range []string{catalog.Relations, r.MappingTable} {
			if err := catalog.AddExtension(ctx, q, catalog.Extension{
				TableName:  table,
				Name:       catalog.RelatedTablesExtension,
				Definition: "http://docs.opengeospatial.org/is/18-000/18-000.html",
			}); err != nil {
				return err
			}
		}
		id, err = catalog.AddRelation(ctx, q, catalog.Relation{
			BaseTable:            r.BaseTable,
			BasePrimaryColumn:    basePK,
			RelatedTable:         r.RelatedTable,
			RelatedPrimaryColumn: relatedPK,
			Name:                 r.Name,
			MappingTable:         r.MappingTable,
		})
		return err
	})
	if err != nil {
		return -1, err
	}
	return id, nil
}

// primaryKey returns the single-column primary key of table.
func primaryKey(ctx context.Context, q *sqlutil.Conn, table string) (string, error) {
	info, err := schema.Introspect(ctx, q, table)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrCodeValidation, "no such table: %s", table).Err()
	}
	var pk []string
	for _, c := range info.Columns {
		if c.PK > 0 {
			pk = append(pk, c.Name)
		}
	}
	if len(pk) != 1 {
		return "", errors.Unsupported("table %s needs a single-column primary key to take part in a relation", info.Name).Err()
	}
	return pk[0], nil
}
