// Package catalog owns the GeoPackage metadata tables: their creation and
// the collections that keep their rows consistent when user tables are
// renamed, dropped, copied or altered.
//
// Each collection implements ddl.Updater for one catalog table and is
// registered on the DDL engine. A collection whose table does not exist in
// the file has nothing to update and reports success.
package catalog

import (
	"context"
	"strings"

	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/schema"
	"github.com/ha1tch/gpkgsql/pkg/sqlutil"
)

// Catalog table names.
const (
	SpatialRefSys         = "gpkg_spatial_ref_sys"
	Contents              = "gpkg_contents"
	GeometryColumns       = "gpkg_geometry_columns"
	TileMatrixSet         = "gpkg_tile_matrix_set"
	TileMatrix            = "gpkg_tile_matrix"
	Extensions            = "gpkg_extensions"
	Metadata              = "gpkg_metadata"
	MetadataReference     = "gpkg_metadata_reference"
	DataColumns           = "gpkg_data_columns"
	DataColumnConstraints = "gpkg_data_column_constraints"
	Relations             = "gpkgext_relations"
)

// Data types recorded in gpkg_contents.
const (
	DataTypeFeatures   = "features"
	DataTypeTiles      = "tiles"
	DataTypeAttributes = "attributes"
)

// TimestampNow is the SQL expression for a GeoPackage timestamp.
const TimestampNow = "strftime('%Y-%m-%dT%H:%M:%fZ','now')"

var definitions = map[string]string{
	SpatialRefSys: `CREATE TABLE gpkg_spatial_ref_sys (
  srs_name TEXT NOT NULL,
  srs_id INTEGER PRIMARY KEY,
  organization TEXT NOT NULL,
  organization_coordsys_id INTEGER NOT NULL,
  definition TEXT NOT NULL,
  description TEXT
)`,
	Contents: `CREATE TABLE gpkg_contents (
  table_name TEXT NOT NULL PRIMARY KEY,
  data_type TEXT NOT NULL,
  identifier TEXT UNIQUE,
  description TEXT DEFAULT '',
  last_change DATETIME NOT NULL DEFAULT (` + TimestampNow + `),
  min_x DOUBLE,
  min_y DOUBLE,
  max_x DOUBLE,
  max_y DOUBLE,
  srs_id INTEGER,
  CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
)`,
	GeometryColumns: `CREATE TABLE gpkg_geometry_columns (
  table_name TEXT NOT NULL,
  column_name TEXT NOT NULL,
  geometry_type_name TEXT NOT NULL,
  srs_id INTEGER NOT NULL,
  z TINYINT NOT NULL,
  m TINYINT NOT NULL,
  CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
  CONSTRAINT uk_gc_table_name UNIQUE (table_name),
  CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
  CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys (srs_id)
)`,
	TileMatrixSet: `CREATE TABLE gpkg_tile_matrix_set (
  table_name TEXT NOT NULL PRIMARY KEY,
  srs_id INTEGER NOT NULL,
  min_x DOUBLE NOT NULL,
  min_y DOUBLE NOT NULL,
  max_x DOUBLE NOT NULL,
  max_y DOUBLE NOT NULL,
  CONSTRAINT fk_gtms_table_name FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
  CONSTRAINT fk_gtms_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys (srs_id)
)`,
	TileMatrix: `CREATE TABLE gpkg_tile_matrix (
  table_name TEXT NOT NULL,
  zoom_level INTEGER NOT NULL,
  matrix_width INTEGER NOT NULL,
  matrix_height INTEGER NOT NULL,
  tile_width INTEGER NOT NULL,
  tile_height INTEGER NOT NULL,
  pixel_x_size DOUBLE NOT NULL,
  pixel_y_size DOUBLE NOT NULL,
  CONSTRAINT pk_ttm PRIMARY KEY (table_name, zoom_level),
  CONSTRAINT fk_tmm_table_name FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name)
)`,
	Extensions: `CREATE TABLE gpkg_extensions (
  table_name TEXT,
  column_name TEXT,
  extension_name TEXT NOT NULL,
  definition TEXT NOT NULL,
  scope TEXT NOT NULL,
  CONSTRAINT ge_tce UNIQUE (table_name, column_name, extension_name)
)`,
	Metadata: `CREATE TABLE gpkg_metadata (
  id INTEGER CONSTRAINT m_pk PRIMARY KEY ASC NOT NULL,
  md_scope TEXT NOT NULL DEFAULT 'dataset',
  md_standard_uri TEXT NOT NULL,
  mime_type TEXT NOT NULL DEFAULT 'text/xml',
  metadata TEXT NOT NULL DEFAULT ''
)`,
	MetadataReference: `CREATE TABLE gpkg_metadata_reference (
  reference_scope TEXT NOT NULL,
  table_name TEXT,
  column_name TEXT,
  row_id_value INTEGER,
  timestamp DATETIME NOT NULL DEFAULT (` + TimestampNow + `),
  md_file_id INTEGER NOT NULL,
  md_parent_id INTEGER,
  CONSTRAINT crmr_mfi_fk FOREIGN KEY (md_file_id) REFERENCES gpkg_metadata(id),
  CONSTRAINT crmr_mpi_fk FOREIGN KEY (md_parent_id) REFERENCES gpkg_metadata(id)
)`,
	DataColumns: `CREATE TABLE gpkg_data_columns (
  table_name TEXT NOT NULL,
  column_name TEXT NOT NULL,
  name TEXT,
  title TEXT,
  description TEXT,
  mime_type TEXT,
  constraint_name TEXT,
  CONSTRAINT pk_gdc PRIMARY KEY (table_name, column_name),
  CONSTRAINT gdc_tn UNIQUE (table_name, name)
)`,
	DataColumnConstraints: `CREATE TABLE gpkg_data_column_constraints (
  constraint_name TEXT NOT NULL,
  constraint_type TEXT NOT NULL,
  value TEXT,
  min NUMERIC,
  min_is_inclusive BOOLEAN,
  max NUMERIC,
  max_is_inclusive BOOLEAN,
  description TEXT,
  CONSTRAINT gdcc_ntv UNIQUE (constraint_name, constraint_type, value)
)`,
	Relations: `CREATE TABLE gpkgext_relations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  base_table_name TEXT NOT NULL,
  base_primary_column TEXT NOT NULL DEFAULT 'id',
  related_table_name TEXT NOT NULL,
  related_primary_column TEXT NOT NULL DEFAULT 'id',
  relation_name TEXT NOT NULL,
  mapping_table_name TEXT NOT NULL UNIQUE
)`,
}

// coreTables are created with every new GeoPackage, in dependency order.
var coreTables = []string{SpatialRefSys, Contents, GeometryColumns, TileMatrixSet, TileMatrix, Extensions}

// SpatialRef is a gpkg_spatial_ref_sys row.
type SpatialRef struct {
	Name          string
	ID            int64
	Organization  string
	OrgCoordsysID int64
	Definition    string
	Description   string
}

// RequiredSpatialRefs are the rows every GeoPackage carries.
var RequiredSpatialRefs = []SpatialRef{
	{
		Name:          "WGS 84 geodetic",
		ID:            4326,
		Organization:  "EPSG",
		OrgCoordsysID: 4326,
		Definition: `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,` +
			`AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],` +
			`UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`,
		Description: "longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid",
	},
	{
		Name:          "Undefined cartesian SRS",
		ID:            -1,
		Organization:  "NONE",
		OrgCoordsysID: -1,
		Definition:    "undefined",
		Description:   "undefined cartesian coordinate reference system",
	},
	{
		Name:          "Undefined geographic SRS",
		ID:            0,
		Organization:  "NONE",
		OrgCoordsysID: 0,
		Definition:    "undefined",
		Description:   "undefined geographic coordinate reference system",
	},
}

// Definition returns the CREATE TABLE statement of a catalog table.
func Definition(table string) (string, bool) {
	sql, ok := definitions[strings.ToLower(table)]
	return sql, ok
}

// CreateCore creates the mandatory catalog tables and the required
// spatial reference systems. Tables that already exist are left alone.
func CreateCore(ctx context.Context, q *sqlutil.Conn) error {
	if err := Ensure(ctx, q, coreTables...); err != nil {
		return err
	}
	for _, srs := range RequiredSpatialRefs {
		if err := AddSpatialRef(ctx, q, srs); err != nil {
			return err
		}
	}
	return nil
}

// Ensure creates each named catalog table that does not exist yet.
func Ensure(ctx context.Context, q *sqlutil.Conn, tables ...string) error {
	for _, t := range tables {
		sql, ok := Definition(t)
		if !ok {
			return errors.Validation("unknown catalog table %s", t).Err()
		}
		exists, err := schema.TableExists(ctx, q, t)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := q.Execute(ctx, sql); err != nil {
			return err
		}
		q.Logger().Catalog().Debug("created catalog table", "table", t)
	}
	return nil
}

// AddSpatialRef inserts srs unless a row with its id exists.
func AddSpatialRef(ctx context.Context, q *sqlutil.Conn, srs SpatialRef) error {
	return q.Execute(ctx,
		`INSERT OR IGNORE INTO gpkg_spatial_ref_sys
		   (srs_name, srs_id, organization, organization_coordsys_id, definition, description)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		srs.Name, srs.ID, srs.Organization, srs.OrgCoordsysID, srs.Definition, srs.Description)
}
