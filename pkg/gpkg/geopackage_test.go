package gpkg

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ha1tch/gpkgsql/pkg/catalog"
	"github.com/ha1tch/gpkgsql/pkg/config"
	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/log"
	"github.com/ha1tch/gpkgsql/pkg/sqlutil"
)

func newTestPackage(t *testing.T) *GeoPackage {
	t.Helper()
	g, err := Create(context.Background(), filepath.Join(t.TempDir(), "test.gpkg"), config.Default(), log.Discard())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(func() { g.Close() })
	return g
}

func queryInt(t *testing.T, g *GeoPackage, query string, args ...interface{}) int64 {
	t.Helper()
	n, err := g.Conn().QueryInt(context.Background(), query, args...)
	if err != nil {
		t.Fatalf("query %q: %v", query, err)
	}
	return n
}

func TestCreateAndOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "new.gpkg")

	g, err := Create(ctx, path, config.Default(), log.Discard())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id := queryInt(t, g, "PRAGMA application_id"); id != ApplicationID {
		t.Errorf("application_id = %#x", id)
	}
	if v := queryInt(t, g, "PRAGMA user_version"); v != UserVersion {
		t.Errorf("user_version = %d", v)
	}
	if n := queryInt(t, g, "SELECT count(*) FROM gpkg_spatial_ref_sys WHERE srs_id IN (-1, 0, 4326)"); n != 3 {
		t.Errorf("required spatial refs = %d, want 3", n)
	}
	if err := g.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := Create(ctx, path, config.Default(), log.Discard()); !errors.IsValidation(err) {
		t.Errorf("create over an existing file: %v", err)
	}
	g, err = Open(ctx, path, config.Default(), log.Discard())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer g.Close()
	if g.Path() != path {
		t.Errorf("Path() = %q", g.Path())
	}
	if _, err := Open(ctx, filepath.Join(t.TempDir(), "missing.gpkg"), config.Default(), nil); !errors.IsValidation(err) {
		t.Errorf("open of a missing file: %v", err)
	}
}

func TestOpen_RefusesPlainSQLite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	plain := filepath.Join(dir, "plain.db")
	writeDatabase(t, plain, "CREATE TABLE t (id INTEGER PRIMARY KEY)")
	if _, err := Open(ctx, plain, config.Default(), log.Discard()); !errors.IsValidation(err) {
		t.Errorf("open of a plain SQLite file: %v", err)
	}

	// The id alone is not enough.
	marked := filepath.Join(dir, "marked.db")
	writeDatabase(t, marked, "PRAGMA application_id = 1196444487", "CREATE TABLE t (id INTEGER PRIMARY KEY)")
	if _, err := Open(ctx, marked, config.Default(), log.Discard()); !errors.IsValidation(err) {
		t.Errorf("open of a file without core tables: %v", err)
	}

	// A 1.1 file is accepted.
	legacy := filepath.Join(dir, "legacy.gpkg")
	g, err := Create(ctx, legacy, config.Default(), log.Discard())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := g.Conn().Execute(ctx, "PRAGMA application_id = 1196437809"); err != nil {
		t.Fatalf("failed to set application id: %v", err)
	}
	g.Close()
	g, err = Open(ctx, legacy, config.Default(), log.Discard())
	if err != nil {
		t.Fatalf("open of a GP11 file: %v", err)
	}
	g.Close()
}

func writeDatabase(t *testing.T, path string, stmts ...string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer db.Close()
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
}

func TestFeatureTableLifecycle(t *testing.T) {
	ctx := context.Background()
	g := newTestPackage(t)

	err := g.CreateFeatureTable(ctx, FeatureTable{
		Name:         "features_2019",
		GeometryType: "point",
		SrsID:        4326,
		Columns:      []string{"name TEXT", "legacy INTEGER"},
		Bounds: &Bounds{
			MinX: decimal.NewFromInt(-10), MinY: decimal.NewFromInt(-5),
			MaxX: decimal.NewFromInt(10), MaxY: decimal.NewFromInt(5),
		},
	})
	if err != nil {
		t.Fatalf("CreateFeatureTable failed: %v", err)
	}
	if err := g.CreateFeatureTable(ctx, FeatureTable{Name: "features_2019", SrsID: 4326}); !errors.IsValidation(err) {
		t.Errorf("duplicate feature table: %v", err)
	}
	for _, stmt := range []string{
		"INSERT INTO features_2019 (name, legacy) VALUES ('a', 1)",
		"ALTER TABLE features_2019 DROP COLUMN legacy",
		"ALTER TABLE features_2019 RENAME TO features_2020",
		"ALTER TABLE features_2020 COPY TO features_backup",
	} {
		if _, err := g.Exec(ctx, stmt, 0); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}

	if n := queryInt(t, g, `SELECT (SELECT count(*) FROM gpkg_contents WHERE table_name = 'features_2019')
	                             + (SELECT count(*) FROM gpkg_geometry_columns WHERE table_name = 'features_2019')`); n != 0 {
		t.Errorf("%d catalog rows name the old table", n)
	}
	if n := queryInt(t, g, "SELECT count(*) FROM gpkg_geometry_columns"); n != 2 {
		t.Errorf("geometry columns = %d, want 2", n)
	}

	summary, err := g.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if len(summary) != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	for _, s := range summary {
		if s.Err != nil || s.Rows != 1 || s.DataType != catalog.DataTypeFeatures {
			t.Errorf("summary entry = %+v", s)
		}
	}

	if _, err := g.Exec(ctx, "DROP TABLE features_backup", 0); err != nil {
		t.Fatalf("DROP TABLE failed: %v", err)
	}
	if n := queryInt(t, g, "SELECT count(*) FROM gpkg_contents"); n != 1 {
		t.Errorf("contents rows = %d, want 1", n)
	}
}

func TestTileAndAttributesTables(t *testing.T) {
	ctx := context.Background()
	g := newTestPackage(t)

	err := g.CreateTileTable(ctx, TileTable{
		Name:  "basemap",
		SrsID: 4326,
		Bounds: Bounds{
			MinX: decimal.NewFromInt(-180), MinY: decimal.NewFromInt(-90),
			MaxX: decimal.NewFromInt(180), MaxY: decimal.NewFromInt(90),
		},
		Matrices: []catalog.TileMatrixRow{
			{ZoomLevel: 0, MatrixWidth: 2, MatrixHeight: 1, TileWidth: 256, TileHeight: 256,
				PixelXSize: decimal.RequireFromString("0.703125"), PixelYSize: decimal.RequireFromString("0.703125")},
			{ZoomLevel: 1, MatrixWidth: 4, MatrixHeight: 2, TileWidth: 256, TileHeight: 256,
				PixelXSize: decimal.RequireFromString("0.3515625"), PixelYSize: decimal.RequireFromString("0.3515625")},
		},
	})
	if err != nil {
		t.Fatalf("CreateTileTable failed: %v", err)
	}
	if err := g.CreateAttributesTable(ctx, "notes", "body TEXT"); err != nil {
		t.Fatalf("CreateAttributesTable failed: %v", err)
	}

	if _, err := g.Exec(ctx, "DROP TABLE basemap", 0); err != nil {
		t.Fatalf("DROP TABLE failed: %v", err)
	}
	if n := queryInt(t, g, "SELECT count(*) FROM gpkg_tile_matrix"); n != 0 {
		t.Errorf("tile matrix rows = %d, want 0", n)
	}
	entries, err := catalog.ListContents(ctx, g.Conn(), "")
	if err != nil {
		t.Fatalf("ListContents failed: %v", err)
	}
	if len(entries) != 1 || entries[0].TableName != "notes" {
		t.Errorf("contents = %+v", entries)
	}
}

func TestAddRelationship(t *testing.T) {
	ctx := context.Background()
	g := newTestPackage(t)

	if err := g.CreateFeatureTable(ctx, FeatureTable{Name: "roads", SrsID: 4326}); err != nil {
		t.Fatalf("CreateFeatureTable failed: %v", err)
	}
	if err := g.CreateAttributesTable(ctx, "photos", "data BLOB"); err != nil {
		t.Fatalf("CreateAttributesTable failed: %v", err)
	}
	if _, err := g.AddRelationship(ctx, Relationship{BaseTable: "roads", RelatedTable: "photos"}); !errors.IsValidation(err) {
		t.Errorf("relationship without a name: %v", err)
	}
	id, err := g.AddRelationship(ctx, Relationship{BaseTable: "roads", RelatedTable: "photos", Name: "media"})
	if err != nil {
		t.Fatalf("AddRelationship failed: %v", err)
	}
	if id < 1 {
		t.Errorf("relation id = %d", id)
	}

	rels, err := catalog.RelationsFor(ctx, g.Conn(), "photos")
	if err != nil {
		t.Fatalf("RelationsFor failed: %v", err)
	}
	if len(rels) != 1 || rels[0].MappingTable != "roads_photos" || rels[0].BasePrimaryColumn != "fid" {
		t.Fatalf("relations = %+v", rels)
	}
	if n := queryInt(t, g, "SELECT count(*) FROM gpkg_extensions WHERE extension_name = 'related_tables'"); n != 2 {
		t.Errorf("related tables extension rows = %d, want 2", n)
	}

	// Dropping the base table takes the mapping table with it.
	if _, err := g.Exec(ctx, "DROP TABLE roads", 0); err != nil {
		t.Fatalf("DROP TABLE failed: %v", err)
	}
	if n := queryInt(t, g, "SELECT count(*) FROM sqlite_master WHERE name = 'roads_photos'"); n != 0 {
		t.Error("mapping table survived")
	}
	if n := queryInt(t, g, "SELECT count(*) FROM gpkgext_relations"); n != 0 {
		t.Error("relation row survived")
	}
}

func TestSummary_SequentialFallback(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.SQLite.MaxOpenConns = 1
	g, err := Create(ctx, filepath.Join(t.TempDir(), "one.gpkg"), cfg, log.Discard())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer g.Close()

	if err := g.CreateAttributesTable(ctx, "notes", "body TEXT"); err != nil {
		t.Fatalf("CreateAttributesTable failed: %v", err)
	}
	if err := g.Conn().Execute(ctx, "INSERT INTO notes (body) VALUES ('x'), ('y')"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	// A listed table that does not exist is reported, not fatal.
	if err := g.Conn().Execute(ctx, "INSERT INTO gpkg_contents (table_name, data_type) VALUES ('ghost', 'attributes')"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	summary, err := g.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if len(summary) != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary[0].Name != "ghost" || summary[0].Err == nil {
		t.Errorf("ghost entry = %+v", summary[0])
	}
	if summary[1].Rows != 2 || summary[1].Err != nil {
		t.Errorf("notes entry = %+v", summary[1])
	}
}

func TestExecScript(t *testing.T) {
	ctx := context.Background()
	g := newTestPackage(t)

	script := `
CREATE TABLE log (id INTEGER PRIMARY KEY, msg TEXT, legacy TEXT);
CREATE TRIGGER log_ai AFTER INSERT ON log BEGIN
  UPDATE log SET msg = upper(msg) WHERE id = new.id;
END;
INSERT INTO log (msg, legacy) VALUES ('a', 'x');
ALTER TABLE log DROP COLUMN legacy;
SELECT msg FROM log`

	var results []string
	n, err := g.ExecScript(ctx, script, 0, func(stmt string, res *sqlutil.Result) {
		if res.IsQuery() {
			results = append(results, res.Rows[0][0])
		}
	})
	if err != nil {
		t.Fatalf("ExecScript failed: %v", err)
	}
	if n != 5 {
		t.Errorf("ran %d statements, want 5", n)
	}
	if len(results) != 1 || results[0] != "A" {
		t.Errorf("query results = %q", results)
	}

	n, err = g.ExecScript(ctx, "INSERT INTO log (msg) VALUES ('b'); ALTER TABLE log DROP COLUMN nope; SELECT 1;", 0, nil)
	if !errors.IsValidation(err) || n != 1 {
		t.Errorf("failing script: n=%d err=%v", n, err)
	}
}
