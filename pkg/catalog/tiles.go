package catalog

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ha1tch/gpkgsql/pkg/sqlutil"
)

// TileMatrixSetRow is a gpkg_tile_matrix_set row.
type TileMatrixSetRow struct {
	TableName              string
	SrsID                  int64
	MinX, MinY, MaxX, MaxY decimal.Decimal
}

// TileMatrixRow is one zoom level of a tile pyramid.
type TileMatrixRow struct {
	TableName                 string
	ZoomLevel                 int
	MatrixWidth, MatrixHeight int
	TileWidth, TileHeight     int
	PixelXSize, PixelYSize    decimal.Decimal
}

// AddTileMatrixSet registers the bounds of a tile table.
func AddTileMatrixSet(ctx context.Context, q *sqlutil.Conn, s TileMatrixSetRow) error {
	_, err := q.Insert(ctx, TileMatrixSet, sqlutil.NewContentValues().
		Put("table_name", s.TableName).
		Put("srs_id", s.SrsID).
		Put("min_x", s.MinX.InexactFloat64()).
		Put("min_y", s.MinY.InexactFloat64()).
		Put("max_x", s.MaxX.InexactFloat64()).
		Put("max_y", s.MaxY.InexactFloat64()))
	return err
}

// AddTileMatrix registers one zoom level.
func AddTileMatrix(ctx context.Context, q *sqlutil.Conn, m TileMatrixRow) error {
	_, err := q.Insert(ctx, TileMatrix, sqlutil.NewContentValues().
		Put("table_name", m.TableName).
		Put("zoom_level", m.ZoomLevel).
		Put("matrix_width", m.MatrixWidth).
		Put("matrix_height", m.MatrixHeight).
		Put("tile_width", m.TileWidth).
		Put("tile_height", m.TileHeight).
		Put("pixel_x_size", m.PixelXSize.InexactFloat64()).
		Put("pixel_y_size", m.PixelYSize.InexactFloat64()))
	return err
}

// ZoomLevels returns the zoom levels registered for table, ascending.
func ZoomLevels(ctx context.Context, q *sqlutil.Conn, table string) ([]int, error) {
	vals, err := q.QuerySingleColumnResults(ctx,
		"SELECT zoom_level FROM gpkg_tile_matrix WHERE table_name = ? COLLATE NOCASE ORDER BY zoom_level",
		[]interface{}{table}, sqlutil.TypeInteger, 0)
	if err != nil {
		return nil, err
	}
	levels := make([]int, len(vals))
	for i, v := range vals {
		levels[i] = int(v.(int64))
	}
	return levels, nil
}
