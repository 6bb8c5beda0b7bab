package catalog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ha1tch/gpkgsql/pkg/ddl"
	"github.com/ha1tch/gpkgsql/pkg/sqlutil"
)

// ContentsCollection tracks gpkg_contents. Besides the table name it keeps
// the identifier in step when it equals the table name, and stamps
// last_change whenever a table is altered.
type ContentsCollection struct {
	*Collection
}

var (
	_ ddl.Updater        = (*ContentsCollection)(nil)
	_ ddl.ChangeRecorder = (*ContentsCollection)(nil)
)

// NewContentsCollection tracks gpkg_contents.
func NewContentsCollection() *ContentsCollection {
	return &ContentsCollection{Collection: &Collection{
		table:       Contents,
		tableColumn: "table_name",
		overrides: map[string]string{
			"identifier":  "?",
			"last_change": TimestampNow,
		},
	}}
}

// RenameTableReferences renames the contents row.
func (c *ContentsCollection) RenameTableReferences(ctx context.Context, q *sqlutil.Conn, oldName, newName string) error {
	if ok, err := c.present(ctx, q); err != nil || !ok {
		return err
	}
	n, err := q.ExecuteAffected(ctx,
		`UPDATE gpkg_contents
		    SET identifier = CASE WHEN identifier = ? COLLATE NOCASE THEN ? ELSE identifier END,
		        table_name = ?,
		        last_change = `+TimestampNow+`
		  WHERE table_name = ? COLLATE NOCASE`,
		oldName, newName, newName, oldName)
	c.count("rename", n)
	return err
}

// TableChanged stamps last_change on the table's contents row.
func (c *ContentsCollection) TableChanged(ctx context.Context, q *sqlutil.Conn, table string) error {
	if ok, err := c.present(ctx, q); err != nil || !ok {
		return err
	}
	return q.Execute(ctx, "UPDATE gpkg_contents SET last_change = "+TimestampNow+" WHERE "+c.match(), table)
}

// Entry is a gpkg_contents row. Bounds and SrsID are nil when unset.
type Entry struct {
	TableName   string
	DataType    string
	Identifier  string
	Description string
	LastChange  time.Time
	MinX, MinY  *decimal.Decimal
	MaxX, MaxY  *decimal.Decimal
	SrsID       *int64
}

// HasBounds reports whether all four bounds are set.
func (e Entry) HasBounds() bool {
	return e.MinX != nil && e.MinY != nil && e.MaxX != nil && e.MaxY != nil
}

// AddContents inserts e. An empty identifier defaults to the table name.
func AddContents(ctx context.Context, q *sqlutil.Conn, e Entry) error {
	cv := sqlutil.NewContentValues().
		Put("table_name", e.TableName).
		Put("data_type", e.DataType)
	if e.Identifier == "" {
		e.Identifier = e.TableName
	}
	cv.Put("identifier", e.Identifier).Put("description", e.Description)
	if !e.LastChange.IsZero() {
		cv.Put("last_change", e.LastChange.UTC().Format("2006-01-02T15:04:05.000Z"))
	}
	if e.HasBounds() {
		cv.Put("min_x", e.MinX.InexactFloat64()).
			Put("min_y", e.MinY.InexactFloat64()).
			Put("max_x", e.MaxX.InexactFloat64()).
			Put("max_y", e.MaxY.InexactFloat64())
	}
	if e.SrsID != nil {
		cv.Put("srs_id", *e.SrsID)
	}
	_, err := q.Insert(ctx, Contents, cv)
	return err
}

var entryTypes = []sqlutil.ColumnType{
	sqlutil.TypeString, sqlutil.TypeString, sqlutil.TypeString, sqlutil.TypeString, sqlutil.TypeTime,
	sqlutil.TypeDecimal, sqlutil.TypeDecimal, sqlutil.TypeDecimal, sqlutil.TypeDecimal, sqlutil.TypeInteger,
}

// ListContents returns the contents rows ordered by table name, optionally
// restricted to one data type.
func ListContents(ctx context.Context, q *sqlutil.Conn, dataType string) ([]Entry, error) {
	query := `SELECT table_name, data_type, identifier, description, last_change,
	                 min_x, min_y, max_x, max_y, srs_id
	            FROM gpkg_contents`
	var args []interface{}
	if dataType != "" {
		query += " WHERE data_type = ?"
		args = append(args, dataType)
	}
	rows, err := q.QueryResults(ctx, query+" ORDER BY table_name", args, entryTypes, 0)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		e := Entry{
			TableName: r[0].(string),
			DataType:  r[1].(string),
		}
		if s, ok := r[2].(string); ok {
			e.Identifier = s
		}
		if s, ok := r[3].(string); ok {
			e.Description = s
		}
		if ts, ok := r[4].(time.Time); ok {
			e.LastChange = ts
		}
		for i, dst := range []**decimal.Decimal{&e.MinX, &e.MinY, &e.MaxX, &e.MaxY} {
			if d, ok := r[5+i].(decimal.Decimal); ok {
				*dst = &d
			}
		}
		if id, ok := r[9].(int64); ok {
			e.SrsID = &id
		}
		entries = append(entries, e)
	}
	return entries, nil
}
