package sqlutil

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ha1tch/gpkgsql/pkg/errors"
)

// ColumnType is the Go type a caller expects for a result column.
type ColumnType int

const (
	TypeAuto    ColumnType = iota // whatever the driver returns; []byte is copied
	TypeInteger                   // int64
	TypeFloat                     // float64
	TypeString                    // string
	TypeBlob                      // []byte
	TypeBool                      // bool
	TypeDecimal                   // decimal.Decimal
	TypeTime                      // time.Time
)

func (t ColumnType) String() string {
	switch t {
	case TypeAuto:
		return "auto"
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeBlob:
		return "blob"
	case TypeBool:
		return "bool"
	case TypeDecimal:
		return "decimal"
	case TypeTime:
		return "time"
	default:
		return "unknown"
	}
}

// timeLayouts are tried in order when text must become a time. The first
// is the GeoPackage timestamp format.
var timeLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Coerce converts a driver value to the expected type. NULL stays nil for
// every type.
func Coerce(v interface{}, t ColumnType) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeAuto:
		if b, ok := v.([]byte); ok {
			return append([]byte(nil), b...), nil
		}
		return v, nil
	case TypeInteger:
		return toInt64(v)
	case TypeFloat:
		return toFloat64(v)
	case TypeString:
		return toString(v), nil
	case TypeBlob:
		switch x := v.(type) {
		case []byte:
			return append([]byte(nil), x...), nil
		case string:
			return []byte(x), nil
		}
	case TypeBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case float64:
			return x != 0, nil
		case string, []byte:
			return strconv.ParseBool(toString(x))
		}
	case TypeDecimal:
		switch x := v.(type) {
		case int64:
			return decimal.NewFromInt(x), nil
		case float64:
			return decimal.NewFromFloat(x), nil
		case string, []byte:
			return decimal.NewFromString(strings.TrimSpace(toString(x)))
		}
	case TypeTime:
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case int64:
			return time.Unix(x, 0).UTC(), nil
		case string, []byte:
			s := strings.TrimSpace(toString(x))
			for _, layout := range timeLayouts {
				if ts, err := time.Parse(layout, s); err == nil {
					return ts, nil
				}
			}
			return nil, fmt.Errorf("cannot parse %q as time", s)
		}
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, t)
}

func toInt64(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case float64:
		if x != math.Trunc(x) {
			return nil, fmt.Errorf("%v is not an integer", x)
		}
		return int64(x), nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case time.Time:
		return x.Unix(), nil
	case string, []byte:
		return strconv.ParseInt(strings.TrimSpace(toString(x)), 10, 64)
	}
	return nil, fmt.Errorf("cannot convert %T to integer", v)
}

func toFloat64(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case bool:
		if x {
			return 1.0, nil
		}
		return 0.0, nil
	case string, []byte:
		return strconv.ParseFloat(strings.TrimSpace(toString(x)), 64)
	}
	return nil, fmt.Errorf("cannot convert %T to float", v)
}

func toString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format("2006-01-02T15:04:05.000Z")
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// QueryResults runs query and returns up to limit rows (all rows when
// limit <= 0) with each cell coerced to the type declared for its column.
// Columns beyond len(types) are TypeAuto. Hitting the limit is not an
// error. The cursor is closed before returning.
func (c *Conn) QueryResults(ctx context.Context, query string, args []interface{}, types []ColumnType, limit int) ([][]interface{}, error) {
	rows, err := c.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Execution(query, err).Err()
	}

	var out [][]interface{}
	for rows.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		row, err := scanRow(rows, len(cols))
		if err != nil {
			return nil, errors.Execution(query, err).Err()
		}
		for i := range row {
			t := TypeAuto
			if i < len(types) {
				t = types[i]
			}
			if row[i], err = Coerce(row[i], t); err != nil {
				return nil, errors.Wrapf(err, errors.ErrCodeExecConvert, "column %s", cols[i]).
					WithField("statement", query).Err()
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Execution(query, err).Err()
	}
	return out, nil
}

// QuerySingleColumnResults returns the first column of up to limit rows.
func (c *Conn) QuerySingleColumnResults(ctx context.Context, query string, args []interface{}, t ColumnType, limit int) ([]interface{}, error) {
	rows, err := c.QueryResults(ctx, query, args, []ColumnType{t}, limit)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, len(rows))
	for i, row := range rows {
		out[i] = row[0]
	}
	return out, nil
}

// QuerySingleResult returns the first column of the first row, or nil when
// the query produced no rows.
func (c *Conn) QuerySingleResult(ctx context.Context, query string, args []interface{}, t ColumnType) (interface{}, error) {
	vals, err := c.QuerySingleColumnResults(ctx, query, args, t, 1)
	if err != nil || len(vals) == 0 {
		return nil, err
	}
	return vals[0], nil
}

// QueryStrings returns the first column of every row as strings; NULL
// becomes "".
func (c *Conn) QueryStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	vals, err := c.QuerySingleColumnResults(ctx, query, args, TypeString, 0)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		if v != nil {
			out[i] = v.(string)
		}
	}
	return out, nil
}

// QueryInt returns the first column of the first row as an int64. A
// missing row or NULL yields 0.
func (c *Conn) QueryInt(ctx context.Context, query string, args ...interface{}) (int64, error) {
	v, err := c.QuerySingleResult(ctx, query, args, TypeInteger)
	if err != nil || v == nil {
		return 0, err
	}
	return v.(int64), nil
}

func scanRow(rows *sql.Rows, n int) ([]interface{}, error) {
	values := make([]interface{}, n)
	ptrs := make([]interface{}, n)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return values, nil
}
