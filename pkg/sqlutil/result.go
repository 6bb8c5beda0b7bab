package sqlutil

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/sqltext"
)

const (
	// BlobText replaces BLOB cells in rendered results.
	BlobText = "BLOB"
	// NullText renders SQL NULL.
	NullText = "NULL"
)

// Result is a rendered statement result: either rows with their column
// names, or an update count, never both.
type Result struct {
	// Tables holds the owning table of each column where it is known,
	// "" otherwise.
	Tables  []string
	Columns []string
	Rows    [][]string
	// Widths holds the widest rendered value per column, header included.
	Widths []int
	// Truncated is set when rows were cut off at the row limit.
	Truncated bool
	Elapsed   time.Duration

	query       bool
	updateCount int64
}

// NewUpdateResult returns a result carrying only an update count.
func NewUpdateResult(n int64) *Result {
	return &Result{updateCount: n}
}

// NewQueryResult returns a query result over already rendered rows, for
// output that does not come from a statement.
func NewQueryResult(columns []string, rows [][]string) *Result {
	res := &Result{
		query:   true,
		Columns: columns,
		Rows:    rows,
		Tables:  make([]string, len(columns)),
		Widths:  make([]int, len(columns)),
	}
	for i, col := range columns {
		res.Widths[i] = utf8.RuneCountInString(col)
	}
	for _, row := range rows {
		for i, v := range row {
			if w := utf8.RuneCountInString(v); i < len(res.Widths) && w > res.Widths[i] {
				res.Widths[i] = w
			}
		}
	}
	return res
}

// IsQuery reports whether the result carries rows.
func (r *Result) IsQuery() bool {
	return r.query
}

// RowCount returns the number of rows, and false for update results.
func (r *Result) RowCount() (int, bool) {
	if !r.query {
		return 0, false
	}
	return len(r.Rows), true
}

// UpdateCount returns the number of changed rows, and false for query
// results.
func (r *Result) UpdateCount() (int64, bool) {
	if r.query {
		return 0, false
	}
	return r.updateCount, true
}

// ExecuteResult runs any single statement and renders its outcome.
// Statements that produce columns yield up to maxRows rows (all when
// maxRows <= 0); others yield the number of rows they changed.
func (c *Conn) ExecuteResult(ctx context.Context, query string, maxRows int) (*Result, error) {
	start := time.Now()
	before, err := c.QueryInt(ctx, "SELECT total_changes()")
	if err != nil {
		return nil, err
	}

	rows, err := c.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Execution(query, err).Err()
	}

	if len(cols) == 0 {
		// The statement runs when stepped.
		for rows.Next() {
		}
		if err := rows.Err(); err != nil {
			return nil, errors.Execution(query, err).Err()
		}
		rows.Close()
		return c.updateResult(ctx, before, start)
	}

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.Execution(query, err).Err()
	}

	res := &Result{
		query:   true,
		Columns: cols,
		Tables:  make([]string, len(cols)),
		Widths:  make([]int, len(cols)),
	}
	source := singleSourceTable(query)
	for i, col := range cols {
		res.Widths[i] = utf8.RuneCountInString(col)
		// Expressions have no declared type; real columns do.
		if source != "" && types[i].DatabaseTypeName() != "" {
			res.Tables[i] = source
		}
	}

	for rows.Next() {
		if maxRows > 0 && len(res.Rows) >= maxRows {
			res.Truncated = true
			break
		}
		values, err := scanRow(rows, len(cols))
		if err != nil {
			return nil, errors.Execution(query, err).Err()
		}
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = renderCell(v)
			if w := utf8.RuneCountInString(row[i]); w > res.Widths[i] {
				res.Widths[i] = w
			}
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Execution(query, err).Err()
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

func (c *Conn) updateResult(ctx context.Context, before int64, start time.Time) (*Result, error) {
	after, err := c.QueryInt(ctx, "SELECT total_changes()")
	if err != nil {
		return nil, err
	}
	var n int64
	if after != before {
		if n, err = c.QueryInt(ctx, "SELECT changes()"); err != nil {
			return nil, err
		}
	}
	res := NewUpdateResult(n)
	res.Elapsed = time.Since(start)
	return res, nil
}

func renderCell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return NullText
	case []byte:
		return BlobText
	default:
		return toString(x)
	}
}

// singleSourceTable returns the table a simple "SELECT ... FROM t ..."
// reads from, or "" when there is a join, subquery or none.
func singleSourceTable(query string) string {
	toks := sqltext.Significant(query)
	for i, t := range toks {
		if t.Depth != 0 || !t.Is("FROM") {
			continue
		}
		if i+1 >= len(toks) {
			return ""
		}
		name, ok := toks[i+1].Ident()
		if !ok {
			return ""
		}
		for _, rest := range toks[i+2:] {
			if rest.Depth != 0 {
				continue
			}
			if rest.IsPunct(',') || rest.Is("JOIN") {
				return ""
			}
			switch rest.Upper() {
			case ".", "UNION", "INTERSECT", "EXCEPT":
				return ""
			}
		}
		return strings.TrimSpace(name)
	}
	return ""
}
