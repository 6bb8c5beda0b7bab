package shell

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ha1tch/gpkgsql/pkg/sqlutil"
)

// Format selects how query results are printed.
type Format int

const (
	FormatDefault Format = iota // aligned columns
	FormatASCII                 // bordered table
	FormatCSV
	FormatJSON
)

var formatNames = map[string]Format{
	"default": FormatDefault,
	"ascii":   FormatASCII,
	"csv":     FormatCSV,
	"json":    FormatJSON,
}

func (f Format) String() string {
	for name, v := range formatNames {
		if v == f {
			return name
		}
	}
	return "default"
}

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, bool) {
	f, ok := formatNames[strings.ToLower(strings.TrimSpace(s))]
	return f, ok
}

// maxCellWidth caps column width in the tabular formats.
const maxCellWidth = 50

// render prints res to w in format f.
func render(w io.Writer, f Format, p palette, res *sqlutil.Result) {
	if n, ok := res.UpdateCount(); ok {
		fmt.Fprintf(w, "OK, %d row(s) changed\n", n)
		return
	}
	switch f {
	case FormatASCII:
		renderASCII(w, p, res)
	case FormatCSV:
		renderCSV(w, res)
	case FormatJSON:
		renderJSON(w, res)
	default:
		renderDefault(w, p, res)
	}
}

// widths returns the display widths of res, capped.
func widths(res *sqlutil.Result) []int {
	out := make([]int, len(res.Columns))
	for i := range out {
		wd := utf8.RuneCountInString(res.Columns[i])
		if i < len(res.Widths) && res.Widths[i] > wd {
			wd = res.Widths[i]
		}
		if wd < 4 {
			wd = 4
		}
		if wd > maxCellWidth {
			wd = maxCellWidth
		}
		out[i] = wd
	}
	return out
}

// fit pads or truncates s to exactly width runes.
func fit(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n > width {
		r := []rune(s)
		return string(r[:width-3]) + "..."
	}
	return s + strings.Repeat(" ", width-n)
}

func cell(p palette, v string, width int) string {
	if v == sqlutil.NullText || v == sqlutil.BlobText {
		return p.dim + fit(v, width) + p.reset
	}
	return fit(v, width)
}

func renderDefault(w io.Writer, p palette, res *sqlutil.Result) {
	wds := widths(res)

	for i, col := range res.Columns {
		fmt.Fprint(w, p.bold+fit(col, wds[i])+p.reset+"  ")
	}
	fmt.Fprintln(w)
	for _, wd := range wds {
		fmt.Fprint(w, strings.Repeat("-", wd)+"  ")
	}
	fmt.Fprintln(w)
	for _, row := range res.Rows {
		for i, v := range row {
			fmt.Fprint(w, cell(p, v, wds[i])+"  ")
		}
		fmt.Fprintln(w)
	}
}

func renderASCII(w io.Writer, p palette, res *sqlutil.Result) {
	wds := widths(res)
	border := func(c string) {
		fmt.Fprint(w, "+")
		for _, wd := range wds {
			fmt.Fprint(w, strings.Repeat(c, wd+2)+"+")
		}
		fmt.Fprintln(w)
	}

	border("-")
	fmt.Fprint(w, "|")
	for i, col := range res.Columns {
		fmt.Fprint(w, " "+p.bold+fit(col, wds[i])+p.reset+" |")
	}
	fmt.Fprintln(w)
	border("=")
	for _, row := range res.Rows {
		fmt.Fprint(w, "|")
		for i, v := range row {
			fmt.Fprint(w, " "+cell(p, v, wds[i])+" |")
		}
		fmt.Fprintln(w)
	}
	border("-")
}

func renderCSV(w io.Writer, res *sqlutil.Result) {
	line := func(values []string) {
		for i, v := range values {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprint(w, csvEscape(v))
		}
		fmt.Fprintln(w)
	}
	line(res.Columns)
	for _, row := range res.Rows {
		line(row)
	}
}

func csvEscape(s string) string {
	if strings.ContainsAny(s, ",\"\n\r") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

func renderJSON(w io.Writer, res *sqlutil.Result) {
	fmt.Fprintln(w, "[")
	for i, row := range res.Rows {
		fmt.Fprint(w, "  {")
		for j, col := range res.Columns {
			if j > 0 {
				fmt.Fprint(w, ", ")
			}
			key, _ := json.Marshal(col)
			fmt.Fprintf(w, "%s: %s", key, jsonValue(row[j]))
		}
		fmt.Fprint(w, "}")
		if i < len(res.Rows)-1 {
			fmt.Fprint(w, ",")
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, "]")
}

// jsonValue renders NULL as null and numbers bare.
func jsonValue(s string) string {
	if s == sqlutil.NullText {
		return "null"
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil && json.Valid([]byte(s)) {
		return s
	}
	b, _ := json.Marshal(s)
	return string(b)
}
