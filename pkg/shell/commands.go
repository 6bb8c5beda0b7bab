package shell

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ha1tch/gpkgsql/pkg/catalog"
	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/schema"
	"github.com/ha1tch/gpkgsql/pkg/sqlutil"
)

type metaCommand struct {
	name  string
	usage string
	help  string
	run   func(s *Shell, ctx context.Context, arg string) error
}

// metaCommands is filled in init; .help reads it.
var metaCommands []metaCommand

func init() {
	metaCommands = []metaCommand{
		{".help", "", "Show this help", (*Shell).cmdHelp},
		{".tables", "", "List tables with their GeoPackage data type", (*Shell).cmdTables},
		{".summary", "", "Row counts of the tables in gpkg_contents", (*Shell).cmdSummary},
		{".schema", "[TABLE]", "Show CREATE statements", (*Shell).cmdSchema},
		{".describe", "TABLE", "Show the columns of a table", (*Shell).cmdDescribe},
		{".count", "SELECT ...", "Count the rows a query returns", (*Shell).cmdCount},
		{".format", "[default|ascii|csv|json]", "Show or set the output format", (*Shell).cmdFormat},
		{".timing", "[on|off]", "Toggle statement timing", (*Shell).cmdTiming},
		{".maxrows", "[N]", "Show or set the row limit, 0 for none", (*Shell).cmdMaxRows},
		{".history", "", "Show statements entered this session", (*Shell).cmdHistory},
		{".read", "FILE", "Run the statements in FILE", (*Shell).cmdRead},
		{".exit", "", "Leave the shell (also .quit)", nil},
	}
}

func findMeta(name string) (metaCommand, bool) {
	for _, m := range metaCommands {
		if m.name == name && m.run != nil {
			return m, true
		}
	}
	return metaCommand{}, false
}

func (s *Shell) cmdHelp(_ context.Context, _ string) error {
	fmt.Fprintln(s.out, "Statements end with ';' and may span lines. ALTER TABLE ... DROP COLUMN,")
	fmt.Fprintln(s.out, "RENAME TO and COPY TO keep the GeoPackage catalog in step.")
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, "Commands:")
	for _, m := range metaCommands {
		fmt.Fprintf(s.out, "  %-34s %s\n", strings.TrimSpace(m.name+" "+m.usage), m.help)
	}
	return nil
}

func (s *Shell) cmdTables(ctx context.Context, _ string) error {
	q := s.g.Conn()
	query := "SELECT name, '' AS data_type FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	if ok, err := schema.TableExists(ctx, q, catalog.Contents); err != nil {
		return err
	} else if ok {
		query = `SELECT m.name, coalesce(c.data_type, '') AS data_type
FROM sqlite_master m LEFT JOIN gpkg_contents c ON c.table_name = m.name COLLATE NOCASE
WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%' ORDER BY m.name`
	}
	res, err := q.ExecuteResult(ctx, query, 0)
	if err != nil {
		return err
	}
	render(s.out, s.format, s.colour, res)
	return nil
}

func (s *Shell) cmdSummary(ctx context.Context, _ string) error {
	summary, err := s.g.Summary(ctx)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(summary))
	for _, t := range summary {
		count := strconv.FormatInt(t.Rows, 10)
		if t.Err != nil {
			count = "error: " + t.Err.Error()
		}
		rows = append(rows, []string{t.Name, t.DataType, t.Identifier, count})
	}
	render(s.out, s.format, s.colour, sqlutil.NewQueryResult([]string{"table", "data_type", "identifier", "rows"}, rows))
	return nil
}

func (s *Shell) cmdSchema(ctx context.Context, arg string) error {
	query := "SELECT sql FROM sqlite_master WHERE sql IS NOT NULL"
	var args []interface{}
	if arg != "" {
		query += " AND tbl_name = ? COLLATE NOCASE"
		args = append(args, arg)
	}
	query += " ORDER BY tbl_name, CASE type WHEN 'table' THEN 0 ELSE 1 END, name"

	stmts, err := s.g.Conn().QueryStrings(ctx, query, args...)
	if err != nil {
		return err
	}
	if arg != "" && len(stmts) == 0 {
		return errors.SchemaNotFound(arg).Err()
	}
	for _, stmt := range stmts {
		fmt.Fprintln(s.out, stmt+";")
	}
	return nil
}

func (s *Shell) cmdDescribe(ctx context.Context, arg string) error {
	if arg == "" {
		return errors.Validation("usage: .describe TABLE").Err()
	}
	t, err := schema.Introspect(ctx, s.g.Conn(), arg)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		def := sqlutil.NullText
		if c.Default != nil {
			def = *c.Default
		}
		notNull := "0"
		if c.NotNull {
			notNull = "1"
		}
		rows = append(rows, []string{strconv.Itoa(c.CID), c.Name, c.Type, notNull, def, strconv.Itoa(c.PK)})
	}
	render(s.out, s.format, s.colour, sqlutil.NewQueryResult([]string{"cid", "name", "type", "notnull", "default", "pk"}, rows))
	if gc, err := catalog.GeometryColumnOf(ctx, s.g.Conn(), t.Name); err == nil && gc != nil {
		fmt.Fprintf(s.out, "%sgeometry: %s %s, srs %d%s\n", s.colour.dim, gc.ColumnName, gc.GeometryType, gc.SrsID, s.colour.reset)
	}
	return nil
}

func (s *Shell) cmdCount(ctx context.Context, arg string) error {
	if arg == "" {
		return errors.Validation("usage: .count SELECT ...").Err()
	}
	n, err := s.g.Conn().Count(ctx, strings.TrimSuffix(strings.TrimSpace(arg), ";"))
	if err != nil {
		return err
	}
	if n == sqlutil.CountUnknown {
		fmt.Fprintln(s.out, "unknown")
		return nil
	}
	fmt.Fprintln(s.out, n)
	return nil
}

func (s *Shell) cmdFormat(_ context.Context, arg string) error {
	if arg == "" {
		fmt.Fprintf(s.out, "Format is %s.\n", s.format)
		return nil
	}
	f, ok := ParseFormat(arg)
	if !ok {
		return errors.Validation("unknown format %q", arg).Err()
	}
	s.format = f
	fmt.Fprintf(s.out, "Format is %s.\n", s.format)
	return nil
}

func (s *Shell) cmdTiming(_ context.Context, arg string) error {
	on, err := parseToggle(arg, s.timing)
	if err != nil {
		return err
	}
	s.timing = on
	if on {
		fmt.Fprintln(s.out, "Timing is on.")
	} else {
		fmt.Fprintln(s.out, "Timing is off.")
	}
	return nil
}

func (s *Shell) cmdMaxRows(_ context.Context, arg string) error {
	if arg != "" {
		n, err := parseMaxRows(arg)
		if err != nil {
			return err
		}
		s.maxRows = n
	}
	if s.maxRows == 0 {
		fmt.Fprintln(s.out, "No row limit.")
	} else {
		fmt.Fprintf(s.out, "Row limit is %d.\n", s.maxRows)
	}
	return nil
}

func (s *Shell) cmdHistory(_ context.Context, _ string) error {
	entries := s.history
	// The .history line itself is the last entry.
	if n := len(entries); n > 0 && strings.HasPrefix(entries[n-1], ".history") {
		entries = entries[:n-1]
	}
	start := 0
	if len(entries) > 20 {
		start = len(entries) - 20
	}
	for i := start; i < len(entries); i++ {
		line := strings.Join(strings.Fields(entries[i]), " ")
		if len(line) > 70 {
			line = line[:67] + "..."
		}
		fmt.Fprintf(s.out, "  %s%3d%s  %s\n", s.colour.dim, i+1, s.colour.reset, line)
	}
	return nil
}

func (s *Shell) cmdRead(ctx context.Context, arg string) error {
	if arg == "" {
		return errors.Validation("usage: .read FILE").Err()
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return errors.Wrapf(err, errors.ErrCodeValidation, "cannot read %s", arg).Err()
	}
	return s.ExecScript(ctx, string(data))
}
