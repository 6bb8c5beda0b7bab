package schema

import (
	"strings"

	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/sqltext"
)

// ColumnDef is one column definition of a CREATE TABLE statement, kept as
// written.
type ColumnDef struct {
	Name string
	// Text is the full definition, name included.
	Text string
	// body starts after the name.
	body string
}

// Body returns the definition without the column name.
func (c ColumnDef) Body() string {
	return c.body
}

// References reports whether the definition mentions column, outside its
// own name.
func (c ColumnDef) References(column string) bool {
	return mentions(c.body, column)
}

// CreateTable is a parsed CREATE TABLE statement. Definitions are kept
// verbatim so that rebuilding a table preserves types, defaults,
// collations and constraints exactly.
type CreateTable struct {
	Name        string
	Columns     []ColumnDef
	Constraints []string
	// Suffix is the text after the closing parenthesis, e.g. WITHOUT ROWID.
	Suffix string
}

var constraintStarts = map[string]bool{
	"CONSTRAINT": true, "PRIMARY": true, "UNIQUE": true, "CHECK": true, "FOREIGN": true,
}

// ParseCreateTable splits a CREATE TABLE statement into column
// definitions and table constraints. Virtual tables and CREATE TABLE AS
// are unsupported.
func ParseCreateTable(sql string) (*CreateTable, error) {
	toks := sqltext.Significant(sql)
	i := 0
	next := func(kw string) bool {
		if i < len(toks) && toks[i].Is(kw) {
			i++
			return true
		}
		return false
	}

	if !next("CREATE") {
		return nil, errors.Validation("not a CREATE TABLE statement").Err()
	}
	if !next("TEMP") {
		next("TEMPORARY")
	}
	if next("VIRTUAL") {
		return nil, errors.Unsupported("virtual tables cannot be rebuilt").Err()
	}
	if !next("TABLE") {
		return nil, errors.Validation("not a CREATE TABLE statement").Err()
	}
	if next("IF") {
		if !next("NOT") || !next("EXISTS") {
			return nil, errors.Validation("malformed IF NOT EXISTS").Err()
		}
	}

	if i >= len(toks) {
		return nil, errors.Validation("CREATE TABLE has no name").Err()
	}
	name, ok := toks[i].Ident()
	if !ok {
		return nil, errors.Validation("CREATE TABLE has no name").Err()
	}
	i++
	if i+1 < len(toks) && toks[i].IsPunct('.') {
		if name, ok = toks[i+1].Ident(); !ok {
			return nil, errors.Validation("CREATE TABLE has no name").Err()
		}
		i += 2
	}

	if i >= len(toks) || !toks[i].IsPunct('(') {
		if i < len(toks) && toks[i].Is("AS") {
			return nil, errors.Unsupported("CREATE TABLE AS cannot be rebuilt").Err()
		}
		return nil, errors.Validation("CREATE TABLE %s has no column list", name).Err()
	}
	open := toks[i].Pos
	closing := sqltext.MatchingParen(sql, open)
	if closing < 0 {
		return nil, errors.Validation("unbalanced parentheses in CREATE TABLE %s", name).Err()
	}

	ct := &CreateTable{
		Name:   name,
		Suffix: strings.TrimRight(strings.TrimSpace(sql[closing+1:]), ";"),
	}
	for _, part := range sqltext.SplitTopLevel(sql[open+1 : closing]) {
		first := sqltext.Significant(part)
		if len(first) == 0 {
			continue
		}
		if first[0].Kind == sqltext.Word && constraintStarts[first[0].Upper()] {
			ct.Constraints = append(ct.Constraints, part)
			continue
		}
		colName, ok := first[0].Ident()
		if !ok {
			return nil, errors.Validation("malformed column definition %q", part).Err()
		}
		ct.Columns = append(ct.Columns, ColumnDef{
			Name: colName,
			Text: part,
			body: part[first[0].End:],
		})
	}
	if len(ct.Columns) == 0 {
		return nil, errors.Validation("CREATE TABLE %s has no columns", name).Err()
	}
	return ct, nil
}

// Column returns the definition of the named column.
func (ct *CreateTable) Column(name string) (ColumnDef, bool) {
	for _, c := range ct.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// ColumnNames returns the defined column names in order.
func (ct *CreateTable) ColumnNames() []string {
	names := make([]string, len(ct.Columns))
	for i, c := range ct.Columns {
		names[i] = c.Name
	}
	return names
}

// ConstraintsReferencing returns the table constraints that mention
// column.
func (ct *CreateTable) ConstraintsReferencing(column string) []string {
	var out []string
	for _, c := range ct.Constraints {
		if mentions(c, column) {
			out = append(out, c)
		}
	}
	return out
}

// ColumnsReferencing returns the other columns whose definitions mention
// column, such as CHECK clauses or generated expressions.
func (ct *CreateTable) ColumnsReferencing(column string) []string {
	var out []string
	for _, c := range ct.Columns {
		if !strings.EqualFold(c.Name, column) && c.References(column) {
			out = append(out, c.Name)
		}
	}
	return out
}

// WithoutColumn returns a copy of the statement with column removed. It
// reports false when the column is not defined.
func (ct *CreateTable) WithoutColumn(column string) (*CreateTable, bool) {
	out := &CreateTable{
		Name:        ct.Name,
		Constraints: append([]string(nil), ct.Constraints...),
		Suffix:      ct.Suffix,
	}
	found := false
	for _, c := range ct.Columns {
		if strings.EqualFold(c.Name, column) {
			found = true
			continue
		}
		out.Columns = append(out.Columns, c)
	}
	return out, found
}

// SQL renders the statement under the given table name. Foreign keys
// referencing the table itself follow the new name.
func (ct *CreateTable) SQL(name string) string {
	parts := make([]string, 0, len(ct.Columns)+len(ct.Constraints))
	for _, c := range ct.Columns {
		parts = append(parts, retarget(c.Text, ct.Name, name))
	}
	for _, c := range ct.Constraints {
		parts = append(parts, retarget(c, ct.Name, name))
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(sqltext.Identifier(name))
	b.WriteString(" (")
	b.WriteString(strings.Join(parts, ", "))
	b.WriteString(")")
	if ct.Suffix != "" {
		b.WriteString(" ")
		b.WriteString(ct.Suffix)
	}
	return b.String()
}

// retarget rewrites the table named right after REFERENCES from old to
// newName.
func retarget(def, old, newName string) string {
	if strings.EqualFold(old, newName) {
		return def
	}
	var b strings.Builder
	afterReferences := false
	for _, t := range sqltext.Lex(def) {
		if !t.Significant() {
			b.WriteString(t.Text)
			continue
		}
		if id, ok := t.Ident(); ok && afterReferences && strings.EqualFold(id, old) {
			b.WriteString(sqltext.Identifier(newName))
		} else {
			b.WriteString(t.Text)
		}
		afterReferences = t.Is("REFERENCES")
	}
	return b.String()
}

// mentions reports whether def names column, ignoring the parent table
// and parent columns of REFERENCES clauses, which belong to another table.
func mentions(def, column string) bool {
	toks := sqltext.Significant(def)
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.Is("REFERENCES") {
			i++ // parent table
			if i+1 < len(toks) && toks[i+1].IsPunct('(') {
				depth := toks[i+1].Depth
				for i++; i+1 < len(toks); i++ {
					if toks[i+1].IsPunct(')') && toks[i+1].Depth == depth {
						i++
						break
					}
				}
			}
			continue
		}
		if id, ok := t.Ident(); ok && strings.EqualFold(id, column) {
			return true
		}
	}
	return false
}
