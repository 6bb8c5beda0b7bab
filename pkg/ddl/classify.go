package ddl

import (
	"strings"

	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/sqltext"
)

// Kind is the form a statement was classified as.
type Kind int

const (
	KindNative        Kind = iota // passed to SQLite unchanged
	KindDropColumn                // ALTER TABLE t DROP [COLUMN] c
	KindCopyTable                 // ALTER TABLE t COPY TO t2
	KindRenameCascade             // ALTER TABLE t RENAME TO t2
	KindDropCascade               // DROP TABLE [IF EXISTS] t
	KindAddColumn                 // ALTER TABLE t ADD [COLUMN] def
	KindRenameColumn              // ALTER TABLE t RENAME [COLUMN] a TO b
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindDropColumn:
		return "drop_column"
	case KindCopyTable:
		return "copy_table"
	case KindRenameCascade:
		return "rename_table"
	case KindDropCascade:
		return "drop_table"
	case KindAddColumn:
		return "add_column"
	case KindRenameColumn:
		return "rename_column"
	default:
		return "unknown"
	}
}

// Statement is a classified statement. Only the fields its Kind needs are
// set.
type Statement struct {
	Kind Kind
	SQL  string

	Table   string
	Column  string
	NewName string
	// ColumnDef is the column definition of ADD COLUMN, as written.
	ColumnDef string
	IfExists  bool
}

// systemPrefixes mark tables owned by SQLite or by the GeoPackage format.
// Statements on them are never emulated.
var systemPrefixes = []string{"sqlite_", "gpkg_", "gpkgext_", "rtree_"}

// IsSystemTable reports whether name belongs to SQLite or the catalog.
func IsSystemTable(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range systemPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// Classify decides how a statement is executed. Anything that is not one
// of the emulated forms is KindNative. A statement that starts like an
// emulated form but is incomplete is a ValidationError.
func Classify(sql string) (Statement, error) {
	st := Statement{Kind: KindNative, SQL: sql}
	toks := sqltext.Significant(sql)
	for len(toks) > 0 && toks[len(toks)-1].IsPunct(';') {
		toks = toks[:len(toks)-1]
	}

	switch {
	case len(toks) >= 2 && toks[0].Is("ALTER") && toks[1].Is("TABLE"):
		return classifyAlter(sql, st, toks[2:])
	case len(toks) >= 2 && toks[0].Is("DROP") && toks[1].Is("TABLE"):
		return classifyDrop(sql, st, toks[2:])
	}
	return st, nil
}

// tableName reads an optionally schema-qualified table name. ok is false
// when the name is missing; main is false for a schema other than main.
func tableName(toks []sqltext.Token) (name string, rest []sqltext.Token, main, ok bool) {
	if len(toks) == 0 {
		return "", nil, false, false
	}
	name, ok = toks[0].Ident()
	if !ok {
		return "", nil, false, false
	}
	if len(toks) >= 3 && toks[1].IsPunct('.') {
		schema := name
		if name, ok = toks[2].Ident(); !ok {
			return "", nil, false, false
		}
		return name, toks[3:], strings.EqualFold(schema, "main"), true
	}
	return name, toks[1:], true, true
}

func classifyDrop(sql string, st Statement, toks []sqltext.Token) (Statement, error) {
	if len(toks) >= 2 && toks[0].Is("IF") && toks[1].Is("EXISTS") {
		st.IfExists = true
		toks = toks[2:]
	}
	name, rest, main, ok := tableName(toks)
	if !ok {
		return st, errors.Validation("DROP TABLE without a table name").Err()
	}
	if len(rest) != 0 || !main || IsSystemTable(name) {
		return Statement{Kind: KindNative, SQL: sql}, nil
	}
	st.Kind = KindDropCascade
	st.Table = name
	return st, nil
}

func classifyAlter(sql string, st Statement, toks []sqltext.Token) (Statement, error) {
	name, rest, main, ok := tableName(toks)
	if !ok {
		return st, errors.Validation("ALTER TABLE without a table name").Err()
	}
	if !main || IsSystemTable(name) || len(rest) == 0 {
		return st, nil
	}
	st.Table = name
	action := rest[0]
	rest = rest[1:]

	switch {
	case action.Is("DROP"):
		if len(rest) > 0 && rest[0].Is("COLUMN") {
			rest = rest[1:]
		}
		if len(rest) != 1 {
			return st, errors.Validation("malformed DROP COLUMN on %s", name).Err()
		}
		col, ok := rest[0].Ident()
		if !ok {
			return st, errors.Validation("malformed DROP COLUMN on %s", name).Err()
		}
		st.Kind, st.Column = KindDropColumn, col
		return st, nil

	case action.Is("COPY"):
		if len(rest) != 2 || !rest[0].Is("TO") {
			return st, errors.Validation("malformed COPY TO on %s", name).Err()
		}
		to, ok := rest[1].Ident()
		if !ok {
			return st, errors.Validation("malformed COPY TO on %s", name).Err()
		}
		st.Kind, st.NewName = KindCopyTable, to
		return st, nil

	case action.Is("RENAME"):
		if len(rest) == 2 && rest[0].Is("TO") {
			to, ok := rest[1].Ident()
			if !ok {
				return st, errors.Validation("malformed RENAME TO on %s", name).Err()
			}
			st.Kind, st.NewName = KindRenameCascade, to
			return st, nil
		}
		if len(rest) > 0 && rest[0].Is("COLUMN") {
			rest = rest[1:]
		}
		if len(rest) != 3 || !rest[1].Is("TO") {
			return st, errors.Validation("malformed RENAME on %s", name).Err()
		}
		from, ok1 := rest[0].Ident()
		to, ok2 := rest[2].Ident()
		if !ok1 || !ok2 {
			return st, errors.Validation("malformed RENAME COLUMN on %s", name).Err()
		}
		st.Kind, st.Column, st.NewName = KindRenameColumn, from, to
		return st, nil

	case action.Is("ADD"):
		start := action.End
		if len(rest) > 0 && rest[0].Is("COLUMN") {
			start = rest[0].End
			rest = rest[1:]
		}
		if len(rest) == 0 {
			return st, errors.Validation("malformed ADD COLUMN on %s", name).Err()
		}
		// Table constraints cannot be added with ALTER TABLE; SQLite reports it.
		if rest[0].Kind == sqltext.Word && isConstraintKeyword(rest[0].Upper()) {
			return Statement{Kind: KindNative, SQL: sql}, nil
		}
		col, ok := rest[0].Ident()
		if !ok {
			return st, errors.Validation("malformed ADD COLUMN on %s", name).Err()
		}
		def := strings.TrimSpace(sql[start:])
		def = strings.TrimSpace(strings.TrimRight(def, "; \t\r\n"))
		st.Kind, st.Column, st.ColumnDef = KindAddColumn, col, def
		return st, nil
	}
	return st, nil
}

func isConstraintKeyword(w string) bool {
	switch w {
	case "CONSTRAINT", "PRIMARY", "UNIQUE", "CHECK", "FOREIGN":
		return true
	}
	return false
}
