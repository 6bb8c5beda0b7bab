package sqltext

import (
	"regexp"
	"strings"
)

// ReferencesIdentifier reports whether s mentions name as an identifier,
// bare or quoted. Comments and string literals are ignored.
func ReferencesIdentifier(s, name string) bool {
	for _, t := range Lex(s) {
		if id, ok := t.Ident(); ok && strings.EqualFold(id, name) {
			return true
		}
	}
	return false
}

var bareIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// keywords that cannot stand bare as identifiers in the statements we emit.
var reserved = map[string]bool{
	"ADD": true, "ALL": true, "ALTER": true, "AND": true, "AS": true, "BETWEEN": true,
	"BY": true, "CASE": true, "CHECK": true, "COLLATE": true, "COLUMN": true,
	"CONSTRAINT": true, "CREATE": true, "DEFAULT": true, "DELETE": true, "DISTINCT": true,
	"DROP": true, "ELSE": true, "END": true, "EXISTS": true, "FROM": true, "GROUP": true,
	"IN": true, "INDEX": true, "INSERT": true, "INTO": true, "IS": true, "JOIN": true,
	"KEY": true, "LIMIT": true, "NOT": true, "NULL": true, "ON": true, "OR": true,
	"ORDER": true, "PRIMARY": true, "REFERENCES": true, "SELECT": true, "SET": true,
	"TABLE": true, "THEN": true, "TO": true, "TRIGGER": true, "UNION": true, "UNIQUE": true,
	"UPDATE": true, "USING": true, "VALUES": true, "VIEW": true, "WHEN": true, "WHERE": true,
}

// Identifier returns name bare when it is a plain word and not a keyword,
// double-quoted otherwise.
func Identifier(name string) string {
	if bareIdent.MatchString(name) && !reserved[strings.ToUpper(name)] {
		return name
	}
	return QuoteIdentifier(name)
}

func requote(orig, name string) string {
	switch orig[0] {
	case '`':
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	case '[':
		if !strings.Contains(name, "]") {
			return "[" + name + "]"
		}
	}
	return QuoteIdentifier(name)
}
