package sqltext

import "strings"

// tableRef is an identifier token that names a table or view.
type tableRef struct {
	tok   int    // index into the token slice
	alias string // alias given in a FROM clause, if any
}

// clauseEnd holds the keywords that close a FROM clause at its depth.
var clauseEnd = map[string]bool{
	"WHERE": true, "GROUP": true, "HAVING": true, "ORDER": true, "LIMIT": true,
	"WINDOW": true, "UNION": true, "EXCEPT": true, "INTERSECT": true, "ON": true,
	"USING": true, "RETURNING": true, "SET": true, "VALUES": true, "SELECT": true,
	"END": true,
}

// notAlias holds the keywords that may follow a table in a FROM clause.
var notAlias = map[string]bool{
	"WHERE": true, "GROUP": true, "HAVING": true, "ORDER": true, "LIMIT": true,
	"WINDOW": true, "UNION": true, "EXCEPT": true, "INTERSECT": true, "ON": true,
	"USING": true, "RETURNING": true, "SET": true, "VALUES": true, "SELECT": true,
	"JOIN": true, "LEFT": true, "RIGHT": true, "FULL": true, "INNER": true, "OUTER": true,
	"CROSS": true, "NATURAL": true, "INDEXED": true, "NOT": true, "DEFAULT": true,
	"END": true, "AS": true, "WHEN": true, "BEGIN": true, "FOR": true,
}

// scanTables finds the tokens of toks in a table position: the target of
// FROM, JOIN, INTO, UPDATE, TABLE and REFERENCES, the ON of an index or a
// trigger header, the tables of a comma-separated FROM list, and the
// qualifier of a qualified column (t.col). Column names, aliases and
// table-valued function names are not table positions.
func scanTables(toks []Token) []tableRef {
	sig := make([]int, 0, len(toks))
	for i, t := range toks {
		if t.Significant() {
			sig = append(sig, i)
		}
	}
	at := func(k int) Token {
		if k < 0 || k >= len(sig) {
			return Token{Kind: Space}
		}
		return toks[sig[k]]
	}
	isIdent := func(t Token) bool { return t.Kind == Word || t.Kind == Quoted }

	var (
		refs      []tableRef
		fromStack []int // depths of the open FROM clauses
		expect    bool  // next identifier names a table
		inFrom    bool  // the expected table is in a FROM clause
		isIndex   bool
		isTrigger bool
		inBody    bool
		onUsed    bool
		qualified = map[int]bool{}
	)

	for k := 0; k < len(sig); k++ {
		t := at(k)
		for len(fromStack) > 0 && t.Depth < fromStack[len(fromStack)-1] {
			fromStack = fromStack[:len(fromStack)-1]
		}
		inClause := len(fromStack) > 0 && fromStack[len(fromStack)-1] == t.Depth

		if k < 4 && t.Kind == Word {
			switch t.Upper() {
			case "INDEX":
				isIndex = true
			case "TRIGGER":
				isTrigger = true
			}
		}

		if t.IsPunct(';') {
			fromStack, expect = nil, false
			continue
		}
		if t.IsPunct(',') && inClause {
			expect, inFrom = true, true
			continue
		}

		if expect && t.Kind == Word {
			switch t.Upper() {
			case "IF", "NOT", "EXISTS":
				continue
			case "OR":
				k++ // conflict clause: UPDATE OR REPLACE t
				continue
			}
		}

		if expect && isIdent(t) && !(t.Kind == Word && notAlias[t.Upper()]) {
			expect = false
			if at(k+1).IsPunct('.') && isIdent(at(k+2)) {
				k += 2 // schema-qualified
				t = at(k)
			}
			if inFrom && at(k+1).IsPunct('(') {
				continue // table-valued function
			}
			ref := tableRef{tok: sig[k]}
			if inFrom {
				next := at(k + 1)
				if next.Is("AS") {
					next = at(k + 2)
				}
				if isIdent(next) && !(next.Kind == Word && notAlias[next.Upper()]) {
					ref.alias, _ = next.Ident()
				}
			}
			refs = append(refs, ref)
			continue
		}
		expect = false

		if t.Kind == Word {
			kw := t.Upper()
			if inClause && clauseEnd[kw] {
				fromStack = fromStack[:len(fromStack)-1]
			}
			switch kw {
			case "FROM", "JOIN":
				if !inClause {
					fromStack = append(fromStack, t.Depth)
				}
				expect, inFrom = true, true
			case "INTO", "TABLE", "REFERENCES":
				expect, inFrom = true, false
			case "UPDATE":
				if !isTrigger || inBody {
					expect, inFrom = true, false
				}
			case "ON":
				if (isIndex || isTrigger && !inBody) && !onUsed && t.Depth == 0 {
					onUsed = true
					expect, inFrom = true, false
				}
			case "BEGIN":
				if isTrigger {
					inBody = true
				}
			}
		}

		// A qualifier: the t in t.col, but not the schema in s.t.col.
		if isIdent(t) && at(k+1).IsPunct('.') && isIdent(at(k+2)) && !at(k-1).IsPunct('.') {
			if at(k+3).IsPunct('.') && isIdent(at(k+4)) {
				k += 2
			}
			if !qualified[sig[k]] {
				qualified[sig[k]] = true
				refs = append(refs, tableRef{tok: sig[k]})
			}
		}
	}
	return refs
}

// ReferencesTable reports whether s names table in a table position. A
// column that happens to share the table's name does not count.
func ReferencesTable(s, table string) bool {
	toks := Lex(s)
	for _, r := range scanTables(toks) {
		if id, ok := toks[r.tok].Ident(); ok && strings.EqualFold(id, table) {
			return true
		}
	}
	return false
}

// ReplaceTable replaces the references to table old found in a table
// position with newName. Quoted tokens keep their quote style; bare
// tokens are quoted only when newName needs it. With literals set, string
// literals whose whole value is old are replaced too, as found in triggers
// that compare against catalog rows (WHERE table_name = 'roads'). It
// returns the new text and the number of replacements.
func ReplaceTable(s, old, newName string, literals bool) (string, int) {
	toks := Lex(s)
	hit := map[int]bool{}
	for _, r := range scanTables(toks) {
		if id, ok := toks[r.tok].Ident(); ok && strings.EqualFold(id, old) {
			hit[r.tok] = true
		}
	}

	var b strings.Builder
	n := 0
	for i, t := range toks {
		switch {
		case hit[i] && t.Kind == Word:
			b.WriteString(Identifier(newName))
			n++
		case hit[i]:
			b.WriteString(requote(t.Text, newName))
			n++
		case literals && t.Kind == String && strings.EqualFold(Unquote(t.Text), old):
			b.WriteString(QuoteString(newName))
			n++
		default:
			b.WriteString(t.Text)
		}
	}
	return b.String(), n
}

// ReferencesColumn reports whether s, a view or trigger that reads table,
// refers to column of table. A reference qualified by another table or
// alias does not count; an unqualified one does, since SQLite rejects a
// column name that is ambiguous between the tables of a query. With
// owner set s is a trigger on table, so NEW and OLD qualify table's
// columns and the columns of the trigger header are table's.
func ReferencesColumn(s, table, column string, owner bool) bool {
	toks := Lex(s)
	refs := scanTables(toks)

	quals := map[string]bool{strings.ToLower(table): true}
	if owner {
		quals["new"], quals["old"] = true, true
	}
	isRef := make(map[int]bool, len(refs)+1)
	isRef[objectName(toks)] = true
	for _, r := range refs {
		isRef[r.tok] = true
		if id, _ := toks[r.tok].Ident(); strings.EqualFold(id, table) && r.alias != "" {
			quals[strings.ToLower(r.alias)] = true
		}
	}

	trigger, inBody := false, false
	var prev []Token // significant tokens before the current one
	for i, t := range toks {
		if !t.Significant() {
			continue
		}
		if len(prev) < 4 && t.Is("TRIGGER") {
			trigger = true
		}
		if trigger && t.Is("BEGIN") {
			inBody = true
		}
		id, ok := t.Ident()
		if ok && !isRef[i] && strings.EqualFold(id, column) {
			n := len(prev)
			switch {
			case n >= 2 && prev[n-1].IsPunct('.'):
				q, _ := prev[n-2].Ident()
				if quals[strings.ToLower(q)] {
					return true
				}
			case trigger && !inBody:
				if owner {
					return true
				}
			case nextIsDot(toks, i):
				// a qualifier that is not a table reference, such as NEW
			default:
				return true
			}
		}
		prev = append(prev, t)
	}
	return false
}

func nextIsDot(toks []Token, i int) bool {
	for _, t := range toks[i+1:] {
		if t.Significant() {
			return t.IsPunct('.')
		}
	}
	return false
}

// RenameObject replaces the name in a CREATE INDEX, TRIGGER or VIEW
// statement with newName. It reports false when s has no such header.
func RenameObject(s, newName string) (string, bool) {
	toks := Lex(s)
	i := objectName(toks)
	if i < 0 {
		return s, false
	}
	t := toks[i]
	repl := Identifier(newName)
	if t.Kind == Quoted {
		repl = requote(t.Text, newName)
	}
	return s[:t.Pos] + repl + s[t.End:], true
}

// objectName returns the index of the name token of a CREATE INDEX,
// TRIGGER or VIEW statement, the part after the dot when schema-qualified,
// or -1.
func objectName(toks []Token) int {
	seen := 0
	header := false
	for i, t := range toks {
		if !t.Significant() {
			continue
		}
		seen++
		if seen == 1 && !t.Is("CREATE") {
			return -1
		}
		if !header {
			if t.Is("INDEX") || t.Is("TRIGGER") || t.Is("VIEW") {
				header = true
			}
			if seen > 4 {
				return -1
			}
			continue
		}
		if t.Is("IF") || t.Is("NOT") || t.Is("EXISTS") {
			continue
		}
		if _, ok := t.Ident(); !ok {
			return -1
		}
		if j := nextSignificant(toks, i); j >= 0 && toks[j].IsPunct('.') {
			if k := nextSignificant(toks, j); k >= 0 {
				return k
			}
		}
		return i
	}
	return -1
}

func nextSignificant(toks []Token, i int) int {
	for j := i + 1; j < len(toks); j++ {
		if toks[j].Significant() {
			return j
		}
	}
	return -1
}

// WithoutRowid reports whether s, a CREATE TABLE statement, declares a
// WITHOUT ROWID table.
func WithoutRowid(s string) bool {
	var sig []Token
	for _, t := range Lex(s) {
		if t.Significant() {
			sig = append(sig, t)
		}
	}
	body := false
	for i, t := range sig {
		if t.Depth != 0 {
			continue
		}
		switch {
		case t.IsPunct(')'):
			body = true
		case t.IsPunct(';'):
			return false
		case body && t.Is("WITHOUT") && i+1 < len(sig) && sig[i+1].Is("ROWID"):
			return true
		}
	}
	return false
}
