// Package sqltext is a small lexical toolkit for SQLite statement text.
//
// It does not parse SQL. It splits text into tokens that know their
// parenthesis depth, which is enough to find top-level keywords, split
// definition lists, and find or replace identifiers without touching
// comments or unrelated string literals.
package sqltext

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind classifies a token.
type Kind int

const (
	Space   Kind = iota // whitespace
	Comment             // -- or /* */
	Word                // bare identifier or keyword
	Quoted              // "ident", `ident` or [ident]
	String              // 'literal'
	Number
	Param // ?, ?NNN, :name, @name, $name
	Punct // any other single character
)

// Token is a lexical unit of statement text.
type Token struct {
	Kind  Kind
	Text  string
	Pos   int // byte offset of the first byte
	End   int // byte offset after the last byte
	Depth int // parenthesis depth before the token
}

// Upper returns the token text upper-cased. Only meaningful for words.
func (t Token) Upper() string {
	return strings.ToUpper(t.Text)
}

// Ident returns the identifier value of a Word or Quoted token.
func (t Token) Ident() (string, bool) {
	switch t.Kind {
	case Word:
		return t.Text, true
	case Quoted:
		return Unquote(t.Text), true
	}
	return "", false
}

// Significant reports whether the token is neither space nor comment.
func (t Token) Significant() bool {
	return t.Kind != Space && t.Kind != Comment
}

// Is reports whether t is the word kw, ignoring case.
func (t Token) Is(kw string) bool {
	return t.Kind == Word && strings.EqualFold(t.Text, kw)
}

// IsPunct reports whether t is the punctuation character c.
func (t Token) IsPunct(c byte) bool {
	return t.Kind == Punct && len(t.Text) == 1 && t.Text[0] == c
}

// Lex splits s into tokens. Unterminated quotes and comments run to the
// end of the text.
func Lex(s string) []Token {
	var toks []Token
	depth := 0
	i := 0
	for i < len(s) {
		start := i
		c := s[i]
		var kind Kind
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			for i < len(s) && strings.IndexByte(" \t\n\r\f", s[i]) >= 0 {
				i++
			}
			kind = Space
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			kind = Comment
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += end + 4
			}
			kind = Comment
		case c == '\'':
			i = scanQuoted(s, i, '\'')
			kind = String
		case c == '"' || c == '`':
			i = scanQuoted(s, i, c)
			kind = Quoted
		case c == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				i = len(s)
			} else {
				i += end + 1
			}
			kind = Quoted
		case c >= '0' && c <= '9' || c == '.' && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9':
			i++
			for i < len(s) && (isIdentByte(s[i]) || s[i] == '.') {
				i++
			}
			kind = Number
		case c == '?':
			i++
			for i < len(s) && s[i] >= '0' && s[i] <= '9' {
				i++
			}
			kind = Param
		case (c == ':' || c == '@' || c == '$') && i+1 < len(s) && isIdentStart(s[i+1:]):
			i++
			for i < len(s) && isIdentByte(s[i]) {
				i++
			}
			kind = Param
		case isIdentStart(s[i:]):
			for i < len(s) {
				r, size := utf8.DecodeRuneInString(s[i:])
				if !(r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)) {
					break
				}
				i += size
			}
			kind = Word
		default:
			_, size := utf8.DecodeRuneInString(s[i:])
			i += size
			kind = Punct
		}

		tok := Token{Kind: kind, Text: s[start:i], Pos: start, End: i, Depth: depth}
		if kind == Punct {
			switch c {
			case '(':
				depth++
			case ')':
				if depth > 0 {
					depth--
				}
				tok.Depth = depth
			}
		}
		toks = append(toks, tok)
	}
	return toks
}

func scanQuoted(s string, i int, q byte) int {
	i++
	for i < len(s) {
		if s[i] == q {
			if i+1 < len(s) && s[i+1] == q {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return i
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func isIdentStart(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r == '_' || unicode.IsLetter(r)
}

// Significant returns the tokens of s that are neither space nor comment.
func Significant(s string) []Token {
	all := Lex(s)
	out := all[:0]
	for _, t := range all {
		if t.Significant() {
			out = append(out, t)
		}
	}
	return out
}

// SplitTopLevel splits s on commas that are not nested in parentheses,
// quotes or comments. Parts are trimmed; empty parts are dropped.
func SplitTopLevel(s string) []string {
	var parts []string
	start := 0
	for _, t := range Lex(s) {
		if t.Depth == 0 && t.IsPunct(',') {
			if p := strings.TrimSpace(s[start:t.Pos]); p != "" {
				parts = append(parts, p)
			}
			start = t.End
		}
	}
	if p := strings.TrimSpace(s[start:]); p != "" {
		parts = append(parts, p)
	}
	return parts
}

// MatchingParen returns the index of the ')' closing the '(' at open,
// or -1.
func MatchingParen(s string, open int) int {
	if open < 0 || open >= len(s) || s[open] != '(' {
		return -1
	}
	for _, t := range Lex(s[open:]) {
		if t.IsPunct(')') && t.Depth == 0 {
			return open + t.Pos
		}
	}
	return -1
}

// Unquote strips SQLite identifier quoting. Unquoted text is returned as is.
func Unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	switch s[0] {
	case '"', '`', '\'':
		if s[len(s)-1] == s[0] {
			q := string(s[0])
			return strings.ReplaceAll(s[1:len(s)-1], q+q, q)
		}
	case '[':
		if s[len(s)-1] == ']' {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// QuoteIdentifier double-quotes name for use in a statement.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteString single-quotes s as a string literal.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// SplitStatements splits s into the complete statements it holds, each
// without its terminating ';', and returns the text after the last
// terminator. Semicolons inside a CREATE TRIGGER body do not terminate
// the statement. Statements that are empty or only comments are dropped.
func SplitStatements(s string) (stmts []string, rest string) {
	var (
		start   = 0
		words   int  // significant tokens seen in the current statement
		trigger bool // current statement is CREATE [TEMP] TRIGGER
		body    bool // inside BEGIN ... END of a trigger
		cases   int
		prevTok Token
	)
	for _, t := range Lex(s) {
		if !t.Significant() {
			continue
		}
		switch {
		case t.Depth == 0 && t.IsPunct(';'):
			if body {
				break
			}
			if p := strings.TrimSpace(s[start:t.Pos]); len(Significant(p)) > 0 {
				stmts = append(stmts, p)
			}
			start = t.End
			words, trigger, cases = 0, false, 0
			prevTok = Token{}
			continue
		case words < 4 && t.Is("TRIGGER") && prevTok.Kind == Word:
			trigger = true
		case trigger && !body && t.Is("BEGIN"):
			body = true
		case body && t.Is("CASE"):
			cases++
		case body && t.Is("END"):
			if cases > 0 {
				cases--
			} else {
				body = false
			}
		}
		words++
		prevTok = t
	}
	return stmts, s[start:]
}
