package sqlutil

import (
	"context"
	"strings"

	"github.com/ha1tch/gpkgsql/pkg/sqltext"
)

// CountUnknown is returned by Count when a statement cannot be rewritten
// into a counting form. Callers must treat it as "not known", not as zero.
const CountUnknown int64 = -1

// countPlan is a set of statements whose single integer results sum to
// the row count of the original statement.
type countPlan struct {
	statements []string
	// trimArgs is the number of trailing arguments bound by a removed
	// LIMIT/OFFSET clause.
	trimArgs int
}

var aggregates = map[string]bool{
	"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true,
	"TOTAL": true, "GROUP_CONCAT": true, "STRING_AGG": true,
}

// planCount rewrites query into counting statements. ok is false when the
// statement cannot be rewritten.
func planCount(query string) (plan countPlan, ok bool) {
	q := strings.TrimSpace(query)
	for strings.HasSuffix(q, ";") {
		q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	}

	toks := sqltext.Significant(q)
	if len(toks) < 2 {
		return plan, false
	}

	// Already a count.
	if toks[0].Is("SELECT") && toks[1].Is("COUNT") && len(toks) > 2 && toks[2].IsPunct('(') {
		return countPlan{statements: []string{q}}, true
	}

	isWith := toks[0].Is("WITH")
	if !toks[0].Is("SELECT") && !isWith {
		return plan, false
	}

	// Locate top-level clauses. For a WITH statement the clauses of
	// interest belong to the final SELECT, which is also at depth 0.
	fromIdx, whereIdx, cutIdx := -1, -1, -1
	selectIdx := 0
	compound, grouped := false, false
	for i, t := range toks {
		if t.Depth != 0 || t.Kind != sqltext.Word {
			continue
		}
		switch t.Upper() {
		case "SELECT":
			if isWith && fromIdx < 0 {
				selectIdx = i
			}
		case "FROM":
			if fromIdx < 0 {
				fromIdx = i
			}
		case "WHERE":
			if fromIdx >= 0 && whereIdx < 0 && cutIdx < 0 {
				whereIdx = i
			}
		case "GROUP", "HAVING", "WINDOW":
			grouped = true
		case "UNION", "INTERSECT", "EXCEPT":
			compound = true
		case "ORDER", "LIMIT":
			if cutIdx < 0 {
				cutIdx = i
			}
		}
	}
	if fromIdx < 0 {
		return plan, false
	}

	end := len(q)
	if cutIdx >= 0 {
		end = toks[cutIdx].Pos
		for _, t := range toks[cutIdx:] {
			if t.Kind == sqltext.Param {
				plan.trimArgs++
			}
		}
	}
	body := strings.TrimSpace(q[:end])

	wrap := func() (countPlan, bool) {
		plan.statements = []string{"SELECT COUNT(*) FROM (" + body + ")"}
		return plan, true
	}

	if isWith || compound || grouped {
		return wrap()
	}

	selectList := toks[selectIdx+1 : fromIdx]
	distinct := len(selectList) > 0 && selectList[0].Is("DISTINCT")
	if len(selectList) > 0 && (selectList[0].Is("DISTINCT") || selectList[0].Is("ALL")) {
		selectList = selectList[1:]
	}
	if len(selectList) == 0 {
		return plan, false
	}
	listText := q[selectList[0].Pos:selectList[len(selectList)-1].End]
	fromText := q[toks[fromIdx].Pos:end]

	hasParam, hasAggregate := false, false
	for i, t := range selectList {
		if t.Kind == sqltext.Param {
			hasParam = true
		}
		if t.Depth == 0 && t.Kind == sqltext.Word && aggregates[t.Upper()] &&
			i+1 < len(selectList) && selectList[i+1].IsPunct('(') {
			hasAggregate = true
		}
	}

	if !distinct {
		if hasParam || hasAggregate {
			return wrap()
		}
		plan.statements = []string{"SELECT COUNT(*) " + fromText}
		return plan, true
	}

	// DISTINCT over exactly one expression: COUNT(DISTINCT) ignores NULL,
	// so a NULL check adds one when any NULL exists.
	items := sqltext.SplitTopLevel(listText)
	if len(items) != 1 || hasParam || hasAggregate {
		return plan, false
	}
	expr := stripAlias(items[0])
	if expr == "*" || strings.HasSuffix(expr, ".*") {
		return plan, false
	}

	sourceText, whereText := fromText, ""
	if whereIdx >= 0 {
		sourceText = q[toks[fromIdx].Pos:toks[whereIdx].Pos]
		whereText = strings.TrimSpace(q[toks[whereIdx].End:end])
	}
	nullCheck := "SELECT COUNT(*) > 0 " + strings.TrimSpace(sourceText) + " WHERE " + expr + " IS NULL"
	if whereText != "" {
		nullCheck += " AND (" + whereText + ")"
	}
	plan.statements = []string{
		"SELECT COUNT(DISTINCT " + expr + ") " + fromText,
		nullCheck,
	}
	return plan, true
}

// stripAlias removes "AS alias" or a trailing bare alias from a single
// select-list expression.
func stripAlias(item string) string {
	toks := sqltext.Significant(item)
	for i, t := range toks {
		if t.Depth == 0 && t.Is("AS") && i > 0 {
			return strings.TrimSpace(item[:t.Pos])
		}
	}
	if len(toks) >= 2 {
		last, prev := toks[len(toks)-1], toks[len(toks)-2]
		_, lastIdent := last.Ident()
		_, prevIdent := prev.Ident()
		if lastIdent && (prevIdent || prev.IsPunct(')')) && last.Depth == 0 &&
			!last.Is("END") && !prev.Is("COLLATE") {
			return strings.TrimSpace(item[:last.Pos])
		}
	}
	return strings.TrimSpace(item)
}

// Count returns the number of rows query would produce, without
// materialising them. Statements already in COUNT form run as given;
// SELECT statements are rewritten; anything that cannot be rewritten
// yields CountUnknown.
func (c *Conn) Count(ctx context.Context, query string, args ...interface{}) (int64, error) {
	plan, ok := planCount(query)
	if !ok {
		c.logger.SQL().Debug("count not derivable", "statement", query)
		return CountUnknown, nil
	}
	if plan.trimArgs > 0 && plan.trimArgs <= len(args) {
		args = args[:len(args)-plan.trimArgs]
	}

	var total int64
	for _, stmt := range plan.statements {
		n, err := c.QueryInt(ctx, stmt, args...)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
