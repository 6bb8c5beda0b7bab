package gpkg

import (
	"context"
	"strings"

	"github.com/ha1tch/gpkgsql/pkg/sqltext"
	"github.com/ha1tch/gpkgsql/pkg/sqlutil"
)

// ExecScript runs the statements of script in order through Exec. A
// trailing statement without ';' is run too. fn, if not nil, receives each
// statement with its result. Execution stops at the first failure; the
// returned count is the number of statements that succeeded.
func (g *GeoPackage) ExecScript(ctx context.Context, script string, maxRows int, fn func(stmt string, res *sqlutil.Result)) (int, error) {
	stmts, rest := sqltext.SplitStatements(script)
	if tail := strings.TrimSpace(rest); len(sqltext.Significant(tail)) > 0 {
		stmts = append(stmts, tail)
	}

	for i, stmt := range stmts {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		res, err := g.Exec(ctx, stmt, maxRows)
		if err != nil {
			g.logger.Shell().Warn("script statement failed", "statement", i+1, "error", err.Error())
			return i, err
		}
		if fn != nil {
			fn(stmt, res)
		}
	}
	return len(stmts), nil
}
