package ddl

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/schema"
	"github.com/ha1tch/gpkgsql/pkg/sqltext"
	"github.com/ha1tch/gpkgsql/pkg/sqlutil"
)

// dropColumnPlan is everything DropColumn needs once validation passed.
type dropColumnPlan struct {
	table     string
	column    string
	create    *schema.CreateTable // definition without the column
	remaining []string
	// drop is every dependent object; recreate is what comes back.
	drop     *schema.DependentSet
	recreate *schema.DependentSet
	sequence *int64 // sqlite_sequence value to restore
}

// DropColumn removes column from table by rebuilding the table: the
// remaining columns are copied into a new table that replaces the old one,
// and the table's indexes, triggers and views are recreated on it.
func (e *Engine) DropColumn(ctx context.Context, table, column string) error {
	restoreFK := false
	defer func() {
		if restoreFK {
			if err := e.conn.Execute(ctx, "PRAGMA foreign_keys = ON"); err != nil {
				e.logger.DDL().Error("failed to re-enable foreign keys", err, "table", table)
			}
		}
	}()

	return e.run(ctx, KindDropColumn, table, func(ctx context.Context) (func(context.Context) error, error) {
		p, err := e.planDropColumn(ctx, table, column)
		if err != nil {
			return nil, err
		}

		// Dropping the old table must not fire foreign key actions on
		// rows that reference it. The pragma is a no-op inside a
		// transaction, so there such tables are refused.
		fkOn, err := e.conn.QueryInt(ctx, "PRAGMA foreign_keys")
		if err != nil {
			return nil, err
		}
		auto, err := e.conn.AutoCommit(ctx)
		if err != nil {
			return nil, err
		}
		if fkOn == 1 && auto {
			if err := e.conn.Execute(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
				return nil, err
			}
			restoreFK = true
		} else if fkOn == 1 {
			if hasInboundForeignKeys(ctx, e.conn, p.table) {
				return nil, errors.Unsupported(
					"cannot rebuild %s inside a transaction while foreign keys reference it", p.table).Err()
			}
		}

		return func(ctx context.Context) error {
			if err := e.rebuild(ctx, p); err != nil {
				return err
			}
			if restoreFK {
				return e.checkForeignKeys(ctx)
			}
			return nil
		}, nil
	})
}

func (e *Engine) planDropColumn(ctx context.Context, table, column string) (*dropColumnPlan, error) {
	info, err := e.lookupTable(ctx, table)
	if err != nil {
		return nil, err
	}
	col, ok := info.Column(column)
	if !ok {
		return nil, errors.Validation("no such column: %s.%s", info.Name, column).Err()
	}
	column = col.Name

	if col.PK > 0 {
		return nil, errors.Unsupported("cannot drop primary key column %s.%s", info.Name, column).Err()
	}
	if len(info.Columns) == 1 {
		return nil, errors.Unsupported("cannot drop the only column of %s", info.Name).Err()
	}

	ct, err := schema.ParseCreateTable(info.SQL)
	if err != nil {
		return nil, err
	}
	if refs := ct.ConstraintsReferencing(column); len(refs) > 0 {
		return nil, errors.Unsupported("column %s.%s is used by table constraint %s", info.Name, column, refs[0]).Err()
	}
	if refs := ct.ColumnsReferencing(column); len(refs) > 0 {
		return nil, errors.Unsupported("column %s.%s is used by the definition of column %s", info.Name, column, refs[0]).Err()
	}
	fks, err := schema.ReferencingForeignKeys(ctx, e.conn, info.Name, column)
	if err != nil {
		return nil, err
	}
	if len(fks) > 0 {
		return nil, errors.Unsupported("column %s.%s is referenced by a foreign key in %s", info.Name, column, fks[0].Table).Err()
	}

	trimmed, ok := ct.WithoutColumn(column)
	if !ok {
		return nil, errors.Unsupported("column %s.%s is not in the table definition", info.Name, column).Err()
	}

	for _, u := range e.Updaters() {
		if g, ok := u.(ColumnGuard); ok {
			if err := g.CheckDropColumn(ctx, e.conn, info.Name, column); err != nil {
				return nil, err
			}
		}
	}

	deps, err := schema.Dependents(ctx, e.conn, info.Name)
	if err != nil {
		return nil, err
	}
	recreate, err := e.planDependents(ctx, info.Name, column, deps)
	if err != nil {
		return nil, err
	}

	p := &dropColumnPlan{
		table:    info.Name,
		column:   column,
		create:   trimmed,
		drop:     deps,
		recreate: recreate,
	}
	for _, c := range info.Columns {
		if !strings.EqualFold(c.Name, column) {
			p.remaining = append(p.remaining, c.Name)
		}
	}
	if p.sequence, err = e.sequenceOf(ctx, info.Name); err != nil {
		return nil, err
	}
	return p, nil
}

// planDependents decides what happens to each object depending on the
// table: indexes on the column are dropped or regenerated without it;
// triggers and views that mention it cannot be rewritten safely.
func (e *Engine) planDependents(ctx context.Context, table, column string, deps *schema.DependentSet) (*schema.DependentSet, error) {
	indexes, err := schema.Indexes(ctx, e.conn, table)
	if err != nil {
		return nil, err
	}

	recreate := deps
	for _, ix := range indexes {
		regenerated, drop, err := rewriteIndex(ix, column)
		if err != nil {
			return nil, err
		}
		switch {
		case drop:
			recreate = recreate.Without(ix.Name)
		case regenerated != "":
			recreate = recreate.Replace(ix.Name, regenerated)
		}
	}

	for _, o := range append(append([]schema.Object(nil), deps.Views...), deps.Triggers...) {
		owner := o.Type == "trigger" && strings.EqualFold(o.TblName, table)
		if sqltext.ReferencesColumn(o.SQL, table, column, owner) {
			return nil, errors.Unsupported("%s %s references column %s.%s", o.Type, o.Name, table, column).Err()
		}
	}
	return recreate, nil
}

// rewriteIndex returns the index statement without column, or drop=true
// when the index is on column alone. It returns "" and false when the
// index does not involve column.
func rewriteIndex(ix schema.Index, column string) (sql string, drop bool, err error) {
	if !sqltext.ReferencesIdentifier(indexBody(ix.SQL), column) {
		return "", false, nil
	}
	if ix.HasExpression() {
		return "", false, errors.Unsupported("expression index %s uses column %s", ix.Name, column).Err()
	}

	open, closing, where := indexTerms(ix.SQL)
	if open < 0 {
		return "", false, errors.Unsupported("cannot parse index %s", ix.Name).Err()
	}
	if where != "" && sqltext.ReferencesIdentifier(where, column) {
		return "", false, errors.Unsupported("partial index %s filters on column %s", ix.Name, column).Err()
	}

	terms := sqltext.SplitTopLevel(ix.SQL[open+1 : closing])
	var kept []string
	for _, t := range terms {
		toks := sqltext.Significant(t)
		if len(toks) > 0 {
			if id, ok := toks[0].Ident(); ok && strings.EqualFold(id, column) {
				continue
			}
		}
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		return "", true, nil
	}
	if ix.Unique {
		return "", false, errors.Unsupported("unique index %s covers column %s with other columns", ix.Name, column).Err()
	}
	return ix.SQL[:open+1] + strings.Join(kept, ", ") + ix.SQL[closing:], false, nil
}

// indexBody is the part of a CREATE INDEX after ON, which excludes the
// index name.
func indexBody(sql string) string {
	for _, t := range sqltext.Significant(sql) {
		if t.Depth == 0 && t.Is("ON") {
			return sql[t.End:]
		}
	}
	return sql
}

// indexTerms locates the indexed-term list of a CREATE INDEX and returns
// the WHERE clause text, if any.
func indexTerms(sql string) (open, closing int, where string) {
	seenOn := false
	for _, t := range sqltext.Significant(sql) {
		if t.Depth != 0 {
			continue
		}
		if t.Is("ON") {
			seenOn = true
			continue
		}
		if seenOn && t.IsPunct('(') {
			closing := sqltext.MatchingParen(sql, t.Pos)
			if closing < 0 {
				return -1, -1, ""
			}
			rest := sqltext.Significant(sql[closing+1:])
			if len(rest) > 0 && rest[0].Is("WHERE") {
				where = sql[closing+1+rest[0].End:]
			}
			return t.Pos, closing, where
		}
	}
	return -1, -1, ""
}

// rebuild runs the table swap inside the transaction.
func (e *Engine) rebuild(ctx context.Context, p *dropColumnPlan) error {
	tmp, err := e.tempName(ctx, p.table)
	if err != nil {
		return err
	}

	if err := e.conn.Execute(ctx, p.create.SQL(tmp)); err != nil {
		return err
	}

	cols := make([]string, len(p.remaining))
	for i, c := range p.remaining {
		cols[i] = sqltext.Identifier(c)
	}
	list := strings.Join(cols, ", ")
	copyRows := "INSERT INTO " + sqltext.Identifier(tmp) + " (" + list + ") SELECT " + list +
		" FROM " + sqltext.Identifier(p.table)
	if err := e.conn.Execute(ctx, copyRows); err != nil {
		return err
	}

	if err := p.drop.Drop(ctx, e.conn); err != nil {
		return err
	}
	if err := e.conn.Execute(ctx, "DROP TABLE "+sqltext.Identifier(p.table)); err != nil {
		return err
	}
	if err := e.conn.Execute(ctx, "ALTER TABLE "+sqltext.Identifier(tmp)+" RENAME TO "+sqltext.Identifier(p.table)); err != nil {
		return err
	}
	if err := p.recreate.Recreate(ctx, e.conn); err != nil {
		return err
	}
	if p.sequence != nil {
		if err := e.conn.Execute(ctx, "UPDATE sqlite_sequence SET seq = ? WHERE name = ?", *p.sequence, p.table); err != nil {
			return err
		}
	}

	if err := e.eachUpdater(func(u Updater) error {
		if cu, ok := u.(ColumnUpdater); ok {
			return cu.DropColumnReferences(ctx, e.conn, p.table, p.column)
		}
		return nil
	}); err != nil {
		return err
	}
	return e.tableChanged(ctx, p.table)
}

// tempName returns a name for the rebuild table that is not in use.
func (e *Engine) tempName(ctx context.Context, table string) (string, error) {
	name := table + e.tempSuffix
	taken, err := schema.ObjectExists(ctx, e.conn, name)
	if err != nil || !taken {
		return name, err
	}
	return table + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12], nil
}

// sequenceOf returns table's AUTOINCREMENT counter, nil when it has none.
func (e *Engine) sequenceOf(ctx context.Context, table string) (*int64, error) {
	exists, err := schema.TableExists(ctx, e.conn, "sqlite_sequence")
	if err != nil || !exists {
		return nil, err
	}
	v, err := e.conn.QuerySingleResult(ctx, "SELECT seq FROM sqlite_sequence WHERE name = ?",
		[]interface{}{table}, sqlutil.TypeInteger)
	if err != nil || v == nil {
		return nil, err
	}
	seq := v.(int64)
	return &seq, nil
}

func (e *Engine) checkForeignKeys(ctx context.Context) error {
	rows, err := e.conn.QueryResults(ctx, "PRAGMA foreign_key_check", nil, []sqlutil.ColumnType{sqlutil.TypeString}, 1)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		return errors.Validation("rebuild leaves a foreign key violation in %v", rows[0][0]).Err()
	}
	return nil
}

// hasInboundForeignKeys reports whether any table, table itself included,
// has a foreign key whose parent is table.
func hasInboundForeignKeys(ctx context.Context, q *sqlutil.Conn, table string) bool {
	tables, err := schema.Tables(ctx, q)
	if err != nil {
		return true
	}
	for _, t := range tables {
		n, err := q.QueryInt(ctx, `SELECT count(*) FROM pragma_foreign_key_list(?) WHERE "table" = ? COLLATE NOCASE`, t, table)
		if err != nil || n > 0 {
			return true
		}
	}
	return false
}
