package ddl

import (
	"context"
	"strings"

	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/schema"
	"github.com/ha1tch/gpkgsql/pkg/sqltext"
)

// AddColumn adds a column with SQLite's own ALTER TABLE ADD COLUMN and
// records the change in the catalog. def is the column definition, name
// first.
func (e *Engine) AddColumn(ctx context.Context, table, def string) error {
	return e.run(ctx, KindAddColumn, table, func(ctx context.Context) (func(context.Context) error, error) {
		toks := sqltext.Significant(def)
		if len(toks) == 0 {
			return nil, errors.Validation("ADD COLUMN on %s has no definition", table).Err()
		}
		column, ok := toks[0].Ident()
		if !ok {
			return nil, errors.Validation("malformed column definition %q", def).Err()
		}
		info, err := e.lookupTable(ctx, table)
		if err != nil {
			return nil, err
		}
		name := info.Name
		if exists, err := schema.ColumnExists(ctx, e.conn, name, column); err != nil {
			return nil, err
		} else if exists {
			return nil, errors.Validation("duplicate column name: %s.%s", name, column).Err()
		}

		return func(ctx context.Context) error {
			stmt := "ALTER TABLE " + sqltext.Identifier(name) + " ADD COLUMN " + def
			if err := e.conn.Execute(ctx, stmt); err != nil {
				return err
			}
			return e.tableChanged(ctx, name)
		}, nil
	})
}

// RenameColumn renames a column with SQLite's own ALTER TABLE RENAME
// COLUMN, which rewrites indexes, triggers and views, then renames the
// column in catalog rows.
func (e *Engine) RenameColumn(ctx context.Context, table, oldName, newName string) error {
	return e.run(ctx, KindRenameColumn, table, func(ctx context.Context) (func(context.Context) error, error) {
		if strings.TrimSpace(newName) == "" {
			return nil, errors.Validation("rename of %s.%s has no target name", table, oldName).Err()
		}
		info, err := e.lookupTable(ctx, table)
		if err != nil {
			return nil, err
		}
		name := info.Name
		col, ok := info.Column(oldName)
		if !ok {
			return nil, errors.Validation("no such column: %s.%s", name, oldName).Err()
		}
		if other, ok := info.Column(newName); ok && !strings.EqualFold(other.Name, col.Name) {
			return nil, errors.Validation("duplicate column name: %s.%s", name, newName).Err()
		}

		return func(ctx context.Context) error {
			stmt := "ALTER TABLE " + sqltext.Identifier(name) + " RENAME COLUMN " +
				sqltext.Identifier(col.Name) + " TO " + sqltext.Identifier(newName)
			if err := e.conn.Execute(ctx, stmt); err != nil {
				return err
			}
			if err := e.eachUpdater(func(u Updater) error {
				if cu, ok := u.(ColumnUpdater); ok {
					return cu.RenameColumnReferences(ctx, e.conn, name, col.Name, newName)
				}
				return nil
			}); err != nil {
				return err
			}
			return e.tableChanged(ctx, name)
		}, nil
	})
}

// lookupTable introspects table; a missing table is a ValidationError
// that still reports IsSchema.
func (e *Engine) lookupTable(ctx context.Context, table string) (*schema.Table, error) {
	info, err := schema.Introspect(ctx, e.conn, table)
	if err != nil {
		if errors.IsSchema(err) {
			return nil, errors.Wrapf(err, errors.ErrCodeValidation, "no such table: %s", table).Err()
		}
		return nil, err
	}
	return info, nil
}
