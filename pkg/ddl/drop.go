package ddl

import (
	"context"

	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/schema"
	"github.com/ha1tch/gpkgsql/pkg/sqltext"
)

// DropTable drops a table together with its catalog rows, the tables that
// depend on it, and the views and triggers elsewhere that name it. With
// ifExists a missing table is not an error.
func (e *Engine) DropTable(ctx context.Context, table string, ifExists bool) error {
	return e.run(ctx, KindDropCascade, table, func(ctx context.Context) (func(context.Context) error, error) {
		exists, err := schema.TableExists(ctx, e.conn, table)
		if err != nil {
			return nil, err
		}
		if !exists {
			if isView, _ := schema.ViewExists(ctx, e.conn, table); isView {
				return nil, errors.Validation("%s is a view, not a table", table).Err()
			}
			if ifExists {
				return nil, nil
			}
			return nil, errors.Wrapf(errors.SchemaNotFound(table).Err(), errors.ErrCodeValidation,
				"no such table: %s", table).Err()
		}
		return func(ctx context.Context) error {
			return e.dropTable(ctx, table, map[string]bool{})
		}, nil
	})
}

// dropTable runs inside the transaction. seen guards against dependency
// cycles between tables.
func (e *Engine) dropTable(ctx context.Context, table string, seen map[string]bool) error {
	seen[table] = true

	var dependents []string
	if err := e.eachUpdater(func(u Updater) error {
		td, ok := u.(TableDependencies)
		if !ok {
			return nil
		}
		names, err := td.DependentTables(ctx, e.conn, table)
		dependents = append(dependents, names...)
		return err
	}); err != nil {
		return err
	}
	for _, d := range dependents {
		if seen[d] {
			continue
		}
		if exists, err := schema.TableExists(ctx, e.conn, d); err != nil {
			return err
		} else if !exists {
			continue
		}
		if err := e.dropTable(ctx, d, seen); err != nil {
			return err
		}
	}

	deps, err := schema.Dependents(ctx, e.conn, table)
	if err != nil {
		return err
	}
	if err := deps.Drop(ctx, e.conn); err != nil {
		return err
	}
	if err := e.conn.Execute(ctx, "DROP TABLE "+sqltext.Identifier(table)); err != nil {
		return err
	}

	return e.eachUpdater(func(u Updater) error {
		return u.DropTableReferences(ctx, e.conn, table)
	})
}
