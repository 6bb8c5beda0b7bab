package ddl

import (
	"context"
	"strings"

	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/schema"
	"github.com/ha1tch/gpkgsql/pkg/sqltext"
)

// RenameTable renames a table and every catalog row, trigger and view that
// names it.
func (e *Engine) RenameTable(ctx context.Context, oldName, newName string) error {
	return e.run(ctx, KindRenameCascade, oldName, func(ctx context.Context) (func(context.Context) error, error) {
		current, err := e.validateRename(ctx, oldName, newName)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			return e.renameTable(ctx, current, newName)
		}, nil
	})
}

func (e *Engine) validateRename(ctx context.Context, oldName, newName string) (string, error) {
	if strings.TrimSpace(newName) == "" {
		return "", errors.Validation("rename of %s has no target name", oldName).Err()
	}
	info, err := e.lookupTable(ctx, oldName)
	if err != nil {
		return "", err
	}
	// A change of case only is allowed.
	if !strings.EqualFold(info.Name, newName) {
		taken, err := schema.ObjectExists(ctx, e.conn, newName)
		if err != nil {
			return "", err
		}
		if taken {
			return "", errors.Validation("cannot rename %s: %s already exists", info.Name, newName).Err()
		}
	}
	return info.Name, nil
}

func (e *Engine) renameTable(ctx context.Context, oldName, newName string) error {
	stmt := "ALTER TABLE " + sqltext.Identifier(oldName) + " RENAME TO " + sqltext.Identifier(newName)
	if err := e.conn.Execute(ctx, stmt); err != nil {
		return err
	}

	// SQLite rewrites table references itself; text that still carries
	// the old name, such as string literals compared against catalog
	// columns, is substituted here. Columns that share the table's name
	// are left alone.
	objects, err := schema.Objects(ctx, e.conn, "index", "view", "trigger")
	if err != nil {
		return err
	}
	stale := &schema.DependentSet{}
	for _, o := range objects {
		if o.SQL == "" {
			continue
		}
		sql, n := sqltext.ReplaceTable(o.SQL, oldName, newName, true)
		if n == 0 {
			continue
		}
		o.SQL = sql
		switch o.Type {
		case "index":
			stale.Indexes = append(stale.Indexes, o)
		case "view":
			stale.Views = append(stale.Views, o)
		case "trigger":
			stale.Triggers = append(stale.Triggers, o)
		}
	}
	if !stale.Empty() {
		e.logger.DDL().Debug("rewriting stale references", "table", newName,
			"indexes", len(stale.Indexes), "views", len(stale.Views), "triggers", len(stale.Triggers))
		if err := stale.Drop(ctx, e.conn); err != nil {
			return err
		}
		if err := stale.Recreate(ctx, e.conn); err != nil {
			return err
		}
	}

	return e.eachUpdater(func(u Updater) error {
		return u.RenameTableReferences(ctx, e.conn, oldName, newName)
	})
}
