package ddl

import (
	"context"
	"strings"

	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/schema"
	"github.com/ha1tch/gpkgsql/pkg/sqltext"
)

// CopyTable creates to as an independent copy of from: same definition,
// same rows, its own indexes and triggers, and its own catalog rows.
// Tables that exist only for from, such as relation mapping tables, are
// copied along with it.
func (e *Engine) CopyTable(ctx context.Context, from, to string) error {
	return e.run(ctx, KindCopyTable, from, func(ctx context.Context) (func(context.Context) error, error) {
		source, err := e.validateCopy(ctx, from, to)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			return e.copyTable(ctx, source, to)
		}, nil
	})
}

func (e *Engine) validateCopy(ctx context.Context, from, to string) (*schema.Table, error) {
	if strings.TrimSpace(to) == "" {
		return nil, errors.Validation("copy of %s has no target name", from).Err()
	}
	info, err := e.lookupTable(ctx, from)
	if err != nil {
		return nil, err
	}
	taken, err := schema.ObjectExists(ctx, e.conn, to)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, errors.Validation("cannot copy %s: %s already exists", info.Name, to).Err()
	}
	if _, err := schema.ParseCreateTable(info.SQL); err != nil {
		return nil, err
	}
	return info, nil
}

// copyTable runs inside the transaction. It recurses into dependent
// tables.
func (e *Engine) copyTable(ctx context.Context, source *schema.Table, to string) error {
	from := source.Name
	ct, err := schema.ParseCreateTable(source.SQL)
	if err != nil {
		return err
	}
	if err := e.conn.Execute(ctx, ct.SQL(to)); err != nil {
		return err
	}

	cols := make([]string, len(source.Columns))
	for i, c := range source.Columns {
		cols[i] = sqltext.Identifier(c.Name)
	}
	list := strings.Join(cols, ", ")
	if err := e.conn.Execute(ctx, "INSERT INTO "+sqltext.Identifier(to)+" ("+list+") SELECT "+list+
		" FROM "+sqltext.Identifier(from)); err != nil {
		return err
	}

	if err := e.copyOwnObjects(ctx, from, to); err != nil {
		return err
	}

	var dependents []string
	if err := e.eachUpdater(func(u Updater) error {
		td, ok := u.(TableDependencies)
		if !ok {
			return nil
		}
		names, err := td.DependentTables(ctx, e.conn, from)
		dependents = append(dependents, names...)
		return err
	}); err != nil {
		return err
	}
	for _, d := range dependents {
		info, err := schema.Introspect(ctx, e.conn, d)
		if err != nil {
			return err
		}
		target := DerivedName(info.Name, from, to)
		if taken, err := schema.ObjectExists(ctx, e.conn, target); err != nil {
			return err
		} else if taken {
			return errors.Validation("cannot copy dependent table %s: %s already exists", info.Name, target).Err()
		}
		if err := e.copyTable(ctx, info, target); err != nil {
			return err
		}
	}

	return e.eachUpdater(func(u Updater) error {
		return u.DuplicateTableReferences(ctx, e.conn, from, to)
	})
}

// copyOwnObjects recreates the indexes and triggers defined on from for
// to, under derived names.
func (e *Engine) copyOwnObjects(ctx context.Context, from, to string) error {
	objects, err := schema.Objects(ctx, e.conn, "index", "trigger")
	if err != nil {
		return err
	}
	for _, o := range objects {
		if o.SQL == "" || !strings.EqualFold(o.TblName, from) {
			continue
		}
		name := DerivedName(o.Name, from, to)
		taken, err := schema.ObjectExists(ctx, e.conn, name)
		if err != nil {
			return err
		}
		if taken {
			return errors.Validation("cannot copy %s %s: %s already exists", o.Type, o.Name, name).Err()
		}
		stmt, ok := sqltext.RenameObject(o.SQL, name)
		if !ok {
			return errors.Unsupported("cannot copy %s %s: unrecognised definition", o.Type, o.Name).Err()
		}
		stmt, _ = sqltext.ReplaceTable(stmt, from, to, false)
		if err := e.conn.Execute(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
