package schema

import (
	"context"
	"strings"

	"github.com/ha1tch/gpkgsql/pkg/sqltext"
	"github.com/ha1tch/gpkgsql/pkg/sqlutil"
)

// DependentSet is the set of schema objects that must be dropped before a
// table is rebuilt and recreated after. Each list is in creation order.
type DependentSet struct {
	Indexes  []Object
	Views    []Object
	Triggers []Object
}

// Empty reports whether the set holds nothing.
func (d *DependentSet) Empty() bool {
	return len(d.Indexes) == 0 && len(d.Views) == 0 && len(d.Triggers) == 0
}

// All returns every object in recreation order.
func (d *DependentSet) All() []Object {
	out := make([]Object, 0, len(d.Indexes)+len(d.Views)+len(d.Triggers))
	out = append(out, d.Indexes...)
	out = append(out, d.Views...)
	return append(out, d.Triggers...)
}

// Dependents collects the objects depending on table: its explicit
// indexes, the triggers and views defined on it or naming it, views that
// name those views, and triggers on any captured view.
func Dependents(ctx context.Context, c *sqlutil.Conn, table string) (*DependentSet, error) {
	objects, err := Objects(ctx, c, "index", "view", "trigger")
	if err != nil {
		return nil, err
	}

	d := &DependentSet{}
	names := map[string]bool{strings.ToLower(table): true}
	taken := map[string]bool{}

	// Views may depend on views created later, so iterate until stable.
	for changed := true; changed; {
		changed = false
		for _, o := range objects {
			key := strings.ToLower(o.Name)
			if o.SQL == "" || taken[key] {
				continue
			}
			if !dependsOn(o, names) {
				continue
			}
			taken[key] = true
			changed = true
			switch o.Type {
			case "index":
				d.Indexes = append(d.Indexes, o)
			case "view":
				d.Views = append(d.Views, o)
				names[key] = true
			case "trigger":
				d.Triggers = append(d.Triggers, o)
			}
		}
	}

	d.sort(objects)
	return d, nil
}

func dependsOn(o Object, names map[string]bool) bool {
	if names[strings.ToLower(o.TblName)] {
		return true
	}
	if o.Type == "index" {
		return false
	}
	for name := range names {
		if sqltext.ReferencesTable(o.SQL, name) {
			return true
		}
	}
	return false
}

// sort restores creation order, which the fixed-point loop may disturb.
func (d *DependentSet) sort(all []Object) {
	pos := make(map[string]int, len(all))
	for i, o := range all {
		pos[strings.ToLower(o.Name)] = i
	}
	order := func(list []Object) {
		for i := 1; i < len(list); i++ {
			for j := i; j > 0 && pos[strings.ToLower(list[j].Name)] < pos[strings.ToLower(list[j-1].Name)]; j-- {
				list[j], list[j-1] = list[j-1], list[j]
			}
		}
	}
	order(d.Indexes)
	order(d.Views)
	order(d.Triggers)
}

// Drop removes the set: triggers, then views newest first, then indexes.
func (d *DependentSet) Drop(ctx context.Context, c *sqlutil.Conn) error {
	for _, t := range d.Triggers {
		if err := c.Execute(ctx, "DROP TRIGGER IF EXISTS "+sqltext.QuoteIdentifier(t.Name)); err != nil {
			return err
		}
	}
	for i := len(d.Views) - 1; i >= 0; i-- {
		if err := c.Execute(ctx, "DROP VIEW IF EXISTS "+sqltext.QuoteIdentifier(d.Views[i].Name)); err != nil {
			return err
		}
	}
	for _, ix := range d.Indexes {
		if err := c.Execute(ctx, "DROP INDEX IF EXISTS "+sqltext.QuoteIdentifier(ix.Name)); err != nil {
			return err
		}
	}
	return nil
}

// Recreate runs the saved statements: indexes, views, then triggers.
func (d *DependentSet) Recreate(ctx context.Context, c *sqlutil.Conn) error {
	for _, o := range d.All() {
		if err := c.Execute(ctx, o.SQL); err != nil {
			return err
		}
	}
	return nil
}

// Without returns a copy of the set minus the named objects.
func (d *DependentSet) Without(names ...string) *DependentSet {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[strings.ToLower(n)] = true
	}
	filter := func(list []Object) []Object {
		var out []Object
		for _, o := range list {
			if !skip[strings.ToLower(o.Name)] {
				out = append(out, o)
			}
		}
		return out
	}
	return &DependentSet{
		Indexes:  filter(d.Indexes),
		Views:    filter(d.Views),
		Triggers: filter(d.Triggers),
	}
}

// Replace returns a copy of the set with the named object's statement
// replaced.
func (d *DependentSet) Replace(name, sql string) *DependentSet {
	swap := func(list []Object) []Object {
		out := make([]Object, len(list))
		copy(out, list)
		for i := range out {
			if strings.EqualFold(out[i].Name, name) {
				out[i].SQL = sql
			}
		}
		return out
	}
	return &DependentSet{
		Indexes:  swap(d.Indexes),
		Views:    swap(d.Views),
		Triggers: swap(d.Triggers),
	}
}
