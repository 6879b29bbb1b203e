package vtapi

import (
	"context"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/database/wire"
	"github.com/koustreak/vtapi/internal/errs"
	"github.com/koustreak/vtapi/internal/query"
)

// Dataset, method and task lifecycle. Postgres runs the VT_* functions
// installed by its bootstrap; backends implementing database.Provisioner
// create namespaces themselves and the rows are written here.

func provisioner(c *Commons) (database.Provisioner, bool) {
	p, ok := c.Conn().(database.Provisioner)
	return p, ok
}

// inTransaction runs fn between BEGIN and COMMIT, rolling back when fn
// fails.
func inTransaction(ctx context.Context, c *Commons, namespaces []string, fn func() error) error {
	tx := query.NewTransaction(c.Env())
	if err := tx.Begin(ctx, namespaces...); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if rerr := tx.Rollback(ctx); rerr != nil {
			c.Log().ErrorWith("rollback failed", rerr, nil)
		}
		return err
	}
	return tx.Commit(ctx)
}

// --- datasets ---

func createDataset(ctx context.Context, c *Commons, name, location, friendly, desc string) error {
	p, ok := provisioner(c)
	if !ok {
		return query.Function(ctx, c.Env(), "VT_dataset_create", name, location, friendly, desc)
	}
	if err := p.CreateNamespace(ctx, name); err != nil {
		return err
	}
	ins := query.NewInsert(c.Env(), datasetsTable)
	ins.Builder.KeyString("dsname", name, "")
	ins.Builder.KeyString("dslocation", location, "")
	ins.Builder.KeyString("friendly_name", friendly, "")
	ins.Builder.KeyString("description", desc, "")
	if err := ins.Execute(ctx); err != nil {
		if derr := p.DropNamespace(ctx, name); derr != nil {
			c.Log().ErrorWith("cannot remove half-created dataset", derr, map[string]any{"dataset": name})
		}
		return err
	}
	return nil
}

func truncateDataset(ctx context.Context, c *Commons, name string) error {
	p, ok := provisioner(c)
	if !ok {
		return query.Function(ctx, c.Env(), "VT_dataset_truncate", name)
	}
	return p.TruncateNamespace(ctx, name)
}

func dropDataset(ctx context.Context, c *Commons, name string) error {
	p, ok := provisioner(c)
	if !ok {
		return query.Function(ctx, c.Env(), "VT_dataset_drop", name)
	}
	if err := p.DropNamespace(ctx, name); err != nil {
		return err
	}
	del := query.NewDelete(c.Env(), datasetsTable)
	del.Builder.WhereString("dsname", name, "=", "")
	return del.Execute(ctx)
}

// --- methods ---

func createMethod(ctx context.Context, c *Commons, name string, keys []MethodKeyDef, desc string) error {
	for _, k := range keys {
		if err := k.validate(); err != nil {
			return err
		}
	}
	return inTransaction(ctx, c, nil, func() error {
		if _, ok := provisioner(c); ok {
			ins := query.NewInsert(c.Env(), methodsTable)
			ins.Builder.KeyString("mtname", name, "")
			ins.Builder.KeyString("description", desc, "")
			if err := ins.Execute(ctx); err != nil {
				return err
			}
		} else if err := query.Function(ctx, c.Env(), "VT_method_add", name, desc); err != nil {
			return err
		}
		for _, k := range keys {
			if err := k.insert(ctx, c, name); err != nil {
				return err
			}
		}
		return nil
	})
}

func deleteMethod(ctx context.Context, c *Commons, name string) error {
	if _, ok := provisioner(c); !ok {
		return query.Function(ctx, c.Env(), "VT_method_delete", name)
	}
	return inTransaction(ctx, c, nil, func() error {
		for _, table := range []string{methodsKeysTable, methodsTable} {
			del := query.NewDelete(c.Env(), table)
			del.Builder.WhereString("mtname", name, "=", "")
			if err := del.Execute(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- tasks ---

func createTask(ctx context.Context, c *Commons, name, method, params, outputs string, prereqs []string) error {
	ds := c.Context.Dataset
	if _, ok := provisioner(c); !ok {
		elems := make([]*string, len(prereqs))
		for i := range prereqs {
			elems[i] = wire.Ptr(prereqs[i])
		}
		return query.Function(ctx, c.Env(), "VT_task_create", ds, name, method, params, outputs, wire.FormatArray(elems))
	}
	return inTransaction(ctx, c, []string{ds}, func() error {
		ins := query.NewInsert(c.Env(), tasksTable)
		ins.SetSchema(ds)
		ins.Builder.KeyString("taskname", name, "")
		ins.Builder.KeyString("mtname", method, "")
		ins.Builder.KeyString("params", params, "")
		ins.Builder.KeyString("outputs", outputs, "")
		if err := ins.Execute(ctx); err != nil {
			return err
		}
		for _, pre := range prereqs {
			ins := query.NewInsert(c.Env(), tasksPrereqTable)
			ins.SetSchema(ds)
			ins.Builder.KeyString("taskname", name, "")
			ins.Builder.KeyString("taskprereq", pre, "")
			if err := ins.Execute(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func deleteTask(ctx context.Context, c *Commons, name string) error {
	ds := c.Context.Dataset
	if _, ok := provisioner(c); !ok {
		return query.Function(ctx, c.Env(), "VT_task_delete", ds, name)
	}
	return inTransaction(ctx, c, []string{ds}, func() error {
		for _, table := range []string{intervalsTable, tasksTable} {
			del := query.NewDelete(c.Env(), table)
			del.SetSchema(ds)
			del.Builder.WhereString("taskname", name, "=", "")
			if err := del.Execute(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// requireName rejects an empty identifier argument.
func requireName(what, name string) error {
	if name == "" {
		return errs.Newf(errs.ErrKindInvalidInput, "%s not specified", what)
	}
	return nil
}
