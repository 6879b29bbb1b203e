package sqlite

import (
	"context"
	_ "embed"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/errs"
)

//go:embed public.sql
var publicSQL string

//go:embed dataset.sql
var datasetSQL string

// datasetTables lists the dataset tables children first.
var datasetTables = []string{"intervals", "tasks_seq", "processes", "tasks_prereq", "tasks", "sequences"}

// Bootstrap creates the public tables in the main file. It is idempotent.
func (c *Conn) Bootstrap(ctx context.Context) error {
	if c.conn == nil {
		return c.fail(database.ErrNotConnected(backendName))
	}
	if _, err := c.conn.ExecContext(ctx, publicSQL); err != nil {
		return c.fail(mapError(err, "bootstrap failed"))
	}
	c.log.Info("public schema installed")
	return nil
}

// CreateNamespace creates the file of dataset name with empty dataset
// tables and attaches it.
func (c *Conn) CreateNamespace(ctx context.Context, name string) error {
	if c.conn == nil {
		return c.fail(database.ErrNotConnected(backendName))
	}
	if !namespaceName.MatchString(name) || name == publicSchema || name == mainSchema || name == tempSchema {
		return c.fail(errs.Newf(errs.ErrKindInvalidInput, "invalid dataset name %q", name))
	}
	path := c.FilePath(name)
	if _, err := os.Stat(path); err == nil {
		return c.fail(errs.Newf(errs.ErrKindQueryFailed, "dataset %q already exists", name))
	}

	if err := c.attachFile(ctx, name, path); err != nil {
		return c.fail(err)
	}
	ddl := strings.ReplaceAll(datasetSQL, "{{ns}}", Dialect{}.EscapeIdent(name))
	if _, err := c.conn.ExecContext(ctx, ddl); err != nil {
		_ = c.detach(ctx, name)
		_ = os.Remove(path)
		return c.fail(mapError(err, "failed to create dataset tables"))
	}
	c.log.With().Str("dataset", name).Logger().Info("dataset file created")
	return nil
}

// TruncateNamespace empties every dataset table and resets the id
// sequences.
func (c *Conn) TruncateNamespace(ctx context.Context, name string) error {
	if c.conn == nil {
		return c.fail(database.ErrNotConnected(backendName))
	}
	if err := c.attach(ctx, name); err != nil {
		return c.fail(err)
	}
	ns := Dialect{}.EscapeIdent(name)
	var sb strings.Builder
	for _, t := range datasetTables {
		sb.WriteString("DELETE FROM " + ns + "." + Dialect{}.EscapeIdent(t) + ";\n")
	}
	sb.WriteString("DELETE FROM " + ns + ".sqlite_sequence;\n")
	if _, err := c.conn.ExecContext(ctx, sb.String()); err != nil {
		return c.fail(mapError(err, "failed to truncate dataset"))
	}
	return nil
}

// DropNamespace detaches dataset name and removes its file. A missing
// file is not an error.
func (c *Conn) DropNamespace(ctx context.Context, name string) error {
	if c.conn == nil {
		return c.fail(database.ErrNotConnected(backendName))
	}
	if !namespaceName.MatchString(name) || name == publicSchema {
		return c.fail(errs.Newf(errs.ErrKindInvalidInput, "invalid dataset name %q", name))
	}
	if err := c.detach(ctx, name); err != nil {
		return c.fail(err)
	}
	if err := os.Remove(c.FilePath(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return c.fail(errs.Wrap(errs.ErrKindPermissionDenied, "failed to remove dataset file", err))
	}
	c.log.With().Str("dataset", name).Logger().Info("dataset file removed")
	return nil
}

var (
	_ database.Provisioner  = (*Conn)(nil)
	_ database.Bootstrapper = (*Conn)(nil)
	_ database.TableLister  = (*Conn)(nil)
)
