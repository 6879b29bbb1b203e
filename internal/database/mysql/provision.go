package mysql

import (
	"context"
	_ "embed"
	"regexp"
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

// databaseName restricts dataset names to plain identifiers.
var databaseName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

func (c *Conn) validName(name string) error {
	if !databaseName.MatchString(name) || name == publicSchema || strings.EqualFold(name, c.Database()) {
		return errs.Newf(errs.ErrKindInvalidInput, "invalid dataset name %q", name)
	}
	return nil
}

// Bootstrap creates the public tables in the DSN database. It is
// idempotent.
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

// CreateNamespace creates the database of dataset name with empty
// dataset tables.
func (c *Conn) CreateNamespace(ctx context.Context, name string) error {
	if c.conn == nil {
		return c.fail(database.ErrNotConnected(backendName))
	}
	if err := c.validName(name); err != nil {
		return c.fail(err)
	}

	ns := c.dialect().EscapeIdent(name)
	if _, err := c.conn.ExecContext(ctx, "CREATE DATABASE "+ns); err != nil {
		return c.fail(mapError(err, "failed to create dataset "+name))
	}
	ddl := strings.ReplaceAll(datasetSQL, "{{ns}}", ns)
	if _, err := c.conn.ExecContext(ctx, ddl); err != nil {
		_, _ = c.conn.ExecContext(ctx, "DROP DATABASE IF EXISTS "+ns)
		return c.fail(mapError(err, "failed to create dataset tables"))
	}
	c.log.With().Str("dataset", name).Logger().Info("dataset database created")
	return nil
}

// TruncateNamespace empties every dataset table. TRUNCATE also resets
// the AUTO_INCREMENT counters.
func (c *Conn) TruncateNamespace(ctx context.Context, name string) error {
	if c.conn == nil {
		return c.fail(database.ErrNotConnected(backendName))
	}
	if err := c.validName(name); err != nil {
		return c.fail(err)
	}
	d := c.dialect()
	var sb strings.Builder
	sb.WriteString("SET FOREIGN_KEY_CHECKS = 0;\n")
	for _, t := range datasetTables {
		sb.WriteString("TRUNCATE TABLE " + d.EscapeIdent(name) + "." + d.EscapeIdent(t) + ";\n")
	}
	sb.WriteString("SET FOREIGN_KEY_CHECKS = 1;")
	if _, err := c.conn.ExecContext(ctx, sb.String()); err != nil {
		_, _ = c.conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 1")
		return c.fail(mapError(err, "failed to truncate dataset"))
	}
	return nil
}

// DropNamespace drops the database of dataset name. A missing database is
// not an error.
func (c *Conn) DropNamespace(ctx context.Context, name string) error {
	if c.conn == nil {
		return c.fail(database.ErrNotConnected(backendName))
	}
	if err := c.validName(name); err != nil {
		return c.fail(err)
	}
	if _, err := c.conn.ExecContext(ctx, "DROP DATABASE IF EXISTS "+c.dialect().EscapeIdent(name)); err != nil {
		return c.fail(mapError(err, "failed to drop dataset "+name))
	}
	c.log.With().Str("dataset", name).Logger().Info("dataset database dropped")
	return nil
}

// ListTables returns the base tables of namespace.
func (c *Conn) ListTables(ctx context.Context, namespace string) ([]string, error) {
	if c.conn == nil {
		return nil, database.ErrNotConnected(backendName)
	}
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ?
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	schema := c.dialect().MapSchema(namespace)
	rows, err := c.conn.QueryContext(ctx, q, schema)
	if err != nil {
		return nil, mapError(err, "failed to list tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, mapError(err, "failed to scan table name")
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating tables")
	}
	if len(tables) == 0 && !c.hasDatabase(ctx, schema) {
		return nil, errs.Newf(errs.ErrKindNotFound, "dataset %q does not exist", namespace)
	}
	return tables, nil
}

func (c *Conn) hasDatabase(ctx context.Context, name string) bool {
	const q = `SELECT COUNT(*) > 0 FROM information_schema.schemata WHERE schema_name = ?`
	var exists bool
	if err := c.conn.QueryRowContext(ctx, q, name).Scan(&exists); err != nil {
		return false
	}
	return exists
}

var (
	_ database.Provisioner  = (*Conn)(nil)
	_ database.Bootstrapper = (*Conn)(nil)
	_ database.TableLister  = (*Conn)(nil)
)
