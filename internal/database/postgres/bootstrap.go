package postgres

import (
	"context"
	_ "embed"

	"github.com/koustreak/vtapi/internal/database"
)

//go:embed schema.sql
var schemaSQL string

// Bootstrap installs the public VTApi schema. The script is idempotent;
// after running it the type catalog is reloaded so the new types decode.
func (c *Conn) Bootstrap(ctx context.Context) error {
	if c.conn == nil {
		return c.fail(database.ErrNotConnected(backendName))
	}
	if _, err := c.conn.Exec(ctx, schemaSQL); err != nil {
		return c.fail(mapError(err, "bootstrap failed"))
	}
	for _, name := range enumTypes {
		dt, err := c.conn.LoadType(ctx, defaultSchema+"."+name)
		if err != nil {
			return c.fail(mapError(err, "failed to register "+name))
		}
		c.conn.TypeMap().RegisterType(dt)
	}
	types, err := loadCatalog(ctx, c.conn)
	if err != nil {
		return c.fail(err)
	}
	c.types = types
	c.log.Info("public schema installed")
	return nil
}

var _ database.Bootstrapper = (*Conn)(nil)
var _ database.TableLister = (*Conn)(nil)
