package vtapi

import (
	"context"
	"path/filepath"

	"github.com/koustreak/vtapi/internal/config"
	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/errs"
	"github.com/koustreak/vtapi/internal/filestore"
	"github.com/koustreak/vtapi/internal/filestore/local"
	"github.com/koustreak/vtapi/internal/filestore/minio"
	"github.com/koustreak/vtapi/internal/logger"
	"github.com/koustreak/vtapi/internal/query"
)

// Context names the objects an entity works under. Entities copy their
// identifying columns into it when they move to a row, so children created
// afterwards inherit them.
type Context struct {
	Dataset         string
	DatasetLocation string
	Sequence        string
	Task            string
	Method          string
	Process         int
	// Selection is the table of the last entity positioned on a row.
	Selection string
}

// session is the part of Commons every derived copy shares.
type session struct {
	env   query.Env
	cfg   *config.Config
	store filestore.Store
}

// Commons carries the connection, the configuration and the current
// Context. Derive it before handing it to a child entity; the session is
// shared and the Context is copied.
type Commons struct {
	s       *session
	Context Context
}

func newCommons(env query.Env, cfg *config.Config) *Commons {
	c := &Commons{s: &session{env: env, cfg: cfg}}
	if cfg != nil {
		c.Context = Context{
			Dataset:  cfg.Dataset,
			Sequence: cfg.Sequence,
			Task:     cfg.Task,
			Method:   cfg.Method,
			Process:  cfg.Process,
		}
	}
	return c
}

// Derive returns a copy with its own Context.
func (c *Commons) Derive() *Commons {
	cp := *c
	return &cp
}

func (c *Commons) Env() query.Env { return c.s.env }

func (c *Commons) Conn() database.Connection { return c.s.env.Conn }

func (c *Commons) Log() *logger.Logger {
	if c.s.env.Log == nil {
		return logger.Nop()
	}
	return c.s.env.Log
}

func (c *Commons) Config() *config.Config { return c.s.cfg }

// DatasetsDir is the root of all sequence data.
func (c *Commons) DatasetsDir() string {
	if c.s.cfg == nil {
		return ""
	}
	return c.s.cfg.DatasetsDir
}

// ModulesDir holds the method executables.
func (c *Commons) ModulesDir() string {
	if c.s.cfg == nil {
		return ""
	}
	return c.s.cfg.ModulesDir
}

// requireDataset fails when no dataset was selected.
func (c *Commons) requireDataset() error {
	if c.Context.Dataset == "" {
		return errs.New(errs.ErrKindConfig, "dataset not specified")
	}
	return nil
}

// DataLocation joins the datasets directory with the dataset location and
// elem.
func (c *Commons) DataLocation(elem ...string) string {
	parts := append([]string{c.DatasetsDir(), c.Context.DatasetLocation}, elem...)
	return filepath.Join(parts...)
}

// Store returns the file store sequence data is read from, opening it on
// first use.
func (c *Commons) Store(ctx context.Context) (filestore.Store, error) {
	if c.s.store != nil {
		return c.s.store, nil
	}
	cfg := c.s.cfg
	if cfg == nil {
		return nil, errs.New(errs.ErrKindUninitialized, "no configuration for the file store")
	}
	var (
		st  filestore.Store
		err error
	)
	switch filestore.Provider(cfg.Filestore.Provider) {
	case filestore.ProviderMinIO:
		fc := filestore.MinIOConfig(cfg.Filestore.Endpoint, cfg.Filestore.AccessKey, cfg.Filestore.SecretKey, cfg.Filestore.Bucket)
		fc.UseSSL = cfg.Filestore.UseSSL
		fc.Region = cfg.Filestore.Region
		st, err = minio.New(ctx, fc)
	default:
		st, err = local.New(filestore.LocalConfig(cfg.DatasetsDir))
	}
	if err != nil {
		return nil, err
	}
	c.s.store = st
	return st, nil
}

// SetStore replaces the file store. The previous one is not closed.
func (c *Commons) SetStore(st filestore.Store) { c.s.store = st }

func (c *Commons) closeStore() error {
	if c.s.store == nil {
		return nil
	}
	err := c.s.store.Close()
	c.s.store = nil
	return err
}
