// Package vtapi is the entity layer over the VTApi schema: datasets,
// sequences, methods, tasks, processes and their interval outputs.
//
// Open a VTApi once per worker. Entities are row cursors created from its
// Commons; they share its connection and are not safe for concurrent use.
package vtapi

import (
	"context"

	"github.com/koustreak/vtapi/internal/config"
	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/errs"
	"github.com/koustreak/vtapi/internal/logger"
	"github.com/koustreak/vtapi/internal/query"

	_ "github.com/koustreak/vtapi/internal/database/mysql"    // mysql backend
	_ "github.com/koustreak/vtapi/internal/database/postgres" // postgres backend
	_ "github.com/koustreak/vtapi/internal/database/sqlite"   // sqlite backend
)

// VTApi owns the connection and the root Commons.
type VTApi struct {
	commons *Commons
	log     *logger.Logger
}

// New connects to the backend cfg.Connection selects. When cfg names a
// dataset its location is resolved so sequence data can be found.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*VTApi, error) {
	if cfg == nil {
		return nil, errs.New(errs.ErrKindConfig, "vtapi: nil config")
	}
	if log == nil {
		log = logger.Nop()
	}
	backend, info, err := database.Lookup(cfg.Connection)
	if err != nil {
		return nil, err
	}
	conn := backend.NewConnection(info, log)
	if err := conn.Connect(ctx); err != nil {
		log.ErrorWith("cannot connect", err, map[string]any{"backend": info.Backend})
		return nil, err
	}

	env := query.Env{Conn: conn, Backend: backend, Log: log}
	v := &VTApi{commons: newCommons(env, cfg), log: log}
	log.InfoWith("vtapi connected", map[string]any{"backend": backend.Name()})

	if cfg.Dataset != "" {
		if err := v.resolveDataset(ctx, cfg.Dataset); err != nil {
			log.With().Str("dataset", cfg.Dataset).Err(err).Logger().Warn("configured dataset not found")
		}
	}
	return v, nil
}

func (v *VTApi) resolveDataset(ctx context.Context, name string) error {
	ds := NewDataset(v.commons, name)
	ok, err := ds.Next(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Newf(errs.ErrKindNotFound, "dataset %q does not exist", name)
	}
	v.commons.Context.DatasetLocation = ds.Location()
	return nil
}

// Commons returns the root context. Entities derive from it.
func (v *VTApi) Commons() *Commons { return v.commons }

// Backend returns the tag of the connected backend.
func (v *VTApi) Backend() string { return v.commons.Env().Backend.Name() }

// Ping reports whether the connection is alive.
func (v *VTApi) Ping(ctx context.Context) bool {
	return v.commons.Conn().IsConnected(ctx)
}

// Bootstrap installs the public schema when the backend supports it.
func (v *VTApi) Bootstrap(ctx context.Context) error {
	b, ok := v.commons.Conn().(database.Bootstrapper)
	if !ok {
		return errs.Newf(errs.ErrKindUnsupported, "backend %s cannot bootstrap", v.Backend())
	}
	return b.Bootstrap(ctx)
}

// Tables lists the tables of namespace; "" means the public one.
func (v *VTApi) Tables(ctx context.Context, namespace string) ([]string, error) {
	l, ok := v.commons.Conn().(database.TableLister)
	if !ok {
		return nil, errs.Newf(errs.ErrKindUnsupported, "backend %s cannot list tables", v.Backend())
	}
	if namespace == "" {
		namespace = v.commons.Conn().DefaultSchema()
	}
	return l.ListTables(ctx, namespace)
}

// --- loaders ---

// LoadDatasets iterates the dataset called name, or every dataset.
func (v *VTApi) LoadDatasets(name string) *Dataset {
	return NewDataset(v.commons, name)
}

// LoadMethods iterates the method called name, or every method.
func (v *VTApi) LoadMethods(name string) *Method {
	return NewMethod(v.commons, name)
}

// --- lifecycle ---

// CreateDataset creates the dataset namespace with empty tables and
// registers it. location is relative to the datasets directory and
// defaults to name.
func (v *VTApi) CreateDataset(ctx context.Context, name, location, friendly, desc string) (*Dataset, error) {
	if err := requireName("dataset", name); err != nil {
		return nil, err
	}
	if location == "" {
		location = name
	}
	if err := createDataset(ctx, v.commons, name, location, friendly, desc); err != nil {
		return nil, err
	}
	v.log.InfoWith("dataset created", map[string]any{"dataset": name, "location": location})
	return NewDataset(v.commons, name), nil
}

// DeleteDataset drops the namespace and its registration.
func (v *VTApi) DeleteDataset(ctx context.Context, name string) error {
	if err := requireName("dataset", name); err != nil {
		return err
	}
	if err := dropDataset(ctx, v.commons, name); err != nil {
		return err
	}
	if v.commons.Context.Dataset == name {
		v.commons.Context = Context{}
	}
	v.log.InfoWith("dataset deleted", map[string]any{"dataset": name})
	return nil
}

// TruncateDataset empties every table of the dataset.
func (v *VTApi) TruncateDataset(ctx context.Context, name string) error {
	if err := requireName("dataset", name); err != nil {
		return err
	}
	return truncateDataset(ctx, v.commons, name)
}

// CreateMethod registers a method with its keys in one transaction.
func (v *VTApi) CreateMethod(ctx context.Context, name string, keys []MethodKeyDef, desc string) (*Method, error) {
	if err := requireName("method", name); err != nil {
		return nil, err
	}
	if err := createMethod(ctx, v.commons, name, keys, desc); err != nil {
		return nil, err
	}
	return NewMethod(v.commons, name), nil
}

// DeleteMethod removes a method and its keys.
func (v *VTApi) DeleteMethod(ctx context.Context, name string) error {
	if err := requireName("method", name); err != nil {
		return err
	}
	return deleteMethod(ctx, v.commons, name)
}

// Close releases the file store and the connection. It is idempotent.
func (v *VTApi) Close() error {
	err := v.commons.closeStore()
	v.commons.Conn().Disconnect()
	return err
}
