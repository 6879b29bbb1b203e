// Package sqlite implements the VTApi backend on SQLite files.
//
// The connection string names a folder. The public tables live in
// vtapi_public.db inside it and every dataset is a separate
// vtapi_<dataset>.db file, attached under the dataset's name the first
// time a statement touches it. Custom types are stored as text and the
// composite-aware predicates run as Go functions registered with the
// driver.
package sqlite

import (
	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/logger"
)

const backendName = "sqlite"

func init() {
	database.Register(database.BackendSQLite, Backend{})
}

// Backend is the SQLite factory.
type Backend struct{}

func (Backend) Name() string { return backendName }

func (Backend) NewConnection(info database.ConnInfo, log *logger.Logger) database.Connection {
	return NewConn(info, log)
}

func (Backend) NewQueryBuilder(conn database.Connection, defaultTable string, log *logger.Logger) database.QueryBuilder {
	return database.NewBuilder(Dialect{}, defaultTable, publicSchema, log)
}

func (Backend) NewResultSet(types *database.TypeCatalog, log *logger.Logger) database.ResultSet {
	return database.NewRowSet(types, log)
}
