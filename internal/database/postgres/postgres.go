// Package postgres is the PostgreSQL backend of VTApi, built on pgx.
//
// Datasets are schemas. The custom types (seqtype, inouttype, pstatus,
// cvmat, vtevent, pstate) and the VT_* helper functions live in the public
// schema; Bootstrap installs them from the embedded schema.sql.
//
// Importing the package registers the backend for postgres:// and
// postgresql:// connection strings.
package postgres

import (
	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/logger"
)

const backendName = "postgres"

func init() {
	database.Register(database.BackendPostgres, Backend{})
}

// Backend is the postgres factory registered with the database package.
type Backend struct{}

func (Backend) Name() string { return backendName }

func (Backend) NewConnection(info database.ConnInfo, log *logger.Logger) database.Connection {
	return NewConn(info, log)
}

// NewQueryBuilder returns a builder rendering PostgreSQL with $n
// placeholders. conn may be nil; the default schema is then "public".
func (Backend) NewQueryBuilder(conn database.Connection, defaultTable string, log *logger.Logger) database.QueryBuilder {
	schema := defaultSchema
	if conn != nil {
		schema = conn.DefaultSchema()
	}
	return database.NewBuilder(Dialect{}, defaultTable, schema, log)
}

func (Backend) NewResultSet(types *database.TypeCatalog, log *logger.Logger) database.ResultSet {
	return database.NewRowSet(types, log)
}
