// Package mysql implements the VTApi backend on MySQL.
//
// The public tables live in the database named by the DSN and every
// dataset is a database of its own. MySQL has no composite or array
// types, so custom values travel as their text form and the predicates
// that look inside them (composite members, regions, event filters) are
// not available.
package mysql

import (
	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/logger"
)

const backendName = "mysql"

func init() {
	database.Register(database.BackendMySQL, Backend{})
}

// Backend is the MySQL factory.
type Backend struct{}

func (Backend) Name() string { return backendName }

func (Backend) NewConnection(info database.ConnInfo, log *logger.Logger) database.Connection {
	return NewConn(info, log)
}

// NewQueryBuilder maps the public namespace to the database of conn when
// it is a MySQL connection, and to the default database otherwise.
func (Backend) NewQueryBuilder(conn database.Connection, defaultTable string, log *logger.Logger) database.QueryBuilder {
	d := Dialect{Public: defaultDatabase}
	if c, ok := conn.(*Conn); ok && c.Database() != "" {
		d.Public = c.Database()
	}
	return database.NewBuilder(d, defaultTable, publicSchema, log)
}

func (Backend) NewResultSet(types *database.TypeCatalog, log *logger.Logger) database.ResultSet {
	return database.NewRowSet(types, log)
}
