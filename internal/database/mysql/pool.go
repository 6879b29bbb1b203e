package mysql

import (
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/errs"
)

const (
	defaultDatabase        = "vtapi"
	defaultConnMaxLifetime = 30 * time.Minute
)

// buildConfig parses the scheme-less DSN of info and applies the settings
// the backend relies on.
func buildConfig(info database.ConnInfo) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(info.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfig, "invalid mysql DSN", err)
	}
	if cfg.DBName == "" {
		cfg.DBName = defaultDatabase
	}
	// DATETIME columns scan into time.Time; dataset DDL runs as one batch
	cfg.ParseTime = true
	cfg.MultiStatements = true
	cfg.Loc = time.UTC
	if cfg.Timeout == 0 {
		cfg.Timeout = info.ConnectTimeout
	}
	return cfg, nil
}

// buildPool opens a handle limited to one connection; the Conn pins it.
func buildPool(cfg *mysql.Config) (*sql.DB, error) {
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfig, "failed to create mysql connector", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	return db, nil
}
