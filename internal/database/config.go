package database

import (
	"strings"
	"time"

	"github.com/koustreak/vtapi/internal/errs"
)

// Backend tags parsed from connection strings.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMySQL    = "mysql"
)

// ConnInfo is a parsed connection string.
type ConnInfo struct {
	// Backend is the tag selecting the backend (e.g. BackendPostgres).
	Backend string

	// Raw is the connection string as configured.
	Raw string

	// DSN is what the driver receives: the URI for Postgres, the
	// scheme-less DSN for MySQL, the folder for SQLite.
	DSN string

	// ConnectTimeout bounds the handshake.
	ConnectTimeout time.Duration
}

const defaultConnectTimeout = 10 * time.Second

// ParseConnInfo selects the backend from the connection string's scheme:
// postgres:// and postgresql:// pick Postgres, mysql:// MySQL, sqlite://
// or a bare folder path SQLite.
func ParseConnInfo(conn string) (ConnInfo, error) {
	conn = strings.TrimSpace(conn)
	info := ConnInfo{Raw: conn, ConnectTimeout: defaultConnectTimeout}
	if conn == "" {
		return info, errs.New(errs.ErrKindConfig, "connection string is empty")
	}

	scheme, rest, hasScheme := strings.Cut(conn, "://")
	if !hasScheme {
		info.Backend = BackendSQLite
		info.DSN = conn
		return info, nil
	}

	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		info.Backend = BackendPostgres
		info.DSN = conn
	case "mysql":
		info.Backend = BackendMySQL
		info.DSN = rest
	case "sqlite", "sqlite3":
		info.Backend = BackendSQLite
		info.DSN = rest
	default:
		return info, errs.Newf(errs.ErrKindConfig, "unknown backend scheme %q", scheme)
	}
	if info.DSN == "" {
		return info, errs.Newf(errs.ErrKindConfig, "connection string %q has no target", conn)
	}
	return info, nil
}
