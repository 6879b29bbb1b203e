package mysql

import (
	"context"
	"database/sql"

	"github.com/go-sql-driver/mysql"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/database/sqlrows"
	"github.com/koustreak/vtapi/internal/logger"
)

const publicSchema = "public"

// Conn is a MySQL implementation of database.Connection. It pins one
// connection so transactions opened with START TRANSACTION span the
// statements that follow. It is not safe for concurrent use.
type Conn struct {
	info    database.ConnInfo
	log     *logger.Logger
	cfg     *mysql.Config
	db      *sql.DB
	conn    *sql.Conn
	types   *database.TypeCatalog
	lastErr string
}

// NewConn returns an unconnected Conn.
func NewConn(info database.ConnInfo, log *logger.Logger) *Conn {
	if log == nil {
		log = logger.Nop()
	}
	c := &Conn{
		info: info,
		log:  log.With().Str("backend", backendName).Logger(),
	}
	// a malformed DSN is reported again by Connect
	if cfg, err := buildConfig(info); err == nil {
		c.cfg = cfg
	}
	return c
}

// Database returns the database holding the public tables.
func (c *Conn) Database() string {
	if c.cfg == nil {
		return ""
	}
	return c.cfg.DBName
}

func (c *Conn) dialect() Dialect { return Dialect{Public: c.Database()} }

// --- database.Connection implementation ---

// Connect dials the server and pins one connection. Calling it on an open
// Conn is a no-op.
func (c *Conn) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	cfg, err := buildConfig(c.info)
	if err != nil {
		return c.fail(err)
	}
	db, err := buildPool(cfg)
	if err != nil {
		return c.fail(err)
	}

	if c.info.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.info.ConnectTimeout)
		defer cancel()
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return c.fail(mapError(err, "failed to connect"))
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return c.fail(mapError(err, "failed to connect"))
	}

	c.cfg = cfg
	c.db = db
	c.conn = conn
	c.types = newCatalog()
	c.lastErr = ""
	c.log.With().Str("addr", cfg.Addr).Str("database", cfg.DBName).Logger().Debug("connected")
	return nil
}

// Disconnect closes the pinned connection and the handle. It is
// idempotent.
func (c *Conn) Disconnect() {
	if c.conn == nil {
		return
	}
	_ = c.conn.Close()
	_ = c.db.Close()
	c.conn = nil
	c.db = nil
}

func (c *Conn) IsConnected(ctx context.Context) bool {
	if c.conn == nil {
		return false
	}
	return c.conn.PingContext(ctx) == nil
}

func (c *Conn) Execute(ctx context.Context, query string, params *database.Params) error {
	if err := c.check(query); err != nil {
		return err
	}
	c.log.Debugf("execute: %s", query)
	if _, err := c.conn.ExecContext(ctx, query, args(params)...); err != nil {
		return c.fail(mapError(err, "execute failed"))
	}
	c.lastErr = ""
	return nil
}

// Fetch runs a statement, buffers every row into rs and returns the row
// count.
func (c *Conn) Fetch(ctx context.Context, query string, params *database.Params, rs database.ResultSet) (int, error) {
	if err := c.check(query); err != nil {
		return -1, err
	}
	c.log.Debugf("fetch: %s", query)

	rows, err := c.conn.QueryContext(ctx, query, args(params)...)
	if err != nil {
		return -1, c.fail(mapError(err, "query failed"))
	}
	buf, err := sqlrows.Read(rows, c.types)
	if err != nil {
		return -1, c.fail(err)
	}
	if err := rs.NewResult(buf); err != nil {
		return -1, c.fail(err)
	}
	c.lastErr = ""
	return len(buf.Rows), nil
}

func (c *Conn) LastError() string { return c.lastErr }

func (c *Conn) Types() *database.TypeCatalog { return c.types }

func (c *Conn) DefaultSchema() string { return publicSchema }

// --- helpers ---

func (c *Conn) check(query string) error {
	if c.conn == nil {
		return c.fail(database.ErrNotConnected(backendName))
	}
	if database.IsInvalidQuery(query) {
		return c.fail(database.ErrNoQuery(query))
	}
	return nil
}

// fail records err as the last error and returns it.
func (c *Conn) fail(err error) error {
	c.lastErr = err.Error()
	c.log.With().Err(err).Logger().Debug("statement failed")
	return err
}

// newCatalog describes the column types MySQL reports for the VTApi
// tables. Driver type names are lowercased by sqlrows.
func newCatalog() *database.TypeCatalog {
	cat := database.NewTypeCatalog()
	str := func(name string) database.TypeDefinition {
		return database.TypeDefinition{Name: name, Category: database.CategoryString, Length: -1}
	}
	integer := func(name string, length int) database.TypeDefinition {
		return database.TypeDefinition{Name: name, Category: database.CategoryInt, Flags: database.FlagNumeric, Length: length}
	}
	float := func(name string, length int) database.TypeDefinition {
		return database.TypeDefinition{Name: name, Category: database.CategoryFloat, Flags: database.FlagNumeric, Length: length}
	}
	blob := func(name string) database.TypeDefinition {
		return database.TypeDefinition{Name: name, Category: database.CategoryBlob, Length: -1}
	}
	stamp := func(name string) database.TypeDefinition {
		return database.TypeDefinition{Name: name, Category: database.CategoryTimestamp, Length: -1}
	}
	defs := []database.TypeDefinition{
		str("varchar"), str("char"), str("text"), str("json"),
		integer("tinyint", 1), integer("smallint", 2), integer("mediumint", 4),
		integer("int", 4), integer("bigint", 8),
		float("float", 4), float("double", 8), float("decimal", -1),
		stamp("datetime"), stamp("timestamp"), stamp("date"),
		blob("blob"), blob("binary"), blob("varbinary"),
		{Name: "enum", Category: database.CategoryEnumOther, Flags: database.FlagUserDefined, Length: -1},
	}
	for i, def := range defs {
		cat.Add(uint32(i+1), def)
	}
	return cat
}

var _ database.Connection = (*Conn)(nil)
