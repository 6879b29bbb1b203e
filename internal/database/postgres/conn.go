package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/errs"
	"github.com/koustreak/vtapi/internal/logger"
)

const defaultSchema = "public"

// enumTypes are registered with pgx on connect so enum columns decode to
// strings. Composite types are left unregistered and arrive as their text
// form, which the shared result set parses.
var enumTypes = []string{"seqtype", "inouttype", "pstatus"}

// Conn is a PostgreSQL implementation of database.Connection backed by a
// single pgx.Conn. It is not safe for concurrent use.
type Conn struct {
	info    database.ConnInfo
	log     *logger.Logger
	conn    *pgx.Conn
	types   *database.TypeCatalog
	lastErr string
}

// NewConn returns an unconnected Conn.
func NewConn(info database.ConnInfo, log *logger.Logger) *Conn {
	if log == nil {
		log = logger.Nop()
	}
	return &Conn{
		info: info,
		log:  log.With().Str("backend", backendName).Logger(),
	}
}

// --- database.Connection implementation ---

// Connect opens the connection, registers the VTApi enums and loads the
// type catalog. Calling it on an open Conn is a no-op.
func (c *Conn) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	cfg, err := pgx.ParseConfig(c.info.DSN)
	if err != nil {
		return c.fail(errs.Wrap(errs.ErrKindConfig, "invalid postgres connection string", err))
	}
	if c.info.ConnectTimeout > 0 {
		cfg.ConnectTimeout = c.info.ConnectTimeout
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return c.fail(mapError(err, "failed to connect"))
	}

	for _, name := range enumTypes {
		dt, err := conn.LoadType(ctx, defaultSchema+"."+name)
		if err != nil {
			c.log.Warnf("custom type %s not registered: %v", name, err)
			continue
		}
		conn.TypeMap().RegisterType(dt)
	}

	types, err := loadCatalog(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return c.fail(err)
	}
	if missing := types.MissingUserTypes(); len(missing) > 0 {
		c.log.Warnf("database lacks VTApi types %s; run bootstrap", strings.Join(missing, ", "))
	}

	c.conn = conn
	c.types = types
	c.lastErr = ""
	c.log.With().Str("host", cfg.Host).Str("database", cfg.Database).Int("types", types.Len()).
		Logger().Debug("connected")
	return nil
}

// Disconnect closes the connection. It is idempotent.
func (c *Conn) Disconnect() {
	if c.conn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.conn.Close(ctx)
	c.conn = nil
}

// IsConnected pings the server.
func (c *Conn) IsConnected(ctx context.Context) bool {
	if c.conn == nil || c.conn.IsClosed() {
		return false
	}
	return c.conn.Ping(ctx) == nil
}

// Execute runs a statement that returns no rows.
func (c *Conn) Execute(ctx context.Context, query string, params *database.Params) error {
	if err := c.check(query); err != nil {
		return err
	}
	c.log.Debugf("execute: %s", query)
	if _, err := c.conn.Exec(ctx, query, args(params)...); err != nil {
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

	rows, err := c.conn.Query(ctx, query, args(params)...)
	if err != nil {
		return -1, c.fail(mapError(err, "query failed"))
	}
	defer rows.Close()

	buf := &database.Buffer{}
	for _, fd := range rows.FieldDescriptions() {
		typ := ""
		if def, ok := c.types.Lookup(fd.DataTypeOID); ok {
			typ = def.Name
		}
		buf.Keys = append(buf.Keys, database.TKey{Name: fd.Name, Type: typ})
		buf.TypeIDs = append(buf.TypeIDs, fd.DataTypeOID)
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return -1, c.fail(mapError(err, "failed to read row"))
		}
		for i, v := range vals {
			vals[i] = normalize(v, buf.TypeIDs[i])
		}
		buf.Rows = append(buf.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return -1, c.fail(mapError(err, "error iterating rows"))
	}

	if err := rs.NewResult(buf); err != nil {
		return -1, c.fail(err)
	}
	c.lastErr = ""
	return len(buf.Rows), nil
}

func (c *Conn) LastError() string { return c.lastErr }

func (c *Conn) Types() *database.TypeCatalog { return c.types }

func (c *Conn) DefaultSchema() string { return defaultSchema }

// ListTables returns the base tables of schema namespace.
func (c *Conn) ListTables(ctx context.Context, namespace string) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type   = 'BASE TABLE'
		ORDER BY table_name`

	if c.conn == nil {
		return nil, database.ErrNotConnected(backendName)
	}
	rows, err := c.conn.Query(ctx, q, namespace)
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
	return tables, nil
}

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

// args converts the bound bundle into pgx arguments. Kinds bound with a
// text cast (see Dialect.Bind) are sent in their text form.
func args(params *database.Params) []any {
	vals := params.Values()
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = arg(v)
	}
	return out
}

func arg(v database.Value) any {
	switch d := v.Data().(type) {
	case nil:
		return nil
	case byte:
		return string([]byte{d})
	case time.Time:
		return d.UTC()
	case database.Point:
		return pgtype.Point{P: pgtype.Vec2{X: d.X, Y: d.Y}, Valid: true}
	case database.Box:
		return pgtype.Box{P: [2]pgtype.Vec2{{X: d.High.X, Y: d.High.Y}, {X: d.Low.X, Y: d.Low.Y}}, Valid: true}
	case []database.IntervalEvent:
		return database.FormatEventArray(d)
	case database.SeqType, database.InOutType, database.ProcessStatus,
		database.Mat, database.IntervalEvent, database.ProcessState:
		return database.FormatText(v)
	}
	return v.Data()
}

// normalize turns pgx decoded values into the forms database.RowSet reads.
func normalize(v any, oid uint32) any {
	switch d := v.(type) {
	case nil:
		return nil
	case pgtype.Point:
		if !d.Valid {
			return nil
		}
		return database.Point{X: d.P.X, Y: d.P.Y}
	case pgtype.Box:
		if !d.Valid {
			return nil
		}
		return database.Box{
			Low:  database.Point{X: d.P[1].X, Y: d.P[1].Y},
			High: database.Point{X: d.P[0].X, Y: d.P[0].Y},
		}.Normalize()
	case pgtype.Numeric:
		f, err := d.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case rune:
		if oid == pgtype.QCharOID {
			return string(d)
		}
		return d
	case []any:
		out := make([]any, len(d))
		for i, e := range d {
			out[i] = normalize(e, 0)
		}
		return out
	}
	return v
}

var _ database.Connection = (*Conn)(nil)
