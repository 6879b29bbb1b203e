package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/database/sqlrows"
	"github.com/koustreak/vtapi/internal/errs"
	"github.com/koustreak/vtapi/internal/logger"
)

const (
	publicSchema = "public"
	mainSchema   = "main"
	tempSchema   = "temp"

	filePrefix = "vtapi_"
	fileSuffix = ".db"

	// connection pragmas; busy_timeout is in milliseconds
	pragmas = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
)

// namespaceName restricts dataset names to what is safe both as an
// attach alias and inside a file name.
var namespaceName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var (
	// qualifier matches "ns". and ns. prefixes in a statement.
	qualifier     = regexp.MustCompile(`(?:"([A-Za-z_][A-Za-z0-9_]*)"|\b([A-Za-z_][A-Za-z0-9_]*))\s*\.`)
	stringLiteral = regexp.MustCompile(`'(?:[^']|'')*'`)
)

// Conn is a SQLite implementation of database.Connection. It pins one
// connection of the pool so attached dataset files stay attached. It is
// not safe for concurrent use.
type Conn struct {
	info     database.ConnInfo
	log      *logger.Logger
	dir      string
	db       *sql.DB
	conn     *sql.Conn
	types    *database.TypeCatalog
	attached map[string]bool
	lastErr  string
}

// NewConn returns an unconnected Conn. info.DSN is the data folder.
func NewConn(info database.ConnInfo, log *logger.Logger) *Conn {
	if log == nil {
		log = logger.Nop()
	}
	return &Conn{
		info:     info,
		log:      log.With().Str("backend", backendName).Logger(),
		dir:      info.DSN,
		attached: map[string]bool{},
	}
}

// FilePath returns the file backing namespace ns.
func (c *Conn) FilePath(ns string) string {
	if ns == publicSchema || ns == mainSchema {
		ns = publicSchema
	}
	return filepath.Join(c.dir, filePrefix+ns+fileSuffix)
}

// --- database.Connection implementation ---

// Connect opens the public file inside the data folder, creating the file
// but not the folder. Calling it on an open Conn is a no-op.
func (c *Conn) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	st, err := os.Stat(c.dir)
	if err != nil || !st.IsDir() {
		return c.fail(errs.Newf(errs.ErrKindConfig, "sqlite data folder %q does not exist", c.dir))
	}

	db, err := sql.Open("sqlite", c.FilePath(publicSchema)+pragmas)
	if err != nil {
		return c.fail(mapError(err, "failed to open database"))
	}
	db.SetMaxOpenConns(1)

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

	c.db = db
	c.conn = conn
	c.types = newCatalog()
	c.attached = map[string]bool{}
	c.lastErr = ""
	c.log.With().Str("folder", c.dir).Logger().Debug("connected")
	return nil
}

// Disconnect detaches every dataset and closes the files. It is
// idempotent.
func (c *Conn) Disconnect() {
	if c.conn == nil {
		return
	}
	_ = c.conn.Close()
	_ = c.db.Close()
	c.conn = nil
	c.db = nil
	c.attached = map[string]bool{}
}

// IsConnected reads the schema version of the main file.
func (c *Conn) IsConnected(ctx context.Context) bool {
	if c.conn == nil {
		return false
	}
	var v int64
	return c.conn.QueryRowContext(ctx, "PRAGMA schema_version").Scan(&v) == nil
}

// Execute attaches the datasets the statement needs and runs it.
func (c *Conn) Execute(ctx context.Context, query string, params *database.Params) error {
	if err := c.check(ctx, query, params); err != nil {
		return err
	}
	c.log.Debugf("execute: %s", query)
	if _, err := c.conn.ExecContext(ctx, query); err != nil {
		return c.fail(mapError(err, "execute failed"))
	}
	c.lastErr = ""
	return nil
}

// Fetch runs a statement, buffers every row into rs and returns the row
// count.
func (c *Conn) Fetch(ctx context.Context, query string, params *database.Params, rs database.ResultSet) (int, error) {
	if err := c.check(ctx, query, params); err != nil {
		return -1, err
	}
	c.log.Debugf("fetch: %s", query)

	rows, err := c.conn.QueryContext(ctx, query)
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

// ListTables returns the tables stored in the file of namespace.
func (c *Conn) ListTables(ctx context.Context, namespace string) ([]string, error) {
	if c.conn == nil {
		return nil, database.ErrNotConnected(backendName)
	}
	schema := Dialect{}.MapSchema(namespace)
	if err := c.attach(ctx, schema); err != nil {
		return nil, err
	}

	q := `SELECT name FROM ` + Dialect{}.EscapeIdent(schema) + `.sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`
	rows, err := c.conn.QueryContext(ctx, q)
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

// PrepareNamespaces attaches the files of the given datasets. SQLite
// refuses ATTACH inside a transaction, so batches call it before BEGIN.
func (c *Conn) PrepareNamespaces(ctx context.Context, namespaces ...string) error {
	if c.conn == nil {
		return c.fail(database.ErrNotConnected(backendName))
	}
	for _, ns := range namespaces {
		if err := c.attach(ctx, Dialect{}.MapSchema(ns)); err != nil {
			return c.fail(err)
		}
	}
	return nil
}

// IsAttached reports whether dataset ns is attached to the connection.
func (c *Conn) IsAttached(ns string) bool { return c.attached[ns] }

// --- helpers ---

func (c *Conn) check(ctx context.Context, query string, params *database.Params) error {
	if c.conn == nil {
		return c.fail(database.ErrNotConnected(backendName))
	}
	if database.IsInvalidQuery(query) {
		return c.fail(database.ErrNoQuery(query))
	}
	for _, ns := range params.Namespaces() {
		if err := c.attach(ctx, ns); err != nil {
			return c.fail(err)
		}
	}
	// raw statements name datasets only in their text; table qualifiers
	// match too, so only names backed by a dataset file are attached
	for _, ns := range referencedNamespaces(query) {
		if c.attached[ns] || ns == publicSchema || ns == mainSchema || ns == tempSchema {
			continue
		}
		path := c.FilePath(ns)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := c.attachFile(ctx, ns, path); err != nil {
			return c.fail(err)
		}
	}
	return nil
}

// referencedNamespaces lists the distinct qualifiers in query, ignoring
// string literals.
func referencedNamespaces(query string) []string {
	query = stringLiteral.ReplaceAllString(query, "''")
	var out []string
	seen := make(map[string]bool)
	for _, m := range qualifier.FindAllStringSubmatch(query, -1) {
		ns := m[1]
		if ns == "" {
			ns = m[2]
		}
		if !seen[ns] {
			seen[ns] = true
			out = append(out, ns)
		}
	}
	return out
}

// attach attaches the existing file of dataset ns once per connection.
func (c *Conn) attach(ctx context.Context, ns string) error {
	if ns == mainSchema || ns == tempSchema || c.attached[ns] {
		return nil
	}
	if !namespaceName.MatchString(ns) {
		return errs.Newf(errs.ErrKindInvalidInput, "invalid dataset name %q", ns)
	}
	path := c.FilePath(ns)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errs.Newf(errs.ErrKindNotFound, "dataset %q has no file %s", ns, path)
		}
		return errs.Wrap(errs.ErrKindConnectionFailed, "cannot stat dataset file", err)
	}
	return c.attachFile(ctx, ns, path)
}

func (c *Conn) attachFile(ctx context.Context, ns, path string) error {
	d := Dialect{}
	q := "ATTACH DATABASE " + d.EscapeLiteral(path) + " AS " + d.EscapeIdent(ns)
	if _, err := c.conn.ExecContext(ctx, q); err != nil {
		return mapError(err, "failed to attach dataset "+ns)
	}
	c.attached[ns] = true
	c.log.Debugf("attached %s", path)
	return nil
}

func (c *Conn) detach(ctx context.Context, ns string) error {
	if !c.attached[ns] {
		return nil
	}
	if _, err := c.conn.ExecContext(ctx, "DETACH DATABASE "+Dialect{}.EscapeIdent(ns)); err != nil {
		return mapError(err, "failed to detach dataset "+ns)
	}
	delete(c.attached, ns)
	return nil
}

// fail records err as the last error and returns it.
func (c *Conn) fail(err error) error {
	c.lastErr = err.Error()
	c.log.With().Err(err).Logger().Debug("statement failed")
	return err
}

// newCatalog describes the declared column types the VTApi tables use.
func newCatalog() *database.TypeCatalog {
	cat := database.NewTypeCatalog()
	defs := []database.TypeDefinition{
		{Name: "text", Category: database.CategoryString, Length: -1},
		{Name: "varchar", Category: database.CategoryString, Length: -1},
		{Name: "integer", Category: database.CategoryInt, Flags: database.FlagNumeric, Length: 8},
		{Name: "int", Category: database.CategoryInt, Flags: database.FlagNumeric, Length: 8},
		{Name: "real", Category: database.CategoryFloat, Flags: database.FlagNumeric, Length: 8},
		{Name: "boolean", Category: database.CategoryBool, Length: 1},
		{Name: "timestamp", Category: database.CategoryTimestamp, Length: -1},
		{Name: "blob", Category: database.CategoryBlob, Length: -1},
		{Name: "point", Category: database.CategoryGeoPoint, Flags: database.FlagGeometric, Length: -1},
		{Name: "box", Category: database.CategoryGeoBox, Flags: database.FlagGeometric, Length: -1},
	}
	for _, name := range database.UserTypeNames() {
		def, _ := database.UserType(name)
		defs = append(defs, def)
	}
	for i, def := range defs {
		cat.Add(uint32(i+1), def)
	}
	return cat
}

var (
	_ database.Connection        = (*Conn)(nil)
	_ database.NamespacePreparer = (*Conn)(nil)
)
