package database

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/vtapi/internal/logger"
)

// Sentinels rendered in place of a statement or of one of its parts when
// the accumulated state cannot form valid SQL. They are logged at error
// level and are easy to detect by substring.
const (
	NoQuery  = "!NO_QUERY!"
	NoTable  = "!NO_TABLE!"
	NoSchema = "!NO_SCHEMA!"
	NoColumn = "!NO_COLUMN!"
)

// IsInvalidQuery reports whether q is or contains a builder sentinel.
func IsInvalidQuery(q string) bool {
	return q == "" || strings.Contains(q, NoQuery) || strings.Contains(q, NoTable) ||
		strings.Contains(q, NoSchema) || strings.Contains(q, NoColumn)
}

// Dialect supplies the backend-specific pieces of SQL rendering. Builder
// does everything else.
type Dialect interface {
	Name() string

	// EscapeIdent quotes one identifier.
	EscapeIdent(name string) string

	// EscapeLiteral quotes a string literal.
	EscapeLiteral(s string) string

	// Bind renders v as a placeholder or inline literal. n is the index v
	// will have in the rendered bundle when bound is true.
	Bind(v Value, n int) (text string, bound bool)

	// MapSchema translates a logical namespace into the backend's.
	MapSchema(schema string) string

	// SupportsArrays reports whether vector values bind as one array
	// parameter (col = ANY($n)) instead of being expanded into IN lists.
	SupportsArrays() bool

	// MemberAccess renders access to member of a composite column.
	MemberAccess(column, member string) (string, bool)

	// TimeRange renders a time range predicate over start (and end, if not
	// empty) against the bound bounds lo and hi.
	TimeRange(start, end, lo, hi, oper string) (string, bool)

	// Region renders a geometric predicate between column and box.
	Region(column, box, oper string) (string, bool)

	// EventFunction names the SQL function filtering interval events, or
	// returns "" when the backend has none.
	EventFunction() string

	// BeginStatement opens a transaction.
	BeginStatement() string

	// InsertedID tells how the generated value of column is read for a new
	// row: a suffix appended to the INSERT itself, or a followup statement
	// run right after it on the same connection.
	InsertedID(column string) (returning, followup string)
}

// validOps is the allowlist of comparison operators for WHERE clauses.
// Operators cannot be parameterized, so anything else is rejected.
var validOps = map[string]bool{
	"=":        true,
	"!=":       true,
	"<>":       true,
	"<":        true,
	">":        true,
	"<=":       true,
	">=":       true,
	"LIKE":     true,
	"ILIKE":    true,
	"NOT LIKE": true,
	"IN":       true,
	"NOT IN":   true,
	"&&":       true,
	"@>":       true,
	"<@":       true,
	"~=":       true,
}

var rangeOps = map[string]bool{"&&": true, "@>": true, "<@": true}

// normalizeOp upper-cases and validates oper; "" means "=".
func normalizeOp(oper string) (string, bool) {
	op := strings.ToUpper(strings.Join(strings.Fields(oper), " "))
	if op == "" {
		return "=", true
	}
	return op, validOps[op]
}

// mainItem is one projected column (SELECT) or one column=value pair
// (INSERT/UPDATE). paramID 0 marks a bare column reference.
type mainItem struct {
	key     TKey
	paramID int
}

// whereItem is one predicate. table is empty for free expressions that do
// not pull a table into the FROM list.
type whereItem struct {
	table  string
	hasTbl bool
	render func(r *renderer) string
}

type orderItem struct {
	key  string
	desc bool
}

// Builder implements QueryBuilder on top of a Dialect. Backend builders
// embed it.
type Builder struct {
	dialect       Dialect
	log           *logger.Logger
	defaultTable  string
	defaultSchema string
	schema        string

	mains  []mainItem
	wheres []whereItem
	order  []orderItem
	limit  int
	offset int

	values *Params
	bound  *Params
}

// NewBuilder returns a Builder rendering through d. defaultSchema is the
// connection's default namespace.
func NewBuilder(d Dialect, defaultTable, defaultSchema string, log *logger.Logger) *Builder {
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{
		dialect:       d,
		log:           log,
		defaultTable:  defaultTable,
		defaultSchema: defaultSchema,
		values:        NewParams(),
		bound:         NewParams(),
	}
}

// Dialect returns the dialect the builder renders with.
func (b *Builder) Dialect() Dialect { return b.dialect }

func (b *Builder) DefaultTable() string         { return b.defaultTable }
func (b *Builder) SetDefaultTable(table string) { b.defaultTable = table }

// SetSchema sets the namespace unqualified tables are resolved in.
func (b *Builder) SetSchema(schema string) { b.schema = schema }

// Params returns the bundle bound by the last rendered statement.
func (b *Builder) Params() *Params { return b.bound }

func (b *Builder) HasKeys() bool  { return len(b.mains) > 0 }
func (b *Builder) HasWhere() bool { return len(b.wheres) > 0 }

// Reset drops every key, predicate and bound value. The default table and
// schema survive.
func (b *Builder) Reset() {
	b.mains = nil
	b.wheres = nil
	b.order = nil
	b.limit = 0
	b.offset = 0
	b.values = NewParams()
	b.bound = NewParams()
}

// --- keys ---

// splitKey separates an optional table prefix from a column key. The
// prefix ends at the last '.' before any structural suffix.
func splitKey(key string) (table, column string) {
	ident := key
	if i := strings.IndexAny(ident, "[:(,"); i >= 0 {
		ident = ident[:i]
	}
	if i := strings.LastIndexByte(ident, '.'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return "", key
}

func (b *Builder) makeKey(key, from, typ string) TKey {
	table, column := splitKey(key)
	if from != "" {
		table = from
	}
	return TKey{Name: column, Type: typ, From: table}
}

// KeyFrom registers a bare projected column of table.
func (b *Builder) KeyFrom(table, column string) bool {
	if column == "" {
		b.log.Error("query builder: empty column in KeyFrom")
		return false
	}
	b.mains = append(b.mains, mainItem{key: b.makeKey(column, table, "")})
	return true
}

func (b *Builder) keyValue(key, from string, v Value) bool {
	if key == "" {
		b.log.Errorf("query builder: empty key for %s value", v.Kind())
		return false
	}
	id := b.values.Add(v)
	b.mains = append(b.mains, mainItem{key: b.makeKey(key, from, v.Kind().String()), paramID: id})
	return true
}

func (b *Builder) KeyNull(key, from string) bool {
	return b.keyValue(key, from, NullValue())
}

func (b *Builder) KeyBool(key string, v bool, from string) bool {
	return b.keyValue(key, from, BoolValue(v))
}

func (b *Builder) KeyChar(key string, v byte, from string) bool {
	return b.keyValue(key, from, CharValue(v))
}

func (b *Builder) KeyInt(key string, v int32, from string) bool {
	return b.keyValue(key, from, IntValue(v))
}

func (b *Builder) KeyInt64(key string, v int64, from string) bool {
	return b.keyValue(key, from, Int64Value(v))
}

func (b *Builder) KeyFloat(key string, v float32, from string) bool {
	return b.keyValue(key, from, FloatValue(v))
}

func (b *Builder) KeyFloat64(key string, v float64, from string) bool {
	return b.keyValue(key, from, Float64Value(v))
}

func (b *Builder) KeyString(key, v, from string) bool {
	return b.keyValue(key, from, StringValue(v))
}

func (b *Builder) KeyStringVector(key string, v []string, from string) bool {
	return b.keyValue(key, from, StringVectorValue(v))
}

func (b *Builder) KeyIntVector(key string, v []int32, from string) bool {
	return b.keyValue(key, from, IntVectorValue(v))
}

func (b *Builder) KeyFloatVector(key string, v []float64, from string) bool {
	return b.keyValue(key, from, FloatVectorValue(v))
}

func (b *Builder) KeyTimestamp(key string, v time.Time, from string) bool {
	return b.keyValue(key, from, TimestampValue(v))
}

func (b *Builder) KeyMat(key string, v Mat, from string) bool {
	return b.keyValue(key, from, MatValue(v))
}

func (b *Builder) KeyPoint(key string, v Point, from string) bool {
	return b.keyValue(key, from, PointValue(v))
}

func (b *Builder) KeyBox(key string, v Box, from string) bool {
	return b.keyValue(key, from, BoxValue(v))
}

func (b *Builder) KeyIntervalEvent(key string, v IntervalEvent, from string) bool {
	return b.keyValue(key, from, IntervalEventValue(v))
}

func (b *Builder) KeyIntervalEventVector(key string, v []IntervalEvent, from string) bool {
	return b.keyValue(key, from, IntervalEventVectorValue(v))
}

func (b *Builder) KeyProcessStatus(key string, v ProcessStatus, from string) bool {
	if _, ok := ParseProcessStatus(string(v)); !ok {
		b.log.Errorf("query builder: %q is not a process status", v)
		return false
	}
	return b.keyValue(key, from, ProcessStatusValue(v))
}

func (b *Builder) KeyProcessState(key string, v ProcessState, from string) bool {
	return b.keyValue(key, from, ProcessStateValue(v))
}

func (b *Builder) KeyBlob(key string, v []byte, from string) bool {
	return b.keyValue(key, from, BlobValue(v))
}

func (b *Builder) KeySeqtype(key, v, from string) bool {
	st, ok := ParseSeqType(v)
	if !ok {
		b.log.Errorf("query builder: %q is not a sequence type", v)
		return false
	}
	return b.keyValue(key, from, SeqtypeValue(st))
}

func (b *Builder) KeyInouttype(key, v, from string) bool {
	io, ok := ParseInOutType(v)
	if !ok {
		b.log.Errorf("query builder: %q is not an in/out type", v)
		return false
	}
	return b.keyValue(key, from, InouttypeValue(io))
}

// --- predicates ---

func (b *Builder) addWhere(table string, hasTbl bool, render func(r *renderer) string) {
	b.wheres = append(b.wheres, whereItem{table: table, hasTbl: hasTbl, render: render})
}

func (b *Builder) whereValue(key, oper, from string, v Value) bool {
	if key == "" {
		b.log.Errorf("query builder: empty key for %s predicate", v.Kind())
		return false
	}
	op, ok := normalizeOp(oper)
	if !ok {
		b.log.Errorf("query builder: unsupported WHERE operator %q", oper)
		return false
	}
	k := b.makeKey(key, from, v.Kind().String())
	id := b.values.Add(v)
	b.addWhere(k.From, true, func(r *renderer) string {
		return r.comparison(k, op, id)
	})
	return true
}

func (b *Builder) WhereBool(key string, v bool, oper, from string) bool {
	return b.whereValue(key, oper, from, BoolValue(v))
}

func (b *Builder) WhereInt(key string, v int32, oper, from string) bool {
	return b.whereValue(key, oper, from, IntValue(v))
}

func (b *Builder) WhereInt64(key string, v int64, oper, from string) bool {
	return b.whereValue(key, oper, from, Int64Value(v))
}

func (b *Builder) WhereFloat(key string, v float32, oper, from string) bool {
	return b.whereValue(key, oper, from, FloatValue(v))
}

func (b *Builder) WhereFloat64(key string, v float64, oper, from string) bool {
	return b.whereValue(key, oper, from, Float64Value(v))
}

func (b *Builder) WhereString(key, v, oper, from string) bool {
	return b.whereValue(key, oper, from, StringValue(v))
}

func (b *Builder) WhereStringVector(key string, v []string, oper, from string) bool {
	return b.whereValue(key, oper, from, StringVectorValue(v))
}

func (b *Builder) WhereIntVector(key string, v []int32, oper, from string) bool {
	return b.whereValue(key, oper, from, IntVectorValue(v))
}

func (b *Builder) WhereFloatVector(key string, v []float64, oper, from string) bool {
	return b.whereValue(key, oper, from, FloatVectorValue(v))
}

func (b *Builder) WhereTimestamp(key string, v time.Time, oper, from string) bool {
	return b.whereValue(key, oper, from, TimestampValue(v))
}

func (b *Builder) WhereProcessStatus(key string, v ProcessStatus, oper, from string) bool {
	if _, ok := ParseProcessStatus(string(v)); !ok {
		b.log.Errorf("query builder: %q is not a process status", v)
		return false
	}
	return b.whereValue(key, oper, from, ProcessStatusValue(v))
}

func (b *Builder) WhereSeqtype(key, v, oper, from string) bool {
	st, ok := ParseSeqType(v)
	if !ok {
		b.log.Errorf("query builder: %q is not a sequence type", v)
		return false
	}
	return b.whereValue(key, oper, from, SeqtypeValue(st))
}

func (b *Builder) WhereInouttype(key, v, oper, from string) bool {
	io, ok := ParseInOutType(v)
	if !ok {
		b.log.Errorf("query builder: %q is not an in/out type", v)
		return false
	}
	return b.whereValue(key, oper, from, InouttypeValue(io))
}

// WhereNull registers col IS NULL, or IS NOT NULL when isNull is false.
func (b *Builder) WhereNull(key string, isNull bool, from string) bool {
	if key == "" {
		return false
	}
	k := b.makeKey(key, from, "")
	b.addWhere(k.From, true, func(r *renderer) string {
		if isNull {
			return r.column(k) + " IS NULL"
		}
		return r.column(k) + " IS NOT NULL"
	})
	return true
}

// WhereExpression registers a predicate over a raw SQL expression. expr is
// trusted; value is escaped as a literal. With an empty operator and value
// the expression stands on its own.
func (b *Builder) WhereExpression(expr, value, oper string) bool {
	if strings.TrimSpace(expr) == "" {
		return false
	}
	if oper == "" && value == "" {
		b.addWhere("", false, func(*renderer) string { return "(" + expr + ")" })
		return true
	}
	op, ok := normalizeOp(oper)
	if !ok {
		b.log.Errorf("query builder: unsupported WHERE operator %q", oper)
		return false
	}
	b.addWhere("", false, func(r *renderer) string {
		return expr + " " + op + " " + r.b.dialect.EscapeLiteral(value)
	})
	return true
}

// WhereTimeRange registers a predicate between the [keyStart, keyEnd]
// range of a row and [t1, t2]. oper is && (overlap, the default), @> (row
// contains) or <@ (row contained). With no keyEnd, keyStart must lie in
// [t1, t2].
func (b *Builder) WhereTimeRange(keyStart, keyEnd string, t1, t2 time.Time, oper, from string) bool {
	if keyStart == "" {
		return false
	}
	if oper == "" {
		oper = "&&"
	}
	if !rangeOps[oper] {
		b.log.Errorf("query builder: unsupported time range operator %q", oper)
		return false
	}
	if t2.Before(t1) {
		t1, t2 = t2, t1
	}
	ks := b.makeKey(keyStart, from, "timestamp")
	var ke TKey
	if keyEnd != "" {
		ke = b.makeKey(keyEnd, from, "timestamp")
	}
	lo := b.values.Add(TimestampValue(t1))
	hi := b.values.Add(TimestampValue(t2))
	b.addWhere(ks.From, true, func(r *renderer) string {
		end := ""
		if ke.Name != "" {
			end = r.column(ke)
		}
		expr, ok := r.b.dialect.TimeRange(r.column(ks), end, r.bind(lo), r.bind(hi), oper)
		if !ok {
			return r.unsupported("time range")
		}
		return expr
	})
	return true
}

// WhereRegion registers a geometric predicate between a box column and
// region. oper is && (default), @>, <@ or ~=.
func (b *Builder) WhereRegion(key string, region Box, oper, from string) bool {
	if key == "" {
		return false
	}
	if oper == "" {
		oper = "&&"
	}
	if !rangeOps[oper] && oper != "~=" {
		b.log.Errorf("query builder: unsupported region operator %q", oper)
		return false
	}
	if _, ok := b.dialect.Region("c", "r", oper); !ok {
		b.log.Error(ErrUnsupported(b.dialect.Name(), "region predicates").Error())
		return false
	}
	k := b.makeKey(key, from, "box")
	id := b.values.Add(BoxValue(region))
	b.addWhere(k.From, true, func(r *renderer) string {
		expr, _ := r.b.dialect.Region(r.column(k), r.bind(id), oper)
		return expr
	})
	return true
}

// WhereEvent registers an interval event filter over an event column.
func (b *Builder) WhereEvent(key string, filter EventFilter, from string) bool {
	if key == "" {
		return false
	}
	fn := b.dialect.EventFunction()
	if fn == "" {
		b.log.Error(ErrUnsupported(b.dialect.Name(), "event filters").Error())
		return false
	}
	k := b.makeKey(key, from, "vtevent")
	region := NullValue()
	if filter.Region != nil {
		region = BoxValue(*filter.Region)
	}
	ids := []int{
		b.values.Add(IntValue(filter.GroupID)),
		b.values.Add(IntValue(filter.ClassID)),
		b.values.Add(BoolValue(filter.RootOnly)),
		b.values.Add(region),
		b.values.Add(Float64Value(filter.MinScore)),
	}
	b.addWhere(k.From, true, func(r *renderer) string {
		args := []string{r.column(k)}
		for _, id := range ids {
			args = append(args, r.bind(id))
		}
		return fn + "(" + strings.Join(args, ", ") + ")"
	})
	return true
}

// --- ordering and paging ---

func (b *Builder) OrderBy(key string, desc bool) {
	if key != "" {
		b.order = append(b.order, orderItem{key: key, desc: desc})
	}
}

// Limit caps the rows SELECT returns; n <= 0 removes the cap.
func (b *Builder) Limit(n int) { b.limit = max(n, 0) }

// Offset skips n rows; n <= 0 removes the offset.
func (b *Builder) Offset(n int) { b.offset = max(n, 0) }

// --- rendering ---

// renderer carries the state of one statement rendering: the bundle being
// bound and whether columns are qualified with their table.
type renderer struct {
	b       *Builder
	out     *Params
	qualify bool
}

func (b *Builder) newRenderer(qualify bool) *renderer {
	return &renderer{b: b, out: NewParams(), qualify: qualify}
}

// finish publishes the bound bundle and returns q.
func (r *renderer) finish(q string) string {
	r.b.bound = r.out
	r.b.log.Debugf("%s query: %s", r.b.dialect.Name(), q)
	return q
}

func (r *renderer) bindValue(v Value) string {
	text, bound := r.b.dialect.Bind(v, r.out.Len()+1)
	if bound {
		r.out.Add(v)
	}
	return text
}

func (r *renderer) bind(id int) string {
	v, ok := r.b.values.Get(id)
	if !ok {
		return "NULL"
	}
	return r.bindValue(v)
}

func (r *renderer) unsupported(feature string) string {
	r.b.log.Error(ErrUnsupported(r.b.dialect.Name(), feature).Error())
	return NoColumn
}

// resolveTable applies the table precedence: the key's own table (explicit
// from, then dotted prefix) > the default table > NoTable.
func (r *renderer) resolveTable(table string) string {
	if table == "" {
		table = r.b.defaultTable
	}
	if table == "" {
		r.b.log.Error("query builder: no table for statement")
		return NoTable
	}
	return table
}

// table renders a schema-qualified table reference. Schema precedence:
// dotted table > builder schema > connection default > NoSchema.
func (r *renderer) table(table string) string {
	table = r.resolveTable(table)
	if table == NoTable {
		return NoTable
	}
	schema, name, dotted := strings.Cut(table, ".")
	if !dotted {
		name = table
		schema = r.b.schema
		if schema == "" {
			schema = r.b.defaultSchema
		}
	}
	if schema == "" {
		r.b.log.Errorf("query builder: no schema for table %q", name)
		return NoSchema + "." + r.b.dialect.EscapeIdent(name)
	}
	schema = r.b.dialect.MapSchema(schema)
	r.out.RequireNamespace(schema)
	return r.b.dialect.EscapeIdent(schema) + "." + r.b.dialect.EscapeIdent(name)
}

// bareTable is the table name without its schema, used to qualify columns.
func (r *renderer) bareTable(table string) string {
	table = r.resolveTable(table)
	if i := strings.LastIndexByte(table, '.'); i >= 0 {
		return table[i+1:]
	}
	return table
}

// column renders a column key. Its identifier part is escaped; an array
// subscript, cast or call suffix is kept verbatim and a "col,member" key
// becomes composite member access.
func (r *renderer) column(k TKey) string {
	name := k.Name
	suffix := ""
	if i := strings.IndexAny(name, "[:("); i >= 0 {
		name, suffix = name[:i], name[i:]
	}
	member := ""
	if i := strings.IndexByte(name, ','); i >= 0 {
		name, member = name[:i], name[i+1:]
	}
	if name == "" {
		r.b.log.Errorf("query builder: empty column in key %q", k.Name)
		return NoColumn
	}

	var col string
	if name == "*" {
		col = "*"
	} else {
		col = r.b.dialect.EscapeIdent(name)
	}
	if r.qualify {
		col = r.b.dialect.EscapeIdent(r.bareTable(k.From)) + "." + col
	}
	if member != "" {
		access, ok := r.b.dialect.MemberAccess(col, member)
		if !ok {
			return r.unsupported("composite member access")
		}
		col = access
	}
	return col + suffix
}

// alias is the result-set key of a projected column: the column name
// without table prefix, cut before any structural suffix.
func alias(k TKey) string {
	name := k.Name
	if i := strings.IndexAny(name, ":[(,"); i >= 0 {
		name = name[:i]
	}
	return name
}

func (r *renderer) comparison(k TKey, op string, id int) string {
	col := r.column(k)
	v, _ := r.b.values.Get(id)
	if op == "IN" || op == "NOT IN" {
		if v.Kind().IsVector() {
			if r.b.dialect.SupportsArrays() {
				if op == "IN" {
					return col + " = ANY(" + r.bind(id) + ")"
				}
				return col + " <> ALL(" + r.bind(id) + ")"
			}
			elems := v.Elements()
			if len(elems) == 0 {
				if op == "IN" {
					return "1 = 0"
				}
				return "1 = 1"
			}
			parts := make([]string, len(elems))
			for i, e := range elems {
				parts[i] = r.bindValue(e)
			}
			return col + " " + op + " (" + strings.Join(parts, ", ") + ")"
		}
		return col + " " + op + " (" + r.bind(id) + ")"
	}
	return col + " " + op + " " + r.bind(id)
}

func (r *renderer) where() string {
	if len(r.b.wheres) == 0 {
		return ""
	}
	parts := make([]string, len(r.b.wheres))
	for i, w := range r.b.wheres {
		parts[i] = w.render(r)
	}
	return " WHERE " + strings.Join(parts, " AND ")
}

// fromList renders the deduplicated tables of all keys and predicates,
// falling back to the default table.
func (r *renderer) fromList() string {
	var tables []string
	seen := map[string]bool{}
	add := func(t string) {
		ref := r.table(t)
		if !seen[ref] {
			seen[ref] = true
			tables = append(tables, ref)
		}
	}
	for _, m := range r.b.mains {
		add(m.key.From)
	}
	for _, w := range r.b.wheres {
		if w.hasTbl {
			add(w.table)
		}
	}
	if len(tables) == 0 {
		add("")
	}
	return strings.Join(tables, ", ")
}

// orderColumn renders an ORDER BY key, qualified with its table in
// statements that qualify columns. A key with no table of its own and no
// default table to fall back on stays bare.
func (r *renderer) orderColumn(key string) string {
	table, column := splitKey(key)
	col := r.b.dialect.EscapeIdent(column)
	if table == "" {
		table = r.b.defaultTable
	}
	if !r.qualify || table == "" {
		return col
	}
	return r.b.dialect.EscapeIdent(r.bareTable(table)) + "." + col
}

func (r *renderer) orderAndPage() string {
	var sb strings.Builder
	if len(r.b.order) > 0 {
		parts := make([]string, len(r.b.order))
		for i, o := range r.b.order {
			dir := "ASC"
			if o.desc {
				dir = "DESC"
			}
			parts[i] = r.orderColumn(o.key) + " " + dir
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}
	if r.b.limit > 0 {
		sb.WriteString(" LIMIT " + strconv.Itoa(r.b.limit))
	}
	if r.b.offset > 0 {
		sb.WriteString(" OFFSET " + strconv.Itoa(r.b.offset))
	}
	return sb.String()
}

// SelectQuery renders SELECT. With no keys it selects * from the default
// table; otherwise every key is projected under its alias.
func (b *Builder) SelectQuery() string {
	r := b.newRenderer(true)
	cols := "*"
	if len(b.mains) > 0 {
		parts := make([]string, len(b.mains))
		for i, m := range b.mains {
			col := r.column(m.key)
			if a := alias(m.key); a != "*" && a != "" {
				col += " AS " + b.dialect.EscapeIdent(a)
			}
			parts[i] = col
		}
		cols = strings.Join(parts, ", ")
	}
	from := r.fromList()
	return r.finish("SELECT " + cols + " FROM " + from + r.where() + r.orderAndPage())
}

// CountQuery renders SELECT COUNT(*) over the same FROM and WHERE as
// SelectQuery.
func (b *Builder) CountQuery() string {
	r := b.newRenderer(true)
	from := r.fromList()
	return r.finish("SELECT COUNT(*) FROM " + from + r.where())
}

func (b *Builder) valued() []mainItem {
	var out []mainItem
	for _, m := range b.mains {
		if m.paramID > 0 {
			out = append(out, m)
		}
	}
	return out
}

// InsertQuery renders INSERT into the table of its keys. It returns NoQuery
// when no value was set or the keys belong to different tables.
func (b *Builder) InsertQuery() string {
	items := b.valued()
	if len(items) == 0 {
		b.log.Error("query builder: INSERT without values")
		b.bound = NewParams()
		return NoQuery
	}
	target, ok := b.targetTable("INSERT", keyTables(items))
	if !ok {
		b.bound = NewParams()
		return NoQuery
	}
	r := b.newRenderer(false)
	table := r.table(target)
	cols := make([]string, len(items))
	vals := make([]string, len(items))
	for i, m := range items {
		cols[i] = r.column(m.key)
		vals[i] = r.bind(m.paramID)
	}
	return r.finish(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(vals, ", ")))
}

// UpdateQuery renders UPDATE. It returns NoQuery when no value was set, the
// values belong to different tables or no predicate narrows the rows.
func (b *Builder) UpdateQuery() string {
	items := b.valued()
	if len(items) == 0 {
		b.log.Error("query builder: UPDATE without values")
		b.bound = NewParams()
		return NoQuery
	}
	if len(b.wheres) == 0 {
		b.log.Error("query builder: UPDATE without WHERE clause")
		b.bound = NewParams()
		return NoQuery
	}
	target, ok := b.targetTable("UPDATE", keyTables(items))
	if !ok {
		b.bound = NewParams()
		return NoQuery
	}
	r := b.newRenderer(false)
	table := r.table(target)
	sets := make([]string, len(items))
	for i, m := range items {
		sets[i] = r.column(m.key) + " = " + r.bind(m.paramID)
	}
	return r.finish("UPDATE " + table + " SET " + strings.Join(sets, ", ") + r.where())
}

// DeleteQuery renders DELETE from the table its predicates name, the
// default table when they name none. It returns NoQuery without a
// predicate or when the predicates name different tables.
func (b *Builder) DeleteQuery() string {
	if len(b.wheres) == 0 {
		b.log.Error("query builder: DELETE without WHERE clause")
		b.bound = NewParams()
		return NoQuery
	}
	var tables []string
	for _, w := range b.wheres {
		if w.hasTbl {
			tables = append(tables, w.table)
		}
	}
	target, ok := b.targetTable("DELETE", tables)
	if !ok {
		b.bound = NewParams()
		return NoQuery
	}
	r := b.newRenderer(false)
	return r.finish("DELETE FROM " + r.table(target) + r.where())
}

func keyTables(items []mainItem) []string {
	tables := make([]string, len(items))
	for i, m := range items {
		tables[i] = m.key.From
	}
	return tables
}

// targetTable picks the one table a mutation touches. Items without a
// table stand for the default table; items naming two different tables
// cannot be rendered as a single-table statement.
func (b *Builder) targetTable(stmt string, tables []string) (string, bool) {
	target := ""
	for _, t := range tables {
		if t == "" {
			t = b.defaultTable
		}
		if t == "" {
			continue
		}
		if target == "" {
			target = t
			continue
		}
		if t != target {
			b.log.Errorf("query builder: %s spans tables %q and %q", stmt, target, t)
			return "", false
		}
	}
	return target, true
}

// InsertReturningQuery renders INSERT so that the generated value of
// column for the new row can be read back. followup is empty when the
// INSERT itself returns it.
func (b *Builder) InsertReturningQuery(column string) (insert, followup string) {
	q := b.InsertQuery()
	if IsInvalidQuery(q) {
		return q, ""
	}
	if column == "" {
		b.log.Error("query builder: empty returning column")
		b.bound = NewParams()
		return NoQuery, ""
	}
	returning, followup := b.dialect.InsertedID(column)
	return q + returning, followup
}

func (b *Builder) BeginQuery() string    { return b.dialect.BeginStatement() }
func (b *Builder) CommitQuery() string   { return "COMMIT" }
func (b *Builder) RollbackQuery() string { return "ROLLBACK" }

// FunctionQuery renders SELECT fn('arg1', 'arg2', ...) with every argument
// escaped as a literal.
func (b *Builder) FunctionQuery(fn string, args ...string) string {
	if !isFunctionName(fn) {
		b.log.Errorf("query builder: invalid function name %q", fn)
		b.bound = NewParams()
		return NoQuery
	}
	lits := make([]string, len(args))
	for i, a := range args {
		lits[i] = b.dialect.EscapeLiteral(a)
	}
	b.bound = NewParams()
	return "SELECT " + fn + "(" + strings.Join(lits, ", ") + ")"
}

func isFunctionName(fn string) bool {
	if fn == "" {
		return false
	}
	for _, c := range fn {
		if c != '_' && c != '.' && (c < '0' || c > '9') && (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

// ComparisonTimeRange renders a time range predicate with plain
// comparisons, for backends without range types. lo always precedes hi in
// the text so positional placeholders bind in order.
func ComparisonTimeRange(start, end, lo, hi, oper string) string {
	if end == "" {
		return "(" + start + " >= " + lo + " AND " + start + " <= " + hi + ")"
	}
	switch oper {
	case "@>":
		return "(" + start + " <= " + lo + " AND " + end + " >= " + hi + ")"
	case "<@":
		return "(" + start + " >= " + lo + " AND " + end + " <= " + hi + ")"
	default:
		return "(" + end + " >= " + lo + " AND " + start + " <= " + hi + ")"
	}
}

var _ QueryBuilder = (*Builder)(nil)
