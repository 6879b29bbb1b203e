package database

import (
	"context"
	"time"

	"github.com/koustreak/vtapi/internal/logger"
)

// Connection owns one live handle to a backend. All layers above this
// package talk only to this interface; they never import a backend package
// directly. A Connection is not safe for concurrent use.
type Connection interface {
	// Connect opens the native handle and loads the type catalog.
	Connect(ctx context.Context) error

	// Disconnect releases the native handle. It is idempotent.
	Disconnect()

	// IsConnected pings the backend.
	IsConnected(ctx context.Context) bool

	// Execute runs a statement that returns no rows.
	Execute(ctx context.Context, query string, params *Params) error

	// Fetch runs a statement that returns rows, binds the buffered result
	// into rs and returns the row count, or -1 on failure.
	Fetch(ctx context.Context, query string, params *Params, rs ResultSet) (int, error)

	// LastError returns the message of the last failed statement, or "".
	LastError() string

	// Types returns the catalog loaded on Connect.
	Types() *TypeCatalog

	// DefaultSchema is the namespace unqualified public tables live in.
	DefaultSchema() string
}

// Provisioner is implemented by connections that create dataset
// namespaces themselves instead of through server-side functions.
type Provisioner interface {
	CreateNamespace(ctx context.Context, name string) error
	TruncateNamespace(ctx context.Context, name string) error
	DropNamespace(ctx context.Context, name string) error
}

// Bootstrapper installs the public VTApi schema (custom types, the
// datasets and methods tables, helper functions) on an empty backend. It is
// a no-op when the schema already exists.
type Bootstrapper interface {
	Bootstrap(ctx context.Context) error
}

// NamespacePreparer is implemented by connections that must make a
// namespace available before a transaction touching it begins.
type NamespacePreparer interface {
	PrepareNamespaces(ctx context.Context, namespaces ...string) error
}

// TableLister lists the base tables of one namespace.
type TableLister interface {
	ListTables(ctx context.Context, namespace string) ([]string, error)
}

// QueryBuilder accumulates typed keys and predicates and renders them into
// one statement plus its parameter bundle.
//
// Key* methods register column=value pairs for INSERT/UPDATE; Where*
// methods register predicates. All of them return false when the key is
// empty or the value fails a domain check, in which case nothing is
// registered. The from argument overrides the table the key belongs to.
type QueryBuilder interface {
	DefaultTable() string
	SetDefaultTable(table string)
	SetSchema(schema string)

	KeyFrom(table, column string) bool
	KeyNull(key, from string) bool
	KeyBool(key string, v bool, from string) bool
	KeyChar(key string, v byte, from string) bool
	KeyInt(key string, v int32, from string) bool
	KeyInt64(key string, v int64, from string) bool
	KeyFloat(key string, v float32, from string) bool
	KeyFloat64(key string, v float64, from string) bool
	KeyString(key, v, from string) bool
	KeyStringVector(key string, v []string, from string) bool
	KeyIntVector(key string, v []int32, from string) bool
	KeyFloatVector(key string, v []float64, from string) bool
	KeyTimestamp(key string, v time.Time, from string) bool
	KeyMat(key string, v Mat, from string) bool
	KeyPoint(key string, v Point, from string) bool
	KeyBox(key string, v Box, from string) bool
	KeyIntervalEvent(key string, v IntervalEvent, from string) bool
	KeyIntervalEventVector(key string, v []IntervalEvent, from string) bool
	KeyProcessStatus(key string, v ProcessStatus, from string) bool
	KeyProcessState(key string, v ProcessState, from string) bool
	KeyBlob(key string, v []byte, from string) bool
	KeySeqtype(key, v, from string) bool
	KeyInouttype(key, v, from string) bool

	WhereBool(key string, v bool, oper, from string) bool
	WhereInt(key string, v int32, oper, from string) bool
	WhereInt64(key string, v int64, oper, from string) bool
	WhereFloat(key string, v float32, oper, from string) bool
	WhereFloat64(key string, v float64, oper, from string) bool
	WhereString(key, v, oper, from string) bool
	WhereStringVector(key string, v []string, oper, from string) bool
	WhereIntVector(key string, v []int32, oper, from string) bool
	WhereFloatVector(key string, v []float64, oper, from string) bool
	WhereTimestamp(key string, v time.Time, oper, from string) bool
	WhereProcessStatus(key string, v ProcessStatus, oper, from string) bool
	WhereSeqtype(key, v, oper, from string) bool
	WhereInouttype(key, v, oper, from string) bool
	WhereNull(key string, isNull bool, from string) bool
	WhereExpression(expr, value, oper string) bool
	WhereTimeRange(keyStart, keyEnd string, t1, t2 time.Time, oper, from string) bool
	WhereRegion(key string, region Box, oper, from string) bool
	WhereEvent(key string, filter EventFilter, from string) bool

	OrderBy(key string, desc bool)
	Limit(n int)
	Offset(n int)

	SelectQuery() string
	InsertQuery() string
	InsertReturningQuery(column string) (insert, followup string)
	UpdateQuery() string
	DeleteQuery() string
	CountQuery() string
	BeginQuery() string
	CommitQuery() string
	RollbackQuery() string
	FunctionQuery(fn string, args ...string) string

	// Params returns the bundle bound by the last rendered statement.
	Params() *Params

	HasKeys() bool
	HasWhere() bool

	// Reset drops every key, predicate and bound value.
	Reset()
}

// ResultSet is a read-only typed view over one executed statement. Getters
// read the current row; they return ErrKindUninitialized when no result is
// bound or the cursor is outside the result, and the zero value with a nil
// error when the cell is NULL or cannot be decoded.
type ResultSet interface {
	NewResult(native any) error
	Clear()
	IsOk() bool
	CountRows() int
	CountCols() int
	Pos() int
	SetPos(pos int)

	ColumnIndex(name string) int
	Key(col int) (TKey, error)
	Keys() TKeys
	KeyType(col int) string

	GetBool(col int) (bool, error)
	GetChar(col int) (byte, error)
	GetString(col int) (string, error)
	GetInt(col int) (int32, error)
	GetInt8(col int) (int64, error)
	GetFloat(col int) (float32, error)
	GetFloat8(col int) (float64, error)
	GetTimestamp(col int) (time.Time, error)
	GetMat(col int) (Mat, error)
	GetPoint(col int) (Point, error)
	GetBox(col int) (Box, error)
	GetIntervalEvent(col int) (IntervalEvent, error)
	GetIntervalEventVector(col int) ([]IntervalEvent, error)
	GetProcessStatus(col int) (ProcessStatus, error)
	GetProcessState(col int) (ProcessState, error)
	GetBlob(col int) ([]byte, error)
	GetSeqType(col int) (SeqType, error)
	GetInOutType(col int) (InOutType, error)
	GetIntVector(col int) ([]int32, error)
	GetFloatVector(col int) ([]float64, error)
	GetStringVector(col int) ([]string, error)

	// ValueString renders the cell as text whatever its type.
	ValueString(col int) (string, error)
}

// Backend is the factory each backend package registers.
type Backend interface {
	Name() string
	NewConnection(info ConnInfo, log *logger.Logger) Connection
	NewQueryBuilder(conn Connection, defaultTable string, log *logger.Logger) QueryBuilder
	NewResultSet(types *TypeCatalog, log *logger.Logger) ResultSet
}
