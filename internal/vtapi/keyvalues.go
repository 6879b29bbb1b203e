package vtapi

import (
	"context"
	"time"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/errs"
	"github.com/koustreak/vtapi/internal/query"
)

// KeyValues is the row cursor every entity is built on. It owns one
// Select and lazily one Insert and one Update.
//
// A fresh KeyValues is unbound: its Select carries the entity's filters
// but has not run. Next executes it, moves to the first row and then
// advances one row per call until the rows run out. Set* and Add* stage
// writes that SetExecute and AddExecute run.
type KeyValues struct {
	c      *Commons
	table  string
	schema string

	sel *query.Select
	ins *query.Insert
	upd *query.Update

	pos       int
	exhausted bool

	// onRow copies identifying columns into the Context after a move.
	onRow func()
	// preUpdate adds the predicate selecting the current row to an
	// update. It returns false when the row cannot be identified.
	preUpdate func(b database.QueryBuilder) bool
}

// newKeyValues binds a cursor to table. An empty schema means the public
// namespace.
func newKeyValues(c *Commons, schema, table string) KeyValues {
	kv := KeyValues{c: c, table: table, schema: schema, pos: -1}
	kv.sel = query.NewSelect(c.Env(), table)
	if schema != "" {
		kv.sel.SetSchema(schema)
	}
	return kv
}

// Commons returns the context the entity works under.
func (kv *KeyValues) Commons() *Commons { return kv.c }

// Select exposes the underlying statement, e.g. to add filters before the
// first Next.
func (kv *KeyValues) Select() *query.Select { return kv.sel }

// where returns the select builder, or nil when there is no connection.
func (kv *KeyValues) where() database.QueryBuilder { return kv.sel.Builder }

// Next moves to the following row. It reports false once the rows are
// exhausted or the statement failed.
func (kv *KeyValues) Next(ctx context.Context) (bool, error) {
	if kv.exhausted {
		return false, nil
	}
	if !kv.sel.Executed() {
		if _, err := kv.sel.Execute(ctx); err != nil {
			kv.exhausted = true
			return false, err
		}
		kv.pos = -1
	}

	rs := kv.sel.Result
	kv.pos++
	if kv.pos >= rs.CountRows() {
		limit := kv.sel.Limit()
		if limit == 0 || rs.CountRows() < limit {
			kv.exhausted = true
			return false, nil
		}
		n, err := kv.sel.ExecuteNext(ctx)
		if err != nil || n <= 0 {
			kv.exhausted = true
			return false, err
		}
		kv.pos = 0
	}
	rs.SetPos(kv.pos)
	kv.c.Context.Selection = kv.table
	if kv.onRow != nil {
		kv.onRow()
	}
	return true, nil
}

// Rewind makes the next Next run the statement again from the start.
func (kv *KeyValues) Rewind() {
	kv.sel.Rewind()
	kv.pos = -1
	kv.exhausted = false
}

// Count returns how many rows the filters select.
func (kv *KeyValues) Count(ctx context.Context) (int64, error) {
	return kv.sel.Count(ctx)
}

// --- getters ---

func (kv *KeyValues) col(key string) int { return kv.sel.Result.ColumnIndex(key) }

func (kv *KeyValues) GetString(key string) (string, error) {
	return kv.sel.Result.GetString(kv.col(key))
}

func (kv *KeyValues) GetInt(key string) (int32, error) {
	return kv.sel.Result.GetInt(kv.col(key))
}

func (kv *KeyValues) GetInt8(key string) (int64, error) {
	return kv.sel.Result.GetInt8(kv.col(key))
}

func (kv *KeyValues) GetFloat(key string) (float32, error) {
	return kv.sel.Result.GetFloat(kv.col(key))
}

func (kv *KeyValues) GetFloat8(key string) (float64, error) {
	return kv.sel.Result.GetFloat8(kv.col(key))
}

func (kv *KeyValues) GetBool(key string) (bool, error) {
	return kv.sel.Result.GetBool(kv.col(key))
}

func (kv *KeyValues) GetTimestamp(key string) (time.Time, error) {
	return kv.sel.Result.GetTimestamp(kv.col(key))
}

func (kv *KeyValues) GetIntervalEvent(key string) (database.IntervalEvent, error) {
	return kv.sel.Result.GetIntervalEvent(kv.col(key))
}

func (kv *KeyValues) GetProcessState(key string) (database.ProcessState, error) {
	return kv.sel.Result.GetProcessState(kv.col(key))
}

func (kv *KeyValues) GetFloatVector(key string) ([]float64, error) {
	return kv.sel.Result.GetFloatVector(kv.col(key))
}

func (kv *KeyValues) GetStringVector(key string) ([]string, error) {
	return kv.sel.Result.GetStringVector(kv.col(key))
}

// The lower-case getters serve entity accessors, which return the zero
// value when the row is gone.

func (kv *KeyValues) str(key string) string {
	v, err := kv.GetString(key)
	kv.debug(key, err)
	return v
}

func (kv *KeyValues) i32(key string) int32 {
	v, err := kv.GetInt(key)
	kv.debug(key, err)
	return v
}

func (kv *KeyValues) f32(key string) float32 {
	v, err := kv.GetFloat(key)
	kv.debug(key, err)
	return v
}

func (kv *KeyValues) f64(key string) float64 {
	v, err := kv.GetFloat8(key)
	kv.debug(key, err)
	return v
}

func (kv *KeyValues) flag(key string) bool {
	v, err := kv.GetBool(key)
	kv.debug(key, err)
	return v
}

func (kv *KeyValues) ts(key string) time.Time {
	v, err := kv.GetTimestamp(key)
	kv.debug(key, err)
	return v
}

func (kv *KeyValues) debug(key string, err error) {
	if err != nil {
		kv.c.Log().With().Str("table", kv.table).Str("column", key).Err(err).Logger().Debug("cannot read column")
	}
}

// --- writes ---

// Updater returns the builder of the pending update, creating it.
func (kv *KeyValues) Updater() database.QueryBuilder {
	if kv.upd == nil {
		kv.upd = query.NewUpdate(kv.c.Env(), kv.table)
		if kv.schema != "" {
			kv.upd.SetSchema(kv.schema)
		}
	}
	return kv.upd.Builder
}

// Inserter returns the builder of the pending insert, creating it.
func (kv *KeyValues) Inserter() database.QueryBuilder {
	if kv.ins == nil {
		kv.ins = query.NewInsert(kv.c.Env(), kv.table)
		if kv.schema != "" {
			kv.ins.SetSchema(kv.schema)
		}
	}
	return kv.ins.Builder
}

func (kv *KeyValues) SetString(key, v string) bool {
	b := kv.Updater()
	return b != nil && b.KeyString(key, v, "")
}

func (kv *KeyValues) SetInt(key string, v int32) bool {
	b := kv.Updater()
	return b != nil && b.KeyInt(key, v, "")
}

func (kv *KeyValues) SetFloat(key string, v float32) bool {
	b := kv.Updater()
	return b != nil && b.KeyFloat(key, v, "")
}

func (kv *KeyValues) SetBool(key string, v bool) bool {
	b := kv.Updater()
	return b != nil && b.KeyBool(key, v, "")
}

func (kv *KeyValues) SetTimestamp(key string, v time.Time) bool {
	b := kv.Updater()
	return b != nil && b.KeyTimestamp(key, v, "")
}

func (kv *KeyValues) SetProcessState(key string, v database.ProcessState) bool {
	b := kv.Updater()
	return b != nil && b.KeyProcessState(key, v, "")
}

// SetExecute runs the staged update against the current row.
func (kv *KeyValues) SetExecute(ctx context.Context) error {
	if kv.upd == nil || kv.upd.Builder == nil || !kv.upd.Builder.HasKeys() {
		return nil
	}
	defer kv.upd.Reset()
	if kv.preUpdate == nil || !kv.preUpdate(kv.upd.Builder) {
		return errs.Newf(errs.ErrKindInvalidInput, "%s: no row to update", kv.table)
	}
	return kv.upd.Execute(ctx)
}

func (kv *KeyValues) AddString(key, v string) bool {
	b := kv.Inserter()
	return b != nil && b.KeyString(key, v, "")
}

func (kv *KeyValues) AddInt(key string, v int32) bool {
	b := kv.Inserter()
	return b != nil && b.KeyInt(key, v, "")
}

func (kv *KeyValues) AddFloat(key string, v float32) bool {
	b := kv.Inserter()
	return b != nil && b.KeyFloat(key, v, "")
}

func (kv *KeyValues) AddBool(key string, v bool) bool {
	b := kv.Inserter()
	return b != nil && b.KeyBool(key, v, "")
}

func (kv *KeyValues) AddTimestamp(key string, v time.Time) bool {
	b := kv.Inserter()
	return b != nil && b.KeyTimestamp(key, v, "")
}

// AddExecute runs the staged insert.
func (kv *KeyValues) AddExecute(ctx context.Context) error {
	if kv.ins == nil || kv.ins.Builder == nil || !kv.ins.Builder.HasKeys() {
		return nil
	}
	defer kv.ins.Reset()
	return kv.ins.Execute(ctx)
}
