// Package query drives statements through a database.Connection. Each
// statement object owns one QueryBuilder and, for reads, one ResultSet.
package query

import (
	"context"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/errs"
	"github.com/koustreak/vtapi/internal/logger"
)

// Env is what every statement needs: the live connection and the backend
// that produced it.
type Env struct {
	Conn    database.Connection
	Backend database.Backend
	Log     *logger.Logger
}

func (e Env) logger() *logger.Logger {
	if e.Log == nil {
		return logger.Nop()
	}
	return e.Log
}

func (e Env) validate() error {
	if e.Conn == nil || e.Backend == nil {
		return errs.New(errs.ErrKindUninitialized, "query: no connection")
	}
	return nil
}

// Query is the part shared by all statements: the builder and the error of
// the last execution.
type Query struct {
	env     Env
	log     *logger.Logger
	Builder database.QueryBuilder
	err     error
}

func newQuery(env Env, table string) Query {
	log := env.logger()
	var b database.QueryBuilder
	if env.Backend != nil {
		b = env.Backend.NewQueryBuilder(env.Conn, table, log)
	}
	return Query{env: env, log: log, Builder: b}
}

// Err returns the error of the last execution, or nil.
func (q *Query) Err() error { return q.err }

// Reset clears keys, predicates and the last error.
func (q *Query) Reset() {
	if q.Builder != nil {
		q.Builder.Reset()
	}
	q.err = nil
}

// SetSchema sets the namespace unqualified tables are resolved in.
func (q *Query) SetSchema(schema string) {
	if q.Builder != nil {
		q.Builder.SetSchema(schema)
	}
}

// exec runs statement text rendered by the builder. A sentinel is caught
// here and never reaches the connection.
func (q *Query) exec(ctx context.Context, text string) error {
	if err := q.env.validate(); err != nil {
		q.err = err
		return err
	}
	if database.IsInvalidQuery(text) {
		q.err = database.ErrNoQuery(text)
		q.log.Error(q.err.Error())
		return q.err
	}
	q.err = q.env.Conn.Execute(ctx, text, q.Builder.Params())
	return q.err
}

// --- Insert ---

// Insert adds one row per Execute.
type Insert struct {
	Query
}

func NewInsert(env Env, table string) *Insert {
	return &Insert{Query: newQuery(env, table)}
}

// Execute renders INSERT and runs it.
func (i *Insert) Execute(ctx context.Context) error {
	if err := i.env.validate(); err != nil {
		i.err = err
		return err
	}
	return i.exec(ctx, i.Builder.InsertQuery())
}

// ExecuteReturning runs INSERT and returns the value the database generated
// for column in the new row.
func (i *Insert) ExecuteReturning(ctx context.Context, column string) (int64, error) {
	if err := i.env.validate(); err != nil {
		i.err = err
		return 0, err
	}
	text, followup := i.Builder.InsertReturningQuery(column)
	rs := i.env.Backend.NewResultSet(i.env.Conn.Types(), i.log)
	var n int
	if followup == "" {
		if database.IsInvalidQuery(text) {
			i.err = database.ErrNoQuery(text)
			i.log.Error(i.err.Error())
			return 0, i.err
		}
		n, i.err = i.env.Conn.Fetch(ctx, text, i.Builder.Params(), rs)
	} else {
		if err := i.exec(ctx, text); err != nil {
			return 0, err
		}
		n, i.err = i.env.Conn.Fetch(ctx, followup, nil, rs)
	}
	if i.err != nil {
		return 0, i.err
	}
	if n < 1 {
		i.err = errs.Newf(errs.ErrKindQueryFailed, "insert returned no %s", column)
		return 0, i.err
	}
	id, err := rs.GetInt8(0)
	if err != nil {
		i.err = err
		return 0, err
	}
	return id, nil
}

// --- Update ---

// Update changes the rows its predicates select. Rendering refuses an
// update without predicates.
type Update struct {
	Query
}

func NewUpdate(env Env, table string) *Update {
	return &Update{Query: newQuery(env, table)}
}

func (u *Update) Execute(ctx context.Context) error {
	if err := u.env.validate(); err != nil {
		u.err = err
		return err
	}
	return u.exec(ctx, u.Builder.UpdateQuery())
}

// --- Delete ---

// Delete removes the rows its predicates select.
type Delete struct {
	Query
}

func NewDelete(env Env, table string) *Delete {
	return &Delete{Query: newQuery(env, table)}
}

func (d *Delete) Execute(ctx context.Context) error {
	if err := d.env.validate(); err != nil {
		d.err = err
		return err
	}
	return d.exec(ctx, d.Builder.DeleteQuery())
}

// --- Function ---

// Function runs SELECT fn(args...) and discards the result. It is how the
// server-side dataset and task helpers are invoked.
func Function(ctx context.Context, env Env, fn string, args ...string) error {
	q := newQuery(env, "")
	if err := env.validate(); err != nil {
		return err
	}
	text := q.Builder.FunctionQuery(fn, args...)
	if database.IsInvalidQuery(text) {
		return database.ErrNoQuery(text)
	}
	rs := env.Backend.NewResultSet(env.Conn.Types(), q.log)
	_, err := env.Conn.Fetch(ctx, text, q.Builder.Params(), rs)
	return err
}
