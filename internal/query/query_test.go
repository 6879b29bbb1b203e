package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/database/sqlite"
	"github.com/koustreak/vtapi/internal/errs"
)

func newEnv(t *testing.T) Env {
	t.Helper()
	ctx := context.Background()
	c := sqlite.NewConn(database.ConnInfo{Backend: database.BackendSQLite, DSN: t.TempDir()}, nil)
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(c.Disconnect)
	require.NoError(t, c.Bootstrap(ctx))
	require.NoError(t, c.CreateNamespace(ctx, "demo"))
	return Env{Conn: c, Backend: sqlite.Backend{}}
}

func insertSequence(t *testing.T, env Env, name string, length int32) {
	t.Helper()
	ins := NewInsert(env, "sequences")
	ins.SetSchema("demo")
	ins.Builder.KeyString("seqname", name, "")
	ins.Builder.KeyString("seqlocation", name+"/", "")
	ins.Builder.KeySeqtype("seqtyp", "video", "")
	ins.Builder.KeyInt("vid_length", length, "")
	require.NoError(t, ins.Execute(context.Background()))
}

func TestInsertSelect(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	insertSequence(t, env, "seq1", 100)

	sel := NewSelect(env, "sequences")
	sel.SetSchema("demo")
	sel.Builder.WhereString("seqname", "seq1", "", "")
	n, err := sel.Execute(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.True(t, sel.Executed())

	loc, err := sel.Result.GetString(sel.Result.ColumnIndex("seqlocation"))
	require.NoError(t, err)
	assert.Equal(t, "seq1/", loc)
}

func TestSelect_Paging(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		insertSequence(t, env, name, 1)
	}

	sel := NewSelect(env, "sequences")
	sel.SetSchema("demo")
	sel.From("", "seqname")
	sel.Builder.OrderBy("seqname", false)
	sel.SetLimit(2)

	var got []string
	n, err := sel.Execute(ctx)
	for err == nil && n > 0 {
		for i := 0; i < n; i++ {
			sel.Result.SetPos(i)
			name, gerr := sel.Result.GetString(0)
			require.NoError(t, gerr)
			got = append(got, name)
		}
		n, err = sel.ExecuteNext(ctx)
	}
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got)

	count, err := sel.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestSelect_NoLimitHasNoNextPage(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	insertSequence(t, env, "a", 1)

	sel := NewSelect(env, "sequences")
	sel.SetSchema("demo")
	n, err := sel.ExecuteNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = sel.ExecuteNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.False(t, sel.Result.IsOk())
}

func TestInsert_ExecuteReturning(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	// a trigger adds a newer row behind every t1 = 7 insert
	require.NoError(t, env.Conn.Execute(ctx,
		`CREATE TRIGGER demo.shadow AFTER INSERT ON intervals WHEN NEW.t1 = 7
		 BEGIN INSERT INTO intervals (taskname, seqname, t1, t2) VALUES (NEW.taskname, NEW.seqname, 0, 0); END`, nil),
		env.Conn.LastError())

	insert := func(t1 int32) (int64, error) {
		ins := NewInsert(env, "intervals")
		ins.SetSchema("demo")
		ins.Builder.KeyString("taskname", "detect", "")
		ins.Builder.KeyString("seqname", "seq1", "")
		ins.Builder.KeyInt("t1", t1, "")
		ins.Builder.KeyInt("t2", t1+1, "")
		return ins.ExecuteReturning(ctx, "id")
	}

	first, err := insert(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	second, err := insert(7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second, "the trigger row is not reported")

	sel := NewSelect(env, "intervals")
	sel.SetSchema("demo")
	sel.From("", "t1")
	sel.Builder.WhereInt("id", int32(second), "", "")
	n, err := sel.Execute(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	t1, err := sel.Result.GetInt(0)
	require.NoError(t, err)
	assert.Equal(t, int32(7), t1)

	bare := NewInsert(env, "intervals")
	bare.SetSchema("demo")
	_, err = bare.ExecuteReturning(ctx, "id")
	assert.True(t, errs.IsQueryBuild(err))
}

func TestUpdateDelete(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	insertSequence(t, env, "seq1", 100)

	upd := NewUpdate(env, "sequences")
	upd.SetSchema("demo")
	upd.Builder.KeyString("comment", "O'Brien's; DROP TABLE x; --", "")
	upd.Builder.WhereString("seqname", "seq1", "", "")
	require.NoError(t, upd.Execute(ctx))

	sel := NewSelect(env, "sequences")
	sel.SetSchema("demo")
	sel.From("", "comment")
	_, err := sel.Execute(ctx)
	require.NoError(t, err)
	comment, err := sel.Result.GetString(0)
	require.NoError(t, err)
	assert.Equal(t, "O'Brien's; DROP TABLE x; --", comment)

	del := NewDelete(env, "sequences")
	del.SetSchema("demo")
	del.Builder.WhereString("seqname", "seq1", "", "")
	require.NoError(t, del.Execute(ctx))

	sel.Reset()
	n, err := sel.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUpdateWithoutWhereNeverReachesConnection(t *testing.T) {
	env := newEnv(t)
	upd := NewUpdate(env, "sequences")
	upd.SetSchema("demo")
	require.True(t, upd.Builder.KeyString("comment", "x", ""))

	err := upd.Execute(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsQueryBuild(err))
	assert.Equal(t, err, upd.Err())
	assert.Empty(t, env.Conn.LastError())

	del := NewDelete(env, "sequences")
	assert.True(t, errs.IsQueryBuild(del.Execute(context.Background())))
}

func TestTransaction(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	tx := NewTransaction(env)
	require.NoError(t, tx.Begin(ctx))
	assert.True(t, tx.Active())
	assert.Error(t, tx.Begin(ctx))
	insertSequence(t, env, "rolled", 1)
	require.NoError(t, tx.Rollback(ctx))
	assert.NoError(t, tx.Rollback(ctx))

	require.NoError(t, tx.Begin(ctx))
	insertSequence(t, env, "kept", 1)
	require.NoError(t, tx.Commit(ctx))
	assert.Error(t, tx.Commit(ctx))

	sel := NewSelect(env, "sequences")
	sel.SetSchema("demo")
	sel.From("", "seqname")
	n, err := sel.Execute(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	name, err := sel.Result.GetString(0)
	require.NoError(t, err)
	assert.Equal(t, "kept", name)
}

func TestNoConnection(t *testing.T) {
	sel := NewSelect(Env{}, "sequences")
	_, err := sel.Execute(context.Background())
	assert.True(t, errs.IsUninitialized(err))
	assert.False(t, sel.From("", "x"))

	assert.True(t, errs.IsUninitialized(NewInsert(Env{}, "t").Execute(context.Background())))
	assert.True(t, errs.IsUninitialized(Function(context.Background(), Env{}, "VT_x")))
}

func TestTransaction_PreparesNamespaces(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	c := env.Conn.(*sqlite.Conn)
	c.Disconnect()
	require.NoError(t, c.Connect(ctx))
	require.False(t, c.IsAttached("demo"))

	tx := NewTransaction(env)
	require.NoError(t, tx.Begin(ctx, "demo"))
	assert.True(t, c.IsAttached("demo"))
	insertSequence(t, env, "a", 1)
	require.NoError(t, tx.Commit(ctx))
}
