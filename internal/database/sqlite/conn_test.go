package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/errs"
)

// openDemo connects to a fresh folder with the public tables and an empty
// "demo" dataset.
func openDemo(t *testing.T) *Conn {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	c := NewConn(database.ConnInfo{Backend: database.BackendSQLite, DSN: dir}, nil)
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(c.Disconnect)
	require.NoError(t, c.Bootstrap(ctx))
	require.NoError(t, c.CreateNamespace(ctx, "demo"))
	return c
}

func fetch(t *testing.T, c *Conn, b database.QueryBuilder) *database.RowSet {
	t.Helper()
	rs := database.NewRowSet(c.Types(), nil)
	_, err := c.Fetch(context.Background(), b.SelectQuery(), b.Params(), rs)
	require.NoError(t, err, c.LastError())
	return rs
}

func TestConn_NotConnected(t *testing.T) {
	ctx := context.Background()
	c := NewConn(database.ConnInfo{DSN: t.TempDir()}, nil)

	assert.False(t, c.IsConnected(ctx))
	err := c.Execute(ctx, "SELECT 1", nil)
	assert.True(t, errs.IsConnectionFailed(err))
	assert.NotEmpty(t, c.LastError())

	c.Disconnect()
	c.Disconnect()
}

func TestConn_MissingFolder(t *testing.T) {
	c := NewConn(database.ConnInfo{DSN: filepath.Join(t.TempDir(), "nope")}, nil)
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsConfig(err))
}

func TestConn_Lifecycle(t *testing.T) {
	ctx := context.Background()
	c := openDemo(t)
	assert.True(t, c.IsConnected(ctx))
	assert.Empty(t, c.Types().MissingUserTypes())
	assert.FileExists(t, c.FilePath("public"))
	assert.FileExists(t, c.FilePath("demo"))

	public, err := c.ListTables(ctx, "public")
	require.NoError(t, err)
	assert.Equal(t, []string{"datasets", "methods", "methods_keys"}, public)

	tables, err := c.ListTables(ctx, "demo")
	require.NoError(t, err)
	assert.ElementsMatch(t, datasetTables, tables)

	require.NoError(t, c.Bootstrap(ctx), "bootstrap is idempotent")

	err = c.CreateNamespace(ctx, "demo")
	assert.True(t, errs.IsQueryFailed(err))
	assert.True(t, errs.IsInvalidInput(c.CreateNamespace(ctx, "../evil")))

	require.NoError(t, c.DropNamespace(ctx, "demo"))
	assert.False(t, c.IsAttached("demo"))
	assert.NoFileExists(t, c.FilePath("demo"))
	require.NoError(t, c.DropNamespace(ctx, "demo"), "dropping twice is fine")

	_, err = c.ListTables(ctx, "demo")
	assert.True(t, errs.IsNotFound(err))
}

func TestConn_SequenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := openDemo(t)

	ins := Backend{}.NewQueryBuilder(c, "sequences", nil)
	ins.SetSchema("demo")
	ins.KeyString("seqname", "seq1", "")
	ins.KeyString("seqlocation", "seq1/", "")
	ins.KeySeqtype("seqtyp", "video", "")
	ins.KeyFloat("vid_fps", 25, "")
	ins.KeyTimestamp("vid_time", time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC), "")
	require.NoError(t, c.Execute(ctx, ins.InsertQuery(), ins.Params()))

	sel := Backend{}.NewQueryBuilder(c, "sequences", nil)
	sel.SetSchema("demo")
	sel.WhereString("seqname", "seq1", "", "")
	rs := fetch(t, c, sel)
	require.Equal(t, 1, rs.CountRows())

	name, err := rs.GetString(rs.ColumnIndex("seqname"))
	require.NoError(t, err)
	assert.Equal(t, "seq1", name)
	loc, err := rs.GetString(rs.ColumnIndex("seqlocation"))
	require.NoError(t, err)
	assert.Equal(t, "seq1/", loc)
	typ, err := rs.GetSeqType(rs.ColumnIndex("seqtyp"))
	require.NoError(t, err)
	assert.Equal(t, database.SeqVideo, typ)
	assert.Equal(t, "seqtype", rs.KeyType(rs.ColumnIndex("seqtyp")))
	fps, err := rs.GetFloat(rs.ColumnIndex("vid_fps"))
	require.NoError(t, err)
	assert.Equal(t, float32(25), fps)
	vt, err := rs.GetTimestamp(rs.ColumnIndex("vid_time"))
	require.NoError(t, err)
	assert.True(t, vt.Equal(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)))
	created, err := rs.GetTimestamp(rs.ColumnIndex("created"))
	require.NoError(t, err)
	assert.False(t, created.IsZero())
}

func TestConn_NulTextRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := openDemo(t)

	ins := Backend{}.NewQueryBuilder(c, "sequences", nil)
	ins.SetSchema("demo")
	ins.KeyString("seqname", "a\x00b", "")
	ins.KeyString("seqlocation", "it's\x00", "")
	require.NoError(t, c.Execute(ctx, ins.InsertQuery(), ins.Params()), c.LastError())

	sel := Backend{}.NewQueryBuilder(c, "sequences", nil)
	sel.SetSchema("demo")
	sel.WhereString("seqname", "a\x00b", "", "")
	rs := fetch(t, c, sel)
	require.Equal(t, 1, rs.CountRows())

	name, err := rs.GetString(rs.ColumnIndex("seqname"))
	require.NoError(t, err)
	assert.Equal(t, "a\x00b", name)
	loc, err := rs.GetString(rs.ColumnIndex("seqlocation"))
	require.NoError(t, err)
	assert.Equal(t, "it's\x00", loc)
}

func TestConn_IntervalEventRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := openDemo(t)

	ev := database.IntervalEvent{
		GroupID: 7, ClassID: 3, IsRoot: true, Score: 1.5,
		Region: database.Box{High: database.Point{X: 1, Y: 1}},
	}
	ins := Backend{}.NewQueryBuilder(c, "intervals", nil)
	ins.SetSchema("demo")
	ins.KeyString("taskname", "t", "")
	ins.KeyString("seqname", "s", "")
	ins.KeyInt("t1", 0, "")
	ins.KeyInt("t2", 10, "")
	ins.KeyIntervalEvent("event", ev, "")
	ins.KeyFloatVector("features", []float64{0.5, 2}, "")
	require.NoError(t, c.Execute(ctx, ins.InsertQuery(), ins.Params()))

	other := ev
	other.GroupID = 1
	other.IsRoot = false
	other.Region = database.Box{Low: database.Point{X: 5, Y: 5}, High: database.Point{X: 6, Y: 6}}
	ins.Reset()
	ins.KeyString("taskname", "t", "")
	ins.KeyString("seqname", "s", "")
	ins.KeyInt("t1", 10, "")
	ins.KeyInt("t2", 20, "")
	ins.KeyIntervalEvent("event", other, "")
	require.NoError(t, c.Execute(ctx, ins.InsertQuery(), ins.Params()))

	sel := Backend{}.NewQueryBuilder(c, "intervals", nil)
	sel.SetSchema("demo")
	sel.OrderBy("id", false)
	rs := fetch(t, c, sel)
	require.Equal(t, 2, rs.CountRows())

	got, err := rs.GetIntervalEvent(rs.ColumnIndex("event"))
	require.NoError(t, err)
	assert.Equal(t, int32(7), got.GroupID)
	assert.Equal(t, int32(3), got.ClassID)
	assert.True(t, got.IsRoot)
	assert.Equal(t, 1.5, got.Score)
	assert.Equal(t, ev.Region, got.Region)
	assert.NotNil(t, got.UserData)
	assert.Empty(t, got.UserData)
	assert.Equal(t, "vtevent", rs.KeyType(rs.ColumnIndex("event")))

	features, err := rs.GetFloatVector(rs.ColumnIndex("features"))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 2}, features)

	// event filter runs as a Go function
	sel.Reset()
	sel.SetSchema("demo")
	f := database.AnyEvent()
	f.RootOnly = true
	require.True(t, sel.WhereEvent("event", f, ""))
	rs = fetch(t, c, sel)
	assert.Equal(t, 1, rs.CountRows())

	// region predicate over the event member
	sel.Reset()
	sel.SetSchema("demo")
	require.True(t, sel.WhereRegion("event,region", database.Box{Low: database.Point{X: 4, Y: 4}, High: database.Point{X: 10, Y: 10}}, "", ""))
	rs = fetch(t, c, sel)
	require.Equal(t, 1, rs.CountRows())
	g, err := rs.GetIntervalEvent(rs.ColumnIndex("event"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), g.GroupID)

	// numeric member comparison
	sel.Reset()
	sel.SetSchema("demo")
	require.True(t, sel.WhereInt("event,group_id", 7, ">=", ""))
	rs = fetch(t, c, sel)
	assert.Equal(t, 1, rs.CountRows())

	// count
	sel.Reset()
	sel.SetSchema("demo")
	sel.WhereInt("t1", 5, ">", "")
	rsCount := database.NewRowSet(c.Types(), nil)
	_, err = c.Fetch(ctx, sel.CountQuery(), sel.Params(), rsCount)
	require.NoError(t, err)
	n, err := rsCount.GetInt8(0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestConn_AttachOnce(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	setup := NewConn(database.ConnInfo{DSN: dir}, nil)
	require.NoError(t, setup.Connect(ctx))
	require.NoError(t, setup.Bootstrap(ctx))
	require.NoError(t, setup.CreateNamespace(ctx, "demo"))
	setup.Disconnect()

	c := NewConn(database.ConnInfo{DSN: dir}, nil)
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(c.Disconnect)
	assert.False(t, c.IsAttached("demo"))

	sel := Backend{}.NewQueryBuilder(c, "sequences", nil)
	sel.SetSchema("demo")
	rs := fetch(t, c, sel)
	assert.Equal(t, 0, rs.CountRows())
	assert.True(t, c.IsAttached("demo"))

	// a second ATTACH under the same alias would fail, so success here
	// means the connection skipped it
	rs = fetch(t, c, sel)
	assert.Equal(t, 0, rs.CountRows())
	assert.True(t, c.IsAttached("demo"))

	missing := Backend{}.NewQueryBuilder(c, "sequences", nil)
	missing.SetSchema("ghost")
	_, err := c.Fetch(ctx, missing.SelectQuery(), missing.Params(), database.NewRowSet(nil, nil))
	assert.True(t, errs.IsNotFound(err))
}

func TestConn_AttachFromStatementText(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	setup := NewConn(database.ConnInfo{DSN: dir}, nil)
	require.NoError(t, setup.Connect(ctx))
	require.NoError(t, setup.Bootstrap(ctx))
	require.NoError(t, setup.CreateNamespace(ctx, "demo"))
	require.NoError(t, setup.CreateNamespace(ctx, "other"))
	setup.Disconnect()

	c := NewConn(database.ConnInfo{DSN: dir}, nil)
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(c.Disconnect)

	rs := database.NewRowSet(c.Types(), nil)
	_, err := c.Fetch(ctx, `SELECT "sequences"."seqname" FROM "demo"."sequences" WHERE seqname <> 'other.x'`, nil, rs)
	require.NoError(t, err, c.LastError())
	assert.True(t, c.IsAttached("demo"))
	assert.False(t, c.IsAttached("sequences"))
	assert.False(t, c.IsAttached("other"), "qualifiers inside literals are ignored")

	require.NoError(t, c.Execute(ctx, "DELETE FROM other.tasks", nil), c.LastError())
	assert.True(t, c.IsAttached("other"))

	// unknown qualifiers are left for SQLite to report
	err = c.Execute(ctx, `SELECT * FROM "ghost"."sequences"`, nil)
	assert.Error(t, err)
	assert.False(t, c.IsAttached("ghost"))
}

func TestReferencedNamespaces(t *testing.T) {
	assert.Equal(t, []string{"sequences", "demo"},
		referencedNamespaces(`SELECT "sequences".seqname FROM demo.sequences JOIN "demo"."tasks" ON 'x.y' = sequences.seqname`))
	assert.Empty(t, referencedNamespaces("SELECT 1.5, 'a.b'"))
}

func TestConn_Truncate(t *testing.T) {
	ctx := context.Background()
	c := openDemo(t)

	ins := Backend{}.NewQueryBuilder(c, "tasks", nil)
	ins.SetSchema("demo")
	ins.KeyString("taskname", "detect", "")
	ins.KeyString("mtname", "m", "")
	require.NoError(t, c.Execute(ctx, ins.InsertQuery(), ins.Params()))

	require.NoError(t, c.TruncateNamespace(ctx, "demo"))

	sel := Backend{}.NewQueryBuilder(c, "tasks", nil)
	sel.SetSchema("demo")
	assert.Equal(t, 0, fetch(t, c, sel).CountRows())
}

func TestConn_Errors(t *testing.T) {
	ctx := context.Background()
	c := openDemo(t)

	err := c.Execute(ctx, "SELECT * FROM nope", nil)
	assert.True(t, errs.IsQueryFailed(err))
	assert.Contains(t, c.LastError(), "nope")

	err = c.Execute(ctx, database.NoQuery, nil)
	assert.True(t, errs.IsQueryBuild(err))

	// the adversarial string is stored, not executed
	ins := Backend{}.NewQueryBuilder(c, "methods", nil)
	ins.KeyString("mtname", `x'); DROP TABLE methods; --`, "")
	require.NoError(t, c.Execute(ctx, ins.InsertQuery(), ins.Params()))
	tables, err := c.ListTables(ctx, "public")
	require.NoError(t, err)
	assert.Contains(t, tables, "methods")

	// constraint violation
	err = c.Execute(ctx, ins.InsertQuery(), ins.Params())
	assert.True(t, errs.IsQueryFailed(err))

	assert.Error(t, mapError(context.DeadlineExceeded, "x"))
	assert.True(t, errs.IsTimeout(mapError(context.Canceled, "x")))
	assert.NoError(t, mapError(nil, "x"))
}

func TestFilePath(t *testing.T) {
	c := NewConn(database.ConnInfo{DSN: "/data"}, nil)
	assert.Equal(t, filepath.Join("/data", "vtapi_public.db"), c.FilePath("public"))
	assert.Equal(t, filepath.Join("/data", "vtapi_public.db"), c.FilePath("main"))
	assert.Equal(t, filepath.Join("/data", "vtapi_demo.db"), c.FilePath("demo"))
}
