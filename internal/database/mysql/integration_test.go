//go:build integration

package mysql

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/errs"
)

// startMySQL runs mysql:8.0 and returns a bootstrapped connection.
func startMySQL(t *testing.T) *Conn {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image: "mysql:8.0",
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "vtapi",
			"MYSQL_DATABASE":      "vtapi",
		},
		ExposedPorts: []string{"3306/tcp"},
		WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").
			WithStartupTimeout(120 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306")
	require.NoError(t, err)

	dsn := fmt.Sprintf("root:vtapi@tcp(%s:%s)/vtapi", host, port.Port())
	c := NewConn(database.ConnInfo{Backend: database.BackendMySQL, DSN: dsn, ConnectTimeout: 10 * time.Second}, nil)
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(c.Disconnect)

	require.NoError(t, c.Bootstrap(ctx))
	require.NoError(t, c.Bootstrap(ctx))
	return c
}

func TestIntegration_DatasetRoundTrip(t *testing.T) {
	c := startMySQL(t)
	ctx := context.Background()
	assert.True(t, c.IsConnected(ctx))

	require.NoError(t, c.CreateNamespace(ctx, "demo"))
	tables, err := c.ListTables(ctx, "demo")
	require.NoError(t, err)
	assert.Contains(t, tables, "sequences")
	assert.Contains(t, tables, "intervals")

	ins := Backend{}.NewQueryBuilder(c, "sequences", nil)
	ins.SetSchema("demo")
	ins.KeyString("seqname", "O'Brien", "")
	ins.KeyString("seqlocation", `seq1\`, "")
	ins.KeySeqtype("seqtyp", "video", "")
	ins.KeyFloat64("vid_fps", 25, "")
	require.NoError(t, c.Execute(ctx, ins.InsertQuery(), ins.Params()))

	sel := Backend{}.NewQueryBuilder(c, "sequences", nil)
	sel.SetSchema("demo")
	sel.WhereString("seqname", "O'Brien", "", "")
	rs := Backend{}.NewResultSet(c.Types(), nil)
	n, err := c.Fetch(ctx, sel.SelectQuery(), sel.Params(), rs)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	rs.SetPos(0)

	loc, err := rs.GetString(rs.ColumnIndex("seqlocation"))
	require.NoError(t, err)
	assert.Equal(t, `seq1\`, loc)
	typ, err := rs.GetSeqType(rs.ColumnIndex("seqtyp"))
	require.NoError(t, err)
	assert.Equal(t, database.SeqVideo, typ)
	fps, err := rs.GetFloat8(rs.ColumnIndex("vid_fps"))
	require.NoError(t, err)
	assert.Equal(t, 25.0, fps)

	// event travels as text
	ev := database.IntervalEvent{GroupID: 7, ClassID: 3, IsRoot: true, Score: 1.5,
		Region: database.Box{High: database.Point{X: 1, Y: 1}}}
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	iv := Backend{}.NewQueryBuilder(c, "intervals", nil)
	iv.SetSchema("demo")
	iv.KeyString("taskname", "t", "")
	iv.KeyString("seqname", "O'Brien", "")
	iv.KeyInt("t1", 0, "")
	iv.KeyInt("t2", 10, "")
	iv.KeyTimestamp("rt_start", t1, "")
	iv.KeyTimestamp("rt_end", t1.Add(time.Minute), "")
	iv.KeyIntervalEvent("event", ev, "")
	require.NoError(t, c.Execute(ctx, iv.InsertQuery(), iv.Params()))

	q := Backend{}.NewQueryBuilder(c, "intervals", nil)
	q.SetSchema("demo")
	q.WhereTimeRange("rt_start", "rt_end", t1.Add(30*time.Second), t1.Add(time.Hour), "", "")
	rs = Backend{}.NewResultSet(c.Types(), nil)
	n, err = c.Fetch(ctx, q.SelectQuery(), q.Params(), rs)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	rs.SetPos(0)
	got, err := rs.GetIntervalEvent(rs.ColumnIndex("event"))
	require.NoError(t, err)
	assert.Equal(t, ev.GroupID, got.GroupID)
	assert.Equal(t, ev.Region, got.Region)
	start, err := rs.GetTimestamp(rs.ColumnIndex("rt_start"))
	require.NoError(t, err)
	assert.True(t, t1.Equal(start))

	require.NoError(t, c.TruncateNamespace(ctx, "demo"))
	require.NoError(t, c.DropNamespace(ctx, "demo"))
	require.NoError(t, c.DropNamespace(ctx, "demo"))
	_, err = c.ListTables(ctx, "demo")
	assert.True(t, errs.IsNotFound(err))
}

func TestIntegration_Errors(t *testing.T) {
	c := startMySQL(t)
	ctx := context.Background()

	err := c.Execute(ctx, "SELECT * FROM nope", nil)
	require.Error(t, err)
	assert.True(t, errs.IsQueryFailed(err))
	assert.Contains(t, c.LastError(), "nope")

	require.NoError(t, c.CreateNamespace(ctx, "demo"))
	err = c.CreateNamespace(ctx, "demo")
	assert.True(t, errs.IsQueryFailed(err))
	assert.True(t, errs.IsInvalidInput(c.CreateNamespace(ctx, "bad-name")))
}
