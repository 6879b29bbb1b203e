package mysql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/vtapi/internal/database"
)

func newBuilder(table string) database.QueryBuilder {
	return Backend{}.NewQueryBuilder(nil, table, nil)
}

func TestDialect_Escaping(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, "`seqname`", d.EscapeIdent("seqname"))
	assert.Equal(t, "`we``ird`", d.EscapeIdent("we`ird"))
	assert.Equal(t, `'O''Brien'`, d.EscapeLiteral("O'Brien"))
	assert.Equal(t, `'C:\\data'`, d.EscapeLiteral(`C:\data`))
	assert.Equal(t, `'\\''; DROP TABLE x; --'`, d.EscapeLiteral(`\'; DROP TABLE x; --`))
}

func TestDialect_MapSchema(t *testing.T) {
	assert.Equal(t, "vtapi", Dialect{Public: "vtapi"}.MapSchema("public"))
	assert.Equal(t, "demo", Dialect{Public: "vtapi"}.MapSchema("demo"))
	assert.Equal(t, "public", Dialect{}.MapSchema("public"))
}

func TestBuilder_Select(t *testing.T) {
	b := newBuilder("sequences")
	b.SetSchema("demo")
	require.True(t, b.KeyFrom("", "seqname"))
	require.True(t, b.WhereString("seqname", "O'Brien", "", ""))
	assert.Equal(t,
		"SELECT `sequences`.`seqname` AS `seqname` FROM `demo`.`sequences` WHERE `sequences`.`seqname` = ?",
		b.SelectQuery())
	require.Equal(t, 1, b.Params().Len())
	assert.Equal(t, []any{"O'Brien"}, args(b.Params()))
}

func TestBuilder_PublicMapsToDatabase(t *testing.T) {
	b := newBuilder("datasets")
	assert.Equal(t, "SELECT * FROM `vtapi`.`datasets`", b.SelectQuery())
}

func TestBuilder_VectorInExpands(t *testing.T) {
	b := newBuilder("sequences")
	require.True(t, b.WhereStringVector("seqname", []string{"a", "b"}, "IN", ""))
	assert.Equal(t,
		"SELECT * FROM `vtapi`.`sequences` WHERE `sequences`.`seqname` IN (?, ?)",
		b.SelectQuery())
	assert.Equal(t, []any{"a", "b"}, args(b.Params()))
}

func TestBuilder_TimeRangeAndCount(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newBuilder("intervals")
	b.SetSchema("demo")
	require.True(t, b.WhereTimeRange("rt_start", "rt_end", t1, t1.Add(time.Hour), "", ""))
	assert.Equal(t,
		"SELECT COUNT(*) FROM `demo`.`intervals` WHERE (`intervals`.`rt_end` >= ? AND `intervals`.`rt_start` <= ?)",
		b.CountQuery())
	assert.Equal(t, []any{"2024-01-01 00:00:00.000000", "2024-01-01 01:00:00.000000"}, args(b.Params()))
}

func TestBuilder_UnsupportedPredicates(t *testing.T) {
	b := newBuilder("intervals")
	assert.False(t, b.WhereRegion("region", database.Box{High: database.Point{X: 1, Y: 1}}, "", ""))
	assert.False(t, b.WhereEvent("event", database.AnyEvent(), ""))
	assert.False(t, b.HasWhere())

	// composite member access renders the column sentinel
	require.True(t, b.WhereInt("event,group_id", 7, "", ""))
	assert.True(t, database.IsInvalidQuery(b.SelectQuery()))
}

func TestBuilder_InsertArgs(t *testing.T) {
	b := newBuilder("intervals")
	b.SetSchema("demo")
	require.True(t, b.KeyString("taskname", "t", ""))
	require.True(t, b.KeyInt("t1", 4, ""))
	require.True(t, b.KeyBool("done", true, ""))
	require.True(t, b.KeyFloatVector("features", []float64{1, 2.5}, ""))
	require.True(t, b.KeyIntervalEvent("event", database.IntervalEvent{GroupID: 7, ClassID: 3, IsRoot: true, Score: 1.5}, ""))
	require.True(t, b.KeyNull("prsid", ""))
	assert.Equal(t,
		"INSERT INTO `demo`.`intervals` (`taskname`, `t1`, `done`, `features`, `event`, `prsid`) VALUES (?, ?, ?, ?, ?, NULL)",
		b.InsertQuery())

	got := args(b.Params())
	require.Len(t, got, 5)
	assert.Equal(t, "t", got[0])
	assert.Equal(t, int32(4), got[1])
	assert.Equal(t, true, got[2])
	assert.Equal(t, "[1,2.5]", got[3])
	assert.Equal(t, database.FormatEvent(database.IntervalEvent{GroupID: 7, ClassID: 3, IsRoot: true, Score: 1.5}), got[4])
}

func TestBuilder_TransactionStatements(t *testing.T) {
	b := newBuilder("intervals")
	assert.Equal(t, "START TRANSACTION", b.BeginQuery())
	assert.Equal(t, "COMMIT", b.CommitQuery())
	assert.Equal(t, "ROLLBACK", b.RollbackQuery())
}

func TestBuildConfig(t *testing.T) {
	cfg, err := buildConfig(database.ConnInfo{DSN: "root:pw@tcp(db:3306)/", ConnectTimeout: 3 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, defaultDatabase, cfg.DBName)
	assert.True(t, cfg.ParseTime)
	assert.True(t, cfg.MultiStatements)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, "db:3306", cfg.Addr)

	_, err = buildConfig(database.ConnInfo{DSN: "root:pw@tcp(db:3306"})
	require.Error(t, err)
}

func TestConn_NotConnected(t *testing.T) {
	c := NewConn(database.ConnInfo{DSN: "root@tcp(localhost:3306)/vt"}, nil)
	assert.Equal(t, "vt", c.Database())
	assert.False(t, c.IsConnected(t.Context()))

	err := c.Execute(t.Context(), "SELECT 1", nil)
	require.Error(t, err)
	assert.NotEmpty(t, c.LastError())

	b := Backend{}.NewQueryBuilder(c, "datasets", nil)
	assert.Equal(t, "SELECT * FROM `vt`.`datasets`", b.SelectQuery())
}
