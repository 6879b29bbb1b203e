package vtapi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/errs"
)

func box(x1, y1, x2, y2 float64) database.Box {
	return database.Box{Low: database.Point{X: x1, Y: y1}, High: database.Point{X: x2, Y: y2}}
}

func countIntervals(t *testing.T, iv *Interval) int {
	t.Helper()
	n := 0
	for {
		ok, err := iv.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			return n
		}
		n++
	}
}

func TestIntervalOutput(t *testing.T) {
	ctx := context.Background()
	_, _, task := openTask(t)
	p, err := task.CreateProcess(ctx, "walk", "")
	require.NoError(t, err)

	day := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	out, err := task.NewOutput("walk", p.ID())
	require.NoError(t, err)
	out.NewInterval(1, 10).
		SetRealTime(day, day.Add(time.Minute)).
		SetEvent(database.IntervalEvent{GroupID: 7, ClassID: 3, IsRoot: true, Score: 0.9, Region: box(0, 0, 1, 1)}).
		SetFeatures([]float64{0.5, 2})
	out.NewInterval(20, 11).
		SetRealTime(day.Add(24*time.Hour), day.Add(25*time.Hour)).
		SetEvent(database.IntervalEvent{GroupID: 1, ClassID: 3, Score: 0.4, Region: box(5, 5, 6, 6)})
	assert.Equal(t, 2, out.Pending())

	require.NoError(t, out.Commit(ctx))
	assert.Zero(t, out.Pending())
	require.NoError(t, out.Commit(ctx), "an empty batch commits nothing")

	iv, err := task.LoadOutputIntervals("walk")
	require.NoError(t, err)
	ok, err := iv.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Positive(t, iv.ID())
	assert.Equal(t, task.Name(), iv.TaskName())
	assert.Equal(t, "walk", iv.SequenceName())
	assert.Equal(t, p.ID(), iv.ProcessID())
	assert.Equal(t, int32(1), iv.StartTime())
	assert.Equal(t, int32(10), iv.EndTime())
	assert.True(t, iv.RealStartTime().Equal(day))
	assert.True(t, iv.RealEndTime().Equal(day.Add(time.Minute)))
	ev := iv.Event()
	assert.Equal(t, int32(7), ev.GroupID)
	assert.True(t, ev.IsRoot)
	assert.Equal(t, box(0, 0, 1, 1), ev.Region)
	assert.Equal(t, []float64{0.5, 2}, iv.Features())
	assert.Equal(t, "walk", iv.Commons().Context.Sequence)

	ok, err = iv.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(11), iv.StartTime(), "frames are stored in order")
	assert.Equal(t, int32(20), iv.EndTime())
	assert.Empty(t, iv.Features())

	ok, err = iv.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInterval_Filters(t *testing.T) {
	ctx := context.Background()
	_, ds, task := openTask(t)

	day := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	out, err := task.NewOutput("walk", 0)
	require.NoError(t, err)
	out.NewInterval(1, 10).
		SetRealTime(day, day.Add(time.Minute)).
		SetEvent(database.IntervalEvent{GroupID: 7, IsRoot: true, Score: 0.9, Region: box(0, 0, 1, 1)})
	out.NewInterval(11, 20).
		SetRealTime(day.Add(24*time.Hour), day.Add(25*time.Hour)).
		SetEvent(database.IntervalEvent{GroupID: 1, Score: 0.4, Region: box(5, 5, 6, 6)})
	require.NoError(t, out.Commit(ctx))

	newIv := func() *Interval {
		iv, err := ds.LoadIntervals()
		require.NoError(t, err)
		return iv
	}

	assert.Equal(t, 2, countIntervals(t, newIv()))

	iv := newIv()
	require.True(t, iv.FilterByFrames(15, 12))
	assert.Equal(t, 1, countIntervals(t, iv))

	iv = newIv()
	require.True(t, iv.FilterByTimeRange(day.Add(23*time.Hour), day.Add(48*time.Hour)))
	assert.Equal(t, 1, countIntervals(t, iv))

	iv = newIv()
	require.True(t, iv.FilterByRegion(box(4, 4, 10, 10)))
	ok, err := iv.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(11), iv.StartTime())

	iv = newIv()
	f := database.AnyEvent()
	f.RootOnly = true
	require.True(t, iv.FilterByEvent(f))
	assert.Equal(t, 1, countIntervals(t, iv))

	iv = newIv()
	require.True(t, iv.FilterBySequence("other"))
	assert.Equal(t, 0, countIntervals(t, iv))

	iv = newIv()
	require.True(t, iv.FilterByTask(task.Name()))
	require.True(t, iv.FilterByProcess(99))
	n, err := iv.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestIntervalOutput_RollsBack(t *testing.T) {
	ctx := context.Background()
	_, ds, task := openTask(t)

	out, err := task.NewOutput("walk", 0)
	require.NoError(t, err)
	out.NewInterval(1, 2)
	bad := out.NewInterval(3, 4)
	require.True(t, bad.SetString("no_such_column", "x"))

	err = out.Commit(ctx)
	require.Error(t, err)
	assert.True(t, errs.IsQueryFailed(err))
	assert.Zero(t, out.Pending(), "a failed batch is discarded")

	iv, err := ds.LoadIntervals()
	require.NoError(t, err)
	n, err := iv.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "the first row was rolled back")

	out.NewInterval(5, 6)
	out.Discard()
	require.NoError(t, out.Commit(ctx))
	n, err = iv.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestNewIntervalOutput_Validates(t *testing.T) {
	_, ds, task := openTask(t)
	c := ds.Commons()

	_, err := NewIntervalOutput(c, "", "", "walk", 0)
	assert.True(t, errs.IsInvalidInput(err))
	_, err = NewIntervalOutput(c, "", task.Name(), "", 0)
	assert.True(t, errs.IsInvalidInput(err))
	_, err = NewIntervalOutput(c.Derive(), "", task.Name(), "walk", 0)
	assert.NoError(t, err)
}
