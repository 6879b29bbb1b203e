package vtapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/errs"
)

func TestTaskParams(t *testing.T) {
	p := TaskParams{}
	assert.Equal(t, "{}", p.Encode())

	p.SetString("model", "yolo").SetInt("stride", 2).SetFloat("threshold", 0.25)
	assert.Equal(t, `{"model":"yolo","stride":2,"threshold":0.25}`, p.Encode())
	assert.Equal(t, []string{"model", "stride", "threshold"}, p.Keys())

	back, err := ParseTaskParams(p.Encode())
	require.NoError(t, err)
	stride, ok := back.GetInt("stride")
	assert.True(t, ok)
	assert.Equal(t, 2, stride)
	th, ok := back.GetFloat("threshold")
	assert.True(t, ok)
	assert.Equal(t, 0.25, th)
	model, ok := back.GetString("model")
	assert.True(t, ok)
	assert.Equal(t, "yolo", model)

	_, ok = back.GetInt("threshold")
	assert.False(t, ok, "0.25 is not an int")
	_, ok = back.GetString("missing")
	assert.False(t, ok)

	empty, err := ParseTaskParams("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseTaskParams("{not json")
	assert.Equal(t, errs.ErrKindDecode, errs.KindOf(err))
}

func TestConstructTaskName(t *testing.T) {
	a := TaskParams{}.SetInt("x", 1).SetString("y", "z")
	b := TaskParams{}.SetString("y", "z").SetInt("x", 1)
	c := TaskParams{}.SetInt("x", 2).SetString("y", "z")

	name := ConstructTaskName("detect", a)
	assert.Equal(t, name, ConstructTaskName("detect", b), "insertion order does not matter")
	assert.NotEqual(t, name, ConstructTaskName("detect", c))
	assert.NotEqual(t, name, ConstructTaskName("track", a))
	assert.True(t, strings.HasPrefix(name, "detect_"))
	assert.Len(t, name, len("detect_")+16)
}

// openTask creates dataset demo with video walk and one detect task.
func openTask(t *testing.T) (*VTApi, *Dataset, *Task) {
	t.Helper()
	ctx := context.Background()
	v, _ := openTest(t)
	ds := openDataset(t, v)

	_, err := ds.CreateVideo(ctx, "walk", "walk.mp4", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	task, err := ds.CreateTask(ctx, "detect", TaskParams{}.SetFloat("threshold", 0.5), nil, "")
	require.NoError(t, err)
	ok, err := task.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	return v, ds, task
}

func TestTasks(t *testing.T) {
	ctx := context.Background()
	_, ds, task := openTask(t)

	params := TaskParams{}.SetFloat("threshold", 0.5)
	assert.Equal(t, ConstructTaskName("detect", params), task.Name())
	assert.Equal(t, "detect", task.MethodName())
	assert.Equal(t, "intervals", task.OutputTable())
	assert.False(t, task.Created().IsZero())
	th, ok := task.Params().GetFloat("threshold")
	assert.True(t, ok)
	assert.Equal(t, 0.5, th)
	assert.Equal(t, task.Name(), task.Commons().Context.Task)
	assert.Equal(t, "detect", task.Commons().Context.Method)

	_, err := ds.CreateTask(ctx, "detect", params, nil, "")
	assert.Error(t, err, "the same method and params name the same task")
	_, err = ds.CreateTask(ctx, "", params, nil, "")
	assert.True(t, errs.IsInvalidInput(err))

	track, err := ds.CreateTask(ctx, "track", TaskParams{}, []string{task.Name()}, "")
	require.NoError(t, err)
	ok, err = track.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	prereqs, err := track.PrerequisiteTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{task.Name()}, prereqs)

	all, err := ds.LoadTasks("")
	require.NoError(t, err)
	n, err := all.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, ds.DeleteTask(ctx, track.Name()))
	n, err = all.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestTask_Progress(t *testing.T) {
	ctx := context.Background()
	_, _, task := openTask(t)

	done, err := task.IsDone(ctx, "walk")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, task.SetStarted(ctx, "walk", 0))
	done, err = task.IsDone(ctx, "walk")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, task.SetDone(ctx, "walk", 0))
	done, err = task.IsDone(ctx, "walk")
	require.NoError(t, err)
	assert.True(t, done)

	assert.True(t, errs.IsInvalidInput(task.SetDone(ctx, "", 0)))
}

func TestProcesses(t *testing.T) {
	ctx := context.Background()
	_, ds, task := openTask(t)

	p, err := task.CreateProcess(ctx, "walk", "intervals")
	require.NoError(t, err)
	id := p.ID()
	assert.Positive(t, id)
	assert.Equal(t, task.Name(), p.TaskName())
	assert.Equal(t, "walk", p.Inputs())
	assert.Equal(t, "intervals", p.Outputs())
	assert.Equal(t, database.StatusCreated, p.State().Status)
	assert.Equal(t, id, p.Commons().Context.Process)

	assert.True(t, errs.IsInvalidInput(p.UpdateStateSuspended(ctx)), "only a running process suspends")

	require.NoError(t, p.UpdateStateRunning(ctx, 40, "frame 12"))
	st := p.State()
	assert.Equal(t, database.StatusRunning, st.Status)
	assert.Equal(t, float32(40), st.Progress)
	assert.Equal(t, "frame 12", st.CurrentItem)

	reread, err := ds.LoadProcesses(id)
	require.NoError(t, err)
	ok, err := reread.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, st, reread.State())

	require.NoError(t, p.UpdateStateRunning(ctx, 250, "frame 99"))
	assert.Equal(t, float32(100), p.State().Progress)

	require.NoError(t, p.UpdateStateSuspended(ctx))
	assert.Equal(t, database.StatusSuspended, p.State().Status)

	require.NoError(t, p.UpdateStateFinished(ctx))
	assert.Equal(t, database.StatusFinished, p.State().Status)
	assert.Equal(t, float32(100), p.State().Progress)
	assert.True(t, errs.IsInvalidInput(p.UpdateStateRunning(ctx, 10, "")), "a finished process stays finished")

	require.NoError(t, p.SetIPCPort(ctx, 5555))

	second, err := task.CreateProcess(ctx, "", "")
	require.NoError(t, err)
	assert.Greater(t, second.ID(), id)
	require.NoError(t, second.UpdateStateError(ctx, "decoder crashed"))
	assert.Equal(t, database.StatusError, second.State().Status)
	assert.Equal(t, "decoder crashed", second.State().LastError)

	all, err := task.LoadProcesses(0)
	require.NoError(t, err)
	var ids []int
	for {
		ok, err := all.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		ids = append(ids, all.ID())
		if all.ID() == id {
			assert.Equal(t, 5555, all.IPCPort())
			assert.Equal(t, database.StatusFinished, all.State().Status)
		}
	}
	assert.Equal(t, []int{id, second.ID()}, ids)

	loaded, err := reread.LoadTask()
	require.NoError(t, err)
	ok, err = loaded.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, task.Name(), loaded.Name())
}

func TestCreateProcess_ReportsOwnRow(t *testing.T) {
	ctx := context.Background()
	_, _, task := openTask(t)

	// another writer's row lands right after ours
	require.NoError(t, task.Commons().Conn().Execute(ctx,
		`CREATE TRIGGER demo.neighbour AFTER INSERT ON processes WHEN NEW.inputs = 'mine'
		 BEGIN INSERT INTO processes (taskname, state, inputs) VALUES (NEW.taskname, NEW.state, 'theirs'); END`, nil),
		task.Commons().Conn().LastError())

	p, err := task.CreateProcess(ctx, "mine", "")
	require.NoError(t, err)
	assert.Equal(t, "mine", p.Inputs())

	all, err := task.LoadProcesses(0)
	require.NoError(t, err)
	n, err := all.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestClampProgress(t *testing.T) {
	assert.Equal(t, float32(0), clampProgress(-3))
	assert.Equal(t, float32(55.5), clampProgress(55.5))
	assert.Equal(t, float32(100), clampProgress(101))
}
