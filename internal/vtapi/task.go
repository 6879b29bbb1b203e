package vtapi

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	json "github.com/goccy/go-json"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/errs"
	"github.com/koustreak/vtapi/internal/query"
)

const (
	tasksTable       = "tasks"
	tasksPrereqTable = "tasks_prereq"
)

// --- TaskParams ---

// TaskParams holds the input values a task runs with. Values are int,
// float64, string or slices of those.
type TaskParams map[string]any

func (p TaskParams) SetInt(key string, v int) TaskParams         { p[key] = v; return p }
func (p TaskParams) SetFloat(key string, v float64) TaskParams   { p[key] = v; return p }
func (p TaskParams) SetString(key, v string) TaskParams          { p[key] = v; return p }
func (p TaskParams) SetIntVector(key string, v []int) TaskParams { p[key] = v; return p }
func (p TaskParams) SetFloatVector(key string, v []float64) TaskParams {
	p[key] = v
	return p
}
func (p TaskParams) SetStringVector(key string, v []string) TaskParams {
	p[key] = v
	return p
}

// GetInt returns the value of key as an int.
func (p TaskParams) GetInt(key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), v == float64(int(v))
	}
	return 0, false
}

func (p TaskParams) GetFloat(key string) (float64, bool) {
	switch v := p[key].(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func (p TaskParams) GetString(key string) (string, bool) {
	v, ok := p[key].(string)
	return v, ok
}

// Keys returns the parameter names in sorted order.
func (p TaskParams) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Encode renders the canonical form: a JSON object with sorted keys, so
// equal parameters always produce the same text.
func (p TaskParams) Encode() string {
	if len(p) == 0 {
		return "{}"
	}
	data, err := json.Marshal(map[string]any(p))
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ParseTaskParams decodes the canonical form. Numbers come back as
// float64; GetInt converts them.
func ParseTaskParams(s string) (TaskParams, error) {
	p := TaskParams{}
	if s == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, errs.Wrap(errs.ErrKindDecode, "invalid task params", err)
	}
	return p, nil
}

// ConstructTaskName derives the task name from its method and params.
func ConstructTaskName(method string, params TaskParams) string {
	return fmt.Sprintf("%s_%016x", method, xxhash.Sum64String(params.Encode()))
}

// --- Task ---

// Task iterates the tasks of the current dataset.
type Task struct {
	KeyValues
}

// NewTask selects the task called name in the Context's dataset, or every
// task when name is empty.
func NewTask(c *Commons, name string) (*Task, error) {
	if err := c.requireDataset(); err != nil {
		return nil, err
	}
	t := &Task{KeyValues: newKeyValues(c.Derive(), c.Context.Dataset, tasksTable)}
	if b := t.where(); b != nil {
		if name != "" {
			b.WhereString("taskname", name, "=", "")
		}
		b.OrderBy("taskname", false)
	}
	t.onRow = func() {
		t.c.Context.Task = t.Name()
		t.c.Context.Method = t.MethodName()
	}
	t.preUpdate = func(b database.QueryBuilder) bool {
		name := t.Name()
		return name != "" && b.WhereString("taskname", name, "=", "")
	}
	return t, nil
}

func (t *Task) Name() string       { return t.str("taskname") }
func (t *Task) MethodName() string { return t.str("mtname") }
func (t *Task) Created() time.Time { return t.ts("created") }

// OutputTable is the table the task's results are written to.
func (t *Task) OutputTable() string {
	if out := t.str("outputs"); out != "" {
		return out
	}
	return intervalsTable
}

// Params decodes the task's parameters. Malformed params decode empty.
func (t *Task) Params() TaskParams {
	p, err := ParseTaskParams(t.str("params"))
	if err != nil {
		t.debug("params", err)
		return TaskParams{}
	}
	return p
}

// LoadMethod selects the method the task runs.
func (t *Task) LoadMethod() *Method {
	return NewMethod(t.c, t.MethodName())
}

// LoadProcesses iterates the task's processes, or only process id when it
// is positive.
func (t *Task) LoadProcesses(id int) (*Process, error) {
	p, err := NewProcess(t.c, id)
	if err != nil {
		return nil, err
	}
	if b := p.where(); b != nil {
		b.WhereString("taskname", t.Name(), "=", "")
	}
	return p, nil
}

// LoadOutputIntervals iterates what the task wrote, restricted to seq
// when it is set.
func (t *Task) LoadOutputIntervals(seq string) (*Interval, error) {
	iv, err := NewInterval(t.c, t.OutputTable())
	if err != nil {
		return nil, err
	}
	iv.FilterByTask(t.Name())
	if seq != "" {
		iv.FilterBySequence(seq)
	}
	return iv, nil
}

// NewOutput starts a batch of intervals for seq written by process.
func (t *Task) NewOutput(seq string, process int) (*IntervalOutput, error) {
	return NewIntervalOutput(t.c, t.OutputTable(), t.Name(), seq, process)
}

// PrerequisiteTasks lists the tasks that must be done before this one.
func (t *Task) PrerequisiteTasks(ctx context.Context) ([]string, error) {
	sel := query.NewSelect(t.c.Env(), tasksPrereqTable)
	sel.SetSchema(t.c.Context.Dataset)
	sel.From("", "taskprereq")
	sel.Builder.WhereString("taskname", t.Name(), "=", "")
	sel.Builder.OrderBy("taskprereq", false)
	n, err := sel.Execute(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		sel.Result.SetPos(i)
		name, err := sel.Result.GetString(0)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// IsDone reports whether the task finished sequence seq.
func (t *Task) IsDone(ctx context.Context, seq string) (bool, error) {
	sel := query.NewSelect(t.c.Env(), tasksSeqTable)
	sel.SetSchema(t.c.Context.Dataset)
	sel.From("", "is_done")
	sel.Builder.WhereString("taskname", t.Name(), "=", "")
	sel.Builder.WhereString("seqname", seq, "=", "")
	n, err := sel.Execute(ctx)
	if err != nil || n < 1 {
		return false, err
	}
	return sel.Result.GetBool(0)
}

// SetDone records that process finished sequence seq.
func (t *Task) SetDone(ctx context.Context, seq string, process int) error {
	return t.setProgress(ctx, seq, process, true)
}

// SetStarted records that process works on sequence seq.
func (t *Task) SetStarted(ctx context.Context, seq string, process int) error {
	return t.setProgress(ctx, seq, process, false)
}

func (t *Task) setProgress(ctx context.Context, seq string, process int, done bool) error {
	if err := requireName("sequence", seq); err != nil {
		return err
	}
	name := t.Name()
	if err := requireName("task", name); err != nil {
		return err
	}
	ds := t.c.Context.Dataset
	return inTransaction(ctx, t.c, []string{ds}, func() error {
		del := query.NewDelete(t.c.Env(), tasksSeqTable)
		del.SetSchema(ds)
		del.Builder.WhereString("taskname", name, "=", "")
		del.Builder.WhereString("seqname", seq, "=", "")
		if err := del.Execute(ctx); err != nil {
			return err
		}
		ins := query.NewInsert(t.c.Env(), tasksSeqTable)
		ins.SetSchema(ds)
		ins.Builder.KeyString("taskname", name, "")
		ins.Builder.KeyString("seqname", seq, "")
		if process > 0 {
			ins.Builder.KeyInt("prsid", int32(process), "")
		}
		ins.Builder.KeyBool("is_done", done, "")
		return ins.Execute(ctx)
	})
}

// CreateProcess registers a new process of the task in state created and
// returns it positioned on its row.
func (t *Task) CreateProcess(ctx context.Context, inputs, outputs string) (*Process, error) {
	name := t.Name()
	if err := requireName("task", name); err != nil {
		return nil, err
	}
	ds := t.c.Context.Dataset
	ins := query.NewInsert(t.c.Env(), processesTable)
	ins.SetSchema(ds)
	ins.Builder.KeyString("taskname", name, "")
	ins.Builder.KeyProcessState("state", database.ProcessState{Status: database.StatusCreated}, "")
	if inputs != "" {
		ins.Builder.KeyString("inputs", inputs, "")
	}
	if outputs != "" {
		ins.Builder.KeyString("outputs", outputs, "")
	}
	id, err := ins.ExecuteReturning(ctx, "prsid")
	if err != nil {
		return nil, err
	}

	p, err := t.LoadProcesses(int(id))
	if err != nil {
		return nil, err
	}
	ok, err := p.Next(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "process of task %q vanished", name)
	}
	return p, nil
}
