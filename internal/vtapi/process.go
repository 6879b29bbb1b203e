package vtapi

import (
	"context"
	"time"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/errs"
)

const processesTable = "processes"

// Process iterates the processes of the current dataset. A process is one
// run of a task; its state column tracks the run's lifecycle.
type Process struct {
	KeyValues

	// written holds the state last stored for the current row.
	written *database.ProcessState
}

// NewProcess selects process id of the Context's dataset, or every process
// when id is not positive.
func NewProcess(c *Commons, id int) (*Process, error) {
	if err := c.requireDataset(); err != nil {
		return nil, err
	}
	p := &Process{KeyValues: newKeyValues(c.Derive(), c.Context.Dataset, processesTable)}
	if b := p.where(); b != nil {
		if id > 0 {
			b.WhereInt("prsid", int32(id), "=", "")
		}
		b.OrderBy("prsid", false)
	}
	p.onRow = func() {
		p.written = nil
		p.c.Context.Process = p.ID()
		p.c.Context.Task = p.TaskName()
	}
	p.preUpdate = func(b database.QueryBuilder) bool {
		id := p.ID()
		return id > 0 && b.WhereInt("prsid", int32(id), "=", "")
	}
	return p, nil
}

func (p *Process) ID() int            { return int(p.i32("prsid")) }
func (p *Process) TaskName() string   { return p.str("taskname") }
func (p *Process) IPCPort() int       { return int(p.i32("ipc_port")) }
func (p *Process) Inputs() string     { return p.str("inputs") }
func (p *Process) Outputs() string    { return p.str("outputs") }
func (p *Process) Created() time.Time { return p.ts("created") }

// State returns the stored state. A NULL state reads as created.
func (p *Process) State() database.ProcessState {
	if p.written != nil {
		return *p.written
	}
	st, err := p.GetProcessState("state")
	p.debug("state", err)
	if st.Status == "" {
		st.Status = database.StatusCreated
	}
	return st
}

// LoadTask selects the task the process runs.
func (p *Process) LoadTask() (*Task, error) {
	return NewTask(p.c, p.TaskName())
}

// --- state updates ---

func (p *Process) UpdateStateRunning(ctx context.Context, progress float32, item string) error {
	st := p.State()
	if st.Status == database.StatusFinished || st.Status == database.StatusError {
		return errs.Newf(errs.ErrKindInvalidInput, "process %d already ended (%s)", p.ID(), st.Status)
	}
	return p.updateState(ctx, database.ProcessState{
		Status:      database.StatusRunning,
		Progress:    clampProgress(progress),
		CurrentItem: item,
	})
}

func (p *Process) UpdateStateSuspended(ctx context.Context) error {
	st := p.State()
	if st.Status != database.StatusRunning {
		return errs.Newf(errs.ErrKindInvalidInput, "process %d is not running (%s)", p.ID(), st.Status)
	}
	st.Status = database.StatusSuspended
	return p.updateState(ctx, st)
}

func (p *Process) UpdateStateFinished(ctx context.Context) error {
	st := p.State()
	st.Status = database.StatusFinished
	st.Progress = 100
	st.LastError = ""
	return p.updateState(ctx, st)
}

func (p *Process) UpdateStateError(ctx context.Context, lastError string) error {
	st := p.State()
	st.Status = database.StatusError
	st.LastError = lastError
	return p.updateState(ctx, st)
}

func (p *Process) updateState(ctx context.Context, st database.ProcessState) error {
	p.SetProcessState("state", st)
	if err := p.SetExecute(ctx); err != nil {
		return err
	}
	p.written = &st
	return nil
}

// SetIPCPort stores the port the process listens on for control messages.
// Like SetInputs and SetOutputs it writes through; the getters keep
// showing the row as read.
func (p *Process) SetIPCPort(ctx context.Context, port int) error {
	p.SetInt("ipc_port", int32(port))
	return p.SetExecute(ctx)
}

func (p *Process) SetInputs(ctx context.Context, inputs string) error {
	p.SetString("inputs", inputs)
	return p.SetExecute(ctx)
}

func (p *Process) SetOutputs(ctx context.Context, outputs string) error {
	p.SetString("outputs", outputs)
	return p.SetExecute(ctx)
}

func clampProgress(v float32) float32 {
	return min(max(v, 0), 100)
}
