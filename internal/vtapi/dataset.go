package vtapi

import (
	"context"
	"time"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/errs"
	"github.com/koustreak/vtapi/internal/query"
)

const datasetsTable = "datasets"

// Dataset iterates public.datasets. Moving to a row makes it the current
// dataset of the entity's Context.
type Dataset struct {
	KeyValues
}

// NewDataset selects the dataset called name, or every dataset when name
// is empty.
func NewDataset(c *Commons, name string) *Dataset {
	d := &Dataset{KeyValues: newKeyValues(c.Derive(), "", datasetsTable)}
	if b := d.where(); b != nil {
		if name != "" {
			b.WhereString("dsname", name, "=", "")
		}
		b.OrderBy("dsname", false)
	}
	d.onRow = func() {
		d.c.Context.Dataset = d.Name()
		d.c.Context.DatasetLocation = d.Location()
	}
	d.preUpdate = func(b database.QueryBuilder) bool {
		name := d.Name()
		return name != "" && b.WhereString("dsname", name, "=", "")
	}
	return d
}

func (d *Dataset) Name() string         { return d.str("dsname") }
func (d *Dataset) Location() string     { return d.str("dslocation") }
func (d *Dataset) FriendlyName() string { return d.str("friendly_name") }
func (d *Dataset) Description() string  { return d.str("description") }
func (d *Dataset) Created() time.Time   { return d.ts("created") }

// DataLocation is the directory of the dataset's sequence data.
func (d *Dataset) DataLocation() string { return d.c.DataLocation() }

// UpdateDescription stores a new description for the current dataset.
func (d *Dataset) UpdateDescription(ctx context.Context, desc string) error {
	d.SetString("description", desc)
	return d.SetExecute(ctx)
}

// --- children ---

func (d *Dataset) LoadSequences(name string) (*Sequence, error) {
	return NewSequence(d.c, name)
}

func (d *Dataset) LoadVideos(name string) (*Video, error) {
	return NewVideo(d.c, name)
}

func (d *Dataset) LoadImageFolders(name string) (*ImageFolder, error) {
	return NewImageFolder(d.c, name)
}

func (d *Dataset) LoadTasks(name string) (*Task, error) {
	return NewTask(d.c, name)
}

func (d *Dataset) LoadProcesses(id int) (*Process, error) {
	return NewProcess(d.c, id)
}

func (d *Dataset) LoadIntervals() (*Interval, error) {
	return NewInterval(d.c, "")
}

// CreateVideo registers a video file below the dataset location.
func (d *Dataset) CreateVideo(ctx context.Context, name, location string, realStart time.Time) (*Video, error) {
	if err := d.c.requireDataset(); err != nil {
		return nil, err
	}
	ins := query.NewInsert(d.c.Env(), sequencesTable)
	ins.SetSchema(d.c.Context.Dataset)
	b := ins.Builder
	b.KeyString("seqname", name, "")
	b.KeyString("seqlocation", location, "")
	b.KeySeqtype("seqtyp", string(database.SeqVideo), "")
	if !realStart.IsZero() {
		b.KeyTimestamp("vid_time", realStart, "")
	}
	if err := ins.Execute(ctx); err != nil {
		return nil, err
	}
	return NewVideo(d.c, name)
}

// CreateImageFolder registers a folder of images below the dataset
// location.
func (d *Dataset) CreateImageFolder(ctx context.Context, name, location string) (*ImageFolder, error) {
	if err := d.c.requireDataset(); err != nil {
		return nil, err
	}
	ins := query.NewInsert(d.c.Env(), sequencesTable)
	ins.SetSchema(d.c.Context.Dataset)
	ins.Builder.KeyString("seqname", name, "")
	ins.Builder.KeyString("seqlocation", location, "")
	ins.Builder.KeySeqtype("seqtyp", string(database.SeqImages), "")
	if err := ins.Execute(ctx); err != nil {
		return nil, err
	}
	return NewImageFolder(d.c, name)
}

// DeleteSequence removes a sequence with its intervals and task progress.
func (d *Dataset) DeleteSequence(ctx context.Context, name string) error {
	if err := d.c.requireDataset(); err != nil {
		return err
	}
	if name == "" {
		return errs.New(errs.ErrKindInvalidInput, "sequence not specified")
	}
	for _, table := range []string{intervalsTable, tasksSeqTable, sequencesTable} {
		del := query.NewDelete(d.c.Env(), table)
		del.SetSchema(d.c.Context.Dataset)
		del.Builder.WhereString("seqname", name, "=", "")
		if err := del.Execute(ctx); err != nil {
			return err
		}
	}
	return nil
}

// CreateTask registers a task of method with params. Its name is derived
// from both, so creating the same task twice fails on the second call.
// outputs names the table the task writes; empty means intervals.
func (d *Dataset) CreateTask(ctx context.Context, method string, params TaskParams, prereqs []string, outputs string) (*Task, error) {
	if err := d.c.requireDataset(); err != nil {
		return nil, err
	}
	if method == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "method not specified")
	}
	if outputs == "" {
		outputs = intervalsTable
	}
	name := ConstructTaskName(method, params)
	if err := createTask(ctx, d.c, name, method, params.Encode(), outputs, prereqs); err != nil {
		return nil, err
	}
	return NewTask(d.c, name)
}

// DeleteTask removes a task and the intervals it produced.
func (d *Dataset) DeleteTask(ctx context.Context, name string) error {
	if err := d.c.requireDataset(); err != nil {
		return err
	}
	if name == "" {
		return errs.New(errs.ErrKindInvalidInput, "task not specified")
	}
	return deleteTask(ctx, d.c, name)
}
