package vtapi

import (
	"context"
	"fmt"
	"time"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/errs"
	"github.com/koustreak/vtapi/internal/query"
)

const intervalsTable = "intervals"

// Interval iterates an output table of the current dataset: frame ranges
// of a sequence, each optionally carrying an event.
type Interval struct {
	KeyValues
}

// NewInterval selects every row of table, intervals when empty. Narrow
// the rows with the Filter methods before the first Next.
func NewInterval(c *Commons, table string) (*Interval, error) {
	if err := c.requireDataset(); err != nil {
		return nil, err
	}
	if table == "" {
		table = intervalsTable
	}
	iv := &Interval{KeyValues: newKeyValues(c.Derive(), c.Context.Dataset, table)}
	if b := iv.where(); b != nil {
		b.OrderBy("seqname", false)
		b.OrderBy("t1", false)
		b.OrderBy("id", false)
	}
	iv.onRow = func() {
		iv.c.Context.Sequence = iv.SequenceName()
		iv.c.Context.Task = iv.TaskName()
	}
	iv.preUpdate = func(b database.QueryBuilder) bool {
		id := iv.ID()
		return id > 0 && b.WhereInt("id", int32(id), "=", "")
	}
	return iv, nil
}

func (iv *Interval) ID() int              { return int(iv.i32("id")) }
func (iv *Interval) TaskName() string     { return iv.str("taskname") }
func (iv *Interval) SequenceName() string { return iv.str("seqname") }
func (iv *Interval) ProcessID() int       { return int(iv.i32("prsid")) }

// StartTime and EndTime are frame numbers, counted from 1.
func (iv *Interval) StartTime() int32 { return iv.i32("t1") }
func (iv *Interval) EndTime() int32   { return iv.i32("t2") }

func (iv *Interval) RealStartTime() time.Time { return iv.ts("rt_start") }
func (iv *Interval) RealEndTime() time.Time   { return iv.ts("rt_end") }
func (iv *Interval) Created() time.Time       { return iv.ts("created") }

// Event returns the event of the row; a row without one reads as the zero
// event.
func (iv *Interval) Event() database.IntervalEvent {
	ev, err := iv.GetIntervalEvent("event")
	iv.debug("event", err)
	return ev
}

func (iv *Interval) Features() []float64 {
	v, err := iv.GetFloatVector("features")
	iv.debug("features", err)
	return v
}

// --- filters ---

func (iv *Interval) FilterBySequence(seq string) bool {
	b := iv.where()
	return b != nil && b.WhereString("seqname", seq, "=", "")
}

func (iv *Interval) FilterByTask(task string) bool {
	b := iv.where()
	return b != nil && b.WhereString("taskname", task, "=", "")
}

func (iv *Interval) FilterByProcess(id int) bool {
	b := iv.where()
	return b != nil && b.WhereInt("prsid", int32(id), "=", "")
}

// FilterByFrames keeps intervals overlapping frames from..to.
func (iv *Interval) FilterByFrames(from, to int32) bool {
	b := iv.where()
	if b == nil {
		return false
	}
	if to < from {
		from, to = to, from
	}
	return b.WhereInt("t2", from, ">=", "") && b.WhereInt("t1", to, "<=", "")
}

// FilterByTimeRange keeps intervals whose real time overlaps start..end.
func (iv *Interval) FilterByTimeRange(start, end time.Time) bool {
	b := iv.where()
	return b != nil && b.WhereTimeRange("rt_start", "rt_end", start, end, "&&", "")
}

// FilterByRegion keeps intervals whose event region overlaps region. It
// reports false on backends without region predicates.
func (iv *Interval) FilterByRegion(region database.Box) bool {
	b := iv.where()
	return b != nil && b.WhereRegion("event,region", region, "&&", "")
}

// FilterByEvent keeps intervals whose event matches f. It reports false
// on backends without event filters.
func (iv *Interval) FilterByEvent(f database.EventFilter) bool {
	b := iv.where()
	return b != nil && b.WhereEvent("event", f, "")
}

// --- IntervalOutput ---

// IntervalOutput batches the intervals one process writes for one
// sequence. Commit stores the whole batch or nothing.
type IntervalOutput struct {
	c       *Commons
	table   string
	task    string
	seq     string
	process int
	pending []*OutputInterval
}

// NewIntervalOutput starts an empty batch for table.
func NewIntervalOutput(c *Commons, table, task, seq string, process int) (*IntervalOutput, error) {
	if err := c.requireDataset(); err != nil {
		return nil, err
	}
	if err := requireName("task", task); err != nil {
		return nil, err
	}
	if err := requireName("sequence", seq); err != nil {
		return nil, err
	}
	if table == "" {
		table = intervalsTable
	}
	return &IntervalOutput{c: c.Derive(), table: table, task: task, seq: seq, process: process}, nil
}

// OutputInterval is one staged row.
type OutputInterval struct {
	ins *query.Insert
}

// NewInterval stages a row for frames t1..t2.
func (o *IntervalOutput) NewInterval(t1, t2 int32) *OutputInterval {
	if t2 < t1 {
		t1, t2 = t2, t1
	}
	ins := query.NewInsert(o.c.Env(), o.table)
	ins.SetSchema(o.c.Context.Dataset)
	oi := &OutputInterval{ins: ins}
	if b := ins.Builder; b != nil {
		b.KeyString("taskname", o.task, "")
		b.KeyString("seqname", o.seq, "")
		if o.process > 0 {
			b.KeyInt("prsid", int32(o.process), "")
		}
		b.KeyInt("t1", t1, "")
		b.KeyInt("t2", t2, "")
	}
	o.pending = append(o.pending, oi)
	return oi
}

// Pending returns the number of staged rows.
func (o *IntervalOutput) Pending() int { return len(o.pending) }

// Commit inserts every staged row in one transaction and empties the
// batch, whether or not it succeeded.
func (o *IntervalOutput) Commit(ctx context.Context) error {
	if len(o.pending) == 0 {
		return nil
	}
	batch := o.pending
	o.Discard()
	err := inTransaction(ctx, o.c, []string{o.c.Context.Dataset}, func() error {
		for i, oi := range batch {
			if err := oi.ins.Execute(ctx); err != nil {
				return errs.Wrap(errs.KindOf(err), fmt.Sprintf("interval output: row %d failed", i), err)
			}
		}
		return nil
	})
	if err != nil {
		o.c.Log().ErrorWith("interval batch rolled back", err, map[string]any{
			"table": o.table, "task": o.task, "sequence": o.seq, "rows": len(batch),
		})
	}
	return err
}

// Discard drops the staged rows.
func (o *IntervalOutput) Discard() { o.pending = nil }

func (oi *OutputInterval) builder() database.QueryBuilder { return oi.ins.Builder }

func (oi *OutputInterval) SetRealTime(start, end time.Time) *OutputInterval {
	if b := oi.builder(); b != nil {
		b.KeyTimestamp("rt_start", start, "")
		b.KeyTimestamp("rt_end", end, "")
	}
	return oi
}

func (oi *OutputInterval) SetEvent(ev database.IntervalEvent) *OutputInterval {
	if b := oi.builder(); b != nil {
		b.KeyIntervalEvent("event", ev, "")
	}
	return oi
}

func (oi *OutputInterval) SetFeatures(v []float64) *OutputInterval {
	if b := oi.builder(); b != nil {
		b.KeyFloatVector("features", v, "")
	}
	return oi
}

// SetString, SetInt and SetFloat fill extra columns of custom output
// tables.
func (oi *OutputInterval) SetString(key, v string) bool {
	b := oi.builder()
	return b != nil && b.KeyString(key, v, "")
}

func (oi *OutputInterval) SetInt(key string, v int32) bool {
	b := oi.builder()
	return b != nil && b.KeyInt(key, v, "")
}

func (oi *OutputInterval) SetFloat(key string, v float64) bool {
	b := oi.builder()
	return b != nil && b.KeyFloat64(key, v, "")
}
