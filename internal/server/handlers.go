package server

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/errs"
	"github.com/koustreak/vtapi/internal/filestore"
	"github.com/koustreak/vtapi/internal/vtapi"
)

const (
	defaultLimit = 1000
	maxLimit     = 10000
)

// --- response bodies ---

type datasetJSON struct {
	Name         string    `json:"name"`
	Location     string    `json:"location"`
	FriendlyName string    `json:"friendly_name,omitempty"`
	Description  string    `json:"description,omitempty"`
	Created      time.Time `json:"created"`
}

type sequenceJSON struct {
	Name     string           `json:"name"`
	Location string           `json:"location"`
	Type     database.SeqType `json:"type"`
	Comment  string           `json:"comment,omitempty"`
	Length   int32            `json:"length,omitempty"`
	Created  time.Time        `json:"created"`
}

type methodKeyJSON struct {
	Name        string             `json:"name"`
	Type        string             `json:"type"`
	InOut       database.InOutType `json:"inout"`
	Required    bool               `json:"required"`
	DefaultNum  []float64          `json:"default_num,omitempty"`
	DefaultStr  []string           `json:"default_str,omitempty"`
	Description string             `json:"description,omitempty"`
}

type methodJSON struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Keys        []methodKeyJSON `json:"keys"`
	Created     time.Time       `json:"created"`
}

type taskJSON struct {
	Name        string           `json:"name"`
	Method      string           `json:"method"`
	OutputTable string           `json:"output_table"`
	Params      vtapi.TaskParams `json:"params"`
	Created     time.Time        `json:"created"`
}

type stateJSON struct {
	Status      database.ProcessStatus `json:"status"`
	Progress    float32                `json:"progress"`
	CurrentItem string                 `json:"current_item,omitempty"`
	LastError   string                 `json:"last_error,omitempty"`
}

type processJSON struct {
	ID      int       `json:"id"`
	Task    string    `json:"task"`
	State   stateJSON `json:"state"`
	IPCPort int       `json:"ipc_port,omitempty"`
	Inputs  string    `json:"inputs,omitempty"`
	Outputs string    `json:"outputs,omitempty"`
	Created time.Time `json:"created"`
}

type boxJSON [4]float64

type eventJSON struct {
	GroupID int32   `json:"group_id"`
	ClassID int32   `json:"class_id"`
	IsRoot  bool    `json:"is_root"`
	Region  boxJSON `json:"region"`
	Score   float64 `json:"score"`
}

type intervalJSON struct {
	ID        int        `json:"id"`
	Task      string     `json:"task"`
	Sequence  string     `json:"sequence"`
	Process   int        `json:"process,omitempty"`
	T1        int32      `json:"t1"`
	T2        int32      `json:"t2"`
	RealStart *time.Time `json:"rt_start,omitempty"`
	RealEnd   *time.Time `json:"rt_end,omitempty"`
	Event     eventJSON  `json:"event"`
	Features  []float64  `json:"features,omitempty"`
}

type fileJSON struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// --- handlers ---

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ok := s.api.Ping(r.Context())
	s.mu.Unlock()

	body := map[string]any{"backend": s.api.Backend(), "status": "ok"}
	if !ok {
		body["status"] = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) listDatasets(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ds := s.api.LoadDatasets("")
	out, err := collect(r.Context(), ds.Next, limit, func() datasetJSON { return toDataset(ds) })
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getDataset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, err := s.dataset(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDataset(ds))
}

func (s *Server) listMethods(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := r.Context()
	m := s.api.LoadMethods("")
	out := []methodJSON{}
	for {
		ok, err := m.Next(ctx)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if !ok {
			break
		}
		defs, err := m.MethodKeyDefs(ctx)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		mj := methodJSON{Name: m.Name(), Description: m.Description(), Created: m.Created(), Keys: []methodKeyJSON{}}
		for _, d := range defs {
			mj.Keys = append(mj.Keys, methodKeyJSON(d))
		}
		out = append(out, mj)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listSequences(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, err := s.dataset(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	seq, err := ds.LoadSequences("")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if typ := r.URL.Query().Get("type"); typ != "" {
		if _, ok := database.ParseSeqType(typ); !ok {
			s.fail(w, r, errs.Newf(errs.ErrKindInvalidInput, "unknown sequence type %q", typ))
			return
		}
		seq.Select().Builder.WhereSeqtype("seqtyp", typ, "=", "")
	}
	out, err := collect(r.Context(), seq.Next, limit, func() sequenceJSON {
		return sequenceJSON{
			Name:     seq.Name(),
			Location: seq.Location(),
			Type:     seq.Type(),
			Comment:  seq.Comment(),
			Length:   seq.Length(),
			Created:  seq.Created(),
		}
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, err := s.dataset(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	task, err := ds.LoadTasks("")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := collect(r.Context(), task.Next, limit, func() taskJSON {
		return taskJSON{
			Name:        task.Name(),
			Method:      task.MethodName(),
			OutputTable: task.OutputTable(),
			Params:      task.Params(),
			Created:     task.Created(),
		}
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listProcesses(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, err := s.dataset(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := ds.LoadProcesses(0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if task := r.URL.Query().Get("task"); task != "" {
		p.Select().Builder.WhereString("taskname", task, "=", "")
	}
	out, err := collect(r.Context(), p.Next, limit, func() processJSON {
		st := p.State()
		return processJSON{
			ID:      p.ID(),
			Task:    p.TaskName(),
			State:   stateJSON(st),
			IPCPort: p.IPCPort(),
			Inputs:  p.Inputs(),
			Outputs: p.Outputs(),
			Created: p.Created(),
		}
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// listIntervals serves the output of one task, optionally narrowed to a
// sequence and a frame range.
func (s *Server) listIntervals(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	from, err := int32Param(q.Get("from"), 1)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := int32Param(q.Get("to"), 1<<31-1)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ds, err := s.dataset(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	task, err := ds.LoadTasks(chi.URLParam(r, "task"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok, err := task.Next(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		s.fail(w, r, errs.Newf(errs.ErrKindNotFound, "task %q not found", chi.URLParam(r, "task")))
		return
	}
	iv, err := task.LoadOutputIntervals(q.Get("sequence"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if q.Has("from") || q.Has("to") {
		iv.FilterByFrames(from, to)
	}
	out, err := collect(r.Context(), iv.Next, limit, func() intervalJSON { return toInterval(iv) })
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// sequenceData streams a video file, or lists the files of an image
// folder. The lock is released before streaming starts.
func (s *Server) sequenceData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.mu.Lock()
	seq, err := s.sequence(r)
	if err != nil {
		s.mu.Unlock()
		s.fail(w, r, err)
		return
	}
	if seq.Type() == database.SeqImages {
		files, err := seq.Files(ctx)
		s.mu.Unlock()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toFiles(files))
		return
	}
	obj, err := seq.Open(ctx)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer obj.Close()

	info := obj.Info()
	ct := info.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj); err != nil {
		s.log.ErrorWith("streaming sequence data failed", err, map[string]any{"key": info.Key})
	}
}

// --- helpers ---

// dataset positions on the dataset named in the path. The caller holds
// the lock.
func (s *Server) dataset(r *http.Request) (*vtapi.Dataset, error) {
	name := chi.URLParam(r, "dataset")
	ds := s.api.LoadDatasets(name)
	ok, err := ds.Next(r.Context())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "dataset %q not found", name)
	}
	return ds, nil
}

func (s *Server) sequence(r *http.Request) (*vtapi.Sequence, error) {
	ds, err := s.dataset(r)
	if err != nil {
		return nil, err
	}
	name := chi.URLParam(r, "sequence")
	seq, err := ds.LoadSequences(name)
	if err != nil {
		return nil, err
	}
	ok, err := seq.Next(r.Context())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "sequence %q not found", name)
	}
	return seq, nil
}

// collect reads at most limit rows through next, converting each with row.
func collect[T any](ctx context.Context, next func(context.Context) (bool, error), limit int, row func() T) ([]T, error) {
	out := []T{}
	for len(out) < limit {
		ok, err := next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, row())
	}
	return out, nil
}

func limitParam(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errs.Newf(errs.ErrKindInvalidInput, "invalid limit %q", v)
	}
	return min(n, maxLimit), nil
}

func int32Param(v string, def int32) (int32, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, errs.Wrap(errs.ErrKindInvalidInput, "invalid frame "+strconv.Quote(v), err)
	}
	return int32(n), nil
}

func toDataset(ds *vtapi.Dataset) datasetJSON {
	return datasetJSON{
		Name:         ds.Name(),
		Location:     ds.Location(),
		FriendlyName: ds.FriendlyName(),
		Description:  ds.Description(),
		Created:      ds.Created(),
	}
}

func toInterval(iv *vtapi.Interval) intervalJSON {
	ev := iv.Event()
	out := intervalJSON{
		ID:       iv.ID(),
		Task:     iv.TaskName(),
		Sequence: iv.SequenceName(),
		Process:  iv.ProcessID(),
		T1:       iv.StartTime(),
		T2:       iv.EndTime(),
		Event: eventJSON{
			GroupID: ev.GroupID,
			ClassID: ev.ClassID,
			IsRoot:  ev.IsRoot,
			Region:  boxJSON{ev.Region.Low.X, ev.Region.Low.Y, ev.Region.High.X, ev.Region.High.Y},
			Score:   ev.Score,
		},
		Features: iv.Features(),
	}
	if t := iv.RealStartTime(); !t.IsZero() {
		out.RealStart = &t
	}
	if t := iv.RealEndTime(); !t.IsZero() {
		out.RealEnd = &t
	}
	return out
}

func toFiles(files []filestore.ObjectInfo) []fileJSON {
	out := make([]fileJSON, 0, len(files))
	for _, f := range files {
		if f.IsDir {
			continue
		}
		out = append(out, fileJSON{Key: f.Key, Size: f.Size, ContentType: f.ContentType, LastModified: f.LastModified})
	}
	return out
}
