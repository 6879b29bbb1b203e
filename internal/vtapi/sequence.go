package vtapi

import (
	"context"
	"time"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/filestore"
)

const (
	sequencesTable = "sequences"
	tasksSeqTable  = "tasks_seq"
)

// Sequence iterates the sequences of the current dataset.
type Sequence struct {
	KeyValues
}

// NewSequence selects the sequence called name in the Context's dataset,
// or every sequence when name is empty.
func NewSequence(c *Commons, name string) (*Sequence, error) {
	s := &Sequence{}
	if err := s.init(c, name, ""); err != nil {
		return nil, err
	}
	return s, nil
}

// init binds s, restricted to sequences of kind typ when it is set.
func (s *Sequence) init(c *Commons, name string, typ database.SeqType) error {
	if err := c.requireDataset(); err != nil {
		return err
	}
	s.KeyValues = newKeyValues(c.Derive(), c.Context.Dataset, sequencesTable)
	if b := s.where(); b != nil {
		if name != "" {
			b.WhereString("seqname", name, "=", "")
		}
		if typ != "" {
			b.WhereSeqtype("seqtyp", string(typ), "=", "")
		}
		b.OrderBy("seqname", false)
	}
	s.onRow = func() { s.c.Context.Sequence = s.Name() }
	s.preUpdate = func(b database.QueryBuilder) bool {
		name := s.Name()
		return name != "" && b.WhereString("seqname", name, "=", "")
	}
	return nil
}

func (s *Sequence) Name() string     { return s.str("seqname") }
func (s *Sequence) Location() string { return s.str("seqlocation") }
func (s *Sequence) Comment() string  { return s.str("comment") }
func (s *Sequence) Length() int32    { return s.i32("vid_length") }
func (s *Sequence) Created() time.Time {
	return s.ts("created")
}

// Type returns the sequence kind, or "" when the row is gone.
func (s *Sequence) Type() database.SeqType {
	t, err := s.sel.Result.GetSeqType(s.col("seqtyp"))
	s.debug("seqtyp", err)
	return t
}

// DataLocation is the path of the sequence data on disk.
func (s *Sequence) DataLocation() string {
	return s.c.DataLocation(s.Location())
}

// DataKey is the file store key of the sequence data.
func (s *Sequence) DataKey() string {
	return filestore.JoinKey(s.c.Context.DatasetLocation, s.Location())
}

// Stat describes the sequence data in the file store.
func (s *Sequence) Stat(ctx context.Context) (*filestore.ObjectInfo, error) {
	st, err := s.c.Store(ctx)
	if err != nil {
		return nil, err
	}
	return st.Stat(ctx, s.DataKey())
}

// Open streams the sequence data. Image folders are directories; open
// their files through Files.
func (s *Sequence) Open(ctx context.Context) (filestore.Object, error) {
	st, err := s.c.Store(ctx)
	if err != nil {
		return nil, err
	}
	return st.Open(ctx, s.DataKey())
}

// Files lists the files below the sequence data location.
func (s *Sequence) Files(ctx context.Context) ([]filestore.ObjectInfo, error) {
	st, err := s.c.Store(ctx)
	if err != nil {
		return nil, err
	}
	return st.List(ctx, filestore.ListOptions{Prefix: s.DataKey(), Recursive: true})
}

func (s *Sequence) UpdateComment(ctx context.Context, comment string) error {
	s.SetString("comment", comment)
	return s.SetExecute(ctx)
}

// --- Video ---

// Video is a sequence backed by one video file.
type Video struct {
	Sequence
}

func NewVideo(c *Commons, name string) (*Video, error) {
	v := &Video{}
	if err := v.init(c, name, database.SeqVideo); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Video) FPS() float32   { return v.f32("vid_fps") }
func (v *Video) Speed() float32 { return v.f32("vid_speed") }

// RealStartTime is the wall-clock time of the first frame, or zero.
func (v *Video) RealStartTime() time.Time { return v.ts("vid_time") }

// FrameTime returns the wall-clock time of frame, counted from 1.
func (v *Video) FrameTime(frame int32) time.Time {
	start := v.RealStartTime()
	fps := float64(v.FPS())
	if start.IsZero() || fps <= 0 {
		return time.Time{}
	}
	speed := float64(v.Speed())
	if speed <= 0 {
		speed = 1
	}
	offset := float64(frame-1) / fps * speed
	return start.Add(time.Duration(offset * float64(time.Second)))
}

// UpdateVideoInfo stores the properties read from the video file.
func (v *Video) UpdateVideoInfo(ctx context.Context, length int32, fps, speed float32) error {
	v.SetInt("vid_length", length)
	v.SetFloat("vid_fps", fps)
	v.SetFloat("vid_speed", speed)
	return v.SetExecute(ctx)
}

// --- ImageFolder ---

// ImageFolder is a sequence backed by a directory of images.
type ImageFolder struct {
	Sequence
}

func NewImageFolder(c *Commons, name string) (*ImageFolder, error) {
	f := &ImageFolder{}
	if err := f.init(c, name, database.SeqImages); err != nil {
		return nil, err
	}
	return f, nil
}

// Images lists the image files of the folder in name order.
func (f *ImageFolder) Images(ctx context.Context) ([]filestore.ObjectInfo, error) {
	files, err := f.Files(ctx)
	if err != nil {
		return nil, err
	}
	images := files[:0]
	for _, o := range files {
		if !o.IsDir {
			images = append(images, o)
		}
	}
	return images, nil
}
