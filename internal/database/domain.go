package database

// SeqType is the kind of a sequence (public.seqtype).
type SeqType string

const (
	SeqImages SeqType = "images"
	SeqVideo  SeqType = "video"
	SeqData   SeqType = "data"
)

// ParseSeqType validates s against the seqtype domain.
func ParseSeqType(s string) (SeqType, bool) {
	switch SeqType(s) {
	case SeqImages, SeqVideo, SeqData:
		return SeqType(s), true
	}
	return "", false
}

// InOutType marks a method key as input, output or both (public.inouttype).
type InOutType string

const (
	InOutIn    InOutType = "in"
	InOutOut   InOutType = "out"
	InOutInOut InOutType = "inout"
)

// ParseInOutType validates s against the inouttype domain.
func ParseInOutType(s string) (InOutType, bool) {
	switch InOutType(s) {
	case InOutIn, InOutOut, InOutInOut:
		return InOutType(s), true
	}
	return "", false
}

// ProcessStatus is the lifecycle state of a process (public.pstatus).
type ProcessStatus string

const (
	StatusCreated   ProcessStatus = "created"
	StatusRunning   ProcessStatus = "running"
	StatusSuspended ProcessStatus = "suspended"
	StatusFinished  ProcessStatus = "finished"
	StatusError     ProcessStatus = "error"
)

// ParseProcessStatus validates s against the pstatus domain.
func ParseProcessStatus(s string) (ProcessStatus, bool) {
	switch ProcessStatus(s) {
	case StatusCreated, StatusRunning, StatusSuspended, StatusFinished, StatusError:
		return ProcessStatus(s), true
	}
	return "", false
}

// Point is a 2-D point.
type Point struct {
	X float64
	Y float64
}

// Box is an axis-aligned rectangle given by two opposite corners.
type Box struct {
	Low  Point
	High Point
}

// Normalize returns the box with Low holding the minimum coordinates.
func (b Box) Normalize() Box {
	if b.Low.X > b.High.X {
		b.Low.X, b.High.X = b.High.X, b.Low.X
	}
	if b.Low.Y > b.High.Y {
		b.Low.Y, b.High.Y = b.High.Y, b.Low.Y
	}
	return b
}

// Overlaps reports whether b and o share at least one point.
func (b Box) Overlaps(o Box) bool {
	b, o = b.Normalize(), o.Normalize()
	return b.Low.X <= o.High.X && o.Low.X <= b.High.X &&
		b.Low.Y <= o.High.Y && o.Low.Y <= b.High.Y
}

// Contains reports whether o lies entirely inside b.
func (b Box) Contains(o Box) bool {
	b, o = b.Normalize(), o.Normalize()
	return b.Low.X <= o.Low.X && o.High.X <= b.High.X &&
		b.Low.Y <= o.Low.Y && o.High.Y <= b.High.Y
}

// IntervalEvent is the composite record attached to an interval
// (public.vtevent). Field order is the wire order.
type IntervalEvent struct {
	GroupID  int32
	ClassID  int32
	IsRoot   bool
	Region   Box
	Score    float64
	UserData []byte
}

// ProcessState is the composite state of a process (public.pstate).
type ProcessState struct {
	Status      ProcessStatus
	Progress    float32
	CurrentItem string
	LastError   string
}

// Mat is a dense matrix in OpenCV layout (public.cvmat): an element type
// code, the size of every dimension and the raw element bytes.
type Mat struct {
	Type int32
	Dims []int32
	Data []byte
}

// EventFilter narrows interval events. Negative ids match any group/class.
type EventFilter struct {
	GroupID  int32
	ClassID  int32
	RootOnly bool
	Region   *Box
	MinScore float64
}

// AnyEvent returns a filter that matches every event.
func AnyEvent() EventFilter {
	return EventFilter{GroupID: -1, ClassID: -1}
}

// Match applies the filter to ev.
func (f EventFilter) Match(ev IntervalEvent) bool {
	if f.GroupID >= 0 && ev.GroupID != f.GroupID {
		return false
	}
	if f.ClassID >= 0 && ev.ClassID != f.ClassID {
		return false
	}
	if f.RootOnly && !ev.IsRoot {
		return false
	}
	if f.Region != nil && !f.Region.Overlaps(ev.Region) {
		return false
	}
	return ev.Score >= f.MinScore
}
