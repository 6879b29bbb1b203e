package database

import (
	"bytes"
	"fmt"
	"slices"
	"time"
)

// Kind tags the Go representation carried by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindChar
	KindInt
	KindInt64
	KindFloat
	KindFloat64
	KindString
	KindStringVector
	KindIntVector
	KindFloatVector
	KindTimestamp
	KindMat
	KindPoint
	KindBox
	KindIntervalEvent
	KindIntervalEventVector
	KindProcessStatus
	KindProcessState
	KindBlob
	KindSeqtype
	KindInouttype
)

var kindNames = [...]string{
	KindNull:                "null",
	KindBool:                "bool",
	KindChar:                "char",
	KindInt:                 "int",
	KindInt64:               "int64",
	KindFloat:               "float",
	KindFloat64:             "float64",
	KindString:              "string",
	KindStringVector:        "string[]",
	KindIntVector:           "int[]",
	KindFloatVector:         "float[]",
	KindTimestamp:           "timestamp",
	KindMat:                 "cvmat",
	KindPoint:               "point",
	KindBox:                 "box",
	KindIntervalEvent:       "vtevent",
	KindIntervalEventVector: "vtevent[]",
	KindProcessStatus:       "pstatus",
	KindProcessState:        "pstate",
	KindBlob:                "blob",
	KindSeqtype:             "seqtype",
	KindInouttype:           "inouttype",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsVector reports whether the kind holds a list of elements.
func (k Kind) IsVector() bool {
	return k == KindStringVector || k == KindIntVector || k == KindFloatVector ||
		k == KindIntervalEventVector
}

// Value is one typed value headed for a statement parameter.
type Value struct {
	kind Kind
	data any
}

func NullValue() Value                 { return Value{kind: KindNull} }
func BoolValue(v bool) Value           { return Value{kind: KindBool, data: v} }
func CharValue(v byte) Value           { return Value{kind: KindChar, data: v} }
func IntValue(v int32) Value           { return Value{kind: KindInt, data: v} }
func Int64Value(v int64) Value         { return Value{kind: KindInt64, data: v} }
func FloatValue(v float32) Value       { return Value{kind: KindFloat, data: v} }
func Float64Value(v float64) Value     { return Value{kind: KindFloat64, data: v} }
func StringValue(v string) Value       { return Value{kind: KindString, data: v} }
func TimestampValue(v time.Time) Value { return Value{kind: KindTimestamp, data: v} }
func PointValue(v Point) Value         { return Value{kind: KindPoint, data: v} }
func BoxValue(v Box) Value             { return Value{kind: KindBox, data: v.Normalize()} }
func SeqtypeValue(v SeqType) Value     { return Value{kind: KindSeqtype, data: v} }
func InouttypeValue(v InOutType) Value { return Value{kind: KindInouttype, data: v} }

func ProcessStatusValue(v ProcessStatus) Value {
	return Value{kind: KindProcessStatus, data: v}
}

func StringVectorValue(v []string) Value {
	return Value{kind: KindStringVector, data: slices.Clone(v)}
}

func IntVectorValue(v []int32) Value {
	return Value{kind: KindIntVector, data: slices.Clone(v)}
}

func FloatVectorValue(v []float64) Value {
	return Value{kind: KindFloatVector, data: slices.Clone(v)}
}

func BlobValue(v []byte) Value {
	return Value{kind: KindBlob, data: bytes.Clone(v)}
}

func MatValue(v Mat) Value {
	return Value{kind: KindMat, data: cloneMat(v)}
}

func IntervalEventValue(v IntervalEvent) Value {
	return Value{kind: KindIntervalEvent, data: cloneEvent(v)}
}

func IntervalEventVectorValue(v []IntervalEvent) Value {
	out := make([]IntervalEvent, len(v))
	for i := range v {
		out[i] = cloneEvent(v[i])
	}
	return Value{kind: KindIntervalEventVector, data: out}
}

func ProcessStateValue(v ProcessState) Value {
	return Value{kind: KindProcessState, data: v}
}

// Kind returns the value's tag.
func (v Value) Kind() Kind { return v.kind }

// Data returns the Go value; its dynamic type is fixed by Kind.
func (v Value) Data() any { return v.data }

// IsNull reports whether v is the SQL NULL value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch d := v.data.(type) {
	case []string:
		return Value{kind: v.kind, data: slices.Clone(d)}
	case []int32:
		return Value{kind: v.kind, data: slices.Clone(d)}
	case []float64:
		return Value{kind: v.kind, data: slices.Clone(d)}
	case []byte:
		return Value{kind: v.kind, data: bytes.Clone(d)}
	case Mat:
		return Value{kind: v.kind, data: cloneMat(d)}
	case IntervalEvent:
		return Value{kind: v.kind, data: cloneEvent(d)}
	case []IntervalEvent:
		return IntervalEventVectorValue(d)
	}
	return v
}

// Elements splits a vector value into scalar values. Scalars return
// themselves as a single element.
func (v Value) Elements() []Value {
	switch d := v.data.(type) {
	case []string:
		out := make([]Value, len(d))
		for i, s := range d {
			out[i] = StringValue(s)
		}
		return out
	case []int32:
		out := make([]Value, len(d))
		for i, n := range d {
			out[i] = IntValue(n)
		}
		return out
	case []float64:
		out := make([]Value, len(d))
		for i, f := range d {
			out[i] = Float64Value(f)
		}
		return out
	case []IntervalEvent:
		out := make([]Value, len(d))
		for i, ev := range d {
			out[i] = IntervalEventValue(ev)
		}
		return out
	}
	return []Value{v}
}

func cloneMat(m Mat) Mat {
	return Mat{Type: m.Type, Dims: slices.Clone(m.Dims), Data: bytes.Clone(m.Data)}
}

func cloneEvent(ev IntervalEvent) IntervalEvent {
	ev.UserData = bytes.Clone(ev.UserData)
	return ev
}

// Params is the parameter bundle owned by one query builder. Ids handed out
// by Add are 1-based; id 0 means "no bound value".
type Params struct {
	values     []Value
	namespaces []string
}

// NewParams returns an empty bundle.
func NewParams() *Params {
	return &Params{}
}

// Add appends v and returns its id.
func (p *Params) Add(v Value) int {
	p.values = append(p.values, v)
	return len(p.values)
}

// Get returns the value registered under id.
func (p *Params) Get(id int) (Value, bool) {
	if p == nil || id < 1 || id > len(p.values) {
		return Value{}, false
	}
	return p.values[id-1], true
}

// Len returns the number of values in the bundle.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.values)
}

// Values returns the values in id order.
func (p *Params) Values() []Value {
	if p == nil {
		return nil
	}
	return p.values
}

// RequireNamespace records that the statement touches namespace ns
// (a dataset). Backends that need to prepare namespaces read them back.
func (p *Params) RequireNamespace(ns string) {
	if ns == "" || slices.Contains(p.namespaces, ns) {
		return
	}
	p.namespaces = append(p.namespaces, ns)
}

// Namespaces returns the namespaces recorded with RequireNamespace.
func (p *Params) Namespaces() []string {
	if p == nil {
		return nil
	}
	return p.namespaces
}

// Clone returns a deep copy of the bundle.
func (p *Params) Clone() *Params {
	if p == nil {
		return NewParams()
	}
	out := &Params{
		values:     make([]Value, len(p.values)),
		namespaces: slices.Clone(p.namespaces),
	}
	for i, v := range p.values {
		out.values[i] = v.Clone()
	}
	return out
}

// Merge appends copies of other's values and returns the offset to add to
// other's ids to address them inside p.
func (p *Params) Merge(other *Params) int {
	offset := len(p.values)
	for _, v := range other.Values() {
		p.values = append(p.values, v.Clone())
	}
	for _, ns := range other.Namespaces() {
		p.RequireNamespace(ns)
	}
	return offset
}

// Reset drops all values and namespaces.
func (p *Params) Reset() {
	p.values = nil
	p.namespaces = nil
}
