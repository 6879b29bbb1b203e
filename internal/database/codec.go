package database

import (
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/vtapi/internal/database/wire"
)

// TimestampLayout is the textual timestamp form written by text-only
// backends. It sorts lexicographically in time order.
const TimestampLayout = "2006-01-02 15:04:05.000000"

var timestampLayouts = []string{
	TimestampLayout,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999-07",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts the timestamp spellings the backends produce.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, decodeErr("timestamp", s, nil)
}

// --- composite types ---

// The field order of every composite below is the wire contract shared by
// the Key* encoders and the Get* decoders.

// FormatEvent renders ev as a vtevent record:
// (group_id,class_id,is_root,region,score,user_data).
func FormatEvent(ev IntervalEvent) string {
	r := ev.Region.Normalize()
	return wire.FormatRecord([]*string{
		wire.Ptr(strconv.FormatInt(int64(ev.GroupID), 10)),
		wire.Ptr(strconv.FormatInt(int64(ev.ClassID), 10)),
		wire.Ptr(wire.FormatBool(ev.IsRoot)),
		wire.Ptr(wire.FormatBox(r.Low.X, r.Low.Y, r.High.X, r.High.Y)),
		wire.Ptr(wire.FormatFloat(ev.Score)),
		wire.Ptr(wire.FormatHex(ev.UserData)),
	})
}

// ParseEvent decodes a vtevent record. NULL fields decode to zero values;
// user data always comes back non-nil.
func ParseEvent(s string) (IntervalEvent, error) {
	var ev IntervalEvent
	fields, err := wire.ParseRecord(s)
	if err != nil {
		return ev, decodeErr("vtevent", s, err)
	}
	if len(fields) != 6 {
		return ev, decodeErr("vtevent", s, nil)
	}
	if ev.GroupID, err = parseInt32(fields[0]); err != nil {
		return ev, decodeErr("vtevent.group_id", s, err)
	}
	if ev.ClassID, err = parseInt32(fields[1]); err != nil {
		return ev, decodeErr("vtevent.class_id", s, err)
	}
	if fields[2] != nil {
		if ev.IsRoot, err = wire.ParseBool(*fields[2]); err != nil {
			return ev, decodeErr("vtevent.is_root", s, err)
		}
	}
	if fields[3] != nil {
		c, err := wire.ParseBox(*fields[3])
		if err != nil {
			return ev, decodeErr("vtevent.region", s, err)
		}
		ev.Region = boxFromCoords(c)
	}
	if fields[4] != nil {
		if ev.Score, err = strconv.ParseFloat(*fields[4], 64); err != nil {
			return ev, decodeErr("vtevent.score", s, err)
		}
	}
	ev.UserData = []byte{}
	if fields[5] != nil {
		if ev.UserData, err = wire.ParseHex(*fields[5]); err != nil {
			return ev, decodeErr("vtevent.user_data", s, err)
		}
	}
	return ev, nil
}

// FormatState renders a pstate record: (status,progress,current_item,last_error).
func FormatState(st ProcessState) string {
	return wire.FormatRecord([]*string{
		optString(string(st.Status)),
		wire.Ptr(strconv.FormatFloat(float64(st.Progress), 'g', -1, 32)),
		optString(st.CurrentItem),
		optString(st.LastError),
	})
}

// ParseState decodes a pstate record.
func ParseState(s string) (ProcessState, error) {
	var st ProcessState
	fields, err := wire.ParseRecord(s)
	if err != nil {
		return st, decodeErr("pstate", s, err)
	}
	if len(fields) != 4 {
		return st, decodeErr("pstate", s, nil)
	}
	if fields[0] != nil {
		status, ok := ParseProcessStatus(*fields[0])
		if !ok {
			return st, decodeErr("pstate.status", s, nil)
		}
		st.Status = status
	}
	if fields[1] != nil {
		p, err := strconv.ParseFloat(*fields[1], 32)
		if err != nil {
			return st, decodeErr("pstate.progress", s, err)
		}
		st.Progress = float32(p)
	}
	if fields[2] != nil {
		st.CurrentItem = *fields[2]
	}
	if fields[3] != nil {
		st.LastError = *fields[3]
	}
	return st, nil
}

// FormatMat renders a cvmat record: (type,dims,data) with dims as an int
// array.
func FormatMat(m Mat) string {
	dims := make([]*string, len(m.Dims))
	for i, d := range m.Dims {
		dims[i] = wire.Ptr(strconv.FormatInt(int64(d), 10))
	}
	return wire.FormatRecord([]*string{
		wire.Ptr(strconv.FormatInt(int64(m.Type), 10)),
		wire.Ptr(wire.FormatArray(dims)),
		wire.Ptr(wire.FormatHex(m.Data)),
	})
}

// ParseMat decodes a cvmat record.
func ParseMat(s string) (Mat, error) {
	var m Mat
	fields, err := wire.ParseRecord(s)
	if err != nil {
		return m, decodeErr("cvmat", s, err)
	}
	if len(fields) != 3 {
		return m, decodeErr("cvmat", s, nil)
	}
	if m.Type, err = parseInt32(fields[0]); err != nil {
		return m, decodeErr("cvmat.type", s, err)
	}
	m.Dims = []int32{}
	if fields[1] != nil {
		elems, err := wire.ParseArray(*fields[1])
		if err != nil {
			return m, decodeErr("cvmat.dims", s, err)
		}
		for _, e := range elems {
			d, err := parseInt32(e)
			if err != nil {
				return m, decodeErr("cvmat.dims", s, err)
			}
			m.Dims = append(m.Dims, d)
		}
	}
	m.Data = []byte{}
	if fields[2] != nil {
		if m.Data, err = wire.ParseHex(*fields[2]); err != nil {
			return m, decodeErr("cvmat.data", s, err)
		}
	}
	return m, nil
}

// FormatEventArray renders events as a PostgreSQL vtevent[] literal.
func FormatEventArray(evs []IntervalEvent) string {
	elems := make([]*string, len(evs))
	for i, ev := range evs {
		elems[i] = wire.Ptr(FormatEvent(ev))
	}
	return wire.FormatArray(elems)
}

// FormatEventList renders events in the bracketed list format.
func FormatEventList(evs []IntervalEvent) string {
	elems := make([]string, len(evs))
	for i, ev := range evs {
		elems[i] = FormatEvent(ev)
	}
	return wire.FormatBracket(elems)
}

// ParseEvents decodes either a vtevent[] literal or a bracketed list.
func ParseEvents(s string) ([]IntervalEvent, error) {
	elems, err := parseList(s)
	if err != nil {
		return nil, decodeErr("vtevent[]", s, err)
	}
	out := make([]IntervalEvent, 0, len(elems))
	for _, e := range elems {
		if e == nil {
			continue
		}
		ev, err := ParseEvent(*e)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// parseList accepts both list spellings and returns the elements.
func parseList(s string) ([]*string, error) {
	if wire.IsArray(s) {
		return wire.ParseArray(s)
	}
	elems, err := wire.ParseBracket(s)
	if err != nil {
		return nil, err
	}
	out := make([]*string, len(elems))
	for i := range elems {
		out[i] = &elems[i]
	}
	return out, nil
}

// FormatText renders v as the text a text-only backend stores for it.
// Vectors use the bracketed list format, composites their record form.
func FormatText(v Value) string {
	switch d := v.data.(type) {
	case nil:
		return ""
	case bool:
		return wire.FormatBool(d)
	case byte:
		return string([]byte{d})
	case int32:
		return strconv.FormatInt(int64(d), 10)
	case int64:
		return strconv.FormatInt(d, 10)
	case float32:
		return strconv.FormatFloat(float64(d), 'g', -1, 32)
	case float64:
		return wire.FormatFloat(d)
	case string:
		return d
	case SeqType:
		return string(d)
	case InOutType:
		return string(d)
	case ProcessStatus:
		return string(d)
	case time.Time:
		return FormatTimestamp(d)
	case Point:
		return wire.FormatPoint(d.X, d.Y)
	case Box:
		return wire.FormatBox(d.Low.X, d.Low.Y, d.High.X, d.High.Y)
	case IntervalEvent:
		return FormatEvent(d)
	case []IntervalEvent:
		return FormatEventList(d)
	case ProcessState:
		return FormatState(d)
	case Mat:
		return FormatMat(d)
	case []byte:
		return wire.FormatHex(d)
	case []string:
		return wire.FormatBracket(d)
	case []int32:
		elems := make([]string, len(d))
		for i, n := range d {
			elems[i] = strconv.FormatInt(int64(n), 10)
		}
		return wire.FormatBracket(elems)
	case []float64:
		elems := make([]string, len(d))
		for i, f := range d {
			elems[i] = wire.FormatFloat(f)
		}
		return wire.FormatBracket(elems)
	}
	return ""
}

func boxFromCoords(c [4]float64) Box {
	return Box{Low: Point{X: c[0], Y: c[1]}, High: Point{X: c[2], Y: c[3]}}
}

func parseInt32(s *string) (int32, error) {
	if s == nil {
		return 0, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(*s), 10, 32)
	return int32(n), err
}

// optString maps the empty string to NULL.
func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
