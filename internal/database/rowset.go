package database

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/vtapi/internal/database/wire"
	"github.com/koustreak/vtapi/internal/errs"
	"github.com/koustreak/vtapi/internal/logger"
)

// Buffer is a fully read result: the header and every row. Backends fill
// it in Fetch, normalising driver-specific values into the Go types the
// getters understand (domain types, strings, []byte, int64, float64,
// time.Time, []any for arrays).
type Buffer struct {
	Keys    TKeys
	TypeIDs []uint32
	Rows    [][]any
}

// RowSet is the buffered ResultSet shared by every backend.
type RowSet struct {
	types *TypeCatalog
	log   *logger.Logger
	buf   *Buffer
	pos   int
}

// NewRowSet returns an unbound result set.
func NewRowSet(types *TypeCatalog, log *logger.Logger) *RowSet {
	if log == nil {
		log = logger.Nop()
	}
	return &RowSet{types: types, log: log}
}

// NewResult binds a *Buffer, dropping any previous result. The cursor
// moves to the first row.
func (s *RowSet) NewResult(native any) error {
	buf, ok := native.(*Buffer)
	if !ok || buf == nil {
		s.Clear()
		return errs.Newf(errs.ErrKindInvalidInput, "result set cannot bind %T", native)
	}
	s.buf = buf
	s.pos = 0
	return nil
}

// Clear drops the bound result.
func (s *RowSet) Clear() {
	s.buf = nil
	s.pos = 0
}

func (s *RowSet) IsOk() bool { return s.buf != nil }

// CountRows returns the number of rows, or -1 with no bound result.
func (s *RowSet) CountRows() int {
	if s.buf == nil {
		return -1
	}
	return len(s.buf.Rows)
}

// CountCols returns the number of columns, or 0 with no bound result.
func (s *RowSet) CountCols() int {
	if s.buf == nil {
		return 0
	}
	return len(s.buf.Keys)
}

func (s *RowSet) Pos() int       { return s.pos }
func (s *RowSet) SetPos(pos int) { s.pos = pos }

// ColumnIndex returns the position of the column called name, or -1.
func (s *RowSet) ColumnIndex(name string) int {
	if s.buf == nil {
		return -1
	}
	if i := s.buf.Keys.Index(name); i >= 0 {
		return i
	}
	for i, k := range s.buf.Keys {
		if strings.EqualFold(k.Name, name) {
			return i
		}
	}
	return -1
}

func (s *RowSet) Key(col int) (TKey, error) {
	if s.buf == nil || col < 0 || col >= len(s.buf.Keys) {
		return TKey{}, ErrUninitialized("key")
	}
	return s.buf.Keys[col], nil
}

func (s *RowSet) Keys() TKeys {
	if s.buf == nil {
		return nil
	}
	return s.buf.Keys
}

// KeyType returns the type name of column col, or "".
func (s *RowSet) KeyType(col int) string {
	k, err := s.Key(col)
	if err != nil {
		return ""
	}
	return k.Type
}

// TypeDef returns the catalog definition of column col when the backend
// reports type ids.
func (s *RowSet) TypeDef(col int) (TypeDefinition, bool) {
	if s.buf == nil || col < 0 || col >= len(s.buf.TypeIDs) {
		return TypeDefinition{}, false
	}
	return s.types.Lookup(s.buf.TypeIDs[col])
}

func (s *RowSet) cell(col int, op string) (any, error) {
	if s.buf == nil || s.pos < 0 || s.pos >= len(s.buf.Rows) {
		return nil, ErrUninitialized(op)
	}
	if col < 0 || col >= len(s.buf.Keys) {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "%s: column %d out of range", op, col)
	}
	row := s.buf.Rows[s.pos]
	if col >= len(row) {
		return nil, nil
	}
	return row[col], nil
}

// malformed logs a cell that could not be decoded. The getter then
// returns the zero value.
func (s *RowSet) malformed(op string, col int, v any, err error) {
	name := ""
	if s.buf != nil && col < len(s.buf.Keys) {
		name = s.buf.Keys[col].Name
	}
	s.log.With().Str("column", name).Str("getter", op).Any("raw", v).Logger().
		Debugf("cannot decode column value: %v", err)
}

// --- scalar getters ---

func (s *RowSet) GetBool(col int) (bool, error) {
	v, err := s.cell(col, "GetBool")
	if err != nil || v == nil {
		return false, err
	}
	switch d := v.(type) {
	case bool:
		return d, nil
	case string:
		b, err := wire.ParseBool(d)
		if err != nil {
			s.malformed("GetBool", col, v, err)
		}
		return b, nil
	case []byte:
		b, err := wire.ParseBool(string(d))
		if err != nil {
			s.malformed("GetBool", col, v, err)
		}
		return b, nil
	}
	n, ok := toInt64(v)
	if !ok {
		s.malformed("GetBool", col, v, nil)
	}
	return n != 0, nil
}

func (s *RowSet) GetChar(col int) (byte, error) {
	v, err := s.cell(col, "GetChar")
	if err != nil || v == nil {
		return 0, err
	}
	switch d := v.(type) {
	case string:
		if d == "" {
			return 0, nil
		}
		return d[0], nil
	case []byte:
		if len(d) == 0 {
			return 0, nil
		}
		return d[0], nil
	}
	n, ok := toInt64(v)
	if !ok || n < 0 || n > math.MaxUint8 {
		s.malformed("GetChar", col, v, nil)
		return 0, nil
	}
	return byte(n), nil
}

func (s *RowSet) GetString(col int) (string, error) {
	v, err := s.cell(col, "GetString")
	if err != nil || v == nil {
		return "", err
	}
	switch d := v.(type) {
	case string:
		return d, nil
	case []byte:
		return string(d), nil
	}
	return s.textOf(col, v), nil
}

func (s *RowSet) GetInt(col int) (int32, error) {
	n, err := s.GetInt8(col)
	if err != nil {
		return 0, err
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		s.malformed("GetInt", col, n, nil)
		return 0, nil
	}
	return int32(n), nil
}

func (s *RowSet) GetInt8(col int) (int64, error) {
	v, err := s.cell(col, "GetInt8")
	if err != nil || v == nil {
		return 0, err
	}
	n, ok := toInt64(v)
	if !ok {
		s.malformed("GetInt8", col, v, nil)
		return 0, nil
	}
	return n, nil
}

func (s *RowSet) GetFloat(col int) (float32, error) {
	f, err := s.GetFloat8(col)
	return float32(f), err
}

func (s *RowSet) GetFloat8(col int) (float64, error) {
	v, err := s.cell(col, "GetFloat8")
	if err != nil || v == nil {
		return 0, err
	}
	f, ok := toFloat64(v)
	if !ok {
		s.malformed("GetFloat8", col, v, nil)
		return 0, nil
	}
	return f, nil
}

func (s *RowSet) GetTimestamp(col int) (time.Time, error) {
	v, err := s.cell(col, "GetTimestamp")
	if err != nil || v == nil {
		return time.Time{}, err
	}
	switch d := v.(type) {
	case time.Time:
		return d.UTC(), nil
	case string, []byte:
		t, err := ParseTimestamp(asText(d))
		if err != nil {
			s.malformed("GetTimestamp", col, v, err)
		}
		return t, nil
	}
	s.malformed("GetTimestamp", col, v, nil)
	return time.Time{}, nil
}

// --- domain getters ---

func (s *RowSet) GetMat(col int) (Mat, error) {
	v, err := s.cell(col, "GetMat")
	if err != nil || v == nil {
		return Mat{}, err
	}
	if m, ok := v.(Mat); ok {
		return cloneMat(m), nil
	}
	m, err := ParseMat(asText(v))
	if err != nil {
		s.malformed("GetMat", col, v, err)
		return Mat{}, nil
	}
	return m, nil
}

func (s *RowSet) GetPoint(col int) (Point, error) {
	v, err := s.cell(col, "GetPoint")
	if err != nil || v == nil {
		return Point{}, err
	}
	if p, ok := v.(Point); ok {
		return p, nil
	}
	x, y, err := wire.ParsePoint(asText(v))
	if err != nil {
		s.malformed("GetPoint", col, v, err)
		return Point{}, nil
	}
	return Point{X: x, Y: y}, nil
}

func (s *RowSet) GetBox(col int) (Box, error) {
	v, err := s.cell(col, "GetBox")
	if err != nil || v == nil {
		return Box{}, err
	}
	if b, ok := v.(Box); ok {
		return b.Normalize(), nil
	}
	c, err := wire.ParseBox(asText(v))
	if err != nil {
		s.malformed("GetBox", col, v, err)
		return Box{}, nil
	}
	return boxFromCoords(c), nil
}

func (s *RowSet) GetIntervalEvent(col int) (IntervalEvent, error) {
	v, err := s.cell(col, "GetIntervalEvent")
	if err != nil || v == nil {
		return IntervalEvent{UserData: []byte{}}, err
	}
	if ev, ok := v.(IntervalEvent); ok {
		return cloneEvent(ev), nil
	}
	ev, err := ParseEvent(asText(v))
	if err != nil {
		s.malformed("GetIntervalEvent", col, v, err)
		return IntervalEvent{UserData: []byte{}}, nil
	}
	return ev, nil
}

func (s *RowSet) GetIntervalEventVector(col int) ([]IntervalEvent, error) {
	v, err := s.cell(col, "GetIntervalEventVector")
	if err != nil || v == nil {
		return nil, err
	}
	if list, ok := v.([]any); ok {
		out := make([]IntervalEvent, 0, len(list))
		for _, e := range list {
			if e == nil {
				continue
			}
			ev, err := ParseEvent(asText(e))
			if err != nil {
				s.malformed("GetIntervalEventVector", col, v, err)
				return nil, nil
			}
			out = append(out, ev)
		}
		return out, nil
	}
	evs, err := ParseEvents(asText(v))
	if err != nil {
		s.malformed("GetIntervalEventVector", col, v, err)
		return nil, nil
	}
	return evs, nil
}

func (s *RowSet) GetProcessStatus(col int) (ProcessStatus, error) {
	text, err := s.GetString(col)
	if err != nil || text == "" {
		return "", err
	}
	st, ok := ParseProcessStatus(text)
	if !ok {
		s.malformed("GetProcessStatus", col, text, nil)
	}
	return st, nil
}

func (s *RowSet) GetProcessState(col int) (ProcessState, error) {
	v, err := s.cell(col, "GetProcessState")
	if err != nil || v == nil {
		return ProcessState{}, err
	}
	if st, ok := v.(ProcessState); ok {
		return st, nil
	}
	st, err := ParseState(asText(v))
	if err != nil {
		s.malformed("GetProcessState", col, v, err)
		return ProcessState{}, nil
	}
	return st, nil
}

func (s *RowSet) GetBlob(col int) ([]byte, error) {
	v, err := s.cell(col, "GetBlob")
	if err != nil || v == nil {
		return nil, err
	}
	switch d := v.(type) {
	case []byte:
		return bytes.Clone(d), nil
	case string:
		if strings.HasPrefix(d, `\x`) {
			b, err := wire.ParseHex(d)
			if err != nil {
				s.malformed("GetBlob", col, v, err)
				return nil, nil
			}
			return b, nil
		}
		return []byte(d), nil
	}
	s.malformed("GetBlob", col, v, nil)
	return nil, nil
}

func (s *RowSet) GetSeqType(col int) (SeqType, error) {
	text, err := s.GetString(col)
	if err != nil || text == "" {
		return "", err
	}
	st, ok := ParseSeqType(text)
	if !ok {
		s.malformed("GetSeqType", col, text, nil)
	}
	return st, nil
}

func (s *RowSet) GetInOutType(col int) (InOutType, error) {
	text, err := s.GetString(col)
	if err != nil || text == "" {
		return "", err
	}
	io, ok := ParseInOutType(text)
	if !ok {
		s.malformed("GetInOutType", col, text, nil)
	}
	return io, nil
}

// --- vector getters ---

// elements splits an array cell into its elements: []any from drivers
// with native arrays, or the textual list formats.
func (s *RowSet) elements(col int, op string) ([]any, error) {
	v, err := s.cell(col, op)
	if err != nil || v == nil {
		return nil, err
	}
	switch d := v.(type) {
	case []any:
		return d, nil
	case []string:
		out := make([]any, len(d))
		for i := range d {
			out[i] = d[i]
		}
		return out, nil
	case []int32:
		out := make([]any, len(d))
		for i := range d {
			out[i] = d[i]
		}
		return out, nil
	case []float64:
		out := make([]any, len(d))
		for i := range d {
			out[i] = d[i]
		}
		return out, nil
	}
	elems, err := parseList(asText(v))
	if err != nil {
		s.malformed(op, col, v, err)
		return nil, nil
	}
	out := make([]any, len(elems))
	for i, e := range elems {
		if e != nil {
			out[i] = *e
		}
	}
	return out, nil
}

func (s *RowSet) GetIntVector(col int) ([]int32, error) {
	elems, err := s.elements(col, "GetIntVector")
	if err != nil || elems == nil {
		return nil, err
	}
	out := make([]int32, 0, len(elems))
	for _, e := range elems {
		n, ok := toInt64(e)
		if !ok || n < math.MinInt32 || n > math.MaxInt32 {
			s.malformed("GetIntVector", col, e, nil)
			return nil, nil
		}
		out = append(out, int32(n))
	}
	return out, nil
}

func (s *RowSet) GetFloatVector(col int) ([]float64, error) {
	elems, err := s.elements(col, "GetFloatVector")
	if err != nil || elems == nil {
		return nil, err
	}
	out := make([]float64, 0, len(elems))
	for _, e := range elems {
		f, ok := toFloat64(e)
		if !ok {
			s.malformed("GetFloatVector", col, e, nil)
			return nil, nil
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *RowSet) GetStringVector(col int) ([]string, error) {
	elems, err := s.elements(col, "GetStringVector")
	if err != nil || elems == nil {
		return nil, err
	}
	out := make([]string, 0, len(elems))
	for _, e := range elems {
		if e == nil {
			out = append(out, "")
			continue
		}
		out = append(out, asText(e))
	}
	return out, nil
}

// ValueString renders the cell as text whatever its type. NULL renders as
// the empty string.
func (s *RowSet) ValueString(col int) (string, error) {
	v, err := s.cell(col, "ValueString")
	if err != nil || v == nil {
		return "", err
	}
	return s.textOf(col, v), nil
}

func (s *RowSet) textOf(col int, v any) string {
	switch d := v.(type) {
	case string:
		return d
	case []byte:
		if def, ok := s.TypeDef(col); ok && def.Category == CategoryBlob {
			return wire.FormatHex(d)
		}
		return string(d)
	case int:
		return strconv.Itoa(d)
	case int16:
		return strconv.FormatInt(int64(d), 10)
	case uint32:
		return strconv.FormatUint(uint64(d), 10)
	case []any:
		elems := make([]string, len(d))
		for i, e := range d {
			if e != nil {
				elems[i] = s.textOf(col, e)
			}
		}
		return wire.FormatBracket(elems)
	}
	return FormatText(Value{data: v})
}

// --- conversions ---

func asText(v any) string {
	switch d := v.(type) {
	case string:
		return d
	case []byte:
		return string(d)
	}
	return FormatText(Value{data: v})
}

func toInt64(v any) (int64, bool) {
	switch d := v.(type) {
	case int64:
		return d, true
	case int32:
		return int64(d), true
	case int16:
		return int64(d), true
	case int8:
		return int64(d), true
	case int:
		return int64(d), true
	case uint8:
		return int64(d), true
	case uint16:
		return int64(d), true
	case uint32:
		return int64(d), true
	case uint64:
		if d > math.MaxInt64 {
			return 0, false
		}
		return int64(d), true
	case bool:
		if d {
			return 1, true
		}
		return 0, true
	case float64:
		if d != math.Trunc(d) {
			return 0, false
		}
		return int64(d), true
	case float32:
		if float64(d) != math.Trunc(float64(d)) {
			return 0, false
		}
		return int64(d), true
	case string, []byte:
		n, err := strconv.ParseInt(strings.TrimSpace(asText(d)), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch d := v.(type) {
	case float64:
		return d, true
	case float32:
		return float64(d), true
	case string, []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(asText(d)), 64)
		return f, err == nil
	}
	n, ok := toInt64(v)
	return float64(n), ok
}

var _ ResultSet = (*RowSet)(nil)
