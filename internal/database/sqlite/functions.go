package sqlite

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"

	msqlite "modernc.org/sqlite"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/database/wire"
)

// SQL functions registered with the driver. They are visible to every
// connection opened after init.
const (
	fnMember         = "VT_member"
	fnRegionMatch    = "VT_region_match"
	fnFilteredEvents = "VT_filtered_events"
)

func init() {
	msqlite.MustRegisterDeterministicScalarFunction(fnMember, 2, sqlMember)
	msqlite.MustRegisterDeterministicScalarFunction(fnRegionMatch, 3, sqlRegionMatch)
	msqlite.MustRegisterDeterministicScalarFunction(fnFilteredEvents, 6, sqlFilteredEvents)
}

type memberDef struct {
	index int
	kind  byte // i, f, b or s: integer, real, boolean, text
}

// members indexes composite fields by record width: vtevent has six,
// pstate four and cvmat three.
var members = map[int]map[string]memberDef{
	6: {
		"group_id":  {0, 'i'},
		"class_id":  {1, 'i'},
		"is_root":   {2, 'b'},
		"region":    {3, 's'},
		"score":     {4, 'f'},
		"user_data": {5, 's'},
	},
	4: {
		"status":       {0, 's'},
		"progress":     {1, 'f'},
		"current_item": {2, 's'},
		"last_error":   {3, 's'},
	},
	3: {
		"type": {0, 'i'},
		"dims": {1, 's'},
		"data": {2, 's'},
	},
}

// sqlMember extracts one member of a composite stored as text. Numeric
// members come back as numbers so they compare numerically.
func sqlMember(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	rec, ok := argText(args[0])
	if !ok {
		return nil, nil
	}
	name, _ := argText(args[1])
	fields, err := wire.ParseRecord(rec)
	if err != nil {
		return nil, err
	}
	def, ok := members[len(fields)][strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%s: no member %q in %d-field record", fnMember, name, len(fields))
	}
	f := fields[def.index]
	if f == nil {
		return nil, nil
	}
	switch def.kind {
	case 'i':
		return strconv.ParseInt(strings.TrimSpace(*f), 10, 64)
	case 'f':
		return strconv.ParseFloat(strings.TrimSpace(*f), 64)
	case 'b':
		b, err := wire.ParseBool(*f)
		if err != nil {
			return nil, err
		}
		return boolResult(b), nil
	}
	return *f, nil
}

// sqlRegionMatch compares two boxes with a range operator: && overlap,
// @> contains, <@ contained by, ~= same box.
func sqlRegionMatch(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	a, okA := argBox(args[0])
	b, okB := argBox(args[1])
	if !okA || !okB {
		return nil, nil
	}
	oper, _ := argText(args[2])
	switch oper {
	case "&&":
		return boolResult(a.Overlaps(b)), nil
	case "@>":
		return boolResult(a.Contains(b)), nil
	case "<@":
		return boolResult(b.Contains(a)), nil
	case "~=":
		return boolResult(a.Normalize() == b.Normalize()), nil
	}
	return nil, fmt.Errorf("%s: unsupported operator %q", fnRegionMatch, oper)
}

// sqlFilteredEvents applies an event filter to a vtevent stored as text:
// (event, group, class, root_only, region, min_score).
func sqlFilteredEvents(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	rec, ok := argText(args[0])
	if !ok {
		return boolResult(false), nil
	}
	ev, err := database.ParseEvent(rec)
	if err != nil {
		return nil, err
	}
	f := database.EventFilter{
		GroupID:  int32(argInt(args[1])),
		ClassID:  int32(argInt(args[2])),
		RootOnly: argInt(args[3]) != 0,
		MinScore: argFloat(args[5]),
	}
	if r, ok := argBox(args[4]); ok {
		f.Region = &r
	}
	return boolResult(f.Match(ev)), nil
}

// --- argument helpers ---

func argText(v driver.Value) (string, bool) {
	switch d := v.(type) {
	case string:
		return d, true
	case []byte:
		return string(d), true
	}
	return "", false
}

func argBox(v driver.Value) (database.Box, bool) {
	s, ok := argText(v)
	if !ok {
		return database.Box{}, false
	}
	c, err := wire.ParseBox(s)
	if err != nil {
		return database.Box{}, false
	}
	return database.Box{
		Low:  database.Point{X: c[0], Y: c[1]},
		High: database.Point{X: c[2], Y: c[3]},
	}, true
}

func argInt(v driver.Value) int64 {
	switch d := v.(type) {
	case int64:
		return d
	case float64:
		return int64(d)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(d), 10, 64)
		return n
	}
	return 0
}

func argFloat(v driver.Value) float64 {
	switch d := v.(type) {
	case float64:
		return d
	case int64:
		return float64(d)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(d), 64)
		return f
	}
	return 0
}

func boolResult(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
