package sqlite

import (
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/vtapi/internal/database"
)

// Dialect renders SQLite. Values are inlined as escaped literals; custom
// types and vectors are stored in their text form.
type Dialect struct{}

func (Dialect) Name() string { return backendName }

// EscapeIdent double-quotes name, doubling embedded quotes.
func (Dialect) EscapeIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// EscapeLiteral single-quotes s, doubling embedded quotes. SQLite has no
// backslash escapes and ends a quoted literal at NUL, so such text goes
// through a blob cast instead.
func (Dialect) EscapeLiteral(s string) string {
	if strings.IndexByte(s, 0) >= 0 {
		return "CAST(X'" + hex.EncodeToString([]byte(s)) + "' AS TEXT)"
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Bind renders v inline; nothing is ever bound.
func (d Dialect) Bind(v database.Value, _ int) (string, bool) {
	switch x := v.Data().(type) {
	case nil:
		return "NULL", false
	case bool:
		if x {
			return "1", false
		}
		return "0", false
	case int32:
		return strconv.FormatInt(int64(x), 10), false
	case int64:
		return strconv.FormatInt(x, 10), false
	case float32:
		return formatReal(float64(x), 32), false
	case float64:
		return formatReal(x, 64), false
	case []byte:
		return "X'" + hex.EncodeToString(x) + "'", false
	case time.Time:
		return d.EscapeLiteral(database.FormatTimestamp(x)), false
	}
	return d.EscapeLiteral(database.FormatText(v)), false
}

func formatReal(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NULL"
	case math.IsInf(f, 1):
		return "9e999"
	case math.IsInf(f, -1):
		return "-9e999"
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

// MapSchema sends the public namespace to the main database; datasets
// keep their name, which is also their attach alias.
func (Dialect) MapSchema(schema string) string {
	if schema == publicSchema {
		return mainSchema
	}
	return schema
}

func (Dialect) SupportsArrays() bool { return false }

func (d Dialect) MemberAccess(column, member string) (string, bool) {
	return fnMember + "(" + column + ", " + d.EscapeLiteral(member) + ")", true
}

func (Dialect) TimeRange(start, end, lo, hi, oper string) (string, bool) {
	return database.ComparisonTimeRange(start, end, lo, hi, oper), true
}

func (d Dialect) Region(column, box, oper string) (string, bool) {
	return fnRegionMatch + "(" + column + ", " + box + ", " + d.EscapeLiteral(oper) + ")", true
}

func (Dialect) EventFunction() string { return fnFilteredEvents }

func (Dialect) BeginStatement() string { return "BEGIN" }

func (d Dialect) InsertedID(column string) (string, string) {
	return " RETURNING " + d.EscapeIdent(column), ""
}

var _ database.Dialect = Dialect{}
