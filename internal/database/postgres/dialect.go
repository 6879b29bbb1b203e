package postgres

import (
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/koustreak/vtapi/internal/database"
)

// Dialect renders PostgreSQL. Values bind as $n parameters; custom types
// travel as text and are cast server-side.
type Dialect struct{}

func (Dialect) Name() string { return backendName }

// EscapeIdent double-quotes name, doubling embedded quotes.
func (Dialect) EscapeIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// EscapeLiteral single-quotes s. Strings holding a backslash use the E''
// form so the result is correct whatever standard_conforming_strings says.
func (Dialect) EscapeLiteral(s string) string {
	quoted := strings.ReplaceAll(s, "'", "''")
	if strings.Contains(s, `\`) {
		return "E'" + strings.ReplaceAll(quoted, `\`, `\\`) + "'"
	}
	return "'" + quoted + "'"
}

// casts maps kinds sent as text to the server-side type they are cast to.
var casts = map[database.Kind]string{
	database.KindSeqtype:             "::text::public.seqtype",
	database.KindInouttype:           "::text::public.inouttype",
	database.KindProcessStatus:       "::text::public.pstatus",
	database.KindMat:                 "::text::public.cvmat",
	database.KindIntervalEvent:       "::text::public.vtevent",
	database.KindIntervalEventVector: "::text::public.vtevent[]",
	database.KindProcessState:        "::text::public.pstate",
}

func (Dialect) Bind(v database.Value, n int) (string, bool) {
	if v.IsNull() {
		return "NULL", false
	}
	return "$" + strconv.Itoa(n) + casts[v.Kind()], true
}

func (Dialect) MapSchema(schema string) string { return schema }

func (Dialect) SupportsArrays() bool { return true }

func (d Dialect) MemberAccess(column, member string) (string, bool) {
	return "(" + column + ")." + d.EscapeIdent(member), true
}

// TimeRange compares closed tsranges. Without an end column the start
// column must fall inside [lo, hi].
func (Dialect) TimeRange(start, end, lo, hi, oper string) (string, bool) {
	bounds := "tsrange(" + lo + ", " + hi + ", '[]')"
	if end == "" {
		return bounds + " @> " + start, true
	}
	return "tsrange(" + start + ", " + end + ", '[]') " + oper + " " + bounds, true
}

func (Dialect) Region(column, box, oper string) (string, bool) {
	return column + " " + oper + " " + box, true
}

func (Dialect) EventFunction() string { return "VT_filtered_events" }

func (Dialect) BeginStatement() string { return "BEGIN" }

func (d Dialect) InsertedID(column string) (string, string) {
	return " RETURNING " + d.EscapeIdent(column), ""
}

var _ database.Dialect = Dialect{}
