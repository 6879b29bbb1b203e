package mysql

import (
	"strings"

	"github.com/koustreak/vtapi/internal/database"
)

// Dialect renders MySQL. Values bind to ? placeholders; the public
// namespace maps to the database named by the DSN.
type Dialect struct {
	Public string
}

func (Dialect) Name() string { return backendName }

// EscapeIdent backtick-quotes name, doubling embedded backticks.
func (Dialect) EscapeIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

var literalEscaper = strings.NewReplacer(`\`, `\\`, "'", "''", "\x00", `\0`)

// EscapeLiteral single-quotes s. Backslashes are escaped too since the
// default sql_mode treats them as escape characters.
func (Dialect) EscapeLiteral(s string) string {
	return "'" + literalEscaper.Replace(s) + "'"
}

func (Dialect) Bind(v database.Value, _ int) (string, bool) {
	if v.IsNull() {
		return "NULL", false
	}
	return "?", true
}

func (d Dialect) MapSchema(schema string) string {
	if schema == publicSchema && d.Public != "" {
		return d.Public
	}
	return schema
}

func (Dialect) SupportsArrays() bool { return false }

func (Dialect) MemberAccess(string, string) (string, bool) { return "", false }

func (Dialect) TimeRange(start, end, lo, hi, oper string) (string, bool) {
	return database.ComparisonTimeRange(start, end, lo, hi, oper), true
}

func (Dialect) Region(string, string, string) (string, bool) { return "", false }

func (Dialect) EventFunction() string { return "" }

func (Dialect) BeginStatement() string { return "START TRANSACTION" }

// InsertedID reads AUTO_INCREMENT values back with LAST_INSERT_ID(), which
// is scoped to the session the INSERT ran on.
func (Dialect) InsertedID(string) (string, string) {
	return "", "SELECT LAST_INSERT_ID()"
}

// args converts a bound bundle into driver arguments. Types the driver
// does not know travel as their text form.
func args(p *database.Params) []any {
	vals := p.Values()
	out := make([]any, len(vals))
	for i, v := range vals {
		switch x := v.Data().(type) {
		case nil, bool, int32, int64, float32, float64, string, []byte:
			out[i] = x
		default:
			out[i] = database.FormatText(v)
		}
	}
	return out
}

var _ database.Dialect = Dialect{}
