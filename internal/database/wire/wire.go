// Package wire holds the text serialisations VTApi shares between backends:
// PostgreSQL composite records and arrays, the bracketed list format used
// where a backend has no native arrays, bytea hex and geometric literals.
//
// Every function is a pure string ⇄ value conversion; nothing here talks to
// a database.
package wire

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrSyntax = errors.New("wire: syntax error")
)

func syntaxErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSyntax, fmt.Sprintf(format, args...))
}

// --- composite records ---

// FormatRecord renders fields in PostgreSQL composite text form. A nil
// field is NULL.
func FormatRecord(fields []*string) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, f := range fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		if f == nil {
			continue
		}
		if recordNeedsQuote(*f) {
			writeQuoted(&sb, *f, true)
		} else {
			sb.WriteString(*f)
		}
	}
	sb.WriteByte(')')
	return sb.String()
}

func recordNeedsQuote(s string) bool {
	if s == "" {
		return true
	}
	return strings.ContainsAny(s, "(),\"\\ \t\n\r")
}

// writeQuoted writes s in double quotes. Records double embedded quotes and
// backslashes; arrays and brackets escape them with a backslash.
func writeQuoted(sb *strings.Builder, s string, doubling bool) {
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			if doubling {
				sb.WriteByte(c)
			} else {
				sb.WriteByte('\\')
			}
		}
		sb.WriteByte(c)
	}
	sb.WriteByte('"')
}

// ParseRecord splits a composite text value into its fields. Fields that
// are empty and unquoted come back as nil (NULL).
func ParseRecord(s string) ([]*string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return nil, syntaxErr("record %q is not parenthesised", s)
	}
	body := s[1 : len(s)-1]

	var fields []*string
	var cur strings.Builder
	seen := false
	inQuotes := false
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case inQuotes && c == '"':
			if i+1 < len(body) && body[i+1] == '"' {
				cur.WriteByte('"')
				i++
			} else {
				inQuotes = false
			}
		case c == '\\':
			if i+1 >= len(body) {
				return nil, syntaxErr("record %q ends in an escape", s)
			}
			i++
			cur.WriteByte(body[i])
			seen = true
		case inQuotes:
			cur.WriteByte(c)
		case c == '"':
			inQuotes = true
			seen = true
		case c == ',':
			fields = append(fields, fieldValue(&cur, seen))
			seen = false
		default:
			cur.WriteByte(c)
			seen = true
		}
	}
	if inQuotes {
		return nil, syntaxErr("record %q has an unterminated quote", s)
	}
	fields = append(fields, fieldValue(&cur, seen))
	return fields, nil
}

func fieldValue(cur *strings.Builder, seen bool) *string {
	if !seen {
		cur.Reset()
		return nil
	}
	v := cur.String()
	cur.Reset()
	return &v
}

// --- PostgreSQL arrays ---

// FormatArray renders a one-dimensional PostgreSQL array literal.
func FormatArray(elems []*string) string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, e := range elems {
		if i > 0 {
			sb.WriteByte(',')
		}
		if e == nil {
			sb.WriteString("NULL")
			continue
		}
		if arrayNeedsQuote(*e) {
			writeQuoted(&sb, *e, false)
		} else {
			sb.WriteString(*e)
		}
	}
	sb.WriteByte('}')
	return sb.String()
}

func arrayNeedsQuote(s string) bool {
	if s == "" || strings.EqualFold(s, "NULL") {
		return true
	}
	return strings.ContainsAny(s, "{},\"\\ \t\n\r")
}

// ParseArray parses a one-dimensional PostgreSQL array literal. Unquoted
// NULL elements come back as nil.
func ParseArray(s string) ([]*string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return nil, syntaxErr("array %q is not braced", s)
	}
	body := s[1 : len(s)-1]
	if strings.TrimSpace(body) == "" {
		return []*string{}, nil
	}

	var elems []*string
	var cur strings.Builder
	quoted := false
	inQuotes := false
	flush := func() {
		v := cur.String()
		cur.Reset()
		if !quoted {
			v = strings.TrimSpace(v)
			if strings.EqualFold(v, "NULL") {
				elems = append(elems, nil)
				return
			}
		}
		elems = append(elems, &v)
		quoted = false
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\\':
			if i+1 >= len(body) {
				return nil, syntaxErr("array %q ends in an escape", s)
			}
			i++
			cur.WriteByte(body[i])
		case c == '"':
			inQuotes = !inQuotes
			quoted = true
		case inQuotes:
			cur.WriteByte(c)
		case c == ',':
			flush()
		case c == '{' || c == '}':
			return nil, syntaxErr("nested array %q is not supported", s)
		default:
			cur.WriteByte(c)
		}
	}
	if inQuotes {
		return nil, syntaxErr("array %q has an unterminated quote", s)
	}
	flush()
	return elems, nil
}

// --- bracketed lists ---

// FormatBracket renders elems as [v1,v2,...] with no surrounding
// whitespace.
func FormatBracket(elems []string) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, e := range elems {
		if i > 0 {
			sb.WriteByte(',')
		}
		if bracketNeedsQuote(e) {
			writeQuoted(&sb, e, false)
		} else {
			sb.WriteString(e)
		}
	}
	sb.WriteByte(']')
	return sb.String()
}

func bracketNeedsQuote(s string) bool {
	if s == "" {
		return true
	}
	return strings.ContainsAny(s, ",[]\"()\\ \t\n\r")
}

// ParseBracket parses the [v1,v2,...] list format.
func ParseBracket(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, syntaxErr("list %q is not bracketed", s)
	}
	body := s[1 : len(s)-1]
	if body == "" {
		return []string{}, nil
	}

	var elems []string
	var cur strings.Builder
	inQuotes := false
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\\':
			if i+1 >= len(body) {
				return nil, syntaxErr("list %q ends in an escape", s)
			}
			i++
			cur.WriteByte(body[i])
		case c == '"':
			inQuotes = !inQuotes
		case inQuotes:
			cur.WriteByte(c)
		case c == ',':
			elems = append(elems, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if inQuotes {
		return nil, syntaxErr("list %q has an unterminated quote", s)
	}
	elems = append(elems, cur.String())
	return elems, nil
}

// IsBracket reports whether s looks like a bracketed list.
func IsBracket(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")
}

// IsArray reports whether s looks like a PostgreSQL array literal.
func IsArray(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")
}

// --- scalars ---

// FormatHex renders b in PostgreSQL bytea hex form (\x0a0b).
func FormatHex(b []byte) string {
	return `\x` + hex.EncodeToString(b)
}

// ParseHex decodes bytea hex form. An empty string decodes to an empty
// slice.
func ParseHex(s string) ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}
	if !strings.HasPrefix(s, `\x`) {
		return nil, syntaxErr("bytea %q has no \\x prefix", s)
	}
	b := make([]byte, hex.DecodedLen(len(s)-2))
	if _, err := hex.Decode(b, []byte(s[2:])); err != nil {
		return nil, syntaxErr("bytea %q: %v", s, err)
	}
	return b, nil
}

// FormatFloat renders f with the shortest representation that parses back
// to the same value.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// FormatBool renders b as t or f.
func FormatBool(b bool) string {
	if b {
		return "t"
	}
	return "f"
}

// ParseBool accepts the spellings PostgreSQL, SQLite and MySQL produce.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "t", "true", "1", "y", "yes", "on":
		return true, nil
	case "f", "false", "0", "n", "no", "off":
		return false, nil
	}
	return false, syntaxErr("bool %q", s)
}

// FormatPoint renders (x,y).
func FormatPoint(x, y float64) string {
	return "(" + FormatFloat(x) + "," + FormatFloat(y) + ")"
}

// ParsePoint parses (x,y); the parentheses are optional.
func ParsePoint(s string) (x, y float64, err error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, syntaxErr("point %q", s)
	}
	if x, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err != nil {
		return 0, 0, syntaxErr("point %q: %v", s, err)
	}
	if y, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err != nil {
		return 0, 0, syntaxErr("point %q: %v", s, err)
	}
	return x, y, nil
}

// FormatBox renders a box the way PostgreSQL prints it: upper-right corner
// first.
func FormatBox(x1, y1, x2, y2 float64) string {
	return FormatPoint(x2, y2) + "," + FormatPoint(x1, y1)
}

// ParseBox parses (x1,y1),(x2,y2). The corners may come in any order; the
// result is (lowX, lowY, highX, highY).
func ParseBox(s string) (coords [4]float64, err error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "(", "")
	s = strings.ReplaceAll(s, ")", "")
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return coords, syntaxErr("box %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		if v[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64); err != nil {
			return coords, syntaxErr("box %q: %v", s, err)
		}
	}
	coords[0], coords[2] = minmax(v[0], v[2])
	coords[1], coords[3] = minmax(v[1], v[3])
	return coords, nil
}

func minmax(a, b float64) (float64, float64) {
	if a > b {
		return b, a
	}
	return a, b
}

// Ptr returns a pointer to s, for building record and array fields.
func Ptr(s string) *string { return &s }
