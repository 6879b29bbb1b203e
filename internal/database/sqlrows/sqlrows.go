// Package sqlrows buffers database/sql results for the backends built on
// database/sql (SQLite and MySQL).
package sqlrows

import (
	"database/sql"
	"strings"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/errs"
)

// Read drains rows into a Buffer and closes them. Column types are the
// lower-cased declared type names; when types knows a name its id is
// recorded so the result set can consult the definition. Byte slices stay
// binary only for blob columns and become strings otherwise.
func Read(rows *sql.Rows, types *database.TypeCatalog) (*database.Buffer, error) {
	defer rows.Close()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read column types", err)
	}

	buf := &database.Buffer{
		Keys:    make(database.TKeys, len(cols)),
		TypeIDs: make([]uint32, len(cols)),
		Rows:    make([][]any, 0),
	}
	blob := make([]bool, len(cols))
	for i, col := range cols {
		typ := strings.ToLower(col.DatabaseTypeName())
		buf.Keys[i] = database.TKey{Name: col.Name(), Type: typ}
		if id, def, ok := types.LookupName(typ); ok {
			buf.TypeIDs[i] = id
			blob[i] = def.Category == database.CategoryBlob
		}
	}

	for rows.Next() {
		// Allocate scan targets as *any so the driver can write any type.
		dest := make([]any, len(cols))
		destPtrs := make([]any, len(cols))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}
		if err := rows.Scan(destPtrs...); err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan row", err)
		}
		for i, v := range dest {
			if b, ok := v.([]byte); ok && !blob[i] {
				dest[i] = string(b)
			}
		}
		buf.Rows = append(buf.Rows, dest)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "error during row iteration", err)
	}
	return buf, nil
}
