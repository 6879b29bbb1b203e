package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/koustreak/vtapi/internal/database"
)

// catalogQuery reads every type the server knows.
const catalogQuery = `SELECT oid, typname, typcategory, typlen, typelem FROM pg_catalog.pg_type`

// pgType is one row of catalogQuery.
type pgType struct {
	OID      uint32
	Name     string
	Category rune
	Length   int16
	Elem     uint32
}

func loadCatalog(ctx context.Context, conn *pgx.Conn) (*database.TypeCatalog, error) {
	rows, err := conn.Query(ctx, catalogQuery)
	if err != nil {
		return nil, mapError(err, "failed to load type catalog")
	}
	defer rows.Close()

	var list []pgType
	for rows.Next() {
		var t pgType
		if err := rows.Scan(&t.OID, &t.Name, &t.Category, &t.Length, &t.Elem); err != nil {
			return nil, mapError(err, "failed to scan type catalog row")
		}
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating type catalog")
	}
	return buildCatalog(list), nil
}

// buildCatalog normalizes catalog rows. Arrays are resolved in a second
// pass so their element may appear anywhere in the list.
func buildCatalog(list []pgType) *database.TypeCatalog {
	defs := make(map[uint32]database.TypeDefinition, len(list))
	for _, t := range list {
		cat, flags := categorize(t.Name, t.Category)
		defs[t.OID] = database.TypeDefinition{
			Name:     t.Name,
			Category: cat,
			Flags:    flags,
			Length:   int(t.Length),
		}
	}

	cat := database.NewTypeCatalog()
	for _, t := range list {
		def := defs[t.OID]
		if def.Category == database.CategoryArray {
			if elem, ok := defs[t.Elem]; ok {
				def.ElemCategory = elem.Category
				def.ElemLength = elem.Length
			}
		}
		cat.Add(t.OID, def)
	}
	return cat
}

// categorize maps a pg_type row onto a normalized category. VTApi's own
// types are recognized by name.
func categorize(name string, typcategory rune) (database.TypeCategory, database.TypeFlags) {
	if ut, ok := database.UserType(name); ok {
		return ut.Category, ut.Flags
	}
	if strings.HasPrefix(name, "reg") {
		return database.CategoryRefType, database.FlagRefType
	}

	switch typcategory {
	case 'S':
		return database.CategoryString, 0
	case 'B':
		return database.CategoryBool, 0
	case 'D':
		return database.CategoryTimestamp, 0
	case 'N':
		switch name {
		case "float4", "float8", "numeric":
			return database.CategoryFloat, database.FlagNumeric
		}
		return database.CategoryInt, database.FlagNumeric
	case 'G':
		switch name {
		case "point":
			return database.CategoryGeoPoint, database.FlagGeometric
		case "box":
			return database.CategoryGeoBox, database.FlagGeometric
		}
		return database.CategoryGeoOther, database.FlagGeometric
	case 'A':
		return database.CategoryArray, database.FlagArray
	case 'C':
		return database.CategoryCompositeOther, 0
	case 'E':
		return database.CategoryEnumOther, 0
	case 'U':
		if name == "bytea" {
			return database.CategoryBlob, 0
		}
	}
	if name == "char" || name == "name" {
		return database.CategoryString, 0
	}
	return database.CategoryUnknown, 0
}
