package database

import "sort"

// TypeCategory is the normalized family of a backend-native type.
type TypeCategory int

const (
	CategoryUnknown TypeCategory = iota
	CategoryString
	CategoryInt
	CategoryFloat
	CategoryBool
	CategoryTimestamp
	CategoryGeoPoint
	CategoryGeoBox
	CategoryGeoOther
	CategoryCompositeMat
	CategoryCompositeEvent
	CategoryCompositeState
	CategoryCompositeOther
	CategoryEnumSeqtype
	CategoryEnumInouttype
	CategoryEnumPstatus
	CategoryEnumOther
	CategoryArray
	CategoryBlob
	CategoryRefType
)

var categoryNames = map[TypeCategory]string{
	CategoryUnknown:        "unknown",
	CategoryString:         "string",
	CategoryInt:            "int",
	CategoryFloat:          "float",
	CategoryBool:           "bool",
	CategoryTimestamp:      "timestamp",
	CategoryGeoPoint:       "geometric-point",
	CategoryGeoBox:         "geometric-box",
	CategoryGeoOther:       "geometric-other",
	CategoryCompositeMat:   "composite-cvmat",
	CategoryCompositeEvent: "composite-vtevent",
	CategoryCompositeState: "composite-pstate",
	CategoryCompositeOther: "composite-other",
	CategoryEnumSeqtype:    "enum-seqtype",
	CategoryEnumInouttype:  "enum-inouttype",
	CategoryEnumPstatus:    "enum-pstatus",
	CategoryEnumOther:      "enum-other",
	CategoryArray:          "array",
	CategoryBlob:           "blob",
	CategoryRefType:        "reftype",
}

func (c TypeCategory) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

// TypeFlags qualify a TypeDefinition.
type TypeFlags uint8

const (
	FlagArray TypeFlags = 1 << iota
	FlagNumeric
	FlagGeometric
	FlagUserDefined
	FlagRefType
)

// Has reports whether all bits of f are set.
func (t TypeFlags) Has(f TypeFlags) bool { return t&f == f }

// TypeDefinition is the normalized descriptor of one backend-native type.
// Array types also carry the category and length of their element type.
type TypeDefinition struct {
	Name         string
	Category     TypeCategory
	Flags        TypeFlags
	Length       int
	ElemCategory TypeCategory
	ElemLength   int
}

// userTypes are the custom types VTApi registers with every backend that
// knows about them.
var userTypes = map[string]TypeDefinition{
	"seqtype":   {Name: "seqtype", Category: CategoryEnumSeqtype, Flags: FlagUserDefined, Length: 4},
	"inouttype": {Name: "inouttype", Category: CategoryEnumInouttype, Flags: FlagUserDefined, Length: 4},
	"pstatus":   {Name: "pstatus", Category: CategoryEnumPstatus, Flags: FlagUserDefined, Length: 4},
	"cvmat":     {Name: "cvmat", Category: CategoryCompositeMat, Flags: FlagUserDefined, Length: -1},
	"vtevent":   {Name: "vtevent", Category: CategoryCompositeEvent, Flags: FlagUserDefined, Length: -1},
	"pstate":    {Name: "pstate", Category: CategoryCompositeState, Flags: FlagUserDefined, Length: -1},
}

// UserType returns the registered definition of a VTApi custom type.
func UserType(name string) (TypeDefinition, bool) {
	def, ok := userTypes[name]
	return def, ok
}

// UserTypeNames lists the registered custom type names in sorted order.
func UserTypeNames() []string {
	names := make([]string, 0, len(userTypes))
	for name := range userTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TypeCatalog maps backend-native type ids to normalized definitions.
// It is filled once while a Connection is established and only read after.
type TypeCatalog struct {
	byID   map[uint32]TypeDefinition
	byName map[string]uint32
}

// NewTypeCatalog returns an empty catalog.
func NewTypeCatalog() *TypeCatalog {
	return &TypeCatalog{
		byID:   make(map[uint32]TypeDefinition),
		byName: make(map[string]uint32),
	}
}

// Add records def under id. Registered user types override the category
// and flags reported by the backend.
func (c *TypeCatalog) Add(id uint32, def TypeDefinition) {
	if ut, ok := userTypes[def.Name]; ok {
		def.Category = ut.Category
		def.Flags |= ut.Flags
	}
	c.byID[id] = def
	c.byName[def.Name] = id
}

// Lookup returns the definition registered under id.
func (c *TypeCatalog) Lookup(id uint32) (TypeDefinition, bool) {
	if c == nil {
		return TypeDefinition{}, false
	}
	def, ok := c.byID[id]
	return def, ok
}

// LookupName returns the id and definition of the type called name.
func (c *TypeCatalog) LookupName(name string) (uint32, TypeDefinition, bool) {
	if c == nil {
		return 0, TypeDefinition{}, false
	}
	id, ok := c.byName[name]
	if !ok {
		return 0, TypeDefinition{}, false
	}
	return id, c.byID[id], true
}

// Len returns the number of known types.
func (c *TypeCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.byID)
}

// MissingUserTypes lists registered user types the backend does not know.
func (c *TypeCatalog) MissingUserTypes() []string {
	var missing []string
	for _, name := range UserTypeNames() {
		if _, _, ok := c.LookupName(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
