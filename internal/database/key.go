package database

import "strings"

// TKey identifies one logical column independent of any row: its name, its
// type name and the table it originates from.
type TKey struct {
	Name string
	Type string
	From string
}

// String renders the key as from.name:type, omitting empty parts.
func (k TKey) String() string {
	var sb strings.Builder
	if k.From != "" {
		sb.WriteString(k.From)
		sb.WriteByte('.')
	}
	sb.WriteString(k.Name)
	if k.Type != "" {
		sb.WriteByte(':')
		sb.WriteString(k.Type)
	}
	return sb.String()
}

// TKeys is an ordered list of column keys, usually the header of a result.
type TKeys []TKey

// Names returns the key names in order.
func (ks TKeys) Names() []string {
	names := make([]string, len(ks))
	for i, k := range ks {
		names[i] = k.Name
	}
	return names
}

// Index returns the position of the first key named name, or -1.
func (ks TKeys) Index(name string) int {
	for i, k := range ks {
		if k.Name == name {
			return i
		}
	}
	return -1
}
