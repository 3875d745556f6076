package model

import "strings"

// Ident identifies a routine as schema.package.name. Package is empty for
// unqualified references and for schema-level routines.
type Ident struct {
	Schema  string
	Package string
	Name    string
}

// ParseIdent splits a dotted call expression into an Ident. A two-part
// reference is package.name unless its first part is the schema itself.
func ParseIdent(raw, schema string) Ident {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	switch len(parts) {
	case 1:
		return Ident{Name: parts[0]}
	case 2:
		if strings.EqualFold(parts[0], schema) {
			return Ident{Schema: parts[0], Name: parts[1]}
		}
		return Ident{Schema: schema, Package: parts[0], Name: parts[1]}
	default:
		n := len(parts)
		return Ident{Schema: parts[n-3], Package: parts[n-2], Name: parts[n-1]}
	}
}

// Qualified reports whether the identifier names a package.
func (id Ident) Qualified() bool {
	return id.Package != ""
}

// Key is the case-folded canonical form used for matching.
func (id Ident) Key() string {
	return strings.ToLower(id.join())
}

// String renders SCHEMA.PACKAGE.name.
func (id Ident) String() string {
	return Ident{
		Schema:  strings.ToUpper(id.Schema),
		Package: strings.ToUpper(id.Package),
		Name:    strings.ToLower(id.Name),
	}.join()
}

// Equal compares two identifiers case-insensitively.
func (id Ident) Equal(other Ident) bool {
	return id.Key() == other.Key()
}

func (id Ident) join() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{id.Schema, id.Package, id.Name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}
