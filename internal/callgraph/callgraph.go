// Package callgraph resolves the raw calls of package units into internal
// calls (same package) and external calls (another package of the schema).
//
// Resolution runs in two phases. The internal pass needs only the file
// being resolved and may run as soon as that file is extracted. The
// external pass needs a Registry of every unit in the schema, so it can
// only start once all files are extracted. Both passes return annotated
// copies and never modify their input.
package callgraph

import (
	"strings"

	"github.com/abramin/sqlbridge/internal/model"
)

// Options tunes resolution.
type Options struct {
	// LegacyShortCircuit stops resolving a file at its first unit without
	// calls, leaving every later unit of that file unresolved. When false
	// only the call-less unit itself is skipped.
	LegacyShortCircuit bool
}

// ResolveInternal annotates each unit of file with the calls it makes to
// units declared in the same file. A call is internal when it is
// unqualified or qualified with the file's own package.
func ResolveInternal(schema string, file model.PackageFile, opts Options) model.PackageFile {
	out := file.Clone()

	declared := make(map[string]string, len(out.Units))
	for _, u := range out.Units {
		declared[model.Ident{Name: u.Name}.Key()] = u.Name
	}

	for i := range out.Units {
		u := &out.Units[i]
		if len(u.Calls) == 0 {
			u.InternalCalls, u.ExternalCalls = []string{}, []string{}
			if opts.LegacyShortCircuit {
				break
			}
			continue
		}

		resolved := newOrderedSet()
		for _, raw := range u.Calls {
			id := model.ParseIdent(raw, schema)
			if id.Schema != "" && !id.Qualified() {
				continue // schema-level routine
			}
			if id.Qualified() && !strings.EqualFold(id.Package, out.Name) {
				continue
			}
			if name, ok := declared[model.Ident{Name: id.Name}.Key()]; ok {
				resolved.add(name)
			}
		}
		u.InternalCalls = resolved.values()
	}
	return out
}

// Registry is a read-only index of every unit of a schema, keyed by the
// case-folded schema.package.name.
type Registry struct {
	schema string
	units  map[string]model.Ident
}

// NewRegistry indexes the units of files. Every file of the schema must be
// fully extracted before the registry is built.
func NewRegistry(schema string, files []model.PackageFile) *Registry {
	r := &Registry{schema: schema, units: map[string]model.Ident{}}
	for _, f := range files {
		for _, u := range f.Units {
			id := model.Ident{Schema: schema, Package: f.Name, Name: u.Name}
			if _, dup := r.units[id.Key()]; !dup {
				r.units[id.Key()] = id
			}
		}
	}
	return r
}

// Len returns the number of indexed units.
func (r *Registry) Len() int {
	return len(r.units)
}

// Lookup finds the declared identifier matching id, ignoring case.
func (r *Registry) Lookup(id model.Ident) (model.Ident, bool) {
	found, ok := r.units[id.Key()]
	return found, ok
}

// ResolveExternal annotates each unit of file with the calls it makes to
// units of other packages held by the registry. Values are rendered as
// SCHEMA.PACKAGE.name.
func (r *Registry) ResolveExternal(file model.PackageFile, opts Options) model.PackageFile {
	out := file.Clone()

	for i := range out.Units {
		u := &out.Units[i]
		if len(u.Calls) == 0 {
			u.InternalCalls, u.ExternalCalls = []string{}, []string{}
			if opts.LegacyShortCircuit {
				break
			}
			continue
		}

		resolved := newOrderedSet()
		for _, raw := range u.Calls {
			id := model.ParseIdent(raw, r.schema)
			if !id.Qualified() || strings.EqualFold(id.Package, out.Name) {
				continue
			}
			if found, ok := r.Lookup(id); ok {
				resolved.add(found.String())
			}
		}
		u.ExternalCalls = resolved.values()
	}
	return out
}

// Build runs both passes over every file of a schema.
func Build(schema string, files []model.PackageFile, opts Options) []model.PackageFile {
	internal := make([]model.PackageFile, len(files))
	for i, f := range files {
		internal[i] = ResolveInternal(schema, f, opts)
	}

	reg := NewRegistry(schema, internal)
	out := make([]model.PackageFile, len(internal))
	for i, f := range internal {
		out[i] = reg.ResolveExternal(f, opts)
	}
	return out
}
