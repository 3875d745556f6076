package routine

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/abramin/sqlbridge/internal/model"
)

// DefaultLocalPrefixes are the name prefixes that mark a qualified call as
// belonging to the local code base.
var DefaultLocalPrefixes = []string{"PK_"}

const returnKeyword = "RETURN"

var call = regexp.MustCompile(`\b([\w$#]+(?:\.[\w$#]+)*)\s*\(`)

const tableIdent = `("?[\w$#]+"?(?:\."?[\w$#]+"?)?)`

var tablePatterns = map[model.StatementKind]*regexp.Regexp{
	model.StatementSelect: regexp.MustCompile(`(?i)\bSELECT\b[^;]*?\bFROM\s+` + tableIdent),
	model.StatementInsert: regexp.MustCompile(`(?i)\bINSERT\s+INTO\s+` + tableIdent),
	model.StatementUpdate: regexp.MustCompile(`(?i)\bUPDATE\s+` + tableIdent),
	model.StatementDelete: regexp.MustCompile(`(?i)\bDELETE\s+(?:FROM\s+)?` + tableIdent),
}

// Extractor pulls call expressions and table references out of routine
// bodies belonging to one schema.
type Extractor struct {
	Schema        string
	LocalPrefixes []string
}

// NewExtractor returns an extractor for schema. A nil prefixes slice uses
// DefaultLocalPrefixes.
func NewExtractor(schema string, prefixes []string) *Extractor {
	if prefixes == nil {
		prefixes = DefaultLocalPrefixes
	}
	return &Extractor{Schema: schema, LocalPrefixes: prefixes}
}

// Calls returns every call expression after the first BEGIN of body, in
// order and with duplicates. Calls are lower-cased and keep their
// qualification. Calls qualified with a foreign schema are dropped unless
// they carry a local prefix.
func (e *Extractor) Calls(body string) []string {
	loc := blockStart.FindStringIndex(body)
	if loc == nil {
		return nil
	}

	var calls []string
	for _, m := range call.FindAllStringSubmatch(body[loc[0]:], -1) {
		raw := m[1]
		if strings.EqualFold(raw, returnKeyword) || !e.retained(raw) {
			continue
		}
		calls = append(calls, strings.ToLower(strings.ReplaceAll(raw, "$", "_")))
	}
	return calls
}

func (e *Extractor) retained(raw string) bool {
	parts := strings.Split(raw, ".")
	if len(parts) == 1 || len(parts) == 2 {
		return true
	}
	if strings.EqualFold(parts[0], e.Schema) {
		return true
	}
	upper := strings.ToUpper(raw)
	for _, p := range e.LocalPrefixes {
		if strings.HasPrefix(upper, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}

// Tables returns the tables of the extractor's schema that body selects
// from, inserts into, updates and deletes from. Unqualified and foreign
// tables are ignored.
func (e *Extractor) Tables(body string) model.TableRefs {
	var refs model.TableRefs
	for _, kind := range model.StatementKinds {
		names := e.tables(tablePatterns[kind], body)
		switch kind {
		case model.StatementSelect:
			refs.Selects = names
		case model.StatementInsert:
			refs.Inserts = names
		case model.StatementUpdate:
			refs.Updates = names
		case model.StatementDelete:
			refs.Deletes = names
		}
	}
	return refs
}

func (e *Extractor) tables(re *regexp.Regexp, body string) []string {
	names := []string{}
	seen := map[string]bool{}
	for _, m := range re.FindAllStringSubmatch(body, -1) {
		parts := strings.Split(strings.ReplaceAll(m[1], `"`, ""), ".")
		if len(parts) != 2 || !strings.EqualFold(parts[0], e.Schema) {
			continue
		}
		name := strings.ToUpper(strings.ReplaceAll(parts[1], "$", "_"))
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// Unit extracts the references of one segment.
func (e *Extractor) Unit(seg Segment) model.PackageUnit {
	calls := e.Calls(seg.Body)
	if calls == nil {
		calls = []string{}
	}
	return model.PackageUnit{
		Name:          seg.Name,
		Kind:          seg.Kind,
		Body:          seg.Body,
		Calls:         calls,
		Tables:        e.Tables(seg.Body),
		InternalCalls: []string{},
		ExternalCalls: []string{},
	}
}

// File segments a package source and extracts every unit. The package
// name is the upper-cased file name without its extension.
func (e *Extractor) File(path, source string) model.PackageFile {
	file := model.PackageFile{
		Name:  PackageName(path),
		Path:  path,
		Units: []model.PackageUnit{},
	}
	for _, seg := range Split(source) {
		file.Units = append(file.Units, e.Unit(seg))
	}
	return file
}

// PackageName derives a package name from a source file path.
func PackageName(path string) string {
	base := filepath.Base(path)
	return strings.ToUpper(strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base))))
}
