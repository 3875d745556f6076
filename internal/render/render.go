// Package render generates Go source from the extracted schema and call graph:
// one struct per table, one file per view and one function per routine.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/tools/imports"

	"github.com/abramin/sqlbridge/internal/model"
)

const header = "// Code generated by sqlbridge. DO NOT EDIT.\n\n"

// Renderer writes generated sources under an output directory.
type Renderer struct {
	outDir string
	types  TypeMap
}

// Result summarizes a write pass.
type Result struct {
	Files int
	Bytes int64
}

// New creates a renderer writing into outDir.
func New(outDir string, overrides map[string]string) *Renderer {
	return &Renderer{outDir: outDir, types: NewTypeMap(overrides)}
}

// TablePath returns where the struct of a table is written.
func (r *Renderer) TablePath(schema, table string) string {
	return filepath.Join(r.outDir, "entities", schema, "tables", table+".go")
}

// ViewPath returns where a view is written.
func (r *Renderer) ViewPath(schema, view string) string {
	return filepath.Join(r.outDir, "entities", schema, "views", view+".go")
}

// RoutinePath returns where a routine of a package is written.
func (r *Renderer) RoutinePath(schema, pkg, routine string) string {
	return filepath.Join(r.outDir, "code", schema, pkg, routine+".go")
}

// Table renders the struct of a table. Columns with an unmapped type fail
// the whole table with ErrUnknownType.
func (r *Renderer) Table(schema string, t model.TableEntity) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(header)
	buf.WriteString("package tables\n\n")

	name := ExportedName(t.Name)
	fmt.Fprintf(&buf, "// %s maps table %s.%s.\n", name, schema, t.Name)
	fmt.Fprintf(&buf, "type %s struct {\n", name)

	fields := uniqueNames{}
	for _, p := range t.Properties {
		goType, err := r.types.GoType(p.Type)
		if err != nil {
			return nil, fmt.Errorf("table %s column %s: %w", t.Name, p.Name, err)
		}
		if p.Comment != "" {
			writeComment(&buf, "\t", p.Comment)
		}
		fmt.Fprintf(&buf, "\t%s %s `db:%q`", fields.name(ExportedName(p.Name)), goType, p.Name)
		if p.Length != nil {
			fmt.Fprintf(&buf, " // max length: %s", strconv.FormatFloat(*p.Length, 'f', -1, 64))
		}
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")

	writeSection(&buf, "Indexes", t.Indexes)
	writeSection(&buf, "Triggers", t.Triggers)
	writeSection(&buf, "Script", []string{t.Script})

	return format(r.TablePath(schema, t.Name), buf.Bytes())
}

// View renders a view as an empty struct carrying its original text.
func (r *Renderer) View(schema, view, body string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(header)
	buf.WriteString("package views\n\n")

	name := ExportedName(view)
	fmt.Fprintf(&buf, "// %s maps view %s.%s.\n", name, schema, view)
	buf.WriteString("//\n")
	writeIndented(&buf, body)
	fmt.Fprintf(&buf, "type %s struct{}\n", name)

	return format(r.ViewPath(schema, view), buf.Bytes())
}

// Routine renders unit idx of file as a Go function. Internal calls become
// calls to the sibling functions of the package; external calls and table
// references are listed in the doc comment.
func (r *Renderer) Routine(schema string, file model.PackageFile, idx int) ([]byte, error) {
	if idx < 0 || idx >= len(file.Units) {
		return nil, fmt.Errorf("package %s has no unit %d", file.Name, idx)
	}
	funcs := funcNames(file)
	u := file.Units[idx]

	var buf bytes.Buffer
	buf.WriteString(header)
	fmt.Fprintf(&buf, "package %s\n\n", PackageName(file.Name))

	name := funcs[strings.ToLower(u.Name)]
	fmt.Fprintf(&buf, "// %s is the %s %s.%s.%s.\n", name, u.Kind, schema, file.Name, u.Name)
	if len(u.ExternalCalls) > 0 {
		buf.WriteString("//\n// External calls:\n")
		for _, c := range u.ExternalCalls {
			fmt.Fprintf(&buf, "//   - %s\n", c)
		}
	}
	for _, kind := range model.StatementKinds {
		if tables := u.Tables.ByKind(kind); len(tables) > 0 {
			fmt.Fprintf(&buf, "//\n// %s: %s\n", statementLabel(kind), strings.Join(tables, ", "))
		}
	}
	buf.WriteString("//\n// Source:\n//\n")
	writeIndented(&buf, u.Body)

	fmt.Fprintf(&buf, "func %s() {\n", name)
	for _, c := range u.InternalCalls {
		if target, ok := funcs[strings.ToLower(c)]; ok {
			fmt.Fprintf(&buf, "\t%s()\n", target)
		}
	}
	buf.WriteString("}\n")

	return format(r.RoutinePath(schema, file.Name, u.Name), buf.Bytes())
}

// WriteSchema renders every table and view of s. A table that fails to
// render is skipped and its error joined into the returned error.
func (r *Renderer) WriteSchema(s *model.Schema) (Result, error) {
	var res Result
	var errs []error

	for _, t := range s.Tables {
		src, err := r.Table(s.Name, t)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := res.write(r.TablePath(s.Name, t.Name), src); err != nil {
			return res, err
		}
	}

	views := make([]string, 0, len(s.Views))
	for name := range s.Views {
		views = append(views, name)
	}
	sort.Strings(views)

	for _, name := range views {
		src, err := r.View(s.Name, name, s.Views[name])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := res.write(r.ViewPath(s.Name, name), src); err != nil {
			return res, err
		}
	}
	return res, errors.Join(errs...)
}

// WritePackages renders every routine of files.
func (r *Renderer) WritePackages(schema string, files []model.PackageFile) (Result, error) {
	var res Result
	var errs []error

	for _, f := range files {
		for i, u := range f.Units {
			src, err := r.Routine(schema, f, i)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if err := res.write(r.RoutinePath(schema, f.Name, u.Name), src); err != nil {
				return res, err
			}
		}
	}
	return res, errors.Join(errs...)
}

func (res *Result) write(path string, src []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(path, src, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	res.Files++
	res.Bytes += int64(len(src))
	return nil
}

// format gofmts src and adds the imports it needs (time for date columns).
func format(path string, src []byte) ([]byte, error) {
	out, err := imports.Process(path, src, &imports.Options{Comments: true, TabIndent: true, TabWidth: 8, FormatOnly: false})
	if err != nil {
		return nil, fmt.Errorf("formatting %s: %w", filepath.Base(path), err)
	}
	return out, nil
}

// funcNames maps each lower-cased routine name of file to a distinct Go name.
func funcNames(file model.PackageFile) map[string]string {
	seen := uniqueNames{}
	names := make(map[string]string, len(file.Units))
	for _, u := range file.Units {
		key := strings.ToLower(u.Name)
		if _, ok := names[key]; !ok {
			names[key] = seen.name(ExportedName(u.Name))
		}
	}
	return names
}

func statementLabel(kind model.StatementKind) string {
	switch kind {
	case model.StatementSelect:
		return "Selects from"
	case model.StatementInsert:
		return "Inserts into"
	case model.StatementUpdate:
		return "Updates"
	default:
		return "Deletes from"
	}
}

func writeSection(buf *bytes.Buffer, title string, blocks []string) {
	var nonEmpty []string
	for _, b := range blocks {
		if strings.TrimSpace(b) != "" {
			nonEmpty = append(nonEmpty, b)
		}
	}
	if len(nonEmpty) == 0 {
		return
	}

	fmt.Fprintf(buf, "\n// %s:\n", title)
	for i, b := range nonEmpty {
		if i > 0 {
			buf.WriteString("//\n")
		}
		buf.WriteString("//\n")
		writeIndented(buf, b)
	}
}

func writeComment(buf *bytes.Buffer, indent, text string) {
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(buf, "%s// %s\n", indent, strings.TrimSpace(line))
	}
}

// writeIndented writes text as a preformatted comment block.
func writeIndented(buf *bytes.Buffer, text string) {
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			buf.WriteString("//\n")
			continue
		}
		fmt.Fprintf(buf, "//\t%s\n", line)
	}
}
