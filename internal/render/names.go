package render

import (
	"go/token"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ExportedName converts an Oracle identifier such as EMPLOYEE_ID or load_data
// into an exported Go identifier (EmployeeId, LoadData).
func ExportedName(ident string) string {
	parts := strings.FieldsFunc(ident, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	title := cases.Title(language.Und)
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(title.String(strings.ToLower(p)))
	}

	name := b.String()
	if name == "" {
		return "X"
	}
	if unicode.IsDigit(rune(name[0])) {
		name = "X" + name
	}
	return name
}

// PackageName converts an Oracle package or schema name into a Go package clause.
func PackageName(ident string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(ident) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}

	name := b.String()
	switch {
	case name == "":
		return "pkg"
	case unicode.IsDigit(rune(name[0])):
		return "p" + name
	case token.IsKeyword(name):
		return name + "pkg"
	}
	return name
}

// uniqueNames keeps generated identifiers distinct within one scope.
type uniqueNames map[string]int

func (u uniqueNames) name(base string) string {
	u[base]++
	if n := u[base]; n > 1 {
		return base + strconv.Itoa(n)
	}
	return base
}
