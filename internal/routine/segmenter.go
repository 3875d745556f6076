// Package routine cuts package sources into procedure and function units
// and extracts the calls and table references of each unit.
package routine

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/abramin/sqlbridge/internal/model"
)

var (
	// declaration matches a line that opens a procedure or function and
	// captures the keyword and the routine name. The keyword must start the
	// line so that mentions inside literals or statements are not boundaries.
	declaration = regexp.MustCompile(`(?i)^\s*(?:CREATE\s+(?:OR\s+REPLACE\s+)?)?(PROCEDURE|FUNCTION)\s+("?[\w$#]+"?)`)

	// blockStart matches the start of the executable part of a routine.
	blockStart = regexp.MustCompile(`(?i)\bBEGIN\b`)
)

// Segment is one procedure or function with an executable body.
type Segment struct {
	Name string
	Kind model.RoutineKind
	Body string
}

// Split cuts a package source into the routines it implements, in
// source order. Declaration-only headers (forward declarations, package
// specs) have no BEGIN and are skipped. Names are lower-cased; when several
// routines share a name each occurrence is suffixed with _proc or _func,
// and a numeric suffix is added if that still collides.
func Split(source string) []Segment {
	lines := nonEmptyLines(source)

	var bounds []int
	for i, line := range lines {
		if declaration.MatchString(line) {
			bounds = append(bounds, i)
		}
	}
	if len(bounds) == 0 {
		return nil
	}

	var segs []Segment
	for i, start := range bounds {
		end := len(lines)
		if i+1 < len(bounds) {
			end = bounds[i+1]
		}
		body := strings.TrimSpace(strings.Join(lines[start:end], "\n"))
		if !blockStart.MatchString(body) {
			continue
		}
		name, kind := header(lines[start])
		segs = append(segs, Segment{Name: name, Kind: kind, Body: body})
	}

	disambiguate(segs)
	return segs
}

// header derives the routine name and kind from its declaration line.
func header(line string) (string, model.RoutineKind) {
	m := declaration.FindStringSubmatch(line)
	kind := model.KindProcedure
	if strings.EqualFold(m[1], "FUNCTION") {
		kind = model.KindFunction
	}
	return normalizeName(m[2]), kind
}

func normalizeName(name string) string {
	name = strings.ReplaceAll(name, `"`, "")
	name = strings.ReplaceAll(name, "$", "_")
	return strings.ToLower(strings.TrimSpace(name))
}

func disambiguate(segs []Segment) {
	counts := map[string]int{}
	for _, s := range segs {
		counts[s.Name]++
	}

	taken := map[string]bool{}
	for _, s := range segs {
		if counts[s.Name] == 1 {
			taken[s.Name] = true
		}
	}

	for i := range segs {
		if counts[segs[i].Name] == 1 {
			continue
		}
		name := segs[i].Name + kindSuffix(segs[i].Kind)
		candidate := name
		for n := 2; taken[candidate]; n++ {
			candidate = name + "_" + strconv.Itoa(n)
		}
		taken[candidate] = true
		segs[i].Name = candidate
	}
}

func kindSuffix(kind model.RoutineKind) string {
	if kind == model.KindFunction {
		return "_func"
	}
	return "_proc"
}

func nonEmptyLines(source string) []string {
	raw := strings.Split(strings.ReplaceAll(source, "\r\n", "\n"), "\n")
	lines := raw[:0]
	for _, l := range raw {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
