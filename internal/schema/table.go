package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/abramin/sqlbridge/internal/dump"
	"github.com/abramin/sqlbridge/internal/model"
)

var columnComment = regexp.MustCompile(`COMMENT ON COLUMN ([\w$#]+)\.([\w$#]+)\.([\w$#]+) IS '((?:[^']|'')*)'`)

// Length qualifiers that follow the size of character columns.
var lengthUnits = []string{" BYTE", " CHAR"}

// Trailing column clauses that are never part of the type.
var columnClauses = []string{" DEFAULT ", " NOT NULL", " NULL", " CONSTRAINT ", " ENABLE", " COLLATE "}

// Lines inside the column list that declare constraints rather than columns.
var constraintPrefixes = []string{"CONSTRAINT ", "PRIMARY KEY", "UNIQUE ", "FOREIGN KEY", "CHECK "}

// ColumnComment is one COMMENT ON COLUMN statement.
type ColumnComment struct {
	Owner  string
	Table  string
	Column string
	Text   string
}

// Comments indexes column comments by table and column, and by column
// alone for columns whose table has no comment of its own.
type Comments struct {
	byTable  map[string]string
	byColumn map[string]string
}

func commentKey(table, column string) string {
	return identKey(table) + "." + identKey(column)
}

// Lookup returns the comment of table.column, falling back to the comment
// of any column with the same name.
func (c Comments) Lookup(table, column string) string {
	if text, ok := c.byTable[commentKey(table, column)]; ok {
		return text
	}
	return c.byColumn[identKey(column)]
}

// Len returns the number of distinct table columns carrying a comment.
func (c Comments) Len() int {
	return len(c.byTable)
}

// ParseComments extracts every column comment in text.
func ParseComments(text string) Comments {
	comments := Comments{byTable: map[string]string{}, byColumn: map[string]string{}}
	for _, m := range columnComment.FindAllStringSubmatch(quoteRemover.Replace(text), -1) {
		c := ColumnComment{Owner: m[1], Table: m[2], Column: m[3], Text: strings.ReplaceAll(m[4], "''", "'")}
		comments.byTable[commentKey(c.Table, c.Column)] = c.Text
		comments.byColumn[identKey(c.Column)] = c.Text
	}
	return comments
}

// ParseColumns reads the column list of a cleaned CREATE TABLE block. It
// stops at the first blank line or at the line closing the list.
func ParseColumns(table, body string) ([]model.TableProperty, error) {
	open := strings.Index(body, "(")
	closing := matchingParen(body, open)
	if open < 0 || closing <= open {
		return nil, fmt.Errorf("%w: table %s has no column list", ErrMalformedBlock, table)
	}

	var props []model.TableProperty
	seen := map[string]int{}

	for i, line := range strings.Split(body[open+1:closing], "\n") {
		trimmed := strings.TrimSpace(line)
		if i == 0 && trimmed == "" {
			continue // rest of the line holding "("
		}
		if trimmed == "" || strings.HasPrefix(trimmed, ")") {
			break
		}
		for _, def := range splitTopLevel(trimmed) {
			prop, ok := parseColumn(table, def)
			if !ok {
				continue
			}
			if i, dup := seen[prop.Name]; dup {
				props[i] = prop
				continue
			}
			seen[prop.Name] = len(props)
			props = append(props, prop)
		}
	}
	return props, nil
}

// matchingParen returns the index of the parenthesis closing the one at
// open, falling back to the last ")" of text when they are unbalanced.
func matchingParen(text string, open int) int {
	if open < 0 {
		return -1
	}
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return strings.LastIndex(text, ")")
}

// splitTopLevel splits a line on commas outside parentheses, so one-line
// column lists parse like multi-line ones.
func splitTopLevel(line string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range line {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, line[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, line[start:])

	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseColumn(table, def string) (model.TableProperty, bool) {
	upper := strings.ToUpper(def)
	for _, prefix := range constraintPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return model.TableProperty{}, false
		}
	}

	fields := strings.Fields(def)
	if len(fields) < 2 {
		return model.TableProperty{}, false
	}

	name := quoteRemover.Replace(fields[0])
	typ, length := parseType(strings.TrimSpace(strings.TrimPrefix(def, fields[0])))

	if strings.EqualFold(name, table) {
		name = table + "_" + name
	}

	return model.TableProperty{
		Name:   name,
		Type:   typ,
		Length: parseLength(length),
	}, true
}

// parseType splits a column type specification into its type keyword and
// the raw text of its length, if any.
func parseType(decl string) (typ, length string) {
	decl = strings.TrimSuffix(strings.TrimSpace(decl), ",")

	if open := strings.Index(decl, "("); open >= 0 {
		typ = strings.TrimSpace(decl[:open])
		rest := decl[open+1:]
		closing := strings.Index(rest, ")")
		if closing < 0 {
			closing = len(rest)
		}
		length = rest[:closing]
		for _, unit := range lengthUnits {
			length = strings.ReplaceAll(length, unit, "")
		}
		if closing < len(rest) && strings.HasPrefix(strings.ToUpper(strings.TrimSpace(rest[closing+1:])), "WITH TIME ZONE") {
			typ += " WITH TIME ZONE"
		}
	} else {
		typ = strings.ReplaceAll(decl, ",", "")
		upper := strings.ToUpper(typ)
		for _, clause := range columnClauses {
			if i := strings.Index(upper, clause); i >= 0 {
				typ, upper = typ[:i], upper[:i]
			}
		}
	}

	typ = strings.TrimSpace(quoteRemover.Replace(typ))
	if (strings.HasPrefix(typ, "DATE") || strings.HasPrefix(typ, "NUMBER")) && strings.Contains(typ, " ") {
		typ = typ[:strings.Index(typ, " ")]
	}
	return typ, strings.TrimSpace(length)
}

func parseLength(raw string) *float64 {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

// BuildTable parses one table block and attaches its comments, index
// bodies and trigger bodies.
func BuildTable(name, body string, comments Comments, indexes, triggers []string) (model.TableEntity, error) {
	props, err := ParseColumns(name, body)
	if err != nil {
		return model.TableEntity{}, err
	}

	for i := range props {
		props[i].Comment = comments.Lookup(name, declaredName(name, props[i].Name))
	}

	cleanTriggers := make([]string, len(triggers))
	for i, t := range triggers {
		cleanTriggers[i] = dump.RemoveEmptyLines(t)
	}

	return model.TableEntity{
		Name:       name,
		Properties: props,
		Indexes:    append([]string(nil), indexes...),
		Triggers:   cleanTriggers,
		Script:     dump.RemoveEmptyLines(body),
	}, nil
}

// declaredName undoes the table-name disambiguation of a column.
func declaredName(table, column string) string {
	if strings.EqualFold(column, table+"_"+table) {
		return table
	}
	return column
}
