package render

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownType is returned when a column type has no Go mapping.
var ErrUnknownType = errors.New("unknown column type")

// DefaultTypes maps Oracle column types to Go field types.
var DefaultTypes = map[string]string{
	"CHAR":                     "*string",
	"VARCHAR2":                 "*string",
	"NCHAR":                    "*string",
	"NVARCHAR2":                "*string",
	"LONG":                     "*string",
	"NUMBER":                   "float64",
	"FLOAT":                    "float64",
	"DATE":                     "time.Time",
	"TIMESTAMP":                "time.Time",
	"TIMESTAMP WITH TIME ZONE": "time.Time",
	"SYS.XMLTYPE":              "*string",
	"CLOB":                     "*string",
	"BLOB":                     "[]byte",
	"RAW":                      "[]byte",
	"BOOLEAN":                  "bool",
}

// TypeMap resolves Oracle types to Go types.
type TypeMap map[string]string

// NewTypeMap returns the default mappings with overrides applied.
// Override keys are matched case-insensitively.
func NewTypeMap(overrides map[string]string) TypeMap {
	m := make(TypeMap, len(DefaultTypes)+len(overrides))
	for k, v := range DefaultTypes {
		m[k] = v
	}
	for k, v := range overrides {
		m[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return m
}

// GoType returns the Go type for an Oracle column type.
func (m TypeMap) GoType(oracle string) (string, error) {
	t, ok := m[strings.ToUpper(strings.TrimSpace(oracle))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, oracle)
	}
	return t, nil
}
