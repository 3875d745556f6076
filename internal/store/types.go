package store

import "github.com/abramin/sqlbridge/internal/model"

// RoutineID is a type-safe identifier for routines.
type RoutineID int64

// CallKind distinguishes raw call expressions from resolved ones.
type CallKind string

const (
	CallKindRaw      CallKind = "raw"      // As written in the routine body
	CallKindInternal CallKind = "internal" // Routine of the same package
	CallKindExternal CallKind = "external" // Routine of another package
)

// Table is a table summary.
type Table struct {
	Name        string `json:"name"`
	ColumnCount int    `json:"column_count"`
}

// TableDetail is a table with its columns and attached blocks.
type TableDetail struct {
	Name     string                `json:"name"`
	Columns  []model.TableProperty `json:"columns"`
	Indexes  []string              `json:"indexes"`
	Triggers []string              `json:"triggers"`
	Script   string                `json:"script"`
}

// Package is a package summary.
type Package struct {
	Name         string `json:"name"`
	Path         string `json:"path,omitempty"`
	RoutineCount int    `json:"routine_count"`
}

// Routine is a procedure or function of a package.
type Routine struct {
	ID      RoutineID         `json:"id"`
	Package string            `json:"package"`
	Name    string            `json:"name"`
	Kind    model.RoutineKind `json:"kind"`
}

// RoutineDetail is a routine with its calls and table references.
type RoutineDetail struct {
	Routine
	Body          string          `json:"body"`
	Calls         []string        `json:"calls"`
	InternalCalls []string        `json:"internal_calls"`
	ExternalCalls []string        `json:"external_calls"`
	Tables        model.TableRefs `json:"tables"`
}

// TableUsage is a routine touching a table through one statement kind.
type TableUsage struct {
	Routine
	Statement model.StatementKind `json:"statement"`
}

// SearchResult is a table, view or routine matching a search.
type SearchResult struct {
	Kind    string `json:"kind"` // table, view or routine
	Name    string `json:"name"`
	Package string `json:"package,omitempty"`
}

// BlockError is a persisted extraction failure.
type BlockError struct {
	BlockType string `json:"block_type,omitempty"`
	Name      string `json:"name,omitempty"`
	Message   string `json:"message"`
}
