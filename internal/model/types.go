// Package model holds the schema and call-graph entities produced by the
// extraction engine and consumed by persistence, rendering and the API.
package model

import "strings"

// BlockType identifies the kind of DDL block in a schema dump.
type BlockType string

const (
	BlockTable   BlockType = "table"
	BlockView    BlockType = "view"
	BlockIndex   BlockType = "index"
	BlockTrigger BlockType = "trigger"
)

// BlockOrder is the order in which block types appear in an export dump.
var BlockOrder = []BlockType{BlockTable, BlockView, BlockIndex, BlockTrigger}

// Marker returns the word used after "DDL for" to introduce blocks of this type.
func (b BlockType) Marker() string {
	switch b {
	case BlockTable:
		return "Table"
	case BlockView:
		return "View"
	case BlockIndex:
		return "Index"
	case BlockTrigger:
		return "Trigger"
	default:
		return ""
	}
}

// StatementKind is the DML statement through which a routine touches a table.
type StatementKind string

const (
	StatementSelect StatementKind = "select"
	StatementInsert StatementKind = "insert"
	StatementUpdate StatementKind = "update"
	StatementDelete StatementKind = "delete"
)

// StatementKinds lists every statement kind in rendering order.
var StatementKinds = []StatementKind{StatementSelect, StatementInsert, StatementUpdate, StatementDelete}

// RoutineKind distinguishes procedures from functions.
type RoutineKind string

const (
	KindProcedure RoutineKind = "procedure"
	KindFunction  RoutineKind = "function"
)

// TableProperty is one column of a table.
type TableProperty struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Length  *float64 `json:"length,omitempty"` // nil when absent or not numeric
	Comment string   `json:"comment,omitempty"`
}

// TableEntity is a parsed table block with its associated indexes and triggers.
type TableEntity struct {
	Name       string          `json:"name"`
	Properties []TableProperty `json:"properties"`
	Indexes    []string        `json:"indexes"`
	Triggers   []string        `json:"triggers"`
	Script     string          `json:"script"`
}

// Schema is the entity model of one schema dump.
type Schema struct {
	Name   string
	Tables []TableEntity
	Views  map[string]string // view name -> cleaned block text
	Errors []error           // per-block failures that did not abort the dump
}

// TableRefs holds upper-cased table names referenced by a routine, per statement kind.
type TableRefs struct {
	Selects []string `json:"selects"`
	Inserts []string `json:"inserts"`
	Updates []string `json:"updates"`
	Deletes []string `json:"deletes"`
}

// ByKind returns the table names referenced through the given statement kind.
func (r TableRefs) ByKind(kind StatementKind) []string {
	switch kind {
	case StatementSelect:
		return r.Selects
	case StatementInsert:
		return r.Inserts
	case StatementUpdate:
		return r.Updates
	case StatementDelete:
		return r.Deletes
	default:
		return nil
	}
}

// Empty reports whether no table is referenced at all.
func (r TableRefs) Empty() bool {
	return len(r.Selects)+len(r.Inserts)+len(r.Updates)+len(r.Deletes) == 0
}

// PackageUnit is one procedure or function body extracted from a package.
type PackageUnit struct {
	Name          string      `json:"name"`
	Kind          RoutineKind `json:"kind"`
	Body          string      `json:"body"`
	Calls         []string    `json:"calls"`
	Tables        TableRefs   `json:"tables"`
	InternalCalls []string    `json:"internal_calls"`
	ExternalCalls []string    `json:"external_calls"`
}

// PackageFile is one package source file and the units it declares, in source order.
type PackageFile struct {
	Name  string        `json:"name"`
	Path  string        `json:"path,omitempty"`
	Units []PackageUnit `json:"units"`
}

// Clone returns a copy of the file whose units can be annotated without
// touching the receiver.
func (f PackageFile) Clone() PackageFile {
	units := make([]PackageUnit, len(f.Units))
	copy(units, f.Units)
	for i := range units {
		units[i].InternalCalls = append([]string(nil), units[i].InternalCalls...)
		units[i].ExternalCalls = append([]string(nil), units[i].ExternalCalls...)
	}
	f.Units = units
	return f
}

// Unit returns the unit with the given name, compared case-insensitively.
func (f PackageFile) Unit(name string) (PackageUnit, bool) {
	for _, u := range f.Units {
		if strings.EqualFold(u.Name, name) {
			return u, true
		}
	}
	return PackageUnit{}, false
}
