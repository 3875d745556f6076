package schema

import (
	"fmt"

	"github.com/abramin/sqlbridge/internal/model"
)

// Parse splits a normalized dump and parses every table block. Per-block
// failures are collected in Schema.Errors; only a dump that cannot be split
// at all returns an error.
func Parse(dump, schemaName string) (*model.Schema, error) {
	split, err := NewSplitter(schemaName).SplitAll(dump)
	if err != nil {
		return nil, fmt.Errorf("splitting %s dump: %w", schemaName, err)
	}

	out := &model.Schema{
		Name:   schemaName,
		Views:  split.Views.Map(),
		Errors: split.Errors(),
	}

	comments := ParseComments(dump)
	for i, block := range split.Tables.Items {
		table, err := BuildTable(
			block.Name,
			block.Body,
			comments,
			split.Indexes.Bodies(block.Name),
			split.Triggers.Bodies(block.Name),
		)
		if err != nil {
			out.Errors = append(out.Errors, &BlockError{Type: model.BlockTable, Name: block.Name, Index: i, Err: err})
			continue
		}
		out.Tables = append(out.Tables, table)
	}

	return out, nil
}
