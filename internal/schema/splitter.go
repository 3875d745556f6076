// Package schema cuts an export dump into DDL blocks and parses table
// blocks into typed column definitions.
package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/abramin/sqlbridge/internal/model"
)

const (
	blockPrefix   = "DDL for"
	createKeyword = "CREATE "
	terminator    = ";"
)

var (
	// ErrMissingMarker means the dump has no "DDL for <Type>" marker for a
	// block type that must be present.
	ErrMissingMarker = errors.New("missing block marker")

	// ErrMalformedBlock means a block lacks the structural markers needed to
	// name it or cut its body.
	ErrMalformedBlock = errors.New("malformed block")
)

var (
	anyMarker    = regexp.MustCompile(blockPrefix + `\s*`)
	triggerName  = regexp.MustCompile(`([\w$#]+)\s+(?:REFERENCING|DECLARE|FOR\s+EACH|BEGIN)\b`)
	typeMarkers  = map[model.BlockType]*regexp.Regexp{}
	quoteRemover = strings.NewReplacer(`"`, "")
)

func init() {
	for _, bt := range model.BlockOrder {
		typeMarkers[bt] = regexp.MustCompile(blockPrefix + " " + bt.Marker() + `\s*`)
	}
}

// BlockError reports a single block that could not be named or cleaned.
type BlockError struct {
	Type  model.BlockType
	Name  string
	Index int
	Err   error
}

func (e *BlockError) Error() string {
	name := e.Name
	if name == "" {
		name = "<unnamed>"
	}
	return fmt.Sprintf("%s block #%d (%s): %v", e.Type, e.Index, name, e.Err)
}

func (e *BlockError) Unwrap() error {
	return e.Err
}

// Block is one named DDL block.
type Block struct {
	Name string
	Body string
}

// Blocks is the result of splitting one block type out of a dump. Several
// index or trigger blocks may share the name of the table they belong to.
type Blocks struct {
	Type   model.BlockType
	Items  []Block
	Errors []error
}

// Bodies returns the bodies of every block with the given name, in dump order.
func (b Blocks) Bodies(name string) []string {
	var out []string
	for _, item := range b.Items {
		if item.Name == name {
			out = append(out, item.Body)
		}
	}
	return out
}

// Map returns name -> body. Later blocks win on duplicate names.
func (b Blocks) Map() map[string]string {
	out := make(map[string]string, len(b.Items))
	for _, item := range b.Items {
		out[item.Name] = item.Body
	}
	return out
}

// SplitState is the not-yet-consumed tail of a dump and the block type the
// next Split call extracts.
type SplitState struct {
	Remaining string
	Next      model.BlockType
}

// NewSplitState starts splitting a full dump at its table blocks.
func NewSplitState(dump string) SplitState {
	return SplitState{Remaining: dump, Next: model.BlockTable}
}

// Done reports whether every block type has been extracted.
func (s SplitState) Done() bool {
	return s.Next == ""
}

func (s SplitState) advance(remaining string) SplitState {
	s.Remaining = remaining
	s.Next = nextBlockType(s.Next)
	return s
}

func nextBlockType(bt model.BlockType) model.BlockType {
	for i, t := range model.BlockOrder {
		if t == bt && i+1 < len(model.BlockOrder) {
			return model.BlockOrder[i+1]
		}
	}
	return ""
}

// Splitter extracts blocks for one schema.
type Splitter struct {
	Schema string
}

// NewSplitter creates a splitter that strips the given schema qualifier from block names.
func NewSplitter(schemaName string) *Splitter {
	return &Splitter{Schema: schemaName}
}

// Split extracts the blocks of state.Next from state.Remaining and returns
// the state for the following block type. When the dump holds no marker for
// the type, the returned error wraps ErrMissingMarker and the remainder is
// passed through untouched.
func (s *Splitter) Split(state SplitState) (Blocks, SplitState, error) {
	bt := state.Next
	blocks := Blocks{Type: bt}

	marker, ok := typeMarkers[bt]
	if !ok {
		return blocks, state, fmt.Errorf("unknown block type %q", bt)
	}

	fragments := marker.Split(state.Remaining, -1)
	if len(fragments) < 2 {
		return blocks, state.advance(state.Remaining), fmt.Errorf("%w: %q", ErrMissingMarker, blockPrefix+" "+bt.Marker())
	}

	// fragments[0] precedes the first marker and belongs to earlier types.
	for i, fragment := range fragments[1:] {
		raw := anyMarker.Split(fragment, 2)[0]
		if strings.TrimSpace(raw) == "" {
			continue
		}
		block, err := s.block(bt, raw)
		if err != nil {
			blocks.Errors = append(blocks.Errors, &BlockError{Type: bt, Name: block.Name, Index: i, Err: err})
			continue
		}
		blocks.Items = append(blocks.Items, block)
	}

	return blocks, state.advance(fragments[len(fragments)-1]), nil
}

func (s *Splitter) block(bt model.BlockType, raw string) (Block, error) {
	name, err := blockName(bt, raw)
	name = s.normalizeName(name)
	if err != nil {
		return Block{Name: name}, err
	}
	if name == "" {
		return Block{}, fmt.Errorf("%w: empty name", ErrMalformedBlock)
	}

	body, err := CleanBlock(raw)
	if err != nil {
		return Block{Name: name}, err
	}
	return Block{Name: name, Body: body}, nil
}

func (s *Splitter) normalizeName(name string) string {
	name = identKey(name)
	if s.Schema != "" {
		name = strings.TrimPrefix(name, identKey(s.Schema)+".")
	}
	return name
}

// identKey is the form under which tables and their blocks, columns and
// comments are matched: unquoted, upper-cased, with $ replaced by _.
func identKey(name string) string {
	name = strings.ReplaceAll(quoteRemover.Replace(name), "$", "_")
	return strings.ToUpper(strings.TrimSpace(name))
}

func blockName(bt model.BlockType, raw string) (string, error) {
	switch bt {
	case model.BlockIndex:
		on := strings.Index(raw, " ON ")
		if on < 0 {
			return "", fmt.Errorf("%w: index without ON clause", ErrMalformedBlock)
		}
		rest := raw[on+len(" ON "):]
		paren := strings.Index(rest, "(")
		if paren < 0 {
			return "", fmt.Errorf("%w: index without column list", ErrMalformedBlock)
		}
		return rest[:paren], nil
	case model.BlockTrigger:
		m := triggerName.FindStringSubmatch(quoteRemover.Replace(raw))
		if m == nil {
			return "", fmt.Errorf("%w: trigger without body keyword", ErrMalformedBlock)
		}
		return m[1], nil
	default:
		return strings.SplitN(raw, "\n", 2)[0], nil
	}
}

// CleanBlock keeps the text from the first CREATE keyword through the last
// statement terminator, inclusive.
func CleanBlock(raw string) (string, error) {
	start := strings.Index(raw, createKeyword)
	if start < 0 {
		return "", fmt.Errorf("%w: no %s keyword", ErrMalformedBlock, strings.TrimSpace(createKeyword))
	}
	end := strings.LastIndex(raw, terminator)
	if end < start {
		return "", fmt.Errorf("%w: no statement terminator", ErrMalformedBlock)
	}
	return strings.TrimSpace(raw[start : end+len(terminator)]), nil
}

// Split is the result of running every block type over one dump.
type Split struct {
	Tables   Blocks
	Views    Blocks
	Indexes  Blocks
	Triggers Blocks
}

// Errors returns every per-block error, in block type order.
func (r Split) Errors() []error {
	var errs []error
	for _, b := range []Blocks{r.Tables, r.Views, r.Indexes, r.Triggers} {
		errs = append(errs, b.Errors...)
	}
	return errs
}

// SplitAll extracts table, view, index and trigger blocks in dump order.
// Only table markers are mandatory; dumps without views, indexes or
// triggers yield empty collections for those types.
func (s *Splitter) SplitAll(dump string) (Split, error) {
	result := Split{
		Tables:   Blocks{Type: model.BlockTable},
		Views:    Blocks{Type: model.BlockView},
		Indexes:  Blocks{Type: model.BlockIndex},
		Triggers: Blocks{Type: model.BlockTrigger},
	}
	state := NewSplitState(dump)

	for !state.Done() {
		bt := state.Next
		if bt == model.BlockTrigger && !strings.Contains(state.Remaining, blockPrefix+" "+bt.Marker()) {
			break
		}

		blocks, next, err := s.Split(state)
		if err != nil {
			if bt == model.BlockTable || !errors.Is(err, ErrMissingMarker) {
				return result, err
			}
		}
		state = next

		switch bt {
		case model.BlockTable:
			result.Tables = blocks
		case model.BlockView:
			result.Views = blocks
		case model.BlockIndex:
			result.Indexes = blocks
		case model.BlockTrigger:
			result.Triggers = blocks
		}
	}

	return result, nil
}
