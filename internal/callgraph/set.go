package callgraph

import "strings"

// orderedSet keeps distinct values in first-seen order, comparing them
// case-insensitively.
type orderedSet struct {
	seen  map[string]bool
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: map[string]bool{}, items: []string{}}
}

func (s *orderedSet) add(v string) {
	k := strings.ToLower(v)
	if s.seen[k] {
		return
	}
	s.seen[k] = true
	s.items = append(s.items, v)
}

func (s *orderedSet) values() []string {
	return s.items
}
