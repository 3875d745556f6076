package server

import (
	"errors"

	"github.com/abramin/sqlbridge/internal/model"
	"github.com/abramin/sqlbridge/internal/store"
)

// GraphFilter selects which neighbours of a routine are returned.
type GraphFilter struct {
	IncludeCallers  bool `json:"includeCallers"`
	IncludeExternal bool `json:"includeExternal"`
}

// DefaultGraphFilter returns every direct neighbour.
func DefaultGraphFilter() GraphFilter {
	return GraphFilter{
		IncludeCallers:  true,
		IncludeExternal: true,
	}
}

// Node roles relative to the requested routine.
const (
	RoleRoot   = "root"
	RoleCallee = "callee"
	RoleCaller = "caller"
)

// GraphNode represents a routine in the graph response.
type GraphNode struct {
	ID      store.RoutineID   `json:"id"`
	Package string            `json:"package"`
	Name    string            `json:"name"`
	Kind    model.RoutineKind `json:"kind"`
	Role    string            `json:"role"`
}

// GraphEdge represents a resolved call in the graph response.
type GraphEdge struct {
	SourceID store.RoutineID `json:"source_id"`
	TargetID store.RoutineID `json:"target_id"`
	CallKind store.CallKind  `json:"call_kind"`
}

// GraphResponse is the response format for graph endpoints.
type GraphResponse struct {
	Nodes    []GraphNode     `json:"nodes"`
	Edges    []GraphEdge     `json:"edges"`
	RootID   store.RoutineID `json:"root_id"`
	Tables   model.TableRefs `json:"tables"`
	Filtered int             `json:"filtered_count"`
}

// GraphBuilder builds the one-level call neighbourhood of a routine.
// Neighbours are not expanded further.
type GraphBuilder struct {
	store    *store.Store
	filter   GraphFilter
	nodes    map[store.RoutineID]*GraphNode
	order    []store.RoutineID
	edges    []GraphEdge
	filtered int
}

// NewGraphBuilder creates a new graph builder.
func NewGraphBuilder(s *store.Store, filter GraphFilter) *GraphBuilder {
	return &GraphBuilder{
		store:  s,
		filter: filter,
		nodes:  make(map[store.RoutineID]*GraphNode),
		edges:  []GraphEdge{},
	}
}

// Build returns the routine pkg.name with its direct callees and callers.
func (gb *GraphBuilder) Build(pkg, name string) (*GraphResponse, error) {
	root, err := gb.store.GetRoutine(pkg, name)
	if err != nil {
		return nil, err
	}
	gb.addNode(root.Routine, RoleRoot)

	for _, c := range root.InternalCalls {
		if err := gb.addCallee(root, model.Ident{Package: root.Package, Name: c}, store.CallKindInternal); err != nil {
			return nil, err
		}
	}
	for _, c := range root.ExternalCalls {
		if !gb.filter.IncludeExternal {
			gb.filtered++
			continue
		}
		if err := gb.addCallee(root, model.ParseIdent(c, ""), store.CallKindExternal); err != nil {
			return nil, err
		}
	}

	callers, err := gb.store.GetCallers(root.Package, root.Name)
	if err != nil {
		return nil, err
	}
	for _, c := range callers {
		if !gb.filter.IncludeCallers {
			gb.filtered++
			continue
		}
		kind := store.CallKindInternal
		if c.Package != root.Package {
			kind = store.CallKindExternal
		}
		gb.addNode(c, RoleCaller)
		gb.edges = append(gb.edges, GraphEdge{SourceID: c.ID, TargetID: root.ID, CallKind: kind})
	}

	return gb.buildResponse(root), nil
}

// addCallee adds the routine identified by id and the edge reaching it.
// Targets missing from the store are counted as filtered.
func (gb *GraphBuilder) addCallee(root *store.RoutineDetail, id model.Ident, kind store.CallKind) error {
	callee, err := gb.store.GetRoutine(id.Package, id.Name)
	if errors.Is(err, store.ErrNotFound) {
		gb.filtered++
		return nil
	}
	if err != nil {
		return err
	}

	gb.addNode(callee.Routine, RoleCallee)
	gb.edges = append(gb.edges, GraphEdge{SourceID: root.ID, TargetID: callee.ID, CallKind: kind})
	return nil
}

// addNode adds a node unless already present. The first role wins.
func (gb *GraphBuilder) addNode(r store.Routine, role string) {
	if _, exists := gb.nodes[r.ID]; exists {
		return
	}
	gb.nodes[r.ID] = &GraphNode{ID: r.ID, Package: r.Package, Name: r.Name, Kind: r.Kind, Role: role}
	gb.order = append(gb.order, r.ID)
}

// buildResponse constructs the final response.
func (gb *GraphBuilder) buildResponse(root *store.RoutineDetail) *GraphResponse {
	nodes := make([]GraphNode, 0, len(gb.nodes))
	for _, id := range gb.order {
		nodes = append(nodes, *gb.nodes[id])
	}

	return &GraphResponse{
		Nodes:    nodes,
		Edges:    gb.edges,
		RootID:   root.ID,
		Tables:   root.Tables,
		Filtered: gb.filtered,
	}
}
