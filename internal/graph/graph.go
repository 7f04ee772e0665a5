// Package graph derives the predicate dependency graph from rule bodies.
// Edges point head -> body literal; stratification and the performance
// pass both walk this graph instead of re-reading rules.
package graph

import (
	"manglint/internal/model"
)

// EdgeKind tags a dependency edge.
type EdgeKind int

const (
	EdgePositive EdgeKind = iota
	EdgeNegative
)

func (k EdgeKind) String() string {
	if k == EdgeNegative {
		return "negative"
	}
	return "positive"
}

// Edge is one head -> body-literal dependency. Aggregation is an
// informational tag on positive edges from aggregating rules.
type Edge struct {
	Source      string
	Target      string
	Kind        EdgeKind
	Aggregation bool
	Rule        model.Location
}

// Graph is the predicate dependency graph of one program.
type Graph struct {
	Edges []Edge

	nodes    []string
	nodeSet  map[string]bool
	outEdges map[string][]int // node -> indexes into Edges
	inEdges  map[string][]int
}

// Build derives edges from every rule body. Comparisons and builtins
// contribute no edges.
func Build(prog *model.Program) *Graph {
	g := &Graph{
		nodeSet:  make(map[string]bool),
		outEdges: make(map[string][]int),
		inEdges:  make(map[string][]int),
	}

	for _, name := range prog.PredicateNames() {
		info := prog.Info(name)
		if info.IsBuiltin {
			continue
		}
		g.addNode(name)
	}

	for _, rule := range prog.Rules {
		loc := model.Location{File: rule.File, Line: rule.Line}
		for _, lit := range rule.Body {
			if lit.IsComparison() || lit.Pred == nil {
				continue
			}
			if prog.IsBuiltinName(lit.Pred.Name) {
				continue
			}
			kind := EdgePositive
			if lit.Negated {
				kind = EdgeNegative
			}
			g.addEdge(Edge{
				Source:      rule.Head.Name,
				Target:      lit.Pred.Name,
				Kind:        kind,
				Aggregation: rule.HasAggregation && kind == EdgePositive,
				Rule:        loc,
			})
		}
	}
	return g
}

func (g *Graph) addNode(name string) {
	if !g.nodeSet[name] {
		g.nodeSet[name] = true
		g.nodes = append(g.nodes, name)
	}
}

func (g *Graph) addEdge(e Edge) {
	g.addNode(e.Source)
	g.addNode(e.Target)
	idx := len(g.Edges)
	g.Edges = append(g.Edges, e)
	g.outEdges[e.Source] = append(g.outEdges[e.Source], idx)
	g.inEdges[e.Target] = append(g.inEdges[e.Target], idx)
}

// Nodes returns all predicate nodes in first-seen order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Out returns the edges leaving a node.
func (g *Graph) Out(name string) []Edge {
	idxs := g.outEdges[name]
	out := make([]Edge, len(idxs))
	for i, idx := range idxs {
		out[i] = g.Edges[idx]
	}
	return out
}

// In returns the edges entering a node.
func (g *Graph) In(name string) []Edge {
	idxs := g.inEdges[name]
	out := make([]Edge, len(idxs))
	for i, idx := range idxs {
		out[i] = g.Edges[idx]
	}
	return out
}

// HasNode reports whether the predicate appears in the graph.
func (g *Graph) HasNode(name string) bool { return g.nodeSet[name] }

// PositiveClosure returns every predicate reachable from start through
// positive edges, excluding start itself unless it sits on a cycle.
func (g *Graph) PositiveClosure(start string) map[string]bool {
	reached := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		for _, e := range g.Out(n) {
			if e.Kind != EdgePositive {
				continue
			}
			if reached[e.Target] {
				continue
			}
			reached[e.Target] = true
			walk(e.Target)
		}
	}
	walk(start)
	return reached
}
