package graph

import (
	"fmt"
	"sort"
	"strings"
)

// WriteDOT renders the predicate graph in Graphviz syntax. When strata is
// non-nil, predicates are grouped into one cluster per stratum so the
// layering is visible at a glance. Negative edges are dashed and red;
// aggregation edges carry an "agg" label.
func (g *Graph) WriteDOT(strata map[string]int) string {
	var sb strings.Builder
	sb.WriteString("digraph predicates {\n")
	sb.WriteString("  rankdir=BT;\n")
	sb.WriteString("  node [shape=box, fontname=\"monospace\"];\n")

	if len(strata) > 0 {
		byStratum := make(map[int][]string)
		maxStratum := 0
		for _, n := range g.nodes {
			s, ok := strata[n]
			if !ok {
				s = 0
			}
			byStratum[s] = append(byStratum[s], n)
			if s > maxStratum {
				maxStratum = s
			}
		}
		for s := 0; s <= maxStratum; s++ {
			nodes := byStratum[s]
			if len(nodes) == 0 {
				continue
			}
			sort.Strings(nodes)
			fmt.Fprintf(&sb, "  subgraph cluster_stratum_%d {\n", s)
			fmt.Fprintf(&sb, "    label=\"stratum %d\";\n", s)
			for _, n := range nodes {
				fmt.Fprintf(&sb, "    %q;\n", n)
			}
			sb.WriteString("  }\n")
		}
	} else {
		for _, n := range g.nodes {
			fmt.Fprintf(&sb, "  %q;\n", n)
		}
	}

	for _, e := range g.Edges {
		attrs := []string{}
		if e.Kind == EdgeNegative {
			attrs = append(attrs, "style=dashed", "color=red", "label=\"!\"")
		}
		if e.Aggregation {
			attrs = append(attrs, "label=\"agg\"")
		}
		if len(attrs) > 0 {
			fmt.Fprintf(&sb, "  %q -> %q [%s];\n", e.Source, e.Target, strings.Join(attrs, ", "))
		} else {
			fmt.Fprintf(&sb, "  %q -> %q;\n", e.Source, e.Target)
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}
