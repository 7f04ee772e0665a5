// Package stratify checks that negation can be layered: it runs Tarjan's
// SCC detection over the dependency graph and either reports negation
// cycles or assigns a stratum to every predicate by fixpoint.
package stratify

import (
	"fmt"
	"strings"

	"manglint/internal/graph"
	"manglint/internal/model"
)

// Result is the outcome of one stratification run. Violations and Strata
// are mutually exclusive: strata are only computed when no SCC contains
// an internal negative edge.
type Result struct {
	Violations []model.Issue
	Strata     map[string]int
	MaxStratum int
	SCCs       [][]string
}

// Stratified reports whether the program admits a stratification.
func (r *Result) Stratified() bool { return len(r.Violations) == 0 }

// Analyze detects negation cycles and, when there are none, computes the
// stratum of every predicate.
func Analyze(prog *model.Program, g *graph.Graph) *Result {
	res := &Result{Strata: make(map[string]int)}

	sccs := tarjan(g)
	res.SCCs = sccs

	component := make(map[string]int)
	for i, scc := range sccs {
		for _, n := range scc {
			component[n] = i
		}
	}

	for i, scc := range sccs {
		inScc := make(map[string]bool, len(scc))
		for _, n := range scc {
			inScc[n] = true
		}
		for _, n := range scc {
			for _, e := range g.Out(n) {
				if e.Kind != graph.EdgeNegative || !inScc[e.Target] {
					continue
				}
				if component[e.Target] != i {
					continue
				}
				res.Violations = append(res.Violations, buildViolation(prog, g, scc, e))
			}
		}
	}

	if len(res.Violations) > 0 {
		return res
	}

	res.Strata, res.MaxStratum = fixpointStrata(prog, g)
	prog.ApplyStrata(res.Strata)
	return res
}

// buildViolation reconstructs a representative cycle for the negative
// edge and picks a suggestion matching the structural shape.
func buildViolation(prog *model.Program, g *graph.Graph, scc []string, neg graph.Edge) model.Issue {
	cycle := reconstructCycle(g, scc, neg)
	shape, suggestion := classifyShape(prog, scc, neg)

	return model.Issue{
		Category:  model.CategoryStratification,
		Severity:  model.SeverityError,
		Location:  neg.Rule,
		Predicate: neg.Source,
		Message: fmt.Sprintf("negation cycle (%s): %s depends negatively on %s inside the cycle %s",
			shape, neg.Source, neg.Target, strings.Join(cycle, " -> ")),
		Suggestion: suggestion,
	}
}

// reconstructCycle walks forward from the negative edge's target through
// SCC-internal edges back to the source, bounded by the SCC size.
func reconstructCycle(g *graph.Graph, scc []string, neg graph.Edge) []string {
	inScc := make(map[string]bool, len(scc))
	for _, n := range scc {
		inScc[n] = true
	}

	if neg.Source == neg.Target {
		return []string{neg.Source, neg.Source}
	}

	// BFS from target back to source, SCC-internal edges only.
	type step struct {
		node string
		path []string
	}
	visited := map[string]bool{neg.Target: true}
	queue := []step{{node: neg.Target, path: []string{neg.Source, neg.Target}}}
	bound := 2 * len(scc)

	for len(queue) > 0 && bound > 0 {
		bound--
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.Out(cur.node) {
			if !inScc[e.Target] {
				continue
			}
			if e.Target == neg.Source {
				return append(cur.path, neg.Source)
			}
			if visited[e.Target] {
				continue
			}
			visited[e.Target] = true
			next := make([]string, len(cur.path), len(cur.path)+1)
			copy(next, cur.path)
			queue = append(queue, step{node: e.Target, path: append(next, e.Target)})
		}
	}
	return []string{neg.Source, neg.Target, neg.Source}
}

// classifyShape names the structural pattern of the violation so the
// suggestion can be specific rather than generic.
func classifyShape(prog *model.Program, scc []string, neg graph.Edge) (string, string) {
	if neg.Source == neg.Target {
		// A self-negation whose rule also joins other relations is the
		// game-theoretic winning-position pattern; a bare one is just a
		// contradiction.
		if hasPositiveCompanion(prog, neg) {
			return "game pattern",
				"this is the winning/losing-position shape (p(X) :- move(X, Y), !p(Y)); it needs well-founded semantics that stratified evaluation cannot express - bound the recursion with an explicit depth argument or materialize positions level by level"
		}
		return "direct self-negation",
			fmt.Sprintf("%s negates itself; derive a positive base predicate first and negate that from a higher stratum", neg.Source)
	}
	if len(scc) == 2 {
		return "mutual negation",
			fmt.Sprintf("%s and %s negate each other; break the tie by giving one of them a non-negated base definition or by folding both into a single predicate with a tag argument", neg.Source, neg.Target)
	}
	return fmt.Sprintf("complex %d-node cycle", len(scc)),
		"remove or invert one negation along the cycle so every negative edge points strictly downward"
}

// hasPositiveCompanion reports whether the rule that produced the
// negative edge also carries a positive, non-builtin body literal.
func hasPositiveCompanion(prog *model.Program, neg graph.Edge) bool {
	for _, rule := range prog.Rules {
		if rule.File != neg.Rule.File || rule.Line != neg.Rule.Line {
			continue
		}
		for _, lit := range rule.Body {
			if lit.Negated || lit.IsComparison() || lit.Pred == nil {
				continue
			}
			if prog.IsBuiltinName(lit.Pred.Name) {
				continue
			}
			return true
		}
	}
	return false
}

// fixpointStrata assigns strata by repeated relaxation: positive edges
// demand stratum(u) >= stratum(v), negative edges stratum(u) > stratum(v).
// The iteration cap |predicates|+10 guarantees termination even on
// adversarial input.
func fixpointStrata(prog *model.Program, g *graph.Graph) (map[string]int, int) {
	strata := make(map[string]int)
	for _, n := range g.Nodes() {
		strata[n] = 0
	}

	maxIter := len(prog.Predicates) + 10
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for _, e := range g.Edges {
			want := strata[e.Target]
			if e.Kind == graph.EdgeNegative {
				want++
			}
			if strata[e.Source] < want {
				strata[e.Source] = want
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	maxStratum := 0
	for _, s := range strata {
		if s > maxStratum {
			maxStratum = s
		}
	}
	return strata, maxStratum
}

// tarjan computes strongly connected components in O(V+E).
func tarjan(g *graph.Graph) [][]string {
	index := 0
	indexes := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var sccs [][]string

	var strongconnect func(string)
	strongconnect = func(v string) {
		indexes[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, e := range g.Out(v) {
			w := e.Target
			if _, seen := indexes[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indexes[w] < lowlink[v] {
					lowlink[v] = indexes[w]
				}
			}
		}

		if lowlink[v] == indexes[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, v := range g.Nodes() {
		if _, seen := indexes[v]; !seen {
			strongconnect(v)
		}
	}
	return sccs
}
