// Package perf estimates evaluation cost risks in rule bodies: Cartesian
// products, late filtering and negation, unbounded or deep recursion, and
// suboptimal join ordering when size estimates are available.
package perf

import (
	"fmt"
	"strings"

	"manglint/internal/graph"
	"manglint/internal/model"
	"manglint/internal/syntax"
)

const (
	defaultSize      = 1000
	productThreshold = 100000
	lateLiteralCount = 3
	depthCap         = 10
	deepRecursion    = 3
)

// Options tunes the pass. Sizes maps predicate names to estimated row
// counts; absent entries default to 1000.
type Options struct {
	Sizes map[string]int
}

func (o Options) size(name string) int {
	if n, ok := o.Sizes[name]; ok && n > 0 {
		return n
	}
	return defaultSize
}

// Analyze walks every rule body left to right and reports cost risks.
func Analyze(prog *model.Program, g *graph.Graph, opts Options) []model.Issue {
	var issues []model.Issue
	for _, rule := range prog.Rules {
		issues = append(issues, analyzeBody(prog, rule, opts)...)
	}
	issues = append(issues, analyzeRecursion(prog, g)...)
	return issues
}

// qualifying literals drive every positional heuristic: predicate calls
// that are not comparisons, not builtins and not negated.
func qualifies(prog *model.Program, lit syntax.Literal) bool {
	return !lit.IsComparison() && lit.Pred != nil && !lit.Negated && !prog.IsBuiltinName(lit.Pred.Name)
}

func analyzeBody(prog *model.Program, rule syntax.Rule, opts Options) []model.Issue {
	var issues []model.Issue
	loc := model.Location{File: rule.File, Line: rule.Line}

	bound := make(map[string]bool)
	accumSize := 0
	qualified := 0
	sawComparison := false
	flaggedLateNegation := false
	var prevQualName string

	for i, lit := range rule.Body {
		if lit.IsComparison() {
			if !sawComparison {
				sawComparison = true
				if qualified >= lateLiteralCount {
					issues = append(issues, model.Issue{
						Category:  model.CategoryPerformance,
						Severity:  model.SeverityMedium,
						Location:  loc,
						Predicate: rule.Head.Name,
						Message: fmt.Sprintf("late filtering in rule for %s: %d literals joined before the first comparison",
							rule.Head.Name, qualified),
						Suggestion: "move the comparison earlier so the join is filtered before it grows",
					})
				}
			}
			continue
		}
		if lit.Pred == nil {
			continue
		}

		if lit.Negated {
			if qualified >= lateLiteralCount && !flaggedLateNegation {
				flaggedLateNegation = true
				issues = append(issues, model.Issue{
					Category:  model.CategoryPerformance,
					Severity:  model.SeverityMedium,
					Location:  loc,
					Predicate: rule.Head.Name,
					Message: fmt.Sprintf("late negation in rule for %s: !%s is checked after %d positive literals",
						rule.Head.Name, lit.Pred.Name, qualified),
					Suggestion: "negations filter rows cheaply; move them before the expensive joins they can prune",
				})
			}
			continue
		}

		if prog.IsBuiltinName(lit.Pred.Name) {
			continue
		}

		vars := lit.Variables()
		introduces := false
		shares := false
		for _, v := range vars {
			if bound[v] {
				shares = true
			} else {
				introduces = true
			}
		}

		litSize := opts.size(lit.Pred.Name)

		if introduces && !shares && len(bound) > 0 {
			severity := model.SeverityMedium
			if accumSize*litSize > productThreshold {
				severity = model.SeverityHigh
			}
			issues = append(issues, model.Issue{
				Category:  model.CategoryPerformance,
				Severity:  severity,
				Location:  loc,
				Predicate: rule.Head.Name,
				Message: fmt.Sprintf("cartesian product in rule for %s: %s at position %d shares no variable with the preceding join (~%d x %d rows)",
					rule.Head.Name, lit.Pred.Name, i+1, accumSize, litSize),
				Suggestion: "add a shared variable or reorder so every literal joins on something already bound",
			})
		}

		// Suboptimal ordering is advisory and only fires with real
		// estimates for both sides.
		if prevQualName != "" {
			prevSize, okPrev := opts.Sizes[prevQualName]
			curSize, okCur := opts.Sizes[lit.Pred.Name]
			if okPrev && okCur && prevSize > 0 && curSize*10 < prevSize {
				issues = append(issues, model.Issue{
					Category:  model.CategoryPerformance,
					Severity:  model.SeverityLow,
					Location:  loc,
					Predicate: rule.Head.Name,
					Message: fmt.Sprintf("suboptimal ordering in rule for %s: %s (~%d rows) follows %s (~%d rows)",
						rule.Head.Name, lit.Pred.Name, curSize, prevQualName, prevSize),
					Suggestion: fmt.Sprintf("evaluate %s first; smaller relations on the left keep intermediate results small", lit.Pred.Name),
				})
			}
		}

		for _, v := range vars {
			bound[v] = true
		}
		if accumSize == 0 {
			accumSize = litSize
		} else if introduces && !shares {
			accumSize = capMul(accumSize, litSize)
		} else if litSize > accumSize {
			accumSize = litSize
		}
		qualified++
		prevQualName = lit.Pred.Name
	}
	return issues
}

func capMul(a, b int) int {
	const maxAccum = 1 << 40
	if a > 0 && b > maxAccum/a {
		return maxAccum
	}
	return a * b
}

// analyzeRecursion classifies every recursive predicate: no base case at
// all is HIGH; a deep recursion without an obvious bound variable is
// MEDIUM.
func analyzeRecursion(prog *model.Program, g *graph.Graph) []model.Issue {
	var issues []model.Issue
	reported := make(map[string]bool)

	for _, rule := range prog.Rules {
		head := rule.Head.Name
		if reported[head] {
			continue
		}
		closure := g.PositiveClosure(head)
		if !closure[head] {
			continue
		}
		reported[head] = true

		loc := recursiveRuleLocation(prog, g, head)
		if !hasBaseCase(prog, g, head) {
			issues = append(issues, model.Issue{
				Category:  model.CategoryPerformance,
				Severity:  model.SeverityHigh,
				Location:  loc,
				Predicate: head,
				Message:   fmt.Sprintf("unbounded recursion: %s depends on itself and no rule for it has a non-recursive body", head),
				Suggestion: fmt.Sprintf("add a base-case rule or fact for %s so the fixpoint has somewhere to start", head),
			})
			continue
		}

		depth := estimateRecursionDepth(g, head)
		if depth > deepRecursion && !hasBoundVariable(prog, head) {
			issues = append(issues, model.Issue{
				Category:  model.CategoryPerformance,
				Severity:  model.SeverityMedium,
				Location:  loc,
				Predicate: head,
				Message:   fmt.Sprintf("deep recursion: %s recurses through an estimated %d predicates with no depth bound", head, depth),
				Suggestion: "thread a depth or count argument through the recursion and cut it off with a comparison",
			})
		}
	}
	return issues
}

// hasBaseCase reports whether some rule for the predicate has a body free
// of predicates that reach back into the recursion, or ground facts exist.
func hasBaseCase(prog *model.Program, g *graph.Graph, head string) bool {
	info := prog.Info(head)
	if info == nil {
		return false
	}
	if len(prog.FactsFor(head, info.Arity)) > 0 {
		return true
	}
	for _, rule := range prog.RulesFor(head, info.Arity) {
		recursive := false
		for _, lit := range rule.Body {
			if lit.IsComparison() || lit.Pred == nil || lit.Negated {
				continue
			}
			if lit.Pred.Name == head || g.PositiveClosure(lit.Pred.Name)[head] {
				recursive = true
				break
			}
		}
		if !recursive {
			return true
		}
	}
	return false
}

// estimateRecursionDepth finds the longest positive-edge path from head
// back to itself, capped at depthCap.
func estimateRecursionDepth(g *graph.Graph, head string) int {
	best := 0
	var walk func(node string, depth int, onPath map[string]bool)
	walk = func(node string, depth int, onPath map[string]bool) {
		if depth >= depthCap {
			if depth > best {
				best = depth
			}
			return
		}
		for _, e := range g.Out(node) {
			if e.Kind != graph.EdgePositive {
				continue
			}
			if e.Target == head {
				if depth+1 > best {
					best = depth + 1
				}
				continue
			}
			if onPath[e.Target] {
				continue
			}
			onPath[e.Target] = true
			walk(e.Target, depth+1, onPath)
			delete(onPath, e.Target)
		}
	}
	walk(head, 0, map[string]bool{head: true})
	return best
}

// hasBoundVariable looks for a depth/count/limit-style variable in any
// recursive rule for the predicate.
func hasBoundVariable(prog *model.Program, head string) bool {
	info := prog.Info(head)
	if info == nil {
		return false
	}
	for _, rule := range prog.RulesFor(head, info.Arity) {
		vars := rule.Head.Variables()
		for _, lit := range rule.Body {
			vars = append(vars, lit.Variables()...)
		}
		for _, v := range vars {
			lower := strings.ToLower(v)
			if strings.Contains(lower, "depth") || strings.Contains(lower, "count") || strings.Contains(lower, "limit") {
				return true
			}
		}
	}
	return false
}

// recursiveRuleLocation cites the first rule that actually recurses.
func recursiveRuleLocation(prog *model.Program, g *graph.Graph, head string) model.Location {
	info := prog.Info(head)
	if info == nil {
		return model.Location{}
	}
	for _, rule := range prog.RulesFor(head, info.Arity) {
		for _, lit := range rule.Body {
			if lit.IsComparison() || lit.Pred == nil {
				continue
			}
			if lit.Pred.Name == head || g.PositiveClosure(lit.Pred.Name)[head] {
				return model.Location{File: rule.File, Line: rule.Line}
			}
		}
	}
	rules := prog.RulesFor(head, info.Arity)
	if len(rules) > 0 {
		return model.Location{File: rules[0].File, Line: rules[0].Line}
	}
	return model.Location{}
}
