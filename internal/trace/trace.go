// Package trace answers "why is this fact true": a bounded backtracking
// resolver that derives a goal from facts and rules and keeps the proof
// tree it walked.
package trace

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"manglint/internal/model"
	"manglint/internal/syntax"
)

const (
	defaultMaxDepth = 25
	defaultMaxSteps = 10000
)

// FactType classifies how a node in the proof was satisfied.
type FactType int

const (
	FactEDB FactType = iota
	FactIDB
	FactVirtual
	FactBuiltin
)

func (t FactType) String() string {
	switch t {
	case FactEDB:
		return "EDB"
	case FactIDB:
		return "IDB"
	case FactVirtual:
		return "VIRTUAL"
	case FactBuiltin:
		return "BUILTIN"
	}
	return "UNKNOWN"
}

// DerivationNode is one step of a proof. The tree is rebuilt per query
// and discarded after use.
type DerivationNode struct {
	Pred     syntax.Predicate
	Type     FactType
	Negated  bool
	Note     string
	Children []*DerivationNode
}

// Result is the outcome of one Explain call.
type Result struct {
	Goal syntax.Predicate
	// Goals lists the fully bound instantiations that were derived.
	Goals []syntax.Predicate
	// Trees holds one proof tree per derived instantiation.
	Trees []*DerivationNode
	// RequiredFacts are the ground EDB facts the proofs depend on.
	RequiredFacts []syntax.Predicate
	// LimitReached is set when max_steps or max_depth cut the search
	// short. It is a trace entry, not a failure.
	LimitReached bool
	Steps        int
}

// Options bounds and shapes the search.
type Options struct {
	// MaxDepth caps proof depth; zero means the default of 25.
	MaxDepth int
	// MaxSteps caps total resolution steps; zero means 10000.
	MaxSteps int
	// AllPaths enumerates every derivation instead of stopping at the
	// first success.
	AllPaths bool
	// StratumAware makes negation honor stratum order: the negated
	// predicate must be ground and sit strictly below the enclosing
	// head's stratum. Off by default; the plain mode is
	// negation-as-failure under whatever bindings are current.
	StratumAware bool
	Logger       *zap.Logger
}

// Tracer resolves goals against one program plus optional seed facts.
// It is single-use state per query family; Explain resets the counters.
type Tracer struct {
	prog  *model.Program
	opts  Options
	seeds []syntax.Fact
	log   *zap.Logger

	steps   int
	limit   bool
	renames int
}

// New builds a tracer over a finalized program.
func New(prog *model.Program, opts Options) *Tracer {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = defaultMaxDepth
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = defaultMaxSteps
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracer{prog: prog, opts: opts, log: log}
}

// AddSeedFacts registers extra ground facts visible only to this tracer.
func (t *Tracer) AddSeedFacts(facts ...syntax.Fact) {
	t.seeds = append(t.seeds, facts...)
}

// solution is one successful derivation of a goal.
type solution struct {
	b        Bindings
	node     *DerivationNode
	required []syntax.Predicate
}

// Explain derives the goal and returns every requested instantiation
// with its proof.
func (t *Tracer) Explain(goal syntax.Predicate) *Result {
	t.steps = 0
	t.limit = false

	sols := t.solve(goal, Bindings{}, 0, map[string]bool{})

	res := &Result{Goal: goal, Steps: t.steps, LimitReached: t.limit}
	seenGoal := map[string]bool{}
	seenFact := map[string]bool{}
	for _, sol := range sols {
		bound := sol.b.ResolvePredicate(goal)
		key := bound.String()
		if !seenGoal[key] {
			seenGoal[key] = true
			res.Goals = append(res.Goals, bound)
			res.Trees = append(res.Trees, sol.node)
		}
		for _, f := range sol.required {
			fk := f.String()
			if !seenFact[fk] {
				seenFact[fk] = true
				res.RequiredFacts = append(res.RequiredFacts, f)
			}
		}
	}
	sort.Slice(res.RequiredFacts, func(i, j int) bool {
		return res.RequiredFacts[i].String() < res.RequiredFacts[j].String()
	})
	t.log.Debug("explain finished",
		zap.String("goal", goal.String()),
		zap.Int("results", len(res.Goals)),
		zap.Int("steps", res.Steps),
		zap.Bool("limit", res.LimitReached))
	return res
}

// solve derives one goal. Each call clones the visited set, so sibling
// branches never observe each other's marks; only the ancestor path is
// blocked from re-entry.
func (t *Tracer) solve(goal syntax.Predicate, b Bindings, depth int, visited map[string]bool) []solution {
	t.steps++
	if t.steps > t.opts.MaxSteps || depth > t.opts.MaxDepth {
		t.limit = true
		return nil
	}

	g := b.ResolvePredicate(goal)
	sig := canonicalSig(g)
	if visited[sig] {
		return nil
	}
	vis := make(map[string]bool, len(visited)+1)
	for k := range visited {
		vis[k] = true
	}
	vis[sig] = true

	if t.prog.IsBuiltinName(g.Name) {
		return t.solveBuiltin(g, b)
	}
	if t.prog.IsVirtualName(g.Name) {
		if !g.IsGround() {
			return nil
		}
		return []solution{{
			b:    b,
			node: &DerivationNode{Pred: g, Type: FactVirtual, Note: "assumed true"},
		}}
	}

	var sols []solution

	// Ground facts first, program order, then seeds.
	for _, f := range t.candidateFacts(g) {
		next, ok := MatchPredicate(g, f.Pred, b)
		if !ok {
			continue
		}
		sols = append(sols, solution{
			b:        next,
			node:     &DerivationNode{Pred: next.ResolvePredicate(g), Type: FactEDB},
			required: []syntax.Predicate{f.Pred},
		})
		if !t.opts.AllPaths {
			return sols
		}
	}

	// Then rules whose head unifies, in declaration order. Rule
	// variables are renamed apart so they cannot collide with the
	// caller's.
	for _, rule := range t.candidateRules(g) {
		fresh := t.freshRule(rule)
		headBound, ok := MatchPredicate(g, fresh.Head, b)
		if !ok {
			continue
		}
		for _, bs := range t.solveBody(fresh, fresh.Body, headBound, depth+1, vis) {
			sols = append(sols, solution{
				b: bs.b,
				node: &DerivationNode{
					Pred:     bs.b.ResolvePredicate(g),
					Type:     FactIDB,
					Children: bs.children,
				},
				required: bs.required,
			})
			if !t.opts.AllPaths {
				return sols
			}
		}
	}
	return sols
}

// bodySolution is one way to satisfy a rule body suffix.
type bodySolution struct {
	b        Bindings
	children []*DerivationNode
	required []syntax.Predicate
}

// solveBody works left to right and conjunctively through the remaining
// literals.
func (t *Tracer) solveBody(rule syntax.Rule, body []syntax.Literal, b Bindings, depth int, visited map[string]bool) []bodySolution {
	if len(body) == 0 {
		return []bodySolution{{b: b}}
	}
	lit := body[0]
	rest := body[1:]

	if lit.IsComparison() {
		if !evalComparison(*lit.Cmp, b) {
			return nil
		}
		node := &DerivationNode{Type: FactBuiltin, Note: lit.Raw}
		return prepend(node, nil, t.solveBody(rule, rest, b, depth, visited))
	}
	if lit.Pred == nil {
		return t.solveBody(rule, rest, b, depth, visited)
	}

	if lit.Negated {
		if !t.negationHolds(rule, lit, b, depth, visited) {
			return nil
		}
		node := &DerivationNode{
			Pred:    b.ResolvePredicate(*lit.Pred),
			Type:    t.classify(lit.Pred.Name),
			Negated: true,
			Note:    "no derivation found",
		}
		return prepend(node, nil, t.solveBody(rule, rest, b, depth, visited))
	}

	var out []bodySolution
	for _, sol := range t.solve(*lit.Pred, b, depth, visited) {
		for _, restSol := range t.solveBody(rule, rest, sol.b, depth, visited) {
			out = append(out, bodySolution{
				b:        restSol.b,
				children: append([]*DerivationNode{sol.node}, restSol.children...),
				required: append(append([]syntax.Predicate{}, sol.required...), restSol.required...),
			})
			if !t.opts.AllPaths {
				return out
			}
		}
	}
	return out
}

// negationHolds implements negation-as-failure: the literal succeeds iff
// the positive goal yields nothing under current bindings. In
// stratum-aware mode the goal must additionally be ground and live in a
// strictly lower stratum than the rule head.
func (t *Tracer) negationHolds(rule syntax.Rule, lit syntax.Literal, b Bindings, depth int, visited map[string]bool) bool {
	if t.opts.StratumAware {
		g := b.ResolvePredicate(*lit.Pred)
		if !g.IsGround() {
			return false
		}
		headInfo := t.prog.Info(rule.Head.Name)
		negInfo := t.prog.Info(g.Name)
		if headInfo != nil && negInfo != nil &&
			headInfo.Stratum >= 0 && negInfo.Stratum >= 0 &&
			negInfo.Stratum >= headInfo.Stratum {
			return false
		}
	}
	saved := t.opts.AllPaths
	t.opts.AllPaths = false
	sols := t.solve(*lit.Pred, b, depth, visited)
	t.opts.AllPaths = saved
	return len(sols) == 0
}

func (t *Tracer) classify(name string) FactType {
	switch {
	case t.prog.IsBuiltinName(name):
		return FactBuiltin
	case t.prog.IsVirtualName(name):
		return FactVirtual
	default:
		info := t.prog.Info(name)
		if info != nil && info.IsIDB {
			return FactIDB
		}
		return FactEDB
	}
}

// candidateFacts returns facts with the goal's name and arity, program
// facts first and tracer seeds after.
func (t *Tracer) candidateFacts(g syntax.Predicate) []syntax.Fact {
	out := append([]syntax.Fact{}, t.prog.FactsFor(g.Name, g.Arity())...)
	for _, s := range t.seeds {
		if s.Pred.Name == g.Name && s.Pred.Arity() == g.Arity() {
			out = append(out, s)
		}
	}
	return out
}

func (t *Tracer) candidateRules(g syntax.Predicate) []syntax.Rule {
	return t.prog.RulesFor(g.Name, g.Arity())
}

// freshRule renames every variable in the rule so it cannot collide
// with variables in the goal or an outer rule instance.
func (t *Tracer) freshRule(r syntax.Rule) syntax.Rule {
	t.renames++
	suffix := fmt.Sprintf("#%d", t.renames)

	var renameTerm func(tm syntax.Term) syntax.Term
	renameTerm = func(tm syntax.Term) syntax.Term {
		switch tm.Kind {
		case syntax.TermVariable:
			tm.Name += suffix
		case syntax.TermList:
			elems := make([]syntax.Term, len(tm.Elems))
			for i, e := range tm.Elems {
				elems[i] = renameTerm(e)
			}
			tm.Elems = elems
		}
		return tm
	}
	renamePred := func(p syntax.Predicate) syntax.Predicate {
		args := make([]syntax.Term, len(p.Args))
		for i, a := range p.Args {
			args[i] = renameTerm(a)
		}
		return syntax.Predicate{Name: p.Name, Args: args}
	}

	out := r
	out.Head = renamePred(r.Head)
	out.Body = make([]syntax.Literal, len(r.Body))
	for i, lit := range r.Body {
		nl := lit
		if lit.Pred != nil {
			p := renamePred(*lit.Pred)
			nl.Pred = &p
		}
		if lit.Cmp != nil {
			c := *lit.Cmp
			c.Left = renameTerm(c.Left)
			c.Right = renameTerm(c.Right)
			nl.Cmp = &c
		}
		out.Body[i] = nl
	}
	return out
}

// solveBuiltin evaluates the few numeric builtins the tracer knows;
// anything else is assumed true so proofs over instrumented predicates
// still close.
func (t *Tracer) solveBuiltin(g syntax.Predicate, b Bindings) []solution {
	ops := map[string]string{
		"fn:less":       "<",
		"fn:greater":    ">",
		"fn:less_eq":    "<=",
		"fn:greater_eq": ">=",
		"fn:eq":         "==",
		"fn:not_eq":     "!=",
	}
	if op, ok := ops[g.Name]; ok && len(g.Args) == 2 {
		cmp := syntax.Comparison{Op: op, Left: g.Args[0], Right: g.Args[1]}
		if !evalComparison(cmp, b) {
			return nil
		}
		return []solution{{b: b, node: &DerivationNode{Pred: g, Type: FactBuiltin}}}
	}
	return []solution{{b: b, node: &DerivationNode{Pred: g, Type: FactBuiltin, Note: "assumed true"}}}
}

// evalComparison evaluates numerically. Unbound or non-numeric operands
// make the comparison fail; it never errors.
func evalComparison(c syntax.Comparison, b Bindings) bool {
	left := b.Resolve(c.Left)
	right := b.Resolve(c.Right)
	lv, lok := left.NumericValue()
	rv, rok := right.NumericValue()
	if !lok || !rok {
		return false
	}
	switch c.Op {
	case "<":
		return lv < rv
	case ">":
		return lv > rv
	case "<=":
		return lv <= rv
	case ">=":
		return lv >= rv
	case "=", "==":
		return lv == rv
	case "!=":
		return lv != rv
	}
	return false
}

func prepend(node *DerivationNode, required []syntax.Predicate, sols []bodySolution) []bodySolution {
	out := make([]bodySolution, 0, len(sols))
	for _, s := range sols {
		out = append(out, bodySolution{
			b:        s.b,
			children: append([]*DerivationNode{node}, s.children...),
			required: append(append([]syntax.Predicate{}, required...), s.required...),
		})
	}
	return out
}

// canonicalSig renders a goal with positionally numbered variables, so
// the same goal shape is recognized across rule-variable renames.
func canonicalSig(p syntax.Predicate) string {
	names := map[string]string{}
	var render func(t syntax.Term) string
	render = func(t syntax.Term) string {
		switch t.Kind {
		case syntax.TermVariable:
			if _, ok := names[t.Name]; !ok {
				names[t.Name] = fmt.Sprintf("_V%d", len(names))
			}
			return names[t.Name]
		case syntax.TermList:
			parts := make([]string, len(t.Elems))
			for i, e := range t.Elems {
				parts[i] = render(e)
			}
			return "[" + strings.Join(parts, ",") + "]"
		default:
			return t.String()
		}
	}
	parts := make([]string, len(p.Args))
	for i, a := range p.Args {
		parts[i] = render(a)
	}
	return p.Name + "(" + strings.Join(parts, ",") + ")"
}
