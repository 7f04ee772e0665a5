package trace

import (
	"manglint/internal/syntax"
)

// Bindings maps variable names to terms. A variable may be bound to
// another variable; Resolve follows the chain.
type Bindings map[string]syntax.Term

// Clone copies the binding set so a branch can extend it without
// touching its siblings.
func (b Bindings) Clone() Bindings {
	out := make(Bindings, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Resolve dereferences a term under the bindings. Variable chains are
// followed to their end; list elements resolve recursively. A cycle in
// the chain stops at the last unseen variable.
func (b Bindings) Resolve(t syntax.Term) syntax.Term {
	seen := map[string]bool{}
	for t.Kind == syntax.TermVariable {
		if seen[t.Name] {
			return t
		}
		seen[t.Name] = true
		next, ok := b[t.Name]
		if !ok {
			return t
		}
		t = next
	}
	if t.Kind == syntax.TermList {
		elems := make([]syntax.Term, len(t.Elems))
		for i, e := range t.Elems {
			elems[i] = b.Resolve(e)
		}
		t.Elems = elems
	}
	return t
}

// ResolvePredicate applies the bindings to every argument.
func (b Bindings) ResolvePredicate(p syntax.Predicate) syntax.Predicate {
	args := make([]syntax.Term, len(p.Args))
	for i, a := range p.Args {
		args[i] = b.Resolve(a)
	}
	return syntax.Predicate{Name: p.Name, Args: args}
}

// Match unifies two terms under the given bindings and returns the
// extended set. Wildcards match anything and bind nothing; an unbound
// variable binds to the other side, which may itself be a variable.
// The input bindings are never mutated.
func Match(a, b syntax.Term, bn Bindings) (Bindings, bool) {
	a = bn.Resolve(a)
	b = bn.Resolve(b)

	if a.Kind == syntax.TermWildcard || b.Kind == syntax.TermWildcard {
		return bn, true
	}
	if a.Kind == syntax.TermVariable {
		if b.Kind == syntax.TermVariable && a.Name == b.Name {
			return bn, true
		}
		out := bn.Clone()
		out[a.Name] = b
		return out, true
	}
	if b.Kind == syntax.TermVariable {
		out := bn.Clone()
		out[b.Name] = a
		return out, true
	}
	if a.Kind == syntax.TermList && b.Kind == syntax.TermList {
		if len(a.Elems) != len(b.Elems) {
			return bn, false
		}
		cur := bn
		for i := range a.Elems {
			next, ok := Match(a.Elems[i], b.Elems[i], cur)
			if !ok {
				return bn, false
			}
			cur = next
		}
		return cur, true
	}
	if a.Equal(b) {
		return bn, true
	}
	return bn, false
}

// MatchPredicate unifies name, arity and every argument pair.
func MatchPredicate(a, b syntax.Predicate, bn Bindings) (Bindings, bool) {
	if a.Name != b.Name || len(a.Args) != len(b.Args) {
		return bn, false
	}
	cur := bn
	for i := range a.Args {
		next, ok := Match(a.Args[i], b.Args[i], cur)
		if !ok {
			return bn, false
		}
		cur = next
	}
	return cur, true
}
