// Package syntax holds the Mangle AST fragments shared by every analysis
// pass: terms, predicates, rules, facts and the statement parser that
// produces them. All analyzers consume these types instead of re-parsing
// source text on their own.
package syntax

import (
	"fmt"
	"strconv"
	"strings"
)

// TermKind discriminates the Term union.
type TermKind int

const (
	TermVariable TermKind = iota // X, Result
	TermAtom                     // /alice, bare lowercase identifiers
	TermString                   // "quoted"
	TermNumber                   // 42 or 3.14
	TermWildcard                 // _
	TermList                     // [/a, /b]
)

// Term is one argument of a predicate. Exactly one representation is
// meaningful for a given Kind.
type Term struct {
	Kind    TermKind
	Name    string // variable name, atom symbol, or string value
	Int     int64
	Float   float64
	IsFloat bool
	Elems   []Term // list elements
}

// Variable constructs a variable term.
func Variable(name string) Term { return Term{Kind: TermVariable, Name: name} }

// Atom constructs a name-constant term. The leading slash is preserved
// when present and not synthesized when absent (bare atoms stay bare).
func Atom(symbol string) Term { return Term{Kind: TermAtom, Name: symbol} }

// String constructs a string term from an unquoted value.
func String(value string) Term { return Term{Kind: TermString, Name: value} }

// Number constructs an integer term.
func Number(v int64) Term { return Term{Kind: TermNumber, Int: v} }

// Float constructs a floating-point term.
func Float(v float64) Term { return Term{Kind: TermNumber, Float: v, IsFloat: true} }

// Wildcard is the anonymous term that matches anything and binds nothing.
func Wildcard() Term { return Term{Kind: TermWildcard} }

// List constructs a list term.
func List(elems ...Term) Term { return Term{Kind: TermList, Elems: elems} }

// IsGround reports whether the term contains no variables or wildcards.
func (t Term) IsGround() bool {
	switch t.Kind {
	case TermVariable, TermWildcard:
		return false
	case TermList:
		for _, e := range t.Elems {
			if !e.IsGround() {
				return false
			}
		}
	}
	return true
}

// NumericValue returns the term's numeric value and whether it has one.
func (t Term) NumericValue() (float64, bool) {
	if t.Kind != TermNumber {
		return 0, false
	}
	if t.IsFloat {
		return t.Float, true
	}
	return float64(t.Int), true
}

// Equal reports structural equality of two terms.
func (t Term) Equal(o Term) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case TermVariable, TermAtom, TermString:
		return t.Name == o.Name
	case TermNumber:
		if t.IsFloat != o.IsFloat {
			return false
		}
		if t.IsFloat {
			return t.Float == o.Float
		}
		return t.Int == o.Int
	case TermWildcard:
		return true
	case TermList:
		if len(t.Elems) != len(o.Elems) {
			return false
		}
		for i := range t.Elems {
			if !t.Elems[i].Equal(o.Elems[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders the term in Mangle notation.
func (t Term) String() string {
	switch t.Kind {
	case TermVariable:
		return t.Name
	case TermAtom:
		return t.Name
	case TermString:
		return strconv.Quote(t.Name)
	case TermNumber:
		if t.IsFloat {
			return strconv.FormatFloat(t.Float, 'g', -1, 64)
		}
		return strconv.FormatInt(t.Int, 10)
	case TermWildcard:
		return "_"
	case TermList:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return "?"
}

// Predicate is a named application of terms: name(arg1, ..., argN).
type Predicate struct {
	Name string
	Args []Term
}

// Arity returns the number of arguments.
func (p Predicate) Arity() int { return len(p.Args) }

// IsGround reports whether every argument is ground.
func (p Predicate) IsGround() bool {
	for _, a := range p.Args {
		if !a.IsGround() {
			return false
		}
	}
	return true
}

// Variables appends the names of all variables in the predicate, in
// argument order, without duplicates.
func (p Predicate) Variables() []string {
	seen := make(map[string]struct{})
	var out []string
	var walk func(Term)
	walk = func(t Term) {
		switch t.Kind {
		case TermVariable:
			if _, ok := seen[t.Name]; !ok {
				seen[t.Name] = struct{}{}
				out = append(out, t.Name)
			}
		case TermList:
			for _, e := range t.Elems {
				walk(e)
			}
		}
	}
	for _, a := range p.Args {
		walk(a)
	}
	return out
}

// String renders the predicate in Mangle notation without a trailing period.
func (p Predicate) String() string {
	if len(p.Args) == 0 {
		return p.Name + "()"
	}
	parts := make([]string, len(p.Args))
	for i, a := range p.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", p.Name, strings.Join(parts, ", "))
}

// Comparison is a numeric body constraint such as X < Y.
type Comparison struct {
	Op    string // one of < > <= >= = == !=
	Left  Term
	Right Term
}

// String renders the comparison.
func (c Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.Left.String(), c.Op, c.Right.String())
}

// Variables returns variable names used by either side.
func (c Comparison) Variables() []string {
	var out []string
	for _, t := range []Term{c.Left, c.Right} {
		if t.Kind == TermVariable {
			out = append(out, t.Name)
		}
	}
	return out
}

// Literal is one element of a rule body: either a predicate call or a
// comparison, optionally negated.
type Literal struct {
	Negated bool
	Pred    *Predicate  // nil when Cmp is set
	Cmp     *Comparison // nil when Pred is set
	Raw     string
}

// IsComparison reports whether the literal is a comparison constraint.
func (l Literal) IsComparison() bool { return l.Cmp != nil }

// String renders the literal.
func (l Literal) String() string {
	var s string
	if l.Cmp != nil {
		s = l.Cmp.String()
	} else if l.Pred != nil {
		s = l.Pred.String()
	} else {
		s = l.Raw
	}
	if l.Negated {
		return "!" + s
	}
	return s
}

// Variables returns variable names appearing in the literal.
func (l Literal) Variables() []string {
	if l.Cmp != nil {
		return l.Cmp.Variables()
	}
	if l.Pred != nil {
		return l.Pred.Variables()
	}
	return nil
}

// Rule is head :- body with its source location.
type Rule struct {
	Head           Predicate
	Body           []Literal
	HasAggregation bool
	Transform      string // text after |>, when present
	File           string
	Line           int
}

// String renders the rule without its transform suffix.
func (r Rule) String() string {
	parts := make([]string, len(r.Body))
	for i, l := range r.Body {
		parts[i] = l.String()
	}
	return fmt.Sprintf("%s :- %s.", r.Head.String(), strings.Join(parts, ", "))
}

// Fact is a ground predicate with its source location.
type Fact struct {
	Pred Predicate
	File string
	Line int
}

// String renders the fact.
func (f Fact) String() string { return f.Pred.String() + "." }

// Decl records a predicate declaration and its arity.
type Decl struct {
	Name  string
	Arity int
	File  string
	Line  int
}
