package syntax

import "testing"

func mustParse(t *testing.T, text string) *ParsedStatement {
	t.Helper()
	ps, err := ParseStatement(Statement{Text: text, StartLine: 1, EndLine: 1}, "test.mg")
	if err != nil {
		t.Fatalf("ParseStatement(%q) error = %v", text, err)
	}
	return ps
}

func TestParseFactTerms(t *testing.T) {
	ps := mustParse(t, `mixed(/atom, "str", X, _, 42, 3.5, [/a, /b], bare).`)
	if ps.Kind != StmtFact {
		t.Fatalf("kind = %v, want fact", ps.Kind)
	}
	args := ps.Fact.Pred.Args
	if len(args) != 8 {
		t.Fatalf("arity = %d, want 8", len(args))
	}
	wantKinds := []TermKind{TermAtom, TermString, TermVariable, TermWildcard, TermNumber, TermNumber, TermList, TermAtom}
	for i, k := range wantKinds {
		if args[i].Kind != k {
			t.Errorf("arg %d kind = %v, want %v", i, args[i].Kind, k)
		}
	}
	if args[1].Name != "str" {
		t.Errorf("string arg = %q, want %q", args[1].Name, "str")
	}
	if args[4].Int != 42 {
		t.Errorf("int arg = %d, want 42", args[4].Int)
	}
	if !args[5].IsFloat || args[5].Float != 3.5 {
		t.Errorf("float arg = %v", args[5])
	}
	if len(args[6].Elems) != 2 {
		t.Errorf("list arg has %d elems, want 2", len(args[6].Elems))
	}
}

func TestParseDeclArity(t *testing.T) {
	ps := mustParse(t, `Decl edge(Source.Type<Name>, Target.Type<Name>).`)
	if ps.Kind != StmtDecl {
		t.Fatalf("kind = %v, want decl", ps.Kind)
	}
	if ps.Decl.Name != "edge" || ps.Decl.Arity != 2 {
		t.Fatalf("decl = %s/%d, want edge/2", ps.Decl.Name, ps.Decl.Arity)
	}
}

func TestParseRuleArrowVariants(t *testing.T) {
	for _, arrow := range []string{":-", "<-", "⟸"} {
		ps := mustParse(t, "reach(X, Y) "+arrow+" edge(X, Y).")
		if ps.Kind != StmtRule {
			t.Fatalf("arrow %q: kind = %v, want rule", arrow, ps.Kind)
		}
		if ps.Rule.Head.Name != "reach" || len(ps.Rule.Body) != 1 {
			t.Fatalf("arrow %q: rule = %v", arrow, ps.Rule)
		}
	}
}

func TestParseRuleNegationAndComparison(t *testing.T) {
	ps := mustParse(t, `risky(X) :- candidate(X), !approved(X), not vetoed(X), X > 10.`)
	body := ps.Rule.Body
	if len(body) != 4 {
		t.Fatalf("body length = %d, want 4", len(body))
	}
	if body[0].Negated || body[0].Pred.Name != "candidate" {
		t.Errorf("literal 0 = %v", body[0])
	}
	if !body[1].Negated || body[1].Pred.Name != "approved" {
		t.Errorf("literal 1 = %v, want negated approved", body[1])
	}
	if !body[2].Negated || body[2].Pred.Name != "vetoed" {
		t.Errorf("literal 2 = %v, want negated vetoed", body[2])
	}
	if !body[3].IsComparison() || body[3].Cmp.Op != ">" {
		t.Errorf("literal 3 = %v, want comparison >", body[3])
	}
}

func TestParseRuleNotEqualIsComparison(t *testing.T) {
	ps := mustParse(t, `diff(X, Y) :- p(X), p(Y), X != Y.`)
	last := ps.Rule.Body[2]
	if last.Negated {
		t.Fatal("!= parsed as negation")
	}
	if !last.IsComparison() || last.Cmp.Op != "!=" {
		t.Fatalf("literal = %v, want != comparison", last)
	}
}

func TestParseRuleAggregation(t *testing.T) {
	ps := mustParse(t, `total(N) :- item(X) |> do fn:group_by(), let N = fn:count().`)
	if !ps.Rule.HasAggregation {
		t.Fatal("aggregation pipe not detected")
	}
	if len(ps.Rule.Body) != 1 || ps.Rule.Body[0].Pred.Name != "item" {
		t.Fatalf("body = %v, want single item literal", ps.Rule.Body)
	}
	if ps.Rule.Transform == "" {
		t.Fatal("transform text not captured")
	}
}

func TestParsePackageAndQuery(t *testing.T) {
	if ps := mustParse(t, "Package demo!"); ps.Kind != StmtPackage {
		t.Fatalf("kind = %v, want package", ps.Kind)
	}
	ps := mustParse(t, "?reach(/a, X).")
	if ps.Kind != StmtQuery || ps.Query.Name != "reach" {
		t.Fatalf("query = %v", ps.Query)
	}
}

func TestParseErrorsAreLenient(t *testing.T) {
	src := "good(/a).\nBadHead(/x).\nalso_good(/b)."
	stmts, errs := ParseFile("lenient.mg", src)
	if len(stmts) != 2 {
		t.Fatalf("parsed %d statements, want 2", len(stmts))
	}
	if len(errs) != 1 {
		t.Fatalf("got %d parse errors, want 1", len(errs))
	}
	if errs[0].File != "lenient.mg" {
		t.Errorf("error file = %q", errs[0].File)
	}
}

func TestTermStringRoundTrip(t *testing.T) {
	p := Predicate{Name: "owns", Args: []Term{Atom("/alice"), List(Number(1), String("x"))}}
	got := p.String()
	want := `owns(/alice, [1, "x"])`
	if got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestPredicateVariables(t *testing.T) {
	p := Predicate{Name: "p", Args: []Term{Variable("X"), List(Variable("Y"), Variable("X")), Wildcard()}}
	vars := p.Variables()
	if len(vars) != 2 || vars[0] != "X" || vars[1] != "Y" {
		t.Fatalf("Variables() = %v, want [X Y]", vars)
	}
}
