package model

import (
	"strings"
	"testing"
)

func loadProgram(t *testing.T, src string, opts ...Option) *Program {
	t.Helper()
	p := NewProgram(opts...)
	p.LoadSource("test.mg", src)
	p.Finalize()
	return p
}

func TestClassification(t *testing.T) {
	src := `
Decl base(A, B).
base(/a, /b).
derived(X) :- base(X, _).
`
	p := loadProgram(t, src, WithVirtualPredicates("external_feed"))
	base := p.Info("base")
	if base == nil || !base.IsEDB || base.IsIDB {
		t.Fatalf("base info = %+v, want EDB only", base)
	}
	derived := p.Info("derived")
	if derived == nil || !derived.IsIDB {
		t.Fatalf("derived info = %+v, want IDB", derived)
	}
	if derived.Stratum != -1 {
		t.Errorf("stratum before stratification = %d, want -1", derived.Stratum)
	}
	if !p.IsVirtualName("external_feed") {
		t.Error("virtual predicate not registered")
	}
	if !p.IsBuiltinName("fn:count") || !p.IsBuiltinName("lt") {
		t.Error("builtin classification broken")
	}
}

func TestArityConflictCitesAllLocations(t *testing.T) {
	src := `
Decl p(A, B).
p(/x, /y).
p(/only_one).
`
	p := loadProgram(t, src)
	var conflicts []Issue
	for _, is := range p.Issues {
		if is.Category == CategoryArity {
			conflicts = append(conflicts, is)
		}
	}
	if len(conflicts) != 1 {
		t.Fatalf("arity conflicts = %d, want 1", len(conflicts))
	}
	is := conflicts[0]
	if is.Severity != SeverityError {
		t.Errorf("severity = %v, want ERROR", is.Severity)
	}
	// One primary plus two related locations: all three occurrences cited.
	if got := 1 + len(is.Related); got != 3 {
		t.Errorf("cited locations = %d, want 3", got)
	}
	// First-seen arity must survive the conflict.
	if p.Info("p").Arity != 2 {
		t.Errorf("recorded arity = %d, want first-seen 2", p.Info("p").Arity)
	}
}

func TestRangeRestriction(t *testing.T) {
	p := loadProgram(t, `bad_head(X, Y) :- only_x(X).`)
	found := false
	for _, is := range p.Issues {
		if is.Category == CategoryRange && strings.Contains(is.Message, "Y") {
			found = true
		}
	}
	if !found {
		t.Fatalf("no range-restriction issue for unbound head variable, issues = %v", p.Issues)
	}
}

func TestNonGroundFactRejected(t *testing.T) {
	p := loadProgram(t, `loose(X).`)
	if len(p.Facts) != 0 {
		t.Fatalf("non-ground fact stored: %v", p.Facts)
	}
	if len(p.Issues) == 0 || p.Issues[0].Category != CategoryRange {
		t.Fatalf("issues = %v, want range-restriction error", p.Issues)
	}
}

func TestParseErrorDoesNotAbortLoad(t *testing.T) {
	src := "ok(/a).\nBroken(/x).\nok2(/b)."
	p := loadProgram(t, src)
	if len(p.Facts) != 2 {
		t.Fatalf("facts = %d, want 2 despite parse error", len(p.Facts))
	}
	parseErrs := 0
	for _, is := range p.Issues {
		if is.Category == CategoryParse {
			parseErrs++
		}
	}
	if parseErrs != 1 {
		t.Fatalf("parse issues = %d, want 1", parseErrs)
	}
}

func TestLoadFileMissing(t *testing.T) {
	p := NewProgram()
	if err := p.LoadFile("/nonexistent/nope.mg"); err == nil {
		t.Fatal("LoadFile() on missing file returned nil error")
	}
	if len(p.FatalFiles) != 1 {
		t.Fatalf("fatal files = %d, want 1", len(p.FatalFiles))
	}
}

func TestRulesAndFactsLookup(t *testing.T) {
	src := `
edge(/a, /b).
edge(/b, /c).
reach(X, Y) :- edge(X, Y).
reach(X, Z) :- edge(X, Y), reach(Y, Z).
`
	p := loadProgram(t, src)
	if got := len(p.FactsFor("edge", 2)); got != 2 {
		t.Errorf("FactsFor(edge/2) = %d, want 2", got)
	}
	rules := p.RulesFor("reach", 2)
	if len(rules) != 2 {
		t.Fatalf("RulesFor(reach/2) = %d, want 2", len(rules))
	}
	// Declaration order matters for the resolver.
	if len(rules[0].Body) != 1 || len(rules[1].Body) != 2 {
		t.Errorf("rule order not preserved: %v", rules)
	}
}
