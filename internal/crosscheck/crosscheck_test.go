package crosscheck

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"manglint/internal/model"
)

func categories(issues []model.Issue) []string {
	var out []string
	for _, is := range issues {
		out = append(out, string(is.Category))
	}
	return out
}

func TestCleanProgramHasNoDivergence(t *testing.T) {
	issues := Check("clean.mg", `
edge(/a, /b).
edge(/b, /c).
path(X, Y) :- edge(X, Y).
path(X, Z) :- edge(X, Y), path(Y, Z).
`, nil)
	if diff := cmp.Diff([]string(nil), categories(issues)); diff != "" {
		t.Fatalf("unexpected findings (-want +got):\n%s\nissues: %v", diff, issues)
	}
}

func TestArrowVariantIsNormalizedBeforeUpstream(t *testing.T) {
	issues := Check("arrow.mg", `
edge(/a, /b).
path(X, Y) <- edge(X, Y).
`, nil)
	if len(issues) != 0 {
		t.Fatalf("arrow variant flagged after normalization: %v", issues)
	}
}

func TestDialectDeclIsFlagged(t *testing.T) {
	issues := Check("decl.mg", `
Decl person(X.Name<string>).
person(/alice).
`, nil)
	var dialect []model.Issue
	for _, is := range issues {
		if is.Category == model.CategoryDialect {
			dialect = append(dialect, is)
		}
	}
	if len(dialect) != 1 {
		t.Fatalf("dialect findings = %d, want 1 (%v)", len(dialect), issues)
	}
	if dialect[0].Severity != model.SeverityInfo {
		t.Errorf("severity = %v, want INFO", dialect[0].Severity)
	}
	if dialect[0].Predicate != "person" {
		t.Errorf("predicate = %q, want person", dialect[0].Predicate)
	}
}

func TestPackageLinesAreSkipped(t *testing.T) {
	issues := Check("pkg.mg", `
Package demo!
Uses helpers!
item(/x).
`, nil)
	if len(issues) != 0 {
		t.Fatalf("package/uses lines produced findings: %v", issues)
	}
}

func TestLocalParseErrorsAreNotDoubleReported(t *testing.T) {
	issues := Check("bad.mg", `BadHead(/x).`, nil)
	if len(issues) != 0 {
		t.Fatalf("locally invalid statement produced dialect findings: %v", issues)
	}
}
