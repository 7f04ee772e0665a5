package modules

import (
	"strings"
	"testing"

	"manglint/internal/model"
)

func load(t *testing.T, files map[string]string, opts ...model.Option) *model.Program {
	t.Helper()
	p := model.NewProgram(opts...)
	// Fixed order keeps locations deterministic.
	var names []string
	for name := range files {
		names = append(names, name)
	}
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if names[j] < names[i] {
				names[i], names[j] = names[j], names[i]
			}
		}
	}
	for _, name := range names {
		p.LoadSource(name, files[name])
	}
	p.Finalize()
	return p
}

func TestDuplicateDefinitionAcrossFiles(t *testing.T) {
	prog := load(t, map[string]string{
		"a.mg": `active(X) :- session(X).
session(/s1).`,
		"b.mg": `active(X) :- token(X).
token(/t1).
sink(X) :- active(X), session(X), token(X).`,
	})
	res := Analyze(prog, Options{})

	var dups []model.Issue
	for _, is := range res.Issues {
		if strings.Contains(is.Message, "defined in 2 files") {
			dups = append(dups, is)
		}
	}
	if len(dups) != 1 {
		t.Fatalf("duplicate findings = %d, want 1 (issues: %v)", len(dups), res.Issues)
	}
	is := dups[0]
	if is.Predicate != "active" {
		t.Errorf("predicate = %q, want active", is.Predicate)
	}
	if is.Severity != model.SeverityWarning {
		t.Errorf("severity = %v, want WARNING", is.Severity)
	}
	if !strings.Contains(is.Message, "a.mg") || !strings.Contains(is.Message, "b.mg") {
		t.Errorf("message does not cite both files: %q", is.Message)
	}
}

func TestFactsSplitAcrossFilesAreQuiet(t *testing.T) {
	prog := load(t, map[string]string{
		"data1.mg": `edge(/a, /b).`,
		"data2.mg": `edge(/b, /c).
path(X, Y) :- edge(X, Y).
sink(X, Y) :- path(X, Y).`,
	})
	res := Analyze(prog, Options{})
	for _, is := range res.Issues {
		if strings.Contains(is.Message, "defined in") {
			t.Fatalf("fact-only split flagged as duplicate: %v", is)
		}
	}
}

func TestMissingDefinitionOnlyWithCompleteness(t *testing.T) {
	files := map[string]string{
		"m.mg": `uses(X) :- phantom(X).
sink(X) :- uses(X).`,
	}

	prog := load(t, files)
	if res := Analyze(prog, Options{}); res.Failed {
		t.Fatalf("run failed without completeness flag: %v", res.Issues)
	}

	prog = load(t, files)
	res := Analyze(prog, Options{Completeness: true})
	if !res.Failed {
		t.Fatal("completeness run did not fail on missing definition")
	}
	found := false
	for _, is := range res.Issues {
		if strings.Contains(is.Message, "missing definition: phantom") {
			found = true
			if is.Severity != model.SeverityError {
				t.Errorf("severity = %v, want ERROR", is.Severity)
			}
		}
	}
	if !found {
		t.Fatalf("no missing-definition finding for phantom: %v", res.Issues)
	}
}

func TestVirtualPredicateSatisfiesCompleteness(t *testing.T) {
	prog := load(t, map[string]string{
		"m.mg": `uses(X) :- feed(X).
sink(X) :- uses(X).`,
	}, model.WithVirtualPredicates("feed"))
	res := Analyze(prog, Options{Completeness: true})
	if res.Failed {
		t.Fatalf("virtual predicate failed completeness: %v", res.Issues)
	}
}

func TestFileEdges(t *testing.T) {
	prog := load(t, map[string]string{
		"base.mg": `person(/alice).
person(/bob).`,
		"derived.mg": `adult(X) :- person(X).
sink(X) :- adult(X).`,
	})
	res := Analyze(prog, Options{})

	if len(res.FileEdges) != 1 {
		t.Fatalf("file edges = %d, want 1 (%v)", len(res.FileEdges), res.FileEdges)
	}
	e := res.FileEdges[0]
	if e.From != "derived.mg" || e.To != "base.mg" {
		t.Errorf("edge = %s -> %s, want derived.mg -> base.mg", e.From, e.To)
	}
	if len(e.Predicates) != 1 || e.Predicates[0] != "person" {
		t.Errorf("edge predicates = %v, want [person]", e.Predicates)
	}
}

func TestFileGraphDOT(t *testing.T) {
	prog := load(t, map[string]string{
		"base.mg": `item(/x).`,
		"use.mg": `picked(X) :- item(X).
sink(X) :- picked(X).`,
	})
	res := Analyze(prog, Options{})
	dot := res.WriteDOT()
	for _, want := range []string{"digraph files", `"use.mg" -> "base.mg"`, "item"} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
}
