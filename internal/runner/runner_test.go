package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"manglint/internal/config"
	"manglint/internal/model"
	"manglint/internal/report"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRunCleanProgram(t *testing.T) {
	dir := t.TempDir()
	f := writeFile(t, dir, "clean.mg", `
edge(/a, /b).
path(X, Y) :- edge(X, Y).
path(X, Z) :- edge(X, Y), path(Y, Z).
result(X, Y) :- path(X, Y).
`)
	r := New(config.DefaultAnalysisConfig(), nil)
	res, err := r.Run(context.Background(), []string{f})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// result itself is unused; that is the only expected finding.
	for _, is := range res.Report.Issues {
		if is.Predicate != "result" {
			t.Errorf("unexpected issue: %v", is)
		}
	}
	if res.Report.Outcome() == report.OutcomeFatalError {
		t.Fatal("clean run reported fatal outcome")
	}
	if !res.Report.Stratified {
		t.Error("clean program reported unstratified")
	}
	if res.Failed(model.SeverityError) {
		t.Error("clean run failed the error threshold")
	}
}

func TestRunCollectsAcrossPasses(t *testing.T) {
	dir := t.TempDir()
	f := writeFile(t, dir, "messy.mg", `
bad(X) :- !bad(X).
r(X, Y) :- p(X), q(Y).
p(/a).
q(/b).
sink(X, Y) :- r(X, Y), bad(X).
`)
	r := New(config.DefaultAnalysisConfig(), nil)
	res, err := r.Run(context.Background(), []string{f})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	cats := res.Report.CountsByCategory()
	if cats["stratification"] == 0 {
		t.Errorf("no stratification finding: %v", cats)
	}
	if cats["performance"] == 0 {
		t.Errorf("no performance finding: %v", cats)
	}
	if !res.Failed(model.SeverityError) {
		t.Error("stratification violation did not fail the run")
	}
}

func TestRunMissingFileIsFatalNotPanic(t *testing.T) {
	r := New(config.DefaultAnalysisConfig(), nil)
	res, err := r.Run(context.Background(), []string{"/does/not/exist.mg"})
	if err != nil {
		t.Fatalf("Run returned hard error for missing file: %v", err)
	}
	if got := res.Report.Outcome(); got != report.OutcomeFatalError {
		t.Fatalf("outcome = %v, want fatal_error", got)
	}
	if !res.Failed(model.SeverityError) {
		t.Error("fatal file did not fail the run")
	}
}

func TestRunCompletenessFailsOnMissingDefinition(t *testing.T) {
	dir := t.TempDir()
	f := writeFile(t, dir, "inc.mg", `
uses(X) :- phantom(X).
sink(X) :- uses(X).
`)
	cfg := config.DefaultAnalysisConfig()
	cfg.Completeness = true
	res, err := New(cfg, nil).Run(context.Background(), []string{f})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Modules.Failed {
		t.Error("completeness flag did not mark the run failed")
	}
	if !res.Failed(model.SeverityError) {
		t.Error("RunResult.Failed ignored the completeness failure")
	}
}

func TestRunGroups(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.mg", `
fa(/1).
ra(X) :- fa(X).
sa(X) :- ra(X).
`)
	b := writeFile(t, dir, "b.mg", `
fb(/2).
rb(X) :- fb(X).
sb(X) :- rb(X).
`)
	r := New(config.DefaultAnalysisConfig(), nil)
	results, err := r.RunGroups(context.Background(), [][]string{{a}, {b}})
	if err != nil {
		t.Fatalf("RunGroups: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Report.Files[0] != a || results[1].Report.Files[0] != b {
		t.Error("group results out of order")
	}
}

func TestLoadSizes(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sizes.json", `{"edge": 50000, "node": 120}`)
	sizes, err := LoadSizes(path)
	if err != nil {
		t.Fatalf("LoadSizes: %v", err)
	}
	if sizes["edge"] != 50000 || sizes["node"] != 120 {
		t.Errorf("sizes = %v", sizes)
	}
	if got, err := LoadSizes(""); err != nil || got != nil {
		t.Errorf("empty path: sizes=%v err=%v", got, err)
	}
	if _, err := LoadSizes(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("missing sizes file did not error")
	}
}
