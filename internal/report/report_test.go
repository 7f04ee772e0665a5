package report

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"manglint/internal/model"
)

func sample() *Report {
	r := New([]string{"a.mg", "b.mg"})
	r.Add(
		model.Issue{
			Category: model.CategoryDeadCode,
			Severity: model.SeverityWarning,
			Location: model.Location{File: "a.mg", Line: 4},
			Message:  "predicate helper is defined but never used",
		},
		model.Issue{
			Category: model.CategoryStratification,
			Severity: model.SeverityError,
			Location: model.Location{File: "b.mg", Line: 2},
			Message:  "negation cycle",
		},
		model.Issue{
			Category: model.CategoryPerformance,
			Severity: model.SeverityMedium,
			Location: model.Location{File: "a.mg", Line: 9},
			Message:  "late filtering",
		},
	)
	return r
}

func TestOutcomeTriState(t *testing.T) {
	empty := New([]string{"a.mg"})
	if got := empty.Outcome(); got != OutcomeOk {
		t.Errorf("empty outcome = %v, want ok", got)
	}

	r := sample()
	if got := r.Outcome(); got != OutcomeIssuesFound {
		t.Errorf("outcome = %v, want issues_found", got)
	}

	r.FatalFiles = append(r.FatalFiles, model.FileError{File: "gone.mg", Err: errors.New("no such file")})
	if got := r.Outcome(); got != OutcomeFatalError {
		t.Errorf("outcome with fatal file = %v, want fatal_error", got)
	}
}

func TestSortOrdersBySeverityThenLocation(t *testing.T) {
	r := sample()
	r.Sort()
	if r.Issues[0].Severity != model.SeverityError {
		t.Errorf("first issue severity = %v, want ERROR first", r.Issues[0].Severity)
	}
	if r.Issues[len(r.Issues)-1].Severity != model.SeverityMedium {
		t.Errorf("last issue severity = %v, want MEDIUM last", r.Issues[len(r.Issues)-1].Severity)
	}
}

func TestHasSeverityAtLeast(t *testing.T) {
	r := sample()
	if !r.HasSeverityAtLeast(model.SeverityError) {
		t.Error("threshold ERROR not met despite an ERROR issue")
	}
	r2 := New(nil)
	r2.Add(model.Issue{Severity: model.SeverityLow})
	if r2.HasSeverityAtLeast(model.SeverityWarning) {
		t.Error("threshold WARNING met by a LOW issue")
	}
}

func TestRenderText(t *testing.T) {
	r := sample()
	text := r.RenderText()
	for _, want := range []string{
		"analysis run " + r.RunID,
		"[ERROR] stratification b.mg:2",
		"negation cycle",
		"severity WARNING: 1",
		"category performance: 1",
		"outcome: issues_found",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("text report missing %q:\n%s", want, text)
		}
	}
}

func TestRenderTextClean(t *testing.T) {
	text := New([]string{"ok.mg"}).RenderText()
	if !strings.Contains(text, "no issues found") {
		t.Errorf("clean report missing all-clear line:\n%s", text)
	}
}

func TestRenderJSONRoundTrips(t *testing.T) {
	r := sample()
	raw, err := r.RenderJSON()
	if err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}
	var decoded struct {
		RunID   string         `json:"run_id"`
		Outcome string         `json:"outcome"`
		Sev     map[string]int `json:"counts_by_severity"`
		Issues  []struct {
			Severity string `json:"severity"`
			File     string `json:"file"`
		} `json:"issues"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.RunID != r.RunID {
		t.Errorf("run_id = %q, want %q", decoded.RunID, r.RunID)
	}
	if decoded.Outcome != "issues_found" {
		t.Errorf("outcome = %q", decoded.Outcome)
	}
	if decoded.Sev["ERROR"] != 1 || decoded.Sev["WARNING"] != 1 || decoded.Sev["MEDIUM"] != 1 {
		t.Errorf("severity counts = %v", decoded.Sev)
	}
	if len(decoded.Issues) != 3 || decoded.Issues[0].Severity != "ERROR" {
		t.Errorf("issues = %+v", decoded.Issues)
	}
}
