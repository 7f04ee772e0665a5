// Package report aggregates analysis issues into a structured result
// with severity and category counts, renderable as text or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"manglint/internal/model"
)

// Outcome is the tri-state result contract. Exit-code mapping is the
// CLI's business, not ours.
type Outcome int

const (
	OutcomeOk Outcome = iota
	OutcomeIssuesFound
	OutcomeFatalError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOk:
		return "ok"
	case OutcomeIssuesFound:
		return "issues_found"
	case OutcomeFatalError:
		return "fatal_error"
	}
	return "unknown"
}

// Report is the aggregate result of one analysis run.
type Report struct {
	RunID      string
	Started    time.Time
	Files      []string
	FatalFiles []model.FileError
	Issues     []model.Issue
	MaxStratum int
	Stratified bool
}

// New starts an empty report with a fresh run ID.
func New(files []string) *Report {
	return &Report{
		RunID:      uuid.NewString(),
		Started:    time.Now().UTC(),
		Files:      files,
		Stratified: true,
	}
}

// Add appends issues to the report.
func (r *Report) Add(issues ...model.Issue) {
	r.Issues = append(r.Issues, issues...)
}

// Outcome classifies the run. Fatal file errors dominate; otherwise any
// issue at all means IssuesFound.
func (r *Report) Outcome() Outcome {
	if len(r.FatalFiles) > 0 {
		return OutcomeFatalError
	}
	if len(r.Issues) > 0 {
		return OutcomeIssuesFound
	}
	return OutcomeOk
}

// HasSeverityAtLeast reports whether any issue meets the threshold.
func (r *Report) HasSeverityAtLeast(min model.Severity) bool {
	for _, is := range r.Issues {
		if is.Severity >= min {
			return true
		}
	}
	return false
}

// CountsBySeverity tallies issues per severity label.
func (r *Report) CountsBySeverity() map[string]int {
	out := make(map[string]int)
	for _, is := range r.Issues {
		out[is.Severity.String()]++
	}
	return out
}

// CountsByCategory tallies issues per category.
func (r *Report) CountsByCategory() map[string]int {
	out := make(map[string]int)
	for _, is := range r.Issues {
		out[string(is.Category)]++
	}
	return out
}

// Sort orders issues by severity (highest first), then file, then line.
func (r *Report) Sort() {
	sort.SliceStable(r.Issues, func(i, j int) bool {
		a, b := r.Issues[i], r.Issues[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.Location.File != b.Location.File {
			return a.Location.File < b.Location.File
		}
		return a.Location.Line < b.Location.Line
	})
}

// RenderText produces the human-readable report.
func (r *Report) RenderText() string {
	r.Sort()
	var sb strings.Builder
	fmt.Fprintf(&sb, "analysis run %s\n", r.RunID)
	fmt.Fprintf(&sb, "files: %s\n", strings.Join(r.Files, ", "))

	for _, fe := range r.FatalFiles {
		fmt.Fprintf(&sb, "FATAL %s: %s\n", fe.File, fe.Err)
	}

	if len(r.Issues) == 0 && len(r.FatalFiles) == 0 {
		sb.WriteString("no issues found\n")
		return sb.String()
	}

	for _, is := range r.Issues {
		fmt.Fprintf(&sb, "\n[%s] %s %s\n", is.Severity, is.Category, is.Location)
		fmt.Fprintf(&sb, "  %s\n", is.Message)
		if is.Suggestion != "" {
			fmt.Fprintf(&sb, "  suggestion: %s\n", is.Suggestion)
		}
		for _, rel := range is.Related {
			fmt.Fprintf(&sb, "  see also: %s\n", rel)
		}
	}

	sb.WriteString("\nsummary:\n")
	writeCounts(&sb, "severity", r.CountsBySeverity())
	writeCounts(&sb, "category", r.CountsByCategory())
	fmt.Fprintf(&sb, "outcome: %s\n", r.Outcome())
	return sb.String()
}

func writeCounts(sb *strings.Builder, label string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(sb, "  %s %s: %d\n", label, k, counts[k])
	}
}

type jsonIssue struct {
	Category   string   `json:"category"`
	Severity   string   `json:"severity"`
	File       string   `json:"file"`
	Line       int      `json:"line"`
	Predicate  string   `json:"predicate,omitempty"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
	Related    []string `json:"related,omitempty"`
}

type jsonReport struct {
	RunID      string         `json:"run_id"`
	Started    time.Time      `json:"started"`
	Files      []string       `json:"files"`
	FatalFiles []string       `json:"fatal_files,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   map[string]int `json:"counts_by_severity"`
	Category   map[string]int `json:"counts_by_category"`
	Issues     []jsonIssue    `json:"issues"`
}

// RenderJSON produces the machine-readable report.
func (r *Report) RenderJSON() ([]byte, error) {
	r.Sort()
	out := jsonReport{
		RunID:    r.RunID,
		Started:  r.Started,
		Files:    r.Files,
		Outcome:  r.Outcome().String(),
		Severity: r.CountsBySeverity(),
		Category: r.CountsByCategory(),
		Issues:   make([]jsonIssue, 0, len(r.Issues)),
	}
	for _, fe := range r.FatalFiles {
		out.FatalFiles = append(out.FatalFiles, fmt.Sprintf("%s: %s", fe.File, fe.Err))
	}
	for _, is := range r.Issues {
		ji := jsonIssue{
			Category:   string(is.Category),
			Severity:   is.Severity.String(),
			File:       is.Location.File,
			Line:       is.Location.Line,
			Predicate:  is.Predicate,
			Message:    is.Message,
			Suggestion: is.Suggestion,
		}
		for _, rel := range is.Related {
			ji.Related = append(ji.Related, rel.String())
		}
		out.Issues = append(out.Issues, ji)
	}
	return json.MarshalIndent(out, "", "  ")
}
