// Package model builds the shared cross-file index of predicates, rules
// and facts that every analysis pass reads. Analyzers never re-parse
// source; they consume a Program and append Issues.
package model

import (
	"fmt"
	"strings"
)

// Severity orders findings from purely informational to run-failing.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityWarning
	SeverityHigh
	SeverityError
)

// String returns the uppercase severity label used in reports.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityWarning:
		return "WARNING"
	case SeverityHigh:
		return "HIGH"
	case SeverityError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseSeverity maps a label back to its Severity, case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INFO":
		return SeverityInfo, nil
	case "LOW":
		return SeverityLow, nil
	case "MEDIUM":
		return SeverityMedium, nil
	case "WARNING", "WARN":
		return SeverityWarning, nil
	case "HIGH":
		return SeverityHigh, nil
	case "ERROR":
		return SeverityError, nil
	}
	return SeverityInfo, fmt.Errorf("unknown severity %q", s)
}

// Category groups issues by the pass that produced them.
type Category string

const (
	CategoryParse          Category = "parse"
	CategoryArity          Category = "arity"
	CategoryRange          Category = "range-restriction"
	CategoryStratification Category = "stratification"
	CategoryDeadCode       Category = "dead-code"
	CategoryPerformance    Category = "performance"
	CategoryModule         Category = "module"
	CategoryDialect        Category = "dialect"
)

// Location is a file:line source position.
type Location struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

func (l Location) String() string {
	if l.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Issue is one finding. Analysis findings are always advisory: they are
// collected, never thrown, and never abort a run.
type Issue struct {
	Category   Category   `json:"category"`
	Severity   Severity   `json:"severity"`
	Location   Location   `json:"location"`
	Related    []Location `json:"related,omitempty"`
	Predicate  string     `json:"predicate,omitempty"`
	Message    string     `json:"message"`
	Suggestion string     `json:"suggestion,omitempty"`
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s/%s] %s: %s", i.Severity, i.Category, i.Location, i.Message)
}
