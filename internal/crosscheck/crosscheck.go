// Package crosscheck runs every statement through the upstream
// github.com/google/mangle parser and reports where the local dialect
// diverges. Findings are informational: the local parser stays
// authoritative for analysis.
package crosscheck

import (
	"fmt"
	"strings"

	"github.com/google/mangle/parse"
	"go.uber.org/zap"

	"manglint/internal/model"
	"manglint/internal/syntax"
)

// Check splits the source exactly like the main pipeline, feeds each
// statement to the upstream parser and emits one dialect finding per
// divergence.
func Check(file, content string, log *zap.Logger) []model.Issue {
	if log == nil {
		log = zap.NewNop()
	}
	var issues []model.Issue

	stmts := syntax.SplitStatements(content)
	for _, stmt := range stmts {
		parsed, perr := syntax.ParseStatement(stmt, file)
		if perr != nil {
			// The main parser already reported it; nothing to compare.
			continue
		}
		switch parsed.Kind {
		case syntax.StmtPackage, syntax.StmtQuery:
			// Package/Uses lines and bare queries have no upstream
			// statement form worth comparing.
			continue
		}

		text := normalizeArrows(stmt.Text)
		unit, err := parse.Unit(strings.NewReader(text))
		loc := model.Location{File: file, Line: stmt.StartLine}

		if err != nil {
			issues = append(issues, model.Issue{
				Category:  model.CategoryDialect,
				Severity:  model.SeverityInfo,
				Location:  loc,
				Predicate: statementPredicate(parsed),
				Message: fmt.Sprintf("statement parses locally but the upstream mangle parser rejects it: %v",
					firstLine(err.Error())),
				Suggestion: "fine if the dialect extension is intentional; rewrite in upstream syntax for portability",
			})
			log.Debug("dialect divergence",
				zap.String("file", file),
				zap.Int("line", stmt.StartLine),
				zap.Error(err))
			continue
		}

		// Both parsers accepted: compare the head they saw.
		name, arity, ok := localHead(parsed)
		if !ok || len(unit.Clauses) == 0 {
			continue
		}
		up := unit.Clauses[0].Head
		if up.Predicate.Symbol != name || len(up.Args) != arity {
			issues = append(issues, model.Issue{
				Category:  model.CategoryDialect,
				Severity:  model.SeverityInfo,
				Location:  loc,
				Predicate: name,
				Message: fmt.Sprintf("parsers disagree on the statement head: local %s/%d, upstream %s/%d",
					name, arity, up.Predicate.Symbol, len(up.Args)),
				Suggestion: "simplify the statement until both parsers agree on its head",
			})
		}
	}
	return issues
}

// CheckProgram runs the dialect check over every loaded file's source.
func CheckProgram(sources map[string]string, log *zap.Logger) []model.Issue {
	var issues []model.Issue
	for file, content := range sources {
		issues = append(issues, Check(file, content, log)...)
	}
	return issues
}

// normalizeArrows rewrites the local arrow variants to the upstream
// `:-` form so only genuine dialect gaps get flagged.
func normalizeArrows(text string) string {
	text = strings.ReplaceAll(text, "⟸", ":-")
	// `<-` but not `<=`.
	var sb strings.Builder
	for i := 0; i < len(text); i++ {
		if text[i] == '<' && i+1 < len(text) && text[i+1] == '-' {
			sb.WriteString(":-")
			i++
			continue
		}
		sb.WriteByte(text[i])
	}
	return sb.String()
}

func localHead(parsed *syntax.ParsedStatement) (string, int, bool) {
	switch parsed.Kind {
	case syntax.StmtRule:
		return parsed.Rule.Head.Name, parsed.Rule.Head.Arity(), true
	case syntax.StmtFact:
		return parsed.Fact.Pred.Name, parsed.Fact.Pred.Arity(), true
	}
	return "", 0, false
}

func statementPredicate(parsed *syntax.ParsedStatement) string {
	if name, _, ok := localHead(parsed); ok {
		return name
	}
	if parsed.Kind == syntax.StmtDecl && parsed.Decl != nil {
		return parsed.Decl.Name
	}
	return ""
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
