// Package deadcode finds rules that can never fire, predicates nothing
// reads, and predicates used without any definition.
package deadcode

import (
	"fmt"
	"sort"
	"strings"

	"manglint/internal/model"
)

// Analyze runs the three dead-code checks over the model. Virtual
// predicates are exempt from the unused and undefined checks by
// definition: their truth lives outside the file set.
func Analyze(prog *model.Program) []model.Issue {
	var issues []model.Issue
	issues = append(issues, unreachableRules(prog)...)
	issues = append(issues, undefinedPredicates(prog)...)
	issues = append(issues, unusedPredicates(prog)...)
	return issues
}

// unreachableRules flags rules with a body literal that has no definition
// of any kind; such a rule can never derive anything.
func unreachableRules(prog *model.Program) []model.Issue {
	var issues []model.Issue
	for _, rule := range prog.Rules {
		var missing []string
		for _, lit := range rule.Body {
			if lit.IsComparison() || lit.Pred == nil {
				continue
			}
			name := lit.Pred.Name
			if prog.IsBuiltinName(name) || prog.IsVirtualName(name) {
				continue
			}
			info := prog.Info(name)
			if info != nil && (info.IsEDB || info.IsIDB) {
				continue
			}
			missing = append(missing, name)
		}
		if len(missing) == 0 {
			continue
		}
		issues = append(issues, model.Issue{
			Category:  model.CategoryDeadCode,
			Severity:  model.SeverityError,
			Location:  model.Location{File: rule.File, Line: rule.Line},
			Predicate: rule.Head.Name,
			Message: fmt.Sprintf("rule for %s can never fire: body references undefined predicate(s) %s",
				rule.Head.Name, strings.Join(missing, ", ")),
			Suggestion: "define the missing predicate(s), declare them, or add them to the virtual predicate set",
		})
	}
	return issues
}

// undefinedPredicates flags names that appear in rule bodies but are
// neither EDB, IDB, virtual nor builtin, listing every use site.
func undefinedPredicates(prog *model.Program) []model.Issue {
	var issues []model.Issue
	for _, name := range prog.PredicateNames() {
		info := prog.Info(name)
		if info.IsEDB || info.IsIDB || info.IsVirtual || info.IsBuiltin {
			continue
		}
		if len(info.UsedAt) == 0 {
			continue
		}
		uses := make([]string, len(info.UsedAt))
		for i, loc := range info.UsedAt {
			uses[i] = loc.String()
		}
		sort.Strings(uses)
		issues = append(issues, model.Issue{
			Category:  model.CategoryDeadCode,
			Severity:  model.SeverityError,
			Location:  info.UsedAt[0],
			Related:   info.UsedAt[1:],
			Predicate: name,
			Message:   fmt.Sprintf("undefined predicate %s used at %s", name, strings.Join(uses, ", ")),
			Suggestion: fmt.Sprintf("add facts or a rule for %s, or register it as virtual if it is computed externally", name),
		})
	}
	return issues
}

// unusedPredicates flags defined predicates that no rule body reads and
// that have no use outside their own defining locations.
func unusedPredicates(prog *model.Program) []model.Issue {
	var issues []model.Issue
	for _, name := range prog.PredicateNames() {
		info := prog.Info(name)
		if !info.IsEDB && !info.IsIDB {
			continue
		}
		if info.IsVirtual || info.IsBuiltin {
			continue
		}
		if len(info.UsedAt) > 0 {
			continue
		}
		loc := model.Location{}
		if len(info.DefinedAt) > 0 {
			loc = info.DefinedAt[0]
		}
		issues = append(issues, model.Issue{
			Category:  model.CategoryDeadCode,
			Severity:  model.SeverityWarning,
			Location:  loc,
			Related:   rest(info.DefinedAt),
			Predicate: name,
			Message:   fmt.Sprintf("predicate %s is defined but never used", name),
			Suggestion: "remove the definition or wire it into a rule body or query",
		})
	}
	return issues
}

func rest(locs []model.Location) []model.Location {
	if len(locs) <= 1 {
		return nil
	}
	return locs[1:]
}
