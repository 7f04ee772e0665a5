// Package modules analyzes the file-level structure of a program: which
// file defines what, duplicate definitions, missing definitions, and the
// dependency graph between files.
package modules

import (
	"fmt"
	"sort"
	"strings"

	"manglint/internal/model"
)

// Options configures the pass. Completeness makes every missing
// definition an error that fails the whole run; without it, undefined
// predicates are left to the dead-code pass.
type Options struct {
	Completeness bool
}

// FileEdge is a dependency between files: From uses predicates whose only
// definitions live in To.
type FileEdge struct {
	From       string
	To         string
	Predicates []string
}

// Result holds the module analysis output.
type Result struct {
	Issues    []model.Issue
	FileEdges []FileEdge
	// Failed is set when the completeness flag is on and a definition is
	// missing; the caller should fail the run.
	Failed bool
}

// Analyze merges the per-file view out of the shared model and reports
// duplicate and missing definitions plus the file dependency graph.
// Cross-file arity conflicts are not re-reported here: the model emits
// the single canonical arity finding during Finalize.
func Analyze(prog *model.Program, opts Options) *Result {
	res := &Result{}

	defFiles := definitionFiles(prog)

	res.Issues = append(res.Issues, duplicateDefinitions(prog)...)

	if opts.Completeness {
		missing := missingDefinitions(prog)
		res.Issues = append(res.Issues, missing...)
		res.Failed = len(missing) > 0
	}

	res.FileEdges = fileEdges(prog, defFiles)
	return res
}

// definitionFiles maps predicate name -> set of files that declare,
// derive or assert it.
func definitionFiles(prog *model.Program) map[string]map[string]bool {
	out := make(map[string]map[string]bool)
	add := func(name, file string) {
		if out[name] == nil {
			out[name] = make(map[string]bool)
		}
		out[name][file] = true
	}
	for _, d := range prog.Decls {
		add(d.Name, d.File)
	}
	for _, r := range prog.Rules {
		add(r.Head.Name, r.File)
	}
	for _, f := range prog.Facts {
		add(f.Pred.Name, f.File)
	}
	return out
}

// duplicateDefinitions warns when the same predicate/arity is declared or
// derived in more than one file. Facts split across files are data, not
// duplication, and stay quiet.
func duplicateDefinitions(prog *model.Program) []model.Issue {
	type key struct {
		name  string
		arity int
	}
	files := make(map[key]map[string]model.Location)
	record := func(k key, file string, loc model.Location) {
		if files[k] == nil {
			files[k] = make(map[string]model.Location)
		}
		if _, ok := files[k][file]; !ok {
			files[k][file] = loc
		}
	}
	for _, d := range prog.Decls {
		record(key{d.Name, d.Arity}, d.File, model.Location{File: d.File, Line: d.Line})
	}
	for _, r := range prog.Rules {
		record(key{r.Head.Name, r.Head.Arity()}, r.File, model.Location{File: r.File, Line: r.Line})
	}

	var keys []key
	for k, fs := range files {
		if len(fs) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].name < keys[j].name })

	var issues []model.Issue
	for _, k := range keys {
		fs := files[k]
		var names []string
		var locs []model.Location
		for f := range fs {
			names = append(names, f)
		}
		sort.Strings(names)
		for _, f := range names {
			locs = append(locs, fs[f])
		}
		issues = append(issues, model.Issue{
			Category:  model.CategoryModule,
			Severity:  model.SeverityWarning,
			Location:  locs[0],
			Related:   locs[1:],
			Predicate: k.name,
			Message: fmt.Sprintf("predicate %s/%d is defined in %d files: %s",
				k.name, k.arity, len(names), strings.Join(names, ", ")),
			Suggestion: "keep one owning file per derived predicate; split data facts, not rule definitions",
		})
	}
	return issues
}

// missingDefinitions errors on predicates that are used but defined
// nowhere in the file set and not in the virtual allow-list.
func missingDefinitions(prog *model.Program) []model.Issue {
	var issues []model.Issue
	for _, name := range prog.PredicateNames() {
		info := prog.Info(name)
		if info.IsEDB || info.IsIDB || info.IsVirtual || info.IsBuiltin {
			continue
		}
		if len(info.UsedAt) == 0 {
			continue
		}
		issues = append(issues, model.Issue{
			Category:  model.CategoryModule,
			Severity:  model.SeverityError,
			Location:  info.UsedAt[0],
			Related:   info.UsedAt[1:],
			Predicate: name,
			Message:   fmt.Sprintf("missing definition: %s is used but defined in no loaded file", name),
			Suggestion: "load the file that defines it or add it to the virtual predicate set",
		})
	}
	return issues
}

// fileEdges builds A -> B edges where A uses a predicate whose only
// definitions live in B.
func fileEdges(prog *model.Program, defFiles map[string]map[string]bool) []FileEdge {
	type pair struct{ from, to string }
	preds := make(map[pair]map[string]bool)

	for _, rule := range prog.Rules {
		for _, lit := range rule.Body {
			if lit.IsComparison() || lit.Pred == nil {
				continue
			}
			name := lit.Pred.Name
			if prog.IsBuiltinName(name) || prog.IsVirtualName(name) {
				continue
			}
			fs := defFiles[name]
			if len(fs) != 1 {
				continue
			}
			var defFile string
			for f := range fs {
				defFile = f
			}
			if defFile == rule.File {
				continue
			}
			p := pair{from: rule.File, to: defFile}
			if preds[p] == nil {
				preds[p] = make(map[string]bool)
			}
			preds[p][name] = true
		}
	}

	var pairs []pair
	for p := range preds {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].from != pairs[j].from {
			return pairs[i].from < pairs[j].from
		}
		return pairs[i].to < pairs[j].to
	})

	var edges []FileEdge
	for _, p := range pairs {
		var names []string
		for n := range preds[p] {
			names = append(names, n)
		}
		sort.Strings(names)
		edges = append(edges, FileEdge{From: p.from, To: p.to, Predicates: names})
	}
	return edges
}

// WriteDOT renders the file dependency graph in Graphviz syntax.
func (r *Result) WriteDOT() string {
	var sb strings.Builder
	sb.WriteString("digraph files {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=folder, fontname=\"monospace\"];\n")
	seen := make(map[string]bool)
	declare := func(f string) {
		if !seen[f] {
			seen[f] = true
			fmt.Fprintf(&sb, "  %q;\n", f)
		}
	}
	for _, e := range r.FileEdges {
		declare(e.From)
		declare(e.To)
	}
	for _, e := range r.FileEdges {
		fmt.Fprintf(&sb, "  %q -> %q [label=%q];\n", e.From, e.To, strings.Join(e.Predicates, "\\n"))
	}
	sb.WriteString("}\n")
	return sb.String()
}
