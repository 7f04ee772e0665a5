package model

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"manglint/internal/syntax"
)

// PredicateInfo is the per-predicate record of the program model. One
// exists per distinct predicate name; it is mutated while files load and
// is read-only once analysis starts.
type PredicateInfo struct {
	Name      string
	Arity     int // first-seen arity
	IsEDB     bool
	IsIDB     bool
	IsVirtual bool
	IsBuiltin bool
	DefinedAt []Location
	UsedAt    []Location
	Stratum   int // -1 until stratification assigns one
}

type arityOccurrence struct {
	arity int
	loc   Location
}

// DefaultBuiltins is the baseline built-in predicate set. Callers extend
// it through WithBuiltinPredicates; it is configuration, not a compiled-in
// global the analyses hard-code against.
var DefaultBuiltins = []string{
	"lt", "le", "gt", "ge", "eq", "ne",
	"match_pair", "match_cons", "match_nil", "match_entry", "match_field",
	"starts_with", "ends_with", "contains", "within_distance", "filter", "list_member",
}

// FileError records a file that could not be read. The file is excluded
// from the aggregate model; nothing else about the run is affected.
type FileError struct {
	File string
	Err  error
}

func (e FileError) Error() string { return fmt.Sprintf("%s: %v", e.File, e.Err) }

// Program is the shared, cross-file index all analyses read.
type Program struct {
	Predicates map[string]*PredicateInfo
	Rules      []syntax.Rule
	Facts      []syntax.Fact
	Decls      []syntax.Decl
	Packages   []string
	Issues     []Issue
	Files      []string
	FatalFiles []FileError

	order      []string // predicate names in first-seen order
	arities    map[string][]arityOccurrence
	virtual    map[string]bool
	builtin    map[string]bool
	factsByKey map[string][]syntax.Fact
	rulesByKey map[string][]syntax.Rule
	log        *zap.Logger
}

// Option configures a Program at construction time.
type Option func(*Program)

// WithVirtualPredicates marks predicate names whose truth is computed
// externally; they are exempt from missing/undefined/unused checks.
func WithVirtualPredicates(names ...string) Option {
	return func(p *Program) {
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				p.virtual[n] = true
			}
		}
	}
}

// WithBuiltinPredicates extends the built-in predicate set.
func WithBuiltinPredicates(names ...string) Option {
	return func(p *Program) {
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				p.builtin[n] = true
			}
		}
	}
}

// WithLogger attaches a logger; the model is silent without one.
func WithLogger(log *zap.Logger) Option {
	return func(p *Program) {
		if log != nil {
			p.log = log
		}
	}
}

// NewProgram creates an empty program model.
func NewProgram(opts ...Option) *Program {
	p := &Program{
		Predicates: make(map[string]*PredicateInfo),
		arities:    make(map[string][]arityOccurrence),
		virtual:    make(map[string]bool),
		builtin:    make(map[string]bool),
		factsByKey: make(map[string][]syntax.Fact),
		rulesByKey: make(map[string][]syntax.Rule),
		log:        zap.NewNop(),
	}
	for _, b := range DefaultBuiltins {
		p.builtin[b] = true
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LoadFile reads and loads one source file. An unreadable file is
// recorded as a fatal file error and excluded from the model.
func (p *Program) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		p.FatalFiles = append(p.FatalFiles, FileError{File: path, Err: err})
		p.log.Warn("skipping unreadable file", zap.String("file", path), zap.Error(err))
		return fmt.Errorf("read %s: %w", path, err)
	}
	p.LoadSource(path, string(data))
	return nil
}

// LoadFiles loads every readable file; unreadable ones are collected in
// FatalFiles rather than aborting the whole run.
func (p *Program) LoadFiles(paths []string) {
	for _, path := range paths {
		_ = p.LoadFile(path)
	}
}

// LoadSource parses one file's text into the model. Parse errors become
// Issues; parsing continues with the next statement.
func (p *Program) LoadSource(file, content string) {
	p.Files = append(p.Files, file)
	stmts, perrs := syntax.ParseFile(file, content)
	for _, perr := range perrs {
		p.Issues = append(p.Issues, Issue{
			Category: CategoryParse,
			Severity: SeverityError,
			Location: Location{File: perr.File, Line: perr.Line},
			Message:  perr.Msg,
		})
	}

	for _, st := range stmts {
		switch st.Kind {
		case syntax.StmtDecl:
			p.Decls = append(p.Decls, *st.Decl)
			loc := Location{File: file, Line: st.Decl.Line}
			p.register(st.Decl.Name, st.Decl.Arity, loc, roleDecl)
		case syntax.StmtFact:
			p.addFact(*st.Fact)
		case syntax.StmtRule:
			p.addRule(*st.Rule)
		case syntax.StmtPackage:
			p.Packages = append(p.Packages, st.Package)
		case syntax.StmtQuery:
			loc := Location{File: file, Line: 0}
			p.registerUse(st.Query.Name, st.Query.Arity(), loc)
		}
	}
	p.log.Debug("loaded source",
		zap.String("file", file),
		zap.Int("statements", len(stmts)),
		zap.Int("parse_errors", len(perrs)))
}

func (p *Program) addFact(f syntax.Fact) {
	loc := Location{File: f.File, Line: f.Line}
	if !f.Pred.IsGround() {
		p.Issues = append(p.Issues, Issue{
			Category:  CategoryRange,
			Severity:  SeverityError,
			Location:  loc,
			Predicate: f.Pred.Name,
			Message:   fmt.Sprintf("fact %s contains variables; facts must be ground", f.Pred.String()),
		})
		return
	}
	p.Facts = append(p.Facts, f)
	key := predKey(f.Pred.Name, f.Pred.Arity())
	p.factsByKey[key] = append(p.factsByKey[key], f)
	p.register(f.Pred.Name, f.Pred.Arity(), loc, roleFact)
}

func (p *Program) addRule(r syntax.Rule) {
	loc := Location{File: r.File, Line: r.Line}
	p.Rules = append(p.Rules, r)
	key := predKey(r.Head.Name, r.Head.Arity())
	p.rulesByKey[key] = append(p.rulesByKey[key], r)
	p.register(r.Head.Name, r.Head.Arity(), loc, roleRuleHead)

	// Range restriction: every head variable must occur in a non-negated
	// body literal.
	bound := make(map[string]bool)
	for _, lit := range r.Body {
		if lit.Negated {
			continue
		}
		for _, v := range lit.Variables() {
			bound[v] = true
		}
	}
	for _, v := range r.Head.Variables() {
		if !bound[v] {
			p.Issues = append(p.Issues, Issue{
				Category:  CategoryRange,
				Severity:  SeverityError,
				Location:  loc,
				Predicate: r.Head.Name,
				Message:   fmt.Sprintf("head variable %s of %s does not occur in any non-negated body literal", v, r.Head.Name),
			})
		}
	}

	for _, lit := range r.Body {
		if lit.IsComparison() || lit.Pred == nil {
			continue
		}
		p.registerUse(lit.Pred.Name, lit.Pred.Arity(), loc)
	}
}

type role int

const (
	roleDecl role = iota
	roleFact
	roleRuleHead
	roleUse
)

func (p *Program) register(name string, arity int, loc Location, r role) {
	info := p.ensure(name, arity)
	p.arities[name] = append(p.arities[name], arityOccurrence{arity: arity, loc: loc})

	switch r {
	case roleDecl, roleFact:
		info.IsEDB = true
		info.DefinedAt = append(info.DefinedAt, loc)
	case roleRuleHead:
		info.IsIDB = true
		info.DefinedAt = append(info.DefinedAt, loc)
	case roleUse:
		info.UsedAt = append(info.UsedAt, loc)
	}
}

func (p *Program) registerUse(name string, arity int, loc Location) {
	p.register(name, arity, loc, roleUse)
}

func (p *Program) ensure(name string, arity int) *PredicateInfo {
	if info, ok := p.Predicates[name]; ok {
		return info
	}
	info := &PredicateInfo{
		Name:      name,
		Arity:     arity,
		IsVirtual: p.virtual[name],
		IsBuiltin: p.IsBuiltinName(name),
		Stratum:   -1,
	}
	p.Predicates[name] = info
	p.order = append(p.order, name)
	return info
}

// Finalize emits model-level issues that need the whole file set: arity
// conflicts citing every conflicting location. Call once after loading.
func (p *Program) Finalize() {
	for _, name := range p.order {
		occs := p.arities[name]
		first := p.Predicates[name].Arity
		conflict := false
		for _, occ := range occs {
			if occ.arity != first {
				conflict = true
				break
			}
		}
		if !conflict {
			continue
		}
		locs := make([]Location, 0, len(occs))
		arities := make(map[int]bool)
		for _, occ := range occs {
			locs = append(locs, occ.loc)
			arities[occ.arity] = true
		}
		var seen []int
		for a := range arities {
			seen = append(seen, a)
		}
		sort.Ints(seen)
		p.Issues = append(p.Issues, Issue{
			Category:  CategoryArity,
			Severity:  SeverityError,
			Location:  locs[0],
			Related:   locs[1:],
			Predicate: name,
			Message:   fmt.Sprintf("predicate %s used with conflicting arities %v", name, seen),
			Suggestion: fmt.Sprintf("pick one arity for %s and update every declaration, definition and use", name),
		})
	}
}

// IsBuiltinName reports whether a name belongs to the built-in set.
// Namespaced calls (fn:..., and anything else carrying a colon) are
// builtins by construction.
func (p *Program) IsBuiltinName(name string) bool {
	if p.builtin[name] {
		return true
	}
	return strings.Contains(name, ":")
}

// IsVirtualName reports whether a name is in the caller-supplied
// virtual/ignore set.
func (p *Program) IsVirtualName(name string) bool { return p.virtual[name] }

// PredicateNames returns predicate names in first-seen order.
func (p *Program) PredicateNames() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Info returns the record for a predicate name, or nil.
func (p *Program) Info(name string) *PredicateInfo { return p.Predicates[name] }

// RulesFor returns the rules whose head matches name/arity, in
// declaration order.
func (p *Program) RulesFor(name string, arity int) []syntax.Rule {
	return p.rulesByKey[predKey(name, arity)]
}

// FactsFor returns the ground facts matching name/arity.
func (p *Program) FactsFor(name string, arity int) []syntax.Fact {
	return p.factsByKey[predKey(name, arity)]
}

// ApplyStrata copies computed stratum numbers onto the predicate records.
func (p *Program) ApplyStrata(strata map[string]int) {
	for name, s := range strata {
		if info, ok := p.Predicates[name]; ok {
			info.Stratum = s
		}
	}
}

func predKey(name string, arity int) string { return fmt.Sprintf("%s/%d", name, arity) }
