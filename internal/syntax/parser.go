package syntax

import (
	"fmt"
	"strconv"
	"strings"
)

// StatementKind classifies a parsed statement.
type StatementKind int

const (
	StmtDecl StatementKind = iota
	StmtRule
	StmtFact
	StmtPackage // Package or Uses line
	StmtQuery
)

// ParsedStatement is the typed form of one statement. Exactly one of the
// payload fields matching Kind is set.
type ParsedStatement struct {
	Kind    StatementKind
	Decl    *Decl
	Rule    *Rule
	Fact    *Fact
	Query   *Predicate
	Package string
}

// ParseError records a statement that could not be parsed. Parsing
// continues with the next statement; one bad statement never aborts a run.
type ParseError struct {
	File string
	Line int
	Stmt string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

// arrow tokens in precedence order; the unicode arrow is multi-byte.
var arrows = []string{":-", "<-", "⟸"}

// ParseStatement parses one delimited statement into its typed form.
func ParseStatement(st Statement, file string) (*ParsedStatement, *ParseError) {
	text := strings.TrimSpace(st.Text)
	if text == "" {
		return nil, &ParseError{File: file, Line: st.StartLine, Stmt: st.Text, Msg: "empty statement"}
	}

	fail := func(msg string) (*ParsedStatement, *ParseError) {
		return nil, &ParseError{File: file, Line: st.StartLine, Stmt: st.Text, Msg: msg}
	}

	if strings.HasSuffix(text, "!") && (strings.HasPrefix(text, "Package") || strings.HasPrefix(text, "Uses")) {
		return &ParsedStatement{Kind: StmtPackage, Package: strings.TrimSpace(strings.TrimSuffix(text, "!"))}, nil
	}

	if strings.HasPrefix(text, "Decl") && len(text) > 4 && (text[4] == ' ' || text[4] == '\t') {
		decl, err := parseDecl(text, file, st.StartLine)
		if err != "" {
			return fail(err)
		}
		return &ParsedStatement{Kind: StmtDecl, Decl: decl}, nil
	}

	body := strings.TrimSpace(strings.TrimSuffix(text, "."))

	if strings.HasPrefix(body, "?") {
		pred, err := parsePredicateCall(strings.TrimSpace(body[1:]))
		if err != "" {
			return fail(err)
		}
		return &ParsedStatement{Kind: StmtQuery, Query: &pred}, nil
	}

	if headEnd, bodyStart, ok := findArrow(body); ok {
		rule, err := parseRule(body[:headEnd], body[bodyStart:], file, st.StartLine)
		if err != "" {
			return fail(err)
		}
		return &ParsedStatement{Kind: StmtRule, Rule: rule}, nil
	}

	pred, err := parsePredicateCall(body)
	if err != "" {
		return fail(err)
	}
	return &ParsedStatement{Kind: StmtFact, Fact: &Fact{Pred: pred, File: file, Line: st.StartLine}}, nil
}

// ParseFile splits and parses a whole source text, collecting per-statement
// errors instead of stopping at the first one.
func ParseFile(file, content string) ([]*ParsedStatement, []*ParseError) {
	var stmts []*ParsedStatement
	var errs []*ParseError
	for _, st := range SplitStatements(content) {
		parsed, perr := ParseStatement(st, file)
		if perr != nil {
			errs = append(errs, perr)
			continue
		}
		stmts = append(stmts, parsed)
	}
	return stmts, errs
}

// findArrow locates the first rule arrow outside strings and brackets.
func findArrow(s string) (headEnd, bodyStart int, ok bool) {
	var quote byte
	escape := false
	depth := 0
	for i := 0; i < len(s); i++ {
		b := s[i]
		if quote != 0 {
			if escape {
				escape = false
				continue
			}
			if b == '\\' {
				escape = true
				continue
			}
			if b == quote {
				quote = 0
			}
			continue
		}
		switch b {
		case '"', '\'', '`':
			quote = b
			continue
		case '(', '[', '{':
			depth++
			continue
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth != 0 {
			continue
		}
		for _, arrow := range arrows {
			if strings.HasPrefix(s[i:], arrow) {
				// Reject <= masquerading as <-.
				if arrow == "<-" && i+2 < len(s) && s[i+2] == '=' {
					continue
				}
				return i, i + len(arrow), true
			}
		}
	}
	return 0, 0, false
}

func parseRule(headText, bodyText, file string, line int) (*Rule, string) {
	head, err := parsePredicateCall(strings.TrimSpace(headText))
	if err != "" {
		return nil, "unparseable rule head: " + err
	}

	rule := &Rule{Head: head, File: file, Line: line}

	// An aggregation pipe splits the body into literals and a transform.
	if idx := indexTopLevel(bodyText, "|>"); idx >= 0 {
		rule.Transform = strings.TrimSpace(bodyText[idx+2:])
		rule.HasAggregation = true
		bodyText = bodyText[:idx]
	}
	if containsAggregationCall(bodyText) || containsAggregationCall(rule.Transform) {
		rule.HasAggregation = true
	}

	for _, part := range splitTopLevel(bodyText, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lit, lerr := parseLiteral(part)
		if lerr != "" {
			return nil, fmt.Sprintf("unparseable body literal %q: %s", part, lerr)
		}
		rule.Body = append(rule.Body, lit)
	}
	if len(rule.Body) == 0 {
		return nil, "rule has an empty body"
	}
	return rule, ""
}

var aggregationFns = []string{
	"fn:Count", "fn:Sum", "fn:Min", "fn:Max", "fn:Avg", "fn:Collect",
	"fn:count", "fn:sum", "fn:min", "fn:max", "fn:avg", "fn:collect", "fn:group_by",
}

func containsAggregationCall(s string) bool {
	for _, fn := range aggregationFns {
		if strings.Contains(s, fn) {
			return true
		}
	}
	return false
}

var comparisonOps = []string{"<=", ">=", "!=", "==", "=", "<", ">"}

func parseLiteral(text string) (Literal, string) {
	lit := Literal{Raw: text}
	rest := text

	if strings.HasPrefix(rest, "not ") || strings.HasPrefix(rest, "not\t") {
		lit.Negated = true
		rest = strings.TrimSpace(rest[4:])
	} else if strings.HasPrefix(rest, "!") && !strings.HasPrefix(rest, "!=") {
		lit.Negated = true
		rest = strings.TrimSpace(rest[1:])
	}

	if op, l, r, ok := findComparison(rest); ok {
		left := parseTerm(strings.TrimSpace(l))
		right := parseTerm(strings.TrimSpace(r))
		lit.Cmp = &Comparison{Op: op, Left: left, Right: right}
		return lit, ""
	}

	pred, err := parsePredicateCall(rest)
	if err != "" {
		return lit, err
	}
	lit.Pred = &pred
	return lit, ""
}

// findComparison scans for a comparison operator outside strings and
// brackets. Multi-character operators win over their prefixes.
func findComparison(s string) (op, left, right string, ok bool) {
	var quote byte
	escape := false
	depth := 0
	for i := 0; i < len(s); i++ {
		b := s[i]
		if quote != 0 {
			if escape {
				escape = false
				continue
			}
			if b == '\\' {
				escape = true
				continue
			}
			if b == quote {
				quote = 0
			}
			continue
		}
		switch b {
		case '"', '\'', '`':
			quote = b
			continue
		case '(', '[', '{':
			depth++
			continue
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth != 0 {
			continue
		}
		for _, cand := range comparisonOps {
			if strings.HasPrefix(s[i:], cand) {
				return cand, s[:i], s[i+len(cand):], true
			}
		}
	}
	return "", "", "", false
}

// parsePredicateCall parses name(args). A bare identifier without
// parentheses is a zero-argument predicate.
func parsePredicateCall(s string) (Predicate, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Predicate{}, "empty predicate"
	}

	open := strings.IndexByte(s, '(')
	if open == -1 {
		if !isPredicateName(s) {
			return Predicate{}, fmt.Sprintf("invalid predicate name %q", s)
		}
		return Predicate{Name: s}, ""
	}

	name := strings.TrimSpace(s[:open])
	if !isPredicateName(name) {
		return Predicate{}, fmt.Sprintf("invalid predicate name %q", name)
	}

	closeIdx := matchingParen(s, open)
	if closeIdx == -1 {
		return Predicate{}, "unbalanced parentheses"
	}

	pred := Predicate{Name: name}
	inner := strings.TrimSpace(s[open+1 : closeIdx])
	if inner == "" {
		return pred, ""
	}
	for _, arg := range splitTopLevel(inner, ',') {
		pred.Args = append(pred.Args, parseTerm(strings.TrimSpace(arg)))
	}
	return pred, ""
}

// parseTerm classifies one argument. Unrecognized text degrades to a bare
// atom rather than failing; recovery beats rejection here.
func parseTerm(s string) Term {
	if s == "" {
		return Atom("")
	}
	switch {
	case s == "_" || s[0] == '_':
		return Wildcard()
	case s[0] == '[':
		end := matchingBracket(s, 0)
		inner := ""
		if end > 0 {
			inner = strings.TrimSpace(s[1:end])
		} else {
			inner = strings.TrimSpace(s[1:]) // unterminated list, keep what we have
		}
		var elems []Term
		if inner != "" {
			for _, part := range splitTopLevel(inner, ',') {
				elems = append(elems, parseTerm(strings.TrimSpace(part)))
			}
		}
		return List(elems...)
	case s[0] == '"' || s[0] == '\'' || s[0] == '`':
		return String(unquote(s))
	case s[0] == '/':
		return Atom(s)
	case s[0] >= 'A' && s[0] <= 'Z':
		return Variable(s)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Number(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Float(f)
	}
	return Atom(s)
}

func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	q := s[0]
	body := s[1:]
	if body[len(body)-1] == q {
		body = body[:len(body)-1]
	}
	if q == '"' {
		if u, err := strconv.Unquote(s[:1] + body + s[:1]); err == nil {
			return u
		}
	}
	return body
}

func parseDecl(text, file string, line int) (*Decl, string) {
	rest := strings.TrimSpace(text[len("Decl"):])
	open := strings.IndexByte(rest, '(')
	if open == -1 {
		name := strings.TrimSuffix(strings.TrimSpace(rest), ".")
		if !isPredicateName(name) {
			return nil, fmt.Sprintf("invalid declared predicate %q", name)
		}
		return &Decl{Name: name, File: file, Line: line}, ""
	}

	name := strings.TrimSpace(rest[:open])
	if !isPredicateName(name) {
		return nil, fmt.Sprintf("invalid declared predicate %q", name)
	}
	closeIdx := matchingParen(rest, open)
	if closeIdx == -1 {
		return nil, "unbalanced parentheses in declaration"
	}

	inner := strings.TrimSpace(rest[open+1 : closeIdx])
	arity := 0
	if inner != "" {
		arity = len(splitDeclArgs(inner))
	}
	return &Decl{Name: name, Arity: arity, File: file, Line: line}, ""
}

func isPredicateName(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	if !(c >= 'a' && c <= 'z') && c != '_' {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z') && !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') && c != '_' && c != ':' && c != '.' {
			return false
		}
	}
	return true
}

// splitTopLevel splits on sep outside strings and ()[]{} nesting.
// Angle brackets are deliberately not tracked here: '<' in a rule body is
// a comparison, not a bracket. Decl type arguments use splitDeclArgs.
func splitTopLevel(s string, sep byte) []string {
	return splitNested(s, sep, false)
}

// splitDeclArgs splits Decl arguments, additionally balancing <> so type
// expressions like Arg.Type<List<Name>> count as one argument.
func splitDeclArgs(s string) []string {
	return splitNested(s, ',', true)
}

func splitNested(s string, sep byte, trackAngles bool) []string {
	var parts []string
	var quote byte
	escape := false
	parenDepth, bracketDepth, braceDepth, angleDepth := 0, 0, 0, 0
	start := 0

	for i := 0; i < len(s); i++ {
		b := s[i]
		if quote != 0 {
			if escape {
				escape = false
				continue
			}
			if b == '\\' {
				escape = true
				continue
			}
			if b == quote {
				quote = 0
			}
			continue
		}
		switch b {
		case '"', '\'', '`':
			quote = b
		case '(':
			parenDepth++
		case ')':
			if parenDepth > 0 {
				parenDepth--
			}
		case '[':
			bracketDepth++
		case ']':
			if bracketDepth > 0 {
				bracketDepth--
			}
		case '{':
			braceDepth++
		case '}':
			if braceDepth > 0 {
				braceDepth--
			}
		case '<':
			if trackAngles {
				angleDepth++
			}
		case '>':
			if trackAngles && angleDepth > 0 {
				angleDepth--
			}
		case sep:
			if parenDepth == 0 && bracketDepth == 0 && braceDepth == 0 && angleDepth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// indexTopLevel finds a multi-byte token outside strings and brackets.
func indexTopLevel(s, token string) int {
	var quote byte
	escape := false
	depth := 0
	for i := 0; i < len(s); i++ {
		b := s[i]
		if quote != 0 {
			if escape {
				escape = false
				continue
			}
			if b == '\\' {
				escape = true
				continue
			}
			if b == quote {
				quote = 0
			}
			continue
		}
		switch b {
		case '"', '\'', '`':
			quote = b
			continue
		case '(', '[', '{':
			depth++
			continue
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth == 0 && strings.HasPrefix(s[i:], token) {
			return i
		}
	}
	return -1
}

// matchingParen returns the index of the ')' closing the '(' at open,
// or -1 when unbalanced.
func matchingParen(s string, open int) int {
	var quote byte
	escape := false
	depth := 0
	for i := open; i < len(s); i++ {
		b := s[i]
		if quote != 0 {
			if escape {
				escape = false
				continue
			}
			if b == '\\' {
				escape = true
				continue
			}
			if b == quote {
				quote = 0
			}
			continue
		}
		switch b {
		case '"', '\'', '`':
			quote = b
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// matchingBracket is matchingParen for [].
func matchingBracket(s string, open int) int {
	var quote byte
	escape := false
	depth := 0
	for i := open; i < len(s); i++ {
		b := s[i]
		if quote != 0 {
			if escape {
				escape = false
				continue
			}
			if b == '\\' {
				escape = true
				continue
			}
			if b == quote {
				quote = 0
			}
			continue
		}
		switch b {
		case '"', '\'', '`':
			quote = b
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
