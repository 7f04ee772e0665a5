package syntax

import "strings"

// Statement is one delimited logical statement with its source span.
type Statement struct {
	Text      string
	StartLine int
	EndLine   int
}

// SplitStatements turns raw Mangle source into delimited statements.
// It strips #-to-EOL comments, tracks string literals (double, single and
// backtick quoted) and bracket depth so a period inside a string or a
// nested call never ends a statement. Package/Uses lines terminated by
// '!' are emitted as their own statements. An unterminated trailing
// statement at EOF is still emitted; recovery is the parser's problem.
func SplitStatements(content string) []Statement {
	var out []Statement

	parenDepth := 0
	bracketDepth := 0
	braceDepth := 0

	var quote byte // 0 when outside a string literal
	escape := false
	inComment := false

	line := 1
	stmtStartIdx := -1
	stmtStartLine := 1
	lookingForStart := true

	emit := func(end int) {
		stmt := strings.TrimSpace(content[stmtStartIdx:end])
		if stmt != "" {
			out = append(out, Statement{Text: stmt, StartLine: stmtStartLine, EndLine: line})
		}
		lookingForStart = true
		stmtStartIdx = -1
	}

	for i := 0; i < len(content); i++ {
		b := content[i]

		if b == '\n' {
			line++
			inComment = false
			escape = false
		}

		if inComment {
			continue
		}

		if lookingForStart {
			if !isSpaceByte(b) && b != '#' {
				stmtStartIdx = i
				stmtStartLine = line
				lookingForStart = false
			}
		}

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
		case '#':
			inComment = true
			continue
		case '"', '\'', '`':
			quote = b
			continue
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
		case '!':
			// Only Package/Uses lines end with '!'; a '!' anywhere else is
			// negation and never terminates a statement.
			if lookingForStart || parenDepth != 0 || bracketDepth != 0 || braceDepth != 0 {
				continue
			}
			head := strings.TrimSpace(content[stmtStartIdx:i])
			if strings.HasPrefix(head, "Package") || strings.HasPrefix(head, "Uses") {
				emit(i + 1)
			}
		case '.':
			if lookingForStart {
				continue
			}
			if parenDepth != 0 || bracketDepth != 0 || braceDepth != 0 {
				continue
			}

			// Decimal points in numbers like 3.14 are not terminators.
			prevIsDigit := i > 0 && isDigitByte(content[i-1])
			nextIsDigit := i+1 < len(content) && isDigitByte(content[i+1])
			if prevIsDigit && nextIsDigit {
				continue
			}

			emit(i + 1)
		}
	}

	// Lenient recovery: whatever is left at EOF is still a statement.
	if !lookingForStart && stmtStartIdx >= 0 {
		stmt := strings.TrimSpace(content[stmtStartIdx:])
		if stmt != "" {
			out = append(out, Statement{Text: stmt, StartLine: stmtStartLine, EndLine: line})
		}
	}

	return out
}

func isSpaceByte(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r':
		return true
	default:
		return false
	}
}

func isDigitByte(b byte) bool { return b >= '0' && b <= '9' }
