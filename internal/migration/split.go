package migration

import "strings"

// Split breaks a SQL script into individual statements.
//
// A ';' terminates a statement only outside quoted strings, comments and
// parentheses. Quotes close only on the character that opened them, so
// 'a"b' and "it's" are single literals. "--" line comments and /* */ block
// comments are dropped; a block comment leaves a single space behind.
// Statements are trimmed; empty ones are discarded.
func Split(sql string) []string {
	var (
		out     []string
		buf     strings.Builder
		quote   rune
		depth   int
		inLine  bool
		inBlock bool
	)

	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			out = append(out, s)
		}
		buf.Reset()
	}

	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch {
		case inLine:
			if c == '\n' {
				inLine = false
				buf.WriteRune(c)
			}
			continue
		case inBlock:
			if c == '*' && next == '/' {
				inBlock = false
				i++
				buf.WriteRune(' ')
			}
			continue
		case quote != 0:
			buf.WriteRune(c)
			if c == quote {
				quote = 0
			}
			continue
		}

		switch c {
		case '\'', '"', '`':
			quote = c
			buf.WriteRune(c)
		case '-':
			if next == '-' {
				inLine = true
				i++
				continue
			}
			buf.WriteRune(c)
		case '/':
			if next == '*' {
				inBlock = true
				i++
				continue
			}
			buf.WriteRune(c)
		case '(':
			depth++
			buf.WriteRune(c)
		case ')':
			if depth > 0 {
				depth--
			}
			buf.WriteRune(c)
		case ';':
			if depth == 0 {
				flush()
				continue
			}
			buf.WriteRune(c)
		default:
			buf.WriteRune(c)
		}
	}
	flush()

	return out
}
