package simulator

import "strings"

// printCall is one textual print(...) call found in the source.
type printCall struct {
	Line int
	Arg  string
}

// lexer walks source text tracking string literals and comments so that
// keywords and parentheses inside them are ignored.
type lexer struct {
	src  string
	pos  int
	line int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1}
}

func (l *lexer) eof() bool {
	return l.pos >= len(l.src)
}

func (l *lexer) peek() byte {
	return l.src[l.pos]
}

func (l *lexer) advance() byte {
	b := l.src[l.pos]
	l.pos++
	if b == '\n' {
		l.line++
	}
	return b
}

// skipString consumes a quoted literal starting at the opening quote.
// Triple-quoted literals may span lines; other unterminated literals run to the
// end of the line.
func (l *lexer) skipString() {
	quote := l.src[l.pos]
	if l.hasTriple(quote) {
		l.pos += 3
		for !l.eof() {
			if l.peek() == '\\' {
				l.advance()
				if !l.eof() {
					l.advance()
				}
				continue
			}
			if l.hasTriple(quote) {
				l.pos += 3
				return
			}
			l.advance()
		}
		return
	}

	l.advance()
	for !l.eof() {
		b := l.peek()
		switch {
		case b == '\\':
			l.advance()
			if !l.eof() {
				l.advance()
			}
		case b == quote:
			l.advance()
			return
		case b == '\n':
			return
		default:
			l.advance()
		}
	}
}

// hasTriple reports whether three quote bytes start at the current position.
func (l *lexer) hasTriple(quote byte) bool {
	return strings.HasPrefix(l.src[l.pos:], strings.Repeat(string(quote), 3))
}

func (l *lexer) skipComment() {
	for !l.eof() && l.peek() != '\n' {
		l.advance()
	}
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func isQuote(b byte) bool {
	return b == '"' || b == '\''
}

// readIdent consumes an identifier starting at the current position.
func (l *lexer) readIdent() string {
	start := l.pos
	for !l.eof() && isIdentByte(l.peek()) {
		l.advance()
	}
	return l.src[start:l.pos]
}

// readCallArgs consumes from just after "(" to the matching ")" at depth zero.
// ok is false when the call is never closed.
func (l *lexer) readCallArgs() (string, bool) {
	start := l.pos
	depth := 0
	for !l.eof() {
		b := l.peek()
		switch {
		case isQuote(b):
			l.skipString()
		case b == '#':
			l.skipComment()
		case b == '(':
			depth++
			l.advance()
		case b == ')':
			if depth == 0 {
				arg := l.src[start:l.pos]
				l.advance()
				return arg, true
			}
			depth--
			l.advance()
		default:
			l.advance()
		}
	}
	return "", false
}

// scanPrints returns every print(...) call outside strings and comments, in source order.
func scanPrints(src string) []printCall {
	l := newLexer(src)
	var calls []printCall
	for !l.eof() {
		b := l.peek()
		switch {
		case isQuote(b):
			l.skipString()
		case b == '#':
			l.skipComment()
		case isIdentByte(b):
			line := l.line
			ident := l.readIdent()
			if ident != "print" {
				continue
			}
			for !l.eof() && (l.peek() == ' ' || l.peek() == '\t') {
				l.advance()
			}
			if l.eof() || l.peek() != '(' {
				continue
			}
			l.advance()
			if arg, ok := l.readCallArgs(); ok {
				calls = append(calls, printCall{Line: line, Arg: arg})
			}
		default:
			l.advance()
		}
	}
	return calls
}

// logicalLine is a statement after joining bracket and backslash continuations.
type logicalLine struct {
	Line int
	Text string
}

// logicalLines splits src into logical lines with comments removed.
func logicalLines(src string) []logicalLine {
	l := newLexer(src)
	var (
		lines []logicalLine
		cur   strings.Builder
		start = 1
		depth = 0
	)
	flush := func() {
		if text := strings.TrimSpace(cur.String()); text != "" {
			lines = append(lines, logicalLine{Line: start, Text: text})
		}
		cur.Reset()
	}
	for !l.eof() {
		b := l.peek()
		switch {
		case isQuote(b):
			from := l.pos
			l.skipString()
			cur.WriteString(src[from:l.pos])
		case b == '#':
			l.skipComment()
		case b == '(' || b == '[' || b == '{':
			depth++
			cur.WriteByte(l.advance())
		case b == ')' || b == ']' || b == '}':
			if depth > 0 {
				depth--
			}
			cur.WriteByte(l.advance())
		case b == '\\' && l.pos+1 < len(src) && src[l.pos+1] == '\n':
			l.advance()
			l.advance()
			cur.WriteByte(' ')
		case b == '\n':
			l.advance()
			if depth > 0 {
				cur.WriteByte(' ')
				continue
			}
			flush()
			start = l.line
		default:
			cur.WriteByte(l.advance())
		}
	}
	flush()
	return lines
}

// leadingIdent returns the identifier that opens text, if any.
func leadingIdent(text string) string {
	i := 0
	for i < len(text) && isIdentByte(text[i]) {
		i++
	}
	return text[:i]
}

// hasBlockColon reports whether text contains a ':' outside strings and brackets.
// The walrus operator does not count.
func hasBlockColon(text string) bool {
	l := newLexer(text)
	depth := 0
	for !l.eof() {
		b := l.peek()
		switch {
		case isQuote(b):
			l.skipString()
			continue
		case b == '(' || b == '[' || b == '{':
			depth++
		case b == ')' || b == ']' || b == '}':
			if depth > 0 {
				depth--
			}
		case b == ':' && depth == 0:
			if l.pos+1 >= len(text) || text[l.pos+1] != '=' {
				return true
			}
		}
		l.advance()
	}
	return false
}

// unquote strips one layer of matching quotes from a trimmed argument and decodes
// the escapes \\ \' \" \n \t. Arguments that are not a single literal are returned as is.
func unquote(arg string) string {
	arg = strings.TrimSpace(arg)
	if len(arg) < 2 || !isQuote(arg[0]) || arg[len(arg)-1] != arg[0] {
		return arg
	}
	quote := arg[0]
	if triple := strings.Repeat(string(quote), 3); len(arg) >= 6 && strings.HasPrefix(arg, triple) && strings.HasSuffix(arg, triple) {
		// Triple-quoted text is taken verbatim.
		return arg[3 : len(arg)-3]
	}
	body := arg[1 : len(arg)-1]

	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == quote {
			// Another unescaped quote means this is not a single literal, e.g. 'a' + 'b'.
			return arg
		}
		if c != '\\' || i+1 >= len(body) {
			b.WriteByte(c)
			continue
		}
		i++
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case '\\', '\'', '"':
			b.WriteByte(body[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(body[i])
		}
	}
	return b.String()
}
