package structparse

import (
	"fmt"
	"io"
	"strings"
)

// CDB documents are lists of `Name = value` entries. A value is a bare word,
// a quoted string or a brace block: a block of entries is a sub node, a block
// of values a vector and a block of blocks a matrix.
//
//	Sampling = 1000
//	Label = "main loop"
//	Gains = { 1.5 2 2.5 }
//	Table = { { 1 2 } { 3 4 } }
//	Motor = { Id = 3 Enabled = true }
//
// Lines starting with # or // are comments.

type tokenType uint8

const (
	tokenEOF tokenType = iota
	tokenWord
	tokenString
	tokenEq
	tokenLBrace
	tokenRBrace
)

func (t tokenType) String() string {
	switch t {
	case tokenEOF:
		return "end of input"
	case tokenWord:
		return "word"
	case tokenString:
		return "string"
	case tokenEq:
		return "="
	case tokenLBrace:
		return "{"
	case tokenRBrace:
		return "}"
	}
	return "unknown"
}

// Position is a 1-based line and column.
type Position struct {
	Line int
	Col  int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// ParseError reports a CDB syntax error.
type ParseError struct {
	Message string
	Pos     Position
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cdb: %s at %s", e.Message, e.Pos)
}

type cdbToken struct {
	typ  tokenType
	text string
	pos  Position
}

type lexer struct {
	input string
	pos   int
	line  int
	col   int
}

func (l *lexer) advance() byte {
	c := l.input[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == ',' || c == ';':
			l.advance()
		case c == '#' || strings.HasPrefix(l.input[l.pos:], "//"):
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', ',', ';', '=', '{', '}', '"':
		return true
	}
	return false
}

func (l *lexer) next() (cdbToken, error) {
	l.skipSpaceAndComments()
	pos := Position{Line: l.line, Col: l.col}
	if l.pos >= len(l.input) {
		return cdbToken{typ: tokenEOF, pos: pos}, nil
	}
	switch l.input[l.pos] {
	case '=':
		l.advance()
		return cdbToken{typ: tokenEq, text: "=", pos: pos}, nil
	case '{':
		l.advance()
		return cdbToken{typ: tokenLBrace, text: "{", pos: pos}, nil
	case '}':
		l.advance()
		return cdbToken{typ: tokenRBrace, text: "}", pos: pos}, nil
	case '"':
		return l.quoted(pos)
	}
	start := l.pos
	for l.pos < len(l.input) && !isDelimiter(l.input[l.pos]) {
		l.advance()
	}
	return cdbToken{typ: tokenWord, text: l.input[start:l.pos], pos: pos}, nil
}

func (l *lexer) quoted(pos Position) (cdbToken, error) {
	l.advance()
	var sb strings.Builder
	for {
		if l.pos >= len(l.input) {
			return cdbToken{}, &ParseError{Message: "unterminated string", Pos: pos}
		}
		c := l.advance()
		switch c {
		case '"':
			return cdbToken{typ: tokenString, text: sb.String(), pos: pos}, nil
		case '\\':
			if l.pos >= len(l.input) {
				return cdbToken{}, &ParseError{Message: "unterminated string", Pos: pos}
			}
			switch e := l.advance(); e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			default:
				sb.WriteByte(e)
			}
		default:
			sb.WriteByte(c)
		}
	}
}

func tokenize(input string) ([]cdbToken, error) {
	l := &lexer{input: input, line: 1, col: 1}
	var out []cdbToken
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.typ == tokenEOF {
			return out, nil
		}
	}
}

type cdbParser struct {
	tokens []cdbToken
	pos    int
}

func (p *cdbParser) peek(ahead int) cdbToken {
	if i := p.pos + ahead; i < len(p.tokens) {
		return p.tokens[i]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *cdbParser) take() cdbToken {
	tok := p.peek(0)
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *cdbParser) errorf(tok cdbToken, format string, args ...any) error {
	return &ParseError{Message: fmt.Sprintf(format, args...), Pos: tok.pos}
}

func readCDB(r io.Reader) (*value, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	tokens, err := tokenize(string(raw))
	if err != nil {
		return nil, err
	}
	p := &cdbParser{tokens: tokens}
	root := &value{kind: kindObject}
	if err := p.entries(root, tokenEOF, 0); err != nil {
		return nil, err
	}
	return root, nil
}

func (p *cdbParser) entries(obj *value, closing tokenType, depth int) error {
	for {
		tok := p.peek(0)
		if tok.typ == closing {
			p.take()
			return nil
		}
		if tok.typ != tokenWord && tok.typ != tokenString {
			return p.errorf(tok, "expected a name, got %s", tok.typ)
		}
		p.take()
		if eq := p.take(); eq.typ != tokenEq {
			return p.errorf(eq, "expected = after %q", tok.text)
		}
		item, err := p.value(depth + 1)
		if err != nil {
			return err
		}
		item.name = tok.text
		obj.items = append(obj.items, item)
	}
}

func (p *cdbParser) value(depth int) (*value, error) {
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	tok := p.take()
	switch tok.typ {
	case tokenWord:
		return scalar(tok.text, false), nil
	case tokenString:
		return scalar(tok.text, true), nil
	case tokenLBrace:
	default:
		return nil, p.errorf(tok, "expected a value, got %s", tok.typ)
	}
	first, second := p.peek(0), p.peek(1)
	if (first.typ == tokenWord || first.typ == tokenString) && second.typ == tokenEq {
		obj := &value{kind: kindObject}
		return obj, p.entries(obj, tokenRBrace, depth)
	}
	list := &value{kind: kindList}
	for {
		tok := p.peek(0)
		switch tok.typ {
		case tokenRBrace:
			p.take()
			return list, nil
		case tokenEOF:
			return nil, p.errorf(tok, "unterminated block")
		}
		item, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		list.items = append(list.items, item)
	}
}
