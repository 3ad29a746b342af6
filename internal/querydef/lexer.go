package querydef

// lexer turns an expression string into tokens for the parser.

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenType int

type token struct {
	tokenType tokenType
	value     string
	pos       int
}

const (
	// tkKeyword is a reserved word: and, or, not, true, false, null.
	tkKeyword tokenType = iota + 1
	// tkIdentifier is a column, step or function name.
	tkIdentifier
	// tkNumeric is an integer such as 3.
	tkNumeric
	// tkLiteral is a quoted string; value holds the unquoted text.
	tkLiteral
	// tkOperator is a comparison, arithmetic or assignment symbol.
	tkOperator
	// tkSeparator is "(", ")", "," or ".".
	tkSeparator
	// tkEOF is the end of input.
	tkEOF
)

var keywords = []string{"and", "or", "not", "true", "false", "null"}

// twoCharOps must be checked before their one-character prefixes.
var twoCharOps = []string{"==", "!=", "<=", ">="}

type lexer struct {
	src   string
	start int
	end   int
}

func newLexer(src string) *lexer {
	return &lexer{src: src}
}

// lex returns every token followed by a tkEOF token.
func (l *lexer) lex() ([]token, error) {
	var out []token
	for {
		t, err := l.getToken()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		if t.tokenType == tkEOF {
			return out, nil
		}
	}
}

func (l *lexer) getToken() (token, error) {
	for unicode.IsSpace(l.peek(l.end)) {
		l.end++
	}
	l.start = l.end
	r := l.peek(l.start)
	switch {
	case r == 0:
		return token{tokenType: tkEOF, pos: l.start}, nil
	case r == '_' || unicode.IsLetter(r):
		return l.scanWord(), nil
	case unicode.IsDigit(r):
		return l.scanDigit(), nil
	case r == '\'' || r == '"':
		return l.scanLiteral(r)
	case strings.ContainsRune("(),.", r):
		l.end++
		return l.emit(tkSeparator), nil
	}
	for _, op := range twoCharOps {
		if strings.HasPrefix(l.src[l.start:], op) {
			l.end += len(op)
			return l.emit(tkOperator), nil
		}
	}
	if strings.ContainsRune("=<>+-*", r) {
		l.end++
		return l.emit(tkOperator), nil
	}
	return token{}, fmt.Errorf("unexpected character %q at offset %d", r, l.start)
}

func (l *lexer) peek(pos int) rune {
	r, _ := l.peekSized(pos)
	return r
}

// peekSized returns the rune at pos and its width in bytes.
func (l *lexer) peekSized(pos int) (rune, int) {
	if len(l.src) <= pos {
		return 0, 0
	}
	return utf8.DecodeRuneInString(l.src[pos:])
}

func (l *lexer) emit(tt tokenType) token {
	return token{tokenType: tt, value: l.src[l.start:l.end], pos: l.start}
}

func (l *lexer) scanWord() token {
	for {
		r, size := l.peekSized(l.end)
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		l.end += size
	}
	t := l.emit(tkIdentifier)
	if lw := strings.ToLower(t.value); slices.Contains(keywords, lw) {
		t.tokenType = tkKeyword
		t.value = lw
	}
	return t
}

func (l *lexer) scanDigit() token {
	for unicode.IsDigit(l.peek(l.end)) {
		l.end++
	}
	return l.emit(tkNumeric)
}

// scanLiteral reads a string quoted with q. A doubled quote inside the
// string stands for one quote character.
func (l *lexer) scanLiteral(q rune) (token, error) {
	var sb strings.Builder
	l.end++
	for {
		r, size := l.peekSized(l.end)
		switch {
		case size == 0:
			return token{}, fmt.Errorf("unterminated string starting at offset %d", l.start)
		case r == q && l.peek(l.end+1) == q:
			sb.WriteRune(q)
			l.end += 2
		case r == q:
			l.end++
			return token{tokenType: tkLiteral, value: sb.String(), pos: l.start}, nil
		default:
			sb.WriteString(l.src[l.end : l.end+size])
			l.end += size
		}
	}
}
