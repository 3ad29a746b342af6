package querydef

// parser turns tokens into relir expressions. Grammar, lowest precedence
// first:
//
//	selection := name "." "*" | name "=" expr | expr
//	expr      := and ("or" and)*
//	and       := not ("and" not)*
//	not       := "not" not | compare
//	compare   := sum (("==" | "!=" | "<" | "<=" | ">" | ">=") sum)?
//	sum       := product (("+" | "-") product)*
//	product   := unary ("*" unary)*
//	unary     := "-" unary | primary
//	primary   := number | string | true | false | null
//	           | name "(" expr ")" | name ("." name)? | "(" expr ")"
//
// A qualified name q.c is a left or right operand column when q is "left"
// or "right", and a column of the step or table q otherwise.

import (
	"fmt"
	"strconv"

	"github.com/roach88/relplan/internal/relir"
)

const (
	tokenErr = "unexpected %s at offset %d"
	identErr = "expected identifier but got %s at offset %d"
)

// Scope maps step and table names to relations for qualified references.
type Scope map[string]relir.Relation

var functions = map[string]func(relir.Expr) relir.Expr{
	"length": func(e relir.Expr) relir.Expr { return relir.Length(e) },
	"isnull": func(e relir.Expr) relir.Expr { return relir.IsNull(e) },
}

var comparisons = map[string]func(l, r relir.Expr) relir.Expr{
	"==": func(l, r relir.Expr) relir.Expr { return relir.Eq(l, r) },
	"!=": func(l, r relir.Expr) relir.Expr { return relir.Ne(l, r) },
	"<":  func(l, r relir.Expr) relir.Expr { return relir.Lt(l, r) },
	"<=": func(l, r relir.Expr) relir.Expr { return relir.Le(l, r) },
	">":  func(l, r relir.Expr) relir.Expr { return relir.Gt(l, r) },
	">=": func(l, r relir.Expr) relir.Expr { return relir.Ge(l, r) },
}

type parser struct {
	tokens []token
	pos    int
	scope  Scope
}

func newParser(src string, scope Scope) (*parser, error) {
	tokens, err := newLexer(src).lex()
	if err != nil {
		return nil, err
	}
	return &parser{tokens: tokens, scope: scope}, nil
}

// ParseExpr parses a scalar expression such as
// "left.key == right.key and length(key2) > 1".
func ParseExpr(src string, scope Scope) (relir.Expr, error) {
	p, err := newParser(src, scope)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", src, err)
	}
	e, err := p.parseOr()
	if err == nil {
		err = p.expectEOF()
	}
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", src, err)
	}
	return e, nil
}

// ParseSelection parses one projection item: "step.*" for every column of
// a relation, "name = expr" for a named expression, or a bare expression.
func ParseSelection(src string, scope Scope) (relir.Selection, error) {
	p, err := newParser(src, scope)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", src, err)
	}
	sel, err := p.parseSelection()
	if err == nil {
		err = p.expectEOF()
	}
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", src, err)
	}
	return sel, nil
}

func (p *parser) parseSelection() (relir.Selection, error) {
	first, second := p.peek(0), p.peek(1)
	if first.tokenType == tkIdentifier && second.value == "." && p.peek(2).value == "*" {
		rel, ok := p.scope[first.value]
		if !ok {
			return nil, fmt.Errorf("unknown relation %q", first.value)
		}
		p.pos += 3
		return rel, nil
	}
	if first.tokenType == tkIdentifier && second.tokenType == tkOperator && second.value == "=" {
		p.pos += 2
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		return relir.As(e, first.value), nil
	}
	return p.parseOr()
}

func (p *parser) parseOr() (relir.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = relir.Or(left, right)
	}
	return left, nil
}

func (p *parser) parseAnd() (relir.Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("and") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = relir.And(left, right)
	}
	return left, nil
}

func (p *parser) parseNot() (relir.Expr, error) {
	if p.acceptKeyword("not") {
		e, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return relir.Not(e), nil
	}
	return p.parseCompare()
}

func (p *parser) parseCompare() (relir.Expr, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	t := p.peek(0)
	build, ok := comparisons[t.value]
	if t.tokenType != tkOperator || !ok {
		return left, nil
	}
	p.pos++
	right, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	return build(left, right), nil
}

func (p *parser) parseSum() (relir.Expr, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek(0)
		if t.tokenType != tkOperator || (t.value != "+" && t.value != "-") {
			return left, nil
		}
		p.pos++
		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}
		if t.value == "+" {
			left = relir.Add(left, right)
		} else {
			left = relir.Sub(left, right)
		}
	}
}

func (p *parser) parseProduct() (relir.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek(0).tokenType == tkOperator && p.peek(0).value == "*" {
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = relir.Mul(left, right)
	}
	return left, nil
}

func (p *parser) parseUnary() (relir.Expr, error) {
	t := p.peek(0)
	if t.tokenType == tkOperator && t.value == "-" {
		p.pos++
		if n := p.peek(0); n.tokenType == tkNumeric {
			p.pos++
			return parseInt("-"+n.value, n.pos)
		}
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return relir.Sub(relir.Lit(0), e), nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (relir.Expr, error) {
	t := p.next()
	switch t.tokenType {
	case tkNumeric:
		return parseInt(t.value, t.pos)
	case tkLiteral:
		return relir.Lit(t.value), nil
	case tkKeyword:
		switch t.value {
		case "true":
			return relir.Lit(true), nil
		case "false":
			return relir.Lit(false), nil
		case "null":
			return relir.Null(), nil
		}
	case tkSeparator:
		if t.value == "(" {
			e, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return e, nil
		}
	case tkIdentifier:
		return p.parseName(t)
	}
	return nil, fmt.Errorf(tokenErr, describe(t), t.pos)
}

// parseName handles function calls and column references after name.
func (p *parser) parseName(name token) (relir.Expr, error) {
	switch p.peek(0).value {
	case "(":
		fn, ok := functions[name.value]
		if !ok {
			return nil, fmt.Errorf("unknown function %q at offset %d", name.value, name.pos)
		}
		p.pos++
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return fn(arg), nil
	case ".":
		p.pos++
		col := p.next()
		if col.tokenType != tkIdentifier {
			return nil, fmt.Errorf(identErr, describe(col), col.pos)
		}
		switch name.value {
		case "left":
			return relir.LeftCol(col.value), nil
		case "right":
			return relir.RightCol(col.value), nil
		}
		rel, ok := p.scope[name.value]
		if !ok {
			return nil, fmt.Errorf("unknown relation %q at offset %d", name.value, name.pos)
		}
		return rel.Col(col.value), nil
	}
	return relir.Col(name.value), nil
}

func parseInt(s string, pos int) (relir.Expr, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad integer %q at offset %d: %w", s, pos, err)
	}
	return relir.Lit(n), nil
}

func (p *parser) peek(ahead int) token {
	i := p.pos + ahead
	if i >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[i]
}

func (p *parser) next() token {
	t := p.peek(0)
	if t.tokenType != tkEOF {
		p.pos++
	}
	return t
}

func (p *parser) acceptKeyword(kw string) bool {
	if t := p.peek(0); t.tokenType == tkKeyword && t.value == kw {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(value string) error {
	t := p.next()
	if t.value != value || t.tokenType == tkLiteral {
		return fmt.Errorf("expected %q but got %s at offset %d", value, describe(t), t.pos)
	}
	return nil
}

func (p *parser) expectEOF() error {
	if t := p.peek(0); t.tokenType != tkEOF {
		return fmt.Errorf(tokenErr, describe(t), t.pos)
	}
	return nil
}

func describe(t token) string {
	switch t.tokenType {
	case tkEOF:
		return "end of input"
	case tkLiteral:
		return strconv.Quote(t.value)
	}
	return fmt.Sprintf("%q", t.value)
}
