package formula

import (
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenNumber
	tokenIdent
	tokenOp
	tokenLParen
	tokenRParen
	tokenComma
)

type token struct {
	kind tokenKind
	text string
}

// parser holds the token stream and a cursor. The grammar, lowest to
// highest precedence:
//
//	conditional := comparison ( "if" comparison "else" conditional )?
//	comparison  := sum ( ("<"|"<="|">"|">="|"=="|"!=") sum )?
//	sum         := product ( ("+"|"-") product )*
//	product     := unary ( ("*"|"/"|"%") unary )*
//	unary       := "-" unary | primary
//	primary     := NUMBER | IDENT | IDENT "(" args ")" | "(" conditional ")"
type parser struct {
	src    string
	tokens []token
	pos    int
}

func (p *parser) lex() error {
	src := p.src
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= '0' && c <= '9' || c == '.':
			j := i
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.') {
				j++
			}
			if _, err := strconv.ParseFloat(src[i:j], 64); err != nil {
				return errorf(p.src, "bad number %q", src[i:j])
			}
			p.tokens = append(p.tokens, token{tokenNumber, src[i:j]})
			i = j
		case isIdentStart(rune(c)):
			j := i
			for j < len(src) && isIdentPart(rune(src[j])) {
				j++
			}
			p.tokens = append(p.tokens, token{tokenIdent, src[i:j]})
			i = j
		case c == '(':
			p.tokens = append(p.tokens, token{tokenLParen, "("})
			i++
		case c == ')':
			p.tokens = append(p.tokens, token{tokenRParen, ")"})
			i++
		case c == ',':
			p.tokens = append(p.tokens, token{tokenComma, ","})
			i++
		case strings.ContainsRune("+-*/%", rune(c)):
			p.tokens = append(p.tokens, token{tokenOp, string(c)})
			i++
		case c == '<' || c == '>':
			op := string(c)
			if i+1 < len(src) && src[i+1] == '=' {
				op += "="
				i++
			}
			p.tokens = append(p.tokens, token{tokenOp, op})
			i++
		case c == '=' || c == '!':
			if i+1 >= len(src) || src[i+1] != '=' {
				return errorf(p.src, "unexpected character %q", string(c))
			}
			p.tokens = append(p.tokens, token{tokenOp, string(c) + "="})
			i += 2
		default:
			return errorf(p.src, "unexpected character %q", string(c))
		}
	}
	p.tokens = append(p.tokens, token{tokenEOF, ""})
	return nil
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokenEOF {
		p.pos++
	}
	return t
}

func (p *parser) acceptIdent(word string) bool {
	if p.peek().kind == tokenIdent && p.peek().text == word {
		p.next()
		return true
	}
	return false
}

func (p *parser) acceptOp(ops ...string) (string, bool) {
	if p.peek().kind != tokenOp {
		return "", false
	}
	for _, op := range ops {
		if p.peek().text == op {
			p.next()
			return op, true
		}
	}
	return "", false
}

func (p *parser) parseConditional() (node, error) {
	value, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if !p.acceptIdent("if") {
		return value, nil
	}
	cond, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if !p.acceptIdent("else") {
		return nil, errorf(p.src, "conditional is missing else")
	}
	alt, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	return condNode{value: value, cond: cond, alt: alt}, nil
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	if op, ok := p.acceptOp("<=", ">=", "==", "!=", "<", ">"); ok {
		right, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		return binaryNode{op: op, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseSum() (node, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("+", "-")
		if !ok {
			return left, nil
		}
		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseProduct() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("*", "/", "%")
		if !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	if _, ok := p.acceptOp("-"); ok {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokenNumber:
		v, _ := strconv.ParseFloat(t.text, 64)
		return numberNode(v), nil
	case tokenIdent:
		if t.text == "if" || t.text == "else" {
			return nil, errorf(p.src, "unexpected keyword %q", t.text)
		}
		if p.peek().kind == tokenLParen {
			p.next()
			return p.parseCall(t.text)
		}
		return varNode(t.text), nil
	case tokenLParen:
		inner, err := p.parseConditional()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokenRParen {
			return nil, errorf(p.src, "missing closing parenthesis")
		}
		return inner, nil
	case tokenEOF:
		return nil, errorf(p.src, "unexpected end of expression")
	}
	return nil, errorf(p.src, "unexpected %q", t.text)
}

func (p *parser) parseCall(name string) (node, error) {
	call := callNode{name: name}
	if p.peek().kind == tokenRParen {
		p.next()
		return call, nil
	}
	for {
		arg, err := p.parseConditional()
		if err != nil {
			return nil, err
		}
		call.args = append(call.args, arg)
		t := p.next()
		if t.kind == tokenRParen {
			return call, nil
		}
		if t.kind != tokenComma {
			return nil, errorf(p.src, "expected comma or closing parenthesis, got %q", t.text)
		}
	}
}
