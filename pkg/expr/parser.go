package expr

import "fmt"

// parser is a recursive-descent parser over the token stream.
//
// Grammar:
//
//	expression     = additive
//	additive       = multiplicative { ("+" | "-") multiplicative }
//	multiplicative = unary { ("*" | "/" | "%") unary }
//	unary          = ("+" | "-") unary | power
//	power          = primary [ "^" unary ]
//	primary        = number | identifier [ "(" [ expression { "," expression } ] ")" ] | "(" expression ")"
type parser struct {
	tokens []token
	pos    int
	depth  int
}

// MaxDepth bounds the nesting of parentheses, unary operators and exponents.
const MaxDepth = 256

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOperator(ops ...string) bool {
	t := p.peek()
	if t.kind != tokOperator {
		return false
	}
	for _, op := range ops {
		if t.text == op {
			return true
		}
	}
	return false
}

func (p *parser) parseExpression() (node, error) {
	return p.parseAdditive()
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.isOperator("+", "-") {
		op := p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op.text[0], left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOperator("*", "/", "%") {
		op := p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op.text[0], left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > MaxDepth {
		return nil, &SyntaxError{Pos: p.peek().pos, Msg: "expression too deeply nested"}
	}

	if p.isOperator("+", "-") {
		op := p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op.text[0], operand: operand}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.isOperator("^") {
		p.next()
		// Right-associative: 2^3^2 == 2^(3^2).
		exponent, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &binaryNode{op: '^', left: base, right: exponent}, nil
	}
	return base, nil
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return &numberNode{value: t.num}, nil

	case tokIdent:
		if p.peek().kind == tokLParen {
			return p.parseCall(t)
		}
		return &identNode{name: t.text}, nil

	case tokLParen:
		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, &SyntaxError{Pos: closing.pos, Msg: fmt.Sprintf("expected \")\", found %s", closing)}
		}
		return inner, nil

	default:
		return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("unexpected %s", t)}
	}
}

func (p *parser) parseCall(name token) (node, error) {
	fn, ok := functions[name.text]
	if !ok {
		return nil, &SyntaxError{Pos: name.pos, Msg: fmt.Sprintf("unknown function %q", name.text)}
	}
	p.next() // (

	var args []node
	if p.peek().kind != tokRParen {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if closing := p.next(); closing.kind != tokRParen {
		return nil, &SyntaxError{Pos: closing.pos, Msg: fmt.Sprintf("expected \")\" after arguments of %s, found %s", name.text, closing)}
	}

	if len(args) < fn.minArgs || (fn.maxArgs >= 0 && len(args) > fn.maxArgs) {
		return nil, &SyntaxError{Pos: name.pos, Msg: fmt.Sprintf("%s expects %s, got %d", name.text, fn.arity(), len(args))}
	}

	return &callNode{name: name.text, fn: fn, args: args}, nil
}
