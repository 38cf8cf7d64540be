package parser

import (
	"fmt"
	"strconv"

	"github.com/wbrown/horus-datalog/datalog/query"
)

// functionArity lists the built-in term functions.
var functionArity = map[string]int{
	"substr":    3,
	"strlen":    1,
	"cat":       2,
	"to_number": 1,
	"to_string": 1,
}

var comparisonOps = map[string]string{
	"<":  "<",
	"<=": "<=",
	">":  ">",
	">=": ">=",
	"=":  "=",
	"==": "=",
	"!=": "!=",
}

// ParseTerm parses an expression such as `c0.step + 1` or
// `substr(t.input_data, 0, 8)`.
func ParseTerm(input string) (query.Term, error) {
	p, err := newExprParser(input)
	if err != nil {
		return nil, err
	}
	term, err := p.parseExpr()
	if err != nil {
		return nil, fmt.Errorf("term %q: %w", input, err)
	}
	if err := p.expectEOF(); err != nil {
		return nil, fmt.Errorf("term %q: %w", input, err)
	}
	return term, nil
}

// ParsePredicate parses a filter: a comparison, or match/contains
// optionally negated with '!'.
func ParsePredicate(input string) (query.Predicate, error) {
	p, err := newExprParser(input)
	if err != nil {
		return nil, err
	}
	pred, err := p.parsePredicate()
	if err != nil {
		return nil, fmt.Errorf("predicate %q: %w", input, err)
	}
	if err := p.expectEOF(); err != nil {
		return nil, fmt.Errorf("predicate %q: %w", input, err)
	}
	return pred, nil
}

// ParseHead parses `Relation(term, ...)`.
func ParseHead(input string) (query.Head, error) {
	p, err := newExprParser(input)
	if err != nil {
		return query.Head{}, err
	}
	name := p.next()
	if name.Type != TokenIdent {
		return query.Head{}, fmt.Errorf("head %q: expected relation name at column %d", input, name.Col)
	}
	args, err := p.parseArgs()
	if err != nil {
		return query.Head{}, fmt.Errorf("head %q: %w", input, err)
	}
	if err := p.expectEOF(); err != nil {
		return query.Head{}, fmt.Errorf("head %q: %w", input, err)
	}
	return query.Head{Relation: name.Value, Terms: args}, nil
}

type exprParser struct {
	tokens  []Token
	current int
}

func newExprParser(input string) (*exprParser, error) {
	tokens, err := NewLexer(input).Lex()
	if err != nil {
		return nil, fmt.Errorf("%q: %w", input, err)
	}
	return &exprParser{tokens: tokens}, nil
}

func (p *exprParser) peek() Token {
	return p.tokens[p.current]
}

func (p *exprParser) peekAt(n int) Token {
	if p.current+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.current+n]
}

func (p *exprParser) next() Token {
	t := p.tokens[p.current]
	if t.Type != TokenEOF {
		p.current++
	}
	return t
}

func (p *exprParser) expect(tt TokenType, what string) (Token, error) {
	t := p.next()
	if t.Type != tt {
		return t, fmt.Errorf("expected %s at column %d, got %s", what, t.Col, t)
	}
	return t, nil
}

func (p *exprParser) expectEOF() error {
	if t := p.peek(); t.Type != TokenEOF {
		return fmt.Errorf("unexpected %s", t)
	}
	return nil
}

func (p *exprParser) isOp(op string) bool {
	t := p.peek()
	return t.Type == TokenOp && t.Value == op
}

func (p *exprParser) parsePredicate() (query.Predicate, error) {
	negated := false
	if p.isOp("!") {
		p.next()
		negated = true
	}

	if t := p.peek(); t.Type == TokenIdent && p.peekAt(1).Type == TokenLeftParen {
		switch t.Value {
		case "match", "contains":
			p.next()
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			if len(args) != 2 {
				return nil, fmt.Errorf("%s takes 2 arguments, got %d", t.Value, len(args))
			}
			if t.Value == "match" {
				return query.Match{Pattern: args[0], Text: args[1], Negated: negated}, nil
			}
			return query.Contains{Needle: args[0], Haystack: args[1], Negated: negated}, nil
		}
	}
	if negated {
		return nil, fmt.Errorf("'!' must be followed by match or contains")
	}

	left, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	opTok := p.next()
	op, ok := comparisonOps[opTok.Value]
	if opTok.Type != TokenOp || !ok {
		return nil, fmt.Errorf("expected comparison operator at column %d, got %s", opTok.Col, opTok)
	}
	right, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return query.Comparison{Op: op, Left: left, Right: right}, nil
}

// parseExpr handles + and -.
func (p *exprParser) parseExpr() (query.Term, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.next().Value
		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}
		left = query.Arith{Op: op, Left: left, Right: right}
	}
	return left, nil
}

// parseProduct handles *, / and %.
func (p *exprParser) parseProduct() (query.Term, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") || p.isOp("%") {
		op := p.next().Value
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = query.Arith{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *exprParser) parseUnary() (query.Term, error) {
	if p.isOp("-") {
		p.next()
		if t := p.peek(); t.Type == TokenInt {
			p.next()
			v, err := strconv.ParseInt("-"+t.Value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("bad integer at column %d: %w", t.Col, err)
			}
			return query.Num(v), nil
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return query.Arith{Op: "-", Left: query.Num(0), Right: operand}, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (query.Term, error) {
	t := p.next()
	switch t.Type {
	case TokenInt:
		v, err := strconv.ParseInt(t.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad integer at column %d: %w", t.Col, err)
		}
		return query.Num(v), nil

	case TokenString:
		return query.Str(t.Value), nil

	case TokenLeftParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRightParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil

	case TokenIdent:
		if p.peek().Type == TokenLeftParen {
			arity, ok := functionArity[t.Value]
			if !ok {
				return nil, fmt.Errorf("unknown function %s at column %d", t.Value, t.Col)
			}
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			if len(args) != arity {
				return nil, fmt.Errorf("%s takes %d arguments, got %d", t.Value, arity, len(args))
			}
			return query.Call{Func: t.Value, Args: args}, nil
		}
		if _, err := p.expect(TokenDot, "'.' after alias "+t.Value); err != nil {
			return nil, err
		}
		col, err := p.expect(TokenIdent, "column name")
		if err != nil {
			return nil, err
		}
		return query.Col(t.Value, col.Value), nil
	}
	return nil, fmt.Errorf("unexpected %s", t)
}

func (p *exprParser) parseArgs() ([]query.Term, error) {
	if _, err := p.expect(TokenLeftParen, "'('"); err != nil {
		return nil, err
	}
	var args []query.Term
	if p.peek().Type == TokenRightParen {
		p.next()
		return args, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		t := p.next()
		if t.Type == TokenRightParen {
			return args, nil
		}
		if t.Type != TokenComma {
			return nil, fmt.Errorf("expected ',' or ')' at column %d, got %s", t.Col, t)
		}
	}
}
