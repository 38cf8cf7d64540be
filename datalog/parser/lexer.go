package parser

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the type of an expression token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenInt
	TokenString
	TokenIdent
	TokenOp
	TokenDot
	TokenComma
	TokenLeftParen
	TokenRightParen
)

// Token represents a lexical token in a term or predicate
type Token struct {
	Type  TokenType
	Value string
	Col   int
}

// String returns a string representation of the token
func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return fmt.Sprintf("EOF[%d]", t.Col)
	case TokenInt:
		return fmt.Sprintf("Int[%d]:%s", t.Col, t.Value)
	case TokenString:
		return fmt.Sprintf("String[%d]:%q", t.Col, t.Value)
	case TokenIdent:
		return fmt.Sprintf("Ident[%d]:%s", t.Col, t.Value)
	case TokenOp:
		return fmt.Sprintf("Op[%d]:%s", t.Col, t.Value)
	case TokenDot:
		return fmt.Sprintf("Dot[%d]", t.Col)
	case TokenComma:
		return fmt.Sprintf("Comma[%d]", t.Col)
	case TokenLeftParen:
		return fmt.Sprintf("LeftParen[%d]", t.Col)
	case TokenRightParen:
		return fmt.Sprintf("RightParen[%d]", t.Col)
	default:
		return fmt.Sprintf("Unknown[%d]:%s", t.Col, t.Value)
	}
}

// Lexer tokenizes a single-line expression
type Lexer struct {
	input  string
	pos    int
	tokens []Token
}

// NewLexer creates a new lexer for the given input
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Lex tokenizes the entire input
func (l *Lexer) Lex() ([]Token, error) {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.input) {
			break
		}
		start := l.pos + 1
		ch := l.input[l.pos]

		switch {
		case ch == '"':
			s, err := l.readString()
			if err != nil {
				return nil, err
			}
			l.emit(TokenString, s, start)
		case ch >= '0' && ch <= '9':
			l.emit(TokenInt, l.readWhile(isDigit), start)
		case isIdentStart(rune(ch)):
			l.emit(TokenIdent, l.readWhile(isIdentPart), start)
		case ch == '.':
			l.pos++
			l.emit(TokenDot, ".", start)
		case ch == ',':
			l.pos++
			l.emit(TokenComma, ",", start)
		case ch == '(':
			l.pos++
			l.emit(TokenLeftParen, "(", start)
		case ch == ')':
			l.pos++
			l.emit(TokenRightParen, ")", start)
		default:
			op := l.readOperator()
			if op == "" {
				return nil, fmt.Errorf("unexpected character '%c' at column %d", ch, start)
			}
			l.emit(TokenOp, op, start)
		}
	}

	l.emit(TokenEOF, "", l.pos+1)
	return l.tokens, nil
}

func (l *Lexer) emit(tt TokenType, value string, col int) {
	l.tokens = append(l.tokens, Token{Type: tt, Value: value, Col: col})
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

func (l *Lexer) readWhile(pred func(rune) bool) string {
	start := l.pos
	for l.pos < len(l.input) && pred(rune(l.input[l.pos])) {
		l.pos++
	}
	return l.input[start:l.pos]
}

var operators = []string{"<=", ">=", "!=", "==", "<", ">", "=", "!", "+", "-", "*", "/", "%"}

func (l *Lexer) readOperator() string {
	rest := l.input[l.pos:]
	for _, op := range operators {
		if strings.HasPrefix(rest, op) {
			l.pos += len(op)
			return op
		}
	}
	return ""
}

func (l *Lexer) readString() (string, error) {
	start := l.pos + 1
	l.pos++ // opening quote
	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch ch {
		case '"':
			l.pos++
			return b.String(), nil
		case '\\':
			l.pos++
			if l.pos >= len(l.input) {
				return "", fmt.Errorf("unterminated escape in string at column %d", start)
			}
			switch esc := l.input[l.pos]; esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '"', '\\':
				b.WriteByte(esc)
			default:
				return "", fmt.Errorf("unknown escape \\%c at column %d", esc, l.pos+1)
			}
			l.pos++
		default:
			b.WriteByte(ch)
			l.pos++
		}
	}
	return "", fmt.Errorf("unterminated string starting at column %d", start)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || isDigit(r)
}
