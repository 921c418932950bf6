package condition

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Expr is a node of a parsed condition expression.
type Expr interface {
	exprNode()
}

// BinaryExpr is AND / OR.
type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode() {}

// NotExpr negates its operand.
type NotExpr struct {
	Expr Expr
}

func (*NotExpr) exprNode() {}

// ComparisonExpr is <operand> <operator> <operand>. For "matches" against a
// literal pattern the regexp is compiled once at parse time.
type ComparisonExpr struct {
	Left  Operand
	Op    Operator
	Right Operand
	re    *regexp.Regexp
}

func (*ComparisonExpr) exprNode() {}

// Operand is a literal or a field path.
type Operand interface {
	operandNode()
}

// LiteralOperand holds a string, float64 or bool.
type LiteralOperand struct {
	Value any
}

func (*LiteralOperand) operandNode() {}

// FieldOperand is a dotted path such as actor.champion.
type FieldOperand struct {
	Path []string
}

func (*FieldOperand) operandNode() {}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokOp
	tokString
	tokNumber
	tokBool
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	val  string
	pos  int
}

func isWordChar(ch byte, first bool) bool {
	r := rune(ch)
	if unicode.IsLetter(r) || ch == '_' {
		return true
	}
	return !first && (unicode.IsDigit(r) || ch == '.')
}

func tokenize(src string) ([]token, error) {
	var toks []token
	for i := 0; i < len(src); {
		ch := src[i]
		switch {
		case unicode.IsSpace(rune(ch)):
			i++
		case ch == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case ch == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case ch == '=' || ch == '!' || ch == '<' || ch == '>':
			n := 1
			if i+1 < len(src) && src[i+1] == '=' {
				n = 2
			}
			op := src[i : i+n]
			if op == "=" || op == "!" {
				return nil, fmt.Errorf("unexpected %q at position %d", op, i)
			}
			toks = append(toks, token{tokOp, op, i})
			i += n
		case ch == '"' || ch == '\'':
			var sb strings.Builder
			j := i + 1
			for ; j < len(src) && src[j] != ch; j++ {
				if src[j] == '\\' && j+1 < len(src) {
					j++
				}
				sb.WriteByte(src[j])
			}
			if j >= len(src) {
				return nil, fmt.Errorf("unterminated string at position %d", i)
			}
			toks = append(toks, token{tokString, sb.String(), i})
			i = j + 1
		case unicode.IsDigit(rune(ch)) || (ch == '-' && i+1 < len(src) && unicode.IsDigit(rune(src[i+1]))):
			j := i + 1
			for j < len(src) && (unicode.IsDigit(rune(src[j])) || src[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, src[i:j], i})
			i = j
		case isWordChar(ch, true):
			j := i + 1
			for j < len(src) && isWordChar(src[j], false) {
				j++
			}
			word := src[i:j]
			if lw := strings.ToLower(word); lw == "true" || lw == "false" {
				toks = append(toks, token{tokBool, lw, i})
			} else {
				toks = append(toks, token{tokWord, word, i})
			}
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", ch, i)
		}
	}
	return append(toks, token{tokEOF, "", len(src)}), nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) keyword(kw string) bool {
	t := p.peek()
	return t.kind == tokWord && strings.EqualFold(t.val, kw)
}

// Parse compiles an expression such as
//
//	kind == "kill" AND (actor.local == true OR target.champion == "Zed")
func Parse(src string) (Expr, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.or()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", t.val, t.pos)
	}
	return e, nil
}

func (p *parser) or() (Expr, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.keyword("OR") {
		p.next()
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) and() (Expr, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.keyword("AND") {
		p.next()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) unary() (Expr, error) {
	if p.keyword("NOT") {
		p.next()
		inner, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: inner}, nil
	}
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.or()
		if err != nil {
			return nil, err
		}
		if t := p.next(); t.kind != tokRParen {
			return nil, fmt.Errorf("expected ) at position %d, got %q", t.pos, t.val)
		}
		return inner, nil
	}
	return p.comparison()
}

func (p *parser) comparison() (Expr, error) {
	left, err := p.operand()
	if err != nil {
		return nil, err
	}
	var op Operator
	switch t := p.peek(); {
	case t.kind == tokOp:
		op = Operator(t.val)
	case p.keyword("contains"):
		op = OpContains
	case p.keyword("matches"):
		op = OpMatches
	default:
		return nil, fmt.Errorf("expected comparison operator at position %d, got %q", t.pos, t.val)
	}
	p.next()
	right, err := p.operand()
	if err != nil {
		return nil, err
	}
	cmp := &ComparisonExpr{Left: left, Op: op, Right: right}
	if op == OpMatches {
		lit, ok := right.(*LiteralOperand)
		pattern, isStr := lit.valueString()
		if !ok || !isStr {
			return nil, fmt.Errorf("matches needs a string pattern")
		}
		if cmp.re, err = regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("matches: %w", err)
		}
	}
	return cmp, nil
}

func (l *LiteralOperand) valueString() (string, bool) {
	if l == nil {
		return "", false
	}
	s, ok := l.Value.(string)
	return s, ok
}

func (p *parser) operand() (Operand, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return &LiteralOperand{Value: t.val}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.val, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at position %d", t.val, t.pos)
		}
		return &LiteralOperand{Value: f}, nil
	case tokBool:
		return &LiteralOperand{Value: t.val == "true"}, nil
	case tokWord:
		return &FieldOperand{Path: strings.Split(t.val, ".")}, nil
	}
	return nil, fmt.Errorf("expected operand at position %d, got %q", t.pos, t.val)
}
