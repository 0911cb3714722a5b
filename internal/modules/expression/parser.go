package expression

import (
	"fmt"
	"math"
	"strings"
)

// Parse tokenizes and parses an expression into an AST and extracts its
// variables and functions. It never returns nil.
func Parse(expression string) *ParsedExpression {
	normalized := strings.Join(strings.Fields(expression), " ")
	result := &ParsedExpression{
		Expression: normalized,
		Variables:  []string{},
		Functions:  []string{},
		Type:       ExpressionTypeSimple,
	}

	if normalized == "" {
		result.Error = "expression is empty"
		return result
	}

	tokens, err := tokenize(normalized)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	hasIf := extractNames(tokens, result)
	result.Type = classify(hasIf, result)

	p := &parser{tokens: tokens}
	root, err := p.parse()
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Root = root
	result.Valid = true
	return result
}

// Validate checks that an expression parses and that every variable it
// references is among available
func Validate(expression string, available []string) ValidationResult {
	parsed := Parse(expression)

	known := make(map[string]bool, len(available))
	for _, name := range available {
		known[name] = true
	}
	missing := []string{}
	for _, name := range parsed.Variables {
		if !known[name] {
			missing = append(missing, name)
		}
	}

	switch {
	case !parsed.Valid:
		return ValidationResult{Valid: false, Error: parsed.Error, MissingVariables: missing}
	case len(missing) > 0:
		return ValidationResult{
			Valid:            false,
			Error:            "missing variables: " + strings.Join(missing, ", "),
			MissingVariables: missing,
		}
	}
	return ValidationResult{Valid: true, MissingVariables: missing}
}

// extractNames fills Variables and Functions in order of first appearance
// and reports whether the expression contains IF
func extractNames(tokens []token, result *ParsedExpression) bool {
	seenVar := map[string]bool{}
	seenFn := map[string]bool{}
	hasIf := false

	for i, tok := range tokens {
		switch tok.kind {
		case tokKeyword:
			if tok.text == kwIf {
				hasIf = true
			}
		case tokIdent:
			if isFunctionName(tok.text) {
				if IsFunction(tok.text) && tokens[i+1].kind == tokLParen && !seenFn[tok.text] {
					seenFn[tok.text] = true
					result.Functions = append(result.Functions, tok.text)
				}
				continue
			}
			if !seenVar[tok.text] {
				seenVar[tok.text] = true
				result.Variables = append(result.Variables, tok.text)
			}
		}
	}
	return hasIf
}

func classify(hasIf bool, result *ParsedExpression) ExpressionType {
	switch {
	case hasIf:
		return ExpressionTypeConditional
	case len(result.Functions) > 0:
		return ExpressionTypeFunction
	case len(result.Variables) > 2:
		return ExpressionTypeComplex
	default:
		return ExpressionTypeSimple
	}
}

// parser is a recursive descent parser over a token slice.
//
//	expr       := IF or THEN expr ELSE expr | or
//	or         := and (OR and)*
//	and        := not (AND not)*
//	not        := NOT not | comparison
//	comparison := additive (cmp additive)?
//	additive   := term ((+|-) term)*
//	term       := unary ((*|/|%) unary)*
//	unary      := (+|-) unary | power
//	power      := primary (^ unary)?
//	primary    := NUMBER | IDENT | IDENT ( args ) | ( expr )
type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) atOperator(ops ...string) bool {
	tok := p.peek()
	if tok.kind != tokOperator {
		return false
	}
	for _, op := range ops {
		if tok.text == op {
			return true
		}
	}
	return false
}

func (p *parser) atKeyword(kw string) bool {
	tok := p.peek()
	return tok.kind == tokKeyword && tok.text == kw
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	tok := p.peek()
	if tok.kind != kind {
		return tok, unexpected(tok, "expected "+what)
	}
	return p.next(), nil
}

func (p *parser) expectKeyword(kw string) error {
	if !p.atKeyword(kw) {
		return unexpected(p.peek(), "expected "+kw)
	}
	p.next()
	return nil
}

func unexpected(tok token, context string) *SyntaxError {
	msg := "unexpected " + tok.String()
	if context != "" {
		msg += ", " + context
	}
	return &SyntaxError{Pos: tok.pos, Msg: msg}
}

func (p *parser) parse() (*Node, error) {
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, unexpected(tok, "")
	}
	return root, nil
}

func (p *parser) parseExpr() (*Node, error) {
	if !p.atKeyword(kwIf) {
		return p.parseOr()
	}

	tok := p.next()
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword(kwThen); err != nil {
		return nil, err
	}
	then, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword(kwElse); err != nil {
		return nil, err
	}
	els, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &Node{Type: NodeTypeConditional, Pos: tok.pos, Cond: cond, Then: then, Else: els}, nil
}

func (p *parser) parseOr() (*Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atKeyword(kwOr) {
		tok := p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binary(OpOr, left, right, tok.pos)
	}
	return left, nil
}

func (p *parser) parseAnd() (*Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.atKeyword(kwAnd) {
		tok := p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = binary(OpAnd, left, right, tok.pos)
	}
	return left, nil
}

func (p *parser) parseNot() (*Node, error) {
	if !p.atKeyword(kwNot) {
		return p.parseComparison()
	}
	tok := p.next()
	operand, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	return &Node{Type: NodeTypeOperation, Op: OpNot, Left: operand, Pos: tok.pos}, nil
}

func (p *parser) parseComparison() (*Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if !p.atOperator(">", ">=", "<", "<=", "==", "!=") {
		return left, nil
	}
	tok := p.next()
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return binary(Operator(tok.text), left, right, tok.pos), nil
}

func (p *parser) parseAdditive() (*Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.atOperator("+", "-") {
		tok := p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binary(Operator(tok.text), left, right, tok.pos)
	}
	return left, nil
}

func (p *parser) parseTerm() (*Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.atOperator("*", "/", "%") {
		tok := p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binary(Operator(tok.text), left, right, tok.pos)
	}
	return left, nil
}

func (p *parser) parseUnary() (*Node, error) {
	if !p.atOperator("+", "-") {
		return p.parsePower()
	}
	tok := p.next()
	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if tok.text == "+" {
		return operand, nil
	}
	return &Node{Type: NodeTypeOperation, Op: OpNegate, Left: operand, Pos: tok.pos}, nil
}

func (p *parser) parsePower() (*Node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if !p.atOperator("^") {
		return base, nil
	}
	tok := p.next()
	exponent, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return binary(OpPower, base, exponent, tok.pos), nil
}

func (p *parser) parsePrimary() (*Node, error) {
	tok := p.peek()
	switch tok.kind {
	case tokNumber:
		p.next()
		return &Node{Type: NodeTypeConstant, Value: tok.num, Pos: tok.pos}, nil

	case tokIdent:
		known := isFunctionName(tok.text)
		if p.tokens[p.pos+1].kind == tokLParen && (known || tok.call) {
			return p.parseCall()
		}
		if known {
			return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("function %s requires arguments", strings.ToUpper(tok.text))}
		}
		p.next()
		return &Node{Type: NodeTypeVariable, Variable: tok.text, Pos: tok.pos}, nil

	case tokLParen:
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	}

	return nil, unexpected(tok, "expected a number, variable or '('")
}

func (p *parser) parseCall() (*Node, error) {
	nameTok := p.next()
	p.next() // (

	var args []*Node
	if p.peek().kind != tokRParen {
		for {
			arg, err := p.parseExpr()
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
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}

	fn, known := LookupFunction(nameTok.text)
	if !known {
		return &Node{Type: NodeTypeCall, Function: nameTok.text, Args: args, Pos: nameTok.pos}, nil
	}

	if len(args) != fn.Arity {
		return nil, &SyntaxError{
			Pos: nameTok.pos,
			Msg: fmt.Sprintf("%s expects %d argument(s), got %d", fn.Name, fn.Arity, len(args)),
		}
	}
	if fn.Windowed {
		period := args[1]
		if period.Type != NodeTypeConstant || period.Value < 1 ||
			period.Value > math.MaxInt32 || period.Value != math.Trunc(period.Value) {
			return nil, &SyntaxError{
				Pos: period.Pos,
				Msg: fmt.Sprintf("%s period must be a positive integer", fn.Name),
			}
		}
	}
	return &Node{Type: NodeTypeCall, Function: fn.Name, Args: args, Known: true, Pos: nameTok.pos}, nil
}

func binary(op Operator, left, right *Node, pos int) *Node {
	return &Node{Type: NodeTypeOperation, Op: op, Left: left, Right: right, Pos: pos}
}
