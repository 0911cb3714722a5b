package expression

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokKeyword
	tokOperator
	tokLParen
	tokRParen
	tokComma
)

// Reserved words, matched case-insensitively
const (
	kwIf   = "IF"
	kwThen = "THEN"
	kwElse = "ELSE"
	kwAnd  = "AND"
	kwOr   = "OR"
	kwNot  = "NOT"
)

var keywords = map[string]bool{
	kwIf: true, kwThen: true, kwElse: true, kwAnd: true, kwOr: true, kwNot: true,
}

type token struct {
	kind tokenKind
	text string  // upper-cased for keywords
	num  float64 // tokNumber only
	pos  int     // 1-based offset
	call bool    // tokIdent immediately followed by '('
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return fmt.Sprintf("'%s'", t.text)
}

// tokenize splits an expression into tokens.
// Identifiers follow [A-Za-z][A-Za-z0-9._/-]*, so "A-B" is a single identifier.
func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case isWhitespace(c):
			i++

		case isDigit(c) || (c == '.' && i+1 < len(input) && isDigit(input[i+1])):
			start := i
			for i < len(input) && (isDigit(input[i]) || input[i] == '.') {
				i++
			}
			if i < len(input) && (input[i] == 'e' || input[i] == 'E') {
				j := i + 1
				if j < len(input) && (input[j] == '+' || input[j] == '-') {
					j++
				}
				if j < len(input) && isDigit(input[j]) {
					for j < len(input) && isDigit(input[j]) {
						j++
					}
					i = j
				}
			}
			text := input[start:i]
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, &SyntaxError{Pos: start + 1, Msg: fmt.Sprintf("invalid number '%s'", text)}
			}
			tokens = append(tokens, token{kind: tokNumber, text: text, num: v, pos: start + 1})

		case isLetter(c):
			start := i
			i++
			for i < len(input) && isIdentChar(input[i]) {
				i++
			}
			text := input[start:i]
			if upper := strings.ToUpper(text); keywords[upper] {
				tokens = append(tokens, token{kind: tokKeyword, text: upper, pos: start + 1})
				continue
			}
			call := i < len(input) && input[i] == '('
			tokens = append(tokens, token{kind: tokIdent, text: text, pos: start + 1, call: call})

		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i + 1})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i + 1})
			i++
		case c == ',':
			tokens = append(tokens, token{kind: tokComma, text: ",", pos: i + 1})
			i++

		case c == '+' || c == '-' || c == '*' || c == '/' || c == '^' || c == '%':
			tokens = append(tokens, token{kind: tokOperator, text: string(c), pos: i + 1})
			i++

		case c == '>' || c == '<' || c == '=' || c == '!':
			op := string(c)
			if i+1 < len(input) && input[i+1] == '=' {
				op += "="
			}
			if op == "=" || op == "!" {
				return nil, &SyntaxError{Pos: i + 1, Msg: fmt.Sprintf("unexpected character '%s'", op)}
			}
			tokens = append(tokens, token{kind: tokOperator, text: op, pos: i + 1})
			i += len(op)

		default:
			return nil, &SyntaxError{Pos: i + 1, Msg: fmt.Sprintf("unexpected character '%c'", c)}
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(input) + 1})
	return tokens, nil
}

func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isLetter(c) || isDigit(c) || c == '.' || c == '_' || c == '/' || c == '-'
}
