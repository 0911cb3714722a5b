package expression

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NodeType represents the kind of AST node
type NodeType int

const (
	NodeTypeConstant NodeType = iota
	NodeTypeVariable
	NodeTypeOperation
	NodeTypeCall
	NodeTypeConditional
)

// Operator is an arithmetic, comparison or logical operator
type Operator string

const (
	OpAdd      Operator = "+"
	OpSubtract Operator = "-"
	OpMultiply Operator = "*"
	OpDivide   Operator = "/"
	OpModulo   Operator = "%"
	OpPower    Operator = "^"
	OpNegate   Operator = "neg"

	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="

	OpAnd Operator = "AND"
	OpOr  Operator = "OR"
	OpNot Operator = "NOT"
)

// Node is one node of a parsed expression.
// Unary operations (OpNegate, OpNot) use Left only.
type Node struct {
	Type NodeType
	Pos  int // 1-based offset in the source expression

	Value    float64 // NodeTypeConstant
	Variable string  // NodeTypeVariable

	Op    Operator // NodeTypeOperation
	Left  *Node
	Right *Node

	Function string  // NodeTypeCall; upper-cased when Known
	Args     []*Node // NodeTypeCall
	Known    bool    // NodeTypeCall; Function is in the function table

	Cond *Node // NodeTypeConditional
	Then *Node
	Else *Node
}

// Lookup resolves a variable to its current value
type Lookup func(name string) (float64, bool)

// Evaluate computes the node for one set of variable values.
// A NaN operand yields NaN without error; arithmetic failures return
// ErrDivisionByZero, ErrNonFinite or ErrDomain.
func (n *Node) Evaluate(vars map[string]float64) (float64, error) {
	return n.eval(func(name string) (float64, bool) {
		v, ok := vars[name]
		return v, ok
	})
}

func (n *Node) eval(lookup Lookup) (float64, error) {
	switch n.Type {
	case NodeTypeConstant:
		return n.Value, nil

	case NodeTypeVariable:
		v, ok := lookup(n.Variable)
		if !ok {
			return math.NaN(), fmt.Errorf("%w: %s", ErrUnboundVariable, n.Variable)
		}
		return v, nil

	case NodeTypeOperation:
		return n.evalOperation(lookup)

	case NodeTypeCall:
		return n.evalCall(lookup)

	case NodeTypeConditional:
		c, err := n.Cond.eval(lookup)
		if err != nil {
			return math.NaN(), err
		}
		if math.IsNaN(c) {
			return math.NaN(), nil
		}
		if c != 0 {
			return n.Then.eval(lookup)
		}
		return n.Else.eval(lookup)
	}

	return math.NaN(), fmt.Errorf("unknown node type %d", n.Type)
}

func (n *Node) evalOperation(lookup Lookup) (float64, error) {
	left, err := n.Left.eval(lookup)
	if err != nil {
		return math.NaN(), err
	}

	switch n.Op {
	case OpNegate:
		return -left, nil
	case OpNot:
		if math.IsNaN(left) {
			return math.NaN(), nil
		}
		return boolValue(left == 0), nil
	}

	right, err := n.Right.eval(lookup)
	if err != nil {
		return math.NaN(), err
	}
	if math.IsNaN(left) || math.IsNaN(right) {
		return math.NaN(), nil
	}

	var result float64
	switch n.Op {
	case OpAdd:
		result = left + right
	case OpSubtract:
		result = left - right
	case OpMultiply:
		result = left * right
	case OpDivide:
		if right == 0 {
			return math.NaN(), ErrDivisionByZero
		}
		result = left / right
	case OpModulo:
		if right == 0 {
			return math.NaN(), ErrDivisionByZero
		}
		// Floored modulo: the result takes the sign of the divisor
		result = math.Mod(left, right)
		if result != 0 && (result < 0) != (right < 0) {
			result += right
		}
	case OpPower:
		result = math.Pow(left, right)
		if math.IsNaN(result) {
			return math.NaN(), ErrDomain
		}
	case OpGreater:
		return boolValue(left > right), nil
	case OpGreaterEqual:
		return boolValue(left >= right), nil
	case OpLess:
		return boolValue(left < right), nil
	case OpLessEqual:
		return boolValue(left <= right), nil
	case OpEqual:
		return boolValue(left == right), nil
	case OpNotEqual:
		return boolValue(left != right), nil
	case OpAnd:
		return boolValue(left != 0 && right != 0), nil
	case OpOr:
		return boolValue(left != 0 || right != 0), nil
	default:
		return math.NaN(), fmt.Errorf("unknown operator %s", n.Op)
	}

	if math.IsInf(result, 0) {
		return math.NaN(), ErrNonFinite
	}
	return result, nil
}

func (n *Node) evalCall(lookup Lookup) (float64, error) {
	fn, ok := LookupFunction(n.Function)
	if !n.Known || !ok {
		return math.NaN(), fmt.Errorf("%w: %s", ErrUnknownFunction, n.Function)
	}
	if fn.Scalar == nil {
		return math.NaN(), fmt.Errorf("%w: %s", ErrSeriesFunction, fn.Name)
	}

	args := make([]float64, len(n.Args))
	for i, a := range n.Args {
		v, err := a.eval(lookup)
		if err != nil {
			return math.NaN(), err
		}
		if math.IsNaN(v) {
			return math.NaN(), nil
		}
		args[i] = v
	}
	return fn.Scalar(args)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Walk visits n and its children depth-first, parents before children.
// Returning false from fn skips the children of that node.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	n.Left.Walk(fn)
	n.Right.Walk(fn)
	for _, a := range n.Args {
		a.Walk(fn)
	}
	n.Cond.Walk(fn)
	n.Then.Walk(fn)
	n.Else.Walk(fn)
}

// String renders the node in a canonical, fully parenthesized form
func (n *Node) String() string {
	if n == nil {
		return ""
	}
	switch n.Type {
	case NodeTypeConstant:
		return strconv.FormatFloat(n.Value, 'g', -1, 64)
	case NodeTypeVariable:
		return n.Variable
	case NodeTypeOperation:
		switch n.Op {
		case OpNegate:
			return "(-" + n.Left.String() + ")"
		case OpNot:
			return "(NOT " + n.Left.String() + ")"
		}
		return "(" + n.Left.String() + " " + string(n.Op) + " " + n.Right.String() + ")"
	case NodeTypeCall:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = a.String()
		}
		return n.Function + "(" + strings.Join(args, ", ") + ")"
	case NodeTypeConditional:
		return "(IF " + n.Cond.String() + " THEN " + n.Then.String() + " ELSE " + n.Else.String() + ")"
	}
	return "?"
}
