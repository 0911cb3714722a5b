package expression

import (
	"errors"
	"fmt"
)

// Point evaluation errors. The engine records them as NaN at the failing index.
var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrNonFinite      = errors.New("non-finite result")
	ErrDomain         = errors.New("argument outside function domain")
)

var (
	// ErrUnknownFunction is returned when a call names a function outside the table
	ErrUnknownFunction = errors.New("unknown function")
	// ErrUnboundVariable is returned when a variable has no value during evaluation
	ErrUnboundVariable = errors.New("unbound variable")
	// ErrSeriesFunction is returned when a windowed function is evaluated on a scalar
	ErrSeriesFunction = errors.New("function requires a series")
)

// SyntaxError describes why an expression could not be parsed.
// Pos is the 1-based character offset of the offending token.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s at position %d", e.Msg, e.Pos)
}
