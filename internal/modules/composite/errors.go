package composite

import "errors"

var (
	// ErrChartLimitReached is returned when creating a chart would exceed the configured maximum
	ErrChartLimitReached = errors.New("chart limit reached")
	// ErrInvalidExpression is returned for expressions that do not parse
	ErrInvalidExpression = errors.New("invalid expression")
	// ErrMissingVariables is returned when an expression references unbound variables
	ErrMissingVariables = errors.New("missing variables")
	// ErrInvalidField is returned for malformed chart attributes
	ErrInvalidField = errors.New("invalid field")
	// ErrChartNotFound is returned by operations addressing an unknown chart id
	ErrChartNotFound = errors.New("chart not found")
)

// ValidationError rejects a create or update request. Nothing is applied.
type ValidationError struct {
	Err              error
	Msg              string
	MissingVariables []string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalidField(msg string) *ValidationError {
	return &ValidationError{Err: ErrInvalidField, Msg: msg}
}
