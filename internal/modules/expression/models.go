package expression

import "time"

// ExpressionType is advisory metadata describing the shape of an expression
type ExpressionType string

const (
	ExpressionTypeSimple      ExpressionType = "simple"
	ExpressionTypeComplex     ExpressionType = "complex"
	ExpressionTypeFunction    ExpressionType = "function"
	ExpressionTypeConditional ExpressionType = "conditional"
)

// ParsedExpression is the outcome of parsing an expression.
// Variables and Functions are filled whenever the text could be tokenized,
// even if the grammar check failed.
type ParsedExpression struct {
	Expression string         `json:"expression"`
	Variables  []string       `json:"variables"`
	Functions  []string       `json:"functions"`
	Type       ExpressionType `json:"expression_type"`
	Valid      bool           `json:"valid"`
	Error      string         `json:"error,omitempty"`
	Root       *Node          `json:"-"`
}

// ValidationResult reports whether an expression can be evaluated with a set of variables
type ValidationResult struct {
	Valid            bool     `json:"valid"`
	Error            string   `json:"error,omitempty"`
	MissingVariables []string `json:"missing_variables"`
}

// ResultMetadata describes how an ExpressionResult was produced
type ResultMetadata struct {
	SymbolsUsed    []string       `json:"symbols_used" msgpack:"symbols_used"`
	DataPoints     int            `json:"data_points" msgpack:"data_points"`
	ExpressionType ExpressionType `json:"expression_type" msgpack:"expression_type"`
	FunctionsUsed  []string       `json:"functions_used" msgpack:"functions_used"`
	PointErrors    int            `json:"point_errors" msgpack:"point_errors"`
}

// ExpressionResult is the evaluated series of an expression.
// Values holds NaN where the result is undefined.
type ExpressionResult struct {
	Timestamps    []time.Time    `json:"timestamps" msgpack:"timestamps"`
	Values        []float64      `json:"values" msgpack:"values"`
	Expression    string         `json:"expression" msgpack:"expression"`
	VariableNames []string       `json:"variable_names" msgpack:"variable_names"`
	Metadata      ResultMetadata `json:"metadata" msgpack:"metadata"`
	Success       bool           `json:"success" msgpack:"success"`
	Error         string         `json:"error,omitempty" msgpack:"error"`
}

func failedResult(expression string, err string) *ExpressionResult {
	return &ExpressionResult{
		Timestamps: []time.Time{},
		Values:     []float64{},
		Expression: expression,
		Success:    false,
		Error:      err,
	}
}
