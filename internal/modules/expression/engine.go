package expression

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aristath/sentinel-composite/internal/cache"
	"github.com/aristath/sentinel-composite/internal/domain"
	"github.com/aristath/sentinel-composite/internal/metrics"
	"github.com/aristath/sentinel-composite/internal/modules/alignment"
	"github.com/rs/zerolog"
)

const cachePrefix = "expr:"

// Aligner provides calendar-aligned multi-symbol data
type Aligner interface {
	AlignMultipleSymbols(
		ctx context.Context,
		symbols []string,
		start, end time.Time,
		fillMethod alignment.FillMethod,
		market string,
	) ([]domain.AlignedPoint, error)
}

// Engine evaluates expressions over aligned symbol data
type Engine struct {
	aligner  Aligner
	cache    cache.Store
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// NewEngine creates a new expression engine
func NewEngine(aligner Aligner, store cache.Store, cacheTTL time.Duration, log zerolog.Logger) *Engine {
	return &Engine{
		aligner:  aligner,
		cache:    store,
		cacheTTL: cacheTTL,
		log:      log.With().Str("service", "expression_engine").Logger(),
	}
}

// SetMetrics attaches Prometheus instruments
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// resultKey identifies one evaluation. The expression/bindings part doubles as
// an invalidation prefix covering every date range.
type resultKey struct {
	Expression string
	Bindings   string
	Start      time.Time
	End        time.Time
	Market     string
}

func (k resultKey) prefix() string {
	sum := sha256.Sum256([]byte(k.Expression + "\x1f" + k.Bindings))
	return cachePrefix + hex.EncodeToString(sum[:16]) + ":"
}

func (k resultKey) String() string {
	return fmt.Sprintf("%s%s:%s:%s", k.prefix(),
		k.Start.Format(domain.DateLayout),
		k.End.Format(domain.DateLayout),
		k.Market,
	)
}

func newResultKey(expression string, variables map[string]domain.ExpressionVariable, start, end time.Time, market string) resultKey {
	return resultKey{
		Expression: strings.Join(strings.Fields(expression), " "),
		Bindings:   domain.BindingsHash(variables),
		Start:      domain.NormalizeDate(start),
		End:        domain.NormalizeDate(end),
		Market:     strings.ToUpper(strings.TrimSpace(market)),
	}
}

// Evaluate computes expression over [start, end] using the given variable bindings.
// Failures never escape: they are reported through Success and Error.
// Point-level failures leave NaN at the affected index.
func (e *Engine) Evaluate(
	ctx context.Context,
	expression string,
	variables map[string]domain.ExpressionVariable,
	start, end time.Time,
	market string,
) (result *ExpressionResult) {
	began := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().
				Interface("panic", r).
				Str("expression", expression).
				Msg("Expression evaluation panicked")
			result = failedResult(expression, fmt.Sprintf("evaluation failed: %v", r))
		}
		e.metrics.ObserveEvaluation(result.Success, time.Since(began), result.Metadata.PointErrors)
	}()

	parsed := Parse(expression)
	if !parsed.Valid {
		return failedResult(expression, parsed.Error)
	}

	if unknown := unknownFunctions(parsed.Root); len(unknown) > 0 {
		return failedResult(parsed.Expression, "unknown function: "+strings.Join(unknown, ", "))
	}

	var missing []string
	for _, name := range parsed.Variables {
		if _, ok := variables[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return failedResult(parsed.Expression, "missing variables: "+strings.Join(missing, ", "))
	}

	key := newResultKey(expression, variables, start, end, market).String()
	if e.cache != nil {
		var cached ExpressionResult
		found, err := e.cache.Get(ctx, key, &cached)
		if err != nil {
			e.log.Warn().Err(err).Msg("Expression cache read failed")
		}
		if found {
			e.metrics.CacheHit(metrics.CacheExpression)
			for i, ts := range cached.Timestamps {
				cached.Timestamps[i] = ts.UTC()
			}
			return &cached
		}
		e.metrics.CacheMiss(metrics.CacheExpression)
	}

	symbols := domain.VariableSymbols(variables)
	points, err := e.aligner.AlignMultipleSymbols(ctx, symbols, start, end, alignment.FillForward, market)
	if err != nil {
		e.log.Error().Err(err).Str("expression", parsed.Expression).Msg("Alignment failed")
		return failedResult(parsed.Expression, fmt.Sprintf("failed to align data: %v", err))
	}
	if len(points) == 0 {
		return failedResult(parsed.Expression, "no aligned data available")
	}

	result = e.compute(parsed, variables, symbols, points)

	if e.cache != nil {
		if err := e.cache.Set(ctx, key, result, e.cacheTTL); err != nil {
			e.log.Warn().Err(err).Msg("Expression cache write failed")
		}
	}

	e.log.Debug().
		Str("expression", parsed.Expression).
		Int("points", len(points)).
		Int("point_errors", result.Metadata.PointErrors).
		Msg("Expression evaluated")

	return result
}

func (e *Engine) compute(
	parsed *ParsedExpression,
	variables map[string]domain.ExpressionVariable,
	symbols []string,
	points []domain.AlignedPoint,
) *ExpressionResult {
	env := newSeriesEnv(len(points))
	for name, v := range variables {
		values := make([]float64, len(points))
		for i, p := range points {
			bar, ok := p.Values[v.Symbol]
			if !ok {
				values[i] = math.NaN()
				continue
			}
			values[i] = bar.Price(v.PriceType)
		}
		env.series[name] = values
	}

	root := env.rewrite(parsed.Root)

	timestamps := make([]time.Time, len(points))
	values := make([]float64, len(points))
	pointErrors := 0
	for i, p := range points {
		timestamps[i] = p.Timestamp
		v, err := root.eval(env.lookupAt(i))
		if err != nil {
			pointErrors++
			v = math.NaN()
		}
		values[i] = v
	}

	return &ExpressionResult{
		Timestamps:    timestamps,
		Values:        values,
		Expression:    parsed.Expression,
		VariableNames: domain.VariableNames(variables),
		Metadata: ResultMetadata{
			SymbolsUsed:    symbols,
			DataPoints:     len(points),
			ExpressionType: parsed.Type,
			FunctionsUsed:  parsed.Functions,
			PointErrors:    pointErrors,
		},
		Success: true,
	}
}

// InvalidateExpression drops cached results of expression with these bindings for every date range
func (e *Engine) InvalidateExpression(ctx context.Context, expression string, variables map[string]domain.ExpressionVariable) error {
	if e.cache == nil {
		return nil
	}
	prefix := newResultKey(expression, variables, time.Time{}, time.Time{}, "").prefix()
	if err := e.cache.DeleteByPrefix(ctx, prefix); err != nil {
		return fmt.Errorf("failed to invalidate expression cache: %w", err)
	}
	return nil
}

// ClearCache drops every cached expression result
func (e *Engine) ClearCache(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	if err := e.cache.DeleteByPrefix(ctx, cachePrefix); err != nil {
		return fmt.Errorf("failed to clear expression cache: %w", err)
	}
	e.log.Debug().Msg("Expression cache cleared")
	return nil
}

func unknownFunctions(root *Node) []string {
	var names []string
	seen := map[string]bool{}
	root.Walk(func(n *Node) bool {
		if n.Type == NodeTypeCall && !n.Known && !seen[n.Function] {
			seen[n.Function] = true
			names = append(names, n.Function)
		}
		return true
	})
	return names
}

// seriesEnv holds the full series of every variable, including the synthetic
// variables that replace function calls
type seriesEnv struct {
	length    int
	series    map[string][]float64
	synthetic map[string]string // canonical call text -> synthetic variable
}

func newSeriesEnv(length int) *seriesEnv {
	return &seriesEnv{
		length:    length,
		series:    make(map[string][]float64),
		synthetic: make(map[string]string),
	}
}

func (env *seriesEnv) lookupAt(i int) Lookup {
	return func(name string) (float64, bool) {
		s, ok := env.series[name]
		if !ok {
			return math.NaN(), false
		}
		return s[i], true
	}
}

// rewrite returns a copy of n where every call is replaced by a variable bound
// to the call's precomputed series. Arguments are resolved before their caller,
// and identical calls share one series.
func (env *seriesEnv) rewrite(n *Node) *Node {
	if n == nil {
		return nil
	}

	switch n.Type {
	case NodeTypeOperation:
		out := *n
		out.Left = env.rewrite(n.Left)
		out.Right = env.rewrite(n.Right)
		return &out

	case NodeTypeConditional:
		out := *n
		out.Cond = env.rewrite(n.Cond)
		out.Then = env.rewrite(n.Then)
		out.Else = env.rewrite(n.Else)
		return &out

	case NodeTypeCall:
		call := *n
		call.Args = make([]*Node, len(n.Args))
		for i, a := range n.Args {
			call.Args[i] = env.rewrite(a)
		}

		key := call.String()
		if name, ok := env.synthetic[key]; ok {
			return &Node{Type: NodeTypeVariable, Variable: name, Pos: n.Pos}
		}

		fn, _ := LookupFunction(call.Function)
		var (
			inputs [][]float64
			period int
		)
		if fn.Windowed {
			inputs = [][]float64{env.evalSeries(call.Args[0])}
			period = int(call.Args[1].Value)
		} else {
			for _, a := range call.Args {
				inputs = append(inputs, env.evalSeries(a))
			}
		}

		name := fmt.Sprintf("__f%d", len(env.synthetic))
		env.series[name] = fn.Series(inputs, period)
		env.synthetic[key] = name
		return &Node{Type: NodeTypeVariable, Variable: name, Pos: n.Pos}
	}

	return n
}

// evalSeries evaluates a call-free node at every index
func (env *seriesEnv) evalSeries(n *Node) []float64 {
	if n.Type == NodeTypeVariable {
		if s, ok := env.series[n.Variable]; ok {
			return s
		}
	}
	out := make([]float64, env.length)
	for i := range out {
		v, err := n.eval(env.lookupAt(i))
		if err != nil {
			v = math.NaN()
		}
		out[i] = v
	}
	return out
}
