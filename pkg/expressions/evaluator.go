// Package expressions locates fields inside loosely shaped external payloads with JMESPath.
package expressions

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jmespath/go-jmespath"
)

// Evaluator compiles JMESPath expressions once and reuses them across lookups.
// Compiled expressions are never evicted.
type Evaluator struct {
	compiled sync.Map // expression -> *jmespath.JMESPath
}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate evaluates a JMESPath expression against data
func (e *Evaluator) Evaluate(expression string, data any) (any, error) {
	compiled, err := e.getOrCompile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}

	result, err := compiled.Search(data)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expression, err)
	}

	return result, nil
}

// EvaluateString returns the result as trimmed text. Numbers are rendered without
// exponent so numeric ids such as 1234567 survive the float64 decoding.
func (e *Evaluator) EvaluateString(expression string, data any) (string, error) {
	result, err := e.Evaluate(expression, data)
	if err != nil {
		return "", err
	}
	return Stringify(result), nil
}

// EvaluateSlice evaluates an expression and returns the result as a slice.
// A single object is wrapped; nil yields an empty slice.
func (e *Evaluator) EvaluateSlice(expression string, data any) ([]any, error) {
	result, err := e.Evaluate(expression, data)
	if err != nil {
		return nil, err
	}

	switch v := result.(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	default:
		return []any{v}, nil
	}
}

// EvaluateMap evaluates an expression and returns the result as a map.
// Non-object results yield nil.
func (e *Evaluator) EvaluateMap(expression string, data any) (map[string]any, error) {
	result, err := e.Evaluate(expression, data)
	if err != nil {
		return nil, err
	}

	m, _ := result.(map[string]any)
	return m, nil
}

// Validate checks if an expression is valid
func (e *Evaluator) Validate(expression string) error {
	_, err := e.getOrCompile(expression)
	return err
}

func (e *Evaluator) getOrCompile(expression string) (*jmespath.JMESPath, error) {
	if cached, ok := e.compiled.Load(expression); ok {
		return cached.(*jmespath.JMESPath), nil
	}

	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return nil, err
	}
	actual, _ := e.compiled.LoadOrStore(expression, compiled)
	return actual.(*jmespath.JMESPath), nil
}

// Stringify renders a decoded JSON scalar as text. Objects and arrays yield "".
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}
