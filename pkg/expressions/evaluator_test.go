package expressions

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestEvaluator_EvaluateString(t *testing.T) {
	e := NewEvaluator()
	data := decode(t, `{"id": 1234567, "acf": {"nome_completo": "  Maria Silva "}, "name": "fallback"}`)

	tests := []struct {
		expr string
		want string
	}{
		{"id", "1234567"},
		{"acf.nome_completo || name", "Maria Silva"},
		{"acf.missing || name", "fallback"},
		{"nothing", ""},
		{"acf", ""},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := e.EvaluateString(tt.expr, data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_EvaluateSlice(t *testing.T) {
	e := NewEvaluator()
	expr := "data || clients || results || @"

	items, err := e.EvaluateSlice(expr, decode(t, `{"data": [{"id": 1}, {"id": 2}]}`))
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = e.EvaluateSlice(expr, decode(t, `[{"id": 1}]`))
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = e.EvaluateSlice(expr, decode(t, `{"id": 9}`))
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = e.EvaluateSlice(expr, decode(t, `[]`))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestEvaluator_EvaluateMap(t *testing.T) {
	e := NewEvaluator()

	m, err := e.EvaluateMap("acf || meta", decode(t, `{"meta": {"a": 1}}`))
	require.NoError(t, err)
	assert.Equal(t, float64(1), m["a"])

	m, err = e.EvaluateMap("name", decode(t, `{"name": "x"}`))
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestEvaluator_Validate(t *testing.T) {
	e := NewEvaluator()
	assert.NoError(t, e.Validate("a.b || c"))
	assert.Error(t, e.Validate("a.[b"))
}
