package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateComparison(t *testing.T) {
	e := NewEvaluator()

	vars := map[string]any{"count": int64(5), "name": "alice"}

	cases := []struct {
		expr string
		want bool
	}{
		{`vars.count > 0`, true},
		{`vars.count > 10`, false},
		{`vars.count >= 5 && vars.name == "alice"`, true},
		{`vars.name == "bob" || vars.count == 5`, true},
		{`$.count * 2 == 10`, true},
	}
	for _, tc := range cases {
		got, err := e.Evaluate(tc.expr, vars)
		require.NoError(t, err, "expr %q", tc.expr)
		assert.Equal(t, tc.want, got, "expr %q", tc.expr)
	}
}

func TestEvaluateNonBoolean(t *testing.T) {
	e := NewEvaluator()
	_, err := e.Evaluate(`vars.count + 1`, map[string]any{"count": int64(1)})
	assert.Error(t, err)
}

func TestEvaluateInvalidExpression(t *testing.T) {
	e := NewEvaluator()
	_, err := e.Evaluate(`vars.count >`, map[string]any{"count": int64(1)})
	assert.Error(t, err)
}

func TestEvaluateItems(t *testing.T) {
	e := NewEvaluator()

	items, err := e.EvaluateItems(`vars.items`, map[string]any{
		"items": []any{"a", "b", "c"},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, items)

	items, err = e.EvaluateItems(`[1, 2, 3]`, nil)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestEvaluateItemsNonList(t *testing.T) {
	e := NewEvaluator()
	_, err := e.EvaluateItems(`"not a list"`, nil)
	assert.Error(t, err)
}

func TestCompileCache(t *testing.T) {
	e := NewEvaluator()

	_, err := e.Evaluate(`vars.x > 1`, map[string]any{"x": int64(2)})
	require.NoError(t, err)
	assert.Equal(t, 1, e.CacheSize())

	// Same expression reuses the compiled program
	_, err = e.Evaluate(`vars.x > 1`, map[string]any{"x": int64(0)})
	require.NoError(t, err)
	assert.Equal(t, 1, e.CacheSize())

	e.ClearCache()
	assert.Equal(t, 0, e.CacheSize())
}
