package expressions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/plancheck/pkg/schema"
)

func finalState() map[string]any {
	return map[string]any{
		"occupancy": map[string]any{"RedBin.slot": "redbox", "Inspection.slot": ""},
		"holding":   map[string]any{"robotA": "", "robotB": ""},
		"agent_at":  map[string]any{"robotA": "RedBin.dock", "robotB": ""},
	}
}

func TestNewCELEngine(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	assert.Equal(t, "cel", e.Name())
}

func TestCEL_Conditions(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		expr string
		want bool
	}{
		{`occupancy["Inspection.slot"] == ""`, true},
		{`occupancy["RedBin.slot"] == "redbox"`, true},
		{`holding.all(a, holding[a] == "")`, true},
		{`agent_at["robotA"] == "RedBin.dock" && agent_at["robotB"] != ""`, false},
		{`"Shelf.red.slot" in occupancy`, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			ok, err := EvaluateBool(ctx, e, tt.expr, finalState())
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestCEL_MissingVariablesDefaultEmpty(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	ok, err := EvaluateBool(context.Background(), e, `size(occupancy) == 0`, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCEL_Errors(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("undeclared variable", func(t *testing.T) {
		_, err := e.Evaluate(ctx, `inventory.size() > 0`, finalState())
		var pe *schema.PlanError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, schema.ErrCodeValidation, pe.Code)
	})

	t.Run("non-bool condition", func(t *testing.T) {
		_, err := e.Evaluate(ctx, `size(occupancy)`, finalState())
		var pe *schema.PlanError
		require.True(t, errors.As(err, &pe))
		assert.Contains(t, pe.Message, "want bool")
	})

	t.Run("missing key at runtime", func(t *testing.T) {
		_, err := e.Evaluate(ctx, `occupancy["Nowhere"] == "x"`, finalState())
		var pe *schema.PlanError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, schema.ErrCodeExecution, pe.Code)
	})
}
