package loop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

func TestLoopNodeIteratesLiteralItems(t *testing.T) {
	node, err := NewLoopNode("fanout", map[string]any{
		"items": []any{"alpha", "beta", "gamma"},
		"item_template": map[string]any{
			"name":  "{{ .vars.item }}",
			"index": "{{ .vars.item_index }}",
		},
	})
	require.NoError(t, err)

	outcome, err := node.Execute(context.Background(), &models.ExecutionContext{InstanceID: "inst-1"})
	require.NoError(t, err)
	require.Equal(t, protocol.OutcomeSuccess, outcome.Status)

	results, ok := outcome.Output["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 3)

	first := results[0].(map[string]any)
	assert.Equal(t, "alpha", first["name"])
	assert.Equal(t, float64(0), first["index"])
	assert.Equal(t, false, outcome.Output["truncated"])
}

func TestLoopNodeResolvesItemsFromUpstreamOutput(t *testing.T) {
	node, err := NewLoopNode("fanout", map[string]any{
		"items": `{{ index .outputs.fetch "rows" }}`,
		"item_template": map[string]any{
			"id": `{{ index .vars.item "id" }}`,
		},
	})
	require.NoError(t, err)

	ectx := &models.ExecutionContext{
		InstanceID: "inst-1",
		NodeOutputs: map[string]*models.NodeOutput{
			"fetch": {
				NodeID: "fetch",
				Data: map[string]any{
					"rows": []any{
						map[string]any{"id": "r1"},
						map[string]any{"id": "r2"},
					},
				},
				Status: models.NodeStatusSuccess,
			},
		},
	}

	outcome, err := node.Execute(context.Background(), ectx)
	require.NoError(t, err)
	require.Equal(t, protocol.OutcomeSuccess, outcome.Status)

	results := outcome.Output["results"].([]any)
	require.Len(t, results, 2)
	assert.Equal(t, "r2", results[1].(map[string]any)["id"])
}

func TestLoopNodeTruncatesAtMaxIterations(t *testing.T) {
	node, err := NewLoopNode("fanout", map[string]any{
		"items":          []any{"a", "b", "c", "d"},
		"item_template":  map[string]any{"name": "{{ .vars.item }}"},
		"max_iterations": float64(2),
	})
	require.NoError(t, err)

	outcome, err := node.Execute(context.Background(), &models.ExecutionContext{InstanceID: "inst-1"})
	require.NoError(t, err)

	assert.Equal(t, float64(2), outcome.Output["iterations"])
	assert.Equal(t, true, outcome.Output["truncated"])
}

func TestLoopNodeDoesNotMutateCallerVariables(t *testing.T) {
	node, err := NewLoopNode("fanout", map[string]any{
		"items":         []any{"a"},
		"item_template": map[string]any{"name": "{{ .vars.item }}"},
	})
	require.NoError(t, err)

	ectx := &models.ExecutionContext{
		InstanceID: "inst-1",
		Variables:  map[string]any{"region": "eu"},
	}

	_, err = node.Execute(context.Background(), ectx)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"region": "eu"}, ectx.Variables)
}

func TestNewLoopNodeValidation(t *testing.T) {
	_, err := NewLoopNode("fanout", map[string]any{
		"item_template": map[string]any{"name": "x"},
	})
	require.Error(t, err)

	_, err = NewLoopNode("fanout", map[string]any{
		"items": []any{"a"},
	})
	require.Error(t, err)

	_, err = NewLoopNode("fanout", map[string]any{
		"items":          []any{"a"},
		"item_template":  map[string]any{"name": "x"},
		"max_iterations": float64(0),
	})
	require.Error(t, err)
}
