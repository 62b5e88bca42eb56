package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumflow/stratum/pkg/models"
)

func TestRender_SimpleExpression(t *testing.T) {
	data := map[string]any{
		"name":   "Ada",
		"count":  7,
		"active": true,
	}

	result, err := Render("{{ .name }}", data)
	require.NoError(t, err)
	assert.Equal(t, "Ada", result)

	result, err = Render("{{ .active }}", data)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	// Numbers coerce to float64.
	result, err = Render("{{ .count }}", data)
	require.NoError(t, err)
	assert.Equal(t, 7.0, result)
}

func TestRender_JSONConstruction(t *testing.T) {
	data := map[string]any{
		"order": map[string]any{"id": "o-1", "total": 99.5},
	}

	result, err := Render(`{"order_id": "{{ .order.id }}", "total": {{ .order.total }}}`, data)
	require.NoError(t, err)

	resultMap, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "o-1", resultMap["order_id"])
	assert.Equal(t, 99.5, resultMap["total"])
}

func testContext() *models.ExecutionContext {
	return &models.ExecutionContext{
		InstanceID:   "inst-1",
		DefinitionID: "wf-orders",
		TriggerData:  map[string]any{"source": "webhook"},
		Variables:    map[string]any{"region": "eu"},
		NodeOutputs: map[string]*models.NodeOutput{
			"fetch": {
				NodeID: "fetch",
				Data:   map[string]any{"rows": 3.0},
				Status: models.NodeStatusSuccess,
			},
		},
	}
}

func TestRenderWithContext_NodeOutputs(t *testing.T) {
	result, err := RenderWithContext("{{ .outputs.fetch.rows }}", testContext())
	require.NoError(t, err)
	assert.Equal(t, 3.0, result)

	result, err = RenderWithContext("{{ .vars.region }}-{{ .trigger_data.source }}", testContext())
	require.NoError(t, err)
	assert.Equal(t, "eu-webhook", result)

	result, err = RenderWithContext("{{ .instance.definition_id }}", testContext())
	require.NoError(t, err)
	assert.Equal(t, "wf-orders", result)
}

func TestRenderMap_Recursion(t *testing.T) {
	config := map[string]any{
		"url":    "https://api/{{ .vars.region }}/orders",
		"static": "unchanged",
		"limit":  10,
		"nested": map[string]any{
			"rows": "{{ .outputs.fetch.rows }}",
		},
		"list": []any{"{{ .vars.region }}", "fixed"},
	}

	rendered, err := RenderMap(config, testContext())
	require.NoError(t, err)

	assert.Equal(t, "https://api/eu/orders", rendered["url"])
	assert.Equal(t, "unchanged", rendered["static"])
	assert.Equal(t, 10, rendered["limit"])

	nested, ok := rendered["nested"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3.0, nested["rows"])

	list, ok := rendered["list"].([]any)
	require.True(t, ok)
	assert.Equal(t, "eu", list[0])
	assert.Equal(t, "fixed", list[1])
}

func TestRender_InvalidTemplate(t *testing.T) {
	_, err := Render("{{ .unclosed", nil)
	require.Error(t, err)
}
