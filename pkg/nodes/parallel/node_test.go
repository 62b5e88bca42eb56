package parallel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

func TestParallelNodeExposesBranchesAndJoin(t *testing.T) {
	node, err := NewParallelNode("split", map[string]any{
		"branches": []any{"enrich", "score"},
		"join":     JoinFailFast,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"enrich", "score"}, node.Branches())
	assert.Equal(t, JoinFailFast, node.Join())

	outcome, err := node.Execute(context.Background(), &models.ExecutionContext{InstanceID: "inst-1"})
	require.NoError(t, err)
	assert.Equal(t, protocol.OutcomeSuccess, outcome.Status)
	assert.Equal(t, JoinFailFast, outcome.Output["join"])
}

func TestParallelNodeDefaultsToWaitAll(t *testing.T) {
	node, err := NewParallelNode("split", map[string]any{
		"branches": []any{"enrich"},
	})
	require.NoError(t, err)
	assert.Equal(t, JoinWaitAll, node.Join())
}

func TestNewParallelNodeValidation(t *testing.T) {
	_, err := NewParallelNode("split", map[string]any{})
	require.Error(t, err)

	_, err = NewParallelNode("split", map[string]any{
		"branches": []any{"a", "a"},
	})
	require.Error(t, err)

	_, err = NewParallelNode("split", map[string]any{
		"branches": []any{"a"},
		"join":     "sometimes",
	})
	require.Error(t, err)
}
