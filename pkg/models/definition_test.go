package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stratumflow/stratum/pkg/models"
)

func edgeTargets(edges []*models.Edge) []string {
	targets := make([]string, 0, len(edges))
	for _, e := range edges {
		targets = append(targets, e.To)
	}

	return targets
}

func TestSuccessorsFollowsUnlabeledEdges(t *testing.T) {
	def := &models.WorkflowDefinition{
		Edges: []*models.Edge{
			{From: "fetch", To: "route"},
			{From: "route", To: "alert", Port: "high"},
			{From: "route", To: "log", Port: "low"},
		},
	}

	next := def.Successors("fetch", "")
	assert.Equal(t, []string{"route"}, edgeTargets(next))
}

func TestSuccessorsPrefersMatchingPort(t *testing.T) {
	def := &models.WorkflowDefinition{
		Edges: []*models.Edge{
			{From: "route", To: "alert", Port: "high"},
			{From: "route", To: "log", Port: "low"},
			{From: "route", To: "archive"},
		},
	}

	next := def.Successors("route", "high")
	assert.Equal(t, []string{"alert"}, edgeTargets(next))
}

func TestSuccessorsFallsBackToUnlabeledWhenPortUnmatched(t *testing.T) {
	def := &models.WorkflowDefinition{
		Edges: []*models.Edge{
			{From: "route", To: "alert", Port: "high"},
			{From: "route", To: "archive"},
		},
	}

	next := def.Successors("route", "low")
	assert.Equal(t, []string{"archive"}, edgeTargets(next))
}

func TestSuccessorsEmptyPortIgnoresLabeledEdges(t *testing.T) {
	def := &models.WorkflowDefinition{
		Edges: []*models.Edge{
			{From: "gate", To: "fulfil", Port: "approved"},
			{From: "gate", To: "notify", Port: "rejected"},
		},
	}

	assert.Empty(t, def.Successors("gate", ""))
}

func TestSuccessorsFanOut(t *testing.T) {
	def := &models.WorkflowDefinition{
		Edges: []*models.Edge{
			{From: "split", To: "a"},
			{From: "split", To: "b"},
			{From: "other", To: "c"},
		},
	}

	next := def.Successors("split", "")
	assert.ElementsMatch(t, []string{"a", "b"}, edgeTargets(next))
}
