// Package decision routes actions through the trust and risk policy: every
// action an instance wants to perform is classified, matched against the
// decision matrix and either executed, parked for approval or rejected.
package decision

import (
	"context"
	"fmt"
	"path"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/persistence"
)

// RiskEvaluator classifies action types against the risk catalog. Exact
// matches win over patterns; among matching patterns the longest wins.
// Unclassified actions get the configured default level.
type RiskEvaluator struct {
	repo         persistence.DecisionRepository
	defaultLevel models.RiskLevel
}

func NewRiskEvaluator(repo persistence.DecisionRepository, defaultLevel models.RiskLevel) *RiskEvaluator {
	if defaultLevel == "" {
		defaultLevel = models.RiskHigh
	}

	return &RiskEvaluator{repo: repo, defaultLevel: defaultLevel}
}

// Classify returns the risk level for an action type and how it was matched.
func (e *RiskEvaluator) Classify(ctx context.Context, actionType string) (models.RiskLevel, string, error) {
	defs, err := e.repo.ListRiskDefinitions(ctx)
	if err != nil {
		return "", "", fmt.Errorf("loading risk catalog: %w", err)
	}

	var bestPattern *models.RiskDefinition

	for _, def := range defs {
		if !def.Pattern {
			if def.ActionType == actionType {
				return def.Level, fmt.Sprintf("exact match '%s'", def.ActionType), nil
			}

			continue
		}

		matched, err := path.Match(def.ActionType, actionType)
		if err != nil || !matched {
			continue
		}

		if bestPattern == nil || len(def.ActionType) > len(bestPattern.ActionType) {
			bestPattern = def
		}
	}

	if bestPattern != nil {
		return bestPattern.Level, fmt.Sprintf("pattern match '%s'", bestPattern.ActionType), nil
	}

	return e.defaultLevel, "unclassified action, default risk applied", nil
}
