// Package trust maintains the reliability tier of each deployable. Scores
// are recomputed from observed behavior; levels only ever move one step per
// evaluation so autonomy is earned and lost gradually.
package trust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stratumflow/stratum/pkg/eventbus"
	"github.com/stratumflow/stratum/pkg/events"
	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/persistence"
)

// Score component weights. They sum to 1.
const (
	weightSuccessRate = 0.45
	weightFeedback    = 0.25
	weightAge         = 0.15
	weightFrequency   = 0.15
)

// Normalization saturation points.
const (
	ageSaturationDays       = 90.0
	frequencySaturationRuns = 10.0
)

// Level thresholds on the weighted score.
const (
	thresholdFullAuto    = 0.85
	thresholdLowRiskAuto = 0.60
	thresholdAlertOnly   = 0.35
)

// Observation is the raw behavioral input for one evaluation cycle.
type Observation struct {
	SuccessRate            float64 // fraction of recent executions that succeeded, 0..1
	Feedback               float64 // aggregated user feedback signal, 0..1
	AgeDays                float64 // days since first production execution
	ExecutionsPerDay       float64 // recent execution frequency
	RecentCriticalFailures int     // critical failures in the trailing window
}

// Manager evaluates trust scores and applies level transitions.
type Manager struct {
	repo   persistence.TrustRepository
	bus    eventbus.EventPublisher
	logger *slog.Logger
}

func NewManager(repo persistence.TrustRepository, bus eventbus.EventPublisher, logger *slog.Logger) *Manager {
	return &Manager{repo: repo, bus: bus, logger: logger}
}

// CurrentLevel returns the entity's trust level. Entities never evaluated
// are level 0.
func (m *Manager) CurrentLevel(ctx context.Context, entityID string) (models.TrustLevel, error) {
	score, err := m.repo.GetScore(ctx, entityID)
	if err != nil {
		if errors.Is(err, persistence.ErrTrustScoreNotFound) {
			return models.TrustProposed, nil
		}

		return 0, err
	}

	return score.Level, nil
}

// Evaluate recomputes the entity's score from an observation and moves the
// level at most one step toward where the score points. The updated score and
// any level change are persisted; a change also emits an event.
func (m *Manager) Evaluate(ctx context.Context, entityID string, obs Observation) (*models.TrustScore, error) {
	current := models.TrustProposed

	previous, err := m.repo.GetScore(ctx, entityID)
	switch {
	case err == nil:
		current = previous.Level
	case errors.Is(err, persistence.ErrTrustScoreNotFound):
	default:
		return nil, fmt.Errorf("loading trust score for '%s': %w", entityID, err)
	}

	components := normalize(obs)
	value := weightSuccessRate*components.SuccessRate +
		weightFeedback*components.Feedback +
		weightAge*components.Age +
		weightFrequency*components.Frequency

	target := levelForScore(value)

	if cap, capped := criticalFailureCap(obs.RecentCriticalFailures); capped && target > cap {
		target = cap
	}

	next := step(current, target)

	score := &models.TrustScore{
		EntityID:    entityID,
		Level:       next,
		Score:       value,
		Components:  components,
		EvaluatedAt: time.Now().UTC(),
	}

	if err := m.repo.SaveScore(ctx, score); err != nil {
		return nil, fmt.Errorf("saving trust score: %w", err)
	}

	if next != current {
		if err := m.recordChange(ctx, entityID, current, next, value, obs); err != nil {
			return nil, err
		}
	}

	return score, nil
}

// History returns recent level changes, newest first.
func (m *Manager) History(ctx context.Context, entityID string, limit int) ([]*models.TrustLevelChange, error) {
	return m.repo.ListChanges(ctx, entityID, limit)
}

func (m *Manager) recordChange(ctx context.Context, entityID string, from, to models.TrustLevel, score float64, obs Observation) error {
	direction := "promoted"
	if to < from {
		direction = "demoted"
	}

	reason := fmt.Sprintf("%s on score %.3f", direction, score)
	if obs.RecentCriticalFailures > 0 {
		reason = fmt.Sprintf("%s (%d recent critical failures)", reason, obs.RecentCriticalFailures)
	}

	change := &models.TrustLevelChange{
		EntityID:      entityID,
		PreviousLevel: from,
		NewLevel:      to,
		Reason:        reason,
		TriggeredBy:   "evaluation",
		CreatedAt:     time.Now().UTC(),
	}

	if err := m.repo.AppendChange(ctx, change); err != nil {
		return fmt.Errorf("recording trust level change: %w", err)
	}

	m.logger.Info("trust level changed",
		"entity_id", entityID,
		"previous_level", from.Name(),
		"new_level", to.Name(),
		"score", score)

	if m.bus != nil {
		event := events.TrustLevelChanged{
			BaseEvent: events.BaseEvent{
				ID:        uuid.New().String(),
				Type:      events.TrustLevelChangedEvent,
				Timestamp: change.CreatedAt,
			},
			EntityID:      entityID,
			PreviousLevel: from,
			NewLevel:      to,
			Reason:        reason,
		}
		if err := m.bus.Publish(ctx, entityID, event); err != nil {
			m.logger.Warn("failed to publish trust level change", "error", err)
		}
	}

	return nil
}

func normalize(obs Observation) models.TrustComponents {
	return models.TrustComponents{
		SuccessRate:            clamp01(obs.SuccessRate),
		Feedback:               clamp01(obs.Feedback),
		Age:                    clamp01(obs.AgeDays / ageSaturationDays),
		Frequency:              clamp01(obs.ExecutionsPerDay / frequencySaturationRuns),
		RecentCriticalFailures: obs.RecentCriticalFailures,
	}
}

func levelForScore(score float64) models.TrustLevel {
	switch {
	case score >= thresholdFullAuto:
		return models.TrustFullAuto
	case score >= thresholdLowRiskAuto:
		return models.TrustLowRiskAuto
	case score >= thresholdAlertOnly:
		return models.TrustAlertOnly
	default:
		return models.TrustProposed
	}
}

// criticalFailureCap limits the achievable level when critical failures were
// seen recently: one caps at level 2, more than one at level 1.
func criticalFailureCap(failures int) (models.TrustLevel, bool) {
	switch {
	case failures > 1:
		return models.TrustAlertOnly, true
	case failures == 1:
		return models.TrustLowRiskAuto, true
	default:
		return 0, false
	}
}

// step moves one level toward target.
func step(current, target models.TrustLevel) models.TrustLevel {
	switch {
	case target > current:
		return current + 1
	case target < current:
		return current - 1
	default:
		return current
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}

	return v
}
