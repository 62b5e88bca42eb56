package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/persistence"
)

// MatrixService looks decisions up in the configured matrix. A pair absent
// from the matrix defaults to approval so a configuration gap can never widen
// autonomy.
type MatrixService struct {
	repo   persistence.DecisionRepository
	logger *slog.Logger
}

func NewMatrixService(repo persistence.DecisionRepository, logger *slog.Logger) *MatrixService {
	return &MatrixService{repo: repo, logger: logger}
}

// Lookup returns the decision for a (trust, risk) pair. The boolean reports
// whether the pair was missing and the approval default applied.
func (s *MatrixService) Lookup(ctx context.Context, trust models.TrustLevel, risk models.RiskLevel) (models.Decision, bool, error) {
	entry, err := s.repo.GetMatrixEntry(ctx, trust, risk)
	if err != nil {
		if errors.Is(err, persistence.ErrMatrixEntryNotFound) {
			s.logger.Warn("decision matrix gap, defaulting to approval",
				"trust_level", int(trust),
				"risk_level", string(risk))

			return models.DecisionApproval, true, nil
		}

		return "", false, fmt.Errorf("looking up matrix entry: %w", err)
	}

	return entry.Decision, false, nil
}

// Seed installs the default matrix for every pair not already configured.
func (s *MatrixService) Seed(ctx context.Context) error {
	for _, entry := range DefaultMatrix() {
		_, err := s.repo.GetMatrixEntry(ctx, entry.TrustLevel, entry.RiskLevel)
		if err == nil {
			continue
		}

		if !errors.Is(err, persistence.ErrMatrixEntryNotFound) {
			return fmt.Errorf("checking matrix entry: %w", err)
		}

		if err := s.repo.UpsertMatrixEntry(ctx, entry); err != nil {
			return fmt.Errorf("seeding matrix entry (%d, %s): %w", entry.TrustLevel, entry.RiskLevel, err)
		}
	}

	return nil
}

// DefaultMatrix is the conservative built-in policy. Untrusted levels need
// approval for everything and are refused critical actions outright; trusted
// levels earn auto execution for low, then medium, risk.
func DefaultMatrix() []*models.DecisionMatrixEntry {
	decide := func(trust models.TrustLevel, risk models.RiskLevel) models.Decision {
		if risk == models.RiskCritical {
			return models.DecisionReject
		}

		switch trust {
		case models.TrustLowRiskAuto:
			if risk == models.RiskLow {
				return models.DecisionAuto
			}
		case models.TrustFullAuto:
			if risk == models.RiskLow || risk == models.RiskMedium {
				return models.DecisionAuto
			}
		}

		return models.DecisionApproval
	}

	var entries []*models.DecisionMatrixEntry

	for trust := models.TrustProposed; trust <= models.TrustFullAuto; trust++ {
		for _, risk := range models.RiskLevels {
			entries = append(entries, &models.DecisionMatrixEntry{
				TrustLevel:  trust,
				RiskLevel:   risk,
				Decision:    decide(trust, risk),
				Description: "built-in default",
			})
		}
	}

	return entries
}
