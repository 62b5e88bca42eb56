package models

import "time"

// TrustLevel is a discrete reliability tier for a deployable. Transitions are
// monotonic by one step per evaluation cycle.
type TrustLevel int

const (
	TrustProposed    TrustLevel = 0 // new, unverified
	TrustAlertOnly   TrustLevel = 1 // may notify, nothing more
	TrustLowRiskAuto TrustLevel = 2 // low-risk actions run unattended
	TrustFullAuto    TrustLevel = 3 // low and medium risk run unattended
)

// Name returns a human-readable label for the level.
func (l TrustLevel) Name() string {
	switch l {
	case TrustProposed:
		return "proposed"
	case TrustAlertOnly:
		return "alert_only"
	case TrustLowRiskAuto:
		return "low_risk_auto"
	case TrustFullAuto:
		return "full_auto"
	default:
		return "unknown"
	}
}

// TrustComponents are the raw inputs to a trust score evaluation.
type TrustComponents struct {
	SuccessRate            float64 `json:"success_rate"`
	Feedback               float64 `json:"feedback"`
	Age                    float64 `json:"age"`
	Frequency              float64 `json:"frequency"`
	RecentCriticalFailures int     `json:"recent_critical_failures"`
}

// TrustScore is the current reliability estimate for a deployable.
type TrustScore struct {
	EntityID    string          `json:"entity_id" validate:"required"`
	Level       TrustLevel      `json:"level"     validate:"min=0,max=3"`
	Score       float64         `json:"score"`
	Components  TrustComponents `json:"components"`
	EvaluatedAt time.Time       `json:"evaluated_at"`
}

// TrustLevelChange is one recorded promotion or demotion.
type TrustLevelChange struct {
	EntityID      string     `json:"entity_id"`
	PreviousLevel TrustLevel `json:"previous_level"`
	NewLevel      TrustLevel `json:"new_level"`
	Reason        string     `json:"reason"`
	TriggeredBy   string     `json:"triggered_by"`
	CreatedAt     time.Time  `json:"created_at"`
}
