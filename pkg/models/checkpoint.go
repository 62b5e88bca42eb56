package models

import "time"

// Checkpoint is a resumable snapshot of an in-progress instance. Checkpoints
// for an instance carry a strictly increasing sequence number; a newer
// checkpoint supersedes older ones in every tier.
type Checkpoint struct {
	ID             string                 `json:"id"          validate:"required"`
	InstanceID     string                 `json:"instance_id" validate:"required"`
	NodeID         string                 `json:"node_id"`
	Sequence       uint64                 `json:"sequence"`
	Context        map[string]*NodeOutput `json:"context"`
	CompletedNodes []string               `json:"completed_nodes"`
	Variables      map[string]any         `json:"variables,omitempty"`
	TriggerData    map[string]any         `json:"trigger_data,omitempty"`
	Progress       float64                `json:"progress"`
	CreatedAt      time.Time              `json:"created_at"`
	ExpiresAt      *time.Time             `json:"expires_at,omitempty"`
}

// Expired reports whether the checkpoint is past its retention deadline.
func (c *Checkpoint) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}
