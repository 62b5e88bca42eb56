package models

import "time"

// CompensationStrategy controls what happens to effects that are already
// externally visible when an instance or deployment is unwound.
type CompensationStrategy string

const (
	// CompensationIgnore leaves downstream effects untouched.
	CompensationIgnore CompensationStrategy = "ignore"
	// CompensationMarkAndReprocess flags affected records for manual reconciliation.
	CompensationMarkAndReprocess CompensationStrategy = "mark_and_reprocess"
	// CompensationSoftDelete marks affected downstream records inactive.
	CompensationSoftDelete CompensationStrategy = "soft_delete"
)

// CompensationStepStatus is the outcome of one undo step.
type CompensationStepStatus string

const (
	CompensationStepCompensated CompensationStepStatus = "compensated"
	CompensationStepFailed      CompensationStepStatus = "failed"
	CompensationStepSkipped     CompensationStepStatus = "skipped"
)

// CompensationStep records the attempt to undo one completed node.
type CompensationStep struct {
	NodeID             string                 `json:"node_id"`
	CompensationNodeID string                 `json:"compensation_node_id,omitempty"`
	Status             CompensationStepStatus `json:"status"`
	Error              string                 `json:"error,omitempty"`
	CompletedAt        time.Time              `json:"completed_at"`
}

// CompensationSummary is the overall result of unwinding an instance.
// A failed step does not abort the unwind; it is recorded and the remaining
// steps are still attempted.
type CompensationSummary struct {
	Strategy   CompensationStrategy `json:"strategy"`
	Steps      []CompensationStep   `json:"steps"`
	Failures   int                  `json:"failures"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
}
