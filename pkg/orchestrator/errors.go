package orchestrator

import (
	"errors"
	"fmt"
	"time"
)

// ErrCheckpointRestoreMiss is returned by Resume when neither a checkpoint
// nor live instance state exists.
var ErrCheckpointRestoreMiss = errors.New("no resumable state found")

// ErrInstanceNotSuspended is returned when a signal or decision targets an
// instance that is not parked.
var ErrInstanceNotSuspended = errors.New("instance is not suspended")

// ValidationError reports a malformed definition graph or node config.
type ValidationError struct {
	DefinitionID string
	Problems     []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("definition '%s' failed validation: %v", e.DefinitionID, e.Problems)
}

// NodeExecutionError is a node failure after retries were exhausted or a
// fatal failure on first attempt.
type NodeExecutionError struct {
	NodeID    string
	Attempts  int
	Retryable bool
	Err       error
}

func (e *NodeExecutionError) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "retryable"
	}

	return fmt.Sprintf("node '%s' failed (%s, %d attempts): %v", e.NodeID, kind, e.Attempts, e.Err)
}

func (e *NodeExecutionError) Unwrap() error { return e.Err }

// TimeoutError is a WAIT node whose timeout fired before a signal arrived.
// Timeouts are fail-fast, never retried.
type TimeoutError struct {
	NodeID  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("node '%s' timed out after %s", e.NodeID, e.Timeout)
}

// CompensationFailureError reports that unwinding a failed instance left
// undo steps unexecuted.
type CompensationFailureError struct {
	InstanceID string
	Failures   int
}

func (e *CompensationFailureError) Error() string {
	return fmt.Sprintf("compensation for instance '%s' left %d steps failed", e.InstanceID, e.Failures)
}
