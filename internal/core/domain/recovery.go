package domain

import "time"

// ExecutionStatus tracks a recovery run through its state machine.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSuccess   ExecutionStatus = "success"
	ExecutionFailure   ExecutionStatus = "failure"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the execution has finished.
func (s ExecutionStatus) Terminal() bool {
	return s != ExecutionRunning
}

// RecoveryExecution is one triggered run of a recovery workflow.
type RecoveryExecution struct {
	WorkflowID     string          `json:"workflow_id"`
	ExecutionID    string          `json:"execution_id"`
	Status         ExecutionStatus `json:"status"`
	CurrentStep    string          `json:"current_step,omitempty"`
	CompletedSteps []string        `json:"completed_steps"`
	Errors         []string        `json:"errors,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	EndedAt        time.Time       `json:"ended_at,omitempty"`
	Result         any             `json:"result,omitempty"`
}

// Duration returns the wall time of a finished execution.
func (e *RecoveryExecution) Duration() time.Duration {
	if e.EndedAt.IsZero() {
		return 0
	}
	return e.EndedAt.Sub(e.StartedAt)
}
