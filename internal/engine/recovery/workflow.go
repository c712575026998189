package recovery

import (
	"context"
	"time"

	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/engine/retry"
)

// StepType selects what a workflow step does.
type StepType string

const (
	StepRetry    StepType = "retry"
	StepFallback StepType = "fallback"
	StepReset    StepType = "reset"
	StepNotify   StepType = "notify"
	StepCustom   StepType = "custom"
)

// RetryStep re-runs an operation through the retry manager with
// step-local config.
type RetryStep struct {
	Operation retry.Operation
	Config    retry.Config
}

// FallbackStep consults the fallback manager for the triggering error.
type FallbackStep struct {
	Query string
}

// Step is one unit of a recovery workflow.
type Step struct {
	ID            string
	Type          StepType
	Timeout       time.Duration
	SkipOnFailure bool

	Retry    *RetryStep
	Fallback *FallbackStep
	// Reset clears caller-owned state. When nil on a reset step, the
	// orchestrator clears the workflow's own trigger counters instead.
	Reset func()
	// Notify is a side effect only; it never blocks subsequent steps.
	Notify func(err *domain.ClassifiedError)
	Custom func(ctx context.Context, err *domain.ClassifiedError) (any, error)
}

// Threshold requires a minimum number of matching errors within a
// trailing window before the trigger fires.
type Threshold struct {
	Count  int
	Window time.Duration
}

// Trigger matches classified errors against a workflow. Zero-valued
// fields match anything; Condition is the final gate.
type Trigger struct {
	ErrorType domain.ErrorType
	Severity  domain.Severity
	Threshold *Threshold
	Condition func(err *domain.ClassifiedError) bool
}

// matches checks the type/severity/condition gates, not the threshold.
func (t Trigger) matches(err *domain.ClassifiedError) bool {
	if t.ErrorType != "" && err.Classification.Type != t.ErrorType {
		return false
	}
	if t.Severity != "" && err.Classification.Severity != t.Severity {
		return false
	}
	if t.Condition != nil && !t.Condition(err) {
		return false
	}
	return true
}

// Workflow is a configured multi-step remediation.
type Workflow struct {
	ID            string
	Triggers      []Trigger
	Steps         []Step
	Timeout       time.Duration
	MaxExecutions int
	Cooldown      time.Duration
	Enabled       bool
}
