package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/engine/fallback"
	"github.com/vietddude/resilience/internal/engine/metrics"
	"github.com/vietddude/resilience/internal/engine/retry"
)

// Sentinel outcomes for manual Execute calls.
var (
	ErrWorkflowNotFound = fmt.Errorf("workflow not found")
	ErrWorkflowDisabled = fmt.Errorf("workflow disabled")
	ErrCooldownActive   = fmt.Errorf("workflow in cooldown")
	ErrTooManyRunning   = fmt.Errorf("max concurrent recoveries reached")
)

// workflowState is the mutable bookkeeping per registered workflow.
// errWindows keeps one sliding window per trigger position so an
// error matching several threshold triggers counts once in each.
type workflowState struct {
	wf         Workflow
	lastEnd    time.Time
	active     int
	runs       int
	disabled   bool // tripped by MaxExecutions, cleared by SetEnabled
	errWindows map[int][]time.Time
}

// Observer receives a snapshot of an execution when it starts
// (status running) and again when it reaches a terminal status.
// Calls are synchronous and must not block.
type Observer func(exec *domain.RecoveryExecution)

// Orchestrator watches the classified error stream and runs recovery
// workflows when trigger conditions hold.
type Orchestrator struct {
	retryMgr    *retry.Manager
	fallbackMgr *fallback.Manager
	log         *slog.Logger

	maxConcurrent int
	historySize   int

	mu        sync.Mutex
	workflows map[string]*workflowState
	running   int
	cancels   map[string]context.CancelFunc
	history   *ringBuffer
	observer  Observer

	wg sync.WaitGroup
}

// Config tunes orchestrator-wide limits.
type Config struct {
	MaxConcurrent int
	HistorySize   int
}

// NewOrchestrator creates an orchestrator delegating retry and
// fallback steps to the given managers.
func NewOrchestrator(retryMgr *retry.Manager, fallbackMgr *fallback.Manager, cfg Config, log *slog.Logger) *Orchestrator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		retryMgr:      retryMgr,
		fallbackMgr:   fallbackMgr,
		log:           log,
		maxConcurrent: cfg.MaxConcurrent,
		historySize:   cfg.HistorySize,
		workflows:     make(map[string]*workflowState),
		cancels:       make(map[string]context.CancelFunc),
		history:       newRingBuffer(cfg.HistorySize),
	}
}

// RegisterWorkflow adds or replaces a workflow and returns the
// previous definition with that ID, if any.
func (o *Orchestrator) RegisterWorkflow(wf Workflow) (*Workflow, error) {
	if wf.ID == "" {
		return nil, fmt.Errorf("workflow ID must not be empty")
	}
	if len(wf.Steps) == 0 {
		return nil, fmt.Errorf("workflow %s: at least one step required", wf.ID)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	var prev *Workflow
	if st, ok := o.workflows[wf.ID]; ok {
		p := st.wf
		prev = &p
	}
	o.workflows[wf.ID] = &workflowState{wf: wf}
	return prev, nil
}

// RemoveWorkflow deletes a workflow and returns its definition, or nil.
func (o *Orchestrator) RemoveWorkflow(id string) *Workflow {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.workflows[id]
	if !ok {
		return nil
	}
	delete(o.workflows, id)
	return &st.wf
}

// SetEnabled re-enables a workflow tripped by MaxExecutions, or
// disables one manually.
func (o *Orchestrator) SetEnabled(id string, enabled bool) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.workflows[id]
	if !ok {
		return false
	}
	st.disabled = !enabled
	if enabled {
		st.runs = 0
	}
	return true
}

// Observe feeds one classified error into the trigger evaluation.
// Matching workflows start asynchronously; an execution that cannot
// start (concurrency, cooldown, exhausted budget) is dropped and
// logged, never queued.
func (o *Orchestrator) Observe(err *domain.ClassifiedError) {
	now := time.Now()

	o.mu.Lock()
	var starting []*workflowState
	for _, st := range o.workflows {
		if o.triggeredLocked(st, err, now) {
			if reason := o.admitLocked(st, now); reason != nil {
				o.log.Debug("recovery trigger dropped",
					"workflow", st.wf.ID, "reason", reason)
				continue
			}
			starting = append(starting, st)
		}
	}
	o.mu.Unlock()

	for _, st := range starting {
		wf := st.wf
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.run(context.Background(), wf, err)
		}()
	}
}

// Execute runs a workflow synchronously for the given error,
// honoring the same admission invariants as Observe.
func (o *Orchestrator) Execute(ctx context.Context, workflowID string, err *domain.ClassifiedError) (*domain.RecoveryExecution, error) {
	o.mu.Lock()
	st, ok := o.workflows[workflowID]
	if !ok {
		o.mu.Unlock()
		return nil, ErrWorkflowNotFound
	}
	if reason := o.admitLocked(st, time.Now()); reason != nil {
		o.mu.Unlock()
		return nil, reason
	}
	wf := st.wf
	o.mu.Unlock()

	return o.run(ctx, wf, err), nil
}

// SetObserver installs the execution lifecycle callback.
func (o *Orchestrator) SetObserver(fn Observer) {
	o.mu.Lock()
	o.observer = fn
	o.mu.Unlock()
}

// notify hands the observer a copy so it never races the running
// execution.
func (o *Orchestrator) notify(exec *domain.RecoveryExecution) {
	o.mu.Lock()
	fn := o.observer
	o.mu.Unlock()
	if fn == nil {
		return
	}
	snap := *exec
	fn(&snap)
}

// Cancel stops a running execution. Reports whether one was found.
func (o *Orchestrator) Cancel(executionID string) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[executionID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Wait blocks until all asynchronous executions have finished.
// Intended for shutdown and tests.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// triggeredLocked evaluates all triggers of a workflow, maintaining
// the sliding error window used by thresholds. Caller holds o.mu.
func (o *Orchestrator) triggeredLocked(st *workflowState, err *domain.ClassifiedError, now time.Time) bool {
	for i, tr := range st.wf.Triggers {
		if !tr.matches(err) {
			continue
		}
		if tr.Threshold == nil {
			return true
		}
		// Record the match, trim this trigger's window, then test the count.
		if st.errWindows == nil {
			st.errWindows = make(map[int][]time.Time)
		}
		win := append(st.errWindows[i], now)
		cutoff := now.Add(-tr.Threshold.Window)
		trimmed := win[:0]
		for _, ts := range win {
			if ts.After(cutoff) {
				trimmed = append(trimmed, ts)
			}
		}
		st.errWindows[i] = trimmed
		if len(trimmed) >= tr.Threshold.Count {
			return true
		}
	}
	return false
}

// admitLocked enforces the concurrency, cooldown and budget
// invariants. Returns nil when the workflow may start; the counters
// are updated atomically with the decision. Caller holds o.mu.
func (o *Orchestrator) admitLocked(st *workflowState, now time.Time) error {
	if st.disabled || !st.wf.Enabled {
		return ErrWorkflowDisabled
	}
	if st.wf.MaxExecutions > 0 && st.runs >= st.wf.MaxExecutions {
		st.disabled = true
		o.log.Warn("recovery workflow exceeded execution budget, disabling", "workflow", st.wf.ID)
		return ErrWorkflowDisabled
	}
	if st.wf.Cooldown > 0 {
		// An in-flight run has no end yet; it still holds the cooldown.
		if st.active > 0 {
			return ErrCooldownActive
		}
		if !st.lastEnd.IsZero() && now.Sub(st.lastEnd) < st.wf.Cooldown {
			return ErrCooldownActive
		}
	}
	if o.running >= o.maxConcurrent {
		return ErrTooManyRunning
	}
	o.running++
	st.active++
	st.runs++
	return nil
}

func (o *Orchestrator) finish(wfID string, exec *domain.RecoveryExecution) {
	o.mu.Lock()
	o.running--
	delete(o.cancels, exec.ExecutionID)
	if st, ok := o.workflows[wfID]; ok {
		st.active--
		st.lastEnd = exec.EndedAt
	}
	o.history.add(exec)
	o.mu.Unlock()

	metrics.RecoveryExecutions.WithLabelValues(wfID, string(exec.Status)).Inc()
	metrics.RecoveryDuration.WithLabelValues(wfID).Observe(exec.Duration().Seconds())
}

// run drives the step state machine to a terminal status.
func (o *Orchestrator) run(ctx context.Context, wf Workflow, cause *domain.ClassifiedError) *domain.RecoveryExecution {
	exec := &domain.RecoveryExecution{
		WorkflowID:  wf.ID,
		ExecutionID: uuid.New().String(),
		Status:      domain.ExecutionRunning,
		StartedAt:   time.Now(),
	}

	runCtx := ctx
	var cancelTimeout context.CancelFunc
	if wf.Timeout > 0 {
		runCtx, cancelTimeout = context.WithTimeout(ctx, wf.Timeout)
		defer cancelTimeout()
	}
	runCtx, cancelRun := context.WithCancel(runCtx)
	defer cancelRun()

	var cancelled atomic.Bool
	o.mu.Lock()
	o.cancels[exec.ExecutionID] = func() {
		cancelled.Store(true)
		cancelRun()
	}
	o.mu.Unlock()

	o.log.Info("recovery workflow started", "workflow", wf.ID, "execution", exec.ExecutionID)
	o.notify(exec)

	failed := false
	for i, step := range wf.Steps {
		stepID := step.ID
		if stepID == "" {
			stepID = fmt.Sprintf("step-%d", i+1)
		}
		exec.CurrentStep = stepID

		if runCtx.Err() != nil {
			failed = true
			exec.Errors = append(exec.Errors, fmt.Sprintf("%s: %v", stepID, runCtx.Err()))
			break
		}

		result, err := o.runStep(runCtx, wf, step, cause)
		if err != nil {
			exec.Errors = append(exec.Errors, fmt.Sprintf("%s: %v", stepID, err))
			if step.SkipOnFailure {
				o.log.Debug("recovery step failed, skipping", "workflow", wf.ID, "step", stepID, "error", err)
				continue
			}
			failed = true
			break
		}
		if result != nil {
			exec.Result = result
		}
		exec.CompletedSteps = append(exec.CompletedSteps, stepID)
	}

	exec.EndedAt = time.Now()
	exec.CurrentStep = ""
	switch {
	case cancelled.Load():
		exec.Status = domain.ExecutionCancelled
	case failed:
		exec.Status = domain.ExecutionFailure
	default:
		exec.Status = domain.ExecutionSuccess
	}

	o.finish(wf.ID, exec)
	o.notify(exec)
	o.log.Info("recovery workflow finished",
		"workflow", wf.ID, "execution", exec.ExecutionID, "status", exec.Status, "duration", exec.Duration())
	return exec
}

// runStep executes one step with its own timeout.
func (o *Orchestrator) runStep(ctx context.Context, wf Workflow, step Step, cause *domain.ClassifiedError) (any, error) {
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	switch step.Type {
	case StepRetry:
		if step.Retry == nil || step.Retry.Operation == nil {
			return nil, fmt.Errorf("retry step without operation")
		}
		var ectx *domain.ErrorContext
		if cause != nil {
			ectx = cause.Context
		}
		return o.retryMgr.Do(ctx, step.Retry.Operation, ectx, step.Retry.Config)

	case StepFallback:
		if step.Fallback == nil {
			return nil, fmt.Errorf("fallback step without config")
		}
		var ectx *domain.ErrorContext
		query := step.Fallback.Query
		if cause != nil {
			ectx = cause.Context
			if query == "" && ectx != nil {
				query = ectx.Query
			}
		}
		res := o.fallbackMgr.Execute(ctx, cause, query, ectx)
		if !res.Success {
			return nil, fmt.Errorf("fallback exhausted: %s", res.Reason)
		}
		return res, nil

	case StepReset:
		if step.Reset != nil {
			step.Reset()
		} else {
			o.resetCounters(wf.ID)
		}
		return nil, nil

	case StepNotify:
		if step.Notify != nil {
			go func() {
				defer func() { _ = recover() }()
				step.Notify(cause)
			}()
		}
		return nil, nil

	case StepCustom:
		if step.Custom == nil {
			return nil, fmt.Errorf("custom step without func")
		}
		return step.Custom(ctx, cause)

	default:
		return nil, fmt.Errorf("unknown step type %q", step.Type)
	}
}

// resetCounters clears a workflow's trigger windows.
func (o *Orchestrator) resetCounters(workflowID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.workflows[workflowID]; ok {
		st.errWindows = nil
	}
}
