package recovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/engine/fallback"
	"github.com/vietddude/resilience/internal/engine/retry"
)

func newTestOrchestrator(cfg Config) *Orchestrator {
	classify := func(err error, ctx *domain.ErrorContext) domain.Classification {
		return domain.Classification{
			Type:           domain.ErrorTypeNetwork,
			Severity:       domain.SeverityMedium,
			Recoverability: domain.Transient,
		}
	}
	return NewOrchestrator(
		retry.New(classify, nil),
		fallback.NewManager(0, nil),
		cfg,
		nil,
	)
}

func networkError() *domain.ClassifiedError {
	return &domain.ClassifiedError{
		Err: errors.New("connection refused"),
		Classification: domain.Classification{
			Type:     domain.ErrorTypeNetwork,
			Severity: domain.SeverityMedium,
		},
		Timestamp: time.Now(),
	}
}

func customStep(id string, fn func(ctx context.Context) error) Step {
	return Step{
		ID:   id,
		Type: StepCustom,
		Custom: func(ctx context.Context, err *domain.ClassifiedError) (any, error) {
			return nil, fn(ctx)
		},
	}
}

func TestExecuteAllStepsSucceed(t *testing.T) {
	o := newTestOrchestrator(Config{})
	var order []string
	var mu sync.Mutex
	step := func(id string) Step {
		return customStep(id, func(ctx context.Context) error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		})
	}

	_, err := o.RegisterWorkflow(Workflow{
		ID:      "wf",
		Steps:   []Step{step("one"), step("two"), step("three")},
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("RegisterWorkflow: %v", err)
	}

	exec, err := o.Execute(context.Background(), "wf", networkError())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if exec.Status != domain.ExecutionSuccess {
		t.Errorf("status = %s, want success (errors: %v)", exec.Status, exec.Errors)
	}
	if len(exec.CompletedSteps) != 3 {
		t.Errorf("completed = %v", exec.CompletedSteps)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "one" || order[2] != "three" {
		t.Errorf("step order = %v", order)
	}
}

func TestExecuteSkipOnFailure(t *testing.T) {
	o := newTestOrchestrator(Config{})
	flaky := customStep("flaky", func(ctx context.Context) error {
		return errors.New("no luck")
	})
	flaky.SkipOnFailure = true

	_, _ = o.RegisterWorkflow(Workflow{
		ID: "wf",
		Steps: []Step{
			flaky,
			customStep("solid", func(ctx context.Context) error { return nil }),
		},
		Enabled: true,
	})

	exec, err := o.Execute(context.Background(), "wf", networkError())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if exec.Status != domain.ExecutionSuccess {
		t.Errorf("status = %s, want success with skippable failure", exec.Status)
	}
	if len(exec.Errors) != 1 {
		t.Errorf("errors = %v, want the skipped failure recorded", exec.Errors)
	}
	if len(exec.CompletedSteps) != 1 || exec.CompletedSteps[0] != "solid" {
		t.Errorf("completed = %v", exec.CompletedSteps)
	}
}

func TestExecuteNonSkippableFailureStops(t *testing.T) {
	o := newTestOrchestrator(Config{})
	var reached atomic.Bool

	_, _ = o.RegisterWorkflow(Workflow{
		ID: "wf",
		Steps: []Step{
			customStep("broken", func(ctx context.Context) error { return errors.New("hard fail") }),
			customStep("after", func(ctx context.Context) error { reached.Store(true); return nil }),
		},
		Enabled: true,
	})

	exec, err := o.Execute(context.Background(), "wf", networkError())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if exec.Status != domain.ExecutionFailure {
		t.Errorf("status = %s, want failure", exec.Status)
	}
	if reached.Load() {
		t.Error("step after a non-skippable failure was executed")
	}
}

func TestExecuteWorkflowTimeout(t *testing.T) {
	o := newTestOrchestrator(Config{})
	_, _ = o.RegisterWorkflow(Workflow{
		ID:      "wf",
		Timeout: 30 * time.Millisecond,
		Steps: []Step{
			customStep("slow", func(ctx context.Context) error {
				select {
				case <-time.After(2 * time.Second):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}),
		},
		Enabled: true,
	})

	start := time.Now()
	exec, err := o.Execute(context.Background(), "wf", networkError())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("workflow timeout not enforced")
	}
	if exec.Status != domain.ExecutionFailure {
		t.Errorf("status = %s, want failure on timeout", exec.Status)
	}
}

func TestCooldownSingleExecution(t *testing.T) {
	o := newTestOrchestrator(Config{})
	var runs atomic.Int32

	_, _ = o.RegisterWorkflow(Workflow{
		ID:       "wf",
		Cooldown: time.Hour,
		Triggers: []Trigger{{ErrorType: domain.ErrorTypeNetwork}},
		Steps: []Step{
			customStep("count", func(ctx context.Context) error {
				runs.Add(1)
				return nil
			}),
		},
		Enabled: true,
	})

	o.Observe(networkError())
	o.Observe(networkError())
	o.Wait()

	if got := runs.Load(); got != 1 {
		t.Errorf("executions = %d, want exactly 1 within cooldown", got)
	}
}

func TestMaxConcurrentDropsNotQueues(t *testing.T) {
	o := newTestOrchestrator(Config{MaxConcurrent: 1})
	release := make(chan struct{})
	var runs atomic.Int32

	for _, id := range []string{"a", "b"} {
		_, _ = o.RegisterWorkflow(Workflow{
			ID:       id,
			Triggers: []Trigger{{ErrorType: domain.ErrorTypeNetwork}},
			Steps: []Step{
				customStep("hold", func(ctx context.Context) error {
					runs.Add(1)
					<-release
					return nil
				}),
			},
			Enabled: true,
		})
	}

	o.Observe(networkError())
	time.Sleep(50 * time.Millisecond)
	close(release)
	o.Wait()

	if got := runs.Load(); got != 1 {
		t.Errorf("executions = %d, want 1 (second trigger dropped, not queued)", got)
	}
}

func TestMaxExecutionsDisablesWorkflow(t *testing.T) {
	o := newTestOrchestrator(Config{})
	_, _ = o.RegisterWorkflow(Workflow{
		ID:            "wf",
		MaxExecutions: 2,
		Steps:         []Step{customStep("noop", func(ctx context.Context) error { return nil })},
		Enabled:       true,
	})

	for i := 0; i < 2; i++ {
		if _, err := o.Execute(context.Background(), "wf", networkError()); err != nil {
			t.Fatalf("Execute %d: %v", i, err)
		}
	}

	_, err := o.Execute(context.Background(), "wf", networkError())
	if !errors.Is(err, ErrWorkflowDisabled) {
		t.Fatalf("third Execute = %v, want ErrWorkflowDisabled", err)
	}

	// Manual re-enable restores the budget.
	if !o.SetEnabled("wf", true) {
		t.Fatal("SetEnabled failed")
	}
	if _, err := o.Execute(context.Background(), "wf", networkError()); err != nil {
		t.Errorf("Execute after re-enable: %v", err)
	}
}

func TestThresholdTrigger(t *testing.T) {
	o := newTestOrchestrator(Config{})
	var runs atomic.Int32

	_, _ = o.RegisterWorkflow(Workflow{
		ID: "wf",
		Triggers: []Trigger{{
			ErrorType: domain.ErrorTypeNetwork,
			Threshold: &Threshold{Count: 3, Window: time.Minute},
		}},
		Steps: []Step{
			customStep("count", func(ctx context.Context) error {
				runs.Add(1)
				return nil
			}),
		},
		Enabled: true,
	})

	o.Observe(networkError())
	o.Observe(networkError())
	o.Wait()
	if got := runs.Load(); got != 0 {
		t.Fatalf("workflow ran after %d errors, threshold is 3", 2)
	}

	o.Observe(networkError())
	o.Wait()
	if got := runs.Load(); got != 1 {
		t.Errorf("executions = %d, want 1 after threshold reached", got)
	}
}

func TestThresholdWindowsIndependentPerTrigger(t *testing.T) {
	o := newTestOrchestrator(Config{})
	var runs atomic.Int32

	_, _ = o.RegisterWorkflow(Workflow{
		ID: "wf",
		Triggers: []Trigger{
			{
				ErrorType: domain.ErrorTypeNetwork,
				Threshold: &Threshold{Count: 2, Window: time.Minute},
			},
			{
				Severity:  domain.SeverityMedium,
				Threshold: &Threshold{Count: 2, Window: time.Minute},
			},
		},
		Steps: []Step{
			customStep("count", func(ctx context.Context) error {
				runs.Add(1)
				return nil
			}),
		},
		Enabled: true,
	})

	// One error matches both triggers but counts once in each window.
	o.Observe(networkError())
	o.Wait()
	if got := runs.Load(); got != 0 {
		t.Fatalf("executions = %d after one error, thresholds are 2", got)
	}

	o.Observe(networkError())
	o.Wait()
	if got := runs.Load(); got != 1 {
		t.Errorf("executions = %d, want 1 after second error", got)
	}
}

func TestTriggerTypeMismatchIgnored(t *testing.T) {
	o := newTestOrchestrator(Config{})
	var runs atomic.Int32

	_, _ = o.RegisterWorkflow(Workflow{
		ID:       "wf",
		Triggers: []Trigger{{ErrorType: domain.ErrorTypeTimeout}},
		Steps: []Step{
			customStep("count", func(ctx context.Context) error {
				runs.Add(1)
				return nil
			}),
		},
		Enabled: true,
	})

	o.Observe(networkError())
	o.Wait()
	if runs.Load() != 0 {
		t.Error("workflow triggered by non-matching error type")
	}
}

func TestCancelExecution(t *testing.T) {
	o := newTestOrchestrator(Config{})
	started := make(chan string, 1)

	_, _ = o.RegisterWorkflow(Workflow{
		ID:       "wf",
		Triggers: []Trigger{{ErrorType: domain.ErrorTypeNetwork}},
		Steps: []Step{
			customStep("wait", func(ctx context.Context) error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(5 * time.Second):
					return nil
				}
			}),
		},
		Enabled: true,
	})

	go func() {
		// Grab the execution ID once it shows up.
		for i := 0; i < 100; i++ {
			o.mu.Lock()
			for id := range o.cancels {
				select {
				case started <- id:
				default:
				}
			}
			o.mu.Unlock()
			time.Sleep(5 * time.Millisecond)
		}
	}()

	o.Observe(networkError())
	id := <-started
	if !o.Cancel(id) {
		t.Fatal("Cancel did not find the execution")
	}
	o.Wait()

	execs := o.Executions()
	if len(execs) != 1 {
		t.Fatalf("history size = %d", len(execs))
	}
	if execs[0].Status != domain.ExecutionCancelled {
		t.Errorf("status = %s, want cancelled", execs[0].Status)
	}
}

func TestStatsAggregation(t *testing.T) {
	o := newTestOrchestrator(Config{})
	_, _ = o.RegisterWorkflow(Workflow{
		ID:      "good",
		Steps:   []Step{customStep("ok", func(ctx context.Context) error { return nil })},
		Enabled: true,
	})
	_, _ = o.RegisterWorkflow(Workflow{
		ID:      "bad",
		Steps:   []Step{customStep("fail", func(ctx context.Context) error { return errors.New("x") })},
		Enabled: true,
	})

	for i := 0; i < 3; i++ {
		_, _ = o.Execute(context.Background(), "good", networkError())
	}
	_, _ = o.Execute(context.Background(), "bad", networkError())

	stats := o.Stats()
	if s := stats["good"]; s.Executions != 3 || s.SuccessRate != 1.0 {
		t.Errorf("good stats = %+v", s)
	}
	if s := stats["bad"]; s.Executions != 1 || s.Failures != 1 || s.SuccessRate != 0 {
		t.Errorf("bad stats = %+v", s)
	}
}

func TestRetryStepDelegates(t *testing.T) {
	o := newTestOrchestrator(Config{})
	calls := 0
	_, _ = o.RegisterWorkflow(Workflow{
		ID: "wf",
		Steps: []Step{{
			ID:   "re-run",
			Type: StepRetry,
			Retry: &RetryStep{
				Operation: func(ctx context.Context) (any, error) {
					calls++
					if calls < 2 {
						return nil, errors.New("transient glitch")
					}
					return "recovered", nil
				},
				Config: retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond},
			},
		}},
		Enabled: true,
	})

	exec, err := o.Execute(context.Background(), "wf", networkError())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if exec.Status != domain.ExecutionSuccess || exec.Result != "recovered" {
		t.Errorf("exec = %+v", exec)
	}
	if calls != 2 {
		t.Errorf("operation calls = %d, want 2", calls)
	}
}

func TestResetStepClearsTriggerWindow(t *testing.T) {
	o := newTestOrchestrator(Config{})
	_, _ = o.RegisterWorkflow(Workflow{
		ID: "wf",
		Triggers: []Trigger{{
			ErrorType: domain.ErrorTypeNetwork,
			Threshold: &Threshold{Count: 100, Window: time.Hour},
		}},
		Steps:   []Step{{ID: "reset", Type: StepReset}},
		Enabled: true,
	})

	// Accumulate some window entries, then run the reset step.
	o.Observe(networkError())
	o.Observe(networkError())
	o.mu.Lock()
	before := len(o.workflows["wf"].errWindows[0])
	o.mu.Unlock()
	if before != 2 {
		t.Fatalf("window size = %d, want 2", before)
	}

	if _, err := o.Execute(context.Background(), "wf", networkError()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	o.mu.Lock()
	after := len(o.workflows["wf"].errWindows[0])
	o.mu.Unlock()
	if after != 0 {
		t.Errorf("window size after reset = %d, want 0", after)
	}
}
