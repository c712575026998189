package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/engine/fallback"
	"github.com/vietddude/resilience/internal/engine/recovery"
	"github.com/vietddude/resilience/internal/engine/retry"
)

type stubExecutor struct {
	mu      sync.Mutex
	calls   []*domain.ErrorContext
	result  *domain.FallbackResult
	callErr error
}

func (s *stubExecutor) CanExecute(_ *domain.ClassifiedError, _ *domain.ErrorContext) bool {
	return true
}

func (s *stubExecutor) Execute(_ context.Context, _ string, ectx *domain.ErrorContext) (*domain.FallbackResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, ectx)
	s.mu.Unlock()
	return s.result, s.callErr
}

func (s *stubExecutor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newTestHandler(t *testing.T, cfg Config) *Handler {
	t.Helper()
	cfg.Logging.ConsoleEnabled = false
	h, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(h.Close)
	return h
}

// ============================================================================
// Execute: retry then fallback
// ============================================================================

func TestExecuteRetryThenFallback(t *testing.T) {
	h := newTestHandler(t, Config{
		Retry: retry.Config{
			MaxAttempts:     3,
			InitialDelay:    20 * time.Millisecond,
			MaxDelay:        time.Second,
			BackoffMultiple: 2.0,
			Jitter:          retry.JitterNone,
		},
	})

	exec := &stubExecutor{result: &domain.FallbackResult{
		Success:     true,
		Data:        []any{"cached-row"},
		Source:      "cache",
		Cached:      true,
		Reliability: 0.8,
	}}
	if _, err := h.Fallbacks().Register(fallback.Strategy{
		Name:     "cache",
		Priority: 1,
		Enabled:  true,
		Executor: exec,
	}); err != nil {
		t.Fatalf("register strategy: %v", err)
	}

	attempts := 0
	op := func(_ context.Context) (any, error) {
		attempts++
		return nil, fmt.Errorf("connection refused by upstream")
	}

	ectx := &domain.ErrorContext{Adapter: "products", Query: "shoes"}
	data, out, err := h.Execute(context.Background(), op, ectx)

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if err != nil {
		t.Fatalf("fallback succeeded, want nil error, got %v", err)
	}
	if !out.Degraded() {
		t.Fatal("expected a degraded outcome")
	}
	if out.Fallback.Source != "cache" {
		t.Errorf("source = %q, want cache", out.Fallback.Source)
	}
	rows, ok := data.([]any)
	if !ok || len(rows) != 1 || rows[0] != "cached-row" {
		t.Errorf("data = %v, want the fallback payload", data)
	}
	if exec.callCount() != 1 {
		t.Errorf("executor calls = %d, want 1", exec.callCount())
	}

	if out.Error.Classification.Type != domain.ErrorTypeNetwork {
		t.Errorf("type = %s, want network", out.Error.Classification.Type)
	}
	if out.Retry == nil || out.Retry.Attempt != 3 {
		t.Errorf("retry state = %+v, want 3 attempts recorded", out.Retry)
	}
	if len(out.Retry.Errors) != 3 {
		t.Errorf("recorded errors = %d, want one per attempt", len(out.Retry.Errors))
	}
}

func TestExecuteFallbackMissReturnsError(t *testing.T) {
	h := newTestHandler(t, Config{
		Retry: retry.Config{MaxAttempts: 2, InitialDelay: 5 * time.Millisecond},
	})

	op := func(_ context.Context) (any, error) {
		return nil, errors.New("connection reset")
	}
	_, out, err := h.Execute(context.Background(), op, nil)

	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v, want ExhaustedError", err)
	}
	if out.Degraded() {
		t.Error("no strategies registered, outcome must not be degraded")
	}
	if out.Fallback == nil || out.Fallback.Reason != "no-strategy-available" {
		t.Errorf("fallback = %+v, want synthetic no-strategy result", out.Fallback)
	}
	if out.Message.Title == "" {
		t.Error("expected a user message on the failure path")
	}
}

func TestExecutePermanentNotRetried(t *testing.T) {
	h := newTestHandler(t, Config{
		Retry: retry.Config{MaxAttempts: 5, InitialDelay: 5 * time.Millisecond},
	})

	attempts := 0
	op := func(_ context.Context) (any, error) {
		attempts++
		return nil, errors.New("validation failed: query is malformed")
	}
	_, out, err := h.Execute(context.Background(), op, nil)

	if attempts != 1 {
		t.Errorf("attempts = %d, permanent errors must not retry", attempts)
	}
	if err == nil {
		t.Fatal("expected the failure to surface")
	}
	if out.Error.Classification.Type != domain.ErrorTypeValidation {
		t.Errorf("type = %s, want validation", out.Error.Classification.Type)
	}
}

func TestExecuteSuccessNoOutcome(t *testing.T) {
	h := newTestHandler(t, Config{})

	data, out, err := h.Execute(context.Background(), func(_ context.Context) (any, error) {
		return 42, nil
	}, nil)
	if err != nil || out != nil {
		t.Fatalf("got out=%v err=%v, want clean success", out, err)
	}
	if data != 42 {
		t.Errorf("data = %v, want 42", data)
	}
}

func TestExecuteAbortSkipsFallback(t *testing.T) {
	h := newTestHandler(t, Config{
		Retry: retry.Config{MaxAttempts: 5, InitialDelay: time.Second},
	})

	exec := &stubExecutor{result: &domain.FallbackResult{Success: true}}
	if _, err := h.Fallbacks().Register(fallback.Strategy{
		Name: "cache", Priority: 1, Enabled: true, Executor: exec,
	}); err != nil {
		t.Fatalf("register strategy: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, _, err := h.Execute(ctx, func(_ context.Context) (any, error) {
		return nil, errors.New("connection refused")
	}, nil)

	var aborted *retry.AbortedError
	if !errors.As(err, &aborted) {
		t.Fatalf("err = %v, want AbortedError", err)
	}
	if exec.callCount() != 0 {
		t.Error("aborted operations must not consult fallback")
	}
}

// ============================================================================
// HandleError
// ============================================================================

func TestHandleError(t *testing.T) {
	h := newTestHandler(t, Config{})

	out := h.HandleError(context.Background(), errors.New("request timeout after 30s"), &domain.ErrorContext{Adapter: "search"})
	if out == nil {
		t.Fatal("expected an outcome")
	}
	if out.Error.Classification.Type != domain.ErrorTypeTimeout {
		t.Errorf("type = %s, want timeout", out.Error.Classification.Type)
	}
	if out.Error.CorrelationID == "" {
		t.Error("expected a correlation ID")
	}
	if out.Message.Title == "" {
		t.Error("expected a user message")
	}

	if got := h.HandleError(context.Background(), nil, nil); got != nil {
		t.Errorf("nil error should yield nil outcome, got %+v", got)
	}

	stats := h.Stats()
	if stats.Handled != 1 {
		t.Errorf("handled = %d, want 1", stats.Handled)
	}
	if stats.ByType["timeout"] != 1 {
		t.Errorf("by_type = %v, want one timeout", stats.ByType)
	}
	if stats.Logger.Total != 1 {
		t.Errorf("logger total = %d, want 1", stats.Logger.Total)
	}
}

// ============================================================================
// Events
// ============================================================================

func TestEventBus(t *testing.T) {
	h := newTestHandler(t, Config{
		Retry: retry.Config{MaxAttempts: 2, InitialDelay: 5 * time.Millisecond},
	})

	var mu sync.Mutex
	kinds := make(map[EventKind]int)
	record := func(ev Event) {
		mu.Lock()
		kinds[ev.Kind]++
		mu.Unlock()
	}
	for _, k := range []EventKind{EventError, EventRetryStart, EventRetryFailure, EventFallbackStart, EventUserMessage} {
		h.Events().Subscribe(k, record)
	}

	_, _, _ = h.Execute(context.Background(), func(_ context.Context) (any, error) {
		return nil, errors.New("connection refused")
	}, nil)

	mu.Lock()
	defer mu.Unlock()
	if kinds[EventRetryStart] != 1 {
		t.Errorf("retry_start = %d, want 1 (one backoff before the final attempt)", kinds[EventRetryStart])
	}
	for _, k := range []EventKind{EventError, EventRetryFailure, EventFallbackStart, EventUserMessage} {
		if kinds[k] != 1 {
			t.Errorf("%s = %d, want 1", k, kinds[k])
		}
	}
}

func TestRecoveryEventsObserved(t *testing.T) {
	h := newTestHandler(t, Config{})

	_, err := h.Recovery().RegisterWorkflow(recovery.Workflow{
		ID:       "reconnect",
		Triggers: []recovery.Trigger{{ErrorType: domain.ErrorTypeNetwork}},
		Steps: []recovery.Step{{
			ID:   "noop",
			Type: recovery.StepCustom,
			Custom: func(_ context.Context, _ *domain.ClassifiedError) (any, error) {
				return nil, nil
			},
		}},
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("RegisterWorkflow: %v", err)
	}

	var mu sync.Mutex
	kinds := make(map[EventKind]int)
	var seen *domain.RecoveryExecution
	record := func(ev Event) {
		mu.Lock()
		kinds[ev.Kind]++
		if ev.Execution != nil {
			seen = ev.Execution
		}
		mu.Unlock()
	}
	for _, k := range []EventKind{EventRecoveryStart, EventRecoverySuccess, EventRecoveryFailure} {
		h.Events().Subscribe(k, record)
	}

	h.HandleError(context.Background(), errors.New("connection refused"), nil)
	h.Recovery().Wait()

	mu.Lock()
	defer mu.Unlock()
	if kinds[EventRecoveryStart] != 1 || kinds[EventRecoverySuccess] != 1 {
		t.Errorf("events = %v, want one start and one success", kinds)
	}
	if kinds[EventRecoveryFailure] != 0 {
		t.Errorf("failure events = %d, want 0", kinds[EventRecoveryFailure])
	}
	if seen == nil || seen.WorkflowID != "reconnect" {
		t.Errorf("execution payload = %+v, want the triggered workflow", seen)
	}
}

func TestEventBusUnsubscribeAndPanic(t *testing.T) {
	h := newTestHandler(t, Config{})

	calls := 0
	unsub := h.Events().Subscribe(EventError, func(Event) { calls++ })
	h.Events().Subscribe(EventError, func(Event) { panic("observer bug") })

	h.HandleError(context.Background(), errors.New("boom"), nil)
	if calls != 1 {
		t.Errorf("calls = %d, want 1; panicking observers must not break emission", calls)
	}

	unsub()
	h.HandleError(context.Background(), errors.New("boom"), nil)
	if calls != 1 {
		t.Errorf("calls = %d after unsubscribe, want still 1", calls)
	}
}

// ============================================================================
// Configuration
// ============================================================================

func TestSetConfig(t *testing.T) {
	h := newTestHandler(t, Config{})

	offline := true
	locale := "es"
	newRetry := retry.Config{MaxAttempts: 1}
	h.SetConfig(ConfigUpdate{Retry: &newRetry, Locale: &locale, Offline: &offline})

	if !h.Fallbacks().OfflineMode() {
		t.Error("offline mode should be enabled")
	}
	if h.Messages().Locale() != "es" {
		t.Errorf("locale = %q, want es", h.Messages().Locale())
	}

	attempts := 0
	_, _, _ = h.Execute(context.Background(), func(_ context.Context) (any, error) {
		attempts++
		return nil, errors.New("connection refused")
	}, nil)
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 after config update", attempts)
	}
}
