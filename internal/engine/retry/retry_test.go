package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/resilience/internal/core/domain"
)

func transientClassifier(err error, ctx *domain.ErrorContext) domain.Classification {
	return domain.Classification{
		Type:           domain.ErrorTypeNetwork,
		Severity:       domain.SeverityMedium,
		Recoverability: domain.Transient,
	}
}

func permanentClassifier(err error, ctx *domain.ErrorContext) domain.Classification {
	return domain.Classification{
		Type:           domain.ErrorTypeValidation,
		Severity:       domain.SeverityLow,
		Recoverability: domain.Permanent,
	}
}

func TestBaseDelayMonotonic(t *testing.T) {
	cfg := Config{
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		BackoffMultiple: 2.0,
		Jitter:          JitterNone,
	}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		d := baseDelay(attempt, cfg)
		if d < prev {
			t.Fatalf("delay(%d) = %v < delay(%d) = %v", attempt, d, attempt-1, prev)
		}
		if d > cfg.MaxDelay {
			t.Fatalf("delay(%d) = %v exceeds max %v", attempt, d, cfg.MaxDelay)
		}
		prev = d
	}
	if prev != cfg.MaxDelay {
		t.Errorf("delay never reached cap: %v", prev)
	}
}

func TestBaseDelayExactSequence(t *testing.T) {
	cfg := Config{
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        60 * time.Second,
		BackoffMultiple: 2.0,
	}

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	for i, w := range want {
		if got := baseDelay(i+1, cfg); got != w {
			t.Errorf("baseDelay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestJitterBounds(t *testing.T) {
	j := newJitterSource(42)
	cfg := Config{
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		BackoffMultiple: 2.0,
	}

	for attempt := 1; attempt <= 8; attempt++ {
		base := baseDelay(attempt, cfg)

		cfg.Jitter = JitterFull
		for i := 0; i < 100; i++ {
			if d := j.delayFor(attempt, 0, cfg); d < 0 || d > base {
				t.Fatalf("full jitter delay %v outside [0, %v]", d, base)
			}
		}

		cfg.Jitter = JitterEqual
		for i := 0; i < 100; i++ {
			if d := j.delayFor(attempt, 0, cfg); d < base/2 || d > base {
				t.Fatalf("equal jitter delay %v outside [%v, %v]", d, base/2, base)
			}
		}
	}
}

func TestJitterDecorrelatedBounds(t *testing.T) {
	j := newJitterSource(7)
	cfg := Config{
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        1 * time.Second,
		BackoffMultiple: 2.0,
		Jitter:          JitterDecorrelated,
	}

	prev := cfg.InitialDelay
	for i := 0; i < 200; i++ {
		d := j.delayFor(i+1, prev, cfg)
		if d < cfg.InitialDelay && d != cfg.MaxDelay {
			t.Fatalf("decorrelated delay %v below initial %v", d, cfg.InitialDelay)
		}
		if d > cfg.MaxDelay {
			t.Fatalf("decorrelated delay %v above max %v", d, cfg.MaxDelay)
		}
		prev = d
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	m := New(transientClassifier, nil)
	calls := 0
	op := func(ctx context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection reset")
		}
		return "ok", nil
	}

	got, err := m.Do(context.Background(), op, nil, Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %v after %d calls, want ok after 3", got, calls)
	}
}

func TestDoExhaustionCarriesState(t *testing.T) {
	m := New(transientClassifier, nil)
	var retried []int
	op := func(ctx context.Context) (any, error) {
		return nil, errors.New("network down")
	}

	start := time.Now()
	_, err := m.Do(context.Background(), op, nil, Config{
		MaxAttempts:     3,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        60 * time.Second,
		BackoffMultiple: 2.0,
		Jitter:          JitterNone,
		OnRetry: func(cerr *domain.ClassifiedError, attempt int) {
			retried = append(retried, attempt)
		},
	})
	elapsed := time.Since(start)

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("want ExhaustedError, got %v", err)
	}
	if len(exhausted.State.Errors) != 3 {
		t.Errorf("errors recorded = %d, want 3", len(exhausted.State.Errors))
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", retried)
	}
	// Delays were 100ms then 200ms before exhaustion.
	if exhausted.State.TotalDelay != 300*time.Millisecond {
		t.Errorf("total delay = %v, want 300ms", exhausted.State.TotalDelay)
	}
	if elapsed < 300*time.Millisecond {
		t.Errorf("loop finished in %v, waits not applied", elapsed)
	}
	if exhausted.Last.Classification.Type != domain.ErrorTypeNetwork {
		t.Errorf("last error classification = %+v", exhausted.Last.Classification)
	}
}

func TestDoPermanentErrorNotRetried(t *testing.T) {
	m := New(permanentClassifier, nil)
	calls := 0
	op := func(ctx context.Context) (any, error) {
		calls++
		return nil, errors.New("invalid input")
	}

	_, err := m.Do(context.Background(), op, nil, Config{MaxAttempts: 5, InitialDelay: time.Millisecond})
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("want ExhaustedError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("permanent error retried %d times", calls-1)
	}
}

func TestDoRetryConditionVeto(t *testing.T) {
	m := New(transientClassifier, nil)
	calls := 0
	op := func(ctx context.Context) (any, error) {
		calls++
		return nil, errors.New("flaky")
	}

	_, err := m.Do(context.Background(), op, nil, Config{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		RetryCondition: func(cerr *domain.ClassifiedError, attempt int) bool {
			return attempt < 2
		},
	})
	if err == nil {
		t.Fatal("want error")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (veto after second attempt)", calls)
	}
}

func TestDoAbortedDuringWait(t *testing.T) {
	m := New(transientClassifier, nil)
	op := func(ctx context.Context) (any, error) {
		return nil, errors.New("down")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := m.Do(ctx, op, nil, Config{
		MaxAttempts:  5,
		InitialDelay: 10 * time.Second,
		MaxDelay:     10 * time.Second,
	})

	var aborted *AbortedError
	if !errors.As(err, &aborted) {
		t.Fatalf("want AbortedError, got %v", err)
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		t.Error("abort must not surface as exhaustion")
	}
}

func TestDoTimeoutAborts(t *testing.T) {
	m := New(transientClassifier, nil)
	op := func(ctx context.Context) (any, error) {
		return nil, errors.New("down")
	}

	start := time.Now()
	_, err := m.Do(context.Background(), op, nil, Config{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Timeout:      80 * time.Millisecond,
	})
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout not enforced")
	}

	var aborted *AbortedError
	if !errors.As(err, &aborted) {
		t.Fatalf("want AbortedError, got %v", err)
	}
}
