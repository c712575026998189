package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/engine/metrics"
)

// Classifier turns a raw failure into a classification. The retry loop
// needs it to decide whether an error is worth another attempt.
type Classifier func(err error, ctx *domain.ErrorContext) domain.Classification

// Operation is the caller-supplied unit of work wrapped by the retry
// loop. The engine imposes no transport; anything async fits.
type Operation func(ctx context.Context) (any, error)

// Config defines retry behavior for one logical operation.
type Config struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
	Jitter          JitterType
	// Timeout bounds the whole loop including waits; zero means no bound.
	Timeout time.Duration
	// RetryCondition may veto a retry that would otherwise be eligible.
	RetryCondition func(err *domain.ClassifiedError, attempt int) bool
	// OnRetry fires before every backoff wait.
	OnRetry func(err *domain.ClassifiedError, attempt int)
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	MaxAttempts:     5,
	InitialDelay:    1 * time.Second,
	MaxDelay:        60 * time.Second,
	BackoffMultiple: 2.0,
	Jitter:          JitterNone,
}

// State is the progress of one retry loop. Created at the first
// attempt, mutated on each retry, discarded on terminal outcome.
type State struct {
	Attempt     int
	MaxAttempts int
	NextDelay   time.Duration
	TotalDelay  time.Duration
	Errors      []*domain.ClassifiedError
	StartTime   time.Time
	Retrying    bool
}

// ExhaustedError is the terminal failure after all eligible attempts.
// It carries the full retry state so the caller can hand off to
// fallback.
type ExhaustedError struct {
	Last  *domain.ClassifiedError
	State State
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.State.Attempt, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// AbortedError is the terminal outcome when an external cancellation
// or timeout fired during a wait or an attempt. Distinct from
// exhaustion for statistics.
type AbortedError struct {
	Cause error
	State State
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("retry aborted at attempt %d: %v", e.State.Attempt, e.Cause)
}

func (e *AbortedError) Unwrap() error {
	return e.Cause
}

// Manager runs retry loops around caller-supplied operations.
type Manager struct {
	classify Classifier
	log      *slog.Logger
	jitter   *jitterSource
}

// New creates a retry manager.
func New(classify Classifier, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		classify: classify,
		log:      log,
		jitter:   newJitterSource(time.Now().UnixNano()),
	}
}

// Do executes op until it succeeds, retries are exhausted, the error
// is not retryable, or ctx is cancelled. Attempts are strictly
// sequential and preserve order in State.Errors.
func (m *Manager) Do(ctx context.Context, op Operation, ectx *domain.ErrorContext, cfg Config) (any, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}
	if cfg.BackoffMultiple <= 0 {
		cfg.BackoffMultiple = DefaultConfig.BackoffMultiple
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	adapter := ""
	if ectx != nil {
		adapter = ectx.Adapter
	}
	correlationID := uuid.New().String()

	state := State{
		MaxAttempts: cfg.MaxAttempts,
		StartTime:   time.Now(),
	}
	var prevDelay time.Duration

	for attempt := 1; ; attempt++ {
		state.Attempt = attempt
		state.Retrying = false
		metrics.RetryAttempts.WithLabelValues(adapter).Inc()

		result, err := op(ctx)
		if err == nil {
			metrics.RetryOutcomes.WithLabelValues(adapter, "succeeded").Inc()
			return result, nil
		}

		cerr := &domain.ClassifiedError{
			Err:            err,
			Classification: m.classify(err, ectx),
			Context:        ectx,
			CorrelationID:  correlationID,
			Timestamp:      time.Now(),
		}
		state.Errors = append(state.Errors, cerr)

		if ctx.Err() != nil {
			metrics.RetryOutcomes.WithLabelValues(adapter, "aborted").Inc()
			return nil, &AbortedError{Cause: ctx.Err(), State: state}
		}

		if !m.canRetry(cerr, attempt, cfg) {
			metrics.RetryOutcomes.WithLabelValues(adapter, "exhausted").Inc()
			return nil, &ExhaustedError{Last: cerr, State: state}
		}

		delay := m.jitter.delayFor(attempt, prevDelay, cfg)
		state.NextDelay = delay
		metrics.RetryDelay.Observe(delay.Seconds())

		if cfg.OnRetry != nil {
			cfg.OnRetry(cerr, attempt)
		}
		m.log.Debug("retry scheduled",
			"adapter", adapter, "attempt", attempt, "delay", delay, "error", err)

		state.Retrying = true
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			metrics.RetryOutcomes.WithLabelValues(adapter, "aborted").Inc()
			return nil, &AbortedError{Cause: ctx.Err(), State: state}
		case <-timer.C:
		}
		state.TotalDelay += delay
		prevDelay = delay
	}
}

// canRetry applies the eligibility rules: attempts remaining, the
// classification retryable, and no veto from the caller's condition.
func (m *Manager) canRetry(err *domain.ClassifiedError, attempt int, cfg Config) bool {
	if attempt >= cfg.MaxAttempts {
		return false
	}
	if !err.Classification.Recoverability.Retryable() {
		return false
	}
	if cfg.RetryCondition != nil && !cfg.RetryCondition(err, attempt) {
		return false
	}
	return true
}
