package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/engine/classify"
	"github.com/vietddude/resilience/internal/engine/errlog"
	"github.com/vietddude/resilience/internal/engine/fallback"
	"github.com/vietddude/resilience/internal/engine/message"
	"github.com/vietddude/resilience/internal/engine/recovery"
	"github.com/vietddude/resilience/internal/engine/retry"
)

// Config aggregates the sub-system configurations behind one surface.
type Config struct {
	Retry           retry.Config
	FallbackTimeout time.Duration
	Recovery        recovery.Config
	Logging         errlog.Config
	Locale          string
	OfflineMode     bool
}

// ConfigUpdate applies an incremental change; nil fields keep their
// current value.
type ConfigUpdate struct {
	Retry           *retry.Config
	FallbackTimeout *time.Duration
	Locale          *string
	Offline         *bool
}

// Outcome is everything the caller needs after a failure was handled:
// the classified error, any degraded-mode data, and the user-facing
// message. Retry is set when a retry loop ran.
type Outcome struct {
	Error    *domain.ClassifiedError
	Retry    *retry.State
	Fallback *domain.FallbackResult
	Message  domain.UserMessage
}

// Degraded reports whether a fallback produced displayable data.
func (o *Outcome) Degraded() bool {
	return o != nil && o.Fallback != nil && o.Fallback.Success
}

// Handler is the single entry point tying classification, retry,
// fallback, recovery, logging and message generation together.
type Handler struct {
	classifier *classify.Classifier
	retries    *retry.Manager
	fallbacks  *fallback.Manager
	workflows  *recovery.Orchestrator
	logger     *errlog.Logger
	messages   *message.Generator
	events     *Bus
	log        *slog.Logger

	mu       sync.RWMutex
	retryCfg retry.Config

	statsMu          sync.Mutex
	handled          int
	byType           map[string]int
	bySeverity       map[string]int
	retriesExhausted int
	retriesAborted   int
	fallbackHits     int
	fallbackMisses   int
}

// New wires the engine together with default classification rules.
func New(cfg Config, log *slog.Logger) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}

	classifier := classify.New(classify.NewRulesetWithDefaults(), log)
	retries := retry.New(classifier.Classify, log)
	fallbacks := fallback.NewManager(cfg.FallbackTimeout, log)
	if cfg.OfflineMode {
		fallbacks.EnableOfflineMode()
	}
	workflows := recovery.NewOrchestrator(retries, fallbacks, cfg.Recovery, log)

	logger, err := errlog.New(cfg.Logging, log)
	if err != nil {
		return nil, err
	}

	messages := message.NewGenerator()
	if cfg.Locale != "" {
		messages.SetLocale(cfg.Locale)
	}

	h := &Handler{
		classifier: classifier,
		retries:    retries,
		fallbacks:  fallbacks,
		workflows:  workflows,
		logger:     logger,
		messages:   messages,
		events:     newBus(log),
		log:        log,
		retryCfg:   cfg.Retry,
		byType:     make(map[string]int),
		bySeverity: make(map[string]int),
	}
	workflows.SetObserver(func(exec *domain.RecoveryExecution) {
		switch exec.Status {
		case domain.ExecutionRunning:
			h.events.emit(Event{Kind: EventRecoveryStart, Execution: exec})
		case domain.ExecutionSuccess:
			h.events.emit(Event{Kind: EventRecoverySuccess, Execution: exec})
		default:
			h.events.emit(Event{Kind: EventRecoveryFailure, Execution: exec})
		}
	})
	return h, nil
}

// Rules exposes the classification rule registry.
func (h *Handler) Rules() *classify.Ruleset { return h.classifier.Rules() }

// Fallbacks exposes the strategy registry.
func (h *Handler) Fallbacks() *fallback.Manager { return h.fallbacks }

// Recovery exposes the workflow orchestrator.
func (h *Handler) Recovery() *recovery.Orchestrator { return h.workflows }

// Logger exposes the diagnostic pipeline.
func (h *Handler) Logger() *errlog.Logger { return h.logger }

// Messages exposes the user message generator.
func (h *Handler) Messages() *message.Generator { return h.messages }

// Events exposes the observer bus.
func (h *Handler) Events() *Bus { return h.events }

// SetConfig applies an incremental configuration change.
func (h *Handler) SetConfig(u ConfigUpdate) {
	if u.Retry != nil {
		h.mu.Lock()
		h.retryCfg = *u.Retry
		h.mu.Unlock()
	}
	if u.FallbackTimeout != nil {
		h.fallbacks.SetTimeout(*u.FallbackTimeout)
	}
	if u.Locale != nil {
		h.messages.SetLocale(*u.Locale)
	}
	if u.Offline != nil {
		if *u.Offline {
			h.fallbacks.EnableOfflineMode()
		} else {
			h.fallbacks.DisableOfflineMode()
		}
	}
}

func (h *Handler) retryConfig() retry.Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.retryCfg
}

// HandleError processes an already-failed operation: classify, watch
// for recovery triggers, try degraded-mode data, log once, and build
// the user-facing message. It never returns an error; failures inside
// the pipeline must not mask the original one.
func (h *Handler) HandleError(ctx context.Context, rawErr error, ectx *domain.ErrorContext) *Outcome {
	if rawErr == nil {
		return nil
	}
	cerr := h.classify(rawErr, ectx)
	return h.conclude(ctx, cerr, nil, true)
}

// Execute wraps op in the retry loop; on exhaustion the classified
// failure is handed to fallback before anything is returned. If a
// fallback succeeds the original failure is logged but not returned.
func (h *Handler) Execute(ctx context.Context, op retry.Operation, ectx *domain.ErrorContext) (any, *Outcome, error) {
	cfg := h.retryConfig()
	userOnRetry := cfg.OnRetry
	cfg.OnRetry = func(cerr *domain.ClassifiedError, attempt int) {
		h.events.emit(Event{Kind: EventRetryStart, Error: cerr, Attempt: attempt})
		h.logger.LogWarning(cerr)
		if userOnRetry != nil {
			userOnRetry(cerr, attempt)
		}
	}

	res, err := h.retries.Do(ctx, op, ectx, cfg)
	if err == nil {
		h.events.emit(Event{Kind: EventRetrySuccess})
		return res, nil, nil
	}

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		h.statsMu.Lock()
		h.retriesExhausted++
		h.statsMu.Unlock()
		h.events.emit(Event{Kind: EventRetryFailure, Error: exhausted.Last, Attempt: exhausted.State.Attempt})

		out := h.conclude(ctx, exhausted.Last, &exhausted.State, true)
		if out.Degraded() {
			return out.Fallback.Data, out, nil
		}
		return nil, out, err
	}

	var aborted *retry.AbortedError
	if errors.As(err, &aborted) {
		h.statsMu.Lock()
		h.retriesAborted++
		h.statsMu.Unlock()

		cerr := h.classify(aborted.Cause, ectx)
		if n := len(aborted.State.Errors); n > 0 {
			cerr = aborted.State.Errors[n-1]
		}
		h.events.emit(Event{Kind: EventRetryFailure, Error: cerr, Attempt: aborted.State.Attempt})

		// Aborts skip fallback: the caller asked to stop waiting.
		out := h.conclude(ctx, cerr, &aborted.State, false)
		return nil, out, err
	}

	// Not a retry terminal error; treat as a plain failure.
	out := h.conclude(ctx, h.classify(err, ectx), nil, true)
	if out.Degraded() {
		return out.Fallback.Data, out, nil
	}
	return nil, out, err
}

// conclude runs the shared tail of every failure path.
func (h *Handler) conclude(ctx context.Context, cerr *domain.ClassifiedError, state *retry.State, tryFallback bool) *Outcome {
	h.count(cerr)
	h.events.emit(Event{Kind: EventError, Error: cerr})
	h.workflows.Observe(cerr)

	var fb *domain.FallbackResult
	if tryFallback {
		query := ""
		if cerr.Context != nil {
			query = cerr.Context.Query
		}
		h.events.emit(Event{Kind: EventFallbackStart, Error: cerr})
		fb = h.fallbacks.Execute(ctx, cerr, query, cerr.Context)

		h.statsMu.Lock()
		if fb.Success {
			h.fallbackHits++
		} else {
			h.fallbackMisses++
		}
		h.statsMu.Unlock()

		if fb.Success {
			h.events.emit(Event{Kind: EventFallbackSuccess, Error: cerr, Fallback: fb})
		} else {
			h.events.emit(Event{Kind: EventFallbackFailure, Error: cerr, Fallback: fb})
		}
	}

	h.logger.LogError(cerr)

	msg := h.messages.Generate(cerr)
	h.events.emit(Event{Kind: EventUserMessage, Error: cerr, Message: &msg})

	return &Outcome{
		Error:    cerr,
		Retry:    state,
		Fallback: fb,
		Message:  msg,
	}
}

func (h *Handler) classify(err error, ectx *domain.ErrorContext) *domain.ClassifiedError {
	return &domain.ClassifiedError{
		Err:            err,
		Classification: h.classifier.Classify(err, ectx),
		Context:        ectx,
		CorrelationID:  uuid.New().String(),
		Timestamp:      time.Now(),
	}
}

func (h *Handler) count(cerr *domain.ClassifiedError) {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	h.handled++
	h.byType[string(cerr.Classification.Type)]++
	h.bySeverity[string(cerr.Classification.Severity)]++
}

// Stats is the aggregate view served by the stats endpoint.
type Stats struct {
	Handled          int                               `json:"handled"`
	ByType           map[string]int                    `json:"by_type"`
	BySeverity       map[string]int                    `json:"by_severity"`
	RetriesExhausted int                               `json:"retries_exhausted"`
	RetriesAborted   int                               `json:"retries_aborted"`
	FallbackHits     int                               `json:"fallback_hits"`
	FallbackMisses   int                               `json:"fallback_misses"`
	OfflineMode      bool                              `json:"offline_mode"`
	Rules            int                               `json:"rules"`
	Logger           errlog.Stats                      `json:"logger"`
	Recovery         map[string]recovery.WorkflowStats `json:"recovery"`
}

// Stats snapshots engine-wide counters.
func (h *Handler) Stats() Stats {
	h.statsMu.Lock()
	byType := make(map[string]int, len(h.byType))
	for k, v := range h.byType {
		byType[k] = v
	}
	bySeverity := make(map[string]int, len(h.bySeverity))
	for k, v := range h.bySeverity {
		bySeverity[k] = v
	}
	s := Stats{
		Handled:          h.handled,
		ByType:           byType,
		BySeverity:       bySeverity,
		RetriesExhausted: h.retriesExhausted,
		RetriesAborted:   h.retriesAborted,
		FallbackHits:     h.fallbackHits,
		FallbackMisses:   h.fallbackMisses,
	}
	h.statsMu.Unlock()

	s.OfflineMode = h.fallbacks.OfflineMode()
	s.Rules = h.Rules().Len()
	s.Logger = h.logger.Stats()
	s.Recovery = h.workflows.Stats()
	return s
}

// Close waits for in-flight recovery runs and drains the logger.
func (h *Handler) Close() {
	h.workflows.Wait()
	h.logger.Close()
}
