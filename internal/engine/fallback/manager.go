package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/engine/metrics"
)

// DefaultTimeout bounds a single strategy execution when the strategy
// itself sets none.
const DefaultTimeout = 5 * time.Second

// Manager executes degraded-mode strategies in priority order.
type Manager struct {
	mu         sync.RWMutex
	strategies map[string]*Strategy
	offline    bool

	timeout time.Duration
	log     *slog.Logger
}

// NewManager creates a strategy manager. timeout is the manager-wide
// bound used for strategies without their own; zero selects
// DefaultTimeout.
func NewManager(timeout time.Duration, log *slog.Logger) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		strategies: make(map[string]*Strategy),
		timeout:    timeout,
		log:        log,
	}
}

// Register adds or replaces a strategy and returns the previous one
// with that name, if any.
func (m *Manager) Register(s Strategy) (*Strategy, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("strategy name must not be empty")
	}
	if s.Executor == nil {
		return nil, fmt.Errorf("strategy %s: executor must not be nil", s.Name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.strategies[s.Name]
	m.strategies[s.Name] = &s
	return prev, nil
}

// Remove deletes a strategy and returns it, or nil if absent.
func (m *Manager) Remove(name string) *Strategy {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.strategies[name]
	delete(m.strategies, name)
	return prev
}

// SetTimeout changes the manager-wide strategy bound at runtime.
// Zero or negative values are ignored.
func (m *Manager) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	m.mu.Lock()
	m.timeout = timeout
	m.mu.Unlock()
}

// EnableOfflineMode restricts selection to offline-capable strategies.
func (m *Manager) EnableOfflineMode() {
	m.mu.Lock()
	m.offline = true
	m.mu.Unlock()
}

// DisableOfflineMode restores normal selection.
func (m *Manager) DisableOfflineMode() {
	m.mu.Lock()
	m.offline = false
	m.mu.Unlock()
}

// OfflineMode reports whether offline mode is active.
func (m *Manager) OfflineMode() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.offline
}

// candidates snapshots the eligible strategies in ascending priority.
func (m *Manager) candidates(err *domain.ClassifiedError, ectx *domain.ErrorContext) []Strategy {
	m.mu.RLock()
	offline := m.offline
	all := make([]Strategy, 0, len(m.strategies))
	for _, s := range m.strategies {
		all = append(all, *s)
	}
	m.mu.RUnlock()

	out := all[:0]
	for _, s := range all {
		if !s.Enabled {
			continue
		}
		if offline && s.Condition == nil {
			continue
		}
		if s.Condition != nil && !s.Condition(err, ectx, offline) {
			continue
		}
		if !s.Executor.CanExecute(err, ectx) {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// Execute tries eligible strategies sequentially; the first success
// wins and short-circuits the rest. A strategy that errors or times
// out is treated as a non-match. Exhaustion returns a synthetic
// non-success result, never an error: the caller always has something
// displayable.
func (m *Manager) Execute(ctx context.Context, err *domain.ClassifiedError, query string, ectx *domain.ErrorContext) *domain.FallbackResult {
	for _, s := range m.candidates(err, ectx) {
		if ctx.Err() != nil {
			res := domain.NoFallback()
			res.Reason = "aborted"
			return res
		}

		res, execErr := m.runOne(ctx, s, query, ectx)
		if execErr != nil {
			metrics.FallbackExecutions.WithLabelValues(s.Name, "error").Inc()
			m.log.Debug("fallback strategy failed", "strategy", s.Name, "error", execErr)
			continue
		}
		if res == nil || !res.Success {
			metrics.FallbackExecutions.WithLabelValues(s.Name, "miss").Inc()
			continue
		}
		if res.Source == "" {
			res.Source = s.Name
		}
		metrics.FallbackExecutions.WithLabelValues(s.Name, "hit").Inc()
		m.log.Info("fallback strategy succeeded",
			"strategy", s.Name, "cached", res.Cached, "partial", res.Partial, "reliability", res.Reliability)
		return res
	}

	metrics.FallbackExecutions.WithLabelValues("none", "exhausted").Inc()
	return domain.NoFallback()
}

// runOne bounds a single executor call by the strategy timeout. On
// timeout the manager stops waiting; the executor is expected to
// observe ctx itself.
func (m *Manager) runOne(ctx context.Context, s Strategy, query string, ectx *domain.ErrorContext) (*domain.FallbackResult, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		m.mu.RLock()
		timeout = m.timeout
		m.mu.RUnlock()
	}
	subctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res *domain.FallbackResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("strategy %s panicked: %v", s.Name, rec)}
			}
		}()
		res, err := s.Executor.Execute(subctx, query, ectx)
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-subctx.Done():
		return nil, fmt.Errorf("strategy %s: %w", s.Name, subctx.Err())
	}
}
