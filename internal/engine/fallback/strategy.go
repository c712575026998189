package fallback

import (
	"context"
	"time"

	"github.com/vietddude/resilience/internal/core/domain"
)

// Executor produces degraded-mode data when the primary path failed.
// Execute receives a context it must observe for cooperative
// cancellation; the manager stops waiting on timeout but never kills
// an in-flight call.
type Executor interface {
	CanExecute(err *domain.ClassifiedError, ectx *domain.ErrorContext) bool
	Execute(ctx context.Context, query string, ectx *domain.ErrorContext) (*domain.FallbackResult, error)
}

// Condition gates a strategy on the failure, its context, and whether
// offline mode is active. In offline mode only strategies whose
// condition explicitly accepts it are considered.
type Condition func(err *domain.ClassifiedError, ectx *domain.ErrorContext, offline bool) bool

// Strategy is one registered degraded-mode source. Lower priority is
// tried first.
type Strategy struct {
	Name      string
	Priority  int
	Enabled   bool
	Condition Condition
	Executor  Executor
	Timeout   time.Duration
}
