package fallback

import (
	"context"
	"time"

	"github.com/vietddude/resilience/internal/core/domain"
)

// CacheStore is the read side of a cache that previously-successful
// results were written to. The redis client implements it.
type CacheStore interface {
	Get(ctx context.Context, key string) (data []any, age time.Duration, err error)
}

// CacheExecutor serves stale results from a cache store. Reliability
// decays with age relative to maxAge.
type CacheExecutor struct {
	Store  CacheStore
	MaxAge time.Duration
}

// CanExecute accepts any failure as long as a store is configured.
func (e *CacheExecutor) CanExecute(err *domain.ClassifiedError, ectx *domain.ErrorContext) bool {
	return e.Store != nil
}

// Execute looks up the query in the cache.
func (e *CacheExecutor) Execute(ctx context.Context, query string, ectx *domain.ErrorContext) (*domain.FallbackResult, error) {
	data, age, err := e.Store.Get(ctx, query)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return &domain.FallbackResult{Success: false, Reason: "cache-miss"}, nil
	}

	maxAge := e.MaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	reliability := 1 - float64(age)/float64(maxAge)
	if reliability < 0.1 {
		reliability = 0.1
	}

	return &domain.FallbackResult{
		Success:     true,
		Data:        data,
		Source:      "cache",
		Cached:      true,
		Age:         age,
		Reliability: reliability,
	}, nil
}

// StaticExecutor serves a canned offline dataset. Always partial,
// always low reliability.
type StaticExecutor struct {
	Data []any
}

func (e *StaticExecutor) CanExecute(err *domain.ClassifiedError, ectx *domain.ErrorContext) bool {
	return len(e.Data) > 0
}

func (e *StaticExecutor) Execute(ctx context.Context, query string, ectx *domain.ErrorContext) (*domain.FallbackResult, error) {
	return &domain.FallbackResult{
		Success:     true,
		Data:        e.Data,
		Source:      "offline",
		Partial:     true,
		Reliability: 0.3,
	}, nil
}

// Requery re-runs a simplified variant of the original query.
type Requery func(ctx context.Context, query string) ([]any, error)

// SimplifiedExecutor retries the request through a caller-supplied
// degraded path, e.g. a trimmed query against a secondary index.
type SimplifiedExecutor struct {
	Run Requery
}

// CanExecute declines permanent failures: a simplified variant of an
// invalid request is still invalid.
func (e *SimplifiedExecutor) CanExecute(err *domain.ClassifiedError, ectx *domain.ErrorContext) bool {
	if e.Run == nil {
		return false
	}
	return err == nil || err.Classification.Recoverability != domain.Permanent
}

func (e *SimplifiedExecutor) Execute(ctx context.Context, query string, ectx *domain.ErrorContext) (*domain.FallbackResult, error) {
	data, err := e.Run(ctx, query)
	if err != nil {
		return nil, err
	}
	return &domain.FallbackResult{
		Success:     true,
		Data:        data,
		Source:      "simplified",
		Partial:     true,
		Reliability: 0.7,
	}, nil
}
