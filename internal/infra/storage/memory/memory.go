package memory

import (
	"context"
	"sync"

	"github.com/vietddude/resilience/internal/core/domain"
)

// ErrorLogRepo is an in-memory error log store used when no database
// is configured and in tests.
type ErrorLogRepo struct {
	mu      sync.RWMutex
	entries []*domain.ErrorLogEntry
	max     int
}

// NewErrorLogRepo creates an in-memory repository holding at most max
// entries. Zero or negative max falls back to 1000.
func NewErrorLogRepo(max int) *ErrorLogRepo {
	if max <= 0 {
		max = 1000
	}
	return &ErrorLogRepo{max: max}
}

// Add appends a batch, dropping the oldest entries beyond capacity.
func (r *ErrorLogRepo) Add(_ context.Context, entries []*domain.ErrorLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, entries...)
	if excess := len(r.entries) - r.max; excess > 0 {
		r.entries = r.entries[excess:]
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (r *ErrorLogRepo) Recent(_ context.Context, limit int) ([]*domain.ErrorLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.entries) {
		limit = len(r.entries)
	}
	out := make([]*domain.ErrorLogEntry, 0, limit)
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}

// CountByType aggregates stored entries per error type.
func (r *ErrorLogRepo) CountByType(_ context.Context) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int)
	for _, e := range r.entries {
		out[string(e.Error.Type)]++
	}
	return out, nil
}

// Prune keeps only the newest entries.
func (r *ErrorLogRepo) Prune(_ context.Context, keep int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	removed := len(r.entries) - keep
	if removed <= 0 {
		return 0, nil
	}
	r.entries = append([]*domain.ErrorLogEntry(nil), r.entries[removed:]...)
	return int64(removed), nil
}
