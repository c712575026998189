package storage

import (
	"context"

	"github.com/vietddude/resilience/internal/core/domain"
)

// ErrorLogRepository persists sanitized diagnostic records.
type ErrorLogRepository interface {
	// Add stores a batch of entries.
	Add(ctx context.Context, entries []*domain.ErrorLogEntry) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]*domain.ErrorLogEntry, error)

	// CountByType aggregates stored entries per error type.
	CountByType(ctx context.Context) (map[string]int, error)

	// Prune keeps only the newest entries and reports how many
	// were removed.
	Prune(ctx context.Context, keep int) (int64, error)
}
