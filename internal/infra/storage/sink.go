package storage

import (
	"context"

	"github.com/vietddude/resilience/internal/core/domain"
)

// Sink adapts an ErrorLogRepository into a log sink so persisted
// entries flow through the same pipeline as console and remote output.
type Sink struct {
	repo ErrorLogRepository
}

// NewSink wraps a repository as a log sink.
func NewSink(repo ErrorLogRepository) *Sink {
	return &Sink{repo: repo}
}

// Name identifies the sink in logs and metrics.
func (s *Sink) Name() string { return "store" }

// Write persists a batch of entries.
func (s *Sink) Write(ctx context.Context, entries []*domain.ErrorLogEntry) error {
	return s.repo.Add(ctx, entries)
}
