package errlog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vietddude/resilience/internal/core/domain"
)

// Sink receives sanitized diagnostic records. Implementations must
// tolerate concurrent writes.
type Sink interface {
	Name() string
	Write(ctx context.Context, entries []*domain.ErrorLogEntry) error
}

// ConsoleSink renders entries through slog. Always available.
type ConsoleSink struct {
	Log *slog.Logger
}

func (s *ConsoleSink) Name() string { return "console" }

func (s *ConsoleSink) Write(ctx context.Context, entries []*domain.ErrorLogEntry) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	for _, e := range entries {
		attrs := []any{
			"id", e.ID,
			"type", e.Error.Type,
			"fingerprint", e.Fingerprint,
		}
		if e.CorrelationID != "" {
			attrs = append(attrs, "correlation_id", e.CorrelationID)
		}
		switch e.Level {
		case domain.LogLevelError:
			log.Error(e.Error.Message, attrs...)
		case domain.LogLevelWarning:
			log.Warn(e.Error.Message, attrs...)
		default:
			log.Info(e.Error.Message, attrs...)
		}
	}
	return nil
}

// MemorySink retains the most recent entries in a bounded ring
// buffer. It backs Logger.Stats and the stats HTTP endpoint.
type MemorySink struct {
	mu   sync.Mutex
	buf  []*domain.ErrorLogEntry
	next int
	full bool
}

// NewMemorySink creates a sink retaining up to size entries.
func NewMemorySink(size int) *MemorySink {
	if size <= 0 {
		size = 500
	}
	return &MemorySink{buf: make([]*domain.ErrorLogEntry, size)}
}

func (s *MemorySink) Name() string { return "memory" }

func (s *MemorySink) Write(ctx context.Context, entries []*domain.ErrorLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.buf[s.next] = e
		s.next = (s.next + 1) % len(s.buf)
		if s.next == 0 {
			s.full = true
		}
	}
	return nil
}

// Recent returns the retained entries, oldest first.
func (s *MemorySink) Recent() []*domain.ErrorLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.full {
		out := make([]*domain.ErrorLogEntry, s.next)
		copy(out, s.buf[:s.next])
		return out
	}
	out := make([]*domain.ErrorLogEntry, 0, len(s.buf))
	out = append(out, s.buf[s.next:]...)
	out = append(out, s.buf[:s.next]...)
	return out
}
