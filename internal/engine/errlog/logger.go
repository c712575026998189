package errlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/engine/metrics"
)

// Config tunes the logger pipeline.
type Config struct {
	ConsoleEnabled    bool
	BufferSize        int
	AggregationWindow time.Duration
	MaxDuplicates     int
	Sanitizer         SanitizerConfig
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	ConsoleEnabled:    true,
	BufferSize:        500,
	AggregationWindow: time.Minute,
	MaxDuplicates:     5,
}

type dupState struct {
	count       int
	windowStart time.Time
}

// Stats is a snapshot of logger counters.
type Stats struct {
	Total        int            `json:"total"`
	ByLevel      map[string]int `json:"by_level"`
	ByType       map[string]int `json:"by_type"`
	Deduplicated int            `json:"deduplicated"`
	SinkFailures int            `json:"sink_failures"`
}

// Logger sanitizes, deduplicates and ships diagnostic records.
// Every sink failure is swallowed here; logging never masks the
// original error.
type Logger struct {
	cfg       Config
	sanitizer *Sanitizer
	console   *ConsoleSink
	memory    *MemorySink
	extra     []Sink
	remote    *Batcher
	log       *slog.Logger

	mu    sync.Mutex
	dedup map[string]*dupState
	stats Stats
}

// New creates a logger. Extra sinks (e.g. the Postgres store) are
// attached with AddSink; the remote shipper with SetRemote.
func New(cfg Config, log *slog.Logger) (*Logger, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig.BufferSize
	}
	if cfg.AggregationWindow <= 0 {
		cfg.AggregationWindow = DefaultConfig.AggregationWindow
	}
	if cfg.MaxDuplicates <= 0 {
		cfg.MaxDuplicates = DefaultConfig.MaxDuplicates
	}
	if log == nil {
		log = slog.Default()
	}
	san, err := NewSanitizer(cfg.Sanitizer)
	if err != nil {
		return nil, err
	}
	return &Logger{
		cfg:       cfg,
		sanitizer: san,
		console:   &ConsoleSink{Log: log},
		memory:    NewMemorySink(cfg.BufferSize),
		log:       log,
		dedup:     make(map[string]*dupState),
		stats: Stats{
			ByLevel: make(map[string]int),
			ByType:  make(map[string]int),
		},
	}, nil
}

// AddSink attaches an additional synchronous sink.
func (l *Logger) AddSink(s Sink) {
	l.mu.Lock()
	l.extra = append(l.extra, s)
	l.mu.Unlock()
}

// SetRemote attaches the batching remote shipper.
func (l *Logger) SetRemote(b *Batcher) {
	l.mu.Lock()
	l.remote = b
	l.mu.Unlock()
}

// LogError records a classified failure at error level.
func (l *Logger) LogError(cerr *domain.ClassifiedError) {
	l.record(domain.LogLevelError, cerr, nil)
}

// LogWarning records a classified failure at warning level.
func (l *Logger) LogWarning(cerr *domain.ClassifiedError) {
	l.record(domain.LogLevelWarning, cerr, nil)
}

// LogInfo records a classified failure at info level.
func (l *Logger) LogInfo(cerr *domain.ClassifiedError) {
	l.record(domain.LogLevelInfo, cerr, nil)
}

// LogErrorTagged records a failure with extra tags.
func (l *Logger) LogErrorTagged(cerr *domain.ClassifiedError, tags map[string]string) {
	l.record(domain.LogLevelError, cerr, tags)
}

func (l *Logger) record(level domain.LogLevel, cerr *domain.ClassifiedError, tags map[string]string) {
	if cerr == nil {
		return
	}

	entry := &domain.ErrorLogEntry{
		ID:            uuid.New().String(),
		CorrelationID: cerr.CorrelationID,
		Level:         level,
		Time:          time.Now(),
		Error:         l.sanitizer.SanitizeError(cerr),
		Context:       l.sanitizer.SanitizeContext(cerr.Context),
		Tags:          tags,
	}
	entry.Fingerprint = Fingerprint(entry.Error)

	metrics.LogEntries.WithLabelValues(string(level)).Inc()

	// Local stats always count the occurrence, deduplicated or not.
	l.mu.Lock()
	l.stats.Total++
	l.stats.ByLevel[string(level)]++
	l.stats.ByType[string(entry.Error.Type)]++

	now := entry.Time
	d := l.dedup[entry.Fingerprint]
	if d == nil || now.Sub(d.windowStart) > l.cfg.AggregationWindow {
		d = &dupState{windowStart: now}
		l.dedup[entry.Fingerprint] = d
	}
	d.count++
	emitRemote := d.count <= l.cfg.MaxDuplicates
	if !emitRemote {
		l.stats.Deduplicated++
	}
	extra := l.extra
	remote := l.remote
	l.mu.Unlock()

	batch := []*domain.ErrorLogEntry{entry}
	if l.cfg.ConsoleEnabled {
		_ = l.console.Write(context.Background(), batch)
	}
	_ = l.memory.Write(context.Background(), batch)

	for _, s := range extra {
		if err := s.Write(context.Background(), batch); err != nil {
			metrics.SinkFailures.WithLabelValues(s.Name()).Inc()
			l.mu.Lock()
			l.stats.SinkFailures++
			l.mu.Unlock()
			l.log.Warn("log sink write failed", "sink", s.Name(), "error", err)
		}
	}

	if remote != nil {
		if emitRemote {
			remote.Enqueue(entry)
		} else {
			metrics.LogDeduplicated.Inc()
		}
	}
}

// Flush forces an immediate remote batch send. Safe during shutdown.
func (l *Logger) Flush(ctx context.Context) error {
	l.mu.Lock()
	remote := l.remote
	l.mu.Unlock()
	if remote == nil {
		return nil
	}
	return remote.Flush(ctx)
}

// Close flushes and stops the remote shipper.
func (l *Logger) Close() {
	l.mu.Lock()
	remote := l.remote
	l.mu.Unlock()
	if remote != nil {
		remote.Close()
	}
}

// Stats returns a snapshot of the logger counters.
func (l *Logger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := Stats{
		Total:        l.stats.Total,
		Deduplicated: l.stats.Deduplicated,
		SinkFailures: l.stats.SinkFailures,
		ByLevel:      make(map[string]int, len(l.stats.ByLevel)),
		ByType:       make(map[string]int, len(l.stats.ByType)),
	}
	for k, v := range l.stats.ByLevel {
		out.ByLevel[k] = v
	}
	for k, v := range l.stats.ByType {
		out.ByType[k] = v
	}
	return out
}

// Recent exposes the in-memory ring buffer, oldest first.
func (l *Logger) Recent() []*domain.ErrorLogEntry {
	return l.memory.Recent()
}
