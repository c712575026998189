package errlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/engine/metrics"
)

// maxPending caps the requeue buffer so a dead remote sink cannot
// grow memory without bound.
const maxPending = 10000

// Batcher ships entries to a remote sink in batches. Send failures
// are swallowed and the batch is retried on the next flush window;
// they never propagate to the logging call path.
type Batcher struct {
	sink     Sink
	size     int
	interval time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	pending []*domain.ErrorLogEntry

	kick chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewBatcher creates and starts a batching shipper.
func NewBatcher(sink Sink, batchSize int, flushInterval time.Duration, log *slog.Logger) *Batcher {
	if batchSize <= 0 {
		batchSize = 50
	}
	if flushInterval <= 0 {
		flushInterval = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	b := &Batcher{
		sink:     sink,
		size:     batchSize,
		interval: flushInterval,
		log:      log,
		kick:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.loop()
	return b
}

// Enqueue buffers an entry for the next batch.
func (b *Batcher) Enqueue(e *domain.ErrorLogEntry) {
	b.mu.Lock()
	if len(b.pending) >= maxPending {
		// Drop the oldest; the buffer never blocks a logging call.
		b.pending = b.pending[1:]
	}
	b.pending = append(b.pending, e)
	full := len(b.pending) >= b.size
	b.mu.Unlock()

	if full {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
}

func (b *Batcher) loop() {
	defer close(b.done)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
		case <-b.kick:
		}
		ctx, cancel := context.WithTimeout(context.Background(), b.interval)
		_ = b.Flush(ctx)
		cancel()
	}
}

// Flush sends everything pending immediately. Safe to call during
// shutdown and concurrently with Enqueue. The returned error is
// informational; entries stay queued for the next window.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := b.sink.Write(ctx, batch); err != nil {
		metrics.SinkFailures.WithLabelValues(b.sink.Name()).Inc()
		b.log.Warn("remote sink write failed, will retry", "sink", b.sink.Name(), "entries", len(batch), "error", err)
		// Requeue in front of anything enqueued meanwhile.
		b.mu.Lock()
		b.pending = append(batch, b.pending...)
		if len(b.pending) > maxPending {
			b.pending = b.pending[len(b.pending)-maxPending:]
		}
		b.mu.Unlock()
		return err
	}
	return nil
}

// Close stops the background loop and performs a final flush.
func (b *Batcher) Close() {
	b.once.Do(func() {
		close(b.stop)
		<-b.done
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = b.Flush(ctx)
	})
}
