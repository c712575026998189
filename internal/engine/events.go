package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/resilience/internal/core/domain"
)

// EventKind names an observable point in the handling pipeline.
type EventKind string

const (
	EventError           EventKind = "error"
	EventRetryStart      EventKind = "retry_start"
	EventRetrySuccess    EventKind = "retry_success"
	EventRetryFailure    EventKind = "retry_failure"
	EventFallbackStart   EventKind = "fallback_start"
	EventFallbackSuccess EventKind = "fallback_success"
	EventFallbackFailure EventKind = "fallback_failure"
	EventRecoveryStart   EventKind = "recovery_start"
	EventRecoverySuccess EventKind = "recovery_success"
	EventRecoveryFailure EventKind = "recovery_failure"
	EventUserMessage     EventKind = "user_message"
)

// Event is the payload delivered to subscribers. Fields are set per
// kind; unset fields are zero.
type Event struct {
	Kind      EventKind
	Error     *domain.ClassifiedError
	Attempt   int
	Delay     time.Duration
	Fallback  *domain.FallbackResult
	Message   *domain.UserMessage
	Execution *domain.RecoveryExecution
}

// Callback observes events. Callbacks run synchronously on the
// handling path and must not block; the engine never awaits their
// effects.
type Callback func(Event)

// Bus is a minimal subscribe/emit fanout. Emission is fire-and-forget:
// panics in callbacks are recovered and logged, results ignored.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventKind]map[int]Callback
	next int
	log  *slog.Logger
}

func newBus(log *slog.Logger) *Bus {
	return &Bus{
		subs: make(map[EventKind]map[int]Callback),
		log:  log,
	}
}

// Subscribe registers a callback for one event kind and returns the
// matching unsubscribe function.
func (b *Bus) Subscribe(kind EventKind, fn Callback) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[kind] == nil {
		b.subs[kind] = make(map[int]Callback)
	}
	id := b.next
	b.next++
	b.subs[kind][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[kind], id)
	}
}

func (b *Bus) emit(ev Event) {
	b.mu.RLock()
	fns := make([]Callback, 0, len(b.subs[ev.Kind]))
	for _, fn := range b.subs[ev.Kind] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		b.call(fn, ev)
	}
}

func (b *Bus) call(fn Callback, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			b.log.Warn("event callback panicked", "kind", ev.Kind, "panic", rec)
		}
	}()
	fn(ev)
}
