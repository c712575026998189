package recovery

import (
	"time"

	"github.com/vietddude/resilience/internal/core/domain"
)

// ringBuffer retains the most recent executions in insertion order.
// Callers hold the orchestrator lock.
type ringBuffer struct {
	buf  []*domain.RecoveryExecution
	next int
	full bool
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{buf: make([]*domain.RecoveryExecution, size)}
}

func (r *ringBuffer) add(e *domain.RecoveryExecution) {
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// items returns the retained executions, oldest first.
func (r *ringBuffer) items() []*domain.RecoveryExecution {
	if !r.full {
		out := make([]*domain.RecoveryExecution, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]*domain.RecoveryExecution, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

// WorkflowStats aggregates retained executions of one workflow.
type WorkflowStats struct {
	Executions  int                    `json:"executions"`
	Successes   int                    `json:"successes"`
	Failures    int                    `json:"failures"`
	Cancelled   int                    `json:"cancelled"`
	SuccessRate float64                `json:"success_rate"`
	AvgDuration time.Duration          `json:"avg_duration"`
	LastStatus  domain.ExecutionStatus `json:"last_status,omitempty"`
}

// Stats aggregates the retained execution history per workflow.
func (o *Orchestrator) Stats() map[string]WorkflowStats {
	o.mu.Lock()
	execs := o.history.items()
	o.mu.Unlock()

	out := make(map[string]WorkflowStats)
	totals := make(map[string]time.Duration)
	for _, e := range execs {
		s := out[e.WorkflowID]
		s.Executions++
		switch e.Status {
		case domain.ExecutionSuccess:
			s.Successes++
		case domain.ExecutionFailure:
			s.Failures++
		case domain.ExecutionCancelled:
			s.Cancelled++
		}
		s.LastStatus = e.Status
		totals[e.WorkflowID] += e.Duration()
		out[e.WorkflowID] = s
	}
	for id, s := range out {
		if s.Executions > 0 {
			s.SuccessRate = float64(s.Successes) / float64(s.Executions)
			s.AvgDuration = totals[id] / time.Duration(s.Executions)
		}
		out[id] = s
	}
	return out
}

// Executions returns a copy of the retained execution history,
// oldest first.
func (o *Orchestrator) Executions() []*domain.RecoveryExecution {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.history.items()
}
