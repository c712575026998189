package retry

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// JitterType selects the randomization applied to the backoff delay.
type JitterType string

const (
	JitterNone         JitterType = "none"
	JitterFull         JitterType = "full"
	JitterEqual        JitterType = "equal"
	JitterDecorrelated JitterType = "decorrelated"
)

// ParseJitter maps a configuration string to a jitter policy.
// Unrecognized values select JitterNone.
func ParseJitter(s string) JitterType {
	switch JitterType(s) {
	case JitterFull, JitterEqual, JitterDecorrelated:
		return JitterType(s)
	default:
		return JitterNone
	}
}

// baseDelay computes the undithered exponential backoff for a 1-indexed
// attempt: min(maxDelay, initialDelay * multiplier^(attempt-1)).
func baseDelay(attempt int, cfg Config) time.Duration {
	d := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffMultiple, float64(attempt-1))
	if d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}
	return time.Duration(d)
}

// jitterSource wraps a seeded rand.Rand; rand.Rand is not safe for
// concurrent use.
type jitterSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newJitterSource(seed int64) *jitterSource {
	return &jitterSource{rnd: rand.New(rand.NewSource(seed))}
}

func (j *jitterSource) int63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rnd.Int63n(n)
}

// delayFor applies the configured jitter policy to the base delay.
// prev is the previously scheduled delay, used by the decorrelated
// policy only.
func (j *jitterSource) delayFor(attempt int, prev time.Duration, cfg Config) time.Duration {
	base := baseDelay(attempt, cfg)

	switch cfg.Jitter {
	case JitterFull:
		return time.Duration(j.int63n(int64(base) + 1))
	case JitterEqual:
		half := base / 2
		return half + time.Duration(j.int63n(int64(half)+1))
	case JitterDecorrelated:
		if prev <= 0 {
			prev = cfg.InitialDelay
		}
		lo := int64(cfg.InitialDelay)
		hi := int64(prev) * 3
		d := lo
		if hi > lo {
			d = lo + j.int63n(hi-lo)
		}
		if d > int64(cfg.MaxDelay) {
			d = int64(cfg.MaxDelay)
		}
		return time.Duration(d)
	default:
		return base
	}
}
