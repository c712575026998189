package classify

import (
	"fmt"
	"sort"
	"sync"
)

// Ruleset is the process-wide rule registry. Reads take a snapshot so
// concurrent mutation never corrupts an in-progress classification.
type Ruleset struct {
	mu    sync.RWMutex
	rules map[string]*Rule
}

// NewRuleset creates an empty registry.
func NewRuleset() *Ruleset {
	return &Ruleset{rules: make(map[string]*Rule)}
}

// Register adds or replaces a rule and returns the previous rule with
// that ID, if any. Weight defaults to 1 when unset.
func (rs *Ruleset) Register(r Rule) (*Rule, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("rule ID must not be empty")
	}
	if r.Weight == 0 {
		r.Weight = 1
	}
	if r.Weight < minWeight || r.Weight > maxWeight {
		return nil, fmt.Errorf("rule %s: weight %.2f out of range [%.1f, %.1f]", r.ID, r.Weight, minWeight, maxWeight)
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	prev := rs.rules[r.ID]
	rs.rules[r.ID] = &r
	return prev, nil
}

// Remove deletes a rule and returns it, or nil if absent.
func (rs *Ruleset) Remove(id string) *Rule {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	prev := rs.rules[id]
	delete(rs.rules, id)
	return prev
}

// SetEnabled flips a rule on or off.
func (rs *Ruleset) SetEnabled(id string, enabled bool) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, ok := rs.rules[id]
	if !ok {
		return false
	}
	r.Enabled = enabled
	return true
}

const (
	minWeight = 0.1
	maxWeight = 10.0
)

// UpdateWeights adjusts rule weights proportionally to observed
// accuracy. Explicit caller-driven tuning, not automatic learning.
func (rs *Ruleset) UpdateWeights(perf map[string]RulePerformance) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for id, p := range perf {
		r, ok := rs.rules[id]
		if !ok {
			continue
		}
		w := r.Weight * (1 + (p.Accuracy - p.TargetAccuracy))
		if w < minWeight {
			w = minWeight
		}
		if w > maxWeight {
			w = maxWeight
		}
		r.Weight = w
	}
}

// Snapshot returns the enabled rules ordered by descending priority,
// ties broken by ascending ID so equal-priority rules evaluate in a
// fixed order. The returned slice is a copy and safe to iterate
// without locking.
func (rs *Ruleset) Snapshot() []Rule {
	rs.mu.RLock()
	out := make([]Rule, 0, len(rs.rules))
	for _, r := range rs.rules {
		if r.Enabled {
			out = append(out, *r)
		}
	}
	rs.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len reports the number of registered rules, enabled or not.
func (rs *Ruleset) Len() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.rules)
}
