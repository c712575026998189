package classify

import (
	"log/slog"
	"sync"

	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/engine/metrics"
)

// Classifier assigns a classification to raw failures using the
// prioritized, weighted rule set.
type Classifier struct {
	rules *Ruleset
	log   *slog.Logger

	warnedMu sync.Mutex
	warned   map[string]bool
}

// New creates a classifier over the given ruleset.
func New(rules *Ruleset, log *slog.Logger) *Classifier {
	if log == nil {
		log = slog.Default()
	}
	return &Classifier{
		rules:  rules,
		log:    log,
		warned: make(map[string]bool),
	}
}

// Rules exposes the underlying registry.
func (c *Classifier) Rules() *Ruleset {
	return c.rules
}

// Classify evaluates enabled rules in descending priority. The first
// fully-matching rule decides type, category, severity and
// recoverability; every matching rule contributes its weight to the
// confidence score. No match degrades to the unknown classification,
// never an error.
func (c *Classifier) Classify(err error, ctx *domain.ErrorContext) domain.Classification {
	if err == nil {
		return domain.UnknownClassification
	}

	var (
		winner      *Rule
		totalWeight float64
	)
	for _, r := range c.rules.Snapshot() {
		r := r
		if !c.ruleMatches(&r, err, ctx) {
			continue
		}
		totalWeight += r.Weight
		if winner == nil {
			winner = &r
		}
	}

	if winner == nil {
		metrics.ErrorsClassified.WithLabelValues(string(domain.ErrorTypeUnknown), string(domain.SeverityMedium)).Inc()
		return domain.UnknownClassification
	}

	out := winner.Classification
	if out.Type == "" {
		out.Type = domain.ErrorTypeUnknown
	}
	if out.Severity == "" {
		out.Severity = domain.SeverityMedium
	}
	if out.Recoverability == "" {
		out.Recoverability = domain.UnknownRecoverability
	}
	// Normalize accumulated weight into [0, 1).
	out.Confidence = totalWeight / (totalWeight + 1)

	metrics.ErrorsClassified.WithLabelValues(string(out.Type), string(out.Severity)).Inc()
	return out
}

// ruleMatches evaluates a rule. A predicate or condition that panics
// counts as a non-match and is reported once per rule.
func (c *Classifier) ruleMatches(r *Rule, err error, ctx *domain.ErrorContext) (matched bool) {
	defer func() {
		if rec := recover(); rec != nil {
			matched = false
			c.warnOnce(r.ID, rec)
		}
	}()

	if !r.Matcher.Match(err, ctx) {
		return false
	}
	for _, cond := range r.Conditions {
		if !cond.Eval(err, ctx) {
			return false
		}
	}
	return true
}

func (c *Classifier) warnOnce(ruleID string, cause any) {
	c.warnedMu.Lock()
	defer c.warnedMu.Unlock()
	if c.warned[ruleID] {
		return
	}
	c.warned[ruleID] = true
	c.log.Warn("classification rule panicked, skipping", "rule", ruleID, "cause", cause)
}
