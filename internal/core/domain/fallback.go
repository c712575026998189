package domain

import "time"

// FallbackResult is what a degraded-mode strategy hands back to the caller.
// It is an output artifact, never persisted.
type FallbackResult struct {
	Success     bool          `json:"success"`
	Data        []any         `json:"data"`
	Source      string        `json:"source"`
	Partial     bool          `json:"partial"`
	Cached      bool          `json:"cached"`
	Age         time.Duration `json:"age,omitempty"`
	Reliability float64       `json:"reliability"`
	Reason      string        `json:"reason,omitempty"`
}

// NoFallback is the synthetic result returned when every strategy
// declined or failed. Callers always get a displayable result.
func NoFallback() *FallbackResult {
	return &FallbackResult{
		Success:     false,
		Data:        []any{},
		Source:      "none",
		Reliability: 0,
		Reason:      "no-strategy-available",
	}
}
