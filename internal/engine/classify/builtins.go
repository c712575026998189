package classify

import (
	"regexp"

	"github.com/vietddude/resilience/internal/core/domain"
)

// DefaultRules covers the common failure families seen across
// adapters. Callers layer their own higher-priority rules on top.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:       "builtin-security",
			Priority: 100,
			Matcher:  Matcher{Message: regexp.MustCompile(`(?i)csrf|xss|injection|forged|tamper`)},
			Classification: domain.Classification{
				Type:           domain.ErrorTypeSecurity,
				Severity:       domain.SeverityCritical,
				Recoverability: domain.Permanent,
				Category:       "security",
			},
			Enabled: true,
		},
		{
			ID:       "builtin-rate-limit",
			Priority: 90,
			Matcher:  Matcher{Message: regexp.MustCompile(`(?i)\b429\b|too many requests|rate limit|quota|count exceeded|plan limit`)},
			Classification: domain.Classification{
				Type:           domain.ErrorTypeRateLimit,
				Severity:       domain.SeverityMedium,
				Recoverability: domain.Transient,
				Category:       "throttling",
			},
			Enabled: true,
		},
		{
			ID:       "builtin-authentication",
			Priority: 85,
			Matcher:  Matcher{Message: regexp.MustCompile(`(?i)\b401\b|unauthenticated|invalid (token|credentials)|token expired`)},
			Classification: domain.Classification{
				Type:           domain.ErrorTypeAuthentication,
				Severity:       domain.SeverityHigh,
				Recoverability: domain.Recoverable,
				Category:       "auth",
			},
			Enabled: true,
		},
		{
			ID:       "builtin-authorization",
			Priority: 84,
			Matcher:  Matcher{Message: regexp.MustCompile(`(?i)\b403\b|forbidden|permission denied|not allowed|unauthorized`)},
			Classification: domain.Classification{
				Type:           domain.ErrorTypeAuthorization,
				Severity:       domain.SeverityHigh,
				Recoverability: domain.Permanent,
				Category:       "auth",
			},
			Enabled: true,
		},
		{
			ID:       "builtin-timeout",
			Priority: 80,
			Matcher:  Matcher{Message: regexp.MustCompile(`(?i)timeout|timed out|deadline exceeded`)},
			Classification: domain.Classification{
				Type:           domain.ErrorTypeTimeout,
				Severity:       domain.SeverityMedium,
				Recoverability: domain.Transient,
				Category:       "latency",
			},
			Enabled: true,
		},
		{
			ID:       "builtin-network",
			Priority: 70,
			Matcher:  Matcher{Message: regexp.MustCompile(`(?i)connection (refused|reset|closed)|no such host|network|EOF|broken pipe|\b50[234]\b`)},
			Classification: domain.Classification{
				Type:           domain.ErrorTypeNetwork,
				Severity:       domain.SeverityMedium,
				Recoverability: domain.Transient,
				Category:       "connectivity",
			},
			Enabled: true,
		},
		{
			ID:       "builtin-validation",
			Priority: 60,
			Matcher:  Matcher{Message: regexp.MustCompile(`(?i)\b400\b|invalid (request|input|parameter)|malformed|validation failed`)},
			Classification: domain.Classification{
				Type:           domain.ErrorTypeValidation,
				Severity:       domain.SeverityLow,
				Recoverability: domain.Permanent,
				Category:       "input",
			},
			Enabled: true,
		},
		{
			ID:       "builtin-configuration",
			Priority: 50,
			Matcher:  Matcher{Message: regexp.MustCompile(`(?i)misconfigur|missing (config|setting)|unknown (option|flag)`)},
			Classification: domain.Classification{
				Type:           domain.ErrorTypeConfiguration,
				Severity:       domain.SeverityHigh,
				Recoverability: domain.Permanent,
				Category:       "config",
			},
			Enabled: true,
		},
		{
			ID:       "builtin-system",
			Priority: 40,
			Matcher:  Matcher{Message: regexp.MustCompile(`(?i)\b500\b|internal server error|out of memory|panic`)},
			Classification: domain.Classification{
				Type:           domain.ErrorTypeSystem,
				Severity:       domain.SeverityHigh,
				Recoverability: domain.Transient,
				Category:       "server",
			},
			Enabled: true,
		},
	}
}

// NewRulesetWithDefaults builds a registry pre-loaded with the
// built-in rules.
func NewRulesetWithDefaults() *Ruleset {
	rs := NewRuleset()
	for _, r := range DefaultRules() {
		_, _ = rs.Register(r)
	}
	return rs
}
