package errlog

import (
	"fmt"
	"regexp"

	"github.com/vietddude/resilience/internal/core/domain"
)

const redacted = "[REDACTED]"

// ReplacePattern rewrites matches of Pattern with Replacement.
type ReplacePattern struct {
	Pattern     string
	Replacement string
}

// SanitizerConfig controls what leaves the process boundary.
type SanitizerConfig struct {
	RemovePatterns  []string
	ReplacePatterns []ReplacePattern
	IncludeStack    bool
	IncludeContext  bool
	// EnableUserData keeps user identifiers in sanitized context.
	// Off by default: user sub-objects are fully excluded.
	EnableUserData bool
}

// Sanitizer scrubs errors and contexts before they reach any sink.
// Patterns are compiled once at construction.
type Sanitizer struct {
	cfg     SanitizerConfig
	remove  []*regexp.Regexp
	replace []compiledReplace
}

type compiledReplace struct {
	re   *regexp.Regexp
	with string
}

// NewSanitizer compiles the configured patterns. A malformed pattern
// is a configuration error and fails construction.
func NewSanitizer(cfg SanitizerConfig) (*Sanitizer, error) {
	s := &Sanitizer{cfg: cfg}
	for _, p := range cfg.RemovePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("remove pattern %q: %w", p, err)
		}
		s.remove = append(s.remove, re)
	}
	for _, rp := range cfg.ReplacePatterns {
		re, err := regexp.Compile(rp.Pattern)
		if err != nil {
			return nil, fmt.Errorf("replace pattern %q: %w", rp.Pattern, err)
		}
		s.replace = append(s.replace, compiledReplace{re: re, with: rp.Replacement})
	}
	return s, nil
}

// scrub applies every pattern to a single string.
func (s *Sanitizer) scrub(in string) string {
	out := in
	for _, re := range s.remove {
		out = re.ReplaceAllString(out, redacted)
	}
	for _, cr := range s.replace {
		out = cr.re.ReplaceAllString(out, cr.with)
	}
	return out
}

// SanitizeError produces the shippable form of a classified failure.
func (s *Sanitizer) SanitizeError(cerr *domain.ClassifiedError) domain.SanitizedError {
	out := domain.SanitizedError{
		Type: cerr.Classification.Type,
	}
	if cerr.Err != nil {
		out.Message = s.scrub(cerr.Err.Error())
		if coder, ok := cerr.Err.(interface{ Code() string }); ok {
			out.Code = s.scrub(coder.Code())
		}
	}
	if s.cfg.IncludeStack {
		if st, ok := cerr.Err.(interface{ Stack() string }); ok {
			out.Stack = s.scrub(st.Stack())
		}
	}
	return out
}

// SanitizeContext produces the shippable subset of an error context,
// or nil when context shipping is disabled.
func (s *Sanitizer) SanitizeContext(ectx *domain.ErrorContext) *domain.SanitizedContext {
	if !s.cfg.IncludeContext || ectx == nil {
		return nil
	}
	out := &domain.SanitizedContext{
		Adapter:   s.scrub(ectx.Adapter),
		Operation: s.scrub(ectx.Operation),
		RequestID: ectx.RequestID,
	}
	if s.cfg.EnableUserData {
		out.SessionID = ectx.SessionID
		out.UserID = ectx.UserID
	}
	if len(ectx.Metadata) > 0 {
		out.Metadata = make(map[string]string, len(ectx.Metadata))
		for k, v := range ectx.Metadata {
			out.Metadata[s.scrub(k)] = s.scrub(fmt.Sprintf("%v", v))
		}
	}
	return out
}
