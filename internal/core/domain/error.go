package domain

import (
	"time"
)

// ErrorType categorizes a failure by its origin.
type ErrorType string

const (
	ErrorTypeNetwork        ErrorType = "network"
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeAuthorization  ErrorType = "authorization"
	ErrorTypeTimeout        ErrorType = "timeout"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeSystem         ErrorType = "system"
	ErrorTypeData           ErrorType = "data"
	ErrorTypeConfiguration  ErrorType = "configuration"
	ErrorTypeUserInput      ErrorType = "user_input"
	ErrorTypeSecurity       ErrorType = "security"
	ErrorTypeUnknown        ErrorType = "unknown"
)

// Severity grades how bad a failure is for the caller.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Rank returns a comparable weight for the severity (critical highest).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Recoverability describes whether retrying a failure can help.
type Recoverability string

const (
	Recoverable           Recoverability = "recoverable"
	Transient             Recoverability = "transient"
	Permanent             Recoverability = "permanent"
	UnknownRecoverability Recoverability = "unknown"
)

// Retryable reports whether a retry attempt is worth scheduling.
func (r Recoverability) Retryable() bool {
	return r == Recoverable || r == Transient
}

// Classification is the derived verdict for a raw failure.
type Classification struct {
	Type           ErrorType      `json:"type"`
	Severity       Severity       `json:"severity"`
	Recoverability Recoverability `json:"recoverability"`
	Category       string         `json:"category"`
	Confidence     float64        `json:"confidence"`
}

// UnknownClassification is returned when no rule matches.
var UnknownClassification = Classification{
	Type:           ErrorTypeUnknown,
	Severity:       SeverityMedium,
	Recoverability: UnknownRecoverability,
	Confidence:     0,
}

// ErrorContext carries metadata about the operation that failed.
// Immutable once captured; owned by the call that produced it.
type ErrorContext struct {
	Adapter    string         `json:"adapter,omitempty"`
	Query      string         `json:"query,omitempty"`
	Operation  string         `json:"operation,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	StatusCode int            `json:"status_code,omitempty"`
	Duration   time.Duration  `json:"duration,omitempty"`
	RetryCount int            `json:"retry_count,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Field returns a named context field for rule condition evaluation.
// Unknown names fall through to the Metadata map.
func (c *ErrorContext) Field(name string) (any, bool) {
	if c == nil {
		return nil, false
	}
	switch name {
	case "adapter":
		return c.Adapter, c.Adapter != ""
	case "query":
		return c.Query, c.Query != ""
	case "operation":
		return c.Operation, c.Operation != ""
	case "request_id":
		return c.RequestID, c.RequestID != ""
	case "session_id":
		return c.SessionID, c.SessionID != ""
	case "user_id":
		return c.UserID, c.UserID != ""
	case "status_code":
		return c.StatusCode, c.StatusCode != 0
	default:
		v, ok := c.Metadata[name]
		return v, ok
	}
}

// ClassifiedError pairs the raw failure with its classification.
type ClassifiedError struct {
	Err            error          `json:"-"`
	Classification Classification `json:"classification"`
	Context        *ErrorContext  `json:"context,omitempty"`
	CorrelationID  string         `json:"correlation_id"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return string(e.Classification.Type)
	}
	return string(e.Classification.Type) + ": " + e.Err.Error()
}

// Unwrap exposes the underlying failure to errors.Is/As.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}
