package domain

import "time"

// LogLevel is the severity of a diagnostic record.
type LogLevel string

const (
	LogLevelError   LogLevel = "error"
	LogLevelWarning LogLevel = "warning"
	LogLevelInfo    LogLevel = "info"
)

// SanitizedError is the shippable form of a failure: scrubbed of
// anything the redaction patterns matched.
type SanitizedError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
	Stack   string    `json:"stack,omitempty"`
}

// SanitizedContext is the shippable subset of an ErrorContext.
// User identifiers are only present when explicitly enabled.
type SanitizedContext struct {
	Adapter   string            `json:"adapter,omitempty"`
	Operation string            `json:"operation,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ErrorLogEntry is a durable diagnostic record.
type ErrorLogEntry struct {
	ID            string            `json:"id"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Level         LogLevel          `json:"level"`
	Time          time.Time         `json:"time"`
	Error         SanitizedError    `json:"error"`
	Context       *SanitizedContext `json:"context,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
	Fingerprint   string            `json:"fingerprint"`
}
